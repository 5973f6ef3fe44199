package input

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/pkg/errors"
)

// Backend opens sessions on its devices.
type Backend interface {
	// Init should do nothing if called more than once.
	Init() error
	Close() error

	Devices() ([]Device, error)
	DefaultDevice() (Device, error)
	Start(SessionConfig) (Session, error)
}

// DeviceParser is implemented by backends whose devices are described by the
// device string itself rather than picked from a list.
type DeviceParser interface {
	ParseDevice(string) (Device, error)
}

type NamedBackend struct {
	Name string
	Backend
}

var Backends []NamedBackend

// RegisterBackend registers a backend globally. This function is not
// thread-safe, and most packages should call it on init().
func RegisterBackend(name string, b Backend) {
	Backends = append(Backends, NamedBackend{
		Name:    name,
		Backend: b,
	})
}

// GetAllBackendNames returns the names of all installed backends.
func GetAllBackendNames() []string {
	out := make([]string, len(Backends))
	for i, backend := range Backends {
		out[i] = backend.Name
	}
	return out
}

// DefaultBackend picks a backend for the host. parec is used when it is on
// the PATH, stdin otherwise.
func DefaultBackend() string {
	if runtime.GOOS == "linux" {
		if path, _ := exec.LookPath("parec"); path != "" && HasBackend("parec") {
			return "parec"
		}
	}

	if HasBackend("stdin") {
		return "stdin"
	}

	return ""
}

// FindBackend is a helper function that finds a backend. It returns nil if the
// backend is not found.
func FindBackend(name string) Backend {
	for _, backend := range Backends {
		if backend.Name == name {
			return backend.Backend
		}
	}
	return nil
}

func HasBackend(name string) bool {
	for _, backend := range Backends {
		if backend.Name == name {
			return true
		}
	}
	return false
}

func InitBackend(bknd string) (Backend, error) {
	backend := FindBackend(bknd)
	if backend == nil {
		return nil, fmt.Errorf("backend not found: %q; check list-backends", bknd)
	}

	if err := backend.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize input backend")
	}

	return backend, nil
}

func GetDevice(backend Backend, device string) (Device, error) {
	if device == "" {
		def, err := backend.DefaultDevice()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get default device")
		}
		return def, nil
	}

	if p, ok := backend.(DeviceParser); ok {
		return p.ParseDevice(device)
	}

	devices, err := backend.Devices()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get devices")
	}

	for idx := range devices {
		if devices[idx].String() == device {
			return devices[idx], nil
		}
	}

	return nil, errors.Errorf("device %q not found; check list-devices", device)
}
