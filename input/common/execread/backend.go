package execread

import (
	"strings"

	"github.com/noriah/bcifeed/input"
	"github.com/pkg/errors"
)

func init() {
	input.RegisterBackend("exec", Backend{})
}

// Backend runs the device string as a command and reads its stdout.
type Backend struct{}

func (b Backend) Init() error {
	return nil
}

func (b Backend) Close() error {
	return nil
}

func (b Backend) Devices() ([]input.Device, error) {
	return nil, nil
}

func (b Backend) DefaultDevice() (input.Device, error) {
	return nil, errors.New("exec backend needs a command as device")
}

// ParseDevice splits a command line on white space. There is no quoting.
func (b Backend) ParseDevice(device string) (input.Device, error) {
	argv := strings.Fields(device)
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	return Command(argv), nil
}

func (b Backend) Start(cfg input.SessionConfig) (input.Session, error) {
	cmd, ok := cfg.Device.(Command)
	if !ok {
		return nil, errors.Errorf("invalid device type %T", cfg.Device)
	}

	return NewSession(cmd, cfg), nil
}

// Command is an argv.
type Command []string

func (c Command) String() string {
	return strings.Join(c, " ")
}
