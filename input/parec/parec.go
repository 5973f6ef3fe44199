// Package parec captures a PulseAudio source, such as the monitor of an
// amplifier driver that exposes its channels as an audio device.
package parec

import (
	"fmt"

	"github.com/lawl/pulseaudio"
	"github.com/noriah/bcifeed/input"
	"github.com/noriah/bcifeed/input/common/execread"
	"github.com/pkg/errors"
)

func init() {
	input.RegisterBackend("parec", Backend{})
}

type Backend struct{}

func (p Backend) Init() error {
	return nil
}

func (p Backend) Close() error {
	return nil
}

func (p Backend) Devices() ([]input.Device, error) {
	c, err := pulseaudio.NewClient()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create client")
	}
	defer c.Close()

	s, err := c.Sources()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sources")
	}

	var devices = make([]input.Device, len(s))
	for i, source := range s {
		devices[i] = PulseDevice(source.Name)
	}

	return devices, nil
}

func (p Backend) DefaultDevice() (input.Device, error) {
	return PulseDevice("default"), nil
}

func (p Backend) Start(cfg input.SessionConfig) (input.Session, error) {
	sess, err := NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

type PulseDevice string

func (d PulseDevice) String() string {
	return string(d)
}

// NewSession records every channel of the device as float32 frames.
func NewSession(cfg input.SessionConfig) (*execread.Session, error) {
	dv, ok := cfg.Device.(PulseDevice)
	if !ok {
		return nil, fmt.Errorf("invalid device type %T", cfg.Device)
	}

	if cfg.FrameSize < 1 || cfg.FrameSize > 32 {
		return nil, errors.Errorf("pulseaudio cannot record %d channels", cfg.FrameSize)
	}

	return execread.NewSession([]string{
		"parec",
		"--format=float32le",
		fmt.Sprintf("--rate=%.0f", cfg.SampleRate),
		fmt.Sprintf("--channels=%d", cfg.FrameSize),
		"--raw",
		"-d", dv.String(),
	}, cfg), nil
}
