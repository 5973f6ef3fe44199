// Package stdinput reads float32 frames from the standard input.
package stdinput

import (
	"context"
	"os"

	"github.com/noriah/bcifeed/input"
	"github.com/noriah/bcifeed/input/common/execread"
)

func init() {
	input.RegisterBackend("stdin", StdinBackend{})
}

type StdinBackend struct{}

func (b StdinBackend) Init() error {
	return nil
}

func (b StdinBackend) Close() error {
	return nil
}

func (b StdinBackend) Devices() ([]input.Device, error) {
	return []input.Device{StdInputDevice{}}, nil
}

func (b StdinBackend) DefaultDevice() (input.Device, error) {
	return StdInputDevice{}, nil
}

func (b StdinBackend) Start(config input.SessionConfig) (input.Session, error) {
	return NewStdinSession(config), nil
}

type StdInputDevice struct{}

func (d StdInputDevice) String() string {
	return "stdin"
}

type Session struct {
	cfg input.SessionConfig
}

func NewStdinSession(cfg input.SessionConfig) *Session {
	return &Session{cfg: cfg}
}

// Start reads stdin until it closes. A blocked read is only released by the
// writer closing the pipe or by the process exiting.
func (s *Session) Start(ctx context.Context, emit func(input.Sample) error) error {
	err := execread.ReadFrames(ctx, os.Stdin, s.cfg, emit)
	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
