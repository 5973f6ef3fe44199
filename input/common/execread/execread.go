// Package execread provides a session that reads interleaved float32 frames
// from a command or any reader.
package execread

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"
	"os/exec"

	"github.com/noriah/bcifeed/input"
	"github.com/pkg/errors"
)

// Session is a session that reads little-endian float32 frames from a Cmd.
type Session struct {
	// OnStart is called when the session starts. Nil by default.
	OnStart func(ctx context.Context, cmd *exec.Cmd) error

	// prevents cmd.Stderr from pointing to os.Stderr. false by default.
	DisconnectedStderr bool

	argv []string
	cfg  input.SessionConfig
}

// NewSession creates a new execread session. It never returns an error.
func NewSession(argv []string, cfg input.SessionConfig) *Session {
	if len(argv) < 1 {
		panic("argv has no arg0")
	}

	return &Session{
		argv: argv,
		cfg:  cfg,
	}
}

func (s *Session) Start(ctx context.Context, emit func(input.Sample) error) error {
	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)

	if !s.DisconnectedStderr {
		cmd.Stderr = os.Stderr
	}

	o, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to get stdout pipe")
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to start "+s.argv[0])
	}

	if s.OnStart != nil {
		if err := s.OnStart(ctx, cmd); err != nil {
			return err
		}
	}

	readErr := ReadFrames(ctx, o, s.cfg, emit)

	// the reader may stop before the command does
	o.Close()
	waitErr := cmd.Wait()

	switch {
	case readErr != nil:
		return readErr
	case ctx.Err() != nil:
		return ctx.Err()
	case waitErr != nil:
		return errors.Wrap(waitErr, s.argv[0]+" failed")
	}

	return nil
}

// ReadFrames decodes frames of cfg.FrameSize float32 values from r and emits
// them until r ends. A trailing partial frame is dropped. Sample times count
// frames at cfg.SampleRate.
func ReadFrames(ctx context.Context, r io.Reader, cfg input.SessionConfig, emit func(input.Sample) error) error {
	if cfg.FrameSize < 1 {
		return errors.Errorf("invalid frame size %d", cfg.FrameSize)
	}

	br := bufio.NewReader(r)
	raw := make([]byte, cfg.FrameSize*4)

	for frame := 0; ; frame++ {
		if _, err := io.ReadFull(br, raw); err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				return nil
			case errors.Is(err, os.ErrClosed) && ctx.Err() != nil:
				return ctx.Err()
			default:
				return errors.Wrap(err, "failed to read frame")
			}
		}

		values := make([]float32, cfg.FrameSize)
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}

		smpl := input.Sample{Values: values}
		if cfg.SampleRate > 0 {
			smpl.Time = float64(frame) / cfg.SampleRate
		}

		if err := emit(smpl); err != nil {
			return err
		}
	}
}
