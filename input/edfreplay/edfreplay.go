// Package edfreplay replays a recorded EDF session as a live sample stream.
// The recording layout is the one the recorder writes: signal 0 is the
// trigger channel, the rest are the advertised channels in stream order.
package edfreplay

import (
	"context"
	"io"
	"os"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/noriah/bcifeed/calibrate"
	"github.com/noriah/bcifeed/input"
	"github.com/noriah/bcifeed/input/common/timer"
	"github.com/pkg/errors"
)

var logger = logging.Logger("edfreplay")

func init() {
	input.RegisterBackend("edf", Backend{})
}

// Backend replays EDF files. The device string is the file path.
type Backend struct{}

func (Backend) Init() error {
	return nil
}

func (Backend) Close() error {
	return nil
}

// Devices returns nothing; any readable file is a device.
func (Backend) Devices() ([]input.Device, error) {
	return nil, nil
}

func (Backend) DefaultDevice() (input.Device, error) {
	return nil, errors.New("edf backend needs a recording path as device")
}

// ParseDevice implements input.DeviceParser.
func (Backend) ParseDevice(dev string) (input.Device, error) {
	path := strings.TrimSpace(dev)
	if path == "" {
		return nil, errors.New("empty recording path")
	}

	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "recording")
	}

	return File(path), nil
}

func (Backend) Start(cfg input.SessionConfig) (input.Session, error) {
	file, ok := cfg.Device.(File)
	if !ok {
		return nil, errors.Errorf("invalid device type %T", cfg.Device)
	}

	f, err := os.Open(string(file))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open recording")
	}
	defer f.Close()

	ds, err := calibrate.ReadEDF(f)
	if err != nil {
		return nil, errors.Wrapf(err, "recording %s", file)
	}

	if ds.Channels() != cfg.FrameSize {
		return nil, errors.Errorf("recording %s has %d channels, stream advertises %d",
			file, ds.Channels(), cfg.FrameSize)
	}

	logger.Infow("replaying recording",
		"file", string(file), "samples", ds.Samples(), "seconds", float64(ds.Samples())/cfg.SampleRate)

	return &Session{cfg: cfg, ds: ds}, nil
}

// File is an EDF recording on disk.
type File string

func (f File) String() string {
	return string(f)
}

// Session emits the rows of a loaded recording at the stream rate.
type Session struct {
	cfg input.SessionConfig
	ds  *calibrate.Dataset
}

// NewSession replays ds without touching the file system.
func NewSession(cfg input.SessionConfig, ds *calibrate.Dataset) *Session {
	return &Session{cfg: cfg, ds: ds}
}

// Start replays the recording once. The sample time is the position in the
// recording.
func (s *Session) Start(ctx context.Context, emit func(input.Sample) error) error {
	row := 0

	next := func() (input.Sample, error) {
		if row == s.ds.Samples() {
			return input.Sample{}, io.EOF
		}

		values := make([]float32, s.ds.Channels())
		for ch := range values {
			values[ch] = float32(s.ds.Data.At(row, ch))
		}

		smpl := input.Sample{Values: values, Time: float64(row) / s.cfg.SampleRate}
		row++

		return smpl, nil
	}

	return timer.Pace(ctx, s.cfg.SampleRate, next, emit)
}
