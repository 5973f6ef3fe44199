// Package record writes a session to an EDF file that the calibrator can
// train on. Signal 0 carries the class label at each cue position, the other
// signals carry every advertised channel in stream order.
package record

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/OpenPSG/edf"
	logging "github.com/ipfs/go-log/v2"
	"github.com/noriah/bcifeed/input"
	"github.com/noriah/bcifeed/model"
	"github.com/pkg/errors"
)

var logger = logging.Logger("record")

// maxRecordBytes is the EDF data record size limit.
const maxRecordBytes = 61440

// Recorder defaults
const (
	DefaultPhysicalMin = -3200.0
	DefaultPhysicalMax = 3200.0
	DefaultDimension   = "uV"
)

// ErrRecordSize is returned when one second of the stream does not fit in a
// single EDF data record.
var ErrRecordSize = errors.New("record: data record too large")

// Config describes the recorded stream.
type Config struct {
	Channels    int     // advertised channels
	SampleRate  float64 // must be a whole number of samples per second
	PhysicalMin float64
	PhysicalMax float64
	Dimension   string
	Labels      []string // channel labels, defaults to ch1..chN

	PatientID   string
	RecordingID string
	StartTime   time.Time
}

func (cfg *Config) applyDefaults() {
	if cfg.PhysicalMin == 0 && cfg.PhysicalMax == 0 {
		cfg.PhysicalMin = DefaultPhysicalMin
		cfg.PhysicalMax = DefaultPhysicalMax
	}

	if cfg.Dimension == "" {
		cfg.Dimension = DefaultDimension
	}

	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
}

func (cfg *Config) validate() (int, error) {
	switch {
	case cfg.Channels <= 0:
		return 0, errors.Errorf("record: bad channel count %d", cfg.Channels)

	case cfg.SampleRate < 1 || cfg.SampleRate != math.Trunc(cfg.SampleRate):
		return 0, errors.Errorf("record: sample rate %g is not a whole number", cfg.SampleRate)

	case cfg.PhysicalMax <= cfg.PhysicalMin:
		return 0, errors.Errorf("record: bad physical range [%g, %g]", cfg.PhysicalMin, cfg.PhysicalMax)

	case len(cfg.Labels) != 0 && len(cfg.Labels) != cfg.Channels:
		return 0, errors.Errorf("record: %d labels for %d channels", len(cfg.Labels), cfg.Channels)
	}

	perRecord := int(cfg.SampleRate)
	if size := (cfg.Channels + 1) * perRecord * 2; size > maxRecordBytes {
		return 0, errors.Wrapf(ErrRecordSize, "%d bytes for %d signals at %d Hz",
			size, cfg.Channels+1, perRecord)
	}

	return perRecord, nil
}

// Recorder buffers samples into one second data records.
type Recorder struct {
	cfg Config
	ew  *edf.Writer

	// pending is the label of the trial in progress, armed is written to
	// the trigger channel on the next sample.
	pending atomic.Int32
	armed   atomic.Int32

	record [][]float64
	fill   int
	last   []float32

	records int
	closed  bool
}

// New writes the EDF header to w and returns a recorder for cfg.
func New(w io.WriteSeeker, cfg Config) (*Recorder, error) {
	cfg.applyDefaults()

	perRecord, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          cfg.PatientID,
		RecordingID:        cfg.RecordingID,
		StartTime:          cfg.StartTime,
		DataRecordDuration: time.Second,
		SignalCount:        cfg.Channels + 1,
		Signals:            make([]edf.Signal, cfg.Channels+1),
	}

	hdr.Signals[0] = edf.Signal{
		Label:            "Trigger",
		PhysicalMin:      0,
		PhysicalMax:      math.MaxInt16,
		DigitalMin:       0,
		DigitalMax:       math.MaxInt16,
		SamplesPerRecord: perRecord,
	}

	for ch := 0; ch < cfg.Channels; ch++ {
		label := fmt.Sprintf("ch%d", ch+1)
		if len(cfg.Labels) != 0 {
			label = cfg.Labels[ch]
		}

		hdr.Signals[ch+1] = edf.Signal{
			Label:             label,
			PhysicalDimension: cfg.Dimension,
			PhysicalMin:       cfg.PhysicalMin,
			PhysicalMax:       cfg.PhysicalMax,
			DigitalMin:        math.MinInt16,
			DigitalMax:        math.MaxInt16,
			SamplesPerRecord:  perRecord,
		}
	}

	ew, err := edf.Create(w, hdr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create edf")
	}

	r := &Recorder{
		cfg:    cfg,
		ew:     ew,
		record: make([][]float64, cfg.Channels+1),
		last:   make([]float32, cfg.Channels),
	}

	for i := range r.record {
		r.record[i] = make([]float64, perRecord)
	}

	return r, nil
}

// Mark tracks the trial class from the marker stream. The label of the last
// trial start is written at the first sample after the next Cue. It has the
// shape of a processor.Observer.
func (r *Recorder) Mark(m model.Marker, _ model.Phase) {
	switch kind := m.Kind(); kind {
	case model.MarkerTrialLeft, model.MarkerTrialRight:
		r.pending.Store(int32(kind.Label()))

	case model.MarkerCue:
		if label := r.pending.Swap(0); label != 0 {
			r.armed.Store(label)
		} else {
			logger.Warnw("cue without trial start", "time", m.Time)
		}
	}
}

func (r *Recorder) clamp(v float32) float64 {
	x := float64(v)

	switch {
	case math.IsNaN(x):
		return 0
	case x < r.cfg.PhysicalMin:
		return r.cfg.PhysicalMin
	case x > r.cfg.PhysicalMax:
		return r.cfg.PhysicalMax
	}

	return x
}

// Write appends one sample.
func (r *Recorder) Write(s input.Sample) error {
	if r.closed {
		return errors.New("record: write after close")
	}

	if len(s.Values) != r.cfg.Channels {
		return errors.Errorf("record: sample has %d values, want %d", len(s.Values), r.cfg.Channels)
	}

	r.record[0][r.fill] = float64(r.armed.Swap(0))

	for ch, v := range s.Values {
		r.record[ch+1][r.fill] = r.clamp(v)
	}

	copy(r.last, s.Values)

	if r.fill++; r.fill < len(r.record[0]) {
		return nil
	}

	return r.flush()
}

func (r *Recorder) flush() error {
	if err := r.ew.WriteRecord(r.record); err != nil {
		return errors.Wrap(err, "failed to write data record")
	}

	r.fill = 0
	r.records++

	return nil
}

// Records returns the number of complete data records written.
func (r *Recorder) Records() int {
	return r.records
}

// Run writes samples from src until it ends or ctx is done.
func (r *Recorder) Run(ctx context.Context, src input.SampleSource) error {
	for {
		s, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err = r.Write(s); err != nil {
			return err
		}
	}
}

// Close completes a partial data record by repeating the last sample and
// finalises the header. It does not close the underlying writer.
func (r *Recorder) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true

	if r.fill > 0 {
		pad := len(r.record[0]) - r.fill
		for ; r.fill < len(r.record[0]); r.fill++ {
			r.record[0][r.fill] = 0
			for ch, v := range r.last {
				r.record[ch+1][r.fill] = r.clamp(v)
			}
		}

		logger.Debugw("padded last data record", "samples", pad)

		if err := r.flush(); err != nil {
			return err
		}
	}

	logger.Infow("recording closed", "records", r.records)

	return errors.Wrap(r.ew.Close(), "failed to finalise edf")
}
