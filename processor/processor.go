// Package processor runs the online feedback path: the experiment state
// machine and the two signal workers gated by its phase.
package processor

import (
	"context"
	"io"

	logging "github.com/ipfs/go-log/v2"
	"github.com/noriah/bcifeed/input"
	"github.com/noriah/bcifeed/model"
	"github.com/pkg/errors"
)

var logger = logging.Logger("processor")

// Output receives one computed vector per emitted sample.
type Output interface {
	Write([]float32) error
}

// Config is shared by both workers.
type Config struct {
	Session   *Session
	Selection model.Selection
	Output    Output
}

// Worker consumes its own subscription to the sample stream.
type Worker interface {
	Run(ctx context.Context, src input.SampleSource) error
}

type classificationWorker struct {
	cfg Config
	cls *Classifier

	out []float32
}

// NewClassificationWorker returns the worker emitting [label, distance]
// during PhaseFeedback.
func NewClassificationWorker(cfg Config, cls *Classifier) Worker {
	return &classificationWorker{
		cfg: cfg,
		cls: cls,
		out: make([]float32, 2),
	}
}

func (w *classificationWorker) Run(ctx context.Context, src input.SampleSource) error {
	var (
		row  []float64
		eot  uint64
		feed feedState
	)

	return consume(ctx, src, func(s input.Sample) {
		if w.cfg.Session.EndOfTrial.Fired(&eot) {
			w.cls.ResetVoting()
		}

		row = w.cfg.Selection.Apply(row, s.Values)

		switch w.cfg.Session.Phase.Load() {
		case model.PhaseStart:
			w.cls.Prime(row)
			feed.prime()

		case model.PhaseFeedback:
			if feed.resume() {
				w.cls.Resume(row)
			}

			label, distance, ok := w.cls.Classify(row)
			if !ok {
				logger.Debugw("no finite class score", "time", s.Time)
				return
			}

			w.out[0] = float32(label)
			w.out[1] = float32(distance)
			write(w.cfg.Output, w.out, "classification")

		case model.PhaseReference, model.PhaseCue, model.PhaseBreak, model.PhaseSleep:
			feed.gap()
		}
	})
}

type erdsWorker struct {
	cfg  Config
	erds *ERDS

	out []float32
}

// NewERDSWorker returns the worker collecting the baseline during
// PhaseReference and emitting per-roi changes during PhaseFeedback.
func NewERDSWorker(cfg Config, erds *ERDS) Worker {
	return &erdsWorker{
		cfg:  cfg,
		erds: erds,
		out:  make([]float32, len(erds.rois)),
	}
}

func (w *erdsWorker) Run(ctx context.Context, src input.SampleSource) error {
	var (
		row      []float64
		eot, cue uint64
		feed     feedState
	)

	return consume(ctx, src, func(s input.Sample) {
		if w.cfg.Session.EndOfTrial.Fired(&eot) {
			w.erds.Reset()
		}

		if w.cfg.Session.Cue.Fired(&cue) {
			if err := w.erds.Snapshot(); err != nil {
				logger.Errorw("no erds baseline this trial", "err", err)
			} else {
				logger.Infow("erds baseline computed",
					"rows", w.erds.Baseline().Rows(), "mean", w.erds.Baseline().Mean())
			}
		}

		row = w.cfg.Selection.Apply(row, s.Values)

		phase := w.cfg.Session.Phase.Load()

		switch phase {
		case model.PhaseStart:
			feed.prime()

		case model.PhaseReference, model.PhaseFeedback:
			if feed.resume() {
				w.erds.Resume(row)
			}

		case model.PhaseCue, model.PhaseBreak, model.PhaseSleep:
			feed.gap()
		}

		switch phase {
		case model.PhaseStart:
			w.erds.Prime(row)

		case model.PhaseReference:
			w.erds.Reference(row)

		case model.PhaseFeedback:
			values, ok := w.erds.Feedback(row)
			if !ok {
				return
			}

			for i, v := range values {
				w.out[i] = float32(v)
			}
			write(w.cfg.Output, w.out, "erds")
		}
	})
}

// feedState tracks whether a worker's bandpass saw the previous sample.
// State primed during PhaseStart is kept over the startup sleep until the
// first fed phase of the first trial. Every later gap restarts the filter
// from the steady state of the next fed row.
type feedState struct {
	fed    bool
	primed bool
}

func (f *feedState) prime() {
	f.fed = true
	f.primed = true
}

func (f *feedState) gap() {
	if !f.primed {
		f.fed = false
	}
}

// resume marks the filter as fed and reports whether it has to restart first.
func (f *feedState) resume() bool {
	restart := !f.fed
	f.fed = true
	f.primed = false
	return restart
}

// consume pulls samples until the stream ends or ctx is done.
func consume(ctx context.Context, src input.SampleSource, fn func(input.Sample)) error {
	for {
		s, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		fn(s)
	}
}

func write(out Output, v []float32, stream string) {
	if out == nil {
		return
	}

	if err := out.Write(v); err != nil {
		logger.Warnw("output write failed", "stream", stream, "err", err)
	}
}
