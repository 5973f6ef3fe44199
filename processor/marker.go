package processor

import (
	"context"
	"io"
	"time"

	"github.com/noriah/bcifeed/input"
	"github.com/noriah/bcifeed/model"
	"github.com/pkg/errors"
)

// DefaultStartup is how long the session stays in PhaseStart before sleeping.
const DefaultStartup = 3 * time.Second

const startupPoll = 10 * time.Millisecond

// Observer is told about every marker after it has been applied.
type Observer func(m model.Marker, phase model.Phase)

// StateMachine drives the session phase from marker events. It is the only
// writer of the phase.
type StateMachine struct {
	sess      *Session
	startup   time.Duration
	observers []Observer
}

// NewStateMachine builds a state machine over sess. A non-positive startup
// uses DefaultStartup.
func NewStateMachine(sess *Session, startup time.Duration) *StateMachine {
	if startup <= 0 {
		startup = DefaultStartup
	}

	return &StateMachine{
		sess:    sess,
		startup: startup,
	}
}

// Observe registers fn for every handled marker. Not safe to call once Run
// has started.
func (sm *StateMachine) Observe(fn Observer) {
	sm.observers = append(sm.observers, fn)
}

// Handle applies one marker and returns the resulting phase. Unknown markers
// leave the phase alone.
func (sm *StateMachine) Handle(m model.Marker) model.Phase {
	prev := sm.sess.Phase.Load()
	next := prev

	var trigger *Trigger

	switch m.Kind() {
	case model.MarkerReference:
		next = model.PhaseReference

	case model.MarkerCue:
		next = model.PhaseCue
		trigger = &sm.sess.Cue

	case model.MarkerFeedback:
		next = model.PhaseFeedback

	case model.MarkerEndOfTrial:
		next = model.PhaseBreak
		trigger = &sm.sess.EndOfTrial

	default:
		logger.Debugw("marker ignored", "marker", m.Value, "time", m.Time)
	}

	if next != prev {
		sm.sess.Phase.Store(next)
		logger.Infow("phase change", "from", prev, "to", next, "marker", m.Value, "time", m.Time)
	}

	// a worker that sees the trigger must also see the phase it belongs to
	if trigger != nil {
		trigger.Fire()
	}

	sm.notify(m, next)

	return next
}

func (sm *StateMachine) notify(m model.Marker, phase model.Phase) {
	for _, fn := range sm.observers {
		fn(m, phase)
	}
}

// WaitStartup keeps the session in PhaseStart until the startup timeout has
// passed and then moves it to PhaseSleep. Observers see the move as a marker
// with an empty value.
func (sm *StateMachine) WaitStartup(ctx context.Context) error {
	start := time.Now()

	ticker := time.NewTicker(startupPoll)
	defer ticker.Stop()

	for time.Since(start) < sm.startup {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	sm.sess.Phase.Store(model.PhaseSleep)
	logger.Infow("phase change", "from", model.PhaseStart, "to", model.PhaseSleep, "after", sm.startup)

	sm.notify(model.Marker{}, model.PhaseSleep)

	return nil
}

// Run waits out the startup phase and then applies markers from src until it
// ends or ctx is done. Markers that arrive during startup are applied after
// it.
func (sm *StateMachine) Run(ctx context.Context, src input.MarkerSource) error {
	if err := sm.WaitStartup(ctx); err != nil {
		return err
	}

	for {
		m, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("marker stream ended")
				return nil
			}
			return err
		}

		sm.Handle(m)
	}
}
