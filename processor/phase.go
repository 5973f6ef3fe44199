package processor

import (
	"sync/atomic"

	"github.com/noriah/bcifeed/model"
)

// PhaseState holds the current experiment phase. It has a single writer, the
// marker worker; signal workers read it once per sample and may act on a value
// that changes right after the read.
type PhaseState struct {
	v atomic.Int32
}

// Load returns the current phase.
func (s *PhaseState) Load() model.Phase {
	return model.Phase(s.v.Load())
}

// Store sets the current phase.
func (s *PhaseState) Store(p model.Phase) {
	s.v.Store(int32(p))
}

// Trigger is a request counter. The marker worker fires it and the owning
// signal worker acts once per firing on its next sample, so per-worker state
// keeps a single owner.
type Trigger struct {
	n atomic.Uint64
}

// Fire records one request.
func (t *Trigger) Fire() {
	t.n.Add(1)
}

// Fired reports whether the trigger fired since the generation in seen and
// moves seen forward.
func (t *Trigger) Fired(seen *uint64) bool {
	n := t.n.Load()
	if n == *seen {
		return false
	}
	*seen = n
	return true
}

// Session is the state shared by the marker worker and the signal workers.
type Session struct {
	Phase PhaseState

	// Cue asks the ERDS worker to compute the reference baseline.
	Cue Trigger
	// EndOfTrial asks for the voting buffer and the baseline to be reset.
	EndOfTrial Trigger
}

// NewSession returns a session in PhaseStart.
func NewSession() *Session {
	return &Session{}
}
