// Package input provides the sample and marker streams feeding a session.
package input

import (
	"context"
	"fmt"

	"github.com/noriah/bcifeed/model"
)

// Sample is one frame of the sample stream, one value per advertised channel.
// Values belongs to the sample and is never written after it is emitted.
type Sample struct {
	Values []float32
	Time   float64 // seconds on the source clock
}

// SampleSource is a pull based sample stream. Next returns io.EOF once the
// stream has ended.
type SampleSource interface {
	Next(ctx context.Context) (Sample, error)
}

// MarkerSource is a pull based marker stream. Next returns io.EOF once the
// stream has ended.
type MarkerSource interface {
	Next(ctx context.Context) (model.Marker, error)
}

// Device is an input device of a backend.
type Device interface {
	fmt.Stringer
}

// SessionConfig configures a backend session.
type SessionConfig struct {
	Device     Device
	FrameSize  int     // channels per frame
	SampleRate float64 // frames per second
}

// Session produces samples until its source ends or ctx is done. emit is
// called once per frame from the goroutine running Start; an error from emit
// stops the session and is returned.
type Session interface {
	Start(ctx context.Context, emit func(Sample) error) error
}
