// Package timer paces a sample source that can produce frames faster than
// real time, so that a replay reaches the consumers at the stream rate.
package timer

import (
	"context"
	"io"
	"time"

	"github.com/noriah/bcifeed/input"
	"github.com/pkg/errors"
)

// Pace pulls samples from next and emits one per tick of the sample rate
// until next returns io.EOF, emit fails or ctx is done. A non-positive rate
// emits without waiting.
//
// Ticks missed by a slow consumer are dropped, so the replay falls behind
// instead of bursting.
func Pace(ctx context.Context, rate float64, next func() (input.Sample, error), emit func(input.Sample) error) error {
	var tick <-chan time.Time

	if rate > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
		defer ticker.Stop()

		tick = ticker.C
	}

	for {
		s, err := next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}

		if err := emit(s); err != nil {
			return err
		}
	}
}
