package dsp

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// LogPower smooths the squared input with a causal moving average and
// returns its base-10 logarithm. A channel with zero power yields -Inf.
type LogPower struct {
	window int

	// past holds the last window-1 squared inputs per channel
	past [][]float64
	sums []float64
	pos  int
}

// NewLogPower builds the unit for a window length in samples.
func NewLogPower(window, channels int) *LogPower {
	if window < 1 {
		window = 1
	}

	lp := &LogPower{
		window: window,
		past:   make([][]float64, channels),
		sums:   make([]float64, channels),
	}

	for idx := range lp.past {
		lp.past[idx] = make([]float64, window-1)
	}

	lp.Reset()

	return lp
}

// Window returns the averaging length in samples.
func (lp *LogPower) Window() int {
	return lp.window
}

// Reset restores the steady state of a unit input.
func (lp *LogPower) Reset() {
	for ch, past := range lp.past {
		for i := range past {
			past[i] = 1
		}
		lp.sums[ch] = float64(len(past))
	}
	lp.pos = 0
}

// Compute returns the log band power of one row. dst may alias src.
func (lp *LogPower) Compute(dst, src []float64) []float64 {
	if cap(dst) < len(src) {
		dst = make([]float64, len(src))
	}
	dst = dst[:len(src)]

	hist := lp.window - 1
	scale := 1.0 / float64(lp.window)

	for ch, x := range src {
		x2 := x * x

		dst[ch] = math.Log10((lp.sums[ch] + x2) * scale)

		if hist > 0 {
			past := lp.past[ch]
			lp.sums[ch] += x2 - past[lp.pos]
			past[lp.pos] = x2
		}
	}

	if hist == 0 {
		return dst
	}

	if lp.pos++; lp.pos == hist {
		lp.pos = 0

		// re-sum once per lap so rounding does not build up over a session
		for ch, past := range lp.past {
			lp.sums[ch] = floats.Sum(past)
		}
	}

	return dst
}
