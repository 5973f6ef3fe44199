package dsp

import (
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/pkg/errors"
)

// PadLen is the odd-extension length FiltFilt uses for a cascade.
func PadLen(sections []biquad.Coefficients) int {
	return 3 * (2*len(sections) + 1)
}

// FiltFilt applies the cascade forward and backward for zero phase
// distortion. The signal is extended at both ends by odd reflection and each
// pass starts from the steady state matching its first sample.
func FiltFilt(sections []biquad.Coefficients, x []float64) ([]float64, error) {
	pad := PadLen(sections)
	if len(x) <= pad {
		return nil, errors.Errorf("signal of %d samples too short for padding %d", len(x), pad)
	}

	n := len(x)
	ext := make([]float64, n+2*pad)

	first, last := x[0], x[n-1]
	for i := 0; i < pad; i++ {
		ext[i] = 2*first - x[pad-i]
		ext[pad+n+i] = 2*last - x[n-2-i]
	}
	copy(ext[pad:], x)

	chain := biquad.NewChain(sections)
	zi := SteadyState(sections)
	state := make([][2]float64, len(zi))

	pass := func() {
		for idx := range zi {
			state[idx] = [2]float64{zi[idx][0] * ext[0], zi[idx][1] * ext[0]}
		}
		chain.SetState(state)
		chain.ProcessBlock(ext)
	}

	pass()
	reverse(ext)
	pass()
	reverse(ext)

	out := make([]float64, n)
	copy(out, ext[pad:pad+n])

	return out, nil
}

func reverse(buf []float64) {
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
}
