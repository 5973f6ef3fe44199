package dsp

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(sections []biquad.Coefficients, freq, rate float64) float64 {
	z1 := cmplx.Exp(complex(0, -2*math.Pi*freq/rate))
	z2 := z1 * z1

	h := complex(1, 0)
	for _, s := range sections {
		num := complex(s.B0, 0) + complex(s.B1, 0)*z1 + complex(s.B2, 0)*z2
		den := 1 + complex(s.A1, 0)*z1 + complex(s.A2, 0)*z2
		h *= num / den
	}

	return cmplx.Abs(h)
}

func TestDesignBandpass(t *testing.T) {
	tests := []struct {
		name   string
		order  int
		lo, hi float64
		rate   float64
	}{
		{"mu band", 4, 8, 12, 250},
		{"wide", 6, 8, 30, 512},
		{"odd prototype", 6, 4, 40, 128},
		{"high order", 12, 9, 14, 250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sections, err := DesignBandpass(tt.order, tt.lo, tt.hi, tt.rate)
			require.NoError(t, err)
			require.Len(t, sections, tt.order/2)

			for _, s := range sections {
				// stability triangle
				assert.Less(t, math.Abs(s.A2), 1.0)
				assert.Less(t, math.Abs(s.A1), 1+s.A2)
			}

			// geometric centre of the pre-warped edges
			nyq := tt.rate / 2
			wlo := math.Tan(math.Pi * tt.lo / nyq / 2)
			whi := math.Tan(math.Pi * tt.hi / nyq / 2)
			centre := nyq * 2 / math.Pi * math.Atan(math.Sqrt(wlo*whi))
			assert.InDelta(t, 1.0, response(sections, centre, tt.rate), 0.05)
			assert.InDelta(t, 1/math.Sqrt2, response(sections, tt.lo, tt.rate), 0.01)
			assert.InDelta(t, 1/math.Sqrt2, response(sections, tt.hi, tt.rate), 0.01)
			assert.Less(t, response(sections, 0.01, tt.rate), 1e-3)
			assert.Less(t, response(sections, tt.rate/2-0.01, tt.rate), 1e-3)
		})
	}
}

func TestDesignBandpassInvalid(t *testing.T) {
	_, err := DesignBandpass(3, 8, 12, 250)
	assert.Error(t, err)

	_, err = DesignBandpass(4, 12, 8, 250)
	assert.Error(t, err)

	_, err = DesignBandpass(4, 8, 125, 250)
	assert.Error(t, err)

	_, err = DesignBandpass(4, 0, 12, 250)
	assert.Error(t, err)
}

func TestSteadyStateHoldsConstantInput(t *testing.T) {
	sections, err := DesignBandpass(6, 8, 30, 250)
	require.NoError(t, err)

	gain := []float64{1, -3.5, 120}
	bp := NewBandpass(sections, len(gain))
	bp.ResetTo(gain)

	out := make([]float64, len(gain))
	for i := 0; i < 50; i++ {
		out = bp.Filter(out, gain)
		for ch := range out {
			// a bandpass blocks dc, and the state must not move
			assert.InDelta(t, 0, out[ch], 1e-9*math.Max(1, math.Abs(gain[ch])))
		}
	}
}

func TestSteadyStateOnChain(t *testing.T) {
	sections, err := DesignBandpass(8, 8, 30, 250)
	require.NoError(t, err)

	zi := SteadyState(sections)

	chain := biquad.NewChain(sections)
	chain.SetState(zi)

	ones := make([]float64, 64)
	for i := range ones {
		ones[i] = 1
	}
	chain.ProcessBlock(ones)

	for i, y := range ones {
		assert.InDelta(t, 0, y, 1e-9, "sample %d", i)
	}

	for idx, st := range chain.State() {
		assert.InDelta(t, zi[idx][0], st[0], 1e-9)
		assert.InDelta(t, zi[idx][1], st[1], 1e-9)
	}
}

func TestBandpassMatchesChain(t *testing.T) {
	sections, err := DesignBandpass(6, 8, 30, 250)
	require.NoError(t, err)

	bp := NewBandpass(sections, 2)
	bp.ResetTo([]float64{3, -2})

	ref := []*biquad.Chain{biquad.NewChain(sections), biquad.NewChain(sections)}
	for ch, g := range []float64{3, -2} {
		zi := SteadyState(sections)
		for idx := range zi {
			zi[idx][0] *= g
			zi[idx][1] *= g
		}
		ref[ch].SetState(zi)
	}

	rng := rand.New(rand.NewSource(3))
	row := make([]float64, 2)
	for i := 0; i < 500; i++ {
		row[0] = 3 + rng.NormFloat64()
		row[1] = -2 + rng.NormFloat64()

		want := []float64{ref[0].ProcessSample(row[0]), ref[1].ProcessSample(row[1])}
		require.Equal(t, want, bp.Filter(nil, row), "sample %d", i)
	}
}

func TestBandpassResetIsDeterministic(t *testing.T) {
	sections, err := DesignBandpass(4, 8, 12, 128)
	require.NoError(t, err)

	bp := NewBandpass(sections, 4)

	run := func() [][]float64 {
		bp.Reset()

		zero := make([]float64, 4)
		var rows [][]float64
		for i := 0; i < 256; i++ {
			rows = append(rows, bp.Filter(nil, zero))
		}
		return rows
	}

	first := run()

	// disturb the state in between
	rng := rand.New(rand.NewSource(7))
	noise := make([]float64, 4)
	for i := 0; i < 100; i++ {
		for ch := range noise {
			noise[ch] = rng.NormFloat64() * 50
		}
		bp.Filter(noise, noise)
	}

	second := run()

	assert.Equal(t, first, second)
}

func TestBandpassSinusoid(t *testing.T) {
	const rate = 250.0

	sections, err := DesignBandpass(4, 8, 30, rate)
	require.NoError(t, err)

	bp := NewBandpass(sections, 2)

	var peakIn, peakOut float64
	row := make([]float64, 2)
	for i := 0; i < int(rate*4); i++ {
		ts := float64(i) / rate
		row[0] = math.Sin(2 * math.Pi * 15 * ts)
		row[1] = math.Sin(2 * math.Pi * 60 * ts)

		out := bp.Filter(nil, row)

		// skip the settling second
		if i > int(rate) {
			peakIn = math.Max(peakIn, math.Abs(out[0]))
			peakOut = math.Max(peakOut, math.Abs(out[1]))
		}
	}

	assert.InDelta(t, 1.0, peakIn, 0.05)
	assert.Less(t, peakOut, 0.2)
}

func TestFiltFiltZeroPhase(t *testing.T) {
	const rate = 250.0

	sections, err := DesignBandpass(8, 8, 30, rate)
	require.NoError(t, err)

	x := make([]float64, int(rate*6))
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * 15 * float64(i) / rate)
	}

	y, err := FiltFilt(sections, x)
	require.NoError(t, err)
	require.Len(t, y, len(x))

	for i := int(rate); i < len(x)-int(rate); i++ {
		assert.InDelta(t, x[i], y[i], 0.05, "sample %d", i)
	}
}

func TestFiltFiltShortSignal(t *testing.T) {
	sections, err := DesignBandpass(4, 8, 30, 250)
	require.NoError(t, err)

	_, err = FiltFilt(sections, make([]float64, PadLen(sections)))
	assert.Error(t, err)
}

func TestLogPower(t *testing.T) {
	lp := NewLogPower(4, 2)

	out := lp.Compute(nil, []float64{2, 0})
	// three past unit powers plus the new value
	assert.InDelta(t, math.Log10((3+4)/4.0), out[0], 1e-12)
	assert.InDelta(t, math.Log10(3/4.0), out[1], 1e-12)

	for i := 0; i < 3; i++ {
		out = lp.Compute(out, []float64{2, 0})
	}

	assert.InDelta(t, math.Log10(4), out[0], 1e-12)
	assert.True(t, math.IsInf(out[1], -1))
}

func TestLogPowerMatchesMovingAverage(t *testing.T) {
	const window = 32

	lp := NewLogPower(window, 1)
	rng := rand.New(rand.NewSource(11))

	hist := make([]float64, window-1)
	for i := range hist {
		hist[i] = 1
	}

	for i := 0; i < window*20; i++ {
		x := rng.NormFloat64() * 10

		hist = append(hist, x*x)
		sum := 0.0
		for _, v := range hist[len(hist)-window:] {
			sum += v
		}

		got := lp.Compute(nil, []float64{x})
		require.InDelta(t, math.Log10(sum/window), got[0], 1e-9, "sample %d", i)
	}
}

func BenchmarkBandpass(b *testing.B) {
	sections, _ := DesignBandpass(8, 8, 30, 250)
	bp := NewBandpass(sections, 16)
	row := make([]float64, 16)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		row = bp.Filter(row, row)
	}
}
