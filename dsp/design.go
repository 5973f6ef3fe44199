// Package dsp provides the filters of the feedback pipeline.
//
// Bandpass filters are Butterworth designs realised as cascaded biquad
// sections so that state can run for a whole session without drifting. The
// sections run on biquad chains in Direct Form II Transposed.
//
// Some notes:
//
// https://www.dsprelated.com/freebooks/filters/Series_Second_Order_Sections.html
// https://docs.scipy.org/doc/scipy/reference/generated/scipy.signal.sosfilt_zi.html
package dsp

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/pkg/errors"
)

// dcGain is the gain of a section at z = 1.
func dcGain(c biquad.Coefficients) float64 {
	return (c.B0 + c.B1 + c.B2) / (1 + c.A1 + c.A2)
}

// DesignBandpass returns a Butterworth bandpass of the given total order
// between lo and hi Hz. order must be even; the result has order/2 sections.
func DesignBandpass(order int, lo, hi, sampleRate float64) ([]biquad.Coefficients, error) {
	if order < 2 || order%2 != 0 {
		return nil, errors.Errorf("bandpass order must be even and >= 2, got %d", order)
	}

	nyq := sampleRate / 2
	if lo <= 0 || hi <= lo || hi >= nyq {
		return nil, errors.Errorf("bandpass edges [%g, %g] Hz invalid for rate %g Hz", lo, hi, sampleRate)
	}

	n := order / 2

	// pre-warp the normalised edges, fs = 2 after normalising to nyquist
	const fs2 = 4.0
	wlo := fs2 * math.Tan(math.Pi*(lo/nyq)/2)
	whi := fs2 * math.Tan(math.Pi*(hi/nyq)/2)
	bw := whi - wlo
	wo2 := complex(wlo*whi, 0)

	zPoles := make([]complex128, 0, 2*n)
	denom := complex(1, 0)

	for k := 0; k < n; k++ {
		// analog lowpass prototype pole
		theta := math.Pi * float64(2*k-n+1) / float64(2*n)
		p := -cmplx.Exp(complex(0, theta)) * complex(bw/2, 0)

		// lowpass to bandpass splits every pole in two
		d := cmplx.Sqrt(p*p - wo2)
		for _, pa := range [2]complex128{p + d, p - d} {
			denom *= complex(fs2, 0) - pa
			zPoles = append(zPoles, (complex(fs2, 0)+pa)/(complex(fs2, 0)-pa))
		}
	}

	gain := real(complex(math.Pow(bw*fs2, float64(n)), 0) / denom)

	sections, err := pairPoles(zPoles, n)
	if err != nil {
		return nil, err
	}

	sections[0].B0 *= gain
	sections[0].B2 *= gain

	return sections, nil
}

// pairPoles builds sections from z-plane poles. Every section gets one zero at
// z = 1 and one at z = -1.
func pairPoles(poles []complex128, n int) ([]biquad.Coefficients, error) {
	const tol = 1e-12

	var complexes []complex128
	var reals []float64

	for _, p := range poles {
		switch {
		case imag(p) > tol:
			complexes = append(complexes, p)
		case imag(p) < -tol:
			// conjugate of one kept above
		default:
			reals = append(reals, real(p))
		}
	}

	if len(reals)%2 != 0 || len(complexes)+len(reals)/2 != n {
		return nil, errors.New("bandpass design produced unpaired poles")
	}

	// poles closest to the unit circle go last
	sort.Slice(complexes, func(i, j int) bool {
		return cmplx.Abs(complexes[i]) < cmplx.Abs(complexes[j])
	})
	sort.Float64s(reals)

	sections := make([]biquad.Coefficients, 0, n)

	for i := 0; i+1 < len(reals); i += 2 {
		sections = append(sections, biquad.Coefficients{
			B0: 1, B2: -1,
			A1: -(reals[i] + reals[i+1]),
			A2: reals[i] * reals[i+1],
		})
	}

	for _, p := range complexes {
		sections = append(sections, biquad.Coefficients{
			B0: 1, B2: -1,
			A1: -2 * real(p),
			A2: real(p)*real(p) + imag(p)*imag(p),
		})
	}

	return sections, nil
}

// SteadyState returns the per-section delay state of the cascade after an
// infinitely long unit step input.
func SteadyState(sections []biquad.Coefficients) [][2]float64 {
	zi := make([][2]float64, len(sections))

	scale := 1.0
	for idx, s := range sections {
		b1 := s.B1 - s.A1*s.B0
		b2 := s.B2 - s.A2*s.B0

		z0 := (b1 + b2) / (1 + s.A1 + s.A2)
		z1 := b2 - s.A2*z0

		zi[idx] = [2]float64{scale * z0, scale * z1}

		scale *= dcGain(s)
	}

	return zi
}
