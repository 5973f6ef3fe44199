package dsp

import "github.com/cwbudde/algo-dsp/dsp/filter/biquad"

// Bandpass is a multichannel cascade of biquad sections that keeps its delay
// state between calls. It filters one sample row at a time.
type Bandpass struct {
	sections []biquad.Coefficients
	zi       [][2]float64

	// one chain per channel
	chains []*biquad.Chain
	scaled [][2]float64
}

// NewBandpass builds a filter for the given number of channels. The state
// starts at the unit-step steady state.
func NewBandpass(sections []biquad.Coefficients, channels int) *Bandpass {
	bp := &Bandpass{
		sections: sections,
		zi:       SteadyState(sections),
		chains:   make([]*biquad.Chain, channels),
		scaled:   make([][2]float64, len(sections)),
	}

	for ch := range bp.chains {
		bp.chains[ch] = biquad.NewChain(sections)
	}

	bp.Reset()

	return bp
}

// Sections returns the filter coefficients.
func (bp *Bandpass) Sections() []biquad.Coefficients {
	return bp.sections
}

// Channels returns the number of channels filtered per row.
func (bp *Bandpass) Channels() int {
	return len(bp.chains)
}

// Reset restores the unit-step steady state on every channel.
func (bp *Bandpass) Reset() {
	for _, c := range bp.chains {
		c.SetState(bp.zi)
	}
}

// ResetTo restores the steady state scaled per channel by gain, the state the
// filter would hold after a constant input of gain.
func (bp *Bandpass) ResetTo(gain []float64) {
	for ch, g := range gain {
		for idx, zi := range bp.zi {
			bp.scaled[idx] = [2]float64{zi[0] * g, zi[1] * g}
		}
		bp.chains[ch].SetState(bp.scaled)
	}
}

// Filter runs one row through the cascade. dst may alias src.
func (bp *Bandpass) Filter(dst, src []float64) []float64 {
	if cap(dst) < len(src) {
		dst = make([]float64, len(src))
	}
	dst = dst[:len(src)]

	for ch, x := range src {
		dst[ch] = bp.chains[ch].ProcessSample(x)
	}

	return dst
}
