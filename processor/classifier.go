package processor

import (
	"math"

	"github.com/noriah/bcifeed/dsp"
	"github.com/noriah/bcifeed/model"
	"gonum.org/v1/gonum/mat"
)

// RowFilter filters one sample row across channels and keeps state between
// rows. *dsp.Bandpass is the usual implementation.
type RowFilter interface {
	Filter(dst, src []float64) []float64
	ResetTo(gain []float64)
}

// ClassifierConfig configures NewClassifier.
type ClassifierConfig struct {
	Model    *model.Model
	Filter   RowFilter
	Channels int // enabled channels
	Window   int // log power window in samples
	Votes    int // voting buffer length in samples
}

// Classifier is the online motor imagery classifier. It is owned by one
// worker and is not safe for concurrent use.
type Classifier struct {
	filter RowFilter
	csp    *mat.Dense
	lda    *mat.Dense
	power  *dsp.LogPower
	voting *Voting

	filtered []float64
	comps    *mat.VecDense
	features []float64
	scores   []float64
}

// NewClassifier checks the model against the channel count and builds the
// pipeline.
func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	if err := cfg.Model.Check(cfg.Channels); err != nil {
		return nil, err
	}

	comps := cfg.Model.Components()

	return &Classifier{
		filter:   cfg.Filter,
		csp:      cfg.Model.SpatialFilter,
		lda:      cfg.Model.Discriminant,
		power:    dsp.NewLogPower(cfg.Window, comps),
		voting:   NewVoting(cfg.Votes),
		filtered: make([]float64, cfg.Channels),
		comps:    mat.NewVecDense(comps, nil),
		features: make([]float64, comps),
		scores:   make([]float64, model.Classes),
	}, nil
}

// Prime feeds the bandpass and discards the result.
func (c *Classifier) Prime(row []float64) {
	c.filtered = c.filter.Filter(c.filtered, row)
}

// Resume restarts the bandpass from the steady state of row after a gap in
// the fed samples.
func (c *Classifier) Resume(row []float64) {
	c.filter.ResetTo(row)
}

// ResetVoting empties the voting buffer.
func (c *Classifier) ResetVoting() {
	c.voting.Reset()
}

// Classify runs one enabled-channel row through the pipeline and returns the
// smoothed label and its voting distance. ok is false when no class score is
// finite; the sample then does not vote.
func (c *Classifier) Classify(row []float64) (label int, distance float64, ok bool) {
	c.filtered = c.filter.Filter(c.filtered, row)

	c.comps.MulVec(c.csp, mat.NewVecDense(len(c.filtered), c.filtered))
	c.features = c.power.Compute(c.features, c.comps.RawVector().Data)

	raw, ok := Score(c.scores, c.lda, c.features)
	if !ok {
		return 0, 0, false
	}

	label, distance = c.voting.Update(raw)
	return label, distance, true
}

// Score fills dst with the affine discriminant scores of features scaled to
// +-100 by the largest magnitude, and returns the index of the largest
// non-NaN score.
func Score(dst []float64, lda mat.Matrix, features []float64) (int, bool) {
	classes, _ := lda.Dims()
	dst = dst[:classes]

	peak := 0.0
	for class := range dst {
		s := lda.At(class, 0)
		for f, v := range features {
			s += lda.At(class, f+1) * v
		}
		dst[class] = s

		if a := math.Abs(s); a > peak || math.IsNaN(a) {
			peak = a
		}
	}

	best := -1
	for class, s := range dst {
		s = s * 100 / peak
		dst[class] = s

		if math.IsNaN(s) {
			continue
		}
		if best < 0 || s > dst[best] {
			best = class
		}
	}

	return best, best >= 0
}

