package calibrate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/noriah/bcifeed/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSpatialPatternsDiagonal(t *testing.T) {
	covA := mat.NewSymDense(2, []float64{0.8, 0, 0, 0.2})
	covB := mat.NewSymDense(2, []float64{0.2, 0, 0, 0.8})

	values, vectors, err := SpatialPatterns(covA, covB)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0.8, 0.2}, values, 1e-12)

	assert.InDelta(t, 1, math.Abs(vectors.At(0, 0)), 1e-12)
	assert.InDelta(t, 0, vectors.At(1, 0), 1e-12)
	assert.InDelta(t, 0, vectors.At(0, 1), 1e-12)
	assert.InDelta(t, 1, math.Abs(vectors.At(1, 1)), 1e-12)
}

func TestSpatialPatternsSolveGeneralised(t *testing.T) {
	covA := mat.NewSymDense(3, []float64{
		2.0, 0.3, 0.1,
		0.3, 1.0, 0.2,
		0.1, 0.2, 0.5,
	})
	covB := mat.NewSymDense(3, []float64{
		0.6, 0.1, 0.0,
		0.1, 1.2, 0.4,
		0.0, 0.4, 2.0,
	})

	values, vectors, err := SpatialPatterns(covA, covB)
	require.NoError(t, err)

	var sum mat.SymDense
	sum.AddSym(covA, covB)

	for i, l := range values {
		if i > 0 {
			assert.GreaterOrEqual(t, values[i-1], l)
		}

		v := vectors.ColView(i)

		var lhs, rhs mat.VecDense
		lhs.MulVec(covA, v)
		rhs.MulVec(&sum, v)
		rhs.ScaleVec(l, &rhs)

		assert.InDeltaSlice(t, rhs.RawVector().Data, lhs.RawVector().Data, 1e-9)
		assert.InDelta(t, 1, mat.Norm(v, math.Inf(1)), 1e-12)
	}
}

func TestTrainCSPFilterCount(t *testing.T) {
	tests := []struct {
		channels, filters, rows int
	}{
		{4, 2, 4},
		{4, 1, 2},
		{2, 2, 2},
		{3, 2, 3},
		{2, 5, 2},
	}

	rng := rand.New(rand.NewSource(1))
	for _, tt := range tests {
		a := noise(rng, 500, tt.channels, 1)
		b := noise(rng, 500, tt.channels, 1)

		csp, err := TrainCSP(a, b, tt.filters)
		require.NoError(t, err, "%d channels, %d filters", tt.channels, tt.filters)

		r, c := csp.Dims()
		assert.Equal(t, tt.rows, r, "%d channels, %d filters", tt.channels, tt.filters)
		assert.Equal(t, tt.channels, c)
	}

	a := noise(rng, 500, 4, 1)
	_, err := TrainCSP(a, a, 0)
	assert.Error(t, err)
}

func TestTrainCSPSeparatesVariance(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	a := noise(rng, 2000, 3, 1)
	b := noise(rng, 2000, 3, 1)
	for i := 0; i < 2000; i++ {
		a.Set(i, 0, a.At(i, 0)*6)
		b.Set(i, 2, b.At(i, 2)*6)
	}

	csp, err := TrainCSP(a, b, 1)
	require.NoError(t, err)

	// the first pattern favours channel 0, the last channel 2
	first := mat.Row(nil, 0, csp)
	last := mat.Row(nil, 1, csp)

	assert.InDelta(t, 1, math.Abs(first[0]), 1e-9)
	assert.Greater(t, math.Abs(first[0]), 3*math.Abs(first[2]))
	assert.InDelta(t, 1, math.Abs(last[2]), 1e-9)
	assert.Greater(t, math.Abs(last[2]), 3*math.Abs(last[0]))
}

func TestTrainLDAReclassifies(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	const perClass = 60
	x := mat.NewDense(2*perClass, 3, nil)
	labels := make([]int, 2*perClass)

	for i := 0; i < 2*perClass; i++ {
		class := i % 2
		labels[i] = class

		shift := -2.0
		if class == 1 {
			shift = 2.0
		}

		x.Set(i, 0, shift+rng.NormFloat64())
		x.Set(i, 1, -shift+rng.NormFloat64())
		x.Set(i, 2, rng.NormFloat64())
	}

	lda, err := TrainLDA(x, labels, nil)
	require.NoError(t, err)

	r, c := lda.Dims()
	require.Equal(t, model.Classes, r)
	require.Equal(t, 4, c)

	correct := 0
	for i, label := range labels {
		if Predict(lda, x.RawRowView(i)) == label {
			correct++
		}
	}

	assert.GreaterOrEqual(t, float64(correct)/float64(len(labels)), 0.95)
}

func TestTrainLDASingular(t *testing.T) {
	rng := rand.New(rand.NewSource(4))

	x := mat.NewDense(20, 2, nil)
	labels := make([]int, 20)
	for i := range labels {
		labels[i] = i % 2
		x.Set(i, 0, rng.NormFloat64()+float64(labels[i]))
		// second feature carries no variance at all
	}

	_, err := TrainLDA(x, labels, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSingular))
}

func TestTrainLDATooFewRows(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{1, 2, 3})

	_, err := TrainLDA(x, []int{0, 0, 1}, nil)
	assert.Error(t, err)
}

func TestTrials(t *testing.T) {
	labels := []float64{0, 0, 121, 0, 0, 122, 122, 0, 7, 121}

	assert.Equal(t, []Trial{
		{Cue: 2, Class: 0},
		{Cue: 5, Class: 1},
		{Cue: 9, Class: 0},
	}, Trials(labels))
}

func TestFitSynthetic(t *testing.T) {
	const rate = 128.0

	ds := synthetic(rand.New(rand.NewSource(5)), rate, 20)

	cfg := Config{
		SampleRate:   rate,
		Selection:    model.Selection{0, 1, 2, 3},
		Order:        4,
		Low:          8,
		High:         30,
		CueOffset:    0.5,
		TaskDuration: 4,
		FeatureDelay: 3,
		Window:       1,
		Filters:      2,
	}

	res, err := Fit(cfg, ds)
	require.NoError(t, err)

	assert.Equal(t, [model.Classes]int{20, 20}, res.Trials)
	assert.GreaterOrEqual(t, res.Accuracy, 0.95)
	require.NoError(t, res.Model.Check(4))
}

func TestFitTwoChannelsDefaultFilters(t *testing.T) {
	const rate = 128.0

	ds := synthetic(rand.New(rand.NewSource(8)), rate, 20)

	res, err := Fit(Config{
		SampleRate:   rate,
		Selection:    model.Selection{0, 1},
		Order:        4,
		Low:          8,
		High:         30,
		CueOffset:    0.5,
		TaskDuration: 4,
		FeatureDelay: 3,
		Window:       1,
		Filters:      2,
	}, ds)
	require.NoError(t, err)

	rows, _ := res.Model.SpatialFilter.Dims()
	assert.Equal(t, 2, rows)
	assert.GreaterOrEqual(t, res.Accuracy, 0.9)
	require.NoError(t, res.Model.Check(2))
}

func TestFitRejectsBadSelection(t *testing.T) {
	ds := synthetic(rand.New(rand.NewSource(6)), 128, 4)

	_, err := Fit(Config{SampleRate: 128, Order: 4, Low: 8, High: 30, Filters: 1}, ds)
	assert.ErrorIs(t, err, model.ErrNoChannels)

	_, err = Fit(Config{SampleRate: 128, Selection: model.Selection{0, 9}, Order: 4, Low: 8, High: 30, Filters: 1}, ds)
	assert.Error(t, err)
}

func noise(rng *rand.Rand, rows, cols int, scale float64) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, rng.NormFloat64()*scale)
		}
	}
	return m
}

// synthetic builds a four channel recording where a 12 Hz rhythm shows up on
// channel 0 for left trials and on channel 1 for right trials.
func synthetic(rng *rand.Rand, rate float64, perClass int) *Dataset {
	const trialSeconds = 8

	trialLen := int(trialSeconds * rate)
	samples := 2*perClass*trialLen + trialLen

	ds := &Dataset{
		Labels: make([]float64, samples),
		Data:   noise(rng, samples, 4, 1),
	}

	for trial := 0; trial < 2*perClass; trial++ {
		class := trial % 2
		cue := trialLen/2 + trial*trialLen

		ds.Labels[cue] = model.LabelLeft
		if class == 1 {
			ds.Labels[cue] = model.LabelRight
		}

		for i := 0; i < int(5*rate); i++ {
			v := 5 * math.Sin(2*math.Pi*12*float64(i)/rate)
			ds.Data.Set(cue+i, class, ds.Data.At(cue+i, class)+v)
		}
	}

	return ds
}
