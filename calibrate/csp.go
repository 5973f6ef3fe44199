// Package calibrate fits the spatial filter and the discriminant used by the
// online classifier from a labelled recording.
package calibrate

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrSingular is returned when a covariance matrix cannot be inverted.
var ErrSingular = errors.New("singular covariance")

// SpatialPatterns solves covA v = l (covA + covB) v. Eigenvalues come back in
// descending order with the matching eigenvectors as columns, each scaled so
// its largest absolute component is 1.
func SpatialPatterns(covA, covB mat.Symmetric) ([]float64, *mat.Dense, error) {
	n := covA.SymmetricDim()
	if covB.SymmetricDim() != n {
		return nil, nil, errors.Errorf("covariance sizes differ: %d and %d", n, covB.SymmetricDim())
	}

	var sum mat.SymDense
	sum.AddSym(covA, covB)

	var chol mat.Cholesky
	if ok := chol.Factorize(&sum); !ok {
		return nil, nil, errors.Wrap(ErrSingular, "composite covariance not positive definite")
	}

	var l, linv mat.TriDense
	chol.LTo(&l)
	if err := linv.InverseTri(&l); err != nil {
		return nil, nil, errors.Wrap(ErrSingular, err.Error())
	}

	// whiten covA with the cholesky factor of the sum
	var tmp, whitened mat.Dense
	tmp.Mul(&linv, covA)
	whitened.Mul(&tmp, linv.T())

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (whitened.At(i, j)+whitened.At(j, i))/2)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, nil, errors.New("eigen decomposition did not converge")
	}

	values := eig.Values(nil)

	var w, v mat.Dense
	eig.VectorsTo(&w)
	v.Mul(linv.T(), &w)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return values[order[i]] > values[order[j]]
	})

	sorted := make([]float64, n)
	vectors := mat.NewDense(n, n, nil)

	col := make([]float64, n)
	for dst, src := range order {
		sorted[dst] = values[src]

		mat.Col(col, src, &v)
		scale := 0.0
		for _, c := range col {
			scale = math.Max(scale, math.Abs(c))
		}
		if scale > 0 {
			for i := range col {
				col[i] /= scale
			}
		}

		vectors.SetCol(dst, col)
	}

	return sorted, vectors, nil
}

// TrainCSP fits a spatial filter from two class matrices of samples x
// channels. It keeps the patterns whose sorted index is below nFilters or at
// least channels-nFilters: the nFilters most dominant for class a followed by
// the nFilters most dominant for class b. When the two ends overlap each
// pattern is kept once, so the result has min(2*nFilters, channels) rows.
func TrainCSP(a, b mat.Matrix, nFilters int) (*mat.Dense, error) {
	_, channels := a.Dims()
	if _, cb := b.Dims(); cb != channels {
		return nil, errors.Errorf("class channel counts differ: %d and %d", channels, cb)
	}

	if nFilters < 1 {
		return nil, errors.Errorf("cannot select %d filters per class", nFilters)
	}

	covA, err := normalisedCovariance(a)
	if err != nil {
		return nil, errors.Wrap(err, "class a")
	}

	covB, err := normalisedCovariance(b)
	if err != nil {
		return nil, errors.Wrap(err, "class b")
	}

	values, vectors, err := SpatialPatterns(covA, covB)
	if err != nil {
		return nil, err
	}

	logger.Debugw("spatial patterns", "eigenvalues", values)

	var keep []int
	for i := 0; i < channels; i++ {
		if i < nFilters || i >= channels-nFilters {
			keep = append(keep, i)
		}
	}

	filter := mat.NewDense(len(keep), channels, nil)
	row := make([]float64, channels)
	for dst, src := range keep {
		mat.Col(row, src, vectors)
		filter.SetRow(dst, row)
	}

	return filter, nil
}

func normalisedCovariance(x mat.Matrix) (*mat.SymDense, error) {
	if r, _ := x.Dims(); r < 2 {
		return nil, errors.Errorf("need at least 2 samples, got %d", r)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)

	tr := mat.Trace(&cov)
	if tr <= 0 || math.IsNaN(tr) {
		return nil, errors.Wrap(ErrSingular, "zero covariance trace")
	}

	cov.ScaleSym(1/tr, &cov)

	return &cov, nil
}
