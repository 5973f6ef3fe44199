package calibrate

import (
	"math"

	"github.com/noriah/bcifeed/model"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// TrainLDA fits a linear discriminant on the rows of x. labels holds the class
// index of every row, 0 or 1. A nil priors uses the class frequencies.
//
// The result has one row per class laid out as [bias, w...].
func TrainLDA(x mat.Matrix, labels []int, priors []float64) (*mat.Dense, error) {
	rows, features := x.Dims()
	if len(labels) != rows {
		return nil, errors.Errorf("%d labels for %d feature rows", len(labels), rows)
	}

	members := make([][]int, model.Classes)
	for row, label := range labels {
		if label < 0 || label >= model.Classes {
			return nil, errors.Errorf("row %d: class %d out of range", row, label)
		}
		members[label] = append(members[label], row)
	}

	if priors == nil {
		priors = make([]float64, model.Classes)
		for class, idx := range members {
			priors[class] = float64(len(idx)) / float64(rows)
		}
	}

	if len(priors) != model.Classes {
		return nil, errors.Errorf("%d priors for %d classes", len(priors), model.Classes)
	}

	dof := float64(rows - model.Classes)
	pooled := mat.NewSymDense(features, nil)
	means := make([]*mat.VecDense, model.Classes)

	for class, idx := range members {
		if len(idx) < 2 {
			return nil, errors.Errorf("class %d has %d rows, need at least 2", class, len(idx))
		}

		sub := mat.NewDense(len(idx), features, nil)
		for i, row := range idx {
			sub.SetRow(i, mat.Row(nil, row, x))
		}

		mean := make([]float64, features)
		for f := range mean {
			mean[f] = stat.Mean(mat.Col(nil, f, sub), nil)
		}
		means[class] = mat.NewVecDense(features, mean)

		var cov mat.SymDense
		stat.CovarianceMatrix(&cov, sub, nil)

		// weight by the degrees of freedom of the class
		pooled.AddSym(pooled, scaled(&cov, float64(len(idx)-1)/dof))
	}

	out := mat.NewDense(model.Classes, features+1, nil)

	for class, mean := range means {
		var w mat.VecDense
		if err := w.SolveVec(pooled, mean); err != nil {
			return nil, errors.Wrap(ErrSingular, err.Error())
		}

		prior := priors[class]
		if prior <= 0 {
			return nil, errors.Errorf("class %d prior must be positive, got %g", class, prior)
		}

		out.Set(class, 0, -0.5*mat.Dot(&w, mean)+math.Log(prior))
		for f := 0; f < features; f++ {
			out.Set(class, f+1, w.AtVec(f))
		}
	}

	return out, nil
}

func scaled(s *mat.SymDense, f float64) *mat.SymDense {
	s.ScaleSym(f, s)
	return s
}

// Predict returns the class index with the highest affine score for one
// feature row.
func Predict(discriminant mat.Matrix, features []float64) int {
	best, bestScore := 0, math.Inf(-1)

	classes, _ := discriminant.Dims()
	for class := 0; class < classes; class++ {
		score := discriminant.At(class, 0)
		for f, v := range features {
			score += discriminant.At(class, f+1) * v
		}

		if score > bestScore {
			best, bestScore = class, score
		}
	}

	return best
}
