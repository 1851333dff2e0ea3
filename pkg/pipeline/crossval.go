package pipeline

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Fold is the out-of-fold result of one cross-validation split.
type Fold struct {
	// Test holds the held-out time indices of this fold.
	Test []int

	// Prediction is the model evaluated on the held-out rows after
	// fitting on the training rows.
	Prediction []float64

	// Residual is the held-out target minus Prediction.
	Residual []float64
}

// CrossValidate re-fits the model on k contiguous folds of the time axis
// and evaluates each fit on its held-out rows. Every time index appears
// in exactly one fold. Unlike Fit, each fold solves its own normal
// equations on its training submatrix and predicts on the held-out
// submatrix; nothing is frozen across folds and the session's fit state
// is left untouched.
//
// opts.OverrideY and opts.OverrideDesign are not supported here.
func (s *Session) CrossValidate(k int, opts FitOptions) ([]Fold, error) {
	if s.predictors == nil {
		return nil, &PrerequisiteError{Op: "CrossValidate", Missing: "SetTarget, SetExclusion, and SetPredictors"}
	}
	if !opts.Rescale && opts.UseTrend {
		return nil, &ParamError{Op: "CrossValidate", Msg: "UseTrend requires the rescaled path (Rescale=true)"}
	}
	if opts.UseTrend && s.trend == nil {
		return nil, &PrerequisiteError{Op: "CrossValidate", Missing: "SetTrendModel"}
	}
	if opts.OverrideY != nil || opts.OverrideDesign != nil {
		return nil, &ParamError{Op: "CrossValidate", Msg: "overrides are not supported"}
	}

	n := s.cube.Samples()
	if k < 2 || k > n {
		return nil, &ParamError{Op: "CrossValidate", Msg: fmt.Sprintf("k must be in [2, %d], got %d", n, k)}
	}

	var y []float64
	var m *mat.Dense
	if opts.Rescale {
		y = s.target.Rescaled
		m = s.predictors.Rescaled
	} else {
		y = s.target.Flux
		m = s.predictors.Flux
	}
	if opts.UseTrend {
		var aug mat.Dense
		aug.Augment(m, s.trend.Basis)
		m = &aug
	}
	_, cols := m.Dims()

	count := s.predictors.Count
	regDiag := make([]float64, cols)
	for i := 0; i < count; i++ {
		regDiag[i] = opts.Reg
	}
	for i := count; i < cols; i++ {
		regDiag[i] = s.trend.Reg
	}

	folds := make([]Fold, 0, k)
	for _, test := range contiguousFolds(n, k) {
		inTest := make([]bool, n)
		for _, t := range test {
			inTest[t] = true
		}

		mTrain := mat.NewDense(n-len(test), cols, nil)
		yTrain := make([]float64, 0, n-len(test))
		row := 0
		for t := 0; t < n; t++ {
			if inTest[t] {
				continue
			}
			mTrain.SetRow(row, m.RawRowView(t))
			yTrain = append(yTrain, y[t])
			row++
		}

		coeffs, err := solveNormalEquations(mTrain, yTrain, regDiag)
		if err != nil {
			return nil, err
		}

		mTest := mat.NewDense(len(test), cols, nil)
		for i, t := range test {
			mTest.SetRow(i, m.RawRowView(t))
		}
		pred := mat.NewVecDense(len(test), nil)
		pred.MulVec(mTest, mat.NewVecDense(cols, coeffs))

		fold := Fold{
			Test:       test,
			Prediction: vecData(pred),
			Residual:   make([]float64, len(test)),
		}
		for i, t := range test {
			fold.Residual[i] = y[t] - fold.Prediction[i]
		}
		folds = append(folds, fold)
	}
	return folds, nil
}

// contiguousFolds partitions [0, n) into k contiguous index ranges. The
// first n%k folds carry one extra index, so the union covers every index
// exactly once.
func contiguousFolds(n, k int) [][]int {
	folds := make([][]int, 0, k)
	base := n / k
	extra := n % k
	start := 0
	for i := 0; i < k; i++ {
		size := base
		if i < extra {
			size++
		}
		fold := make([]int, size)
		for j := 0; j < size; j++ {
			fold[j] = start + j
		}
		folds = append(folds, fold)
		start += size
	}
	return folds
}
