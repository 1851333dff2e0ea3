package pipeline

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ClipResult is the outcome of an iterative sigma-clip run.
type ClipResult struct {
	// Valid marks the time samples still retained after clipping. It
	// only ever shrinks: entries flip from true to false and never back.
	Valid []bool

	// Clipped is the total number of samples marked invalid.
	Clipped int

	// Iterations is the number of clip/re-fit rounds performed.
	Iterations int

	// Converged is false when the iteration bound was hit before an
	// iteration removed no new samples. The result is still usable; the
	// caller decides whether a partial clip is acceptable.
	Converged bool
}

// SigmaClip iteratively removes outlier time samples from the fit. Each
// round compares the rescaled target against the current model: the
// predictor-plus-constant components when a trend fit is available and
// subtractTrend is false, otherwise the full prediction. Samples whose
// absolute residual exceeds sigma times the RMS of the currently-valid
// residuals are invalidated; when a round invalidates nothing the loop
// has converged. Otherwise the model is re-fit on the valid rows of the
// reference design matrix and the loop repeats, up to maxIter rounds.
//
// Requires a prior Fit. The context is checked each round so a batch
// caller can cancel mid-clip.
func (s *Session) SigmaClip(ctx context.Context, sigma float64, subtractTrend bool, maxIter int) (*ClipResult, error) {
	if s.fit == nil {
		return nil, &PrerequisiteError{Op: "SigmaClip", Missing: "Fit"}
	}
	if sigma <= 0 {
		return nil, &ParamError{Op: "SigmaClip", Msg: fmt.Sprintf("sigma must be positive, got %g", sigma)}
	}
	if maxIter < 1 {
		return nil, &ParamError{Op: "SigmaClip", Msg: fmt.Sprintf("maxIter must be at least 1, got %d", maxIter)}
	}

	n := s.cube.Samples()
	res := &ClipResult{Valid: make([]bool, n)}
	for i := range res.Valid {
		res.Valid[i] = true
	}

	target := s.target.Rescaled
	diff := make([]float64, n)

	for iter := 1; iter <= maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("pipeline: SigmaClip canceled: %w", err)
		}
		res.Iterations = iter

		model := s.fit.Prediction
		if !subtractTrend && s.fit.PredictorComponent != nil {
			model = diffModel(s.fit.PredictorComponent, s.fit.Constant)
		}

		var sumSq float64
		nValid := 0
		for t := 0; t < n; t++ {
			diff[t] = target[t] - model[t]
			if res.Valid[t] {
				sumSq += diff[t] * diff[t]
				nValid++
			}
		}
		threshold := sigma * math.Sqrt(sumSq/float64(nValid))

		newlyClipped := 0
		for t := 0; t < n; t++ {
			if math.Abs(diff[t]) > threshold && res.Valid[t] {
				res.Valid[t] = false
				newlyClipped++
			}
		}
		if newlyClipped == 0 {
			res.Converged = true
			return res, nil
		}
		res.Clipped += newlyClipped
		s.logf("sigma clip iteration %d: removing %d samples", iter, newlyClipped)

		if err := s.refitValid(res.Valid); err != nil {
			return res, err
		}
	}

	s.warnf("sigma clip hit the %d-iteration bound without converging; returning partial result", maxIter)
	return res, nil
}

// refitValid re-solves the fit using only the valid samples' rescaled
// target values and reference-design-matrix rows.
func (s *Session) refitValid(valid []bool) error {
	nValid := 0
	for _, ok := range valid {
		if ok {
			nValid++
		}
	}

	ref := s.fit.Reference
	_, cols := ref.Dims()
	y := make([]float64, 0, nValid)
	m := mat.NewDense(nValid, cols, nil)
	row := 0
	for t, ok := range valid {
		if !ok {
			continue
		}
		m.SetRow(row, ref.RawRowView(t))
		y = append(y, s.target.Rescaled[t])
		row++
	}

	_, _, err := s.Fit(FitOptions{
		Reg:            s.fit.Reg,
		Rescale:        s.fit.Rescale,
		UseTrend:       s.fit.UseTrend,
		OverrideY:      y,
		OverrideDesign: m,
	})
	return err
}

func diffModel(component []float64, constant float64) []float64 {
	out := make([]float64, len(component))
	for i, v := range component {
		out[i] = v + constant
	}
	return out
}
