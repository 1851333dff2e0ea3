package pipeline

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"cpmphot/internal/models"
)

// FitOptions are the explicit parameters of one regularized
// least-squares fit.
type FitOptions struct {
	// Reg is the L2 regularization strength on the predictor
	// coefficients. Zero gives ordinary least squares; the caller must
	// keep the regularized normal equations non-singular.
	Reg float64

	// Rescale selects the median-rescaled target and predictor series.
	// The raw path (Rescale=false) skips the trend basis entirely;
	// combining Rescale=false with UseTrend is a ParamError.
	Rescale bool

	// UseTrend appends the polynomial trend basis columns to the design
	// matrix. Requires SetTrendModel.
	UseTrend bool

	// OverrideY and OverrideDesign replace the target series and design
	// matrix for this solve, supporting re-fits on a row subset. Both
	// must be given together, and predictions are still evaluated
	// against the reference design matrix frozen by the first fit.
	OverrideY      []float64
	OverrideDesign *mat.Dense
}

// FitResult is the state of the most recent fit. Every Fit call rewrites
// it, except for Reference, which is frozen by the first successful fit
// on the current predictor set.
type FitResult struct {
	Reg      float64
	TrendReg float64
	Rescale  bool
	UseTrend bool

	// Design is the matrix the latest solve ran on (possibly a row
	// subset); Reference is the full-sample matrix predictions are
	// evaluated against.
	Design    *mat.Dense
	Reference *mat.Dense

	// Coeffs is the full solved coefficient vector; PredictorCoeffs and
	// TrendCoeffs are its predictor and trend halves.
	Coeffs          []float64
	PredictorCoeffs []float64
	TrendCoeffs     []float64

	// Prediction is the full-sample model evaluated on Reference.
	Prediction []float64

	// With a trend basis the prediction decomposes into Constant (the
	// zeroth trend coefficient), PredictorComponent, and TrendComponent
	// (trend contribution with the constant removed). Without one the
	// component slices are nil.
	Constant           float64
	PredictorComponent []float64
	TrendComponent     []float64

	// Residual is the rescaled target series minus Prediction.
	Residual []float64
}

// Fit solves the regularized normal equations (M'M + diag(reg)) b = M'y
// for the model coefficients and evaluates the prediction and residual.
// M is the predictor columns, plus the trend basis columns when UseTrend
// is set. Requires SetTarget, SetExclusion, and SetPredictors.
//
// The first successful fit freezes M as the reference design matrix;
// later calls with OverrideY/OverrideDesign solve on the override rows
// but still predict against the frozen reference, which is what the
// sigma-clip re-fit path relies on.
//
// It returns the full-sample prediction and residual.
func (s *Session) Fit(opts FitOptions) (prediction, residual []float64, err error) {
	if s.predictors == nil {
		return nil, nil, &PrerequisiteError{Op: "Fit", Missing: "SetTarget, SetExclusion, and SetPredictors"}
	}
	if !opts.Rescale && opts.UseTrend {
		return nil, nil, &ParamError{Op: "Fit", Msg: "UseTrend requires the rescaled path (Rescale=true)"}
	}
	if opts.UseTrend && s.trend == nil {
		return nil, nil, &PrerequisiteError{Op: "Fit", Missing: "SetTrendModel"}
	}
	if (opts.OverrideY == nil) != (opts.OverrideDesign == nil) {
		return nil, nil, &ParamError{Op: "Fit", Msg: "OverrideY and OverrideDesign must be given together"}
	}
	if opts.OverrideDesign != nil && s.fit == nil {
		return nil, nil, &PrerequisiteError{Op: "Fit with overrides", Missing: "an initial full-sample Fit"}
	}

	count := s.predictors.Count

	var y []float64
	var m *mat.Dense
	if opts.OverrideDesign != nil {
		y = opts.OverrideY
		m = opts.OverrideDesign
	} else {
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
	}

	rows, cols := m.Dims()
	if len(y) != rows {
		return nil, nil, &ParamError{
			Op:  "Fit",
			Msg: fmt.Sprintf("target series length %d does not match design matrix rows %d", len(y), rows),
		}
	}
	trendCols := cols - count
	if trendCols < 0 || (trendCols > 0 && (s.trend == nil || trendCols != s.trend.Terms)) {
		return nil, nil, &ParamError{
			Op:  "Fit",
			Msg: fmt.Sprintf("design matrix has %d columns for %d predictors", cols, count),
		}
	}

	// Regularization is diagonal: Reg over the predictor columns, the
	// trend's own strength over its columns.
	regDiag := make([]float64, cols)
	for i := 0; i < count; i++ {
		regDiag[i] = opts.Reg
	}
	for i := count; i < cols; i++ {
		regDiag[i] = s.trend.Reg
	}

	coeffs, err := solveNormalEquations(m, y, regDiag)
	if err != nil {
		return nil, nil, err
	}

	ref := m
	if s.fit != nil && s.fit.Reference != nil {
		ref = s.fit.Reference
	}
	refRows, refCols := ref.Dims()
	if refCols != cols {
		return nil, nil, &ParamError{
			Op:  "Fit",
			Msg: fmt.Sprintf("override design has %d columns, reference has %d", cols, refCols),
		}
	}

	coefVec := mat.NewVecDense(cols, coeffs)
	pred := mat.NewVecDense(refRows, nil)
	pred.MulVec(ref, coefVec)

	fit := &FitResult{
		Reg:             opts.Reg,
		Rescale:         opts.Rescale,
		UseTrend:        opts.UseTrend,
		Design:          m,
		Reference:       ref,
		Coeffs:          coeffs,
		PredictorCoeffs: coeffs[:count],
		TrendCoeffs:     coeffs[count:],
		Prediction:      vecData(pred),
	}
	if s.trend != nil {
		fit.TrendReg = s.trend.Reg
	}

	if opts.UseTrend {
		fit.Constant = fit.TrendCoeffs[0]

		predPart := mat.NewVecDense(refRows, nil)
		predPart.MulVec(ref.Slice(0, refRows, 0, count), mat.NewVecDense(count, fit.PredictorCoeffs))
		fit.PredictorComponent = vecData(predPart)

		trendPart := mat.NewVecDense(refRows, nil)
		trendPart.MulVec(ref.Slice(0, refRows, count, cols), mat.NewVecDense(trendCols, fit.TrendCoeffs))
		fit.TrendComponent = vecData(trendPart)
		for i := range fit.TrendComponent {
			fit.TrendComponent[i] -= fit.Constant
		}
	}

	fit.Residual = make([]float64, refRows)
	for i := range fit.Residual {
		fit.Residual[i] = s.target.Rescaled[i] - fit.Prediction[i]
	}

	s.fit = fit
	return append([]float64(nil), fit.Prediction...), append([]float64(nil), fit.Residual...), nil
}

// solveNormalEquations solves (M'M + diag(reg)) x = M'y by QR and
// reports singular systems as *NumericalError.
func solveNormalEquations(m *mat.Dense, y, regDiag []float64) ([]float64, error) {
	rows, cols := m.Dims()

	var a mat.Dense
	a.Mul(m.T(), m)
	for i := 0; i < cols; i++ {
		a.Set(i, i, a.At(i, i)+regDiag[i])
	}

	b := mat.NewVecDense(cols, nil)
	b.MulVec(m.T(), mat.NewVecDense(rows, y))

	var qr mat.QR
	qr.Factorize(&a)
	x := mat.NewVecDense(cols, nil)
	if err := qr.SolveVecTo(x, false, b); err != nil {
		return nil, &NumericalError{Op: "Fit", Err: err}
	}
	return vecData(x), nil
}

// Contributors returns the n predictor pixels with the largest absolute
// fitted coefficients, ties broken by selection order, plus a display
// mask of their positions. Requires a prior Fit.
func (s *Session) Contributors(n int) ([]models.Pixel, models.Mask, error) {
	if s.fit == nil {
		return nil, models.Mask{}, &PrerequisiteError{Op: "Contributors", Missing: "Fit"}
	}
	if n <= 0 {
		return nil, models.Mask{}, &ParamError{Op: "Contributors", Msg: fmt.Sprintf("n must be positive, got %d", n)}
	}

	count := s.predictors.Count
	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	coeffs := s.fit.PredictorCoeffs
	sort.SliceStable(order, func(a, b int) bool {
		return math.Abs(coeffs[order[a]]) > math.Abs(coeffs[order[b]])
	})
	if n > count {
		n = count
	}

	top := make([]models.Pixel, n)
	mask := models.NewMask(s.cube.Side)
	for i := 0; i < n; i++ {
		px := s.predictors.Pixels[order[i]]
		top[i] = px
		mask.Set(px.Row, px.Col, true)
	}
	return top, mask, nil
}

func vecData(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
