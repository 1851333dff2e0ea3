package pipeline

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// TrendBasis is a polynomial design-matrix basis over a centered and
// rescaled time axis. It depends only on the cube's time axis, not on
// the target or predictors, so one basis serves every fit in a session
// and is shared read-only by batch clones.
type TrendBasis struct {
	// HalfWidth is the half-width of the interval the centered time
	// axis is scaled to.
	HalfWidth float64

	// Terms is the number of polynomial terms (the Vandermonde width).
	Terms int

	// Reg is the regularization strength applied to the trend columns.
	Reg float64

	// ScaledTime is the centered, normalized, and scaled time axis.
	ScaledTime []float64

	// Basis is the increasing-power Vandermonde matrix over ScaledTime:
	// column j holds ScaledTime^j.
	Basis *mat.Dense
}

// SetTrendModel builds the polynomial trend basis: time is centered on
// (max+min)/2, normalized by (max-min), scaled by halfWidth, and raised
// to increasing powers up to terms-1. reg is the regularization strength
// later applied to the trend coefficients.
func (s *Session) SetTrendModel(halfWidth float64, terms int, reg float64) error {
	if terms < 1 {
		return &ParamError{Op: "SetTrendModel", Msg: fmt.Sprintf("need at least one term, got %d", terms)}
	}
	t := s.cube.Time
	lo, hi := floats.Min(t), floats.Max(t)
	if hi == lo {
		return &ParamError{Op: "SetTrendModel", Msg: "time axis has zero span"}
	}

	scaled := make([]float64, len(t))
	mid := (hi + lo) / 2
	span := hi - lo
	for i, v := range t {
		scaled[i] = halfWidth * (v - mid) / span
	}

	basis := mat.NewDense(len(t), terms, nil)
	for i, v := range scaled {
		p := 1.0
		for j := 0; j < terms; j++ {
			basis.Set(i, j, p)
			p *= v
		}
	}

	s.trend = &TrendBasis{
		HalfWidth:  halfWidth,
		Terms:      terms,
		Reg:        reg,
		ScaledTime: scaled,
		Basis:      basis,
	}
	return nil
}

// Trend returns the trend basis, or nil before SetTrendModel.
func (s *Session) Trend() *TrendBasis { return s.trend }
