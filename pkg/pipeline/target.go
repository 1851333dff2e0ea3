package pipeline

import (
	"fmt"

	"cpmphot/internal/models"
)

// Target holds the time series and mask extracted for one target pixel.
type Target struct {
	Pixel models.Pixel

	// Flux and Errs are the raw flux/error series at the target pixel.
	Flux []float64
	Errs []float64

	// Median is the median of the raw flux series, ignoring NaN.
	Median float64

	// Rescaled and RescaledErrs are the median-rescaled counterparts.
	Rescaled     []float64
	RescaledErrs []float64

	// Mask marks the single target position, for display.
	Mask models.Mask
}

// SetTarget selects the pixel whose systematics the fit will model.
// It extracts the raw and rescaled series at (row, col) and resets any
// later stage state, since exclusion and predictors depend on the target.
func (s *Session) SetTarget(row, col int) error {
	side := s.cube.Side
	if row < 0 || row >= side || col < 0 || col >= side {
		return &ParamError{
			Op:  "SetTarget",
			Msg: fmt.Sprintf("pixel (%d, %d) outside %dx%d image", row, col, side, side),
		}
	}

	flux := s.cube.Series(row, col)
	errs := s.cube.ErrorSeries(row, col)
	med := s.cube.MedianAt(row, col)

	rescaledErrs := make([]float64, len(errs))
	for i, e := range errs {
		rescaledErrs[i] = e / med
	}

	mask := models.NewMask(side)
	mask.Set(row, col, true)

	s.target = &Target{
		Pixel:        models.Pixel{Row: row, Col: col},
		Flux:         flux,
		Errs:         errs,
		Median:       med,
		Rescaled:     s.cube.RescaledSeries(row, col),
		RescaledErrs: rescaledErrs,
		Mask:         mask,
	}
	s.exclusion = nil
	s.predictors = nil
	s.fit = nil
	return nil
}
