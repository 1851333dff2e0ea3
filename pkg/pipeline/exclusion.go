package pipeline

import (
	"fmt"

	"cpmphot/internal/models"
)

// ExclusionMethod selects the shape of the region around the target that
// is barred from being a predictor. Pixels near the target may carry the
// target's own astrophysical signal, which would let the fit absorb it.
type ExclusionMethod int

const (
	// ExcludeClosest bars the square block of half-width size around
	// the target.
	ExcludeClosest ExclusionMethod = iota

	// ExcludeCross bars the full row band and the full column band
	// through the target.
	ExcludeCross

	// ExcludeRows bars the full row band through the target.
	ExcludeRows

	// ExcludeCols bars the full column band through the target.
	ExcludeCols
)

// String returns the method name.
func (m ExclusionMethod) String() string {
	switch m {
	case ExcludeClosest:
		return "closest"
	case ExcludeCross:
		return "cross"
	case ExcludeRows:
		return "row_exclude"
	case ExcludeCols:
		return "col_exclude"
	default:
		return "unknown"
	}
}

// ParseExclusionMethod converts a method name to its enum value.
func ParseExclusionMethod(name string) (ExclusionMethod, error) {
	switch name {
	case "closest":
		return ExcludeClosest, nil
	case "cross":
		return ExcludeCross, nil
	case "row_exclude":
		return ExcludeRows, nil
	case "col_exclude":
		return ExcludeCols, nil
	default:
		return 0, fmt.Errorf("pipeline: unknown exclusion method %q", name)
	}
}

// Exclusion records the exclusion region and the resulting eligibility
// mask over all pixel positions (true = eligible predictor).
type Exclusion struct {
	Size   int
	Method ExclusionMethod

	// Eligible is true at every position a predictor may be drawn from.
	Eligible models.Mask
}

// SetExclusion bars a region of half-width size around the target from
// predictor selection. Bands are clamped at the image boundary; there is
// no wraparound. Requires SetTarget.
func (s *Session) SetExclusion(size int, method ExclusionMethod) error {
	if s.target == nil {
		return &PrerequisiteError{Op: "SetExclusion", Missing: "SetTarget"}
	}
	if size < 0 {
		return &ParamError{Op: "SetExclusion", Msg: fmt.Sprintf("size must be non-negative, got %d", size)}
	}

	side := s.cube.Side
	row, col := s.target.Pixel.Row, s.target.Pixel.Col

	rowLo, rowHi := clampBand(row, size, side)
	colLo, colHi := clampBand(col, size, side)

	excluded := models.NewMask(side)
	switch method {
	case ExcludeClosest:
		for r := rowLo; r < rowHi; r++ {
			for c := colLo; c < colHi; c++ {
				excluded.Set(r, c, true)
			}
		}
	case ExcludeCross:
		markRowBand(excluded, rowLo, rowHi)
		markColBand(excluded, colLo, colHi)
	case ExcludeRows:
		markRowBand(excluded, rowLo, rowHi)
	case ExcludeCols:
		markColBand(excluded, colLo, colHi)
	default:
		return &ParamError{Op: "SetExclusion", Msg: fmt.Sprintf("unknown method %d", method)}
	}

	eligible := models.NewMask(side)
	for i, ex := range excluded.Bits {
		eligible.Bits[i] = !ex
	}

	s.exclusion = &Exclusion{Size: size, Method: method, Eligible: eligible}
	s.predictors = nil
	s.fit = nil
	return nil
}

// clampBand returns the half-open index range [center-size, center+size+1)
// clamped to [0, side).
func clampBand(center, size, side int) (lo, hi int) {
	lo = center - size
	if lo < 0 {
		lo = 0
	}
	hi = center + size + 1
	if hi > side {
		hi = side
	}
	return lo, hi
}

func markRowBand(m models.Mask, lo, hi int) {
	for r := lo; r < hi; r++ {
		for c := 0; c < m.Side; c++ {
			m.Set(r, c, true)
		}
	}
}

func markColBand(m models.Mask, lo, hi int) {
	for r := 0; r < m.Side; r++ {
		for c := lo; c < hi; c++ {
			m.Set(r, c, true)
		}
	}
}
