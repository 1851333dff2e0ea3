package pipeline

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"cpmphot/internal/models"
)

// PredictorMethod selects how predictor pixels are ranked among the
// eligible positions left over after exclusion.
type PredictorMethod int

const (
	// PickRandom draws a uniform sample without replacement.
	PickRandom PredictorMethod = iota

	// PickSimilarBrightness takes the pixels whose median flux is
	// closest to the target's median flux.
	PickSimilarBrightness

	// PickCosineSimilarity takes the pixels whose rescaled series has
	// the largest cosine similarity with the target's rescaled series.
	PickCosineSimilarity
)

// String returns the method name.
func (m PredictorMethod) String() string {
	switch m {
	case PickRandom:
		return "random"
	case PickSimilarBrightness:
		return "similar_brightness"
	case PickCosineSimilarity:
		return "cosine_similarity"
	default:
		return "unknown"
	}
}

// ParsePredictorMethod converts a method name to its enum value.
func ParsePredictorMethod(name string) (PredictorMethod, error) {
	switch name {
	case "random":
		return PickRandom, nil
	case "similar_brightness":
		return PickSimilarBrightness, nil
	case "cosine_similarity":
		return PickCosineSimilarity, nil
	default:
		return 0, fmt.Errorf("pipeline: unknown predictor method %q", name)
	}
}

// PredictorSet holds the chosen predictor pixels and their time series,
// laid out as design-matrix columns ready for fitting.
type PredictorSet struct {
	Count  int
	Method PredictorMethod

	// Pixels are the chosen positions, in selection order.
	Pixels []models.Pixel

	// Flux and Rescaled hold one column per chosen pixel, one row per
	// time sample.
	Flux     *mat.Dense
	Rescaled *mat.Dense

	// Mask marks the chosen positions, for display.
	Mask models.Mask
}

// SetPredictors chooses count predictor pixels among the eligible
// positions by the given method. A negative seed draws a fresh random
// sequence; any other value makes PickRandom reproducible. Requires
// SetTarget and SetExclusion, and fails when fewer than count positions
// are eligible.
func (s *Session) SetPredictors(count int, method PredictorMethod, seed int64) error {
	if s.target == nil {
		return &PrerequisiteError{Op: "SetPredictors", Missing: "SetTarget"}
	}
	if s.exclusion == nil {
		return &PrerequisiteError{Op: "SetPredictors", Missing: "SetExclusion"}
	}
	if count <= 0 {
		return &ParamError{Op: "SetPredictors", Msg: fmt.Sprintf("count must be positive, got %d", count)}
	}

	// Eligible linear indices in row-major order. This order is the
	// stable tie-break for the ranking methods.
	var eligible []int
	for i, ok := range s.exclusion.Eligible.Bits {
		if ok {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) < count {
		return &ParamError{
			Op:  "SetPredictors",
			Msg: fmt.Sprintf("need %d predictors but only %d eligible pixels", count, len(eligible)),
		}
	}

	var chosen []int
	switch method {
	case PickRandom:
		if seed < 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))
		chosen = make([]int, count)
		for i, j := range rng.Perm(len(eligible))[:count] {
			chosen[i] = eligible[j]
		}
	case PickSimilarBrightness:
		chosen = rankAscending(eligible, count, func(idx int) float64 {
			return math.Abs(s.cube.Medians[idx] - s.target.Median)
		})
	case PickCosineSimilarity:
		targetNorm := math.Sqrt(floats.Dot(s.target.Rescaled, s.target.Rescaled))
		chosen = rankAscending(eligible, count, func(idx int) float64 {
			sim := s.cosineToTarget(idx, targetNorm)
			// Undefined similarities (NaN series) rank last.
			if math.IsNaN(sim) {
				return math.Inf(1)
			}
			return -sim
		})
	default:
		return &ParamError{Op: "SetPredictors", Msg: fmt.Sprintf("unknown method %d", method)}
	}

	side := s.cube.Side
	n := s.cube.Samples()
	pixels := make([]models.Pixel, count)
	mask := models.NewMask(side)
	flux := mat.NewDense(n, count, nil)
	rescaled := mat.NewDense(n, count, nil)
	for j, idx := range chosen {
		px := models.PixelFromIndex(idx, side)
		pixels[j] = px
		mask.Set(px.Row, px.Col, true)
		for t := 0; t < n; t++ {
			flux.Set(t, j, s.cube.Flux[s.cube.Index(t, px.Row, px.Col)])
			rescaled.Set(t, j, s.cube.Rescaled[s.cube.Index(t, px.Row, px.Col)])
		}
	}

	s.predictors = &PredictorSet{
		Count:    count,
		Method:   method,
		Pixels:   pixels,
		Flux:     flux,
		Rescaled: rescaled,
		Mask:     mask,
	}
	s.fit = nil
	return nil
}

// SetTargetExclusionPredictors runs the three selection stages in order
// with one call.
func (s *Session) SetTargetExclusionPredictors(row, col, exclusionSize int, exclusionMethod ExclusionMethod,
	count int, predictorMethod PredictorMethod, seed int64) error {
	if err := s.SetTarget(row, col); err != nil {
		return err
	}
	if err := s.SetExclusion(exclusionSize, exclusionMethod); err != nil {
		return err
	}
	return s.SetPredictors(count, predictorMethod, seed)
}

// cosineToTarget computes the cosine similarity between the rescaled
// series of the pixel at linear index idx and the target's rescaled
// series.
func (s *Session) cosineToTarget(idx int, targetNorm float64) float64 {
	px := models.PixelFromIndex(idx, s.cube.Side)
	series := s.cube.RescaledSeries(px.Row, px.Col)
	norm := math.Sqrt(floats.Dot(series, series))
	return floats.Dot(series, s.target.Rescaled) / (norm * targetNorm)
}

// rankAscending returns the count eligible indices with the smallest key
// values. The sort is stable, so exact ties keep row-major order.
func rankAscending(eligible []int, count int, key func(idx int) float64) []int {
	order := make([]int, len(eligible))
	for i := range order {
		order[i] = i
	}
	keys := make([]float64, len(eligible))
	for i, idx := range eligible {
		k := key(idx)
		// NaN keys (all-NaN pixel series) rank last.
		if math.IsNaN(k) {
			k = math.Inf(1)
		}
		keys[i] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		return keys[order[a]] < keys[order[b]]
	})
	chosen := make([]int, count)
	for i := 0; i < count; i++ {
		chosen[i] = eligible[order[i]]
	}
	return chosen
}
