package pipeline

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"cpmphot/pkg/cube"
)

// newTestCube builds an n-sample side x side cube where every pixel has
// its own base brightness plus a shared sinusoidal systematic and a
// little deterministic noise. The shared systematic is what makes one
// pixel a useful predictor for another.
func newTestCube(t *testing.T, side, n int) *cube.Cube {
	t.Helper()

	rng := rand.New(rand.NewSource(7))
	px := side * side
	times := make([]float64, n)
	flux := make([]float64, n*px)
	errs := make([]float64, n*px)
	quality := make([]int32, n)
	for ts := 0; ts < n; ts++ {
		times[ts] = float64(ts)
		shared := 0.02 * math.Sin(2*math.Pi*float64(ts)/float64(n))
		for p := 0; p < px; p++ {
			base := float64(100 + 10*p)
			flux[ts*px+p] = base * (1 + shared + 0.001*rng.NormFloat64())
			errs[ts*px+p] = 1.0
		}
	}

	c, err := cube.Load(times, flux, errs, quality, side, cube.Options{})
	require.NoError(t, err)
	return c
}

// cubeLoad wraps cube.Load with default options for tests that build
// their own arrays.
func cubeLoad(times, flux, errs []float64, quality []int32, side int) (*cube.Cube, error) {
	return cube.Load(times, flux, errs, quality, side, cube.Options{})
}

// newSelectedSession returns a session over a fresh test cube with the
// target, exclusion, and predictor stages already run.
func newSelectedSession(t *testing.T, side, n, count int) *Session {
	t.Helper()

	s := NewSession(newTestCube(t, side, n))
	s.Verbose = false
	require.NoError(t, s.SetTarget(side/2, side/2))
	require.NoError(t, s.SetExclusion(1, ExcludeClosest))
	require.NoError(t, s.SetPredictors(count, PickSimilarBrightness, -1))
	return s
}
