package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpmphot/pkg/cube"
)

// newOutlierSession builds a session over a cube where the target pixel
// follows a shared systematic except for a few large spikes, fits it,
// and returns the session plus the spiked sample indices.
func newOutlierSession(t *testing.T) (*Session, []int) {
	t.Helper()

	side, n := 5, 80
	px := side * side
	times := make([]float64, n)
	flux := make([]float64, n*px)
	errs := make([]float64, n*px)
	quality := make([]int32, n)
	spikes := []int{10, 41, 67}

	for ts := 0; ts < n; ts++ {
		times[ts] = float64(ts)
		shared := 0.05 * math.Sin(2*math.Pi*float64(ts)/20)
		for p := 0; p < px; p++ {
			flux[ts*px+p] = float64(100+10*p) * (1 + shared)
		}
	}
	for _, ts := range spikes {
		flux[ts*px+2*side+2] *= 1.8
	}

	c, err := cube.Load(times, flux, errs, quality, side, cube.Options{})
	require.NoError(t, err)

	s := NewSession(c)
	require.NoError(t, s.SetTargetExclusionPredictors(2, 2, 1, ExcludeClosest, 3, PickSimilarBrightness, -1))
	_, _, err = s.Fit(FitOptions{Reg: 1e-4, Rescale: true})
	require.NoError(t, err)
	return s, spikes
}

// TestSigmaClipRemovesOutliers verifies that the loop converges, clips
// the injected spikes, and reports a consistent valid count.
func TestSigmaClipRemovesOutliers(t *testing.T) {
	s, spikes := newOutlierSession(t)

	res, err := s.SigmaClip(context.Background(), 3, false, 50)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Iterations, 50)

	for _, ts := range spikes {
		assert.False(t, res.Valid[ts], "spiked sample %d should be clipped", ts)
	}

	invalid := 0
	for _, ok := range res.Valid {
		if !ok {
			invalid++
		}
	}
	assert.Equal(t, res.Clipped, invalid, "Clipped must equal the number of invalid samples")
}

// TestSigmaClipIterationBound verifies that hitting the iteration bound
// surfaces a partial, non-converged result instead of looping or
// failing hard.
func TestSigmaClipIterationBound(t *testing.T) {
	s, _ := newOutlierSession(t)

	res, err := s.SigmaClip(context.Background(), 3, false, 1)
	require.NoError(t, err)
	assert.False(t, res.Converged, "a single iteration cannot both clip and confirm convergence")
	assert.Equal(t, 1, res.Iterations)
	assert.Greater(t, res.Clipped, 0)
}

// TestSigmaClipNoOutliers verifies immediate convergence on clean data:
// with a generous threshold the first iteration removes nothing.
func TestSigmaClipNoOutliers(t *testing.T) {
	s := newSelectedSession(t, 5, 60, 3)
	_, _, err := s.Fit(FitOptions{Reg: 1e-4, Rescale: true})
	require.NoError(t, err)

	res, err := s.SigmaClip(context.Background(), 10, false, 50)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, 0, res.Clipped)
	for _, ok := range res.Valid {
		assert.True(t, ok)
	}
}

// TestSigmaClipRequiresFit verifies the prerequisite check.
func TestSigmaClipRequiresFit(t *testing.T) {
	s := newSelectedSession(t, 5, 30, 3)

	var prereq *PrerequisiteError
	_, err := s.SigmaClip(context.Background(), 5, false, 10)
	require.ErrorAs(t, err, &prereq)
}

// TestSigmaClipCancellation verifies the cooperative cancellation check.
func TestSigmaClipCancellation(t *testing.T) {
	s, _ := newOutlierSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.SigmaClip(ctx, 3, false, 50)
	require.ErrorIs(t, err, context.Canceled)
}
