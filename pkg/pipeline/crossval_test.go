package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestContiguousFoldsPartition verifies that the fold layout covers
// every time index exactly once with no index shared between folds.
func TestContiguousFoldsPartition(t *testing.T) {
	for _, tc := range []struct{ n, k int }{{100, 10}, {101, 7}, {12, 5}, {9, 9}} {
		folds := contiguousFolds(tc.n, tc.k)
		require.Len(t, folds, tc.k)

		seen := make([]int, tc.n)
		for _, fold := range folds {
			for _, idx := range fold {
				seen[idx]++
			}
		}
		for idx, count := range seen {
			assert.Equal(t, 1, count, "index %d covered %d times (n=%d k=%d)", idx, count, tc.n, tc.k)
		}

		// Fold sizes differ by at most one.
		for _, fold := range folds {
			assert.InDelta(t, tc.n/tc.k, len(fold), 1)
		}
	}
}

// TestCrossValidate verifies the per-fold results: held-out indices
// partition the time axis and each fold's residual matches its held-out
// target minus its prediction.
func TestCrossValidate(t *testing.T) {
	n := 60
	s := newSelectedSession(t, 5, n, 4)

	folds, err := s.CrossValidate(6, FitOptions{Reg: 0.01, Rescale: true})
	require.NoError(t, err)
	require.Len(t, folds, 6)

	target := s.Target().Rescaled
	covered := 0
	for _, fold := range folds {
		require.Len(t, fold.Prediction, len(fold.Test))
		require.Len(t, fold.Residual, len(fold.Test))
		covered += len(fold.Test)
		for i, idx := range fold.Test {
			assert.InDelta(t, target[idx]-fold.Prediction[i], fold.Residual[i], 1e-12)
		}
	}
	assert.Equal(t, n, covered)

	// Cross-validation must not advance or disturb the session's fit
	// state; each fold solves its own system.
	assert.Nil(t, s.LastFit())
	assert.Equal(t, StagePredictorsSet, s.Stage())
}

// TestCrossValidateParameterChecks verifies the k bounds and the
// rejected option combinations.
func TestCrossValidateParameterChecks(t *testing.T) {
	s := newSelectedSession(t, 5, 30, 4)

	var param *ParamError
	_, err := s.CrossValidate(1, FitOptions{Reg: 0.01, Rescale: true})
	require.ErrorAs(t, err, &param)

	_, err = s.CrossValidate(31, FitOptions{Reg: 0.01, Rescale: true})
	require.ErrorAs(t, err, &param)

	_, err = s.CrossValidate(5, FitOptions{Reg: 0.01, Rescale: true, OverrideY: []float64{1}})
	require.ErrorAs(t, err, &param)

	var prereq *PrerequisiteError
	fresh := NewSession(newTestCube(t, 5, 30))
	_, err = fresh.CrossValidate(5, FitOptions{Reg: 0.01, Rescale: true})
	require.ErrorAs(t, err, &prereq)
}
