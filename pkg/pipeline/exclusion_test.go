package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSetExclusionRequiresTarget verifies the stage ordering: exclusion
// before target is a prerequisite failure, not a crash.
func TestSetExclusionRequiresTarget(t *testing.T) {
	s := NewSession(newTestCube(t, 5, 20))

	err := s.SetExclusion(1, ExcludeClosest)
	var prereq *PrerequisiteError
	require.ErrorAs(t, err, &prereq)
	assert.Equal(t, StageUnconfigured, s.Stage())
}

// TestExclusionMethods verifies for every method that the eligible mask
// never includes the target pixel and matches the expected geometry.
func TestExclusionMethods(t *testing.T) {
	side := 5
	cases := []struct {
		method       ExclusionMethod
		size         int
		wantEligible int
	}{
		// 3x3 block excluded around (2,2)
		{ExcludeClosest, 1, side*side - 9},
		// 3 full rows + 3 full columns, double-counted center block
		{ExcludeCross, 1, side*side - (15 + 15 - 9)},
		{ExcludeRows, 1, side*side - 15},
		{ExcludeCols, 1, side*side - 15},
		// size 0 still bars the target itself
		{ExcludeClosest, 0, side*side - 1},
	}

	for _, tc := range cases {
		t.Run(tc.method.String(), func(t *testing.T) {
			s := NewSession(newTestCube(t, side, 20))
			require.NoError(t, s.SetTarget(2, 2))
			require.NoError(t, s.SetExclusion(tc.size, tc.method))

			eligible := s.Exclusion().Eligible
			assert.False(t, eligible.At(2, 2), "target pixel must never be eligible")
			assert.Equal(t, tc.wantEligible, eligible.Count())
		})
	}
}

// TestExclusionBoundaryClamp verifies that a region reaching past the
// image edge is clamped rather than wrapped or panicking.
func TestExclusionBoundaryClamp(t *testing.T) {
	side := 4
	s := NewSession(newTestCube(t, side, 20))
	require.NoError(t, s.SetTarget(0, 0))
	require.NoError(t, s.SetExclusion(2, ExcludeClosest))

	// Rows 0-2 x cols 0-2 excluded, nothing wraps to the far edge.
	eligible := s.Exclusion().Eligible
	assert.Equal(t, side*side-9, eligible.Count())
	assert.True(t, eligible.At(3, 3))
	assert.True(t, eligible.At(0, 3))
	assert.False(t, eligible.At(2, 2))
}

// TestExclusionRejectsNegativeSize verifies the size parameter check.
func TestExclusionRejectsNegativeSize(t *testing.T) {
	s := NewSession(newTestCube(t, 5, 20))
	require.NoError(t, s.SetTarget(2, 2))

	err := s.SetExclusion(-1, ExcludeClosest)
	var param *ParamError
	assert.True(t, errors.As(err, &param))
}

// TestParseExclusionMethod verifies the name round-trip used by the
// config surface.
func TestParseExclusionMethod(t *testing.T) {
	for _, m := range []ExclusionMethod{ExcludeClosest, ExcludeCross, ExcludeRows, ExcludeCols} {
		parsed, err := ParseExclusionMethod(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	_, err := ParseExclusionMethod("diagonal")
	assert.Error(t, err)
}
