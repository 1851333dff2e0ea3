// Package pipeline implements systematics-removal photometry on a
// time-series image cube: the brightness of a target pixel is modeled as
// a regularized linear combination of predictor pixels elsewhere in the
// field, optionally plus low-order polynomial trend terms. Predictor
// pixels share the instrument's systematics but not the target's
// astrophysical signal, so the fit captures the systematics and the
// residual keeps the signal.
//
// A Session advances through explicit stages: SetTarget, SetExclusion,
// and SetPredictors must run in that order before Fit. CrossValidate and
// SigmaClip wrap Fit, and the batch operations re-run the whole chain
// per pixel. Out-of-order calls return *PrerequisiteError.
//
// A Session is single-owner: fits mutate shared state, so concurrent
// calls against one session are not supported. The batch driver runs
// each pixel on its own session clone.
package pipeline

import (
	"log"
	"os"

	"cpmphot/pkg/cube"
)

// Stage identifies how far a session has advanced through the
// target -> exclusion -> predictors -> fit chain.
type Stage int

const (
	StageUnconfigured Stage = iota
	StageTargetSet
	StageExclusionSet
	StagePredictorsSet
	StageFitted
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageUnconfigured:
		return "unconfigured"
	case StageTargetSet:
		return "target set"
	case StageExclusionSet:
		return "exclusion set"
	case StagePredictorsSet:
		return "predictors set"
	case StageFitted:
		return "fitted"
	default:
		return "unknown"
	}
}

// Session is a single-owner photometry pipeline over one image cube.
// The cube and the trend basis are immutable once set and shared by
// batch clones; everything else is per-target state.
type Session struct {
	cube  *cube.Cube
	trend *TrendBasis

	logger  *log.Logger
	Verbose bool

	target     *Target
	exclusion  *Exclusion
	predictors *PredictorSet
	fit        *FitResult

	// batch outputs, flat [time, row, col] like the cube
	predicted []float64
	diff      []float64
	fullFrame bool
}

// NewSession creates a pipeline session over the given cube.
func NewSession(c *cube.Cube) *Session {
	return &Session{
		cube:   c,
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// SetLogger replaces the logger used for progress and warnings.
func (s *Session) SetLogger(l *log.Logger) {
	s.logger = l
}

// Cube returns the image cube the session operates on.
func (s *Session) Cube() *cube.Cube {
	return s.cube
}

// Stage reports how far the session has advanced.
func (s *Session) Stage() Stage {
	switch {
	case s.fit != nil:
		return StageFitted
	case s.predictors != nil:
		return StagePredictorsSet
	case s.exclusion != nil:
		return StageExclusionSet
	case s.target != nil:
		return StageTargetSet
	default:
		return StageUnconfigured
	}
}

// Target returns the current target stage record, or nil before SetTarget.
func (s *Session) Target() *Target { return s.target }

// Exclusion returns the current exclusion stage record, or nil before
// SetExclusion.
func (s *Session) Exclusion() *Exclusion { return s.exclusion }

// Predictors returns the current predictor stage record, or nil before
// SetPredictors.
func (s *Session) Predictors() *PredictorSet { return s.predictors }

// LastFit returns the current fit record, or nil before the first Fit
// call.
func (s *Session) LastFit() *FitResult { return s.fit }

// Predicted returns the batch-driver prediction cube, or nil before a
// batch run. Pixels skipped by a partial batch are NaN.
func (s *Session) Predicted() []float64 { return s.predicted }

// Diff returns the batch-driver difference cube (rescaled - predicted),
// or nil before a batch run.
func (s *Session) Diff() []float64 { return s.diff }

// Reset clears all per-target and batch state, returning the session to
// the unconfigured stage. The cube and the trend basis are kept.
func (s *Session) Reset() {
	s.target = nil
	s.exclusion = nil
	s.predictors = nil
	s.fit = nil
	s.predicted = nil
	s.diff = nil
	s.fullFrame = false
}

// clone returns a fresh session sharing the immutable cube and trend
// basis but none of the per-target state. Used by the batch driver to
// give each worker isolated selection/fit state.
func (s *Session) clone() *Session {
	return &Session{
		cube:    s.cube,
		trend:   s.trend,
		logger:  s.logger,
		Verbose: false, // workers stay quiet; the driver reports progress
	}
}

func (s *Session) logf(format string, args ...any) {
	if s.Verbose && s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func (s *Session) warnf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf("warning: "+format, args...)
	}
}
