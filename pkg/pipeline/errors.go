package pipeline

import "fmt"

// PrerequisiteError reports an operation invoked before the setup step
// it depends on. The operation is aborted and no session state changes.
type PrerequisiteError struct {
	// Op is the operation that was refused.
	Op string

	// Missing names the setup step that has to run first.
	Missing string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("pipeline: %s requires %s first", e.Op, e.Missing)
}

// ParamError reports an invalid parameter: out-of-range pixel indices,
// too few eligible predictors, or an unsupported option combination.
type ParamError struct {
	Op  string
	Msg string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("pipeline: %s: %s", e.Op, e.Msg)
}

// NumericalError reports a singular or near-singular regularized
// normal-equations system. It is surfaced to the caller rather than
// coerced; choosing a regularization that keeps the system non-singular
// is the caller's responsibility.
type NumericalError struct {
	Op  string
	Err error
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Op, e.Err)
}

func (e *NumericalError) Unwrap() error {
	return e.Err
}
