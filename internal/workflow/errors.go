package workflow

import "fmt"

// ValidationError marks input the engine refuses: missing fields, unknown
// enum values, out-of-graph transitions.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) ValidationError {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError marks a request that is well-formed but collides with
// current state: locked versions, stale revisions.
type ConflictError struct {
	Msg string
}

func (e ConflictError) Error() string { return e.Msg }

func conflictf(format string, args ...any) ConflictError {
	return ConflictError{Msg: fmt.Sprintf(format, args...)}
}
