package program

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidContext is returned by CompileBound when the capture
	// context is nil or already closed. The engine is not invoked.
	ErrInvalidContext = errors.New("invalid capture context")
	// ErrCompileRejected is wrapped by every *CompileError.
	ErrCompileRejected = errors.New("filter rejected")
	// ErrReleased is returned when a released Program is used.
	ErrReleased = errors.New("program released")
)

// CompileError carries the diagnostic of the engine that rejected an
// expression, unchanged.
type CompileError struct {
	Expr string
	Msg  string
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%v: %q: %s", ErrCompileRejected, e.Expr, e.Msg)
}

func (e *CompileError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCompileRejected}
	}
	return []error{ErrCompileRejected, e.Err}
}
