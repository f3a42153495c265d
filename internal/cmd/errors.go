package cmd

import (
	"errors"

	"github.com/syssam/synchro/compiler/build"
	"github.com/syssam/synchro/compiler/gen"
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Err  error
	Code int
	// Printed is set when the command already reported the error.
	Printed bool
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given error and exit code.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{Err: err, Code: code}
}

// ExitCodeFromError determines the appropriate exit code for an error.
func ExitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	switch {
	case errors.Is(err, gen.ErrParse):
		return ExitParseError
	case errors.Is(err, gen.ErrResolution):
		return ExitResolutionError
	case errors.Is(err, gen.ErrGeneration):
		return ExitGenerationError
	case errors.Is(err, build.ErrBuild):
		return ExitBuildError
	case errors.Is(err, build.ErrExecution):
		return ExitExecutionError
	default:
		return ExitGeneralError
	}
}

// exitError attaches the exit code matching err.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	return NewExitError(err, ExitCodeFromError(err))
}
