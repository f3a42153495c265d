package build

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the build and execution phases.
var (
	// ErrBuild indicates that the generated project failed to compile.
	ErrBuild = errors.New("synchro: build failed")
	// ErrExecution indicates that the generated program failed.
	ErrExecution = errors.New("synchro: execution failed")
)

// BuildError reports a failed build. Output holds the toolchain output
// verbatim.
type BuildError struct {
	Descriptor string
	Output     string
	Err        error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "synchro: build %s", e.Descriptor)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		b.WriteString("\n")
		b.WriteString(out)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the sentinel error for BuildError.
func (e *BuildError) Is(target error) bool {
	return target == ErrBuild
}

// ExecutionError reports a failed run of a generated program. Output holds
// the program output verbatim; Missing lists expected output models that
// were not written.
type ExecutionError struct {
	Executable string
	Args       []string
	ExitCode   int
	Output     string
	Missing    []string
	Err        error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "synchro: run %s", e.Executable)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": output models not written: %s", strings.Join(e.Missing, ", "))
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		b.WriteString("\n")
		b.WriteString(out)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the sentinel error for ExecutionError.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// IsBuildError reports whether the error is a BuildError.
func IsBuildError(err error) bool {
	var buildErr *BuildError
	return errors.As(err, &buildErr)
}

// IsExecutionError reports whether the error is an ExecutionError.
func IsExecutionError(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr)
}
