package synchro

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for runtime failures.
var (
	// ErrUnknownFeature is returned when a feature is not declared by a class.
	ErrUnknownFeature = errors.New("synchro: unknown feature")

	// ErrContainmentCycle is returned when an element would contain itself.
	ErrContainmentCycle = errors.New("synchro: containment cycle")

	// ErrModel is returned when a model file cannot be read or written.
	ErrModel = errors.New("synchro: model error")

	// ErrTransform is returned when rule evaluation fails.
	ErrTransform = errors.New("synchro: transformation failed")
)

// FeatureError represents access to an undeclared feature.
type FeatureError struct {
	Class   string
	Feature string
}

// Error returns the error string.
func (e *FeatureError) Error() string {
	return fmt.Sprintf("synchro: %s has no feature %q", e.Class, e.Feature)
}

// Is reports whether the target error matches FeatureError.
func (e *FeatureError) Is(err error) bool {
	return err == ErrUnknownFeature
}

// ContainmentError represents an attempt to nest an element under itself.
type ContainmentError struct {
	Parent string
	Child  string
}

// Error returns the error string.
func (e *ContainmentError) Error() string {
	return fmt.Sprintf("synchro: containing %s under %s creates a cycle", e.Child, e.Parent)
}

// Is reports whether the target error matches ContainmentError.
func (e *ContainmentError) Is(err error) bool {
	return err == ErrContainmentCycle
}

// ModelError wraps a failure to load or save a model file.
type ModelError struct {
	Role string // Model role
	Path string // File path
	Op   string // "load" or "save"
	Err  error  // Underlying error
}

// Error returns the error string.
func (e *ModelError) Error() string {
	var b strings.Builder
	b.WriteString("synchro: ")
	b.WriteString(e.Op)
	b.WriteString(" model")
	if e.Role != "" {
		b.WriteString(" ")
		b.WriteString(e.Role)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ModelError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ModelError.
func (e *ModelError) Is(err error) bool {
	return err == ErrModel
}

// NewModelError returns a new ModelError.
func NewModelError(op, role, path string, err error) *ModelError {
	return &ModelError{Op: op, Role: role, Path: path, Err: err}
}

// IsModelError returns true if the error is a ModelError.
func IsModelError(err error) bool {
	if err == nil {
		return false
	}
	var e *ModelError
	return errors.As(err, &e)
}

// RuleError wraps a failure while evaluating a rule or helper.
type RuleError struct {
	Rule    string // Rule or helper name
	Element string // Source or target element, if known
	Err     error  // Underlying error
}

// Error returns the error string.
func (e *RuleError) Error() string {
	var b strings.Builder
	b.WriteString("synchro: ")
	if e.Rule != "" {
		b.WriteString("rule ")
		b.WriteString(e.Rule)
		b.WriteString(": ")
	}
	if e.Element != "" {
		b.WriteString(e.Element)
		b.WriteString(": ")
	}
	b.WriteString(e.Err.Error())
	return b.String()
}

// Unwrap returns the underlying error.
func (e *RuleError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches RuleError.
func (e *RuleError) Is(err error) bool {
	return err == ErrTransform
}

// IsRuleError returns true if the error is a RuleError.
func IsRuleError(err error) bool {
	if err == nil {
		return false
	}
	var e *RuleError
	return errors.As(err, &e)
}

// UsageError reports a wrong number of model paths on the command line.
type UsageError struct {
	Want []string // Expected roles, in-roles first
	Got  int
}

// Error returns the error string.
func (e *UsageError) Error() string {
	return fmt.Sprintf("synchro: expected %d model paths (%s), got %d", len(e.Want), strings.Join(e.Want, " "), e.Got)
}
