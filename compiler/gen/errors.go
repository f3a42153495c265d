package gen

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the compiler phases.
var (
	// ErrParse indicates an invalid module: syntax or declaration error.
	ErrParse = errors.New("synchro: parse error")
	// ErrResolution indicates a dependency or reference resolution error.
	ErrResolution = errors.New("synchro: resolution error")
	// ErrGeneration indicates a code generation failure.
	ErrGeneration = errors.New("synchro: code generation failed")
	// ErrMissingConfig indicates a configuration error.
	ErrMissingConfig = errors.New("synchro: invalid configuration")
)

// ErrorKind classifies compiler errors within their phase.
type ErrorKind string

// Parse error kinds.
const (
	KindSyntax               ErrorKind = "Syntax"
	KindUnknownModelRole     ErrorKind = "UnknownModelRole"
	KindDuplicateDeclaration ErrorKind = "DuplicateDeclaration"
	KindMissingModel         ErrorKind = "MissingModel"
	KindUnknownMetamodel     ErrorKind = "UnknownMetamodel"
)

// Resolution error kinds.
const (
	KindInheritanceCycle   ErrorKind = "InheritanceCycle"
	KindUnknownHelper      ErrorKind = "UnknownHelper"
	KindUnknownRule        ErrorKind = "UnknownRule"
	KindUnknownType        ErrorKind = "UnknownType"
	KindInvalidInheritance ErrorKind = "InvalidInheritance"
	KindAmbiguousModelRole ErrorKind = "AmbiguousModelRole"
	KindModelMismatch      ErrorKind = "ModelMismatch"
	KindDependencyCycle    ErrorKind = "DependencyCycle"
	KindUnknownVariable    ErrorKind = "UnknownVariable"

	// KindUnsupportedExpression is an expression node the typer does not
	// know, produced by a front end other than compiler/load.
	KindUnsupportedExpression ErrorKind = "UnsupportedExpression"
)

// Generation error kinds.
const (
	KindFeatureResolution ErrorKind = "FeatureResolution"
	KindContainmentCycle  ErrorKind = "ContainmentCycle"
	KindNameConflict      ErrorKind = "NameConflict"
	KindIO                ErrorKind = "IO"
)

// compilerError is the shared shape of the phase errors.
type compilerError struct {
	Kind    ErrorKind
	Element string // Rule, helper or role name
	Pos     string // Source position, if known
	Message string
	Cause   error
}

func (e *compilerError) format(phase string) string {
	var b strings.Builder
	b.WriteString("synchro: ")
	b.WriteString(phase)
	if e.Kind != "" {
		fmt.Fprintf(&b, " (%s)", e.Kind)
	}
	if e.Pos != "" {
		b.WriteString(" at ")
		b.WriteString(e.Pos)
	}
	if e.Element != "" {
		b.WriteString(" in ")
		b.WriteString(e.Element)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// ParseError represents an invalid module.
type ParseError compilerError

// Error implements the error interface.
func (e *ParseError) Error() string {
	return (*compilerError)(e).format("parse error")
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches the sentinel error for ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// NewParseError creates a new ParseError.
func NewParseError(kind ErrorKind, element, message string, cause error) *ParseError {
	return &ParseError{Kind: kind, Element: element, Message: message, Cause: cause}
}

// ResolutionError represents a failure to resolve the rule graph.
type ResolutionError compilerError

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	return (*compilerError)(e).format("resolution error")
}

// Unwrap returns the underlying error.
func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches the sentinel error for ResolutionError.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolution
}

// NewResolutionError creates a new ResolutionError.
func NewResolutionError(kind ErrorKind, element, message string, cause error) *ResolutionError {
	return &ResolutionError{Kind: kind, Element: element, Message: message, Cause: cause}
}

// GenerationError represents a code generation error.
type GenerationError compilerError

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return (*compilerError)(e).format("generation error")
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches the sentinel error for GenerationError.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

// NewGenerationError creates a new GenerationError.
func NewGenerationError(kind ErrorKind, element, message string, cause error) *GenerationError {
	return &GenerationError{Kind: kind, Element: element, Message: message, Cause: cause}
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Option  string
	Value   any
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("synchro: config error for %q (value: %v): %s", e.Option, e.Value, e.Message)
	}
	return fmt.Sprintf("synchro: config error for %q: %s", e.Option, e.Message)
}

// Is reports whether the target matches the sentinel error for ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrMissingConfig
}

// NewConfigError creates a new ConfigError.
func NewConfigError(option string, value any, message string) *ConfigError {
	return &ConfigError{
		Option:  option,
		Value:   value,
		Message: message,
	}
}

// IsParseError reports whether the error is a ParseError.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

// IsResolutionError reports whether the error is a ResolutionError.
func IsResolutionError(err error) bool {
	var resErr *ResolutionError
	return errors.As(err, &resErr)
}

// IsGenerationError reports whether the error is a GenerationError.
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}

// IsConfigError reports whether the error is a ConfigError.
func IsConfigError(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}

// KindOf returns the kind of a compiler error in the chain of err, or the
// empty kind.
func KindOf(err error) ErrorKind {
	var (
		parseErr *ParseError
		resErr   *ResolutionError
		genErr   *GenerationError
	)
	switch {
	case errors.As(err, &parseErr):
		return parseErr.Kind
	case errors.As(err, &resErr):
		return resErr.Kind
	case errors.As(err, &genErr):
		return genErr.Kind
	}
	return ""
}
