// Package cmd provides the synchro command implementations.
package cmd

// Exit codes of the synchro command.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitParseError indicates an invalid module or metamodel binding.
	ExitParseError = 2

	// ExitResolutionError indicates an unresolvable rule graph.
	ExitResolutionError = 3

	// ExitGenerationError indicates code generation failed.
	ExitGenerationError = 4

	// ExitBuildError indicates the generated project failed to compile.
	ExitBuildError = 5

	// ExitExecutionError indicates the generated program failed.
	ExitExecutionError = 6
)
