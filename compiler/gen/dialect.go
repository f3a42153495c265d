package gen

import "github.com/dave/jennifer/jen"

// RuleGenerator generates per-rule code.
// It is called once per rule, in creation order.
type RuleGenerator interface {
	// GenRule generates the rule file (rule_{name}.go): the runtime rule
	// descriptor, match predicate, creation, bind and apply routines and the
	// lazy entry point.
	GenRule(r *Rule) (*jen.File, error)
}

// ProgramGenerator generates program-level code.
// Each method is called once per generation run.
type ProgramGenerator interface {
	// GenTransformation generates the transformation type, the model role
	// declarations and the rule schedule (transformation.go).
	GenTransformation() (*jen.File, error)
	// GenMetamodels generates the metamodel literals (metamodels.go).
	GenMetamodels() (*jen.File, error)
	// GenHelpers generates the helper accessors (helpers.go).
	GenHelpers() (*jen.File, error)
}

// MinimalDialect is the interface a target dialect must implement.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                    JenniferGenerator                        │
//	│  (Orchestration: scheduling, staging, parallel rendering)   │
//	└─────────────────────────┬───────────────────────────────────┘
//	                          │ uses
//	                          ▼
//	┌─────────────────────────────────────────────────────────────┐
//	│                     MinimalDialect                          │
//	│  (Interface: what each target dialect must implement)       │
//	└─────────────────────────┬───────────────────────────────────┘
//	                          │ implemented by
//	                          ▼
//	                  ┌───────────────┐
//	                  │ gosync.Dialect │
//	                  │ (gen/gosync)   │
//	                  └───────────────┘
//
// Methods return *jen.File containing the generated code, or a
// *GenerationError when an expression cannot be emitted.
type MinimalDialect interface {
	// Name returns the dialect name (e.g., "gosync").
	Name() string
	RuleGenerator
	ProgramGenerator
}

// GeneratorHelper provides helper methods for dialect implementations.
// JenniferGenerator implements this interface, allowing dialect packages
// to use helper methods without importing the full generator.
type GeneratorHelper interface {
	// NewFile creates a new Jennifer file with the standard header comment.
	NewFile(pkg string) *jen.File

	// Annotated returns the annotated rule graph with the final creation
	// order.
	Annotated() *Annotated

	// Config returns the generation config.
	Config() *Config

	// RuntimePkg returns the import path of the runtime package.
	RuntimePkg() string

	// MetamodelPkg returns the import path of the metamodel package.
	MetamodelPkg() string
}
