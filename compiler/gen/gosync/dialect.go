// Package gosync provides the Go synchronization program dialect for the
// Jennifer generator.
//
// Usage:
//
//	import (
//	    "github.com/syssam/synchro/compiler/gen"
//	    "github.com/syssam/synchro/compiler/gen/gosync"
//	)
//
//	generator := gen.NewJenniferGenerator(annotated, config)
//	generator.WithDialect(gosync.NewDialect(generator))
//	project, err := generator.Generate(ctx)
//
// Generated code structure:
//
//	{target}/
//	├── main.go             # Entry point
//	├── transformation.go   # transformation type, roles and schedule
//	├── metamodels.go       # Metamodel literals
//	├── helpers.go          # attr*/op* helper accessors
//	└── rule_{name}.go      # rule*, match*, create*, bind*, apply*, lazy*
package gosync

import (
	"context"

	"github.com/dave/jennifer/jen"

	"github.com/syssam/synchro/compiler/gen"
)

// Generate is a convenience function to generate a Go synchronization
// program for a with the Jennifer generator. This is the recommended entry
// point for code generation.
//
// Example:
//
//	import "github.com/syssam/synchro/compiler/gen/gosync"
//	project, err := gosync.Generate(ctx, annotated, config)
func Generate(ctx context.Context, a *gen.Annotated, cfg *gen.Config) (*gen.Project, error) {
	if cfg == nil || cfg.Target == "" {
		return nil, gen.NewConfigError("Target", nil, "missing target directory in config")
	}
	generator := gen.NewJenniferGenerator(a, cfg)
	generator.WithDialect(NewDialect(generator))
	return generator.Generate(ctx)
}

// Dialect implements gen.MinimalDialect for Go programs running on the
// synchro runtime.
//
// Generated programs:
//   - create target elements rule by rule, in creation order
//   - bind target features once every element exists
//   - memoize helper attributes per context element
//   - create the targets of a lazy rule once per source tuple
type Dialect struct {
	helper gen.GeneratorHelper
}

// NewDialect creates a new gosync dialect generator.
// The helper parameter should be a *gen.JenniferGenerator.
func NewDialect(helper gen.GeneratorHelper) *Dialect {
	return &Dialect{helper: helper}
}

// Name returns the dialect name.
func (d *Dialect) Name() string {
	return "gosync"
}

// =============================================================================
// Per-rule generation methods
// =============================================================================

// GenRule generates the rule file (rule_{name}.go).
func (d *Dialect) GenRule(r *gen.Rule) (*jen.File, error) {
	return genRule(d.helper, r)
}

// =============================================================================
// Program-level generation methods
// =============================================================================

// GenTransformation generates the transformation type (transformation.go).
func (d *Dialect) GenTransformation() (*jen.File, error) {
	return genTransformation(d.helper)
}

// GenMetamodels generates the metamodel literals (metamodels.go).
func (d *Dialect) GenMetamodels() (*jen.File, error) {
	return genMetamodels(d.helper)
}

// GenHelpers generates the helper accessors (helpers.go).
func (d *Dialect) GenHelpers() (*jen.File, error) {
	return genHelpers(d.helper)
}

// Compile-time check that Dialect implements gen.MinimalDialect.
var _ gen.MinimalDialect = (*Dialect)(nil)
