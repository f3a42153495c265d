// Package gen compiles a transformation module into a Go synchronization
// program.
//
// # Architecture
//
// The compilation pipeline follows this flow:
//
//	Module (load.Module, parsed from HCL)
//	        ↓
//	   Graph (validated rule graph, declaration order kept)
//	        ↓
//	   Resolve (roles, inheritance, helper reachability, creation order)
//	        ↓
//	   MinimalDialect (target code, Jennifer)
//	        ↓
//	   Generated project ({target}/)
//
// # Key Types
//
//   - Graph: the rules, helpers and model roles of a module
//   - Annotated: the graph with expression types and the creation order
//   - RuleInfo: merged patterns, inheritance chain and dependencies of a rule
//   - Config: global configuration for code generation
//   - JenniferGenerator: orchestration of emission, staging and publishing
//
// # Error Handling
//
// Every phase reports a structured error carrying its kind:
//
//   - ParseError: invalid module (ErrParse)
//   - ResolutionError: unresolvable reference or ordering (ErrResolution)
//   - GenerationError: code cannot be emitted (ErrGeneration)
//   - ConfigError: invalid configuration (ErrMissingConfig)
//
// Example error handling:
//
//	a, err := gen.Resolve(graph)
//	if gen.IsResolutionError(err) && gen.KindOf(err) == gen.KindInheritanceCycle {
//	    // Handle the cycle
//	}
//
// # Configuration
//
// Configuration is done via the functional options pattern:
//
//	config, err := gen.NewConfig(
//	    gen.WithTarget("./out"),
//	    gen.WithName("Families2Persons"),
//	    gen.WithRuntimeDir("../synchro"),  // Build against a local runtime
//	)
//
// # Usage
//
// The recommended way to generate code is through the gosync package:
//
//	import "github.com/syssam/synchro/compiler/gen/gosync"
//
//	project, err := gosync.Generate(ctx, annotated, config)
//
// # Generated Output
//
// The generator produces the following structure:
//
//	{target}/
//	├── {name}.mod          // Build descriptor
//	├── go.mod              // Same content, for plain go tooling
//	├── main.go             // Entry point: in-paths then out-paths
//	├── transformation.go   // Model roles and the rule schedule
//	├── metamodels.go       // Metamodel literals
//	├── helpers.go          // Helper accessors
//	└── rule_{name}.go      // One file per rule
//
// Generation is all or nothing: files are rendered into a staging directory
// and moved into the target only when every file succeeded.
package gen
