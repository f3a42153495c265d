package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syssam/synchro/compiler"
	"github.com/syssam/synchro/compiler/build"
	"github.com/syssam/synchro/compiler/gen"
	"github.com/syssam/synchro/internal/output"
)

// generateFlags holds the flags shared by generate and watch.
type generateFlags struct {
	name   string
	output string
	in     []string
	out    []string
	build  bool
}

func (f *generateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Transformation name (default: the module name)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output directory (env: SYNCHRO_OUTPUT)")
	cmd.Flags().StringArrayVarP(&f.in, "in-metamodel", "i", nil, "Metamodel file of an in-model, once per in-model in declaration order")
	cmd.Flags().StringArrayVarP(&f.out, "out-metamodel", "m", nil, "Metamodel file of an out-model, once per out-model in declaration order")
	cmd.Flags().BoolVar(&f.build, "build", false, "Build the generated project")
	cmd.Flags().Int("workers", 0, "Parallel file rendering workers (env: SYNCHRO_WORKERS)")
	cmd.Flags().String("runtime-dir", "", "Local runtime module directory (env: SYNCHRO_RUNTIME_DIR)")
}

// NewGenerateCmd creates the generate command.
func NewGenerateCmd() *cobra.Command {
	var flags generateFlags
	cmd := &cobra.Command{
		Use:   "generate MODULE",
		Short: "Generate the Go program of a transformation module",
		Long: `Generate compiles a transformation module into a Go project:
one file per rule, the helpers, the metamodels, the entry point and
the build descriptor <name>.mod.

Metamodel files are taken from the module's model bindings unless
given with -i and -m.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runGenerate(cmd.Context(), args[0], &flags)
			return exitError(err)
		},
	}
	flags.register(cmd)
	return cmd
}

// runGenerate generates the project of the module at spec and builds it
// when requested.
func runGenerate(ctx context.Context, spec string, flags *generateFlags) (*gen.Project, error) {
	cfg := getConfig()
	target := flags.output
	if target == "" {
		target = cfg.Output
	}
	opts := append(cfg.GenOptions(), gen.WithLogger(output.Stage(output.StageGenerate)))
	p, err := compiler.Generate(ctx, flags.name, spec, target, flags.in, flags.out, opts...)
	if err != nil {
		return nil, err
	}
	output.Info("generated", "transformation", p.Name, "dir", p.Dir, "files", len(p.Files))
	for i, r := range p.Order {
		output.Debug("creation order", "index", i+1, "rule", r.Name)
	}
	if !flags.build {
		return p, nil
	}
	if err := build.Clean(p.Dir); err != nil {
		return nil, fmt.Errorf("clean %s: %w", p.Dir, err)
	}
	if _, err := build.Build(ctx, p.Descriptor, build.WithLogger(output.Stage(output.StageBuild))); err != nil {
		return nil, err
	}
	return p, nil
}
