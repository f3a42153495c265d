package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/syssam/synchro/compiler/build"
	"github.com/syssam/synchro/internal/output"
)

// NewBuildCmd creates the build command.
func NewBuildCmd() *cobra.Command {
	var goTool string
	cmd := &cobra.Command{
		Use:   "build DESCRIPTOR",
		Short: "Build a generated project",
		Long: `Build compiles the project described by a <name>.mod descriptor into
bin/<name>. Previous build outputs are removed first. On failure the
toolchain output is reported verbatim.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc := args[0]
			if err := build.Clean(filepath.Dir(desc)); err != nil {
				return exitError(fmt.Errorf("clean: %w", err))
			}
			exe, err := build.Build(cmd.Context(), desc, build.WithGoTool(goTool), build.WithLogger(output.Stage(output.StageBuild)))
			if err != nil {
				return exitError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), exe)
			return nil
		},
	}
	cmd.Flags().StringVar(&goTool, "go", "go", "Go command used to build")
	return cmd
}
