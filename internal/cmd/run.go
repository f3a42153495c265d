package cmd

import (
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/syssam/synchro/compiler/build"
	"github.com/syssam/synchro/internal/output"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var (
		workDir string
		inputs  []string
		outputs []string
	)
	cmd := &cobra.Command{
		Use:   "run EXECUTABLE --in MODEL... --out MODEL...",
		Short: "Run a generated program",
		Long: `Run executes a generated program with the in-model paths followed by
the out-model paths, in role declaration order. It fails when the
program exits with an error or an out-model file was not written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(outputs) == 0 {
				return NewExitError(errors.New("at least one --out model is required"), ExitGeneralError)
			}
			exe, err := filepath.Abs(args[0])
			if err != nil {
				return exitError(err)
			}
			if err := build.Run(cmd.Context(), exe, workDir, inputs, outputs, build.WithLogger(output.Stage(output.StageRun))); err != nil {
				return exitError(err)
			}
			output.Info("transformed", "outputs", len(outputs))
			return nil
		},
	}
	cmd.Flags().StringVar(&workDir, "workdir", ".", "Working directory of the program")
	cmd.Flags().StringArrayVar(&inputs, "in", nil, "In-model file, once per in-model role")
	cmd.Flags().StringArrayVar(&outputs, "out", nil, "Out-model file, once per out-model role")
	return cmd
}
