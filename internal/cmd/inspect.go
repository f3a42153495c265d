package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syssam/synchro/compiler"
	"github.com/syssam/synchro/compiler/gen"
	"github.com/syssam/synchro/internal/output"
)

// NewInspectCmd creates the inspect command.
func NewInspectCmd() *cobra.Command {
	var in, out []string
	cmd := &cobra.Command{
		Use:   "inspect MODULE",
		Short: "Show the resolved rule graph of a module",
		Long: `Inspect parses and resolves a transformation module without generating
code, and prints its model roles and the rules in creation order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := compiler.Resolve(args[0], in, out, gen.WithLogger(output.Stage(output.StageInspect)))
			if err != nil {
				return exitError(err)
			}
			fmt.Fprint(cmd.OutOrStdout(), gen.Describe(a))
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&in, "in-metamodel", "i", nil, "Metamodel file of an in-model")
	cmd.Flags().StringArrayVarP(&out, "out-metamodel", "m", nil, "Metamodel file of an out-model")
	return cmd
}
