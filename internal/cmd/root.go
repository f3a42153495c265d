package cmd

import (
	"github.com/spf13/cobra"

	"github.com/syssam/synchro/internal/config"
	"github.com/syssam/synchro/internal/output"
)

var (
	// Global flags
	configFlag  string
	verboseFlag bool

	// Resolved configuration (loaded during PersistentPreRunE)
	cliConfig *config.Config
)

// NewRootCmd creates the root command of the synchro compiler.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "synchro",
		Short: "Model transformation compiler",
		Long: `synchro compiles a transformation module, with the metamodels of its
in- and out-models, into a standalone Go program.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeGlobals(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file (default: ./synchro.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose output (env: SYNCHRO_VERBOSE)")

	rootCmd.AddCommand(NewGenerateCmd())
	rootCmd.AddCommand(NewBuildCmd())
	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewWatchCmd())
	rootCmd.AddCommand(NewInspectCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// initializeGlobals loads the configuration and sets up logging.
func initializeGlobals(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := loader.Load(configFlag)
	if err != nil {
		return NewExitError(err, ExitGeneralError)
	}
	cliConfig = cfg

	output.SetupLogging(verboseFlag || cfg.Verbose)
	output.Debug("initializing CLI",
		"config", configFlag,
		"output", cfg.Output,
		"runtime", cfg.RuntimePath,
		"go", cfg.GoVersion,
	)
	return nil
}

// getConfig returns the resolved configuration, loading defaults when the
// root hook did not run.
func getConfig() *config.Config {
	if cliConfig == nil {
		cfg, err := config.NewLoader().Load("")
		if err != nil {
			output.Debug("config load error", "error", err)
			cfg = &config.Config{}
		}
		cliConfig = cfg
	}
	return cliConfig
}
