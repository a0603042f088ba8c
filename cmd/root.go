/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/rpsuite/pkg/buildinfo"
	"github.com/fulmenhq/rpsuite/pkg/config"
	"github.com/fulmenhq/rpsuite/pkg/exitcode"
	"github.com/fulmenhq/rpsuite/pkg/logger"
)

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rpsuite",
		Short: "Workflow engine for DaVinci Resolve post-production tools",
		Long: `rpsuite runs post-production workflow tools against a Resolve project
snapshot. Every run previews or applies its changes, records them in a
transaction ledger and writes a JSON, CSV and HTML report.

Examples:
   rpsuite pack validate packs/spring.yaml       # Validate a rule pack
   rpsuite match logo_v1.png logo_v2.png a.mov   # Rank candidate names
   rpsuite run t1_revision_resolver --snapshot project.json --options opts.json --dry-run
   rpsuite ledger list                           # Show committed transactions`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	// Add global flags
	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().String("home", "", "rpsuite home directory (default $RPS_HOME or ~/.rps)")
	cmd.PersistentFlags().String("config", "", "Config file (default rpsuite.yaml in ., $HOME or <home>/config)")

	cmd.Version = buildinfo.Version()
	cmd.SetVersionTemplate("rpsuite {{.Version}}\n")

	return cmd
}

// registerSubcommands adds all subcommands to the root command.
// This is called from init() for production and can be called explicitly in tests.
func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newHomeCmd())
	cmd.AddCommand(newPackCmd())
	cmd.AddCommand(newMatchCmd())
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newLedgerCmd())
	cmd.AddCommand(newPresetCmd())
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		code := exitCodeFor(err)
		logger.Error("Command execution failed", logger.Err(err), logger.Int("exit_code", code))
		os.Exit(code)
	}
}

func init() {
	// Register all subcommands with the production rootCmd
	registerSubcommands(rootCmd)
}

// loggerConfig builds the logger configuration from the global flags.
func loggerConfig(cmd *cobra.Command) logger.Config {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")

	return logger.Config{
		Level:     logger.ParseLevel(logLevelStr),
		UseColor:  !noColor && logger.ColorSupported(os.Stderr),
		JSON:      jsonLogs,
		Component: "rpsuite",
	}
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	if err := logger.Initialize(loggerConfig(cmd)); err != nil {
		_, _ = os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(exitcode.ConfigError)
	}
	logger.SetOutput(cmd.ErrOrStderr())
}

// loadConfig resolves configuration from --home, --config, RPS_* and the
// config file search path.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	home, _ := cmd.Flags().GetString("home")
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(config.Options{Home: home, File: file})
	if err != nil {
		return nil, &configError{err: err}
	}
	return cfg, nil
}
