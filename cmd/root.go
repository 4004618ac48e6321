package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentcell/agentcell/internal/config"
	"github.com/agentcell/agentcell/internal/logging"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// Global flag values.
var (
	cfgFile   string
	verbose   bool
	logFormat string
)

// Cfg holds the loaded configuration, available to all subcommands.
var Cfg *config.Config

// SetVersionInfo is called from main to inject build-time version info.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	buildDate = d
	rootCmd.Version = v
	rootCmd.SetVersionTemplate(fmt.Sprintf("agentcell version {{.Version}} (commit: %s, built: %s)\n", commit, buildDate))
}

var rootCmd = &cobra.Command{
	Use:   "agentcell",
	Short: "agentcell: policy-composed, sandboxed launcher for an autonomous agent",
	Long: `agentcell composes the runtime policy of a long-running agent from
built-in defaults and operator settings, validates it, renders the agent's
configuration with secret placeholders, and runs the agent as a single
sandboxed systemd service with secrets materialized at every start.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		format := Cfg.Logging.Format
		if cmd.Flags().Changed("log-format") {
			format = logFormat
		}
		logging.Setup(format, Cfg.Logging.Level, verbose)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default /etc/agentcell/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format (text or json)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
