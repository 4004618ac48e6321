package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/agentcell/agentcell/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize the agentcell configuration",
	Long: `Config provides subcommands for the declarative configuration file
(default /etc/agentcell/config.yaml).

Examples:
  agentcell config init
  agentcell config show --format json
  agentcell config validate`,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a commented default configuration file",
	Long:  `Init writes the default configuration. An existing file is never overwritten.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Show prints the configuration after defaults and AGENTCELL_*
environment overrides are applied. Secret values are never part of the
configuration; only their source paths are shown.`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current configuration",
	Long:  `Validate checks the ambient settings (logging, service, restart, resources, sandbox) for errors and warnings.`,
	RunE:  runConfigValidate,
}

var configShowFormat string

func init() {
	configShowCmd.Flags().StringVar(&configShowFormat, "format", "yaml", "output format (yaml or json)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if len(args) == 1 {
		path = args[0]
	}

	written, err := config.WriteDefault(path)
	if err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration at %s\n", written)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch configShowFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(Cfg)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(Cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q: must be yaml or json", configShowFormat)
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	result := config.Validate(Cfg)
	if !result.HasErrors() && !result.HasWarnings() {
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.String())
	if result.HasErrors() {
		return fmt.Errorf("configuration has %d error(s)", len(result.Errors))
	}
	return nil
}
