package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compose and validate the agent policy",
	Long: `Validate composes the policy document from the built-in defaults and
the configuration, then checks every invariant and admission rule. All
violations are reported in one pass; the exit status is non-zero if any
are found.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if err := checkConfig(Cfg, out); err != nil {
		return err
	}

	doc, _, err := composePolicy(cmd.Context(), Cfg, out)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Policy is valid.")
	fmt.Fprintf(out, "  provider:          %s (%s)\n", doc.Provider, doc.Model)
	fmt.Fprintf(out, "  autonomy level:    %s\n", doc.Autonomy.Level)
	fmt.Fprintf(out, "  allowed commands:  %d\n", len(doc.Autonomy.AllowedCommands))
	fmt.Fprintf(out, "  forbidden paths:   %d\n", len(doc.Autonomy.ForbiddenPaths))
	fmt.Fprintf(out, "  telegram:          %t\n", doc.Channels.Telegram != nil)
	return nil
}
