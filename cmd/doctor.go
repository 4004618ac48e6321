package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentcell/agentcell/internal/doctor"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check host prerequisites and configuration",
	Long: `Doctor runs diagnostic checks to verify that the host can provide
every sandbox primitive (systemd-run, cgroup v2 controllers, seccomp,
landlock when enabled), that the agent binary and secret sources are in
place, and that the policy validates.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().String("format", "text", "output format (text or json)")

	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()

	report := doctor.RunAll(cmd.Context(), Cfg)

	if format == "json" {
		data, err := report.JSON()
		if err != nil {
			return fmt.Errorf("marshalling report: %w", err)
		}
		fmt.Fprintln(out, data)
		if report.HasFailures() {
			return fmt.Errorf("doctor found failures")
		}
		return nil
	}

	fmt.Fprintln(out, "agentcell doctor")
	fmt.Fprintln(out)

	for _, r := range report.Results {
		var indicator string
		switch r.Status {
		case "pass":
			indicator = "[OK]  "
		case "warn":
			indicator = "[WARN]"
		case "fail":
			indicator = "[FAIL]"
		default:
			indicator = "[????]"
		}

		fmt.Fprintf(out, "  %s %s: %s\n", indicator, r.Name, r.Message)
		if r.Remediation != "" && r.Status != "pass" {
			fmt.Fprintf(out, "         Remediation: %s\n", r.Remediation)
		}
	}

	fmt.Fprintln(out)
	if report.HasFailures() {
		fmt.Fprintln(out, "Some checks FAILED. Fix the issues above and run 'agentcell doctor' again.")
		return fmt.Errorf("doctor found failures")
	}

	fmt.Fprintln(out, "All checks passed.")
	return nil
}
