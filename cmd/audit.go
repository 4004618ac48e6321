package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentcell/agentcell/internal/audit"
)

var (
	auditPath   string
	auditLaunch string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit journal",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit journal against its chain and seal",
	Long: `Verify re-hashes every event from genesis and compares the result with
the seal written after each flush. Edited, reordered, truncated and
regenerated journals are reported. With --launch, the events of one launch
are listed after the journal verifies.`,
	RunE: runAuditVerify,
}

var auditLaunchesCmd = &cobra.Command{
	Use:   "launches",
	Short: "List the launches recorded in the audit journal",
	RunE:  runAuditLaunches,
}

func init() {
	auditCmd.PersistentFlags().StringVar(&auditPath, "path", "", "audit journal (default: audit.path from config)")
	auditVerifyCmd.Flags().StringVar(&auditLaunch, "launch", "", "show the events of this launch ID")

	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditLaunchesCmd)
	rootCmd.AddCommand(auditCmd)
}

func auditJournalPath() string {
	if auditPath != "" {
		return auditPath
	}
	return Cfg.Audit.Path
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path := auditJournalPath()
	v, events, err := audit.VerifyEvents(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	if !v.Intact() {
		fmt.Fprintf(out, "%s: %s\n", path, v.Describe())
		if v.Expected != "" {
			fmt.Fprintf(out, "  expected: %s\n", v.Expected)
			fmt.Fprintf(out, "  actual:   %s\n", v.Actual)
		}
		return fmt.Errorf("audit journal %s has been modified", path)
	}

	fmt.Fprintf(out, "%s: %d events, chain intact\n", path, v.Verified)
	switch {
	case !v.Sealed:
		fmt.Fprintln(out, "  note: journal has no seal; truncation cannot be detected")
	case v.Unsealed > 0:
		fmt.Fprintf(out, "  note: %d trailing events written after the last seal\n", v.Unsealed)
	}

	if auditLaunch == "" {
		return nil
	}
	l, ok := audit.FindLaunch(events, auditLaunch)
	if !ok {
		return fmt.Errorf("launch %s not found in %s", auditLaunch, path)
	}
	printLaunchEvents(out, l, events)
	return nil
}

func runAuditLaunches(cmd *cobra.Command, args []string) error {
	path := auditJournalPath()
	events, err := audit.ReadEvents(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LAUNCH\tSTARTED\tUNIT\tOUTCOME")
	for _, l := range audit.IndexLaunches(events) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.ID, l.Started.Format(time.RFC3339), l.Unit, launchOutcome(&l))
	}
	return tw.Flush()
}

func launchOutcome(l *audit.Launch) string {
	switch {
	case l.AbortedAt != "":
		return "aborted at " + l.AbortedAt
	case l.ExitCode != nil:
		return fmt.Sprintf("exit %d", *l.ExitCode)
	default:
		return "running"
	}
}

func printLaunchEvents(w io.Writer, l *audit.Launch, events []audit.Event) {
	fmt.Fprintf(w, "launch %s (%s)\n", l.ID, launchOutcome(l))
	for _, pos := range l.Positions {
		e := events[pos]
		fmt.Fprintf(w, "  %5d  %s  %-20s %s\n", pos, e.Timestamp.Format(time.RFC3339), e.EventType, e.Severity)
	}
}
