package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/agentcell/agentcell/internal/sandbox"
)

var profileFormat string

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the derived sandbox profile",
	Long: `Profile derives the sandbox profile the agent would be launched with
and prints it. The systemd format lists the transient unit properties in
the order they are applied.`,
	RunE: runProfile,
}

func init() {
	profileCmd.Flags().StringVar(&profileFormat, "format", "text", "output format (text, yaml, json or systemd)")

	rootCmd.AddCommand(profileCmd)
}

func runProfile(cmd *cobra.Command, args []string) error {
	doc, _, err := composePolicy(cmd.Context(), Cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	p := sandbox.Derive(doc, Cfg.ServiceSpec(), Cfg.HostLimits())
	if err := p.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch profileFormat {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("encoding profile: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case "systemd":
		for _, prop := range sandbox.SystemdProperties(p) {
			fmt.Fprintln(out, prop)
		}
		return nil
	case "text":
		printProfile(out, p)
		return nil
	default:
		return fmt.Errorf("unknown format %q: must be text, yaml, json or systemd", profileFormat)
	}
}

func printProfile(w io.Writer, p *sandbox.Profile) {
	none := func(vs []string) string {
		if len(vs) == 0 {
			return "(none)"
		}
		return strings.Join(vs, " ")
	}

	fmt.Fprintf(w, "Sandbox profile for %s\n\n", p.Unit)
	fmt.Fprintf(w, "  identity:        %s:%s\n", p.User, p.Group)
	fmt.Fprintf(w, "  capabilities:    %s\n", none(p.Capabilities))
	fmt.Fprintf(w, "  syscalls:        allow %s, deny %s\n", none(p.Syscalls.Allow), none(p.Syscalls.Deny))
	fmt.Fprintf(w, "  namespaces:      restricted=%t\n", p.Namespaces.RestrictAll)
	fmt.Fprintf(w, "  read-only root:  %t\n", p.Filesystem.ReadOnlyRoot)
	fmt.Fprintf(w, "  writable paths:  %s\n", none(p.Filesystem.WritablePaths))
	fmt.Fprintf(w, "  address families: %s (multicast denied=%t)\n", none(p.Network.AllowedFamilies), p.Network.DenyMulticast)
	fmt.Fprintf(w, "  memory max:      %s\n", p.Resources.MemoryMax)
	fmt.Fprintf(w, "  cpu quota:       %s\n", p.Resources.CPUQuota)
	fmt.Fprintf(w, "  tasks max:       %d\n", p.Resources.TasksMax)
	fmt.Fprintf(w, "  W^X:             %t\n", p.MemoryDenyWriteExecute)
	fmt.Fprintf(w, "  landlock:        %t\n", p.Landlock)
	fmt.Fprintf(w, "  working dir:     %s\n", p.WorkingDirectory)
}
