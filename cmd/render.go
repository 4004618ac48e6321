package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/agentcell/agentcell/internal/render"
)

var renderOutput string

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the agent configuration template",
	Long: `Render writes the build-time configuration artifact. Secret fields
carry placeholder tokens; real values are only substituted by 'run' into a
private runtime copy.`,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "write the artifact to this file instead of stdout")

	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	doc, _, err := composePolicy(cmd.Context(), Cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	artifact := render.Render(doc)
	if renderOutput == "" {
		_, err := cmd.OutOrStdout().Write(artifact)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(renderOutput), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(renderOutput), err)
	}
	if err := atomic.WriteFile(renderOutput, bytes.NewReader(artifact)); err != nil {
		return fmt.Errorf("writing %s: %w", renderOutput, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (blake2b-256 %s)\n", renderOutput, render.Fingerprint(artifact))
	return nil
}
