package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/agentcell/agentcell/internal/policy"
	"github.com/agentcell/agentcell/internal/sandbox"
	"github.com/agentcell/agentcell/internal/secrets"
)

var (
	confineLandlock    bool
	confineWritable    []string
	confineCredentials []string
)

// confineCmd runs inside the transient unit. It must not depend on the
// service configuration, so it skips the root pre-run.
var confineCmd = &cobra.Command{
	Use:    "confine [--landlock] [--writable path]... [--credential ENV=id]... -- binary [args...]",
	Short:  "Export unit credentials, apply the Landlock layer and exec the agent",
	Hidden: true,
	Args:   cobra.MinimumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := credentialEnv(os.Environ(), os.Getenv(secrets.CredentialsDirEnv), confineCredentials)
		if err != nil {
			return err
		}
		return sandbox.Confine(sandbox.ConfineOptions{
			Landlock: confineLandlock,
			Writable: confineWritable,
			Binary:   args[0],
			Args:     args[1:],
			Env:      env,
		})
	},
}

func init() {
	confineCmd.Flags().BoolVar(&confineLandlock, "landlock", false, "restrict the filesystem with Landlock")
	confineCmd.Flags().StringArrayVar(&confineWritable, "writable", nil, "path that keeps write access under Landlock (repeatable)")
	confineCmd.Flags().StringArrayVar(&confineCredentials, "credential", nil, "export unit credential id as ENV (ENV=id, repeatable)")

	rootCmd.AddCommand(confineCmd)
}

// credentialEnv returns env with every bound credential from dir exported.
func credentialEnv(env []string, dir string, bindings []string) ([]string, error) {
	if len(bindings) == 0 {
		return env, nil
	}
	refs := make([]policy.SecretRef, 0, len(bindings))
	for _, b := range bindings {
		c, err := sandbox.ParseCredentialBinding(b)
		if err != nil {
			return nil, err
		}
		ref, err := secrets.CredentialRef(dir, c.ID, c.Env)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return secrets.MergeEnv(env, refs)
}
