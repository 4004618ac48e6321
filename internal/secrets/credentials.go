package secrets

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/agentcell/agentcell/internal/policy"
)

// CredentialsDirEnv names the directory systemd populates for units with
// LoadCredential= properties.
const CredentialsDirEnv = "CREDENTIALS_DIRECTORY"

// CredentialRef returns the ref for credential id as systemd exposes it
// inside the unit, exported as envVar.
func CredentialRef(dir, id, envVar string) (policy.SecretRef, error) {
	if dir == "" {
		return policy.SecretRef{}, &SecretReadError{
			Name: id,
			Path: "$" + CredentialsDirEnv,
			Err:  errors.New("not set; the unit was started without LoadCredential="),
		}
	}
	return policy.SecretRef{
		Name:         id,
		SourcePath:   filepath.Join(dir, id),
		TargetEnvVar: envVar,
	}, nil
}

// MergeEnv loads the environment secrets in refs and returns env with each
// of them set, replacing inherited entries of the same name. The result
// holds secret values and must only be handed to exec.
func MergeEnv(env []string, refs []policy.SecretRef) ([]string, error) {
	resolved, err := LoadSecrets(refs)
	if err != nil {
		return nil, err
	}
	defer resolved.Destroy()

	names := make(map[string]bool)
	for _, n := range EnvNames(resolved) {
		names[n] = true
	}
	out := make([]string, 0, len(env)+len(names))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if !names[name] {
			out = append(out, kv)
		}
	}
	return append(out, ExportEnv(resolved)...), nil
}
