package sandbox

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	credentialIDPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)
	envVarPattern       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Credential is a secret file systemd hands to the unit with
// LoadCredential=. Only the source path leaves agentcell: PID1 reads the
// file and exposes it read-only under $CREDENTIALS_DIRECTORY/<ID>, and the
// confine shim exports it as Env right before exec.
type Credential struct {
	ID     string
	Source string
	Env    string
}

// Binding returns the ENV=ID form passed to the confine shim.
func (c Credential) Binding() string {
	return c.Env + "=" + c.ID
}

// Validate checks the credential can be expressed as a unit property.
func (c Credential) Validate() error {
	if !credentialIDPattern.MatchString(c.ID) {
		return fmt.Errorf("credential id %q is not a valid systemd credential name", c.ID)
	}
	if !filepath.IsAbs(c.Source) {
		return fmt.Errorf("credential %s: source must be an absolute path", c.ID)
	}
	if strings.ContainsAny(c.Source, " \t\n") {
		return fmt.Errorf("credential %s: source path must not contain whitespace", c.ID)
	}
	if !envVarPattern.MatchString(c.Env) {
		return fmt.Errorf("credential %s: %q is not a valid environment variable name", c.ID, c.Env)
	}
	return nil
}

// ParseCredentialBinding parses the ENV=ID form produced by Binding.
func ParseCredentialBinding(s string) (Credential, error) {
	env, id, ok := strings.Cut(s, "=")
	if !ok || !envVarPattern.MatchString(env) || !credentialIDPattern.MatchString(id) {
		return Credential{}, fmt.Errorf("malformed credential binding %q, want ENV=id", s)
	}
	return Credential{ID: id, Env: env}, nil
}
