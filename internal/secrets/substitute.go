package secrets

import (
	"bytes"
	"errors"
	"regexp"

	"github.com/awnumar/memguard"

	"github.com/agentcell/agentcell/internal/policy"
	"github.com/agentcell/agentcell/internal/render"
)

var placeholderPattern = regexp.MustCompile(regexp.QuoteMeta(policy.PlaceholderPrefix) + `[A-Z0-9_]*` + regexp.QuoteMeta(policy.PlaceholderSuffix))

// ErrInvalidRuntimeConfig is returned when the substituted configuration no
// longer parses. The parser error is withheld because it may quote secret
// content.
var ErrInvalidRuntimeConfig = errors.New("materialized configuration is not valid TOML")

// Substitute replaces every placeholder token in template with its secret,
// escaped for a TOML basic string. Environment-only secrets are ignored.
// The result must contain no placeholder and must still parse.
func Substitute(template render.Artifact, r *Resolved) ([]byte, error) {
	out := append([]byte(nil), template...)
	for _, s := range r.Secrets {
		if s.Ref.Placeholder == "" {
			continue
		}
		escaped := []byte(render.EscapeBasic(s.Value()))
		next := bytes.ReplaceAll(out, []byte(s.Ref.Placeholder), escaped)
		memguard.WipeBytes(out)
		memguard.WipeBytes(escaped)
		out = next
	}

	if left := Placeholders(out); len(left) > 0 {
		memguard.WipeBytes(out)
		return nil, &UnresolvedPlaceholderError{Tokens: left}
	}
	if _, err := render.Parse(out); err != nil {
		memguard.WipeBytes(out)
		return nil, ErrInvalidRuntimeConfig
	}
	return out, nil
}

// Placeholders returns the distinct placeholder tokens present in data, in
// order of first appearance.
func Placeholders(data []byte) []string {
	var tokens []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAll(data, -1) {
		tok := string(m)
		if !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	if bytes.Contains(data, []byte(policy.PlaceholderPrefix)) && len(tokens) == 0 {
		tokens = append(tokens, policy.PlaceholderPrefix+"...")
	}
	return tokens
}

// ExportEnv returns NAME=value pairs for environment-consumed secrets.
func ExportEnv(r *Resolved) []string {
	var env []string
	for _, s := range r.Secrets {
		if s.Ref.IsEnv() {
			env = append(env, s.Ref.TargetEnvVar+"="+s.Value())
		}
	}
	return env
}

// EnvNames returns the variable names ExportEnv would set.
func EnvNames(r *Resolved) []string {
	var names []string
	for _, s := range r.Secrets {
		if s.Ref.IsEnv() {
			names = append(names, s.Ref.TargetEnvVar)
		}
	}
	return names
}
