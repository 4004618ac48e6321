package secrets

import (
	"fmt"
	"strings"
)

// SecretReadError reports a secret source that could not be read.
type SecretReadError struct {
	Name string
	Path string
	Err  error
}

func (e *SecretReadError) Error() string {
	return fmt.Sprintf("reading secret %s from %s: %v", e.Name, e.Path, e.Err)
}

func (e *SecretReadError) Unwrap() error { return e.Err }

// EmptySecretError reports a secret source whose content is empty after
// trimming whitespace.
type EmptySecretError struct {
	Name string
	Path string
}

func (e *EmptySecretError) Error() string {
	return fmt.Sprintf("secret %s at %s is empty", e.Name, e.Path)
}

// UnresolvedPlaceholderError reports placeholder tokens left in a
// materialized configuration.
type UnresolvedPlaceholderError struct {
	Tokens []string
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("unresolved secret placeholders in runtime configuration: %s", strings.Join(e.Tokens, ", "))
}

// InvalidSecretError reports a secret source whose content cannot be
// passed through unchanged. The content itself is never included.
type InvalidSecretError struct {
	Name   string
	Path   string
	Reason string
}

func (e *InvalidSecretError) Error() string {
	return fmt.Sprintf("secret %s at %s: %s", e.Name, e.Path, e.Reason)
}
