// Package secrets resolves secret sources into a private runtime copy of
// the agent configuration and the environment handed to the agent.
//
// File-consumed secrets are substituted into the runtime copy by the
// supervisor. Environment-consumed secrets are only checked there; their
// values are read again inside the unit from the systemd credentials
// directory, so they never pass through a unit property.
package secrets

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"
	"github.com/natefinch/atomic"

	"github.com/agentcell/agentcell/internal/policy"
	"github.com/agentcell/agentcell/internal/render"
)

// DefaultConfigName is the file name of the runtime configuration.
const DefaultConfigName = "config.toml"

// Materializer owns the private runtime directory of one service.
type Materializer struct {
	// RuntimeDir holds the materialized configuration. It is created 0700.
	RuntimeDir string
	// ConfigName defaults to DefaultConfigName.
	ConfigName string
	// UID and GID own the directory and file when non-negative.
	UID, GID int

	Logger *slog.Logger
}

// NewMaterializer returns a Materializer that does not chown.
func NewMaterializer(runtimeDir string) *Materializer {
	return &Materializer{RuntimeDir: runtimeDir, UID: -1, GID: -1}
}

// Result is the output of one successful materialization.
type Result struct {
	ConfigPath string
	// EnvRefs are the environment-consumed secrets, checked readable,
	// non-empty and valid. They carry source paths, never values.
	EnvRefs []policy.SecretRef
	// EnvNames lists the variables EnvRefs set, safe to log.
	EnvNames []string
	// Substituted counts placeholder secrets written into the config.
	Substituted int
}

// ConfigPath returns the runtime configuration path.
func (m *Materializer) ConfigPath() string {
	name := m.ConfigName
	if name == "" {
		name = DefaultConfigName
	}
	return filepath.Join(m.RuntimeDir, name)
}

func (m *Materializer) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Materialize runs LoadSecrets, Substitute and WriteConfig in order. Any
// failure aborts before the previous runtime copy is touched.
func (m *Materializer) Materialize(template render.Artifact, refs []policy.SecretRef) (*Result, error) {
	resolved, err := LoadSecrets(refs)
	if err != nil {
		return nil, err
	}
	defer resolved.Destroy()

	data, err := Substitute(template, resolved)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(data)

	path, err := m.WriteConfig(data)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ConfigPath: path,
		EnvNames:   EnvNames(resolved),
	}
	for _, s := range resolved.Secrets {
		if s.Ref.IsEnv() {
			res.EnvRefs = append(res.EnvRefs, s.Ref)
		} else {
			res.Substituted++
		}
	}

	m.logger().Info("secrets materialized",
		"config", path,
		"substituted", res.Substituted,
		"env", res.EnvNames,
	)
	return res, nil
}

// WriteConfig atomically replaces the runtime configuration with data. The
// directory is 0700 and the file 0600, both owned by UID/GID when set.
func (m *Materializer) WriteConfig(data []byte) (string, error) {
	if m.RuntimeDir == "" {
		return "", fmt.Errorf("runtime directory is not set")
	}
	if err := os.MkdirAll(m.RuntimeDir, 0o700); err != nil {
		return "", fmt.Errorf("creating runtime directory %s: %w", m.RuntimeDir, err)
	}
	if err := os.Chmod(m.RuntimeDir, 0o700); err != nil {
		return "", fmt.Errorf("restricting runtime directory %s: %w", m.RuntimeDir, err)
	}
	if err := m.chown(m.RuntimeDir); err != nil {
		return "", err
	}

	path := m.ConfigPath()
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("writing runtime configuration %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return "", fmt.Errorf("restricting runtime configuration %s: %w", path, err)
	}
	if err := m.chown(path); err != nil {
		return "", err
	}
	return path, nil
}

// Cleanup removes the runtime configuration.
func (m *Materializer) Cleanup() error {
	err := os.Remove(m.ConfigPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing runtime configuration: %w", err)
	}
	return nil
}

func (m *Materializer) chown(path string) error {
	if m.UID < 0 && m.GID < 0 {
		return nil
	}
	if err := os.Chown(path, m.UID, m.GID); err != nil {
		return fmt.Errorf("chown %s to %d:%d: %w", path, m.UID, m.GID, err)
	}
	return nil
}
