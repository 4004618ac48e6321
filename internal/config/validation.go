package config

import (
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentcell/agentcell/internal/sandbox"
)

// envNamePattern matches a portable environment variable name.
var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// unitNamePattern matches the characters systemd accepts in a unit prefix.
var unitNamePattern = regexp.MustCompile(`^[A-Za-z0-9:_.-]+$`)

// ValidationIssue describes a single validation problem.
type ValidationIssue struct {
	Field   string // dotted config path, e.g. "restart.delay"
	Value   string // the invalid value as a string
	Message string // human-readable description
}

func (i ValidationIssue) String() string {
	if i.Value != "" {
		return fmt.Sprintf("%s: %s (got %q)", i.Field, i.Message, i.Value)
	}
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// ValidationResult collects errors and warnings from config validation.
type ValidationResult struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// String returns a formatted summary of all errors and warnings.
func (r *ValidationResult) String() string {
	if !r.HasErrors() && !r.HasWarnings() {
		return "config validation passed"
	}

	var b strings.Builder
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "ERROR  %s\n", e.String())
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "WARN   %s\n", w.String())
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *ValidationResult) addError(field, value, message string) {
	r.Errors = append(r.Errors, ValidationIssue{Field: field, Value: value, Message: message})
}

func (r *ValidationResult) addWarning(field, value, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Field: field, Value: value, Message: message})
}

// Validate checks the ambient settings: logging, service identity and
// paths, restart policy, resource ceilings, sandbox and listeners. Policy
// invariants are checked by policy.Validate once the document is built.
func Validate(cfg *Config) *ValidationResult {
	r := &ValidationResult{}

	// --- ERROR checks ---

	switch cfg.Logging.Format {
	case "text", "json":
	default:
		r.addError("logging.format", cfg.Logging.Format, "must be \"text\" or \"json\"")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		r.addError("logging.level", cfg.Logging.Level, "must be \"debug\", \"info\", \"warn\", or \"error\"")
	}

	if cfg.Service.Name == "" {
		r.addError("service.name", "", "must not be empty")
	} else if !unitNamePattern.MatchString(cfg.Service.Name) {
		r.addError("service.name", cfg.Service.Name, "must contain only letters, digits, \":\", \"_\", \".\" or \"-\"")
	}

	if cfg.Service.User == "" {
		r.addError("service.user", "", "must not be empty")
	}

	for _, p := range []struct{ field, path string }{
		{"service.state_dir", cfg.Service.StateDir},
		{"service.runtime_dir", cfg.Service.RuntimeDir},
		{"service.binary", cfg.Service.Binary},
	} {
		if p.path == "" {
			r.addError(p.field, "", "must not be empty")
		} else if !filepath.IsAbs(p.path) {
			r.addError(p.field, p.path, "must be an absolute path")
		}
	}

	if cfg.Service.StateDir != "" && cfg.Service.StateDir == cfg.Service.RuntimeDir {
		r.addError("service.runtime_dir", cfg.Service.RuntimeDir, "must differ from service.state_dir")
	}

	if !envNamePattern.MatchString(cfg.Credentials.APIKeyEnv) {
		r.addError("credentials.api_key_env", cfg.Credentials.APIKeyEnv, "must be a valid environment variable name")
	}
	for _, e := range []struct{ field, name string }{
		{"service.workspace_env", cfg.Service.WorkspaceEnv},
		{"service.config_env", cfg.Service.ConfigEnv},
	} {
		if e.name != "" && !envNamePattern.MatchString(e.name) {
			r.addError(e.field, e.name, "must be a valid environment variable name")
		}
	}

	switch cfg.Restart.Mode {
	case "always", "on-failure":
	default:
		r.addError("restart.mode", cfg.Restart.Mode, "must be \"always\" or \"on-failure\"")
	}
	if cfg.Restart.Delay < 0 {
		r.addError("restart.delay", cfg.Restart.Delay.String(), "must not be negative")
	}
	if cfg.Restart.CrashLoopThreshold < 0 {
		r.addError("restart.crash_loop_threshold", strconv.Itoa(cfg.Restart.CrashLoopThreshold), "must not be negative")
	}
	if cfg.Restart.CrashLoopWindow < 0 {
		r.addError("restart.crash_loop_window", cfg.Restart.CrashLoopWindow.String(), "must not be negative")
	}

	if _, err := sandbox.ParseMemoryLimit(cfg.Resources.MemoryMax); err != nil {
		r.addError("resources.memory_max", cfg.Resources.MemoryMax, "must be a systemd size (e.g. \"512M\", \"2G\")")
	}
	if _, err := sandbox.ParseCPUQuota(cfg.Resources.CPUQuota); err != nil {
		r.addError("resources.cpu_quota", cfg.Resources.CPUQuota, "must be a positive percentage (e.g. \"100%\")")
	}
	if cfg.Resources.TasksMax < 0 {
		r.addError("resources.tasks_max", strconv.Itoa(cfg.Resources.TasksMax), "must not be negative")
	}

	if cfg.Sandbox.Backend != "systemd" {
		r.addError("sandbox.backend", cfg.Sandbox.Backend, "must be \"systemd\"")
	}

	if cfg.Credentials.APIKeyFile != "" && !filepath.IsAbs(cfg.Credentials.APIKeyFile) {
		r.addError("credentials.api_key_file", cfg.Credentials.APIKeyFile, "must be an absolute path")
	}

	if cfg.Audit.Enabled {
		if !filepath.IsAbs(cfg.Audit.Path) {
			r.addError("audit.path", cfg.Audit.Path, "must be an absolute path when audit is enabled")
		} else {
			// The agent can write its state and runtime directories.
			for _, d := range []struct{ field, dir string }{
				{"service.state_dir", cfg.Service.StateDir},
				{"service.runtime_dir", cfg.Service.RuntimeDir},
			} {
				if d.dir != "" && pathWithin(cfg.Audit.Path, d.dir) {
					r.addError("audit.path", cfg.Audit.Path, "must not be inside "+d.field+" ("+d.dir+")")
				}
			}
		}
	}

	if cfg.Metrics.Listen != "" {
		if _, port, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			r.addError("metrics.listen", cfg.Metrics.Listen, "must be host:port")
		} else if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			r.addError("metrics.listen", cfg.Metrics.Listen, "port must be between 1 and 65535")
		}
	}

	// --- WARNING checks ---

	if cfg.Service.User == "root" {
		r.addWarning("service.user", cfg.Service.User, "agent runs as root; use a dedicated unprivileged account")
	}

	if cfg.Restart.Delay == 0 {
		r.addWarning("restart.delay", "0s", "zero delay relaunches a crashing agent in a tight loop")
	}

	if cfg.Resources.MemoryMax == "" || cfg.Resources.MemoryMax == "infinity" {
		r.addWarning("resources.memory_max", cfg.Resources.MemoryMax, "no memory ceiling is enforced")
	}
	if cfg.Resources.TasksMax == 0 {
		r.addWarning("resources.tasks_max", "0", "no task ceiling is enforced")
	}

	if cfg.Gateway.AllowPublicBind {
		r.addWarning("gateway.allow_public_bind", "true", "the agent gateway may listen on non-loopback addresses")
	}

	if !cfg.Audit.Enabled {
		r.addWarning("audit.enabled", "false", "launches and restarts will not be audited")
	}

	return r
}

// pathWithin reports whether path is dir or lies below it.
func pathWithin(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
