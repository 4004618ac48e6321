package config

import (
	"strings"
	"testing"
	"time"
)

func hasIssue(issues []ValidationIssue, field string) bool {
	for _, i := range issues {
		if i.Field == field {
			return true
		}
	}
	return false
}

func TestValidate_DefaultsPass(t *testing.T) {
	r := Validate(loadDefaults(t))
	if r.HasErrors() {
		t.Errorf("defaults should validate, got:\n%s", r)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"empty service name", func(c *Config) { c.Service.Name = "" }, "service.name"},
		{"service name with slash", func(c *Config) { c.Service.Name = "a/b" }, "service.name"},
		{"empty user", func(c *Config) { c.Service.User = "" }, "service.user"},
		{"relative state dir", func(c *Config) { c.Service.StateDir = "state" }, "service.state_dir"},
		{"relative binary", func(c *Config) { c.Service.Binary = "zeroclaw" }, "service.binary"},
		{"shared runtime dir", func(c *Config) { c.Service.RuntimeDir = c.Service.StateDir }, "service.runtime_dir"},
		{"bad api key env", func(c *Config) { c.Credentials.APIKeyEnv = "API-KEY" }, "credentials.api_key_env"},
		{"bad workspace env", func(c *Config) { c.Service.WorkspaceEnv = "1WS" }, "service.workspace_env"},
		{"unknown restart mode", func(c *Config) { c.Restart.Mode = "never" }, "restart.mode"},
		{"negative delay", func(c *Config) { c.Restart.Delay = -time.Second }, "restart.delay"},
		{"negative threshold", func(c *Config) { c.Restart.CrashLoopThreshold = -1 }, "restart.crash_loop_threshold"},
		{"bad memory", func(c *Config) { c.Resources.MemoryMax = "lots" }, "resources.memory_max"},
		{"cpu without percent", func(c *Config) { c.Resources.CPUQuota = "150" }, "resources.cpu_quota"},
		{"negative tasks", func(c *Config) { c.Resources.TasksMax = -1 }, "resources.tasks_max"},
		{"unknown backend", func(c *Config) { c.Sandbox.Backend = "docker" }, "sandbox.backend"},
		{"relative audit path", func(c *Config) { c.Audit.Path = "audit.jsonl" }, "audit.path"},
		{"audit path in state dir", func(c *Config) { c.Audit.Path = "/var/lib/agentcell/audit.jsonl" }, "audit.path"},
		{"audit path in runtime dir", func(c *Config) { c.Audit.Path = c.Service.RuntimeDir + "/logs/audit.jsonl" }, "audit.path"},
		{"relative api key file", func(c *Config) { c.Credentials.APIKeyFile = "secrets/api-key" }, "credentials.api_key_file"},
		{"metrics without port", func(c *Config) { c.Metrics.Listen = "localhost" }, "metrics.listen"},
		{"metrics port range", func(c *Config) { c.Metrics.Listen = ":70000" }, "metrics.listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadDefaults(t)
			tt.mutate(cfg)
			r := Validate(cfg)
			if !hasIssue(r.Errors, tt.field) {
				t.Errorf("expected error on %s, got:\n%s", tt.field, r)
			}
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Service.User = "root"
	cfg.Restart.Delay = 0
	cfg.Resources.TasksMax = 0
	cfg.Gateway.AllowPublicBind = true
	cfg.Audit.Enabled = false

	r := Validate(cfg)
	if r.HasErrors() {
		t.Fatalf("unexpected errors:\n%s", r)
	}
	for _, field := range []string{
		"service.user",
		"restart.delay",
		"resources.tasks_max",
		"gateway.allow_public_bind",
		"audit.enabled",
	} {
		if !hasIssue(r.Warnings, field) {
			t.Errorf("expected warning on %s", field)
		}
	}
}

func TestValidationResult_String(t *testing.T) {
	r := &ValidationResult{}
	if r.String() != "config validation passed" {
		t.Errorf("empty result = %q", r.String())
	}

	r.addError("restart.mode", "never", "must be \"always\" or \"on-failure\"")
	r.addWarning("restart.delay", "0s", "tight loop")
	out := r.String()
	if !strings.Contains(out, "ERROR  restart.mode") || !strings.Contains(out, "WARN   restart.delay") {
		t.Errorf("String() = %q", out)
	}
	if !strings.Contains(out, `(got "never")`) {
		t.Errorf("value missing from %q", out)
	}
}

func TestPathWithin(t *testing.T) {
	tests := []struct {
		path, dir string
		want      bool
	}{
		{"/var/lib/agentcell/audit.jsonl", "/var/lib/agentcell", true},
		{"/var/lib/agentcell", "/var/lib/agentcell/", true},
		{"/var/lib/agentcell/../x/audit.jsonl", "/var/lib/agentcell", false},
		{"/var/lib/agentcell-audit/audit.jsonl", "/var/lib/agentcell", false},
		{"/var/log/agentcell/audit.jsonl", "/var/lib/agentcell", false},
		{"/var/lib/agentcell/..audit", "/var/lib/agentcell", true},
	}
	for _, tt := range tests {
		if got := pathWithin(tt.path, tt.dir); got != tt.want {
			t.Errorf("pathWithin(%q, %q) = %v, want %v", tt.path, tt.dir, got, tt.want)
		}
	}
}
