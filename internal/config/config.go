package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/agentcell/agentcell/internal/audit"
)

// DefaultConfigDir holds the service configuration.
const DefaultConfigDir = "/etc/agentcell"

// Config is the top-level declarative input for agentcell.
type Config struct {
	Provider    string            `yaml:"provider" mapstructure:"provider"`
	Model       string            `yaml:"model" mapstructure:"model"`
	Credentials CredentialsConfig `yaml:"credentials" mapstructure:"credentials"`
	Gateway     GatewayConfig     `yaml:"gateway" mapstructure:"gateway"`
	Channels    ChannelsConfig    `yaml:"channels" mapstructure:"channels"`
	Autonomy    AutonomyConfig    `yaml:"autonomy" mapstructure:"autonomy"`
	Tools       ToolsConfig       `yaml:"tools" mapstructure:"tools"`
	Service     ServiceConfig     `yaml:"service" mapstructure:"service"`
	Restart     RestartConfig     `yaml:"restart" mapstructure:"restart"`
	Resources   ResourceConfig    `yaml:"resources" mapstructure:"resources"`
	Sandbox     SandboxConfig     `yaml:"sandbox" mapstructure:"sandbox"`
	Audit       AuditConfig       `yaml:"audit" mapstructure:"audit"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
	Logging     LoggingConfig     `yaml:"logging" mapstructure:"logging"`
}

// CredentialsConfig points at the primary provider credential.
type CredentialsConfig struct {
	APIKeyFile string `yaml:"api_key_file" mapstructure:"api_key_file"`
	APIKeyEnv  string `yaml:"api_key_env" mapstructure:"api_key_env"` // variable the agent reads the key from
}

// GatewayConfig holds the agent's local gateway listener.
type GatewayConfig struct {
	Port            int    `yaml:"port" mapstructure:"port"`
	Host            string `yaml:"host" mapstructure:"host"`
	RequirePairing  bool   `yaml:"require_pairing" mapstructure:"require_pairing"`
	AllowPublicBind bool   `yaml:"allow_public_bind" mapstructure:"allow_public_bind"`
}

// ChannelsConfig toggles the chat channels.
type ChannelsConfig struct {
	CLI      bool           `yaml:"cli" mapstructure:"cli"`
	Telegram TelegramConfig `yaml:"telegram" mapstructure:"telegram"`
}

// TelegramConfig holds the Telegram channel settings.
type TelegramConfig struct {
	Enable       bool     `yaml:"enable" mapstructure:"enable"`
	BotTokenFile string   `yaml:"bot_token_file" mapstructure:"bot_token_file"`
	AllowedUsers []string `yaml:"allowed_users" mapstructure:"allowed_users"`
	MentionOnly  bool     `yaml:"mention_only" mapstructure:"mention_only"`
}

// AutonomyConfig holds the autonomy thresholds and the operator's list
// additions. Built-in defaults are not repeated here.
type AutonomyConfig struct {
	Level                 string   `yaml:"level" mapstructure:"level"`
	WorkspaceOnly         bool     `yaml:"workspace_only" mapstructure:"workspace_only"`
	BlockHighRiskCommands bool     `yaml:"block_high_risk_commands" mapstructure:"block_high_risk_commands"`
	ExtraAllowedCommands  []string `yaml:"extra_allowed_commands" mapstructure:"extra_allowed_commands"`
	ExtraForbiddenPaths   []string `yaml:"extra_forbidden_paths" mapstructure:"extra_forbidden_paths"`
	MaxActionsPerHour     int      `yaml:"max_actions_per_hour" mapstructure:"max_actions_per_hour"`
	MaxCostPerDayCents    int      `yaml:"max_cost_per_day_cents" mapstructure:"max_cost_per_day_cents"`
}

// ToolsConfig lists extra tool package directories for the agent's PATH.
type ToolsConfig struct {
	ExtraPackages []string `yaml:"extra_packages" mapstructure:"extra_packages"`
}

// ServiceConfig describes the single agent service.
type ServiceConfig struct {
	Name         string   `yaml:"name" mapstructure:"name"`
	User         string   `yaml:"user" mapstructure:"user"`
	Group        string   `yaml:"group" mapstructure:"group"`
	StateDir     string   `yaml:"state_dir" mapstructure:"state_dir"`
	RuntimeDir   string   `yaml:"runtime_dir" mapstructure:"runtime_dir"`
	Binary       string   `yaml:"binary" mapstructure:"binary"`
	Args         []string `yaml:"args" mapstructure:"args"` // {config} and {workspace} are expanded
	WorkspaceEnv string   `yaml:"workspace_env" mapstructure:"workspace_env"`
	ConfigEnv    string   `yaml:"config_env" mapstructure:"config_env"`
}

// RestartConfig is the fixed-delay restart policy.
type RestartConfig struct {
	Mode               string        `yaml:"mode" mapstructure:"mode"` // always or on-failure
	Delay              time.Duration `yaml:"delay" mapstructure:"delay"`
	CrashLoopThreshold int           `yaml:"crash_loop_threshold" mapstructure:"crash_loop_threshold"` // 0 = unbounded
	CrashLoopWindow    time.Duration `yaml:"crash_loop_window" mapstructure:"crash_loop_window"`
}

// ResourceConfig holds the host-enforced ceilings.
type ResourceConfig struct {
	MemoryMax string `yaml:"memory_max" mapstructure:"memory_max"`
	CPUQuota  string `yaml:"cpu_quota" mapstructure:"cpu_quota"`
	TasksMax  int    `yaml:"tasks_max" mapstructure:"tasks_max"`
}

// SandboxConfig selects the isolation backend and optional layers.
type SandboxConfig struct {
	Backend           string   `yaml:"backend" mapstructure:"backend"`
	Landlock          bool     `yaml:"landlock" mapstructure:"landlock"`
	AdmissionPolicies []string `yaml:"admission_policies" mapstructure:"admission_policies"` // extra Rego files or dirs
}

// AuditConfig holds the audit log settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// MetricsConfig holds the metrics listener. Empty disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// LoggingConfig holds logging preferences.
type LoggingConfig struct {
	Format string `yaml:"format" mapstructure:"format"` // text or json
	Level  string `yaml:"level" mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "openrouter")
	v.SetDefault("model", "anthropic/claude-sonnet-4")
	v.SetDefault("credentials.api_key_file", "")
	v.SetDefault("credentials.api_key_env", "API_KEY")
	v.SetDefault("gateway.port", 3000)
	v.SetDefault("gateway.host", "127.0.0.1")
	v.SetDefault("gateway.require_pairing", true)
	v.SetDefault("gateway.allow_public_bind", false)
	v.SetDefault("channels.cli", true)
	v.SetDefault("channels.telegram.enable", false)
	v.SetDefault("channels.telegram.bot_token_file", "")
	v.SetDefault("channels.telegram.allowed_users", []string{})
	v.SetDefault("channels.telegram.mention_only", false)
	v.SetDefault("autonomy.level", "supervised")
	v.SetDefault("autonomy.workspace_only", true)
	v.SetDefault("autonomy.block_high_risk_commands", true)
	v.SetDefault("autonomy.extra_allowed_commands", []string{})
	v.SetDefault("autonomy.extra_forbidden_paths", []string{})
	v.SetDefault("autonomy.max_actions_per_hour", 20)
	v.SetDefault("autonomy.max_cost_per_day_cents", 500)
	v.SetDefault("tools.extra_packages", []string{})
	v.SetDefault("service.name", "agentcell")
	v.SetDefault("service.user", "agentcell")
	v.SetDefault("service.group", "agentcell")
	v.SetDefault("service.state_dir", "/var/lib/agentcell")
	v.SetDefault("service.runtime_dir", "/run/agentcell")
	v.SetDefault("service.binary", "/usr/local/bin/zeroclaw")
	v.SetDefault("service.args", []string{"daemon", "--config", "{config}"})
	v.SetDefault("service.workspace_env", "AGENT_WORKSPACE")
	v.SetDefault("service.config_env", "")
	v.SetDefault("restart.mode", "always")
	v.SetDefault("restart.delay", "10s")
	v.SetDefault("restart.crash_loop_threshold", 0)
	v.SetDefault("restart.crash_loop_window", "5m")
	v.SetDefault("resources.memory_max", "1G")
	v.SetDefault("resources.cpu_quota", "100%")
	v.SetDefault("resources.tasks_max", 256)
	v.SetDefault("sandbox.backend", "systemd")
	v.SetDefault("sandbox.landlock", false)
	v.SetDefault("sandbox.admission_policies", []string{})
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path", audit.DefaultPath)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.level", "info")
}

// bindEnvVars binds AGENTCELL_ overrides for nested keys. AutomaticEnv
// only sees keys viper already knows about, so nested ones are explicit.
func bindEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		env := "AGENTCELL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, env)
	}
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir, "config.yaml")
}

// Load reads the configuration from disk, env vars, and defaults. If
// configPath is empty it looks for /etc/agentcell/config.yaml and falls
// back to defaults when that file is absent.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	v.SetEnvPrefix("AGENTCELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(DefaultConfigDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, err
		}
		slog.Debug("no config file found, using defaults", "error", err)
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteDefault creates a default config file at path (or the default
// location if path is empty). It does not overwrite an existing file.
func WriteDefault(path string) (string, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(defaultTemplate), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

const defaultTemplate = `# agentcell configuration
# See: agentcell --help

provider: openrouter
model: anthropic/claude-sonnet-4

credentials:
  api_key_file: /etc/agentcell/secrets/api-key   # required
  api_key_env: API_KEY                             # exported to the agent by name

gateway:
  port: 3000
  host: 127.0.0.1
  require_pairing: true
  allow_public_bind: false

channels:
  cli: true
  telegram:
    enable: false
    bot_token_file: /etc/agentcell/secrets/telegram-bot-token
    allowed_users: []
    mention_only: false

autonomy:
  level: supervised        # readonly, supervised or full
  workspace_only: true
  block_high_risk_commands: true
  extra_allowed_commands: []   # appended to the built-in list
  extra_forbidden_paths: []    # absolute or ~/ paths
  max_actions_per_hour: 20
  max_cost_per_day_cents: 500

tools:
  extra_packages: []       # absolute directories added to the agent's PATH

service:
  name: agentcell
  user: agentcell
  group: agentcell
  state_dir: /var/lib/agentcell
  runtime_dir: /run/agentcell
  binary: /usr/local/bin/zeroclaw
  args: ["daemon", "--config", "{config}"]
  workspace_env: AGENT_WORKSPACE

restart:
  mode: always             # always or on-failure
  delay: 10s
  crash_loop_threshold: 0  # 0 keeps retrying forever
  crash_loop_window: 5m

resources:
  memory_max: 1G
  cpu_quota: 100%
  tasks_max: 256

sandbox:
  backend: systemd
  landlock: false
  admission_policies: []

audit:
  enabled: true
  path: /var/log/agentcell/audit.jsonl

metrics:
  listen: ""               # e.g. 127.0.0.1:9464

logging:
  format: text             # text or json
  level: info
`
