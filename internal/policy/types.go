package policy

// Autonomy level constants. The level is the trust tier handed to the agent.
const (
	LevelReadOnly   = "readonly"
	LevelSupervised = "supervised"
	LevelFull       = "full"
)

// validLevels is the set of autonomy levels the agent understands.
var validLevels = map[string]bool{
	LevelReadOnly:   true,
	LevelSupervised: true,
	LevelFull:       true,
}

// ListSpec holds the list-valued inputs that are merged by Compose.
type ListSpec struct {
	Commands       []string `yaml:"commands" json:"commands"`
	ToolPackages   []string `yaml:"tool_packages" json:"tool_packages"`
	ForbiddenPaths []string `yaml:"forbidden_paths" json:"forbidden_paths"`
}

// IsEmpty reports whether every list is empty.
func (l ListSpec) IsEmpty() bool {
	return len(l.Commands) == 0 && len(l.ToolPackages) == 0 && len(l.ForbiddenPaths) == 0
}

// Document is the composed policy document. It is built once per
// deployment and treated as immutable afterwards.
type Document struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// CredentialSource is the path of the file holding the primary
	// provider credential. Empty means no source was declared.
	CredentialSource string `json:"credential_source"`

	Gateway  Gateway  `json:"gateway"`
	Channels Channels `json:"channels"`
	Autonomy Autonomy `json:"autonomy"`

	// ToolPackages are directories placed on the agent's PATH.
	ToolPackages []string `json:"tool_packages"`
}

// Gateway holds the agent's local gateway listener settings.
type Gateway struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	RequirePairing  bool   `json:"require_pairing"`
	AllowPublicBind bool   `json:"allow_public_bind"`
}

// Channels holds the enabled chat channels. A nil Telegram means the
// channel is disabled.
type Channels struct {
	CLI      bool             `json:"cli"`
	Telegram *TelegramChannel `json:"telegram,omitempty"`
}

// TelegramChannel is the Telegram channel configuration.
type TelegramChannel struct {
	BotTokenPlaceholder string   `json:"bot_token_placeholder"`
	TokenSource         string   `json:"token_source"`
	AllowedUsers        []string `json:"allowed_users"`
	MentionOnly         bool     `json:"mention_only"`
}

// Autonomy controls how much unsupervised action the agent may take.
type Autonomy struct {
	Level                 string   `json:"level"`
	WorkspaceOnly         bool     `json:"workspace_only"`
	BlockHighRiskCommands bool     `json:"block_high_risk_commands"`
	AllowedCommands       []string `json:"allowed_commands"`
	ForbiddenPaths        []string `json:"forbidden_paths"`
	MaxActionsPerHour     int      `json:"max_actions_per_hour"`
	MaxCostPerDayCents    int      `json:"max_cost_per_day_cents"`
}

// Input is the declarative, operator-facing description that Build turns
// into a Document. Lists hold operator additions only; built-in defaults
// are passed to Build separately.
type Input struct {
	Provider       string
	Model          string
	CredentialFile string

	Gateway  Gateway
	CLI      bool
	Telegram TelegramInput
	Autonomy AutonomyInput

	Lists ListSpec
}

// TelegramInput is the declarative Telegram channel toggle.
type TelegramInput struct {
	Enable       bool
	BotTokenFile string
	AllowedUsers []string
	MentionOnly  bool
}

// AutonomyInput holds the declarative autonomy thresholds.
type AutonomyInput struct {
	Level                 string
	WorkspaceOnly         bool
	BlockHighRiskCommands bool
	MaxActionsPerHour     int
	MaxCostPerDayCents    int
}
