package render

import (
	"bytes"
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/agentcell/agentcell/internal/policy"
)

type artifactFile struct {
	DefaultProvider string          `toml:"default_provider"`
	DefaultModel    string          `toml:"default_model"`
	Gateway         artifactGateway `toml:"gateway"`
	Channels        artifactChans   `toml:"channels_config"`
	Autonomy        artifactAuto    `toml:"autonomy"`
}

type artifactGateway struct {
	Port            int    `toml:"port"`
	Host            string `toml:"host"`
	RequirePairing  bool   `toml:"require_pairing"`
	AllowPublicBind bool   `toml:"allow_public_bind"`
}

type artifactChans struct {
	CLI      bool              `toml:"cli"`
	Telegram *artifactTelegram `toml:"telegram"`
}

type artifactTelegram struct {
	BotToken     string   `toml:"bot_token"`
	AllowedUsers []string `toml:"allowed_users"`
	MentionOnly  bool     `toml:"mention_only"`
}

type artifactAuto struct {
	Level                 string   `toml:"level"`
	WorkspaceOnly         bool     `toml:"workspace_only"`
	AllowedCommands       []string `toml:"allowed_commands"`
	ForbiddenPaths        []string `toml:"forbidden_paths"`
	MaxActionsPerHour     int      `toml:"max_actions_per_hour"`
	MaxCostPerDayCents    int      `toml:"max_cost_per_day_cents"`
	BlockHighRiskCommands bool     `toml:"block_high_risk_commands"`
}

// Parse decodes an artifact (template or materialized copy) back into a
// document. Unknown keys are rejected. Source paths and tool packages are
// not part of the artifact and come back empty.
func Parse(data []byte) (*policy.Document, error) {
	var f artifactFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing agent configuration: %w", err)
	}

	doc := &policy.Document{
		Provider: f.DefaultProvider,
		Model:    f.DefaultModel,
		Gateway: policy.Gateway{
			Port:            f.Gateway.Port,
			Host:            f.Gateway.Host,
			RequirePairing:  f.Gateway.RequirePairing,
			AllowPublicBind: f.Gateway.AllowPublicBind,
		},
		Channels: policy.Channels{CLI: f.Channels.CLI},
		Autonomy: policy.Autonomy{
			Level:                 f.Autonomy.Level,
			WorkspaceOnly:         f.Autonomy.WorkspaceOnly,
			BlockHighRiskCommands: f.Autonomy.BlockHighRiskCommands,
			AllowedCommands:       f.Autonomy.AllowedCommands,
			ForbiddenPaths:        f.Autonomy.ForbiddenPaths,
			MaxActionsPerHour:     f.Autonomy.MaxActionsPerHour,
			MaxCostPerDayCents:    f.Autonomy.MaxCostPerDayCents,
		},
	}
	if tg := f.Channels.Telegram; tg != nil {
		doc.Channels.Telegram = &policy.TelegramChannel{
			BotTokenPlaceholder: tg.BotToken,
			AllowedUsers:        tg.AllowedUsers,
			MentionOnly:         tg.MentionOnly,
		}
	}
	return doc, nil
}

// Artifactless returns a copy of doc with the fields that Render does not
// emit cleared, so that Parse(Render(doc)) can be compared with it.
func Artifactless(doc *policy.Document) *policy.Document {
	c := *doc
	c.CredentialSource = ""
	c.ToolPackages = nil
	if tg := doc.Channels.Telegram; tg != nil {
		t := *tg
		t.TokenSource = ""
		c.Channels.Telegram = &t
	}
	return &c
}
