package policy

import (
	"log/slog"
	"strings"
)

// Build composes the declarative input with the built-in defaults into a
// Document. Build performs no I/O; secret source paths are recorded, never
// read.
func Build(defaults ListSpec, in Input) (*Document, error) {
	lists, err := Compose(defaults, in.Lists)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Provider:         strings.TrimSpace(in.Provider),
		Model:            strings.TrimSpace(in.Model),
		CredentialSource: strings.TrimSpace(in.CredentialFile),
		Gateway:          in.Gateway,
		Channels:         Channels{CLI: in.CLI},
		Autonomy: Autonomy{
			Level:                 in.Autonomy.Level,
			WorkspaceOnly:         in.Autonomy.WorkspaceOnly,
			BlockHighRiskCommands: in.Autonomy.BlockHighRiskCommands,
			AllowedCommands:       lists.Commands,
			ForbiddenPaths:        lists.ForbiddenPaths,
			MaxActionsPerHour:     in.Autonomy.MaxActionsPerHour,
			MaxCostPerDayCents:    in.Autonomy.MaxCostPerDayCents,
		},
		ToolPackages: lists.ToolPackages,
	}

	if in.Telegram.Enable {
		users, err := mergeList("channels.telegram.allowed_users", nil, in.Telegram.AllowedUsers, checkUser)
		if err != nil {
			return nil, err
		}
		doc.Channels.Telegram = &TelegramChannel{
			BotTokenPlaceholder: Placeholder(SecretTelegramBotToken),
			TokenSource:         strings.TrimSpace(in.Telegram.BotTokenFile),
			AllowedUsers:        users,
			MentionOnly:         in.Telegram.MentionOnly,
		}
	}

	slog.Debug("policy document composed",
		"allowed_commands", len(doc.Autonomy.AllowedCommands),
		"forbidden_paths", len(doc.Autonomy.ForbiddenPaths),
		"tool_packages", len(doc.ToolPackages),
		"telegram", doc.Channels.Telegram != nil,
	)
	return doc, nil
}

func checkUser(s string) string {
	if strings.TrimSpace(s) == "" {
		return "must not be empty"
	}
	return ""
}

// Equal reports whether two documents are identical, including list order.
func (d *Document) Equal(o *Document) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.Provider != o.Provider || d.Model != o.Model || d.CredentialSource != o.CredentialSource {
		return false
	}
	if d.Gateway != o.Gateway || d.Channels.CLI != o.Channels.CLI {
		return false
	}
	if !telegramEqual(d.Channels.Telegram, o.Channels.Telegram) {
		return false
	}
	a, b := d.Autonomy, o.Autonomy
	if a.Level != b.Level || a.WorkspaceOnly != b.WorkspaceOnly ||
		a.BlockHighRiskCommands != b.BlockHighRiskCommands ||
		a.MaxActionsPerHour != b.MaxActionsPerHour ||
		a.MaxCostPerDayCents != b.MaxCostPerDayCents {
		return false
	}
	return stringsEqual(a.AllowedCommands, b.AllowedCommands) &&
		stringsEqual(a.ForbiddenPaths, b.ForbiddenPaths) &&
		stringsEqual(d.ToolPackages, o.ToolPackages)
}

func telegramEqual(a, b *TelegramChannel) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.BotTokenPlaceholder == b.BotTokenPlaceholder &&
		a.TokenSource == b.TokenSource &&
		a.MentionOnly == b.MentionOnly &&
		stringsEqual(a.AllowedUsers, b.AllowedUsers)
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
