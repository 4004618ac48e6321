// Package render turns a validated policy document into the agent's TOML
// configuration artifact and parses such artifacts back.
//
// The artifact is a template: secret fields hold placeholder tokens and
// are resolved only by the secret materializer at start time.
package render

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/agentcell/agentcell/internal/policy"
)

// Artifact is a rendered configuration template.
type Artifact []byte

func (a Artifact) String() string { return string(a) }

// Render serializes doc in a fixed key order. The same document always
// renders to the same bytes. Render never sees secret values: the only
// secret-bearing field is emitted as its placeholder token.
func Render(doc *policy.Document) Artifact {
	var w writer

	w.str("default_provider", doc.Provider)
	w.str("default_model", doc.Model)

	w.section("gateway")
	w.number("port", doc.Gateway.Port)
	w.str("host", doc.Gateway.Host)
	w.flag("require_pairing", doc.Gateway.RequirePairing)
	w.flag("allow_public_bind", doc.Gateway.AllowPublicBind)

	w.section("channels_config")
	w.flag("cli", doc.Channels.CLI)

	if tg := doc.Channels.Telegram; tg != nil {
		w.section("channels_config.telegram")
		w.str("bot_token", tg.BotTokenPlaceholder)
		w.list("allowed_users", tg.AllowedUsers)
		w.flag("mention_only", tg.MentionOnly)
	}

	a := doc.Autonomy
	w.section("autonomy")
	w.str("level", a.Level)
	w.flag("workspace_only", a.WorkspaceOnly)
	w.list("allowed_commands", a.AllowedCommands)
	w.list("forbidden_paths", a.ForbiddenPaths)
	w.number("max_actions_per_hour", a.MaxActionsPerHour)
	w.number("max_cost_per_day_cents", a.MaxCostPerDayCents)
	w.flag("block_high_risk_commands", a.BlockHighRiskCommands)

	return Artifact(w.b.String())
}

// Fingerprint returns the hex BLAKE2b-256 digest of the artifact. Because
// the artifact carries placeholders only, the fingerprint is safe to log.
func Fingerprint(a Artifact) string {
	sum := blake2b.Sum256(a)
	return hex.EncodeToString(sum[:])
}

type writer struct {
	b strings.Builder
}

func (w *writer) section(name string) {
	if w.b.Len() > 0 {
		w.b.WriteByte('\n')
	}
	w.b.WriteString("[" + name + "]\n")
}

func (w *writer) str(key, v string) {
	w.b.WriteString(key + " = " + QuoteString(v) + "\n")
}

func (w *writer) number(key string, v int) {
	w.b.WriteString(key + " = " + strconv.Itoa(v) + "\n")
}

func (w *writer) flag(key string, v bool) {
	w.b.WriteString(key + " = " + strconv.FormatBool(v) + "\n")
}

func (w *writer) list(key string, vs []string) {
	quoted := make([]string, len(vs))
	for i, v := range vs {
		quoted[i] = QuoteString(v)
	}
	w.b.WriteString(key + " = [" + strings.Join(quoted, ", ") + "]\n")
}
