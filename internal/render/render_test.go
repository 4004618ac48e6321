package render

import (
	"strings"
	"testing"

	"github.com/agentcell/agentcell/internal/policy"
)

func testDocument(t *testing.T, telegram bool) *policy.Document {
	t.Helper()
	in := policy.Input{
		Provider:       "openrouter",
		Model:          "anthropic/claude-sonnet-4",
		CredentialFile: "/run/secrets/api-key",
		Gateway:        policy.Gateway{Port: 3000, Host: "127.0.0.1", RequirePairing: true},
		CLI:            true,
		Autonomy: policy.AutonomyInput{
			Level:                 policy.LevelSupervised,
			WorkspaceOnly:         true,
			BlockHighRiskCommands: true,
			MaxActionsPerHour:     20,
			MaxCostPerDayCents:    500,
		},
	}
	if telegram {
		in.Telegram = policy.TelegramInput{
			Enable:       true,
			BotTokenFile: "/run/secrets/telegram",
			AllowedUsers: []string{"8593807304"},
		}
	}
	doc, err := policy.Build(policy.ListSpec{
		Commands:       []string{"git", "ls"},
		ToolPackages:   []string{"/usr/bin"},
		ForbiddenPaths: []string{"/etc", "~/.ssh"},
	}, in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return doc
}

func TestRender_Golden(t *testing.T) {
	got := Render(testDocument(t, false)).String()
	want := `default_provider = "openrouter"
default_model = "anthropic/claude-sonnet-4"

[gateway]
port = 3000
host = "127.0.0.1"
require_pairing = true
allow_public_bind = false

[channels_config]
cli = true

[autonomy]
level = "supervised"
workspace_only = true
allowed_commands = ["git", "ls"]
forbidden_paths = ["/etc", "~/.ssh"]
max_actions_per_hour = 20
max_cost_per_day_cents = 500
block_high_risk_commands = true
`
	if got != want {
		t.Errorf("Render mismatch:\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
}

func TestRender_TelegramSection(t *testing.T) {
	got := Render(testDocument(t, true)).String()

	for _, line := range []string{
		"[channels_config.telegram]\n",
		`bot_token = "__AGENTCELL_SECRET_TELEGRAM_BOT_TOKEN__"` + "\n",
		`allowed_users = ["8593807304"]` + "\n",
		"mention_only = false\n",
	} {
		if !strings.Contains(got, line) {
			t.Errorf("artifact missing %q:\n%s", line, got)
		}
	}
	if strings.Index(got, "[channels_config.telegram]") > strings.Index(got, "[autonomy]") {
		t.Error("telegram section should precede autonomy")
	}
}

func TestRender_NoTelegramSectionWhenDisabled(t *testing.T) {
	if strings.Contains(Render(testDocument(t, false)).String(), "telegram") {
		t.Error("disabled telegram channel should not be rendered")
	}
}

func TestRender_NeverContainsSourcePaths(t *testing.T) {
	got := Render(testDocument(t, true)).String()
	for _, p := range []string{"/run/secrets/api-key", "/run/secrets/telegram"} {
		if strings.Contains(got, p) {
			t.Errorf("artifact leaks secret source path %q", p)
		}
	}
}

func TestRender_Deterministic(t *testing.T) {
	doc := testDocument(t, true)
	a, b := Render(doc), Render(doc)
	if a.String() != b.String() {
		t.Error("Render is not deterministic")
	}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("Fingerprint is not deterministic")
	}
}

func TestRoundTrip(t *testing.T) {
	for _, telegram := range []bool{false, true} {
		doc := testDocument(t, telegram)

		parsed, err := Parse(Render(doc))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if !parsed.Equal(Artifactless(doc)) {
			t.Errorf("telegram=%v: round trip mismatch\n got:  %+v\n want: %+v", telegram, parsed, Artifactless(doc))
		}
		if telegram && parsed.Channels.Telegram.BotTokenPlaceholder != policy.Placeholder(policy.SecretTelegramBotToken) {
			t.Errorf("bot token = %q, want placeholder", parsed.Channels.Telegram.BotTokenPlaceholder)
		}
	}
}

func TestRoundTrip_EscapedStrings(t *testing.T) {
	doc := testDocument(t, false)
	doc.Model = "weird \"model\"\\name\twith\ncontrols\x01"

	parsed, err := Parse(Render(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Model != doc.Model {
		t.Errorf("Model = %q, want %q", parsed.Model, doc.Model)
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	data := []byte("default_provider = \"x\"\nsurprise = true\n")
	if _, err := Parse(data); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestParse_RejectsMalformed(t *testing.T) {
	if _, err := Parse([]byte("default_provider = \"unterminated\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestFingerprint_ChangesWithContent(t *testing.T) {
	a := Render(testDocument(t, false))
	b := Render(testDocument(t, true))
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("different artifacts share a fingerprint")
	}
	if len(Fingerprint(a)) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(Fingerprint(a)))
	}
}
