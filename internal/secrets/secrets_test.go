package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentcell/agentcell/internal/policy"
	"github.com/agentcell/agentcell/internal/render"
)

func writeSecret(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("writing secret: %v", err)
	}
	return p
}

func telegramRef(path string) policy.SecretRef {
	return policy.SecretRef{
		Name:        policy.SecretTelegramBotToken,
		SourcePath:  path,
		Placeholder: policy.Placeholder(policy.SecretTelegramBotToken),
	}
}

func apiKeyRef(path string) policy.SecretRef {
	return policy.SecretRef{Name: policy.SecretAPIKey, SourcePath: path, TargetEnvVar: "API_KEY"}
}

func telegramTemplate(t *testing.T) render.Artifact {
	t.Helper()
	doc, err := policy.Build(policy.DefaultLists(), policy.Input{
		Provider:       "openrouter",
		Model:          "m",
		CredentialFile: "/unused",
		Gateway:        policy.Gateway{Port: 3000, Host: "127.0.0.1", RequirePairing: true},
		Telegram:       policy.TelegramInput{Enable: true, BotTokenFile: "/unused", AllowedUsers: []string{"8593807304"}},
		Autonomy:       policy.AutonomyInput{Level: policy.LevelSupervised},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return render.Render(doc)
}

func TestLoadSecrets_WhitespaceOnly(t *testing.T) {
	p := writeSecret(t, t.TempDir(), "tg", " \n\t \n")

	_, err := LoadSecrets([]policy.SecretRef{telegramRef(p)})
	var empty *EmptySecretError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptySecretError, got %v", err)
	}
	if empty.Path != p {
		t.Errorf("Path = %q, want %q", empty.Path, p)
	}
}

func TestLoadSecrets_AbsentFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "missing")

	_, err := LoadSecrets([]policy.SecretRef{telegramRef(p)})
	var readErr *SecretReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("expected SecretReadError, got %v", err)
	}
	if !strings.Contains(err.Error(), p) {
		t.Errorf("error should name the source path, got %q", err.Error())
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should unwrap to ErrNotExist, got %v", err)
	}
}

func TestLoadSecrets_TrimsValue(t *testing.T) {
	p := writeSecret(t, t.TempDir(), "key", "  sk-123\n")

	r, err := LoadSecrets([]policy.SecretRef{apiKeyRef(p)})
	if err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}
	defer r.Destroy()

	if got := r.Secrets[0].Value(); got != "sk-123" {
		t.Errorf("Value = %q, want sk-123", got)
	}
	if r.Secrets[0].Len() != 6 {
		t.Errorf("Len = %d", r.Secrets[0].Len())
	}
}

func TestLoadSecrets_DestroyWipes(t *testing.T) {
	p := writeSecret(t, t.TempDir(), "key", "sk-123")
	r, err := LoadSecrets([]policy.SecretRef{apiKeyRef(p)})
	if err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}
	r.Destroy()
	r.Destroy()
	if r.Secrets[0].Value() != "" {
		t.Error("destroyed secret still readable")
	}
}

func TestSubstitute_ResolvesEveryPlaceholder(t *testing.T) {
	p := writeSecret(t, t.TempDir(), "tg", "123456:ABC-token\n")
	r, err := LoadSecrets([]policy.SecretRef{telegramRef(p)})
	if err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}
	defer r.Destroy()

	out, err := Substitute(telegramTemplate(t), r)
	if err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	if !strings.Contains(string(out), `bot_token = "123456:ABC-token"`) {
		t.Errorf("token not substituted:\n%s", out)
	}
	if left := Placeholders(out); len(left) != 0 {
		t.Errorf("placeholders remain: %v", left)
	}
}

func TestSubstitute_EscapesValue(t *testing.T) {
	p := writeSecret(t, t.TempDir(), "tg", "abc\"\nmention_only = true")
	r, err := LoadSecrets([]policy.SecretRef{telegramRef(p)})
	if err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}
	defer r.Destroy()

	out, err := Substitute(telegramTemplate(t), r)
	if err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	doc, err := render.Parse(out)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Channels.Telegram.MentionOnly {
		t.Error("secret content injected a configuration key")
	}
	if doc.Channels.Telegram.BotTokenPlaceholder != "abc\"\nmention_only = true" {
		t.Errorf("token = %q", doc.Channels.Telegram.BotTokenPlaceholder)
	}
}

func TestSubstitute_UnresolvedPlaceholder(t *testing.T) {
	_, err := Substitute(telegramTemplate(t), &Resolved{})
	var unresolved *UnresolvedPlaceholderError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected UnresolvedPlaceholderError, got %v", err)
	}
	if len(unresolved.Tokens) != 1 || unresolved.Tokens[0] != policy.Placeholder(policy.SecretTelegramBotToken) {
		t.Errorf("Tokens = %v", unresolved.Tokens)
	}
}

func TestExportEnv_OnlyEnvSecrets(t *testing.T) {
	dir := t.TempDir()
	r, err := LoadSecrets([]policy.SecretRef{
		apiKeyRef(writeSecret(t, dir, "key", "sk-1")),
		telegramRef(writeSecret(t, dir, "tg", "tok")),
	})
	if err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}
	defer r.Destroy()

	env := ExportEnv(r)
	if len(env) != 1 || env[0] != "API_KEY=sk-1" {
		t.Errorf("ExportEnv = %v", env)
	}
	if names := EnvNames(r); len(names) != 1 || names[0] != "API_KEY" {
		t.Errorf("EnvNames = %v", names)
	}
}

func TestMaterialize_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	runtime := filepath.Join(dir, "run")
	m := NewMaterializer(runtime)

	refs := []policy.SecretRef{
		apiKeyRef(writeSecret(t, dir, "key", "sk-live")),
		telegramRef(writeSecret(t, dir, "tg", "bot-token-1")),
	}

	res, err := m.Materialize(telegramTemplate(t), refs)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	data, err := os.ReadFile(res.ConfigPath)
	if err != nil {
		t.Fatalf("reading runtime config: %v", err)
	}
	if !strings.Contains(string(data), "bot-token-1") {
		t.Error("runtime config lacks the resolved token")
	}
	if strings.Contains(string(data), policy.PlaceholderPrefix) {
		t.Error("runtime config still contains a placeholder")
	}
	if strings.Contains(string(data), "sk-live") {
		t.Error("environment secret leaked into the runtime config")
	}
	if res.Substituted != 1 || len(res.EnvRefs) != 1 || res.EnvRefs[0] != refs[0] {
		t.Errorf("Result = %+v", res)
	}
	if len(res.EnvNames) != 1 || res.EnvNames[0] != "API_KEY" {
		t.Errorf("EnvNames = %v, want [API_KEY]", res.EnvNames)
	}

	info, err := os.Stat(res.ConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perm = %o, want 600", perm)
	}
	dinfo, err := os.Stat(runtime)
	if err != nil {
		t.Fatal(err)
	}
	if perm := dinfo.Mode().Perm(); perm != 0o700 {
		t.Errorf("runtime dir perm = %o, want 700", perm)
	}
}

func TestMaterialize_OverwritesOnRotation(t *testing.T) {
	dir := t.TempDir()
	m := NewMaterializer(filepath.Join(dir, "run"))
	tokenPath := writeSecret(t, dir, "tg", "old-token")
	refs := []policy.SecretRef{telegramRef(tokenPath)}

	if _, err := m.Materialize(telegramTemplate(t), refs); err != nil {
		t.Fatalf("first Materialize: %v", err)
	}
	writeSecret(t, dir, "tg", "new-token")
	res, err := m.Materialize(telegramTemplate(t), refs)
	if err != nil {
		t.Fatalf("second Materialize: %v", err)
	}

	data, err := os.ReadFile(res.ConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "old-token") {
		t.Error("stale token survived a restart")
	}
	if strings.Count(string(data), "new-token") != 1 {
		t.Errorf("expected exactly one resolved token:\n%s", data)
	}
}

func TestMaterialize_FailureLeavesPreviousCopyUntouched(t *testing.T) {
	dir := t.TempDir()
	m := NewMaterializer(filepath.Join(dir, "run"))
	tokenPath := writeSecret(t, dir, "tg", "good-token")
	refs := []policy.SecretRef{telegramRef(tokenPath)}

	res, err := m.Materialize(telegramTemplate(t), refs)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	before, _ := os.ReadFile(res.ConfigPath)

	writeSecret(t, dir, "tg", "   ")
	_, err = m.Materialize(telegramTemplate(t), refs)
	var empty *EmptySecretError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptySecretError, got %v", err)
	}

	after, _ := os.ReadFile(res.ConfigPath)
	if string(before) != string(after) {
		t.Error("failed materialization modified the runtime config")
	}
}

func TestMaterialize_NoSecretsDeclared(t *testing.T) {
	m := NewMaterializer(filepath.Join(t.TempDir(), "run"))
	doc, err := policy.Build(policy.DefaultLists(), policy.Input{
		Provider: "p",
		Model:    "m",
		Gateway:  policy.Gateway{Port: 1, Host: "127.0.0.1"},
		Autonomy: policy.AutonomyInput{Level: policy.LevelReadOnly},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Materialize(render.Render(doc), nil)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(res.EnvRefs) != 0 || len(res.EnvNames) != 0 || res.Substituted != 0 {
		t.Errorf("Result = %+v", res)
	}
}

func TestCleanup(t *testing.T) {
	m := NewMaterializer(t.TempDir())
	if _, err := m.WriteConfig([]byte("x = 1\n")); err != nil {
		t.Fatal(err)
	}
	if err := m.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(m.ConfigPath()); !os.IsNotExist(err) {
		t.Error("config still present after Cleanup")
	}
	if err := m.Cleanup(); err != nil {
		t.Errorf("second Cleanup: %v", err)
	}
}

func TestLoadSecrets_RejectsInvalidContent(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"invalid utf-8": "abc\xff\xfedef",
		"nul byte":      "abc\x00def",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeSecret(t, dir, strings.ReplaceAll(name, " ", "-"), content)
			_, err := LoadSecrets([]policy.SecretRef{telegramRef(path)})
			var invalid *InvalidSecretError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidSecretError, got %v", err)
			}
			if invalid.Path != path || !strings.Contains(err.Error(), path) {
				t.Errorf("error should name %s: %v", path, err)
			}
		})
	}
}

func TestMaterialize_InvalidSecretIsFatal(t *testing.T) {
	dir := t.TempDir()
	m := NewMaterializer(filepath.Join(dir, "run"))
	refs := []policy.SecretRef{telegramRef(writeSecret(t, dir, "tg", "tok\xffen"))}

	_, err := m.Materialize(telegramTemplate(t), refs)
	var invalid *InvalidSecretError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidSecretError, got %v", err)
	}
	if _, statErr := os.Stat(m.ConfigPath()); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("runtime config written despite invalid secret: %v", statErr)
	}
}

func TestCredentialRef(t *testing.T) {
	ref, err := CredentialRef("/run/credentials/agentcell-x.service", "api_key", "API_KEY")
	if err != nil {
		t.Fatalf("CredentialRef: %v", err)
	}
	want := policy.SecretRef{Name: "api_key", SourcePath: "/run/credentials/agentcell-x.service/api_key", TargetEnvVar: "API_KEY"}
	if ref != want {
		t.Errorf("CredentialRef = %+v, want %+v", ref, want)
	}

	_, err = CredentialRef("", "api_key", "API_KEY")
	var readErr *SecretReadError
	if !errors.As(err, &readErr) || !strings.Contains(err.Error(), CredentialsDirEnv) {
		t.Errorf("empty dir error = %v, want SecretReadError naming %s", err, CredentialsDirEnv)
	}
}

func TestMergeEnv_ReplacesInherited(t *testing.T) {
	dir := t.TempDir()
	refs := []policy.SecretRef{apiKeyRef(writeSecret(t, dir, "key", "sk-new\n"))}

	env, err := MergeEnv([]string{"API_KEY=old", "HOME=/var/lib/agentcell", "API_KEY_FILE=/x"}, refs)
	if err != nil {
		t.Fatalf("MergeEnv: %v", err)
	}
	want := []string{"HOME=/var/lib/agentcell", "API_KEY_FILE=/x", "API_KEY=sk-new"}
	if strings.Join(env, ",") != strings.Join(want, ",") {
		t.Errorf("MergeEnv = %v, want %v", env, want)
	}
}

func TestMergeEnv_EmptyCredentialFails(t *testing.T) {
	dir := t.TempDir()
	refs := []policy.SecretRef{apiKeyRef(writeSecret(t, dir, "key", "\n"))}

	_, err := MergeEnv(nil, refs)
	var empty *EmptySecretError
	if !errors.As(err, &empty) {
		t.Errorf("expected EmptySecretError, got %v", err)
	}
}
