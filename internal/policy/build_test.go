package policy

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuild_ComposesOperatorLists(t *testing.T) {
	in := minimalInput()
	in.Lists = ListSpec{
		Commands:       []string{"make", "git"},
		ForbiddenPaths: []string{"/srv/private"},
		ToolPackages:   []string{"/opt/agent/bin"},
	}
	doc := mustBuild(t, in)

	cmds := doc.Autonomy.AllowedCommands
	if cmds[len(cmds)-1] != "make" {
		t.Errorf("new command should be appended last, got %v", cmds)
	}
	count := 0
	for _, c := range cmds {
		if c == "git" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("git appears %d times, want 1", count)
	}
	if doc.ToolPackages[len(doc.ToolPackages)-1] != "/opt/agent/bin" {
		t.Errorf("ToolPackages = %v", doc.ToolPackages)
	}
}

func TestBuild_TelegramPlaceholderAndUsers(t *testing.T) {
	in := minimalInput()
	in.Telegram = TelegramInput{
		Enable:       true,
		BotTokenFile: "/run/secrets/tg",
		AllowedUsers: []string{"8593807304", "8593807304", "42"},
	}
	doc := mustBuild(t, in)

	tg := doc.Channels.Telegram
	if tg == nil {
		t.Fatal("telegram channel should be enabled")
	}
	if tg.BotTokenPlaceholder != Placeholder(SecretTelegramBotToken) {
		t.Errorf("placeholder = %q", tg.BotTokenPlaceholder)
	}
	if !reflect.DeepEqual(tg.AllowedUsers, []string{"8593807304", "42"}) {
		t.Errorf("AllowedUsers = %v", tg.AllowedUsers)
	}
}

func TestBuild_EmptyTelegramUserRejected(t *testing.T) {
	in := minimalInput()
	in.Telegram = TelegramInput{Enable: true, BotTokenFile: "/x", AllowedUsers: []string{"1", " "}}

	_, err := Build(DefaultLists(), in)
	var me *MalformedEntryError
	if !errors.As(err, &me) {
		t.Fatalf("expected MalformedEntryError, got %v", err)
	}
	if me.Field != "channels.telegram.allowed_users" || me.Index != 1 {
		t.Errorf("got field %q index %d", me.Field, me.Index)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	in := minimalInput()
	in.Lists.Commands = []string{"make"}
	a := mustBuild(t, in)
	b := mustBuild(t, in)
	if !a.Equal(b) {
		t.Error("identical inputs produced different documents")
	}
}

func TestSecretRefs(t *testing.T) {
	in := minimalInput()
	in.Telegram = TelegramInput{Enable: true, BotTokenFile: "/run/secrets/tg", AllowedUsers: []string{"1"}}
	doc := mustBuild(t, in)

	refs := doc.SecretRefs("API_KEY")
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(refs))
	}

	api := refs[0]
	if !api.IsEnv() || api.TargetEnvVar != "API_KEY" || api.Placeholder != "" {
		t.Errorf("api key ref = %+v, want env-only", api)
	}

	tg := refs[1]
	if tg.IsEnv() || tg.Placeholder != Placeholder(SecretTelegramBotToken) {
		t.Errorf("telegram ref = %+v, want placeholder-only", tg)
	}
}

func TestSecretRefs_NoneDeclared(t *testing.T) {
	in := minimalInput()
	in.CredentialFile = ""
	if refs := mustBuild(t, in).SecretRefs("API_KEY"); len(refs) != 0 {
		t.Errorf("expected no refs, got %v", refs)
	}
}

func TestPlaceholder(t *testing.T) {
	if got := Placeholder("telegram_bot_token"); got != "__AGENTCELL_SECRET_TELEGRAM_BOT_TOKEN__" {
		t.Errorf("Placeholder = %q", got)
	}
}
