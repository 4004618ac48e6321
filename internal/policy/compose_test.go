package policy

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestCompose_DefaultsFirstThenNewOverrides(t *testing.T) {
	defaults := ListSpec{Commands: []string{"git", "ls", "cat"}}
	overrides := ListSpec{Commands: []string{"make", "ls", "go"}}

	got, err := Compose(defaults, overrides)
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	want := []string{"git", "ls", "cat", "make", "go"}
	if !reflect.DeepEqual(got.Commands, want) {
		t.Errorf("Commands = %v, want %v", got.Commands, want)
	}
}

func TestCompose_DeduplicatesWithinEachInput(t *testing.T) {
	defaults := ListSpec{ForbiddenPaths: []string{"/etc", "/etc", "/root"}}
	overrides := ListSpec{ForbiddenPaths: []string{"/srv", "/srv", "/etc"}}

	got, err := Compose(defaults, overrides)
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	want := []string{"/etc", "/root", "/srv"}
	if !reflect.DeepEqual(got.ForbiddenPaths, want) {
		t.Errorf("ForbiddenPaths = %v, want %v", got.ForbiddenPaths, want)
	}
}

func TestCompose_Identity(t *testing.T) {
	a := DefaultLists()

	got, err := Compose(a, ListSpec{})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	if !reflect.DeepEqual(got, a) {
		t.Errorf("Compose(a, empty) = %+v, want %+v", got, a)
	}
}

func TestCompose_Idempotent(t *testing.T) {
	a := DefaultLists()
	b := ListSpec{
		Commands:       []string{"make", "git", "go"},
		ToolPackages:   []string{"/opt/tools/bin", "/usr/bin"},
		ForbiddenPaths: []string{"/srv/secrets", "~/.kube"},
	}

	once, err := Compose(a, b)
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	twice, err := Compose(once, b)
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Compose is not idempotent:\n once:  %+v\n twice: %+v", once, twice)
	}
}

func TestCompose_Deterministic(t *testing.T) {
	b := ListSpec{Commands: []string{"z", "y", "x"}}
	first, err := Compose(DefaultLists(), b)
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Compose(DefaultLists(), b)
		if err != nil {
			t.Fatalf("Compose error: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestCompose_DoesNotMutateInputs(t *testing.T) {
	defaults := ListSpec{Commands: []string{"git"}}
	overrides := ListSpec{Commands: []string{"make"}}

	if _, err := Compose(defaults, overrides); err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	if len(defaults.Commands) != 1 || defaults.Commands[0] != "git" {
		t.Errorf("defaults mutated: %v", defaults.Commands)
	}
}

func TestCompose_MalformedEntries(t *testing.T) {
	tests := []struct {
		name      string
		overrides ListSpec
		field     string
		index     int
	}{
		{
			name:      "empty command",
			overrides: ListSpec{Commands: []string{"make", ""}},
			field:     "autonomy.allowed_commands",
			index:     1,
		},
		{
			name:      "command with whitespace",
			overrides: ListSpec{Commands: []string{"rm -rf"}},
			field:     "autonomy.allowed_commands",
			index:     0,
		},
		{
			name:      "relative tool package",
			overrides: ListSpec{ToolPackages: []string{"bin"}},
			field:     "tools.packages",
			index:     0,
		},
		{
			name:      "relative forbidden path",
			overrides: ListSpec{ForbiddenPaths: []string{"/ok", "secrets"}},
			field:     "autonomy.forbidden_paths",
			index:     1,
		},
		{
			name:      "empty forbidden path",
			overrides: ListSpec{ForbiddenPaths: []string{""}},
			field:     "autonomy.forbidden_paths",
			index:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compose(DefaultLists(), tt.overrides)
			if err == nil {
				t.Fatal("expected MalformedEntryError")
			}
			var me *MalformedEntryError
			if !errors.As(err, &me) {
				t.Fatalf("expected *MalformedEntryError, got %T: %v", err, err)
			}
			if me.Field != tt.field {
				t.Errorf("Field = %q, want %q", me.Field, tt.field)
			}
			if me.Index != tt.index {
				t.Errorf("Index = %d, want %d", me.Index, tt.index)
			}
			if me.Source != SourceOverrides {
				t.Errorf("Source = %q, want %q", me.Source, SourceOverrides)
			}
		})
	}
}

func TestCompose_MalformedDefaultNamesSource(t *testing.T) {
	defaults := ListSpec{Commands: []string{"git", "bad cmd"}}
	overrides := ListSpec{Commands: []string{"make", "also bad"}}

	_, err := Compose(defaults, overrides)
	var me *MalformedEntryError
	if !errors.As(err, &me) {
		t.Fatalf("expected *MalformedEntryError, got %v", err)
	}
	if me.Source != SourceDefaults || me.Index != 1 || me.Value != "bad cmd" {
		t.Errorf("got source %q index %d value %q", me.Source, me.Index, me.Value)
	}
	if !strings.Contains(err.Error(), "built-in default") {
		t.Errorf("message does not name the defaults: %q", err.Error())
	}

	_, err = Compose(ListSpec{Commands: []string{"git"}}, overrides)
	if !errors.As(err, &me) {
		t.Fatalf("expected *MalformedEntryError, got %v", err)
	}
	if me.Source != SourceOverrides || me.Index != 1 {
		t.Errorf("got source %q index %d", me.Source, me.Index)
	}
	if strings.Contains(err.Error(), "built-in default") {
		t.Errorf("override error blames the defaults: %q", err.Error())
	}
}

func TestCompose_HomeAnchoredForbiddenPathAccepted(t *testing.T) {
	got, err := Compose(ListSpec{}, ListSpec{ForbiddenPaths: []string{"~/.kube"}})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	if len(got.ForbiddenPaths) != 1 || got.ForbiddenPaths[0] != "~/.kube" {
		t.Errorf("ForbiddenPaths = %v", got.ForbiddenPaths)
	}
}

func TestDefaultLists_ReturnsFreshCopy(t *testing.T) {
	a := DefaultLists()
	a.Commands[0] = "mutated"
	b := DefaultLists()
	if b.Commands[0] == "mutated" {
		t.Error("DefaultLists shares backing storage between calls")
	}
}
