package policy

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// Entry sources for MalformedEntryError.
const (
	SourceDefaults  = "defaults"
	SourceOverrides = "overrides"
)

// MalformedEntryError reports a list entry that cannot be composed.
type MalformedEntryError struct {
	Field string // dotted input path, e.g. "autonomy.forbidden_paths"
	// Source is SourceDefaults or SourceOverrides; Index counts within it.
	Source string
	Index  int
	Value  string
	Reason string
}

func (e *MalformedEntryError) Error() string {
	if e.Source == SourceDefaults {
		return fmt.Sprintf("%s[%d] (built-in default): %s (got %q)", e.Field, e.Index, e.Reason, e.Value)
	}
	return fmt.Sprintf("%s[%d]: %s (got %q)", e.Field, e.Index, e.Reason, e.Value)
}

// entryCheck validates a single list entry and returns a reason when the
// entry is rejected.
type entryCheck func(s string) string

// Compose merges operator overrides into the defaults. For every list the
// result is the defaults followed by the override entries not already
// present, deduplicated on exact match with first occurrence kept.
//
// Compose is pure: identical inputs always produce an identical result,
// Compose(a, ListSpec{}) equals a for an already deduplicated a, and
// Compose(Compose(a, b), b) equals Compose(a, b).
func Compose(defaults, overrides ListSpec) (ListSpec, error) {
	var out ListSpec
	var err error

	out.Commands, err = mergeList("autonomy.allowed_commands", defaults.Commands, overrides.Commands, checkCommand)
	if err != nil {
		return ListSpec{}, err
	}

	out.ToolPackages, err = mergeList("tools.packages", defaults.ToolPackages, overrides.ToolPackages, checkAbsolute)
	if err != nil {
		return ListSpec{}, err
	}

	out.ForbiddenPaths, err = mergeList("autonomy.forbidden_paths", defaults.ForbiddenPaths, overrides.ForbiddenPaths, checkForbiddenPath)
	if err != nil {
		return ListSpec{}, err
	}

	return out, nil
}

// mergeList concatenates base and extra, dropping exact duplicates while
// keeping the first occurrence. Entries from base are validated with the
// same rule as extra; errors record which list the entry came from.
func mergeList(field string, base, extra []string, check entryCheck) ([]string, error) {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))

	add := func(source string, entries []string) error {
		for i, e := range entries {
			if reason := check(e); reason != "" {
				return &MalformedEntryError{Field: field, Source: source, Index: i, Value: e, Reason: reason}
			}
			if seen[e] {
				continue
			}
			seen[e] = true
			out = append(out, e)
		}
		return nil
	}

	if err := add(SourceDefaults, base); err != nil {
		return nil, err
	}
	if err := add(SourceOverrides, extra); err != nil {
		return nil, err
	}
	return out, nil
}

func checkCommand(s string) string {
	if s == "" {
		return "must not be empty"
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return "must be a single command name without whitespace"
	}
	return ""
}

func checkAbsolute(s string) string {
	if s == "" {
		return "must not be empty"
	}
	if !filepath.IsAbs(s) {
		return "must be an absolute path"
	}
	return ""
}

// checkForbiddenPath accepts absolute paths and home-anchored paths
// ("~/..."), which the agent expands against its own home directory.
func checkForbiddenPath(s string) string {
	if s == "" {
		return "must not be empty"
	}
	if filepath.IsAbs(s) || strings.HasPrefix(s, "~/") {
		return ""
	}
	return "must be an absolute or home-anchored (~/) path"
}
