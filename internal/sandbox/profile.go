// Package sandbox derives the restricted execution profile for the agent
// and launches it inside a transient systemd service that enforces it.
package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/agentcell/agentcell/internal/policy"
)

// Syscall groups and address families applied to every profile.
var (
	DefaultSyscallAllow    = []string{"@system-service"}
	DefaultSyscallDeny     = []string{"@privileged", "@resources"}
	DefaultAddressFamilies = []string{"AF_UNIX", "AF_INET", "AF_INET6"}
)

// landlockSyscalls must be allowed when the confine layer applies a
// Landlock ruleset inside the unit.
var landlockSyscalls = []string{"landlock_create_ruleset", "landlock_add_rule", "landlock_restrict_self"}

// HostLimits are the resource ceilings declared by the operator.
type HostLimits struct {
	MemoryMax string `json:"memory_max" yaml:"memory_max"`
	CPUQuota  string `json:"cpu_quota" yaml:"cpu_quota"`
	TasksMax  int    `json:"tasks_max" yaml:"tasks_max"`
}

// ServiceSpec is the per-service input to Derive.
type ServiceSpec struct {
	Name       string
	User       string
	Group      string
	StateDir   string
	RuntimeDir string
	Landlock   bool
}

// WorkspaceDir is the agent's working directory inside the state dir.
func (s ServiceSpec) WorkspaceDir() string {
	return filepath.Join(s.StateDir, "workspace")
}

// Profile is the restricted execution profile for one launch.
type Profile struct {
	Unit  string `json:"unit" yaml:"unit"`
	User  string `json:"user" yaml:"user"`
	Group string `json:"group" yaml:"group"`

	// Capabilities is always empty: the agent keeps no capabilities.
	Capabilities []string `json:"capabilities" yaml:"capabilities"`

	Syscalls   Syscalls   `json:"syscalls" yaml:"syscalls"`
	Namespaces Namespaces `json:"namespaces" yaml:"namespaces"`
	Filesystem Filesystem `json:"filesystem" yaml:"filesystem"`
	Network    Network    `json:"network" yaml:"network"`
	Resources  HostLimits `json:"resources" yaml:"resources"`

	// MemoryDenyWriteExecute forbids pages that are writable and
	// executable at once. The agent is a static non-JIT binary.
	MemoryDenyWriteExecute bool `json:"memory_deny_write_execute" yaml:"memory_deny_write_execute"`

	// Landlock adds an in-process filesystem ruleset via the confine step.
	Landlock bool `json:"landlock" yaml:"landlock"`

	WorkingDirectory string   `json:"working_directory" yaml:"working_directory"`
	SearchPath       []string `json:"search_path" yaml:"search_path"`
}

// Syscalls is the seccomp filter: allowed groups, then denied groups.
type Syscalls struct {
	Allow         []string `json:"allow" yaml:"allow"`
	Deny          []string `json:"deny" yaml:"deny"`
	Architectures string   `json:"architectures" yaml:"architectures"`
}

// Namespaces restricts namespace creation. RestrictAll forbids every
// namespace type.
type Namespaces struct {
	RestrictAll bool `json:"restrict_all" yaml:"restrict_all"`
}

// Filesystem describes the agent's view of the filesystem.
type Filesystem struct {
	ReadOnlyRoot   bool     `json:"read_only_root" yaml:"read_only_root"`
	ProtectHome    bool     `json:"protect_home" yaml:"protect_home"`
	PrivateTmp     bool     `json:"private_tmp" yaml:"private_tmp"`
	PrivateDevices bool     `json:"private_devices" yaml:"private_devices"`
	WritablePaths  []string `json:"writable_paths" yaml:"writable_paths"`
}

// Network restricts socket address families.
type Network struct {
	AllowedFamilies []string `json:"allowed_families" yaml:"allowed_families"`
	DenyMulticast   bool     `json:"deny_multicast" yaml:"deny_multicast"`
}

// Derive builds the profile for one launch. It is a pure function of its
// inputs, so every restart gets the same restrictions.
func Derive(doc *policy.Document, svc ServiceSpec, limits HostLimits) *Profile {
	allow := append([]string(nil), DefaultSyscallAllow...)
	if svc.Landlock {
		allow = append(allow, landlockSyscalls...)
	}

	return &Profile{
		Unit:         svc.Name,
		User:         svc.User,
		Group:        svc.Group,
		Capabilities: []string{},
		Syscalls: Syscalls{
			Allow:         allow,
			Deny:          append([]string(nil), DefaultSyscallDeny...),
			Architectures: "native",
		},
		Namespaces: Namespaces{RestrictAll: true},
		Filesystem: Filesystem{
			ReadOnlyRoot:   true,
			ProtectHome:    true,
			PrivateTmp:     true,
			PrivateDevices: true,
			WritablePaths:  []string{svc.StateDir},
		},
		Network: Network{
			AllowedFamilies: append([]string(nil), DefaultAddressFamilies...),
			DenyMulticast:   true,
		},
		Resources:              limits,
		MemoryDenyWriteExecute: true,
		Landlock:               svc.Landlock,
		WorkingDirectory:       svc.WorkspaceDir(),
		SearchPath:             append([]string(nil), doc.ToolPackages...),
	}
}

// Validate checks that the profile can be expressed as unit properties.
func (p *Profile) Validate() error {
	if p.Unit == "" {
		return fmt.Errorf("profile: unit name is empty")
	}
	if len(p.Capabilities) != 0 {
		return fmt.Errorf("profile: capabilities must be empty, got %v", p.Capabilities)
	}
	for _, w := range p.Filesystem.WritablePaths {
		if !filepath.IsAbs(w) {
			return fmt.Errorf("profile: writable path %q is not absolute", w)
		}
	}
	if _, err := ParseMemoryLimit(p.Resources.MemoryMax); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if _, err := ParseCPUQuota(p.Resources.CPUQuota); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if p.Resources.TasksMax < 0 {
		return fmt.Errorf("profile: tasks_max must be non-negative, got %d", p.Resources.TasksMax)
	}
	return nil
}

// ParseMemoryLimit parses a systemd memory size ("512M", "2G"). Empty and
// "infinity" mean no limit and return 0.
func ParseMemoryLimit(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "infinity" {
		return 0, nil
	}

	var multiplier uint64 = 1
	numStr := s
	switch s[len(s)-1] {
	case 'K':
		multiplier = 1 << 10
	case 'M':
		multiplier = 1 << 20
	case 'G':
		multiplier = 1 << 30
	case 'T':
		multiplier = 1 << 40
	}
	if multiplier != 1 {
		numStr = s[:len(s)-1]
	}

	var value uint64
	if _, err := fmt.Sscanf(numStr, "%d", &value); err != nil || fmt.Sprint(value) != numStr {
		return 0, fmt.Errorf("invalid memory limit %q", s)
	}
	return value * multiplier, nil
}

// ParseCPUQuota parses a percentage quota ("150%"). Empty means no quota.
func ParseCPUQuota(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("invalid CPU quota %q: must end with %%", s)
	}
	numStr := strings.TrimSuffix(s, "%")
	var value int
	if _, err := fmt.Sscanf(numStr, "%d", &value); err != nil || fmt.Sprint(value) != numStr || value <= 0 {
		return 0, fmt.Errorf("invalid CPU quota %q", s)
	}
	return value, nil
}
