package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// MinSystemdVersion is the oldest systemd that understands every property
// SystemdProperties emits.
const MinSystemdVersion = 247

// RequiredControllers are the cgroup v2 controllers behind the resource
// ceilings.
var RequiredControllers = []string{"memory", "cpu", "pids"}

// HostPrimitives records which isolation primitives the host offers.
type HostPrimitives struct {
	SystemdRun     string          `json:"systemd_run"`
	SystemdVersion int             `json:"systemd_version"`
	CgroupV2       bool            `json:"cgroup_v2"`
	Controllers    map[string]bool `json:"controllers"`
	Seccomp        bool            `json:"seccomp"`
	LandlockABI    int             `json:"landlock_abi"`
	// BPFFirewall is cgroup-skb program support, behind IPAddressDeny=.
	BPFFirewall bool `json:"bpf_firewall"`
}

// HostInspector reads isolation primitives off the host. Every hook can be replaced in tests.
type HostInspector struct {
	LookPath    func(file string) (string, error)
	Output      func(ctx context.Context, name string, args ...string) ([]byte, error)
	ReadFile    func(path string) ([]byte, error)
	LandlockABI func() int
	BPFFirewall func() bool
}

// NewHostInspector returns a HostInspector wired to the real host.
func NewHostInspector() *HostInspector {
	return &HostInspector{
		LookPath: exec.LookPath,
		Output: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		ReadFile:    os.ReadFile,
		LandlockABI: landlockABI,
		BPFFirewall: bpfFirewall,
	}
}

var systemdVersionRe = regexp.MustCompile(`^systemd (\d+)`)

// Inspect gathers the host primitives. Individual check failures leave the
// corresponding field at its zero value; Require turns gaps into errors.
func (p *HostInspector) Inspect(ctx context.Context) HostPrimitives {
	h := HostPrimitives{Controllers: map[string]bool{}}

	if path, err := p.LookPath("systemd-run"); err == nil {
		h.SystemdRun = path
		if out, err := p.Output(ctx, path, "--version"); err == nil {
			if m := systemdVersionRe.FindSubmatch(bytes.TrimSpace(out)); m != nil {
				h.SystemdVersion, _ = strconv.Atoi(string(m[1]))
			}
		}
	}

	if data, err := p.ReadFile("/sys/fs/cgroup/cgroup.controllers"); err == nil {
		h.CgroupV2 = true
		for _, c := range strings.Fields(string(data)) {
			h.Controllers[c] = true
		}
	}

	if data, err := p.ReadFile("/proc/self/status"); err == nil {
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			if strings.HasPrefix(sc.Text(), "Seccomp:") {
				h.Seccomp = true
				break
			}
		}
	}

	if p.LandlockABI != nil {
		h.LandlockABI = p.LandlockABI()
	}
	if p.BPFFirewall != nil {
		h.BPFFirewall = p.BPFFirewall()
	}
	return h
}

// Require returns a *SandboxSetupError for the first primitive the
// profile needs that the host lacks.
func (h HostPrimitives) Require(p *Profile) error {
	if h.SystemdRun == "" {
		return &SandboxSetupError{Primitive: "systemd-run", Reason: "not found in PATH"}
	}
	if h.SystemdVersion < MinSystemdVersion {
		return &SandboxSetupError{
			Primitive: "systemd",
			Reason:    fmt.Sprintf("version %d is older than required %d", h.SystemdVersion, MinSystemdVersion),
		}
	}
	if !h.Seccomp {
		return &SandboxSetupError{Primitive: "seccomp", Reason: "kernel does not report seccomp support"}
	}

	needsCgroup := p.Resources.MemoryMax != "" || p.Resources.CPUQuota != "" || p.Resources.TasksMax > 0
	if needsCgroup {
		if !h.CgroupV2 {
			return &SandboxSetupError{Primitive: "cgroup v2", Reason: "unified hierarchy not mounted at /sys/fs/cgroup"}
		}
		for _, c := range RequiredControllers {
			if !h.Controllers[c] {
				return &SandboxSetupError{Primitive: "cgroup v2", Reason: fmt.Sprintf("controller %q unavailable", c)}
			}
		}
	}

	if p.Network.DenyMulticast && !h.BPFFirewall {
		return &SandboxSetupError{
			Primitive: "bpf firewall",
			Reason:    "kernel cannot load cgroup-skb programs; IPAddressDeny=multicast would be ignored",
		}
	}

	if p.Landlock && h.LandlockABI < 1 {
		return &SandboxSetupError{Primitive: "landlock", Reason: "kernel does not support landlock"}
	}
	return nil
}
