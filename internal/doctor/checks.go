package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentcell/agentcell/internal/audit"
	"github.com/agentcell/agentcell/internal/config"
	"github.com/agentcell/agentcell/internal/policy"
	"github.com/agentcell/agentcell/internal/sandbox"
)

// CheckResult represents the outcome of a single diagnostic check.
type CheckResult struct {
	Name        string `json:"name"`
	Status      string `json:"status"` // pass, fail, warn
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
}

// Report is a collection of check results.
type Report struct {
	Results []CheckResult `json:"results"`
}

// HasFailures returns true if any check failed.
func (r *Report) HasFailures() bool {
	for _, c := range r.Results {
		if c.Status == "fail" {
			return true
		}
	}
	return false
}

// JSON returns the report as formatted JSON.
func (r *Report) JSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RunAll inspects the host and executes every diagnostic check.
func RunAll(ctx context.Context, cfg *config.Config) *Report {
	return Run(ctx, cfg, sandbox.NewHostInspector().Inspect(ctx))
}

// Run executes the checks against already-inspected host primitives.
func Run(ctx context.Context, cfg *config.Config, host sandbox.HostPrimitives) *Report {
	checks := []func() CheckResult{
		func() CheckResult { return CheckSystemdRun(host) },
		func() CheckResult { return CheckSystemdVersion(host) },
		func() CheckResult { return CheckCgroups(host) },
		func() CheckResult { return CheckSeccomp(host) },
		func() CheckResult { return CheckBPFFirewall(host) },
		func() CheckResult { return CheckLandlock(cfg.Sandbox.Landlock, host) },
		func() CheckResult { return CheckAgentBinary(cfg.Service.Binary) },
		func() CheckResult { return CheckPolicy(ctx, cfg) },
		func() CheckResult { return CheckSecretSource("API Credential", cfg.Credentials.APIKeyFile, true) },
	}

	if cfg.Channels.Telegram.Enable {
		checks = append(checks, func() CheckResult {
			return CheckSecretSource("Telegram Bot Token", cfg.Channels.Telegram.BotTokenFile, true)
		})
	}

	checks = append(checks,
		func() CheckResult { return CheckDirectory("State Directory", cfg.Service.StateDir) },
		func() CheckResult { return CheckDirectory("Runtime Directory", cfg.Service.RuntimeDir) },
		func() CheckResult { return CheckAuditJournal(cfg.Audit.Enabled, cfg.Audit.Path) },
	)

	report := &Report{}
	for _, check := range checks {
		report.Results = append(report.Results, check())
	}
	return report
}

// CheckSystemdRun verifies that systemd-run is available.
func CheckSystemdRun(host sandbox.HostPrimitives) CheckResult {
	result := CheckResult{Name: "systemd-run"}
	if host.SystemdRun == "" {
		result.Status = "fail"
		result.Message = "systemd-run not found in PATH"
		result.Remediation = "Install systemd (the agent is launched as a transient systemd unit)"
		return result
	}
	result.Status = "pass"
	result.Message = host.SystemdRun
	return result
}

// CheckSystemdVersion verifies systemd understands every sandbox property.
func CheckSystemdVersion(host sandbox.HostPrimitives) CheckResult {
	result := CheckResult{Name: "systemd Version"}
	switch {
	case host.SystemdRun == "":
		result.Status = "fail"
		result.Message = "cannot determine systemd version: systemd-run not found"
	case host.SystemdVersion < sandbox.MinSystemdVersion:
		result.Status = "fail"
		result.Message = fmt.Sprintf("systemd %d is older than %d", host.SystemdVersion, sandbox.MinSystemdVersion)
		result.Remediation = fmt.Sprintf("Upgrade to systemd %d or newer", sandbox.MinSystemdVersion)
	default:
		result.Status = "pass"
		result.Message = fmt.Sprintf("systemd %d", host.SystemdVersion)
	}
	return result
}

// CheckCgroups verifies the unified hierarchy and the controllers behind
// the resource ceilings.
func CheckCgroups(host sandbox.HostPrimitives) CheckResult {
	result := CheckResult{Name: "cgroup v2 Controllers"}
	if !host.CgroupV2 {
		result.Status = "fail"
		result.Message = "unified cgroup hierarchy not mounted at /sys/fs/cgroup"
		result.Remediation = "Boot with systemd.unified_cgroup_hierarchy=1"
		return result
	}

	var missing []string
	for _, c := range sandbox.RequiredControllers {
		if !host.Controllers[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		result.Status = "fail"
		result.Message = "missing controllers: " + strings.Join(missing, ", ")
		result.Remediation = "Enable the controllers in /sys/fs/cgroup/cgroup.subtree_control"
		return result
	}

	result.Status = "pass"
	result.Message = "available: " + strings.Join(sandbox.RequiredControllers, ", ")
	return result
}

// CheckSeccomp verifies the kernel reports seccomp support.
func CheckSeccomp(host sandbox.HostPrimitives) CheckResult {
	result := CheckResult{Name: "Seccomp"}
	if !host.Seccomp {
		result.Status = "fail"
		result.Message = "kernel does not report seccomp support"
		result.Remediation = "Use a kernel built with CONFIG_SECCOMP_FILTER"
		return result
	}
	result.Status = "pass"
	result.Message = "seccomp filtering available"
	return result
}

// CheckBPFFirewall verifies the kernel can load the cgroup-skb programs
// systemd uses to enforce IPAddressDeny=.
func CheckBPFFirewall(host sandbox.HostPrimitives) CheckResult {
	result := CheckResult{Name: "BPF Firewall"}
	if !host.BPFFirewall {
		result.Status = "fail"
		result.Message = "cannot load cgroup-skb BPF programs; the multicast deny would be ignored"
		result.Remediation = "Use a kernel built with CONFIG_CGROUP_BPF and run agentcell as root"
		return result
	}
	result.Status = "pass"
	result.Message = "cgroup-skb programs load"
	return result
}

// CheckLandlock reports the landlock ABI. It only fails when the layer is
// enabled and the kernel cannot provide it.
func CheckLandlock(enabled bool, host sandbox.HostPrimitives) CheckResult {
	result := CheckResult{Name: "Landlock"}
	switch {
	case host.LandlockABI >= 1:
		result.Status = "pass"
		result.Message = fmt.Sprintf("ABI v%d", host.LandlockABI)
		if !enabled {
			result.Message += " (sandbox.landlock is disabled)"
		}
	case enabled:
		result.Status = "fail"
		result.Message = "sandbox.landlock is enabled but the kernel does not support landlock"
		result.Remediation = "Add landlock to the lsm= boot parameter or set sandbox.landlock=false"
	default:
		result.Status = "warn"
		result.Message = "kernel does not support landlock (layer disabled)"
	}
	return result
}

// CheckAgentBinary verifies the agent executable exists and is executable.
func CheckAgentBinary(path string) CheckResult {
	result := CheckResult{Name: "Agent Binary"}

	info, err := os.Stat(path)
	if err != nil {
		result.Status = "fail"
		result.Message = fmt.Sprintf("%s: %v", path, err)
		result.Remediation = "Install the agent binary or set service.binary"
		return result
	}
	if !info.Mode().IsRegular() {
		result.Status = "fail"
		result.Message = fmt.Sprintf("%s is not a regular file", path)
		return result
	}
	if info.Mode().Perm()&0o111 == 0 {
		result.Status = "fail"
		result.Message = fmt.Sprintf("%s is not executable", path)
		result.Remediation = "chmod +x " + path
		return result
	}

	result.Status = "pass"
	result.Message = path
	return result
}

// CheckPolicy composes and validates the policy document, including the
// admission rules.
func CheckPolicy(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{Name: "Policy"}

	doc, err := cfg.BuildDocument()
	if err != nil {
		result.Status = "fail"
		result.Message = err.Error()
		return result
	}

	modules, err := policy.LoadAdmissionModules(cfg.Sandbox.AdmissionPolicies)
	if err != nil {
		result.Status = "fail"
		result.Message = err.Error()
		return result
	}
	adm, err := policy.NewAdmission(ctx, modules)
	if err != nil {
		result.Status = "fail"
		result.Message = err.Error()
		return result
	}

	errs, err := policy.ValidateWithAdmission(ctx, doc, adm)
	if err != nil {
		result.Status = "fail"
		result.Message = err.Error()
		return result
	}
	if len(errs) > 0 {
		result.Status = "fail"
		result.Message = fmt.Sprintf("%d violation(s): %s", len(errs), errs.Error())
		result.Remediation = "Run 'agentcell validate' for the full list"
		return result
	}

	result.Status = "pass"
	result.Message = fmt.Sprintf("%d allowed commands, %d forbidden paths",
		len(doc.Autonomy.AllowedCommands), len(doc.Autonomy.ForbiddenPaths))
	return result
}

// CheckSecretSource verifies a secret file exists, is non-empty and is not
// readable by other users. It never reads the file.
func CheckSecretSource(name, path string, required bool) CheckResult {
	result := CheckResult{Name: name}

	if path == "" {
		if required {
			result.Status = "fail"
			result.Message = "no source file configured"
		} else {
			result.Status = "pass"
			result.Message = "not configured"
		}
		return result
	}

	info, err := os.Stat(path)
	if err != nil {
		result.Status = "fail"
		result.Message = fmt.Sprintf("%s: %v", path, err)
		result.Remediation = "Create the secret file and restrict it to the service user (chmod 0400)"
		return result
	}
	if info.IsDir() {
		result.Status = "fail"
		result.Message = fmt.Sprintf("%s is a directory", path)
		return result
	}
	if info.Size() == 0 {
		result.Status = "fail"
		result.Message = fmt.Sprintf("%s is empty", path)
		return result
	}
	if info.Mode().Perm()&0o077 != 0 {
		result.Status = "warn"
		result.Message = fmt.Sprintf("%s is accessible by group or others (mode %04o)", path, info.Mode().Perm())
		result.Remediation = "chmod 0400 " + path
		return result
	}

	result.Status = "pass"
	result.Message = path
	return result
}

// CheckDirectory verifies a service directory exists or can be created
// under an existing parent.
func CheckDirectory(name, path string) CheckResult {
	result := CheckResult{Name: name}

	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			result.Status = "fail"
			result.Message = fmt.Sprintf("%s exists and is not a directory", path)
			return result
		}
		if info.Mode().Perm()&0o077 != 0 {
			result.Status = "warn"
			result.Message = fmt.Sprintf("%s is accessible by group or others (mode %04o)", path, info.Mode().Perm())
			result.Remediation = "chmod 0700 " + path
			return result
		}
		result.Status = "pass"
		result.Message = path
		return result
	}

	parent := filepath.Dir(path)
	if _, err := os.Stat(parent); err != nil {
		result.Status = "fail"
		result.Message = fmt.Sprintf("parent %s does not exist", parent)
		return result
	}
	result.Status = "pass"
	result.Message = fmt.Sprintf("%s will be created on first run", path)
	return result
}

// CheckAuditJournal verifies the audit journal against its seal. run
// refuses to append to a journal that fails here.
func CheckAuditJournal(enabled bool, path string) CheckResult {
	result := CheckResult{Name: "Audit Journal"}
	if !enabled {
		result.Status = "warn"
		result.Message = "audit is disabled"
		return result
	}

	v, err := audit.VerifyFile(path)
	switch {
	case errors.Is(err, audit.ErrNoJournal):
		result.Status = "pass"
		result.Message = fmt.Sprintf("%s will be created on first run", path)
		return result
	case err != nil:
		result.Status = "fail"
		result.Message = err.Error()
		return result
	case !v.Intact():
		result.Status = "fail"
		result.Message = fmt.Sprintf("%s: %s", path, v.Describe())
		result.Remediation = "Inspect with 'agentcell audit verify', then move the journal and " + filepath.Base(audit.SealPath(path)) + " aside"
		return result
	case !v.Sealed:
		result.Status = "warn"
		result.Message = fmt.Sprintf("%s: %d events, no seal", path, v.Verified)
		return result
	case v.Unsealed > 0:
		result.Status = "warn"
		result.Message = fmt.Sprintf("%s: %d events, %d written after the last seal", path, v.Verified, v.Unsealed)
		return result
	}

	result.Status = "pass"
	result.Message = fmt.Sprintf("%s: %d events sealed", path, v.Verified)
	return result
}
