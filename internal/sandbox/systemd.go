package sandbox

import (
	"fmt"
	"strconv"
	"strings"
)

// SystemdProperties renders the profile as transient unit properties, in
// the order the restrictions are applied: capabilities, syscalls,
// namespaces, filesystem, network, resources, memory protection.
func SystemdProperties(p *Profile) []string {
	props := []string{
		"CapabilityBoundingSet=" + strings.Join(p.Capabilities, " "),
		"AmbientCapabilities=",
		"NoNewPrivileges=yes",
	}

	if len(p.Syscalls.Allow) > 0 {
		props = append(props, "SystemCallFilter="+strings.Join(p.Syscalls.Allow, " "))
	}
	if len(p.Syscalls.Deny) > 0 {
		props = append(props, "SystemCallFilter=~"+strings.Join(p.Syscalls.Deny, " "))
	}
	if p.Syscalls.Architectures != "" {
		props = append(props, "SystemCallArchitectures="+p.Syscalls.Architectures)
	}
	props = append(props, "SystemCallErrorNumber=EPERM")

	props = append(props, "RestrictNamespaces="+yesNo(p.Namespaces.RestrictAll))

	if p.Filesystem.ReadOnlyRoot {
		props = append(props, "ProtectSystem=strict")
	}
	props = append(props,
		"ProtectHome="+yesNo(p.Filesystem.ProtectHome),
		"PrivateTmp="+yesNo(p.Filesystem.PrivateTmp),
		"PrivateDevices="+yesNo(p.Filesystem.PrivateDevices),
	)
	if len(p.Filesystem.WritablePaths) > 0 {
		props = append(props, "ReadWritePaths="+strings.Join(p.Filesystem.WritablePaths, " "))
	}

	if len(p.Network.AllowedFamilies) > 0 {
		props = append(props, "RestrictAddressFamilies="+strings.Join(p.Network.AllowedFamilies, " "))
	}
	if p.Network.DenyMulticast {
		props = append(props, "IPAddressDeny=multicast")
	}

	if p.Resources.MemoryMax != "" {
		props = append(props, "MemoryMax="+p.Resources.MemoryMax, "OOMPolicy=kill")
	}
	if p.Resources.CPUQuota != "" {
		props = append(props, "CPUQuota="+p.Resources.CPUQuota)
	}
	if p.Resources.TasksMax > 0 {
		props = append(props, "TasksMax="+strconv.Itoa(p.Resources.TasksMax))
	}

	props = append(props, "MemoryDenyWriteExecute="+yesNo(p.MemoryDenyWriteExecute))
	return props
}

// RunSpec is everything SystemdRunArgs needs besides the profile.
type RunSpec struct {
	// Unit is the transient unit name. Defaults to the profile's unit.
	Unit string
	// Binary and Args are the agent executable and its arguments.
	Binary string
	Args   []string
	// Env holds non-secret NAME=value pairs written into the unit.
	Env []string
	// Credentials become LoadCredential= properties. Unit properties are
	// readable over D-Bus and persisted under /run/systemd/transient, so
	// they carry source paths and never values.
	Credentials []Credential
	// ConfineExe is the agentcell executable that runs inside the unit to
	// export credentials and apply the Landlock layer.
	ConfineExe string
}

// NeedsShim reports whether the agent must be started through the
// confine shim.
func (s RunSpec) NeedsShim(p *Profile) bool {
	return p.Landlock || len(s.Credentials) > 0
}

// SystemdRunArgs builds the full systemd-run argument list (without the
// program name) for a transient service enforcing p.
func SystemdRunArgs(p *Profile, spec RunSpec) []string {
	unit := spec.Unit
	if unit == "" {
		unit = p.Unit
	}

	args := []string{
		"--unit=" + unit,
		"--description=agentcell sandboxed agent " + p.Unit,
		"--service-type=exec",
		"--wait",
		"--collect",
		"--pipe",
		"--quiet",
	}
	if p.User != "" {
		args = append(args, "--uid="+p.User)
	}
	if p.Group != "" {
		args = append(args, "--gid="+p.Group)
	}
	if p.WorkingDirectory != "" {
		args = append(args, "--working-directory="+p.WorkingDirectory)
	}

	if len(p.SearchPath) > 0 {
		args = append(args, "--setenv=PATH="+strings.Join(p.SearchPath, ":"))
	}
	for _, kv := range spec.Env {
		args = append(args, "--setenv="+kv)
	}

	for _, prop := range SystemdProperties(p) {
		args = append(args, "--property="+prop)
	}
	for _, c := range spec.Credentials {
		args = append(args, "--property=LoadCredential="+c.ID+":"+c.Source)
	}

	args = append(args, "--")
	if spec.NeedsShim(p) {
		args = append(args, spec.ConfineExe, "confine")
		if p.Landlock {
			args = append(args, "--landlock")
			for _, w := range p.Filesystem.WritablePaths {
				args = append(args, "--writable="+w)
			}
		}
		for _, c := range spec.Credentials {
			args = append(args, "--credential="+c.Binding())
		}
		args = append(args, "--")
	}
	args = append(args, spec.Binary)
	args = append(args, spec.Args...)
	return args
}

// UnitName returns the transient unit name for one launch.
func UnitName(service, launchID string) string {
	if len(launchID) > 8 {
		launchID = launchID[:8]
	}
	if launchID == "" {
		return service
	}
	return fmt.Sprintf("%s-%s", service, launchID)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
