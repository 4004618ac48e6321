// Package supervisor runs the agent as a single sandboxed service
// instance, relaunching it under a fixed-delay restart policy.
package supervisor

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"
)

// RestartMode selects which exits trigger a relaunch.
type RestartMode string

const (
	// RestartAlways relaunches after every exit.
	RestartAlways RestartMode = "always"
	// RestartOnFailure relaunches only after a non-zero exit.
	RestartOnFailure RestartMode = "on-failure"
)

// RestartPolicy is a constant-backoff restart policy. A zero
// CrashLoopThreshold means unbounded retries.
type RestartPolicy struct {
	Mode               RestartMode
	Delay              time.Duration
	CrashLoopThreshold uint32
	CrashLoopWindow    time.Duration
}

// Identity is the unprivileged account the agent runs as. UID and GID are
// -1 when unresolved.
type Identity struct {
	User  string
	Group string
	UID   int
	GID   int
}

// ServiceInstance is the single declared service. Identity and state
// directory are provisioned once and persist across restarts.
type ServiceInstance struct {
	Name       string
	Identity   Identity
	StateDir   string
	RuntimeDir string
	Restart    RestartPolicy
}

// WorkspaceDir is the agent's working directory.
func (s *ServiceInstance) WorkspaceDir() string {
	return filepath.Join(s.StateDir, "workspace")
}

// LookupIdentity resolves user and group names on the host. An empty
// group uses the user's primary group.
func LookupIdentity(userName, groupName string) (Identity, error) {
	id := Identity{User: userName, Group: groupName, UID: -1, GID: -1}
	if userName == "" {
		return id, nil
	}

	u, err := user.Lookup(userName)
	if err != nil {
		return id, fmt.Errorf("looking up service user %s: %w", userName, err)
	}
	id.UID, _ = strconv.Atoi(u.Uid)
	id.GID, _ = strconv.Atoi(u.Gid)

	if groupName != "" {
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return id, fmt.Errorf("looking up service group %s: %w", groupName, err)
		}
		id.GID, _ = strconv.Atoi(g.Gid)
	}
	return id, nil
}

// Provision creates the state and workspace directories (0700) and hands
// them to the service identity when running as root. It is idempotent.
func Provision(inst *ServiceInstance) error {
	if inst.StateDir == "" {
		return fmt.Errorf("service %s: state directory is not set", inst.Name)
	}
	for _, dir := range []string{inst.StateDir, inst.WorkspaceDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		if err := os.Chmod(dir, 0o700); err != nil {
			return fmt.Errorf("restricting %s: %w", dir, err)
		}
		if os.Geteuid() == 0 && inst.Identity.UID >= 0 {
			if err := os.Chown(dir, inst.Identity.UID, inst.Identity.GID); err != nil {
				return fmt.Errorf("chown %s: %w", dir, err)
			}
		}
	}
	return nil
}
