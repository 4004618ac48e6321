//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/landlock-lsm/go-landlock/landlock"
	"golang.org/x/sys/unix"
)

// Confine sets no_new_privs, optionally restricts the filesystem with
// Landlock and replaces the current process with the agent. It only
// returns on error.
func Confine(opts ConfineOptions) error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return &SandboxSetupError{Primitive: "no_new_privs", Reason: "prctl failed", Err: err}
	}

	path, err := exec.LookPath(opts.Binary)
	if err != nil {
		return fmt.Errorf("resolving agent binary %s: %w", opts.Binary, err)
	}

	if opts.Landlock {
		if err := restrictPaths(opts.Writable); err != nil {
			return err
		}
	}

	argv := append([]string{opts.Binary}, opts.Args...)
	if err := unix.Exec(path, argv, opts.Env); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}

func restrictPaths(writable []string) error {
	if abi := landlockABI(); abi < 1 {
		return &SandboxSetupError{Primitive: "landlock", Reason: "kernel does not support landlock"}
	}

	rules := []landlock.Rule{landlock.RODirs("/")}
	if len(writable) > 0 {
		rules = append(rules, landlock.RWDirs(writable...))
	}
	if _, err := os.Stat("/dev/null"); err == nil {
		rules = append(rules, landlock.RWFiles("/dev/null"))
	}

	// BestEffort degrades to the kernel's ABI, which is at least 1 here.
	if err := landlock.V6.BestEffort().RestrictPaths(rules...); err != nil {
		return &SandboxSetupError{Primitive: "landlock", Reason: "restricting paths", Err: err}
	}
	return nil
}
