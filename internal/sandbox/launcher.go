package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Handle is a started child process.
type Handle interface {
	// Wait blocks until exit and returns the exit code. A process killed
	// by a signal reports -1.
	Wait() (int, error)
	Signal(sig os.Signal) error
	Pid() int
}

// Runner starts and runs host commands.
type Runner interface {
	Start(name string, args, env []string) (Handle, error)
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (r ExecRunner) Start(name string, args, env []string) (Handle, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = env
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execHandle{cmd: cmd}, nil
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

type execHandle struct {
	cmd *exec.Cmd
}

func (h *execHandle) Wait() (int, error) {
	err := h.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (h *execHandle) Signal(sig os.Signal) error { return h.cmd.Process.Signal(sig) }
func (h *execHandle) Pid() int                   { return h.cmd.Process.Pid }

// Launcher starts the agent inside a transient systemd service.
type Launcher struct {
	Host   *HostInspector
	Runner Runner
	// ConfineExe is the agentcell executable path used when the profile
	// enables Landlock or the request carries credentials.
	ConfineExe string
	// BaseEnv is the environment of the systemd-run process. It never
	// carries secrets.
	BaseEnv []string
	Logger  *slog.Logger
}

// NewLauncher returns a Launcher wired to the host.
func NewLauncher(stdout, stderr io.Writer) (*Launcher, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolving own executable: %w", err)
	}
	return &Launcher{
		Host:       NewHostInspector(),
		Runner:     ExecRunner{Stdout: stdout, Stderr: stderr},
		ConfineExe: self,
		BaseEnv:    []string{"PATH=" + os.Getenv("PATH")},
	}, nil
}

func (l *Launcher) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// LaunchRequest describes one launch.
type LaunchRequest struct {
	Unit   string
	Binary string
	Args   []string
	// Env holds non-secret NAME=value pairs set inside the unit.
	Env []string
	// Credentials are secrets systemd loads for the unit and the confine
	// shim exports into the agent environment.
	Credentials []Credential
}

// Process is a launched agent.
type Process struct {
	Unit   string
	handle Handle
	runner Runner
}

// Wait blocks until the agent exits and returns its exit code.
func (p *Process) Wait() (int, error) { return p.handle.Wait() }

// Stop asks systemd to stop the unit, falling back to SIGTERM on the
// systemd-run process.
func (p *Process) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := p.runner.Run(ctx, "systemctl", "stop", p.Unit+".service"); err == nil {
		return nil
	}
	return p.handle.Signal(syscall.SIGTERM)
}

// Launch verifies the host can enforce profile, then starts the agent. A
// missing primitive yields *SandboxSetupError and nothing is started.
func (l *Launcher) Launch(ctx context.Context, profile *Profile, req LaunchRequest) (*Process, error) {
	if err := profile.Validate(); err != nil {
		return nil, &SandboxSetupError{Primitive: "profile", Reason: "invalid", Err: err}
	}
	host := l.Host.Inspect(ctx)
	if err := host.Require(profile); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.Credentials))
	for _, c := range req.Credentials {
		if err := c.Validate(); err != nil {
			return nil, &SandboxSetupError{Primitive: "credentials", Reason: "invalid credential", Err: err}
		}
		ids = append(ids, c.ID)
	}
	unit := req.Unit
	if unit == "" {
		unit = profile.Unit
	}

	spec := RunSpec{
		Unit:        unit,
		Binary:      req.Binary,
		Args:        req.Args,
		Env:         req.Env,
		Credentials: req.Credentials,
		ConfineExe:  l.ConfineExe,
	}
	if spec.NeedsShim(profile) && l.ConfineExe == "" {
		return nil, &SandboxSetupError{Primitive: "confine", Reason: "confine executable unknown"}
	}

	args := SystemdRunArgs(profile, spec)
	env := append([]string(nil), l.BaseEnv...)
	h, err := l.Runner.Start(host.SystemdRun, args, env)
	if err != nil {
		return nil, &SandboxSetupError{Primitive: "systemd-run", Reason: "failed to start", Err: err}
	}

	l.logger().Info("agent launched",
		"unit", unit,
		"binary", req.Binary,
		"pid", h.Pid(),
		"memory_max", profile.Resources.MemoryMax,
		"cpu_quota", profile.Resources.CPUQuota,
		"tasks_max", profile.Resources.TasksMax,
		"landlock", profile.Landlock,
		"credentials", ids,
	)
	return &Process{Unit: unit, handle: h, runner: l.Runner}, nil
}
