package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/agentcell/agentcell/internal/audit"
	"github.com/agentcell/agentcell/internal/policy"
	"github.com/agentcell/agentcell/internal/render"
	"github.com/agentcell/agentcell/internal/sandbox"
	"github.com/agentcell/agentcell/internal/secrets"
)

// Materializer resolves secrets into the runtime configuration.
type Materializer interface {
	Materialize(template render.Artifact, refs []policy.SecretRef) (*secrets.Result, error)
	Cleanup() error
}

// Process is a running agent.
type Process interface {
	Wait() (int, error)
	Stop(ctx context.Context) error
}

// Launcher starts the agent under a sandbox profile.
type Launcher interface {
	Launch(ctx context.Context, profile *sandbox.Profile, req sandbox.LaunchRequest) (Process, error)
}

// SandboxLauncher adapts *sandbox.Launcher to Launcher.
type SandboxLauncher struct {
	*sandbox.Launcher
}

func (l SandboxLauncher) Launch(ctx context.Context, profile *sandbox.Profile, req sandbox.LaunchRequest) (Process, error) {
	p, err := l.Launcher.Launch(ctx, profile, req)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Agent describes the executable the supervisor launches.
type Agent struct {
	Binary string
	// Args may reference {config} and {workspace}.
	Args []string
	// WorkspaceEnv and ConfigEnv name the variables that carry the
	// workspace directory and runtime config path. Empty disables them.
	WorkspaceEnv string
	ConfigEnv    string
}

// Status is a point-in-time view of the service.
type Status struct {
	Service      string    `json:"service"`
	Running      bool      `json:"running"`
	LaunchID     string    `json:"launch_id,omitempty"`
	Unit         string    `json:"unit,omitempty"`
	Launches     int       `json:"launches"`
	Restarts     int       `json:"restarts"`
	LastExitCode *int      `json:"last_exit_code,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
}

// Supervisor owns the run-time phase: Materialize, Derive, Launch, Wait,
// repeated under the restart policy.
type Supervisor struct {
	Instance ServiceInstance
	Agent    Agent
	Document *policy.Document
	Template render.Artifact
	Refs     []policy.SecretRef
	Limits   sandbox.HostLimits
	Landlock bool

	Materializer Materializer
	Launcher     Launcher
	Audit        audit.EventLogger
	Metrics      *Metrics
	Logger       *slog.Logger

	// NewLaunchID defaults to uuid.NewString.
	NewLaunchID func() string

	mu     sync.Mutex
	status Status
}

// errCleanExit makes RestartAlways relaunch after a zero exit.
var errCleanExit = errors.New("agent exited cleanly")

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Status returns a snapshot of the service status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Service = s.Instance.Name
	return st
}

// Run launches the agent and keeps it running until ctx is cancelled, a
// pre-launch stage fails, the crash-loop breaker trips, or (in on-failure
// mode) the agent exits cleanly. Cancellation stops the agent and returns
// nil.
func (s *Supervisor) Run(ctx context.Context) error {
	s.defaults()
	s.Metrics.Artifact.WithLabelValues(render.Fingerprint(s.Template)).Set(1)

	defer func() {
		if err := s.Materializer.Cleanup(); err != nil {
			s.logger().Warn("runtime configuration cleanup failed", "error", err)
		}
		_ = s.Audit.Flush(context.Background())
	}()

	breaker := s.newBreaker()
	delay := s.Instance.Restart.Delay

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(0),
		retry.LastErrorOnly(true),
		retry.DelayType(func(_ uint, _ error, _ retry.DelayContext) time.Duration {
			return delay
		}),
		retry.OnRetry(func(n uint, err error) {
			s.Metrics.Restarts.Inc()
			s.mu.Lock()
			s.status.Restarts++
			s.mu.Unlock()
			s.logger().Warn("restarting agent", "attempt", n+1, "delay", delay, "reason", err)
			s.record(ctx, audit.EventServiceRestart, audit.SeverityWarning, "", map[string]any{
				"attempt": n + 1,
				"delay":   delay.String(),
				"reason":  err.Error(),
			})
		}),
	)

	err := r.Do(func() error {
		return s.attempt(ctx, breaker)
	})

	if ctx.Err() != nil {
		s.record(context.Background(), audit.EventServiceStop, audit.SeverityInfo, "", nil)
		return nil
	}
	if err == nil {
		s.logger().Info("agent exited cleanly; restart mode does not relaunch", "mode", s.Instance.Restart.Mode)
		return nil
	}

	var stage *StageError
	if errors.As(err, &stage) {
		return stage
	}
	var loop *CrashLoopError
	if errors.As(err, &loop) {
		return loop
	}
	return err
}

func (s *Supervisor) defaults() {
	if s.Metrics == nil {
		s.Metrics = NewMetrics(nil)
	}
	if s.Audit == nil {
		s.Audit = audit.NewNopLogger()
	}
	if s.NewLaunchID == nil {
		s.NewLaunchID = uuid.NewString
	}
	if s.Instance.Restart.Mode == "" {
		s.Instance.Restart.Mode = RestartAlways
	}
}

func (s *Supervisor) newBreaker() *gobreaker.CircuitBreaker {
	threshold := s.Instance.Restart.CrashLoopThreshold
	if threshold == 0 {
		return nil
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     s.Instance.Name + "-crash-loop",
		Interval: s.Instance.Restart.CrashLoopWindow,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger().Warn("crash-loop breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen {
				s.Metrics.CrashLoopOpen.Set(1)
			} else {
				s.Metrics.CrashLoopOpen.Set(0)
			}
		},
	})
}

// attempt runs one launch and translates its outcome for the retrier.
func (s *Supervisor) attempt(ctx context.Context, breaker *gobreaker.CircuitBreaker) error {
	var err error
	if breaker == nil {
		err = s.runOnce(ctx)
	} else {
		_, err = breaker.Execute(func() (interface{}, error) {
			return nil, s.runOnce(ctx)
		})
	}

	var stage *StageError
	switch {
	case err == nil:
		if s.Instance.Restart.Mode == RestartAlways && ctx.Err() == nil {
			return errCleanExit
		}
		return nil
	case ctx.Err() != nil:
		return retry.Unrecoverable(ctx.Err())
	case errors.As(err, &stage):
		return retry.Unrecoverable(err)
	case breaker != nil && (errors.Is(err, gobreaker.ErrOpenState) || breaker.State() == gobreaker.StateOpen):
		return retry.Unrecoverable(s.tripped(ctx, err))
	default:
		return err
	}
}

// tripped stops the restart loop once the breaker opens. The loop does not
// wait for the breaker to half-open.
func (s *Supervisor) tripped(ctx context.Context, last error) error {
	threshold := s.Instance.Restart.CrashLoopThreshold
	s.logger().Error("crash-loop breaker tripped; not relaunching", "threshold", threshold, "last", last)
	s.record(ctx, audit.EventCrashLoopTrip, audit.SeverityCritical, "", map[string]any{
		"threshold": threshold,
		"last":      last.Error(),
	})
	return &CrashLoopError{Failures: threshold, Last: last}
}

// runOnce performs Materialize, Derive, Launch and Wait. Pre-launch
// failures come back as *StageError; a non-zero exit as *RuntimeCrash.
func (s *Supervisor) runOnce(ctx context.Context) error {
	launchID := s.NewLaunchID()
	log := s.logger().With("launch_id", launchID)

	res, err := s.Materializer.Materialize(s.Template, s.Refs)
	if err != nil {
		return s.abort(ctx, launchID, StageMaterialize, err)
	}
	s.record(ctx, audit.EventSecretsMaterialize, audit.SeverityInfo, launchID, map[string]any{
		"config":      res.ConfigPath,
		"substituted": res.Substituted,
		"env":         res.EnvNames,
	})

	profile := sandbox.Derive(s.Document, sandbox.ServiceSpec{
		Name:       s.Instance.Name,
		User:       s.Instance.Identity.User,
		Group:      s.Instance.Identity.Group,
		StateDir:   s.Instance.StateDir,
		RuntimeDir: s.Instance.RuntimeDir,
		Landlock:   s.Landlock,
	}, s.Limits)
	s.record(ctx, audit.EventSandboxDerive, audit.SeverityInfo, launchID, map[string]any{
		"memory_max":     profile.Resources.MemoryMax,
		"cpu_quota":      profile.Resources.CPUQuota,
		"tasks_max":      profile.Resources.TasksMax,
		"writable_paths": profile.Filesystem.WritablePaths,
		"landlock":       profile.Landlock,
	})

	unit := sandbox.UnitName(s.Instance.Name, launchID)
	proc, err := s.Launcher.Launch(ctx, profile, sandbox.LaunchRequest{
		Unit:        unit,
		Binary:      s.Agent.Binary,
		Args:        s.expandArgs(res.ConfigPath),
		Env:         s.agentEnv(res.ConfigPath),
		Credentials: credentials(res.EnvRefs),
	})
	if err != nil {
		return s.abort(ctx, launchID, StageSandbox, err)
	}

	started := time.Now()
	s.Metrics.Launches.Inc()
	s.Metrics.Up.Set(1)
	s.Metrics.LastLaunch.Set(float64(started.Unix()))
	s.mu.Lock()
	s.status.Running = true
	s.status.LaunchID = launchID
	s.status.Unit = unit
	s.status.Launches++
	s.status.StartedAt = started
	s.mu.Unlock()

	s.record(ctx, audit.EventServiceLaunch, audit.SeverityInfo, launchID, map[string]any{
		"unit":   unit,
		"binary": s.Agent.Binary,
	})

	code, waitErr := s.wait(ctx, proc, log)

	s.Metrics.observeExit(code)
	s.mu.Lock()
	s.status.Running = false
	s.status.LastExitCode = &code
	s.mu.Unlock()

	s.record(context.Background(), audit.EventServiceExit, exitSeverity(code), launchID, map[string]any{
		"exit_code": code,
		"uptime":    time.Since(started).Round(time.Millisecond).String(),
	})
	log.Info("agent exited", "code", code, "uptime", time.Since(started).Round(time.Second))

	if waitErr != nil {
		return waitErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if code != 0 {
		return &RuntimeCrash{LaunchID: launchID, ExitCode: code}
	}
	return nil
}

// wait blocks until the agent exits. On cancellation it stops the unit
// and still waits for the exit.
func (s *Supervisor) wait(ctx context.Context, proc Process, log *slog.Logger) (int, error) {
	type exit struct {
		code int
		err  error
	}
	done := make(chan exit, 1)
	go func() {
		code, err := proc.Wait()
		done <- exit{code, err}
	}()

	select {
	case e := <-done:
		return e.code, e.err
	case <-ctx.Done():
		log.Info("stopping agent")
		if err := proc.Stop(context.Background()); err != nil {
			log.Error("stopping agent failed", "error", err)
		}
		e := <-done
		return e.code, e.err
	}
}

func (s *Supervisor) abort(ctx context.Context, launchID, stage string, err error) error {
	s.Metrics.PreLaunchFailure.WithLabelValues(stage).Inc()
	s.record(ctx, audit.EventServiceAbort, audit.SeverityHigh, launchID, map[string]any{
		"stage": stage,
		"error": err.Error(),
	})
	s.logger().Error("agent not started", "stage", stage, "error", err)
	return &StageError{Stage: stage, Err: err}
}

func (s *Supervisor) agentEnv(configPath string) []string {
	var env []string
	if s.Agent.WorkspaceEnv != "" {
		env = append(env, s.Agent.WorkspaceEnv+"="+s.Instance.WorkspaceDir())
	}
	if s.Agent.ConfigEnv != "" {
		env = append(env, s.Agent.ConfigEnv+"="+configPath)
	}
	return env
}

// credentials maps environment secrets onto systemd credentials named
// after the secret.
func credentials(refs []policy.SecretRef) []sandbox.Credential {
	var creds []sandbox.Credential
	for _, ref := range refs {
		creds = append(creds, sandbox.Credential{ID: ref.Name, Source: ref.SourcePath, Env: ref.TargetEnvVar})
	}
	return creds
}

func (s *Supervisor) expandArgs(configPath string) []string {
	r := strings.NewReplacer("{config}", configPath, "{workspace}", s.Instance.WorkspaceDir())
	out := make([]string, len(s.Agent.Args))
	for i, a := range s.Agent.Args {
		out[i] = r.Replace(a)
	}
	return out
}

func (s *Supervisor) record(ctx context.Context, t audit.EventType, sev audit.Severity, launchID string, details map[string]any) {
	e := audit.NewEvent(t, s.Instance.Name, sev, details)
	e.LaunchID = launchID
	if err := s.Audit.Log(ctx, e); err != nil {
		s.logger().Warn("audit event dropped", "event", string(t), "error", err)
	}
}

func exitSeverity(code int) audit.Severity {
	if code == 0 {
		return audit.SeverityInfo
	}
	return audit.SeverityWarning
}
