package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/agentcell/agentcell/internal/audit"
	"github.com/agentcell/agentcell/internal/render"
	"github.com/agentcell/agentcell/internal/sandbox"
	"github.com/agentcell/agentcell/internal/secrets"
	"github.com/agentcell/agentcell/internal/supervisor"
)

var runMetricsListen string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent under the sandbox and restart policy",
	Long: `Run validates the policy, renders the configuration template and then
supervises the agent: on every start the secrets are materialized into a
private runtime copy, the sandbox profile is derived and the agent is
launched as a transient systemd service. Non-zero exits are relaunched
after the configured delay.

Any policy, secret or sandbox failure stops run before the agent starts.
SIGINT or SIGTERM stops the agent and exits cleanly.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runMetricsListen, "metrics-listen", "", "serve /metrics and /healthz on this address (overrides metrics.listen)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errOut := cmd.ErrOrStderr()
	if err := checkConfig(Cfg, errOut); err != nil {
		return err
	}

	auditLog, err := openAudit()
	if err != nil {
		return err
	}
	defer auditLog.Close()

	doc, violations, err := composePolicy(ctx, Cfg, errOut)
	if err != nil {
		if errors.Is(err, errInvalid) {
			logAudit(ctx, auditLog, audit.EventPolicyReject, audit.SeverityHigh, map[string]any{
				"violations": violations.Error(),
			})
		}
		return err
	}
	logAudit(ctx, auditLog, audit.EventPolicyValidate, audit.SeverityInfo, map[string]any{
		"allowed_commands": len(doc.Autonomy.AllowedCommands),
		"forbidden_paths":  len(doc.Autonomy.ForbiddenPaths),
	})

	template := render.Render(doc)
	logAudit(ctx, auditLog, audit.EventConfigRender, audit.SeverityInfo, map[string]any{
		"fingerprint": render.Fingerprint(template),
		"bytes":       len(template),
	})

	id, err := supervisor.LookupIdentity(Cfg.Service.User, Cfg.Service.Group)
	if err != nil {
		return err
	}
	inst := Cfg.ServiceInstance(id)
	if err := supervisor.Provision(&inst); err != nil {
		return fmt.Errorf("provisioning service %s: %w", inst.Name, err)
	}

	launcher, err := sandbox.NewLauncher(os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	mat := secrets.NewMaterializer(Cfg.Service.RuntimeDir)
	mat.UID, mat.GID = id.UID, id.GID

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sup := &supervisor.Supervisor{
		Instance:     inst,
		Agent:        Cfg.Agent(),
		Document:     doc,
		Template:     template,
		Refs:         doc.SecretRefs(Cfg.Credentials.APIKeyEnv),
		Limits:       Cfg.HostLimits(),
		Landlock:     Cfg.Sandbox.Landlock,
		Materializer: mat,
		Launcher:     supervisor.SandboxLauncher{Launcher: launcher},
		Audit:        auditLog,
		Metrics:      supervisor.NewMetrics(reg),
		Logger:       slog.Default().With("service", inst.Name),
	}

	listen := Cfg.Metrics.Listen
	if runMetricsListen != "" {
		listen = runMetricsListen
	}
	if listen != "" {
		go func() {
			if err := supervisor.Serve(ctx, listen, supervisor.NewRouter(reg, sup.Status)); err != nil {
				slog.Error("metrics listener failed", "addr", listen, "error", err)
			}
		}()
	}

	slog.Info("starting agent service",
		"service", inst.Name,
		"binary", Cfg.Service.Binary,
		"restart", inst.Restart.Mode,
		"delay", inst.Restart.Delay,
	)
	return sup.Run(ctx)
}

func openAudit() (audit.EventLogger, error) {
	if !Cfg.Audit.Enabled {
		return audit.NewNopLogger(), nil
	}
	cfg := audit.DefaultJournalConfig()
	cfg.Path = Cfg.Audit.Path
	j, err := audit.OpenJournal(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening audit journal: %w", err)
	}
	return j, nil
}

func logAudit(ctx context.Context, l audit.EventLogger, t audit.EventType, sev audit.Severity, details map[string]any) {
	if err := l.Log(ctx, audit.NewEvent(t, Cfg.Service.Name, sev, details)); err != nil {
		slog.Warn("audit event dropped", "event", string(t), "error", err)
	}
}
