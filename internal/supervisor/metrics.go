package supervisor

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the supervisor's Prometheus instruments.
type Metrics struct {
	Launches         prometheus.Counter
	Restarts         prometheus.Counter
	Exits            *prometheus.CounterVec
	PreLaunchFailure *prometheus.CounterVec
	Up               prometheus.Gauge
	LastLaunch       prometheus.Gauge
	CrashLoopOpen    prometheus.Gauge
	Artifact         *prometheus.GaugeVec
}

// NewMetrics registers the instruments on reg. A nil reg uses a private
// registry that nothing scrapes.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Launches: f.NewCounter(prometheus.CounterOpts{
			Name: "agentcell_launches_total",
			Help: "Agent processes started inside the sandbox.",
		}),
		Restarts: f.NewCounter(prometheus.CounterOpts{
			Name: "agentcell_restarts_total",
			Help: "Relaunches performed by the restart policy.",
		}),
		Exits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcell_exits_total",
			Help: "Agent exits by exit code.",
		}, []string{"code"}),
		PreLaunchFailure: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcell_prelaunch_failures_total",
			Help: "Fatal failures before the agent started, by stage.",
		}, []string{"stage"}),
		Up: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentcell_up",
			Help: "1 while the agent process is running.",
		}),
		LastLaunch: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentcell_last_launch_timestamp_seconds",
			Help: "Unix time of the most recent launch.",
		}),
		CrashLoopOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentcell_crash_loop_breaker_open",
			Help: "1 when the crash-loop breaker has tripped.",
		}),
		Artifact: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentcell_config_artifact_info",
			Help: "Fingerprint of the rendered configuration template.",
		}, []string{"fingerprint"}),
	}
}

func (m *Metrics) observeExit(code int) {
	m.Up.Set(0)
	m.Exits.WithLabelValues(strconv.Itoa(code)).Inc()
}
