package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	goalsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "azimuth",
			Name:      "goals_settled_total",
			Help:      "Total number of goals settled, by final status",
		},
		[]string{"status"},
	)

	goalAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "azimuth",
			Name:      "goal_attempts",
			Help:      "Attempts consumed per settled goal",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8},
		},
		[]string{"status"},
	)

	recoveryDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "azimuth",
			Name:      "recovery_decisions_total",
			Help:      "Total recovery decisions, by failure class and decision",
		},
		[]string{"classification", "decision"},
	)

	runsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "azimuth",
			Name:      "runs_completed_total",
			Help:      "Total runs completed, by outcome",
		},
		[]string{"outcome"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "azimuth",
			Name:      "run_duration_seconds",
			Help:      "Duration of orchestration runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)
)

// ObserveGoalSettled records one settled goal.
func ObserveGoalSettled(status string, attempts int) {
	goalsSettled.WithLabelValues(status).Inc()
	goalAttempts.WithLabelValues(status).Observe(float64(attempts))
}

// ObserveRecoveryDecision records one recovery decision.
func ObserveRecoveryDecision(classification, decision string) {
	recoveryDecisions.WithLabelValues(classification, decision).Inc()
}

// ObserveRunCompleted records a finished run.
func ObserveRunCompleted(d time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	runsCompleted.WithLabelValues(outcome).Inc()
	runDuration.Observe(d.Seconds())
}

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates the scrape endpoint server. Returns nil when
// metrics are disabled.
func NewMetricsServer(cfg MetricsConfig) *MetricsServer {
	if !cfg.Enabled {
		return nil
	}
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return &MetricsServer{
		server: &http.Server{
			Addr:              cfg.ListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves the endpoint until Shutdown. Blocks.
func (m *MetricsServer) Start() error {
	if m == nil {
		return nil
	}
	err := m.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the endpoint.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
