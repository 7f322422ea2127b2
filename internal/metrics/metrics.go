// Package metrics exposes worker counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hochfrequenz/pep8bot/internal/domain"
)

const namespace = "pep8bot"

// Task results
const (
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// Metrics holds the worker's collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// tasks counts processed tasks.
	// Labels: result (completed, failed)
	tasks *prometheus.CounterVec

	// commits counts checked commits.
	// Labels: status (success, failure, error)
	commits *prometheus.CounterVec

	commitDuration prometheus.Histogram
	findings       prometheus.Counter
}

// New registers the worker collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total tasks processed by result",
		}, []string{"result"}),
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Total commits checked by status",
		}, []string{"status"}),
		commitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Time to check out, analyze and report one commit",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		findings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Total style violations found",
		}),
	}
}

// ObserveTask records a finished task
func (m *Metrics) ObserveTask(result string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(result).Inc()
}

// ObserveCommit records a finished commit
func (m *Metrics) ObserveCommit(st domain.Status, elapsed time.Duration, findings int) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(string(st)).Inc()
	m.commitDuration.Observe(elapsed.Seconds())
	m.findings.Add(float64(findings))
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
