// Package metrics records rule execution metrics in a Prometheus registry.
//
// Metrics:
//   - leapcheck_rule_executions_total: rule executions by task, status and severity
//   - leapcheck_rule_duration_seconds: rule execution duration by task
//   - leapcheck_rule_retries_total: transient-error retries by task
//
// leapcheck runs as a batch job, so the registry is written to a
// node-exporter textfile instead of being scraped.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "leapcheck"

// Status label values.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// Metrics holds the rule execution collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	executionsTotal *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
}

// New creates the collectors and registers them with registry. A nil
// registry gets a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "rule_executions_total",
				Help:      "Total number of rule executions",
			},
			[]string{"task", "status", "severity"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "rule_duration_seconds",
				Help:      "Duration of rule execution in seconds",
				// 5ms to ~80s
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 15),
			},
			[]string{"task"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "rule_retries_total",
				Help:      "Total number of rule retries after transient store errors",
			},
			[]string{"task"},
		),
	}

	registry.MustRegister(m.executionsTotal, m.duration, m.retriesTotal)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordExecution records one finished rule.
func (m *Metrics) RecordExecution(task string, success bool, severity string, d time.Duration) {
	if m == nil {
		return
	}
	status := StatusFailed
	if success {
		status = StatusPassed
	}
	m.executionsTotal.WithLabelValues(task, status, severity).Inc()
	m.duration.WithLabelValues(task).Observe(d.Seconds())
}

// RecordRetry records one retry of a rule.
func (m *Metrics) RecordRetry(task string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(task).Inc()
}

// WriteTextfile writes the registry in the text exposition format. The
// write is atomic, so a concurrent node-exporter never sees a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
