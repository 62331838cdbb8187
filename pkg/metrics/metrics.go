// Package metrics provides Prometheus counters for draudit operations.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "draudit"

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry()
	}
	return defaultRegistry
}

// SetDefault replaces the process-wide registry. Tests use it to isolate
// counters.
func SetDefault(r *Registry) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = r
}

// Registry holds all draudit metrics on a private Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	SnapshotPuts    *prometheus.CounterVec
	RecordsAppended prometheus.Counter
	ReplayOutcomes  *prometheus.CounterVec
	ReplayDuration  prometheus.Histogram
	AuditRuns       *prometheus.CounterVec
}

// NewRegistry creates a registry with every draudit collector registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		SnapshotPuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_puts_total",
			Help:      "Snapshot writes by result (created or existing).",
		}, []string{"result"}),
		RecordsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_appended_total",
			Help:      "Decision records appended to a log.",
		}),
		ReplayOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_outcomes_total",
			Help:      "Replay verifications by outcome.",
		}, []string{"outcome"}),
		ReplayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replay_duration_seconds",
			Help:      "Wall time of a single replay verification.",
			Buckets:   prometheus.DefBuckets,
		}),
		AuditRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_runs_total",
			Help:      "Completed audits by result (accepted or rejected).",
		}, []string{"result"}),
	}
	r.reg.MustRegister(r.SnapshotPuts, r.RecordsAppended, r.ReplayOutcomes, r.ReplayDuration, r.AuditRuns)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// RecordSnapshotPut counts a snapshot write.
func (r *Registry) RecordSnapshotPut(created bool) {
	result := "existing"
	if created {
		result = "created"
	}
	r.SnapshotPuts.WithLabelValues(result).Inc()
}

// RecordAppend counts an appended decision record.
func (r *Registry) RecordAppend() {
	r.RecordsAppended.Inc()
}

// RecordReplay counts a replay outcome and its duration.
func (r *Registry) RecordReplay(outcome string, d time.Duration) {
	r.ReplayOutcomes.WithLabelValues(outcome).Inc()
	r.ReplayDuration.Observe(d.Seconds())
}

// RecordAudit counts a finished audit.
func (r *Registry) RecordAudit(accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	r.AuditRuns.WithLabelValues(result).Inc()
}

// WriteTextfile writes every metric in the text exposition format, for
// pickup by a node_exporter textfile collector. The file is replaced
// atomically.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
