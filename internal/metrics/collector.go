package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the prometheus instruments of the workflow engine.
// Construct one per registry; a nil *Collector is a valid no-op receiver so
// the engine never branches on whether metrics are enabled.
type Collector struct {
	decisionsTotal      *prometheus.CounterVec
	proposalDuration    *prometheus.HistogramVec
	staleConflicts      prometheus.Counter
	auditAppendFailures prometheus.Counter
	sessionsStarted     prometheus.Counter
	sessionsArchived    prometheus.Counter

	logger *zap.Logger
}

// NewCollector registers the engine instruments on reg under namespace.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.decisionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total proposal decisions by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	c.proposalDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proposal_duration_seconds",
			Help:      "Proposal handling duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	c.staleConflicts = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_revision_conflicts_total",
			Help:      "Proposals rejected because they were computed against a stale revision",
		},
	)

	c.auditAppendFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_append_failures_total",
			Help:      "Failed audit sink appends",
		},
	)

	c.sessionsStarted = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Workflow sessions started",
		},
	)

	c.sessionsArchived = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_archived_total",
			Help:      "Workflow sessions archived",
		},
	)

	return c
}

// ObserveDecision records one proposal decision and its duration.
func (c *Collector) ObserveDecision(operation, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.decisionsTotal.WithLabelValues(operation, outcome).Inc()
	c.proposalDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// StaleConflict records one optimistic-concurrency conflict.
func (c *Collector) StaleConflict() {
	if c == nil {
		return
	}
	c.staleConflicts.Inc()
}

// AuditAppendFailure records one failed audit append.
func (c *Collector) AuditAppendFailure() {
	if c == nil {
		return
	}
	c.auditAppendFailures.Inc()
}

// SessionStarted records one started session.
func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.sessionsStarted.Inc()
}

// SessionArchived records one archived session.
func (c *Collector) SessionArchived() {
	if c == nil {
		return
	}
	c.sessionsArchived.Inc()
}
