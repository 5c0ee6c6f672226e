package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCollector_CountsDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("phasegate", reg, zaptest.NewLogger(t))

	c.ObserveDecision("field_write", "accepted", 5*time.Millisecond)
	c.ObserveDecision("field_write", "accepted", 3*time.Millisecond)
	c.ObserveDecision("phase_transition", "rejected", 1*time.Millisecond)

	accepted := testutil.ToFloat64(c.decisionsTotal.WithLabelValues("field_write", "accepted"))
	assert.Equal(t, float64(2), accepted)
	rejected := testutil.ToFloat64(c.decisionsTotal.WithLabelValues("phase_transition", "rejected"))
	assert.Equal(t, float64(1), rejected)
}

func TestCollector_PlainCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("phasegate", reg, zaptest.NewLogger(t))

	c.StaleConflict()
	c.StaleConflict()
	c.AuditAppendFailure()
	c.SessionStarted()
	c.SessionArchived()

	assert.Equal(t, float64(2), testutil.ToFloat64(c.staleConflicts))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.auditAppendFailures))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.sessionsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.sessionsArchived))
}

func TestCollector_RegistersGatherableFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("phasegate", reg, zaptest.NewLogger(t))
	c.ObserveDecision("field_write", "accepted", time.Millisecond)
	c.SessionStarted()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["phasegate_decisions_total"])
	assert.True(t, names["phasegate_proposal_duration_seconds"])
	assert.True(t, names["phasegate_sessions_started_total"])
}

func TestCollector_NilIsNoOp(t *testing.T) {
	var c *Collector

	// None of these may panic.
	c.ObserveDecision("field_write", "accepted", time.Millisecond)
	c.StaleConflict()
	c.AuditAppendFailure()
	c.SessionStarted()
	c.SessionArchived()
}
