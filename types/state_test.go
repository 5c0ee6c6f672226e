package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowState_Clone(t *testing.T) {
	orig := &WorkflowState{
		SessionID:    "s-1",
		Phase:        PhaseReview,
		PhaseHistory: []PhaseTraversal{{Phase: PhaseInitialization}, {Phase: PhaseReview}},
		Fields:       map[string]any{"review_verdict": "approve"},
		AuditRefs:    []string{"rec-1"},
		Revision:     4,
	}

	clone := orig.Clone()
	require.Equal(t, orig, clone)

	clone.Fields["review_verdict"] = "reject"
	clone.PhaseHistory[0].Rollback = true
	clone.AuditRefs[0] = "rec-x"
	clone.Revision = 5

	assert.Equal(t, "approve", orig.Fields["review_verdict"])
	assert.False(t, orig.PhaseHistory[0].Rollback)
	assert.Equal(t, "rec-1", orig.AuditRefs[0])
	assert.Equal(t, uint64(4), orig.Revision)

	var nilState *WorkflowState
	assert.Nil(t, nilState.Clone())
}

func TestWorkflowState_Terminal(t *testing.T) {
	s := &WorkflowState{Phase: PhaseCompletion}
	assert.True(t, s.Terminal(PhaseCompletion))
	assert.False(t, s.Terminal(PhaseReview))

	var nilState *WorkflowState
	assert.False(t, nilState.Terminal(PhaseCompletion))
}
