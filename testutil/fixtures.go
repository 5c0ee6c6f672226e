// Package testutil provides shared fixtures for PhaseGate tests.
package testutil

import (
	"time"

	"github.com/BaSui01/phasegate/types"
)

// TestPhases returns a compact four-phase workflow: draft, review
// (skippable), approval, done. Approval can roll back to draft.
func TestPhases() []types.PhaseDefinition {
	return []types.PhaseDefinition{
		{
			Name:           "draft",
			Position:       0,
			RequiredFields: []string{"content"},
			WritableFields: []string{"content", "notes"},
		},
		{
			Name:           "review",
			Position:       1,
			RequiredFields: []string{"review_notes"},
			WritableFields: []string{"review_notes"},
			Skippable:      true,
		},
		{
			Name:            "approval",
			Position:        2,
			RequiredFields:  []string{"approved"},
			WritableFields:  []string{"approved"},
			RollbackTargets: []types.Phase{"draft"},
		},
		{
			Name:     "done",
			Position: 3,
		},
	}
}

// TestRules allows writer/content in draft, reviewer/review_notes in review,
// and approver/approved in approval.
func TestRules() []types.AuthorizationRule {
	return []types.AuthorizationRule{
		{Actor: "writer", Field: "content", Phases: []types.Phase{"draft"}},
		{Actor: "writer", Field: "notes", Phases: []types.Phase{"draft"}},
		{Actor: "reviewer", Field: "review_notes", Phases: []types.Phase{"review"}},
		{Actor: "approver", Field: "approved", Phases: []types.Phase{"approval"}},
	}
}

// NewState builds a workflow state in the given phase at revision 1.
func NewState(sessionID string, phase types.Phase, fields map[string]any) *types.WorkflowState {
	if fields == nil {
		fields = make(map[string]any)
	}
	now := time.Now()
	return &types.WorkflowState{
		SessionID:    sessionID,
		Phase:        phase,
		PhaseHistory: []types.PhaseTraversal{{Phase: phase, EnteredAt: now}},
		Fields:       fields,
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
