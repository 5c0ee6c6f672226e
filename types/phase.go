package types

// Phase is a named stage in the workflow progression.
type Phase string

// Canonical phases of the default delivery workflow, in declared order.
const (
	PhaseInitialization Phase = "initialization"
	PhaseDiscovery      Phase = "discovery"
	PhaseAnalysis       Phase = "analysis"
	PhaseGeneration     Phase = "generation"
	PhaseReview         Phase = "review"
	PhaseDelivery       Phase = "delivery"
	PhaseCompletion     Phase = "completion"
)

// PhaseDefinition declares a single phase: its position in the linear order,
// the fields that must be populated before leaving it, the fields its actors
// may write, and the explicit rollback edges out of it.
//
// Rollback legality is never inferred from adjacency: a phase may only be
// rolled back to targets listed in RollbackTargets.
type PhaseDefinition struct {
	// Name is the phase identifier.
	Name Phase `json:"name" yaml:"name"`

	// Position is the zero-based position in the declared linear order.
	Position int `json:"position" yaml:"position"`

	// RequiredFields must be present and non-empty before transitioning out.
	RequiredFields []string `json:"required_fields,omitempty" yaml:"required_fields,omitempty"`

	// WritableFields are the fields any actor may write while this phase is
	// current. A write to a field outside this set is rejected before the
	// authorization matrix is consulted.
	WritableFields []string `json:"writable_fields,omitempty" yaml:"writable_fields,omitempty"`

	// Skippable marks the phase as skippable on forward transitions.
	Skippable bool `json:"skippable,omitempty" yaml:"skippable,omitempty"`

	// RollbackTargets lists the phases this phase may roll back to.
	RollbackTargets []Phase `json:"rollback_targets,omitempty" yaml:"rollback_targets,omitempty"`
}

// AllowsRollbackTo reports whether target is an explicit rollback edge.
func (d PhaseDefinition) AllowsRollbackTo(target Phase) bool {
	for _, t := range d.RollbackTargets {
		if t == target {
			return true
		}
	}
	return false
}

// RequiresField reports whether field gates the exit of this phase.
func (d PhaseDefinition) RequiresField(field string) bool {
	for _, f := range d.RequiredFields {
		if f == field {
			return true
		}
	}
	return false
}

// AllowsWrite reports whether field is writable while this phase is current.
func (d PhaseDefinition) AllowsWrite(field string) bool {
	for _, f := range d.WritableFields {
		if f == field {
			return true
		}
	}
	return false
}

// DefaultPhases returns the canonical seven-phase delivery workflow.
// Review may roll back to analysis or generation; delivery may roll back to
// review. Generation is the only skippable phase.
func DefaultPhases() []PhaseDefinition {
	return []PhaseDefinition{
		{
			Name:            PhaseInitialization,
			Position:        0,
			RequiredFields:  []string{"requirements_complete"},
			WritableFields:  []string{"requirements_complete", "session_notes"},
			RollbackTargets: nil,
		},
		{
			Name:           PhaseDiscovery,
			Position:       1,
			RequiredFields: []string{"discovery_summary"},
			WritableFields: []string{"discovery_summary", "session_notes"},
		},
		{
			Name:            PhaseAnalysis,
			Position:        2,
			RequiredFields:  []string{"analysis_report"},
			WritableFields:  []string{"analysis_report", "session_notes"},
			RollbackTargets: []Phase{PhaseDiscovery},
		},
		{
			Name:           PhaseGeneration,
			Position:       3,
			RequiredFields: []string{"generated_output"},
			WritableFields: []string{"generated_output", "session_notes"},
			Skippable:      true,
		},
		{
			Name:            PhaseReview,
			Position:        4,
			RequiredFields:  []string{"review_verdict"},
			WritableFields:  []string{"review_verdict", "session_notes"},
			RollbackTargets: []Phase{PhaseAnalysis, PhaseGeneration},
		},
		{
			Name:            PhaseDelivery,
			Position:        5,
			RequiredFields:  []string{"delivery_receipt"},
			WritableFields:  []string{"delivery_receipt", "session_notes"},
			RollbackTargets: []Phase{PhaseReview},
		},
		{
			Name:     PhaseCompletion,
			Position: 6,
		},
	}
}
