package types

import "time"

// AuditAction is the kind of decision an audit record captures.
type AuditAction string

const (
	AuditActionFieldWrite AuditAction = "field_write"
	AuditActionTransition AuditAction = "phase_transition"
	AuditActionRollback   AuditAction = "rollback"
	AuditActionArchive    AuditAction = "archive"
)

// AuditOutcome is the decision outcome recorded for an action.
type AuditOutcome string

const (
	AuditAccepted AuditOutcome = "accepted"
	AuditRejected AuditOutcome = "rejected"
)

// AuditRecord is one immutable entry in a session's audit trail. Records are
// append-only: once written they are never mutated or deleted within the
// session's lifetime.
type AuditRecord struct {
	ID        string       `json:"id" yaml:"id"`
	SessionID string       `json:"session_id" yaml:"session_id"`
	Timestamp time.Time    `json:"timestamp" yaml:"timestamp"`
	Actor     string       `json:"actor,omitempty" yaml:"actor,omitempty"`
	Phase     Phase        `json:"phase" yaml:"phase"`
	Action    AuditAction  `json:"action" yaml:"action"`
	Field     string       `json:"field,omitempty" yaml:"field,omitempty"`
	Target    Phase        `json:"target,omitempty" yaml:"target,omitempty"`
	Outcome   AuditOutcome `json:"outcome" yaml:"outcome"`
	Reason    string       `json:"reason,omitempty" yaml:"reason,omitempty"`
	Revision  uint64       `json:"revision" yaml:"revision"`
}

// AuthorizationRule is one allow entry of the authorization matrix: the
// named actor may write the named field while any of the listed phases is
// current. The matrix is fail-closed: (actor, field, phase) combinations
// not covered by any rule are denied by construction.
type AuthorizationRule struct {
	Actor  string  `json:"actor" yaml:"actor"`
	Field  string  `json:"field" yaml:"field"`
	Phases []Phase `json:"phases" yaml:"phases"`
}
