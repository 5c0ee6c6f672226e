package types

import "time"

// PhaseTraversal records one entry into a phase, either a forward advance or
// an explicit rollback.
type PhaseTraversal struct {
	Phase     Phase     `json:"phase" yaml:"phase"`
	EnteredAt time.Time `json:"entered_at" yaml:"entered_at"`
	Rollback  bool      `json:"rollback,omitempty" yaml:"rollback,omitempty"`
}

// WorkflowState is the canonical per-session state record.
//
// The engine exclusively owns mutation; every other component receives a
// read-only view or a proposed delta. Orchestration runtimes downstream may
// serialize a WorkflowState into a generic map[string]any between steps, so
// read sites must never assume this shape; field access goes through the
// workflow package's shape-agnostic Read/Write helpers.
type WorkflowState struct {
	// SessionID uniquely identifies the owning session.
	SessionID string `json:"session_id" yaml:"session_id"`

	// Phase is the current phase. Always a member of the configured phase set.
	Phase Phase `json:"phase" yaml:"phase"`

	// PhaseHistory is the ordered sequence of phases traversed, including
	// the initial phase. Strictly monotonic in declared order except at
	// entries marked as rollbacks.
	PhaseHistory []PhaseTraversal `json:"phase_history" yaml:"phase_history"`

	// Fields holds the free-form domain fields.
	Fields map[string]any `json:"fields" yaml:"fields"`

	// AuditRefs lists the IDs of audit records produced for this session.
	AuditRefs []string `json:"audit_refs,omitempty" yaml:"audit_refs,omitempty"`

	// Revision is the monotonically increasing version counter used for
	// optimistic concurrency. A proposal computed against revision N commits
	// only if the session's current revision is still N.
	Revision uint64 `json:"revision" yaml:"revision"`

	// CreatedAt is the session start time.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// UpdatedAt is the time of the last committed mutation.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	// Archived is set when the session reached the terminal phase and was
	// explicitly archived. Archived states accept no further proposals.
	Archived bool `json:"archived,omitempty" yaml:"archived,omitempty"`
}

// Clone returns a deep copy. Proposals never mutate the input state; they
// clone, modify the clone, and attempt to commit it.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	out := *s
	out.PhaseHistory = make([]PhaseTraversal, len(s.PhaseHistory))
	copy(out.PhaseHistory, s.PhaseHistory)
	out.Fields = make(map[string]any, len(s.Fields))
	for k, v := range s.Fields {
		out.Fields[k] = v
	}
	out.AuditRefs = make([]string, len(s.AuditRefs))
	copy(out.AuditRefs, s.AuditRefs)
	return &out
}

// Terminal reports whether the state sits in the given terminal phase.
func (s *WorkflowState) Terminal(last Phase) bool {
	return s != nil && s.Phase == last
}
