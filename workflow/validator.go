package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/phasegate/types"
)

// Decision is the structured outcome of a proposal. Expected rejections are
// carried here as values; the proposing caller maps them to user-facing
// responses without special-casing errors.
type Decision struct {
	// Accepted is true when the proposal passed every gate.
	Accepted bool `json:"accepted"`

	// Code classifies a rejection. Empty on acceptance.
	Code types.ErrorCode `json:"code,omitempty"`

	// Reason names the specific violation: the missing field, the ordering
	// breach, or the denied (actor, field) pair.
	Reason string `json:"reason,omitempty"`

	// Missing lists the required fields that blocked a transition.
	Missing []string `json:"missing,omitempty"`

	// NoOp marks an idempotent same-phase re-entry: accepted, but nothing
	// was committed and no audit record was produced.
	NoOp bool `json:"no_op,omitempty"`

	// Rollback marks an accepted transition that traversed a rollback edge.
	Rollback bool `json:"rollback,omitempty"`
}

// Accept returns an accepting decision.
func Accept() Decision {
	return Decision{Accepted: true}
}

// Reject returns a rejecting decision with the given code and reason.
func Reject(code types.ErrorCode, reason string) Decision {
	return Decision{Code: code, Reason: reason}
}

// Validator enforces phase ordering and required-field gates. It is a pure,
// synchronous, in-memory computation: no I/O, no locking, no timeouts.
type Validator struct {
	phases *PhaseSet
}

// NewValidator creates a validator over the given phase set.
func NewValidator(phases *PhaseSet) *Validator {
	return &Validator{phases: phases}
}

// ValidateTransition checks whether state may move to target.
//
// outstanding maps required-field names to the reason their most recent
// write was rejected; a transition is blocked while any required field of
// the current phase has such an outstanding rejection. The engine derives
// this set from the audit trail so the validator itself stays pure.
func (v *Validator) ValidateTransition(state any, target types.Phase, outstanding map[string]string) Decision {
	if Archived(state) {
		return Reject(types.ErrSessionArchived, "session is archived")
	}

	current := CurrentPhase(state)
	curDef, ok := v.phases.Definition(current)
	if !ok {
		return Reject(types.ErrUnknownPhase, fmt.Sprintf("unknown current phase %q", current))
	}
	tgtDef, ok := v.phases.Definition(target)
	if !ok {
		return Reject(types.ErrUnknownPhase, fmt.Sprintf("unknown target phase %q", target))
	}

	// Idempotent re-entry: transitioning to the current phase is a no-op
	// success with no history change and no audit record.
	if target == current {
		d := Accept()
		d.NoOp = true
		return d
	}

	if v.phases.IsTerminal(current) {
		return Reject(types.ErrTerminalPhase,
			fmt.Sprintf("phase %q is terminal, no transitions permitted", current))
	}

	if tgtDef.Position < curDef.Position {
		return v.validateRollback(curDef, tgtDef)
	}
	return v.validateForward(state, curDef, tgtDef, outstanding)
}

func (v *Validator) validateForward(state any, cur, tgt types.PhaseDefinition, outstanding map[string]string) Decision {
	// Every phase jumped over must be explicitly skippable.
	for _, between := range v.phases.Between(cur.Name, tgt.Name) {
		if !between.Skippable {
			return Reject(types.ErrInvalidTransition,
				fmt.Sprintf("invalid phase order: %s required before %s", between.Name, tgt.Name))
		}
	}

	// Exit gate: all required fields of the current phase must be populated,
	// checked through the state access layer so both shapes validate alike.
	var missing []string
	for _, f := range cur.RequiredFields {
		if !FieldPresent(state, f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		d := Reject(types.ErrMissingRequiredField,
			fmt.Sprintf("missing required field(s): %s", strings.Join(missing, ", ")))
		d.Missing = missing
		return d
	}

	// A required field whose latest write was rejected blocks the exit even
	// if an older accepted value is still present.
	for _, f := range cur.RequiredFields {
		if reason, ok := outstanding[f]; ok {
			return Reject(types.ErrOutstandingRejection,
				fmt.Sprintf("required field %q has an outstanding rejected write: %s", f, reason))
		}
	}

	return Accept()
}

func (v *Validator) validateRollback(cur, tgt types.PhaseDefinition) Decision {
	if !cur.AllowsRollbackTo(tgt.Name) {
		return Reject(types.ErrRollbackNotAllowed,
			fmt.Sprintf("rollback from %s to %s not permitted", cur.Name, tgt.Name))
	}
	d := Accept()
	d.Rollback = true
	return d
}
