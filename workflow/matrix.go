package workflow

import (
	"sort"

	"github.com/BaSui01/phasegate/types"
)

// ruleKey identifies one cell of the authorization matrix.
type ruleKey struct {
	actor string
	field string
	phase types.Phase
}

// Matrix is the field-write authorization matrix: an enumerated allow-list
// keyed by (actor, field, phase). It is immutable after construction; hot
// reload swaps the whole matrix atomically rather than mutating it.
//
// The matrix is fail-closed by construction: CanWrite answers true only for
// tuples an AuthorizationRule explicitly enumerates. Unknown actors, unknown
// fields, and rules with an empty phase list all deny.
type Matrix struct {
	allow map[ruleKey]struct{}
}

// NewMatrix builds a matrix from the static rule set.
func NewMatrix(rules []types.AuthorizationRule) *Matrix {
	m := &Matrix{allow: make(map[ruleKey]struct{})}
	for _, r := range rules {
		if r.Actor == "" || r.Field == "" {
			continue
		}
		for _, p := range r.Phases {
			m.allow[ruleKey{actor: r.Actor, field: r.Field, phase: p}] = struct{}{}
		}
	}
	return m
}

// CanWrite reports whether actor may write field while phase is current.
// A nil matrix denies everything.
func (m *Matrix) CanWrite(actor, field string, phase types.Phase) bool {
	if m == nil {
		return false
	}
	_, ok := m.allow[ruleKey{actor: actor, field: field, phase: phase}]
	return ok
}

// Len returns the number of allow cells.
func (m *Matrix) Len() int {
	if m == nil {
		return 0
	}
	return len(m.allow)
}

// Actors returns the distinct actors the matrix knows, sorted. Intended for
// diagnostics and tests, not for authorization decisions.
func (m *Matrix) Actors() []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for k := range m.allow {
		seen[k.actor] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
