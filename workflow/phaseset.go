package workflow

import (
	"fmt"
	"sort"

	"github.com/BaSui01/phasegate/types"
)

// PhaseSet is the ordered, validated set of phase definitions a workflow
// runs under. Like the Matrix it is immutable after construction and swapped
// wholesale on configuration reload.
type PhaseSet struct {
	ordered []types.PhaseDefinition
	byName  map[types.Phase]int
}

// NewPhaseSet validates and orders the definitions. Definitions are sorted
// by Position; names must be unique and positions must form a strict order.
func NewPhaseSet(defs []types.PhaseDefinition) (*PhaseSet, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("phase set must not be empty")
	}

	sorted := make([]types.PhaseDefinition, len(defs))
	copy(sorted, defs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	byName := make(map[types.Phase]int, len(sorted))
	for i := range sorted {
		name := sorted[i].Name
		if name == "" {
			return nil, fmt.Errorf("phase at position %d has no name", sorted[i].Position)
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("duplicate phase %q", name)
		}
		if i > 0 && sorted[i].Position == sorted[i-1].Position {
			return nil, fmt.Errorf("phases %q and %q share position %d", sorted[i-1].Name, name, sorted[i].Position)
		}
		// Normalize positions to the index order.
		sorted[i].Position = i
		byName[name] = i
	}

	for i := range sorted {
		for _, rb := range sorted[i].RollbackTargets {
			j, ok := byName[rb]
			if !ok {
				return nil, fmt.Errorf("phase %q declares rollback to unknown phase %q", sorted[i].Name, rb)
			}
			if j >= i {
				return nil, fmt.Errorf("phase %q declares non-backward rollback to %q", sorted[i].Name, rb)
			}
		}
	}

	return &PhaseSet{ordered: sorted, byName: byName}, nil
}

// MustPhaseSet is NewPhaseSet that panics on invalid definitions. For use
// with static, compile-time-known phase lists.
func MustPhaseSet(defs []types.PhaseDefinition) *PhaseSet {
	ps, err := NewPhaseSet(defs)
	if err != nil {
		panic(err)
	}
	return ps
}

// First returns the initial phase.
func (ps *PhaseSet) First() types.Phase {
	return ps.ordered[0].Name
}

// Last returns the terminal phase.
func (ps *PhaseSet) Last() types.Phase {
	return ps.ordered[len(ps.ordered)-1].Name
}

// Len returns the number of phases.
func (ps *PhaseSet) Len() int {
	return len(ps.ordered)
}

// Definition returns the definition of p.
func (ps *PhaseSet) Definition(p types.Phase) (types.PhaseDefinition, bool) {
	i, ok := ps.byName[p]
	if !ok {
		return types.PhaseDefinition{}, false
	}
	return ps.ordered[i], true
}

// Position returns the ordered position of p.
func (ps *PhaseSet) Position(p types.Phase) (int, bool) {
	i, ok := ps.byName[p]
	return i, ok
}

// IsTerminal reports whether p is the last phase.
func (ps *PhaseSet) IsTerminal(p types.Phase) bool {
	return p == ps.Last()
}

// Between returns the definitions strictly between from and to in forward
// order. Both bounds must be known phases with from before to.
func (ps *PhaseSet) Between(from, to types.Phase) []types.PhaseDefinition {
	i, iok := ps.byName[from]
	j, jok := ps.byName[to]
	if !iok || !jok || j <= i+1 {
		return nil
	}
	return ps.ordered[i+1 : j]
}

// After returns the definitions strictly after p in forward order.
func (ps *PhaseSet) After(p types.Phase) []types.PhaseDefinition {
	i, ok := ps.byName[p]
	if !ok || i+1 >= len(ps.ordered) {
		return nil
	}
	return ps.ordered[i+1:]
}

// Definitions returns a copy of the ordered definitions.
func (ps *PhaseSet) Definitions() []types.PhaseDefinition {
	out := make([]types.PhaseDefinition, len(ps.ordered))
	copy(out, ps.ordered)
	return out
}
