package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/phasegate/testutil"
	"github.com/BaSui01/phasegate/types"
)

func TestNewPhaseSet_OrdersAndValidates(t *testing.T) {
	// Declared out of order on purpose.
	defs := []types.PhaseDefinition{
		{Name: "c", Position: 20},
		{Name: "a", Position: 0},
		{Name: "b", Position: 10},
	}
	ps, err := NewPhaseSet(defs)
	require.NoError(t, err)

	assert.Equal(t, types.Phase("a"), ps.First())
	assert.Equal(t, types.Phase("c"), ps.Last())
	assert.Equal(t, 3, ps.Len())

	// Positions are normalized to index order.
	for i, d := range ps.Definitions() {
		assert.Equal(t, i, d.Position)
	}
	pos, ok := ps.Position("b")
	require.True(t, ok)
	assert.Equal(t, 1, pos)
}

func TestNewPhaseSet_Rejections(t *testing.T) {
	tests := []struct {
		name string
		defs []types.PhaseDefinition
	}{
		{"empty", nil},
		{"unnamed", []types.PhaseDefinition{{Position: 0}}},
		{"duplicate name", []types.PhaseDefinition{
			{Name: "a", Position: 0}, {Name: "a", Position: 1},
		}},
		{"duplicate position", []types.PhaseDefinition{
			{Name: "a", Position: 0}, {Name: "b", Position: 0},
		}},
		{"rollback to unknown", []types.PhaseDefinition{
			{Name: "a", Position: 0},
			{Name: "b", Position: 1, RollbackTargets: []types.Phase{"zzz"}},
		}},
		{"forward rollback", []types.PhaseDefinition{
			{Name: "a", Position: 0, RollbackTargets: []types.Phase{"b"}},
			{Name: "b", Position: 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPhaseSet(tt.defs)
			assert.Error(t, err)
		})
	}
}

func TestPhaseSet_BetweenAndAfter(t *testing.T) {
	ps := MustPhaseSet(testutil.TestPhases())

	between := ps.Between("draft", "approval")
	require.Len(t, between, 1)
	assert.Equal(t, types.Phase("review"), between[0].Name)

	assert.Empty(t, ps.Between("draft", "review"))
	assert.Empty(t, ps.Between("approval", "draft"))
	assert.Empty(t, ps.Between("draft", "nope"))

	after := ps.After("review")
	require.Len(t, after, 2)
	assert.Equal(t, types.Phase("approval"), after[0].Name)
	assert.Equal(t, types.Phase("done"), after[1].Name)

	assert.Empty(t, ps.After("done"))
	assert.Empty(t, ps.After("nope"))
}

func TestPhaseSet_Terminal(t *testing.T) {
	ps := MustPhaseSet(testutil.TestPhases())
	assert.True(t, ps.IsTerminal("done"))
	assert.False(t, ps.IsTerminal("draft"))
	assert.False(t, ps.IsTerminal("nope"))
}

func TestDefaultPhases_FormValidSet(t *testing.T) {
	ps, err := NewPhaseSet(types.DefaultPhases())
	require.NoError(t, err)
	assert.Equal(t, types.PhaseInitialization, ps.First())
	assert.Equal(t, types.PhaseCompletion, ps.Last())
	assert.Equal(t, 7, ps.Len())

	gen, ok := ps.Definition(types.PhaseGeneration)
	require.True(t, ok)
	assert.True(t, gen.Skippable)
}
