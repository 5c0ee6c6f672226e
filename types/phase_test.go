package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseDefinition_Helpers(t *testing.T) {
	def := PhaseDefinition{
		Name:            PhaseReview,
		RequiredFields:  []string{"review_verdict"},
		WritableFields:  []string{"review_verdict", "session_notes"},
		RollbackTargets: []Phase{PhaseAnalysis, PhaseGeneration},
	}

	assert.True(t, def.RequiresField("review_verdict"))
	assert.False(t, def.RequiresField("session_notes"))
	assert.True(t, def.AllowsWrite("session_notes"))
	assert.False(t, def.AllowsWrite("delivery_receipt"))
	assert.True(t, def.AllowsRollbackTo(PhaseAnalysis))
	assert.False(t, def.AllowsRollbackTo(PhaseDiscovery))
}

func TestDefaultPhases_Shape(t *testing.T) {
	phases := DefaultPhases()
	require.Len(t, phases, 7)
	for i, p := range phases {
		assert.Equal(t, i, p.Position)
	}
	assert.Equal(t, PhaseInitialization, phases[0].Name)
	assert.Equal(t, PhaseCompletion, phases[6].Name)
	assert.Empty(t, phases[6].RequiredFields, "terminal phase gates nothing")

	var skippable []Phase
	for _, p := range phases {
		if p.Skippable {
			skippable = append(skippable, p.Name)
		}
	}
	assert.Equal(t, []Phase{PhaseGeneration}, skippable)
}
