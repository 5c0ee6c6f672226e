package workflow

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/phasegate/types"
)

func TestMatrix_CanWrite(t *testing.T) {
	m := NewMatrix([]types.AuthorizationRule{
		{Actor: "writer", Field: "content", Phases: []types.Phase{"draft", "review"}},
		{Actor: "approver", Field: "approved", Phases: []types.Phase{"approval"}},
	})

	assert.True(t, m.CanWrite("writer", "content", "draft"))
	assert.True(t, m.CanWrite("writer", "content", "review"))
	assert.True(t, m.CanWrite("approver", "approved", "approval"))

	// Any dimension off the allow-list denies.
	assert.False(t, m.CanWrite("writer", "content", "approval"))
	assert.False(t, m.CanWrite("writer", "approved", "draft"))
	assert.False(t, m.CanWrite("intruder", "content", "draft"))
}

func TestMatrix_DegenerateRules(t *testing.T) {
	m := NewMatrix([]types.AuthorizationRule{
		{Actor: "", Field: "content", Phases: []types.Phase{"draft"}},
		{Actor: "writer", Field: "", Phases: []types.Phase{"draft"}},
		{Actor: "writer", Field: "content"}, // no phases
	})
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.CanWrite("writer", "content", "draft"))
	assert.False(t, m.CanWrite("", "content", "draft"))
}

func TestMatrix_NilDeniesEverything(t *testing.T) {
	var m *Matrix
	assert.False(t, m.CanWrite("anyone", "anything", "draft"))
	assert.Equal(t, 0, m.Len())
	assert.Nil(t, m.Actors())
}

func TestMatrix_Actors(t *testing.T) {
	m := NewMatrix([]types.AuthorizationRule{
		{Actor: "b", Field: "f", Phases: []types.Phase{"p"}},
		{Actor: "a", Field: "f", Phases: []types.Phase{"p"}},
		{Actor: "a", Field: "g", Phases: []types.Phase{"p"}},
	})
	assert.Equal(t, []string{"a", "b"}, m.Actors())
}

// The matrix is fail-closed: for any rule set, CanWrite answers true only
// for tuples some rule explicitly enumerates.
func TestMatrix_FailClosedProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	ident := gen.RegexMatch(`[a-z]{1,6}`)

	ruleGen := gopter.CombineGens(ident, ident, gen.SliceOfN(2, ident)).Map(
		func(vals []interface{}) types.AuthorizationRule {
			phases := make([]types.Phase, 0, 2)
			for _, p := range vals[2].([]string) {
				phases = append(phases, types.Phase(p))
			}
			return types.AuthorizationRule{
				Actor:  vals[0].(string),
				Field:  vals[1].(string),
				Phases: phases,
			}
		})

	properties.Property("allow iff enumerated", prop.ForAll(
		func(rules []types.AuthorizationRule, actor, field, phase string) bool {
			m := NewMatrix(rules)
			enumerated := false
			for _, r := range rules {
				if r.Actor != actor || r.Field != field {
					continue
				}
				for _, p := range r.Phases {
					if p == types.Phase(phase) {
						enumerated = true
					}
				}
			}
			return m.CanWrite(actor, field, types.Phase(phase)) == enumerated
		},
		gen.SliceOf(ruleGen),
		ident, ident, ident,
	))

	properties.TestingRun(t)
}
