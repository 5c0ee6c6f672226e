package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/phasegate/types"
)

// fieldNameGen avoids the well-known attribute names so generated fields land
// in the domain field space on every shape.
func fieldNameGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z][a-z0-9_]{0,15}`).Filter(func(s string) bool {
		switch s {
		case KeySessionID, KeyPhase, KeyRevision, KeyArchived, keyFields, "existing":
			return false
		}
		return true
	})
}

func fieldValueGen() *rapid.Generator[any] {
	return rapid.OneOf(
		rapid.String().AsAny(),
		rapid.Float64Range(-1e9, 1e9).AsAny(),
		rapid.Bool().AsAny(),
	)
}

// Whatever fields are written, both state shapes must answer reads
// identically after a serialization round-trip.
func TestProp_ReadEquivalentAcrossShapes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		state := &types.WorkflowState{
			SessionID: rapid.StringMatching(`s-[0-9]{1,6}`).Draw(t, "sid"),
			Phase:     "draft",
			Fields:    make(map[string]any),
			Revision:  rapid.Uint64Range(1, 1<<52).Draw(t, "rev"),
		}
		names := rapid.SliceOfNDistinct(fieldNameGen(), 0, 8, rapid.ID[string]).Draw(t, "names")
		for _, name := range names {
			state.Fields[name] = fieldValueGen().Draw(t, "val_"+name)
		}

		m, err := ToMapping(state)
		require.NoError(t, err)

		for _, name := range names {
			rec := Read(state, name, nil)
			mp := Read(m, name, nil)
			// JSON turns every number into float64; compare through the
			// same normalization.
			switch rv := rec.(type) {
			case float64:
				require.Equal(t, rv, mp)
			default:
				require.Equal(t, rec, mp)
			}
		}
		require.Equal(t, SessionID(state), SessionID(m))
		require.Equal(t, Revision(state), Revision(m))
		require.Equal(t, CurrentPhase(state), CurrentPhase(m))
	})
}

// A write followed by a read returns the written value, on either shape, and
// never mutates the input.
func TestProp_WriteThenRead(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		field := fieldNameGen().Draw(t, "field")
		value := fieldValueGen().Draw(t, "value")

		state := &types.WorkflowState{
			SessionID: "s-prop",
			Phase:     "draft",
			Fields:    map[string]any{"existing": "x"},
			Revision:  1,
		}
		m, err := ToMapping(state)
		require.NoError(t, err)

		outRec := Write(state, field, value)
		require.Equal(t, value, Read(outRec, field, nil))
		_, hadIt := state.Fields[field]
		require.False(t, hadIt, "input record mutated")

		outMap := Write(m, field, value)
		require.Equal(t, value, Read(outMap, field, nil))
		require.Nil(t, Read(m, field, nil), "input mapping mutated")

		// The untouched field survives on both shapes.
		require.Equal(t, "x", Read(outRec, "existing", nil))
		require.Equal(t, "x", Read(outMap, "existing", nil))
	})
}
