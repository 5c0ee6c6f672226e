package workflow

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/BaSui01/phasegate/types"
)

// Well-known state attributes readable by name on every state shape.
const (
	KeySessionID = "session_id"
	KeyPhase     = "phase"
	KeyRevision  = "revision"
	KeyArchived  = "archived"
	keyFields    = "fields"
)

// Read returns the value of field from state, or def when the field is
// absent. state may be a *types.WorkflowState, a types.WorkflowState value,
// a map[string]any (flat or carrying a nested "fields" sub-map, as produced
// by a JSON round-trip of WorkflowState), or an arbitrary struct.
//
// Read never returns an error and never panics: the state's shape is not
// under this layer's control, so absence and shape mismatch both yield def.
func Read(state any, field string, def any) any {
	switch s := state.(type) {
	case nil:
		return def
	case *types.WorkflowState:
		if s == nil {
			return def
		}
		return readRecord(s, field, def)
	case types.WorkflowState:
		return readRecord(&s, field, def)
	case map[string]any:
		return readMapping(s, field, def)
	default:
		return readReflected(state, field, def)
	}
}

// readRecord resolves well-known attributes first, then the domain fields.
func readRecord(s *types.WorkflowState, field string, def any) any {
	switch field {
	case KeySessionID:
		return s.SessionID
	case KeyPhase:
		return string(s.Phase)
	case KeyRevision:
		return s.Revision
	case KeyArchived:
		return s.Archived
	}
	if v, ok := s.Fields[field]; ok {
		return v
	}
	return def
}

func readMapping(m map[string]any, field string, def any) any {
	if v, ok := m[field]; ok {
		return v
	}
	if sub, ok := m[keyFields].(map[string]any); ok {
		if v, ok := sub[field]; ok {
			return v
		}
	}
	return def
}

// readReflected is the fallback for shapes this layer has never seen:
// attribute-style access on structs (matching json/yaml tags or the field
// name), then mapping-style access on string-keyed maps.
func readReflected(state any, field string, def any) any {
	v := reflect.ValueOf(state)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return def
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			if structFieldMatches(f, field) {
				return v.Field(i).Interface()
			}
		}
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return def
		}
		mv := v.MapIndex(reflect.ValueOf(field).Convert(v.Type().Key()))
		if mv.IsValid() {
			return mv.Interface()
		}
	}
	return def
}

func structFieldMatches(f reflect.StructField, field string) bool {
	if tag := tagName(f.Tag.Get("json")); tag == field {
		return true
	}
	if tag := tagName(f.Tag.Get("yaml")); tag == field {
		return true
	}
	return strings.EqualFold(f.Name, field)
}

func tagName(tag string) string {
	if tag == "" || tag == "-" {
		return ""
	}
	if i := strings.Index(tag, ","); i >= 0 {
		return tag[:i]
	}
	return tag
}

// Write returns a new state with field set to value. The result has the same
// shape as the input, and the input is never mutated (copy-on-write). For
// unknown shapes that cannot be copied safely, the input is returned
// unchanged: Write absorbs shape mismatch the same way Read does.
func Write(state any, field string, value any) any {
	switch s := state.(type) {
	case nil:
		return state
	case *types.WorkflowState:
		if s == nil {
			return state
		}
		c := s.Clone()
		writeRecord(c, field, value)
		return c
	case types.WorkflowState:
		c := s.Clone()
		writeRecord(c, field, value)
		return *c
	case map[string]any:
		return writeMapping(s, field, value)
	default:
		return state
	}
}

func writeRecord(s *types.WorkflowState, field string, value any) {
	switch field {
	case KeySessionID:
		if str, ok := value.(string); ok {
			s.SessionID = str
		}
	case KeyPhase:
		s.Phase = coercePhase(value)
	case KeyRevision:
		s.Revision = coerceRevision(value)
	case KeyArchived:
		if b, ok := value.(bool); ok {
			s.Archived = b
		}
	default:
		if s.Fields == nil {
			s.Fields = make(map[string]any)
		}
		s.Fields[field] = value
	}
}

func writeMapping(m map[string]any, field string, value any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}

	switch field {
	case KeySessionID, KeyPhase, KeyRevision, KeyArchived:
		out[field] = value
		return out
	}

	// Domain fields live in the "fields" sub-map when the mapping came from
	// a serialized WorkflowState; otherwise they sit at the top level.
	if sub, ok := m[keyFields].(map[string]any); ok {
		subCopy := make(map[string]any, len(sub)+1)
		for k, v := range sub {
			subCopy[k] = v
		}
		subCopy[field] = value
		out[keyFields] = subCopy
		return out
	}
	out[field] = value
	return out
}

// SessionID extracts the session identifier from any state shape.
func SessionID(state any) string {
	v := Read(state, KeySessionID, "")
	s, _ := v.(string)
	return s
}

// CurrentPhase extracts the current phase from any state shape.
func CurrentPhase(state any) types.Phase {
	return coercePhase(Read(state, KeyPhase, ""))
}

// Revision extracts the revision counter from any state shape. A JSON
// round-trip turns uint64 into float64; both are accepted.
func Revision(state any) uint64 {
	return coerceRevision(Read(state, KeyRevision, uint64(0)))
}

// Archived reports whether the state has been archived.
func Archived(state any) bool {
	b, _ := Read(state, KeyArchived, false).(bool)
	return b
}

// FieldPresent reports whether field is populated: present and not the empty
// string, empty slice, or empty map. This is the required-field gate used by
// the transition validator.
func FieldPresent(state any, field string) bool {
	v := Read(state, field, nil)
	if v == nil {
		return false
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x) != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	}
	return true
}

func coercePhase(v any) types.Phase {
	switch p := v.(type) {
	case types.Phase:
		return p
	case string:
		return types.Phase(p)
	}
	return ""
}

func coerceRevision(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case uint:
		return uint64(n)
	case int:
		if n >= 0 {
			return uint64(n)
		}
	case int64:
		if n >= 0 {
			return uint64(n)
		}
	case float64:
		if n >= 0 {
			return uint64(n)
		}
	case json.Number:
		if i, err := n.Int64(); err == nil && i >= 0 {
			return uint64(i)
		}
	}
	return 0
}

// ToMapping converts a structured state into the generic mapping shape the
// downstream runtime produces: a JSON round-trip with domain fields under
// the "fields" key.
func ToMapping(s *types.WorkflowState) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "state not serializable").WithCause(err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, types.NewError(types.ErrInternalError, "state not serializable").WithCause(err)
	}
	return out, nil
}

// Canonicalize converts any accepted state shape into a structured
// *types.WorkflowState. Typed inputs are cloned; mapping and unknown shapes
// go through a JSON round-trip, which is exactly the normalization the
// downstream runtime applies in the other direction.
func Canonicalize(state any) (*types.WorkflowState, error) {
	switch s := state.(type) {
	case *types.WorkflowState:
		if s == nil {
			return nil, types.NewError(types.ErrInternalError, "nil workflow state")
		}
		return s.Clone(), nil
	case types.WorkflowState:
		return s.Clone(), nil
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "state not canonicalizable").WithCause(err)
	}
	var out types.WorkflowState
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, types.NewError(types.ErrInternalError, "state not canonicalizable").WithCause(err)
	}
	if out.Fields == nil {
		out.Fields = make(map[string]any)
	}
	return &out, nil
}
