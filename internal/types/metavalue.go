package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// MetaKind tags the dynamic type of a metadata value.
type MetaKind string

// Metadata value kinds
const (
	KindBool   MetaKind = "bool"
	KindInt    MetaKind = "int"
	KindFloat  MetaKind = "float"
	KindString MetaKind = "string"
	KindList   MetaKind = "list"
	KindMap    MetaKind = "map"
)

// MetaValue is a tagged-union metadata value. The tag keeps bool, int,
// float, string, list and map values distinct across persistence, so a
// metadata round-trip returns exactly the types that were stored (an int
// never comes back as a float, a bool never as 0/1).
//
// On the wire a MetaValue is the bare JSON value, not the union envelope.
type MetaValue struct {
	Kind MetaKind

	boolVal   bool
	intVal    int64
	floatVal  float64
	stringVal string
	listVal   []MetaValue
	mapVal    map[string]MetaValue
}

// MetaBool returns a bool-kinded value.
func MetaBool(v bool) MetaValue { return MetaValue{Kind: KindBool, boolVal: v} }

// MetaInt returns an int-kinded value.
func MetaInt(v int64) MetaValue { return MetaValue{Kind: KindInt, intVal: v} }

// MetaFloat returns a float-kinded value.
func MetaFloat(v float64) MetaValue { return MetaValue{Kind: KindFloat, floatVal: v} }

// MetaString returns a string-kinded value.
func MetaString(v string) MetaValue { return MetaValue{Kind: KindString, stringVal: v} }

// MetaList returns a list-kinded value.
func MetaList(items ...MetaValue) MetaValue {
	return MetaValue{Kind: KindList, listVal: items}
}

// MetaMap returns a map-kinded value.
func MetaMap(m map[string]MetaValue) MetaValue {
	return MetaValue{Kind: KindMap, mapVal: m}
}

// Bool returns the bool payload; ok is false for other kinds.
func (v MetaValue) Bool() (val bool, ok bool) { return v.boolVal, v.Kind == KindBool }

// Int returns the int payload; ok is false for other kinds.
func (v MetaValue) Int() (val int64, ok bool) { return v.intVal, v.Kind == KindInt }

// Float returns the float payload; ok is false for other kinds.
func (v MetaValue) Float() (val float64, ok bool) { return v.floatVal, v.Kind == KindFloat }

// String returns the string payload; ok is false for other kinds.
func (v MetaValue) String() (val string, ok bool) { return v.stringVal, v.Kind == KindString }

// List returns the list payload; ok is false for other kinds.
func (v MetaValue) List() (val []MetaValue, ok bool) { return v.listVal, v.Kind == KindList }

// Map returns the map payload; ok is false for other kinds.
func (v MetaValue) Map() (val map[string]MetaValue, ok bool) { return v.mapVal, v.Kind == KindMap }

// AsAny converts to plain Go values (bool, int64, float64, string,
// []any, map[string]any) for callers that lose nothing by dropping the tag.
func (v MetaValue) AsAny() any {
	switch v.Kind {
	case KindBool:
		return v.boolVal
	case KindInt:
		return v.intVal
	case KindFloat:
		return v.floatVal
	case KindString:
		return v.stringVal
	case KindList:
		out := make([]any, len(v.listVal))
		for i, item := range v.listVal {
			out[i] = item.AsAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.mapVal))
		for k, item := range v.mapVal {
			out[k] = item.AsAny()
		}
		return out
	}
	return nil
}

// MetaFromAny converts a plain Go value into a MetaValue. Numeric inputs
// keep their integer-ness: ints stay KindInt, and a float64 holding an
// exact integer decoded from JSON stays a float only if it carries a
// fractional part or came in as json.Number with a decimal point.
func MetaFromAny(v any) (MetaValue, error) {
	switch x := v.(type) {
	case nil:
		return MetaValue{}, fmt.Errorf("metadata values cannot be null")
	case MetaValue:
		return x, nil
	case bool:
		return MetaBool(x), nil
	case string:
		return MetaString(x), nil
	case int:
		return MetaInt(int64(x)), nil
	case int32:
		return MetaInt(int64(x)), nil
	case int64:
		return MetaInt(x), nil
	case float32:
		return metaFromFloat(float64(x)), nil
	case float64:
		return metaFromFloat(x), nil
	case json.Number:
		return metaFromNumber(x), nil
	case []any:
		items := make([]MetaValue, 0, len(x))
		for _, item := range x {
			mv, err := MetaFromAny(item)
			if err != nil {
				return MetaValue{}, err
			}
			items = append(items, mv)
		}
		return MetaList(items...), nil
	case map[string]any:
		m := make(map[string]MetaValue, len(x))
		for k, item := range x {
			mv, err := MetaFromAny(item)
			if err != nil {
				return MetaValue{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = mv
		}
		return MetaMap(m), nil
	}
	return MetaValue{}, fmt.Errorf("unsupported metadata value type %T", v)
}

// metaFromFloat keeps whole floats as ints only when they arrived through
// a path that cannot distinguish (plain float64 from encoding/json). A
// fractional part always forces KindFloat.
func metaFromFloat(f float64) MetaValue {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
		return MetaInt(int64(f))
	}
	return MetaFloat(f)
}

func metaFromNumber(n json.Number) MetaValue {
	if i, err := n.Int64(); err == nil && !bytes.ContainsAny([]byte(n.String()), ".eE") {
		return MetaInt(i)
	}
	f, err := n.Float64()
	if err != nil {
		// Out-of-range literal; keep the textual form.
		return MetaString(n.String())
	}
	return MetaFloat(f)
}

// MetaMapFromAny converts a decoded JSON object into typed metadata.
func MetaMapFromAny(m map[string]any) (map[string]MetaValue, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]MetaValue, len(m))
	for k, v := range m {
		mv, err := MetaFromAny(v)
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", k, err)
		}
		out[k] = mv
	}
	return out, nil
}

// MetaMapToAny converts typed metadata to plain Go values.
func MetaMapToAny(m map[string]MetaValue) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.AsAny()
	}
	return out
}

// MarshalJSON emits the bare JSON value. Int and float kinds render
// distinctly (ints without a decimal point) so the tag survives the trip.
func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindBool:
		return json.Marshal(v.boolVal)
	case KindInt:
		return []byte(strconv.FormatInt(v.intVal, 10)), nil
	case KindFloat:
		out, err := json.Marshal(v.floatVal)
		if err != nil {
			return nil, err
		}
		// Whole floats keep a decimal point so the kind survives re-parsing.
		if !bytes.ContainsAny(out, ".eE") {
			out = append(out, '.', '0')
		}
		return out, nil
	case KindString:
		return json.Marshal(v.stringVal)
	case KindList:
		if v.listVal == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.listVal)
	case KindMap:
		if v.mapVal == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.mapVal)
	}
	return nil, fmt.Errorf("cannot marshal zero MetaValue")
}

// UnmarshalJSON parses a bare JSON value, tagging numbers as int when the
// literal has no fractional or exponent part.
func (v *MetaValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	mv, err := MetaFromAny(raw)
	if err != nil {
		return err
	}
	*v = mv
	return nil
}

// Equal reports deep equality including the kind tags.
func (v MetaValue) Equal(other MetaValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.boolVal == other.boolVal
	case KindInt:
		return v.intVal == other.intVal
	case KindFloat:
		return v.floatVal == other.floatVal
	case KindString:
		return v.stringVal == other.stringVal
	case KindList:
		if len(v.listVal) != len(other.listVal) {
			return false
		}
		for i := range v.listVal {
			if !v.listVal[i].Equal(other.listVal[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.mapVal) != len(other.mapVal) {
			return false
		}
		for k, item := range v.mapVal {
			o, ok := other.mapVal[k]
			if !ok || !item.Equal(o) {
				return false
			}
		}
		return true
	}
	return other.Kind == ""
}

// SortedKeys returns map keys in stable order; empty for non-map kinds.
func (v MetaValue) SortedKeys() []string {
	if v.Kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.mapVal))
	for k := range v.mapVal {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
