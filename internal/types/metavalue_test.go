package types

import (
	"encoding/json"
	"testing"
)

func TestMetaValueRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value MetaValue
		want  string // wire form
	}{
		{"bool true", MetaBool(true), `true`},
		{"bool false", MetaBool(false), `false`},
		{"int", MetaInt(42), `42`},
		{"negative int", MetaInt(-7), `-7`},
		{"zero int", MetaInt(0), `0`},
		{"float", MetaFloat(3.25), `3.25`},
		{"whole float keeps decimal", MetaFloat(2), `2.0`},
		{"string", MetaString("hello"), `"hello"`},
		{"string with quotes", MetaString(`say "hi"`), `"say \"hi\""`},
		{"string with sql punctuation", MetaString(`'; DROP TABLE memory_blocks; --`), `"'; DROP TABLE memory_blocks; --"`},
		{"string with newline", MetaString("line1\nline2"), `"line1\nline2"`},
		{"non-ascii string", MetaString("日本語テキスト"), `"日本語テキスト"`},
		{"list", MetaList(MetaInt(1), MetaString("two"), MetaBool(true)), `[1,"two",true]`},
		{"empty list", MetaList(), `[]`},
		{"nested map", MetaMap(map[string]MetaValue{
			"inner": MetaMap(map[string]MetaValue{"n": MetaInt(5)}),
		}), `{"inner":{"n":5}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("wire form = %s, want %s", data, tt.want)
			}

			var got MetaValue
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !got.Equal(tt.value) {
				t.Errorf("round-trip mismatch: got kind=%s %v, want kind=%s %v",
					got.Kind, got.AsAny(), tt.value.Kind, tt.value.AsAny())
			}
		})
	}
}

func TestMetaValueKindsPreserved(t *testing.T) {
	// int and float must stay distinct across the trip
	var intVal MetaValue
	if err := json.Unmarshal([]byte(`7`), &intVal); err != nil {
		t.Fatal(err)
	}
	if intVal.Kind != KindInt {
		t.Errorf("7 parsed as %s, want int", intVal.Kind)
	}

	var floatVal MetaValue
	if err := json.Unmarshal([]byte(`7.0`), &floatVal); err != nil {
		t.Fatal(err)
	}
	if floatVal.Kind != KindFloat {
		t.Errorf("7.0 parsed as %s, want float", floatVal.Kind)
	}

	var boolVal MetaValue
	if err := json.Unmarshal([]byte(`true`), &boolVal); err != nil {
		t.Fatal(err)
	}
	if boolVal.Kind != KindBool {
		t.Errorf("true parsed as %s, want bool", boolVal.Kind)
	}
}

func TestMetaFromAny(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		wantKind MetaKind
		wantErr  bool
	}{
		{"bool", true, KindBool, false},
		{"int", 42, KindInt, false},
		{"int64", int64(42), KindInt, false},
		{"whole float64 becomes int", float64(10), KindInt, false},
		{"fractional float64", 1.5, KindFloat, false},
		{"json number int", json.Number("12"), KindInt, false},
		{"json number float", json.Number("12.0"), KindFloat, false},
		{"json number exponent", json.Number("1e3"), KindFloat, false},
		{"string", "x", KindString, false},
		{"list", []any{1.0, "a"}, KindList, false},
		{"map", map[string]any{"k": true}, KindMap, false},
		{"nil rejected", nil, "", true},
		{"unsupported type", struct{}{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MetaFromAny(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got kind=%s", got.Kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", got.Kind, tt.wantKind)
			}
		})
	}
}

func TestMetaMapRoundTripThroughAny(t *testing.T) {
	original := map[string]MetaValue{
		"bool_t": MetaBool(true),
		"bool_f": MetaBool(false),
		"int":    MetaInt(99),
		"float":  MetaFloat(0.5),
		"str":    MetaString("plain"),
		"list":   MetaList(MetaString("a"), MetaInt(2)),
		"map":    MetaMap(map[string]MetaValue{"deep": MetaFloat(1.25)}),
	}

	plain := MetaMapToAny(original)
	back, err := MetaMapFromAny(plain)
	if err != nil {
		t.Fatalf("MetaMapFromAny: %v", err)
	}
	for k, v := range original {
		got, ok := back[k]
		if !ok {
			t.Errorf("key %q lost", k)
			continue
		}
		if !got.Equal(v) {
			t.Errorf("key %q: got kind=%s %v, want kind=%s %v", k, got.Kind, got.AsAny(), v.Kind, v.AsAny())
		}
	}
}

func TestMetaValueEqual(t *testing.T) {
	if MetaInt(1).Equal(MetaFloat(1)) {
		t.Error("int 1 should not equal float 1.0")
	}
	if MetaBool(true).Equal(MetaInt(1)) {
		t.Error("bool true should not equal int 1")
	}
	if !MetaList(MetaInt(1)).Equal(MetaList(MetaInt(1))) {
		t.Error("identical lists should be equal")
	}
	if MetaList(MetaInt(1)).Equal(MetaList(MetaInt(2))) {
		t.Error("different lists should not be equal")
	}
}
