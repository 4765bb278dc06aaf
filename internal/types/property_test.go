package types

import "testing"

func TestPropertyColumnsRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value MetaValue
	}{
		{"bool", MetaBool(true)},
		{"bool false", MetaBool(false)},
		{"int", MetaInt(-42)},
		{"float", MetaFloat(2.5)},
		{"whole float", MetaFloat(8)},
		{"string", MetaString("with 'quotes' and\nnewlines")},
		{"list", MetaList(MetaInt(1), MetaList(MetaString("nested")))},
		{"map", MetaMap(map[string]MetaValue{"a": MetaBool(false), "b": MetaFloat(0.1)})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &BlockProperty{BlockID: "blk", Name: "k", Value: tt.value}
			valueType, textVal, numberVal, boolVal, jsonVal, err := p.PropertyColumns()
			if err != nil {
				t.Fatalf("PropertyColumns: %v", err)
			}

			got, err := PropertyFromColumns("blk", "k", valueType, textVal, numberVal, boolVal, jsonVal)
			if err != nil {
				t.Fatalf("PropertyFromColumns: %v", err)
			}
			if !got.Value.Equal(tt.value) {
				t.Errorf("round-trip: got kind=%s %v, want kind=%s %v",
					got.Value.Kind, got.Value.AsAny(), tt.value.Kind, tt.value.AsAny())
			}
		})
	}
}

func TestPropertiesFromMetadataStableOrder(t *testing.T) {
	meta := map[string]MetaValue{
		"zeta":  MetaInt(1),
		"alpha": MetaInt(2),
		"mid":   MetaInt(3),
	}
	props := PropertiesFromMetadata("b1", meta)
	if len(props) != 3 {
		t.Fatalf("props = %d, want 3", len(props))
	}
	if props[0].Name != "alpha" || props[1].Name != "mid" || props[2].Name != "zeta" {
		t.Errorf("order = [%s %s %s], want sorted", props[0].Name, props[1].Name, props[2].Name)
	}

	back := MetadataFromProperties(props)
	for k, v := range meta {
		if !back[k].Equal(v) {
			t.Errorf("key %q did not survive", k)
		}
	}
}

func TestPropertyFromColumnsErrors(t *testing.T) {
	if _, err := PropertyFromColumns("b", "k", "bool", nil, nil, nil, nil); err == nil {
		t.Error("bool row with nil bool_value should error")
	}
	if _, err := PropertyFromColumns("b", "k", "mystery", nil, nil, nil, nil); err == nil {
		t.Error("unknown value_type should error")
	}
	bad := "{not json"
	if _, err := PropertyFromColumns("b", "k", "json", nil, nil, nil, &bad); err == nil {
		t.Error("malformed json_value should error")
	}
}
