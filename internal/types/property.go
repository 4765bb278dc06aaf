package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// BlockProperty is one row of the Property-Schema Split: a single
// metadata entry stored with its kind so that typed values survive
// persistence exactly. A block's metadata map and its property rows are
// two views of the same data.
type BlockProperty struct {
	BlockID string    `json:"block_id"`
	Name    string    `json:"name"`
	Value   MetaValue `json:"value"`
}

// PropertiesFromMetadata expands a block's metadata map into property
// rows in stable (sorted-name) order.
func PropertiesFromMetadata(blockID string, metadata map[string]MetaValue) []*BlockProperty {
	if len(metadata) == 0 {
		return nil
	}
	names := make([]string, 0, len(metadata))
	for name := range metadata {
		names = append(names, name)
	}
	sort.Strings(names)

	props := make([]*BlockProperty, 0, len(names))
	for _, name := range names {
		props = append(props, &BlockProperty{
			BlockID: blockID,
			Name:    name,
			Value:   metadata[name],
		})
	}
	return props
}

// MetadataFromProperties folds property rows back into a metadata map.
func MetadataFromProperties(props []*BlockProperty) map[string]MetaValue {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]MetaValue, len(props))
	for _, p := range props {
		out[p.Name] = p.Value
	}
	return out
}

// PropertyColumns returns the persisted (value_type, text, number, bool,
// json) column values for the property's MetaValue. Exactly one of the
// value columns is non-nil, selected by kind:
//
//	bool   -> bool_value
//	int    -> number_value (integral)
//	float  -> number_value
//	string -> text_value
//	list   -> json_value
//	map    -> json_value
func (p *BlockProperty) PropertyColumns() (valueType string, textVal *string, numberVal *float64, boolVal *bool, jsonVal *string, err error) {
	switch p.Value.Kind {
	case KindBool:
		b, _ := p.Value.Bool()
		return "bool", nil, nil, &b, nil, nil
	case KindInt:
		i, _ := p.Value.Int()
		f := float64(i)
		return "int", nil, &f, nil, nil, nil
	case KindFloat:
		f, _ := p.Value.Float()
		return "float", nil, &f, nil, nil, nil
	case KindString:
		s, _ := p.Value.String()
		return "string", &s, nil, nil, nil, nil
	case KindList, KindMap:
		data, merr := json.Marshal(p.Value)
		if merr != nil {
			return "", nil, nil, nil, nil, fmt.Errorf("marshal property %q: %w", p.Name, merr)
		}
		s := string(data)
		return "json", nil, nil, nil, &s, nil
	}
	return "", nil, nil, nil, nil, fmt.Errorf("property %q has no value kind", p.Name)
}

// PropertyFromColumns reconstructs a property row from its persisted
// columns, the inverse of PropertyColumns.
func PropertyFromColumns(blockID, name, valueType string, textVal *string, numberVal *float64, boolVal *bool, jsonVal *string) (*BlockProperty, error) {
	p := &BlockProperty{BlockID: blockID, Name: name}
	switch valueType {
	case "bool":
		if boolVal == nil {
			return nil, fmt.Errorf("property %q: bool row with no bool_value", name)
		}
		p.Value = MetaBool(*boolVal)
	case "int":
		if numberVal == nil {
			return nil, fmt.Errorf("property %q: int row with no number_value", name)
		}
		p.Value = MetaInt(int64(*numberVal))
	case "float":
		if numberVal == nil {
			return nil, fmt.Errorf("property %q: float row with no number_value", name)
		}
		p.Value = MetaFloat(*numberVal)
	case "string":
		if textVal == nil {
			return nil, fmt.Errorf("property %q: string row with no text_value", name)
		}
		p.Value = MetaString(*textVal)
	case "json":
		if jsonVal == nil {
			return nil, fmt.Errorf("property %q: json row with no json_value", name)
		}
		var v MetaValue
		if err := json.Unmarshal([]byte(*jsonVal), &v); err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		p.Value = v
	default:
		return nil, fmt.Errorf("property %q: unknown value_type %q", name, valueType)
	}
	return p, nil
}
