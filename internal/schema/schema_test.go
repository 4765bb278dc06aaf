package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cognidao/membank/internal/types"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(n int) *int           { return &n }

func taskSchema() *Schema {
	return &Schema{
		Type:    "task",
		Version: 1,
		Properties: map[string]*Property{
			"status": {
				Kind:     "string",
				Required: true,
				Enum:     []string{"backlog", "ready", "in_progress", "done"},
			},
			"priority": {
				Kind: "int",
				Min:  floatPtr(0),
				Max:  floatPtr(5),
			},
			"action_items": {
				Kind:     "list",
				MaxItems: intPtr(3),
			},
		},
	}
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(taskSchema()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tests := []struct {
		name     string
		metadata map[string]types.MetaValue
		wantErr  bool
	}{
		{
			name: "valid",
			metadata: map[string]types.MetaValue{
				"status":   types.MetaString("ready"),
				"priority": types.MetaInt(2),
			},
		},
		{
			name:     "missing required",
			metadata: map[string]types.MetaValue{"priority": types.MetaInt(2)},
			wantErr:  true,
		},
		{
			name: "wrong kind",
			metadata: map[string]types.MetaValue{
				"status":   types.MetaString("ready"),
				"priority": types.MetaString("2"),
			},
			wantErr: true,
		},
		{
			name: "enum violation",
			metadata: map[string]types.MetaValue{
				"status": types.MetaString("shipped"),
			},
			wantErr: true,
		},
		{
			name: "range violation",
			metadata: map[string]types.MetaValue{
				"status":   types.MetaString("done"),
				"priority": types.MetaInt(9),
			},
			wantErr: true,
		},
		{
			name: "list too long",
			metadata: map[string]types.MetaValue{
				"status": types.MetaString("done"),
				"action_items": types.MetaList(
					types.MetaString("a"), types.MetaString("b"),
					types.MetaString("c"), types.MetaString("d"),
				),
			},
			wantErr: true,
		},
		{
			name: "undeclared keys tolerated",
			metadata: map[string]types.MetaValue{
				"status": types.MetaString("ready"),
				"extra":  types.MetaBool(true),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate("task", 1, tt.metadata)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistryUnregisteredPairSkipsValidation(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(taskSchema()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Different version and different type both have no schema; anything goes.
	metadata := map[string]types.MetaValue{"whatever": types.MetaInt(-1)}
	if err := r.Validate("task", 2, metadata); err != nil {
		t.Errorf("unregistered version should skip validation: %v", err)
	}
	if err := r.Validate("knowledge", 1, metadata); err != nil {
		t.Errorf("unregistered type should skip validation: %v", err)
	}
}

func TestRegisterRejectsBadSchemas(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&Schema{Version: 1}); err == nil {
		t.Error("expected error for missing type")
	}
	if err := r.Register(&Schema{Type: "task", Version: 0}); err == nil {
		t.Error("expected error for version 0")
	}
	if err := r.Register(&Schema{
		Type:       "task",
		Version:    1,
		Properties: map[string]*Property{"x": {Kind: "decimal"}},
	}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	doc := `
type = "doc"
version = 1

[properties.audience]
kind = "string"
enum = ["internal", "public"]
`
	if err := os.WriteFile(filepath.Join(dir, "doc-v1.toml"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-toml files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	if err := r.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}

	if _, ok := r.Lookup("doc", 1); !ok {
		t.Error("doc v1 schema not found after LoadDir")
	}
	err := r.Validate("doc", 1, map[string]types.MetaValue{
		"audience": types.MetaString("secret"),
	})
	if err == nil {
		t.Error("expected enum violation from loaded schema")
	}
}

func TestLoadDirMissingDirectory(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadDir(filepath.Join(t.TempDir(), "absent")); err != nil {
		t.Errorf("missing schema dir should not error: %v", err)
	}
}

func TestLoadDirMalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.toml"), []byte("type = [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewRegistry()
	if err := r.LoadDir(dir); err == nil {
		t.Error("expected parse error for malformed schema file")
	}
}
