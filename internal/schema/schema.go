// Package schema provides the TOML metadata-schema registry.
//
// A schema constrains the typed metadata of blocks that declare a
// matching (type, schema_version) pair. Schemas are optional: blocks
// whose pair has no registered schema skip validation entirely, and
// metadata keys a schema does not declare are always tolerated.
//
// Schema files live in a directory of .toml files, one schema each:
//
//	type = "task"
//	version = 1
//
//	[properties.status]
//	kind = "string"
//	required = true
//	enum = ["backlog", "ready", "in_progress", "done"]
//
//	[properties.priority]
//	kind = "int"
//	min = 0
//	max = 5
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/cognidao/membank/internal/types"
)

// Schema constrains the metadata of one (type, version) pair.
type Schema struct {
	Type       string               `toml:"type"`
	Version    int                  `toml:"version"`
	Properties map[string]*Property `toml:"properties"`
}

// Property is one declared metadata field with optional constraints.
// Min/Max apply to int and float kinds; Enum and MaxLength to strings;
// MaxItems to lists.
type Property struct {
	Kind      string   `toml:"kind"` // bool|int|float|string|list|map
	Required  bool     `toml:"required"`
	Enum      []string `toml:"enum"`
	Min       *float64 `toml:"min"`
	Max       *float64 `toml:"max"`
	MaxLength *int     `toml:"max_length"`
	MaxItems  *int     `toml:"max_items"`
}

func (s *Schema) validate() error {
	if s.Type == "" {
		return fmt.Errorf("schema is missing 'type'")
	}
	if s.Version < 1 {
		return fmt.Errorf("schema %q: version must be >= 1 (got %d)", s.Type, s.Version)
	}
	for name, prop := range s.Properties {
		if prop == nil {
			return fmt.Errorf("schema %q v%d: property %q is empty", s.Type, s.Version, name)
		}
		switch types.MetaKind(prop.Kind) {
		case types.KindBool, types.KindInt, types.KindFloat, types.KindString, types.KindList, types.KindMap:
		default:
			return fmt.Errorf("schema %q v%d: property %q has unknown kind %q", s.Type, s.Version, name, prop.Kind)
		}
	}
	return nil
}

type schemaKey struct {
	blockType string
	version   int
}

// Registry is a concurrency-safe collection of metadata schemas keyed
// by (type, version).
type Registry struct {
	mu      sync.RWMutex
	schemas map[schemaKey]*Schema
}

// NewRegistry returns an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[schemaKey]*Schema)}
}

// Register adds a schema to the registry, replacing any previous schema
// for the same (type, version) pair.
func (r *Registry) Register(s *Schema) error {
	if err := s.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[schemaKey{blockType: s.Type, version: s.Version}] = s
	return nil
}

// LoadDir registers every .toml file in dir. A missing directory is not
// an error (schemas are optional); a malformed file is.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		var s Schema
		if _, err := toml.DecodeFile(path, &s); err != nil {
			return fmt.Errorf("parse schema %s: %w", path, err)
		}
		if err := r.Register(&s); err != nil {
			return fmt.Errorf("schema %s: %w", path, err)
		}
	}
	return nil
}

// Lookup returns the schema for (blockType, version) when one is
// registered.
func (r *Registry) Lookup(blockType string, version int) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[schemaKey{blockType: blockType, version: version}]
	return s, ok
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schemas)
}

// Validate checks metadata against the schema registered for
// (blockType, version). When no schema is registered the metadata
// passes unconditionally.
func (r *Registry) Validate(blockType string, version int, metadata map[string]types.MetaValue) error {
	s, ok := r.Lookup(blockType, version)
	if !ok {
		return nil
	}
	return s.Check(metadata)
}

// Check validates metadata against this schema. Declared properties are
// checked for presence, kind, and constraints; undeclared keys pass.
func (s *Schema) Check(metadata map[string]types.MetaValue) error {
	for name, prop := range s.Properties {
		value, present := metadata[name]
		if !present {
			if prop.Required {
				return fmt.Errorf("metadata field %q is required by schema %s v%d", name, s.Type, s.Version)
			}
			continue
		}
		if err := prop.check(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (p *Property) check(name string, v types.MetaValue) error {
	if v.Kind != types.MetaKind(p.Kind) {
		return fmt.Errorf("metadata field %q must be %s (got %s)", name, p.Kind, v.Kind)
	}
	switch v.Kind {
	case types.KindInt:
		n, _ := v.Int()
		return p.checkRange(name, float64(n))
	case types.KindFloat:
		f, _ := v.Float()
		return p.checkRange(name, f)
	case types.KindString:
		str, _ := v.String()
		if p.MaxLength != nil && len(str) > *p.MaxLength {
			return fmt.Errorf("metadata field %q exceeds max length %d", name, *p.MaxLength)
		}
		if len(p.Enum) > 0 {
			for _, allowed := range p.Enum {
				if str == allowed {
					return nil
				}
			}
			return fmt.Errorf("metadata field %q must be one of %v (got %q)", name, p.Enum, str)
		}
	case types.KindList:
		items, _ := v.List()
		if p.MaxItems != nil && len(items) > *p.MaxItems {
			return fmt.Errorf("metadata field %q exceeds max items %d", name, *p.MaxItems)
		}
	}
	return nil
}

func (p *Property) checkRange(name string, n float64) error {
	if p.Min != nil && n < *p.Min {
		return fmt.Errorf("metadata field %q must be >= %g (got %g)", name, *p.Min, n)
	}
	if p.Max != nil && n > *p.Max {
		return fmt.Errorf("metadata field %q must be <= %g (got %g)", name, *p.Max, n)
	}
	return nil
}
