// Package types defines core data structures for the membank memory store.
package types

import (
	"fmt"
	"time"
)

// EmbeddingDim is the fixed embedding vector length for the current
// embedding contract. Blocks carrying an embedding of any other length
// are rejected at validation time.
const EmbeddingDim = 384

// MaxTags is the maximum number of tags a block may carry after any
// merge or replacement.
const MaxTags = 20

// MemoryBlock is the primary unit of agent memory: a typed, versioned,
// namespaced record with typed metadata and an optional embedding.
type MemoryBlock struct {
	ID            string               `json:"id"`
	NamespaceID   string               `json:"namespace_id"`
	Type          BlockType            `json:"type"`
	SchemaVersion *int                 `json:"schema_version,omitempty"`
	Text          string               `json:"text"`
	State         BlockState           `json:"state,omitempty"`
	Visibility    Visibility           `json:"visibility,omitempty"`
	BlockVersion  int                  `json:"block_version"`
	Tags          []string             `json:"tags,omitempty"`
	Metadata      map[string]MetaValue `json:"metadata,omitempty"`
	SourceFile    string               `json:"source_file,omitempty"`
	SourceURI     string               `json:"source_uri,omitempty"`
	Confidence    *ConfidenceScore     `json:"confidence,omitempty"`
	CreatedBy     string               `json:"created_by,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Embedding     []float32            `json:"embedding,omitempty"`
}

// ConfidenceScore carries independent human and AI confidence in [0,1].
type ConfidenceScore struct {
	Human *float64 `json:"human,omitempty"`
	AI    *float64 `json:"ai,omitempty"`
}

// Validate checks the block's local invariants. Relational invariants
// (namespace existence, id uniqueness) are enforced by storage.
func (b *MemoryBlock) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("id is required")
	}
	if b.NamespaceID == "" {
		return fmt.Errorf("namespace_id is required")
	}
	if !b.Type.IsValid() {
		return fmt.Errorf("invalid block type: %s", b.Type)
	}
	if b.State != "" && !b.State.IsValid() {
		return fmt.Errorf("invalid state: %s", b.State)
	}
	if b.Visibility != "" && !b.Visibility.IsValid() {
		return fmt.Errorf("invalid visibility: %s", b.Visibility)
	}
	if b.BlockVersion < 1 {
		return fmt.Errorf("block_version must be positive (got %d)", b.BlockVersion)
	}
	if len(b.Tags) > MaxTags {
		return fmt.Errorf("tags must be %d or fewer (got %d)", MaxTags, len(b.Tags))
	}
	if len(b.Embedding) != 0 && len(b.Embedding) != EmbeddingDim {
		return fmt.Errorf("embedding must have exactly %d dimensions (got %d)", EmbeddingDim, len(b.Embedding))
	}
	if b.Confidence != nil {
		if err := b.Confidence.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConfidenceScore) validate() error {
	if c.Human != nil && (*c.Human < 0 || *c.Human > 1) {
		return fmt.Errorf("confidence.human must be in [0,1] (got %g)", *c.Human)
	}
	if c.AI != nil && (*c.AI < 0 || *c.AI > 1) {
		return fmt.Errorf("confidence.ai must be in [0,1] (got %g)", *c.AI)
	}
	return nil
}

// SetDefaults applies persistence defaults for fields the caller omitted:
//   - State: defaults to StateDraft
//   - Visibility: defaults to VisibilityInternal
//   - NamespaceID: defaults to DefaultNamespace
//   - BlockVersion: defaults to 1
func (b *MemoryBlock) SetDefaults() {
	if b.State == "" {
		b.State = StateDraft
	}
	if b.Visibility == "" {
		b.Visibility = VisibilityInternal
	}
	if b.NamespaceID == "" {
		b.NamespaceID = DefaultNamespace
	}
	if b.BlockVersion == 0 {
		b.BlockVersion = 1
	}
}

// MergeTags merges extra tags into the block's tag list, deduplicating
// while preserving first-seen order, and caps the result at MaxTags.
func MergeTags(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing)+len(extra))
	merged := make([]string, 0, len(existing)+len(extra))
	for _, lists := range [][]string{existing, extra} {
		for _, tag := range lists {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			merged = append(merged, tag)
		}
	}
	if len(merged) > MaxTags {
		merged = merged[:MaxTags]
	}
	return merged
}

// BlockType categorizes the kind of memory a block holds.
type BlockType string

// Block type constants
const (
	TypeKnowledge   BlockType = "knowledge"
	TypeTask        BlockType = "task"
	TypeProject     BlockType = "project"
	TypeDoc         BlockType = "doc"
	TypeInteraction BlockType = "interaction"
	TypeLog         BlockType = "log"
	TypeEpic        BlockType = "epic"
	TypeBug         BlockType = "bug"
)

// IsValid checks if the block type value is valid
func (t BlockType) IsValid() bool {
	switch t {
	case TypeKnowledge, TypeTask, TypeProject, TypeDoc, TypeInteraction, TypeLog, TypeEpic, TypeBug:
		return true
	}
	return false
}

// IsWorkItem reports whether the type participates in the work-item
// tool specialization (task/project/epic/bug).
func (t BlockType) IsWorkItem() bool {
	switch t {
	case TypeTask, TypeProject, TypeEpic, TypeBug:
		return true
	}
	return false
}

// BlockType values accepted by work-item tools.
func WorkItemTypes() []BlockType {
	return []BlockType{TypeTask, TypeProject, TypeEpic, TypeBug}
}

// BlockState represents the publication state of a block
type BlockState string

// Block state constants
const (
	StateDraft     BlockState = "draft"
	StatePublished BlockState = "published"
	StateArchived  BlockState = "archived"
)

// IsValid checks if the state value is valid
func (s BlockState) IsValid() bool {
	switch s {
	case StateDraft, StatePublished, StateArchived:
		return true
	}
	return false
}

// Visibility controls who may read a block
type Visibility string

// Visibility constants
const (
	VisibilityInternal   Visibility = "internal"
	VisibilityPublic     Visibility = "public"
	VisibilityRestricted Visibility = "restricted"
)

// IsValid checks if the visibility value is valid
func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityInternal, VisibilityPublic, VisibilityRestricted:
		return true
	}
	return false
}

// BlockFilter narrows ListBlocks queries. Nil/zero fields match everything.
type BlockFilter struct {
	NamespaceID   string      `json:"namespace_id,omitempty"`
	Type          *BlockType  `json:"type,omitempty"`
	State         *BlockState `json:"state,omitempty"`
	Visibility    *Visibility `json:"visibility,omitempty"`
	Tags          []string    `json:"tags,omitempty"` // all must be present
	CreatedAfter  *time.Time  `json:"created_after,omitempty"`
	CreatedBefore *time.Time  `json:"created_before,omitempty"`
	Limit         int         `json:"limit,omitempty"`
}
