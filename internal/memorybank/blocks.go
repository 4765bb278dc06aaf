package memorybank

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/cognidao/membank/internal/debug"
	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/types"
	"github.com/cognidao/membank/internal/vector"
)

// CreateMemoryBlock validates, persists, and mirrors a new block. The
// SQL write happens first; if the vector mirror write fails the SQL row
// is deleted again (compensating rollback) and a ReindexError is
// returned. With auto-commit on, the block tables are staged and
// committed and a create proof records the commit hash.
func (b *Bank) CreateMemoryBlock(ctx context.Context, block *types.MemoryBlock) (*types.MemoryBlock, error) {
	if block == nil {
		return nil, fmt.Errorf("block is nil")
	}

	if block.ID == "" {
		block.ID = uuid.NewString()
	}
	block.NamespaceID = types.NormalizeNamespaceID(block.NamespaceID)
	block.SetDefaults()
	now := b.now().UTC()
	if block.CreatedAt.IsZero() {
		block.CreatedAt = now
	}
	block.UpdatedAt = now

	if err := b.ValidateNamespace(ctx, block.NamespaceID); err != nil {
		return nil, err
	}
	if err := block.Validate(); err != nil {
		return nil, err
	}
	if err := b.checkSchema(block); err != nil {
		return nil, err
	}
	if err := b.ensureEmbedding(ctx, block); err != nil {
		return nil, err
	}

	if err := b.store.PutBlock(ctx, block); err != nil {
		return nil, err
	}

	if err := b.index.Upsert(ctx, recordFor(block)); err != nil {
		rollbackErr := b.store.DeleteBlock(ctx, block.ID)
		if rollbackErr != nil {
			fmt.Fprintf(os.Stderr, "membank: CRITICAL: vector write and SQL rollback both failed for %s: vector=%v rollback=%v\n",
				block.ID, err, rollbackErr)
		}
		return nil, &ReindexError{BlockID: block.ID, Err: err, RollbackErr: rollbackErr}
	}

	if err := b.commitAndProof(ctx, types.ProofCreate, block.ID,
		fmt.Sprintf("create block %s (%s)", block.ID, block.Type)); err != nil {
		return nil, err
	}
	debug.Logf("membank: created block %s type=%s ns=%s\n", block.ID, block.Type, block.NamespaceID)
	return block, nil
}

// GetMemoryBlock loads one block with its typed metadata.
func (b *Bank) GetMemoryBlock(ctx context.Context, id string) (*types.MemoryBlock, error) {
	return b.store.GetBlock(ctx, id)
}

// GetMemoryBlocks loads several blocks, preserving input order and
// skipping ids that do not exist.
func (b *Bank) GetMemoryBlocks(ctx context.Context, ids []string) ([]*types.MemoryBlock, error) {
	return b.store.GetBlocks(ctx, ids)
}

// GetAllMemoryBlocks lists blocks matching the filter.
func (b *Bank) GetAllMemoryBlocks(ctx context.Context, filter types.BlockFilter) ([]*types.MemoryBlock, error) {
	filter.NamespaceID = types.NormalizeNamespaceID(filter.NamespaceID)
	return b.store.ListBlocks(ctx, filter)
}

// CountMemoryBlocks counts blocks matching the filter.
func (b *Bank) CountMemoryBlocks(ctx context.Context, filter types.BlockFilter) (int, error) {
	filter.NamespaceID = types.NormalizeNamespaceID(filter.NamespaceID)
	return b.store.CountBlocks(ctx, filter)
}

// UpdateRequest describes one block update. Nil pointer fields leave
// the current value untouched. Text and TextPatch are mutually
// exclusive, as are Metadata and MetadataPatch.
type UpdateRequest struct {
	BlockID string

	// PreviousBlockVersion enables optimistic locking: the update is
	// rejected with a VersionConflictError when the stored version
	// differs.
	PreviousBlockVersion *int

	Text      *string
	TextPatch *string

	Metadata      map[string]types.MetaValue
	MetadataPatch json.RawMessage
	MergeMetadata bool

	Tags      []string
	MergeTags bool

	State      *types.BlockState
	Visibility *types.Visibility
	SourceFile *string
	SourceURI  *string
	Confidence *types.ConfidenceScore

	// Embedding replaces the stored embedding; when nil and the text
	// changed, the embedding is recomputed.
	Embedding []float32
}

// UpdateMemoryBlock applies an update with optimistic locking, patch
// application, version bump, property rewrite, and vector refresh. On
// a vector failure the previous row is restored.
func (b *Bank) UpdateMemoryBlock(ctx context.Context, req UpdateRequest) (*types.MemoryBlock, error) {
	if req.BlockID == "" {
		return nil, fmt.Errorf("block_id is required")
	}
	if req.Text != nil && req.TextPatch != nil {
		return nil, fmt.Errorf("text and text_patch are mutually exclusive")
	}
	if req.Metadata != nil && len(req.MetadataPatch) > 0 {
		return nil, fmt.Errorf("metadata and metadata_patch are mutually exclusive")
	}

	current, err := b.store.GetBlock(ctx, req.BlockID)
	if err != nil {
		return nil, err
	}
	if req.PreviousBlockVersion != nil && *req.PreviousBlockVersion != current.BlockVersion {
		return nil, &VersionConflictError{
			BlockID:  req.BlockID,
			Expected: *req.PreviousBlockVersion,
			Current:  current.BlockVersion,
		}
	}

	updated := cloneBlock(current)
	textChanged := false

	switch {
	case req.Text != nil:
		if *req.Text != updated.Text {
			updated.Text = *req.Text
			textChanged = true
		}
	case req.TextPatch != nil:
		patched, err := b.applyTextPatch(updated.Text, *req.TextPatch)
		if err != nil {
			return nil, err
		}
		if patched != updated.Text {
			updated.Text = patched
			textChanged = true
		}
	}

	switch {
	case len(req.MetadataPatch) > 0:
		patched, err := b.applyMetadataPatch(updated.Metadata, req.MetadataPatch)
		if err != nil {
			return nil, err
		}
		updated.Metadata = patched
	case req.Metadata != nil:
		if req.MergeMetadata {
			updated.Metadata = mergeMetadata(updated.Metadata, req.Metadata)
		} else {
			updated.Metadata = req.Metadata
		}
	}

	if req.Tags != nil {
		if req.MergeTags {
			updated.Tags = types.MergeTags(updated.Tags, req.Tags)
		} else {
			updated.Tags = req.Tags
		}
	}
	if req.State != nil {
		updated.State = *req.State
	}
	if req.Visibility != nil {
		updated.Visibility = *req.Visibility
	}
	if req.SourceFile != nil {
		updated.SourceFile = *req.SourceFile
	}
	if req.SourceURI != nil {
		updated.SourceURI = *req.SourceURI
	}
	if req.Confidence != nil {
		updated.Confidence = req.Confidence
	}

	switch {
	case req.Embedding != nil:
		updated.Embedding = req.Embedding
	case textChanged:
		updated.Embedding = nil
		if err := b.ensureEmbedding(ctx, updated); err != nil {
			return nil, err
		}
	}

	updated.BlockVersion = current.BlockVersion + 1
	updated.UpdatedAt = b.now().UTC()

	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := b.checkSchema(updated); err != nil {
		return nil, err
	}

	if err := b.store.PutBlock(ctx, updated); err != nil {
		return nil, err
	}

	if err := b.index.Upsert(ctx, recordFor(updated)); err != nil {
		// Restore the previous row so SQL and mirror agree again.
		rollbackErr := b.store.PutBlock(ctx, current)
		return nil, &ReindexError{BlockID: updated.ID, Err: err, RollbackErr: rollbackErr}
	}

	if err := b.commitAndProof(ctx, types.ProofUpdate, updated.ID,
		fmt.Sprintf("update block %s to v%d", updated.ID, updated.BlockVersion)); err != nil {
		return nil, err
	}
	debug.Logf("membank: updated block %s v%d -> v%d\n", updated.ID, current.BlockVersion, updated.BlockVersion)
	return updated, nil
}

// DeleteMemoryBlock removes a block, its properties, and its links.
// When force is false the delete is rejected while other blocks depend
// on this one through protected (hierarchical) relations. The vector
// mirror entry is removed best-effort: SQL is the source of truth and a
// stale mirror entry is swept by the next reindex.
func (b *Bank) DeleteMemoryBlock(ctx context.Context, id string, force bool) error {
	if id == "" {
		return fmt.Errorf("block id is required")
	}
	exists, err := b.store.BlockExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("block %q: %w", id, storage.ErrNotFound)
	}

	if !force {
		dependents, err := b.links.CountProtectedDependents(ctx, id)
		if err != nil {
			return err
		}
		if dependents > 0 {
			return fmt.Errorf("block %s has %d dependent block(s): %w", id, dependents, storage.ErrDependenciesExist)
		}
	}

	if err := b.store.DeleteBlock(ctx, id); err != nil {
		return err
	}
	if err := b.index.Delete(ctx, id); err != nil {
		fmt.Fprintf(os.Stderr, "membank: warning: vector delete failed for %s (mirror stale until reindex): %v\n", id, err)
	}

	if err := b.commitAndProof(ctx, types.ProofDelete, id, fmt.Sprintf("delete block %s", id)); err != nil {
		return err
	}
	debug.Logf("membank: deleted block %s force=%t\n", id, force)
	return nil
}

// ListProofs returns the audit trail for one block, oldest first.
func (b *Bank) ListProofs(ctx context.Context, blockID string) ([]*types.BlockProof, error) {
	return b.store.ListProofs(ctx, blockID)
}

// ensureEmbedding computes a vector for the block's text when the
// caller supplied none.
func (b *Bank) ensureEmbedding(ctx context.Context, block *types.MemoryBlock) error {
	if len(block.Embedding) != 0 {
		return nil
	}
	vec, err := b.embed.Embed(ctx, block.Text)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	block.Embedding = vec
	return nil
}

func (b *Bank) checkSchema(block *types.MemoryBlock) error {
	if b.schemas == nil || block.SchemaVersion == nil {
		return nil
	}
	return b.schemas.Validate(string(block.Type), *block.SchemaVersion, block.Metadata)
}

func recordFor(block *types.MemoryBlock) *vector.Record {
	return &vector.Record{
		BlockID:     block.ID,
		NamespaceID: block.NamespaceID,
		Type:        string(block.Type),
		Text:        block.Text,
		Embedding:   block.Embedding,
	}
}

// cloneBlock copies a block deeply enough that patch application cannot
// alias the loaded row.
func cloneBlock(src *types.MemoryBlock) *types.MemoryBlock {
	dst := *src
	if src.Tags != nil {
		dst.Tags = append([]string(nil), src.Tags...)
	}
	if src.Metadata != nil {
		dst.Metadata = make(map[string]types.MetaValue, len(src.Metadata))
		for k, v := range src.Metadata {
			dst.Metadata[k] = v
		}
	}
	if src.Embedding != nil {
		dst.Embedding = append([]float32(nil), src.Embedding...)
	}
	if src.Confidence != nil {
		c := *src.Confidence
		dst.Confidence = &c
	}
	if src.SchemaVersion != nil {
		v := *src.SchemaVersion
		dst.SchemaVersion = &v
	}
	return &dst
}

func mergeMetadata(existing, extra map[string]types.MetaValue) map[string]types.MetaValue {
	merged := make(map[string]types.MetaValue, len(existing)+len(extra))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
