package memorybank

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/cognidao/membank/internal/debug"
	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/types"
)

// BulkNamespaceItem is the per-block outcome of a bulk namespace move.
type BulkNamespaceItem struct {
	BlockID string
	// Moved is false when the block already lived in the target
	// namespace and nothing was written.
	Moved bool
	Err   error
}

// movedBlock pairs a moved row with its pre-move state for rollback.
type movedBlock struct {
	id   string
	prev *types.MemoryBlock
}

// UpdateNamespaceBulk moves blocks into the target namespace. Unlike
// the other bulk paths, the per-block row updates are staged together
// and committed once at the end; a commit failure rolls the working set
// back, restores the vector mirror, and is returned so the caller can
// downgrade every staged success.
//
// The returned slices are per-block outcomes and the ids skipped after
// an early stop. The error reports target-namespace validation failures
// and the final commit outcome.
func (b *Bank) UpdateNamespaceBulk(ctx context.Context, blockIDs []string, namespaceID string, stopOnFirstError bool) ([]BulkNamespaceItem, []string, error) {
	ns := types.NormalizeNamespaceID(namespaceID)
	if err := b.ValidateNamespace(ctx, ns); err != nil {
		return nil, nil, err
	}

	var (
		items   []BulkNamespaceItem
		skipped []string
		moved   []movedBlock
	)

	now := b.now().UTC()
	for i, id := range blockIDs {
		block, err := b.store.GetBlock(ctx, id)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				err = fmt.Errorf("load block %s: %w", id, err)
			}
			items = append(items, BulkNamespaceItem{BlockID: id, Err: err})
			if stopOnFirstError {
				skipped = append(skipped, blockIDs[i+1:]...)
				break
			}
			continue
		}
		if block.NamespaceID == ns {
			items = append(items, BulkNamespaceItem{BlockID: id})
			continue
		}

		prev := cloneBlock(block)
		block.NamespaceID = ns
		block.BlockVersion++
		block.UpdatedAt = now

		if err := b.store.PutBlock(ctx, block); err != nil {
			items = append(items, BulkNamespaceItem{BlockID: id, Err: err})
			if stopOnFirstError {
				skipped = append(skipped, blockIDs[i+1:]...)
				break
			}
			continue
		}
		if err := b.index.Upsert(ctx, recordFor(block)); err != nil {
			rollbackErr := b.store.PutBlock(ctx, prev)
			if rollbackErr != nil {
				fmt.Fprintf(os.Stderr, "membank: CRITICAL: vector write and SQL rollback both failed for %s: vector=%v rollback=%v\n",
					id, err, rollbackErr)
			}
			items = append(items, BulkNamespaceItem{BlockID: id,
				Err: &ReindexError{BlockID: id, Err: err, RollbackErr: rollbackErr}})
			if stopOnFirstError {
				skipped = append(skipped, blockIDs[i+1:]...)
				break
			}
			continue
		}

		moved = append(moved, movedBlock{id: id, prev: prev})
		items = append(items, BulkNamespaceItem{BlockID: id, Moved: true})
	}

	if len(moved) == 0 {
		return items, skipped, nil
	}

	commitHash := ""
	if b.autoCommit {
		if err := b.store.AddToStaging(ctx, storage.StagedTables); err != nil {
			return items, skipped, b.rollbackNamespaceMove(ctx, moved, &CommitError{Err: fmt.Errorf("staging: %w", err)})
		}
		hash, err := b.store.CommitChanges(ctx,
			fmt.Sprintf("move %d blocks to namespace %s", len(moved), ns), storage.StagedTables)
		if err != nil && !isNothingToCommit(err) {
			rollbackErr := b.store.DiscardChanges(ctx, storage.StagedTables)
			if rollbackErr != nil {
				fmt.Fprintf(os.Stderr, "membank: CRITICAL: commit failed and rollback failed, store state may be inconsistent: commit=%v rollback=%v\n", err, rollbackErr)
			}
			return items, skipped, b.rollbackNamespaceMove(ctx, moved, &CommitError{Err: err, RollbackErr: rollbackErr})
		}
		commitHash = hash
	}
	if commitHash == "" {
		commitHash = "uncommitted:" + uuid.NewString()
	}

	for _, m := range moved {
		proof := &types.BlockProof{
			BlockID:    m.id,
			Operation:  types.ProofUpdate,
			CommitHash: commitHash,
			Timestamp:  b.now().UTC(),
		}
		if err := b.store.AppendProof(ctx, proof); err != nil {
			fmt.Fprintf(os.Stderr, "membank: warning: proof append failed for %s %s: %v\n", types.ProofUpdate, m.id, err)
		}
	}
	debug.Logf("membank: moved %d blocks to namespace %s\n", len(moved), ns)
	return items, skipped, nil
}

// rollbackNamespaceMove restores the vector mirror for rows whose SQL
// move was discarded with the failed commit. Restore failures leave the
// mirror stale until the next reindex.
func (b *Bank) rollbackNamespaceMove(ctx context.Context, moved []movedBlock, commitErr *CommitError) error {
	for _, m := range moved {
		if err := b.index.Upsert(ctx, recordFor(m.prev)); err != nil {
			fmt.Fprintf(os.Stderr, "membank: warning: vector restore failed for %s after commit rollback: %v\n", m.id, err)
		}
	}
	return commitErr
}
