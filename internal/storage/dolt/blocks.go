package dolt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/types"
)

// PutBlock inserts or replaces a block row together with its property
// rows. The metadata map is decomposed into block_properties;
// memory_blocks itself never stores metadata.
func (s *DoltStore) PutBlock(ctx context.Context, block *types.MemoryBlock) error {
	if block == nil {
		return errors.New("block is nil")
	}
	if err := block.Validate(); err != nil {
		return err
	}
	if err := checkBlockText(block); err != nil {
		return err
	}

	tagsJSON, err := jsonOrNull(block.Tags)
	if err != nil {
		return err
	}
	confidenceJSON, err := jsonOrNull(block.Confidence)
	if err != nil {
		return err
	}
	embeddingJSON, err := jsonOrNull(block.Embedding)
	if err != nil {
		return err
	}

	createdAt := block.CreatedAt.UTC()
	updatedAt := block.UpdatedAt.UTC()

	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var one int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM namespaces WHERE id = ?", block.NamespaceID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("namespace %q: %w", block.NamespaceID, storage.ErrNamespaceNotFound)
			}
			return fmt.Errorf("failed to check namespace: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_blocks (
				id, namespace_id, type, schema_version, text, state, visibility,
				block_version, tags, source_file, source_uri, confidence,
				created_by, created_at, updated_at, embedding
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				namespace_id = VALUES(namespace_id),
				type = VALUES(type),
				schema_version = VALUES(schema_version),
				text = VALUES(text),
				state = VALUES(state),
				visibility = VALUES(visibility),
				block_version = VALUES(block_version),
				tags = VALUES(tags),
				source_file = VALUES(source_file),
				source_uri = VALUES(source_uri),
				confidence = VALUES(confidence),
				created_by = VALUES(created_by),
				created_at = VALUES(created_at),
				updated_at = VALUES(updated_at),
				embedding = VALUES(embedding)`,
			block.ID, block.NamespaceID, string(block.Type), block.SchemaVersion, block.Text,
			string(block.State), string(block.Visibility), block.BlockVersion,
			tagsJSON, nullableString(block.SourceFile), nullableString(block.SourceURI), confidenceJSON,
			nullableString(block.CreatedBy), createdAt, updatedAt, embeddingJSON,
		); err != nil {
			return fmt.Errorf("failed to upsert block %s: %w", block.ID, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM block_properties WHERE block_id = ?", block.ID); err != nil {
			return fmt.Errorf("failed to clear block properties: %w", err)
		}
		if err := insertProperties(ctx, tx, block.ID, block.Metadata); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

func checkBlockText(block *types.MemoryBlock) error {
	if err := checkText("id", block.ID); err != nil {
		return err
	}
	if err := checkText("text", block.Text); err != nil {
		return err
	}
	if err := checkText("source_file", block.SourceFile); err != nil {
		return err
	}
	if err := checkText("source_uri", block.SourceURI); err != nil {
		return err
	}
	for _, tag := range block.Tags {
		if err := checkText("tag", tag); err != nil {
			return err
		}
	}
	return nil
}

// GetBlock returns one block with its metadata recomposed from
// block_properties. Missing blocks yield storage.ErrNotFound.
func (s *DoltStore) GetBlock(ctx context.Context, id string) (*types.MemoryBlock, error) {
	var block *types.MemoryBlock
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		b, scanErr := scanBlockFrom(row)
		if scanErr != nil {
			return scanErr
		}
		block = b
		return nil
	}, "SELECT "+blockSelectColumns+" FROM memory_blocks WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("block %q: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block %s: %w", id, err)
	}

	props, err := s.GetBlockProperties(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(props) > 0 {
		block.Metadata = types.MetadataFromProperties(props)
	}
	return block, nil
}

// GetBlocks returns the blocks that exist among ids, in input order.
// Missing ids are skipped rather than failing the whole batch.
func (s *DoltStore) GetBlocks(ctx context.Context, ids []string) ([]*types.MemoryBlock, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	blocks, err := s.collectBlocks(ctx,
		"SELECT "+blockSelectColumns+" FROM memory_blocks WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return nil, err
	}
	if err := s.attachProperties(ctx, blocks); err != nil {
		return nil, err
	}

	byID := make(map[string]*types.MemoryBlock, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}
	ordered := make([]*types.MemoryBlock, 0, len(blocks))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			ordered = append(ordered, b)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// ListBlocks returns blocks matching the filter, newest first with id as
// tiebreaker so the order is deterministic.
func (s *DoltStore) ListBlocks(ctx context.Context, filter types.BlockFilter) ([]*types.MemoryBlock, error) {
	where, args := buildBlockFilter(filter)
	query := "SELECT " + blockSelectColumns + " FROM memory_blocks" + where +
		" ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	blocks, err := s.collectBlocks(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if err := s.attachProperties(ctx, blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// CountBlocks counts blocks matching the filter; Limit is ignored.
func (s *DoltStore) CountBlocks(ctx context.Context, filter types.BlockFilter) (int, error) {
	where, args := buildBlockFilter(filter)
	var n int
	err := s.queryRowContext(ctx, func(row *sql.Row) error { return row.Scan(&n) },
		"SELECT COUNT(*) FROM memory_blocks"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count blocks: %w", err)
	}
	return n, nil
}

func buildBlockFilter(filter types.BlockFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.NamespaceID != "" {
		conds = append(conds, "namespace_id = ?")
		args = append(args, filter.NamespaceID)
	}
	if filter.Type != nil {
		conds = append(conds, "type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.State != nil {
		conds = append(conds, "state = ?")
		args = append(args, string(*filter.State))
	}
	if filter.Visibility != nil {
		conds = append(conds, "visibility = ?")
		args = append(args, string(*filter.Visibility))
	}
	for _, tag := range filter.Tags {
		conds = append(conds, "JSON_CONTAINS(tags, JSON_QUOTE(?))")
		args = append(args, tag)
	}
	if filter.CreatedAfter != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.CreatedAfter.UTC())
	}
	if filter.CreatedBefore != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, filter.CreatedBefore.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// DeleteBlock removes a block, its property rows, and every link that
// touches it, atomically. Proof rows are kept; the deletion itself gets
// proven by the caller.
func (s *DoltStore) DeleteBlock(ctx context.Context, id string) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, "DELETE FROM block_links WHERE from_id = ? OR to_id = ?", id, id); err != nil {
			return fmt.Errorf("failed to delete links for block %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM block_properties WHERE block_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete properties for block %s: %w", id, err)
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM memory_blocks WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete block %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("block %q: %w", id, storage.ErrNotFound)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// BlockExists reports whether a block row exists.
func (s *DoltStore) BlockExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.queryRowContext(ctx, func(row *sql.Row) error { return row.Scan(&one) },
		"SELECT 1 FROM memory_blocks WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check block %s: %w", id, err)
	}
	return true, nil
}

// collectBlocks drains the result set before returning so callers can
// issue follow-up queries on a single-connection pool.
func (s *DoltStore) collectBlocks(ctx context.Context, query string, args ...any) ([]*types.MemoryBlock, error) {
	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*types.MemoryBlock
	for rows.Next() {
		b, err := scanBlockFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (s *DoltStore) attachProperties(ctx context.Context, blocks []*types.MemoryBlock) error {
	if len(blocks) == 0 {
		return nil
	}
	ids := make([]string, len(blocks))
	for i, b := range blocks {
		ids[i] = b.ID
	}
	propsByBlock, err := s.BatchGetBlockProperties(ctx, ids)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if props := propsByBlock[b.ID]; len(props) > 0 {
			b.Metadata = types.MetadataFromProperties(props)
		}
	}
	return nil
}

// jsonOrNull marshals v for a JSON column, mapping empty values to NULL.
func jsonOrNull(v any) (any, error) {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	case []float32:
		if len(t) == 0 {
			return nil, nil
		}
	case *types.ConfidenceScore:
		if t == nil {
			return nil, nil
		}
	case map[string]types.MetaValue:
		if len(t) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json column: %w", err)
	}
	return string(b), nil
}
