package dolt

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cognidao/membank/internal/types"
)

// blockSelectColumns is the canonical column list for memory_blocks
// reads. Keep in sync with scanBlockFrom.
const blockSelectColumns = `id, namespace_id, type, schema_version, text, state, visibility,
	block_version, tags, source_file, source_uri, confidence, created_by,
	created_at, updated_at, embedding`

// blockScanner abstracts *sql.Row and *sql.Rows.
type blockScanner interface {
	Scan(dest ...any) error
}

func scanBlockFrom(sc blockScanner) (*types.MemoryBlock, error) {
	var (
		b                                       types.MemoryBlock
		typ, state, visibility                  string
		schemaVersion                           sql.NullInt64
		tagsJSON, confidenceJSON, embeddingJSON sql.NullString
		sourceFile, sourceURI, createdBy        sql.NullString
		createdAt, updatedAt                    time.Time
	)

	if err := sc.Scan(
		&b.ID, &b.NamespaceID, &typ, &schemaVersion, &b.Text, &state, &visibility,
		&b.BlockVersion, &tagsJSON, &sourceFile, &sourceURI, &confidenceJSON, &createdBy,
		&createdAt, &updatedAt, &embeddingJSON,
	); err != nil {
		return nil, err
	}

	b.Type = types.BlockType(typ)
	b.State = types.BlockState(state)
	b.Visibility = types.Visibility(visibility)
	if schemaVersion.Valid {
		v := int(schemaVersion.Int64)
		b.SchemaVersion = &v
	}
	b.SourceFile = sourceFile.String
	b.SourceURI = sourceURI.String
	b.CreatedBy = createdBy.String
	b.CreatedAt = createdAt.UTC()
	b.UpdatedAt = updatedAt.UTC()

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &b.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for block %s: %w", b.ID, err)
		}
	}
	if confidenceJSON.Valid && confidenceJSON.String != "" {
		b.Confidence = &types.ConfidenceScore{}
		if err := json.Unmarshal([]byte(confidenceJSON.String), b.Confidence); err != nil {
			return nil, fmt.Errorf("failed to decode confidence for block %s: %w", b.ID, err)
		}
	}
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &b.Embedding); err != nil {
			return nil, fmt.Errorf("failed to decode embedding for block %s: %w", b.ID, err)
		}
	}

	return &b, nil
}
