package dolt

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cognidao/membank/internal/types"
)

const propertySelect = "SELECT block_id, name, value_type, text_value, number_value, bool_value, json_value FROM block_properties"

// insertProperties writes the property rows for one block inside an
// existing transaction. Rows go in sorted name order so the staged diff
// is deterministic.
func insertProperties(ctx context.Context, tx *sql.Tx, blockID string, metadata map[string]types.MetaValue) error {
	for _, p := range types.PropertiesFromMetadata(blockID, metadata) {
		valueType, textVal, numberVal, boolVal, jsonVal, err := p.PropertyColumns()
		if err != nil {
			return fmt.Errorf("property %s.%s: %w", blockID, p.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO block_properties (block_id, name, value_type, text_value, number_value, bool_value, json_value)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			blockID, p.Name, valueType, textVal, numberVal, boolVal, jsonVal,
		); err != nil {
			return fmt.Errorf("failed to insert property %s.%s: %w", blockID, p.Name, err)
		}
	}
	return nil
}

// GetBlockProperties returns the property rows for one block in name order.
func (s *DoltStore) GetBlockProperties(ctx context.Context, blockID string) ([]*types.BlockProperty, error) {
	rows, err := s.queryContext(ctx, propertySelect+" WHERE block_id = ? ORDER BY name", blockID)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()
	return scanProperties(rows)
}

// BatchGetBlockProperties loads properties for many blocks in one query.
// The result set is fully drained before returning so the caller can
// issue further queries on a single-connection pool.
func (s *DoltStore) BatchGetBlockProperties(ctx context.Context, blockIDs []string) (map[string][]*types.BlockProperty, error) {
	result := make(map[string][]*types.BlockProperty, len(blockIDs))
	if len(blockIDs) == 0 {
		return result, nil
	}

	args := make([]any, len(blockIDs))
	for i, id := range blockIDs {
		args[i] = id
	}
	rows, err := s.queryContext(ctx,
		propertySelect+" WHERE block_id IN ("+placeholders(len(blockIDs))+") ORDER BY block_id, name", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to batch query properties: %w", err)
	}
	defer rows.Close()

	props, err := scanProperties(rows)
	if err != nil {
		return nil, err
	}
	for _, p := range props {
		result[p.BlockID] = append(result[p.BlockID], p)
	}
	return result, nil
}

func scanProperties(rows *sql.Rows) ([]*types.BlockProperty, error) {
	var props []*types.BlockProperty
	for rows.Next() {
		var (
			blockID, name, valueType string
			textVal                  sql.NullString
			numberVal                sql.NullFloat64
			boolVal                  sql.NullBool
			jsonVal                  sql.NullString
		)
		if err := rows.Scan(&blockID, &name, &valueType, &textVal, &numberVal, &boolVal, &jsonVal); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		prop, err := types.PropertyFromColumns(blockID, name, valueType,
			nullStringPtr(textVal), nullFloatPtr(numberVal), nullBoolPtr(boolVal), nullStringPtr(jsonVal))
		if err != nil {
			return nil, fmt.Errorf("property %s.%s: %w", blockID, name, err)
		}
		props = append(props, prop)
	}
	return props, rows.Err()
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullFloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func nullBoolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	return &v.Bool
}
