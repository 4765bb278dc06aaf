package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/types"
)

const namespaceSelectColumns = "id, name, slug, owner_id, description, is_active, created_at"

func scanNamespaceFrom(sc interface{ Scan(dest ...any) error }) (*types.Namespace, error) {
	var (
		ns          types.Namespace
		description sql.NullString
		createdAt   time.Time
	)
	if err := sc.Scan(&ns.ID, &ns.Name, &ns.Slug, &ns.OwnerID, &description, &ns.IsActive, &createdAt); err != nil {
		return nil, err
	}
	ns.Description = description.String
	ns.CreatedAt = createdAt.UTC()
	return &ns, nil
}

// CreateNamespace inserts a namespace row. Duplicate ids, names, or
// slugs surface as ErrNamespaceExists.
func (s *DoltStore) CreateNamespace(ctx context.Context, ns *types.Namespace) error {
	if ns == nil {
		return errors.New("namespace is nil")
	}
	if err := ns.Validate(); err != nil {
		return err
	}
	createdAt := ns.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	} else {
		createdAt = createdAt.UTC()
	}

	_, err := s.execContext(ctx, `
		INSERT INTO namespaces (id, name, slug, owner_id, description, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ns.ID, ns.Name, ns.Slug, ns.OwnerID, nullableString(ns.Description), ns.IsActive, createdAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("namespace %q: %w", ns.ID, storage.ErrNamespaceExists)
		}
		return fmt.Errorf("failed to create namespace: %w", err)
	}
	return nil
}

// GetNamespace fetches one namespace by id.
func (s *DoltStore) GetNamespace(ctx context.Context, id string) (*types.Namespace, error) {
	var ns *types.Namespace
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		got, err := scanNamespaceFrom(row)
		if err != nil {
			return err
		}
		ns = got
		return nil
	}, "SELECT "+namespaceSelectColumns+" FROM namespaces WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("namespace %q: %w", id, storage.ErrNamespaceNotFound)
		}
		return nil, fmt.Errorf("failed to get namespace: %w", err)
	}
	return ns, nil
}

// ListNamespaces returns all namespaces ordered by id.
func (s *DoltStore) ListNamespaces(ctx context.Context) ([]*types.Namespace, error) {
	rows, err := s.queryContext(ctx, "SELECT "+namespaceSelectColumns+" FROM namespaces ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	defer rows.Close()

	var namespaces []*types.Namespace
	for rows.Next() {
		ns, err := scanNamespaceFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan namespace: %w", err)
		}
		namespaces = append(namespaces, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return namespaces, nil
}

// NamespaceExists reports whether a namespace row exists for id.
func (s *DoltStore) NamespaceExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.queryRowContext(ctx, func(row *sql.Row) error { return row.Scan(&exists) },
		"SELECT EXISTS (SELECT 1 FROM namespaces WHERE id = ?)", id)
	if err != nil {
		return false, fmt.Errorf("failed to check namespace: %w", err)
	}
	return exists, nil
}
