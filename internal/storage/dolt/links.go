package dolt

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/types"
)

const linkSelectColumns = "from_id, to_id, relation, priority, link_metadata, created_by, created_at"

const (
	defaultLinkPageSize = 100
	maxLinkPageSize     = 500
)

type linkScanner interface {
	Scan(dest ...any) error
}

func scanLinkFrom(sc linkScanner) (*types.BlockLink, error) {
	var (
		l            types.BlockLink
		relation     string
		metadataJSON sql.NullString
		createdBy    sql.NullString
		createdAt    time.Time
	)
	if err := sc.Scan(&l.FromID, &l.ToID, &relation, &l.Priority, &metadataJSON, &createdBy, &createdAt); err != nil {
		return nil, err
	}
	l.Relation = types.Relation(relation)
	l.CreatedBy = createdBy.String
	l.CreatedAt = createdAt.UTC()
	if metadataJSON.Valid && metadataJSON.String != "" {
		var raw map[string]any
		if err := json.Unmarshal([]byte(metadataJSON.String), &raw); err != nil {
			return nil, fmt.Errorf("failed to decode link metadata %s->%s: %w", l.FromID, l.ToID, err)
		}
		meta, err := types.MetaMapFromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode link metadata %s->%s: %w", l.FromID, l.ToID, err)
		}
		l.LinkMetadata = meta
	}
	return &l, nil
}

// InsertLink writes one link row after verifying both endpoints exist
// and, for hierarchical relations, that the edge closes no cycle.
func (s *DoltStore) InsertLink(ctx context.Context, link *types.BlockLink, opts storage.InsertLinkOptions) error {
	if link == nil {
		return errors.New("link is nil")
	}
	if err := link.Validate(); err != nil {
		return err
	}
	metadataJSON, err := jsonOrNull(link.LinkMetadata)
	if err != nil {
		return err
	}
	createdAt := link.CreatedAt.UTC()

	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := insertLinkTx(ctx, tx, link, metadataJSON, createdAt, opts, s.cycleDepth); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// InsertLinkPair writes a link and its inverse atomically: either both
// rows land or neither does.
func (s *DoltStore) InsertLinkPair(ctx context.Context, forward, inverse *types.BlockLink) error {
	if forward == nil || inverse == nil {
		return errors.New("link pair requires both links")
	}
	if err := forward.Validate(); err != nil {
		return err
	}
	if err := inverse.Validate(); err != nil {
		return err
	}
	forwardMeta, err := jsonOrNull(forward.LinkMetadata)
	if err != nil {
		return err
	}
	inverseMeta, err := jsonOrNull(inverse.LinkMetadata)
	if err != nil {
		return err
	}

	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := insertLinkTx(ctx, tx, forward, forwardMeta, forward.CreatedAt.UTC(), storage.InsertLinkOptions{}, s.cycleDepth); err != nil {
			return err
		}
		if err := insertLinkTx(ctx, tx, inverse, inverseMeta, inverse.CreatedAt.UTC(), storage.InsertLinkOptions{}, s.cycleDepth); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

func insertLinkTx(ctx context.Context, tx *sql.Tx, link *types.BlockLink, metadataJSON any, createdAt time.Time, opts storage.InsertLinkOptions, cycleDepth int) error {
	for _, id := range []string{link.FromID, link.ToID} {
		var one int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM memory_blocks WHERE id = ?", id).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("link endpoint %q: %w", id, storage.ErrNotFound)
			}
			return fmt.Errorf("failed to check link endpoint %s: %w", id, err)
		}
	}

	if link.Relation.IsHierarchical() {
		cycle, err := wouldCycle(ctx, tx, link, cycleDepth)
		if err != nil {
			return err
		}
		if cycle {
			return fmt.Errorf("%s -[%s]-> %s: %w", link.FromID, link.Relation, link.ToID, storage.ErrCycleDetected)
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO block_links (from_id, to_id, relation, priority, link_metadata, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		link.FromID, link.ToID, string(link.Relation), link.Priority, metadataJSON,
		nullableString(link.CreatedBy), createdAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			if opts.IfNotExists {
				return nil
			}
			return fmt.Errorf("%s -[%s]-> %s: %w", link.FromID, link.Relation, link.ToID, storage.ErrDuplicateLink)
		}
		return fmt.Errorf("failed to insert link: %w", err)
	}
	return nil
}

// wouldCycle reports whether to_id already reaches from_id over edges of
// the same relation. The walk depth is bounded so a pathological graph
// cannot pin the connection.
func wouldCycle(ctx context.Context, tx *sql.Tx, link *types.BlockLink, depth int) (bool, error) {
	var cycle bool
	err := tx.QueryRowContext(ctx, `
		WITH RECURSIVE reach (id, depth) AS (
			SELECT to_id, 1 FROM block_links WHERE from_id = ? AND relation = ?
			UNION ALL
			SELECT l.to_id, r.depth + 1
			FROM block_links l
			JOIN reach r ON l.from_id = r.id
			WHERE l.relation = ? AND r.depth < ?
		)
		SELECT EXISTS (SELECT 1 FROM reach WHERE id = ?)`,
		link.ToID, string(link.Relation), string(link.Relation), depth, link.FromID,
	).Scan(&cycle)
	if err != nil {
		return false, fmt.Errorf("failed to run cycle check: %w", err)
	}
	return cycle, nil
}

// DeleteLink removes a single (from, to, relation) edge.
func (s *DoltStore) DeleteLink(ctx context.Context, fromID, toID string, relation types.Relation) error {
	res, err := s.execContext(ctx,
		"DELETE FROM block_links WHERE from_id = ? AND to_id = ? AND relation = ?",
		fromID, toID, string(relation))
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("link %s -[%s]-> %s: %w", fromID, relation, toID, storage.ErrNotFound)
	}
	return nil
}

// LinksFrom returns outgoing links of blockID, ordered by (to_id,
// relation) with keyed-cursor pagination.
func (s *DoltStore) LinksFrom(ctx context.Context, blockID string, q types.LinkQuery) (*types.LinkPage, error) {
	return s.linkPage(ctx, blockID, q, true)
}

// LinksTo returns incoming links of blockID, ordered by (from_id,
// relation) with keyed-cursor pagination.
func (s *DoltStore) LinksTo(ctx context.Context, blockID string, q types.LinkQuery) (*types.LinkPage, error) {
	return s.linkPage(ctx, blockID, q, false)
}

func (s *DoltStore) linkPage(ctx context.Context, blockID string, q types.LinkQuery, outgoing bool) (*types.LinkPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLinkPageSize
	}
	if limit > maxLinkPageSize {
		limit = maxLinkPageSize
	}

	anchor, key := "from_id", "to_id"
	if !outgoing {
		anchor, key = "to_id", "from_id"
	}

	query := "SELECT " + linkSelectColumns + " FROM block_links WHERE " + anchor + " = ?"
	args := []any{blockID}
	if q.Relation != "" {
		query += " AND relation = ?"
		args = append(args, string(q.Relation))
	}
	if q.Cursor != "" {
		curID, curRel, err := decodeLinkCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		query += " AND (" + key + " > ? OR (" + key + " = ? AND relation > ?))"
		args = append(args, curID, curID, curRel)
	}
	query += " ORDER BY " + key + ", relation LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []*types.BlockLink
	for rows.Next() {
		l, err := scanLinkFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &types.LinkPage{Links: links}
	if len(links) > limit {
		page.Links = links[:limit]
		last := page.Links[limit-1]
		keyID := last.ToID
		if !outgoing {
			keyID = last.FromID
		}
		page.NextCursor = encodeLinkCursor(keyID, string(last.Relation))
	}
	return page, nil
}

// CountLinksTo counts incoming links, optionally restricted to a set of
// relations. Used for dependency checks before deletes.
func (s *DoltStore) CountLinksTo(ctx context.Context, blockID string, relations []types.Relation) (int, error) {
	query := "SELECT COUNT(*) FROM block_links WHERE to_id = ?"
	args := []any{blockID}
	if len(relations) > 0 {
		query += " AND relation IN (" + placeholders(len(relations)) + ")"
		for _, r := range relations {
			args = append(args, string(r))
		}
	}
	var n int
	err := s.queryRowContext(ctx, func(row *sql.Row) error { return row.Scan(&n) }, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return n, nil
}

// Cursors are opaque to callers: base64(key NUL relation).
func encodeLinkCursor(keyID, relation string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(keyID + "\x00" + relation))
}

func decodeLinkCursor(cursor string) (keyID, relation string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", fmt.Errorf("invalid cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "\x00", 2)
	if len(parts) != 2 {
		return "", "", errors.New("invalid cursor: missing separator")
	}
	return parts[0], parts[1], nil
}
