// Package links coordinates the typed edges between memory blocks.
//
// All link writes go through the Manager so alias resolution, inverse
// synthesis, and cycle policy cannot be bypassed by individual tools.
package links

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/types"
)

// ErrInvalidRelation marks relation names that resolve to nothing in
// the registry, canonical or alias.
var ErrInvalidRelation = errors.New("invalid relation")

// ErrInvalidDirection marks unknown traversal directions.
var ErrInvalidDirection = errors.New("invalid direction")

// ErrInvalidCursor marks pagination cursors this manager did not mint.
var ErrInvalidCursor = errors.New("invalid cursor")

const (
	// DefaultPageSize bounds link pages when the caller does not.
	DefaultPageSize = 100
	// MaxPageSize is the hard page cap.
	MaxPageSize = 500
)

// Store is the slice of the storage API the link manager uses.
type Store interface {
	InsertLink(ctx context.Context, link *types.BlockLink, opts storage.InsertLinkOptions) error
	InsertLinkPair(ctx context.Context, forward, inverse *types.BlockLink) error
	DeleteLink(ctx context.Context, fromID, toID string, relation types.Relation) error
	LinksFrom(ctx context.Context, blockID string, q types.LinkQuery) (*types.LinkPage, error)
	LinksTo(ctx context.Context, blockID string, q types.LinkQuery) (*types.LinkPage, error)
	CountLinksTo(ctx context.Context, blockID string, relations []types.Relation) (int, error)
	GetBlocks(ctx context.Context, ids []string) ([]*types.MemoryBlock, error)
}

// Manager validates and writes block links.
type Manager struct {
	store Store
	now   func() time.Time
}

// NewManager returns a link manager over store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// CreateLinkInput describes one link to create. Relation accepts
// canonical names and registry aliases.
type CreateLinkInput struct {
	FromID        string
	ToID          string
	Relation      string
	Priority      int
	LinkMetadata  map[string]types.MetaValue
	CreatedBy     string
	Bidirectional bool
}

// CreateLink resolves the relation and writes the link. With
// Bidirectional set, the canonical inverse edge is written in the same
// transaction: both land or neither does. Returns the created links
// with canonical relation names.
func (m *Manager) CreateLink(ctx context.Context, in CreateLinkInput) ([]*types.BlockLink, error) {
	relation, err := types.ResolveRelation(in.Relation)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRelation, in.Relation)
	}
	now := m.now().UTC()
	forward := &types.BlockLink{
		FromID:       in.FromID,
		ToID:         in.ToID,
		Relation:     relation,
		Priority:     in.Priority,
		LinkMetadata: in.LinkMetadata,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    now,
	}
	if err := forward.Validate(); err != nil {
		return nil, err
	}

	if !in.Bidirectional {
		if err := m.store.InsertLink(ctx, forward, storage.InsertLinkOptions{}); err != nil {
			return nil, err
		}
		return []*types.BlockLink{forward}, nil
	}

	inverseRel, ok := relation.Inverse()
	if !ok {
		return nil, fmt.Errorf("%w: no inverse for %s", ErrInvalidRelation, relation)
	}
	inverse := &types.BlockLink{
		FromID:       in.ToID,
		ToID:         in.FromID,
		Relation:     inverseRel,
		Priority:     in.Priority,
		LinkMetadata: in.LinkMetadata,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    now,
	}
	if err := m.store.InsertLinkPair(ctx, forward, inverse); err != nil {
		return nil, err
	}
	return []*types.BlockLink{forward, inverse}, nil
}

// DeleteLink removes one edge. Relation accepts aliases.
func (m *Manager) DeleteLink(ctx context.Context, fromID, toID, relation string) error {
	rel, err := types.ResolveRelation(relation)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRelation, relation)
	}
	return m.store.DeleteLink(ctx, fromID, toID, rel)
}

// Query narrows a link listing. Zero Direction means outgoing.
type Query struct {
	Direction types.LinkDirection
	Relation  string
	Cursor    string
	Limit     int
}

// Links returns one page of a block's links. Direction "both" pages
// through outgoing links first, then incoming, behind a single opaque
// cursor.
func (m *Manager) Links(ctx context.Context, blockID string, q Query) (*types.LinkPage, error) {
	direction := q.Direction
	if direction == "" {
		direction = types.DirectionOutgoing
	}
	if !direction.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDirection, q.Direction)
	}

	lq := types.LinkQuery{Cursor: q.Cursor, Limit: normalizeLimit(q.Limit)}
	if q.Relation != "" {
		rel, err := types.ResolveRelation(q.Relation)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRelation, q.Relation)
		}
		lq.Relation = rel
	}

	switch direction {
	case types.DirectionOutgoing:
		return m.store.LinksFrom(ctx, blockID, lq)
	case types.DirectionIncoming:
		return m.store.LinksTo(ctx, blockID, lq)
	default:
		return m.linksBoth(ctx, blockID, lq)
	}
}

// Phase prefixes for both-direction cursors. Store cursors are
// raw-URL base64, so ':' can never collide with their alphabet.
const (
	phaseOutgoing = "out"
	phaseIncoming = "in"
)

func (m *Manager) linksBoth(ctx context.Context, blockID string, q types.LinkQuery) (*types.LinkPage, error) {
	phase, rest := phaseOutgoing, ""
	if q.Cursor != "" {
		var ok bool
		phase, rest, ok = strings.Cut(q.Cursor, ":")
		if !ok || (phase != phaseOutgoing && phase != phaseIncoming) {
			return nil, ErrInvalidCursor
		}
	}

	if phase == phaseIncoming {
		inq := q
		inq.Cursor = rest
		page, err := m.store.LinksTo(ctx, blockID, inq)
		if err != nil {
			return nil, err
		}
		if page.NextCursor != "" {
			page.NextCursor = phaseIncoming + ":" + page.NextCursor
		}
		return page, nil
	}

	outq := q
	outq.Cursor = rest
	page, err := m.store.LinksFrom(ctx, blockID, outq)
	if err != nil {
		return nil, err
	}
	if page.NextCursor != "" {
		page.NextCursor = phaseOutgoing + ":" + page.NextCursor
		return page, nil
	}

	// Outgoing exhausted; fill the remainder of the page from incoming.
	remaining := q.Limit - len(page.Links)
	if remaining <= 0 {
		page.NextCursor = phaseIncoming + ":"
		return page, nil
	}
	inq := q
	inq.Cursor = ""
	inq.Limit = remaining
	inPage, err := m.store.LinksTo(ctx, blockID, inq)
	if err != nil {
		return nil, err
	}
	page.Links = append(page.Links, inPage.Links...)
	if inPage.NextCursor != "" {
		page.NextCursor = phaseIncoming + ":" + inPage.NextCursor
	}
	return page, nil
}

// Linked pairs a link with the block on its far side.
type Linked struct {
	Link      *types.BlockLink    `json:"link"`
	Block     *types.MemoryBlock  `json:"block"`
	Direction types.LinkDirection `json:"direction"`
}

// LinkedBlocks returns a page of links with their far-side blocks
// attached. Links whose far block vanished mid-read are dropped.
func (m *Manager) LinkedBlocks(ctx context.Context, blockID string, q Query) ([]*Linked, string, error) {
	page, err := m.Links(ctx, blockID, q)
	if err != nil {
		return nil, "", err
	}
	if len(page.Links) == 0 {
		return nil, page.NextCursor, nil
	}

	farIDs := make([]string, 0, len(page.Links))
	for _, l := range page.Links {
		if l.FromID == blockID {
			farIDs = append(farIDs, l.ToID)
		} else {
			farIDs = append(farIDs, l.FromID)
		}
	}
	blocks, err := m.store.GetBlocks(ctx, farIDs)
	if err != nil {
		return nil, "", err
	}
	byID := make(map[string]*types.MemoryBlock, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}

	linked := make([]*Linked, 0, len(page.Links))
	for _, l := range page.Links {
		direction := types.DirectionOutgoing
		farID := l.ToID
		if l.FromID != blockID {
			direction = types.DirectionIncoming
			farID = l.FromID
		}
		block, ok := byID[farID]
		if !ok {
			continue
		}
		linked = append(linked, &Linked{Link: l, Block: block, Direction: direction})
	}
	return linked, page.NextCursor, nil
}

// CountProtectedDependents counts incoming links over hierarchical
// relations. A non-zero count blocks unforced deletion.
func (m *Manager) CountProtectedDependents(ctx context.Context, blockID string) (int, error) {
	return m.store.CountLinksTo(ctx, blockID, types.HierarchicalRelations())
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
