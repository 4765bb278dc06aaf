package types

import (
	"fmt"
	"time"
)

// BlockLink is a directed typed edge between two memory blocks.
// The triple (FromID, ToID, Relation) is the identity of the link.
type BlockLink struct {
	FromID       string               `json:"from_id"`
	ToID         string               `json:"to_id"`
	Relation     Relation             `json:"relation"`
	Priority     int                  `json:"priority"`
	LinkMetadata map[string]MetaValue `json:"link_metadata,omitempty"`
	CreatedBy    string               `json:"created_by,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

// Validate checks the link's local invariants. Endpoint existence and
// cycle freedom are enforced where the row is written.
func (l *BlockLink) Validate() error {
	if l.FromID == "" {
		return fmt.Errorf("from_id is required")
	}
	if l.ToID == "" {
		return fmt.Errorf("to_id is required")
	}
	if l.FromID == l.ToID {
		return fmt.Errorf("link cannot point to its own block")
	}
	if !l.Relation.IsValid() {
		return fmt.Errorf("invalid relation: %s", l.Relation)
	}
	return nil
}

// LinkQuery narrows link listings. Direction is implied by the call
// (LinksFrom/LinksTo); Relation of "" matches all relations.
type LinkQuery struct {
	Relation Relation `json:"relation,omitempty"`
	Cursor   string   `json:"cursor,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// LinkPage is one page of link results with a cursor for the next page.
// NextCursor is empty when the page is the last one.
type LinkPage struct {
	Links      []*BlockLink `json:"links"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// LinkDirection selects which side of a block's links to traverse.
type LinkDirection string

// Link traversal directions
const (
	DirectionOutgoing LinkDirection = "outgoing"
	DirectionIncoming LinkDirection = "incoming"
	DirectionBoth     LinkDirection = "both"
)

// IsValid checks if the direction value is valid
func (d LinkDirection) IsValid() bool {
	switch d {
	case DirectionOutgoing, DirectionIncoming, DirectionBoth:
		return true
	}
	return false
}
