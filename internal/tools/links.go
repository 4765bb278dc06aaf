package tools

import (
	"context"
	"errors"
	"reflect"

	"github.com/cognidao/membank/internal/links"
	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/types"
)

// CreateBlockLinkInput creates a typed link between two blocks.
// Relation accepts canonical names and registry aliases; Bidirectional
// also writes the canonical inverse edge.
type CreateBlockLinkInput struct {
	FromID        string                     `json:"from_id" validate:"required"`
	ToID          string                     `json:"to_id" validate:"required"`
	Relation      string                     `json:"relation" validate:"required"`
	Priority      int                        `json:"priority,omitempty" validate:"omitempty,min=0"`
	LinkMetadata  map[string]types.MetaValue `json:"link_metadata,omitempty"`
	CreatedBy     string                     `json:"created_by,omitempty"`
	Bidirectional bool                       `json:"bidirectional,omitempty"`
}

// CreateLinkResult carries the created link(s): two entries when
// bidirectional.
type CreateLinkResult struct {
	Links   []*types.BlockLink `json:"links"`
	Created int                `json:"created"`
}

// GetMemoryLinksInput pages through a block's links. Direction accepts
// out/in/both (and the long spellings).
type GetMemoryLinksInput struct {
	BlockID   string `json:"block_id" validate:"required"`
	Direction string `json:"direction,omitempty" validate:"omitempty,oneof=in out both incoming outgoing"`
	Relation  string `json:"relation,omitempty"`
	Cursor    string `json:"cursor,omitempty"`
	Limit     int    `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
}

// LinkPageResult is one page of links.
type LinkPageResult struct {
	Links      []*types.BlockLink `json:"links"`
	Count      int                `json:"count"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// GetLinkedBlocksInput pages through a block's links with the far-side
// blocks hydrated.
type GetLinkedBlocksInput struct {
	BlockID   string `json:"block_id" validate:"required"`
	Direction string `json:"direction,omitempty" validate:"omitempty,oneof=in out both incoming outgoing"`
	Relation  string `json:"relation,omitempty"`
	Cursor    string `json:"cursor,omitempty"`
	Limit     int    `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
}

// LinkedBlocksResult is one hydrated page.
type LinkedBlocksResult struct {
	Blocks     []*links.Linked `json:"blocks"`
	Count      int             `json:"count"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func linkTools() []*CogniTool {
	return []*CogniTool{
		{
			Name:         ToolCreateBlockLink,
			Description:  "Create a typed link between two blocks, optionally bidirectional.",
			InputType:    reflect.TypeOf(CreateBlockLinkInput{}),
			MemoryLinked: true,
			Func:         runCreateBlockLink,
		},
		{
			Name:         ToolGetMemoryLinks,
			Description:  "Page through a block's links by direction and relation.",
			InputType:    reflect.TypeOf(GetMemoryLinksInput{}),
			MemoryLinked: true,
			Func:         runGetMemoryLinks,
		},
		{
			Name:         ToolGetLinkedBlocks,
			Description:  "Page through a block's links with the far-side blocks attached.",
			InputType:    reflect.TypeOf(GetLinkedBlocksInput{}),
			MemoryLinked: true,
			Func:         runGetLinkedBlocks,
		},
	}
}

func runCreateBlockLink(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*CreateBlockLinkInput)
	created, err := bank.Links().CreateLink(ctx, links.CreateLinkInput{
		FromID:        in.FromID,
		ToID:          in.ToID,
		Relation:      in.Relation,
		Priority:      in.Priority,
		LinkMetadata:  in.LinkMetadata,
		CreatedBy:     in.CreatedBy,
		Bidirectional: in.Bidirectional,
	})
	if err != nil {
		// A missing endpoint is a link-validation failure here, not a
		// plain block lookup miss.
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &linkInputError{err: err}
		}
		return nil, err
	}
	return &CreateLinkResult{Links: created, Created: len(created)}, nil
}

func runGetMemoryLinks(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*GetMemoryLinksInput)
	page, err := bank.Links().Links(ctx, in.BlockID, links.Query{
		Direction: linkDirection(in.Direction),
		Relation:  in.Relation,
		Cursor:    in.Cursor,
		Limit:     in.Limit,
	})
	if err != nil {
		return nil, err
	}
	return &LinkPageResult{Links: page.Links, Count: len(page.Links), NextCursor: page.NextCursor}, nil
}

func runGetLinkedBlocks(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*GetLinkedBlocksInput)
	linked, next, err := bank.Links().LinkedBlocks(ctx, in.BlockID, links.Query{
		Direction: linkDirection(in.Direction),
		Relation:  in.Relation,
		Cursor:    in.Cursor,
		Limit:     in.Limit,
	})
	if err != nil {
		return nil, err
	}
	return &LinkedBlocksResult{Blocks: linked, Count: len(linked), NextCursor: next}, nil
}

// linkDirection maps the wire spellings onto the traversal enum.
func linkDirection(s string) types.LinkDirection {
	switch s {
	case "in", "incoming":
		return types.DirectionIncoming
	case "both":
		return types.DirectionBoth
	case "out", "outgoing":
		return types.DirectionOutgoing
	}
	return ""
}
