package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/types"
)

// CreateMemoryBlockInput is the generic block-creation model. Content
// is an alias for Text; Title lands in metadata so lookups keep working
// for callers that only set the pair.
type CreateMemoryBlockInput struct {
	ID            string                       `json:"id,omitempty"`
	NamespaceID   string                       `json:"namespace_id,omitempty"`
	Type          string                       `json:"type" validate:"required,oneof=knowledge task project doc interaction log epic bug"`
	Title         string                       `json:"title,omitempty"`
	Text          string                       `json:"text,omitempty"`
	Content       string                       `json:"content,omitempty"`
	SchemaVersion *int                         `json:"schema_version,omitempty"`
	State         string                       `json:"state,omitempty" validate:"omitempty,oneof=draft published archived"`
	Visibility    string                       `json:"visibility,omitempty" validate:"omitempty,oneof=internal public restricted"`
	Tags          []string                     `json:"tags,omitempty" validate:"max=20"`
	Metadata      map[string]types.MetaValue   `json:"metadata,omitempty"`
	SourceFile    string                       `json:"source_file,omitempty"`
	SourceURI     string                       `json:"source_uri,omitempty"`
	Confidence    *types.ConfidenceScore       `json:"confidence,omitempty"`
	CreatedBy     string                       `json:"created_by,omitempty"`
}

func (in *CreateMemoryBlockInput) validateInput() error {
	if in.Text != "" && in.Content != "" && in.Text != in.Content {
		return invalidf("text and content are aliases; provide one")
	}
	return nil
}

// toBlock converts the input into a block ready for the bank.
func (in *CreateMemoryBlockInput) toBlock() *types.MemoryBlock {
	text := in.Text
	if text == "" {
		text = in.Content
	}
	metadata := in.Metadata
	if in.Title != "" {
		metadata = withMetaField(metadata, "title", types.MetaString(in.Title))
	}
	return &types.MemoryBlock{
		ID:            in.ID,
		NamespaceID:   in.NamespaceID,
		Type:          types.BlockType(in.Type),
		SchemaVersion: in.SchemaVersion,
		Text:          text,
		State:         types.BlockState(in.State),
		Visibility:    types.Visibility(in.Visibility),
		Tags:          in.Tags,
		Metadata:      metadata,
		SourceFile:    in.SourceFile,
		SourceURI:     in.SourceURI,
		Confidence:    in.Confidence,
		CreatedBy:     in.CreatedBy,
	}
}

// CreateBlockResult is the envelope payload for block creation.
type CreateBlockResult struct {
	ID    string             `json:"id"`
	Block *types.MemoryBlock `json:"block"`
}

// GetMemoryBlockInput fetches blocks by id list or by semantic query;
// exactly one mode must be chosen.
type GetMemoryBlockInput struct {
	BlockIDs    []string `json:"block_ids,omitempty"`
	Query       string   `json:"query,omitempty"`
	TopK        int      `json:"top_k,omitempty" validate:"omitempty,min=1,max=100"`
	NamespaceID string   `json:"namespace_id,omitempty"`
	Type        string   `json:"type,omitempty" validate:"omitempty,oneof=knowledge task project doc interaction log epic bug"`
}

func (in *GetMemoryBlockInput) validateInput() error {
	if len(in.BlockIDs) == 0 && in.Query == "" {
		return invalidf("provide block_ids or query")
	}
	if len(in.BlockIDs) > 0 && in.Query != "" {
		return invalidf("block_ids and query are mutually exclusive")
	}
	return nil
}

// GetBlocksResult carries fetched blocks; Scores is present only for
// semantic queries, MissingBlockIDs only for partial id fetches.
type GetBlocksResult struct {
	Blocks          []*types.MemoryBlock `json:"blocks"`
	Count           int                  `json:"count"`
	Scores          map[string]float64   `json:"scores,omitempty"`
	MissingBlockIDs []string             `json:"missing_block_ids,omitempty"`
}

// UpdateMemoryBlockInput mirrors the coordinator's update request.
// Text and TextPatch are mutually exclusive, as are Metadata and
// MetadataPatch.
type UpdateMemoryBlockInput struct {
	BlockID              string                     `json:"block_id" validate:"required"`
	PreviousBlockVersion *int                       `json:"previous_block_version,omitempty" validate:"omitempty,min=1"`
	Text                 *string                    `json:"text,omitempty"`
	TextPatch            *string                    `json:"text_patch,omitempty"`
	Metadata             map[string]types.MetaValue `json:"metadata,omitempty"`
	MetadataPatch        json.RawMessage            `json:"metadata_patch,omitempty"`
	MergeMetadata        bool                       `json:"merge_metadata,omitempty"`
	Tags                 []string                   `json:"tags,omitempty" validate:"max=20"`
	MergeTags            bool                       `json:"merge_tags,omitempty"`
	State                *types.BlockState          `json:"state,omitempty" validate:"omitempty,oneof=draft published archived"`
	Visibility           *types.Visibility          `json:"visibility,omitempty" validate:"omitempty,oneof=internal public restricted"`
	SourceFile           *string                    `json:"source_file,omitempty"`
	SourceURI            *string                    `json:"source_uri,omitempty"`
	Confidence           *types.ConfidenceScore     `json:"confidence,omitempty"`
}

func (in *UpdateMemoryBlockInput) validateInput() error {
	if in.Text != nil && in.TextPatch != nil {
		return invalidf("text and text_patch are mutually exclusive")
	}
	if in.Metadata != nil && len(in.MetadataPatch) > 0 {
		return invalidf("metadata and metadata_patch are mutually exclusive")
	}
	return nil
}

func (in *UpdateMemoryBlockInput) toRequest() memorybank.UpdateRequest {
	return memorybank.UpdateRequest{
		BlockID:              in.BlockID,
		PreviousBlockVersion: in.PreviousBlockVersion,
		Text:                 in.Text,
		TextPatch:            in.TextPatch,
		Metadata:             in.Metadata,
		MetadataPatch:        in.MetadataPatch,
		MergeMetadata:        in.MergeMetadata,
		Tags:                 in.Tags,
		MergeTags:            in.MergeTags,
		State:                in.State,
		Visibility:           in.Visibility,
		SourceFile:           in.SourceFile,
		SourceURI:            in.SourceURI,
		Confidence:           in.Confidence,
	}
}

// UpdateBlockResult is the envelope payload for block updates.
type UpdateBlockResult struct {
	ID           string             `json:"id"`
	Block        *types.MemoryBlock `json:"block"`
	BlockVersion int                `json:"block_version"`
}

// DeleteMemoryBlockInput deletes one block; Force overrides dependent
// protection.
type DeleteMemoryBlockInput struct {
	BlockID string `json:"block_id" validate:"required"`
	Force   bool   `json:"force,omitempty"`
}

// DeleteBlockResult is the envelope payload for block deletion.
type DeleteBlockResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func blockTools() []*CogniTool {
	return []*CogniTool{
		{
			Name:         ToolCreateMemoryBlock,
			Description:  "Create a typed memory block in the current or named namespace.",
			InputType:    reflect.TypeOf(CreateMemoryBlockInput{}),
			MemoryLinked: true,
			Func:         runCreateMemoryBlock,
		},
		{
			Name:         ToolGetMemoryBlock,
			Description:  "Fetch blocks by id list or by semantic query.",
			InputType:    reflect.TypeOf(GetMemoryBlockInput{}),
			MemoryLinked: true,
			Func:         runGetMemoryBlock,
		},
		{
			Name:         ToolUpdateMemoryBlock,
			Description:  "Update a block with optimistic locking, patches, and merge flags.",
			InputType:    reflect.TypeOf(UpdateMemoryBlockInput{}),
			MemoryLinked: true,
			Func:         runUpdateMemoryBlock,
		},
		{
			Name:         ToolDeleteMemoryBlock,
			Description:  "Delete a block; force overrides dependent-link protection.",
			InputType:    reflect.TypeOf(DeleteMemoryBlockInput{}),
			MemoryLinked: true,
			Func:         runDeleteMemoryBlock,
		},
	}
}

func runCreateMemoryBlock(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*CreateMemoryBlockInput)
	block, err := bank.CreateMemoryBlock(ctx, in.toBlock())
	if err != nil {
		return nil, err
	}
	return &CreateBlockResult{ID: block.ID, Block: block}, nil
}

func runGetMemoryBlock(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*GetMemoryBlockInput)
	if in.Query != "" {
		hits, err := bank.SearchBlocks(ctx, memorybank.SearchRequest{
			Query:       in.Query,
			NamespaceID: in.NamespaceID,
			Type:        types.BlockType(in.Type),
			TopK:        in.TopK,
		})
		if err != nil {
			return nil, err
		}
		result := &GetBlocksResult{
			Blocks: make([]*types.MemoryBlock, 0, len(hits)),
			Scores: make(map[string]float64, len(hits)),
		}
		for _, hit := range hits {
			result.Blocks = append(result.Blocks, hit.Block)
			result.Scores[hit.Block.ID] = hit.Score
		}
		result.Count = len(result.Blocks)
		return result, nil
	}

	blocks, err := bank.GetMemoryBlocks(ctx, in.BlockIDs)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("blocks %v: %w", in.BlockIDs, storage.ErrNotFound)
	}
	result := &GetBlocksResult{Blocks: blocks, Count: len(blocks)}
	if len(blocks) < len(in.BlockIDs) {
		found := make(map[string]bool, len(blocks))
		for _, b := range blocks {
			found[b.ID] = true
		}
		for _, id := range in.BlockIDs {
			if !found[id] {
				result.MissingBlockIDs = append(result.MissingBlockIDs, id)
			}
		}
	}
	return result, nil
}

func runUpdateMemoryBlock(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*UpdateMemoryBlockInput)
	block, err := bank.UpdateMemoryBlock(ctx, in.toRequest())
	if err != nil {
		return nil, err
	}
	return &UpdateBlockResult{ID: block.ID, Block: block, BlockVersion: block.BlockVersion}, nil
}

func runDeleteMemoryBlock(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*DeleteMemoryBlockInput)
	if err := bank.DeleteMemoryBlock(ctx, in.BlockID, in.Force); err != nil {
		return nil, err
	}
	return &DeleteBlockResult{ID: in.BlockID, Deleted: true}, nil
}

// withMetaField returns metadata with the field set, copying so caller
// maps are never mutated. Existing values win.
func withMetaField(m map[string]types.MetaValue, key string, v types.MetaValue) map[string]types.MetaValue {
	if _, exists := m[key]; exists {
		return m
	}
	out := make(map[string]types.MetaValue, len(m)+1)
	for k, item := range m {
		out[k] = item
	}
	out[key] = v
	return out
}
