package tools

import (
	"context"
	"reflect"

	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/types"
)

// CreateDocMemoryBlockInput creates a doc-typed block from a titled
// markdown document.
type CreateDocMemoryBlockInput struct {
	Title       string                     `json:"title" validate:"required"`
	Content     string                     `json:"content" validate:"required"`
	NamespaceID string                     `json:"namespace_id,omitempty"`
	Tags        []string                   `json:"tags,omitempty" validate:"max=20"`
	Metadata    map[string]types.MetaValue `json:"metadata,omitempty"`
	SourceFile  string                     `json:"source_file,omitempty"`
	SourceURI   string                     `json:"source_uri,omitempty"`
	CreatedBy   string                     `json:"created_by,omitempty"`
}

// QueryDocMemoryBlockInput searches doc blocks semantically.
type QueryDocMemoryBlockInput struct {
	Query       string `json:"query" validate:"required"`
	TopK        int    `json:"top_k,omitempty" validate:"omitempty,min=1,max=100"`
	NamespaceID string `json:"namespace_id,omitempty"`
}

// QueryDocsResult carries matching docs in score order.
type QueryDocsResult struct {
	Docs  []*memorybank.SearchHit `json:"docs"`
	Count int                     `json:"count"`
}

func docTools() []*CogniTool {
	return []*CogniTool{
		{
			Name:         ToolCreateDocMemoryBlock,
			Description:  "Create a doc block from a titled markdown document.",
			InputType:    reflect.TypeOf(CreateDocMemoryBlockInput{}),
			MemoryLinked: true,
			Func:         runCreateDocMemoryBlock,
		},
		{
			Name:         ToolQueryDocMemoryBlock,
			Description:  "Semantic search over doc blocks.",
			InputType:    reflect.TypeOf(QueryDocMemoryBlockInput{}),
			MemoryLinked: true,
			Func:         runQueryDocMemoryBlock,
		},
	}
}

func runCreateDocMemoryBlock(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*CreateDocMemoryBlockInput)
	block, err := bank.CreateMemoryBlock(ctx, &types.MemoryBlock{
		NamespaceID: in.NamespaceID,
		Type:        types.TypeDoc,
		Text:        in.Content,
		Tags:        in.Tags,
		Metadata:    withMetaField(in.Metadata, "title", types.MetaString(in.Title)),
		SourceFile:  in.SourceFile,
		SourceURI:   in.SourceURI,
		CreatedBy:   in.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	return &CreateBlockResult{ID: block.ID, Block: block}, nil
}

func runQueryDocMemoryBlock(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*QueryDocMemoryBlockInput)
	hits, err := bank.SearchBlocks(ctx, memorybank.SearchRequest{
		Query:       in.Query,
		NamespaceID: in.NamespaceID,
		Type:        types.TypeDoc,
		TopK:        in.TopK,
	})
	if err != nil {
		return nil, err
	}
	return &QueryDocsResult{Docs: hits, Count: len(hits)}, nil
}
