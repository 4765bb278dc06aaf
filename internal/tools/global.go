package tools

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/types"
)

// GlobalMemoryInventoryInput counts blocks across all namespaces,
// optionally windowed by creation time and narrowed by namespace/type.
type GlobalMemoryInventoryInput struct {
	NamespaceID   string     `json:"namespace_id,omitempty"`
	Type          string     `json:"type,omitempty" validate:"omitempty,oneof=knowledge task project doc interaction log epic bug"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}

// InventoryResult aggregates block counts.
type InventoryResult struct {
	Total       int            `json:"total"`
	ByType      map[string]int `json:"by_type"`
	ByNamespace map[string]int `json:"by_namespace"`
}

// GlobalSemanticSearchInput searches across every namespace unless one
// is named explicitly.
type GlobalSemanticSearchInput struct {
	Query       string `json:"query" validate:"required"`
	TopK        int    `json:"top_k,omitempty" validate:"omitempty,min=1,max=100"`
	NamespaceID string `json:"namespace_id,omitempty"`
	Type        string `json:"type,omitempty" validate:"omitempty,oneof=knowledge task project doc interaction log epic bug"`
}

// SearchResult carries scored hits.
type SearchResult struct {
	Results []*memorybank.SearchHit `json:"results"`
	Count   int                     `json:"count"`
}

// SetContextInput switches the process-wide namespace and/or branch.
type SetContextInput struct {
	NamespaceID string `json:"namespace_id,omitempty"`
	Branch      string `json:"branch,omitempty"`
}

func (in *SetContextInput) validateInput() error {
	if in.NamespaceID == "" && in.Branch == "" {
		return invalidf("provide namespace_id or branch")
	}
	return nil
}

// SetContextResult reports the context after the switch.
type SetContextResult struct {
	NamespaceID string `json:"namespace_id"`
}

// LogInteractionBlockInput records one model interaction as an
// interaction-typed block.
type LogInteractionBlockInput struct {
	ModelInput  string                     `json:"model_input" validate:"required"`
	ModelOutput string                     `json:"model_output,omitempty"`
	SessionID   string                     `json:"session_id,omitempty"`
	NamespaceID string                     `json:"namespace_id,omitempty"`
	Tags        []string                   `json:"tags,omitempty" validate:"max=20"`
	Metadata    map[string]types.MetaValue `json:"metadata,omitempty"`
	CreatedBy   string                     `json:"created_by,omitempty"`
}

func globalTools() []*CogniTool {
	return []*CogniTool{
		{
			Name:         ToolGlobalMemoryInventory,
			Description:  "Count blocks by type and namespace, optionally time-windowed.",
			InputType:    reflect.TypeOf(GlobalMemoryInventoryInput{}),
			MemoryLinked: true,
			SkipInject:   true,
			Func:         runGlobalMemoryInventory,
		},
		{
			Name:         ToolGlobalSemanticSearch,
			Description:  "Semantic search across all namespaces.",
			InputType:    reflect.TypeOf(GlobalSemanticSearchInput{}),
			MemoryLinked: true,
			SkipInject:   true,
			Func:         runGlobalSemanticSearch,
		},
		{
			Name:         ToolSetContext,
			Description:  "Switch the current namespace and/or branch.",
			InputType:    reflect.TypeOf(SetContextInput{}),
			MemoryLinked: true,
			SkipInject:   true,
			Func:         runSetContext,
		},
		{
			Name:         ToolLogInteractionBlock,
			Description:  "Record a model interaction as an interaction block.",
			InputType:    reflect.TypeOf(LogInteractionBlockInput{}),
			MemoryLinked: true,
			Func:         runLogInteractionBlock,
		},
	}
}

func runGlobalMemoryInventory(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*GlobalMemoryInventoryInput)
	filter := types.BlockFilter{
		NamespaceID:   in.NamespaceID,
		CreatedAfter:  in.CreatedAfter,
		CreatedBefore: in.CreatedBefore,
	}
	if in.Type != "" {
		blockType := types.BlockType(in.Type)
		filter.Type = &blockType
	}
	blocks, err := bank.GetAllMemoryBlocks(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &InventoryResult{
		Total:       len(blocks),
		ByType:      map[string]int{},
		ByNamespace: map[string]int{},
	}
	for _, block := range blocks {
		result.ByType[string(block.Type)]++
		result.ByNamespace[block.NamespaceID]++
	}
	return result, nil
}

func runGlobalSemanticSearch(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*GlobalSemanticSearchInput)
	hits, err := bank.SearchBlocks(ctx, memorybank.SearchRequest{
		Query:       in.Query,
		NamespaceID: in.NamespaceID,
		Type:        types.BlockType(in.Type),
		TopK:        in.TopK,
	})
	if err != nil {
		return nil, err
	}
	return &SearchResult{Results: hits, Count: len(hits)}, nil
}

func runSetContext(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*SetContextInput)
	if in.Branch != "" {
		if _, err := bank.Checkout(ctx, in.Branch, false, false); err != nil {
			return nil, err
		}
	}
	if in.NamespaceID != "" {
		if err := bank.SetNamespace(ctx, in.NamespaceID); err != nil {
			return nil, err
		}
	}
	return &SetContextResult{NamespaceID: bank.Namespace()}, nil
}

func runLogInteractionBlock(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*LogInteractionBlockInput)

	metadata := map[string]types.MetaValue{
		"model_input": types.MetaString(in.ModelInput),
	}
	if in.ModelOutput != "" {
		metadata["model_output"] = types.MetaString(in.ModelOutput)
	}
	if in.SessionID != "" {
		metadata["session_id"] = types.MetaString(in.SessionID)
	}
	for k, v := range in.Metadata {
		if _, taken := metadata[k]; !taken {
			metadata[k] = v
		}
	}

	block, err := bank.CreateMemoryBlock(ctx, &types.MemoryBlock{
		NamespaceID: in.NamespaceID,
		Type:        types.TypeInteraction,
		Text:        renderInteractionText(in.ModelInput, in.ModelOutput),
		Tags:        in.Tags,
		Metadata:    metadata,
		CreatedBy:   in.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	return &CreateBlockResult{ID: block.ID, Block: block}, nil
}

// renderInteractionText renders the input/output exchange as a small
// two-section document so interactions read well in search results.
func renderInteractionText(modelInput, modelOutput string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Input\n\n%s\n", modelInput)
	if modelOutput != "" {
		fmt.Fprintf(&b, "\n## Output\n\n%s\n", modelOutput)
	}
	return b.String()
}
