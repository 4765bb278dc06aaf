package tools

import (
	"context"
	"reflect"

	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/types"
)

// CreateNamespaceInput registers a new namespace. Name and slug
// default to the normalized id.
type CreateNamespaceInput struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name,omitempty"`
	Slug        string `json:"slug,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// NamespaceResult is the envelope payload for namespace creation.
type NamespaceResult struct {
	Namespace *types.Namespace `json:"namespace"`
}

// ListNamespacesInput has no parameters.
type ListNamespacesInput struct{}

// ListNamespacesResult carries all known namespaces.
type ListNamespacesResult struct {
	Namespaces []*types.Namespace `json:"namespaces"`
	Count      int                `json:"count"`
}

func namespaceTools() []*CogniTool {
	return []*CogniTool{
		{
			Name:         ToolCreateNamespace,
			Description:  "Create a namespace for partitioning memory blocks.",
			InputType:    reflect.TypeOf(CreateNamespaceInput{}),
			MemoryLinked: true,
			Func:         runCreateNamespace,
		},
		{
			Name:         ToolListNamespaces,
			Description:  "List all namespaces.",
			InputType:    reflect.TypeOf(ListNamespacesInput{}),
			MemoryLinked: true,
			Func:         runListNamespaces,
		},
	}
}

func runCreateNamespace(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*CreateNamespaceInput)
	ns, err := bank.CreateNamespace(ctx, &types.Namespace{
		ID:          in.ID,
		Name:        in.Name,
		Slug:        in.Slug,
		OwnerID:     in.OwnerID,
		Description: in.Description,
	})
	if err != nil {
		return nil, err
	}
	return &NamespaceResult{Namespace: ns}, nil
}

func runListNamespaces(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	namespaces, err := bank.ListNamespaces(ctx)
	if err != nil {
		return nil, err
	}
	return &ListNamespacesResult{Namespaces: namespaces, Count: len(namespaces)}, nil
}
