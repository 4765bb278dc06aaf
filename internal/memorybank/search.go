package memorybank

import (
	"context"
	"fmt"

	"github.com/cognidao/membank/internal/types"
	"github.com/cognidao/membank/internal/vector"
)

// DefaultTopK bounds semantic searches that do not ask for a count.
const DefaultTopK = 5

// MaxTopK caps how many hits a single search may request.
const MaxTopK = 100

// SearchRequest is a semantic query against the vector mirror.
type SearchRequest struct {
	Query       string
	NamespaceID string
	Type        types.BlockType
	TopK        int
}

// SearchHit pairs a hydrated block with its similarity score.
type SearchHit struct {
	Block *types.MemoryBlock `json:"block"`
	Score float64            `json:"score"`
}

// SearchBlocks embeds the query text, asks the vector index for the
// nearest blocks, and hydrates the hits from SQL. Ids that score in
// the index but no longer exist in SQL are dropped silently: the index
// is a best-effort mirror and may briefly trail the truth.
func (b *Bank) SearchBlocks(ctx context.Context, req SearchRequest) ([]*SearchHit, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("search query is required")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	ns := types.NormalizeNamespaceID(req.NamespaceID)

	emb, err := b.embed.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	scored, err := b.index.Search(ctx, vector.Query{
		Embedding:   emb,
		NamespaceID: ns,
		Type:        string(req.Type),
		TopK:        topK,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(scored) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(scored))
	for _, s := range scored {
		ids = append(ids, s.BlockID)
	}
	blocks, err := b.store.GetBlocks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*types.MemoryBlock, len(blocks))
	for _, blk := range blocks {
		byID[blk.ID] = blk
	}

	hits := make([]*SearchHit, 0, len(scored))
	for _, s := range scored {
		blk, ok := byID[s.BlockID]
		if !ok {
			continue
		}
		hits = append(hits, &SearchHit{Block: blk, Score: s.Score})
	}
	return hits, nil
}
