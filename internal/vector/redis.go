package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	fieldEmbedding = "embedding"
	fieldText      = "text"
	fieldNamespace = "namespace_id"
	fieldType      = "type"

	defaultTopK = 10

	reindexBatch   = 64
	reindexWorkers = 4
)

// RedisIndex stores one hash per block plus a set of known ids.
// Similarity is computed client-side, which is fine at memory-bank
// scale (thousands of blocks, not millions).
type RedisIndex struct {
	client     redis.UniversalClient
	prefix     string
	ownsClient bool
}

var _ Index = (*RedisIndex)(nil)

// RedisConfig configures a RedisIndex connection.
type RedisConfig struct {
	Addr      string // default 127.0.0.1:6379
	Password  string
	DB        int
	KeyPrefix string // default "membank:vec"
}

// NewRedisIndex dials redis and returns an index that owns the client.
func NewRedisIndex(cfg RedisConfig) *RedisIndex {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	idx := NewRedisIndexWithClient(client, cfg.KeyPrefix)
	idx.ownsClient = true
	return idx
}

// NewRedisIndexWithClient wraps an existing client. The caller keeps
// ownership of the client's lifecycle.
func NewRedisIndexWithClient(client redis.UniversalClient, keyPrefix string) *RedisIndex {
	if keyPrefix == "" {
		keyPrefix = "membank:vec"
	}
	return &RedisIndex{client: client, prefix: keyPrefix}
}

func (x *RedisIndex) blockKey(id string) string { return x.prefix + ":block:" + id }
func (x *RedisIndex) idsKey() string            { return x.prefix + ":ids" }

// Ping verifies the redis connection.
func (x *RedisIndex) Ping(ctx context.Context) error {
	if err := x.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("vector: redis unreachable: %w", err)
	}
	return nil
}

// Upsert writes or replaces one block's index entry.
func (x *RedisIndex) Upsert(ctx context.Context, rec *Record) error {
	if rec == nil || rec.BlockID == "" {
		return errors.New("vector: record needs a block id")
	}
	if len(rec.Embedding) == 0 {
		return ErrEmptyEmbedding
	}
	pipe := x.client.TxPipeline()
	x.upsertPipe(ctx, pipe, rec)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vector: failed to upsert %s: %w", rec.BlockID, err)
	}
	return nil
}

func (x *RedisIndex) upsertPipe(ctx context.Context, pipe redis.Pipeliner, rec *Record) {
	pipe.HSet(ctx, x.blockKey(rec.BlockID), map[string]any{
		fieldEmbedding: encodeVector(rec.Embedding),
		fieldText:      rec.Text,
		fieldNamespace: rec.NamespaceID,
		fieldType:      rec.Type,
	})
	pipe.SAdd(ctx, x.idsKey(), rec.BlockID)
}

// Delete removes one block's index entry. Deleting an absent block is
// not an error.
func (x *RedisIndex) Delete(ctx context.Context, blockID string) error {
	pipe := x.client.TxPipeline()
	pipe.Del(ctx, x.blockKey(blockID))
	pipe.SRem(ctx, x.idsKey(), blockID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vector: failed to delete %s: %w", blockID, err)
	}
	return nil
}

// Search returns the TopK most similar blocks, highest score first with
// block id as tiebreaker.
func (x *RedisIndex) Search(ctx context.Context, q Query) ([]*ScoredBlock, error) {
	if len(q.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	topK := q.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	ids, err := x.client.SMembers(ctx, x.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("vector: failed to list ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := x.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, x.blockKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("vector: failed to fetch candidates: %w", err)
	}

	hits := make([]*ScoredBlock, 0, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			// Entry removed between SMEMBERS and HGETALL.
			continue
		}
		if q.NamespaceID != "" && fields[fieldNamespace] != q.NamespaceID {
			continue
		}
		if q.Type != "" && fields[fieldType] != q.Type {
			continue
		}
		emb, err := decodeVector([]byte(fields[fieldEmbedding]))
		if err != nil {
			// A corrupt mirror row should not fail the search; it gets
			// repaired by the next upsert or reindex.
			continue
		}
		hits = append(hits, &ScoredBlock{BlockID: ids[i], Score: Cosine(q.Embedding, emb)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].BlockID < hits[j].BlockID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Count returns the number of indexed blocks.
func (x *RedisIndex) Count(ctx context.Context) (int, error) {
	n, err := x.client.SCard(ctx, x.idsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("vector: failed to count: %w", err)
	}
	return int(n), nil
}

// Clear removes every index entry.
func (x *RedisIndex) Clear(ctx context.Context) error {
	ids, err := x.client.SMembers(ctx, x.idsKey()).Result()
	if err != nil {
		return fmt.Errorf("vector: failed to list ids: %w", err)
	}
	pipe := x.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, x.blockKey(id))
	}
	pipe.Del(ctx, x.idsKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vector: failed to clear: %w", err)
	}
	return nil
}

// ReindexAll clears the index and repopulates it from records in
// parallel pipelined batches.
func (x *RedisIndex) ReindexAll(ctx context.Context, records []*Record) error {
	if err := x.Clear(ctx); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reindexWorkers)
	for start := 0; start < len(records); start += reindexBatch {
		batch := records[start:min(start+reindexBatch, len(records))]
		g.Go(func() error {
			pipe := x.client.TxPipeline()
			for _, rec := range batch {
				if rec == nil || rec.BlockID == "" || len(rec.Embedding) == 0 {
					continue
				}
				x.upsertPipe(ctx, pipe, rec)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("vector: failed to reindex batch: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close releases the redis client when this index owns it.
func (x *RedisIndex) Close() error {
	if !x.ownsClient {
		return nil
	}
	return x.client.Close()
}

// Embeddings are stored as little-endian float32 bytes, the layout
// vector-capable redis modules expect.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector: malformed embedding payload (%d bytes)", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
