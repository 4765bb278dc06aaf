// Package membank provides a minimal public API for embedding the
// memory bank in Go programs.
//
// Most integrations should talk to a daemon through the tool surface;
// this package exports just enough for orchestrators that want the
// bank in-process: the core types, the Bank handle, and an Open helper
// wired for the default stack.
package membank

import (
	"context"

	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/storage/dolt"
	"github.com/cognidao/membank/internal/types"
	"github.com/cognidao/membank/internal/vector"
)

// Core types for working with memory
type (
	MemoryBlock = types.MemoryBlock
	BlockLink   = types.BlockLink
	Namespace   = types.Namespace
	BlockProof  = types.BlockProof
	BlockType   = types.BlockType
	BlockFilter = types.BlockFilter
	MetaValue   = types.MetaValue
)

// Bank is the embeddable memory bank handle.
type Bank = memorybank.Bank

// Block type constants
const (
	TypeKnowledge   = types.TypeKnowledge
	TypeTask        = types.TypeTask
	TypeProject     = types.TypeProject
	TypeDoc         = types.TypeDoc
	TypeInteraction = types.TypeInteraction
	TypeLog         = types.TypeLog
	TypeEpic        = types.TypeEpic
	TypeBug         = types.TypeBug
)

// DefaultNamespace always exists; blocks land there unless a namespace
// is given.
const DefaultNamespace = types.DefaultNamespace

// Options configures Open beyond its defaults. Zero values mean Redis
// on 127.0.0.1:6379, the default namespace, the current branch, and
// auto-commit on.
type Options struct {
	RedisAddr    string
	Namespace    string
	Branch       string
	NoAutoCommit bool
}

// Open opens an embedded bank rooted at dir with the default stack:
// Dolt storage, a Redis vector mirror, and the deterministic embedder.
func Open(ctx context.Context, dir string) (*Bank, error) {
	return OpenOptions(ctx, dir, Options{})
}

// OpenOptions opens an embedded bank with explicit options.
func OpenOptions(ctx context.Context, dir string, opts Options) (*Bank, error) {
	store, err := dolt.New(ctx, &dolt.Config{Path: dir})
	if err != nil {
		return nil, err
	}
	index := vector.NewRedisIndex(vector.RedisConfig{Addr: opts.RedisAddr})
	bank, err := memorybank.New(ctx, store, index, nil, memorybank.Config{
		AutoCommit: !opts.NoAutoCommit,
		Namespace:  opts.Namespace,
		Branch:     opts.Branch,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return bank, nil
}
