// Package storage provides shared types for memory block storage.
//
// The concrete storage implementation lives in the dolt sub-package.
// This package holds interface and value types that are referenced by
// both the dolt implementation and its consumers (memorybank, links,
// cmd/membank, etc.).
package storage

import (
	"context"
	"errors"

	"github.com/cognidao/membank/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrNamespaceNotFound is returned when a block references a namespace
// that does not exist.
var ErrNamespaceNotFound = errors.New("namespace not found")

// ErrNamespaceExists is returned when creating a namespace whose id,
// name, or slug collides with an existing one.
var ErrNamespaceExists = errors.New("namespace already exists")

// ErrDuplicateLink is returned when inserting a link whose
// (from_id, to_id, relation) triple already exists.
var ErrDuplicateLink = errors.New("link already exists")

// ErrCycleDetected is returned when inserting a hierarchical link that
// would close a cycle.
var ErrCycleDetected = errors.New("link would create a cycle")

// ErrVersionConflict is returned when an optimistic-lock update names a
// block version that is no longer current.
var ErrVersionConflict = errors.New("block version conflict")

// ErrDependenciesExist is returned when deleting a block that other
// blocks still depend on through protected relations.
var ErrDependenciesExist = errors.New("dependent links exist")

// ErrNotInitialized is returned when the database schema has not been
// initialized.
var ErrNotInitialized = errors.New("database not initialized")

// StagedTables is the fixed set of tables staged and committed together
// by coordinator mutations.
var StagedTables = []string{"memory_blocks", "block_properties", "block_links", "block_proofs"}

// InsertLinkOptions controls link insertion behavior.
type InsertLinkOptions struct {
	// IfNotExists absorbs duplicate triples instead of returning
	// ErrDuplicateLink.
	IfNotExists bool
}

// Store is the interface satisfied by *dolt.DoltStore.
// Consumers depend on this interface rather than on the concrete type so
// that alternative implementations (mocks, proxies, etc.) can be
// substituted.
type Store interface {
	// Block CRUD
	PutBlock(ctx context.Context, block *types.MemoryBlock) error
	GetBlock(ctx context.Context, id string) (*types.MemoryBlock, error)
	GetBlocks(ctx context.Context, ids []string) ([]*types.MemoryBlock, error)
	ListBlocks(ctx context.Context, filter types.BlockFilter) ([]*types.MemoryBlock, error)
	DeleteBlock(ctx context.Context, id string) error
	BlockExists(ctx context.Context, id string) (bool, error)
	CountBlocks(ctx context.Context, filter types.BlockFilter) (int, error)

	// Properties (the Property-Schema Split)
	GetBlockProperties(ctx context.Context, blockID string) ([]*types.BlockProperty, error)
	BatchGetBlockProperties(ctx context.Context, blockIDs []string) (map[string][]*types.BlockProperty, error)

	// Links (written only through the link manager)
	InsertLink(ctx context.Context, link *types.BlockLink, opts InsertLinkOptions) error
	InsertLinkPair(ctx context.Context, forward, inverse *types.BlockLink) error
	DeleteLink(ctx context.Context, fromID, toID string, relation types.Relation) error
	LinksFrom(ctx context.Context, blockID string, q types.LinkQuery) (*types.LinkPage, error)
	LinksTo(ctx context.Context, blockID string, q types.LinkQuery) (*types.LinkPage, error)
	CountLinksTo(ctx context.Context, blockID string, relations []types.Relation) (int, error)

	// Namespaces
	CreateNamespace(ctx context.Context, ns *types.Namespace) error
	GetNamespace(ctx context.Context, id string) (*types.Namespace, error)
	ListNamespaces(ctx context.Context) ([]*types.Namespace, error)
	NamespaceExists(ctx context.Context, id string) (bool, error)

	// Proofs
	AppendProof(ctx context.Context, proof *types.BlockProof) error
	ListProofs(ctx context.Context, blockID string) ([]*types.BlockProof, error)

	// Configuration
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
