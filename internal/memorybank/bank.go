// Package memorybank provides the transactional coordinator for the
// memory store.
//
// The Bank is the only component that mutates both the versioned SQL
// store and the vector index. It enforces cross-substrate consistency
// (SQL is the source of truth, the vector index a best-effort mirror),
// owns the auto-commit policy, records block proofs, and fronts the
// branch lifecycle for tools and the CLI.
package memorybank

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cognidao/membank/internal/debug"
	"github.com/cognidao/membank/internal/links"
	"github.com/cognidao/membank/internal/schema"
	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/types"
	"github.com/cognidao/membank/internal/vector"
)

// DefaultPatchLimit bounds text and metadata patch documents.
const DefaultPatchLimit = 100 * 1024

// Config controls bank behavior. Zero values fall back to defaults.
type Config struct {
	// AutoCommit stages and commits the block tables after every
	// successful mutation.
	AutoCommit bool
	// Namespace is the initial current namespace.
	Namespace string
	// Branch is the branch to check out at startup ("" leaves the
	// store on whatever branch it opened on).
	Branch string
	// PatchLimit bounds patch documents in bytes (DefaultPatchLimit
	// when zero).
	PatchLimit int
	// Schemas optionally validates block metadata against registered
	// (type, schema_version) schemas.
	Schemas *schema.Registry
}

// Bank is the structured memory bank: the exclusive owner of the SQL
// writer and the vector index handle.
type Bank struct {
	store  storage.VersionedStore
	index  vector.Index
	embed  vector.Embedder
	links  *links.Manager
	schemas *schema.Registry

	autoCommit bool
	patchLimit int

	// current namespace, mutable via SetNamespace (SetContext tool).
	nsMu      sync.RWMutex
	namespace string

	// namespace existence cache. Entries are only ever set to true;
	// Create invalidates by priming the new id.
	cacheMu sync.RWMutex
	nsCache map[string]bool

	now func() time.Time
}

// New builds a Bank over the given substrates. When cfg.Branch is set
// the store is checked out onto it (creating the branch if missing).
func New(ctx context.Context, store storage.VersionedStore, index vector.Index, embed vector.Embedder, cfg Config) (*Bank, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if index == nil {
		return nil, fmt.Errorf("vector index is required")
	}
	if embed == nil {
		embed = vector.NewLocalEmbedder(types.EmbeddingDim)
	}
	if embed.Dimension() != types.EmbeddingDim {
		return nil, fmt.Errorf("embedder dimension %d does not match required %d", embed.Dimension(), types.EmbeddingDim)
	}

	ns := types.NormalizeNamespaceID(cfg.Namespace)
	if ns == "" {
		ns = types.DefaultNamespace
	}
	patchLimit := cfg.PatchLimit
	if patchLimit <= 0 {
		patchLimit = DefaultPatchLimit
	}

	b := &Bank{
		store:      store,
		index:      index,
		embed:      embed,
		links:      links.NewManager(store),
		schemas:    cfg.Schemas,
		autoCommit: cfg.AutoCommit,
		patchLimit: patchLimit,
		namespace:  ns,
		nsCache:    make(map[string]bool),
		now:        time.Now,
	}

	if cfg.Branch != "" {
		if err := b.ensureBranch(ctx, cfg.Branch); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ensureBranch checks out the named branch, creating it from the
// current HEAD when it does not exist yet.
func (b *Bank) ensureBranch(ctx context.Context, name string) error {
	active, err := b.store.ActiveBranch(ctx)
	if err == nil && active == name {
		return nil
	}
	if err := b.store.CheckoutBranch(ctx, name, false); err == nil {
		return nil
	}
	if err := b.store.CreateBranch(ctx, name, "", false); err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	if err := b.store.CheckoutBranch(ctx, name, false); err != nil {
		return fmt.Errorf("checkout branch %s: %w", name, err)
	}
	debug.Logf("membank: created and checked out branch %s\n", name)
	return nil
}

// Links returns the bank's link manager. Tools use it for link
// operations; the manager shares the bank's pinned writer session.
func (b *Bank) Links() *links.Manager { return b.links }

// Store exposes the underlying versioned store for read-side helpers.
func (b *Bank) Store() storage.VersionedStore { return b.store }

// Embedder returns the embedding implementation used for vector writes.
func (b *Bank) Embedder() vector.Embedder { return b.embed }

// AutoCommit reports whether mutations stage-and-commit automatically.
func (b *Bank) AutoCommit() bool { return b.autoCommit }

// Namespace returns the current namespace used when tool calls omit one.
func (b *Bank) Namespace() string {
	b.nsMu.RLock()
	defer b.nsMu.RUnlock()
	return b.namespace
}

// SetNamespace switches the current namespace after validating it
// exists.
func (b *Bank) SetNamespace(ctx context.Context, id string) error {
	id = types.NormalizeNamespaceID(id)
	if err := b.ValidateNamespace(ctx, id); err != nil {
		return err
	}
	b.nsMu.Lock()
	b.namespace = id
	b.nsMu.Unlock()
	return nil
}

// CurrentBranch returns the active branch, falling back to the last
// branch a successful call observed. It never returns "unknown": when
// nothing has been observed yet it reports "main".
func (b *Bank) CurrentBranch(ctx context.Context) string {
	if name, err := b.store.ActiveBranch(ctx); err == nil && name != "" {
		return name
	}
	if t, ok := b.store.(interface{ LastKnownBranch() string }); ok {
		if name := t.LastKnownBranch(); name != "" {
			return name
		}
	}
	return "main"
}

// Health is the coordinator health snapshot.
type Health struct {
	Healthy      bool   `json:"healthy"`
	SQL          bool   `json:"sql"`
	VectorIndex  bool   `json:"vector_index"`
	ActiveBranch string `json:"active_branch"`
	Namespace    string `json:"namespace"`
	Detail       string `json:"detail,omitempty"`
}

// HealthCheck pings both substrates and reports the active branch.
func (b *Bank) HealthCheck(ctx context.Context) *Health {
	h := &Health{
		Namespace:    b.Namespace(),
		ActiveBranch: b.CurrentBranch(ctx),
	}
	var details []string
	if err := b.store.Ping(ctx); err != nil {
		details = append(details, fmt.Sprintf("sql: %v", err))
	} else {
		h.SQL = true
	}
	if err := b.pingIndex(ctx); err != nil {
		details = append(details, fmt.Sprintf("vector: %v", err))
	} else {
		h.VectorIndex = true
	}
	h.Healthy = h.SQL && h.VectorIndex
	h.Detail = strings.Join(details, "; ")
	return h
}

func (b *Bank) pingIndex(ctx context.Context) error {
	if p, ok := b.index.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	_, err := b.index.Count(ctx)
	return err
}

// Close releases both substrate handles.
func (b *Bank) Close() error {
	storeErr := b.store.Close()
	indexErr := b.index.Close()
	if storeErr != nil {
		return storeErr
	}
	return indexErr
}

// ValidateNamespace verifies the namespace exists, consulting a
// process-local cache first. The default namespace short-circuits: it
// is seeded by the schema and always present.
func (b *Bank) ValidateNamespace(ctx context.Context, id string) error {
	id = types.NormalizeNamespaceID(id)
	if id == "" {
		return fmt.Errorf("namespace is required")
	}
	if id == types.DefaultNamespace {
		return nil
	}

	b.cacheMu.RLock()
	known := b.nsCache[id]
	b.cacheMu.RUnlock()
	if known {
		return nil
	}

	exists, err := b.store.NamespaceExists(ctx, id)
	if err != nil {
		return fmt.Errorf("namespace lookup: %w", err)
	}
	if !exists {
		return fmt.Errorf("namespace %q: %w", id, storage.ErrNamespaceNotFound)
	}
	b.cacheMu.Lock()
	b.nsCache[id] = true
	b.cacheMu.Unlock()
	return nil
}

// CreateNamespace registers a namespace and primes the cache.
func (b *Bank) CreateNamespace(ctx context.Context, ns *types.Namespace) (*types.Namespace, error) {
	if ns == nil {
		return nil, fmt.Errorf("namespace is nil")
	}
	ns.ID = types.NormalizeNamespaceID(ns.ID)
	if ns.ID == "" && ns.Name != "" {
		ns.ID = types.NormalizeNamespaceID(ns.Name)
	}
	if ns.Name == "" {
		ns.Name = ns.ID
	}
	if ns.Slug == "" {
		ns.Slug = strings.ReplaceAll(types.NormalizeNamespaceID(ns.Name), " ", "-")
	}
	if ns.CreatedAt.IsZero() {
		ns.CreatedAt = b.now().UTC()
	}
	ns.IsActive = true
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	if err := b.store.CreateNamespace(ctx, ns); err != nil {
		return nil, err
	}
	b.cacheMu.Lock()
	b.nsCache[ns.ID] = true
	b.cacheMu.Unlock()

	if err := b.autoCommitTables(ctx, fmt.Sprintf("create namespace %s", ns.ID), []string{"namespaces"}); err != nil {
		return nil, err
	}
	return ns, nil
}

// ListNamespaces returns all namespaces.
func (b *Bank) ListNamespaces(ctx context.Context) ([]*types.Namespace, error) {
	return b.store.ListNamespaces(ctx)
}

// InvalidateNamespaceCache drops all cached namespace lookups. Called
// after branch switches, merges, and pulls, any of which can change the
// namespace table underneath the cache.
func (b *Bank) InvalidateNamespaceCache() {
	b.cacheMu.Lock()
	b.nsCache = make(map[string]bool)
	b.cacheMu.Unlock()
}

// autoCommitTables stages and commits the given tables when auto-commit
// is on. On commit failure the working set is rolled back; a rollback
// failure escalates to a critical stderr log and the returned
// CommitError marks the state inconsistent.
func (b *Bank) autoCommitTables(ctx context.Context, message string, tables []string) error {
	if !b.autoCommit {
		return nil
	}
	if err := b.store.AddToStaging(ctx, tables); err != nil {
		return &CommitError{Err: fmt.Errorf("staging: %w", err)}
	}
	if _, err := b.store.CommitChanges(ctx, message, tables); err != nil {
		if isNothingToCommit(err) {
			return nil
		}
		rollbackErr := b.store.DiscardChanges(ctx, tables)
		if rollbackErr != nil {
			fmt.Fprintf(os.Stderr, "membank: CRITICAL: commit failed and rollback failed, store state may be inconsistent: commit=%v rollback=%v\n", err, rollbackErr)
		}
		return &CommitError{Err: err, RollbackErr: rollbackErr}
	}
	return nil
}

// commitAndProof commits the staged block tables (when auto-commit is
// on) and appends the operation proof. The proof row itself lands in
// the next commit; with auto-commit off the proof carries a synthetic
// uncommitted marker instead of a commit hash.
func (b *Bank) commitAndProof(ctx context.Context, op types.ProofOperation, blockID, message string) error {
	commitHash := ""
	if b.autoCommit {
		if err := b.store.AddToStaging(ctx, storage.StagedTables); err != nil {
			return &CommitError{Err: fmt.Errorf("staging: %w", err)}
		}
		hash, err := b.store.CommitChanges(ctx, message, storage.StagedTables)
		if err != nil && !isNothingToCommit(err) {
			rollbackErr := b.store.DiscardChanges(ctx, storage.StagedTables)
			if rollbackErr != nil {
				fmt.Fprintf(os.Stderr, "membank: CRITICAL: commit failed and rollback failed, store state may be inconsistent: commit=%v rollback=%v\n", err, rollbackErr)
			}
			return &CommitError{Err: err, RollbackErr: rollbackErr}
		}
		commitHash = hash
	}
	if commitHash == "" {
		commitHash = "uncommitted:" + uuid.NewString()
	}

	proof := &types.BlockProof{
		BlockID:    blockID,
		Operation:  op,
		CommitHash: commitHash,
		Timestamp:  b.now().UTC(),
	}
	if err := b.store.AppendProof(ctx, proof); err != nil {
		// The mutation itself is committed; a failed proof write is
		// logged rather than failing the operation.
		fmt.Fprintf(os.Stderr, "membank: warning: proof append failed for %s %s: %v\n", op, blockID, err)
	}
	return nil
}

// isNothingToCommit matches Dolt's "nothing to commit" error so a
// no-op mutation does not surface as a commit failure.
func isNothingToCommit(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "nothing to commit")
}
