// Package testbank provides bank-level test fixtures.
//
// MemStore is a process-local storage.RemoteStore with injectable
// failures, letting coordinator tests drive the rollback and
// commit-failure paths that a real Dolt store cannot produce on demand.
// New wires a MemStore to a miniredis-backed vector index and returns a
// ready Bank; NewDolt builds the same environment over a real embedded
// Dolt store and skips the test when embedded Dolt is unavailable.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    env := testbank.New(t)
//	    block := env.CreateBlock("the deploy runbook")
//	    env.AssertProofs(block.ID, types.ProofCreate)
//	}
package testbank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cognidao/membank/internal/links"
	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/storage/dolt"
	"github.com/cognidao/membank/internal/types"
	"github.com/cognidao/membank/internal/vector"
)

// doltInitMu serializes embedded engine creation to avoid data races in
// the go-mysql-server global status variable initialization (upstream
// issue).
var doltInitMu sync.Mutex

// MemStore is an in-memory storage.RemoteStore. All fields are guarded
// by mu except the Fail* injection points, which tests set before
// issuing calls.
type MemStore struct {
	mu         sync.Mutex
	blocks     map[string]*types.MemoryBlock
	links      []*types.BlockLink
	namespaces map[string]*types.Namespace
	proofs     []*types.BlockProof
	config     map[string]string

	branch   string
	branches map[string]bool
	commits  []string
	dirty    bool
	staged   bool

	// Failure injection. A non-nil error fails the matching call.
	FailPutBlock    error
	FailDeleteBlock error
	FailCommit      error
	FailDiscard     error
	FailAppendProof error
	FailPush        error
	FailPull        error

	// Call counters for assertions.
	CommitCalls          int
	DiscardCalls         int
	PushCalls            int
	PullCalls            int
	NamespaceExistsCalls int
}

// NewMemStore returns an empty store on branch main with the default
// namespace seeded, mirroring the schema bootstrap.
func NewMemStore() *MemStore {
	return &MemStore{
		blocks: make(map[string]*types.MemoryBlock),
		namespaces: map[string]*types.Namespace{
			types.DefaultNamespace: {
				ID:        types.DefaultNamespace,
				Name:      types.DefaultNamespace,
				Slug:      types.DefaultNamespace,
				CreatedAt: time.Now().UTC(),
				IsActive:  true,
			},
		},
		config:   make(map[string]string),
		branch:   "main",
		branches: map[string]bool{"main": true},
	}
}

var _ storage.RemoteStore = (*MemStore)(nil)

// --- blocks ---

func (m *MemStore) PutBlock(_ context.Context, block *types.MemoryBlock) error {
	if m.FailPutBlock != nil {
		return m.FailPutBlock
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.namespaces[block.NamespaceID]; !ok && block.NamespaceID != types.DefaultNamespace {
		return fmt.Errorf("namespace %q: %w", block.NamespaceID, storage.ErrNamespaceNotFound)
	}
	clone := *block
	m.blocks[block.ID] = &clone
	m.dirty = true
	return nil
}

func (m *MemStore) GetBlock(_ context.Context, id string) (*types.MemoryBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	block, ok := m.blocks[id]
	if !ok {
		return nil, fmt.Errorf("block %s: %w", id, storage.ErrNotFound)
	}
	clone := *block
	return &clone, nil
}

func (m *MemStore) GetBlocks(_ context.Context, ids []string) ([]*types.MemoryBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.MemoryBlock, 0, len(ids))
	for _, id := range ids {
		if block, ok := m.blocks[id]; ok {
			clone := *block
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *MemStore) ListBlocks(_ context.Context, filter types.BlockFilter) ([]*types.MemoryBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.MemoryBlock
	for _, block := range m.blocks {
		if !matchesFilter(block, filter) {
			continue
		}
		clone := *block
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesFilter(block *types.MemoryBlock, filter types.BlockFilter) bool {
	if filter.NamespaceID != "" && block.NamespaceID != filter.NamespaceID {
		return false
	}
	if filter.Type != nil && block.Type != *filter.Type {
		return false
	}
	if filter.State != nil && block.State != *filter.State {
		return false
	}
	if filter.Visibility != nil && block.Visibility != *filter.Visibility {
		return false
	}
	if filter.CreatedAfter != nil && block.CreatedAt.Before(*filter.CreatedAfter) {
		return false
	}
	if filter.CreatedBefore != nil && !block.CreatedAt.Before(*filter.CreatedBefore) {
		return false
	}
	for _, want := range filter.Tags {
		found := false
		for _, tag := range block.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (m *MemStore) DeleteBlock(_ context.Context, id string) error {
	if m.FailDeleteBlock != nil {
		return m.FailDeleteBlock
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocks[id]; !ok {
		return fmt.Errorf("block %s: %w", id, storage.ErrNotFound)
	}
	delete(m.blocks, id)
	kept := m.links[:0]
	for _, l := range m.links {
		if l.FromID != id && l.ToID != id {
			kept = append(kept, l)
		}
	}
	m.links = kept
	m.dirty = true
	return nil
}

func (m *MemStore) BlockExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocks[id]
	return ok, nil
}

func (m *MemStore) CountBlocks(ctx context.Context, filter types.BlockFilter) (int, error) {
	filter.Limit = 0
	blocks, err := m.ListBlocks(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(blocks), nil
}

// --- properties ---

func (m *MemStore) GetBlockProperties(_ context.Context, blockID string) ([]*types.BlockProperty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	block, ok := m.blocks[blockID]
	if !ok {
		return nil, fmt.Errorf("block %s: %w", blockID, storage.ErrNotFound)
	}
	return types.PropertiesFromMetadata(blockID, block.Metadata), nil
}

func (m *MemStore) BatchGetBlockProperties(_ context.Context, blockIDs []string) (map[string][]*types.BlockProperty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]*types.BlockProperty, len(blockIDs))
	for _, id := range blockIDs {
		if block, ok := m.blocks[id]; ok {
			out[id] = types.PropertiesFromMetadata(id, block.Metadata)
		}
	}
	return out, nil
}

// --- links ---

func (m *MemStore) InsertLink(_ context.Context, link *types.BlockLink, opts storage.InsertLinkOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLinkLocked(link, opts)
}

func (m *MemStore) insertLinkLocked(link *types.BlockLink, opts storage.InsertLinkOptions) error {
	if _, ok := m.blocks[link.FromID]; !ok {
		return fmt.Errorf("block %s: %w", link.FromID, storage.ErrNotFound)
	}
	if _, ok := m.blocks[link.ToID]; !ok {
		return fmt.Errorf("block %s: %w", link.ToID, storage.ErrNotFound)
	}
	for _, l := range m.links {
		if l.FromID == link.FromID && l.ToID == link.ToID && l.Relation == link.Relation {
			if opts.IfNotExists {
				return nil
			}
			return storage.ErrDuplicateLink
		}
	}
	if link.Relation.IsHierarchical() && m.wouldCycleLocked(link) {
		return storage.ErrCycleDetected
	}
	clone := *link
	m.links = append(m.links, &clone)
	m.dirty = true
	return nil
}

// wouldCycleLocked walks same-relation edges from the link target
// looking for the source.
func (m *MemStore) wouldCycleLocked(link *types.BlockLink) bool {
	seen := map[string]bool{}
	queue := []string{link.ToID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == link.FromID {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, l := range m.links {
			if l.FromID == cur && l.Relation == link.Relation {
				queue = append(queue, l.ToID)
			}
		}
	}
	return false
}

func (m *MemStore) InsertLinkPair(_ context.Context, forward, inverse *types.BlockLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insertLinkLocked(forward, storage.InsertLinkOptions{}); err != nil {
		return err
	}
	return m.insertLinkLocked(inverse, storage.InsertLinkOptions{IfNotExists: true})
}

func (m *MemStore) DeleteLink(_ context.Context, fromID, toID string, relation types.Relation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.links {
		if l.FromID == fromID && l.ToID == toID && l.Relation == relation {
			m.links = append(m.links[:i], m.links[i+1:]...)
			m.dirty = true
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *MemStore) LinksFrom(_ context.Context, blockID string, q types.LinkQuery) (*types.LinkPage, error) {
	return m.page(blockID, q, true)
}

func (m *MemStore) LinksTo(_ context.Context, blockID string, q types.LinkQuery) (*types.LinkPage, error) {
	return m.page(blockID, q, false)
}

// page mirrors the real store's ordering (priority DESC, key id,
// relation) with offset cursors; the manager treats cursors as opaque.
func (m *MemStore) page(blockID string, q types.LinkQuery, outgoing bool) (*types.LinkPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*types.BlockLink
	for _, l := range m.links {
		anchor := l.FromID
		if !outgoing {
			anchor = l.ToID
		}
		if anchor != blockID {
			continue
		}
		if q.Relation != "" && l.Relation != q.Relation {
			continue
		}
		clone := *l
		matched = append(matched, &clone)
	}
	key := func(l *types.BlockLink) string {
		if outgoing {
			return l.ToID
		}
		return l.FromID
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		if key(matched[i]) != key(matched[j]) {
			return key(matched[i]) < key(matched[j])
		}
		return matched[i].Relation < matched[j].Relation
	})

	offset := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil {
			return nil, errors.New("invalid cursor")
		}
		offset = n
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && offset+q.Limit < end {
		end = offset + q.Limit
	}
	pageOut := &types.LinkPage{Links: matched[offset:end]}
	if end < len(matched) {
		pageOut.NextCursor = strconv.Itoa(end)
	}
	return pageOut, nil
}

func (m *MemStore) CountLinksTo(_ context.Context, blockID string, relations []types.Relation) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[types.Relation]bool, len(relations))
	for _, r := range relations {
		wanted[r] = true
	}
	n := 0
	for _, l := range m.links {
		if l.ToID != blockID {
			continue
		}
		if len(relations) == 0 || wanted[l.Relation] {
			n++
		}
	}
	return n, nil
}

// --- namespaces ---

func (m *MemStore) CreateNamespace(_ context.Context, ns *types.Namespace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.namespaces[ns.ID]; ok {
		return fmt.Errorf("namespace %q: %w", ns.ID, storage.ErrNamespaceExists)
	}
	for _, existing := range m.namespaces {
		if existing.Name == ns.Name || existing.Slug == ns.Slug {
			return fmt.Errorf("namespace %q: %w", ns.ID, storage.ErrNamespaceExists)
		}
	}
	clone := *ns
	m.namespaces[ns.ID] = &clone
	m.dirty = true
	return nil
}

func (m *MemStore) GetNamespace(_ context.Context, id string) (*types.Namespace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[id]
	if !ok {
		return nil, fmt.Errorf("namespace %q: %w", id, storage.ErrNamespaceNotFound)
	}
	clone := *ns
	return &clone, nil
}

func (m *MemStore) ListNamespaces(_ context.Context) ([]*types.Namespace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Namespace, 0, len(m.namespaces))
	for _, ns := range m.namespaces {
		clone := *ns
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) NamespaceExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NamespaceExistsCalls++
	_, ok := m.namespaces[id]
	return ok, nil
}

// --- proofs ---

func (m *MemStore) AppendProof(_ context.Context, proof *types.BlockProof) error {
	if m.FailAppendProof != nil {
		return m.FailAppendProof
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *proof
	m.proofs = append(m.proofs, &clone)
	m.dirty = true
	return nil
}

func (m *MemStore) ListProofs(_ context.Context, blockID string) ([]*types.BlockProof, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.BlockProof
	for _, p := range m.proofs {
		if p.BlockID == blockID {
			clone := *p
			out = append(out, &clone)
		}
	}
	return out, nil
}

// Proofs returns every proof row, oldest first.
func (m *MemStore) Proofs() []*types.BlockProof {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.BlockProof, len(m.proofs))
	copy(out, m.proofs)
	return out
}

// --- config ---

func (m *MemStore) SetConfig(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config[key] = value
	return nil
}

func (m *MemStore) GetConfig(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.config[key]
	if !ok {
		return "", fmt.Errorf("config %q: %w", key, storage.ErrNotFound)
	}
	return v, nil
}

// --- lifecycle ---

func (m *MemStore) Ping(context.Context) error { return nil }
func (m *MemStore) Close() error               { return nil }

// --- versioning ---

func (m *MemStore) AddToStaging(context.Context, []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged = m.dirty
	return nil
}

func (m *MemStore) CommitChanges(_ context.Context, message string, _ []string) (string, error) {
	m.CommitCalls++
	if m.FailCommit != nil {
		return "", m.FailCommit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty && !m.staged {
		return "", errors.New("nothing to commit")
	}
	m.commits = append(m.commits, message)
	m.dirty = false
	m.staged = false
	return fmt.Sprintf("commit%04d", len(m.commits)), nil
}

func (m *MemStore) DiscardChanges(context.Context, []string) error {
	m.DiscardCalls++
	if m.FailDiscard != nil {
		return m.FailDiscard
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty = false
	m.staged = false
	return nil
}

func (m *MemStore) DiffSummary(context.Context, string, string) ([]*storage.DiffSummaryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return nil, nil
	}
	return []*storage.DiffSummaryEntry{{Table: "memory_blocks", RowsModified: 1}}, nil
}

func (m *MemStore) ListBranches(context.Context) ([]*storage.BranchInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.branches))
	for name := range m.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*storage.BranchInfo, 0, len(names))
	for _, name := range names {
		out = append(out, &storage.BranchInfo{Name: name})
	}
	return out, nil
}

func (m *MemStore) CheckoutBranch(_ context.Context, name string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.branches[name] {
		return fmt.Errorf("branch %q: %w", name, storage.ErrNotFound)
	}
	m.branch = name
	return nil
}

func (m *MemStore) CreateBranch(_ context.Context, name, _ string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.branches[name] && !force {
		return fmt.Errorf("branch %q already exists", name)
	}
	m.branches[name] = true
	return nil
}

func (m *MemStore) DeleteBranch(_ context.Context, name string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.branches[name] {
		return fmt.Errorf("branch %q: %w", name, storage.ErrNotFound)
	}
	if m.branch == name {
		return fmt.Errorf("cannot delete the active branch %q", name)
	}
	delete(m.branches, name)
	return nil
}

func (m *MemStore) Merge(_ context.Context, opts storage.MergeOptions) (*storage.MergeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.branches[opts.Source] {
		return nil, fmt.Errorf("branch %q: %w", opts.Source, storage.ErrNotFound)
	}
	return &storage.MergeResult{Hash: "merge0001", FastForward: !opts.NoFF}, nil
}

func (m *MemStore) Reset(context.Context, storage.ResetOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged = false
	return nil
}

func (m *MemStore) ActiveBranch(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.branch, nil
}

func (m *MemStore) Status(context.Context) (*storage.WorkingSetStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := &storage.WorkingSetStatus{Branch: m.branch, Clean: !m.dirty}
	if m.dirty {
		status.Entries = []*storage.StatusEntry{{Table: "memory_blocks", Staged: m.staged, Status: "modified"}}
	}
	return status, nil
}

func (m *MemStore) Log(_ context.Context, limit int) ([]*storage.CommitInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*storage.CommitInfo, 0, len(m.commits))
	for i := len(m.commits) - 1; i >= 0; i-- {
		out = append(out, &storage.CommitInfo{
			Hash:    fmt.Sprintf("commit%04d", i+1),
			Message: m.commits[i],
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Commits returns commit messages, oldest first.
func (m *MemStore) Commits() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.commits))
	copy(out, m.commits)
	return out
}

// --- remotes ---

func (m *MemStore) Push(_ context.Context, _ storage.PushOptions) error {
	m.PushCalls++
	return m.FailPush
}

func (m *MemStore) Pull(_ context.Context, _ storage.PullOptions) error {
	m.PullCalls++
	return m.FailPull
}

func (m *MemStore) AddRemote(_ context.Context, name, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config["remote."+name] = url
	return nil
}

func (m *MemStore) ListRemotes(context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.config {
		if name, ok := strings.CutPrefix(k, "remote."); ok {
			out[name] = v
		}
	}
	return out, nil
}

// Env is a bank test environment over a MemStore and a miniredis
// vector index.
type Env struct {
	t     testing.TB
	Ctx   context.Context
	Bank  *memorybank.Bank
	Store *MemStore
	Index *vector.RedisIndex
}

// New builds a bank over a fresh MemStore and miniredis index with
// auto-commit on. Cleanup is registered on t.
func New(t testing.TB) *Env {
	t.Helper()
	return NewWithConfig(t, memorybank.Config{AutoCommit: true})
}

// NewWithConfig is New with an explicit bank configuration.
func NewWithConfig(t testing.TB, cfg memorybank.Config) *Env {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	index := vector.NewRedisIndexWithClient(client, "membank:test")
	t.Cleanup(func() { _ = client.Close() })

	store := NewMemStore()
	ctx := context.Background()
	bank, err := memorybank.New(ctx, store, index, nil, cfg)
	if err != nil {
		t.Fatalf("testbank: build bank: %v", err)
	}
	return &Env{t: t, Ctx: ctx, Bank: bank, Store: store, Index: index}
}

// NewDolt builds a bank over a real embedded Dolt store in a temp
// directory. The test is skipped when embedded Dolt is not available
// in this build.
func NewDolt(t testing.TB) *Env {
	t.Helper()

	ctx := context.Background()
	cfg := &dolt.Config{
		Path:           t.TempDir(),
		Database:       "membank_test",
		CommitterName:  "test",
		CommitterEmail: "test@example.com",
	}

	doltInitMu.Lock()
	store, err := dolt.New(ctx, cfg)
	doltInitMu.Unlock()
	if err != nil {
		t.Skipf("embedded dolt unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	index := vector.NewRedisIndexWithClient(client, "membank:test")
	t.Cleanup(func() { _ = client.Close() })

	bank, err := memorybank.New(ctx, store, index, nil, memorybank.Config{AutoCommit: true})
	if err != nil {
		t.Fatalf("testbank: build bank: %v", err)
	}
	return &Env{t: t, Ctx: ctx, Bank: bank, Store: nil, Index: index}
}

// CreateBlock creates a published knowledge block with the given text.
func (e *Env) CreateBlock(text string) *types.MemoryBlock {
	e.t.Helper()
	return e.CreateBlockWith(&types.MemoryBlock{
		Type: types.TypeKnowledge,
		Text: text,
	})
}

// CreateBlockWith creates the given block, failing the test on error.
func (e *Env) CreateBlockWith(block *types.MemoryBlock) *types.MemoryBlock {
	e.t.Helper()
	created, err := e.Bank.CreateMemoryBlock(e.Ctx, block)
	if err != nil {
		e.t.Fatalf("CreateMemoryBlock failed: %v", err)
	}
	return created
}

// CreateNamespace registers a namespace by id.
func (e *Env) CreateNamespace(id string) *types.Namespace {
	e.t.Helper()
	ns, err := e.Bank.CreateNamespace(e.Ctx, &types.Namespace{ID: id})
	if err != nil {
		e.t.Fatalf("CreateNamespace(%q) failed: %v", id, err)
	}
	return ns
}

// Link creates a link between two blocks, failing the test on error.
func (e *Env) Link(fromID, toID, relation string) {
	e.t.Helper()
	_, err := e.Bank.Links().CreateLink(e.Ctx, links.CreateLinkInput{
		FromID:   fromID,
		ToID:     toID,
		Relation: relation,
	})
	if err != nil {
		e.t.Fatalf("CreateLink(%s -> %s %s) failed: %v", fromID, toID, relation, err)
	}
}

// AssertProofs asserts the block's proof operations, oldest first.
func (e *Env) AssertProofs(blockID string, want ...types.ProofOperation) {
	e.t.Helper()
	proofs, err := e.Bank.ListProofs(e.Ctx, blockID)
	if err != nil {
		e.t.Fatalf("ListProofs(%s) failed: %v", blockID, err)
	}
	if len(proofs) != len(want) {
		e.t.Fatalf("ListProofs(%s) = %d proofs, want %d", blockID, len(proofs), len(want))
	}
	for i, p := range proofs {
		if p.Operation != want[i] {
			e.t.Errorf("proof %d: operation = %s, want %s", i, p.Operation, want[i])
		}
	}
}
