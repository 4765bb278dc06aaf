package memorybank

import (
	"context"
	"fmt"

	"github.com/cognidao/membank/internal/debug"
	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/types"
	"github.com/cognidao/membank/internal/vector"
)

// Branch facade. Tools and the CLI reach version control exclusively
// through these methods so that namespace-cache invalidation and
// branch reporting stay in one place.

// CommitResult reports a commit (or the decision to skip one).
type CommitResult struct {
	Hash         string `json:"hash,omitempty"`
	ActiveBranch string `json:"active_branch"`
	Skipped      bool   `json:"skipped,omitempty"`
}

// SyncResult reports an AutoCommitAndPush run.
type SyncResult struct {
	ActiveBranch string `json:"active_branch"`
	Committed    bool   `json:"committed"`
	Hash         string `json:"hash,omitempty"`
	Pushed       bool   `json:"pushed"`
	Skipped      bool   `json:"skipped"`
}

// BranchStatus reports the working set of the active branch.
func (b *Bank) BranchStatus(ctx context.Context) (*storage.WorkingSetStatus, error) {
	return b.store.Status(ctx)
}

// Add stages tables for the next commit (all block tables when empty).
// Returns the active branch.
func (b *Bank) Add(ctx context.Context, tables []string) (string, error) {
	if len(tables) == 0 {
		tables = storage.StagedTables
	}
	if err := b.store.AddToStaging(ctx, tables); err != nil {
		return b.CurrentBranch(ctx), err
	}
	return b.CurrentBranch(ctx), nil
}

// Commit commits staged changes. A clean working set yields a skipped
// result rather than an error.
func (b *Bank) Commit(ctx context.Context, message string) (*CommitResult, error) {
	if message == "" {
		message = "membank checkpoint"
	}
	hash, err := b.store.CommitChanges(ctx, message, nil)
	branch := b.CurrentBranch(ctx)
	if err != nil {
		if isNothingToCommit(err) {
			return &CommitResult{ActiveBranch: branch, Skipped: true}, nil
		}
		return &CommitResult{ActiveBranch: branch}, err
	}
	return &CommitResult{Hash: hash, ActiveBranch: branch}, nil
}

// Discard reverts uncommitted working-set changes.
func (b *Bank) Discard(ctx context.Context, tables []string) error {
	return b.store.DiscardChanges(ctx, tables)
}

// Reset unstages tables, or with hard resets the working set to HEAD.
func (b *Bank) Reset(ctx context.Context, opts storage.ResetOptions) (string, error) {
	err := b.store.Reset(ctx, opts)
	return b.CurrentBranch(ctx), err
}

// Checkout switches the active branch, creating it first when create is
// set. The namespace cache is dropped because the target branch may
// carry different namespace rows.
func (b *Bank) Checkout(ctx context.Context, name string, create, force bool) (string, error) {
	if name == "" {
		return b.CurrentBranch(ctx), fmt.Errorf("branch name is required")
	}
	if create {
		if err := b.store.CreateBranch(ctx, name, "", force); err != nil {
			return b.CurrentBranch(ctx), err
		}
	}
	if err := b.store.CheckoutBranch(ctx, name, force); err != nil {
		return b.CurrentBranch(ctx), err
	}
	b.InvalidateNamespaceCache()
	debug.Logf("membank: checked out branch %s\n", name)
	return name, nil
}

// CreateBranch creates a branch from startPoint (HEAD when empty)
// without switching to it.
func (b *Bank) CreateBranch(ctx context.Context, name, startPoint string, force bool) (string, error) {
	err := b.store.CreateBranch(ctx, name, startPoint, force)
	return b.CurrentBranch(ctx), err
}

// DeleteBranch removes a branch.
func (b *Bank) DeleteBranch(ctx context.Context, name string, force bool) (string, error) {
	err := b.store.DeleteBranch(ctx, name, force)
	return b.CurrentBranch(ctx), err
}

// ListBranches lists all branches.
func (b *Bank) ListBranches(ctx context.Context) ([]*storage.BranchInfo, error) {
	return b.store.ListBranches(ctx)
}

// Diff summarizes row changes between two revisions. Empty revisions
// default to the working set against HEAD.
func (b *Bank) Diff(ctx context.Context, fromRev, toRev string) ([]*storage.DiffSummaryEntry, error) {
	if fromRev == "" {
		fromRev = "HEAD"
	}
	if toRev == "" {
		toRev = "WORKING"
	}
	return b.store.DiffSummary(ctx, fromRev, toRev)
}

// Merge merges a source branch into the active branch and drops the
// namespace cache.
func (b *Bank) Merge(ctx context.Context, opts storage.MergeOptions) (*storage.MergeResult, error) {
	res, err := b.store.Merge(ctx, opts)
	b.InvalidateNamespaceCache()
	return res, err
}

// Log returns commit history for the active branch, most recent first.
func (b *Bank) Log(ctx context.Context, limit int) ([]*storage.CommitInfo, error) {
	return b.store.Log(ctx, limit)
}

// Push pushes a branch (active branch when empty) to the remote.
func (b *Bank) Push(ctx context.Context, remote, branch string, force bool) error {
	rs, ok := storage.AsRemote(b.store)
	if !ok {
		return fmt.Errorf("store does not support remotes")
	}
	return rs.Push(ctx, storage.PushOptions{Remote: remote, Branch: branch, Force: force})
}

// Pull pulls a branch from the remote and drops the namespace cache.
func (b *Bank) Pull(ctx context.Context, remote, branch string, force bool) error {
	rs, ok := storage.AsRemote(b.store)
	if !ok {
		return fmt.Errorf("store does not support remotes")
	}
	err := rs.Pull(ctx, storage.PullOptions{Remote: remote, Branch: branch, Force: force})
	b.InvalidateNamespaceCache()
	return err
}

// AddRemote registers a named remote.
func (b *Bank) AddRemote(ctx context.Context, name, url string) error {
	rs, ok := storage.AsRemote(b.store)
	if !ok {
		return fmt.Errorf("store does not support remotes")
	}
	return rs.AddRemote(ctx, name, url)
}

// ListRemotes lists configured remotes.
func (b *Bank) ListRemotes(ctx context.Context) (map[string]string, error) {
	rs, ok := storage.AsRemote(b.store)
	if !ok {
		return nil, fmt.Errorf("store does not support remotes")
	}
	return rs.ListRemotes(ctx)
}

// AutoCommitAndPush is the convenience sync path for agents: check the
// working set, skip when clean, otherwise stage all block tables,
// commit, and push the active branch.
func (b *Bank) AutoCommitAndPush(ctx context.Context, remote, message string) (*SyncResult, error) {
	res := &SyncResult{ActiveBranch: b.CurrentBranch(ctx)}

	status, err := b.store.Status(ctx)
	if err != nil {
		return res, err
	}
	if status.Clean {
		res.Skipped = true
		return res, nil
	}

	if err := b.store.AddToStaging(ctx, storage.StagedTables); err != nil {
		return res, err
	}
	if message == "" {
		message = "membank auto-commit"
	}
	hash, err := b.store.CommitChanges(ctx, message, storage.StagedTables)
	if err != nil {
		if isNothingToCommit(err) {
			res.Skipped = true
			return res, nil
		}
		return res, err
	}
	res.Committed = true
	res.Hash = hash

	if err := b.Push(ctx, remote, res.ActiveBranch, false); err != nil {
		return res, fmt.Errorf("committed %s but push failed: %w", hash, err)
	}
	res.Pushed = true
	return res, nil
}

// ReindexVectors rebuilds the vector index from the SQL truth: every
// block on the active branch is re-embedded (when it has no stored
// embedding) and written to a cleared index.
func (b *Bank) ReindexVectors(ctx context.Context) (int, error) {
	blocks, err := b.store.ListBlocks(ctx, types.BlockFilter{})
	if err != nil {
		return 0, err
	}
	records := make([]*vector.Record, 0, len(blocks))
	for _, block := range blocks {
		if len(block.Embedding) == 0 {
			vec, err := b.embed.Embed(ctx, block.Text)
			if err != nil {
				return 0, fmt.Errorf("embedding block %s: %w", block.ID, err)
			}
			block.Embedding = vec
		}
		records = append(records, recordFor(block))
	}
	if err := b.index.ReindexAll(ctx, records); err != nil {
		return 0, err
	}
	debug.Logf("membank: reindexed %d block(s)\n", len(records))
	return len(records), nil
}
