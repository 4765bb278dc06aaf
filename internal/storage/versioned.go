package storage

import (
	"context"
	"time"
)

// VersionedStore extends Store with version control capabilities.
// This interface is implemented by storage backends that support
// staging, branching, and merging (e.g., Dolt).
//
// Not all storage backends support versioning. Use AsVersioned to check
// whether a store supports these operations before calling them.
type VersionedStore interface {
	Store

	// Staging and commits

	// AddToStaging stages the given tables for the next commit.
	AddToStaging(ctx context.Context, tables []string) error

	// CommitChanges commits staged changes and returns the new commit hash.
	CommitChanges(ctx context.Context, message string, tables []string) (string, error)

	// DiscardChanges reverts uncommitted working-set changes to the
	// given tables (all tables when empty).
	DiscardChanges(ctx context.Context, tables []string) error

	// DiffSummary returns per-table row change counts between two revisions.
	DiffSummary(ctx context.Context, fromRev, toRev string) ([]*DiffSummaryEntry, error)

	// Branch lifecycle

	ListBranches(ctx context.Context) ([]*BranchInfo, error)
	CheckoutBranch(ctx context.Context, name string, force bool) error
	CreateBranch(ctx context.Context, name, startPoint string, force bool) error
	DeleteBranch(ctx context.Context, name string, force bool) error
	Merge(ctx context.Context, opts MergeOptions) (*MergeResult, error)
	Reset(ctx context.Context, opts ResetOptions) error

	// ActiveBranch returns the name of the currently active branch.
	ActiveBranch(ctx context.Context) (string, error)

	// Status reports the working-set state of the active branch.
	Status(ctx context.Context) (*WorkingSetStatus, error)

	// Log returns commit history, most recent first.
	Log(ctx context.Context, limit int) ([]*CommitInfo, error)
}

// RemoteStore extends VersionedStore with remote sync operations.
type RemoteStore interface {
	VersionedStore

	Push(ctx context.Context, opts PushOptions) error
	Pull(ctx context.Context, opts PullOptions) error
	AddRemote(ctx context.Context, name, url string) error
	ListRemotes(ctx context.Context) (map[string]string, error)
}

// BranchInfo describes one branch of the versioned store.
type BranchInfo struct {
	Name          string    `json:"name"`
	Hash          string    `json:"hash"`
	LatestMessage string    `json:"latest_message,omitempty"`
	LatestDate    time.Time `json:"latest_date,omitempty"`
	LatestAuthor  string    `json:"latest_author,omitempty"`
}

// CommitInfo describes one commit in the history.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Committer string    `json:"committer"`
	Email     string    `json:"email,omitempty"`
	Date      time.Time `json:"date"`
	Message   string    `json:"message"`
}

// WorkingSetStatus is the state of the active branch's working set.
type WorkingSetStatus struct {
	Branch  string         `json:"branch"`
	Clean   bool           `json:"clean"`
	Entries []*StatusEntry `json:"entries,omitempty"`
}

// StatusEntry is one changed table in the working set.
type StatusEntry struct {
	Table  string `json:"table"`
	Staged bool   `json:"staged"`
	Status string `json:"status"` // "modified", "new table", "deleted", ...
}

// DiffSummaryEntry is the per-table row delta between two revisions.
type DiffSummaryEntry struct {
	Table        string `json:"table"`
	RowsAdded    int    `json:"rows_added"`
	RowsDeleted  int    `json:"rows_deleted"`
	RowsModified int    `json:"rows_modified"`
}

// MergeOptions controls a branch merge.
type MergeOptions struct {
	Source  string `json:"source"`
	Squash  bool   `json:"squash,omitempty"`
	NoFF    bool   `json:"no_ff,omitempty"`
	Message string `json:"message,omitempty"`
}

// MergeResult reports the outcome of a merge.
type MergeResult struct {
	Hash        string `json:"hash,omitempty"`
	FastForward bool   `json:"fast_forward"`
	Conflicts   int    `json:"conflicts"`
}

// ResetOptions controls a reset. Hard resets the working set to HEAD;
// otherwise the given tables (all staged tables when empty) are unstaged.
type ResetOptions struct {
	Hard   bool     `json:"hard,omitempty"`
	Tables []string `json:"tables,omitempty"`
}

// PushOptions controls a push to a remote.
type PushOptions struct {
	Remote string `json:"remote"`
	Branch string `json:"branch"`
	Force  bool   `json:"force,omitempty"`
}

// PullOptions controls a pull from a remote.
type PullOptions struct {
	Remote string `json:"remote"`
	Branch string `json:"branch"`
	Force  bool   `json:"force,omitempty"`
	NoFF   bool   `json:"no_ff,omitempty"`
	Squash bool   `json:"squash,omitempty"`
}

// IsVersioned checks if a store supports version control operations.
func IsVersioned(s Store) bool {
	_, ok := s.(VersionedStore)
	return ok
}

// AsVersioned attempts to cast a Store to VersionedStore.
// Returns the VersionedStore and true if successful, nil and false otherwise.
func AsVersioned(s Store) (VersionedStore, bool) {
	vs, ok := s.(VersionedStore)
	return vs, ok
}

// AsRemote attempts to cast a Store to RemoteStore.
// Returns the RemoteStore and true if successful, nil and false otherwise.
func AsRemote(s Store) (RemoteStore, bool) {
	rs, ok := s.(RemoteStore)
	return rs, ok
}
