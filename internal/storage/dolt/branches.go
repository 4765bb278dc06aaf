package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cognidao/membank/internal/storage"
)

// commitAuthorString formats the committer the way git records authors.
func (s *DoltStore) commitAuthorString() string {
	return fmt.Sprintf("%s <%s>", s.committerName, s.committerEmail)
}

func isNothingToCommit(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "nothing to commit")
}

// AddToStaging stages tables for the next commit. An empty list stages
// everything.
func (s *DoltStore) AddToStaging(ctx context.Context, tables []string) error {
	if len(tables) == 0 {
		if _, err := s.execContext(ctx, "CALL DOLT_ADD('-A')"); err != nil {
			return fmt.Errorf("failed to stage all tables: %w", err)
		}
		return nil
	}
	args := make([]any, 0, len(tables))
	for _, t := range tables {
		if err := validateStageTable(t); err != nil {
			return err
		}
		args = append(args, t)
	}
	if _, err := s.execContext(ctx, "CALL DOLT_ADD("+placeholders(len(tables))+")", args...); err != nil {
		return fmt.Errorf("failed to stage tables: %w", err)
	}
	return nil
}

// CommitChanges stages the given tables (all when empty) and commits
// them, returning the new HEAD hash. A clean working set is not an
// error; the current HEAD hash is returned unchanged.
func (s *DoltStore) CommitChanges(ctx context.Context, message string, tables []string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("commit message is required")
	}
	if err := s.AddToStaging(ctx, tables); err != nil {
		return "", err
	}
	_, err := s.execContext(ctx, "CALL DOLT_COMMIT('-m', ?, '--author', ?)", message, s.commitAuthorString())
	if err != nil && !isNothingToCommit(err) {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return s.headHash(ctx)
}

func (s *DoltStore) headHash(ctx context.Context) (string, error) {
	var hash string
	err := s.queryRowContext(ctx, func(row *sql.Row) error { return row.Scan(&hash) },
		"SELECT DOLT_HASHOF('HEAD')")
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD hash: %w", err)
	}
	return hash, nil
}

// DiscardChanges reverts uncommitted working-set changes. With no
// tables the whole working set is reset hard to HEAD; otherwise the
// named tables are checked out from HEAD.
func (s *DoltStore) DiscardChanges(ctx context.Context, tables []string) error {
	if len(tables) == 0 {
		if _, err := s.execContext(ctx, "CALL DOLT_RESET('--hard')"); err != nil {
			return fmt.Errorf("failed to reset working set: %w", err)
		}
		return nil
	}
	args := make([]any, 0, len(tables))
	for _, t := range tables {
		if err := validateStageTable(t); err != nil {
			return err
		}
		args = append(args, t)
	}
	if _, err := s.execContext(ctx, "CALL DOLT_CHECKOUT("+placeholders(len(tables))+")", args...); err != nil {
		return fmt.Errorf("failed to discard table changes: %w", err)
	}
	return nil
}

// DiffSummary returns per-table row change counts between two
// revisions. dolt_diff_stat is a table function and cannot take
// placeholders, so both refs are validated before interpolation.
func (s *DoltStore) DiffSummary(ctx context.Context, fromRev, toRev string) ([]*storage.DiffSummaryEntry, error) {
	if err := validateRef(fromRev); err != nil {
		return nil, err
	}
	if err := validateRef(toRev); err != nil {
		return nil, err
	}
	//nolint:gosec // refs validated against refPattern above
	query := fmt.Sprintf(`
		SELECT table_name,
		       COALESCE(rows_added, 0),
		       COALESCE(rows_deleted, 0),
		       COALESCE(rows_modified, 0)
		FROM dolt_diff_stat('%s', '%s')`, fromRev, toRev)

	rows, err := s.queryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s..%s: %w", fromRev, toRev, err)
	}
	defer rows.Close()

	var entries []*storage.DiffSummaryEntry
	for rows.Next() {
		var e storage.DiffSummaryEntry
		if err := rows.Scan(&e.Table, &e.RowsAdded, &e.RowsDeleted, &e.RowsModified); err != nil {
			return nil, fmt.Errorf("failed to scan diff entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ListBranches returns all branches with their latest commit info.
func (s *DoltStore) ListBranches(ctx context.Context) ([]*storage.BranchInfo, error) {
	rows, err := s.queryContext(ctx, `
		SELECT name, hash, latest_committer, latest_commit_date, latest_commit_message
		FROM dolt_branches
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	defer rows.Close()

	var branches []*storage.BranchInfo
	for rows.Next() {
		var (
			b      storage.BranchInfo
			author sql.NullString
			date   sql.NullTime
			msg    sql.NullString
		)
		if err := rows.Scan(&b.Name, &b.Hash, &author, &date, &msg); err != nil {
			return nil, fmt.Errorf("failed to scan branch: %w", err)
		}
		b.LatestAuthor = author.String
		if date.Valid {
			b.LatestDate = date.Time.UTC()
		}
		b.LatestMessage = msg.String
		branches = append(branches, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

// CheckoutBranch switches the session to another branch. With force,
// uncommitted changes on the current branch are discarded first.
//
// In server mode DOLT_CHECKOUT is per-session, so the pool is pinned to
// a single connection to keep later statements on the chosen branch.
func (s *DoltStore) CheckoutBranch(ctx context.Context, name string, force bool) error {
	if err := validateRef(name); err != nil {
		return err
	}
	if force {
		if _, err := s.execContext(ctx, "CALL DOLT_RESET('--hard')"); err != nil {
			return fmt.Errorf("failed to reset before checkout: %w", err)
		}
	}
	if s.serverMode {
		s.db.SetMaxOpenConns(1)
		s.db.SetMaxIdleConns(1)
	}
	if _, err := s.execContext(ctx, "CALL DOLT_CHECKOUT(?)", name); err != nil {
		return fmt.Errorf("failed to checkout branch %s: %w", name, err)
	}
	s.mu.Lock()
	s.branch = name
	s.mu.Unlock()
	return nil
}

// CreateBranch creates a branch at startPoint (HEAD when empty).
func (s *DoltStore) CreateBranch(ctx context.Context, name, startPoint string, force bool) error {
	if err := validateRef(name); err != nil {
		return err
	}
	call := "CALL DOLT_BRANCH("
	var args []any
	if force {
		call += "'-f', "
	}
	call += "?"
	args = append(args, name)
	if startPoint != "" {
		if err := validateRef(startPoint); err != nil {
			return err
		}
		call += ", ?"
		args = append(args, startPoint)
	}
	call += ")"
	if _, err := s.execContext(ctx, call, args...); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", name, err)
	}
	return nil
}

// DeleteBranch deletes a branch. Force deletes even when unmerged.
func (s *DoltStore) DeleteBranch(ctx context.Context, name string, force bool) error {
	if err := validateRef(name); err != nil {
		return err
	}
	flag := "'-d'"
	if force {
		flag = "'-D'"
	}
	if _, err := s.execContext(ctx, "CALL DOLT_BRANCH("+flag+", ?)", name); err != nil {
		return fmt.Errorf("failed to delete branch %s: %w", name, err)
	}
	return nil
}

// Merge merges a source branch into the active branch.
func (s *DoltStore) Merge(ctx context.Context, opts storage.MergeOptions) (*storage.MergeResult, error) {
	if err := validateRef(opts.Source); err != nil {
		return nil, err
	}
	call := "CALL DOLT_MERGE("
	var args []any
	if opts.Squash {
		call += "'--squash', "
	}
	if opts.NoFF {
		call += "'--no-ff', "
	}
	if opts.Message != "" {
		call += "'-m', ?, "
		args = append(args, opts.Message)
	}
	call += "'--author', ?, ?)"
	args = append(args, s.commitAuthorString(), opts.Source)

	var result *storage.MergeResult
	err := s.withRetry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, call, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		result, err = scanMergeResult(rows)
		return err
	})
	if err != nil {
		// Some Dolt versions report conflicts as a SQL error rather
		// than a result row. Probe the conflicts table before failing.
		if n, probeErr := s.conflictCount(ctx); probeErr == nil && n > 0 {
			return &storage.MergeResult{Conflicts: n}, nil
		}
		return nil, fmt.Errorf("failed to merge %s: %w", opts.Source, err)
	}
	if result.Hash == "" {
		hash, err := s.headHash(ctx)
		if err != nil {
			return nil, err
		}
		result.Hash = hash
	}
	return result, nil
}

// scanMergeResult reads the DOLT_MERGE result row. The column set grew
// a message column in later Dolt versions, so scan by column count.
func scanMergeResult(rows *sql.Rows) (*storage.MergeResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return &storage.MergeResult{}, nil
	}
	var (
		hash        sql.NullString
		fastForward int
		conflicts   int
		message     sql.NullString
	)
	switch len(cols) {
	case 4:
		err = rows.Scan(&hash, &fastForward, &conflicts, &message)
	case 3:
		err = rows.Scan(&hash, &fastForward, &conflicts)
	default:
		return nil, fmt.Errorf("unexpected DOLT_MERGE result shape (%d columns)", len(cols))
	}
	if err != nil {
		return nil, err
	}
	return &storage.MergeResult{
		Hash:        hash.String,
		FastForward: fastForward != 0,
		Conflicts:   conflicts,
	}, nil
}

func (s *DoltStore) conflictCount(ctx context.Context) (int, error) {
	var n sql.NullInt64
	err := s.queryRowContext(ctx, func(row *sql.Row) error { return row.Scan(&n) },
		"SELECT SUM(num_conflicts) FROM dolt_conflicts")
	if err != nil {
		return 0, err
	}
	return int(n.Int64), nil
}

// Reset unstages or reverts working-set changes.
func (s *DoltStore) Reset(ctx context.Context, opts storage.ResetOptions) error {
	if opts.Hard {
		if _, err := s.execContext(ctx, "CALL DOLT_RESET('--hard')"); err != nil {
			return fmt.Errorf("failed to hard reset: %w", err)
		}
		return nil
	}
	if len(opts.Tables) == 0 {
		if _, err := s.execContext(ctx, "CALL DOLT_RESET('--soft')"); err != nil {
			return fmt.Errorf("failed to soft reset: %w", err)
		}
		return nil
	}
	args := make([]any, 0, len(opts.Tables))
	for _, t := range opts.Tables {
		if err := validateStageTable(t); err != nil {
			return err
		}
		args = append(args, t)
	}
	if _, err := s.execContext(ctx, "CALL DOLT_RESET("+placeholders(len(opts.Tables))+")", args...); err != nil {
		return fmt.Errorf("failed to reset tables: %w", err)
	}
	return nil
}

// ActiveBranch returns the branch the session is on.
func (s *DoltStore) ActiveBranch(ctx context.Context) (string, error) {
	var branch string
	err := s.queryRowContext(ctx, func(row *sql.Row) error { return row.Scan(&branch) },
		"SELECT active_branch()")
	if err != nil {
		return "", fmt.Errorf("failed to read active branch: %w", err)
	}
	s.mu.Lock()
	s.branch = branch
	s.mu.Unlock()
	return branch, nil
}

// LastKnownBranch returns the branch from the most recent successful
// checkout or ActiveBranch call without touching the database. Error
// envelopes use it because they must always name a branch.
func (s *DoltStore) LastKnownBranch() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.branch
}

// Status reports the working-set state of the active branch.
func (s *DoltStore) Status(ctx context.Context) (*storage.WorkingSetStatus, error) {
	branch, err := s.ActiveBranch(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.queryContext(ctx, "SELECT table_name, staged, status FROM dolt_status")
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	defer rows.Close()

	var entries []*storage.StatusEntry
	for rows.Next() {
		var e storage.StatusEntry
		if err := rows.Scan(&e.Table, &e.Staged, &e.Status); err != nil {
			return nil, fmt.Errorf("failed to scan status entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &storage.WorkingSetStatus{
		Branch:  branch,
		Clean:   len(entries) == 0,
		Entries: entries,
	}, nil
}

// Log returns commit history for the active branch, newest first.
func (s *DoltStore) Log(ctx context.Context, limit int) ([]*storage.CommitInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.queryContext(ctx, `
		SELECT commit_hash, committer, email, date, message
		FROM dolt_log
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer rows.Close()

	var commits []*storage.CommitInfo
	for rows.Next() {
		var (
			c     storage.CommitInfo
			email sql.NullString
			date  time.Time
		)
		if err := rows.Scan(&c.Hash, &c.Committer, &email, &date, &c.Message); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		c.Email = email.String
		c.Date = date.UTC()
		commits = append(commits, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return commits, nil
}

// remoteEnvMu serializes mutations of the process-wide remote password
// environment variable around push and pull calls.
var remoteEnvMu sync.Mutex

// setRemoteCredentials exports DOLT_REMOTE_PASSWORD for the duration of
// a push or pull and returns a cleanup that restores the previous
// value. Callers must hold remoteEnvMu.
func setRemoteCredentials(password string) func() {
	prev, had := os.LookupEnv("DOLT_REMOTE_PASSWORD")
	os.Setenv("DOLT_REMOTE_PASSWORD", password)
	return func() {
		if had {
			os.Setenv("DOLT_REMOTE_PASSWORD", prev)
		} else {
			os.Unsetenv("DOLT_REMOTE_PASSWORD")
		}
	}
}

func (s *DoltStore) remoteAndBranch(remote, branch string) (string, string) {
	if remote == "" {
		remote = s.remote
	}
	if branch == "" {
		branch = s.LastKnownBranch()
	}
	return remote, branch
}

// Push pushes a branch to a remote. Remote and branch default to the
// configured remote and the last known branch.
func (s *DoltStore) Push(ctx context.Context, opts storage.PushOptions) error {
	remote, branch := s.remoteAndBranch(opts.Remote, opts.Branch)
	if err := validateRef(remote); err != nil {
		return err
	}
	if err := validateRef(branch); err != nil {
		return err
	}

	call := "CALL DOLT_PUSH("
	var args []any
	if opts.Force {
		call += "'--force', "
	}
	if s.remoteUser != "" {
		call += "'--user', ?, "
		args = append(args, s.remoteUser)
	}
	call += "?, ?)"
	args = append(args, remote, branch)

	if s.remotePassword != "" {
		remoteEnvMu.Lock()
		restore := setRemoteCredentials(s.remotePassword)
		defer func() {
			restore()
			remoteEnvMu.Unlock()
		}()
	}
	if _, err := s.execContext(ctx, call, args...); err != nil {
		return fmt.Errorf("failed to push %s to %s: %w", branch, remote, err)
	}
	return nil
}

// Pull fetches and merges a branch from a remote.
func (s *DoltStore) Pull(ctx context.Context, opts storage.PullOptions) error {
	remote, branch := s.remoteAndBranch(opts.Remote, opts.Branch)
	if err := validateRef(remote); err != nil {
		return err
	}
	if err := validateRef(branch); err != nil {
		return err
	}

	call := "CALL DOLT_PULL("
	var args []any
	if opts.Force {
		call += "'--force', "
	}
	if opts.NoFF {
		call += "'--no-ff', "
	}
	if opts.Squash {
		call += "'--squash', "
	}
	if s.remoteUser != "" {
		call += "'--user', ?, "
		args = append(args, s.remoteUser)
	}
	call += "?, ?)"
	args = append(args, remote, branch)

	if s.remotePassword != "" {
		remoteEnvMu.Lock()
		restore := setRemoteCredentials(s.remotePassword)
		defer func() {
			restore()
			remoteEnvMu.Unlock()
		}()
	}
	if _, err := s.execContext(ctx, call, args...); err != nil {
		return fmt.Errorf("failed to pull %s from %s: %w", branch, remote, err)
	}
	return nil
}

// AddRemote registers a named remote URL.
func (s *DoltStore) AddRemote(ctx context.Context, name, url string) error {
	if err := validateRef(name); err != nil {
		return err
	}
	if url == "" {
		return errors.New("remote url is required")
	}
	if _, err := s.execContext(ctx, "CALL DOLT_REMOTE('add', ?, ?)", name, url); err != nil {
		return fmt.Errorf("failed to add remote %s: %w", name, err)
	}
	return nil
}

// ListRemotes returns remote names mapped to their URLs.
func (s *DoltStore) ListRemotes(ctx context.Context) (map[string]string, error) {
	rows, err := s.queryContext(ctx, "SELECT name, url FROM dolt_remotes")
	if err != nil {
		return nil, fmt.Errorf("failed to list remotes: %w", err)
	}
	defer rows.Close()

	remotes := make(map[string]string)
	for rows.Next() {
		var name, url string
		if err := rows.Scan(&name, &url); err != nil {
			return nil, fmt.Errorf("failed to scan remote: %w", err)
		}
		remotes[name] = url
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return remotes, nil
}
