package tools

import (
	"context"
	"reflect"

	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/storage"
)

// DoltCommitInput commits the working set; an empty message gets the
// default checkpoint message.
type DoltCommitInput struct {
	Message string `json:"message,omitempty"`
}

// DoltAddInput stages tables; empty means all block tables.
type DoltAddInput struct {
	Tables []string `json:"tables,omitempty"`
}

// StageResult reports a staging operation.
type StageResult struct {
	Staged bool     `json:"staged"`
	Tables []string `json:"tables,omitempty"`
}

// DoltResetInput unstages tables, or hard-resets the working set.
type DoltResetInput struct {
	Hard   bool     `json:"hard,omitempty"`
	Tables []string `json:"tables,omitempty"`
}

// ResetResult reports a reset.
type ResetResult struct {
	Reset bool `json:"reset"`
	Hard  bool `json:"hard"`
}

// DoltStatusInput has no parameters.
type DoltStatusInput struct{}

// DoltCheckoutInput switches branches, optionally creating the target.
type DoltCheckoutInput struct {
	Branch string `json:"branch" validate:"required"`
	Create bool   `json:"create,omitempty"`
	Force  bool   `json:"force,omitempty"`
}

// BranchOpResult reports a branch create/delete/checkout.
type BranchOpResult struct {
	Branch  string `json:"branch"`
	Created bool   `json:"created,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// DoltBranchInput creates or deletes a branch.
type DoltBranchInput struct {
	Name       string `json:"name" validate:"required"`
	StartPoint string `json:"start_point,omitempty"`
	Force      bool   `json:"force,omitempty"`
	Delete     bool   `json:"delete,omitempty"`
}

// DoltListBranchesInput has no parameters.
type DoltListBranchesInput struct{}

// ListBranchesResult carries all branches.
type ListBranchesResult struct {
	Branches []*storage.BranchInfo `json:"branches"`
	Count    int                   `json:"count"`
}

// DoltPushInput pushes a branch to a remote. Remote defaults to
// origin, branch to the active branch.
type DoltPushInput struct {
	Remote string `json:"remote,omitempty"`
	Branch string `json:"branch,omitempty"`
	Force  bool   `json:"force,omitempty"`
}

// RemoteOpResult reports a push or pull.
type RemoteOpResult struct {
	Remote string `json:"remote"`
	Branch string `json:"branch"`
	Pushed bool   `json:"pushed,omitempty"`
	Pulled bool   `json:"pulled,omitempty"`
}

// DoltPullInput pulls a branch from a remote.
type DoltPullInput struct {
	Remote string `json:"remote,omitempty"`
	Branch string `json:"branch,omitempty"`
	Force  bool   `json:"force,omitempty"`
}

// DoltMergeInput merges a source branch into the active branch.
type DoltMergeInput struct {
	Source  string `json:"source" validate:"required"`
	Squash  bool   `json:"squash,omitempty"`
	NoFF    bool   `json:"no_ff,omitempty"`
	Message string `json:"message,omitempty"`
}

// DoltDiffInput summarizes table changes between two revisions,
// defaulting to HEAD against the working set.
type DoltDiffInput struct {
	FromRevision string `json:"from_revision,omitempty"`
	ToRevision   string `json:"to_revision,omitempty"`
}

// DiffResult is the per-table diff summary.
type DiffResult struct {
	FromRevision string                      `json:"from_revision"`
	ToRevision   string                      `json:"to_revision"`
	Tables       []*storage.DiffSummaryEntry `json:"tables"`
}

// DoltLogInput pages the commit log of the active branch.
type DoltLogInput struct {
	Limit int `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
}

// LogResult carries commit history, most recent first.
type LogResult struct {
	Commits []*storage.CommitInfo `json:"commits"`
	Count   int                   `json:"count"`
}

// DoltAutoCommitAndPushInput runs the status, commit, push sequence.
type DoltAutoCommitAndPushInput struct {
	Remote  string `json:"remote,omitempty"`
	Message string `json:"message,omitempty"`
}

func branchTools() []*CogniTool {
	return []*CogniTool{
		{
			Name:         ToolDoltCommit,
			Description:  "Commit the working set on the active branch.",
			InputType:    reflect.TypeOf(DoltCommitInput{}),
			MemoryLinked: true,
			Func:         runDoltCommit,
		},
		{
			Name:         ToolDoltAdd,
			Description:  "Stage block tables for the next commit.",
			InputType:    reflect.TypeOf(DoltAddInput{}),
			MemoryLinked: true,
			Func:         runDoltAdd,
		},
		{
			Name:         ToolDoltReset,
			Description:  "Unstage tables or hard-reset the working set.",
			InputType:    reflect.TypeOf(DoltResetInput{}),
			MemoryLinked: true,
			Func:         runDoltReset,
		},
		{
			Name:         ToolDoltStatus,
			Description:  "Report the working-set status of the active branch.",
			InputType:    reflect.TypeOf(DoltStatusInput{}),
			MemoryLinked: true,
			Func:         runDoltStatus,
		},
		{
			Name:         ToolDoltCheckout,
			Description:  "Switch branches, optionally creating the target.",
			InputType:    reflect.TypeOf(DoltCheckoutInput{}),
			MemoryLinked: true,
			Func:         runDoltCheckout,
		},
		{
			Name:         ToolDoltBranch,
			Description:  "Create or delete a branch.",
			InputType:    reflect.TypeOf(DoltBranchInput{}),
			MemoryLinked: true,
			Func:         runDoltBranch,
		},
		{
			Name:         ToolDoltListBranches,
			Description:  "List branches with their head commits.",
			InputType:    reflect.TypeOf(DoltListBranchesInput{}),
			MemoryLinked: true,
			Func:         runDoltListBranches,
		},
		{
			Name:         ToolDoltPush,
			Description:  "Push the active branch to a remote.",
			InputType:    reflect.TypeOf(DoltPushInput{}),
			MemoryLinked: true,
			Func:         runDoltPush,
		},
		{
			Name:         ToolDoltPull,
			Description:  "Pull a branch from a remote.",
			InputType:    reflect.TypeOf(DoltPullInput{}),
			MemoryLinked: true,
			Func:         runDoltPull,
		},
		{
			Name:         ToolDoltMerge,
			Description:  "Merge a source branch into the active branch.",
			InputType:    reflect.TypeOf(DoltMergeInput{}),
			MemoryLinked: true,
			Func:         runDoltMerge,
		},
		{
			Name:         ToolDoltDiff,
			Description:  "Summarize table changes between two revisions.",
			InputType:    reflect.TypeOf(DoltDiffInput{}),
			MemoryLinked: true,
			Func:         runDoltDiff,
		},
		{
			Name:         ToolDoltLog,
			Description:  "Show the commit log of the active branch.",
			InputType:    reflect.TypeOf(DoltLogInput{}),
			MemoryLinked: true,
			Func:         runDoltLog,
		},
		{
			Name:         ToolDoltAutoCommitAndPush,
			Description:  "Commit outstanding changes and push them in one step.",
			InputType:    reflect.TypeOf(DoltAutoCommitAndPushInput{}),
			MemoryLinked: true,
			Func:         runDoltAutoCommitAndPush,
		},
	}
}

func runDoltCommit(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*DoltCommitInput)
	return bank.Commit(ctx, in.Message)
}

func runDoltAdd(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*DoltAddInput)
	if _, err := bank.Add(ctx, in.Tables); err != nil {
		return nil, err
	}
	tables := in.Tables
	if len(tables) == 0 {
		tables = storage.StagedTables
	}
	return &StageResult{Staged: true, Tables: tables}, nil
}

func runDoltReset(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*DoltResetInput)
	if _, err := bank.Reset(ctx, storage.ResetOptions{Hard: in.Hard, Tables: in.Tables}); err != nil {
		return nil, err
	}
	return &ResetResult{Reset: true, Hard: in.Hard}, nil
}

func runDoltStatus(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	return bank.BranchStatus(ctx)
}

func runDoltCheckout(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*DoltCheckoutInput)
	branch, err := bank.Checkout(ctx, in.Branch, in.Create, in.Force)
	if err != nil {
		return nil, err
	}
	return &BranchOpResult{Branch: branch, Created: in.Create}, nil
}

func runDoltBranch(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*DoltBranchInput)
	if in.Delete {
		if _, err := bank.DeleteBranch(ctx, in.Name, in.Force); err != nil {
			return nil, err
		}
		return &BranchOpResult{Branch: in.Name, Deleted: true}, nil
	}
	if _, err := bank.CreateBranch(ctx, in.Name, in.StartPoint, in.Force); err != nil {
		return nil, err
	}
	return &BranchOpResult{Branch: in.Name, Created: true}, nil
}

func runDoltListBranches(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	branches, err := bank.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	return &ListBranchesResult{Branches: branches, Count: len(branches)}, nil
}

func runDoltPush(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*DoltPushInput)
	remote, branch := remoteAndBranch(ctx, bank, in.Remote, in.Branch)
	if err := bank.Push(ctx, remote, branch, in.Force); err != nil {
		return nil, err
	}
	return &RemoteOpResult{Remote: remote, Branch: branch, Pushed: true}, nil
}

func runDoltPull(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*DoltPullInput)
	remote, branch := remoteAndBranch(ctx, bank, in.Remote, in.Branch)
	if err := bank.Pull(ctx, remote, branch, in.Force); err != nil {
		return nil, err
	}
	return &RemoteOpResult{Remote: remote, Branch: branch, Pulled: true}, nil
}

func runDoltMerge(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*DoltMergeInput)
	return bank.Merge(ctx, storage.MergeOptions{
		Source:  in.Source,
		Squash:  in.Squash,
		NoFF:    in.NoFF,
		Message: in.Message,
	})
}

func runDoltDiff(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*DoltDiffInput)
	from, to := in.FromRevision, in.ToRevision
	if from == "" {
		from = "HEAD"
	}
	if to == "" {
		to = "WORKING"
	}
	tables, err := bank.Diff(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return &DiffResult{FromRevision: from, ToRevision: to, Tables: tables}, nil
}

func runDoltLog(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*DoltLogInput)
	commits, err := bank.Log(ctx, in.Limit)
	if err != nil {
		return nil, err
	}
	return &LogResult{Commits: commits, Count: len(commits)}, nil
}

func runDoltAutoCommitAndPush(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*DoltAutoCommitAndPushInput)
	return bank.AutoCommitAndPush(ctx, in.Remote, in.Message)
}

// remoteAndBranch applies the origin/active-branch defaults shared by
// push and pull.
func remoteAndBranch(ctx context.Context, bank *memorybank.Bank, remote, branch string) (string, string) {
	if remote == "" {
		remote = "origin"
	}
	if branch == "" {
		branch = bank.CurrentBranch(ctx)
	}
	return remote, branch
}
