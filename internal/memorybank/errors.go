package memorybank

import (
	"errors"
	"fmt"

	"github.com/cognidao/membank/internal/storage"
)

// ErrPatchTooLarge is returned when a text or metadata patch exceeds
// the configured size limit.
var ErrPatchTooLarge = errors.New("patch exceeds size limit")

// PatchError reports a failed text or metadata patch. Stage is "parse"
// when the patch document itself was malformed and "apply" when it did
// not apply cleanly to the current value.
type PatchError struct {
	Stage string // "parse" or "apply"
	Field string // "text" or "metadata"
	Err   error
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("%s patch %s failed: %v", e.Field, e.Stage, e.Err)
}

func (e *PatchError) Unwrap() error { return e.Err }

// VersionConflictError reports an optimistic-lock failure. It carries
// the block's current version so the caller can retry against it.
// errors.Is(err, storage.ErrVersionConflict) matches.
type VersionConflictError struct {
	BlockID  string
	Expected int
	Current  int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("block %s: expected version %d but current version is %d",
		e.BlockID, e.Expected, e.Current)
}

func (e *VersionConflictError) Unwrap() error { return storage.ErrVersionConflict }

// ReindexError reports a vector-index write that failed after the SQL
// write succeeded. The coordinator attempts a compensating SQL rollback
// first; RollbackErr carries its failure when the rollback itself did
// not succeed, which leaves the substrates inconsistent.
type ReindexError struct {
	BlockID     string
	Err         error
	RollbackErr error
}

func (e *ReindexError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("block %s: vector index write failed (%v) and SQL rollback failed (%v)",
			e.BlockID, e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("block %s: vector index write failed, SQL change rolled back: %v", e.BlockID, e.Err)
}

func (e *ReindexError) Unwrap() error { return e.Err }

// StateInconsistent reports whether the compensating rollback failed,
// leaving SQL and the vector index out of sync.
func (e *ReindexError) StateInconsistent() bool { return e.RollbackErr != nil }

// CommitError reports a failed auto-commit after successful row writes.
// DiscardChanges is attempted to roll the working set back; RollbackErr
// carries its failure when the rollback itself did not succeed.
type CommitError struct {
	Err         error
	RollbackErr error
}

func (e *CommitError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("commit failed (%v) and rollback failed (%v)", e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("commit failed, working set rolled back: %v", e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// StateInconsistent reports whether the rollback failed, leaving
// uncommitted rows in the working set.
func (e *CommitError) StateInconsistent() bool { return e.RollbackErr != nil }

// StateInconsistent reports whether err carries an inconsistent-state
// flag from a failed rollback.
func StateInconsistent(err error) bool {
	var re *ReindexError
	if errors.As(err, &re) {
		return re.StateInconsistent()
	}
	var ce *CommitError
	if errors.As(err, &ce) {
		return ce.StateInconsistent()
	}
	return false
}
