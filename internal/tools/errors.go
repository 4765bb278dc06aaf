package tools

import (
	"errors"
	"fmt"

	"github.com/cognidao/membank/internal/links"
	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/storage"
)

// Wire error codes shared by every tool envelope.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeBlockNotFound       = "BLOCK_NOT_FOUND"
	CodeVersionConflict     = "VERSION_CONFLICT"
	CodePatchParseError     = "PATCH_PARSE_ERROR"
	CodePatchApplyError     = "PATCH_APPLY_ERROR"
	CodePatchSizeLimitError = "PATCH_SIZE_LIMIT_ERROR"
	CodeLinkValidationError = "LINK_VALIDATION_ERROR"
	CodeDependenciesExist   = "DEPENDENCIES_EXIST"
	CodeNamespaceNotFound   = "NAMESPACE_NOT_FOUND"
	CodePersistenceFailure  = "PERSISTENCE_FAILURE"
	CodeReindexFailure      = "RE_INDEX_FAILURE"
	CodeCommitFailed        = "COMMIT_FAILED"
	CodeInternalError       = "INTERNAL_ERROR"
)

// inputError marks a tool-input validation failure so the pipeline maps
// it to VALIDATION_ERROR rather than the execution fallback.
type inputError struct {
	msg string
}

func (e *inputError) Error() string { return e.msg }

func invalidf(format string, args ...any) error {
	return &inputError{msg: fmt.Sprintf(format, args...)}
}

// linkInputError wraps link-endpoint and relation failures from the
// link manager so they surface as LINK_VALIDATION_ERROR instead of the
// generic not-found mapping.
type linkInputError struct {
	err error
}

func (e *linkInputError) Error() string { return e.err.Error() }
func (e *linkInputError) Unwrap() error { return e.err }

// classify maps an execution error onto a wire code plus any extra
// envelope fields the code carries (previous_version for conflicts).
// Unrecognized errors fall through to the given fallback code.
func classify(err error, fallback string) (string, map[string]any) {
	var (
		invalid  *inputError
		linkErr  *linkInputError
		conflict *memorybank.VersionConflictError
		patch    *memorybank.PatchError
		reindex  *memorybank.ReindexError
		commit   *memorybank.CommitError
	)
	switch {
	case errors.As(err, &invalid):
		return CodeValidationError, nil
	case errors.As(err, &linkErr):
		return CodeLinkValidationError, nil
	case errors.As(err, &conflict):
		return CodeVersionConflict, map[string]any{"previous_version": conflict.Current}
	case errors.Is(err, memorybank.ErrPatchTooLarge):
		return CodePatchSizeLimitError, nil
	case errors.As(err, &patch):
		if patch.Stage == "parse" {
			return CodePatchParseError, nil
		}
		return CodePatchApplyError, nil
	case errors.As(err, &reindex):
		return CodeReindexFailure, nil
	case errors.As(err, &commit):
		return CodeCommitFailed, nil
	case errors.Is(err, storage.ErrVersionConflict):
		return CodeVersionConflict, nil
	case errors.Is(err, storage.ErrDependenciesExist):
		return CodeDependenciesExist, nil
	case errors.Is(err, storage.ErrNamespaceNotFound):
		return CodeNamespaceNotFound, nil
	case errors.Is(err, storage.ErrNamespaceExists):
		return CodeValidationError, nil
	case errors.Is(err, storage.ErrCycleDetected),
		errors.Is(err, storage.ErrDuplicateLink),
		errors.Is(err, links.ErrInvalidRelation):
		return CodeLinkValidationError, nil
	case errors.Is(err, links.ErrInvalidDirection),
		errors.Is(err, links.ErrInvalidCursor):
		return CodeValidationError, nil
	case errors.Is(err, storage.ErrNotFound):
		return CodeBlockNotFound, nil
	}
	return fallback, nil
}
