package tools

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/cognidao/membank/internal/links"
	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/storage"
)

// BulkBlockResult is one attempted item of a bulk block operation.
type BulkBlockResult struct {
	Success    bool   `json:"success"`
	BlockID    string `json:"block_id,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// BulkBlocksResult is the batch outcome for block-oriented bulk tools.
// Success means every item succeeded; PartialSuccess means at least
// one did. Items not attempted after an early stop are counted in
// Skipped and, when their ids are known, listed in SkippedBlockIDs.
type BulkBlocksResult struct {
	Success          bool              `json:"success"`
	PartialSuccess   bool              `json:"partial_success"`
	Results          []BulkBlockResult `json:"results"`
	SuccessfulBlocks int               `json:"successful_blocks"`
	FailedBlocks     int               `json:"failed_blocks"`
	Skipped          int               `json:"skipped,omitempty"`
	SkippedBlockIDs  []string          `json:"skipped_block_ids,omitempty"`
	ErrorSummary     map[string]int    `json:"error_summary,omitempty"`
}

// BulkLinkResult is one attempted item of BulkCreateLinks.
type BulkLinkResult struct {
	Success    bool   `json:"success"`
	FromID     string `json:"from_id"`
	ToID       string `json:"to_id"`
	Relation   string `json:"relation"`
	Error      string `json:"error,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// BulkLinksResult is the batch outcome for BulkCreateLinks.
type BulkLinksResult struct {
	Success         bool             `json:"success"`
	PartialSuccess  bool             `json:"partial_success"`
	Results         []BulkLinkResult `json:"results"`
	SuccessfulLinks int              `json:"successful_links"`
	FailedLinks     int              `json:"failed_links"`
	Skipped         int              `json:"skipped,omitempty"`
	ErrorSummary    map[string]int   `json:"error_summary,omitempty"`
}

// BulkCreateBlocksInput creates many blocks; batch-level namespace_id
// and created_by fill per-item gaps.
type BulkCreateBlocksInput struct {
	Blocks           []CreateMemoryBlockInput `json:"blocks" validate:"required,min=1"`
	NamespaceID      string                   `json:"namespace_id,omitempty"`
	CreatedBy        string                   `json:"created_by,omitempty"`
	StopOnFirstError bool                     `json:"stop_on_first_error,omitempty"`
}

// BulkDeleteSpec targets one block for deletion.
type BulkDeleteSpec struct {
	BlockID string `json:"block_id" validate:"required"`
	Force   bool   `json:"force,omitempty"`
}

// BulkDeleteBlocksInput deletes many blocks; Force is the batch
// default for items that do not set their own.
type BulkDeleteBlocksInput struct {
	Blocks           []BulkDeleteSpec `json:"blocks" validate:"required,min=1"`
	Force            bool             `json:"force,omitempty"`
	StopOnFirstError bool             `json:"stop_on_first_error,omitempty"`
}

// BulkCreateLinksInput creates many links.
type BulkCreateLinksInput struct {
	Links            []CreateBlockLinkInput `json:"links" validate:"required,min=1"`
	CreatedBy        string                 `json:"created_by,omitempty"`
	StopOnFirstError bool                   `json:"stop_on_first_error,omitempty"`
}

// BulkUpdateNamespaceInput moves blocks into the target namespace in a
// single commit. An omitted namespace_id targets the current namespace.
type BulkUpdateNamespaceInput struct {
	BlockIDs         []string `json:"block_ids" validate:"required,min=1"`
	NamespaceID      string   `json:"namespace_id" validate:"required"`
	StopOnFirstError bool     `json:"stop_on_first_error,omitempty"`
}

func bulkTools() []*CogniTool {
	return []*CogniTool{
		{
			Name:         ToolBulkCreateBlocks,
			Description:  "Create many blocks with per-item results.",
			InputType:    reflect.TypeOf(BulkCreateBlocksInput{}),
			MemoryLinked: true,
			ListField:    "blocks",
			Func:         runBulkCreateBlocks,
		},
		{
			Name:         ToolBulkCreateLinks,
			Description:  "Create many links with per-item results.",
			InputType:    reflect.TypeOf(BulkCreateLinksInput{}),
			MemoryLinked: true,
			ListField:    "links",
			Func:         runBulkCreateLinks,
		},
		{
			Name:         ToolBulkDeleteBlocks,
			Description:  "Delete many blocks with per-item results.",
			InputType:    reflect.TypeOf(BulkDeleteBlocksInput{}),
			MemoryLinked: true,
			ListField:    "blocks",
			Func:         runBulkDeleteBlocks,
		},
		{
			Name:         ToolBulkUpdateNamespace,
			Description:  "Move blocks to another namespace in one commit.",
			InputType:    reflect.TypeOf(BulkUpdateNamespaceInput{}),
			MemoryLinked: true,
			ListField:    "block_ids",
			Func:         runBulkUpdateNamespace,
		},
	}
}

func runBulkCreateBlocks(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*BulkCreateBlocksInput)
	batch := &BulkBlocksResult{}

	for i := range in.Blocks {
		item := &in.Blocks[i]
		if item.NamespaceID == "" {
			item.NamespaceID = in.NamespaceID
		}
		if item.CreatedBy == "" {
			item.CreatedBy = in.CreatedBy
		}

		started := time.Now()
		result := BulkBlockResult{BlockID: item.ID}
		if err := checkBulkItem(item); err != nil {
			failBulkBlock(&result, err, started)
		} else if block, err := bank.CreateMemoryBlock(ctx, item.toBlock()); err != nil {
			failBulkBlock(&result, err, started)
		} else {
			result.Success = true
			result.BlockID = block.ID
			result.DurationMS = time.Since(started).Milliseconds()
		}
		batch.Results = append(batch.Results, result)

		if !result.Success && in.StopOnFirstError {
			for _, rest := range in.Blocks[i+1:] {
				batch.Skipped++
				if rest.ID != "" {
					batch.SkippedBlockIDs = append(batch.SkippedBlockIDs, rest.ID)
				}
			}
			break
		}
	}
	finishBulkBlocks(batch)
	return batch, nil
}

func runBulkDeleteBlocks(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*BulkDeleteBlocksInput)
	batch := &BulkBlocksResult{}

	for i := range in.Blocks {
		item := in.Blocks[i]
		force := item.Force || in.Force

		started := time.Now()
		result := BulkBlockResult{BlockID: item.BlockID}
		if item.BlockID == "" {
			failBulkBlock(&result, invalidf("block_id is required"), started)
		} else if err := bank.DeleteMemoryBlock(ctx, item.BlockID, force); err != nil {
			failBulkBlock(&result, err, started)
		} else {
			result.Success = true
			result.DurationMS = time.Since(started).Milliseconds()
		}
		batch.Results = append(batch.Results, result)

		if !result.Success && in.StopOnFirstError {
			for _, rest := range in.Blocks[i+1:] {
				batch.Skipped++
				batch.SkippedBlockIDs = append(batch.SkippedBlockIDs, rest.BlockID)
			}
			break
		}
	}
	finishBulkBlocks(batch)
	return batch, nil
}

func runBulkCreateLinks(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*BulkCreateLinksInput)
	batch := &BulkLinksResult{}

	for i := range in.Links {
		item := &in.Links[i]
		if item.CreatedBy == "" {
			item.CreatedBy = in.CreatedBy
		}

		started := time.Now()
		result := BulkLinkResult{FromID: item.FromID, ToID: item.ToID, Relation: item.Relation}
		err := checkBulkItem(item)
		if err == nil {
			_, err = bank.Links().CreateLink(ctx, links.CreateLinkInput{
				FromID:        item.FromID,
				ToID:          item.ToID,
				Relation:      item.Relation,
				Priority:      item.Priority,
				LinkMetadata:  item.LinkMetadata,
				CreatedBy:     item.CreatedBy,
				Bidirectional: item.Bidirectional,
			})
			if err != nil && errors.Is(err, storage.ErrNotFound) {
				err = &linkInputError{err: err}
			}
		}
		if err != nil {
			result.Error = err.Error()
			result.ErrorCode, _ = classify(err, CodePersistenceFailure)
		} else {
			result.Success = true
		}
		result.DurationMS = time.Since(started).Milliseconds()
		batch.Results = append(batch.Results, result)

		if !result.Success && in.StopOnFirstError {
			batch.Skipped = len(in.Links) - i - 1
			break
		}
	}

	batch.ErrorSummary = map[string]int{}
	for _, r := range batch.Results {
		if r.Success {
			batch.SuccessfulLinks++
		} else {
			batch.FailedLinks++
			batch.ErrorSummary[r.ErrorCode]++
		}
	}
	if len(batch.ErrorSummary) == 0 {
		batch.ErrorSummary = nil
	}
	batch.Success = batch.FailedLinks == 0 && batch.Skipped == 0
	batch.PartialSuccess = batch.SuccessfulLinks > 0
	return batch, nil
}

func runBulkUpdateNamespace(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*BulkUpdateNamespaceInput)
	batch := &BulkBlocksResult{}

	items, skipped, err := bank.UpdateNamespaceBulk(ctx, in.BlockIDs, in.NamespaceID, in.StopOnFirstError)
	var commitErr *memorybank.CommitError
	if err != nil && !errors.As(err, &commitErr) {
		return nil, err
	}

	for _, item := range items {
		result := BulkBlockResult{BlockID: item.BlockID}
		switch {
		case item.Err != nil:
			result.Error = item.Err.Error()
			result.ErrorCode, _ = classify(item.Err, CodePersistenceFailure)
		case commitErr != nil && item.Moved:
			// The shared commit failed; staged moves were rolled back.
			result.Error = commitErr.Error()
			result.ErrorCode = CodeCommitFailed
		default:
			result.Success = true
		}
		batch.Results = append(batch.Results, result)
	}
	batch.Skipped = len(skipped)
	batch.SkippedBlockIDs = skipped
	finishBulkBlocks(batch)
	return batch, nil
}

func checkBulkItem(item any) error {
	if err := validate.Struct(item); err != nil {
		return invalidf("%s", formatValidationError(err))
	}
	if sv, ok := item.(selfValidator); ok {
		if err := sv.validateInput(); err != nil {
			return err
		}
	}
	return nil
}

func failBulkBlock(result *BulkBlockResult, err error, started time.Time) {
	result.Error = err.Error()
	result.ErrorCode, _ = classify(err, CodePersistenceFailure)
	result.DurationMS = time.Since(started).Milliseconds()
}

func finishBulkBlocks(batch *BulkBlocksResult) {
	summary := map[string]int{}
	for _, r := range batch.Results {
		if r.Success {
			batch.SuccessfulBlocks++
		} else {
			batch.FailedBlocks++
			summary[r.ErrorCode]++
		}
	}
	if len(summary) > 0 {
		batch.ErrorSummary = summary
	}
	batch.Success = batch.FailedBlocks == 0 && batch.Skipped == 0
	batch.PartialSuccess = batch.SuccessfulBlocks > 0
}
