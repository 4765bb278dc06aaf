package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/cognidao/membank/internal/links"
	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/types"
)

// CreateWorkItemInput creates a work-item block (task, project, epic,
// bug). Work-item fields are folded into the block's text and typed
// metadata; blocked_by entries become depends_on links after creation.
type CreateWorkItemInput struct {
	Type               string                     `json:"type" validate:"required,oneof=task project epic bug"`
	Title              string                     `json:"title" validate:"required"`
	Description        string                     `json:"description,omitempty"`
	NamespaceID        string                     `json:"namespace_id,omitempty"`
	Status             string                     `json:"status,omitempty" validate:"omitempty,oneof=backlog ready in_progress review blocked done released archived"`
	Priority           string                     `json:"priority,omitempty"`
	Owner              string                     `json:"owner,omitempty"`
	AcceptanceCriteria []string                   `json:"acceptance_criteria,omitempty"`
	ActionItems        []string                   `json:"action_items,omitempty"`
	ExpectedArtifacts  []string                   `json:"expected_artifacts,omitempty"`
	BlockedBy          []string                   `json:"blocked_by,omitempty"`
	StoryPoints        *int                       `json:"story_points,omitempty" validate:"omitempty,min=0"`
	EstimateHours      *float64                   `json:"estimate_hours,omitempty" validate:"omitempty,gte=0"`
	ExecutionPhase     string                     `json:"execution_phase,omitempty"`
	ValidationReport   *types.ValidationReport    `json:"validation_report,omitempty"`
	Tags               []string                   `json:"tags,omitempty" validate:"max=20"`
	Metadata           map[string]types.MetaValue `json:"metadata,omitempty"`
	CreatedBy          string                     `json:"created_by,omitempty"`
}

func (in *CreateWorkItemInput) validateInput() error {
	status := in.Status
	if status == "" {
		status = string(types.WorkStatusBacklog)
	}
	if in.ExecutionPhase != "" && status != string(types.WorkStatusInProgress) {
		return invalidf("execution_phase may only be set when status is in_progress")
	}
	if _, err := types.ParsePriority(in.Priority); err != nil {
		return invalidf("%s", err)
	}
	return nil
}

// CreateWorkItemResult reports the new item and any dependency links
// created from blocked_by.
type CreateWorkItemResult struct {
	ID    string             `json:"id"`
	Block *types.MemoryBlock `json:"block"`
	Links []*types.BlockLink `json:"links,omitempty"`
}

// UpdateWorkItemInput updates a work item. Nil fields are untouched;
// status transitions to done/released synthesize a validation report
// when none is stored or supplied.
type UpdateWorkItemInput struct {
	BlockID              string                     `json:"block_id" validate:"required"`
	PreviousBlockVersion *int                       `json:"previous_block_version,omitempty" validate:"omitempty,min=1"`
	Title                *string                    `json:"title,omitempty"`
	Description          *string                    `json:"description,omitempty"`
	Status               *string                    `json:"status,omitempty" validate:"omitempty,oneof=backlog ready in_progress review blocked done released archived"`
	Priority             *string                    `json:"priority,omitempty"`
	Owner                *string                    `json:"owner,omitempty"`
	AcceptanceCriteria   []string                   `json:"acceptance_criteria,omitempty"`
	ActionItems          []string                   `json:"action_items,omitempty"`
	ExpectedArtifacts    []string                   `json:"expected_artifacts,omitempty"`
	StoryPoints          *int                       `json:"story_points,omitempty" validate:"omitempty,min=0"`
	EstimateHours        *float64                   `json:"estimate_hours,omitempty" validate:"omitempty,gte=0"`
	ExecutionPhase       *string                    `json:"execution_phase,omitempty"`
	ValidationReport     *types.ValidationReport    `json:"validation_report,omitempty"`
	Tags                 []string                   `json:"tags,omitempty" validate:"max=20"`
	MergeTags            bool                       `json:"merge_tags,omitempty"`
	Metadata             map[string]types.MetaValue `json:"metadata,omitempty"`
	UpdatedBy            string                     `json:"updated_by,omitempty"`
}

func (in *UpdateWorkItemInput) validateInput() error {
	if in.Priority != nil {
		if _, err := types.ParsePriority(*in.Priority); err != nil {
			return invalidf("%s", err)
		}
	}
	return nil
}

// UpdateWorkItemResult is the envelope payload for work-item updates.
type UpdateWorkItemResult struct {
	ID           string             `json:"id"`
	Block        *types.MemoryBlock `json:"block"`
	BlockVersion int                `json:"block_version"`
	Status       string             `json:"status,omitempty"`
}

// UpdateTaskStatusInput is the narrow status-transition tool.
type UpdateTaskStatusInput struct {
	BlockID        string `json:"block_id" validate:"required"`
	Status         string `json:"status" validate:"required,oneof=backlog ready in_progress review blocked done released archived"`
	ExecutionPhase string `json:"execution_phase,omitempty"`
	UpdatedBy      string `json:"updated_by,omitempty"`
}

// ValidationResultInput is one acceptance-criterion verdict.
type ValidationResultInput struct {
	Criterion string `json:"criterion" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=pass fail"`
	Notes     string `json:"notes,omitempty"`
}

// AddValidationReportInput attaches a validation report to a work item.
type AddValidationReportInput struct {
	BlockID     string                  `json:"block_id" validate:"required"`
	Validations []ValidationResultInput `json:"validations" validate:"required,min=1,dive"`
	VerifiedBy  string                  `json:"verified_by,omitempty"`
}

// AddValidationReportResult reports the stored verdict.
type AddValidationReportResult struct {
	ID           string `json:"id"`
	BlockVersion int    `json:"block_version"`
	AllPassed    bool   `json:"all_passed"`
}

// GetActiveWorkItemsInput lists non-terminal work items.
type GetActiveWorkItemsInput struct {
	NamespaceID string `json:"namespace_id,omitempty"`
	Type        string `json:"type,omitempty" validate:"omitempty,oneof=task project epic bug"`
	Limit       int    `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
}

// GetActiveWorkItemsResult carries active items ordered by priority.
type GetActiveWorkItemsResult struct {
	WorkItems []*types.MemoryBlock `json:"work_items"`
	Count     int                  `json:"count"`
}

func workItemTools() []*CogniTool {
	return []*CogniTool{
		{
			Name:         ToolCreateWorkItem,
			Description:  "Create a task, project, epic, or bug with work-item metadata.",
			InputType:    reflect.TypeOf(CreateWorkItemInput{}),
			MemoryLinked: true,
			Func:         runCreateWorkItem,
		},
		{
			Name:         ToolUpdateWorkItem,
			Description:  "Update a work item's fields, status, and validation report.",
			InputType:    reflect.TypeOf(UpdateWorkItemInput{}),
			MemoryLinked: true,
			Func:         runUpdateWorkItem,
		},
		{
			Name:         ToolUpdateTaskStatus,
			Description:  "Transition a work item's status.",
			InputType:    reflect.TypeOf(UpdateTaskStatusInput{}),
			MemoryLinked: true,
			Func:         runUpdateTaskStatus,
		},
		{
			Name:         ToolAddValidationReport,
			Description:  "Attach an acceptance-criteria validation report to a work item.",
			InputType:    reflect.TypeOf(AddValidationReportInput{}),
			MemoryLinked: true,
			Func:         runAddValidationReport,
		},
		{
			Name:         ToolGetActiveWorkItems,
			Description:  "List non-terminal work items ordered by priority.",
			InputType:    reflect.TypeOf(GetActiveWorkItemsInput{}),
			MemoryLinked: true,
			Func:         runGetActiveWorkItems,
		},
	}
}

func runCreateWorkItem(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*CreateWorkItemInput)

	status := types.WorkStatus(in.Status)
	if status == "" {
		status = types.WorkStatusBacklog
	}
	priority, _ := types.ParsePriority(in.Priority)

	metadata := map[string]types.MetaValue{
		"title":    types.MetaString(in.Title),
		"status":   types.MetaString(string(status)),
		"priority": types.MetaInt(int64(priority)),
	}
	if in.Description != "" {
		metadata["description"] = types.MetaString(in.Description)
	}
	if in.Owner != "" {
		metadata["owner"] = types.MetaString(in.Owner)
	}
	setMetaStrings(metadata, "acceptance_criteria", in.AcceptanceCriteria)
	setMetaStrings(metadata, "action_items", in.ActionItems)
	setMetaStrings(metadata, "expected_artifacts", in.ExpectedArtifacts)
	if in.StoryPoints != nil {
		metadata["story_points"] = types.MetaInt(int64(*in.StoryPoints))
	}
	if in.EstimateHours != nil {
		metadata["estimate_hours"] = types.MetaFloat(*in.EstimateHours)
	}
	if in.ExecutionPhase != "" {
		metadata["execution_phase"] = types.MetaString(in.ExecutionPhase)
	}

	report := in.ValidationReport
	if report == nil && status.IsTerminal() {
		report = types.SynthesizeValidationReport(in.AcceptanceCriteria, in.CreatedBy, time.Now())
	}
	if report != nil {
		mv, err := metaFromTyped(report)
		if err != nil {
			return nil, fmt.Errorf("encode validation report: %w", err)
		}
		metadata["validation_report"] = mv
	}

	// Caller metadata fills gaps; work-item fields win on collision.
	for k, v := range in.Metadata {
		if _, taken := metadata[k]; !taken {
			metadata[k] = v
		}
	}

	block, err := bank.CreateMemoryBlock(ctx, &types.MemoryBlock{
		NamespaceID: in.NamespaceID,
		Type:        types.BlockType(in.Type),
		Text:        renderWorkItemText(in.Title, in.Description),
		Tags:        in.Tags,
		Metadata:    metadata,
		CreatedBy:   in.CreatedBy,
	})
	if err != nil {
		return nil, err
	}

	result := &CreateWorkItemResult{ID: block.ID, Block: block}
	for _, dep := range in.BlockedBy {
		created, err := bank.Links().CreateLink(ctx, links.CreateLinkInput{
			FromID:    block.ID,
			ToID:      dep,
			Relation:  "depends_on",
			CreatedBy: in.CreatedBy,
		})
		if err != nil {
			return nil, &linkInputError{err: fmt.Errorf("work item %s created, but blocked_by link to %s failed: %w", block.ID, dep, err)}
		}
		result.Links = append(result.Links, created...)
	}
	return result, nil
}

func runUpdateWorkItem(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	return applyWorkItemUpdate(ctx, bank, input.(*UpdateWorkItemInput))
}

func runUpdateTaskStatus(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*UpdateTaskStatusInput)
	update := &UpdateWorkItemInput{
		BlockID:   in.BlockID,
		Status:    &in.Status,
		UpdatedBy: in.UpdatedBy,
	}
	if in.ExecutionPhase != "" {
		update.ExecutionPhase = &in.ExecutionPhase
	}
	return applyWorkItemUpdate(ctx, bank, update)
}

// applyWorkItemUpdate folds work-item field changes into a metadata
// overlay plus a text re-render, then delegates to the coordinator's
// update with merge semantics.
func applyWorkItemUpdate(ctx context.Context, bank *memorybank.Bank, in *UpdateWorkItemInput) (any, error) {
	current, err := bank.GetMemoryBlock(ctx, in.BlockID)
	if err != nil {
		return nil, err
	}
	if !current.Type.IsWorkItem() {
		return nil, invalidf("block %s is not a work item (type %s)", current.ID, current.Type)
	}

	status := metaString(current.Metadata, "status")
	if status == "" {
		status = string(types.WorkStatusBacklog)
	}
	if in.Status != nil {
		status = *in.Status
	}
	if in.ExecutionPhase != nil && *in.ExecutionPhase != "" && status != string(types.WorkStatusInProgress) {
		return nil, invalidf("execution_phase may only be set when status is in_progress")
	}

	overlay := map[string]types.MetaValue{}
	for k, v := range in.Metadata {
		overlay[k] = v
	}
	if in.Status != nil {
		overlay["status"] = types.MetaString(status)
	}
	if in.Title != nil {
		overlay["title"] = types.MetaString(*in.Title)
	}
	if in.Description != nil {
		overlay["description"] = types.MetaString(*in.Description)
	}
	if in.Priority != nil {
		ordinal, _ := types.ParsePriority(*in.Priority)
		overlay["priority"] = types.MetaInt(int64(ordinal))
	}
	if in.Owner != nil {
		overlay["owner"] = types.MetaString(*in.Owner)
	}
	if in.AcceptanceCriteria != nil {
		setMetaStrings(overlay, "acceptance_criteria", in.AcceptanceCriteria)
	}
	if in.ActionItems != nil {
		setMetaStrings(overlay, "action_items", in.ActionItems)
	}
	if in.ExpectedArtifacts != nil {
		setMetaStrings(overlay, "expected_artifacts", in.ExpectedArtifacts)
	}
	if in.StoryPoints != nil {
		overlay["story_points"] = types.MetaInt(int64(*in.StoryPoints))
	}
	if in.EstimateHours != nil {
		overlay["estimate_hours"] = types.MetaFloat(*in.EstimateHours)
	}
	if in.ExecutionPhase != nil {
		overlay["execution_phase"] = types.MetaString(*in.ExecutionPhase)
	}

	report := in.ValidationReport
	if report == nil && in.Status != nil && types.WorkStatus(status).IsTerminal() {
		if _, stored := current.Metadata["validation_report"]; !stored {
			criteria := in.AcceptanceCriteria
			if criteria == nil {
				criteria = metaStrings(current.Metadata, "acceptance_criteria")
			}
			report = types.SynthesizeValidationReport(criteria, in.UpdatedBy, time.Now())
		}
	}
	if report != nil {
		mv, err := metaFromTyped(report)
		if err != nil {
			return nil, fmt.Errorf("encode validation report: %w", err)
		}
		overlay["validation_report"] = mv
	}

	req := memorybank.UpdateRequest{
		BlockID:              in.BlockID,
		PreviousBlockVersion: in.PreviousBlockVersion,
		Metadata:             overlay,
		MergeMetadata:        true,
		Tags:                 in.Tags,
		MergeTags:            in.MergeTags,
	}

	if in.Title != nil || in.Description != nil {
		title := metaString(current.Metadata, "title")
		if in.Title != nil {
			title = *in.Title
		}
		description := metaString(current.Metadata, "description")
		if in.Description != nil {
			description = *in.Description
		}
		text := renderWorkItemText(title, description)
		req.Text = &text
	}

	block, err := bank.UpdateMemoryBlock(ctx, req)
	if err != nil {
		return nil, err
	}
	return &UpdateWorkItemResult{
		ID:           block.ID,
		Block:        block,
		BlockVersion: block.BlockVersion,
		Status:       metaString(block.Metadata, "status"),
	}, nil
}

func runAddValidationReport(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*AddValidationReportInput)
	current, err := bank.GetMemoryBlock(ctx, in.BlockID)
	if err != nil {
		return nil, err
	}
	if !current.Type.IsWorkItem() {
		return nil, invalidf("block %s is not a work item (type %s)", current.ID, current.Type)
	}

	report := &types.ValidationReport{
		VerifiedBy:  in.VerifiedBy,
		Timestamp:   time.Now().UTC(),
		Validations: make([]types.ValidationResult, 0, len(in.Validations)),
	}
	for _, v := range in.Validations {
		report.Validations = append(report.Validations, types.ValidationResult{
			Criterion: v.Criterion,
			Status:    v.Status,
			Notes:     v.Notes,
		})
	}
	mv, err := metaFromTyped(report)
	if err != nil {
		return nil, fmt.Errorf("encode validation report: %w", err)
	}

	block, err := bank.UpdateMemoryBlock(ctx, memorybank.UpdateRequest{
		BlockID:       in.BlockID,
		Metadata:      map[string]types.MetaValue{"validation_report": mv},
		MergeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	return &AddValidationReportResult{
		ID:           block.ID,
		BlockVersion: block.BlockVersion,
		AllPassed:    report.AllPassed(),
	}, nil
}

func runGetActiveWorkItems(ctx context.Context, bank *memorybank.Bank, input any) (any, error) {
	in := input.(*GetActiveWorkItemsInput)

	wanted := types.WorkItemTypes()
	if in.Type != "" {
		wanted = []types.BlockType{types.BlockType(in.Type)}
	}

	var items []*types.MemoryBlock
	for _, bt := range wanted {
		blockType := bt
		blocks, err := bank.GetAllMemoryBlocks(ctx, types.BlockFilter{
			NamespaceID: in.NamespaceID,
			Type:        &blockType,
		})
		if err != nil {
			return nil, err
		}
		for _, block := range blocks {
			if workItemActive(block) {
				items = append(items, block)
			}
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := workItemPriority(items[i]), workItemPriority(items[j])
		if pi != pj {
			return pi < pj
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if in.Limit > 0 && len(items) > in.Limit {
		items = items[:in.Limit]
	}
	return &GetActiveWorkItemsResult{WorkItems: items, Count: len(items)}, nil
}

// workItemActive treats a missing status as backlog, so generically
// created work-item blocks still show up.
func workItemActive(block *types.MemoryBlock) bool {
	status := types.WorkStatus(metaString(block.Metadata, "status"))
	if status == "" {
		status = types.WorkStatusBacklog
	}
	return status.IsActive()
}

func workItemPriority(block *types.MemoryBlock) int64 {
	if v, ok := block.Metadata["priority"]; ok {
		if n, isInt := v.Int(); isInt {
			return n
		}
	}
	return 3
}

// renderWorkItemText renders the canonical work-item document: the
// title as a heading, the description as the body.
func renderWorkItemText(title, description string) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n")
	if description != "" {
		b.WriteString("\n")
		b.WriteString(description)
		b.WriteString("\n")
	}
	return b.String()
}

func metaString(m map[string]types.MetaValue, key string) string {
	if v, ok := m[key]; ok {
		if s, isString := v.String(); isString {
			return s
		}
	}
	return ""
}

func metaStrings(m map[string]types.MetaValue, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	items, isList := v.List()
	if !isList {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, isString := item.String(); isString {
			out = append(out, s)
		}
	}
	return out
}

func setMetaStrings(m map[string]types.MetaValue, key string, values []string) {
	if len(values) == 0 {
		if values != nil {
			m[key] = types.MetaList()
		}
		return
	}
	items := make([]types.MetaValue, 0, len(values))
	for _, s := range values {
		items = append(items, types.MetaString(s))
	}
	m[key] = types.MetaList(items...)
}

// metaFromTyped round-trips a typed value through JSON into a tagged
// metadata value.
func metaFromTyped(v any) (types.MetaValue, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return types.MetaValue{}, err
	}
	var mv types.MetaValue
	if err := json.Unmarshal(raw, &mv); err != nil {
		return types.MetaValue{}, err
	}
	return mv, nil
}
