package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WorkStatus is the lifecycle state of a work-item block (task,
// project, epic, bug), carried in block metadata.
type WorkStatus string

// Work item status constants
const (
	WorkStatusBacklog    WorkStatus = "backlog"
	WorkStatusReady      WorkStatus = "ready"
	WorkStatusInProgress WorkStatus = "in_progress"
	WorkStatusReview     WorkStatus = "review"
	WorkStatusBlocked    WorkStatus = "blocked"
	WorkStatusDone       WorkStatus = "done"
	WorkStatusReleased   WorkStatus = "released"
	WorkStatusArchived   WorkStatus = "archived"
)

// IsValid checks if the work status value is valid
func (s WorkStatus) IsValid() bool {
	switch s {
	case WorkStatusBacklog, WorkStatusReady, WorkStatusInProgress, WorkStatusReview,
		WorkStatusBlocked, WorkStatusDone, WorkStatusReleased, WorkStatusArchived:
		return true
	}
	return false
}

// IsTerminal reports whether the status closes the item out. Terminal
// transitions require a validation report (one is synthesized when the
// caller supplies none).
func (s WorkStatus) IsTerminal() bool {
	return s == WorkStatusDone || s == WorkStatusReleased
}

// IsActive reports whether the item counts as active work.
func (s WorkStatus) IsActive() bool {
	switch s {
	case WorkStatusBacklog, WorkStatusReady, WorkStatusInProgress, WorkStatusReview, WorkStatusBlocked:
		return true
	}
	return false
}

// ParsePriority maps "P0".."P5", bare ordinals, and the low/medium/high
// aliases onto the numeric priority scale (0 is most urgent).
func ParsePriority(raw string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return 3, nil
	case "high":
		return 1, nil
	case "medium", "normal":
		return 3, nil
	case "low":
		return 5, nil
	}
	s = strings.TrimPrefix(s, "p")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid priority: %q", raw)
	}
	if n < 0 || n > 5 {
		return 0, fmt.Errorf("priority must be between P0 and P5 (got %q)", raw)
	}
	return n, nil
}

// ValidationResult is one acceptance-criterion check inside a
// validation report.
type ValidationResult struct {
	Criterion string `json:"criterion"`
	Status    string `json:"status"` // "pass" or "fail"
	Notes     string `json:"notes,omitempty"`
}

// ValidationReport records the verification of a work item's
// acceptance criteria. A terminal status transition with no report
// synthesizes one with every criterion passed.
type ValidationReport struct {
	Validations []ValidationResult `json:"validations"`
	VerifiedBy  string             `json:"verified_by,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// AllPassed reports whether every validation in the report passed.
func (r *ValidationReport) AllPassed() bool {
	if len(r.Validations) == 0 {
		return false
	}
	for _, v := range r.Validations {
		if v.Status != "pass" {
			return false
		}
	}
	return true
}

// SynthesizeValidationReport builds a report marking every acceptance
// criterion passed, used when an item reaches a terminal status without
// an explicit report.
func SynthesizeValidationReport(criteria []string, verifiedBy string, now time.Time) *ValidationReport {
	report := &ValidationReport{
		VerifiedBy:  verifiedBy,
		Timestamp:   now.UTC(),
		Validations: make([]ValidationResult, 0, len(criteria)),
	}
	for _, c := range criteria {
		report.Validations = append(report.Validations, ValidationResult{
			Criterion: c,
			Status:    "pass",
			Notes:     "auto-validated on terminal status transition",
		})
	}
	return report
}
