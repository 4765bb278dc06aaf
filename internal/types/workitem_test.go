package types

import (
	"testing"
	"time"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"P0", 0, false},
		{"p1", 1, false},
		{"3", 3, false},
		{"P5", 5, false},
		{"high", 1, false},
		{"medium", 3, false},
		{"low", 5, false},
		{"", 3, false},
		{"P6", 0, true},
		{"-1", 0, true},
		{"urgent", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePriority(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParsePriority(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestWorkStatus(t *testing.T) {
	if !WorkStatusDone.IsTerminal() || !WorkStatusReleased.IsTerminal() {
		t.Error("done and released are terminal")
	}
	if WorkStatusInProgress.IsTerminal() {
		t.Error("in_progress is not terminal")
	}
	if !WorkStatusInProgress.IsActive() || !WorkStatusBlocked.IsActive() {
		t.Error("in_progress and blocked are active")
	}
	if WorkStatusArchived.IsActive() || WorkStatusDone.IsActive() {
		t.Error("archived and done are not active")
	}
	if WorkStatus("limbo").IsValid() {
		t.Error("limbo is not a valid status")
	}
}

func TestSynthesizeValidationReport(t *testing.T) {
	now := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	report := SynthesizeValidationReport([]string{"compiles", "tests pass"}, "agent-3", now)

	if len(report.Validations) != 2 {
		t.Fatalf("validations = %d, want 2", len(report.Validations))
	}
	if !report.AllPassed() {
		t.Error("synthesized report must have all criteria passed")
	}
	if report.VerifiedBy != "agent-3" {
		t.Errorf("verified_by = %q", report.VerifiedBy)
	}
	if !report.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", report.Timestamp, now)
	}

	empty := SynthesizeValidationReport(nil, "x", now)
	if empty.AllPassed() {
		t.Error("report with no validations cannot claim all passed")
	}
}
