package membank_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cognidao/membank"
)

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "bankdata")

	ctx := context.Background()
	bank, err := membank.Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer bank.Close()

	// A fresh store answers SQL health immediately; the vector mirror
	// is optional and may be offline in CI.
	health := bank.HealthCheck(ctx)
	if !health.SQL {
		t.Errorf("expected SQL healthy on a fresh store, got %+v", health)
	}
	if bank.CurrentBranch(ctx) == "" {
		t.Error("expected a current branch on a fresh store")
	}
}

func TestOpenOptions(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "bankdata")

	ctx := context.Background()
	bank, err := membank.OpenOptions(ctx, dir, membank.Options{
		Namespace:    "orchestrator",
		NoAutoCommit: true,
	})
	if err != nil {
		t.Fatalf("OpenOptions failed: %v", err)
	}
	defer bank.Close()

	if got := bank.Namespace(); got != "orchestrator" {
		t.Errorf("Namespace = %q, want orchestrator", got)
	}
}

func TestTypeAliases(t *testing.T) {
	// The aliases must stay assignable to the internal types so
	// embedders can construct blocks directly.
	block := membank.MemoryBlock{
		Type: membank.TypeKnowledge,
		Text: "aliases wire through",
	}
	if err := block.Validate(); err == nil {
		t.Error("expected validation error for block without id")
	}
	if membank.DefaultNamespace == "" {
		t.Error("default namespace must not be empty")
	}
}
