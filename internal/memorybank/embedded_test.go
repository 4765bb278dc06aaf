package memorybank_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/cognidao/membank/internal/links"
	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/storage"
	"github.com/cognidao/membank/internal/testutil/testbank"
	"github.com/cognidao/membank/internal/types"
)

// The embedded tests run the bank against a real Dolt engine instead of
// the in-memory fake, covering the SQL round-trip paths the fake only
// simulates: property rows, duplicate-key and cycle errors produced by
// the engine, and commit history. They skip when embedded Dolt is not
// compiled in.

func TestEmbeddedDoltBlockRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded dolt test in short mode")
	}
	env := testbank.NewDolt(t)

	created := env.CreateBlockWith(&types.MemoryBlock{
		Type: types.TypeKnowledge,
		Text: "rotate the signing key before the cert expires",
		Metadata: map[string]types.MetaValue{
			"source":   types.MetaString("runbook"),
			"priority": types.MetaInt(3),
		},
		Tags: []string{"ops", "certs"},
	})

	got, err := env.Bank.GetMemoryBlock(env.Ctx, created.ID)
	if err != nil {
		t.Fatalf("GetMemoryBlock failed: %v", err)
	}
	if got.Text != created.Text {
		t.Errorf("Text = %q, want %q", got.Text, created.Text)
	}
	// Metadata is recomposed from property rows on read.
	if v, ok := got.Metadata["source"].String(); !ok || v != "runbook" {
		t.Errorf(`Metadata["source"] = %v, want runbook`, got.Metadata["source"].AsAny())
	}
	if v, ok := got.Metadata["priority"].Int(); !ok || v != 3 {
		t.Errorf(`Metadata["priority"] = %v, want 3`, got.Metadata["priority"].AsAny())
	}
	if len(got.Tags) != 2 || got.Tags[0] != "ops" || got.Tags[1] != "certs" {
		t.Errorf("Tags = %v, want [ops certs]", got.Tags)
	}

	newText := "rotate the signing key a week before the cert expires"
	updated, err := env.Bank.UpdateMemoryBlock(env.Ctx, memorybank.UpdateRequest{
		BlockID: created.ID,
		Text:    &newText,
	})
	if err != nil {
		t.Fatalf("UpdateMemoryBlock failed: %v", err)
	}
	if updated.BlockVersion != got.BlockVersion+1 {
		t.Errorf("BlockVersion = %d, want %d", updated.BlockVersion, got.BlockVersion+1)
	}
	if v, ok := updated.Metadata["source"].String(); !ok || v != "runbook" {
		t.Error("text-only update dropped metadata")
	}

	other := env.CreateBlock("the cert expiry calendar")
	env.Link(created.ID, other.ID, "depends_on")

	_, err = env.Bank.Links().CreateLink(env.Ctx, links.CreateLinkInput{
		FromID: created.ID, ToID: other.ID, Relation: "depends_on",
	})
	if !errors.Is(err, storage.ErrDuplicateLink) {
		t.Errorf("duplicate link error = %v, want ErrDuplicateLink", err)
	}
	_, err = env.Bank.Links().CreateLink(env.Ctx, links.CreateLinkInput{
		FromID: other.ID, ToID: created.ID, Relation: "depends_on",
	})
	if !errors.Is(err, storage.ErrCycleDetected) {
		t.Errorf("cycle link error = %v, want ErrCycleDetected", err)
	}

	env.AssertProofs(created.ID, types.ProofCreate, types.ProofUpdate)

	log, err := env.Bank.Log(env.Ctx, 10)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	// Baseline schema commit plus one auto-commit per mutation.
	if len(log) < 4 {
		t.Errorf("Log returned %d commits, want at least 4", len(log))
	}
	if !strings.Contains(log[0].Message, "create block") {
		t.Errorf("latest commit message = %q, want create block message", log[0].Message)
	}
}

func TestEmbeddedDoltBranchIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded dolt test in short mode")
	}
	env := testbank.NewDolt(t)
	start := env.Bank.CurrentBranch(env.Ctx)
	if start == "" {
		t.Fatal("no active branch")
	}

	shared := env.CreateBlock("shared context present on every branch")
	// Flush the trailing proof row so checkout starts clean.
	if _, err := env.Bank.Commit(env.Ctx, "flush proof rows"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if _, err := env.Bank.Checkout(env.Ctx, "agent-scratch", true, false); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	scratch := env.CreateBlock("scratch note visible only on the work branch")
	if _, err := env.Bank.Commit(env.Ctx, "flush proof rows"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if _, err := env.Bank.GetMemoryBlock(env.Ctx, shared.ID); err != nil {
		t.Errorf("shared block missing on work branch: %v", err)
	}
	if _, err := env.Bank.GetMemoryBlock(env.Ctx, scratch.ID); err != nil {
		t.Errorf("scratch block missing on its own branch: %v", err)
	}

	if _, err := env.Bank.Checkout(env.Ctx, start, false, false); err != nil {
		t.Fatalf("Checkout back to %s failed: %v", start, err)
	}
	if _, err := env.Bank.GetMemoryBlock(env.Ctx, shared.ID); err != nil {
		t.Errorf("shared block missing after checkout: %v", err)
	}
	if _, err := env.Bank.GetMemoryBlock(env.Ctx, scratch.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("scratch block on %s: err = %v, want ErrNotFound", start, err)
	}

	branches, err := env.Bank.ListBranches(env.Ctx)
	if err != nil {
		t.Fatalf("ListBranches failed: %v", err)
	}
	names := make(map[string]bool, len(branches))
	for _, b := range branches {
		names[b.Name] = true
	}
	if !names[start] || !names["agent-scratch"] {
		t.Errorf("branches = %v, want %s and agent-scratch", names, start)
	}
}
