package tools_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/testutil/testbank"
	"github.com/cognidao/membank/internal/tools"
)

// newManualHarness builds a harness with auto-commit off so branch
// tools see a dirty working set after writes.
func newManualHarness(t *testing.T) *harness {
	t.Helper()
	env := testbank.NewWithConfig(t, memorybank.Config{AutoCommit: false})
	return &harness{Env: env, Exec: tools.NewExecutor(tools.Builtin(), env.Bank)}
}

func TestDoltCommitDirtyAndClean(t *testing.T) {
	h := newManualHarness(t)

	h.callOK(t, "CreateMemoryBlock", `{"type":"knowledge","text":"uncommitted"}`)

	resp := h.callOK(t, "DoltCommit", `{"message":"save point"}`)
	if got := respString(t, resp, "hash"); got != "commit0001" {
		t.Errorf("hash = %q, want commit0001", got)
	}
	if got := respString(t, resp, "active_branch"); got != "main" {
		t.Errorf("active_branch = %q, want main", got)
	}
	if resp["skipped"] == true {
		t.Error("dirty commit reported skipped")
	}
	commits := h.Store.Commits()
	if commits[len(commits)-1] != "save point" {
		t.Errorf("commit message = %q, want save point", commits[len(commits)-1])
	}

	// Nothing left to commit.
	resp = h.callOK(t, "DoltCommit", `{}`)
	if resp["skipped"] != true {
		t.Errorf("clean commit skipped = %v, want true", resp["skipped"])
	}

	// Empty message falls back to the checkpoint default.
	h.callOK(t, "CreateMemoryBlock", `{"type":"knowledge","text":"second"}`)
	resp = h.callOK(t, "DoltCommit", `{}`)
	if got := respString(t, resp, "hash"); got != "commit0002" {
		t.Errorf("hash = %q, want commit0002", got)
	}
	commits = h.Store.Commits()
	if commits[len(commits)-1] != "membank checkpoint" {
		t.Errorf("default message = %q, want membank checkpoint", commits[len(commits)-1])
	}
}

func TestDoltAddResetStatus(t *testing.T) {
	h := newManualHarness(t)
	h.callOK(t, "CreateMemoryBlock", `{"type":"knowledge","text":"pending"}`)

	resp := h.callOK(t, "DoltStatus", `{}`)
	if got := respString(t, resp, "branch"); got != "main" {
		t.Errorf("branch = %q, want main", got)
	}
	if resp["clean"] != false {
		t.Errorf("clean = %v, want false", resp["clean"])
	}
	entries := asSlice(t, resp["entries"])
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	entry := asMap(t, entries[0])
	if got := respString(t, entry, "table"); got != "memory_blocks" {
		t.Errorf("entry table = %q", got)
	}
	if entry["staged"] != false {
		t.Errorf("entry staged = %v, want false", entry["staged"])
	}

	resp = h.callOK(t, "DoltAdd", `{}`)
	if resp["staged"] != true {
		t.Errorf("staged = %v, want true", resp["staged"])
	}
	tables := asSlice(t, resp["tables"])
	if len(tables) != 4 || tables[0] != "memory_blocks" {
		t.Errorf("default staged tables = %v", tables)
	}

	resp = h.callOK(t, "DoltStatus", `{}`)
	entry = asMap(t, asSlice(t, resp["entries"])[0])
	if entry["staged"] != true {
		t.Errorf("staged after add = %v, want true", entry["staged"])
	}

	resp = h.callOK(t, "DoltReset", `{}`)
	if resp["reset"] != true || resp["hard"] != false {
		t.Errorf("reset result = %v", resp)
	}
	resp = h.callOK(t, "DoltStatus", `{}`)
	entry = asMap(t, asSlice(t, resp["entries"])[0])
	if entry["staged"] != false {
		t.Errorf("staged after reset = %v, want false", entry["staged"])
	}

	resp = h.callOK(t, "DoltReset", `{"hard":true}`)
	if resp["hard"] != true {
		t.Errorf("hard = %v, want true", resp["hard"])
	}
}

func TestDoltBranchLifecycle(t *testing.T) {
	h := newHarness(t)

	resp := h.callOK(t, "DoltBranch", `{"name":"feature/a"}`)
	if respString(t, resp, "branch") != "feature/a" || resp["created"] != true {
		t.Errorf("create result = %v", resp)
	}
	h.callOK(t, "DoltBranch", `{"name":"feature/b"}`)

	resp = h.callOK(t, "DoltListBranches", `{}`)
	if got := respInt(t, resp, "count"); got != 3 {
		t.Fatalf("count = %d, want 3", got)
	}
	var names []string
	for _, raw := range asSlice(t, resp["branches"]) {
		names = append(names, respString(t, asMap(t, raw), "name"))
	}
	want := []string{"feature/a", "feature/b", "main"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("branches = %v, want %v", names, want)
		}
	}

	resp = h.callOK(t, "DoltBranch", `{"name":"feature/b","delete":true}`)
	if resp["deleted"] != true {
		t.Errorf("delete result = %v", resp)
	}
	resp = h.callOK(t, "DoltListBranches", `{}`)
	if got := respInt(t, resp, "count"); got != 2 {
		t.Errorf("count after delete = %d, want 2", got)
	}

	// The active branch is protected.
	resp = h.call(t, "DoltBranch", `{"name":"main","delete":true}`)
	if resp["success"] != false {
		t.Fatal("deleting the active branch succeeded")
	}
	if msg := respString(t, resp, "error"); !strings.Contains(msg, "active") {
		t.Errorf("error = %q, want mention of active branch", msg)
	}

	resp = h.callErr(t, "DoltBranch", `{}`, "VALIDATION_ERROR")
	if msg := respString(t, resp, "error"); !strings.Contains(msg, "name is required") {
		t.Errorf("error = %q", msg)
	}
}

func TestDoltCheckoutMissingBranch(t *testing.T) {
	h := newHarness(t)

	resp := h.call(t, "DoltCheckout", `{"branch":"ghost"}`)
	if resp["success"] != false {
		t.Fatal("checkout of missing branch succeeded")
	}
	if msg := respString(t, resp, "error"); !strings.Contains(msg, "not found") {
		t.Errorf("error = %q, want not found", msg)
	}

	resp = h.callErr(t, "DoltCheckout", `{}`, "VALIDATION_ERROR")
	if msg := respString(t, resp, "error"); !strings.Contains(msg, "branch is required") {
		t.Errorf("error = %q", msg)
	}
}

func TestDoltMerge(t *testing.T) {
	h := newHarness(t)
	h.callOK(t, "DoltBranch", `{"name":"feature/work"}`)

	resp := h.callOK(t, "DoltMerge", `{"source":"feature/work"}`)
	if got := respString(t, resp, "hash"); got != "merge0001" {
		t.Errorf("hash = %q", got)
	}
	if resp["fast_forward"] != true {
		t.Errorf("fast_forward = %v, want true", resp["fast_forward"])
	}
	if got := respInt(t, resp, "conflicts"); got != 0 {
		t.Errorf("conflicts = %d, want 0", got)
	}

	resp = h.callOK(t, "DoltMerge", `{"source":"feature/work","no_ff":true}`)
	if resp["fast_forward"] != false {
		t.Errorf("no_ff merge fast_forward = %v, want false", resp["fast_forward"])
	}

	resp = h.call(t, "DoltMerge", `{"source":"ghost"}`)
	if resp["success"] != false {
		t.Fatal("merge of missing branch succeeded")
	}
	if msg := respString(t, resp, "error"); !strings.Contains(msg, "not found") {
		t.Errorf("error = %q, want not found", msg)
	}

	h.callErr(t, "DoltMerge", `{}`, "VALIDATION_ERROR")
}

func TestDoltDiffDefaults(t *testing.T) {
	h := newManualHarness(t)
	h.callOK(t, "CreateMemoryBlock", `{"type":"knowledge","text":"changed"}`)

	resp := h.callOK(t, "DoltDiff", `{}`)
	if respString(t, resp, "from_revision") != "HEAD" || respString(t, resp, "to_revision") != "WORKING" {
		t.Errorf("revision defaults = %v..%v", resp["from_revision"], resp["to_revision"])
	}
	tables := asSlice(t, resp["tables"])
	if len(tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(tables))
	}
	entry := asMap(t, tables[0])
	if respString(t, entry, "table") != "memory_blocks" {
		t.Errorf("diff table = %v", entry["table"])
	}
	if got := respInt(t, entry, "rows_modified"); got != 1 {
		t.Errorf("rows_modified = %d, want 1", got)
	}

	// A clean working set diffs to nothing.
	h.callOK(t, "DoltCommit", `{}`)
	resp = h.callOK(t, "DoltDiff", `{"from_revision":"HEAD","to_revision":"WORKING"}`)
	if tables, ok := resp["tables"].([]any); ok && len(tables) != 0 {
		t.Errorf("clean diff tables = %v", tables)
	}
}

func TestDoltLogNewestFirst(t *testing.T) {
	h := newHarness(t)
	h.CreateBlock("first commit payload")
	h.CreateBlock("second commit payload")

	resp := h.callOK(t, "DoltLog", `{}`)
	if got := respInt(t, resp, "count"); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
	commits := asSlice(t, resp["commits"])
	if respString(t, asMap(t, commits[0]), "hash") != "commit0002" {
		t.Errorf("first entry = %v, want commit0002", commits[0])
	}
	if respString(t, asMap(t, commits[1]), "hash") != "commit0001" {
		t.Errorf("second entry = %v, want commit0001", commits[1])
	}

	resp = h.callOK(t, "DoltLog", `{"limit":1}`)
	if got := respInt(t, resp, "count"); got != 1 {
		t.Errorf("limited count = %d, want 1", got)
	}

	h.callErr(t, "DoltLog", `{"limit":9999}`, "VALIDATION_ERROR")
}

func TestDoltPushPullDefaults(t *testing.T) {
	h := newHarness(t)

	resp := h.callOK(t, "DoltPush", `{}`)
	if respString(t, resp, "remote") != "origin" || respString(t, resp, "branch") != "main" {
		t.Errorf("push defaults = %v/%v", resp["remote"], resp["branch"])
	}
	if resp["pushed"] != true {
		t.Errorf("pushed = %v, want true", resp["pushed"])
	}
	if h.Store.PushCalls != 1 {
		t.Errorf("push calls = %d, want 1", h.Store.PushCalls)
	}

	resp = h.callOK(t, "DoltPull", `{"remote":"backup"}`)
	if respString(t, resp, "remote") != "backup" {
		t.Errorf("remote = %v, want backup", resp["remote"])
	}
	if resp["pulled"] != true {
		t.Errorf("pulled = %v, want true", resp["pulled"])
	}
	if h.Store.PullCalls != 1 {
		t.Errorf("pull calls = %d, want 1", h.Store.PullCalls)
	}

	h.Store.FailPush = errors.New("remote unreachable")
	resp = h.callErr(t, "DoltPush", `{}`, "PERSISTENCE_FAILURE")
	if msg := respString(t, resp, "error"); !strings.Contains(msg, "remote unreachable") {
		t.Errorf("error = %q", msg)
	}
}

func TestDoltAutoCommitAndPush(t *testing.T) {
	h := newManualHarness(t)
	h.callOK(t, "CreateMemoryBlock", `{"type":"knowledge","text":"sync me"}`)

	resp := h.callOK(t, "DoltAutoCommitAndPush", `{}`)
	if resp["committed"] != true || resp["pushed"] != true {
		t.Fatalf("sync result = %v", resp)
	}
	if got := respString(t, resp, "hash"); got != "commit0001" {
		t.Errorf("hash = %q", got)
	}
	if got := respString(t, resp, "active_branch"); got != "main" {
		t.Errorf("active_branch = %q", got)
	}
	commits := h.Store.Commits()
	if commits[len(commits)-1] != "membank auto-commit" {
		t.Errorf("commit message = %q", commits[len(commits)-1])
	}
	if h.Store.PushCalls != 1 {
		t.Errorf("push calls = %d, want 1", h.Store.PushCalls)
	}

	// Clean working set: nothing committed, nothing pushed.
	resp = h.callOK(t, "DoltAutoCommitAndPush", `{}`)
	if resp["skipped"] != true {
		t.Errorf("skipped = %v, want true", resp["skipped"])
	}
	if resp["committed"] == true || resp["pushed"] == true {
		t.Errorf("clean sync still committed/pushed: %v", resp)
	}
	if h.Store.PushCalls != 1 {
		t.Errorf("push calls after skip = %d, want 1", h.Store.PushCalls)
	}
}
