package tools_test

import (
	"strings"
	"testing"
)

func TestGlobalMemoryInventory(t *testing.T) {
	h := newHarness(t)
	h.callOK(t, "CreateNamespace", `{"id":"archive"}`)
	h.CreateBlock("postgres tuning notes")
	h.CreateBlock("redis eviction policy")
	h.callOK(t, "CreateDocMemoryBlock", `{"title":"Runbook","content":"restart the ingest worker","namespace_id":"archive"}`)
	h.callOK(t, "CreateWorkItem", `{"title":"Rotate credentials"}`)

	// Narrowing the session context must not narrow the inventory.
	h.callOK(t, "SetContext", `{"namespace_id":"archive"}`)

	resp := h.callOK(t, "GlobalMemoryInventory", `{}`)
	if got := respInt(t, resp, "total"); got != 4 {
		t.Fatalf("total = %d, want 4", got)
	}
	byType := asMap(t, resp["by_type"])
	if respInt(t, byType, "knowledge") != 2 || respInt(t, byType, "doc") != 1 || respInt(t, byType, "task") != 1 {
		t.Errorf("by_type = %v", byType)
	}
	byNS := asMap(t, resp["by_namespace"])
	if respInt(t, byNS, "legacy") != 3 || respInt(t, byNS, "archive") != 1 {
		t.Errorf("by_namespace = %v", byNS)
	}

	resp = h.callOK(t, "GlobalMemoryInventory", `{"namespace_id":"archive"}`)
	if got := respInt(t, resp, "total"); got != 1 {
		t.Errorf("archive total = %d, want 1", got)
	}

	resp = h.callOK(t, "GlobalMemoryInventory", `{"type":"doc"}`)
	if got := respInt(t, resp, "total"); got != 1 {
		t.Errorf("doc total = %d, want 1", got)
	}

	h.callErr(t, "GlobalMemoryInventory", `{"type":"sonnet"}`, "VALIDATION_ERROR")
}

func TestGlobalMemoryInventoryTimeWindow(t *testing.T) {
	h := newHarness(t)
	h.CreateBlock("windowed entry")

	resp := h.callOK(t, "GlobalMemoryInventory", `{"created_after":"2999-01-01T00:00:00Z"}`)
	if got := respInt(t, resp, "total"); got != 0 {
		t.Errorf("future window total = %d, want 0", got)
	}

	resp = h.callOK(t, "GlobalMemoryInventory", `{"created_before":"2999-01-01T00:00:00Z"}`)
	if got := respInt(t, resp, "total"); got != 1 {
		t.Errorf("past window total = %d, want 1", got)
	}
}

func TestCreateDocMemoryBlock(t *testing.T) {
	h := newHarness(t)

	resp := h.callErr(t, "CreateDocMemoryBlock", `{"content":"orphan body"}`, "VALIDATION_ERROR")
	if msg := respString(t, resp, "error"); !strings.Contains(msg, "title is required") {
		t.Errorf("error = %q", msg)
	}
	resp = h.callErr(t, "CreateDocMemoryBlock", `{"title":"Untitled"}`, "VALIDATION_ERROR")
	if msg := respString(t, resp, "error"); !strings.Contains(msg, "content is required") {
		t.Errorf("error = %q", msg)
	}

	resp = h.callOK(t, "CreateDocMemoryBlock", `{"title":"Setup Guide","content":"Install the daemon first.","source_file":"docs/setup.md","tags":["onboarding"]}`)
	block := asMap(t, resp["block"])
	if got := respString(t, block, "type"); got != "doc" {
		t.Errorf("type = %q, want doc", got)
	}
	if got := respString(t, block, "text"); got != "Install the daemon first." {
		t.Errorf("text = %q", got)
	}
	if got := respString(t, block, "namespace_id"); got != "legacy" {
		t.Errorf("namespace_id = %q, want legacy", got)
	}
	if got := respString(t, block, "source_file"); got != "docs/setup.md" {
		t.Errorf("source_file = %q", got)
	}
	md := asMap(t, block["metadata"])
	if got := respString(t, md, "title"); got != "Setup Guide" {
		t.Errorf("metadata title = %q", got)
	}
	if respString(t, resp, "id") != respString(t, block, "id") {
		t.Error("top-level id does not match block id")
	}
}

func TestQueryDocMemoryBlockOnlyReturnsDocs(t *testing.T) {
	h := newHarness(t)
	h.CreateBlock("deployment guide for the edge fleet")
	h.callOK(t, "CreateDocMemoryBlock", `{"title":"Deploy Guide","content":"deployment guide for the edge fleet"}`)

	resp := h.callOK(t, "QueryDocMemoryBlock", `{"query":"deployment guide","top_k":5}`)
	if got := respInt(t, resp, "count"); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	hit := asMap(t, asSlice(t, resp["docs"])[0])
	block := asMap(t, hit["block"])
	if got := respString(t, block, "type"); got != "doc" {
		t.Errorf("hit type = %q, want doc", got)
	}
	if _, ok := hit["score"]; !ok {
		t.Error("hit missing score")
	}

	h.callErr(t, "QueryDocMemoryBlock", `{}`, "VALIDATION_ERROR")
}

func TestCreateNamespaceDefaults(t *testing.T) {
	h := newHarness(t)

	resp := h.callOK(t, "CreateNamespace", `{"id":"reports"}`)
	ns := asMap(t, resp["namespace"])
	if respString(t, ns, "id") != "reports" || respString(t, ns, "name") != "reports" || respString(t, ns, "slug") != "reports" {
		t.Errorf("namespace = %v", ns)
	}
	if ns["is_active"] != true {
		t.Errorf("is_active = %v, want true", ns["is_active"])
	}

	resp = h.callOK(t, "ListNamespaces", `{}`)
	if got := respInt(t, resp, "count"); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
	var ids []string
	for _, raw := range asSlice(t, resp["namespaces"]) {
		ids = append(ids, respString(t, asMap(t, raw), "id"))
	}
	if ids[0] != "legacy" || ids[1] != "reports" {
		t.Errorf("namespace ids = %v", ids)
	}

	resp = h.callErr(t, "CreateNamespace", `{"id":"reports"}`, "VALIDATION_ERROR")
	if msg := respString(t, resp, "error"); !strings.Contains(msg, "already exists") {
		t.Errorf("error = %q", msg)
	}
	h.callErr(t, "CreateNamespace", `{}`, "VALIDATION_ERROR")
}

func TestLogInteractionBlock(t *testing.T) {
	h := newHarness(t)

	h.callErr(t, "LogInteractionBlock", `{}`, "VALIDATION_ERROR")

	resp := h.callOK(t, "LogInteractionBlock", `{"model_input":"What is the deploy cadence?","model_output":"Weekly on Tuesdays.","session_id":"sess-42","metadata":{"channel":"cli","model_input":"spoofed"},"tags":["ops"],"created_by":"agent-7"}`)
	block := asMap(t, resp["block"])
	if got := respString(t, block, "type"); got != "interaction" {
		t.Errorf("type = %q, want interaction", got)
	}
	wantText := "## Input\n\nWhat is the deploy cadence?\n\n## Output\n\nWeekly on Tuesdays.\n"
	if got := respString(t, block, "text"); got != wantText {
		t.Errorf("text = %q, want %q", got, wantText)
	}
	md := asMap(t, block["metadata"])
	if got := respString(t, md, "model_input"); got != "What is the deploy cadence?" {
		t.Errorf("model_input = %q (caller metadata must not shadow it)", got)
	}
	if respString(t, md, "model_output") != "Weekly on Tuesdays." || respString(t, md, "session_id") != "sess-42" {
		t.Errorf("metadata = %v", md)
	}
	if got := respString(t, md, "channel"); got != "cli" {
		t.Errorf("channel = %q, want cli", got)
	}
	if got := respString(t, block, "created_by"); got != "agent-7" {
		t.Errorf("created_by = %q", got)
	}

	resp = h.callOK(t, "LogInteractionBlock", `{"model_input":"hello"}`)
	block = asMap(t, resp["block"])
	if got := respString(t, block, "text"); got != "## Input\n\nhello\n" {
		t.Errorf("input-only text = %q", got)
	}
	md = asMap(t, block["metadata"])
	if _, ok := md["model_output"]; ok {
		t.Error("model_output recorded for input-only interaction")
	}
}
