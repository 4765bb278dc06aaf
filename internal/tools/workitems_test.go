package tools_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/cognidao/membank/internal/tools"
)

func TestCreateWorkItemAndFetch(t *testing.T) {
	h := newHarness(t)
	h.CreateNamespace("legacy")

	resp := h.callOK(t, tools.ToolCreateWorkItem,
		`{"type":"task","title":"T","description":"D","namespace_id":"legacy","acceptance_criteria":["AC"]}`)
	id := respString(t, resp, "id")

	got := h.callOK(t, tools.ToolGetMemoryBlock, fmt.Sprintf(`{"block_ids":[%q]}`, id))
	block := asMap(t, asSlice(t, got["blocks"])[0])
	if block["type"] != "task" {
		t.Errorf("type = %v", block["type"])
	}
	if block["namespace_id"] != "legacy" {
		t.Errorf("namespace_id = %v", block["namespace_id"])
	}
	if block["text"] != "# T\n\nD\n" {
		t.Errorf("text = %q", block["text"])
	}

	meta := asMap(t, block["metadata"])
	if meta["title"] != "T" || meta["description"] != "D" {
		t.Errorf("metadata = %v", meta)
	}
	if meta["status"] != "backlog" {
		t.Errorf("status = %v, want backlog default", meta["status"])
	}
	if meta["priority"] != json.Number("3") {
		t.Errorf("priority = %#v, want default 3", meta["priority"])
	}
	criteria := asSlice(t, meta["acceptance_criteria"])
	if len(criteria) != 1 || criteria[0] != "AC" {
		t.Errorf("acceptance_criteria = %v", criteria)
	}
}

func TestCreateWorkItemPriorityForms(t *testing.T) {
	h := newHarness(t)

	resp := h.callOK(t, tools.ToolCreateWorkItem, `{"type":"bug","title":"crash","priority":"P1"}`)
	meta := asMap(t, asMap(t, resp["block"])["metadata"])
	if meta["priority"] != json.Number("1") {
		t.Errorf("priority = %#v, want 1", meta["priority"])
	}

	resp = h.callOK(t, tools.ToolCreateWorkItem, `{"type":"bug","title":"slow","priority":"low"}`)
	meta = asMap(t, asMap(t, resp["block"])["metadata"])
	if meta["priority"] != json.Number("5") {
		t.Errorf("priority = %#v, want 5", meta["priority"])
	}

	bad := h.callErr(t, tools.ToolCreateWorkItem,
		`{"type":"bug","title":"x","priority":"urgent"}`, "VALIDATION_ERROR")
	if !strings.Contains(respString(t, bad, "error"), "priority") {
		t.Errorf("error = %v", bad["error"])
	}
}

func TestCreateWorkItemExecutionPhaseRule(t *testing.T) {
	h := newHarness(t)

	h.callErr(t, tools.ToolCreateWorkItem,
		`{"type":"task","title":"x","execution_phase":"implement"}`, "VALIDATION_ERROR")

	resp := h.callOK(t, tools.ToolCreateWorkItem,
		`{"type":"task","title":"x","status":"in_progress","execution_phase":"implement"}`)
	meta := asMap(t, asMap(t, resp["block"])["metadata"])
	if meta["execution_phase"] != "implement" {
		t.Errorf("execution_phase = %v", meta["execution_phase"])
	}
}

func TestCreateWorkItemTerminalStatusSynthesizesReport(t *testing.T) {
	h := newHarness(t)

	resp := h.callOK(t, tools.ToolCreateWorkItem,
		`{"type":"task","title":"retro item","status":"done","acceptance_criteria":["ships","documented"]}`)
	meta := asMap(t, asMap(t, resp["block"])["metadata"])
	report := asMap(t, meta["validation_report"])
	validations := asSlice(t, report["validations"])
	if len(validations) != 2 {
		t.Fatalf("validations = %v", validations)
	}
	first := asMap(t, validations[0])
	if first["criterion"] != "ships" || first["status"] != "pass" {
		t.Errorf("validation[0] = %v", first)
	}
}

func TestCreateWorkItemSuppliedReportWins(t *testing.T) {
	h := newHarness(t)

	resp := h.callOK(t, tools.ToolCreateWorkItem, `{
		"type":"task","title":"verified item","status":"done",
		"validation_report":{"validations":[{"criterion":"manual check","status":"fail","notes":"flaky"}],"verified_by":"qa","timestamp":"2026-08-20T10:00:00Z"}
	}`)
	report := asMap(t, asMap(t, asMap(t, resp["block"])["metadata"])["validation_report"])
	validations := asSlice(t, report["validations"])
	if len(validations) != 1 || asMap(t, validations[0])["status"] != "fail" {
		t.Errorf("supplied report was replaced: %v", report)
	}
}

func TestCreateWorkItemBlockedByLinks(t *testing.T) {
	h := newHarness(t)
	dep := h.CreateBlock("the prerequisite")

	resp := h.callOK(t, tools.ToolCreateWorkItem,
		fmt.Sprintf(`{"type":"task","title":"follow-up","blocked_by":[%q]}`, dep.ID))
	links := asSlice(t, resp["links"])
	if len(links) != 1 {
		t.Fatalf("links = %v", links)
	}
	link := asMap(t, links[0])
	if link["relation"] != "depends_on" || link["to_id"] != dep.ID {
		t.Errorf("link = %v", link)
	}
}

func TestCreateWorkItemBlockedByMissingDependency(t *testing.T) {
	h := newHarness(t)

	resp := h.callErr(t, tools.ToolCreateWorkItem,
		`{"type":"task","title":"orphan dep","blocked_by":["ghost"]}`, "LINK_VALIDATION_ERROR")
	if !strings.Contains(respString(t, resp, "error"), "created, but") {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestCreateWorkItemCallerMetadataFillsGaps(t *testing.T) {
	h := newHarness(t)

	resp := h.callOK(t, tools.ToolCreateWorkItem,
		`{"type":"task","title":"real title","metadata":{"title":"impostor","sprint":"24w35"}}`)
	meta := asMap(t, asMap(t, resp["block"])["metadata"])
	if meta["title"] != "real title" {
		t.Errorf("title = %v, want the work-item field", meta["title"])
	}
	if meta["sprint"] != "24w35" {
		t.Errorf("sprint = %v", meta["sprint"])
	}
}

func TestUpdateWorkItemFoldsFields(t *testing.T) {
	h := newHarness(t)
	resp := h.callOK(t, tools.ToolCreateWorkItem,
		`{"type":"task","title":"old","description":"old body","owner":"ana"}`)
	id := respString(t, resp, "id")

	resp = h.callOK(t, tools.ToolUpdateWorkItem,
		fmt.Sprintf(`{"block_id":%q,"title":"new","status":"ready","priority":"P0"}`, id))
	if resp["status"] != "ready" {
		t.Errorf("status = %v", resp["status"])
	}
	block := asMap(t, resp["block"])
	if block["text"] != "# new\n\nold body\n" {
		t.Errorf("text = %q, want re-render with kept description", block["text"])
	}
	meta := asMap(t, block["metadata"])
	if meta["title"] != "new" || meta["priority"] != json.Number("0") {
		t.Errorf("metadata = %v", meta)
	}
	// Merge semantics: untouched keys survive.
	if meta["owner"] != "ana" {
		t.Errorf("owner = %v, want preserved", meta["owner"])
	}
}

func TestUpdateWorkItemRejectsNonWorkItem(t *testing.T) {
	h := newHarness(t)
	blk := h.CreateBlock("plain knowledge")

	resp := h.callErr(t, tools.ToolUpdateWorkItem,
		fmt.Sprintf(`{"block_id":%q,"status":"done"}`, blk.ID), "VALIDATION_ERROR")
	if !strings.Contains(respString(t, resp, "error"), "not a work item") {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestUpdateTaskStatusTerminalSynthesis(t *testing.T) {
	h := newHarness(t)
	resp := h.callOK(t, tools.ToolCreateWorkItem,
		`{"type":"task","title":"closing","acceptance_criteria":["works"]}`)
	id := respString(t, resp, "id")

	resp = h.callOK(t, tools.ToolUpdateTaskStatus,
		fmt.Sprintf(`{"block_id":%q,"status":"done","updated_by":"agent-7"}`, id))
	if resp["status"] != "done" {
		t.Errorf("status = %v", resp["status"])
	}
	meta := asMap(t, asMap(t, resp["block"])["metadata"])
	report := asMap(t, meta["validation_report"])
	if report["verified_by"] != "agent-7" {
		t.Errorf("verified_by = %v", report["verified_by"])
	}
	validations := asSlice(t, report["validations"])
	if len(validations) != 1 || asMap(t, validations[0])["criterion"] != "works" {
		t.Errorf("validations = %v", validations)
	}
}

func TestUpdateTaskStatusKeepsStoredReport(t *testing.T) {
	h := newHarness(t)
	resp := h.callOK(t, tools.ToolCreateWorkItem, `{"type":"task","title":"audited"}`)
	id := respString(t, resp, "id")

	h.callOK(t, tools.ToolAddValidationReport, fmt.Sprintf(
		`{"block_id":%q,"validations":[{"criterion":"reviewed","status":"fail","notes":"needs rework"}],"verified_by":"qa"}`, id))

	resp = h.callOK(t, tools.ToolUpdateTaskStatus, fmt.Sprintf(`{"block_id":%q,"status":"done"}`, id))
	report := asMap(t, asMap(t, asMap(t, resp["block"])["metadata"])["validation_report"])
	validations := asSlice(t, report["validations"])
	if len(validations) != 1 || asMap(t, validations[0])["status"] != "fail" {
		t.Errorf("stored report was overwritten: %v", report)
	}
}

func TestUpdateTaskStatusPhaseRule(t *testing.T) {
	h := newHarness(t)
	resp := h.callOK(t, tools.ToolCreateWorkItem, `{"type":"task","title":"phased"}`)
	id := respString(t, resp, "id")

	h.callErr(t, tools.ToolUpdateTaskStatus,
		fmt.Sprintf(`{"block_id":%q,"status":"review","execution_phase":"verify"}`, id),
		"VALIDATION_ERROR")

	resp = h.callOK(t, tools.ToolUpdateTaskStatus,
		fmt.Sprintf(`{"block_id":%q,"status":"in_progress","execution_phase":"verify"}`, id))
	meta := asMap(t, asMap(t, resp["block"])["metadata"])
	if meta["execution_phase"] != "verify" {
		t.Errorf("execution_phase = %v", meta["execution_phase"])
	}
}

func TestAddValidationReport(t *testing.T) {
	h := newHarness(t)
	resp := h.callOK(t, tools.ToolCreateWorkItem, `{"type":"bug","title":"flaky test"}`)
	id := respString(t, resp, "id")

	resp = h.callOK(t, tools.ToolAddValidationReport, fmt.Sprintf(`{
		"block_id":%q,
		"validations":[{"criterion":"repro gone","status":"pass"},{"criterion":"regression test","status":"fail"}],
		"verified_by":"qa"
	}`, id))
	if resp["all_passed"] != false {
		t.Errorf("all_passed = %v", resp["all_passed"])
	}
	if v := respInt(t, resp, "block_version"); v != 2 {
		t.Errorf("block_version = %d", v)
	}

	h.callErr(t, tools.ToolAddValidationReport,
		fmt.Sprintf(`{"block_id":%q,"validations":[]}`, id), "VALIDATION_ERROR")
	h.callErr(t, tools.ToolAddValidationReport,
		fmt.Sprintf(`{"block_id":%q,"validations":[{"criterion":"x","status":"maybe"}]}`, id),
		"VALIDATION_ERROR")
}

func TestGetActiveWorkItems(t *testing.T) {
	h := newHarness(t)
	h.callOK(t, tools.ToolCreateWorkItem, `{"type":"task","title":"urgent","priority":"P0"}`)
	h.callOK(t, tools.ToolCreateWorkItem, `{"type":"task","title":"shipped","status":"done"}`)
	h.callOK(t, tools.ToolCreateWorkItem, `{"type":"bug","title":"sev2","priority":"P1"}`)

	resp := h.callOK(t, tools.ToolGetActiveWorkItems, `{}`)
	if n := respInt(t, resp, "count"); n != 2 {
		t.Fatalf("count = %d, want done item excluded", n)
	}
	items := asSlice(t, resp["work_items"])
	firstMeta := asMap(t, asMap(t, items[0])["metadata"])
	if firstMeta["title"] != "urgent" {
		t.Errorf("first item = %v, want P0 first", firstMeta["title"])
	}

	resp = h.callOK(t, tools.ToolGetActiveWorkItems, `{"type":"bug"}`)
	if n := respInt(t, resp, "count"); n != 1 {
		t.Errorf("bug count = %d", n)
	}

	resp = h.callOK(t, tools.ToolGetActiveWorkItems, `{"limit":1}`)
	if n := respInt(t, resp, "count"); n != 1 {
		t.Errorf("limited count = %d", n)
	}
}
