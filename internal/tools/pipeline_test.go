package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/cognidao/membank/internal/memorybank"
	"github.com/cognidao/membank/internal/testutil/testbank"
	"github.com/cognidao/membank/internal/tools"
)

// harness pairs a bank test environment with an executor over the
// builtin tool registry.
type harness struct {
	*testbank.Env
	Exec *tools.Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	env := testbank.New(t)
	return &harness{Env: env, Exec: tools.NewExecutor(tools.Builtin(), env.Bank)}
}

func (h *harness) call(t *testing.T, tool, input string) map[string]any {
	t.Helper()
	return h.Exec.Execute(h.Ctx, tool, json.RawMessage(input))
}

// callOK runs a tool and fails the test unless the envelope reports
// success.
func (h *harness) callOK(t *testing.T, tool, input string) map[string]any {
	t.Helper()
	resp := h.call(t, tool, input)
	if resp["success"] != true {
		t.Fatalf("%s failed: %v (code %v)", tool, resp["error"], resp["error_code"])
	}
	return resp
}

// callErr runs a tool and fails the test unless the envelope reports
// the given error code.
func (h *harness) callErr(t *testing.T, tool, input, wantCode string) map[string]any {
	t.Helper()
	resp := h.call(t, tool, input)
	if resp["success"] != false {
		t.Fatalf("%s succeeded, want error %s", tool, wantCode)
	}
	if resp["error_code"] != wantCode {
		t.Fatalf("%s error_code = %v (%v), want %s", tool, resp["error_code"], resp["error"], wantCode)
	}
	return resp
}

func respString(t *testing.T, resp map[string]any, key string) string {
	t.Helper()
	s, ok := resp[key].(string)
	if !ok {
		t.Fatalf("%s = %#v, want string", key, resp[key])
	}
	return s
}

func respInt(t *testing.T, resp map[string]any, key string) int64 {
	t.Helper()
	switch v := resp[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			t.Fatalf("%s = %v: %v", key, v, err)
		}
		return n
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		t.Fatalf("%s = %#v, want number", key, resp[key])
		return 0
	}
}

func asMap(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("got %#v, want object", v)
	}
	return m
}

func asSlice(t *testing.T, v any) []any {
	t.Helper()
	s, ok := v.([]any)
	if !ok {
		t.Fatalf("got %#v, want array", v)
	}
	return s
}

// wrapJSON string-encodes a document n times, the way agent frameworks
// over-serialize tool arguments.
func wrapJSON(t *testing.T, doc string, n int) string {
	t.Helper()
	out := doc
	for i := 0; i < n; i++ {
		raw, err := json.Marshal(out)
		if err != nil {
			t.Fatalf("wrap level %d: %v", i+1, err)
		}
		out = string(raw)
	}
	return out
}

func TestExecuteEnvelopeShape(t *testing.T) {
	h := newHarness(t)

	resp := h.callOK(t, tools.ToolCreateMemoryBlock, `{"type":"knowledge","text":"the deploy runbook"}`)

	if id := respString(t, resp, "id"); id == "" {
		t.Error("id is empty")
	}
	ts := respString(t, resp, "timestamp")
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		t.Fatalf("timestamp %q does not parse: %v", ts, err)
	}
	if parsed.Location() != time.UTC && !strings.HasSuffix(ts, "Z") {
		t.Errorf("timestamp %q is not UTC", ts)
	}
	if ms := respInt(t, resp, "duration_ms"); ms < 0 {
		t.Errorf("duration_ms = %d", ms)
	}
	if branch := respString(t, resp, "active_branch"); branch != "main" {
		t.Errorf("active_branch = %q, want main", branch)
	}

	block := asMap(t, resp["block"])
	if block["text"] != "the deploy runbook" {
		t.Errorf("block.text = %v", block["text"])
	}
	if block["block_version"] != json.Number("1") {
		t.Errorf("block.block_version = %#v, want 1", block["block_version"])
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	h := newHarness(t)

	resp := h.callErr(t, "NoSuchTool", `{}`, "VALIDATION_ERROR")
	if !strings.Contains(respString(t, resp, "error"), "unknown tool") {
		t.Errorf("error = %v", resp["error"])
	}
	if _, ok := resp["active_branch"]; ok {
		t.Error("unknown tool should not report active_branch")
	}
}

func TestExecuteValidationUsesWireFieldNames(t *testing.T) {
	h := newHarness(t)

	resp := h.callErr(t, tools.ToolCreateMemoryBlock, `{"text":"no type"}`, "VALIDATION_ERROR")
	if msg := respString(t, resp, "error"); !strings.Contains(msg, "type is required") {
		t.Errorf("error = %q, want mention of wire field name", msg)
	}

	resp = h.callErr(t, tools.ToolCreateMemoryBlock, `{"type":"sandwich","text":"x"}`, "VALIDATION_ERROR")
	if msg := respString(t, resp, "error"); !strings.Contains(msg, "type must be one of") {
		t.Errorf("error = %q", msg)
	}
}

func TestExecuteDoubleSerializedInput(t *testing.T) {
	h := newHarness(t)

	doc := `{"type":"knowledge","text":"wrapped twice"}`
	resp := h.callOK(t, tools.ToolCreateMemoryBlock, wrapJSON(t, doc, 2))

	got, err := h.Bank.GetMemoryBlock(h.Ctx, respString(t, resp, "id"))
	if err != nil {
		t.Fatalf("GetMemoryBlock: %v", err)
	}
	if got.Text != "wrapped twice" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestExecuteOverSerializedInputRejected(t *testing.T) {
	h := newHarness(t)

	doc := `{"type":"knowledge","text":"wrapped thrice"}`
	resp := h.callErr(t, tools.ToolCreateMemoryBlock, wrapJSON(t, doc, 3), "VALIDATION_ERROR")
	if !strings.Contains(respString(t, resp, "error"), "maximum nesting depth") {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestNamespaceInjectionUsesCurrentContext(t *testing.T) {
	h := newHarness(t)
	h.CreateNamespace("legacy")

	h.callOK(t, tools.ToolSetContext, `{"namespace_id":"legacy"}`)

	resp := h.callOK(t, tools.ToolCreateMemoryBlock, `{"type":"knowledge","text":"belongs to legacy"}`)
	got, err := h.Bank.GetMemoryBlock(h.Ctx, respString(t, resp, "id"))
	if err != nil {
		t.Fatalf("GetMemoryBlock: %v", err)
	}
	if got.NamespaceID != "legacy" {
		t.Errorf("NamespaceID = %q, want legacy", got.NamespaceID)
	}
}

func TestNamespaceExplicitValueWins(t *testing.T) {
	h := newHarness(t)
	h.CreateNamespace("legacy")
	h.callOK(t, tools.ToolSetContext, `{"namespace_id":"legacy"}`)

	resp := h.callOK(t, tools.ToolCreateMemoryBlock, `{"type":"knowledge","text":"pinned","namespace_id":"default"}`)
	got, err := h.Bank.GetMemoryBlock(h.Ctx, respString(t, resp, "id"))
	if err != nil {
		t.Fatalf("GetMemoryBlock: %v", err)
	}
	if got.NamespaceID != "default" {
		t.Errorf("NamespaceID = %q, want default", got.NamespaceID)
	}
}

func TestSetContextUnknownNamespace(t *testing.T) {
	h := newHarness(t)
	h.callErr(t, tools.ToolSetContext, `{"namespace_id":"ghost"}`, "NAMESPACE_NOT_FOUND")
}

func TestGlobalSemanticSearchSpansNamespaces(t *testing.T) {
	h := newHarness(t)
	h.CreateNamespace("legacy")

	h.callOK(t, tools.ToolCreateMemoryBlock, `{"type":"knowledge","text":"rotation procedure for api keys","namespace_id":"default"}`)
	h.callOK(t, tools.ToolCreateMemoryBlock, `{"type":"knowledge","text":"rotation procedure for ssh keys","namespace_id":"legacy"}`)

	// No namespace filter: the global tool must not have the current
	// namespace injected.
	resp := h.callOK(t, tools.ToolGlobalSemanticSearch, `{"query":"rotation procedure"}`)
	if n := respInt(t, resp, "count"); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	seen := map[string]bool{}
	for _, hit := range asSlice(t, resp["results"]) {
		block := asMap(t, asMap(t, hit)["block"])
		seen[respString(t, block, "namespace_id")] = true
	}
	if !seen["default"] || !seen["legacy"] {
		t.Errorf("namespaces seen = %v, want both", seen)
	}
}

func TestExecutePanicBecomesInternalError(t *testing.T) {
	env := testbank.New(t)
	reg := tools.NewRegistry()
	err := reg.Register(&tools.CogniTool{
		Name:      "Boom",
		InputType: reflect.TypeOf(struct{}{}),
		Func: func(context.Context, *memorybank.Bank, any) (any, error) {
			panic("kaboom")
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	ex := tools.NewExecutor(reg, env.Bank)
	resp := ex.Execute(env.Ctx, "Boom", json.RawMessage(`{}`))
	if resp["success"] != false {
		t.Fatal("panic should fail the call")
	}
	if resp["error_code"] != "INTERNAL_ERROR" {
		t.Errorf("error_code = %v", resp["error_code"])
	}
	if !strings.Contains(respString(t, resp, "error"), "kaboom") {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestExecuteRawAlwaysReturnsJSON(t *testing.T) {
	h := newHarness(t)

	raw := h.Exec.ExecuteRaw(h.Ctx, tools.ToolHealthCheck, nil)
	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if resp["success"] != true {
		t.Fatalf("health check failed: %v", resp["error"])
	}
	if resp["healthy"] != true {
		t.Errorf("healthy = %v", resp["healthy"])
	}
}

func TestCommitRollbackFailureFlagsInconsistency(t *testing.T) {
	h := newHarness(t)
	h.Store.FailCommit = errors.New("commit refused")
	h.Store.FailDiscard = errors.New("discard refused")

	resp := h.callErr(t, tools.ToolCreateMemoryBlock, `{"type":"knowledge","text":"doomed"}`, "COMMIT_FAILED")
	if resp["state_inconsistent"] != true {
		t.Errorf("state_inconsistent = %v, want true", resp["state_inconsistent"])
	}
}

func TestActiveBranchTracksCheckout(t *testing.T) {
	h := newHarness(t)

	resp := h.callOK(t, tools.ToolDoltCheckout, `{"branch":"feature/ideas","create":true}`)
	if branch := respString(t, resp, "active_branch"); branch != "feature/ideas" {
		t.Errorf("active_branch = %q, want feature/ideas", branch)
	}

	resp = h.callOK(t, tools.ToolDoltStatus, `{}`)
	if branch := respString(t, resp, "branch"); branch != "feature/ideas" {
		t.Errorf("status branch = %q", branch)
	}
}
