// Package tools defines the memory-bank tool surface: declarative
// CogniTool descriptors, a registry, and the invocation pipeline that
// normalizes input, injects the current namespace, validates against
// the tool's input model, executes, and serializes a response envelope.
//
// Every registered tool becomes one RPC endpoint. The envelope shape is
// uniform: {success, error?, error_code?, timestamp, duration_ms,
// active_branch?, ...tool fields}. No panic or unclassified error
// escapes the pipeline.
package tools

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/cognidao/membank/internal/memorybank"
)

// Tool names, one per registered endpoint.
const (
	ToolCreateMemoryBlock = "CreateMemoryBlock"
	ToolGetMemoryBlock    = "GetMemoryBlock"
	ToolUpdateMemoryBlock = "UpdateMemoryBlock"
	ToolDeleteMemoryBlock = "DeleteMemoryBlock"

	ToolCreateWorkItem      = "CreateWorkItem"
	ToolUpdateWorkItem      = "UpdateWorkItem"
	ToolUpdateTaskStatus    = "UpdateTaskStatus"
	ToolAddValidationReport = "AddValidationReport"
	ToolGetActiveWorkItems  = "GetActiveWorkItems"

	ToolCreateDocMemoryBlock = "CreateDocMemoryBlock"
	ToolQueryDocMemoryBlock  = "QueryDocMemoryBlock"

	ToolCreateBlockLink = "CreateBlockLink"
	ToolGetMemoryLinks  = "GetMemoryLinks"
	ToolGetLinkedBlocks = "GetLinkedBlocks"

	ToolBulkCreateBlocks    = "BulkCreateBlocks"
	ToolBulkCreateLinks     = "BulkCreateLinks"
	ToolBulkDeleteBlocks    = "BulkDeleteBlocks"
	ToolBulkUpdateNamespace = "BulkUpdateNamespace"

	ToolCreateNamespace = "CreateNamespace"
	ToolListNamespaces  = "ListNamespaces"

	ToolGlobalMemoryInventory = "GlobalMemoryInventory"
	ToolGlobalSemanticSearch  = "GlobalSemanticSearch"
	ToolSetContext            = "SetContext"
	ToolLogInteractionBlock   = "LogInteractionBlock"

	ToolDoltCommit            = "DoltCommit"
	ToolDoltAdd               = "DoltAdd"
	ToolDoltReset             = "DoltReset"
	ToolDoltStatus            = "DoltStatus"
	ToolDoltCheckout          = "DoltCheckout"
	ToolDoltBranch            = "DoltBranch"
	ToolDoltListBranches      = "DoltListBranches"
	ToolDoltPush              = "DoltPush"
	ToolDoltPull              = "DoltPull"
	ToolDoltMerge             = "DoltMerge"
	ToolDoltDiff              = "DoltDiff"
	ToolDoltLog               = "DoltLog"
	ToolDoltAutoCommitAndPush = "DoltAutoCommitAndPush"

	ToolHealthCheck = "HealthCheck"
)

// ToolFunc executes a tool against its decoded input. For memory-linked
// tools the bank is non-nil; input is a pointer to the tool's InputType.
type ToolFunc func(ctx context.Context, bank *memorybank.Bank, input any) (any, error)

// CogniTool describes one tool endpoint. Descriptors are declared as
// package data and registered in bulk; the pipeline derives everything
// else (input decoding, namespace injection, validation) from the
// descriptor.
type CogniTool struct {
	Name        string
	Description string

	// InputType is the tool's input model struct (not a pointer). The
	// pipeline allocates a fresh value per invocation.
	InputType reflect.Type

	// MemoryLinked tools receive the bank and report active_branch in
	// their envelope.
	MemoryLinked bool

	// SkipInject exempts a tool from namespace injection even when its
	// input model declares namespace_id (global-scope tools).
	SkipInject bool

	// ListField names the input field a bare top-level JSON array is
	// wrapped under. Empty means top-level arrays are rejected.
	ListField string

	Func ToolFunc

	injectNamespace bool
}

// Registry holds registered tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*CogniTool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*CogniTool)}
}

// Register adds a tool, rejecting duplicates and malformed descriptors.
func (r *Registry) Register(t *CogniTool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tool descriptor missing a name")
	}
	if t.Func == nil {
		return fmt.Errorf("tool %s has no function", t.Name)
	}
	if t.InputType == nil || t.InputType.Kind() != reflect.Struct {
		return fmt.Errorf("tool %s input type must be a struct", t.Name)
	}
	t.injectNamespace = t.MemoryLinked && !t.SkipInject && hasJSONField(t.InputType, "namespace_id")

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s registered twice", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (*CogniTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the registered descriptors in name order.
func (r *Registry) Tools() []*CogniTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*CogniTool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Builtin returns a registry holding every tool this package declares.
func Builtin() *Registry {
	r := NewRegistry()
	groups := [][]*CogniTool{
		blockTools(),
		workItemTools(),
		docTools(),
		linkTools(),
		bulkTools(),
		namespaceTools(),
		globalTools(),
		branchTools(),
		systemTools(),
	}
	for _, group := range groups {
		for _, t := range group {
			if err := r.Register(t); err != nil {
				panic(fmt.Sprintf("tools: %v", err))
			}
		}
	}
	return r
}

// hasJSONField reports whether the struct declares a field with the
// given json tag name at the top level.
func hasJSONField(t reflect.Type, name string) bool {
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" {
			continue
		}
		if strings.SplitN(tag, ",", 2)[0] == name {
			return true
		}
	}
	return false
}
