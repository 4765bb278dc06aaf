package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	rtdebug "runtime/debug"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cognidao/membank/internal/debug"
	"github.com/cognidao/membank/internal/memorybank"
)

var validate = newValidator()

// newValidator builds the shared validator, reporting field names by
// their json tags so envelope messages match the wire field names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// selfValidator lets an input model add cross-field checks the tag
// language cannot express. Failures surface as VALIDATION_ERROR.
type selfValidator interface {
	validateInput() error
}

// Executor runs tool invocations through the full pipeline:
// normalize, inject namespace, validate, execute, serialize.
type Executor struct {
	reg  *Registry
	bank *memorybank.Bank
	now  func() time.Time
}

// NewExecutor wires a registry to a bank.
func NewExecutor(reg *Registry, bank *memorybank.Bank) *Executor {
	return &Executor{reg: reg, bank: bank, now: time.Now}
}

// Registry exposes the executor's tool registry.
func (e *Executor) Registry() *Registry { return e.reg }

// Execute runs one tool invocation and always returns a complete
// response envelope; errors and panics are folded into it.
func (e *Executor) Execute(ctx context.Context, name string, raw json.RawMessage) (env map[string]any) {
	started := time.Now()
	tool, ok := e.reg.Get(name)
	if !ok {
		return e.failure(ctx, nil, started, invalidf("unknown tool: %s", name), CodeValidationError)
	}

	defer func() {
		if r := recover(); r != nil {
			debug.Logf("tools: panic in %s: %v\n%s\n", name, r, rtdebug.Stack())
			env = e.failure(ctx, tool, started, fmt.Errorf("internal error: %v", r), CodeInternalError)
		}
	}()

	input, err := e.prepare(tool, raw)
	if err != nil {
		return e.failure(ctx, tool, started, err, CodeValidationError)
	}

	out, err := tool.Func(ctx, e.bank, input)
	if err != nil {
		return e.failure(ctx, tool, started, err, CodePersistenceFailure)
	}

	env = e.envelope(ctx, tool, started)
	env["success"] = true
	if out != nil {
		fields, mErr := envelopeFields(out)
		if mErr != nil {
			return e.failure(ctx, tool, started, fmt.Errorf("serialize %s result: %w", name, mErr), CodeInternalError)
		}
		for k, v := range fields {
			env[k] = v
		}
	}
	return env
}

// ExecuteRaw runs a tool and marshals the envelope for transport.
func (e *Executor) ExecuteRaw(ctx context.Context, name string, raw json.RawMessage) json.RawMessage {
	env := e.Execute(ctx, name, raw)
	data, err := json.Marshal(env)
	if err != nil {
		// The envelope is built from JSON-safe values; this is a bug.
		fallback := fmt.Sprintf(`{"success":false,"error":"serialize envelope: %s","error_code":%q}`, err, CodeInternalError)
		return json.RawMessage(fallback)
	}
	return data
}

// prepare takes the raw payload through normalize, namespace
// injection, decode, and validation.
func (e *Executor) prepare(tool *CogniTool, raw json.RawMessage) (any, error) {
	value, err := normalizeInput(raw)
	if err != nil {
		return nil, err
	}
	m, err := inputMap(tool, value)
	if err != nil {
		return nil, err
	}

	if tool.injectNamespace && e.bank != nil {
		if namespaceMissing(m) {
			copied := make(map[string]any, len(m)+1)
			for k, v := range m {
				copied[k] = v
			}
			copied["namespace_id"] = e.bank.Namespace()
			m = copied
		}
	}

	input, err := decodeInput(tool, m)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(input); err != nil {
		return nil, invalidf("%s", formatValidationError(err))
	}
	if sv, ok := input.(selfValidator); ok {
		if err := sv.validateInput(); err != nil {
			if _, isTyped := err.(*inputError); isTyped {
				return nil, err
			}
			return nil, invalidf("%s", err)
		}
	}
	return input, nil
}

func namespaceMissing(m map[string]any) bool {
	v, ok := m["namespace_id"]
	if !ok || v == nil {
		return true
	}
	s, isString := v.(string)
	return isString && s == ""
}

// envelope builds the shared response fields every tool reply carries.
func (e *Executor) envelope(ctx context.Context, tool *CogniTool, started time.Time) map[string]any {
	env := map[string]any{
		"timestamp":   e.now().UTC().Format(time.RFC3339Nano),
		"duration_ms": time.Since(started).Milliseconds(),
	}
	if tool != nil && tool.MemoryLinked && e.bank != nil {
		env["active_branch"] = e.bank.CurrentBranch(ctx)
	}
	return env
}

func (e *Executor) failure(ctx context.Context, tool *CogniTool, started time.Time, err error, fallback string) map[string]any {
	env := e.envelope(ctx, tool, started)
	env["success"] = false
	env["error"] = err.Error()
	code, extra := classify(err, fallback)
	env["error_code"] = code
	for k, v := range extra {
		env[k] = v
	}
	if memorybank.StateInconsistent(err) {
		env["state_inconsistent"] = true
	}
	return env
}

// envelopeFields flattens a tool result into envelope keys. Numbers
// are decoded as json.Number so typed metadata literals survive the
// trip back onto the wire.
func envelopeFields(out any) (map[string]any, error) {
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("tool result is not an object: %w", err)
	}
	return fields, nil
}

// formatValidationError renders validator failures field by field.
func formatValidationError(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, formatFieldError(fe))
	}
	return strings.Join(parts, "; ")
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
