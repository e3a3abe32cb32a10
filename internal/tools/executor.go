// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools exposes the sandboxed capabilities an agent may call.
// executor.go dispatches calls, bounds them in time and keeps their history.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/rigtools/internal/logging"
)

// =============================================================================
// EXECUTION RECORD
// =============================================================================

// ExecutionRecord tracks the result of a tool execution for audit purposes.
type ExecutionRecord struct {
	// CallID identifies the call across logs and the audit trail
	CallID string

	// ToolName is the name of the executed tool
	ToolName string

	// Params are the parameters passed to the tool
	Params map[string]interface{}

	// Result is the outcome of the execution
	Result Result

	// Timestamp is when the execution started
	Timestamp time.Time

	// Duration is how long the execution took
	Duration time.Duration
}

// Recorder receives every finished call, after it is added to the history.
type Recorder interface {
	RecordCall(rec ExecutionRecord)
}

// =============================================================================
// EXECUTOR
// =============================================================================

// DefaultToolTimeout is applied when the caller's context has no deadline.
// It outlasts ShellTimeout and SearchTimeout so a hung process is reported
// by the tool that ran it, with that tool's limit.
const DefaultToolTimeout = ShellTimeout + toolDeadlineGrace

// toolDeadlineGrace is how long the executor waits past the tool limits.
const toolDeadlineGrace = 5 * time.Second

// maxHistorySize bounds the in-memory history.
const maxHistorySize = 1000

// Executor dispatches tool calls and records them.
type Executor struct {
	registry *Registry
	recorder Recorder
	history  []ExecutionRecord
	mu       sync.Mutex
}

// NewExecutor creates a new tool executor with the given registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		history:  make([]ExecutionRecord, 0),
	}
}

// SetRecorder installs the audit recorder. Nil disables recording.
func (e *Executor) SetRecorder(r Recorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder = r
}

// Registry returns the tool registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// History returns a copy of the execution history.
func (e *Executor) History() []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make([]ExecutionRecord, len(e.history))
	copy(result, e.history)
	return result
}

// ClearHistory clears the execution history.
func (e *Executor) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = make([]ExecutionRecord, 0)
}

// =============================================================================
// EXECUTION
// =============================================================================

// Call runs the named tool with decoded JSON parameters. The returned error is
// the typed failure; Result carries its message and class as well.
func (e *Executor) Call(ctx context.Context, name string, params map[string]interface{}) (Result, error) {
	return e.execute(ctx, ToolCall{ID: uuid.NewString(), Name: name, Params: params})
}

// CallJSON decodes raw as a JSON object and runs the named tool.
func (e *Executor) CallJSON(ctx context.Context, name string, raw []byte) (Result, error) {
	params, err := DecodeParams(raw)
	if err != nil {
		start := time.Now()
		return e.finish(ToolCall{ID: uuid.NewString(), Name: name}, start, Result{}, err)
	}
	return e.Call(ctx, name, params)
}

// Execute runs a tool call and returns only the result.
func (e *Executor) Execute(ctx context.Context, call ToolCall) Result {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	result, _ := e.execute(ctx, call)
	return result
}

func (e *Executor) execute(ctx context.Context, call ToolCall) (Result, error) {
	start := time.Now()

	tool, err := e.registry.Lookup(call.Name)
	if err != nil {
		return e.finish(call, start, Result{}, err)
	}

	if err := ValidateToolArgs(&tool.Schema, call.Params); err != nil {
		return e.finish(call, start, Result{}, err)
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultToolTimeout)
		defer cancel()
		deadline = start.Add(DefaultToolTimeout)
	}

	logging.Debug().
		Add(logging.CallID(call.ID)).
		Add(logging.ToolName(call.Name)).
		Msg("executing tool")

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := tool.Executor.Execute(ctx, call.Params)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return e.finish(call, start, o.result, o.err)
	case <-ctx.Done():
		return e.finish(call, start, Result{}, deadlineError(call.Name, deadline.Sub(start), ctx.Err()))
	}
}

// deadlineError reports a call abandoned because ctx ended. An expired
// deadline is a timeout carrying the budget the call had.
func deadlineError(name string, budget time.Duration, ctxErr error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return &TimeoutError{Op: name, Timeout: budget, Err: ctxErr}
	}
	return &IOError{Op: name, Err: ctxErr}
}

// finish fills in the failure fields, logs, and records the call.
func (e *Executor) finish(call ToolCall, start time.Time, result Result, err error) (Result, error) {
	result.Duration = time.Since(start)
	if err != nil {
		result.Success = false
		result.Output = ""
		result.Error = err.Error()
		result.Class = Classify(err)

		logging.Warn().
			Add(logging.CallID(call.ID)).
			Add(logging.ToolName(call.Name)).
			Add(logging.ErrClass(string(result.Class))).
			Add(logging.ErrorField(err)).
			Add(logging.Duration(result.Duration)).
			Msg("tool call failed")
	} else {
		logging.Info().
			Add(logging.CallID(call.ID)).
			Add(logging.ToolName(call.Name)).
			Add(logging.Duration(result.Duration)).
			Add(logging.Bool("truncated", result.Truncated)).
			Msg("tool call finished")
	}

	e.addToHistory(ExecutionRecord{
		CallID:    call.ID,
		ToolName:  call.Name,
		Params:    call.Params,
		Result:    result,
		Timestamp: start,
		Duration:  result.Duration,
	})
	return result, err
}

// addToHistory appends record, dropping the oldest entries past the cap.
func (e *Executor) addToHistory(record ExecutionRecord) {
	e.mu.Lock()
	if len(e.history) >= maxHistorySize {
		e.history = e.history[len(e.history)-maxHistorySize+1:]
	}
	e.history = append(e.history, record)
	recorder := e.recorder
	e.mu.Unlock()

	if recorder != nil {
		recorder.RecordCall(record)
	}
}

// =============================================================================
// ARGUMENT VALIDATION
// =============================================================================

// DecodeParams decodes a JSON object. Empty input is an empty object.
func DecodeParams(raw []byte) (map[string]interface{}, error) {
	params := make(map[string]interface{})
	if len(bytes.TrimSpace(raw)) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &ArgumentError{Param: "arguments", Message: "invalid JSON object: " + err.Error()}
	}
	return params, nil
}

// ValidateToolArgs validates tool arguments against a schema before execution.
// Unknown parameters are ignored.
func ValidateToolArgs(schema *Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	for _, param := range schema.Parameters {
		val, exists := args[param.Name]

		if param.Required && (!exists || val == nil) {
			return &ArgumentError{
				Param:   param.Name,
				Message: "missing required argument",
			}
		}
		if !exists || val == nil {
			continue
		}

		if err := validateArgType(param, val); err != nil {
			return err
		}
		if param.Type == "string" {
			if err := validateStringLength(param, val.(string)); err != nil {
				return err
			}
		}
	}

	return nil
}

// validateArgType validates the type and bounds of an argument.
func validateArgType(param Parameter, val interface{}) error {
	switch param.Type {
	case "string":
		if _, ok := val.(string); !ok {
			return &ArgumentError{Param: param.Name, Message: "expected string type"}
		}
	case "integer":
		n, ok := integerValue(val)
		if !ok {
			return &ArgumentError{Param: param.Name, Message: "expected integer type"}
		}
		if param.Minimum != nil && n < int64(*param.Minimum) {
			return &ArgumentError{Param: param.Name, Message: fmt.Sprintf("must be at least %d", *param.Minimum)}
		}
	case "number":
		switch val.(type) {
		case int, int64, float64:
		default:
			return &ArgumentError{Param: param.Name, Message: "expected number type"}
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return &ArgumentError{Param: param.Name, Message: "expected boolean type"}
		}
	}
	return nil
}

// integerValue accepts Go integers and whole JSON numbers within int range.
func integerValue(val interface{}) (int64, bool) {
	switch v := val.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// validateStringLength rejects strings that could exhaust memory downstream.
func validateStringLength(param Parameter, val string) error {
	const maxStringLength = 1024 * 1024

	if len(val) > maxStringLength {
		return &ArgumentError{
			Param:   param.Name,
			Message: "string value exceeds maximum length",
		}
	}
	return nil
}

// =============================================================================
// EXECUTION STATISTICS
// =============================================================================

// ExecutionStats provides statistics about tool executions.
type ExecutionStats struct {
	TotalExecutions int
	Successful      int
	Failed          int
	ByClass         map[ErrorClass]int
	TotalDuration   time.Duration
	AvgDuration     time.Duration
}

// Stats returns statistics about the execution history.
func (e *Executor) Stats() ExecutionStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := ExecutionStats{ByClass: make(map[ErrorClass]int)}
	stats.TotalExecutions = len(e.history)

	for _, record := range e.history {
		if record.Result.Success {
			stats.Successful++
		} else {
			stats.Failed++
			stats.ByClass[record.Result.Class]++
		}
		stats.TotalDuration += record.Duration
	}

	if stats.TotalExecutions > 0 {
		stats.AvgDuration = stats.TotalDuration / time.Duration(stats.TotalExecutions)
	}

	return stats
}
