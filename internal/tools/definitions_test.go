// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigtools/internal/runner"
	"github.com/jeranaias/rigtools/internal/sandbox"
)

func TestRegistryOrderAndLookup(t *testing.T) {
	reg := NewRegistry(newWorkspace(t), sandbox.DefaultCommandPolicy())

	var names []string
	for _, tool := range reg.All() {
		names = append(names, tool.Name)
		assert.Equal(t, tool.Name, tool.Capability.String())
	}
	assert.Equal(t, []string{"bash", "read_file", "search_docs"}, names)

	tool, err := reg.Lookup("search_docs")
	require.NoError(t, err)
	assert.Equal(t, CapabilitySearchDocs, tool.Capability)

	_, err = reg.Lookup("write_file")
	var unknown *UnknownCapabilityError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "unknown tool: write_file", err.Error())
}

func TestSetSearchProgram(t *testing.T) {
	reg := NewRegistry(newWorkspace(t), sandbox.DefaultCommandPolicy())
	exec, ok := reg.Get("search_docs").Executor.(*SearchDocsExecutor)
	require.True(t, ok)
	assert.Empty(t, exec.Program)

	reg.SetSearchProgram("/opt/bin/rga")
	assert.Equal(t, "/opt/bin/rga", exec.Program)
}

func TestParseCapability(t *testing.T) {
	for _, c := range Capabilities {
		got, err := ParseCapability(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCapability("READ_FILE")
	assert.Error(t, err)
}

func TestJSONSchema(t *testing.T) {
	reg := NewRegistry(newWorkspace(t), sandbox.DefaultCommandPolicy())
	schema := reg.Get("read_file").Schema.JSONSchema()

	raw, err := json.Marshal(schema)
	require.NoError(t, err)

	var decoded struct {
		Type       string                            `json:"type"`
		Required   []string                          `json:"required"`
		Properties map[string]map[string]interface{} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "object", decoded.Type)
	assert.Equal(t, []string{"path"}, decoded.Required)
	assert.Equal(t, "integer", decoded.Properties["start_line"]["type"])
	assert.EqualValues(t, 0, decoded.Properties["start_line"]["minimum"])
	assert.EqualValues(t, 1, decoded.Properties["end_line"]["minimum"])

	search := reg.Get("search_docs").Schema.JSONSchema()
	props := search["properties"].(map[string]interface{})
	assert.Equal(t, ".", props["path"].(map[string]interface{})["default"])
}

func TestShortDescription(t *testing.T) {
	tool := NewReadFileTool(nil)
	assert.Equal(t, "Read the contents of a file.", tool.ShortDescription())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassNone},
		{"forbidden", &sandbox.ForbiddenPatternError{Pattern: ";"}, ClassValidation},
		{"shell syntax", &sandbox.ShellSyntaxError{Reason: "x"}, ClassValidation},
		{"empty command", sandbox.ErrEmptyCommand, ClassValidation},
		{"outside", &sandbox.OutsideBaseError{Path: "x"}, ClassConfinement},
		{"path io", &sandbox.PathIOError{Path: "x", Err: errors.New("boom")}, ClassExecution},
		{"timeout", &TimeoutError{Op: "command", Timeout: time.Second}, ClassExecution},
		{"call deadline", &TimeoutError{Op: "bash", Timeout: time.Second, Err: context.DeadlineExceeded}, ClassExecution},
		{"exit", &ExitError{Op: "command", Code: 2}, ClassExecution},
		{"io", &IOError{Op: "read", Err: errors.New("boom")}, ClassExecution},
		{"arguments", &ArgumentError{Param: "p", Message: "m"}, ClassArguments},
		{"unknown", &UnknownCapabilityError{Name: "x"}, ClassUnknownTool},
		{"wrapped", fmt.Errorf("call: %w", &sandbox.TraversalError{Path: ".."}), ClassConfinement},
		{"plain", errors.New("other"), ClassExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "command timed out after 30 seconds",
		(&TimeoutError{Op: "command", Timeout: ShellTimeout}).Error())
	assert.Equal(t, "search timed out after 30 seconds",
		(&TimeoutError{Op: "search", Timeout: SearchTimeout}).Error())
	assert.Equal(t, "command failed with exit code -1: killed",
		(&ExitError{Op: "command", Code: runner.SignaledExitCode, Output: "killed"}).Error())

	cause := errors.New("permission denied")
	ioErr := &IOError{Op: "read", Err: cause}
	assert.Equal(t, "io error: permission denied", ioErr.Error())
	assert.ErrorIs(t, ioErr, cause)
	assert.ErrorIs(t, ioErr, ErrExecution)
}

func TestDisplayArgs(t *testing.T) {
	tests := []struct {
		name string
		tool string
		raw  string
		want string
	}{
		{"bash command", "bash", `{"command":"ls -la"}`, "ls -la"},
		{"read path", "read_file", `{"path":"a.txt","start_line":2}`, "a.txt"},
		{"search query", "search_docs", `{"query":"invoice","path":"docs"}`, "invoice"},
		{"unknown tool", "write_file", `{"path":"x"}`, `{"path":"x"}`},
		{"bad json", "bash", `{"command":`, `{"command":`},
		{"missing field", "bash", `{"cmd":"ls"}`, `{"cmd":"ls"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayArgs(tt.tool, tt.raw))
		})
	}

	assert.Equal(t, "ls", DisplayParams("bash", map[string]interface{}{"command": "ls"}))
	assert.Equal(t, `{"x":1}`, DisplayParams("nope", map[string]interface{}{"x": 1}))
}
