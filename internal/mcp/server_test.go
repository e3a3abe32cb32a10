// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigtools/internal/sandbox"
	"github.com/jeranaias/rigtools/internal/tools"
)

func newExecutor(t *testing.T) *tools.Executor {
	t.Helper()
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "five.txt"), []byte("one\ntwo\nthree\nfour\nfive\n"), 0o644))
	resolver, err := sandbox.NewResolver(base)
	require.NoError(t, err)
	return tools.NewExecutor(tools.NewRegistry(resolver, sandbox.DefaultCommandPolicy()))
}

func TestNew(t *testing.T) {
	s := New(newExecutor(t), Options{Version: "1.0.0", Instructions: "read the files"})
	require.NotNil(t, s)
	assert.NotNil(t, s.Underlying())
}

func TestCall(t *testing.T) {
	s := New(newExecutor(t), Options{})

	tests := []struct {
		name    string
		tool    string
		input   string
		want    string
		wantErr string
	}{
		{"window", "read_file", `{"path":"five.txt","start_line":1,"end_line":2}`, "one\ntwo", ""},
		{"traversal", "read_file", `{"path":"../../etc/passwd"}`, "", "confinement error: path traversal not allowed"},
		{"forbidden", "bash", `{"command":"ls; rm -rf /"}`, "", "validation error: forbidden pattern in command"},
		{"unknown", "write_file", `{}`, "", "unknown_tool error"},
		{"bad json", "read_file", `[1,2]`, "", "arguments error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.call(context.Background(), tt.tool, json.RawMessage(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestCallErrorUnwraps(t *testing.T) {
	s := New(newExecutor(t), Options{})
	_, err := s.call(context.Background(), "read_file", json.RawMessage(`{"path":"../x"}`))
	assert.ErrorIs(t, err, sandbox.ErrConfinement)
}

func TestDescribeTool(t *testing.T) {
	exec := newExecutor(t)
	read := exec.Registry().Get("read_file")
	require.NotNil(t, read)

	desc := describeTool(read)
	assert.Contains(t, desc, read.Description)
	assert.Contains(t, desc, "- path (string, required)")
	assert.Contains(t, desc, "- start_line (integer, minimum 0)")

	bare := &tools.Tool{Name: "x", Description: "plain"}
	assert.Equal(t, "plain", describeTool(bare))
}
