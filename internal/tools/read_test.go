// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigtools/internal/sandbox"
)

func TestReadWindow(t *testing.T) {
	r := newWorkspace(t)
	reader := &ReadFileExecutor{Resolver: r}

	tests := []struct {
		name  string
		start int
		end   int
		want  string
	}{
		{"whole file", 0, 0, "one\ntwo\nthree\nfour\nfive"},
		{"first two lines", 1, 2, "one\ntwo"},
		{"middle", 2, 4, "two\nthree\nfour"},
		{"single line", 3, 3, "three"},
		{"end past eof saturates", 4, 99, "four\nfive"},
		{"start only", 4, 0, "four\nfive"},
		{"start past eof", 10, 0, ""},
		{"start after end", 4, 2, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := reader.Read(context.Background(), "five.txt", tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Content)
			assert.False(t, res.Truncated)
		})
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"empty", "", nil},
		{"no trailing newline", "a\nb", []string{"a", "b"}},
		{"trailing newline", "a\nb\n", []string{"a", "b"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"leading blank lines", "\n\nc\n", []string{"", "", "c"}},
		{"blank line only", "\n", []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitLines(tt.content))
		})
	}
}

func TestReadKeepsLeadingBlankLines(t *testing.T) {
	r := newWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(r.Base(), "blank.txt"), []byte("\n\nthird\n"), 0o644))

	res, err := (&ReadFileExecutor{Resolver: r}).Read(context.Background(), "blank.txt", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "\n\nthird", res.Content)
	assert.Equal(t, 3, res.Lines)
}

func TestReadTruncatesByLines(t *testing.T) {
	r := newWorkspace(t)
	content := strings.Repeat("l\n", 1500)
	require.NoError(t, os.WriteFile(filepath.Join(r.Base(), "long.txt"), []byte(content), 0o644))

	res, err := (&ReadFileExecutor{Resolver: r}).Read(context.Background(), "long.txt", 0, 0)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, MaxReadLines, res.Lines)
	assert.True(t, strings.HasSuffix(res.Content, TruncationMarker))
	assert.Equal(t, strings.Repeat("l\n", 999)+"l"+TruncationMarker, res.Content)
}

func TestReadTruncatesByBytes(t *testing.T) {
	r := newWorkspace(t)
	line := strings.Repeat("x", 99)
	content := strings.Repeat(line+"\n", 600)
	require.NoError(t, os.WriteFile(filepath.Join(r.Base(), "wide.txt"), []byte(content), 0o644))

	res, err := (&ReadFileExecutor{Resolver: r}).Read(context.Background(), "wide.txt", 0, 0)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 512, res.Lines)
	assert.LessOrEqual(t, len(strings.TrimSuffix(res.Content, TruncationMarker)), MaxReadBytes)
}

func TestReadExactlyAtLimitIsNotTruncated(t *testing.T) {
	r := newWorkspace(t)
	content := strings.Repeat("l\n", MaxReadLines)
	require.NoError(t, os.WriteFile(filepath.Join(r.Base(), "exact.txt"), []byte(content), 0o644))

	res, err := (&ReadFileExecutor{Resolver: r}).Read(context.Background(), "exact.txt", 0, 0)
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Equal(t, MaxReadLines, res.Lines)
}

func TestReadRejects(t *testing.T) {
	r := newWorkspace(t)
	reader := &ReadFileExecutor{Resolver: r}
	require.NoError(t, os.WriteFile(filepath.Join(r.Base(), "bin.dat"), []byte{0xff, 0xfe, 0x00}, 0o644))

	tests := []struct {
		name  string
		path  string
		start int
		class ErrorClass
	}{
		{"traversal", "../../etc/passwd", 0, ClassConfinement},
		{"absolute outside", "/", 0, ClassConfinement},
		{"missing", "nope.txt", 0, ClassExecution},
		{"directory", "docs", 0, ClassExecution},
		{"invalid utf-8", "bin.dat", 0, ClassExecution},
		{"negative start", "five.txt", -1, ClassArguments},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reader.Read(context.Background(), tt.path, tt.start, 0)
			require.Error(t, err)
			assert.Equal(t, tt.class, Classify(err), "err=%v", err)
		})
	}
}

func TestReadTraversalMessage(t *testing.T) {
	r := newWorkspace(t)

	_, err := (&ReadFileExecutor{Resolver: r}).Read(context.Background(), "../../etc/passwd", 0, 0)
	var te *sandbox.TraversalError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "path traversal not allowed: ../../etc/passwd", err.Error())
}

func TestReadExecuteParams(t *testing.T) {
	r := newWorkspace(t)

	// JSON numbers decode as float64.
	res, err := (&ReadFileExecutor{Resolver: r}).Execute(context.Background(), map[string]interface{}{
		"path":       "five.txt",
		"start_line": float64(1),
		"end_line":   float64(2),
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "one\ntwo", res.Output)
	assert.Equal(t, 2, res.LinesCount)
}
