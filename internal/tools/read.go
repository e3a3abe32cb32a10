// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools exposes the sandboxed capabilities an agent may call.
// read.go implements the confined, windowed file reader.
package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jeranaias/rigtools/internal/sandbox"
)

// =============================================================================
// LIMITS
// =============================================================================

const (
	// MaxReadLines caps the number of lines one read_file call returns.
	MaxReadLines = 1000

	// MaxReadBytes caps the size of one read_file result, newlines included.
	MaxReadBytes = 50 * 1024

	// TruncationMarker is appended when either cap was hit.
	TruncationMarker = "\n\n[truncated - file exceeds 50KB or 1000 lines limit]"
)

var (
	minStartLine = 0
	minEndLine   = 1
)

// NewReadFileTool returns the read_file tool confined by resolver.
func NewReadFileTool(resolver *sandbox.Resolver) *Tool {
	return &Tool{
		Capability: CapabilityReadFile,
		Name:       CapabilityReadFile.String(),
		Description: "Read the contents of a file. Paths are relative to the working directory. " +
			"Use start_line and end_line to read specific portions of large files.",
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "path",
					Type:        "string",
					Required:    true,
					Description: "The path to the file to read, relative to the working directory",
				},
				{
					Name:        "start_line",
					Type:        "integer",
					Description: "Optional starting line number (1-indexed)",
					Minimum:     &minStartLine,
				},
				{
					Name:        "end_line",
					Type:        "integer",
					Description: "Optional ending line number (1-indexed, inclusive)",
					Minimum:     &minEndLine,
				},
			},
		},
		RiskLevel: RiskLow,
		Executor:  &ReadFileExecutor{Resolver: resolver},
	}
}

// =============================================================================
// READ EXECUTOR
// =============================================================================

// ReadFileExecutor reads files under the resolver's base directory.
type ReadFileExecutor struct {
	Resolver *sandbox.Resolver
}

// ReadResult is the text returned by Read plus what was kept.
type ReadResult struct {
	Content   string
	Lines     int
	Truncated bool
}

// Execute reads the "path" parameter within the optional line window.
func (e *ReadFileExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	start := time.Now()
	res, err := e.Read(ctx,
		getStringParam(params, "path", ""),
		getIntParam(params, "start_line", 0),
		getIntParam(params, "end_line", 0),
	)
	if err != nil {
		return Result{Duration: time.Since(start)}, err
	}
	return Result{
		Success:    true,
		Output:     res.Content,
		Duration:   time.Since(start),
		Truncated:  res.Truncated,
		LinesCount: res.Lines,
	}, nil
}

// Read returns lines startLine..endLine (1-indexed, inclusive) of path.
// A startLine of 0 means the first line; an endLine of 0, or one past the end
// of the file, means the last line.
func (e *ReadFileExecutor) Read(ctx context.Context, path string, startLine, endLine int) (ReadResult, error) {
	if startLine < 0 {
		return ReadResult{}, &ArgumentError{Param: "start_line", Message: "must not be negative"}
	}
	if endLine < 0 {
		return ReadResult{}, &ArgumentError{Param: "end_line", Message: "must not be negative"}
	}

	confined, err := e.Resolver.Resolve(path)
	if err != nil {
		return ReadResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ReadResult{}, &IOError{Op: "read", Err: err}
	}

	// Only regular files: a FIFO or device could block or stream forever.
	info, err := os.Stat(confined.String())
	if err != nil {
		return ReadResult{}, &IOError{Op: "read", Err: err}
	}
	if !info.Mode().IsRegular() {
		return ReadResult{}, &IOError{Op: "read", Err: fmt.Errorf("%s: not a regular file", path)}
	}

	data, err := os.ReadFile(confined.String())
	if err != nil {
		return ReadResult{}, &IOError{Op: "read", Err: err}
	}
	if !utf8.Valid(data) {
		return ReadResult{}, &IOError{Op: "read", Err: fmt.Errorf("%s: stream did not contain valid UTF-8", path)}
	}

	return windowLines(splitLines(string(data)), startLine, endLine), nil
}

// splitLines splits on "\n", dropping one trailing "\r" per line and the empty
// element after a final newline.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// windowLines selects the inclusive window and applies the size caps.
func windowLines(lines []string, startLine, endLine int) ReadResult {
	total := len(lines)

	from := 0
	if startLine > 0 {
		from = startLine - 1
	}
	to := total
	if endLine > 0 && endLine < total {
		to = endLine
	}
	if from >= to {
		return ReadResult{}
	}

	var b strings.Builder
	count, size := 0, 0
	truncated := false
	for _, line := range lines[from:to] {
		if count >= MaxReadLines || size+len(line)+1 > MaxReadBytes {
			truncated = true
			break
		}
		if count > 0 {
			b.WriteByte('\n')
			size++
		}
		b.WriteString(line)
		size += len(line)
		count++
	}

	if truncated {
		b.WriteString(TruncationMarker)
	}
	return ReadResult{Content: b.String(), Lines: count, Truncated: truncated}
}
