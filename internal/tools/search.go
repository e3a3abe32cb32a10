// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools exposes the sandboxed capabilities an agent may call.
// search.go implements document search through ripgrep-all.
package tools

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/rigtools/internal/runner"
	"github.com/jeranaias/rigtools/internal/sandbox"
)

// =============================================================================
// SEARCH POLICY
// =============================================================================

const (
	// SearchProgram is the external search binary.
	SearchProgram = "rga"

	// SearchTimeout bounds every search_docs call.
	SearchTimeout = 30 * time.Second

	// SearchMaxCount caps matches per file.
	SearchMaxCount = 100

	// SearchContextLines is the context shown around each match.
	SearchContextLines = 2

	// NoMatchesMessage is the successful result of a search without hits.
	NoMatchesMessage = "No matches found"

	searchInstallHint = "Please install ripgrep-all: https://github.com/phiresky/ripgrep-all"
)

// NewSearchDocsTool returns the search_docs tool confined by resolver.
func NewSearchDocsTool(resolver *sandbox.Resolver) *Tool {
	return &Tool{
		Capability: CapabilitySearchDocs,
		Name:       CapabilitySearchDocs.String(),
		Description: "Search through documents (PDFs, Word docs, Excel, etc.) using ripgrep-all. " +
			"Automatically handles binary formats and extracts text. " +
			"Use this when you need to find content in non-text files. " +
			"Do not use it until other tools have been tried.",
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "query",
					Type:        "string",
					Required:    true,
					Description: "The search query/pattern to find in documents",
				},
				{
					Name:        "path",
					Type:        "string",
					Description: "Optional path to search in, relative to the working directory (defaults to current directory)",
					Default:     ".",
				},
			},
		},
		RiskLevel: RiskLow,
		Executor:  &SearchDocsExecutor{Resolver: resolver},
	}
}

// =============================================================================
// SEARCH EXECUTOR
// =============================================================================

// SearchDocsExecutor runs rga under the resolver's base directory.
type SearchDocsExecutor struct {
	Resolver *sandbox.Resolver

	// Program overrides SearchProgram when non-empty.
	Program string

	// Timeout overrides SearchTimeout when non-zero.
	Timeout time.Duration
}

// Execute searches for the "query" parameter under "path".
func (e *SearchDocsExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	start := time.Now()
	output, err := e.Search(ctx, getStringParam(params, "query", ""), getStringParam(params, "path", ""))
	if err != nil {
		return Result{Duration: time.Since(start)}, err
	}
	return Result{Success: true, Output: output, Duration: time.Since(start)}, nil
}

// Search runs a case-insensitive search for query in path (default ".").
// The query follows "--" so it can never be read as an rga option.
func (e *SearchDocsExecutor) Search(ctx context.Context, query, path string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", ErrEmptyQuery
	}
	if path == "" {
		path = "."
	}

	confined, err := e.Resolver.Resolve(path)
	if err != nil {
		return "", err
	}
	rel, err := e.Resolver.Rel(confined)
	if err != nil {
		return "", &IOError{Op: "search", Err: err}
	}

	program := e.Program
	if program == "" {
		program = SearchProgram
	}
	timeout := e.Timeout
	if timeout == 0 {
		timeout = SearchTimeout
	}

	spec := runner.Command(program,
		"-i",
		"--max-count", strconv.Itoa(SearchMaxCount),
		"--context", strconv.Itoa(SearchContextLines),
		"--color", "never",
		"--", query, rel,
	)
	out := runner.Run(ctx, spec.In(e.Resolver.Base()).WithTimeout(timeout))

	if out.NotFound() {
		return "", &NotInstalledError{Program: SearchProgram, Hint: searchInstallHint}
	}
	switch out.Status {
	case runner.Success:
		return out.Stdout, nil
	case runner.NonZeroExit:
		if out.ExitCode == 1 {
			return NoMatchesMessage, nil
		}
		return "", &ExitError{Op: "search", Code: out.ExitCode, Output: out.Stderr}
	case runner.Signaled:
		return "", &ExitError{Op: "search", Code: runner.SignaledExitCode, Output: out.Stderr}
	case runner.TimedOut:
		return "", &TimeoutError{Op: "search", Timeout: timeout}
	default:
		return "", &IOError{Op: "search", Err: out.Err}
	}
}
