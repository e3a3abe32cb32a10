// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigtools/internal/sandbox"
)

func newShell(t *testing.T) *ShellExecutor {
	t.Helper()
	r := newWorkspace(t)
	return &ShellExecutor{Policy: sandbox.DefaultCommandPolicy(), Dir: r.Base()}
}

func TestShellRejectsBeforeRunning(t *testing.T) {
	shell := newShell(t)

	tests := []struct {
		name    string
		command string
		check   func(t *testing.T, err error)
	}{
		{
			name:    "chained command",
			command: "ls; rm -rf /",
			check: func(t *testing.T, err error) {
				var fpe *sandbox.ForbiddenPatternError
				require.ErrorAs(t, err, &fpe)
				assert.Equal(t, ";", fpe.Pattern)
				assert.Equal(t, "forbidden pattern in command: ;", err.Error())
			},
		},
		{
			name:    "not allow-listed",
			command: "rm -rf x",
			check: func(t *testing.T, err error) {
				var cna *sandbox.CommandNotAllowedError
				require.ErrorAs(t, err, &cna)
			},
		},
		{
			name:    "empty",
			command: "  ",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, sandbox.ErrEmptyCommand)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := shell.Run(context.Background(), tt.command)
			require.Error(t, err)
			assert.Equal(t, ClassValidation, Classify(err))
			tt.check(t, err)
		})
	}
}

func TestShellQuotedPipeline(t *testing.T) {
	requireCommands(t, "sh", "grep", "head")
	shell := newShell(t)

	out, err := shell.Run(context.Background(), `grep -E 'A|B' notes.txt | head`)
	require.NoError(t, err)
	assert.Equal(t, "Alpha\nBeta\nA and B\n", out)
}

func TestShellDirectExecution(t *testing.T) {
	requireCommands(t, "cat", "ls", "grep")
	shell := newShell(t)

	out, err := shell.Run(context.Background(), "cat five.txt")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\nfour\nfive\n", out)

	// Quoted arguments reach the program without the quotes.
	out, err = shell.Run(context.Background(), `grep 'A and B' notes.txt`)
	require.NoError(t, err)
	assert.Equal(t, "A and B\n", out)

	// A glob is passed through literally, not expanded.
	_, err = shell.Run(context.Background(), "ls *.txt")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
}

func TestShellNonZeroExit(t *testing.T) {
	requireCommands(t, "cat")
	shell := newShell(t)

	_, err := shell.Run(context.Background(), "cat missing.txt")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, "command", exitErr.Op)
	assert.NotZero(t, exitErr.Code)
	assert.Contains(t, exitErr.Output, "missing.txt")
	assert.Contains(t, err.Error(), "command failed with exit code")
	assert.Equal(t, ClassExecution, Classify(err))
}

func TestShellTimeout(t *testing.T) {
	requireCommands(t, "sleep")
	r := newWorkspace(t)
	shell := &ShellExecutor{
		Policy:  sandbox.NewCommandPolicy([]string{"sleep"}, sandbox.DefaultForbiddenPatterns),
		Dir:     r.Base(),
		Timeout: 200 * time.Millisecond,
	}

	start := time.Now()
	_, err := shell.Run(context.Background(), "sleep 10")
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestShellLaunchFailure(t *testing.T) {
	r := newWorkspace(t)
	shell := &ShellExecutor{
		Policy: sandbox.NewCommandPolicy([]string{"definitely-missing-tool"}, sandbox.DefaultForbiddenPatterns),
		Dir:    r.Base(),
	}

	_, err := shell.Run(context.Background(), "definitely-missing-tool --help")
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.ErrorIs(t, err, ErrExecution)
}

func TestJoinStreams(t *testing.T) {
	assert.Equal(t, "out", joinStreams("out", ""))
	assert.Equal(t, "err", joinStreams("", "err"))
	assert.Equal(t, "out\n--- stderr ---\nerr", joinStreams("out", "err"))
}

func TestBashDescriptionListsAllowedCommands(t *testing.T) {
	tool := NewBashTool(sandbox.DefaultCommandPolicy(), t.TempDir())
	assert.Contains(t, tool.Description, "grep, find, cat, head, tail, ls, tree, wc, file, rg")
	assert.Contains(t, tool.Description, "Redirects and command chaining with ;, &&, || are not allowed.")
}
