// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigtools/internal/config"
	"github.com/jeranaias/rigtools/internal/security"
	"github.com/jeranaias/rigtools/internal/server"
	"github.com/jeranaias/rigtools/internal/tools"
)

// =============================================================================
// HELPERS
// =============================================================================

// testWorkspace isolates the config directory, base directory and audit key
// for one test and returns the base directory.
func testWorkspace(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "notes.txt"), []byte("alpha\nbeta\ngamma\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "AGENTS.md"), []byte("Answer from the notes.\n"), 0o644))

	t.Setenv(config.EnvConfigDir, t.TempDir())
	t.Setenv("RIGTOOLS_BASE_DIR", base)
	t.Setenv(security.AuditKeyEnvVar, strings.Repeat("ab", 32))
	t.Setenv("RIGTOOLS_SERVER_TOKEN", "")
	t.Setenv("NO_COLOR", "1")
	return base
}

// run executes one command line and returns its output.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr).WithInput(strings.NewReader(stdin))
	err := app.ExecuteWithArgs(context.Background(), args)
	return stdout.String(), stderr.String(), err
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

func TestVersionCmd(t *testing.T) {
	testWorkspace(t)

	out, _, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rigtools version "+Version)
	assert.Contains(t, out, "Git commit:")
}

func TestDescribeCmd(t *testing.T) {
	testWorkspace(t)

	t.Run("json", func(t *testing.T) {
		out, _, err := run(t, "", "describe", "--format", "json")
		require.NoError(t, err)

		var docs []toolDoc
		require.NoError(t, json.Unmarshal([]byte(out), &docs))
		require.Len(t, docs, 3)
		assert.Equal(t, "bash", docs[0].Name)
		assert.Equal(t, "read_file", docs[1].Name)
		assert.Equal(t, "search_docs", docs[2].Name)
		assert.Equal(t, "object", docs[1].InputSchema["type"])
	})

	t.Run("yaml single tool", func(t *testing.T) {
		out, _, err := run(t, "", "describe", "read_file", "-f", "yaml")
		require.NoError(t, err)
		assert.Contains(t, out, "name: read_file")
		assert.Contains(t, out, "name: start_line")
		assert.NotContains(t, out, "name: bash")
	})

	t.Run("markdown", func(t *testing.T) {
		out, _, err := run(t, "", "describe", "-f", "md")
		require.NoError(t, err)
		assert.Contains(t, out, "## search_docs")
		assert.Contains(t, out, "| `query` | string | yes |")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, _, err := run(t, "", "describe", "-f", "xml")
		require.Error(t, err)
		assert.Equal(t, ExitUsageError, ExitCode(err))
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, _, err := run(t, "", "describe", "write_file")
		require.Error(t, err)
		assert.Equal(t, ExitUsageError, ExitCode(err))
	})
}

func TestCallCmd(t *testing.T) {
	testWorkspace(t)

	tests := []struct {
		name     string
		args     []string
		wantOut  string
		wantCode int
	}{
		{
			name:     "read whole file",
			args:     []string{"call", "read_file", "path=notes.txt"},
			wantOut:  "alpha",
			wantCode: ExitSuccess,
		},
		{
			name:     "read window with args json",
			args:     []string{"call", "read_file", "--args", `{"path":"notes.txt","start_line":2,"end_line":2}`},
			wantOut:  "beta",
			wantCode: ExitSuccess,
		},
		{
			name:     "traversal is a security error",
			args:     []string{"call", "read_file", "path=../secret"},
			wantCode: ExitSecurityError,
		},
		{
			name:     "forbidden command is a security error",
			args:     []string{"call", "bash", "command=rm -rf notes.txt"},
			wantCode: ExitSecurityError,
		},
		{
			name:     "unknown tool is a usage error",
			args:     []string{"call", "write_file", "path=x"},
			wantCode: ExitUsageError,
		},
		{
			name:     "bad integer is a usage error",
			args:     []string{"call", "read_file", "path=notes.txt", "start_line=two"},
			wantCode: ExitUsageError,
		},
		{
			name:     "missing tool name",
			args:     []string{"call"},
			wantCode: ExitUsageError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := run(t, "", tt.args...)
			assert.Equal(t, tt.wantCode, ExitCode(err), "err: %v", err)
			if tt.wantOut != "" {
				assert.Contains(t, out, tt.wantOut)
			}
		})
	}
}

func TestCallCmdJSON(t *testing.T) {
	testWorkspace(t)

	out, _, err := run(t, "", "call", "--json", "read_file", "path=notes.txt", "start_line=3")
	require.NoError(t, err)

	var resp server.CallResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "read_file", resp.Tool)
	assert.True(t, resp.Success)
	assert.Equal(t, "gamma", strings.TrimSpace(resp.Output))

	out, _, err = run(t, "", "call", "--json", "read_file", "path=/etc/passwd")
	require.Error(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, string(tools.ClassConfinement), resp.ErrorClass)
}

func TestContextCmd(t *testing.T) {
	testWorkspace(t)

	out, _, err := run(t, "", "context")
	require.NoError(t, err)
	assert.Contains(t, out, "Answer from the notes.")
	assert.Contains(t, out, "notes.txt")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestConfigCmd(t *testing.T) {
	testWorkspace(t)
	t.Setenv("RIGTOOLS_SERVER_TOKEN", "s3cret-token")

	t.Run("show redacts the token", func(t *testing.T) {
		for _, format := range []string{"toml", "json", "yaml"} {
			out, _, err := run(t, "", "config", "show", "--format", format)
			require.NoError(t, err, format)
			assert.Contains(t, out, "[REDACTED]", format)
			assert.NotContains(t, out, "s3cret-token", format)
		}
	})

	t.Run("get", func(t *testing.T) {
		out, _, err := run(t, "", "config", "get", "audit.max_size_mb")
		require.NoError(t, err)
		assert.Equal(t, "10\n", out)

		out, _, err = run(t, "", "config", "get", "server.token")
		require.NoError(t, err)
		assert.Equal(t, "[REDACTED]\n", out)
	})

	t.Run("get unknown key lists keys", func(t *testing.T) {
		_, errOut, err := run(t, "", "config", "get", "audit.nope")
		require.Error(t, err)
		assert.Equal(t, ExitUsageError, ExitCode(err))
		assert.Contains(t, errOut, "workspace.base_dir")
	})

	t.Run("init then path", func(t *testing.T) {
		out, _, err := run(t, "", "config", "init")
		require.NoError(t, err)
		assert.Contains(t, out, "config.toml")

		_, _, err = run(t, "", "config", "init")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")

		_, _, err = run(t, "", "config", "init", "--force")
		require.NoError(t, err)

		out, _, err = run(t, "", "config", "path")
		require.NoError(t, err)
		dir, _ := config.ConfigDir()
		assert.Equal(t, filepath.Join(dir, "config.toml")+"\n", out)
	})
}

func TestAuditCmds(t *testing.T) {
	testWorkspace(t)

	_, _, err := run(t, "", "call", "read_file", "path=notes.txt")
	require.NoError(t, err)
	_, _, err = run(t, "", "call", "read_file", "path=../x")
	require.Error(t, err)

	t.Run("verify", func(t *testing.T) {
		out, _, err := run(t, "", "audit", "verify")
		require.NoError(t, err)
		assert.Contains(t, out, "OK")
		assert.Contains(t, out, "(2 entries)")
		assert.Contains(t, out, "from environment")
	})

	t.Run("tail", func(t *testing.T) {
		out, _, err := run(t, "", "audit", "tail", "-n", "1")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], "read_file")
		assert.Contains(t, lines[0], "ERROR(confinement)")
	})

	t.Run("stats", func(t *testing.T) {
		out, _, err := run(t, "", "audit", "stats")
		require.NoError(t, err)
		assert.Contains(t, out, "TOOL")
		assert.Regexp(t, `read_file\s+2\s+1\s+`, out)
	})

	t.Run("rotate starts a new chain", func(t *testing.T) {
		out, _, err := run(t, "", "audit", "rotate")
		require.NoError(t, err)
		assert.Contains(t, out, "Rotated")

		_, _, err = run(t, "", "call", "read_file", "path=notes.txt")
		require.NoError(t, err)

		out, _, err = run(t, "", "audit", "verify")
		require.NoError(t, err)
		assert.Equal(t, 2, strings.Count(out, "OK "))
		assert.Contains(t, out, "(1 entries)")
	})

	t.Run("verify detects tampering", func(t *testing.T) {
		dir, _ := config.ConfigDir()
		path := filepath.Join(dir, "audit.log")
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, bytes.Replace(data, []byte("notes.txt"), []byte("other.txt"), 1), 0o600))

		out, _, err := run(t, "", "audit", "verify")
		require.Error(t, err)
		assert.True(t, errors.Is(err, security.ErrChainBroken))
		assert.Contains(t, out, "BROKEN")
	})
}

func TestReplSession(t *testing.T) {
	testWorkspace(t)

	input := strings.Join([]string{
		"",
		":tools",
		"read_file notes.txt 2 2",
		`read_file {"path": "notes.txt", "start_line": 3}`,
		"read_file ../outside",
		":history",
		":bogus",
		":quit",
		"read_file notes.txt",
	}, "\n")

	out, errOut, err := run(t, input, "repl")
	require.NoError(t, err)

	assert.Contains(t, out, replBanner)
	assert.Contains(t, out, ">> Ready!")
	assert.Contains(t, out, "search_docs")
	assert.Contains(t, out, ">> read_file(notes.txt)")
	assert.Contains(t, out, "beta")
	assert.Contains(t, out, "gamma")
	assert.Contains(t, errOut, "Error: path traversal not allowed")
	assert.Contains(t, out, "confinement")
	assert.Contains(t, errOut, "unknown console command :bogus")
	assert.Contains(t, out, ">> Goodbye!")
	assert.NotContains(t, out, "alpha", "lines after :quit must not run")
}

func TestReplEOF(t *testing.T) {
	testWorkspace(t)

	out, _, err := run(t, "read_file notes.txt\n", "repl")
	require.NoError(t, err)
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, ">> Goodbye!")
}

// =============================================================================
// ARGUMENT PARSING
// =============================================================================

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	testWorkspace(t)

	env, err := New().openEnv(context.Background(), envOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env.registry
}

func TestBuildParams(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name     string
		tool     string
		argsJSON string
		pairs    []string
		want     map[string]interface{}
		wantErr  bool
	}{
		{
			name:  "integers are converted",
			tool:  "read_file",
			pairs: []string{"path=a.txt", "start_line=5"},
			want:  map[string]interface{}{"path": "a.txt", "start_line": float64(5)},
		},
		{
			name:  "values keep their equals signs",
			tool:  "bash",
			pairs: []string{"command=grep -c a=b notes.txt"},
			want:  map[string]interface{}{"command": "grep -c a=b notes.txt"},
		},
		{
			name:     "pairs override json",
			tool:     "read_file",
			argsJSON: `{"path":"a.txt","end_line":3}`,
			pairs:    []string{"path=b.txt"},
			want:     map[string]interface{}{"path": "b.txt", "end_line": float64(3)},
		},
		{
			name:  "unknown tool keeps strings",
			tool:  "nope",
			pairs: []string{"start_line=5"},
			want:  map[string]interface{}{"start_line": "5"},
		},
		{name: "missing equals", tool: "read_file", pairs: []string{"notes.txt"}, wantErr: true},
		{name: "empty key", tool: "read_file", pairs: []string{"=x"}, wantErr: true},
		{name: "not a number", tool: "read_file", pairs: []string{"end_line=ten"}, wantErr: true},
		{name: "invalid json", tool: "read_file", argsJSON: `{"path":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildParams(reg.Get(tt.tool), tt.argsJSON, tt.pairs)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tools.ClassArguments, tools.Classify(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseReplArgs(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name    string
		tool    string
		rest    string
		want    map[string]interface{}
		wantErr bool
	}{
		{
			name: "bash takes the whole line",
			tool: "bash",
			rest: `grep -rn "TODO" . | head -5`,
			want: map[string]interface{}{"command": `grep -rn "TODO" . | head -5`},
		},
		{
			name: "bash without command",
			tool: "bash",
			want: map[string]interface{}{},
		},
		{
			name: "positional read_file",
			tool: "read_file",
			rest: "notes.txt 1 20",
			want: map[string]interface{}{"path": "notes.txt", "start_line": float64(1), "end_line": float64(20)},
		},
		{
			name: "quoted positional",
			tool: "search_docs",
			rest: `"quarterly invoice" docs`,
			want: map[string]interface{}{"query": "quarterly invoice", "path": "docs"},
		},
		{
			name: "named and positional mix",
			tool: "read_file",
			rest: "end_line=4 notes.txt",
			want: map[string]interface{}{"path": "notes.txt", "end_line": float64(4)},
		},
		{
			name: "json object",
			tool: "read_file",
			rest: `{"path": "notes.txt"}`,
			want: map[string]interface{}{"path": "notes.txt"},
		},
		{
			name:    "too many positionals",
			tool:    "search_docs",
			rest:    "a b c",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseReplArgs(reg.Get(tt.tool), tt.tool, tt.rest)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// EXIT CODES
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"validation", &CallFailedError{Class: tools.ClassValidation}, ExitSecurityError},
		{"confinement", &CallFailedError{Class: tools.ClassConfinement}, ExitSecurityError},
		{"execution", &CallFailedError{Class: tools.ClassExecution}, ExitGeneralError},
		{"canceled", &CallFailedError{Class: tools.ClassCanceled}, ExitGeneralError},
		{"arguments", &CallFailedError{Class: tools.ClassArguments}, ExitUsageError},
		{"wrapped call failure", fmt.Errorf("call: %w", &CallFailedError{Class: tools.ClassConfinement}), ExitSecurityError},
		{"argument error", &tools.ArgumentError{Param: "format", Message: "bad"}, ExitUsageError},
		{"config", fmt.Errorf("invalid config: %w", config.ValidateErrors{{Field: "x", Message: "y"}}), ExitConfigError},
		{"cobra unknown flag", errors.New("unknown flag: --nope"), ExitUsageError},
		{"cobra arg count", errors.New("accepts 1 arg(s), received 2"), ExitUsageError},
		{"other", errors.New("disk on fire"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

// =============================================================================
// RENDERING
// =============================================================================

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  string
	}{
		{"fits", "short line", 20, "short line"},
		{"wraps at words", "one two three four", 9, "one two\nthree\nfour"},
		{"keeps newlines", "a b\nc d", 3, "a b\nc d"},
		{"long word alone", "tiny enormousword end", 5, "tiny\nenormousword\nend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WrapText(tt.text, tt.width))
		})
	}
}

func TestStatsFromEvents(t *testing.T) {
	events := []security.AuditEvent{
		{Tool: "read_file", Success: true, DurationMS: 2},
		{Tool: "bash", Success: false, DurationMS: 10},
		{Tool: "read_file", Success: false, DurationMS: 4},
	}

	stats := statsFromEvents(events)
	require.Len(t, stats, 2)
	assert.Equal(t, security.ToolStats{Tool: "bash", Calls: 1, Failures: 1, AvgDurationMS: 10}, stats[0])
	assert.Equal(t, security.ToolStats{Tool: "read_file", Calls: 2, Failures: 1, AvgDurationMS: 3}, stats[1])
}
