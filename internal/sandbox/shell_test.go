// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		want []string
	}{
		{"plain words", "ls -la src", []string{"ls", "-la", "src"}},
		{"single quotes removed", `grep 'hello world' notes.txt`, []string{"grep", "hello world", "notes.txt"}},
		{"double quotes removed", `grep "a b" f`, []string{"grep", "a b", "f"}},
		{"escaped space", `cat my\ file.txt`, []string{"cat", "my file.txt"}},
		{"escaped quote in double quotes", `grep "say \"hi\"" f`, []string{"grep", `say "hi"`, "f"}},
		{"quoted pipe is an argument", `grep 'A|B' f`, []string{"grep", "A|B", "f"}},
		{"glob is not expanded", "find . -name *.go", []string{"find", ".", "-name", "*.go"}},
		{"parameter is not expanded", "cat $HOME", []string{"cat", "$HOME"}},
		{"tilde is not expanded", "ls ~", []string{"ls", "~"}},
		{"mixed parts", `grep a'b'"c" f`, []string{"grep", "abc", "f"}},
		{"unparseable falls back to fields", `grep 'open`, []string{"grep", "'open"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitArgs(tt.cmd))
		})
	}
}

func TestValidateShellPipeline(t *testing.T) {
	policy := DefaultCommandPolicy()

	tests := []struct {
		name    string
		cmd     string
		wantErr bool
	}{
		{"plain pipeline", "ls | head -n 3", false},
		{"quoted arguments", `grep -E 'a|b' f | wc -l`, false},
		{"negated pipeline", "! ls | head", true},
		{"subshell stage", "ls | (cat)", true},
		{"expanded command name", "ls | $CMD", true},
		{"assignment", "ls | X=1 cat", true},
		{"two statements", "ls | head\nls", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.validateShellPipeline(tt.cmd)
			if tt.wantErr {
				assert.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
