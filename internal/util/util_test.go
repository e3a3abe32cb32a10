// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	require.NoError(t, AtomicWriteFile(path, []byte("first"), 0o600))
	require.NoError(t, AtomicWriteFile(path, []byte("second"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.Getenv("GOOS") != "windows" {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	// No temp files are left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTruncateDisplay(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{"short", "ls -la", 200, "ls -la"},
		{"exact", "abcde", 5, "abcde"},
		{"cut ascii", "abcdefgh", 5, "abcde..."},
		{"wide runes are not split", "日本語テキスト", 5, "日本..."},
		{"zero width", "abc", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateDisplay(tt.input, tt.width))
		})
	}

	long := strings.Repeat("x", 300)
	assert.Equal(t, CallDisplayWidth+3, len(TruncateDisplay(long, CallDisplayWidth)))
}

func TestSingleLine(t *testing.T) {
	assert.Equal(t, "a b c d", SingleLine("a\nb\r\nc\rd"))
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab  ", PadRight("ab", 4))
	assert.Equal(t, 4, StringWidth(PadRight("日", 4)))
}
