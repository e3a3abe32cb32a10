// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigtools/internal/sandbox"
)

// newWorkspace creates a base directory with a few fixture files.
func newWorkspace(t *testing.T) *sandbox.Resolver {
	t.Helper()
	base := t.TempDir()
	files := map[string]string{
		"notes.txt":     "Alpha\nBeta\nGamma\nA and B\nDelta\n",
		"five.txt":      "one\ntwo\nthree\nfour\nfive\n",
		"docs/guide.md": "# Guide\nsearch me\n",
	}
	for name, content := range files {
		path := filepath.Join(base, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	r, err := sandbox.NewResolver(base)
	require.NoError(t, err)
	return r
}

func requireCommands(t *testing.T, names ...string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires POSIX tools")
	}
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not available", name)
		}
	}
}

// writeScript writes an executable sh script and returns its path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	requireCommands(t, "sh")
	path := filepath.Join(t.TempDir(), "fake-rga")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}
