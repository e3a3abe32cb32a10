// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sandbox

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "docs", "guide.md"), []byte("# Guide\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "README.md"), []byte("hi\n"), 0o644))

	r, err := NewResolver(base)
	require.NoError(t, err)
	return r, r.Base()
}

func TestResolveInside(t *testing.T) {
	r, base := newTestResolver(t)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"file at root", "README.md", filepath.Join(base, "README.md")},
		{"nested file", "docs/guide.md", filepath.Join(base, "docs", "guide.md")},
		{"dot segment", "./docs/guide.md", filepath.Join(base, "docs", "guide.md")},
		{"base itself", ".", base},
		{"absolute inside base", filepath.Join(base, "README.md"), filepath.Join(base, "README.md")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
			assert.False(t, got.IsZero())
		})
	}
}

func TestResolveTraversal(t *testing.T) {
	r, _ := newTestResolver(t)

	for _, p := range []string{"../../etc/passwd", "docs/../README.md", "notes..txt", ".."} {
		_, err := r.Resolve(p)
		var te *TraversalError
		require.ErrorAs(t, err, &te, "path %q", p)
		assert.Equal(t, p, te.Path)
		assert.ErrorIs(t, err, ErrConfinement)
	}
}

func TestResolveTraversalSkipsFilesystem(t *testing.T) {
	r, _ := newTestResolver(t)

	// The target does not exist; the substring rule must fire first.
	_, err := r.Resolve("missing/../../nope")
	var te *TraversalError
	assert.ErrorAs(t, err, &te)
}

func TestResolveOutsideBase(t *testing.T) {
	r, base := newTestResolver(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o600))

	if err := os.Symlink(filepath.Join(outside, "secret"), filepath.Join(base, "evil")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"symlink escape", "evil"},
		{"absolute outside", filepath.Join(outside, "secret")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.path)
			var ob *OutsideBaseError
			require.ErrorAs(t, err, &ob)
			assert.Equal(t, "path is outside base directory", err.Error())
			assert.ErrorIs(t, err, ErrConfinement)
		})
	}
}

func TestResolveMissing(t *testing.T) {
	r, _ := newTestResolver(t)

	_, err := r.Resolve("nope.txt")
	var pe *PathIOError
	require.ErrorAs(t, err, &pe)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Contains(t, err.Error(), "io error")
}

func TestNewResolverRequiresDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := NewResolver(file)
	assert.Error(t, err)

	_, err = NewResolver(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestResolverRel(t *testing.T) {
	r, _ := newTestResolver(t)

	p, err := r.Resolve("docs/guide.md")
	require.NoError(t, err)
	rel, err := r.Rel(p)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("docs", "guide.md"), rel)

	root, err := r.Resolve(".")
	require.NoError(t, err)
	rel, err = r.Rel(root)
	require.NoError(t, err)
	assert.Equal(t, ".", rel)
}

func TestIsPathWithinDir(t *testing.T) {
	assert.True(t, isPathWithinDir("/home/user", "/home/user"))
	assert.True(t, isPathWithinDir("/home/user/a", "/home/user"))
	assert.False(t, isPathWithinDir("/home/userEVIL", "/home/user"))
	assert.True(t, isPathWithinDir("/x", "/"))
}

func TestLockdownGrants(t *testing.T) {
	base := t.TempDir()
	state := t.TempDir()
	l := NewLockdown(base, []string{"/definitely/missing"}, []string{state}, true)

	grants := l.Grants()
	byPath := make(map[string]Grant, len(grants))
	for _, g := range grants {
		byPath[g.Path] = g
	}

	require.Contains(t, byPath, base)
	assert.False(t, byPath[base].Write)
	require.Contains(t, byPath, state)
	assert.True(t, byPath[state].Write)
	assert.NotContains(t, byPath, "/definitely/missing")
}
