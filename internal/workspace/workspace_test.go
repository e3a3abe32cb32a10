// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigtools/internal/sandbox"
)

func requireFind(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX find required")
	}
	if _, err := exec.LookPath("find"); err != nil {
		t.Skip("find not installed")
	}
}

func newTree(t *testing.T, files map[string]string) *sandbox.Resolver {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	r, err := sandbox.NewResolver(dir)
	require.NoError(t, err)
	return r
}

// fakeFind puts a find that runs script first on PATH.
func fakeFind(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "find"), []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	t.Setenv("PATH", dir)
}

func TestPreamble(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		c := New(newTree(t, map[string]string{"a.txt": "a"}), Options{})
		preamble, fromFile, err := c.Preamble()
		require.NoError(t, err)
		assert.False(t, fromFile)
		assert.Equal(t, DefaultPreamble, preamble)
	})

	t.Run("context file", func(t *testing.T) {
		c := New(newTree(t, map[string]string{"AGENTS.md": "# Project rules\n"}), Options{})
		preamble, fromFile, err := c.Preamble()
		require.NoError(t, err)
		assert.True(t, fromFile)
		assert.Equal(t, "# Project rules\n", preamble)
	})

	t.Run("custom name", func(t *testing.T) {
		c := New(newTree(t, map[string]string{"docs/CONTEXT.md": "custom"}), Options{ContextFile: "docs/CONTEXT.md"})
		preamble, _, err := c.Preamble()
		require.NoError(t, err)
		assert.Equal(t, "custom", preamble)
	})

	t.Run("symlink escape", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("symlinks need privileges on windows")
		}
		outside := filepath.Join(t.TempDir(), "secret.md")
		require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

		r := newTree(t, nil)
		require.NoError(t, os.Symlink(outside, filepath.Join(r.Base(), "AGENTS.md")))

		_, _, err := New(r, Options{}).Preamble()
		require.Error(t, err)
		assert.True(t, errors.Is(err, sandbox.ErrConfinement))
	})
}

func TestBuildIncludesListing(t *testing.T) {
	requireFind(t)
	r := newTree(t, map[string]string{
		"AGENTS.md":         "rules",
		"a.txt":             "a",
		"sub/b.txt":         "b",
		"d1/d2/c.txt":       "c",
		"d1/d2/d3/deep.txt": "too deep",
	})

	out, err := New(r, Options{}).Build(context.Background())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "rules\n\n## Available Files\n\n"+
		"The following files are available in the working directory:\n\n"))
	assert.Contains(t, out, "./a.txt\n")
	assert.Contains(t, out, "./sub/b.txt\n")
	assert.Contains(t, out, "./d1/d2/c.txt\n")
	assert.NotContains(t, out, "deep.txt")
}

func TestListingDepth(t *testing.T) {
	requireFind(t)
	r := newTree(t, map[string]string{"a.txt": "a", "sub/b.txt": "b"})

	listing, err := New(r, Options{ListingDepth: 1}).Listing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "./a.txt\n", listing)
}

func TestListingCachedUntilInvalidate(t *testing.T) {
	requireFind(t)
	r := newTree(t, map[string]string{"a.txt": "a"})
	c := New(r, Options{})
	ctx := context.Background()

	first, err := c.Listing(ctx)
	require.NoError(t, err)
	gathered := c.GatheredAt()

	require.NoError(t, os.WriteFile(filepath.Join(r.Base(), "new.txt"), nil, 0o644))
	cached, err := c.Listing(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, cached)
	assert.Equal(t, gathered, c.GatheredAt())

	c.Invalidate()
	fresh, err := c.Listing(ctx)
	require.NoError(t, err)
	assert.Contains(t, fresh, "./new.txt")
}

func TestListingUnavailable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake")
	}
	r := newTree(t, map[string]string{"a.txt": "a"})
	fakeFind(t, "echo partial; exit 1")

	out, err := New(r, Options{}).Build(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "working directory:\n\n"+ListingUnavailable))
}

func TestListingLaunchFailureOmitsSection(t *testing.T) {
	r := newTree(t, map[string]string{"a.txt": "a"})
	t.Setenv("PATH", t.TempDir())

	c := New(r, Options{})
	_, err := c.Listing(context.Background())
	assert.ErrorIs(t, err, errListingFailed)

	out, err := c.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultPreamble, out)
}

func TestWatcherInvalidatesListing(t *testing.T) {
	requireFind(t)
	r := newTree(t, map[string]string{"a.txt": "a", "sub/b.txt": "b"})
	c := New(r, Options{})
	ctx := context.Background()

	w, err := Watch(ctx, c)
	require.NoError(t, err)
	defer w.Close()

	_, err = c.Listing(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(r.Base(), "sub", "added.txt"), nil, 0o644))

	require.Eventually(t, func() bool {
		listing, err := c.Listing(ctx)
		return err == nil && strings.Contains(listing, "./sub/added.txt")
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcherDepth(t *testing.T) {
	r := newTree(t, map[string]string{"d1/d2/d3/deep.txt": "x"})
	c := New(r, Options{})

	w := &Watcher{target: c, maxDepth: c.opts.ListingDepth - 1}
	assert.Equal(t, 0, w.depth(r.Base()))
	assert.Equal(t, 1, w.depth(filepath.Join(r.Base(), "d1")))
	assert.Equal(t, 3, w.depth(filepath.Join(r.Base(), "d1", "d2", "d3")))
}
