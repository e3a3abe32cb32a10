// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sandbox decides whether an untrusted tool request may touch the system.
// path.go implements base-directory confinement for caller-supplied paths.
package sandbox

import (
	"os"
	"path/filepath"
	"strings"
)

// ConfinedPath is an absolute, symlink-free path that was under the base
// directory when it was resolved. Only Resolver.Resolve produces one.
type ConfinedPath struct {
	path string
}

// String returns the absolute path.
func (p ConfinedPath) String() string { return p.path }

// IsZero reports whether p was never resolved.
func (p ConfinedPath) IsZero() bool { return p.path == "" }

// Resolver confines relative paths to a base directory fixed at construction.
type Resolver struct {
	base string
}

// NewResolver returns a Resolver rooted at base. The base must exist.
func NewResolver(base string) (*Resolver, error) {
	canonical, err := canonicalize(base)
	if err != nil {
		return nil, &PathIOError{Path: base, Err: err}
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, &PathIOError{Path: base, Err: err}
	}
	if !info.IsDir() {
		return nil, &PathIOError{Path: base, Err: os.ErrInvalid}
	}
	return &Resolver{base: canonical}, nil
}

// Base returns the canonical base directory.
func (r *Resolver) Base() string { return r.base }

// Resolve confines rel to the base directory.
//
// SECURITY: The ".." check is a plain substring test applied before any
// filesystem access. It also rejects names like "notes..txt".
func (r *Resolver) Resolve(rel string) (ConfinedPath, error) {
	if strings.Contains(rel, "..") {
		return ConfinedPath{}, &TraversalError{Path: rel}
	}

	joined := rel
	if !filepath.IsAbs(rel) {
		joined = filepath.Join(r.base, rel)
	}

	canonical, err := canonicalize(joined)
	if err != nil {
		return ConfinedPath{}, &PathIOError{Path: rel, Err: err}
	}
	// The base is canonicalized again so a swapped base symlink cannot widen the root.
	base, err := canonicalize(r.base)
	if err != nil {
		return ConfinedPath{}, &PathIOError{Path: r.base, Err: err}
	}

	if !isPathWithinDir(canonical, base) {
		return ConfinedPath{}, &OutsideBaseError{Path: rel}
	}
	return ConfinedPath{path: canonical}, nil
}

// Rel returns p relative to the base directory ("." for the base itself).
func (r *Resolver) Rel(p ConfinedPath) (string, error) {
	return filepath.Rel(r.base, p.path)
}

// canonicalize resolves symlinks and returns an absolute, cleaned path.
func canonicalize(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(resolved)
}

// isPathWithinDir reports whether path equals dir or lies beneath it.
// The separator suffix keeps /home/userEVIL from matching /home/user.
func isPathWithinDir(path, dir string) bool {
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)
	if path == dir {
		return true
	}
	dirWithSep := dir
	if !strings.HasSuffix(dirWithSep, string(filepath.Separator)) {
		dirWithSep += string(filepath.Separator)
	}
	return strings.HasPrefix(path, dirWithSep)
}
