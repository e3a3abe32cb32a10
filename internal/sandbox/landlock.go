// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sandbox decides whether an untrusted tool request may touch the system.
// landlock.go computes the filesystem grants for the optional process lockdown.
package sandbox

import (
	"os"
	"path/filepath"
	"strings"
)

// Grant is one filesystem path the locked-down process may still use.
type Grant struct {
	Path  string
	Write bool
}

// systemReadOnlyDirs hold the binaries, shared libraries and data files the
// allow-listed commands need at run time.
var systemReadOnlyDirs = []string{
	"/bin",
	"/sbin",
	"/usr",
	"/lib",
	"/lib64",
	"/etc",
	"/opt",
}

// Lockdown restricts this process, and every child it spawns, to read-only
// access of the base directory plus what the tools need to run.
type Lockdown struct {
	base       string
	extraRO    []string
	writable   []string
	bestEffort bool
}

// NewLockdown builds a lockdown for base. writable lists state directories
// this process itself must keep writing (audit log, history).
func NewLockdown(base string, extraReadOnly, writable []string, bestEffort bool) *Lockdown {
	return &Lockdown{
		base:       base,
		extraRO:    append([]string(nil), extraReadOnly...),
		writable:   append([]string(nil), writable...),
		bestEffort: bestEffort,
	}
}

// Grants returns the paths that stay reachable, skipping any that do not exist.
func (l *Lockdown) Grants() []Grant {
	seen := make(map[string]bool)
	var grants []Grant
	add := func(path string, write bool) {
		if path == "" {
			return
		}
		abs, err := filepath.Abs(path)
		if err != nil || seen[abs] {
			return
		}
		if _, err := os.Stat(abs); err != nil {
			return
		}
		seen[abs] = true
		grants = append(grants, Grant{Path: abs, Write: write})
	}

	// Writable entries first so a read-only duplicate cannot downgrade them.
	add(os.TempDir(), true)
	add("/dev/null", true)
	for _, dir := range l.writable {
		add(dir, true)
	}
	if cache, err := os.UserCacheDir(); err == nil {
		add(filepath.Join(cache, "ripgrep-all"), true)
	}

	add(l.base, false)
	for _, dir := range systemReadOnlyDirs {
		add(dir, false)
	}
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if strings.TrimSpace(dir) != "" {
			add(dir, false)
		}
	}
	for _, dir := range l.extraRO {
		add(dir, false)
	}
	return grants
}
