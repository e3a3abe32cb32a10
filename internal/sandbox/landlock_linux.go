// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build linux

package sandbox

import (
	"fmt"
	"os"

	landlock "github.com/landlock-lsm/go-landlock/landlock"
)

// Supported reports whether this platform can apply a lockdown.
func Supported() bool { return true }

// Apply restricts the current process. It cannot be undone.
// Landlock applies to all threads and is inherited by every child process.
func (l *Lockdown) Apply() error {
	grants := l.Grants()
	rules := make([]landlock.Rule, 0, len(grants))
	for _, g := range grants {
		// Landlock rejects directory access rights on regular files.
		isFile := false
		if info, err := os.Stat(g.Path); err == nil && !info.IsDir() {
			isFile = true
		}
		switch {
		case g.Write && isFile:
			rules = append(rules, landlock.RWFiles(g.Path))
		case g.Write:
			rules = append(rules, landlock.RWDirs(g.Path))
		case isFile:
			rules = append(rules, landlock.ROFiles(g.Path))
		default:
			rules = append(rules, landlock.RODirs(g.Path))
		}
	}

	var err error
	if l.bestEffort {
		err = landlock.V6.BestEffort().RestrictPaths(rules...)
	} else {
		err = landlock.V6.RestrictPaths(rules...)
	}
	if err != nil {
		return fmt.Errorf("landlock restriction failed: %w", err)
	}
	return nil
}
