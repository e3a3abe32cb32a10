// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !linux

package sandbox

import "errors"

// Supported reports whether this platform can apply a lockdown.
func Supported() bool { return false }

// Apply is unavailable outside Linux. In best-effort mode it is a no-op.
func (l *Lockdown) Apply() error {
	if l.bestEffort {
		return nil
	}
	return errors.New("landlock is only available on linux")
}
