// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !(darwin || linux || freebsd || netbsd || openbsd)

package runner

import (
	"os/exec"
	"time"
)

// setupProcessGroup only bounds pipe draining; the default Cancel kills the
// direct child.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = 3 * time.Second
}
