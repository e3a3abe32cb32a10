// rigtools - sandboxed read-only tools for AI agents.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jeranaias/rigtools/internal/cli"
	"github.com/jeranaias/rigtools/internal/ui"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	err := cli.New().Execute(context.Background())
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, ui.ErrorLine(err.Error()))
	os.Exit(cli.ExitCode(err))
}
