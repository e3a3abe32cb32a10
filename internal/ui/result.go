// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"

	"github.com/jeranaias/rigtools/internal/tools"
	"github.com/jeranaias/rigtools/internal/util"
)

// Echo renders the call line shown before a result: ">> name(args)".
func Echo(name, args string) string {
	line := fmt.Sprintf(">> %s(%s)", name, util.SingleLine(args))
	return MutedStyle.Render(util.TruncateDisplay(line, util.CallDisplayWidth))
}

// ErrorLine renders a failure as a single "Error: ..." line.
func ErrorLine(message string) string {
	msg := util.TruncateDisplay(util.SingleLine(message), util.ErrorDisplayWidth)
	return ErrorStyle.Render("Error:") + " " + msg
}

// RenderOptions controls RenderResult.
type RenderOptions struct {
	// Highlight enables syntax highlighting of read_file output
	Highlight bool

	// Filename picks the highlighter; usually the read_file path
	Filename string
}

// RenderResult renders a result for a terminal. Failures become ErrorLine;
// a truncated read gets a warning footer.
func RenderResult(res tools.Result, opts RenderOptions) string {
	if !res.Success {
		return ErrorLine(res.Error)
	}
	out := res.Output
	if opts.Highlight && opts.Filename != "" {
		body, marker, found := strings.Cut(out, tools.TruncationMarker)
		out = Highlight(body, opts.Filename)
		if found {
			out += WarningStyle.Render(tools.TruncationMarker) + marker
		}
	}
	return out
}
