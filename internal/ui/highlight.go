// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui renders tool results for humans.
// highlight.go applies chroma syntax highlighting to read_file output.
package ui

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
)

// maxHighlightBytes skips highlighting for content larger than this; the
// read_file cap keeps normal results well below it.
const maxHighlightBytes = 64 * 1024

// Highlight colors code for a 256-color terminal. The lexer is picked from
// filename, then from the content. Content with no better lexer than plain
// text is returned unchanged.
func Highlight(code, filename string) string {
	if code == "" || len(code) > maxHighlightBytes {
		return code
	}

	lexer := lexers.Match(filename)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		return code
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// Language returns the lexer name chroma would use for filename, or "".
func Language(filename string) string {
	if lexer := lexers.Match(filename); lexer != nil {
		return lexer.Config().Name
	}
	return ""
}
