// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sandbox decides whether an untrusted tool request may touch the system.
// shell.go cross-checks approved commands against a real POSIX shell grammar.
package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ShellSyntaxError is returned when a command that will be handed to the shell
// does not parse as a plain pipeline of simple commands.
type ShellSyntaxError struct {
	Reason string
}

func (e *ShellSyntaxError) Error() string {
	return "unsupported shell syntax: " + e.Reason
}

func (e *ShellSyntaxError) Unwrap() error { return ErrValidation }

var errNotSimple = errors.New("not a simple command")

func newParser() *syntax.Parser {
	return syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangPOSIX))
}

// validateShellPipeline parses raw the way sh will and requires every stage of
// the resulting pipeline to start with an allow-listed literal command name.
// The quote-toggle splitter and sh disagree on inputs such as 'a\' (a backslash
// does not escape inside single quotes), so this pass closes that gap.
func (p *CommandPolicy) validateShellPipeline(raw string) error {
	file, err := newParser().Parse(strings.NewReader(raw), "")
	if err != nil {
		return &ShellSyntaxError{Reason: err.Error()}
	}
	if len(file.Stmts) != 1 {
		return &ShellSyntaxError{Reason: "expected a single pipeline"}
	}

	calls, err := pipelineCalls(file.Stmts[0])
	if err != nil {
		return &ShellSyntaxError{Reason: err.Error()}
	}
	for _, call := range calls {
		name, ok := literalWord(raw, call.Args[0])
		if !ok {
			return &ShellSyntaxError{Reason: "command name must be a literal word"}
		}
		if !p.IsAllowed(name) {
			return &CommandNotAllowedError{Command: name, Allowed: p.Allowed()}
		}
	}
	return nil
}

// pipelineCalls flattens a statement made only of "|" operators into its
// simple commands, left to right.
func pipelineCalls(stmt *syntax.Stmt) ([]*syntax.CallExpr, error) {
	if stmt.Negated || stmt.Background || stmt.Coprocess || len(stmt.Redirs) > 0 {
		return nil, fmt.Errorf("statement modifiers are not allowed")
	}

	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		if len(cmd.Assigns) > 0 {
			return nil, fmt.Errorf("variable assignments are not allowed")
		}
		if len(cmd.Args) == 0 {
			return nil, fmt.Errorf("empty pipeline stage")
		}
		return []*syntax.CallExpr{cmd}, nil
	case *syntax.BinaryCmd:
		if cmd.Op != syntax.Pipe {
			return nil, fmt.Errorf("operator %s is not allowed", cmd.Op)
		}
		left, err := pipelineCalls(cmd.X)
		if err != nil {
			return nil, err
		}
		right, err := pipelineCalls(cmd.Y)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	case nil:
		return nil, fmt.Errorf("empty pipeline stage")
	default:
		return nil, fmt.Errorf("compound commands are not allowed")
	}
}

// =============================================================================
// ARGUMENT VECTORS
// =============================================================================

// SplitArgs turns a single simple command into an argument vector without a
// shell. Quotes and backslash escapes are removed the way sh would remove them;
// parameter expansions, globs and tildes are kept verbatim, never expanded.
// Anything that is not one simple command falls back to whitespace splitting,
// which is still executed without a shell.
func SplitArgs(cmd string) []string {
	args, err := parseSimpleCommand(cmd)
	if err != nil {
		return strings.Fields(cmd)
	}
	return args
}

func parseSimpleCommand(cmd string) ([]string, error) {
	file, err := newParser().Parse(strings.NewReader(cmd), "")
	if err != nil {
		return nil, err
	}
	if len(file.Stmts) != 1 {
		return nil, errNotSimple
	}
	stmt := file.Stmts[0]
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok || stmt.Negated || stmt.Background || len(stmt.Redirs) > 0 || len(call.Assigns) > 0 || len(call.Args) == 0 {
		return nil, errNotSimple
	}

	args := make([]string, 0, len(call.Args))
	for _, word := range call.Args {
		args = append(args, wordValue(cmd, word))
	}
	return args, nil
}

// wordValue removes one level of quoting from word. Parts that sh would expand
// are copied from the source text unchanged.
func wordValue(src string, word *syntax.Word) string {
	var b strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			b.WriteString(unescapeUnquoted(p.Value))
		case *syntax.SglQuoted:
			b.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					b.WriteString(unescapeDoubleQuoted(lit.Value))
				} else {
					b.WriteString(nodeSource(src, inner))
				}
			}
		default:
			b.WriteString(nodeSource(src, part))
		}
	}
	return b.String()
}

// literalWord returns the unquoted value of word if it has no expansions.
func literalWord(src string, word *syntax.Word) (string, bool) {
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit, *syntax.SglQuoted:
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if _, ok := inner.(*syntax.Lit); !ok {
					return "", false
				}
			}
		default:
			return "", false
		}
	}
	return wordValue(src, word), true
}

func nodeSource(src string, node syntax.Node) string {
	start, end := int(node.Pos().Offset()), int(node.End().Offset())
	if start < 0 || end > len(src) || start > end {
		return ""
	}
	return src[start:end]
}

// unescapeUnquoted drops every backslash outside quotes, keeping the escaped byte.
func unescapeUnquoted(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			if s[i] == '\n' {
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// unescapeDoubleQuoted drops a backslash only before the bytes it escapes in
// double quotes.
func unescapeDoubleQuoted(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '$', '`', '"', '\\':
				i++
			case '\n':
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
