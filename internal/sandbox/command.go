// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sandbox decides whether an untrusted tool request may touch the system.
// command.go implements the shell command allow-list and forbidden-pattern checks.
package sandbox

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// POLICY TABLES
// =============================================================================

// DefaultAllowedCommands are the read-only commands a pipeline stage may start with.
var DefaultAllowedCommands = []string{
	"grep",
	"find",
	"cat",
	"head",
	"tail",
	"ls",
	"tree",
	"wc",
	"file",
	"rg",
}

// DefaultForbiddenPatterns reject a command wherever they appear, quoted or not.
// Order matters: the first match is the one reported.
var DefaultForbiddenPatterns = []string{
	";",
	"&&",
	"||",
	"`",
	"$(",
	">",
	"<",
	">>",
	"<<",
	// Backgrounding and line breaks separate statements just like ";".
	"&",
	"\n",
	"\r",
}

// CommandPolicy is an immutable allow-list / forbidden-pattern pair.
// It is built once at startup and shared by reference.
type CommandPolicy struct {
	allowed   []string
	allowSet  map[string]struct{}
	forbidden []string
}

// NewCommandPolicy copies the given tables into a new policy.
func NewCommandPolicy(allowed, forbidden []string) *CommandPolicy {
	p := &CommandPolicy{
		allowed:   append([]string(nil), allowed...),
		allowSet:  make(map[string]struct{}, len(allowed)),
		forbidden: append([]string(nil), forbidden...),
	}
	for _, name := range allowed {
		p.allowSet[name] = struct{}{}
	}
	return p
}

// DefaultCommandPolicy returns the policy built from the default tables.
func DefaultCommandPolicy() *CommandPolicy {
	return NewCommandPolicy(DefaultAllowedCommands, DefaultForbiddenPatterns)
}

// Allowed returns a copy of the allow-list in declaration order.
func (p *CommandPolicy) Allowed() []string {
	return append([]string(nil), p.allowed...)
}

// Forbidden returns a copy of the forbidden patterns in scan order.
func (p *CommandPolicy) Forbidden() []string {
	return append([]string(nil), p.forbidden...)
}

// IsAllowed reports whether name is on the allow-list (exact, case-sensitive).
func (p *CommandPolicy) IsAllowed(name string) bool {
	_, ok := p.allowSet[name]
	return ok
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate accepts raw only if it contains no forbidden pattern and every
// pipeline stage starts with an allow-listed command.
func (p *CommandPolicy) Validate(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrEmptyCommand
	}

	// The forbidden scan must run on the unsplit string and ignore quoting.
	if pattern, found := p.findForbidden(raw); found {
		return &ForbiddenPatternError{Pattern: pattern}
	}

	stages := SplitPipeline(raw)
	for _, stage := range stages {
		name := firstToken(stage)
		if name == "" {
			continue
		}
		if !p.IsAllowed(name) {
			return &CommandNotAllowedError{Command: name, Allowed: p.Allowed()}
		}
	}

	// Only a multi-stage command reaches a shell; make sure the shell sees the
	// same stages we just approved.
	if len(stages) > 1 {
		return p.validateShellPipeline(raw)
	}
	return nil
}

// findForbidden scans raw and its NFKC form for the first forbidden pattern.
func (p *CommandPolicy) findForbidden(raw string) (string, bool) {
	for _, pattern := range p.forbidden {
		if strings.Contains(raw, pattern) {
			return pattern, true
		}
	}
	normalized := norm.NFKC.String(raw)
	if normalized == raw {
		return "", false
	}
	for _, pattern := range p.forbidden {
		if strings.Contains(normalized, pattern) {
			return pattern, true
		}
	}
	return "", false
}

// =============================================================================
// PIPELINE SPLITTING
// =============================================================================

// SplitPipeline splits cmd on pipe characters that are outside single- or
// double-quoted spans. A quote preceded by a backslash does not toggle, and a
// quote of one kind is literal inside the other. A trailing pipe yields one
// empty final stage. Unbalanced quotes are not an error: the open span simply
// runs to the end of the string.
func SplitPipeline(cmd string) []string {
	var stages []string
	start := 0
	inSingle, inDouble := false, false
	var prev rune

	for i, c := range cmd {
		if c == '\'' && prev != '\\' && !inDouble {
			inSingle = !inSingle
		} else if c == '"' && prev != '\\' && !inSingle {
			inDouble = !inDouble
		}

		if c == '|' && !inSingle && !inDouble {
			stages = append(stages, cmd[start:i])
			start = i + 1
		}
		prev = c
	}

	return append(stages, cmd[start:])
}

// HasUnquotedPipe reports whether cmd has more than one pipeline stage.
func HasUnquotedPipe(cmd string) bool {
	return len(SplitPipeline(cmd)) > 1
}

// firstToken returns the first whitespace-delimited token of stage.
func firstToken(stage string) string {
	fields := strings.Fields(stage)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
