// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

// Class sentinels. Every typed error in this package matches exactly one of them.
var (
	// ErrValidation marks a command rejected before execution.
	ErrValidation = errors.New("command validation failed")

	// ErrConfinement marks a path rejected by the resolver.
	ErrConfinement = errors.New("path confinement failed")
)

// ErrEmptyCommand is returned for a command that is empty after trimming.
var ErrEmptyCommand error = emptyCommandError{}

type emptyCommandError struct{}

func (emptyCommandError) Error() string { return "empty command" }

func (emptyCommandError) Unwrap() error { return ErrValidation }

// ForbiddenPatternError is returned when the raw command contains a forbidden pattern.
type ForbiddenPatternError struct {
	Pattern string
}

func (e *ForbiddenPatternError) Error() string {
	return "forbidden pattern in command: " + displayPattern(e.Pattern)
}

func (e *ForbiddenPatternError) Unwrap() error { return ErrValidation }

// CommandNotAllowedError is returned when a pipeline stage starts with a command
// that is not on the allow-list.
type CommandNotAllowedError struct {
	Command string
	Allowed []string
}

func (e *CommandNotAllowedError) Error() string {
	return fmt.Sprintf("command not in allow-list: %s. Allowed commands: %s",
		e.Command, strings.Join(e.Allowed, ", "))
}

func (e *CommandNotAllowedError) Unwrap() error { return ErrValidation }

// TraversalError is returned when a path contains the parent-directory token.
type TraversalError struct {
	Path string
}

func (e *TraversalError) Error() string {
	return "path traversal not allowed: " + e.Path
}

func (e *TraversalError) Unwrap() error { return ErrConfinement }

// OutsideBaseError is returned when a path resolves outside the base directory.
type OutsideBaseError struct {
	Path string
}

func (e *OutsideBaseError) Error() string {
	return "path is outside base directory"
}

func (e *OutsideBaseError) Unwrap() error { return ErrConfinement }

// PathIOError is returned when a path cannot be canonicalized (missing file,
// dangling symlink, permission denied). It is an I/O failure, not a confinement
// verdict.
type PathIOError struct {
	Path string
	Err  error
}

func (e *PathIOError) Error() string {
	return fmt.Sprintf("io error: %s: %v", e.Path, e.Err)
}

func (e *PathIOError) Unwrap() error { return e.Err }

// displayPattern makes control characters readable in error messages.
func displayPattern(p string) string {
	switch p {
	case "\n":
		return `\n`
	case "\r":
		return `\r`
	}
	return p
}
