// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools exposes the sandboxed capabilities an agent may call.
// errors.go defines the execution error taxonomy and its classification.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/rigtools/internal/sandbox"
)

// =============================================================================
// CLASS SENTINELS
// =============================================================================

var (
	// ErrExecution marks a call that passed validation but failed to run cleanly.
	ErrExecution = errors.New("tool execution failed")

	// ErrInvalidArguments marks a call whose arguments do not match the schema.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// ErrEmptyQuery is returned by search_docs for a blank query.
var ErrEmptyQuery error = emptyQueryError{}

type emptyQueryError struct{}

func (emptyQueryError) Error() string { return "search query is empty" }

func (emptyQueryError) Unwrap() error { return ErrExecution }

// =============================================================================
// EXECUTION ERRORS
// =============================================================================

// TimeoutError is returned when a process or a whole call exceeded its
// wall-clock limit.
type TimeoutError struct {
	Op      string // "command", "search", or the tool name for a call deadline
	Timeout time.Duration

	// Err is the context error when the caller's deadline ended the call.
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Timeout < time.Second {
		return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout.Round(time.Millisecond))
	}
	return fmt.Sprintf("%s timed out after %d seconds", e.Op, int(e.Timeout.Seconds()))
}

// Unwrap exposes the class and, for a call deadline, the context error.
func (e *TimeoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExecution}
	}
	return []error{ErrExecution, e.Err}
}

// ExitError is returned when a process exited non-zero or was killed by a
// signal, in which case Code is runner.SignaledExitCode.
type ExitError struct {
	Op     string
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s failed with exit code %d: %s", e.Op, e.Code, e.Output)
}

func (e *ExitError) Unwrap() error { return ErrExecution }

// NotInstalledError is returned when an external program is missing.
type NotInstalledError struct {
	Program string
	Hint    string
}

func (e *NotInstalledError) Error() string {
	msg := e.Program + " command not found"
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

func (e *NotInstalledError) Unwrap() error { return ErrExecution }

// IOError wraps a launch or read failure.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return "io error: " + e.Err.Error()
}

// Unwrap exposes both the class and the cause.
func (e *IOError) Unwrap() []error { return []error{ErrExecution, e.Err} }

// =============================================================================
// DISPATCH ERRORS
// =============================================================================

// ArgumentError represents a parameter validation error.
type ArgumentError struct {
	Param   string
	Message string
}

func (e *ArgumentError) Error() string {
	return e.Param + ": " + e.Message
}

func (e *ArgumentError) Unwrap() error { return ErrInvalidArguments }

// UnknownCapabilityError is returned for a tool name outside the closed set.
type UnknownCapabilityError struct {
	Name string
}

func (e *UnknownCapabilityError) Error() string {
	return "unknown tool: " + e.Name
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// ErrorClass is the coarse category of a failed call, used by logs, audit
// records and transports.
type ErrorClass string

const (
	ClassNone        ErrorClass = ""
	ClassValidation  ErrorClass = "validation"
	ClassConfinement ErrorClass = "confinement"
	ClassExecution   ErrorClass = "execution"
	ClassArguments   ErrorClass = "arguments"
	ClassUnknownTool ErrorClass = "unknown_tool"
	ClassCanceled    ErrorClass = "canceled"
)

// Classify maps err to its class. A nil error has ClassNone.
func Classify(err error) ErrorClass {
	var unknown *UnknownCapabilityError
	var pathIO *sandbox.PathIOError
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, sandbox.ErrValidation):
		return ClassValidation
	case errors.Is(err, sandbox.ErrConfinement):
		return ClassConfinement
	case errors.Is(err, ErrInvalidArguments):
		return ClassArguments
	case errors.As(err, &unknown):
		return ClassUnknownTool
	case errors.As(err, &pathIO), errors.Is(err, ErrExecution):
		return ClassExecution
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	default:
		return ClassExecution
	}
}
