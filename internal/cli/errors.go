// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"strings"

	"github.com/jeranaias/rigtools/internal/config"
	"github.com/jeranaias/rigtools/internal/tools"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError covers execution failures and anything unclassified
	ExitGeneralError = 1
	// ExitUsageError indicates bad flags, arguments or an unknown tool
	ExitUsageError = 2
	// ExitConfigError indicates an unreadable or invalid config file
	ExitConfigError = 3
	// ExitSecurityError indicates a rejected command or path
	ExitSecurityError = 6
)

// CallFailedError is returned by commands whose tool call failed. The
// message is the tool's error text, already shown to the user or not.
type CallFailedError struct {
	Tool    string
	Class   tools.ErrorClass
	Message string
}

func (e *CallFailedError) Error() string {
	return e.Message
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var failed *CallFailedError
	if errors.As(err, &failed) {
		switch failed.Class {
		case tools.ClassValidation, tools.ClassConfinement:
			return ExitSecurityError
		case tools.ClassArguments, tools.ClassUnknownTool:
			return ExitUsageError
		default:
			return ExitGeneralError
		}
	}

	var noTTY *TTYRequiredError
	if errors.As(err, &noTTY) {
		return ExitUsageError
	}

	var invalid config.ValidateErrors
	if errors.As(err, &invalid) {
		return ExitConfigError
	}
	switch tools.Classify(err) {
	case tools.ClassArguments, tools.ClassUnknownTool:
		return ExitUsageError
	}
	if isUsageError(err) {
		return ExitUsageError
	}
	return ExitGeneralError
}

// isUsageError recognizes cobra's flag and argument errors, which are plain
// fmt errors.
func isUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "invalid argument", "flag needs an argument", "accepts ", "requires at least"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
