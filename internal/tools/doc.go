// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools exposes the sandboxed capabilities an agent may call.
//
// Every call arrives with untrusted, model-generated arguments. The façades in
// this package put the sandbox checks in front of the process runner and turn
// whatever the OS reports into a small set of typed errors.
//
// # Key Types
//
//   - Tool: name, description and parameter schema of one capability
//   - Registry: the closed set of tools bound to one base directory
//   - Executor: dispatch with a default deadline, history and audit hook
//   - Result: output, error message and error class of one call
//
// # Available Tools
//
//   - bash: allow-listed, read-only commands, optionally piped
//   - read_file: windowed reads of files under the base directory
//   - search_docs: ripgrep-all search under the base directory
//
// # Errors
//
// Failures wrap sandbox.ErrValidation, sandbox.ErrConfinement, ErrExecution or
// ErrInvalidArguments. Classify maps any error to its ErrorClass. A search
// without matches is a success with the text "No matches found".
package tools
