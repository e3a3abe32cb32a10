// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sandbox decides whether an untrusted tool request may touch the system.
//
// It holds the two leaf checks every capability is built on, plus an optional
// kernel-level lockdown of the whole process.
//
// # Key Types
//
//   - CommandPolicy: allow-list and forbidden-pattern tables for shell commands
//   - Resolver: confines caller-supplied paths to a fixed base directory
//   - ConfinedPath: a canonical path proven to live under the base directory
//   - Lockdown: best-effort Landlock restriction of this process (Linux only)
//
// # Command Validation
//
// Validation runs two passes with deliberately different tokenization:
//
//  1. A literal, quote-insensitive substring scan for forbidden patterns
//     (statement separators, substitutions, redirections).
//  2. A quote-aware pipeline split (SplitPipeline) whose stages must each start
//     with an allow-listed command name.
//
// A command with more than one stage is run by sh, so it is also parsed with a
// POSIX grammar and must be a plain "|" pipeline of allow-listed simple
// commands. SplitArgs builds the argument vector for single-stage commands,
// which never reach a shell.
//
// # Path Confinement
//
// Any input containing ".." is rejected before the filesystem is consulted.
// Everything else is joined onto the base, symlinks are resolved, and the
// canonical result must stay under the canonical base.
//
// # Errors
//
// Validation failures wrap ErrValidation and confinement failures wrap
// ErrConfinement, so callers can branch with errors.Is.
package sandbox
