// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the command line and the config layer.
//
// # Key Functions
//
//   - TruncateDisplay: width-aware truncation with an ellipsis
//   - SingleLine: flattens multi-line values for one-line echoes
//   - AtomicWriteFile: crash-safe file writing with fsync
package util
