// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui renders tool results for humans.
//
// Nothing here is used by the MCP or HTTP transports; it serves the CLI and
// the REPL only.
//
// # Key Types
//
//   - Pager: bubbletea model that shows a spinner while a call runs and then
//     pages the result in a viewport
//   - RenderOptions: controls syntax highlighting of read_file output
//
// # Rendering
//
// Echo and ErrorLine apply the display widths from the util package (200
// cells for a call line, 500 for an error line) so a huge argument or error
// never floods the terminal.
package ui
