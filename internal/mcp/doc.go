// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mcp serves the sandboxed tools over the Model Context Protocol.
//
// Each registered tool becomes an MCP tool with a raw JSON handler. The
// workspace context is sent as the server instructions, so a client sees the
// preamble and file listing without calling anything.
//
// # Usage
//
//	srv := mcp.New(executor, mcp.Options{Version: version, Instructions: preamble})
//	return srv.ServeStdio(ctx)
package mcp
