// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the sandboxed tools over HTTP.
//
// The API is JSON only. Tool failures (validation, confinement, execution)
// are returned as results with success=false and an error_class; only
// requests that never reach a tool (unknown tool, malformed arguments,
// oversized body) get a 4xx status.
//
// # Endpoints
//
//   - GET  /health           - Liveness, version and call count (never authenticated)
//   - GET  /v1/tools         - Tool names, descriptions and JSON-Schema inputs
//   - POST /v1/tools/{name}  - Run a tool; the body is its JSON arguments
//   - GET  /v1/context       - Workspace preamble plus file listing
//
// # Security Features
//
//   - Bearer token authentication on /v1 with constant-time comparison
//   - Per-client rate limiting (token bucket per IP)
//   - Forwarded client addresses honored only from trusted proxies
//   - Security headers and panic recovery on every route
//
// # Key Types
//
//   - Server: router, middleware chain and lifecycle
//   - Options: listen address, token and rate limit
//   - RateLimiter: per-client token buckets
//
// # Usage
//
//	srv := server.New(executor, ws, server.OptionsFromConfig(cfg.Server, version))
//	if err := srv.Serve(ctx); err != nil {
//		return err
//	}
package server
