// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigtools command line.
//
// Every command loads the configuration, builds the confined tool registry
// and runs calls through one Executor, so the same validation, time limits
// and audit trail apply whether a call comes from a person or an agent.
//
// # Key Types
//
//   - App: the cobra command tree with injectable stdin, stdout and stderr
//   - CallFailedError: a tool call that ran and failed, carrying its class
//
// # Usage
//
//	app := cli.New()
//	if err := app.Execute(context.Background()); err != nil {
//	    os.Exit(cli.ExitCode(err))
//	}
//
// # Commands Overview
//
//   - call: run one tool and print the result
//   - repl: run tools interactively
//   - serve: serve the tools over MCP (stdio) or HTTP
//   - describe: print tool descriptions and schemas
//   - context: print the workspace context sent to agents
//   - config: show, get, path and init
//   - audit: verify, tail and stats
//   - version: print build information
//
// Exit codes: 0 success, 1 execution failure, 2 usage, 3 config, 6 a call
// rejected by command validation or path confinement.
package cli
