// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigtools/internal/logging"
	"github.com/jeranaias/rigtools/internal/mcp"
	"github.com/jeranaias/rigtools/internal/server"
)

// serveOptions holds options for the serve command.
type serveOptions struct {
	http bool
	addr string
}

func (a *App) newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools to an agent",
		Long: `Serve the tools to an agent until interrupted.

By default the tools are served over MCP on stdin/stdout, with the workspace
context sent as the server instructions. With --http they are served as a JSON
API instead:

  GET  /health             liveness (no authentication)
  GET  /v1/tools           tool descriptions and input schemas
  POST /v1/tools/{name}    run a tool; the body is its arguments
  GET  /v1/context         the workspace context

The HTTP address, bearer token and rate limit come from the [server] section
of the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.http || cmd.Flags().Changed("addr") {
				return a.serveHTTP(cmd.Context(), opts)
			}
			return a.serveMCP(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&opts.http, "http", false, "Serve a JSON API over HTTP instead of MCP on stdio")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (implies --http; default from config)")
	return cmd
}

func (a *App) serveMCP(ctx context.Context) error {
	env, err := a.openEnv(ctx, envOptions{audit: true, watch: true, lockdown: true, server: true})
	if err != nil {
		return err
	}
	defer env.Close()

	instructions, err := env.workspace.Build(ctx)
	if err != nil {
		return fmt.Errorf("workspace context: %w", err)
	}

	srv := mcp.New(env.executor, mcp.Options{
		Version:      Version,
		Instructions: instructions,
	})
	return srv.ServeStdio(ctx)
}

func (a *App) serveHTTP(ctx context.Context, opts *serveOptions) error {
	env, err := a.openEnv(ctx, envOptions{audit: true, watch: true, lockdown: true, server: true})
	if err != nil {
		return err
	}
	defer env.Close()

	serverOpts := server.OptionsFromConfig(env.cfg.Server, Version)
	if opts.addr != "" {
		serverOpts.Addr = opts.addr
	}
	if serverOpts.Token == "" {
		logging.Warn().
			Add(logging.Component("server")).
			Msg("no server token configured; /v1 is unauthenticated")
	}

	return server.New(env.executor, env.workspace, serverOpts).Serve(ctx)
}
