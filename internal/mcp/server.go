// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mcp serves the sandboxed tools over the Model Context Protocol.
// server.go registers every tool with an mcp-go server and runs it on stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpgo "github.com/felixgeelhaar/mcp-go"

	"github.com/jeranaias/rigtools/internal/logging"
	"github.com/jeranaias/rigtools/internal/tools"
)

// DefaultName is the server name announced to clients.
const DefaultName = "rigtools"

// Options configures a Server.
type Options struct {
	// Name is the announced server name (DefaultName when empty)
	Name string

	// Version is the announced server version
	Version string

	// Instructions is sent to clients at initialization, typically the
	// workspace context
	Instructions string
}

// Server exposes an Executor's tools over MCP.
type Server struct {
	srv      *mcpgo.Server
	executor *tools.Executor
}

// New creates a server with every tool of executor's registry.
func New(executor *tools.Executor, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	info := mcpgo.ServerInfo{
		Name:        opts.Name,
		Version:     opts.Version,
		Description: "Sandboxed read-only tools confined to one directory",
		Capabilities: mcpgo.Capabilities{
			Tools: true,
		},
	}

	var serverOpts []mcpgo.Option
	if opts.Instructions != "" {
		serverOpts = append(serverOpts, mcpgo.WithInstructions(opts.Instructions))
	}

	s := &Server{
		srv:      mcpgo.NewServer(info, serverOpts...),
		executor: executor,
	}
	for _, t := range executor.Registry().All() {
		s.registerTool(t)
	}
	s.srv.Use(mcpgo.Recover(), mcpgo.RequestID())
	return s
}

func (s *Server) registerTool(t *tools.Tool) {
	name := t.Name
	s.srv.Tool(name).
		Description(describeTool(t)).
		Handler(func(ctx context.Context, input json.RawMessage) (string, error) {
			return s.call(ctx, name, input)
		})
}

// call runs one tool. A failed call becomes an MCP tool error whose text
// starts with the error class.
func (s *Server) call(ctx context.Context, name string, input json.RawMessage) (string, error) {
	result, err := s.executor.CallJSON(ctx, name, input)
	if err != nil {
		return "", fmt.Errorf("%s error: %w", result.Class, err)
	}
	return result.Output, nil
}

// describeTool appends a parameter summary to the description, since the
// tool is registered with a raw JSON handler and carries no input schema.
func describeTool(t *tools.Tool) string {
	if len(t.Schema.Parameters) == 0 {
		return t.Description
	}
	var b strings.Builder
	b.WriteString(t.Description)
	b.WriteString("\n\nParameters:")
	for _, p := range t.Schema.Parameters {
		fmt.Fprintf(&b, "\n- %s (%s", p.Name, p.Type)
		if p.Required {
			b.WriteString(", required")
		}
		if p.Default != nil {
			fmt.Fprintf(&b, ", default %v", p.Default)
		}
		if p.Minimum != nil {
			fmt.Fprintf(&b, ", minimum %d", *p.Minimum)
		}
		b.WriteString("): ")
		b.WriteString(p.Description)
	}
	return b.String()
}

// Underlying returns the mcp-go server.
func (s *Server) Underlying() *mcpgo.Server {
	return s.srv
}

// ServeStdio serves over stdin/stdout until ctx is done or stdin closes.
// Nothing else may write to stdout while it runs.
func (s *Server) ServeStdio(ctx context.Context) error {
	logging.Info().
		Add(logging.Component("mcp")).
		Add(logging.Int("tools", len(s.executor.Registry().All()))).
		Msg("serving MCP on stdio")
	err := mcpgo.ServeStdio(ctx, s.srv)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
