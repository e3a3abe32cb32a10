// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// contextOptions holds options for the context command.
type contextOptions struct {
	render bool
}

func (a *App) newContextCmd() *cobra.Command {
	opts := &contextOptions{}

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Print the workspace context sent to agents",
		Long: `Print the preamble an agent receives: the base directory's context file
(AGENTS.md by default) or the built-in preamble, followed by the list of
available files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a.openEnv(cmd.Context(), envOptions{})
			if err != nil {
				return err
			}
			defer env.Close()

			text, err := env.workspace.Build(cmd.Context())
			if err != nil {
				return err
			}
			if opts.render && IsStdoutTTY() {
				text = renderMarkdown(text)
			}
			if !strings.HasSuffix(text, "\n") {
				text += "\n"
			}
			fmt.Fprint(a.stdout, text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.render, "render", false, "Render as markdown when stdout is a terminal")
	return cmd
}
