// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigtools/internal/tools"
	"github.com/jeranaias/rigtools/internal/ui"
)

// describeOptions holds options for the describe command.
type describeOptions struct {
	format string
}

// toolDoc is the exported description of one tool.
type toolDoc struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Risk        string         `json:"risk" yaml:"risk"`
	Parameters  []parameterDoc `json:"parameters" yaml:"parameters"`
	InputSchema map[string]any `json:"input_schema" yaml:"-"`
}

type parameterDoc struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required" yaml:"required"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
	Minimum     *int   `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Description string `json:"description" yaml:"description"`
}

func (a *App) newDescribeCmd() *cobra.Command {
	opts := &describeOptions{}

	cmd := &cobra.Command{
		Use:   "describe [TOOL]",
		Short: "Describe the available tools",
		Long: `Describe the tools, or one tool, with their parameters.

Formats:
  text      Human-readable summary (default)
  json      Descriptions plus the JSON-Schema sent to agents
  yaml      Descriptions and parameters
  markdown  Markdown, rendered when stdout is a terminal`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDescribe(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format (text, json, yaml, markdown)")
	return cmd
}

func (a *App) runDescribe(cmd *cobra.Command, opts *describeOptions, args []string) error {
	env, err := a.openEnv(cmd.Context(), envOptions{})
	if err != nil {
		return err
	}
	defer env.Close()

	selected := env.registry.All()
	if len(args) == 1 {
		t, err := env.registry.Lookup(args[0])
		if err != nil {
			return err
		}
		selected = []*tools.Tool{t}
	}

	docs := make([]toolDoc, 0, len(selected))
	for _, t := range selected {
		docs = append(docs, newToolDoc(t))
	}

	switch opts.format {
	case "text":
		a.describeText(selected)
		return nil
	case "json":
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	case "yaml":
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(docs); err != nil {
			return err
		}
		return enc.Close()
	case "markdown", "md":
		md := describeMarkdown(docs)
		if IsStdoutTTY() {
			md = renderMarkdown(md)
		}
		fmt.Fprint(a.stdout, md)
		return nil
	default:
		return &tools.ArgumentError{Param: "format", Message: fmt.Sprintf("unknown format %q (text, json, yaml, markdown)", opts.format)}
	}
}

func newToolDoc(t *tools.Tool) toolDoc {
	doc := toolDoc{
		Name:        t.Name,
		Description: t.Description,
		Risk:        t.RiskLevel.String(),
		InputSchema: t.Schema.JSONSchema(),
	}
	for _, p := range t.Schema.Parameters {
		doc.Parameters = append(doc.Parameters, parameterDoc{
			Name:        p.Name,
			Type:        p.Type,
			Required:    p.Required,
			Default:     p.Default,
			Minimum:     p.Minimum,
			Description: p.Description,
		})
	}
	return doc
}

func (a *App) describeText(selected []*tools.Tool) {
	for i, t := range selected {
		if i > 0 {
			fmt.Fprintln(a.stdout)
		}
		fmt.Fprintf(a.stdout, "%s  %s\n", ui.TitleStyle.Render(t.Name), ui.RiskStyle(t.RiskLevel).Render(t.RiskLevel.String()+" risk"))
		fmt.Fprintf(a.stdout, "  %s\n", WrapIndent(t.Description, 2))
		for _, p := range t.Schema.Parameters {
			req := ""
			if p.Required {
				req = ", required"
			}
			fmt.Fprintf(a.stdout, "  %s %s\n",
				ui.SectionStyle.Render(fmt.Sprintf("%s (%s%s)", p.Name, p.Type, req)),
				ui.MutedStyle.Render(p.Description))
		}
	}
}

func describeMarkdown(docs []toolDoc) string {
	var b strings.Builder
	b.WriteString("# Tools\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n\n*Risk: %s*\n", d.Name, d.Description, d.Risk)
		if len(d.Parameters) == 0 {
			continue
		}
		b.WriteString("\n| Parameter | Type | Required | Description |\n|---|---|---|---|\n")
		for _, p := range d.Parameters {
			req := "no"
			if p.Required {
				req = "yes"
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", p.Name, p.Type, req, p.Description)
		}
	}
	return b.String()
}
