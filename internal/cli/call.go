// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigtools/internal/server"
	"github.com/jeranaias/rigtools/internal/tools"
	"github.com/jeranaias/rigtools/internal/ui"
)

// callOptions holds options for the call command.
type callOptions struct {
	argsJSON   string
	outputJSON bool
	pager      bool
	noColor    bool
}

func (a *App) newCallCmd() *cobra.Command {
	opts := &callOptions{}

	cmd := &cobra.Command{
		Use:   "call TOOL [key=value ...]",
		Short: "Run one tool and print its result",
		Long: `Run one tool call and print its output.

Arguments are given as key=value pairs, as a JSON object with --args, or both
(pairs win). Values of integer parameters are parsed as numbers.

Examples:
  rigtools call bash command="grep -rn TODO . | head"
  rigtools call read_file path=README.md start_line=1 end_line=20
  rigtools call search_docs --args '{"query":"invoice","path":"docs"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCall(cmd.Context(), opts, args[0], args[1:])
		},
	}

	cmd.Flags().StringVar(&opts.argsJSON, "args", "", "Tool arguments as a JSON object")
	cmd.Flags().BoolVar(&opts.outputJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&opts.pager, "pager", false, "Show the result in a scrollable pager (terminal only)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable syntax highlighting")

	return cmd
}

func (a *App) runCall(ctx context.Context, opts *callOptions, name string, pairs []string) error {
	env, err := a.openEnv(ctx, envOptions{audit: true, lockdown: true})
	if err != nil {
		return err
	}
	defer env.Close()

	params, err := buildParams(env.registry.Get(name), opts.argsJSON, pairs)
	if err != nil {
		return err
	}

	call := func(ctx context.Context) tools.Result {
		res, _ := env.executor.Call(ctx, name, params)
		return res
	}
	render := func(res tools.Result) string {
		return ui.RenderResult(res, ui.RenderOptions{
			Highlight: !opts.noColor && ColorsEnabled() && name == tools.CapabilityReadFile.String(),
			Filename:  stringParam(params, "path"),
		})
	}

	var res tools.Result
	if opts.pager && !opts.outputJSON {
		if err := RequiresTTY("page output"); err != nil {
			return err
		}
		res, err = ui.RunPager(ctx, tools.DisplayParams(name, params), call, render)
		if err != nil {
			return err
		}
	} else {
		res = call(ctx)
		if opts.outputJSON {
			if err := a.printCallJSON(name, res); err != nil {
				return err
			}
		} else if res.Success {
			out := render(res)
			if out != "" && !strings.HasSuffix(out, "\n") {
				out += "\n"
			}
			fmt.Fprint(a.stdout, out)
		}
	}

	if !res.Success {
		return &CallFailedError{Tool: name, Class: res.Class, Message: res.Error}
	}
	return nil
}

func (a *App) printCallJSON(name string, res tools.Result) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(server.CallResponse{
		Tool:       name,
		Success:    res.Success,
		Output:     res.Output,
		Error:      res.Error,
		ErrorClass: string(res.Class),
		DurationMS: res.Duration.Milliseconds(),
		Truncated:  res.Truncated,
		LinesCount: res.LinesCount,
	})
}

// buildParams merges the --args object with key=value pairs. Pairs for
// integer, number and boolean parameters of tool are converted; everything
// else stays a string. tool may be nil for an unknown name, which the
// executor then rejects.
func buildParams(tool *tools.Tool, argsJSON string, pairs []string) (map[string]interface{}, error) {
	params, err := tools.DecodeParams([]byte(argsJSON))
	if err != nil {
		return nil, err
	}

	types := make(map[string]string)
	if tool != nil {
		for _, p := range tool.Schema.Parameters {
			types[p.Name] = p.Type
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, &tools.ArgumentError{Param: pair, Message: "expected key=value"}
		}
		switch types[key] {
		case "integer", "number":
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, &tools.ArgumentError{Param: key, Message: "expected a number"}
			}
			params[key] = n
		case "boolean":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, &tools.ArgumentError{Param: key, Message: "expected true or false"}
			}
			params[key] = b
		default:
			params[key] = value
		}
	}
	return params, nil
}

func stringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}
