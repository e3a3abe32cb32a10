// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigtools/internal/config"
	"github.com/jeranaias/rigtools/internal/logging"
	"github.com/jeranaias/rigtools/internal/sandbox"
	"github.com/jeranaias/rigtools/internal/tools"
	"github.com/jeranaias/rigtools/internal/ui"
	"github.com/jeranaias/rigtools/internal/util"
)

const (
	replPrompt      = "rigtools> "
	replHistoryFile = "repl_history"
	replBanner      = "rigtools - sandboxed tool console"
)

// =============================================================================
// INPUT
// =============================================================================

// lineReader is the part of *liner.State the REPL uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// scanReader reads lines from a non-terminal stdin. It prints no prompt.
type scanReader struct {
	scanner *bufio.Scanner
}

func newScanReader(r io.Reader) *scanReader {
	return &scanReader{scanner: bufio.NewScanner(r)}
}

func (s *scanReader) Prompt(string) (string, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *scanReader) AppendHistory(string) {}

func (s *scanReader) Close() error { return nil }

// historyLiner persists liner history to the config directory on Close.
type historyLiner struct {
	*liner.State
	path string
}

func newHistoryLiner() *historyLiner {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)

	h := &historyLiner{State: state}
	if dir, err := config.ConfigDir(); err == nil {
		h.path = filepath.Join(dir, replHistoryFile)
		if f, err := os.Open(h.path); err == nil {
			state.ReadHistory(f)
			f.Close()
		}
	}
	return h
}

func (h *historyLiner) Close() error {
	if h.path != "" {
		if _, err := config.EnsureConfigDir(); err == nil {
			if f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
				if _, err := h.State.WriteHistory(f); err != nil {
					logging.Debug().Add(logging.Component("repl")).Add(logging.ErrorField(err)).Msg("could not save history")
				}
				f.Close()
			}
		}
	}
	return h.State.Close()
}

// =============================================================================
// COMMAND
// =============================================================================

func (a *App) newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Run tools interactively",
		Long: `Start an interactive console for running tool calls by hand.

Input forms:
  bash ls -la | head          the rest of the line is the command
  read_file notes.txt 1 20    positional arguments in parameter order
  search_docs query=invoice path=docs
  read_file {"path": "notes.txt"}

Console commands: :help :tools :context :history :quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a.openEnv(cmd.Context(), envOptions{audit: true, lockdown: true, watch: true})
			if err != nil {
				return err
			}
			defer env.Close()

			var in lineReader
			interactive := a.stdin == os.Stdin && IsTTY() && IsStdoutTTY()
			if interactive {
				in = newHistoryLiner()
			} else {
				in = newScanReader(a.stdin)
			}
			defer in.Close()

			r := &repl{
				env:       env,
				in:        in,
				out:       a.stdout,
				errOut:    a.stderr,
				highlight: interactive && ColorsEnabled(),
			}
			return r.run(cmd.Context())
		},
	}
}

// =============================================================================
// LOOP
// =============================================================================

type repl struct {
	env       *toolEnv
	in        lineReader
	out       io.Writer
	errOut    io.Writer
	highlight bool
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(r.out, ui.TitleStyle.Render(replBanner))
	fmt.Fprintln(r.out, ui.MutedStyle.Render("Working directory: "+r.env.resolver.Base()))
	fmt.Fprintln(r.out, ui.PromptStyle.Render(">> Ready! Type :help for usage (Ctrl+C or Ctrl+D to exit)"))
	fmt.Fprintln(r.out)

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := r.in.Prompt(replPrompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(r.out, "\n"+ui.MutedStyle.Render(">> Goodbye!"))
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.in.AppendHistory(line)

		if strings.HasPrefix(line, ":") {
			if quit := r.console(ctx, line); quit {
				fmt.Fprintln(r.out, ui.MutedStyle.Render(">> Goodbye!"))
				return nil
			}
			continue
		}
		r.call(ctx, line)
	}
}

// console runs a ":" command and reports whether the REPL should exit.
func (r *repl) console(ctx context.Context, line string) bool {
	switch strings.Fields(line)[0] {
	case ":quit", ":q", ":exit":
		return true
	case ":help", ":h":
		r.printHelp()
	case ":tools":
		for _, t := range r.env.registry.All() {
			fmt.Fprintf(r.out, "  %s  %s\n", ui.TitleStyle.Render(util.PadRight(t.Name, 12)), t.ShortDescription())
		}
	case ":context":
		text, err := r.env.workspace.Build(ctx)
		if err != nil {
			fmt.Fprintln(r.errOut, ui.ErrorLine(err.Error()))
			return false
		}
		fmt.Fprintln(r.out, text)
	case ":history":
		r.printHistory()
	default:
		fmt.Fprintln(r.errOut, ui.ErrorLine("unknown console command "+line+" (try :help)"))
	}
	return false
}

func (r *repl) printHelp() {
	fmt.Fprint(r.out, `Call a tool by name followed by its arguments:
  bash <command>               run an allow-listed read-only command
  read_file <path> [start end] read a file, optionally a line window
  search_docs <query> [path]   search documents with ripgrep-all
Arguments may also be key=value pairs or one JSON object.

Console commands:
  :tools     list the tools
  :context   show the workspace context sent to agents
  :history   show the calls made in this session
  :help      show this help
  :quit      leave the console
`)
}

func (r *repl) printHistory() {
	history := r.env.executor.History()
	if len(history) == 0 {
		fmt.Fprintln(r.out, ui.MutedStyle.Render("  no calls yet"))
		return
	}
	for i, rec := range history {
		status := ui.SuccessStyle.Render("ok")
		if !rec.Result.Success {
			status = ui.ErrorStyle.Render(string(rec.Result.Class))
		}
		call := util.TruncateDisplay(tools.DisplayParams(rec.ToolName, rec.Params), 60)
		fmt.Fprintf(r.out, "  %3d  %s  %s(%s)  %s  %s\n",
			i+1, rec.Timestamp.Format("15:04:05"), rec.ToolName, call, status,
			ui.MutedStyle.Render(rec.Duration.Round(time.Millisecond).String()))
	}
}

// call parses and runs one tool line, printing the echo and the result.
func (r *repl) call(ctx context.Context, line string) {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	params, err := parseReplArgs(r.env.registry.Get(name), name, rest)
	if err != nil {
		fmt.Fprintln(r.errOut, ui.ErrorLine(err.Error()))
		return
	}

	fmt.Fprintln(r.out, ui.Echo(name, tools.DisplayParams(name, params)))
	res, _ := r.env.executor.Call(ctx, name, params)
	if !res.Success {
		fmt.Fprintln(r.errOut, ui.ErrorLine(res.Error))
		return
	}

	out := ui.RenderResult(res, ui.RenderOptions{
		Highlight: r.highlight && name == tools.CapabilityReadFile.String(),
		Filename:  stringParam(params, "path"),
	})
	fmt.Fprintln(r.out, strings.TrimRight(out, "\n"))
}

// parseReplArgs turns the text after a tool name into parameters. A JSON
// object is used as is; bash takes the whole text as its command; other
// tools take key=value pairs and positional values in parameter order.
func parseReplArgs(tool *tools.Tool, name, rest string) (map[string]interface{}, error) {
	if strings.HasPrefix(rest, "{") {
		return tools.DecodeParams([]byte(rest))
	}
	if name == tools.CapabilityShell.String() {
		params := map[string]interface{}{}
		if rest != "" {
			params["command"] = rest
		}
		return params, nil
	}
	if rest == "" {
		return map[string]interface{}{}, nil
	}

	var positional []string
	if tool != nil {
		for _, p := range tool.Schema.Parameters {
			positional = append(positional, p.Name)
		}
	}

	var pairs []string
	next := 0
	for _, arg := range sandbox.SplitArgs(rest) {
		if key, _, ok := strings.Cut(arg, "="); ok && isParamName(tool, key) {
			pairs = append(pairs, arg)
			continue
		}
		if next >= len(positional) {
			return nil, &tools.ArgumentError{Param: arg, Message: "unexpected extra argument"}
		}
		pairs = append(pairs, positional[next]+"="+arg)
		next++
	}
	return buildParams(tool, "", pairs)
}

func isParamName(tool *tools.Tool, key string) bool {
	if tool == nil {
		return false
	}
	for _, p := range tool.Schema.Parameters {
		if p.Name == key {
			return true
		}
	}
	return false
}
