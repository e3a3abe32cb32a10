// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui renders tool results for humans.
// pager.go runs a tool call behind a spinner and pages the result.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigtools/internal/tools"
)

// RunFunc performs the call the pager waits on.
type RunFunc func(ctx context.Context) tools.Result

// resultMsg delivers the finished call.
type resultMsg struct {
	result tools.Result
}

// headerHeight and footerHeight are the lines around the viewport.
const (
	headerHeight = 2
	footerHeight = 1
)

// Pager is a bubbletea model: a spinner while the call runs, then a
// scrollable viewport. Ctrl+C cancels a running call; q leaves the pager.
type Pager struct {
	title   string
	render  func(tools.Result) string
	run     RunFunc
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	spinner  spinner.Model
	viewport viewport.Model
	ready    bool
	loading  bool
	result   tools.Result
	width    int
	height   int
}

// NewPager creates a pager for run. render turns the result into the paged
// text; nil uses RenderResult without highlighting.
func NewPager(ctx context.Context, title string, run RunFunc, render func(tools.Result) string) Pager {
	if render == nil {
		render = func(r tools.Result) string { return RenderResult(r, RenderOptions{}) }
	}
	ctx, cancel := context.WithCancel(ctx)

	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	s.Style = PromptStyle

	return Pager{
		title:   title,
		render:  render,
		run:     run,
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
		spinner: s,
		loading: true,
	}
}

// Init starts the spinner and the call.
func (p Pager) Init() tea.Cmd {
	run, ctx := p.run, p.ctx
	return tea.Batch(p.spinner.Tick, func() tea.Msg {
		return resultMsg{result: run(ctx)}
	})
}

// Update handles keys, resizes, spinner ticks and the finished call.
func (p Pager) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if p.loading {
				p.cancel()
				return p, nil
			}
			return p, tea.Quit
		case "q", "esc":
			if !p.loading {
				p.cancel()
				return p, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		p.width, p.height = msg.Width, msg.Height
		h := msg.Height - headerHeight - footerHeight
		if h < 1 {
			h = 1
		}
		if !p.ready {
			p.viewport = viewport.New(msg.Width, h)
			p.ready = true
		} else {
			p.viewport.Width = msg.Width
			p.viewport.Height = h
		}
		if !p.loading {
			p.viewport.SetContent(p.render(p.result))
		}
		return p, nil

	case resultMsg:
		p.loading = false
		p.result = msg.result
		if p.ready {
			p.viewport.SetContent(p.render(p.result))
		}
		return p, nil

	case spinner.TickMsg:
		if !p.loading {
			return p, nil
		}
		var cmd tea.Cmd
		p.spinner, cmd = p.spinner.Update(msg)
		return p, cmd
	}

	if p.loading || !p.ready {
		return p, nil
	}
	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

// View renders the pager.
func (p Pager) View() string {
	if p.loading {
		elapsed := time.Since(p.started).Truncate(100 * time.Millisecond)
		return fmt.Sprintf("%s running %s (%s)  %s\n",
			p.spinner.View(), p.title, elapsed, MutedStyle.Render("ctrl+c cancel"))
	}
	if !p.ready {
		return p.render(p.result)
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(p.title))
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render(strings.Repeat("-", max(p.width, 1))))
	b.WriteString("\n")
	b.WriteString(p.viewport.View())
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render(fmt.Sprintf("%3.f%%  j/k scroll  q quit", p.viewport.ScrollPercent()*100)))
	return b.String()
}

// Result returns the finished call; ok is false while it is still running.
func (p Pager) Result() (tools.Result, bool) {
	return p.result, !p.loading
}

// RunPager runs the call inside a full-screen pager and returns its result.
func RunPager(ctx context.Context, title string, run RunFunc, render func(tools.Result) string) (tools.Result, error) {
	pager := NewPager(ctx, title, run, render)
	defer pager.cancel()

	final, err := tea.NewProgram(pager, tea.WithAltScreen()).Run()
	if err != nil {
		return tools.Result{}, err
	}
	res, done := final.(Pager).Result()
	if !done {
		return res, context.Canceled
	}
	return res, nil
}
