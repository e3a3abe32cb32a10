// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui renders tool results for humans.
// styles.go holds the shared lipgloss styles for the CLI, REPL and pager.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigtools/internal/tools"
)

// =============================================================================
// PALETTE
// =============================================================================

var (
	Cyan      = lipgloss.Color("39")
	Green     = lipgloss.Color("42")
	Red       = lipgloss.Color("196")
	Amber     = lipgloss.Color("214")
	White     = lipgloss.Color("255")
	TextMuted = lipgloss.Color("245")
)

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for banners and section headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Cyan)

	// SectionStyle separates blocks of output
	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(White)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Amber)

	// MutedStyle is for echoes, hints and footers
	MutedStyle = lipgloss.NewStyle().
			Foreground(TextMuted)

	PromptStyle = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true)
)

// RiskStyle colors a tool's risk level.
func RiskStyle(r tools.RiskLevel) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(r.Color()))
}
