// Package main implements the prospect CLI commands.
// This file holds the shared terminal styles and render helpers.
package main

import (
	"prospect/internal/research"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Color palette for terminal output
var (
	colorAccent  = lipgloss.Color("#8BC34A") // Lime Green
	colorInfo    = lipgloss.Color("#2196F3") // Blue
	colorWarning = lipgloss.Color("#FFC107") // Yellow
	colorError   = lipgloss.Color("#e53935") // Red
	colorMuted   = lipgloss.Color("#6c7a89") // Grey-blue
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	subtleStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	okStyle      = lipgloss.NewStyle().Foreground(colorAccent)
	partialStyle = lipgloss.NewStyle().Foreground(colorWarning)
	failStyle    = lipgloss.NewStyle().Foreground(colorError)
	spinnerStyle = lipgloss.NewStyle().Foreground(colorInfo)
	runIDStyle   = lipgloss.NewStyle().Foreground(colorInfo)
)

// statusGlyph maps a terminal research status to a colored marker.
func statusGlyph(status research.Status) string {
	switch status {
	case research.StatusCompleted:
		return okStyle.Render("✓")
	case research.StatusPartiallyCompleted:
		return partialStyle.Render("◐")
	default:
		return failStyle.Render("✗")
	}
}

// shortID truncates a run id for display.
func shortID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

// renderMarkdown renders markdown for the terminal, falling back to the
// raw text when glamour cannot handle it.
func renderMarkdown(md string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}
