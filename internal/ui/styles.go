package ui

import (
	"io"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/moby/term"
)

var colors atomic.Bool

func init() {
	colors.Store(true)
}

// SetColors turns report colouring on or off.
func SetColors(enabled bool) {
	colors.Store(enabled)
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	_, isTerm := term.GetFdInfo(w)
	return isTerm
}

var (
	styleGood    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWork    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleBad     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	stylePlain   = lipgloss.NewStyle()
	styleHeading = lipgloss.NewStyle().Bold(true)
)

// StatusStyle colours verdicts and stage statuses as printed in reports.
func StatusStyle(status string) lipgloss.Style {
	if !colors.Load() {
		return stylePlain
	}
	switch status {
	case "CACHED", "done":
		return styleGood
	case "BUILT", "planned":
		return styleWork
	case "FAILED", "failed":
		return styleBad
	case "SKIPPED", "skipped", "cancelled":
		return styleMuted
	}
	return stylePlain
}

func Heading(s string) string {
	if !colors.Load() {
		return s
	}
	return styleHeading.Render(s)
}
