// Package theme provides the Lip Gloss color palette and reusable styles
// for the terminal panel view. It is a leaf package with no internal
// imports to avoid import cycles.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Issue status colors.
var (
	ColorToDo       = lipgloss.Color("#9ca3af")
	ColorInProgress = lipgloss.Color("#3b82f6")
	ColorDone       = lipgloss.Color("#16a34a")
	ColorDefault    = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorAccent  = lipgloss.Color("#7c3aed")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StatusColor returns the color for an issue status name.
func StatusColor(status string) lipgloss.Color {
	s := strings.ToLower(status)
	switch {
	case s == "done" || s == "closed" || s == "resolved":
		return ColorDone
	case strings.Contains(s, "progress") || strings.Contains(s, "review"):
		return ColorInProgress
	case s == "":
		return ColorDefault
	default:
		return ColorToDo
	}
}

// HealthColor returns the color for a scheduler step health status.
func HealthColor(status string) lipgloss.Color {
	switch status {
	case "healthy":
		return ColorHealthy
	case "degraded":
		return ColorWarning
	case "failed":
		return ColorDanger
	default:
		return ColorDimmed
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)
)
