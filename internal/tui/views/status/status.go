// Package status renders the one-line bar above the panel view.
package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/scheduler"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	Panel     string
	Filter    string
	Loading   bool
	Activity  string // last upload/download line, cleared on completion
	Steps     []scheduler.StepHealth
	Width     int
}

// New creates a status bar model for panel.
func New(panel string) Model {
	return Model{Panel: panel}
}

// View renders the status bar.
func (m Model) View() string {
	width := max(m.Width, 40)

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● " + m.Panel)
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	parts := []string{connStr}
	if m.Filter != "" {
		f := m.Filter
		if m.Loading {
			f += " (loading)"
		}
		parts = append(parts, f)
	}
	if m.Activity != "" {
		parts = append(parts, m.Activity)
	}

	var health []string
	for _, h := range m.Steps {
		if h.Status == scheduler.StatusHealthy {
			continue
		}
		health = append(health, lipgloss.NewStyle().Foreground(theme.HealthColor(string(h.Status))).Render(
			fmt.Sprintf("%s: %s", h.Name, h.Status),
		))
	}
	if len(health) > 0 {
		parts = append(parts, strings.Join(health, "  "))
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(strings.Join(parts, sep))
}
