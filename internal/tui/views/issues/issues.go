// Package issues renders the filter tabs and the issue list.
package issues

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tui/theme"
)

// Model holds the list state.
type Model struct {
	Filters []tracker.Filter
	Filter  string
	Issues  []tracker.Issue
	Cursor  int
	Loading bool
	Width   int
}

func New() Model { return Model{} }

// SetFilters replaces the filter tabs and the selected key.
func (m *Model) SetFilters(filters []tracker.Filter, selected string) {
	m.Filters = filters
	m.Filter = selected
}

// SetLoading marks key as loading. The list is kept until the new issues
// arrive.
func (m *Model) SetLoading(key string) {
	m.Filter = key
	m.Loading = true
}

// SetIssues replaces the list.
func (m *Model) SetIssues(issues []tracker.Issue) {
	m.Issues = issues
	m.Loading = false
	if m.Cursor >= len(issues) {
		m.Cursor = max(len(issues)-1, 0)
	}
}

// NextFilter returns the key after the selected one, wrapping.
func (m Model) NextFilter() string {
	if len(m.Filters) == 0 {
		return ""
	}
	for i, f := range m.Filters {
		if f.Key == m.Filter {
			return m.Filters[(i+1)%len(m.Filters)].Key
		}
	}
	return m.Filters[0].Key
}

func (m *Model) Down() {
	if len(m.Issues) > 0 {
		m.Cursor = (m.Cursor + 1) % len(m.Issues)
	}
}

func (m *Model) Up() {
	if len(m.Issues) > 0 {
		m.Cursor = (m.Cursor - 1 + len(m.Issues)) % len(m.Issues)
	}
}

// Current returns the issue under the cursor.
func (m Model) Current() (tracker.Issue, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Issues) {
		return tracker.Issue{}, false
	}
	return m.Issues[m.Cursor], true
}

// View renders the tabs and the list.
func (m Model) View() string {
	var tabs []string
	for _, f := range m.Filters {
		style := theme.StyleDimmed
		if f.Key == m.Filter {
			style = theme.StyleSelected.Underline(true)
		}
		tabs = append(tabs, style.Render(f.Name))
	}

	lines := []string{" " + strings.Join(tabs, "  ")}
	if m.Loading {
		lines = append(lines, theme.StyleDimmed.Render("  Loading..."))
	}
	for i, is := range m.Issues {
		prefix := "  "
		if i == m.Cursor {
			prefix = "> "
		}
		key := lipgloss.NewStyle().Foreground(theme.StatusColor(is.Status)).Width(9).Render(is.Key)
		line := fmt.Sprintf("%s%s %s", prefix, key, is.Summary)
		if n := len(is.Attachments); n > 0 {
			line += theme.StyleDimmed.Render(fmt.Sprintf("  [%d]", n))
		}
		lines = append(lines, line)
	}
	if len(m.Issues) == 0 && !m.Loading {
		lines = append(lines, theme.StyleDimmed.Render("  No issues"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
