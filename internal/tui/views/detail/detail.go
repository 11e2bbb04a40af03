// Package detail renders the issue flyout: description and attachments.
package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tui/theme"
)

const (
	panelWidth = 64
	barWidth   = 20
	labelWidth = 10
)

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(labelWidth)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)

	styleFooter = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed)

	styleSectionHeader = lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorDimmed)
)

// Model holds the state for the detail overlay.
type Model struct {
	Issue       *tracker.Issue
	Attachments []tracker.Attachment
	Selected    int

	// Style is the glamour style used for the description.
	Style string

	thumbs      map[string]bool
	downloads   map[string]float64
	description string
}

// New creates a detail model for issue.
func New(issue *tracker.Issue, style string) Model {
	if style == "" {
		style = "dark"
	}
	m := Model{
		Issue:     issue,
		Style:     style,
		thumbs:    make(map[string]bool),
		downloads: make(map[string]float64),
	}
	if issue != nil {
		m.Attachments = issue.Attachments
		m.description = renderMarkdown(issue.Description, style)
	}
	return m
}

func renderMarkdown(md, style string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(panelWidth-6),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}

// SetAttachments replaces the attachment list, keeping the selection in range.
func (m *Model) SetAttachments(atts []tracker.Attachment) {
	m.Attachments = atts
	if m.Selected >= len(atts) {
		m.Selected = max(len(atts)-1, 0)
	}
}

// ThumbnailLoaded marks attachment id as having a thumbnail.
func (m *Model) ThumbnailLoaded(id string) { m.thumbs[id] = true }

// Progress records download progress for attachment id. Values below the
// last one seen are ignored.
func (m *Model) Progress(id string, p float64) {
	if p > m.downloads[id] {
		m.downloads[id] = p
	}
}

// Downloaded clears progress for attachment id.
func (m *Model) Downloaded(id string) { delete(m.downloads, id) }

// Removed drops attachment id from the list.
func (m *Model) Removed(id string) {
	out := m.Attachments[:0:0]
	for _, a := range m.Attachments {
		if a.ID != id {
			out = append(out, a)
		}
	}
	m.SetAttachments(out)
}

// Current returns the selected attachment.
func (m Model) Current() (tracker.Attachment, bool) {
	if m.Selected < 0 || m.Selected >= len(m.Attachments) {
		return tracker.Attachment{}, false
	}
	return m.Attachments[m.Selected], true
}

func (m *Model) Next() {
	if len(m.Attachments) > 0 {
		m.Selected = (m.Selected + 1) % len(m.Attachments)
	}
}

func (m *Model) Prev() {
	if len(m.Attachments) > 0 {
		m.Selected = (m.Selected - 1 + len(m.Attachments)) % len(m.Attachments)
	}
}

// View renders the detail panel. Returns an empty string if no issue is set.
func (m Model) View() string {
	if m.Issue == nil {
		return ""
	}
	return stylePanel.Width(panelWidth).Render(m.renderInner())
}

func (m Model) renderInner() string {
	var b strings.Builder
	is := m.Issue

	b.WriteString(styleTitle.Render(is.Key+"  "+is.Summary) + "\n")
	b.WriteString(strings.Repeat("─", panelWidth-4) + "\n")
	if is.IssueType != "" {
		writeRow(&b, "Type", is.IssueType)
	}
	if is.Status != "" {
		writeRow(&b, "Status", lipgloss.NewStyle().Foreground(theme.StatusColor(is.Status)).Render(is.Status))
	}

	if m.description != "" {
		b.WriteString("\n" + m.description + "\n")
	}

	b.WriteString("\n")
	b.WriteString(styleSectionHeader.Render(fmt.Sprintf("Attachments (%d)", len(m.Attachments))) + "\n")
	for i, a := range m.Attachments {
		prefix := "  "
		if i == m.Selected {
			prefix = "> "
		}
		thumb := "·"
		if m.thumbs[a.ID] {
			thumb = "▣"
		}
		line := fmt.Sprintf("%s%s %s  %s", prefix, thumb, truncate(a.Filename, 32), formatSize(a.Size))
		if p, ok := m.downloads[a.ID]; ok {
			line += "  " + renderBar(p, barWidth, theme.ColorInProgress)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	b.WriteString(styleFooter.Render("[j/k] select  [o] open  [x] delete  [esc] close"))
	return b.String()
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label+":") + value + "\n")
}

func renderBar(pct float64, width int, color lipgloss.Color) string {
	pct = min(max(pct, 0), 1)
	filled := int(pct * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(color).Render(bar)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f kB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
