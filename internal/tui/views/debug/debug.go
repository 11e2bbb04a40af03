// Package debug renders the bridge traffic seen by the TUI as a table of
// frames: when it arrived, its frame type, the method or event name and
// the payload size.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tui/theme"
)

const capacity = 200

// Kind is the frame type column.
type Kind string

const (
	KindConn   Kind = "conn"
	KindEvent  Kind = "event"
	KindResult Kind = "result"
	KindError  Kind = "error"
)

var kinds = []Kind{KindConn, KindEvent, KindResult, KindError}

type Entry struct {
	Time   time.Time
	Kind   Kind
	Name   string // method or event name
	Size   int    // payload bytes
	Detail string
}

// Model keeps the newest frames. Offset counts rows hidden below the
// viewport; zero follows the tail.
type Model struct {
	entries []Entry
	counts  map[Kind]int
	bytes   int
	Offset  int
}

func New() Model {
	return Model{counts: make(map[Kind]int)}
}

// Record appends e and snaps the viewport back to the tail. Totals cover
// every recorded frame, including ones evicted from the table.
func (m *Model) Record(e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if m.counts == nil {
		m.counts = make(map[Kind]int)
	}
	m.counts[e.Kind]++
	m.bytes += e.Size

	m.entries = append(m.entries, e)
	if over := len(m.entries) - capacity; over > 0 {
		m.entries = append(m.entries[:0:0], m.entries[over:]...)
	}
	m.Offset = 0
}

func (m *Model) Conn(detail string) {
	m.Record(Entry{Kind: KindConn, Name: "ws", Detail: detail})
}

func (m *Model) Event(name string, payload []byte) {
	m.Record(Entry{Kind: KindEvent, Name: name, Size: len(payload), Detail: string(payload)})
}

func (m *Model) Result(method string, payload []byte) {
	m.Record(Entry{Kind: KindResult, Name: method, Size: len(payload), Detail: string(payload)})
}

func (m *Model) Error(name, msg string) {
	m.Record(Entry{Kind: KindError, Name: name, Detail: msg})
}

func (m Model) Entries() []Entry { return m.entries }

func (m Model) Count(k Kind) int { return m.counts[k] }

// Scroll moves the viewport by delta rows; positive scrolls back in time.
func (m *Model) Scroll(delta int) {
	m.Offset = max(0, min(m.Offset+delta, len(m.entries)-1))
}

var (
	colTime = lipgloss.NewStyle().Width(13)
	colKind = lipgloss.NewStyle().Width(7)
	colName = lipgloss.NewStyle().Width(24)
	colSize = lipgloss.NewStyle().Width(7).Align(lipgloss.Right).MarginRight(1)
)

func (m Model) View(width, height int) string {
	inner := max(width-4, 40)
	rows := max(height-8, 3)

	var b strings.Builder
	b.WriteString(theme.StyleHeader.Render(" BRIDGE FRAMES "))
	b.WriteString("\n\n")

	if len(m.entries) == 0 {
		b.WriteString(theme.StyleDimmed.Render("no frames yet"))
	} else {
		b.WriteString(theme.StyleDimmed.Render(row("time", "frame", "name", "size", "detail")))
		end := len(m.entries) - m.Offset
		for _, e := range m.entries[max(0, end-rows):end] {
			b.WriteString("\n")
			b.WriteString(m.renderEntry(e, inner-4))
		}
		if m.Offset > 0 {
			b.WriteString("\n")
			b.WriteString(theme.StyleDimmed.Render(fmt.Sprintf("%d newer below", m.Offset)))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(theme.StyleDimmed.Render(m.summary() + "   j/k scroll  esc close"))

	return lipgloss.NewStyle().
		Width(inner).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(b.String())
}

func (m Model) renderEntry(e Entry, width int) string {
	kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Render(string(e.Kind))
	size := "-"
	if e.Size > 0 {
		size = formatSize(e.Size)
	}
	used := colTime.GetWidth() + colKind.GetWidth() + colName.GetWidth() + colSize.GetWidth() + 1
	return row(e.Time.Format("15:04:05.000"), kind, clip(e.Name, colName.GetWidth()-1), size, clip(e.Detail, width-used))
}

func row(ts, kind, name, size, detail string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		colTime.Render(ts), colKind.Render(kind), colName.Render(name), colSize.Render(size), detail)
}

func (m Model) summary() string {
	parts := make([]string, 0, len(kinds)+1)
	for _, k := range kinds {
		if n := m.counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, k))
		}
	}
	parts = append(parts, formatSize(m.bytes)+" total")
	return strings.Join(parts, " · ")
}

func formatSize(n int) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%dB", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1fK", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1fM", float64(n)/(1024*1024))
	}
}

func clip(s string, w int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= w {
		return s
	}
	if w < 2 {
		return ""
	}
	return string(r[:w-1]) + "…"
}

func kindColor(k Kind) lipgloss.Color {
	switch k {
	case KindEvent:
		return theme.ColorInProgress
	case KindResult:
		return theme.ColorAccent
	case KindError:
		return theme.ColorDanger
	case KindConn:
		return theme.ColorWarning
	}
	return theme.ColorDimmed
}
