package detail

import (
	"strings"
	"testing"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker"
)

func testIssue() *tracker.Issue {
	return &tracker.Issue{
		Key:         "SKT-12",
		Summary:     "Onboarding illustrations",
		Status:      "In Progress",
		Description: "Export the final illustrations.",
		Attachments: []tracker.Attachment{
			{ID: "1", Filename: "welcome.png", Size: 2048},
			{ID: "2", Filename: "done.png", Size: 12},
		},
	}
}

func TestViewRendersIssue(t *testing.T) {
	m := New(testIssue(), "notty")
	v := m.View()
	for _, want := range []string{"SKT-12", "illustrations", "welcome.png", "2.0 kB", "Attachments (2)"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestNilIssue(t *testing.T) {
	if v := New(nil, "").View(); v != "" {
		t.Errorf("View() = %q, want empty", v)
	}
}

func TestSelectionWraps(t *testing.T) {
	m := New(testIssue(), "notty")
	m.Prev()
	if a, _ := m.Current(); a.ID != "2" {
		t.Errorf("Prev from first selected %q", a.ID)
	}
	m.Next()
	if a, _ := m.Current(); a.ID != "1" {
		t.Errorf("Next wrapped to %q", a.ID)
	}
}

func TestRemovedKeepsSelectionInRange(t *testing.T) {
	m := New(testIssue(), "notty")
	m.Next()
	m.Removed("2")
	a, ok := m.Current()
	if !ok || a.ID != "1" {
		t.Errorf("Current() = %+v, %v", a, ok)
	}
	m.Removed("1")
	if _, ok := m.Current(); ok {
		t.Error("Current() ok with no attachments")
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	m := New(testIssue(), "notty")
	m.Progress("1", 0.5)
	m.Progress("1", 0.25)
	if got := m.downloads["1"]; got != 0.5 {
		t.Errorf("progress = %v, want 0.5", got)
	}
	m.Downloaded("1")
	if _, ok := m.downloads["1"]; ok {
		t.Error("progress kept after download")
	}
}
