// Package mock is an in-memory tracker with canned issues. It backs
// --offline runs and lets the whole panel pipeline run without a network.
package mock

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker"
)

// 1x1 transparent PNG.
var pixelPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// Tracker serves canned data. Uploads fail with tracker.ErrOffline; every
// other call succeeds after Latency.
type Tracker struct {
	// Latency delays every call, so filter switches can overtake each other.
	Latency time.Duration

	mu      sync.Mutex
	issues  map[string]*tracker.Issue
	filters map[string][]string
}

func New(latency time.Duration) *Tracker {
	t := &Tracker{Latency: latency, issues: make(map[string]*tracker.Issue)}
	for _, is := range cannedIssues() {
		t.issues[is.Key] = is
	}
	t.filters = map[string][]string{
		"recently-viewed": {"SKT-12", "SKT-9", "DES-4"},
		"assigned-to-me":  {"SKT-12", "DES-7"},
		"mentioning-me":   {"DES-4"},
		"reported-by-me":  {"SKT-9", "DES-7", "DES-4"},
	}
	return t
}

func cannedIssues() []*tracker.Issue {
	return []*tracker.Issue{
		{
			Key: "SKT-12", Summary: "Onboarding flow: final illustrations", Status: "In Progress", IssueType: "Story",
			Description: "Export the **final** onboarding illustrations at 1x and 2x.\n\n- welcome\n- permissions\n- done",
			Attachments: []tracker.Attachment{
				{ID: "10001", Filename: "welcome@2x.png", MimeType: "image/png", Size: 48213, Content: "mock://10001", Thumbnail: "mock://10001/thumb"},
				{ID: "10002", Filename: "permissions.png", MimeType: "image/png", Size: 30877, Content: "mock://10002", Thumbnail: "mock://10002/thumb"},
				{ID: "10003", Filename: "copy.txt", MimeType: "text/plain", Size: 912, Content: "mock://10003"},
			},
		},
		{
			Key: "SKT-9", Summary: "Dark mode color tokens", Status: "To Do", IssueType: "Task",
			Description: "Audit the palette and add `surface` and `overlay` tokens.",
		},
		{
			Key: "DES-4", Summary: "Empty state for search results", Status: "In Review", IssueType: "Story",
			Attachments: []tracker.Attachment{
				{ID: "10010", Filename: "empty-search.sketch", MimeType: "application/octet-stream", Size: 1204332, Content: "mock://10010", Thumbnail: "mock://10010/thumb"},
			},
		},
		{
			Key: "DES-7", Summary: "Icon set refresh", Status: "Done", IssueType: "Epic",
		},
	}
}

func (t *Tracker) wait(ctx context.Context) error {
	if t.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(t.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Tracker) Filters() []tracker.Filter {
	return slices.Clone(tracker.DefaultFilters)
}

func (t *Tracker) FilteredIssues(ctx context.Context, filterKey string) ([]tracker.Issue, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	keys, ok := t.filters[filterKey]
	if !ok {
		return nil, fmt.Errorf("unknown filter %q", filterKey)
	}
	out := make([]tracker.Issue, 0, len(keys))
	for _, k := range keys {
		if is, ok := t.issues[k]; ok {
			cp := *is
			cp.Attachments = slices.Clone(is.Attachments)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (t *Tracker) Issue(ctx context.Context, issueKey string) (*tracker.Issue, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	is, ok := t.issues[issueKey]
	if !ok {
		return nil, fmt.Errorf("issue %s not found", issueKey)
	}
	cp := *is
	cp.Attachments = slices.Clone(is.Attachments)
	return &cp, nil
}

func (t *Tracker) UploadAttachment(context.Context, string, string, tracker.ProgressFunc) (*tracker.Attachment, error) {
	return nil, tracker.ErrOffline
}

func (t *Tracker) DeleteAttachment(ctx context.Context, attachmentID string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, is := range t.issues {
		is.Attachments = slices.DeleteFunc(is.Attachments, func(a tracker.Attachment) bool {
			return a.ID == attachmentID
		})
	}
	return nil
}

// DownloadAttachment writes a placeholder file to dest, reporting progress
// in four steps.
func (t *Tracker) DownloadAttachment(ctx context.Context, url, dest string, progress tracker.ProgressFunc) error {
	const total = 4
	for i := int64(1); i <= total; i++ {
		if err := t.wait(ctx); err != nil {
			return err
		}
		if progress != nil {
			progress(i, total)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("offline placeholder for "+url+"\n"), 0o644)
}

func (t *Tracker) ImageDataURI(ctx context.Context, _ string, mimeType string) (string, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(pixelPNG), nil
}

func (t *Tracker) Myself(ctx context.Context) error {
	return t.wait(ctx)
}

var _ tracker.Tracker = (*Tracker)(nil)
