// Package tracker defines the issue-tracker collaborator consumed by the
// panels, and the records it exchanges with them.
package tracker

import (
	"context"
	"errors"
)

// ErrOffline is returned by operations that need the network while the host
// runs in offline mode.
var ErrOffline = errors.New("tracker is offline")

// Filter is a saved issue query the view can switch between.
type Filter struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	JQL  string `json:"jql,omitempty"`
}

// Issue is the subset of an issue the panel renders.
type Issue struct {
	Key         string       `json:"key"`
	Summary     string       `json:"summary"`
	Description string       `json:"description,omitempty"`
	Status      string       `json:"status,omitempty"`
	IssueType   string       `json:"issueType,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a file attached to an issue.
type Attachment struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType,omitempty"`
	Size      int64  `json:"size"`
	Content   string `json:"content,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// HasThumbnail reports whether a thumbnail can be fetched for a.
func (a Attachment) HasThumbnail() bool {
	return a.Thumbnail != "" && a.MimeType != ""
}

// ProgressFunc receives byte counts as a transfer advances.
type ProgressFunc func(completed, total int64)

// Tracker is the issue-tracker client used by the panels.
type Tracker interface {
	Filters() []Filter
	FilteredIssues(ctx context.Context, filterKey string) ([]Issue, error)
	Issue(ctx context.Context, issueKey string) (*Issue, error)
	UploadAttachment(ctx context.Context, issueKey, path string, progress ProgressFunc) (*Attachment, error)
	DeleteAttachment(ctx context.Context, attachmentID string) error
	DownloadAttachment(ctx context.Context, url, dest string, progress ProgressFunc) error
	ImageDataURI(ctx context.Context, url, mimeType string) (string, error)
	Myself(ctx context.Context) error
}

// DefaultFilters is the fixed catalog of saved filters offered to the view.
var DefaultFilters = []Filter{
	{Key: "recently-viewed", Name: "Recently viewed", JQL: "issuekey in issueHistory() ORDER BY lastViewed DESC"},
	{Key: "assigned-to-me", Name: "Assigned to me", JQL: "assignee = currentUser() AND resolution = Unresolved ORDER BY updated DESC"},
	{Key: "mentioning-me", Name: "@mentioning me", JQL: "text ~ currentUser() ORDER BY updated DESC"},
	{Key: "reported-by-me", Name: "Reported by me", JQL: "reporter = currentUser() ORDER BY updated DESC"},
}

// FilterByKey returns the catalog entry for key.
func FilterByKey(key string) (Filter, bool) {
	for _, f := range DefaultFilters {
		if f.Key == key {
			return f, true
		}
	}
	return Filter{}, false
}
