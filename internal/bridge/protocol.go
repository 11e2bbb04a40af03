package bridge

import (
	"github.com/goccy/go-json"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker"
)

// FrameType identifies the kind of bridge frame.
type FrameType string

const (
	FrameReady  FrameType = "ready"  // view → host, once bootstrapped
	FrameInvoke FrameType = "invoke" // view → host
	FrameResult FrameType = "result" // host → view, answers an invoke
	FrameEvent  FrameType = "event"  // host → view
)

// Frame is the envelope for every message crossing the bridge.
type Frame struct {
	Type   FrameType         `json:"type"`
	ID     uint64            `json:"id,omitempty"`
	Method Method            `json:"method,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage   `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
	Name   string            `json:"name,omitempty"`
	Detail json.RawMessage   `json:"detail,omitempty"`
}

// Event catalog, host → view.
const (
	EventFiltersUpdated    = "filters.updated"
	EventIssuesLoading     = "issues.loading"
	EventIssuesLoaded      = "issues.loaded"
	EventUploadQueued      = "upload.queued"
	EventUploadProgress    = "upload.progress"
	EventUploadComplete    = "upload.complete"
	EventDeleteComplete    = "delete.complete"
	EventAttachmentsLoaded = "attachments.loaded"
	EventThumbnailLoaded   = "thumbnail.loaded"
	EventDownloadProgress  = "download.progress"
	EventDownloadComplete  = "download.complete"
)

// Event is an outbound notification. It is built and dispatched at once,
// never stored.
type Event struct {
	Name   string `json:"name"`
	Detail any    `json:"detail"`
}

type FiltersUpdatedPayload struct {
	Filters        []tracker.Filter `json:"filters"`
	FilterSelected string           `json:"filterSelected"`
}

type IssuesLoadingPayload struct {
	FilterKey string `json:"filterKey"`
}

type IssuesLoadedPayload struct {
	Issues []tracker.Issue `json:"issues"`
}

type UploadQueuedPayload struct {
	IssueKey string `json:"issueKey"`
	Count    int    `json:"count"`
}

type UploadProgressPayload struct {
	IssueKey string  `json:"issueKey"`
	File     string  `json:"file"`
	Progress float64 `json:"progress"`
}

type UploadCompletePayload struct {
	IssueKey   string              `json:"issueKey"`
	Count      int                 `json:"count"`
	Attachment *tracker.Attachment `json:"attachment,omitempty"`
}

type DeleteCompletePayload struct {
	IssueKey     string `json:"issueKey"`
	AttachmentID string `json:"attachmentId"`
}

type AttachmentsLoadedPayload struct {
	IssueKey    string               `json:"issueKey"`
	Attachments []tracker.Attachment `json:"attachments"`
}

type ThumbnailLoadedPayload struct {
	IssueKey string `json:"issueKey"`
	ID       string `json:"id"`
	DataURI  string `json:"dataUri"`
}

type DownloadProgressPayload struct {
	IssueKey     string  `json:"issueKey"`
	AttachmentID string  `json:"attachmentId"`
	Progress     float64 `json:"progress"`
}

type DownloadCompletePayload struct {
	IssueKey     string `json:"issueKey"`
	AttachmentID string `json:"attachmentId"`
}

func encodeEvent(name string, detail any) ([]byte, error) {
	raw, err := json.Marshal(detail)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: FrameEvent, Name: name, Detail: raw})
}
