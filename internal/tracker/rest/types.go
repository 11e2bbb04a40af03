package rest

import (
	"strconv"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker"
)

type searchResponse struct {
	Issues []issueResponse `json:"issues"`
}

type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Status      struct {
			Name string `json:"name"`
		} `json:"status"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Attachment []attachmentResponse `json:"attachment"`
	} `json:"fields"`
}

func (r issueResponse) toIssue() tracker.Issue {
	is := tracker.Issue{
		Key:         r.Key,
		Summary:     r.Fields.Summary,
		Description: r.Fields.Description,
		Status:      r.Fields.Status.Name,
		IssueType:   r.Fields.IssueType.Name,
	}
	for _, a := range r.Fields.Attachment {
		is.Attachments = append(is.Attachments, a.toAttachment())
	}
	return is
}

type attachmentResponse struct {
	ID        any    `json:"id"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	Content   string `json:"content"`
	Thumbnail string `json:"thumbnail"`
}

func (r attachmentResponse) toAttachment() tracker.Attachment {
	return tracker.Attachment{
		ID:        idString(r.ID),
		Filename:  r.Filename,
		MimeType:  r.MimeType,
		Size:      r.Size,
		Content:   r.Content,
		Thumbnail: r.Thumbnail,
	}
}

// Jira returns attachment ids as strings in some endpoints and numbers in
// others.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	case nil:
		return ""
	}
	return ""
}
