package panel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/config"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/desktop"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/fetch"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker"
)

// Attachments loads, deletes and opens the attachments of an issue.
type Attachments struct {
	tracker tracker.Tracker
	events  bridge.Dispatcher
	opener  Opener
	limiter *fetch.Limiter
	cfg     config.AttachmentsConfig
	log     zerolog.Logger

	// checkSpace is desktop.CheckFreeSpace outside tests.
	checkSpace func(dir string, need uint64) error
}

func NewAttachments(t tracker.Tracker, events bridge.Dispatcher, opener Opener, limiter *fetch.Limiter, cfg config.AttachmentsConfig, log zerolog.Logger) *Attachments {
	if limiter == nil {
		limiter = fetch.NewLimiter(cfg.ThumbnailConcurrency)
	}
	return &Attachments{
		tracker:    t,
		events:     events,
		opener:     opener,
		limiter:    limiter,
		cfg:        cfg,
		log:        log.With().Str("component", "attachments").Logger(),
		checkSpace: desktop.CheckFreeSpace,
	}
}

// Reload fetches the issue (recording it as viewed), sends its attachment
// list, then sends a thumbnail for every attachment that has one.
func (a *Attachments) Reload(ctx context.Context, issueKey string) error {
	issue, err := a.tracker.Issue(ctx, issueKey)
	if err != nil {
		return fmt.Errorf("load %s: %w", issueKey, err)
	}
	attachments := issue.Attachments
	if attachments == nil {
		attachments = []tracker.Attachment{}
	}
	if err := a.events.DispatchEvent(ctx, bridge.EventAttachmentsLoaded, bridge.AttachmentsLoadedPayload{
		IssueKey:    issueKey,
		Attachments: attachments,
	}); err != nil {
		return err
	}

	opts := fetch.Options[tracker.Attachment]{
		Key:   func(at tracker.Attachment) string { return at.ID },
		Valid: tracker.Attachment.HasThumbnail,
	}
	results := fetch.Map(ctx, a.limiter, attachments, opts, func(ctx context.Context, at tracker.Attachment) (struct{}, error) {
		uri, err := a.tracker.ImageDataURI(ctx, at.Thumbnail, at.MimeType)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, a.events.DispatchEvent(ctx, bridge.EventThumbnailLoaded, bridge.ThumbnailLoadedPayload{
			IssueKey: issueKey,
			ID:       at.ID,
			DataURI:  uri,
		})
	})
	for id, r := range results {
		if r.Err != nil {
			a.log.Warn().Err(r.Err).Str("issue", issueKey).Str("attachment", id).Msg("thumbnail failed")
		}
	}
	return nil
}

// Delete removes an attachment. A delete that is part of a replace is not
// announced; the upload that follows it is.
func (a *Attachments) Delete(ctx context.Context, issueKey, attachmentID string, isReplace bool) error {
	if err := a.tracker.DeleteAttachment(ctx, attachmentID); err != nil {
		return fmt.Errorf("delete %s from %s: %w", attachmentID, issueKey, err)
	}
	if isReplace {
		return nil
	}
	return a.events.DispatchEvent(ctx, bridge.EventDeleteComplete, bridge.DeleteCompletePayload{
		IssueKey:     issueKey,
		AttachmentID: attachmentID,
	})
}

// Open downloads an attachment with progress and opens it locally.
func (a *Attachments) Open(ctx context.Context, issueKey, attachmentID, url, filename string) error {
	dir := a.downloadDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("download dir: %w", err)
	}
	if err := a.checkSpace(dir, a.cfg.MinFreeBytes); err != nil {
		return err
	}

	dest := filepath.Join(dir, attachmentID+"-"+safeName(filename))
	task := fetch.NewTask(issueKey, attachmentID)
	err := a.tracker.DownloadAttachment(ctx, url, dest, func(done, total int64) {
		if p, changed := task.Report(done, total); changed {
			if err := a.events.DispatchEvent(ctx, bridge.EventDownloadProgress, bridge.DownloadProgressPayload{
				IssueKey:     issueKey,
				AttachmentID: attachmentID,
				Progress:     p,
			}); err != nil {
				a.log.Debug().Err(err).Str("issue", issueKey).Str("attachment", attachmentID).Msg("dispatch download.progress")
			}
		}
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", filename, err)
	}
	if err := a.events.DispatchEvent(ctx, bridge.EventDownloadComplete, bridge.DownloadCompletePayload{
		IssueKey:     issueKey,
		AttachmentID: attachmentID,
	}); err != nil {
		return err
	}
	return a.opener.Open(ctx, dest)
}

func (a *Attachments) downloadDir() string {
	if a.cfg.DownloadDir != "" {
		return a.cfg.DownloadDir
	}
	return filepath.Join(os.TempDir(), "jira-panel", "downloads")
}

func safeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "attachment"
	}
	return name
}
