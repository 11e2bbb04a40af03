package upload

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/coop"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/fetch"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker"
)

// Uploader sends one file to an issue.
type Uploader interface {
	UploadAttachment(ctx context.Context, issueKey, path string, progress tracker.ProgressFunc) (*tracker.Attachment, error)
}

// Notifier shows a short message to the user outside the view.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Processor drains the queue one request per Check.
type Processor struct {
	exec     *coop.Exec
	queue    *Queue
	uploader Uploader
	events   bridge.Dispatcher
	notifier Notifier
	offline  func() bool
	log      zerolog.Logger
}

func NewProcessor(exec *coop.Exec, queue *Queue, uploader Uploader, events bridge.Dispatcher, notifier Notifier, offline func() bool, log zerolog.Logger) *Processor {
	if offline == nil {
		offline = func() bool { return false }
	}
	return &Processor{
		exec:     exec,
		queue:    queue,
		uploader: uploader,
		events:   events,
		notifier: notifier,
		offline:  offline,
		log:      log,
	}
}

// Check takes the oldest request and uploads its files in order. The
// request is finished, or abandoned at its first failing file, before
// Check returns. Must be called inside exec.
func (p *Processor) Check(ctx context.Context) error {
	req, ok := p.queue.Pop()
	if !ok {
		return nil
	}
	n := len(req.Files)

	if p.offline() {
		noun := "attachments"
		if n == 1 {
			noun = "attachment"
		}
		p.notifier.Notify(ctx, fmt.Sprintf("Can't upload %d %s to %s (offline)", n, noun, req.IssueKey))
		return nil
	}

	if err := p.events.DispatchEvent(ctx, bridge.EventUploadQueued, bridge.UploadQueuedPayload{IssueKey: req.IssueKey, Count: n}); err != nil {
		return fmt.Errorf("dispatch upload.queued: %w", err)
	}

	for i, file := range req.Files {
		path, err := NormalizePath(file)
		if err != nil {
			return fmt.Errorf("upload %s file %d: %w", req.IssueKey, i, err)
		}
		name := filepath.Base(path)
		task := fetch.NewTask(req.IssueKey, path)
		progress := func(done, total int64) {
			if pct, changed := task.Report(done, total); changed {
				if err := p.events.DispatchEvent(ctx, bridge.EventUploadProgress, bridge.UploadProgressPayload{
					IssueKey: req.IssueKey,
					File:     name,
					Progress: pct,
				}); err != nil {
					p.log.Debug().Err(err).Str("issue", req.IssueKey).Str("file", name).Msg("dispatch upload.progress")
				}
			}
		}

		var att *tracker.Attachment
		err = p.exec.Await(func() error {
			var uerr error
			att, uerr = p.uploader.UploadAttachment(ctx, req.IssueKey, path, progress)
			return uerr
		})
		if err != nil {
			if skipped := n - i - 1; skipped > 0 {
				p.log.Warn().Str("issue", req.IssueKey).Int("skipped", skipped).Msg("abandoning rest of upload request")
			}
			return fmt.Errorf("upload %s to %s: %w", name, req.IssueKey, err)
		}
		p.log.Debug().Str("issue", req.IssueKey).Str("file", name).Msg("uploaded")

		if err := p.events.DispatchEvent(ctx, bridge.EventUploadComplete, bridge.UploadCompletePayload{
			IssueKey:   req.IssueKey,
			Count:      1,
			Attachment: att,
		}); err != nil {
			return fmt.Errorf("dispatch upload.complete: %w", err)
		}
	}
	return nil
}

// NormalizePath turns a dropped file reference into a clean local path. It
// accepts file:// URLs, percent-encoding and a leading ~.
func NormalizePath(ref string) (string, error) {
	p := strings.TrimSpace(ref)
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.HasPrefix(p, "file://") {
		u, err := url.Parse(p)
		if err != nil {
			return "", fmt.Errorf("parse %q: %w", ref, err)
		}
		p = u.Path
	} else if strings.Contains(p, "%") {
		if unescaped, err := url.PathUnescape(p); err == nil {
			p = unescaped
		}
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %q: %w", ref, err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Clean(p), nil
}
