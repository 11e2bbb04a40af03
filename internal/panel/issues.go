package panel

import (
	"context"
	"fmt"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/logging"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/config"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/filter"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/scheduler"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/upload"
)

func (p *Panel) setupIssues() {
	cfg := p.deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	p.coord = filter.NewCoordinator(p.exec, p.deps.Tracker, p.session, p.log.With().Str("component", "filter").Logger())
	p.queue = &upload.Queue{}
	proc := upload.NewProcessor(p.exec, p.queue, p.deps.Tracker, p.session, p.deps.Notifier,
		func() bool { return cfg.Offline }, p.log.With().Str("component", "upload").Logger())
	p.attach = NewAttachments(p.deps.Tracker, p.session, p.deps.Opener, p.deps.Limiter, cfg.Attachments, p.log)

	defaultFilter := cfg.Scheduler.DefaultFilter
	if defaultFilter == "" {
		defaultFilter = config.DefaultFilter
	}

	steps := []scheduler.Step{
		scheduler.Once("readiness", p.viewReady.Load, func(ctx context.Context) error {
			p.coord.Select(defaultFilter)
			return p.session.DispatchEvent(ctx, bridge.EventFiltersUpdated, bridge.FiltersUpdatedPayload{
				Filters:        p.deps.Tracker.Filters(),
				FilterSelected: defaultFilter,
			})
		}),
		{Name: "filter", Run: p.coord.Check},
		{Name: "upload", Run: proc.Check},
	}
	p.sched = scheduler.New(p.exec, steps,
		scheduler.WithInterval(cfg.Scheduler.TickInterval),
		scheduler.WithFailureThreshold(cfg.Scheduler.FailureThreshold),
		scheduler.WithLogger(p.log.With().Str("component", "scheduler").Logger()),
	)

	p.session.Register(
		bridge.OnReady(func(context.Context) error {
			p.viewReady.Store(true)
			return nil
		}),
		bridge.FilterSelected(func(_ context.Context, key string) error {
			p.coord.Select(key)
			return nil
		}),
		bridge.UploadDroppedFiles(func(ctx context.Context, issueKey string) error {
			if issueKey == "" {
				return fmt.Errorf("uploadDroppedFiles: empty issue key")
			}
			files, err := p.deps.Drops.Take()
			if err != nil {
				return fmt.Errorf("collect dropped files: %w", err)
			}
			if len(files) == 0 {
				logging.FromContext(ctx).Debug().Str("issue", issueKey).Msg("drop with no files")
				return nil
			}
			p.queue.Push(upload.Request{IssueKey: issueKey, Files: files})
			return nil
		}),
		bridge.ViewIssue(func(_ context.Context, issueKey string) error {
			p.spawn("reload attachments", func(ctx context.Context) error {
				return p.attach.Reload(ctx, issueKey)
			})
			return nil
		}),
		bridge.DeleteAttachment(func(_ context.Context, issueKey, id string, isReplace bool) error {
			p.spawn("delete attachment", func(ctx context.Context) error {
				return p.attach.Delete(ctx, issueKey, id, isReplace)
			})
			return nil
		}),
		bridge.OpenAttachment(func(_ context.Context, issueKey, id, url, filename string) error {
			p.spawn("open attachment", func(ctx context.Context) error {
				return p.attach.Open(ctx, issueKey, id, url, filename)
			})
			return nil
		}),
	)
}

// Queue exposes the pending uploads of an Issues panel.
func (p *Panel) Queue() *upload.Queue { return p.queue }

// Filters exposes the filter coordinator of an Issues panel.
func (p *Panel) Filters() *filter.Coordinator { return p.coord }
