// Package filter coordinates filter switches so that only the most recent
// selection's results reach the view.
package filter

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/coop"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker"
)

// Token identifies one filter load. Tokens only grow; the highest issued is
// current.
type Token uint64

type State int

const (
	Idle State = iota
	Loading
	Applied
	Superseded
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Applied:
		return "applied"
	case Superseded:
		return "superseded"
	}
	return "unknown"
}

// Source loads the issues matching a filter.
type Source interface {
	FilteredIssues(ctx context.Context, filterKey string) ([]tracker.Issue, error)
}

// Stats counts how filter loads ended.
type Stats struct {
	Applied    int64 `json:"applied"`
	Superseded int64 `json:"superseded"`
	Failed     int64 `json:"failed"`
}

// Coordinator holds the pending and in-flight filter selection. Select and
// Check must be called inside exec; completions re-enter it.
type Coordinator struct {
	exec   *coop.Exec
	source Source
	events bridge.Dispatcher
	log    zerolog.Logger

	pending    string
	hasPending bool
	current    Token
	loading    string
	state      State

	applied    atomic.Int64
	superseded atomic.Int64
	failed     atomic.Int64

	wg sync.WaitGroup
}

func NewCoordinator(exec *coop.Exec, source Source, events bridge.Dispatcher, log zerolog.Logger) *Coordinator {
	return &Coordinator{exec: exec, source: source, events: events, log: log}
}

// Select records key as the filter to load on the next check. A later
// Select before the check replaces it.
func (c *Coordinator) Select(key string) {
	c.pending = key
	c.hasPending = true
}

// Check starts loading the pending selection, if any. It announces the load
// with issues.loading before returning; the fetch itself runs outside exec.
func (c *Coordinator) Check(ctx context.Context) error {
	if !c.hasPending {
		return nil
	}
	key := c.pending
	c.pending, c.hasPending = "", false

	c.current++
	tok := c.current
	c.loading = key
	c.state = Loading

	err := c.events.DispatchEvent(ctx, bridge.EventIssuesLoading, bridge.IssuesLoadingPayload{FilterKey: key})

	coop.Go(c.exec, &c.wg,
		func() ([]tracker.Issue, error) { return c.source.FilteredIssues(ctx, key) },
		func(issues []tracker.Issue, ferr error) { c.complete(ctx, tok, key, issues, ferr) },
	)
	return err
}

func (c *Coordinator) complete(ctx context.Context, tok Token, key string, issues []tracker.Issue, err error) {
	if tok != c.current {
		c.superseded.Add(1)
		c.log.Debug().Str("filter", key).Uint64("token", uint64(tok)).Uint64("current", uint64(c.current)).Msg("discarding superseded filter result")
		return
	}
	if err != nil {
		c.failed.Add(1)
		c.state = Idle
		c.log.Error().Err(err).Str("filter", key).Msg("filter load failed")
		return
	}
	c.state = Applied
	c.applied.Add(1)
	if issues == nil {
		issues = []tracker.Issue{}
	}
	if err := c.events.DispatchEvent(ctx, bridge.EventIssuesLoaded, bridge.IssuesLoadedPayload{Issues: issues}); err != nil {
		c.log.Error().Err(err).Str("filter", key).Msg("dispatch issues.loaded")
	}
}

// Current returns the latest issued token. Call inside exec.
func (c *Coordinator) Current() Token { return c.current }

// LoadingFilter is the filter of the current token. Call inside exec.
func (c *Coordinator) LoadingFilter() string { return c.loading }

// State of the current load. Call inside exec.
func (c *Coordinator) State() State { return c.state }

// Pending reports the selection waiting for the next check. Call inside exec.
func (c *Coordinator) Pending() (string, bool) { return c.pending, c.hasPending }

func (c *Coordinator) Stats() Stats {
	return Stats{
		Applied:    c.applied.Load(),
		Superseded: c.superseded.Load(),
		Failed:     c.failed.Load(),
	}
}

// Wait blocks until every started fetch has completed. Do not call inside
// exec.
func (c *Coordinator) Wait() { c.wg.Wait() }
