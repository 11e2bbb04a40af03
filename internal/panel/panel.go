// Package panel wires the Issues and Connect panels: their bridge handlers,
// their action scheduler and the collaborators behind them.
package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/auth"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/config"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/coop"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/fetch"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/filter"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/scheduler"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/upload"
)

const (
	Issues  = "issues"
	Connect = "connect"
)

// ErrUnknownPanel is returned by Open for a name it does not serve.
var ErrUnknownPanel = errors.New("unknown panel")

// Opener opens a URL or local file outside the host.
type Opener interface {
	Open(ctx context.Context, target string) error
}

// DropSource yields the files most recently dropped by the user.
type DropSource interface {
	Take() ([]string, error)
}

// Analytics receives usage events from the view.
type Analytics interface {
	Track(ctx context.Context, event string, properties map[string]any)
}

// Navigator shows another panel to the user.
type Navigator interface {
	OpenPanel(ctx context.Context, name string) error
}

// Deps are the collaborators shared by every panel.
type Deps struct {
	Tracker   tracker.Tracker
	Auth      *auth.Manager
	Opener    Opener
	Notifier  upload.Notifier
	Drops     DropSource
	Analytics Analytics
	Navigator Navigator
	Limiter   *fetch.Limiter
	Config    *config.Config
	Log       zerolog.Logger
}

// Size is the panel size last requested by the view.
type Size struct {
	Width   int  `json:"width"`
	Height  int  `json:"height"`
	Animate bool `json:"animate"`
}

// Status is what the host reports about a live panel.
type Status struct {
	Name      string                 `json:"name"`
	SessionID string                 `json:"sessionId"`
	ViewReady bool                   `json:"viewReady"`
	Size      Size                   `json:"size"`
	Queued    int                    `json:"queuedUploads,omitempty"`
	Filters   *filter.Stats          `json:"filters,omitempty"`
	Steps     []scheduler.StepHealth `json:"steps,omitempty"`
}

// Panel is one live panel bound to one view session.
type Panel struct {
	name    string
	session *bridge.Session
	exec    *coop.Exec
	deps    Deps
	log     zerolog.Logger

	viewReady atomic.Bool
	sizeMu    sync.Mutex
	size      Size

	ctx    context.Context
	cancel context.CancelFunc
	sched  *scheduler.Scheduler
	coord  *filter.Coordinator
	queue  *upload.Queue
	attach *Attachments

	wg sync.WaitGroup
}

// Open builds the named panel and registers its handlers on sess. sess
// must have been created with exec.
func Open(name string, sess *bridge.Session, exec *coop.Exec, deps Deps) (*Panel, error) {
	p := &Panel{
		name:    name,
		session: sess,
		exec:    exec,
		deps:    deps,
		log:     deps.Log.With().Str("panel", name).Str("session", sess.ID()).Logger(),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	sess.Register(p.defaultBindings()...)

	switch name {
	case Issues:
		p.setupIssues()
	case Connect:
		p.setupConnect()
	default:
		p.cancel()
		return nil, fmt.Errorf("%w: %q", ErrUnknownPanel, name)
	}
	return p, nil
}

func (p *Panel) Name() string { return p.name }

func (p *Panel) Session() *bridge.Session { return p.session }

// Scheduler is nil for panels without periodic work.
func (p *Panel) Scheduler() *scheduler.Scheduler { return p.sched }

// Run drives the panel until ctx is done, then waits for its background
// work to finish.
func (p *Panel) Run(ctx context.Context) {
	if p.sched != nil {
		p.sched.Run(ctx)
	} else {
		<-ctx.Done()
	}
	p.cancel()
	p.wg.Wait()
	if p.coord != nil {
		p.coord.Wait()
	}
}

// Status may be called from any goroutine.
func (p *Panel) Status() any {
	st := Status{
		Name:      p.name,
		SessionID: p.session.ID(),
		ViewReady: p.viewReady.Load(),
	}
	p.sizeMu.Lock()
	st.Size = p.size
	p.sizeMu.Unlock()
	if p.queue != nil {
		st.Queued = p.queue.Len()
	}
	if p.coord != nil {
		fs := p.coord.Stats()
		st.Filters = &fs
	}
	if p.sched != nil {
		st.Steps = p.sched.Health()
	}
	return st
}

// ViewReady reports whether the view called onReady.
func (p *Panel) ViewReady() bool { return p.viewReady.Load() }

// spawn runs fn in the background until the panel stops and logs its
// error.
func (p *Panel) spawn(what string, fn func(context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := fn(p.ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Error().Err(err).Msg(what)
		}
	}()
}

// LogAnalytics writes analytics events to the log.
type LogAnalytics struct {
	Log zerolog.Logger
}

func (a LogAnalytics) Track(_ context.Context, event string, properties map[string]any) {
	a.Log.Debug().Str("event", event).Fields(properties).Msg("analytics")
}
