// Package host assembles the panel host: preferences, authorization, the
// tracker client and the websocket server the panels are served from.
package host

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/auth"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/config"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/coop"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/desktop"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/fetch"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/frontend"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/logging"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/panel"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/prefs"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker/mock"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker/rest"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/ws"
)

// Host owns the collaborators shared by every panel.
type Host struct {
	cfg     *config.Config
	log     zerolog.Logger
	prefs   *prefs.Store
	auth    *auth.Manager
	tracker tracker.Tracker
	limiter *fetch.Limiter
	opener  panel.Opener
	server  *ws.Server

	mu   sync.Mutex
	live map[*panel.Panel]struct{}
}

// Option overrides a collaborator, mostly for tests.
type Option func(*Host)

// WithOpener replaces the desktop opener used for URLs and downloads.
func WithOpener(o panel.Opener) Option {
	return func(h *Host) { h.opener = o }
}

// WithTracker replaces the tracker chosen from the config.
func WithTracker(t tracker.Tracker) Option {
	return func(h *Host) { h.tracker = t }
}

// New builds the host. Panels stop when ctx is done.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) *Host {
	store := prefs.NewStore(cfg.Prefs.Dir)
	h := &Host{
		cfg:     cfg,
		log:     log,
		prefs:   store,
		auth:    auth.NewManager(store),
		limiter: fetch.NewLimiter(cfg.Attachments.ThumbnailConcurrency),
		opener:  desktop.NewOpener(logging.Component(log, "desktop")),
		live:    make(map[*panel.Panel]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.tracker == nil {
		h.tracker = h.newTracker()
	}

	h.server = ws.NewServer(ctx, cfg, frontend.Handler(), logging.Component(log, "ws"))
	h.server.Handle(panel.Issues, h.factory(panel.Issues))
	h.server.Handle(panel.Connect, h.factory(panel.Connect))
	return h
}

func (h *Host) newTracker() tracker.Tracker {
	if h.cfg.Offline {
		return mock.New(h.cfg.Tracker.MockLatency)
	}
	base := rest.BaseURLFunc(h.auth.BaseURL)
	if h.cfg.Tracker.BaseURL != "" {
		base = rest.StaticBaseURL(h.cfg.Tracker.BaseURL)
	}
	return rest.New(base, h.auth.TokenSource(), h.cfg.Tracker.Timeout, logging.Component(h.log, "tracker"))
}

func (h *Host) deps() panel.Deps {
	return panel.Deps{
		Tracker:   h.tracker,
		Auth:      h.auth,
		Opener:    h.opener,
		Notifier:  desktop.NewNotifier(logging.Component(h.log, "notify")),
		Drops:     desktop.NewDropDir(h.cfg.Attachments.DropDir),
		Analytics: panel.LogAnalytics{Log: logging.Component(h.log, "analytics")},
		Navigator: h,
		Limiter:   h.limiter,
		Config:    h.cfg,
		Log:       logging.Component(h.log, "panel"),
	}
}

// tracked deregisters its panel when Run returns.
type tracked struct {
	*panel.Panel
	h *Host
}

func (t tracked) Run(ctx context.Context) {
	defer func() {
		t.h.mu.Lock()
		delete(t.h.live, t.Panel)
		t.h.mu.Unlock()
	}()
	t.Panel.Run(ctx)
}

func (h *Host) factory(name string) ws.Factory {
	return func(sess *bridge.Session, exec *coop.Exec) (ws.Panel, error) {
		p, err := panel.Open(name, sess, exec, h.deps())
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.live[p] = struct{}{}
		h.mu.Unlock()
		return tracked{Panel: p, h: h}, nil
	}
}

// Handler serves the panels and the frontend.
func (h *Host) Handler() http.Handler { return h.server.Handler() }

// Server is the websocket server the panels are attached to.
func (h *Host) Server() *ws.Server { return h.server }

// Limiter is shared by every panel's thumbnail loads.
func (h *Host) Limiter() *fetch.Limiter { return h.limiter }

// Live returns the panels with an attached view.
func (h *Host) Live() []*panel.Panel {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*panel.Panel, 0, len(h.live))
	for p := range h.live {
		out = append(out, p)
	}
	return out
}

// Apply takes the settings that can change without a restart from cfg.
func (h *Host) Apply(cfg *config.Config) {
	h.limiter.SetLimit(cfg.Attachments.ThumbnailConcurrency)
	for _, p := range h.Live() {
		if s := p.Scheduler(); s != nil {
			s.SetInterval(cfg.Scheduler.TickInterval)
		}
	}
	h.log.Info().
		Dur("tick_interval", cfg.Scheduler.TickInterval).
		Int("thumbnail_concurrency", cfg.Attachments.ThumbnailConcurrency).
		Msg("config reloaded")
}

// InitialPanel is the panel to show on start: Connect until the site is
// authorized, unless running offline.
func (h *Host) InitialPanel() string {
	if h.cfg.Offline || h.auth.Authorized() {
		return panel.Issues
	}
	return panel.Connect
}

// PanelURL is the address of the browser view for name.
func (h *Host) PanelURL(name string) string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(h.cfg.Server.Host, strconv.Itoa(h.cfg.Server.Port)),
		Path:   "/",
	}
	q := url.Values{"panel": {name}}
	if h.cfg.Server.AuthToken != "" {
		q.Set("token", h.cfg.Server.AuthToken)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// OpenPanel shows the browser view for name.
func (h *Host) OpenPanel(ctx context.Context, name string) error {
	if name != panel.Issues && name != panel.Connect {
		return fmt.Errorf("%w: %q", panel.ErrUnknownPanel, name)
	}
	return h.opener.Open(ctx, h.PanelURL(name))
}

// Wait blocks until every panel has stopped.
func (h *Host) Wait() { h.server.Wait() }
