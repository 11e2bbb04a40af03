package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/config"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/coop"
)

// ErrPanelBusy is returned when a second view tries to attach to a panel.
var ErrPanelBusy = errors.New("panel already has a view")

// Panel is a live panel bound to one view session.
type Panel interface {
	Run(ctx context.Context)
	Status() any
}

// Factory builds a panel for a freshly connected view. sess was created
// with exec.
type Factory func(sess *bridge.Session, exec *coop.Exec) (Panel, error)

// PanelInfo is one entry of /api/panels.
type PanelInfo struct {
	Name      string `json:"name"`
	SessionID string `json:"sessionId"`
	Ready     bool   `json:"ready"`
	Status    any    `json:"status,omitempty"`
}

type live struct {
	session *bridge.Session
	panel   Panel
}

type Server struct {
	ctx             context.Context
	factories       map[string]Factory
	frontendDir     string
	embeddedHandler http.Handler
	origins         originPolicy
	authToken       string
	maxPayload      int
	evalTimeout     time.Duration
	log             zerolog.Logger

	mu     sync.Mutex
	panels map[string]*live // nil value: reserved, not yet attached

	wg sync.WaitGroup
}

// NewServer serves the panels registered with Handle. Panels stop when ctx
// is done.
func NewServer(ctx context.Context, cfg *config.Config, embeddedHandler http.Handler, log zerolog.Logger) *Server {
	return &Server{
		ctx:             ctx,
		factories:       make(map[string]Factory),
		frontendDir:     cfg.Server.FrontendDir,
		embeddedHandler: embeddedHandler,
		origins:         newOriginPolicy(cfg.Server.AllowedOrigins),
		authToken:       cfg.Server.AuthToken,
		maxPayload:      cfg.Bridge.MaxPayloadBytes,
		evalTimeout:     cfg.Bridge.EvalTimeout,
		log:             log,
		panels:          make(map[string]*live),
	}
}

// Handle registers the factory for panel name. Must be called before
// serving.
func (s *Server) Handle(name string, f Factory) {
	s.factories[name] = f
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/panels", s.handlePanels)

	if s.frontendDir != "" {
		s.log.Info().Str("dir", s.frontendDir).Msg("serving frontend from filesystem")
		mux.Handle("/", http.FileServer(http.Dir(s.frontendDir)))
	} else if s.embeddedHandler != nil {
		s.log.Info().Msg("serving embedded frontend")
		mux.Handle("/", s.embeddedHandler)
	}
}

// Handler returns the routes wrapped with the security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) reserve(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.panels[name]; taken {
		return fmt.Errorf("%w: %s", ErrPanelBusy, name)
	}
	s.panels[name] = nil
	return nil
}

func (s *Server) attach(name string, l *live) {
	s.mu.Lock()
	s.panels[name] = l
	s.mu.Unlock()
}

func (s *Server) release(name string) {
	s.mu.Lock()
	delete(s.panels, name)
	s.mu.Unlock()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	name := r.URL.Query().Get("panel")
	factory, ok := s.factories[name]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown panel %q", name), http.StatusNotFound)
		return
	}
	if err := s.reserve(name); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.release(name)
		s.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	wsConn.SetReadLimit(int64(s.maxPayload))

	log := s.log.With().Str("panel", name).Str("remote", r.RemoteAddr).Logger()
	c := newConn(wsConn, s.evalTimeout, func(err error) {
		log.Warn().Err(err).Msg("ws write failed")
	})
	exec := &coop.Exec{}
	sess := bridge.NewSession(c,
		bridge.WithExec(exec),
		bridge.WithLogger(log),
		bridge.WithMaxPayload(s.maxPayload),
		bridge.WithEvalTimeout(s.evalTimeout),
	)

	p, err := factory(sess, exec)
	if err != nil {
		log.Error().Err(err).Msg("panel setup failed")
		c.close()
		s.release(name)
		return
	}
	s.attach(name, &live{session: sess, panel: p})
	log.Info().Str("session", sess.ID()).Msg("view connected")

	ctx, cancel := context.WithCancel(s.ctx)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		p.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		defer func() {
			cancel()
			sess.Close()
			c.close()
			s.release(name)
			log.Info().Msg("view disconnected")
		}()
		go func() {
			select {
			case <-sess.Done():
				c.close()
			case <-ctx.Done():
				c.close()
			}
		}()
		for {
			_, data, err := wsConn.ReadMessage()
			if err != nil {
				return
			}
			if err := sess.HandleFrame(ctx, data); err != nil {
				log.Warn().Err(err).Msg("frame")
			}
		}
	}()
}

// Panels lists the attached panels, sorted by name.
func (s *Server) Panels() []PanelInfo {
	s.mu.Lock()
	out := make([]PanelInfo, 0, len(s.panels))
	for name, l := range s.panels {
		if l == nil {
			continue
		}
		out = append(out, PanelInfo{
			Name:      name,
			SessionID: l.session.ID(),
			Ready:     l.session.Ready(),
			Status:    l.panel.Status(),
		})
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b PanelInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (s *Server) handlePanels(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Panels())
}

// Wait blocks until every panel goroutine has exited.
func (s *Server) Wait() { s.wg.Wait() }

// ListenAndServe serves h until ctx is done, then shuts down gracefully.
func ListenAndServe(ctx context.Context, host string, port int, h http.Handler, log zerolog.Logger) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
