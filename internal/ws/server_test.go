package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/config"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/coop"
)

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

// echoPanel answers filterSelected by dispatching an event with the key.
type echoPanel struct {
	sess *bridge.Session
}

func (p *echoPanel) Run(ctx context.Context) { <-ctx.Done() }
func (p *echoPanel) Status() any             { return map[string]string{"kind": "echo"} }

func echoFactory(sess *bridge.Session, exec *coop.Exec) (Panel, error) {
	p := &echoPanel{sess: sess}
	sess.Register(bridge.FilterSelected(func(ctx context.Context, key string) error {
		return sess.DispatchEvent(ctx, bridge.EventIssuesLoading, bridge.IssuesLoadingPayload{FilterKey: key})
	}))
	// Dispatched before the view is ready: must arrive after "ready".
	_ = sess.DispatchEvent(context.Background(), bridge.EventFiltersUpdated, bridge.FiltersUpdatedPayload{FilterSelected: "early"})
	return p, nil
}

func newTestServer(t *testing.T, token string) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.AuthToken = token
	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(ctx, cfg, nil, zerolog.Nop())
	s.Handle("issues", echoFactory)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		s.Wait()
	})
	return s, srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
}

func readFrame(t *testing.T, c *websocket.Conn) bridge.Frame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f bridge.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return f
}

func TestViewRoundTrip(t *testing.T) {
	_, srv := newTestServer(t, "")
	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "panel=issues"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.WriteJSON(map[string]any{"type": "ready"}); err != nil {
		t.Fatal(err)
	}
	early := readFrame(t, c)
	if early.Type != bridge.FrameEvent || early.Name != bridge.EventFiltersUpdated {
		t.Fatalf("first frame = %+v", early)
	}

	if err := c.WriteJSON(map[string]any{"type": "invoke", "id": 7, "method": "filterSelected", "args": []string{"assigned-to-me"}}); err != nil {
		t.Fatal(err)
	}
	ev := readFrame(t, c)
	if ev.Name != bridge.EventIssuesLoading || !strings.Contains(string(ev.Detail), "assigned-to-me") {
		t.Errorf("event = %+v", ev)
	}
	res := readFrame(t, c)
	if res.Type != bridge.FrameResult || res.ID != 7 || res.Error != "" {
		t.Errorf("result = %+v", res)
	}

	if err := c.WriteJSON(map[string]any{"type": "invoke", "id": 8, "method": "getAuthUrl"}); err != nil {
		t.Fatal(err)
	}
	res = readFrame(t, c)
	if res.ID != 8 || !strings.Contains(res.Error, "handler not found") {
		t.Errorf("unregistered method result = %+v", res)
	}
}

func TestSecondViewRejected(t *testing.T) {
	s, srv := newTestServer(t, "")
	first, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "panel=issues"), nil)
	if err != nil {
		t.Fatal(err)
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "panel=issues"), nil)
	if err == nil {
		t.Fatal("second view connected")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("second dial response = %v", resp)
	}

	first.Close()
	deadline := time.Now().Add(2 * time.Second)
	for len(s.Panels()) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	second, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "panel=issues"), nil)
	if err != nil {
		t.Fatalf("reconnect after close: %v", err)
	}
	second.Close()
}

func TestUnknownPanelAndAuth(t *testing.T) {
	_, srv := newTestServer(t, "secret")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "panel=issues"), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: resp = %v, err = %v", resp, err)
	}

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "panel=settings&token=secret"), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown panel: resp = %v, err = %v", resp, err)
	}

	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "panel=issues&token=secret"), nil)
	if err != nil {
		t.Fatalf("with token: %v", err)
	}
	c.Close()
}

func TestPanelsEndpoint(t *testing.T) {
	_, srv := newTestServer(t, "")
	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "panel=issues"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.WriteJSON(map[string]any{"type": "ready"}); err != nil {
		t.Fatal(err)
	}
	readFrame(t, c)

	resp, err := http.Get(srv.URL + "/api/panels")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var panels []PanelInfo
	if err := json.NewDecoder(resp.Body).Decode(&panels); err != nil {
		t.Fatal(err)
	}
	if len(panels) != 1 || panels[0].Name != "issues" || !panels[0].Ready || panels[0].SessionID == "" {
		t.Errorf("panels = %+v", panels)
	}
}

func TestCheckOrigin(t *testing.T) {
	cfg := config.Default()
	s := NewServer(context.Background(), cfg, nil, zerolog.Nop())
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8080", true},
		{"http://[::1]:8080", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Host = "127.0.0.1:8080"
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := s.checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}

	cfg.Server.AllowedOrigins = []string{"https://panel.example"}
	s = NewServer(context.Background(), cfg, nil, zerolog.Nop())
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://panel.example")
	if !s.checkOrigin(r) {
		t.Error("allowed origin rejected")
	}
	r.Header.Set("Origin", "http://localhost:3000")
	if s.checkOrigin(r) {
		t.Error("origin outside allow list accepted")
	}
}
