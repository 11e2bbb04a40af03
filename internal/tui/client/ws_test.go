package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
)

// hostStub accepts one view, checks the ready frame and answers the first
// invoke with an event followed by its result.
func hostStub(t *testing.T) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("panel") != "issues" || r.URL.Query().Get("token") != "tok" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		var f bridge.Frame
		if err := c.ReadJSON(&f); err != nil || f.Type != bridge.FrameReady {
			t.Errorf("first frame = %+v, %v", f, err)
			return
		}
		if err := c.ReadJSON(&f); err != nil || f.Type != bridge.FrameInvoke {
			t.Errorf("second frame = %+v, %v", f, err)
			return
		}
		c.WriteJSON(bridge.Frame{Type: bridge.FrameEvent, Name: bridge.EventIssuesLoading, Detail: json.RawMessage(`{"filterKey":"assigned-to-me"}`)})
		c.WriteJSON(bridge.Frame{Type: bridge.FrameResult, ID: f.ID})
		c.ReadMessage()
	}))
}

func TestClientRoundTrip(t *testing.T) {
	srv := hostStub(t)
	defer srv.Close()

	c, err := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", "issues", "tok", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if msg := c.Listen(ctx)(); msg != (ConnectedMsg{}) {
		t.Fatalf("Listen() = %#v", msg)
	}
	id, err := c.Send(bridge.MethodFilterSelected, "assigned-to-me")
	if err != nil {
		t.Fatal(err)
	}

	ev, ok := c.ReadLoop(ctx)().(EventMsg)
	if !ok || ev.Name != bridge.EventIssuesLoading {
		t.Fatalf("first message = %#v", ev)
	}
	res, ok := c.ReadLoop(ctx)().(ResultMsg)
	if !ok || res.ID != id || res.Method != bridge.MethodFilterSelected || res.Err != "" {
		t.Fatalf("second message = %#v", res)
	}
}

func TestSendWithoutConnection(t *testing.T) {
	c, err := NewWSClient("ws://127.0.0.1:1/ws", "issues", "", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Send(bridge.MethodOnReady); err == nil {
		t.Error("Send without connection succeeded")
	}
	if msg, ok := c.Invoke(bridge.MethodOnReady)().(InvokeErrMsg); !ok || msg.Method != bridge.MethodOnReady {
		t.Errorf("Invoke() = %#v", msg)
	}
}

func TestListenStopsOnCancel(t *testing.T) {
	c, _ := NewWSClient("ws://127.0.0.1:1/ws", "issues", "", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if msg := c.Listen(ctx)(); msg != nil {
		t.Errorf("Listen() after cancel = %#v", msg)
	}
}

func TestHTTPBase(t *testing.T) {
	tests := map[string]string{
		"ws://127.0.0.1:9000/ws": "http://127.0.0.1:9000",
		"wss://panel.example/ws": "https://panel.example",
		"::bad":                  "http://127.0.0.1:8080",
	}
	for in, want := range tests {
		if got := HTTPBase(in); got != want {
			t.Errorf("HTTPBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPanels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[{"name":"issues","sessionId":"s1","ready":true,"status":{"name":"issues","steps":[{"name":"filter","status":"degraded","consecutiveFailures":1}]}}]`))
	}))
	defer srv.Close()

	panels, err := NewHTTPClient(srv.URL, "tok").Panels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(panels) != 1 || len(panels[0].Status.Steps) != 1 || panels[0].Status.Steps[0].Status != "degraded" {
		t.Errorf("panels = %+v", panels)
	}

	if _, err := NewHTTPClient(srv.URL, "").Panels(context.Background()); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("unauthorized err = %v", err)
	}
}
