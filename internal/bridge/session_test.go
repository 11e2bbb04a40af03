package bridge_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge/bridgetest"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/coop"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/logging"
)

func decodeFrames(t *testing.T, raw [][]byte) []bridge.Frame {
	t.Helper()
	out := make([]bridge.Frame, len(raw))
	for i, b := range raw {
		if err := json.Unmarshal(b, &out[i]); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	return out
}

func args(t *testing.T, vs ...any) bridge.Args {
	t.Helper()
	out := make(bridge.Args, len(vs))
	for i, v := range vs {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = b
	}
	return out
}

func TestDispatchDeferredUntilReady(t *testing.T) {
	tr := &bridgetest.Transport{}
	s := bridge.NewSession(tr)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if err := s.DispatchEvent(ctx, name, map[string]int{"n": 1}); err != nil {
			t.Fatalf("DispatchEvent(%s): %v", name, err)
		}
	}
	if got := len(tr.Frames()); got != 0 {
		t.Fatalf("sent %d frames before ready, want 0", got)
	}

	s.MarkReady(ctx)
	if err := s.DispatchEvent(ctx, "d", nil); err != nil {
		t.Fatal(err)
	}
	s.MarkReady(ctx)

	frames := decodeFrames(t, tr.Frames())
	var names []string
	for _, f := range frames {
		if f.Type != bridge.FrameEvent {
			t.Errorf("frame type = %q, want event", f.Type)
		}
		names = append(names, f.Name)
	}
	if got := strings.Join(names, ","); got != "a,b,c,d" {
		t.Errorf("order = %s, want a,b,c,d", got)
	}
}

func TestWaitUntilReady(t *testing.T) {
	s := bridge.NewSession(&bridgetest.Transport{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.WaitUntilReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitUntilReady before ready = %v, want deadline exceeded", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.WaitUntilReady(context.Background()) }()
	if err := s.HandleFrame(context.Background(), []byte(`{"type":"ready"}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitUntilReady = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitUntilReady did not resolve")
	}
	if !s.Ready() {
		t.Error("Ready() = false after ready frame")
	}
}

func TestDispatchPayloadTooLarge(t *testing.T) {
	tr := &bridgetest.Transport{}
	s := bridge.NewSession(tr, bridge.WithMaxPayload(64))
	s.MarkReady(context.Background())

	err := s.DispatchEvent(context.Background(), "big", strings.Repeat("x", 128))
	if !errors.Is(err, bridge.ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
	if len(tr.Frames()) != 0 {
		t.Error("oversized event was sent")
	}
	if err := s.DispatchEvent(context.Background(), "small", "ok"); err != nil {
		t.Fatalf("small event: %v", err)
	}
}

func TestDispatchTimeoutIsSilent(t *testing.T) {
	tr := &bridgetest.Transport{}
	tr.Block(true)
	s := bridge.NewSession(tr, bridge.WithEvalTimeout(10*time.Millisecond))
	s.MarkReady(context.Background())

	if err := s.DispatchEvent(context.Background(), "slow", nil); err != nil {
		t.Fatalf("timed out dispatch = %v, want nil", err)
	}
}

func TestDispatchAfterClose(t *testing.T) {
	s := bridge.NewSession(&bridgetest.Transport{})
	s.Close()
	if err := s.DispatchEvent(context.Background(), "x", nil); !errors.Is(err, bridge.ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
	if err := s.WaitUntilReady(context.Background()); !errors.Is(err, bridge.ErrSessionClosed) {
		t.Fatalf("WaitUntilReady = %v, want ErrSessionClosed", err)
	}
}

func TestInvokeHandlerNotFound(t *testing.T) {
	s := bridge.NewSession(&bridgetest.Transport{})
	_, err := s.Invoke(context.Background(), bridge.MethodFilterSelected, nil)
	if !errors.Is(err, bridge.ErrHandlerNotFound) {
		t.Fatalf("err = %v, want ErrHandlerNotFound", err)
	}
	if !strings.Contains(err.Error(), "filterSelected") {
		t.Errorf("error %q does not name the method", err)
	}
}

func TestInvokeTypedArgs(t *testing.T) {
	s := bridge.NewSession(&bridgetest.Transport{})

	var gotW, gotH int
	var gotAnimate bool
	s.Register(bridge.ResizePanel(func(_ context.Context, w, h int, animate bool) error {
		gotW, gotH, gotAnimate = w, h, animate
		return nil
	}))

	if _, err := s.Invoke(context.Background(), bridge.MethodResizePanel, args(t, 400, 300, true)); err != nil {
		t.Fatal(err)
	}
	if gotW != 400 || gotH != 300 || !gotAnimate {
		t.Errorf("resize got (%d, %d, %v)", gotW, gotH, gotAnimate)
	}

	// Missing trailing args decode as zero values.
	if _, err := s.Invoke(context.Background(), bridge.MethodResizePanel, args(t, 10)); err != nil {
		t.Fatal(err)
	}
	if gotW != 10 || gotH != 0 || gotAnimate {
		t.Errorf("resize with missing args got (%d, %d, %v)", gotW, gotH, gotAnimate)
	}

	if _, err := s.Invoke(context.Background(), bridge.MethodResizePanel, args(t, "wide")); err == nil {
		t.Error("expected decode error for string width")
	}
}

func TestInvokeResultAndError(t *testing.T) {
	s := bridge.NewSession(&bridgetest.Transport{})
	s.Register(
		bridge.GetAuthURL(func(context.Context) (string, error) { return "https://example.test/auth", nil }),
		bridge.TestAuthorization(func(context.Context) (bool, error) { return false, errors.New("boom") }),
	)

	raw, err := s.Invoke(context.Background(), bridge.MethodGetAuthURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `"https://example.test/auth"` {
		t.Errorf("result = %s", raw)
	}

	if _, err := s.Invoke(context.Background(), bridge.MethodTestAuthorization, nil); err == nil || err.Error() != "boom" {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	s := bridge.NewSession(&bridgetest.Transport{}, bridge.WithExec(&coop.Exec{}))
	s.Register(bridge.OnReady(func(context.Context) error { panic("kaboom") }))

	_, err := s.Invoke(context.Background(), bridge.MethodOnReady, nil)
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("err = %v, want recovered panic", err)
	}
	// The exec must have been released.
	s.Register(bridge.OnReady(func(context.Context) error { return nil }))
	if _, err := s.Invoke(context.Background(), bridge.MethodOnReady, nil); err != nil {
		t.Fatal(err)
	}
}

func TestLastRegistrationWins(t *testing.T) {
	s := bridge.NewSession(&bridgetest.Transport{})
	var calls []string
	s.Register(bridge.OpenInBrowser(func(context.Context, string) error {
		calls = append(calls, "default")
		return nil
	}))
	s.Register(bridge.OpenInBrowser(func(context.Context, string) error {
		calls = append(calls, "panel")
		return nil
	}))
	if _, err := s.Invoke(context.Background(), bridge.MethodOpenInBrowser, args(t, "https://x")); err != nil {
		t.Fatal(err)
	}
	if strings.Join(calls, ",") != "panel" {
		t.Errorf("calls = %v, want [panel]", calls)
	}
}

func TestHandleInvokeFrameRepliesInOrder(t *testing.T) {
	tr := &bridgetest.Transport{}
	s := bridge.NewSession(tr)
	var mu sync.Mutex
	var seen []string
	s.Register(bridge.FilterSelected(func(_ context.Context, key string) error {
		mu.Lock()
		seen = append(seen, key)
		mu.Unlock()
		return nil
	}))

	ctx := context.Background()
	for i, key := range []string{"a", "b", "c"} {
		frame, _ := json.Marshal(bridge.Frame{
			Type:   bridge.FrameInvoke,
			ID:     uint64(i + 1),
			Method: bridge.MethodFilterSelected,
			Args:   args(t, key),
		})
		if err := s.HandleFrame(ctx, frame); err != nil {
			t.Fatal(err)
		}
	}
	unknown, _ := json.Marshal(bridge.Frame{Type: bridge.FrameInvoke, ID: 4, Method: "nope"})
	if err := s.HandleFrame(ctx, unknown); err != nil {
		t.Fatal(err)
	}

	if strings.Join(seen, ",") != "a,b,c" {
		t.Errorf("handled = %v", seen)
	}
	frames := decodeFrames(t, tr.Frames())
	if len(frames) != 4 {
		t.Fatalf("got %d result frames, want 4", len(frames))
	}
	for i, f := range frames {
		if f.Type != bridge.FrameResult || f.ID != uint64(i+1) {
			t.Errorf("frame %d = %+v", i, f)
		}
	}
	if !strings.Contains(frames[3].Error, "handler not found") {
		t.Errorf("unknown method error = %q", frames[3].Error)
	}
}

func TestHandleFrameRejectsGarbage(t *testing.T) {
	s := bridge.NewSession(&bridgetest.Transport{})
	if err := s.HandleFrame(context.Background(), []byte("{")); err == nil {
		t.Error("expected decode error")
	}
	if err := s.HandleFrame(context.Background(), []byte(`{"type":"event"}`)); err == nil {
		t.Error("expected error for host-only frame type")
	}
}

func TestInvokeRejectsUnknownMethod(t *testing.T) {
	s := bridge.NewSession(&bridgetest.Transport{})

	_, err := s.Invoke(context.Background(), bridge.Method("eval"), nil)
	if !errors.Is(err, bridge.ErrUnknownMethod) {
		t.Fatalf("err = %v, want ErrUnknownMethod", err)
	}
	if !errors.Is(err, bridge.ErrHandlerNotFound) {
		t.Errorf("err = %v, want it to wrap ErrHandlerNotFound", err)
	}

	// A catalog method without a handler is not unknown, only unhandled.
	_, err = s.Invoke(context.Background(), bridge.MethodUploadDroppedFiles, nil)
	if errors.Is(err, bridge.ErrUnknownMethod) || !errors.Is(err, bridge.ErrHandlerNotFound) {
		t.Errorf("err = %v, want plain ErrHandlerNotFound", err)
	}
}

func TestInvokeContextCarriesLogger(t *testing.T) {
	var buf bytes.Buffer
	s := bridge.NewSession(&bridgetest.Transport{}, bridge.WithLogger(zerolog.New(&buf)))
	s.Register(bridge.ResizePanel(func(ctx context.Context, w, h int, _ bool) error {
		logging.FromContext(ctx).Info().Int("width", w).Msg("resize")
		return nil
	}))

	if _, err := s.Invoke(context.Background(), bridge.MethodResizePanel, args(t, 300, 200, false)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"method":"resizePanel"`) || !strings.Contains(out, `"width":300`) {
		t.Errorf("handler log = %q, want method-tagged entry", out)
	}
}
