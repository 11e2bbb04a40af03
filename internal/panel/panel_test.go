package panel

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/auth"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge/bridgetest"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/config"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/coop"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/fetch"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/prefs"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker/mock"
)

type fakeOpener struct {
	mu     sync.Mutex
	opened []string
}

func (o *fakeOpener) Open(_ context.Context, target string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, target)
	return nil
}

func (o *fakeOpener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}

type fakeDrops struct{ files []string }

func (d *fakeDrops) Take() ([]string, error) {
	f := d.files
	d.files = nil
	return f, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

type fakeAnalytics struct{ events []string }

func (a *fakeAnalytics) Track(_ context.Context, event string, _ map[string]any) {
	a.events = append(a.events, event)
}

type fakeNavigator struct{ opened []string }

func (n *fakeNavigator) OpenPanel(_ context.Context, name string) error {
	n.opened = append(n.opened, name)
	return nil
}

type harness struct {
	panel     *Panel
	session   *bridge.Session
	transport *bridgetest.Transport
	opener    *fakeOpener
	drops     *fakeDrops
	notifier  *fakeNotifier
	analytics *fakeAnalytics
	navigator *fakeNavigator
	auth      *auth.Manager
}

func newHarness(t *testing.T, name string, offline bool) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Offline = offline
	cfg.Attachments.DownloadDir = t.TempDir()

	h := &harness{
		transport: &bridgetest.Transport{},
		opener:    &fakeOpener{},
		drops:     &fakeDrops{},
		notifier:  &fakeNotifier{},
		analytics: &fakeAnalytics{},
		navigator: &fakeNavigator{},
		auth:      auth.NewManager(prefs.NewStore(t.TempDir())),
	}
	exec := &coop.Exec{}
	h.session = bridge.NewSession(h.transport, bridge.WithExec(exec))
	p, err := Open(name, h.session, exec, Deps{
		Tracker:   mock.New(0),
		Auth:      h.auth,
		Opener:    h.opener,
		Notifier:  h.notifier,
		Drops:     h.drops,
		Analytics: h.analytics,
		Navigator: h.navigator,
		Config:    cfg,
		Log:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.attach != nil {
		p.attach.checkSpace = func(string, uint64) error { return nil }
	}
	h.panel = p
	h.session.MarkReady(context.Background())
	return h
}

func (h *harness) invoke(t *testing.T, m bridge.Method, args ...any) json.RawMessage {
	t.Helper()
	raw := make(bridge.Args, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			t.Fatal(err)
		}
		raw[i] = b
	}
	out, err := h.session.Invoke(context.Background(), m, raw)
	if err != nil {
		t.Fatalf("%s: %v", m, err)
	}
	return out
}

func (h *harness) events() []bridge.Frame {
	var out []bridge.Frame
	for _, raw := range h.transport.Frames() {
		var f bridge.Frame
		if err := json.Unmarshal(raw, &f); err == nil && f.Type == bridge.FrameEvent {
			out = append(out, f)
		}
	}
	return out
}

func (h *harness) named(name string) []bridge.Frame {
	var out []bridge.Frame
	for _, f := range h.events() {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}

func (h *harness) waitFor(t *testing.T, name string, n int) []bridge.Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := h.named(name); len(got) >= n {
			return got
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("waited for %d %s events, got %d", n, name, len(h.named(name)))
	return nil
}

func TestUnknownPanel(t *testing.T) {
	exec := &coop.Exec{}
	sess := bridge.NewSession(&bridgetest.Transport{}, bridge.WithExec(exec))
	if _, err := Open("settings", sess, exec, Deps{}); !errors.Is(err, ErrUnknownPanel) {
		t.Fatalf("err = %v, want ErrUnknownPanel", err)
	}
}

func TestIssuesReadinessLoadsDefaultFilterOnce(t *testing.T) {
	h := newHarness(t, Issues, true)
	ctx := context.Background()
	sched := h.panel.Scheduler()

	sched.Tick(ctx)
	if len(h.events()) != 0 {
		t.Fatalf("events before onReady: %v", h.events())
	}

	h.invoke(t, bridge.MethodOnReady)
	sched.Tick(ctx)
	sched.Tick(ctx)
	h.panel.Filters().Wait()

	updated := h.named(bridge.EventFiltersUpdated)
	if len(updated) != 1 {
		t.Fatalf("filters.updated sent %d times, want 1", len(updated))
	}
	var fu bridge.FiltersUpdatedPayload
	if err := json.Unmarshal(updated[0].Detail, &fu); err != nil {
		t.Fatal(err)
	}
	if fu.FilterSelected != "recently-viewed" || len(fu.Filters) != 4 {
		t.Errorf("filters.updated = %+v", fu)
	}

	loading := h.named(bridge.EventIssuesLoading)
	if len(loading) != 1 || !strings.Contains(string(loading[0].Detail), "recently-viewed") {
		t.Errorf("issues.loading = %v", loading)
	}
	loaded := h.waitFor(t, bridge.EventIssuesLoaded, 1)
	var il bridge.IssuesLoadedPayload
	if err := json.Unmarshal(loaded[0].Detail, &il); err != nil {
		t.Fatal(err)
	}
	if len(il.Issues) != 3 || il.Issues[0].Key != "SKT-12" {
		t.Errorf("issues.loaded = %+v", il.Issues)
	}
}

func TestIssuesFilterSelectedLatestWins(t *testing.T) {
	h := newHarness(t, Issues, true)
	h.invoke(t, bridge.MethodFilterSelected, "assigned-to-me")
	h.invoke(t, bridge.MethodFilterSelected, "mentioning-me")
	h.panel.Scheduler().Tick(context.Background())
	h.panel.Filters().Wait()

	loading := h.named(bridge.EventIssuesLoading)
	if len(loading) != 1 || !strings.Contains(string(loading[0].Detail), "mentioning-me") {
		t.Errorf("issues.loading = %v", loading)
	}
	loaded := h.waitFor(t, bridge.EventIssuesLoaded, 1)
	if !strings.Contains(string(loaded[0].Detail), "DES-4") {
		t.Errorf("issues.loaded = %s", loaded[0].Detail)
	}
}

func TestIssuesUploadOffline(t *testing.T) {
	h := newHarness(t, Issues, true)
	h.drops.files = []string{"/tmp/a.png", "/tmp/b.png"}
	h.invoke(t, bridge.MethodUploadDroppedFiles, "SKT-12")
	if h.panel.Queue().Len() != 1 {
		t.Fatalf("queue len = %d, want 1", h.panel.Queue().Len())
	}

	// Nothing dropped: nothing queued.
	h.invoke(t, bridge.MethodUploadDroppedFiles, "SKT-12")
	if h.panel.Queue().Len() != 1 {
		t.Fatalf("empty drop was queued")
	}

	h.panel.Scheduler().Tick(context.Background())
	if h.panel.Queue().Len() != 0 {
		t.Error("request not consumed")
	}
	if len(h.notifier.messages) != 1 || h.notifier.messages[0] != "Can't upload 2 attachments to SKT-12 (offline)" {
		t.Errorf("messages = %q", h.notifier.messages)
	}
	if n := len(h.named(bridge.EventUploadQueued)); n != 0 {
		t.Errorf("upload.queued sent %d times while offline", n)
	}
}

func TestViewIssueLoadsAttachmentsAndThumbnails(t *testing.T) {
	h := newHarness(t, Issues, true)
	h.invoke(t, bridge.MethodViewIssue, "SKT-12")

	loaded := h.waitFor(t, bridge.EventAttachmentsLoaded, 1)
	var al bridge.AttachmentsLoadedPayload
	if err := json.Unmarshal(loaded[0].Detail, &al); err != nil {
		t.Fatal(err)
	}
	if al.IssueKey != "SKT-12" || len(al.Attachments) != 3 {
		t.Errorf("attachments.loaded = %+v", al)
	}

	thumbs := h.waitFor(t, bridge.EventThumbnailLoaded, 2)
	time.Sleep(20 * time.Millisecond)
	if n := len(h.named(bridge.EventThumbnailLoaded)); n != 2 {
		t.Errorf("thumbnail.loaded sent %d times, want 2 (text file has none)", n)
	}
	for _, f := range thumbs {
		var tl bridge.ThumbnailLoadedPayload
		if err := json.Unmarshal(f.Detail, &tl); err != nil {
			t.Fatal(err)
		}
		if tl.ID == "10003" || !strings.HasPrefix(tl.DataURI, "data:image/png;base64,") {
			t.Errorf("thumbnail = %+v", tl)
		}
	}
}

func TestDeleteAttachment(t *testing.T) {
	h := newHarness(t, Issues, true)
	h.invoke(t, bridge.MethodDeleteAttachment, "SKT-12", "10002", true)
	h.invoke(t, bridge.MethodDeleteAttachment, "SKT-12", "10001", false)

	done := h.waitFor(t, bridge.EventDeleteComplete, 1)
	time.Sleep(20 * time.Millisecond)
	if n := len(h.named(bridge.EventDeleteComplete)); n != 1 {
		t.Fatalf("delete.complete sent %d times, want 1", n)
	}
	if !strings.Contains(string(done[0].Detail), `"attachmentId":"10001"`) {
		t.Errorf("delete.complete = %s", done[0].Detail)
	}
}

func TestOpenAttachmentDownloadsThenOpens(t *testing.T) {
	h := newHarness(t, Issues, true)
	h.invoke(t, bridge.MethodOpenAttachment, "SKT-12", "10001", "mock://10001", "welcome@2x.png")

	h.waitFor(t, bridge.EventDownloadComplete, 1)
	progress := h.named(bridge.EventDownloadProgress)
	if len(progress) != 4 {
		t.Errorf("download.progress sent %d times, want 4", len(progress))
	}

	deadline := time.Now().Add(time.Second)
	for len(h.opener.Opened()) == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	opened := h.opener.Opened()
	if len(opened) != 1 || filepath.Base(opened[0]) != "10001-welcome@2x.png" {
		t.Errorf("opened = %v", opened)
	}
}

func TestOpenAttachmentSurvivesProgressDispatchFailure(t *testing.T) {
	var buf bytes.Buffer
	rec := &bridgetest.Recorder{}
	rec.FailNamed(bridge.EventDownloadProgress, errors.New("view gone"))
	opener := &fakeOpener{}
	cfg := config.Default().Attachments
	cfg.DownloadDir = t.TempDir()

	a := NewAttachments(mock.New(0), rec, opener, fetch.NewLimiter(2), cfg, zerolog.New(&buf).Level(zerolog.DebugLevel))
	a.checkSpace = func(string, uint64) error { return nil }

	if err := a.Open(context.Background(), "SKT-12", "10001", "mock://10001", "a.png"); err != nil {
		t.Fatal(err)
	}
	if n := len(rec.Named(bridge.EventDownloadComplete)); n != 1 {
		t.Errorf("download.complete sent %d times, want 1", n)
	}
	if len(opener.Opened()) != 1 {
		t.Errorf("opened = %v, want one file", opener.Opened())
	}
	if out := buf.String(); !strings.Contains(out, "dispatch download.progress") || !strings.Contains(out, "view gone") {
		t.Errorf("log = %q, want the dropped progress event", out)
	}
}

func TestOpenAttachmentNoSpace(t *testing.T) {
	h := newHarness(t, Issues, true)
	h.panel.attach.checkSpace = func(string, uint64) error { return errors.New("insufficient disk space") }
	h.invoke(t, bridge.MethodOpenAttachment, "SKT-12", "10001", "mock://10001", "a.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.panel.Run(ctx)
	if n := len(h.named(bridge.EventDownloadProgress)); n != 0 {
		t.Errorf("download started without space: %d progress events", n)
	}
	if len(h.opener.Opened()) != 0 {
		t.Error("opened without download")
	}
}

func TestDefaultHandlers(t *testing.T) {
	for _, name := range []string{Issues, Connect} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, name, true)
			h.invoke(t, bridge.MethodResizePanel, 480, 640, true)
			h.invoke(t, bridge.MethodOpenInBrowser, "https://example.atlassian.net")
			h.invoke(t, bridge.MethodAnalytics, "openPanel", map[string]any{"panel": name})

			st := h.panel.Status().(Status)
			if st.Size != (Size{Width: 480, Height: 640, Animate: true}) {
				t.Errorf("size = %+v", st.Size)
			}
			if got := h.opener.Opened(); len(got) != 1 || got[0] != "https://example.atlassian.net" {
				t.Errorf("opened = %v", got)
			}
			if len(h.analytics.events) != 1 || h.analytics.events[0] != "openPanel" {
				t.Errorf("analytics = %v", h.analytics.events)
			}
		})
	}
}

func TestConnectFlow(t *testing.T) {
	h := newHarness(t, Connect, false)
	if h.panel.Scheduler() != nil {
		t.Error("connect panel should have no scheduler")
	}

	if got := string(h.invoke(t, bridge.MethodGetAuthURL)); got != `""` {
		t.Errorf("getAuthUrl before site = %s", got)
	}
	h.invoke(t, bridge.MethodSetAuthURL, "acme")
	if got := string(h.invoke(t, bridge.MethodGetAuthURL)); !strings.Contains(got, "acme.atlassian.net") {
		t.Errorf("getAuthUrl = %s", got)
	}
	if got := string(h.invoke(t, bridge.MethodTestAuthorization)); got != "true" {
		t.Errorf("testAuthorization = %s", got)
	}
	if !h.auth.Authorized() {
		t.Error("not authorized after successful test")
	}

	h.invoke(t, bridge.MethodAuthorizationComplete)
	if len(h.navigator.opened) != 1 || h.navigator.opened[0] != Issues {
		t.Errorf("navigator = %v", h.navigator.opened)
	}
	select {
	case <-h.session.Done():
	default:
		t.Error("connect session not closed")
	}
}

func TestIssuesHandlersNotOnConnect(t *testing.T) {
	h := newHarness(t, Connect, true)
	_, err := h.session.Invoke(context.Background(), bridge.MethodFilterSelected, nil)
	if !errors.Is(err, bridge.ErrHandlerNotFound) {
		t.Errorf("err = %v, want ErrHandlerNotFound", err)
	}
}
