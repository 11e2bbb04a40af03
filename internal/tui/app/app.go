package app

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/panel"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/scheduler"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tui/client"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tui/theme"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tui/views/debug"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tui/views/detail"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tui/views/issues"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tui/views/status"
)

const healthInterval = 5 * time.Second

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDetail
	OverlayDebug
)

// Invoker sends bridge invocations to the host.
type Invoker interface {
	Listen(ctx context.Context) tea.Cmd
	ReadLoop(ctx context.Context) tea.Cmd
	Invoke(method bridge.Method, args ...any) tea.Cmd
}

// HealthSource reports the host's panels.
type HealthSource interface {
	Panels(ctx context.Context) ([]client.PanelInfo, error)
}

type healthMsg struct{ steps []scheduler.StepHealth }

type healthTickMsg struct{}

// Model is the root Bubble Tea model.
type Model struct {
	ws     Invoker
	http   HealthSource
	panel  string
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	overlay   Overlay
	statusBar status.Model
	list      issues.Model
	detail    detail.Model
	log       debug.Model

	// Connect panel.
	site       textinput.Model
	authURL    string
	authorized bool
	authErr    string

	connected bool

	// DescriptionStyle is the glamour style for issue descriptions.
	DescriptionStyle string
}

// New creates the root model for panel.
func New(ws Invoker, http HealthSource, panelName string) Model {
	ctx, cancel := context.WithCancel(context.Background())
	site := textinput.New()
	site.Placeholder = "your-site.atlassian.net"
	site.Focus()
	return Model{
		ws:        ws,
		http:      http,
		panel:     panelName,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		statusBar: status.New(panelName),
		list:      issues.New(),
		log:       debug.New(),
		site:      site,
	}
}

// Init starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.ws.Listen(m.ctx), m.pollHealth())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.list.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.ConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.log.Conn("connected")
		cmds := []tea.Cmd{m.ws.ReadLoop(m.ctx)}
		if m.panel == panel.Issues {
			cmds = append(cmds, m.ws.Invoke(bridge.MethodOnReady))
		}
		return m, tea.Batch(cmds...)

	case client.DisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		m.log.Conn(fmt.Sprintf("disconnected: %v", msg.Err))
		return m, m.ws.Listen(m.ctx)

	case client.EventMsg:
		m.log.Event(msg.Name, msg.Detail)
		m.applyEvent(msg)
		return m, m.ws.ReadLoop(m.ctx)

	case client.ResultMsg:
		if msg.Err != "" {
			m.log.Error(string(msg.Method), msg.Err)
		} else {
			m.log.Result(string(msg.Method), msg.Result)
		}
		cmd := m.applyResult(msg)
		return m, tea.Batch(m.ws.ReadLoop(m.ctx), cmd)

	case client.InvokeErrMsg:
		m.log.Error(string(msg.Method), msg.Err.Error())
		return m, nil

	case healthTickMsg:
		return m, m.pollHealth()

	case healthMsg:
		m.statusBar.Steps = msg.steps
		return m, tea.Tick(healthInterval, func(time.Time) tea.Msg { return healthTickMsg{} })
	}

	if m.panel == panel.Connect {
		var cmd tea.Cmd
		m.site, cmd = m.site.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) pollHealth() tea.Cmd {
	if m.http == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, healthInterval)
		defer cancel()
		panels, err := m.http.Panels(ctx)
		if err != nil {
			return healthMsg{}
		}
		for _, p := range panels {
			if p.Name == m.panel {
				return healthMsg{steps: p.Status.Steps}
			}
		}
		return healthMsg{}
	}
}

func (m *Model) applyEvent(ev client.EventMsg) {
	decode := func(v any) bool {
		if err := json.Unmarshal(ev.Detail, v); err != nil {
			m.log.Error(ev.Name, err.Error())
			return false
		}
		return true
	}

	switch ev.Name {
	case bridge.EventFiltersUpdated:
		var p bridge.FiltersUpdatedPayload
		if decode(&p) {
			m.list.SetFilters(p.Filters, p.FilterSelected)
			m.statusBar.Filter = p.FilterSelected
		}
	case bridge.EventIssuesLoading:
		var p bridge.IssuesLoadingPayload
		if decode(&p) {
			m.list.SetLoading(p.FilterKey)
			m.statusBar.Filter = p.FilterKey
			m.statusBar.Loading = true
		}
	case bridge.EventIssuesLoaded:
		var p bridge.IssuesLoadedPayload
		if decode(&p) {
			m.list.SetIssues(p.Issues)
			m.statusBar.Loading = false
		}
	case bridge.EventAttachmentsLoaded:
		var p bridge.AttachmentsLoadedPayload
		if decode(&p) && m.showing(p.IssueKey) {
			m.detail.SetAttachments(p.Attachments)
		}
	case bridge.EventThumbnailLoaded:
		var p bridge.ThumbnailLoadedPayload
		if decode(&p) && m.showing(p.IssueKey) {
			m.detail.ThumbnailLoaded(p.ID)
		}
	case bridge.EventDownloadProgress:
		var p bridge.DownloadProgressPayload
		if decode(&p) {
			m.statusBar.Activity = fmt.Sprintf("downloading %.0f%%", p.Progress*100)
			if m.showing(p.IssueKey) {
				m.detail.Progress(p.AttachmentID, p.Progress)
			}
		}
	case bridge.EventDownloadComplete:
		var p bridge.DownloadCompletePayload
		if decode(&p) {
			m.statusBar.Activity = ""
			if m.showing(p.IssueKey) {
				m.detail.Downloaded(p.AttachmentID)
			}
		}
	case bridge.EventDeleteComplete:
		var p bridge.DeleteCompletePayload
		if decode(&p) && m.showing(p.IssueKey) {
			m.detail.Removed(p.AttachmentID)
		}
	case bridge.EventUploadQueued:
		var p bridge.UploadQueuedPayload
		if decode(&p) {
			m.statusBar.Activity = fmt.Sprintf("uploading %d to %s", p.Count, p.IssueKey)
		}
	case bridge.EventUploadProgress:
		var p bridge.UploadProgressPayload
		if decode(&p) {
			m.statusBar.Activity = fmt.Sprintf("uploading %s %.0f%%", p.File, p.Progress*100)
		}
	case bridge.EventUploadComplete:
		var p bridge.UploadCompletePayload
		if decode(&p) {
			m.statusBar.Activity = ""
			if p.Attachment != nil && m.showing(p.IssueKey) {
				m.detail.SetAttachments(append(slices.Clone(m.detail.Attachments), *p.Attachment))
			}
		}
	}
}

func (m *Model) applyResult(res client.ResultMsg) tea.Cmd {
	if res.Err != "" {
		if res.Method == bridge.MethodTestAuthorization {
			m.authErr = res.Err
		}
		return nil
	}
	switch res.Method {
	case bridge.MethodGetAuthURL:
		var u string
		if json.Unmarshal(res.Result, &u) == nil && u != "" {
			m.authURL = u
			return m.ws.Invoke(bridge.MethodOpenInBrowser, u)
		}
	case bridge.MethodSetAuthURL:
		return m.ws.Invoke(bridge.MethodGetAuthURL)
	case bridge.MethodTestAuthorization:
		var ok bool
		if json.Unmarshal(res.Result, &ok) == nil {
			m.authorized = ok
			if ok {
				m.authErr = ""
				return m.ws.Invoke(bridge.MethodAuthorizationComplete)
			}
			m.authErr = "not authorized yet"
		}
	}
	return nil
}

func (m Model) showing(issueKey string) bool {
	return m.overlay == OverlayDetail && m.detail.Issue != nil && m.detail.Issue.Key == issueKey
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) && (msg.String() == "ctrl+c" || m.panel != panel.Connect) {
		m.cancel()
		return m, tea.Quit
	}

	switch m.overlay {
	case OverlayDebug:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.log.Scroll(1)
		case key.Matches(msg, m.keys.Down):
			m.log.Scroll(-1)
		}
		return m, nil
	case OverlayDetail:
		return m.handleDetailKey(msg)
	}

	if m.panel == panel.Connect {
		return m.handleConnectKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		m.list.Down()
	case key.Matches(msg, m.keys.Up):
		m.list.Up()
	case key.Matches(msg, m.keys.Tab):
		if next := m.list.NextFilter(); next != "" {
			return m, m.ws.Invoke(bridge.MethodFilterSelected, next)
		}
	case key.Matches(msg, m.keys.Reload):
		if m.list.Filter != "" {
			return m, m.ws.Invoke(bridge.MethodFilterSelected, m.list.Filter)
		}
	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
	case key.Matches(msg, m.keys.Upload):
		if is, ok := m.list.Current(); ok {
			return m, m.ws.Invoke(bridge.MethodUploadDroppedFiles, is.Key)
		}
	case key.Matches(msg, m.keys.Enter):
		if is, ok := m.list.Current(); ok {
			m.detail = detail.New(&is, m.DescriptionStyle)
			m.overlay = OverlayDetail
			return m, m.ws.Invoke(bridge.MethodViewIssue, is.Key)
		}
	}
	return m, nil
}

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	issueKey := m.detail.Issue.Key
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.overlay = OverlayNone
	case key.Matches(msg, m.keys.Down):
		m.detail.Next()
	case key.Matches(msg, m.keys.Up):
		m.detail.Prev()
	case key.Matches(msg, m.keys.Upload):
		return m, m.ws.Invoke(bridge.MethodUploadDroppedFiles, issueKey)
	case key.Matches(msg, m.keys.Open):
		if a, ok := m.detail.Current(); ok {
			return m, m.ws.Invoke(bridge.MethodOpenAttachment, issueKey, a.ID, a.Content, a.Filename)
		}
	case key.Matches(msg, m.keys.Delete):
		if a, ok := m.detail.Current(); ok {
			return m, m.ws.Invoke(bridge.MethodDeleteAttachment, issueKey, a.ID, false)
		}
	}
	return m, nil
}

func (m Model) handleConnectKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Enter):
		site := m.site.Value()
		if site == "" {
			return m, nil
		}
		m.authErr = ""
		return m, m.ws.Invoke(bridge.MethodSetAuthURL, site)
	case msg.Type == tea.KeyCtrlT:
		return m, m.ws.Invoke(bridge.MethodTestAuthorization)
	case msg.Type == tea.KeyCtrlD:
		m.overlay = OverlayDebug
		return m, nil
	}
	var cmd tea.Cmd
	m.site, cmd = m.site.Update(msg)
	return m, cmd
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body, help string
	switch {
	case m.overlay == OverlayDebug:
		body = m.log.View(m.width, m.height-4)
		help = "j/k:scroll  esc:close"
	case m.overlay == OverlayDetail:
		body = m.detail.View()
		help = "j/k:select  o:open  x:delete  u:upload  esc:close"
	case m.panel == panel.Connect:
		body = m.connectView()
		help = "enter:connect  ctrl+t:test authorization  ctrl+d:log  ctrl+c:quit"
	default:
		body = m.list.View()
		help = "j/k:navigate  enter:view  tab:filter  r:reload  u:upload  d:log  q:quit"
	}
	if !m.connected {
		body = lipgloss.JoinVertical(lipgloss.Left, body, "",
			theme.StyleError.Render("  DISCONNECTED  Reconnecting..."))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		body,
		theme.StyleDimmed.Render("  "+help),
	)
}

func (m Model) connectView() string {
	lines := []string{
		theme.StyleHeader.Render("  Connect to your issue tracker"),
		"",
		"  " + m.site.View(),
	}
	if m.authURL != "" {
		lines = append(lines, "", theme.StyleDimmed.Render("  Authorize in your browser, then press ctrl+t:"), "  "+m.authURL)
	}
	if m.authErr != "" {
		lines = append(lines, "", theme.StyleError.Render("  "+m.authErr))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// Issues returns the issues currently listed.
func (m Model) Issues() []tracker.Issue { return m.list.Issues }
