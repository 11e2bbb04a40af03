package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

var errNotConnected = errors.New("not connected")

// WSClient is a terminal view attached to one panel of the host.
type WSClient struct {
	url string
	log zerolog.Logger

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	nextID  uint64
	calls   map[uint64]bridge.Method
	pingCtx context.CancelFunc
}

// NewWSClient builds a client for base (ws://host:port/ws) attached to panel.
func NewWSClient(base, panel, token string, log zerolog.Logger) (*WSClient, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("panel", panel)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return &WSClient{url: u.String(), log: log, calls: make(map[uint64]bridge.Method)}, nil
}

// URL is the dial URL including the panel and token query.
func (c *WSClient) URL() string { return c.url }

// ConnectedMsg is sent once the view has announced readiness.
type ConnectedMsg struct{}

// DisconnectedMsg is sent when the connection drops.
type DisconnectedMsg struct{ Err error }

// EventMsg is an event dispatched by the host.
type EventMsg struct {
	Name   string
	Detail json.RawMessage
}

// ResultMsg answers an earlier Invoke.
type ResultMsg struct {
	ID     uint64
	Method bridge.Method
	Result json.RawMessage
	Err    string
}

// InvokeErrMsg reports an invocation that could not be written.
type InvokeErrMsg struct {
	Method bridge.Method
	Err    error
}

// Listen returns a command that connects, sends the ready frame and
// reports ConnectedMsg. It retries with backoff until ctx is done.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
			if err != nil {
				c.log.Debug().Err(err).Dur("retry", delay).Msg("dial")
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				delay = min(delay*2, reconnectMaxDelay)
				continue
			}

			// Not shared yet, no write lock needed.
			if err := conn.WriteJSON(bridge.Frame{Type: bridge.FrameReady}); err != nil {
				conn.Close()
				continue
			}

			c.mu.Lock()
			if c.pingCtx != nil {
				c.pingCtx()
			}
			pingCtx, pingCancel := context.WithCancel(ctx)
			c.conn = conn
			c.pingCtx = pingCancel
			c.mu.Unlock()

			go c.pingLoop(pingCtx, conn)

			return ConnectedMsg{}
		}
	}
}

// ReadLoop returns a command that reads until the next frame worth
// reporting. Start it again after each message.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Err: errNotConnected}
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return DisconnectedMsg{Err: err}
			}

			var f bridge.Frame
			if err := json.Unmarshal(data, &f); err != nil {
				c.log.Debug().Err(err).Msg("bad frame")
				continue
			}
			if msg := c.dispatch(f); msg != nil {
				return msg
			}
		}
	}
}

func (c *WSClient) dispatch(f bridge.Frame) tea.Msg {
	switch f.Type {
	case bridge.FrameEvent:
		return EventMsg{Name: f.Name, Detail: f.Detail}
	case bridge.FrameResult:
		c.mu.Lock()
		method := c.calls[f.ID]
		delete(c.calls, f.ID)
		c.mu.Unlock()
		return ResultMsg{ID: f.ID, Method: method, Result: f.Result, Err: f.Error}
	}
	return nil
}

// Invoke returns a command that calls method on the host. The answer
// arrives through ReadLoop as a ResultMsg.
func (c *WSClient) Invoke(method bridge.Method, args ...any) tea.Cmd {
	return func() tea.Msg {
		if _, err := c.Send(method, args...); err != nil {
			return InvokeErrMsg{Method: method, Err: err}
		}
		return nil
	}
}

// Send writes an invoke frame and returns its id.
func (c *WSClient) Send(method bridge.Method, args ...any) (uint64, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return 0, fmt.Errorf("%s: encode arg: %w", method, err)
		}
		raw = append(raw, b)
	}

	c.mu.Lock()
	conn := c.conn
	c.nextID++
	id := c.nextID
	if conn != nil {
		c.calls[id] = method
	}
	c.mu.Unlock()
	if conn == nil {
		return 0, errNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(bridge.Frame{Type: bridge.FrameInvoke, ID: id, Method: method, Args: raw}); err != nil {
		c.mu.Lock()
		delete(c.calls, id)
		c.mu.Unlock()
		return 0, err
	}
	return id, nil
}

func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close drops the current connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingCtx != nil {
		c.pingCtx()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
