package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/bridge"
)

// conn is the bridge.Transport for one view connection. Frames are written
// by a single pump goroutine in the order Send accepted them.
type conn struct {
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	onWriteError func(error)
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration, onWriteError func(error)) *conn {
	c := &conn{
		ws:           ws,
		send:         make(chan []byte, 64),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		onWriteError: onWriteError,
	}
	go c.writePump()
	return c
}

// Send queues frame for the pump. It blocks while the queue is full, until
// ctx expires.
func (c *conn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return bridge.ErrSessionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return bridge.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) writePump() {
	defer c.ws.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				if c.onWriteError != nil {
					c.onWriteError(err)
				}
				c.close()
				return
			}
		}
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

var _ bridge.Transport = (*conn)(nil)
