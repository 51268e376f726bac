// Package server hosts the websocket endpoints: the chat room socket, the
// status socket and the small HTTP API around them.
package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-relay/errors"
	"chat-relay/observability"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Conn wraps one websocket connection with a buffered outbound queue and a
// read/write pump pair. Enqueue never blocks: a full queue means the peer is
// too slow and the connection gets detached.
type Conn struct {
	ID string

	ws      *websocket.Conn
	send    chan []byte
	log     *slog.Logger
	monitor *observability.Monitor

	closeOnce sync.Once
	done      chan struct{}
}

func NewConn(ws *websocket.Conn, log *slog.Logger, monitor *observability.Monitor, bufferSize int) *Conn {
	return &Conn{
		ID:      uuid.New().String(),
		ws:      ws,
		send:    make(chan []byte, bufferSize),
		log:     log,
		monitor: monitor,
		done:    make(chan struct{}),
	}
}

// Enqueue hands a frame to the write pump without blocking the caller.
func (c *Conn) Enqueue(raw []byte) error {
	select {
	case <-c.done:
		return errors.ErrSinkClosed
	default:
	}

	select {
	case c.send <- raw:
		return nil
	default:
		c.monitor.IncrFramesDropped()
		return errors.ErrSinkClosed
	}
}

// Detach tears the connection down. Safe to call from any goroutine, any
// number of times.
func (c *Conn) Detach() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.ws.Close(); err != nil {
			c.log.Debug("Error while closing websocket", "conn_id", c.ID, "err", err)
		}
	})
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// ReadPump blocks until the peer goes away, feeding every inbound frame to
// handle. It owns the read side: deadlines and the pong handler live here.
func (c *Conn) ReadPump(handle func(raw []byte)) {
	defer c.Detach()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.log.Debug("Unexpected websocket close", "conn_id", c.ID, "err", err)
			}
			return
		}
		handle(raw)
	}
}

// WritePump drains the outbound queue and keeps the connection alive with
// periodic pings.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Detach()
	}()

	for {
		select {
		case <-c.done:
			return
		case raw := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.log.Debug("Error while writing frame", "conn_id", c.ID, "err", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
