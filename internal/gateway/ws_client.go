package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 256
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}

	errSendBufferFull = errors.New("send buffer full")
	errConnClosed     = errors.New("connection closed")
)

// wsConn adapts a gorilla websocket to Conn. Writes are queued and flushed by
// writePump; a full queue drops the frame.
type wsConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Type: event, Payload: raw, Timestamp: time.Now()})
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close stops the write pump, which closes the socket.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
	return nil
}

func (c *wsConn) readPump(ctx context.Context, g *Gateway) {
	defer func() {
		g.Disconnect(context.WithoutCancel(ctx), c.id)
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.log.Error("unexpected_close", "", c.id, err)
			}
			return
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
			g.log.Warn("malformed_frame", "", c.id, zap.Int("size", len(message)))
			_ = c.Send(EventError, ErrorPayload{Message: "Malformed frame", Code: "INVALID_REQUEST"})
			continue
		}
		g.Dispatch(ctx, c.id, env.Type, env.Payload)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
