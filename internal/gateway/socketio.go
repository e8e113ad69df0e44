package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	pulse_errors "pulse-chat/pkg/errors"

	socketio "github.com/googollee/go-socket.io"
	"go.uber.org/zap"
)

const socketNamespace = "/"

// socketConn adapts a socket.io connection to Conn.
type socketConn struct {
	s socketio.Conn
}

func (c socketConn) ID() string { return "sio-" + c.s.ID() }

func (c socketConn) Send(event string, payload any) error {
	c.s.Emit(event, payload)
	return nil
}

func (c socketConn) Close() error { return c.s.Close() }

// clientEvents are the events accepted over socket.io with an object payload.
var clientEvents = []string{
	EventJoinChat, EventJoinRoom,
	EventLeaveChat, EventLeaveRoom,
	EventSendMessage,
	EventTypingStart, EventTypingStop,
	EventMarkRead,
	EventCreateGroup, EventJoinGroup, EventLeaveGroup,
}

// NewSocketIOServer exposes the gateway over socket.io. The caller runs
// Serve and Close and mounts the server under /socket.io/.
func NewSocketIOServer(g *Gateway) *socketio.Server {
	server := socketio.NewServer(nil)

	server.OnConnect(socketNamespace, func(s socketio.Conn) error {
		token := extractToken(&http.Request{URL: ptr(s.URL()), Header: s.RemoteHeader()})
		conn := socketConn{s: s}
		if _, err := g.Connect(context.Background(), conn, token); err != nil {
			s.Emit(EventError, ErrorPayload{Message: pulse_errors.PublicMessage(err), Code: pulse_errors.Code(err)})
			return err
		}
		return nil
	})

	for _, event := range clientEvents {
		event := event
		server.OnEvent(socketNamespace, event, func(s socketio.Conn, payload map[string]interface{}) {
			raw, err := json.Marshal(payload)
			if err != nil {
				g.log.Warn("malformed_payload", "", s.ID(), zap.String("msg_type", event))
				return
			}
			g.Dispatch(context.Background(), socketConn{s: s}.ID(), event, raw)
		})
	}

	// ping carries no payload
	server.OnEvent(socketNamespace, EventPing, func(s socketio.Conn) {
		g.Dispatch(context.Background(), socketConn{s: s}.ID(), EventPing, nil)
	})

	server.OnError(socketNamespace, func(s socketio.Conn, err error) {
		connID := ""
		if s != nil {
			connID = s.ID()
		}
		g.log.Error("socketio_error", "", connID, err)
	})

	server.OnDisconnect(socketNamespace, func(s socketio.Conn, reason string) {
		g.Disconnect(context.Background(), socketConn{s: s}.ID())
	})

	return server
}

func ptr[T any](v T) *T { return &v }
