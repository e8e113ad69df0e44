package gateway

import (
	"net/http"
	"strings"

	"pulse-chat/internal/transport/httpdto"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler serves the plain websocket transport.
type WebSocketHandler struct {
	gateway *Gateway
}

func NewWebSocketHandler(g *Gateway) *WebSocketHandler {
	return &WebSocketHandler{gateway: g}
}

// Handle authenticates before upgrading so rejected handshakes get a plain
// HTTP error and leave no state behind.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	token := extractToken(c.Request)
	if token == "" {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("Authentication token is required", "UNAUTHORIZED"))
		return
	}
	if _, err := h.gateway.deps.Auth.ParseAccessToken(token); err != nil {
		c.JSON(pulse_errors.HTTPStatus(err), httpdto.NewErrorResponse(pulse_errors.PublicMessage(err), pulse_errors.Code(err)))
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.gateway.log.Error("upgrade_failed", "", "", err)
		return
	}

	conn := newWSConn(ws)
	go conn.writePump()

	ctx := c.Request.Context()
	if _, err := h.gateway.Connect(ctx, conn, token); err != nil {
		_ = conn.Send(EventError, ErrorPayload{Message: pulse_errors.PublicMessage(err), Code: pulse_errors.Code(err)})
		_ = conn.Close()
		return
	}
	conn.readPump(ctx, h.gateway)
}

// extractToken reads the bearer credential from the query string or the
// Authorization header.
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
