package handler

import (
	"context"
	"strconv"

	"pulse-chat/internal/domain/chat"
	"pulse-chat/internal/gateway"
	"pulse-chat/internal/services"
	"pulse-chat/internal/transport/httpdto"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Notifier is the realtime side of a REST call. Handlers persist first and
// then hand the result over; *gateway.Gateway satisfies it.
type Notifier interface {
	PublishMessage(ctx context.Context, msg chat.Message) gateway.MessageStatusPayload
	PublishRead(ctx context.Context, receipt services.ReadReceipt)
	PublishDeleted(ctx context.Context, msg chat.Message)
	PublishGroupChange(ctx context.Context, group services.GroupView, action, userID string)
}

// respondError records err for the error middleware and renders it.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(pulse_errors.HTTPStatus(err), httpdto.NewErrorResponse(pulse_errors.PublicMessage(err), pulse_errors.Code(err)))
}

func currentUserID(c *gin.Context) (string, bool) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		respondError(c, pulse_errors.ErrUnauthorized)
	}
	return userID, ok
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, pulse_errors.Invalid("Invalid request body"))
		return false
	}
	return true
}

// queryInt reads a positive integer query parameter, falling back to def
// when it is absent.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, pulse_errors.Invalid("Invalid " + name)
	}
	return v, nil
}
