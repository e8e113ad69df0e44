package middleware

import (
	"pulse-chat/internal/transport/httpdto"
	pulse_errors "pulse-chat/pkg/errors"
	"pulse-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// Typed errors keep their reason; anything else is logged and reported
// generically.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		if l != nil && (pulse_errors.IsInternal(err) || c.Writer.Status() >= 500) {
			l.WithContext(c.Request.Context()).Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
		}
		if c.Writer.Written() {
			return
		}
		c.JSON(pulse_errors.HTTPStatus(err), httpdto.NewErrorResponse(pulse_errors.PublicMessage(err), pulse_errors.Code(err)))
	}
}
