package middleware

import (
	"strconv"

	"pulse-chat/internal/redis"
	"pulse-chat/internal/services"
	"pulse-chat/internal/transport/httpdto"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/gin-gonic/gin"
)

// MessageRateLimitMiddleware applies the per-user sliding window to message
// sends. Must run after AuthMiddleware. A nil limiter disables it.
func MessageRateLimitMiddleware(limiter *redis.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		userID, ok := services.UserIDFromContext(c.Request.Context())
		if !ok {
			c.Next()
			return
		}

		result, err := limiter.AllowMessage(c.Request.Context(), userID)
		if err != nil {
			_ = c.Error(err)
			abort(c, pulse_errors.ErrServiceUnavailable)
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			abort(c, pulse_errors.ErrRateLimited)
			return
		}

		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(pulse_errors.HTTPStatus(err), httpdto.NewErrorResponse(pulse_errors.PublicMessage(err), pulse_errors.Code(err)))
}

func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
