package ratelimit

import (
	"net/http"
	"strconv"

	"aura-payments/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Middleware limits requests per client IP. Limiter errors let the request
// through.
func Middleware(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			zap.L().Warn("[RateLimit] limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(res.ResetIn.Seconds()), 10))

		if !res.Allowed {
			be := errutil.As(errutil.TooManyRequest("rate limit exceeded", nil))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, be.JSON())
			return
		}
		c.Next()
	}
}
