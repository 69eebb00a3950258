package middleware

import (
	"net/http"
	"strconv"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/metrics"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimit rejects requests over the per-user budget. Runs after
// AuthMiddleware so the bucket key is the user; anything without a
// userID is keyed by client IP.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if v, ok := c.Get("userID"); ok {
			if id, ok := v.(uint); ok && id > 0 {
				key = "user:" + strconv.FormatUint(uint64(id), 10)
			}
		}
		if !limiter.Allow(c.Request.Context(), key) {
			metrics.RateLimitRejectedTotal.Inc()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
