package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware admits or rejects requests for one endpoint class, keyed by client IP.
func Middleware(l *Limiter, class Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.ClientIP()
		d := l.Allow(client, class)
		if d.Limit == 0 {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			seconds := int(math.Ceil(d.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			l.logger.Warn("rate limit exceeded",
				"client_ip", client, "class", string(class), "path", c.Request.URL.Path, "retry_after_s", seconds)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Too many requests, please try again later.",
				"retryAfter": seconds,
				"resetAt":    d.ResetAt.UTC().Format(time.RFC3339),
			})
			return
		}
		c.Next()
	}
}
