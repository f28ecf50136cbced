package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/draiimon/PanicSense-Final-sub000/app/models"

	"github.com/gin-gonic/gin"
)

// GetUsageStats reports the shared daily row quota.
func (s *Server) GetUsageStats(c *gin.Context) {
	c.JSON(http.StatusOK, usageBody(s.usage.UsageStats()))
}

// rejectIfQuotaReached answers 429 and returns true once the day's rows are
// used up. Endpoints that spawn a worker call it before doing any work.
func (s *Server) rejectIfQuotaReached(c *gin.Context) bool {
	if !s.usage.HasReachedDailyLimit() {
		return false
	}
	stats := s.usage.UsageStats()
	c.Header("Retry-After", strconv.Itoa(int(time.Until(stats.ResetAt).Seconds())+1))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error": "Daily analysis limit reached",
		"usage": usageBody(stats),
	})
	return true
}

func usageBody(u models.UsageStats) gin.H {
	return gin.H{
		"used":      u.Used,
		"limit":     u.Limit,
		"remaining": u.Remaining(),
		"resetAt":   u.ResetAt.UTC().Format(time.RFC3339),
	}
}
