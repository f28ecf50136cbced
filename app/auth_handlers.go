package app

import (
	"net/http"

	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/draiimon/PanicSense-Final-sub000/auth"

	"github.com/gin-gonic/gin"
)

// Health is a public health check endpoint.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"activeWorkers": len(s.manager.ActiveSessions()),
		"fingerprint":   s.sessions.Fingerprint(),
	})
}

func operator(c *gin.Context) string {
	if op, ok := auth.OperatorFrom(c.Request.Context()); ok {
		return op.ID
	}
	return ""
}

// CancelAll stops every running worker and marks their sessions canceled.
func (s *Server) CancelAll(c *gin.Context) {
	ids := s.manager.ActiveSessions()
	stopped := s.manager.CancelAll()
	for _, id := range ids {
		if updated, err := s.sessions.Cancel(c.Request.Context(), id); err != nil {
			s.logger.Warn("session cancel not saved", "session_id", id, "error", err)
		} else if updated {
			s.publishTerminal(c.Request.Context(), id, models.Progress{Stage: "Upload canceled", Canceled: true})
		}
	}
	s.logger.Warn("all workers canceled by operator", "operator", operator(c), "stopped", stopped)
	c.JSON(http.StatusOK, gin.H{"canceled": stopped, "sessions": ids})
}

// CleanupSessions deletes sessions that ended in error or were canceled.
func (s *Server) CleanupSessions(c *gin.Context) {
	n, err := s.sessions.CleanupStaleSessions(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("stale sessions cleaned up by operator", "operator", operator(c), "deleted", n)
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (s *Server) ConsoleLogs(c *gin.Context) {
	logs := s.manager.ConsoleLogs()
	c.JSON(http.StatusOK, gin.H{"count": len(logs), "logs": logs})
}

func (s *Server) ActiveProcesses(c *gin.Context) {
	procs := s.manager.ActiveSessionDetails()
	c.JSON(http.StatusOK, gin.H{"count": len(procs), "processes": procs})
}
