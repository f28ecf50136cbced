package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/draiimon/PanicSense-Final-sub000/app/apperrors"
	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/draiimon/PanicSense-Final-sub000/app/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const heartbeatInterval = 15 * time.Second

// UploadCSV accepts a CSV file, creates its upload session and starts the
// worker in the background. Progress is followed via StreamProgress.
func (s *Server) UploadCSV(c *gin.Context) {
	if limit := s.cfg.Worker.MaxUploadBytes; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	data, err := readFormFile(fh)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "could not read uploaded file"})
		return
	}

	_, rows, err := worker.ParseRows(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.rejectIfQuotaReached(c) {
		return
	}

	var fileID *int64
	if raw := c.PostForm("fileId"); raw != "" {
		id, err := parsePositiveInt(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fileId"})
			return
		}
		fileID = &id
	}

	sessionID := firstNonEmpty(c.PostForm("sessionId"), c.GetHeader("X-Session-ID"), uuid.NewString())
	sess, err := s.sessions.Create(c.Request.Context(), sessionID, fileID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	s.broker.Publish(sessionID, sess.Progress)

	processable := s.usage.ProcessableRowCount(len(rows))
	err = s.startUpload(uploadJob{
		sessionID:    sessionID,
		originalName: fh.Filename,
		fileID:       fileID,
		data:         data,
		rows:         len(rows),
	})
	if err != nil {
		s.fail(context.WithoutCancel(c.Request.Context()), sessionID, "Server shut down before the upload finished")
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"sessionId":       sessionID,
		"status":          models.SessionProcessing,
		"totalRows":       len(rows),
		"processableRows": processable,
		"truncated":       processable < len(rows),
	})
}

// StreamProgress streams progress for one session as server-sent events
// until the session finishes or the client goes away.
func (s *Server) StreamProgress(c *gin.Context) {
	sessionID := c.Param("sessionId")
	updates, unsubscribe := s.broker.Subscribe(sessionID)
	defer unsubscribe()

	sess, err := s.sessions.Get(c.Request.Context(), sessionID)
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound) && !s.isRunning(sessionID):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	case err == nil && sess.Status.Terminal():
		c.SSEvent("progress", sess.Progress)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case p, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("progress", p)
			return !p.Done()
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"timestamp": time.Now().UnixMilli()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (s *Server) GetSession(c *gin.Context) {
	sess, err := s.sessions.Get(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":       sess,
		"orphaned":      s.sessions.IsOrphaned(sess),
		"workerRunning": s.isRunning(sess.SessionID),
	})
}

// GetSessionResults returns the rows persisted so far for a session.
func (s *Server) GetSessionResults(c *gin.Context) {
	sessionID := c.Param("sessionId")
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	results, err := s.results.LoadResults(ctx, sessionID)
	if err != nil {
		s.logger.Error("failed to load results", "session_id", sessionID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "results unavailable"})
		return
	}
	if results == nil {
		results = []models.ProcessResult{}
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"count":     len(results),
		"results":   results,
	})
}

// GetActiveUpload reports the upload still marked processing, if any. The
// client uses it after a reload to reattach to a running job.
func (s *Server) GetActiveUpload(c *gin.Context) {
	sess, err := s.sessions.FindActive(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if sess == nil {
		c.JSON(http.StatusOK, gin.H{"sessionId": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId":     sess.SessionID,
		"session":       sess,
		"orphaned":      s.sessions.IsOrphaned(*sess),
		"workerRunning": s.isRunning(sess.SessionID),
	})
}

// CancelUpload stops the worker of a session and marks the session canceled.
// Canceling an unknown or finished session is not an error.
func (s *Server) CancelUpload(c *gin.Context) {
	sessionID := c.Param("sessionId")
	s.cancelJob(sessionID)
	stopped := s.manager.Cancel(sessionID)

	updated, err := s.sessions.Cancel(c.Request.Context(), sessionID)
	if err != nil {
		s.logger.Warn("session cancel not saved", "session_id", sessionID, "error", err)
	}
	if updated {
		s.publishTerminal(c.Request.Context(), sessionID, models.Progress{Stage: "Upload canceled", Canceled: true})
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":     sessionID,
		"canceled":      stopped || updated,
		"workerStopped": stopped,
	})
}

type analyzeRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) AnalyzeText(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	if s.rejectIfQuotaReached(c) {
		return
	}

	analysis, err := s.manager.AnalyzeOne(c.Request.Context(), req.Text)
	if err != nil {
		s.logger.Warn("text analysis failed", "error", err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"text":   req.Text,
		"result": analysis,
	})
}

func (s *Server) SubmitFeedback(c *gin.Context) {
	var fb models.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feedback payload"})
		return
	}

	result, err := s.manager.SubmitFeedback(c.Request.Context(), fb)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteFileSessions removes every session attached to a deleted file.
func (s *Server) DeleteFileSessions(c *gin.Context) {
	fileID, err := parsePositiveInt(c.Param("fileId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fileId"})
		return
	}
	n, err := s.sessions.DeleteByFile(c.Request.Context(), fileID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fileId": fileID, "deleted": n})
}

func (s *Server) isRunning(sessionID string) bool {
	return slices.Contains(s.manager.ActiveSessions(), sessionID)
}
