package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/draiimon/PanicSense-Final-sub000/app/apperrors"
	"github.com/draiimon/PanicSense-Final-sub000/app/batches"
	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/draiimon/PanicSense-Final-sub000/app/worker"
)

type uploadJob struct {
	sessionID    string
	originalName string
	fileID       *int64
	data         []byte
	rows         int
}

// startUpload runs the job on its own goroutine. The caller's request is
// already answered by the time the worker starts. Once Shutdown has begun
// no new job is accepted.
func (s *Server) startUpload(job uploadJob) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.closing {
		return fmt.Errorf("%w: upload %s not started", apperrors.ErrShuttingDown, job.sessionID)
	}

	ctx, cancel := context.WithCancel(s.jobCtx)
	s.pending[job.sessionID] = cancel
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		defer s.forgetJob(job.sessionID)
		s.runUpload(ctx, job)
	}()
	return nil
}

// cancelJob stops a job that may not have reached its worker yet.
func (s *Server) cancelJob(sessionID string) bool {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	cancel, ok := s.pending[sessionID]
	if ok {
		cancel()
	}
	return ok
}

func (s *Server) forgetJob(sessionID string) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if cancel, ok := s.pending[sessionID]; ok {
		cancel()
		delete(s.pending, sessionID)
	}
}

func (s *Server) runUpload(ctx context.Context, job uploadJob) {
	log := s.logger.With("session_id", job.sessionID)
	start := time.Now()

	// terminal writes must land even when the job context was canceled
	final := context.WithoutCancel(ctx)

	if sess, err := s.sessions.Get(final, job.sessionID); err == nil && sess.Status != models.SessionProcessing {
		log.Info("upload not started, session already ended", "status", string(sess.Status))
		return
	}

	total := min(job.rows, s.usage.ProcessableRowCount(job.rows))
	pipe := batches.NewPipeline(job.sessionID, s.results, s.sessions,
		batches.WithLogger(s.logger),
		batches.WithTotalRows(total),
		batches.WithProgressHook(func(p models.Progress) {
			s.broker.Publish(job.sessionID, p)
		}),
	)

	outcome, err := s.manager.StartBatchJob(ctx, worker.BatchJob{
		Data:         job.data,
		OriginalName: job.originalName,
		SessionID:    job.sessionID,
		OnProgress: func(wp models.WorkerProgress) {
			if wp.Total != nil {
				total = *wp.Total
			}
			s.reportProgress(ctx, job.sessionID, models.Progress{
				Processed: wp.Processed,
				Total:     total,
				Stage:     wp.Stage,
			})
		},
		OnBatch: pipe.Handle(ctx),
	})
	if err != nil {
		s.recordFailure(final, job.sessionID, err)
		return
	}

	if err := pipe.Finish(final, outcome.Results); err != nil {
		log.Error("final results not persisted", "error", err)
	}
	if s.archive != nil {
		if err := s.archive.Store(final, outcome.StoredName, job.data); err != nil {
			log.Warn("upload not archived", "stored_name", outcome.StoredName, "error", err)
		}
	}

	if _, err := s.sessions.Complete(final, job.sessionID, len(outcome.Results), job.fileID); err != nil {
		log.Warn("session completion not saved", "error", err)
	}
	s.publishTerminal(final, job.sessionID, models.Progress{
		Processed: len(outcome.Results),
		Total:     len(outcome.Results),
		Stage:     "Analysis complete",
		Completed: true,
	})

	log.Info("upload finished",
		"results", len(outcome.Results),
		"rows", outcome.RecordCount,
		"requested", outcome.Requested,
		"source", string(outcome.Source),
		"batches", len(pipe.Applied()),
		"took", time.Since(start))
}

func (s *Server) recordFailure(ctx context.Context, sessionID string, err error) {
	log := s.logger.With("session_id", sessionID)

	if errors.Is(err, apperrors.ErrCanceled) {
		if s.jobCtx.Err() != nil {
			s.fail(ctx, sessionID, "Server shut down before the upload finished")
			return
		}
		if _, err := s.sessions.Cancel(ctx, sessionID); err != nil {
			log.Warn("session cancel not saved", "error", err)
		}
		s.publishTerminal(ctx, sessionID, models.Progress{Stage: "Upload canceled", Canceled: true})
		return
	}

	message := err.Error()
	switch {
	case errors.Is(err, apperrors.ErrQuotaExhausted):
		message = "Daily analysis limit reached"
	case errors.Is(err, apperrors.ErrMalformedInput):
		message = "The uploaded file could not be read as CSV"
	case errors.Is(err, apperrors.ErrWorkerSpawnFailed):
		message = "The analysis worker could not be started"
	}
	log.Error("upload failed", "error", err)
	s.fail(ctx, sessionID, message)
}

func (s *Server) fail(ctx context.Context, sessionID, message string) {
	if _, err := s.sessions.Fail(ctx, sessionID, message); err != nil {
		s.logger.Warn("session failure not saved", "session_id", sessionID, "error", err)
	}
	s.publishTerminal(ctx, sessionID, models.Progress{
		Stage:        "Error: " + message,
		Error:        true,
		ErrorMessage: message,
	})
}

func (s *Server) reportProgress(ctx context.Context, sessionID string, p models.Progress) {
	p.Timestamp = time.Now().UnixMilli()
	if _, err := s.sessions.Update(ctx, sessionID, models.SessionProcessing, p); err != nil {
		s.logger.Warn("session progress not saved", "session_id", sessionID, "error", err)
	}
	s.broker.Publish(sessionID, p)
}

// publishTerminal pushes the stored terminal progress to live subscribers,
// or fallback when the store could not be read back.
func (s *Server) publishTerminal(ctx context.Context, sessionID string, fallback models.Progress) {
	if sess, err := s.sessions.Get(ctx, sessionID); err == nil && sess.Status.Terminal() {
		s.broker.Publish(sessionID, sess.Progress)
		return
	}
	fallback.Timestamp = time.Now().UnixMilli()
	s.broker.Publish(sessionID, fallback)
}
