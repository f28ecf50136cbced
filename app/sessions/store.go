// Package sessions keeps the durable lifecycle record of every batch upload.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/draiimon/PanicSense-Final-sub000/app/apperrors"
	"github.com/draiimon/PanicSense-Final-sub000/app/logging"
	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/google/uuid"
)

// Repository is the storage boundary for upload sessions. UpdateIfProcessing
// must apply the change only while the stored status is still processing.
type Repository interface {
	Insert(ctx context.Context, s models.UploadSession) error
	Get(ctx context.Context, id string) (models.UploadSession, error)
	UpdateIfProcessing(ctx context.Context, id string, u Update) (bool, error)
	ListByStatus(ctx context.Context, statuses ...models.SessionStatus) ([]models.UploadSession, error)
	DeleteByStatus(ctx context.Context, statuses ...models.SessionStatus) (int, error)
	DeleteByFile(ctx context.Context, fileID int64) (int, error)
}

type Update struct {
	Status      models.SessionStatus
	Progress    models.Progress
	FileID      *int64 // nil keeps the stored value
	Fingerprint string
	At          time.Time
}

// Publisher receives terminal session transitions.
type Publisher interface {
	Publish(ctx context.Context, ev models.SessionEvent) error
}

type Store struct {
	repo        Repository
	publisher   Publisher
	fingerprint string
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Store)

func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithFingerprint overrides the generated server-start fingerprint.
func WithFingerprint(fp string) Option {
	return func(s *Store) { s.fingerprint = fp }
}

// NewFingerprint identifies one server process. Two processes never share one.
func NewFingerprint(start time.Time) string {
	return fmt.Sprintf("%d-%s", start.UnixMilli(), uuid.NewString()[:8])
}

func NewStore(repo Repository, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fingerprint == "" {
		s.fingerprint = NewFingerprint(s.now())
	}
	return s
}

func (s *Store) Fingerprint() string { return s.fingerprint }

// Create records a new processing session. Storage failures are logged and
// the session is still returned so the upload can go ahead.
func (s *Store) Create(ctx context.Context, id string, fileID *int64) (models.UploadSession, error) {
	now := s.now().UTC()
	sess := models.UploadSession{
		SessionID: id,
		Status:    models.SessionProcessing,
		FileID:    fileID,
		Progress: models.Progress{
			Stage:     "Initializing",
			Timestamp: now.UnixMilli(),
		},
		CreatedAt:              now,
		UpdatedAt:              now,
		ServerStartFingerprint: s.fingerprint,
	}

	err := s.repo.Insert(ctx, sess)
	switch {
	case errors.Is(err, apperrors.ErrSessionExists):
		return models.UploadSession{}, err
	case err != nil:
		s.logger.Warn("session not persisted, continuing without tracking", "session_id", id, "error", err)
	default:
		s.logger.Info("upload session created", "session_id", id)
	}
	return sess, nil
}

// Update overwrites status and progress of a session that is still
// processing. It returns false for unknown or already finished sessions.
func (s *Store) Update(ctx context.Context, id string, status models.SessionStatus, p models.Progress) (bool, error) {
	now := s.now().UTC()
	if p.Timestamp == 0 {
		p.Timestamp = now.UnixMilli()
	}
	return s.apply(ctx, id, Update{Status: status, Progress: p, Fingerprint: s.fingerprint, At: now})
}

func (s *Store) apply(ctx context.Context, id string, u Update) (bool, error) {
	ok, err := s.repo.UpdateIfProcessing(ctx, id, u)
	if err != nil {
		s.logger.Warn("session update failed", "session_id", id, "status", string(u.Status), "error", err)
		return false, fmt.Errorf("%w: %v", apperrors.ErrPersistenceUnavailable, err)
	}
	if !ok {
		s.logger.Debug("session update ignored", "session_id", id, "status", string(u.Status))
		return false, nil
	}
	if u.Status.Terminal() {
		s.publish(ctx, id, u)
	}
	return true, nil
}

// Complete marks the session completed and attaches the stored file, if any.
func (s *Store) Complete(ctx context.Context, id string, processed int, fileID *int64) (bool, error) {
	now := s.now().UTC()
	return s.apply(ctx, id, Update{
		Status: models.SessionCompleted,
		Progress: models.Progress{
			Processed: processed,
			Total:     processed,
			Stage:     "Analysis complete",
			Completed: true,
			Timestamp: now.UnixMilli(),
		},
		FileID:      fileID,
		Fingerprint: s.fingerprint,
		At:          now,
	})
}

func (s *Store) Fail(ctx context.Context, id, message string) (bool, error) {
	p := s.lastProgress(ctx, id)
	p.Stage = "Error: " + message
	p.Error = true
	p.ErrorMessage = message
	p.Timestamp = s.now().UnixMilli()
	return s.Update(ctx, id, models.SessionError, p)
}

func (s *Store) Cancel(ctx context.Context, id string) (bool, error) {
	p := s.lastProgress(ctx, id)
	p.Stage = "Upload canceled"
	p.Canceled = true
	p.Timestamp = s.now().UnixMilli()
	return s.Update(ctx, id, models.SessionCanceled, p)
}

func (s *Store) lastProgress(ctx context.Context, id string) models.Progress {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return models.Progress{}
	}
	return models.Progress{Processed: sess.Progress.Processed, Total: sess.Progress.Total}
}

func (s *Store) Get(ctx context.Context, id string) (models.UploadSession, error) {
	return s.repo.Get(ctx, id)
}

// FindActive returns the most recently updated processing session, or nil.
func (s *Store) FindActive(ctx context.Context) (*models.UploadSession, error) {
	list, err := s.repo.ListByStatus(ctx, models.SessionProcessing)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrPersistenceUnavailable, err)
	}
	var latest *models.UploadSession
	for i := range list {
		if latest == nil || list[i].UpdatedAt.After(latest.UpdatedAt) {
			latest = &list[i]
		}
	}
	return latest, nil
}

// IsOrphaned reports whether sess claims to be processing on a server that no
// longer exists.
func (s *Store) IsOrphaned(sess models.UploadSession) bool {
	return sess.Status == models.SessionProcessing && sess.ServerStartFingerprint != s.fingerprint
}

// RecoverOrphans fails every processing session left behind by an earlier
// server process. Orphans are never resumed.
func (s *Store) RecoverOrphans(ctx context.Context) (int, error) {
	list, err := s.repo.ListByStatus(ctx, models.SessionProcessing)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrPersistenceUnavailable, err)
	}
	n := 0
	for _, sess := range list {
		if !s.IsOrphaned(sess) {
			continue
		}
		ok, err := s.Fail(ctx, sess.SessionID, "Server restarted while this upload was processing")
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	if n > 0 {
		s.logger.Warn("marked orphaned upload sessions as failed", "count", n)
	}
	return n, nil
}

// CleanupStaleSessions deletes sessions that ended in error or were canceled.
func (s *Store) CleanupStaleSessions(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteByStatus(ctx, models.SessionError, models.SessionCanceled)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrPersistenceUnavailable, err)
	}
	if n > 0 {
		s.logger.Info("cleaned up stale upload sessions", "deleted", n)
	}
	return n, nil
}

func (s *Store) DeleteByFile(ctx context.Context, fileID int64) (int, error) {
	n, err := s.repo.DeleteByFile(ctx, fileID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrPersistenceUnavailable, err)
	}
	return n, nil
}

// RunCleanup calls CleanupStaleSessions every interval until ctx is done.
func (s *Store) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupStaleSessions(ctx); err != nil {
				s.logger.Warn("periodic session cleanup failed", "error", err)
			}
		}
	}
}

func (s *Store) publish(ctx context.Context, id string, u Update) {
	if s.publisher == nil {
		return
	}
	ev := models.SessionEvent{
		SessionID: id,
		Status:    u.Status,
		Message:   u.Progress.Stage,
		Processed: u.Progress.Processed,
		Total:     u.Progress.Total,
		At:        u.At,
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish session event", "session_id", id, "status", string(u.Status), "error", err)
	}
}
