package sessions

import (
	"context"
	"slices"
	"sync"

	"github.com/draiimon/PanicSense-Final-sub000/app/apperrors"
	"github.com/draiimon/PanicSense-Final-sub000/app/models"
)

// MemoryRepository is used when no database is configured and in tests.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]models.UploadSession
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]models.UploadSession)}
}

func (r *MemoryRepository) Insert(_ context.Context, s models.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.SessionID]; ok {
		return apperrors.ErrSessionExists
	}
	r.sessions[s.SessionID] = s
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return models.UploadSession{}, apperrors.ErrSessionNotFound
	}
	return s, nil
}

func (r *MemoryRepository) UpdateIfProcessing(_ context.Context, id string, u Update) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != models.SessionProcessing {
		return false, nil
	}
	s.Status = u.Status
	s.Progress = u.Progress
	s.ServerStartFingerprint = u.Fingerprint
	s.UpdatedAt = u.At
	if u.FileID != nil {
		s.FileID = u.FileID
	}
	r.sessions[id] = s
	return true, nil
}

func (r *MemoryRepository) ListByStatus(_ context.Context, statuses ...models.SessionStatus) ([]models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UploadSession
	for _, s := range r.sessions {
		if slices.Contains(statuses, s.Status) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *MemoryRepository) DeleteByStatus(_ context.Context, statuses ...models.SessionStatus) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if slices.Contains(statuses, s.Status) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteByFile(_ context.Context, fileID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.FileID != nil && *s.FileID == fileID {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}
