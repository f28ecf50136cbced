package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/draiimon/PanicSense-Final-sub000/app/apperrors"
	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/draiimon/PanicSense-Final-sub000/app/sessions"
	"github.com/lib/pq"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

var _ sessions.Repository = (*SessionRepository)(nil)

func (r *SessionRepository) Insert(ctx context.Context, s models.UploadSession) error {
	progress, err := json.Marshal(s.Progress)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO upload_sessions (
			session_id, status, file_id, progress, created_at, updated_at, server_start_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7);
	`, s.SessionID, string(s.Status), nullInt64(s.FileID), progress, s.CreatedAt, s.UpdatedAt, s.ServerStartFingerprint)
	if isUniqueViolation(err) {
		return apperrors.ErrSessionExists
	}
	return err
}

const sessionColumns = `session_id, status, file_id, progress, created_at, updated_at, server_start_timestamp`

func (r *SessionRepository) Get(ctx context.Context, id string) (models.UploadSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM upload_sessions WHERE session_id = $1;`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UploadSession{}, apperrors.ErrSessionNotFound
	}
	return s, err
}

func (r *SessionRepository) UpdateIfProcessing(ctx context.Context, id string, u sessions.Update) (bool, error) {
	progress, err := json.Marshal(u.Progress)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE upload_sessions
		SET
			status = $2,
			progress = $3,
			file_id = COALESCE($4, file_id),
			server_start_timestamp = $5,
			updated_at = $6
		WHERE session_id = $1
		  AND status = 'processing';
	`, id, string(u.Status), progress, nullInt64(u.FileID), u.Fingerprint, u.At)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SessionRepository) ListByStatus(ctx context.Context, statuses ...models.SessionStatus) ([]models.UploadSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM upload_sessions
		WHERE status = ANY($1)
		ORDER BY updated_at DESC;
	`, pq.Array(statusStrings(statuses)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UploadSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SessionRepository) DeleteByStatus(ctx context.Context, statuses ...models.SessionStatus) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE status = ANY($1);`, pq.Array(statusStrings(statuses)))
	return affected(res, err)
}

func (r *SessionRepository) DeleteByFile(ctx context.Context, fileID int64) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE file_id = $1;`, fileID)
	return affected(res, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (models.UploadSession, error) {
	var (
		s        models.UploadSession
		status   string
		fileID   sql.NullInt64
		progress []byte
	)
	if err := row.Scan(&s.SessionID, &status, &fileID, &progress, &s.CreatedAt, &s.UpdatedAt, &s.ServerStartFingerprint); err != nil {
		return models.UploadSession{}, err
	}
	st, err := models.ParseSessionStatus(status)
	if err != nil {
		return models.UploadSession{}, err
	}
	s.Status = st
	if fileID.Valid {
		id := fileID.Int64
		s.FileID = &id
	}
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &s.Progress); err != nil {
			return models.UploadSession{}, err
		}
	}
	return s, nil
}

func statusStrings(statuses []models.SessionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func affected(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
