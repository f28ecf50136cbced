package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/draiimon/PanicSense-Final-sub000/app/usage"
)

// UsageStore keeps the single daily counter row.
type UsageStore struct {
	db *sql.DB
}

func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

var _ usage.Store = (*UsageStore)(nil)

func (s *UsageStore) LoadUsage(ctx context.Context) (models.UsageStats, bool, error) {
	var stats models.UsageStats
	err := s.db.QueryRowContext(ctx, `
		SELECT used, daily_limit, reset_at
		FROM usage_stats
		WHERE id = 1;
	`).Scan(&stats.Used, &stats.Limit, &stats.ResetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UsageStats{}, false, nil
	}
	if err != nil {
		return models.UsageStats{}, false, err
	}
	return stats, true, nil
}

func (s *UsageStore) SaveUsage(ctx context.Context, stats models.UsageStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_stats (id, used, daily_limit, reset_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET used = EXCLUDED.used,
		    daily_limit = EXCLUDED.daily_limit,
		    reset_at = EXCLUDED.reset_at;
	`, stats.Used, stats.Limit, stats.ResetAt)
	return err
}
