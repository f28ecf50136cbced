// Package usage enforces the daily row quota shared by every caller.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/draiimon/PanicSense-Final-sub000/app/logging"
	"github.com/draiimon/PanicSense-Final-sub000/app/models"
)

// Store persists the counter so a restart does not hand out a fresh day.
type Store interface {
	LoadUsage(ctx context.Context) (models.UsageStats, bool, error)
	SaveUsage(ctx context.Context, stats models.UsageStats) error
}

// Tracker is advisory: a single increment may push Used past Limit, it is a
// UX throttle and not a security boundary.
type Tracker struct {
	mu      sync.Mutex
	limit   int
	used    int
	resetAt time.Time

	// saveMu keeps saves in order so the stored counter never goes backwards
	saveMu sync.Mutex
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Tracker)

func WithStore(s Store) Option {
	return func(t *Tracker) { t.store = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(dailyLimit int, opts ...Option) *Tracker {
	t := &Tracker{
		limit:  dailyLimit,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.resetAt = nextResetUTC(t.now())
	return t
}

// Load restores persisted usage. A stored window that already expired is ignored.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	stats, ok, err := t.store.LoadUsage(ctx)
	if err != nil || !ok {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.now().Before(stats.ResetAt) {
		t.used = stats.Used
		t.resetAt = stats.ResetAt
	}
	return nil
}

func (t *Tracker) HasReachedDailyLimit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.used >= t.limit
}

// ProcessableRowCount is min(requested, remaining allowance).
func (t *Tracker) ProcessableRowCount(requested int) int {
	if requested <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	remaining := t.limit - t.used
	if remaining < 0 {
		remaining = 0
	}
	if requested < remaining {
		return requested
	}
	return remaining
}

func (t *Tracker) IncrementRowCount(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.rollover()
	t.used += n
	t.mu.Unlock()

	t.persist()
}

func (t *Tracker) UsageStats() models.UsageStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.statsLocked()
}

func (t *Tracker) statsLocked() models.UsageStats {
	return models.UsageStats{Used: t.used, Limit: t.limit, ResetAt: t.resetAt}
}

// rollover must be called with mu held.
func (t *Tracker) rollover() {
	now := t.now()
	if now.Before(t.resetAt) {
		return
	}
	t.logger.Info("daily usage window reset", "previous_used", t.used, "limit", t.limit)
	t.used = 0
	t.resetAt = nextResetUTC(now)
}

// persist saves the counter as it is once the previous save has finished,
// not as it was when the caller incremented it.
func (t *Tracker) persist() {
	if t.store == nil {
		return
	}
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	stats := t.UsageStats()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.store.SaveUsage(ctx, stats); err != nil {
		t.logger.Warn("failed to persist usage stats", "used", stats.Used, "error", err)
	}
}

func dayStartUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nextResetUTC(t time.Time) time.Time {
	return dayStartUTC(t).AddDate(0, 0, 1)
}
