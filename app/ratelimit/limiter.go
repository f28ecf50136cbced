// Package ratelimit implements short-window per-client admission control.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/draiimon/PanicSense-Final-sub000/app/config"
	"github.com/draiimon/PanicSense-Final-sub000/app/logging"
)

type Class string

const (
	ClassStandard Class = "standard"
	ClassUpload   Class = "upload"
	ClassAnalysis Class = "analysis"
	ClassAdmin    Class = "admin"
)

// Decision is the outcome of one admission check. It is returned for
// rejected requests too so callers can always emit the quota headers.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type windowKey struct {
	client string
	class  Class
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter keeps one fixed window per (client, class). The window table is
// only reachable through Allow, Sweep and Len.
type Limiter struct {
	mu      sync.Mutex
	rules   map[Class]config.RateRule
	windows map[windowKey]*window

	logger *slog.Logger
	now    func() time.Time
}

func NewLimiter(rules map[string]config.RateRule, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = logging.Discard()
	}
	l := &Limiter{
		rules:   make(map[Class]config.RateRule, len(rules)),
		windows: make(map[windowKey]*window),
		logger:  logger,
		now:     time.Now,
	}
	for class, rule := range rules {
		l.rules[Class(class)] = rule
	}
	return l
}

func (l *Limiter) rule(class Class) (config.RateRule, bool) {
	if r, ok := l.rules[class]; ok {
		return r, true
	}
	r, ok := l.rules[ClassStandard]
	return r, ok
}

// Allow counts one request for client against the budget of class.
func (l *Limiter) Allow(client string, class Class) Decision {
	rule, ok := l.rule(class)
	if !ok || rule.MaxRequests <= 0 {
		return Decision{Allowed: true}
	}

	now := l.now()
	key := windowKey{client: client, class: class}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[key]
	if !exists || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(rule.Window)}
		l.windows[key] = w
		return Decision{
			Allowed:   true,
			Limit:     rule.MaxRequests,
			Remaining: rule.MaxRequests - 1,
			ResetAt:   w.resetAt,
		}
	}

	w.count++
	if w.count > rule.MaxRequests {
		return Decision{
			Allowed:    false,
			Limit:      rule.MaxRequests,
			Remaining:  0,
			ResetAt:    w.resetAt,
			RetryAfter: retryAfter(w.count, rule.MaxRequests),
		}
	}
	return Decision{
		Allowed:   true,
		Limit:     rule.MaxRequests,
		Remaining: rule.MaxRequests - w.count,
		ResetAt:   w.resetAt,
	}
}

// retryAfter backs off logarithmically with how far over the limit the caller is.
func retryAfter(count, limit int) time.Duration {
	seconds := math.Ceil(math.Log10(float64(count)/float64(limit)+1) * 10)
	return time.Duration(seconds) * time.Second
}

// Sweep drops every window whose reset time has passed and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len reports how many windows are currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Run sweeps expired windows every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.Debug("swept expired rate windows", "removed", n, "remaining", l.Len())
			}
		}
	}
}
