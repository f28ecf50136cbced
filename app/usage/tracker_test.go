package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

type memStore struct {
	saved   []models.UsageStats
	loaded  models.UsageStats
	hasData bool
	saveErr error
}

func (m *memStore) LoadUsage(context.Context) (models.UsageStats, bool, error) {
	return m.loaded, m.hasData, nil
}

func (m *memStore) SaveUsage(_ context.Context, s models.UsageStats) error {
	m.saved = append(m.saved, s)
	return m.saveErr
}

func newTestTracker(limit int) (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, time.March, 10, 15, 30, 0, 0, time.UTC)}
	return NewTracker(limit, WithClock(clock.now)), clock
}

func TestProcessableRowCountTruncatesToAllowance(t *testing.T) {
	tr, _ := newTestTracker(10000)
	tr.IncrementRowCount(9995)

	require.Equal(t, 5, tr.ProcessableRowCount(20))
	require.Equal(t, 3, tr.ProcessableRowCount(3))
	require.False(t, tr.HasReachedDailyLimit())
}

func TestProcessableRowCountNeverExceedsRequest(t *testing.T) {
	tr, _ := newTestTracker(100)
	for _, requested := range []int{0, 1, 50, 100, 250} {
		got := tr.ProcessableRowCount(requested)
		require.LessOrEqual(t, got, requested)
		require.LessOrEqual(t, got, 100)
	}
	require.Equal(t, 0, tr.ProcessableRowCount(-4))
}

func TestIncrementRowCountAddsExactly(t *testing.T) {
	tr, _ := newTestTracker(50)
	before := tr.UsageStats().Used
	tr.IncrementRowCount(7)
	require.Equal(t, before+7, tr.UsageStats().Used)

	tr.IncrementRowCount(0)
	tr.IncrementRowCount(-3)
	require.Equal(t, before+7, tr.UsageStats().Used)
}

func TestLimitReachedAndOvershootByOneIncrement(t *testing.T) {
	tr, _ := newTestTracker(10)
	tr.IncrementRowCount(8)
	tr.IncrementRowCount(5)

	stats := tr.UsageStats()
	require.True(t, tr.HasReachedDailyLimit())
	require.Equal(t, 13, stats.Used)
	require.Equal(t, 0, stats.Remaining())
	require.Equal(t, 0, tr.ProcessableRowCount(1))
}

func TestDayBoundaryResetsCounter(t *testing.T) {
	tr, clock := newTestTracker(10)
	tr.IncrementRowCount(10)
	require.True(t, tr.HasReachedDailyLimit())

	resetAt := tr.UsageStats().ResetAt
	require.Equal(t, time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC), resetAt)

	clock.t = resetAt.Add(time.Second)
	require.False(t, tr.HasReachedDailyLimit())
	stats := tr.UsageStats()
	require.Equal(t, 0, stats.Used)
	require.Equal(t, time.Date(2024, time.March, 12, 0, 0, 0, 0, time.UTC), stats.ResetAt)
}

func TestStorePersistenceIsBestEffort(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC)}
	store := &memStore{
		loaded:  models.UsageStats{Used: 40, Limit: 100, ResetAt: time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC)},
		hasData: true,
		saveErr: errors.New("db down"),
	}
	tr := NewTracker(100, WithClock(clock.now), WithStore(store))
	require.NoError(t, tr.Load(context.Background()))
	require.Equal(t, 40, tr.UsageStats().Used)

	tr.IncrementRowCount(2)
	require.Equal(t, 42, tr.UsageStats().Used)
	require.Len(t, store.saved, 1)
	require.Equal(t, 42, store.saved[0].Used)
}

func TestLoadIgnoresExpiredWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC)}
	store := &memStore{
		loaded:  models.UsageStats{Used: 99, Limit: 100, ResetAt: time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC)},
		hasData: true,
	}
	tr := NewTracker(100, WithClock(clock.now), WithStore(store))
	require.NoError(t, tr.Load(context.Background()))
	require.Equal(t, 0, tr.UsageStats().Used)
}

type gatedStore struct {
	memStore
	mu      sync.Mutex
	release chan struct{}
	first   bool
}

func (g *gatedStore) SaveUsage(ctx context.Context, s models.UsageStats) error {
	g.mu.Lock()
	wait := !g.first
	g.first = true
	g.mu.Unlock()
	if wait {
		<-g.release
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.memStore.SaveUsage(ctx, s)
}

func (g *gatedStore) last() models.UsageStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saved[len(g.saved)-1]
}

func TestConcurrentIncrementsSaveInOrder(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC)}
	store := &gatedStore{release: make(chan struct{})}
	tr := NewTracker(100, WithClock(clock.now), WithStore(store))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tr.IncrementRowCount(2)
	}()
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.first
	}, time.Second, 5*time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		tr.IncrementRowCount(3)
	}()
	require.Eventually(t, func() bool { return tr.UsageStats().Used == 5 }, time.Second, 5*time.Millisecond)

	close(store.release)
	wg.Wait()
	require.Equal(t, 5, store.last().Used)
}
