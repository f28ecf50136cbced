package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/redis/go-redis/v9"
)

// minSubstringRunes keeps very short examples from matching most inputs.
const minSubstringRunes = 12

// ExampleCache holds recently used training examples in front of the example store.
type ExampleCache interface {
	Get(ctx context.Context, text string) (*models.TrainingExample, bool)
	Put(ctx context.Context, ex models.TrainingExample)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// matchesExample is the exact-or-substring rule shared by every example lookup.
func matchesExample(input, example string) bool {
	in, ex := normalizeText(input), normalizeText(example)
	if in == "" || ex == "" {
		return false
	}
	if in == ex {
		return true
	}
	if utf8.RuneCountInString(ex) < minSubstringRunes || utf8.RuneCountInString(in) < minSubstringRunes {
		return false
	}
	return strings.Contains(in, ex) || strings.Contains(ex, in)
}

type MemoryCache struct {
	mu    sync.Mutex
	size  int
	order []string
	items map[string]models.TrainingExample
}

func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = 1000
	}
	return &MemoryCache{size: size, items: make(map[string]models.TrainingExample)}
}

func (c *MemoryCache) Get(_ context.Context, text string) (*models.TrainingExample, bool) {
	key := normalizeText(text)
	c.mu.Lock()
	defer c.mu.Unlock()

	if ex, ok := c.items[key]; ok {
		return &ex, true
	}
	for i := len(c.order) - 1; i >= 0; i-- {
		ex := c.items[c.order[i]]
		if matchesExample(text, ex.Text) {
			return &ex, true
		}
	}
	return nil, false
}

func (c *MemoryCache) Put(_ context.Context, ex models.TrainingExample) {
	key := normalizeText(ex.Text)
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = ex
	for len(c.order) > c.size {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
}

// RedisCache shares exact-match examples between server instances. Substring
// matching is left to the example store.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func redisKey(text string) string {
	sum := sha256.Sum256([]byte(normalizeText(text)))
	return "panicsense:example:" + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, text string) (*models.TrainingExample, bool) {
	raw, err := c.client.Get(ctx, redisKey(text)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("example cache read failed", "error", err)
		return nil, false
	}
	var ex models.TrainingExample
	if err := json.Unmarshal(raw, &ex); err != nil {
		c.logger.Warn("example cache entry unreadable", "error", err)
		return nil, false
	}
	return &ex, true
}

func (c *RedisCache) Put(ctx context.Context, ex models.TrainingExample) {
	raw, err := json.Marshal(ex)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKey(ex.Text), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("example cache write failed", "error", err)
	}
}
