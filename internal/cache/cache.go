package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kjstillabower/irrigation-advisor/internal/models"
)

// Cache stores news article lists keyed by location.
// Get returns cached articles if present and not expired, Set stores them with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.Article, bool, error)
	Set(ctx context.Context, key string, value []models.Article, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// Key normalises a location into a cache key ("Mysuru " and "mysuru" share an entry).
func Key(city string) string {
	return "news:" + strings.ToLower(strings.TrimSpace(city))
}

// InMemoryCache implements Cache using a mutex-guarded map with TTL-based expiration.
// Expired entries are removed on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     []models.Article
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// Get returns a copy of the cached list so callers cannot mutate the entry.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]models.Article, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return nil, false, nil
	}
	return append([]models.Article(nil), entry.value...), true, nil
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value []models.Article, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{
		value:     append([]models.Article(nil), value...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *InMemoryCache) Ping(ctx context.Context) error { return nil }

func (c *InMemoryCache) Close() error { return nil }
