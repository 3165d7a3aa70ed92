package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/irrigation-advisor/internal/models"
)

const (
	keyPrefix   = "irrigation:"
	maxKeyBytes = 250
	// Relative expirations above 30 days are read as unix timestamps by memcached.
	maxRelativeExp = 30 * 24 * 60 * 60
	defaultExp     = time.Hour
	defaultAddr    = "localhost:11211"
)

// MemcachedCache stores news article lists in memcached as JSON.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a client for a comma-separated server list. Zero
// timeout or maxIdleConns keep the gomemcache defaults. No connection is made
// until the first call.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := splitServers(addrs)
	if len(servers) == 0 {
		servers = []string{defaultAddr}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func splitServers(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' })
	servers := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			servers = append(servers, f)
		}
	}
	return servers
}

// wireKey maps a cache key onto memcached's key rules: no whitespace or control
// bytes, at most 250 bytes. Over-long keys are replaced by a digest.
func wireKey(k string) string {
	k = strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return '_'
		}
		return r
	}, k)
	if len(keyPrefix)+len(k) <= maxKeyBytes {
		return keyPrefix + k
	}
	sum := sha1.Sum([]byte(k))
	return keyPrefix + "h:" + hex.EncodeToString(sum[:])
}

func expirySeconds(ttl time.Duration) int32 {
	secs := int64(ttl / time.Second)
	if secs <= 0 || secs > maxRelativeExp {
		return int32(defaultExp / time.Second)
	}
	return int32(secs)
}

// Get reports a miss as (nil, false, nil).
func (c *MemcachedCache) Get(ctx context.Context, key string) ([]models.Article, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	item, err := c.client.Get(wireKey(key))
	switch {
	case errors.Is(err, memcache.ErrCacheMiss):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("memcached get %q: %w", key, err)
	}
	var articles []models.Article
	if err := json.Unmarshal(item.Value, &articles); err != nil {
		return nil, false, fmt.Errorf("memcached decode %q: %w", key, err)
	}
	return articles, true, nil
}

func (c *MemcachedCache) Set(ctx context.Context, key string, value []models.Article, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memcached encode %q: %w", key, err)
	}
	item := &memcache.Item{Key: wireKey(key), Value: raw, Expiration: expirySeconds(ttl)}
	if err := c.client.Set(item); err != nil {
		return fmt.Errorf("memcached set %q: %w", key, err)
	}
	return nil
}

func (c *MemcachedCache) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.client.Ping()
}

func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
