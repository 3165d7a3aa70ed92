//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/irrigation-advisor/internal/cache"
	"github.com/kjstillabower/irrigation-advisor/internal/client"
	"github.com/kjstillabower/irrigation-advisor/internal/service"
	"github.com/kjstillabower/irrigation-advisor/internal/store"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	WeatherAPIKey string
	NewsAPIKey    string
	CacheBackend  string // "in_memory", "memcached" or "redis"
	MemcachedAddr string
	RedisURL      string
	MongoURI      string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set. NEWS_API_KEY is optional: without it
// news requests exercise the backup feed.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		WeatherAPIKey: apiKey,
		NewsAPIKey:    os.Getenv("NEWS_API_KEY"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
		RedisURL:      os.Getenv("REDIS_URL"),
		MongoURI:      os.Getenv("MONGO_URI"),
	}
}

// IntegrationServices is the wired service graph used by end-to-end tests.
type IntegrationServices struct {
	Irrigation *service.IrrigationService
	News       *service.NewsService
	Accounts   *service.AccountService
	History    *service.HistoryService
	Cache      cache.Cache
	Store      store.Store
}

// SetupIntegrationServices builds services against the real providers. The cache and
// store fall back to in-memory implementations when their backends are unreachable.
func SetupIntegrationServices(t *testing.T, cfg IntegrationTestConfig) (*IntegrationServices, func()) {
	t.Helper()
	ctx := context.Background()

	weatherClient, err := client.NewOpenWeatherClient(client.OpenWeatherConfig{
		APIKey:  cfg.WeatherAPIKey,
		Timeout: 5 * time.Second,
		Retry:   client.DefaultRetryPolicy(),
	})
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	newsClient, err := client.NewNewsAPIClient(client.NewsAPIConfig{APIKey: cfg.NewsAPIKey, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewNewsAPIClient() error = %v", err)
	}

	cacheSvc := setupCache(t, ctx, cfg)
	st := setupStore(t, ctx, cfg)

	svc := &IntegrationServices{
		Irrigation: service.NewIrrigationService(weatherClient, st, st),
		News:       service.NewNewsService(newsClient, cacheSvc, time.Minute, 10*time.Second),
		Accounts:   service.NewAccountService(st, 4),
		History:    service.NewHistoryService(st, store.DefaultHistoryLimit),
		Cache:      cacheSvc,
		Store:      st,
	}
	cleanup := func() {
		_ = cacheSvc.Close()
		_ = st.Close(context.Background())
	}
	return svc, cleanup
}

func setupCache(t *testing.T, ctx context.Context, cfg IntegrationTestConfig) cache.Cache {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil {
			if err = mc.Ping(ctx); err == nil {
				t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
				return mc
			}
		}
		t.Logf("Memcached not available (%v), using in-memory cache", err)
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, 500*time.Millisecond)
		if err == nil {
			t.Logf("Using Redis cache")
			return rc
		}
		t.Logf("Redis not available (%v), using in-memory cache", err)
	}
	return cache.NewInMemoryCache()
}

func setupStore(t *testing.T, ctx context.Context, cfg IntegrationTestConfig) store.Store {
	if cfg.MongoURI == "" {
		return store.NewMemoryStore()
	}
	ms, err := store.NewMongoStore(ctx, store.MongoConfig{
		URI:            cfg.MongoURI,
		Database:       "irrigation_integration",
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Logf("MongoDB not available (%v), using memory store", err)
		return store.NewMemoryStore()
	}
	return ms
}
