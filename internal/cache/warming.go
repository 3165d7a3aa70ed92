package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/irrigation-advisor/internal/observability"
)

// NewsFetcher is implemented by the news service; Prefetch populates the cache.
// Declared here to avoid a dependency on the service package.
type NewsFetcher interface {
	Prefetch(ctx context.Context, city string) error
}

// maxWarmWorkers bounds concurrent prefetches.
const maxWarmWorkers = 4

// Warmer prefetches news for a list of cities once, before the server accepts traffic.
type Warmer struct {
	fetcher NewsFetcher
	logger  *zap.Logger
}

func NewWarmer(fetcher NewsFetcher, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm prefetches each distinct city (by cache key) and returns the joined failures.
func (w *Warmer) Warm(ctx context.Context, cities []string) error {
	cities = distinctCities(cities)
	if len(cities) == 0 {
		return nil
	}
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming news cache", zap.Int("cities", len(cities)))

	jobs := make(chan string)
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for i := 0; i < min(maxWarmWorkers, len(cities)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for city := range jobs {
				if err := w.fetcher.Prefetch(ctx, city); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("warm %s: %w", city, err))
					mu.Unlock()
				}
			}
		}()
	}
	for _, city := range cities {
		jobs <- city
	}
	close(jobs)
	wg.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("news cache warming complete",
		zap.Int("cities", len(cities)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

func distinctCities(cities []string) []string {
	seen := make(map[string]bool, len(cities))
	out := make([]string, 0, len(cities))
	for _, c := range cities {
		k := Key(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}
