package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/irrigation-advisor/internal/cache"
	"github.com/kjstillabower/irrigation-advisor/internal/client"
	"github.com/kjstillabower/irrigation-advisor/internal/models"
	"github.com/kjstillabower/irrigation-advisor/internal/news"
	"github.com/kjstillabower/irrigation-advisor/internal/observability"
)

// DefaultNewsCity is used when a news request names no city.
const DefaultNewsCity = "India"

// NewsService serves agriculture news with a cache-aside pattern over the news provider.
// It never fails: provider errors and thin results are answered with the backup feed.
type NewsService struct {
	client    client.NewsClient
	cache     cache.Cache
	ttl       time.Duration
	stampede  *stampedeTracker
	coalescer *requestCoalescer[[]models.Article]
}

// NewNewsService wires the news provider and cache. coalesceTimeout 0 disables
// request coalescing.
func NewNewsService(c client.NewsClient, ch cache.Cache, ttl, coalesceTimeout time.Duration) *NewsService {
	s := &NewsService{
		client:   c,
		cache:    ch,
		ttl:      ttl,
		stampede: newStampedeTracker(),
	}
	if coalesceTimeout > 0 {
		s.coalescer = newRequestCoalescer[[]models.Article](coalesceTimeout)
	}
	return s
}

// News returns live articles for city, or the backup feed when the provider fails
// or returns fewer than news.MinLiveArticles valid articles.
func (s *NewsService) News(ctx context.Context, city string) []models.Article {
	city = newsCity(city)
	logger := observability.LoggerFromContext(ctx)
	observability.NewsRequestsTotal.Inc()

	articles, cached, err := s.load(ctx, city)
	switch {
	case err != nil:
		observability.NewsFallbackTotal.WithLabelValues("error").Inc()
		logger.Warn("news provider failed, serving backup feed", zap.String("city", city), zap.Error(err))
		return news.Backup(city)
	case len(articles) < news.MinLiveArticles:
		observability.NewsFallbackTotal.WithLabelValues("too_few").Inc()
		logger.Info("too few live articles, serving backup feed", zap.String("city", city), zap.Int("articles", len(articles)))
		return news.Backup(city)
	}
	logger.Debug("news served", zap.String("city", city), zap.Bool("cached", cached), zap.Int("articles", len(articles)))
	return articles
}

// Prefetch fetches live news for city into the cache. Used by cache warming.
func (s *NewsService) Prefetch(ctx context.Context, city string) error {
	city = newsCity(city)
	articles, err := s.fetch(ctx, city)
	if err != nil {
		return err
	}
	if len(articles) < news.MinLiveArticles {
		return fmt.Errorf("only %d live articles for %s", len(articles), city)
	}
	s.store(ctx, cache.Key(city), articles)
	return nil
}

func (s *NewsService) load(ctx context.Context, city string) ([]models.Article, bool, error) {
	key := cache.Key(city)
	logger := observability.LoggerFromContext(ctx)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("news cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		observability.NewsCacheHitsTotal.Inc()
		return cached, true, nil
	}

	if n := s.stampede.RecordMiss(key); n > 1 {
		observability.NewsStampedeDetectedTotal.Inc()
	}
	defer s.stampede.Resolve(key)

	articles, err := s.fetch(ctx, city)
	if err != nil {
		return nil, false, err
	}
	// Only a usable live result is cached; the backup feed never is.
	if len(articles) >= news.MinLiveArticles {
		s.store(ctx, key, articles)
	}
	return articles, false, nil
}

func (s *NewsService) fetch(ctx context.Context, city string) ([]models.Article, error) {
	if s.coalescer == nil {
		return s.client.Articles(ctx, city)
	}
	articles, shared, err := s.coalescer.Do(ctx, cache.Key(city), func(ctx context.Context) ([]models.Article, error) {
		return s.client.Articles(ctx, city)
	})
	if shared && err == nil {
		observability.NewsCoalescedTotal.Inc()
	}
	return articles, err
}

func (s *NewsService) store(ctx context.Context, key string, articles []models.Article) {
	if err := s.cache.Set(ctx, key, articles, s.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		observability.LoggerFromContext(ctx).Warn("news cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func newsCity(city string) string {
	city = strings.TrimSpace(city)
	if city == "" {
		return DefaultNewsCity
	}
	return city
}
