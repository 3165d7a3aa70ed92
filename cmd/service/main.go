package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/irrigation-advisor/internal/cache"
	"github.com/kjstillabower/irrigation-advisor/internal/circuitbreaker"
	"github.com/kjstillabower/irrigation-advisor/internal/client"
	"github.com/kjstillabower/irrigation-advisor/internal/config"
	httphandler "github.com/kjstillabower/irrigation-advisor/internal/http"
	"github.com/kjstillabower/irrigation-advisor/internal/lifecycle"
	"github.com/kjstillabower/irrigation-advisor/internal/observability"
	"github.com/kjstillabower/irrigation-advisor/internal/service"
	"github.com/kjstillabower/irrigation-advisor/internal/store"
)

func main() {
	logger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.WeatherAPIKey == "" {
		logger.Warn("WEATHER_API_KEY not set; irrigation checks will fail")
	}
	if cfg.NewsAPIKey == "" {
		logger.Warn("NEWS_API_KEY not set; news will be served from the backup feed")
	}

	retry := client.RetryPolicy{
		Attempts:  cfg.RetryAttempts,
		BaseDelay: cfg.RetryBaseDelay,
		MaxDelay:  cfg.RetryMaxDelay,
	}
	var breaker *circuitbreaker.Config
	if cfg.CircuitBreakerEnabled {
		breaker = &circuitbreaker.Config{
			FailureThreshold: cfg.CircuitFailureThreshold,
			SuccessThreshold: cfg.CircuitSuccessThreshold,
			Timeout:          cfg.CircuitOpenTimeout,
			OnStateChange: func(component string, from, to circuitbreaker.State) {
				logger.Warn("circuit breaker state change",
					zap.String("component", component),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitFailureThreshold),
			zap.Duration("open_timeout", cfg.CircuitOpenTimeout))
	}

	weatherClient, err := client.NewOpenWeatherClient(client.OpenWeatherConfig{
		APIKey:  cfg.WeatherAPIKey,
		BaseURL: cfg.WeatherAPIURL,
		GeoURL:  cfg.GeocodeAPIURL,
		Timeout: cfg.WeatherAPITimeout,
		Retry:   retry,
		Breaker: breaker,
	})
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	newsClient, err := client.NewNewsAPIClient(client.NewsAPIConfig{
		APIKey:  cfg.NewsAPIKey,
		BaseURL: cfg.NewsAPIURL,
		Timeout: cfg.NewsAPITimeout,
		Retry:   retry,
		Breaker: breaker,
	})
	if err != nil {
		logger.Fatal("news client", zap.Error(err))
	}

	var closers lifecycle.Closers

	st, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	closers.Register("store", st.Close)

	cacheSvc, err := openCache(cfg, logger)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	closers.Register("cache", func(context.Context) error { return cacheSvc.Close() })

	newsService := service.NewNewsService(newsClient, cacheSvc, cfg.NewsCacheTTL, cfg.NewsCoalesceTimeout)
	services := httphandler.Services{
		Irrigation: service.NewIrrigationService(weatherClient, st, st),
		News:       newsService,
		Accounts:   service.NewAccountService(st, cfg.BcryptCost),
		History:    service.NewHistoryService(st, cfg.HistoryLimit),
	}

	if len(cfg.WarmCities) > 0 {
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := cache.NewWarmer(newsService, logger).Warm(warmCtx, cfg.WarmCities); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
	}

	healthConfig := &httphandler.HealthConfig{
		Window:           cfg.HealthWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		StartTime:        time.Now(),
		StorePing:        st.Ping,
		CachePing:        cacheSvc.Ping,
	}
	observability.RegisterTrafficGauges(cfg.HealthWindow)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(httphandler.NewHandler(services, healthConfig, logger), httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		CORSOrigins:    cfg.CORSOrigins,
		TestingMode:    cfg.TestingMode,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	inFlight := httphandler.InFlightCount()
	observability.RecordShutdownInFlight(inFlight)
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := closers.CloseAll(shutdownCtx, logger); err != nil {
		logger.Error("close resources", zap.Error(err))
	}
	logger.Info("shutdown complete")
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.StoreBackend != config.StoreMongo {
		logger.Info("store backend: memory")
		return store.NewMemoryStore(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoConnectTimeout)
	defer cancel()
	ms, err := store.NewMongoStore(ctx, store.MongoConfig{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDatabase,
		ConnectTimeout: cfg.MongoConnectTimeout,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("store backend: mongo", zap.String("database", cfg.MongoDatabase))
	return ms, nil
}

func openCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	switch cfg.CacheBackend {
	case config.CacheMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, err
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, nil
	case config.CacheRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, cfg.RedisTimeout)
		if err != nil {
			return nil, err
		}
		logger.Info("cache backend: redis")
		return rc, nil
	default:
		logger.Info("cache backend: in_memory")
		return cache.NewInMemoryCache(), nil
	}
}
