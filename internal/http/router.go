package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/irrigation-advisor/internal/observability"
)

// RouterConfig controls the middleware chain built by NewRouter.
type RouterConfig struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration
	CORSOrigins    []string
	TestingMode    bool
}

// NewRouter wires the API, health, metrics and (in testing mode) /test routes.
// Rate limiting, the request timeout and the shutdown check apply to /api only.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(ShutdownMiddleware)
	api.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/news", h.GetNews).Methods(http.MethodGet)
	api.HandleFunc("/register", h.PostRegister).Methods(http.MethodPost)
	api.HandleFunc("/login", h.PostLogin).Methods(http.MethodPost)
	api.HandleFunc("/check-irrigation", h.PostCheckIrrigation).Methods(http.MethodPost)
	api.HandleFunc("/history/{userId}", h.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/{id}", h.DeleteHistory).Methods(http.MethodDelete)

	if cfg.TestingMode {
		logger.Warn("Testing mode enabled; /test endpoint exposed")
		router.HandleFunc("/test", h.GetTestStatus).Methods(http.MethodGet)
		router.HandleFunc("/test/{action}", h.PostTestAction).Methods(http.MethodPost)
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return CORSMiddleware(origins)(router)
}
