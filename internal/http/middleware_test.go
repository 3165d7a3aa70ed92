package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/irrigation-advisor/internal/lifecycle"
	"github.com/kjstillabower/irrigation-advisor/internal/observability"
	"github.com/kjstillabower/irrigation-advisor/internal/traffic"
)

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, "GET", "/api/news", "")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header missing")
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	var ctxID string
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		ctxID = observability.CorrelationID(r.Context())
		observability.LoggerFromContext(r.Context()).Info("inside")
	})

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
	if ctxID != "client-provided-id" {
		t.Errorf("context correlation ID = %q", ctxID)
	}
	entries := logs.FilterMessage("inside").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != "client-provided-id" {
		t.Errorf("request logger not tagged with correlation_id: %+v", entries)
	}
}

func TestMiddleware_ErrorBodyCarriesRequestID(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	req := httptest.NewRequest("POST", "/api/login", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if body := decodeError(t, w); body.RequestID != "abc-123" {
		t.Errorf("requestId = %q, want abc-123", body.RequestID)
	}
}

func TestTimeoutMiddleware_CancelsContextAfterTimeout(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.weather.block = make(chan struct{})
	defer close(env.weather.block)
	env.router = NewRouter(env.handler, RouterConfig{RequestTimeout: 50 * time.Millisecond})

	w := env.do(t, "POST", "/api/check-irrigation", `{"city":"Mysuru"}`)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d (timeout should fail the weather fetch)", w.Code, http.StatusInternalServerError)
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.router = NewRouter(env.handler, RouterConfig{Limiter: rate.NewLimiter(1, 2)})

	for i := 0; i < 3; i++ {
		w := env.do(t, "GET", "/api/news", "")
		if i < 2 {
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status = %d, want 200", i, w.Code)
			}
			continue
		}
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: status = %d, want 429", i, w.Code)
		}
		if body := decodeError(t, w); body.Code != "RATE_LIMITED" {
			t.Errorf("code = %q, want RATE_LIMITED", body.Code)
		}
	}
	if got := traffic.DenialCount(time.Minute); got != 1 {
		t.Errorf("DenialCount = %d, want 1", got)
	}

	// Health and metrics are not rate limited.
	if w := env.do(t, "GET", "/health", ""); w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", w.Code)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	handler := RateLimitMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/news", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (nil limiter should allow)", w.Code)
	}
}

func TestShutdownMiddleware(t *testing.T) {
	lifecycle.SetShuttingDown(true)
	defer lifecycle.SetShuttingDown(false)

	called := false
	handler := ShutdownMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/news", nil))

	if called || w.Code != http.StatusServiceUnavailable {
		t.Errorf("called = %v, status = %d; want rejected with 503", called, w.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		preflight  bool
		wantCode   int
		wantOrigin string
	}{
		{"wildcard", []string{"*"}, "GET", "https://farm.example", false, 200, "*"},
		{"allowed origin", []string{"https://farm.example"}, "GET", "https://farm.example", false, 200, "https://farm.example"},
		{"other origin", []string{"https://farm.example"}, "GET", "https://evil.example", false, 200, ""},
		{"preflight", []string{"*"}, "OPTIONS", "https://farm.example", true, 204, "*"},
		{"plain options", []string{"*"}, "OPTIONS", "", false, 200, "*"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
			req := httptest.NewRequest(tc.method, "/api/check-irrigation", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			w := httptest.NewRecorder()
			CORSMiddleware(tc.origins)(next).ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tc.wantCode)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tc.wantOrigin)
			}
		})
	}
}

func TestRouter_PreflightBeforeRouteMatching(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	req := httptest.NewRequest("OPTIONS", "/api/check-irrigation", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("Access-Control-Allow-Methods missing")
	}
}

func TestMiddleware_GetRouteUsesTemplate(t *testing.T) {
	var route string
	router := mux.NewRouter()
	router.HandleFunc("/api/history/{userId}", func(w http.ResponseWriter, r *http.Request) {
		route = getRoute(r)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/history/5f1c", nil))

	if route != "/api/history/{userId}" {
		t.Errorf("route = %q, want template", route)
	}
	if got := getRoute(httptest.NewRequest("GET", "/nowhere", nil)); got != "unmatched" {
		t.Errorf("route without match = %q, want unmatched", got)
	}
}

func TestMiddleware_MetricsRoute(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.do(t, "GET", "/api/news", "")

	w := env.do(t, "GET", "/metrics", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !containsAll(w.Body.String(), "httpRequestsTotal", `route="/api/news"`) {
		t.Error("metrics output missing request counter for /api/news")
	}
}

func TestMiddleware_TimeoutSetsDeadline(t *testing.T) {
	var hasDeadline bool
	handler := TimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil).WithContext(context.Background()))
	if !hasDeadline {
		t.Error("request context has no deadline")
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
