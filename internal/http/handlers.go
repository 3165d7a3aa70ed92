package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/irrigation-advisor/internal/lifecycle"
	"github.com/kjstillabower/irrigation-advisor/internal/models"
	"github.com/kjstillabower/irrigation-advisor/internal/observability"
	"github.com/kjstillabower/irrigation-advisor/internal/service"
	"github.com/kjstillabower/irrigation-advisor/internal/traffic"
	"github.com/kjstillabower/irrigation-advisor/internal/validation"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// HealthConfig holds thresholds and dependency probes for the health handler.
type HealthConfig struct {
	Window           time.Duration
	DegradedErrorPct int
	StartTime        time.Time
	// StorePing and CachePing, when set, are called with a short deadline on every /health.
	StorePing func(context.Context) error
	CachePing func(context.Context) error
}

// Services bundles the domain services the handlers call.
type Services struct {
	Irrigation *service.IrrigationService
	News       *service.NewsService
	Accounts   *service.AccountService
	History    *service.HistoryService
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc              Services
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(svc Services, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, healthConfig: healthConfig, logger: logger}
}

// GetNews handles GET /api/news?city=. It always answers 200 with a list: a city
// that cannot be used is replaced by the default news region, and provider
// failures are replaced by the backup feed in the service.
func (h *Handler) GetNews(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("city")
	city, err := validation.ValidateLocation(raw, validation.LocationMinLen, validation.LocationMaxLen)
	if err != nil {
		if !errors.Is(err, validation.ErrLocationEmpty) {
			observability.LoggerFromContext(r.Context()).Debug("unusable news city, using default",
				zap.String("city", raw), zap.Error(err))
		}
		city = ""
	}
	writeJSON(w, http.StatusOK, h.svc.News.News(r.Context(), city))
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
	Language string `json:"language" validate:"omitempty,max=35"`
	Location string `json:"location" validate:"omitempty,location"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type accountResponse struct {
	Success bool                 `json:"success"`
	User    models.PublicAccount `json:"user"`
}

// PostRegister handles POST /api/register.
func (h *Handler) PostRegister(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := decodeBody(r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	acct, err := h.svc.Accounts.Register(r.Context(), service.RegisterRequest{
		Username: body.Username,
		Password: body.Password,
		Language: body.Language,
		Location: body.Location,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{Success: true, User: acct.Public()})
}

// PostLogin handles POST /api/login. Missing fields are reported as bad credentials.
func (h *Handler) PostLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeBody(r, &body); err != nil {
		if errors.Is(err, validation.ErrInvalidRequest) {
			err = service.ErrInvalidCredentials
		}
		writeServiceError(w, r, err)
		return
	}
	acct, err := h.svc.Accounts.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{Success: true, User: acct.Public()})
}

type checkRequest struct {
	City   string   `json:"city"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	UserID string   `json:"userId" validate:"omitempty,max=64"`
}

// PostCheckIrrigation handles POST /api/check-irrigation. Coordinates are used only when
// both lat and lon are present, and then take precedence over city.
func (h *Handler) PostCheckIrrigation(w http.ResponseWriter, r *http.Request) {
	var body checkRequest
	if err := decodeBody(r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}

	req := service.IrrigationRequest{UserID: strings.TrimSpace(body.UserID)}
	if body.Lat != nil && body.Lon != nil {
		if err := validation.ValidateCoordinates(*body.Lat, *body.Lon); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
			return
		}
		req.Coord = &models.Coordinates{Lat: *body.Lat, Lon: *body.Lon}
	} else {
		city, err := validation.ValidateLocation(body.City, validation.LocationMinLen, validation.LocationMaxLen)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
			return
		}
		req.City = city
	}

	result, err := h.svc.Irrigation.Check(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetHistory handles GET /api/history/{userId}.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.History.Recent(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// DeleteHistory handles DELETE /api/history/{id}.
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.History.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptimeSeconds"] = int64(time.Since(h.healthConfig.StartTime).Seconds())
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > store unreachable > upstream error rate > healthy.
// A cache outage is reported in checks only; news falls back to the backup feed.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := map[string]string{}
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, "", checks}
	}

	checks["store"] = probe(ctx, h.healthConfig.StorePing)
	checks["cache"] = probe(ctx, h.healthConfig.CachePing)
	checks["weatherApi"] = "healthy"

	if checks["store"] == "unhealthy" {
		return healthResult{"unhealthy", http.StatusServiceUnavailable, "store_unreachable", checks}
	}
	if h.healthConfig.Window > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(h.healthConfig.Window)
		if total > 0 && float64(errs)*100/float64(total) >= float64(h.healthConfig.DegradedErrorPct) {
			checks["weatherApi"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", checks}
		}
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}

// probe runs ping with a short deadline. A nil ping reports "not_configured".
func probe(ctx context.Context, ping func(context.Context) error) string {
	if ping == nil {
		return "not_configured"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := ping(ctx); err != nil {
		observability.LoggerFromContext(ctx).Warn("health probe failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

// decodeBody decodes a JSON body into v and runs struct validation. Every failure
// wraps validation.ErrInvalidRequest.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return validation.Struct(v)
		}
		return fmt.Errorf("%w: malformed JSON body", validation.ErrInvalidRequest)
	}
	return validation.Struct(v)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error", "code", "requestId"} with the correlation ID from the context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":     message,
		"code":      code,
		"requestId": observability.CorrelationID(r.Context()),
	})
}

// writeServiceError maps service and validation errors to status codes. Server-side
// failures are logged with the request logger; callers only see a terse message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, service.ErrUserExists):
		writeError(w, r, http.StatusBadRequest, "USER_EXISTS", "User already exists")
	case errors.Is(err, validation.ErrInvalidRequest), errors.Is(err, service.ErrInvalidRequest):
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", requestMessage(err))
	case errors.Is(err, service.ErrInvalidLocation):
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", "city or coordinates are required")
	case errors.Is(err, service.ErrInvalidID):
		writeError(w, r, http.StatusBadRequest, "INVALID_ID", "invalid id")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
	case errors.Is(err, service.ErrWeatherFetchFailed):
		logger.Debug("weather error", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "WEATHER_FETCH_FAILED", "Error fetching weather data.")
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "STORE_ERROR", "Internal server error")
	}
}

// requestMessage returns the field-level detail of a validation error without the sentinel prefix.
func requestMessage(err error) string {
	msg := err.Error()
	prefix := validation.ErrInvalidRequest.Error() + ": "
	if i := strings.LastIndex(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}

// GetTestStatus handles GET /test. Returns the tracked traffic in the health window.
func (h *Handler) GetTestStatus(w http.ResponseWriter, r *http.Request) {
	window := 60 * time.Second
	pct := 0
	if h.healthConfig != nil {
		if h.healthConfig.Window > 0 {
			window = h.healthConfig.Window
		}
		pct = h.healthConfig.DegradedErrorPct
	}
	errs, total := traffic.ErrorRate(window)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_requests_in_window":  total,
		"errors_in_window":          errs,
		"denied_requests_in_window": traffic.DenialCount(window),
		"window_length":             window.String(),
		"in_flight":                 InFlightCount(),
		"config":                    map[string]interface{}{"degraded_error_pct": pct},
	})
}

// PostTestAction handles POST /test/{action} for error, reset and shutdown.
func (h *Handler) PostTestAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	switch action {
	case "error":
		var body struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil || body.Count <= 0 {
			body.Count = 1
		}
		for i := 0; i < body.Count; i++ {
			traffic.RecordError()
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      true,
			"action":  action,
			"message": "Recorded " + strconv.Itoa(body.Count) + " errors",
			"state":   h.computeHealthStatus(r.Context()).status,
		})
	case "reset":
		traffic.Reset()
		lifecycle.SetShuttingDown(false)
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "action": action, "message": "All simulated state cleared"})
	case "shutdown":
		lifecycle.SetShuttingDown(true)
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "action": action, "message": "Shutting-down flag set"})
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_ACTION", "unknown test action: "+action)
	}
}
