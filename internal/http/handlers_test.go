package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/irrigation-advisor/internal/cache"
	"github.com/kjstillabower/irrigation-advisor/internal/client"
	"github.com/kjstillabower/irrigation-advisor/internal/lifecycle"
	"github.com/kjstillabower/irrigation-advisor/internal/models"
	"github.com/kjstillabower/irrigation-advisor/internal/news"
	"github.com/kjstillabower/irrigation-advisor/internal/service"
	"github.com/kjstillabower/irrigation-advisor/internal/store"
	"github.com/kjstillabower/irrigation-advisor/internal/traffic"
)

type mockWeatherClient struct {
	mu        sync.Mutex
	current   models.WeatherReading
	err       error
	geoName   string
	nearby    []models.NearbySite
	block     chan struct{}
	locations []client.Location
}

func (m *mockWeatherClient) CurrentWeather(ctx context.Context, loc client.Location) (models.WeatherReading, error) {
	m.mu.Lock()
	m.locations = append(m.locations, loc)
	m.mu.Unlock()
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return models.WeatherReading{}, fmt.Errorf("%w: %w", client.ErrUpstreamFailure, ctx.Err())
		}
	}
	return m.current, m.err
}

func (m *mockWeatherClient) Forecast(ctx context.Context, loc client.Location) (models.RawForecast, error) {
	if m.err != nil {
		return models.RawForecast{}, m.err
	}
	return models.RawForecast{TimezoneSeconds: 19800, Points: []models.RawForecastPoint{
		{Epoch: 1720512000, TempC: 29.6, Humidity: 70, CloudCoverPct: 20, Weather: []models.WeatherEntry{{Main: "Clouds", Description: "few clouds", Icon: "02d"}}},
	}}, nil
}

func (m *mockWeatherClient) ReverseGeocode(ctx context.Context, coord models.Coordinates) (string, error) {
	return m.geoName, nil
}

func (m *mockWeatherClient) Nearby(ctx context.Context, coord models.Coordinates, count int) ([]models.NearbySite, error) {
	return m.nearby, nil
}

type mockNewsClient struct {
	mu       sync.Mutex
	articles []models.Article
	err      error
	cities   []string
}

func (m *mockNewsClient) Articles(ctx context.Context, city string) ([]models.Article, error) {
	m.mu.Lock()
	m.cities = append(m.cities, city)
	m.mu.Unlock()
	return m.articles, m.err
}

func defaultReading() models.WeatherReading {
	return models.WeatherReading{
		LocationName: "Mysuru",
		Coord:        models.Coordinates{Lat: 12.3, Lon: 76.65},
		TemperatureC: 31.5,
		HumidityPct:  40,
		Condition:    "Clear",
		WindSpeedMps: 3.1,
		WindGustMps:  4.2,
	}
}

type testEnv struct {
	weather *mockWeatherClient
	news    *mockNewsClient
	store   *store.MemoryStore
	handler *Handler
	router  http.Handler
}

func newTestEnv(t *testing.T, healthConfig *HealthConfig, logger *zap.Logger) *testEnv {
	t.Helper()
	traffic.Reset()
	lifecycle.SetShuttingDown(false)
	if logger == nil {
		logger = zap.NewNop()
	}
	env := &testEnv{
		weather: &mockWeatherClient{current: defaultReading()},
		news:    &mockNewsClient{err: errors.New("news down")},
		store:   store.NewMemoryStore(),
	}
	svc := Services{
		Irrigation: service.NewIrrigationService(env.weather, env.store, env.store),
		News:       service.NewNewsService(env.news, cache.NewInMemoryCache(), time.Minute, time.Second),
		Accounts:   service.NewAccountService(env.store, 4),
		History:    service.NewHistoryService(env.store, 10),
	}
	env.handler = NewHandler(svc, healthConfig, logger)
	env.router = NewRouter(env.handler, RouterConfig{Logger: logger, RequestTimeout: 5 * time.Second, TestingMode: true})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v (raw %q)", err, w.Body.String())
	}
	return body
}

func TestHandler_CheckIrrigation_ByCity(t *testing.T) {
	// Arrange
	env := newTestEnv(t, nil, nil)

	// Act
	w := env.do(t, "POST", "/api/check-irrigation", `{"city":"Mysuru"}`)

	// Assert
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}
	var result models.IrrigationResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.City != "Mysuru" || result.Temperature != 31.5 || !result.Irrigate {
		t.Errorf("result = %+v", result)
	}
	if result.Advice != "High heat! Irrigate heavily." {
		t.Errorf("advice = %q", result.Advice)
	}
	if len(result.Forecast) != 1 || result.Forecast[0].TempC != 30 {
		t.Errorf("forecast = %+v", result.Forecast)
	}
	if result.Nearby == nil {
		t.Error("nearby = nil, want empty list")
	}
	if got := env.weather.locations[0]; got.City != "Mysuru" || got.Coord != nil {
		t.Errorf("location = %+v, want city only", got)
	}
}

func TestHandler_CheckIrrigation_CoordinatesWinOverCity(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.weather.geoName = "Chamundi Hills"

	w := env.do(t, "POST", "/api/check-irrigation", `{"city":"Delhi","lat":0,"lon":76.65}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}
	loc := env.weather.locations[0]
	if loc.Coord == nil || loc.Coord.Lat != 0 || loc.Coord.Lon != 76.65 {
		t.Errorf("location = %+v, want coordinates (0, 76.65)", loc)
	}
	var result models.IrrigationResult
	_ = json.NewDecoder(w.Body).Decode(&result)
	if result.City != "Chamundi Hills" {
		t.Errorf("city = %q, want geocoded name", result.City)
	}
}

func TestHandler_CheckIrrigation_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"empty body", ``, "INVALID_LOCATION"},
		{"no location", `{}`, "INVALID_LOCATION"},
		{"only lat", `{"lat":12.3}`, "INVALID_LOCATION"},
		{"control characters", `{"city":"Pune\u0000"}`, "INVALID_LOCATION"},
		{"city too long", `{"city":"` + strings.Repeat("a", 101) + `"}`, "INVALID_LOCATION"},
		{"latitude out of range", `{"lat":91,"lon":10}`, "INVALID_LOCATION"},
		{"malformed json", `{"city":`, "INVALID_REQUEST"},
		{"user id too long", `{"city":"Mysuru","userId":"` + strings.Repeat("a", 65) + `"}`, "INVALID_REQUEST"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)

			w := env.do(t, "POST", "/api/check-irrigation", tc.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400. Body: %s", w.Code, w.Body.String())
			}
			body := decodeError(t, w)
			if body.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tc.wantCode)
			}
			if body.RequestID == "" {
				t.Error("requestId empty, want correlation ID")
			}
			if len(env.weather.locations) != 0 {
				t.Error("provider called for invalid input")
			}
		})
	}
}

func TestHandler_CheckIrrigation_UpstreamFailure(t *testing.T) {
	// Arrange
	core, logs := observer.New(zap.DebugLevel)
	env := newTestEnv(t, nil, zap.New(core))
	env.weather.err = fmt.Errorf("%w: city not found", client.ErrLocationNotFound)

	// Act
	w := env.do(t, "POST", "/api/check-irrigation", `{"city":"Atlantis"}`)

	// Assert
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := decodeError(t, w)
	if body.Code != "WEATHER_FETCH_FAILED" || body.Error != "Error fetching weather data." {
		t.Errorf("body = %+v", body)
	}
	if strings.Contains(w.Body.String(), "city not found") {
		t.Error("upstream detail leaked to caller")
	}
	if logs.FilterMessage("weather fetch failed").Len() != 1 {
		t.Errorf("want 1 weather fetch failed log, got %d", logs.FilterMessage("weather fetch failed").Len())
	}
	if errs, _ := traffic.ErrorRate(time.Minute); errs != 1 {
		t.Errorf("tracked errors = %d, want 1", errs)
	}
}

func TestHandler_CheckIrrigation_RecordsHistoryForKnownUser(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	acct, err := env.store.CreateAccount(context.Background(), models.Account{Username: "ravi", PasswordHash: "x", Language: "en"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	w := env.do(t, "POST", "/api/check-irrigation", `{"city":"Mysuru","userId":"`+acct.ID+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/api/history/"+acct.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", w.Code)
	}
	var records []models.HistoryRecord
	if err := json.NewDecoder(w.Body).Decode(&records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].City != "Mysuru" || records[0].UserID != acct.ID {
		t.Fatalf("records = %+v", records)
	}
}

func TestHandler_CheckIrrigation_UnknownUserNotRecorded(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, "POST", "/api/check-irrigation", `{"city":"Mysuru","userId":"not-a-user"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	w = env.do(t, "GET", "/api/history/not-a-user", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("history = %s, want []", w.Body.String())
	}
}

func TestHandler_RegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	// Register
	w := env.do(t, "POST", "/api/register", `{"username":"ravi","password":"s3cret","language":"kn-IN","location":"Mysuru"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}
	var reg struct {
		Success bool                   `json:"success"`
		User    map[string]interface{} `json:"user"`
	}
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&reg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reg.Success || reg.User["username"] != "ravi" || reg.User["language"] != "kn" || reg.User["_id"] == "" {
		t.Errorf("register body = %s", w.Body.String())
	}
	if strings.Contains(strings.ToLower(w.Body.String()), "password") {
		t.Error("register response exposes password")
	}

	// Duplicate
	w = env.do(t, "POST", "/api/register", `{"username":"ravi","password":"other"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate status = %d, want 400", w.Code)
	}
	if body := decodeError(t, w); body.Code != "USER_EXISTS" || body.Error != "User already exists" {
		t.Errorf("duplicate body = %+v", body)
	}

	// Login
	w = env.do(t, "POST", "/api/login", `{"username":"ravi","password":"s3cret"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"success":true`) {
		t.Errorf("login body = %s", w.Body.String())
	}
}

func TestHandler_Register_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"missing username", `{"password":"pw"}`, "username is required"},
		{"missing password", `{"username":"ravi"}`, "password is required"},
		{"password too long", `{"username":"ravi","password":"` + strings.Repeat("p", 73) + `"}`, "password is too long"},
		{"bad location", `{"username":"ravi","password":"pw","location":"<b>"}`, "location is not a valid location"},
		{"malformed", `not json`, "malformed JSON body"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)
			w := env.do(t, "POST", "/api/register", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			body := decodeError(t, w)
			if body.Code != "INVALID_REQUEST" || body.Error != tc.wantMsg {
				t.Errorf("body = %+v, want INVALID_REQUEST %q", body, tc.wantMsg)
			}
		})
	}
}

func TestHandler_Login_Failures(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	if w := env.do(t, "POST", "/api/register", `{"username":"ravi","password":"s3cret"}`); w.Code != http.StatusOK {
		t.Fatalf("register status = %d", w.Code)
	}

	for name, body := range map[string]string{
		"wrong password": `{"username":"ravi","password":"nope"}`,
		"unknown user":   `{"username":"ghost","password":"s3cret"}`,
		"missing fields": `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/login", body)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if got := decodeError(t, w); got.Code != "INVALID_CREDENTIALS" || got.Error != "Invalid credentials" {
				t.Errorf("body = %+v", got)
			}
		})
	}
}

func TestHandler_GetNews_FallsBackToBackup(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, "GET", "/api/news?city=Mysuru", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var articles []models.Article
	if err := json.NewDecoder(w.Body).Decode(&articles); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(articles) != news.BackupSize {
		t.Fatalf("len = %d, want %d backup articles", len(articles), news.BackupSize)
	}
	if articles[0].Source != news.BackupSource {
		t.Errorf("source = %q, want %q", articles[0].Source, news.BackupSource)
	}
}

func TestHandler_GetNews_Live(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.news.err = nil
	env.news.articles = []models.Article{
		{ID: "0", Title: "Monsoon arrives early", Source: "The Hindu", URL: "https://example.com/a"},
		{ID: "1", Title: "Paddy sowing up 12%", Source: "Mint", URL: "https://example.com/b"},
	}

	w := env.do(t, "GET", "/api/news", "")

	if !strings.Contains(w.Body.String(), `"id":0,`) {
		t.Errorf("live article id not a JSON number: %s", w.Body.String())
	}
	var articles []models.Article
	_ = json.NewDecoder(w.Body).Decode(&articles)
	if w.Code != http.StatusOK || len(articles) != 2 || articles[0].Title != "Monsoon arrives early" {
		t.Errorf("status = %d, articles = %+v", w.Code, articles)
	}
}

func TestHandler_GetNews_UnusualCityNames(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCity string
	}{
		{"parentheses", "Bengaluru%20(Urban)", "Bengaluru (Urban)"},
		{"typographic apostrophe", "St.%20John%E2%80%99s", "St. John\u2019s"},
		{"slash", "Pune%2FMaharashtra", "Pune/Maharashtra"},
		{"markup", "%3Cscript%3E", "<script>"},
		{"control characters fall back to default", "Pune%00", service.DefaultNewsCity},
		{"too long falls back to default", strings.Repeat("a", 101), service.DefaultNewsCity},
		{"blank falls back to default", "%20%20", service.DefaultNewsCity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)

			w := env.do(t, "GET", "/api/news?city="+tc.query, "")

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200. Body: %s", w.Code, w.Body.String())
			}
			var articles []models.Article
			if err := json.NewDecoder(w.Body).Decode(&articles); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(articles) != news.BackupSize {
				t.Errorf("len = %d, want %d backup articles", len(articles), news.BackupSize)
			}
			if len(env.news.cities) != 1 || env.news.cities[0] != tc.wantCity {
				t.Errorf("provider queried with %q, want %q", env.news.cities, tc.wantCity)
			}
		})
	}
}

func TestHandler_CheckIrrigation_UnusualCityReachesProvider(t *testing.T) {
	for _, city := range []string{"St. John\u2019s", "Bengaluru (Urban)", "Pune/Maharashtra"} {
		t.Run(city, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)
			env.weather.err = fmt.Errorf("%w: city not found", client.ErrLocationNotFound)
			payload, _ := json.Marshal(map[string]string{"city": city})

			w := env.do(t, "POST", "/api/check-irrigation", string(payload))

			if w.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500. Body: %s", w.Code, w.Body.String())
			}
			if body := decodeError(t, w); body.Code != "WEATHER_FETCH_FAILED" {
				t.Errorf("code = %q, want WEATHER_FETCH_FAILED", body.Code)
			}
			if len(env.weather.locations) == 0 || env.weather.locations[0].City != city {
				t.Errorf("provider locations = %+v, want %q", env.weather.locations, city)
			}
		})
	}
}

func TestHandler_DeleteHistory(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	rec, err := env.store.AddRecord(ctx, models.HistoryRecord{UserID: "u1", City: "Mysuru"})
	if err != nil {
		t.Fatalf("AddRecord: %v", err)
	}

	w := env.do(t, "DELETE", "/api/history/"+rec.ID, "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"success":true}` {
		t.Fatalf("delete = %d %s", w.Code, w.Body.String())
	}

	// Unknown but well-formed ids succeed.
	w = env.do(t, "DELETE", "/api/history/"+rec.ID, "")
	if w.Code != http.StatusOK {
		t.Errorf("second delete status = %d, want 200", w.Code)
	}

	w = env.do(t, "DELETE", "/api/history/not-an-id", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed id status = %d, want 400", w.Code)
	}
	if body := decodeError(t, w); body.Code != "INVALID_ID" {
		t.Errorf("code = %q, want INVALID_ID", body.Code)
	}
}

type failingHistoryStore struct{ store.HistoryStore }

func (failingHistoryStore) RecentRecords(ctx context.Context, userID string, limit int) ([]models.HistoryRecord, error) {
	return nil, errors.New("connection reset by peer")
}

func TestHandler_GetHistory_StoreError(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	env := newTestEnv(t, nil, zap.New(core))
	env.handler.svc.History = service.NewHistoryService(failingHistoryStore{}, 10)

	w := env.do(t, "GET", "/api/history/u1", "")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := decodeError(t, w)
	if body.Code != "STORE_ERROR" || strings.Contains(body.Error, "connection reset") {
		t.Errorf("body = %+v", body)
	}
	if logs.FilterMessage("request failed").Len() != 1 {
		t.Errorf("want 1 request failed log, got %d", logs.FilterMessage("request failed").Len())
	}
}

func TestHandler_GetHealth(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(hc *HealthConfig)
		wantCode   int
		wantStatus string
	}{
		{
			name:       "healthy",
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "shutting down",
			setup:      func(*HealthConfig) { lifecycle.SetShuttingDown(true) },
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "shutting-down",
		},
		{
			name: "store unreachable",
			setup: func(hc *HealthConfig) {
				hc.StorePing = func(context.Context) error { return errors.New("no primary") }
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
		{
			name: "cache down stays healthy",
			setup: func(hc *HealthConfig) {
				hc.CachePing = func(context.Context) error { return errors.New("memcache: no servers") }
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "error rate breach",
			setup: func(*HealthConfig) {
				traffic.RecordSuccess()
				traffic.RecordError()
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
		},
		{
			name: "error rate below threshold",
			setup: func(*HealthConfig) {
				traffic.RecordSuccess()
				traffic.RecordSuccess()
				traffic.RecordError()
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			hc := &HealthConfig{
				Window:           time.Minute,
				DegradedErrorPct: 50,
				StartTime:        time.Now(),
				StorePing:        func(context.Context) error { return nil },
				CachePing:        func(context.Context) error { return nil },
			}
			env := newTestEnv(t, hc, nil)
			defer lifecycle.SetShuttingDown(false)
			if tc.setup != nil {
				tc.setup(hc)
			}

			// Act
			w := env.do(t, "GET", "/health", "")

			// Assert
			if w.Code != tc.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tc.wantCode)
			}
			var resp map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp["status"] != tc.wantStatus {
				t.Errorf("status = %v, want %s", resp["status"], tc.wantStatus)
			}
			if resp["service"] != "irrigation-advisor" {
				t.Errorf("service = %v", resp["service"])
			}
		})
	}
}

func TestHandler_GetHealth_CacheCheckReported(t *testing.T) {
	hc := &HealthConfig{
		Window:    time.Minute,
		CachePing: func(context.Context) error { return errors.New("down") },
	}
	env := newTestEnv(t, hc, nil)

	w := env.do(t, "GET", "/health", "")

	var resp struct {
		Checks map[string]string `json:"checks"`
	}
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Checks["cache"] != "unhealthy" || resp.Checks["store"] != "not_configured" {
		t.Errorf("checks = %v", resp.Checks)
	}
}

// TestHandler_GetHealth_LogsTransition verifies transitions are logged once per change.
func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	// Arrange
	core, logs := observer.New(zap.DebugLevel)
	hc := &HealthConfig{Window: time.Minute, DegradedErrorPct: 50}
	env := newTestEnv(t, hc, zap.New(core))
	traffic.RecordSuccess()
	traffic.RecordSuccess()

	// Act: first call establishes the previous status.
	env.handler.GetHealth(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
	if n := logs.FilterMessage("health status transition").Len(); n != 0 {
		t.Fatalf("first call logged %d transitions, want 0", n)
	}

	traffic.RecordError()
	traffic.RecordError()
	w := httptest.NewRecorder()
	env.handler.GetHealth(w, httptest.NewRequest("GET", "/health", nil))

	// Assert
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("second GetHealth status = %d, want 503", w.Code)
	}
	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("want 1 transition log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "healthy" || fields["current_status"] != "degraded" || fields["reason"] != "error_rate_breach" {
		t.Errorf("transition fields = %v", fields)
	}

	env.handler.GetHealth(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
	if n := logs.FilterMessage("health status transition").Len(); n != 1 {
		t.Errorf("unchanged status logged again; total = %d, want 1", n)
	}
}

func TestHandler_TestActions(t *testing.T) {
	env := newTestEnv(t, &HealthConfig{Window: time.Minute, DegradedErrorPct: 50}, nil)
	defer lifecycle.SetShuttingDown(false)

	w := env.do(t, "POST", "/test/error", `{"count":3}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"state":"degraded"`) {
		t.Errorf("error action = %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/test", "")
	var status map[string]interface{}
	_ = json.NewDecoder(w.Body).Decode(&status)
	if status["errors_in_window"] != float64(3) {
		t.Errorf("errors_in_window = %v, want 3", status["errors_in_window"])
	}

	env.do(t, "POST", "/test/shutdown", "")
	if !lifecycle.IsShuttingDown() {
		t.Error("shutdown action did not set flag")
	}
	w = env.do(t, "GET", "/api/news", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("api during shutdown = %d, want 503", w.Code)
	}

	env.do(t, "POST", "/test/reset", "")
	if lifecycle.IsShuttingDown() {
		t.Error("reset did not clear shutdown flag")
	}
	if errs, _ := traffic.ErrorRate(time.Minute); errs != 0 {
		t.Errorf("errors after reset = %d, want 0", errs)
	}

	w = env.do(t, "POST", "/test/explode", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown action = %d, want 404", w.Code)
	}
}
