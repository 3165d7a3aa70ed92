package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kjstillabower/irrigation-advisor/internal/client"
	"github.com/kjstillabower/irrigation-advisor/internal/models"
)

type mockWeatherClient struct {
	mu sync.Mutex

	current    models.WeatherReading
	currentErr error
	forecast   models.RawForecast
	fcErr      error
	geoName    string
	geoErr     error
	nearby     []models.NearbySite
	nearbyErr  error

	locations   []client.Location
	geoCalls    int
	nearbyCoord models.Coordinates
}

func (m *mockWeatherClient) CurrentWeather(ctx context.Context, loc client.Location) (models.WeatherReading, error) {
	m.mu.Lock()
	m.locations = append(m.locations, loc)
	m.mu.Unlock()
	return m.current, m.currentErr
}

func (m *mockWeatherClient) Forecast(ctx context.Context, loc client.Location) (models.RawForecast, error) {
	return m.forecast, m.fcErr
}

func (m *mockWeatherClient) ReverseGeocode(ctx context.Context, coord models.Coordinates) (string, error) {
	m.mu.Lock()
	m.geoCalls++
	m.mu.Unlock()
	return m.geoName, m.geoErr
}

func (m *mockWeatherClient) Nearby(ctx context.Context, coord models.Coordinates, count int) ([]models.NearbySite, error) {
	m.mu.Lock()
	m.nearbyCoord = coord
	m.mu.Unlock()
	return m.nearby, m.nearbyErr
}

type mockNewsClient struct {
	mu       sync.Mutex
	articles []models.Article
	err      error
	calls    int
	cities   []string
}

func (m *mockNewsClient) Articles(ctx context.Context, city string) ([]models.Article, error) {
	m.mu.Lock()
	m.calls++
	m.cities = append(m.cities, city)
	m.mu.Unlock()
	return m.articles, m.err
}

type mockCache struct {
	mu     sync.Mutex
	data   map[string][]models.Article
	getErr error
	setErr error
	sets   int
}

func (m *mockCache) Get(ctx context.Context, key string) ([]models.Article, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []models.Article, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	if m.data == nil {
		m.data = make(map[string][]models.Article)
	}
	m.data[key] = value
	return nil
}

func (m *mockCache) Ping(ctx context.Context) error { return nil }
func (m *mockCache) Close() error                   { return nil }

// failingStore fails every operation with err.
type failingStore struct {
	err error
}

func (f failingStore) CreateAccount(ctx context.Context, acct models.Account) (models.Account, error) {
	return models.Account{}, f.err
}
func (f failingStore) AccountByUsername(ctx context.Context, username string) (models.Account, error) {
	return models.Account{}, f.err
}
func (f failingStore) AccountByID(ctx context.Context, id string) (models.Account, error) {
	return models.Account{}, f.err
}
func (f failingStore) AddRecord(ctx context.Context, rec models.HistoryRecord) (models.HistoryRecord, error) {
	return models.HistoryRecord{}, f.err
}
func (f failingStore) RecentRecords(ctx context.Context, userID string, limit int) ([]models.HistoryRecord, error) {
	return nil, f.err
}
func (f failingStore) DeleteRecord(ctx context.Context, id string) error { return f.err }

var errDatabaseDown = errors.New("database down")
