package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/irrigation-advisor/internal/circuitbreaker"
	"github.com/kjstillabower/irrigation-advisor/internal/models"
)

const (
	DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5"
	DefaultGeocodeURL     = "https://api.openweathermap.org/geo/1.0"

	openWeatherProvider = "openweather"
)

// Location identifies a place either by free-text name or by coordinates.
// Coordinates take precedence when set.
type Location struct {
	City  string
	Coord *models.Coordinates
}

// WeatherClient fetches current conditions, forecasts and nearby sites.
type WeatherClient interface {
	CurrentWeather(ctx context.Context, loc Location) (models.WeatherReading, error)
	Forecast(ctx context.Context, loc Location) (models.RawForecast, error)
	ReverseGeocode(ctx context.Context, coord models.Coordinates) (string, error)
	Nearby(ctx context.Context, coord models.Coordinates, count int) ([]models.NearbySite, error)
}

// OpenWeatherConfig configures OpenWeatherClient. Empty URLs use the public endpoints.
type OpenWeatherConfig struct {
	APIKey     string
	BaseURL    string
	GeoURL     string
	Timeout    time.Duration
	Retry      RetryPolicy
	HTTPClient *http.Client
	// Breaker enables a circuit breaker when non-nil.
	Breaker *circuitbreaker.Config
}

// OpenWeatherClient talks to the OpenWeatherMap 2.5 and geocoding APIs.
type OpenWeatherClient struct {
	apiKey  string
	baseURL *url.URL
	geoURL  *url.URL
	caller  *apiCaller
}

// NewOpenWeatherClient validates the endpoint URLs. A missing API key is not an error
// here: calls fail with ErrInvalidAPIKey instead.
func NewOpenWeatherClient(cfg OpenWeatherConfig) (*OpenWeatherClient, error) {
	base, err := parseBaseURL(cfg.BaseURL, DefaultOpenWeatherURL)
	if err != nil {
		return nil, fmt.Errorf("weather api url: %w", err)
	}
	geo, err := parseBaseURL(cfg.GeoURL, DefaultGeocodeURL)
	if err != nil {
		return nil, fmt.Errorf("geocode api url: %w", err)
	}
	caller := newAPICaller(openWeatherProvider, cfg.HTTPClient, cfg.Timeout, cfg.Retry)
	if cfg.Breaker != nil {
		caller.breaker = newBreaker(openWeatherProvider, *cfg.Breaker)
	}
	return &OpenWeatherClient{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: base,
		geoURL:  geo,
		caller:  caller,
	}, nil
}

// CurrentWeather fetches current conditions for loc.
func (c *OpenWeatherClient) CurrentWeather(ctx context.Context, loc Location) (models.WeatherReading, error) {
	var resp owCurrentResponse
	if err := c.get(ctx, "weather", c.baseURL, "weather", locationParams(loc), &resp); err != nil {
		return models.WeatherReading{}, err
	}
	return mapCurrent(resp)
}

// Forecast fetches the 5 day / 3 hour forecast feed for loc.
func (c *OpenWeatherClient) Forecast(ctx context.Context, loc Location) (models.RawForecast, error) {
	var resp owForecastResponse
	if err := c.get(ctx, "forecast", c.baseURL, "forecast", locationParams(loc), &resp); err != nil {
		return models.RawForecast{}, err
	}
	return mapForecast(resp)
}

// ReverseGeocode returns the most specific place name for coord, or "" when the provider has none.
func (c *OpenWeatherClient) ReverseGeocode(ctx context.Context, coord models.Coordinates) (string, error) {
	params := coordParams(coord)
	params.Set("limit", "1")
	var resp owGeoResponse
	if err := c.get(ctx, "geocode", c.geoURL, "reverse", params, &resp); err != nil {
		return "", err
	}
	return mapGeoName(resp), nil
}

// Nearby returns up to count sites around coord, origin included when the provider lists it.
func (c *OpenWeatherClient) Nearby(ctx context.Context, coord models.Coordinates, count int) ([]models.NearbySite, error) {
	params := coordParams(coord)
	params.Set("cnt", strconv.Itoa(count))
	params.Set("units", "metric")
	var resp owFindResponse
	if err := c.get(ctx, "find", c.baseURL, "find", params, &resp); err != nil {
		return nil, err
	}
	return mapNearby(resp), nil
}

func (c *OpenWeatherClient) get(ctx context.Context, endpoint string, base *url.URL, path string, params url.Values, out interface{}) error {
	if c.apiKey == "" {
		return fmt.Errorf("%s %s: %w: API key is not configured", openWeatherProvider, endpoint, ErrInvalidAPIKey)
	}
	params.Set("appid", c.apiKey)
	u := base.JoinPath(path)
	u.RawQuery = params.Encode()
	return c.caller.getJSON(ctx, endpoint, u, out)
}

func locationParams(loc Location) url.Values {
	var params url.Values
	if loc.Coord != nil {
		params = coordParams(*loc.Coord)
	} else {
		params = url.Values{}
		params.Set("q", loc.City)
	}
	params.Set("units", "metric")
	return params
}

func coordParams(coord models.Coordinates) url.Values {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coord.Lon, 'f', -1, 64))
	return params
}

func parseBaseURL(raw, fallback string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", raw)
	}
	return u, nil
}
