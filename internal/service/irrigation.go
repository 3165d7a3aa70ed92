package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/irrigation-advisor/internal/advisory"
	"github.com/kjstillabower/irrigation-advisor/internal/client"
	"github.com/kjstillabower/irrigation-advisor/internal/forecast"
	"github.com/kjstillabower/irrigation-advisor/internal/models"
	"github.com/kjstillabower/irrigation-advisor/internal/observability"
	"github.com/kjstillabower/irrigation-advisor/internal/store"
	"github.com/kjstillabower/irrigation-advisor/internal/traffic"
)

// IrrigationRequest selects a location by city or coordinates (coordinates win)
// and optionally a user whose history receives the result.
type IrrigationRequest struct {
	City   string
	Coord  *models.Coordinates
	UserID string
}

// IrrigationService builds the combined advisory payload for one location.
type IrrigationService struct {
	weather  client.WeatherClient
	accounts store.AccountStore
	history  store.HistoryStore
}

func NewIrrigationService(weather client.WeatherClient, accounts store.AccountStore, history store.HistoryStore) *IrrigationService {
	return &IrrigationService{weather: weather, accounts: accounts, history: history}
}

// Check fetches current conditions and the forecast concurrently (plus a reverse
// geocode when coordinates are given), then nearby sites, derives the advisory and
// records it for the user when one is named. Only a failed current or forecast call
// fails the request.
func (s *IrrigationService) Check(ctx context.Context, req IrrigationRequest) (models.IrrigationResult, error) {
	logger := observability.LoggerFromContext(ctx)
	if req.Coord == nil && strings.TrimSpace(req.City) == "" {
		return models.IrrigationResult{}, ErrInvalidLocation
	}
	loc := client.Location{City: strings.TrimSpace(req.City), Coord: req.Coord}

	var (
		wg                  sync.WaitGroup
		current             models.WeatherReading
		raw                 models.RawForecast
		geoName             string
		curErr, fcErr, gErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		current, curErr = s.weather.CurrentWeather(ctx, loc)
	}()
	go func() {
		defer wg.Done()
		raw, fcErr = s.weather.Forecast(ctx, loc)
	}()
	if req.Coord != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			geoName, gErr = s.weather.ReverseGeocode(ctx, *req.Coord)
		}()
	}
	wg.Wait()

	if err := errors.Join(curErr, fcErr); err != nil {
		traffic.RecordError()
		logger.Error("weather fetch failed",
			zap.String("city", loc.City),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
		return models.IrrigationResult{}, fmt.Errorf("%w: %w", ErrWeatherFetchFailed, err)
	}
	traffic.RecordSuccess()

	if gErr != nil {
		observability.PartialFailuresTotal.WithLabelValues("geocode").Inc()
		logger.Warn("reverse geocode failed, using provider name", zap.Error(gErr))
	}
	name := geoName
	if name == "" {
		name = current.LocationName
	}

	nearby := s.nearby(ctx, current.Coord, current.LocationName, geoName)

	adv, outcome := advisory.DeriveWithOutcome(current)
	observability.AdvisoriesTotal.WithLabelValues(string(outcome)).Inc()

	result := models.IrrigationResult{
		City:        name,
		Coord:       current.Coord,
		Temperature: current.TemperatureC,
		Condition:   current.Condition,
		Humidity:    current.HumidityPct,
		WindSpeed:   current.WindSpeedMps,
		WindGust:    current.WindGustMps,
		Advice:      adv.Message,
		Suggestions: adv.Suggestions,
		Irrigate:    adv.ShouldIrrigate,
		Forecast:    forecast.Normalize(raw.Points, forecast.Zone(raw.TimezoneSeconds)),
		Nearby:      nearby,
	}

	if req.UserID != "" {
		if err := s.record(ctx, req.UserID, result); err != nil {
			return models.IrrigationResult{}, err
		}
	}
	logger.Debug("irrigation check complete",
		zap.String("city", name),
		zap.String("outcome", string(outcome)),
		zap.Int("forecast_points", len(result.Forecast)),
		zap.Int("nearby", len(nearby)))
	return result, nil
}

// record appends the result to the user's history. Unknown users are skipped.
func (s *IrrigationService) record(ctx context.Context, userID string, result models.IrrigationResult) error {
	logger := observability.LoggerFromContext(ctx)
	if _, err := s.accounts.AccountByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
			logger.Warn("history not recorded: unknown user", zap.String("user_id", userID))
			return nil
		}
		observability.StoreErrorsTotal.WithLabelValues("account_by_id").Inc()
		return fmt.Errorf("%w: look up user: %w", ErrPersistence, err)
	}

	_, err := s.history.AddRecord(ctx, models.HistoryRecord{
		UserID:      userID,
		City:        result.City,
		Temperature: result.Temperature,
		Condition:   result.Condition,
		Advice:      result.Advice,
		Irrigate:    result.Irrigate,
	})
	if err != nil {
		observability.StoreErrorsTotal.WithLabelValues("add_record").Inc()
		logger.Error("history write failed", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("%w: add record: %w", ErrPersistence, err)
	}
	return nil
}
