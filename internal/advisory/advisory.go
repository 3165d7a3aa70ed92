// Package advisory turns current weather conditions into an irrigation recommendation.
package advisory

import (
	"strings"

	"github.com/kjstillabower/irrigation-advisor/internal/models"
)

const (
	// HumidityThresholdPct is the humidity above which soil is treated as wet.
	HumidityThresholdPct = 80
	// HeatThresholdC is the temperature above which heavy irrigation is advised.
	HeatThresholdC = 30.0
)

// Outcome labels which rule produced an advisory. Used as a metric label.
type Outcome string

const (
	OutcomeRain     Outcome = "rain"
	OutcomeHumid    Outcome = "humid"
	OutcomeHeat     Outcome = "heat"
	OutcomeStandard Outcome = "standard"
)

// Derive applies the rule table to a reading. Rules are checked in order and the first
// match wins, so a rainy reading is never classified by humidity or temperature.
func Derive(r models.WeatherReading) models.Advisory {
	a, _ := DeriveWithOutcome(r)
	return a
}

// DeriveWithOutcome is Derive plus the label of the matching rule.
func DeriveWithOutcome(r models.WeatherReading) (models.Advisory, Outcome) {
	switch {
	case isRaining(r.Condition):
		return models.Advisory{
			Message:        "It's raining! No need to irrigate.",
			ShouldIrrigate: false,
			Suggestions:    []string{"Clear drainage channels.", "Pause fertilizer application."},
		}, OutcomeRain
	case r.HumidityPct > HumidityThresholdPct:
		return models.Advisory{
			Message:        "High humidity. Soil is wet.",
			ShouldIrrigate: false,
			Suggestions:    []string{"Watch for fungal diseases.", "Ensure good plant ventilation."},
		}, OutcomeHumid
	case r.TemperatureC > HeatThresholdC:
		return models.Advisory{
			Message:        "High heat! Irrigate heavily.",
			ShouldIrrigate: true,
			Suggestions:    []string{"Apply mulch to soil.", "Water early morning."},
		}, OutcomeHeat
	default:
		return models.Advisory{
			Message:        "Standard irrigation recommended.",
			ShouldIrrigate: true,
			Suggestions:    []string{"Check soil moisture depth.", "Weed control recommended."},
		}, OutcomeStandard
	}
}

// isRaining matches the provider label case-sensitively ("Rain", "Drizzle").
func isRaining(condition string) bool {
	return strings.Contains(condition, "Rain") || strings.Contains(condition, "Drizzle")
}
