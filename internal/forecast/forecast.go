// Package forecast reshapes the provider's multi-point forecast feed into ForecastPoints.
package forecast

import (
	"math"
	"time"

	"github.com/kjstillabower/irrigation-advisor/internal/models"
)

const (
	// OvercastCloudPct is the cloud cover above which a zero rain chance is replaced.
	OvercastCloudPct = 90
	// OvercastRainPct is the rain chance reported for overcast points the provider marks as dry.
	OvercastRainPct = 15

	timeLayout = "3 PM"
	dateLayout = "Mon, Jan 2"
)

// Normalize maps raw points to ForecastPoints, preserving order and count.
// Times and dates are rendered in loc; a nil loc means UTC.
func Normalize(raw []models.RawForecastPoint, loc *time.Location) []models.ForecastPoint {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]models.ForecastPoint, 0, len(raw))
	for _, p := range raw {
		out = append(out, normalizePoint(p, loc))
	}
	return out
}

// Zone returns a fixed zone for a provider UTC offset given in seconds.
func Zone(offsetSeconds int) *time.Location {
	if offsetSeconds == 0 {
		return time.UTC
	}
	return time.FixedZone("", offsetSeconds)
}

func normalizePoint(p models.RawForecastPoint, loc *time.Location) models.ForecastPoint {
	ts := time.Unix(p.Epoch, 0).In(loc)
	fp := models.ForecastPoint{
		Epoch:     p.Epoch,
		LocalTime: ts.Format(timeLayout),
		LocalDate: ts.Format(dateLayout),
		TempC:     RoundHalfUp(p.TempC),
		Humidity:  p.Humidity,
		RainPct:   RainChance(p.PrecipProbability, p.CloudCoverPct),
	}
	if len(p.Weather) > 0 {
		fp.IconCode = p.Weather[0].Icon
		fp.Condition = p.Weather[0].Main
		fp.Description = p.Weather[0].Description
	}
	return fp
}

// RainChance converts a 0..1 precipitation probability to a percentage in [0,100].
// A zero chance under more than 90% cloud cover is reported as 15%.
func RainChance(pop *float64, cloudPct int) int {
	pct := 0
	if pop != nil {
		pct = RoundHalfUp(*pop * 100)
	}
	if pct == 0 && cloudPct > OvercastCloudPct {
		pct = OvercastRainPct
	}
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// RoundHalfUp rounds to the nearest integer with halves going toward +Inf (-2.5 → -2).
func RoundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
