package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/kjstillabower/irrigation-advisor/internal/models"
	"github.com/kjstillabower/irrigation-advisor/internal/observability"
)

// NearbyCount is how many sites are requested around the resolved location.
const NearbyCount = 6

// nearby fetches sites around coord and drops the origin. Failure yields an empty list.
func (s *IrrigationService) nearby(ctx context.Context, coord models.Coordinates, originNames ...string) []models.NearbySite {
	sites, err := s.weather.Nearby(ctx, coord, NearbyCount)
	if err != nil {
		observability.PartialFailuresTotal.WithLabelValues("nearby").Inc()
		observability.LoggerFromContext(ctx).Warn("nearby sites unavailable", zap.Error(err))
		return []models.NearbySite{}
	}
	return ExcludeOrigin(sites, originNames...)
}

// ExcludeOrigin drops every site whose name equals one of names. Empty names are ignored.
// The result is never nil.
func ExcludeOrigin(sites []models.NearbySite, names ...string) []models.NearbySite {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			drop[n] = struct{}{}
		}
	}
	out := make([]models.NearbySite, 0, len(sites))
	for _, site := range sites {
		if _, ok := drop[site.Name]; ok {
			continue
		}
		out = append(out, site)
	}
	return out
}
