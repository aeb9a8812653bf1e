// Package geo is the geodesy collaborator: great-circle distance between
// two coordinates and the registered-location proximity verdict.
package geo

import (
	"fmt"
	"math"

	"proxpay/internal/domain"
)

// earthRadiusMiles is the mean Earth radius used for the haversine formula.
const earthRadiusMiles = 3958.7613

// Service computes distances and proximity verdicts. The maximum distance
// bounds only the synchronous registered-location check; the realtime proof
// path applies its own decision policy.
type Service struct {
	maxDistanceMiles float64
}

func NewService(maxDistanceMiles float64) *Service {
	return &Service{maxDistanceMiles: maxDistanceMiles}
}

// Miles returns the great-circle distance between two points in miles.
func (s *Service) Miles(a, b domain.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMiles * c
}

// Check validates that a transaction location is within the configured
// range of the registered phone location.
func (s *Service) Check(phoneLocation, transactionLocation domain.Location) domain.ProximityCheck {
	distance := s.Miles(phoneLocation, transactionLocation)
	rounded := math.Round(distance*1e6) / 1e6

	if distance <= s.maxDistanceMiles {
		return domain.ProximityCheck{
			Valid:         true,
			DistanceMiles: rounded,
			Reason:        fmt.Sprintf("Transaction within %g miles", s.maxDistanceMiles),
		}
	}

	return domain.ProximityCheck{
		Valid:         false,
		DistanceMiles: rounded,
		Reason:        fmt.Sprintf("Transaction %g miles away (max: %g)", rounded, s.maxDistanceMiles),
	}
}
