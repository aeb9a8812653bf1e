package geo

import (
	"testing"

	"proxpay/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestMiles_SamePoint(t *testing.T) {
	s := NewService(0.25)
	p := domain.Location{Lat: 42.3770, Lon: -71.1167}

	assert.Equal(t, 0.0, s.Miles(p, p))
}

func TestMiles_KnownDistance(t *testing.T) {
	s := NewService(0.25)

	// Harvard Square to Boston Common is roughly 3.3 miles.
	harvard := domain.Location{Lat: 42.3736, Lon: -71.1190}
	common := domain.Location{Lat: 42.3550, Lon: -71.0656}

	d := s.Miles(harvard, common)
	assert.InDelta(t, 3.3, d, 0.3)
}

func TestMiles_Symmetric(t *testing.T) {
	s := NewService(0.25)
	a := domain.Location{Lat: 42.3770, Lon: -71.1167}
	b := domain.Location{Lat: 37.7749, Lon: -122.4194}

	assert.InDelta(t, s.Miles(a, b), s.Miles(b, a), 1e-9)
}

func TestCheck_WithinRange(t *testing.T) {
	s := NewService(0.25)
	p := domain.Location{Lat: 42.3770, Lon: -71.1167}

	check := s.Check(p, p)

	assert.True(t, check.Valid)
	assert.Equal(t, 0.0, check.DistanceMiles)
	assert.Contains(t, check.Reason, "within")
}

func TestCheck_OutOfRange(t *testing.T) {
	s := NewService(0.25)
	boston := domain.Location{Lat: 42.3770, Lon: -71.1167}
	sf := domain.Location{Lat: 37.7749, Lon: -122.4194}

	check := s.Check(boston, sf)

	assert.False(t, check.Valid)
	assert.Greater(t, check.DistanceMiles, 2000.0)
	assert.Contains(t, check.Reason, "miles away")
}
