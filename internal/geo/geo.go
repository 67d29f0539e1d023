package geo

import (
	"math"
	"time"
)

// EarthRadius is the mean Earth radius in meters
const EarthRadius = 6371000.0

// Position is one recorded GPS sample
type Position struct {
	Lat  float64
	Lon  float64
	Time time.Time
}

// Distance returns the great-circle distance between two positions in meters
func Distance(a, b Position) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Haversine calculates 2D distance between two coordinates in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLatRad := (lat2 - lat1) * math.Pi / 180
	deltaLonRad := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLatRad/2)*math.Sin(deltaLatRad/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLonRad/2)*math.Sin(deltaLonRad/2)

	// rounding can push a marginally above 1 for antipodal points
	a = min(max(a, 0), 1)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// SpeedKmh converts meters over seconds to km/h. Zero seconds yields 0.
func SpeedKmh(meters, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return meters / seconds * 3.6
}
