package graph

import "math"

// EarthRadius is the mean earth radius in meters.
const EarthRadius = 6371009.0

// Geodesic returns the great-circle distance in meters between two
// coordinates given in degrees (haversine form).
func Geodesic(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// rounding can push h marginally past 1 for antipodal points
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}
