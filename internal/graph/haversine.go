package graph

import "math"

// earthRadiusM is the mean Earth radius in meters.
const earthRadiusM = 6371000

// HaversineMeters returns the great-circle distance between two points.
// It is the secondary, non-authoritative distance estimate used for graph
// fallback routes.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlon1 := lon1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	rlon2 := lon2 * math.Pi / 180

	dlat := rlat2 - rlat1
	dlon := rlon2 - rlon1

	a := math.Pow(math.Sin(dlat/2), 2) + math.Cos(rlat1)*math.Cos(rlat2)*math.Pow(math.Sin(dlon/2), 2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}
