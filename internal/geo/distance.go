package geo

import "math"

// earthRadiusKm is the mean earth radius in kilometers.
const earthRadiusKm = 6371.0088

// DistanceKm computes the great-circle distance in kilometers between
// two coordinates using the haversine formula. The spherical
// approximation is accurate to within ~0.5% of geodesic distance,
// which is sufficient for nearby-user ranking.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return earthRadiusKm * c
}

// RoundKm rounds a distance to two decimal places for output.
func RoundKm(d float64) float64 {
	return math.Round(d*100) / 100
}
