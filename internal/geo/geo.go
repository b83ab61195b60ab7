package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for all great-circle math.
const EarthRadiusKm = 6371.0

// DistanceKm returns the haversine great-circle distance in kilometers
// between two (longitude, latitude) points in decimal degrees.
func DistanceKm(lon1, lat1, lon2, lat2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Asin(math.Min(1, math.Sqrt(a)))
	return EarthRadiusKm * c
}

// BBox is a longitude/latitude rectangle.
type BBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Contains reports whether the point lies inside the box, edges inclusive.
func (b BBox) Contains(lon, lat float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// BoundingBox returns a rectangle guaranteed to contain every point within
// radiusKm of the center. Longitude width is computed at the latitude of the
// box edge closest to the nearest pole, so the box over-approximates rather
// than clipping the circle at high latitudes. If the box reaches a pole the
// longitude span degenerates to the full [-180, 180].
func BoundingBox(lon, lat, radiusKm float64) BBox {
	latDelta := radiusKm / EarthRadiusKm * 180 / math.Pi

	minLat := math.Max(lat-latDelta, -90)
	maxLat := math.Min(lat+latDelta, 90)

	// Widest parallel the circle can touch.
	edgeLat := math.Max(math.Abs(minLat), math.Abs(maxLat))
	cos := math.Cos(edgeLat * math.Pi / 180)
	if minLat <= -90 || maxLat >= 90 || cos <= 1e-12 {
		return BBox{MinLon: -180, MinLat: minLat, MaxLon: 180, MaxLat: maxLat}
	}

	lonDelta := latDelta / cos
	if lonDelta >= 180 {
		return BBox{MinLon: -180, MinLat: minLat, MaxLon: 180, MaxLat: maxLat}
	}
	return BBox{
		MinLon: lon - lonDelta,
		MinLat: minLat,
		MaxLon: lon + lonDelta,
		MaxLat: maxLat,
	}
}

// ValidCoords reports whether the pair is a finite, in-range lon/lat.
func ValidCoords(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}
