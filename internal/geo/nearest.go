package geo

import (
	"github.com/yycdata/crashweather/internal/models"
)

// distanceTolerance treats two stations as equidistant, in km.
const distanceTolerance = 1e-9

// Nearest scans the station snapshot and returns the closest station to the
// point along with its distance in km. Equidistant stations resolve to the
// lexicographically smaller climate ID so repeated runs assign the same
// station. Returns ok=false when the snapshot is empty or the point is
// invalid.
func Nearest(lon, lat float64, stations []models.Station) (models.Station, float64, bool) {
	if len(stations) == 0 || !ValidCoords(lon, lat) {
		return models.Station{}, 0, false
	}

	best := stations[0]
	bestD := DistanceKm(lon, lat, best.Longitude, best.Latitude)
	for _, st := range stations[1:] {
		d := DistanceKm(lon, lat, st.Longitude, st.Latitude)
		switch {
		case d < bestD-distanceTolerance:
			best, bestD = st, d
		case d <= bestD+distanceTolerance && st.ClimateID < best.ClimateID:
			best, bestD = st, d
		}
	}
	return best, bestD, true
}
