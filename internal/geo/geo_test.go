package geo

import (
	"math"
	"testing"

	"github.com/yycdata/crashweather/internal/models"
)

func TestDistanceKm_Symmetric(t *testing.T) {
	tests := []struct {
		name                   string
		lon1, lat1, lon2, lat2 float64
	}{
		{"downtown to nose hill", -114.06, 51.045, -114.11, 51.11},
		{"across the equator", 10.0, -5.0, -10.0, 5.0},
		{"date line", 179.5, 40.0, -179.5, 40.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ab := DistanceKm(tt.lon1, tt.lat1, tt.lon2, tt.lat2)
			ba := DistanceKm(tt.lon2, tt.lat2, tt.lon1, tt.lat1)
			if math.Abs(ab-ba) > 1e-9 {
				t.Errorf("distance not symmetric: %v vs %v", ab, ba)
			}
			if ab < 0 {
				t.Errorf("distance negative: %v", ab)
			}
		})
	}
}

func TestDistanceKm_Identity(t *testing.T) {
	d := DistanceKm(-114.06, 51.045, -114.06, 51.045)
	if d > 1e-9 {
		t.Errorf("DistanceKm(A, A) = %v, want ~0", d)
	}
}

func TestDistanceKm_KnownValue(t *testing.T) {
	// Downtown Calgary collision to a station ~3.4 km north.
	d := DistanceKm(-114.06, 51.05, -114.05, 51.08)
	if math.Abs(d-3.4083) > 0.001 {
		t.Errorf("DistanceKm = %v, want ~3.4083", d)
	}
}

func TestBoundingBox_ContainsRadius(t *testing.T) {
	lon, lat := -114.06, 51.045
	radius := 5.0
	box := BoundingBox(lon, lat, radius)

	// Sample points on the circle of the given radius in several bearings;
	// every one must land inside the box.
	for deg := 0; deg < 360; deg += 15 {
		bearing := float64(deg) * math.Pi / 180
		dLat := radius / EarthRadiusKm * math.Cos(bearing) * 180 / math.Pi
		dLon := radius / EarthRadiusKm * math.Sin(bearing) / math.Cos(lat*math.Pi/180) * 180 / math.Pi
		if !box.Contains(lon+dLon, lat+dLat) {
			t.Errorf("bearing %d: point (%v, %v) outside box %+v", deg, lon+dLon, lat+dLat, box)
		}
	}
}

func TestBoundingBox_NearPole(t *testing.T) {
	box := BoundingBox(0, 89.9, 50)
	if box.MaxLat != 90 {
		t.Errorf("MaxLat = %v, want clamped to 90", box.MaxLat)
	}
	if box.MinLon != -180 || box.MaxLon != 180 {
		t.Errorf("expected full longitude span at the pole, got [%v, %v]", box.MinLon, box.MaxLon)
	}
}

func TestValidCoords(t *testing.T) {
	tests := []struct {
		name     string
		lon, lat float64
		want     bool
	}{
		{"calgary", -114.06, 51.045, true},
		{"nan lon", math.NaN(), 51.045, false},
		{"nan lat", -114.06, math.NaN(), false},
		{"lon out of range", -200, 51, false},
		{"lat out of range", -114, 95, false},
		{"origin", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidCoords(tt.lon, tt.lat); got != tt.want {
				t.Errorf("ValidCoords(%v, %v) = %v, want %v", tt.lon, tt.lat, got, tt.want)
			}
		})
	}
}

func TestNearest(t *testing.T) {
	stations := []models.Station{
		{ClimateID: "3031092", Name: "Calgary Intl", Longitude: -114.01, Latitude: 51.11},
		{ClimateID: "3033890", Name: "Springbank", Longitude: -114.37, Latitude: 51.10},
		{ClimateID: "3030525", Name: "Heritage Park", Longitude: -114.09, Latitude: 51.00},
	}

	st, d, ok := Nearest(-114.06, 51.05, stations)
	if !ok {
		t.Fatal("Nearest returned no result for valid input")
	}
	if st.ClimateID != "3030525" {
		t.Errorf("nearest = %s, want 3030525", st.ClimateID)
	}
	// Result must be at least as close as every other candidate.
	for _, other := range stations {
		od := DistanceKm(-114.06, 51.05, other.Longitude, other.Latitude)
		if d > od+1e-9 {
			t.Errorf("station %s at %v km is closer than chosen %v km", other.ClimateID, od, d)
		}
	}
}

func TestNearest_SingleStationScenario(t *testing.T) {
	stations := []models.Station{
		{ClimateID: "3031092", Longitude: -114.05, Latitude: 51.08},
	}
	st, d, ok := Nearest(-114.06, 51.05, stations)
	if !ok {
		t.Fatal("expected a result")
	}
	if st.ClimateID != "3031092" {
		t.Errorf("nearest = %s, want 3031092", st.ClimateID)
	}
	if math.Abs(d-3.4083) > 0.001 {
		t.Errorf("distance = %v, want ~3.4083", d)
	}
}

func TestNearest_TieBreakByClimateID(t *testing.T) {
	// Two stations mirrored east/west of the point: identical distance.
	stations := []models.Station{
		{ClimateID: "B200", Longitude: -114.00, Latitude: 51.05},
		{ClimateID: "A100", Longitude: -114.12, Latitude: 51.05},
	}
	st, _, ok := Nearest(-114.06, 51.05, stations)
	if !ok {
		t.Fatal("expected a result")
	}
	if st.ClimateID != "A100" {
		t.Errorf("tie-break chose %s, want lexicographically smaller A100", st.ClimateID)
	}
}

func TestNearest_EmptyAndInvalid(t *testing.T) {
	if _, _, ok := Nearest(-114.06, 51.05, nil); ok {
		t.Error("expected no result for empty station set")
	}
	stations := []models.Station{{ClimateID: "X", Longitude: -114, Latitude: 51}}
	if _, _, ok := Nearest(math.NaN(), 51.05, stations); ok {
		t.Error("expected no result for NaN longitude")
	}
	if _, _, ok := Nearest(-300, 51.05, stations); ok {
		t.Error("expected no result for out-of-range longitude")
	}
}
