package models

import (
	"database/sql"
	"strings"
	"time"
)

// Quadrant is one of Calgary's four geographic quadrants, or UNK when the
// source row carries anything unrecognized.
type Quadrant string

const (
	QuadrantNE      Quadrant = "NE"
	QuadrantNW      Quadrant = "NW"
	QuadrantSE      Quadrant = "SE"
	QuadrantSW      Quadrant = "SW"
	QuadrantUnknown Quadrant = "UNK"
)

// NormalizeQuadrant maps raw quadrant text to the closed enum. Unrecognized
// values become UNK rather than rejecting the row.
func NormalizeQuadrant(raw string) Quadrant {
	switch Quadrant(strings.ToUpper(strings.TrimSpace(raw))) {
	case QuadrantNE:
		return QuadrantNE
	case QuadrantNW:
		return QuadrantNW
	case QuadrantSE:
		return QuadrantSE
	case QuadrantSW:
		return QuadrantSW
	default:
		return QuadrantUnknown
	}
}

// WeatherDay classifies a day's precipitation for one station or city-wide.
// The zero value means the day could not be classified.
type WeatherDay string

const (
	WeatherDayUnknown WeatherDay = ""
	WeatherDayDry     WeatherDay = "DRY"
	WeatherDayWet     WeatherDay = "WET"
	WeatherDaySnowy   WeatherDay = "SNY"
)

// Known reports whether the day has a classification.
func (w WeatherDay) Known() bool {
	return w != WeatherDayUnknown
}

type Station struct {
	ClimateID string
	Name      string
	Longitude float64
	Latitude  float64
}

type Observation struct {
	ID            int64
	ClimateID     string
	Date          time.Time
	TMaxC         sql.NullFloat64
	TMinC         sql.NullFloat64
	TMeanC        sql.NullFloat64
	TotalRainMM   sql.NullFloat64
	TotalSnowCM   sql.NullFloat64
	TotalPrecipMM sql.NullFloat64
	SnowOnGrndCM  sql.NullFloat64
	GustDir10Deg  sql.NullInt64
	GustKMH       sql.NullInt64
	WeatherDay    WeatherDay
	FreezeDay     sql.NullBool
}

type CityDay struct {
	Date           time.Time
	WeatherDayCity WeatherDay
	FreezeDayCity  sql.NullBool
	TMaxAvg        sql.NullFloat64
	TMinAvg        sql.NullFloat64
	PrecipAny      sql.NullBool
	SnowAny        sql.NullBool
	AgreementRatio sql.NullFloat64
}

type Collision struct {
	CollisionID     string
	OccurredAt      time.Time
	ModifiedAt      sql.NullTime
	Date            time.Time
	Hour            int
	Weekday         int // Monday=0 .. Sunday=6
	Month           int
	Quadrant        Quadrant
	Longitude       sql.NullFloat64
	Latitude        sql.NullFloat64
	Count           int
	Description     string
	LocationText    string
	IntersectionKey string
	NearestStation  sql.NullString // climate ID, NULL when unresolvable
}

type Flag struct {
	ID          int64
	CollisionID string
	Note        string
	CreatedAt   time.Time
}
