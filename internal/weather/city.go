package weather

import (
	"database/sql"
	"time"

	"github.com/yycdata/crashweather/internal/models"
)

// severityOrder walks categories most-severe first so a tied vote count keeps
// the more severe category.
var severityOrder = []models.WeatherDay{
	models.WeatherDaySnowy,
	models.WeatherDayWet,
	models.WeatherDayDry,
}

// BuildCityDay aggregates one date's station observations into a single
// city-wide row. Majority vote decides the city weather day, ties resolving
// Snowy > Wet > Dry; stations without a classification sit out the vote.
// Freeze is likewise a majority among stations that report it, with ties
// falling to freeze. Temperature averages cover known values only.
func BuildCityDay(date time.Time, obs []models.Observation) models.CityDay {
	city := models.CityDay{Date: date}

	votes := make(map[models.WeatherDay]int)
	known := 0
	var tmaxSum, tminSum float64
	var tmaxN, tminN int
	var precipSeen, snowSeen bool
	var precipAny, snowAny bool
	freezeTrue, freezeKnown := 0, 0

	for _, o := range obs {
		if o.WeatherDay.Known() {
			votes[o.WeatherDay]++
			known++
		}
		if o.TMaxC.Valid {
			tmaxSum += o.TMaxC.Float64
			tmaxN++
		}
		if o.TMinC.Valid {
			tminSum += o.TMinC.Float64
			tminN++
		}
		if o.TotalPrecipMM.Valid {
			precipSeen = true
			if o.TotalPrecipMM.Float64 > 0 {
				precipAny = true
			}
		}
		if o.TotalSnowCM.Valid {
			snowSeen = true
			if o.TotalSnowCM.Float64 > 0 {
				snowAny = true
			}
		}
		if o.FreezeDay.Valid {
			freezeKnown++
			if o.FreezeDay.Bool {
				freezeTrue++
			}
		}
	}

	winner := models.WeatherDayUnknown
	best := 0
	for _, day := range severityOrder {
		if n := votes[day]; n > best {
			winner = day
			best = n
		}
	}
	city.WeatherDayCity = winner

	if known > 0 {
		city.AgreementRatio = sql.NullFloat64{Float64: float64(votes[winner]) / float64(known), Valid: true}
	} else {
		city.AgreementRatio = sql.NullFloat64{Float64: 0, Valid: true}
	}

	if freezeKnown > 0 {
		// Ties fall to freeze as the safety-biased call.
		city.FreezeDayCity = sql.NullBool{Bool: 2*freezeTrue >= freezeKnown, Valid: true}
	}

	if tmaxN > 0 {
		city.TMaxAvg = sql.NullFloat64{Float64: tmaxSum / float64(tmaxN), Valid: true}
	}
	if tminN > 0 {
		city.TMinAvg = sql.NullFloat64{Float64: tminSum / float64(tminN), Valid: true}
	}
	if precipSeen {
		city.PrecipAny = sql.NullBool{Bool: precipAny, Valid: true}
	}
	if snowSeen {
		city.SnowAny = sql.NullBool{Bool: snowAny, Valid: true}
	}

	return city
}
