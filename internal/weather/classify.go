package weather

import (
	"database/sql"

	"github.com/yycdata/crashweather/internal/models"
)

// WetThresholdMM is the minimum daily precipitation, in mm, that makes a
// station day Wet.
const WetThresholdMM = 0.2

// ClassifyWeatherDay derives a station's daily weather category from its
// normalized snow (cm) and total precipitation (mm). Snow trumps rain; a day
// is Dry only when both measurements are present and zero. Anything short of
// that is unknown, never defaulted to Dry.
func ClassifyWeatherDay(precip, snow sql.NullFloat64) models.WeatherDay {
	switch {
	case snow.Valid && snow.Float64 > 0:
		return models.WeatherDaySnowy
	case precip.Valid && precip.Float64 >= WetThresholdMM:
		return models.WeatherDayWet
	case precip.Valid && precip.Float64 == 0 && snow.Valid && snow.Float64 == 0:
		return models.WeatherDayDry
	default:
		return models.WeatherDayUnknown
	}
}

// ClassifyFreezeDay reports whether the daily minimum dipped below 0°C.
// Null in, null out.
func ClassifyFreezeDay(tmin sql.NullFloat64) sql.NullBool {
	if !tmin.Valid {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: tmin.Float64 < 0, Valid: true}
}
