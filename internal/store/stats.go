package store

import (
	"github.com/yycdata/crashweather/internal/models"
)

type MonthTotal struct {
	Month int `json:"month"`
	Total int `json:"total"`
}

type HourTotal struct {
	Hour  int `json:"hour"`
	Total int `json:"total"`
}

type WeekdayTotal struct {
	Weekday int `json:"weekday"`
	Total   int `json:"total"`
}

type QuadrantTotal struct {
	Quadrant models.Quadrant `json:"quadrant"`
	Total    int             `json:"total"`
}

type IntersectionTotal struct {
	IntersectionKey string `json:"intersection_key"`
	LocationText    string `json:"location_text"`
	Total           int    `json:"total"`
	Collisions      int    `json:"collisions"`
}

type WeatherDayTotal struct {
	WeatherDay models.WeatherDay `json:"weather_day"`
	Total      int               `json:"total"`
}

// MonthlyTrend sums incident counts per calendar month over the filtered set.
// Every month 1..12 is present in the result.
func (s *Store) MonthlyTrend(f CollisionFilter) ([]MonthTotal, error) {
	where, args := f.where()
	rows, err := s.db.Query(`
		SELECT c.month, SUM(c.count)
		FROM collisions c
		WHERE `+where+`
		GROUP BY c.month
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byMonth := make(map[int]int)
	for rows.Next() {
		var month, total int
		if err := rows.Scan(&month, &total); err != nil {
			return nil, err
		}
		byMonth[month] = total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]MonthTotal, 0, 12)
	for m := 1; m <= 12; m++ {
		out = append(out, MonthTotal{Month: m, Total: byMonth[m]})
	}
	return out, nil
}

// TotalsByHour sums incident counts per hour of day. commute narrows to the
// AM (7-9) or PM (16-18) window; any other value means all hours.
func (s *Store) TotalsByHour(f CollisionFilter, commute string) ([]HourTotal, error) {
	where, args := f.where()

	var hourCond string
	switch commute {
	case "am":
		hourCond = " AND c.hour IN (7, 8, 9)"
	case "pm":
		hourCond = " AND c.hour IN (16, 17, 18)"
	}

	rows, err := s.db.Query(`
		SELECT c.hour, SUM(c.count)
		FROM collisions c
		WHERE `+where+hourCond+`
		GROUP BY c.hour
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byHour := make(map[int]int)
	for rows.Next() {
		var hour, total int
		if err := rows.Scan(&hour, &total); err != nil {
			return nil, err
		}
		byHour[hour] = total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]HourTotal, 0, 24)
	for h := 0; h < 24; h++ {
		out = append(out, HourTotal{Hour: h, Total: byHour[h]})
	}
	return out, nil
}

// TotalsByWeekday sums incident counts per weekday, Monday=0 through Sunday=6.
func (s *Store) TotalsByWeekday(f CollisionFilter) ([]WeekdayTotal, error) {
	where, args := f.where()
	rows, err := s.db.Query(`
		SELECT c.weekday, SUM(c.count)
		FROM collisions c
		WHERE `+where+`
		GROUP BY c.weekday
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDay := make(map[int]int)
	for rows.Next() {
		var day, total int
		if err := rows.Scan(&day, &total); err != nil {
			return nil, err
		}
		byDay[day] = total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]WeekdayTotal, 0, 7)
	for d := 0; d < 7; d++ {
		out = append(out, WeekdayTotal{Weekday: d, Total: byDay[d]})
	}
	return out, nil
}

// QuadrantShare sums incident counts per quadrant; all five quadrant values
// are present in the result.
func (s *Store) QuadrantShare(f CollisionFilter) ([]QuadrantTotal, error) {
	where, args := f.where()
	rows, err := s.db.Query(`
		SELECT c.quadrant, SUM(c.count)
		FROM collisions c
		WHERE `+where+`
		GROUP BY c.quadrant
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byQuadrant := make(map[models.Quadrant]int)
	for rows.Next() {
		var quadrant string
		var total int
		if err := rows.Scan(&quadrant, &total); err != nil {
			return nil, err
		}
		byQuadrant[models.Quadrant(quadrant)] = total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	order := []models.Quadrant{models.QuadrantNE, models.QuadrantNW, models.QuadrantSE, models.QuadrantSW, models.QuadrantUnknown}
	out := make([]QuadrantTotal, 0, len(order))
	for _, q := range order {
		out = append(out, QuadrantTotal{Quadrant: q, Total: byQuadrant[q]})
	}
	return out, nil
}

// TopIntersections ranks intersection keys by summed incident count.
func (s *Store) TopIntersections(f CollisionFilter, limit int) ([]IntersectionTotal, error) {
	where, args := f.where()
	args = append(args, limit)
	rows, err := s.db.Query(`
		SELECT c.intersection_key, MAX(c.location_text), SUM(c.count), COUNT(c.collision_id)
		FROM collisions c
		WHERE `+where+` AND c.intersection_key != ''
		GROUP BY c.intersection_key
		ORDER BY SUM(c.count) DESC, c.intersection_key
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IntersectionTotal
	for rows.Next() {
		var it IntersectionTotal
		if err := rows.Scan(&it.IntersectionKey, &it.LocationText, &it.Total, &it.Collisions); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// TotalsByCityWeather sums incident counts grouped by the city weather day of
// the collision date. Dates with no city aggregate contribute to none of the
// buckets.
func (s *Store) TotalsByCityWeather(f CollisionFilter) ([]WeatherDayTotal, error) {
	where, args := f.where()
	rows, err := s.db.Query(`
		SELECT w.weather_day_city, SUM(c.count)
		FROM collisions c
		JOIN city_daily_weather w ON w.date = c.date
		WHERE `+where+` AND w.weather_day_city IS NOT NULL
		GROUP BY w.weather_day_city
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDay := make(map[models.WeatherDay]int)
	for rows.Next() {
		var day string
		var total int
		if err := rows.Scan(&day, &total); err != nil {
			return nil, err
		}
		byDay[models.WeatherDay(day)] = total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	order := []models.WeatherDay{models.WeatherDayDry, models.WeatherDayWet, models.WeatherDaySnowy}
	out := make([]WeatherDayTotal, 0, len(order))
	for _, d := range order {
		out = append(out, WeatherDayTotal{WeatherDay: d, Total: byDay[d]})
	}
	return out, nil
}
