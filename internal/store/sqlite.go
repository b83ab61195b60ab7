package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/yycdata/crashweather/internal/models"
)

const dateLayout = "2006-01-02"

// Store wraps the SQLite database. All calendar-date columns are stored as
// YYYY-MM-DD text in the regional time zone; loc is that zone.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(db *sql.DB, loc *time.Location) *Store {
	return &Store{db: db, loc: loc}
}

// Location returns the regional time zone the store was opened with.
func (s *Store) Location() *time.Location {
	return s.loc
}

func dateStr(t time.Time) string {
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// weatherDayParam maps the unknown classification to NULL for storage.
func weatherDayParam(w models.WeatherDay) sql.NullString {
	if !w.Known() {
		return sql.NullString{}
	}
	return sql.NullString{String: string(w), Valid: true}
}

// UpsertStation inserts or refreshes a station by climate ID and reports
// whether a new row was created. The existence check and the write share one
// transaction so concurrent re-ingestion of the same station cannot race into
// duplicates or miscounts.
func (s *Store) UpsertStation(st models.Station) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM weather_stations WHERE climate_id = ?)`, st.ClimateID).Scan(&exists); err != nil {
		return false, err
	}

	if _, err := tx.Exec(`
		INSERT INTO weather_stations (climate_id, name, longitude, latitude)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(climate_id) DO UPDATE SET
			name = excluded.name,
			longitude = excluded.longitude,
			latitude = excluded.latitude
	`, st.ClimateID, st.Name, st.Longitude, st.Latitude); err != nil {
		return false, err
	}

	return !exists, tx.Commit()
}

// GetStations returns the full station set, ordered by climate ID. Callers
// that resolve nearest stations take this once per batch as a snapshot.
func (s *Store) GetStations() ([]models.Station, error) {
	rows, err := s.db.Query(`SELECT climate_id, name, longitude, latitude FROM weather_stations ORDER BY climate_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.ClimateID, &st.Name, &st.Longitude, &st.Latitude); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

func (s *Store) GetStation(climateID string) (*models.Station, error) {
	row := s.db.QueryRow(`SELECT climate_id, name, longitude, latitude FROM weather_stations WHERE climate_id = ?`, climateID)
	var st models.Station
	err := row.Scan(&st.ClimateID, &st.Name, &st.Longitude, &st.Latitude)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// UpsertObservation inserts or refreshes the observation for its
// (station, date) pair and reports whether a new row was created.
func (s *Store) UpsertObservation(obs models.Observation) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM weather_observations WHERE climate_id = ? AND date = ?)`,
		obs.ClimateID, dateStr(obs.Date),
	).Scan(&exists); err != nil {
		return false, err
	}

	if _, err := tx.Exec(`
		INSERT INTO weather_observations (climate_id, date, t_max_c, t_min_c, t_mean_c,
			total_rain_mm, total_snow_cm, total_precip_mm, snow_on_grnd_cm,
			gust_dir_10deg, gust_kmh, weather_day, freeze_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(climate_id, date) DO UPDATE SET
			t_max_c = excluded.t_max_c,
			t_min_c = excluded.t_min_c,
			t_mean_c = excluded.t_mean_c,
			total_rain_mm = excluded.total_rain_mm,
			total_snow_cm = excluded.total_snow_cm,
			total_precip_mm = excluded.total_precip_mm,
			snow_on_grnd_cm = excluded.snow_on_grnd_cm,
			gust_dir_10deg = excluded.gust_dir_10deg,
			gust_kmh = excluded.gust_kmh,
			weather_day = excluded.weather_day,
			freeze_day = excluded.freeze_day
	`, obs.ClimateID, dateStr(obs.Date), obs.TMaxC, obs.TMinC, obs.TMeanC,
		obs.TotalRainMM, obs.TotalSnowCM, obs.TotalPrecipMM, obs.SnowOnGrndCM,
		obs.GustDir10Deg, obs.GustKMH, weatherDayParam(obs.WeatherDay), obs.FreezeDay); err != nil {
		return false, err
	}

	return !exists, tx.Commit()
}

func scanObservation(rows *sql.Rows) (models.Observation, error) {
	var obs models.Observation
	var date string
	var day sql.NullString
	err := rows.Scan(&obs.ID, &obs.ClimateID, &date, &obs.TMaxC, &obs.TMinC, &obs.TMeanC,
		&obs.TotalRainMM, &obs.TotalSnowCM, &obs.TotalPrecipMM, &obs.SnowOnGrndCM,
		&obs.GustDir10Deg, &obs.GustKMH, &day, &obs.FreezeDay)
	if err != nil {
		return obs, err
	}
	obs.Date, err = parseDate(date)
	if err != nil {
		return obs, fmt.Errorf("parse observation date %q: %w", date, err)
	}
	obs.WeatherDay = models.WeatherDay(day.String)
	return obs, nil
}

// GetObservationsForDate returns every station's observation for one date.
func (s *Store) GetObservationsForDate(date time.Time) ([]models.Observation, error) {
	rows, err := s.db.Query(`
		SELECT id, climate_id, date, t_max_c, t_min_c, t_mean_c,
		       total_rain_mm, total_snow_cm, total_precip_mm, snow_on_grnd_cm,
		       gust_dir_10deg, gust_kmh, weather_day, freeze_day
		FROM weather_observations
		WHERE date = ?
		ORDER BY climate_id
	`, dateStr(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// GetObservationDates returns the distinct dates with at least one
// observation, ascending.
func (s *Store) GetObservationDates() ([]time.Time, error) {
	rows, err := s.db.Query(`SELECT DISTINCT date FROM weather_observations ORDER BY date ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		date, err := parseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("parse observation date %q: %w", raw, err)
		}
		dates = append(dates, date)
	}
	return dates, rows.Err()
}

// UpsertCityDay replaces the city-wide aggregate for its date wholesale.
func (s *Store) UpsertCityDay(cd models.CityDay) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM city_daily_weather WHERE date = ?)`, dateStr(cd.Date)).Scan(&exists); err != nil {
		return false, err
	}

	if _, err := tx.Exec(`
		INSERT INTO city_daily_weather (date, weather_day_city, freeze_day_city,
			t_max_avg, t_min_avg, precip_any, snow_any, agreement_ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			weather_day_city = excluded.weather_day_city,
			freeze_day_city = excluded.freeze_day_city,
			t_max_avg = excluded.t_max_avg,
			t_min_avg = excluded.t_min_avg,
			precip_any = excluded.precip_any,
			snow_any = excluded.snow_any,
			agreement_ratio = excluded.agreement_ratio
	`, dateStr(cd.Date), weatherDayParam(cd.WeatherDayCity), cd.FreezeDayCity,
		cd.TMaxAvg, cd.TMinAvg, cd.PrecipAny, cd.SnowAny, cd.AgreementRatio); err != nil {
		return false, err
	}

	return !exists, tx.Commit()
}

func (s *Store) GetCityDay(date time.Time) (*models.CityDay, error) {
	row := s.db.QueryRow(`
		SELECT date, weather_day_city, freeze_day_city, t_max_avg, t_min_avg,
		       precip_any, snow_any, agreement_ratio
		FROM city_daily_weather
		WHERE date = ?
	`, dateStr(date))

	var cd models.CityDay
	var raw string
	var day sql.NullString
	err := row.Scan(&raw, &day, &cd.FreezeDayCity, &cd.TMaxAvg, &cd.TMinAvg,
		&cd.PrecipAny, &cd.SnowAny, &cd.AgreementRatio)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cd.Date, err = parseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("parse city date %q: %w", raw, err)
	}
	cd.WeatherDayCity = models.WeatherDay(day.String)
	return &cd, nil
}
