package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/yycdata/crashweather/internal/geo"
	"github.com/yycdata/crashweather/internal/models"
)

// CollisionFilter narrows the collision set before listing, stats rollups or
// proximity search. The zero value matches everything.
type CollisionFilter struct {
	From           *time.Time
	To             *time.Time
	Quadrant       models.Quadrant
	WeatherDayCity models.WeatherDay
	FreezeDayCity  *bool
	PrecipAny      *bool
	SnowAny        *bool
	GustMin        *float64
	Station        string
}

// where renders the filter as a conjunction of predicates over the aliased
// collisions table c. Weather conditions resolve through the city_daily_weather
// date join; the gust threshold through the collision's nearest station's
// observation on the collision date.
func (f CollisionFilter) where() (string, []any) {
	conds := []string{"1=1"}
	var args []any

	if f.From != nil {
		conds = append(conds, "c.date >= ?")
		args = append(args, dateStr(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "c.date <= ?")
		args = append(args, dateStr(*f.To))
	}
	if f.Quadrant != "" {
		conds = append(conds, "c.quadrant = ?")
		args = append(args, string(f.Quadrant))
	}
	if f.WeatherDayCity.Known() {
		conds = append(conds, "c.date IN (SELECT date FROM city_daily_weather WHERE weather_day_city = ?)")
		args = append(args, string(f.WeatherDayCity))
	}
	if f.FreezeDayCity != nil {
		conds = append(conds, "c.date IN (SELECT date FROM city_daily_weather WHERE freeze_day_city = ?)")
		args = append(args, *f.FreezeDayCity)
	}
	if f.PrecipAny != nil {
		conds = append(conds, "c.date IN (SELECT date FROM city_daily_weather WHERE precip_any = ?)")
		args = append(args, *f.PrecipAny)
	}
	if f.SnowAny != nil {
		conds = append(conds, "c.date IN (SELECT date FROM city_daily_weather WHERE snow_any = ?)")
		args = append(args, *f.SnowAny)
	}
	if f.GustMin != nil {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM weather_observations o
			WHERE o.climate_id = c.nearest_station AND o.date = c.date AND o.gust_kmh >= ?
		)`)
		args = append(args, *f.GustMin)
	}
	if f.Station != "" {
		conds = append(conds, "c.nearest_station = ?")
		args = append(args, f.Station)
	}

	return strings.Join(conds, " AND "), args
}

const collisionColumns = `c.collision_id, c.occurred_at, c.modified_at, c.date, c.hour, c.weekday,
	c.month, c.quadrant, c.longitude, c.latitude, c.count, c.description,
	c.location_text, c.intersection_key, c.nearest_station`

func scanCollision(row interface{ Scan(...any) error }) (models.Collision, error) {
	var c models.Collision
	var date, quadrant string
	err := row.Scan(&c.CollisionID, &c.OccurredAt, &c.ModifiedAt, &date, &c.Hour, &c.Weekday,
		&c.Month, &quadrant, &c.Longitude, &c.Latitude, &c.Count, &c.Description,
		&c.LocationText, &c.IntersectionKey, &c.NearestStation)
	if err != nil {
		return c, err
	}
	c.Date, err = parseDate(date)
	if err != nil {
		return c, fmt.Errorf("parse collision date %q: %w", date, err)
	}
	c.Quadrant = models.Quadrant(quadrant)
	return c, nil
}

// UpsertCollision inserts or refreshes a collision by its external identifier
// and reports whether a new row was created. Re-running ingestion over the
// same source row overwrites source and derived fields without duplicating.
func (s *Store) UpsertCollision(c models.Collision) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM collisions WHERE collision_id = ?)`, c.CollisionID).Scan(&exists); err != nil {
		return false, err
	}

	if _, err := tx.Exec(`
		INSERT INTO collisions (collision_id, occurred_at, modified_at, date, hour, weekday,
			month, quadrant, longitude, latitude, count, description,
			location_text, intersection_key, nearest_station)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collision_id) DO UPDATE SET
			occurred_at = excluded.occurred_at,
			modified_at = excluded.modified_at,
			date = excluded.date,
			hour = excluded.hour,
			weekday = excluded.weekday,
			month = excluded.month,
			quadrant = excluded.quadrant,
			longitude = excluded.longitude,
			latitude = excluded.latitude,
			count = excluded.count,
			description = excluded.description,
			location_text = excluded.location_text,
			intersection_key = excluded.intersection_key,
			nearest_station = excluded.nearest_station
	`, c.CollisionID, c.OccurredAt, c.ModifiedAt, dateStr(c.Date), c.Hour, c.Weekday,
		c.Month, string(c.Quadrant), c.Longitude, c.Latitude, c.Count, c.Description,
		c.LocationText, c.IntersectionKey, c.NearestStation); err != nil {
		return false, err
	}

	return !exists, tx.Commit()
}

func (s *Store) GetCollision(collisionID string) (*models.Collision, error) {
	row := s.db.QueryRow(`SELECT `+collisionColumns+` FROM collisions c WHERE c.collision_id = ?`, collisionID)
	c, err := scanCollision(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCollisions returns filtered collisions newest-first.
func (s *Store) ListCollisions(f CollisionFilter, limit, offset int) ([]models.Collision, error) {
	where, args := f.where()
	args = append(args, limit, offset)
	rows, err := s.db.Query(`
		SELECT `+collisionColumns+`
		FROM collisions c
		WHERE `+where+`
		ORDER BY c.occurred_at DESC, c.collision_id
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collisions []models.Collision
	for rows.Next() {
		c, err := scanCollision(rows)
		if err != nil {
			return nil, err
		}
		collisions = append(collisions, c)
	}
	return collisions, rows.Err()
}

func (s *Store) CountCollisions(f CollisionFilter) (int, error) {
	where, args := f.where()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM collisions c WHERE `+where, args...).Scan(&n)
	return n, err
}

// CollisionsInBBox returns filtered collisions whose coordinates fall inside
// the box. Rows with NULL coordinates never match. The box is a coarse
// superset of the caller's search circle; exact distance filtering is the
// caller's job.
func (s *Store) CollisionsInBBox(f CollisionFilter, box geo.BBox) ([]models.Collision, error) {
	where, args := f.where()
	args = append(args, box.MinLon, box.MaxLon, box.MinLat, box.MaxLat)
	rows, err := s.db.Query(`
		SELECT `+collisionColumns+`
		FROM collisions c
		WHERE `+where+`
		  AND c.longitude IS NOT NULL AND c.latitude IS NOT NULL
		  AND c.longitude BETWEEN ? AND ?
		  AND c.latitude BETWEEN ? AND ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collisions []models.Collision
	for rows.Next() {
		c, err := scanCollision(rows)
		if err != nil {
			return nil, err
		}
		collisions = append(collisions, c)
	}
	return collisions, rows.Err()
}
