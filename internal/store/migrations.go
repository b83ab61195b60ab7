package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS weather_stations (
    climate_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    longitude REAL NOT NULL,
    latitude REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS weather_observations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    climate_id TEXT NOT NULL REFERENCES weather_stations(climate_id),
    date TEXT NOT NULL,
    t_max_c REAL,
    t_min_c REAL,
    t_mean_c REAL,
    total_rain_mm REAL,
    total_snow_cm REAL,
    total_precip_mm REAL,
    snow_on_grnd_cm REAL,
    gust_dir_10deg INTEGER,
    gust_kmh INTEGER,
    weather_day TEXT,
    freeze_day BOOLEAN,
    UNIQUE(climate_id, date)
);

CREATE TABLE IF NOT EXISTS city_daily_weather (
    date TEXT PRIMARY KEY,
    weather_day_city TEXT,
    freeze_day_city BOOLEAN,
    t_max_avg REAL,
    t_min_avg REAL,
    precip_any BOOLEAN,
    snow_any BOOLEAN,
    agreement_ratio REAL
);

CREATE TABLE IF NOT EXISTS collisions (
    collision_id TEXT PRIMARY KEY,
    occurred_at DATETIME NOT NULL,
    modified_at DATETIME,
    date TEXT NOT NULL,
    hour INTEGER NOT NULL,
    weekday INTEGER NOT NULL,
    month INTEGER NOT NULL,
    quadrant TEXT NOT NULL DEFAULT 'UNK',
    longitude REAL,
    latitude REAL,
    count INTEGER NOT NULL DEFAULT 1,
    description TEXT NOT NULL DEFAULT '',
    location_text TEXT NOT NULL DEFAULT '',
    intersection_key TEXT NOT NULL DEFAULT '',
    nearest_station TEXT REFERENCES weather_stations(climate_id)
);

CREATE INDEX IF NOT EXISTS idx_obs_date ON weather_observations(date);
CREATE INDEX IF NOT EXISTS idx_obs_station_date ON weather_observations(climate_id, date);
CREATE INDEX IF NOT EXISTS idx_collisions_date_quadrant ON collisions(date, quadrant);
CREATE INDEX IF NOT EXISTS idx_collisions_occurred ON collisions(occurred_at);
CREATE INDEX IF NOT EXISTS idx_collisions_station ON collisions(nearest_station);
CREATE INDEX IF NOT EXISTS idx_collisions_lonlat ON collisions(longitude, latitude);
`,
	},
	{
		Version:     2,
		Description: "Add flags table for collision annotations",
		SQL: `
CREATE TABLE IF NOT EXISTS flags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    collision_id TEXT NOT NULL REFERENCES collisions(collision_id),
    note TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_flags_collision ON flags(collision_id);
`,
	},
	{
		Version:     3,
		Description: "Add indexes backing weather and intersection filters",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_obs_weather_day ON weather_observations(weather_day);
CREATE INDEX IF NOT EXISTS idx_obs_freeze_day ON weather_observations(freeze_day);
CREATE INDEX IF NOT EXISTS idx_collisions_intersection ON collisions(intersection_key);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
