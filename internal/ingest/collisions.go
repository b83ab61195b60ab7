package ingest

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yycdata/crashweather/internal/geo"
	"github.com/yycdata/crashweather/internal/metrics"
	"github.com/yycdata/crashweather/internal/models"
	"github.com/yycdata/crashweather/internal/store"
	"github.com/yycdata/crashweather/internal/weather"
)

// CollisionFilePattern matches City of Calgary traffic incident exports.
const CollisionFilePattern = "Traffic_Incidents_*.csv"

// Timestamp layouts seen across export vintages, oldest first.
var startDTLayouts = []string{
	"2006/01/02 3:04:05 PM",
	"2006-01-02 15:04:05",
}

// CollisionReport summarizes one collision ingestion run.
type CollisionReport struct {
	Created       int
	Updated       int
	InvalidCoords int
	OutOfBounds   int
	Skipped       map[string]int
}

// CollisionLoader bulk-loads traffic incident CSV files and resolves each
// row's nearest weather station against a snapshot taken at batch start.
type CollisionLoader struct {
	store  *store.Store
	bounds geo.BBox
}

func NewCollisionLoader(st *store.Store, bounds geo.BBox) *CollisionLoader {
	return &CollisionLoader{store: st, bounds: bounds}
}

// LoadDir loads every incident CSV in dir matching CollisionFilePattern.
func (l *CollisionLoader) LoadDir(dir string) (CollisionReport, error) {
	report := CollisionReport{Skipped: make(map[string]int)}

	paths, err := filepath.Glob(filepath.Join(dir, CollisionFilePattern))
	if err != nil {
		return report, err
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		log.Printf("collisions: no files matching %s in %s", CollisionFilePattern, dir)
		return report, nil
	}

	stations, err := l.store.GetStations()
	if err != nil {
		return report, fmt.Errorf("load stations: %w", err)
	}
	if len(stations) == 0 {
		log.Printf("collisions: no weather stations loaded, nearest_station will be null")
	}

	for _, path := range paths {
		if err := l.loadFile(path, stations, &report); err != nil {
			return report, fmt.Errorf("load %s: %w", path, err)
		}
	}

	log.Printf("collisions: created=%d updated=%d invalid_coords=%d out_of_bounds=%d skipped=%v",
		report.Created, report.Updated, report.InvalidCoords, report.OutOfBounds, report.Skipped)
	return report, nil
}

func (l *CollisionLoader) loadFile(path string, stations []models.Station, report *CollisionReport) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	h := indexHeader(header)

	skip := func(reason string) {
		report.Skipped[reason]++
		metrics.RowsSkipped.WithLabelValues("collisions", reason).Inc()
	}

	loc := l.store.Location()

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("collisions: %s: unreadable row skipped: %v", filepath.Base(path), err)
			skip("bad_row")
			continue
		}

		// "id" must match exactly so it never resolves to "INCIDENT INFO".
		id := strings.TrimSpace(h.exact(record, "id"))
		if id == "" {
			skip("no_id")
			continue
		}

		occurredAt, ok := parseStartDT(h.get(record, "START_DT"), loc)
		if !ok {
			skip("bad_start_dt")
			continue
		}

		c := models.Collision{
			CollisionID:  id,
			OccurredAt:   occurredAt,
			Date:         occurredAt,
			Hour:         occurredAt.Hour(),
			Weekday:      (int(occurredAt.Weekday()) + 6) % 7,
			Month:        int(occurredAt.Month()),
			Quadrant:     models.NormalizeQuadrant(h.get(record, "QUADRANT")),
			Count:        1,
			Description:  strings.TrimSpace(h.get(record, "DESCRIPTION")),
			LocationText: strings.TrimSpace(h.get(record, "INCIDENT INFO")),
		}
		c.IntersectionKey = IntersectionKey(c.LocationText)

		if modified, ok := parseStartDT(h.get(record, "MODIFIED_DT"), loc); ok {
			c.ModifiedAt = sql.NullTime{Time: modified, Valid: true}
		}
		if n, err := strconv.Atoi(strings.TrimSpace(h.exact(record, "Count"))); err == nil && n > 0 {
			c.Count = n
		}

		lon := weather.ParseMeasurement(h.get(record, "Longitude"))
		lat := weather.ParseMeasurement(h.get(record, "Latitude"))
		switch {
		case !lon.Valid || !lat.Valid || !geo.ValidCoords(lon.Float64, lat.Float64):
			// Row is kept, location is not.
			report.InvalidCoords++
		case !l.bounds.Contains(lon.Float64, lat.Float64):
			report.OutOfBounds++
		default:
			c.Longitude = lon
			c.Latitude = lat
			if st, _, ok := geo.Nearest(lon.Float64, lat.Float64, stations); ok {
				c.NearestStation = sql.NullString{String: st.ClimateID, Valid: true}
			}
		}

		created, err := l.store.UpsertCollision(c)
		if err != nil {
			return fmt.Errorf("upsert collision %s: %w", id, err)
		}
		if created {
			report.Created++
			metrics.CollisionsIngested.WithLabelValues("created").Inc()
		} else {
			report.Updated++
			metrics.CollisionsIngested.WithLabelValues("updated").Inc()
		}
	}

	return nil
}

func parseStartDT(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range startDTLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IntersectionKey normalizes free-text incident locations so the same corner
// groups together across punctuation and spacing variants.
func IntersectionKey(locationText string) string {
	return strings.Join(strings.Fields(strings.ToLower(locationText)), " ")
}
