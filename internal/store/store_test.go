package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yycdata/crashweather/internal/geo"
	"github.com/yycdata/crashweather/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	loc, err := time.LoadLocation("America/Edmonton")
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}
	store := New(db, loc)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func testCollision(id string, lon, lat float64) models.Collision {
	occurred := time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC)
	return models.Collision{
		CollisionID: id,
		OccurredAt:  occurred,
		Date:        occurred,
		Hour:        8,
		Weekday:     4,
		Month:       3,
		Quadrant:    models.QuadrantNE,
		Longitude:   sql.NullFloat64{Float64: lon, Valid: true},
		Latitude:    sql.NullFloat64{Float64: lat, Valid: true},
		Count:       1,
	}
}

func TestUpsertStation(t *testing.T) {
	store := setupTestStore(t)

	created, err := store.UpsertStation(models.Station{ClimateID: "3031092", Name: "Calgary Intl", Longitude: -114.01, Latitude: 51.11})
	if err != nil {
		t.Fatalf("UpsertStation: %v", err)
	}
	if !created {
		t.Error("first upsert should report created")
	}

	created, err = store.UpsertStation(models.Station{ClimateID: "3031092", Name: "Calgary Int'l A", Longitude: -114.02, Latitude: 51.12})
	if err != nil {
		t.Fatalf("UpsertStation update: %v", err)
	}
	if created {
		t.Error("second upsert should report updated")
	}

	stations, err := store.GetStations()
	if err != nil {
		t.Fatalf("GetStations: %v", err)
	}
	if len(stations) != 1 {
		t.Fatalf("len(stations) = %d, want 1", len(stations))
	}
	if stations[0].Name != "Calgary Int'l A" {
		t.Errorf("Name = %q, want updated name", stations[0].Name)
	}
	if stations[0].Longitude != -114.02 {
		t.Errorf("Longitude = %v, want corrected -114.02", stations[0].Longitude)
	}
}

func TestUpsertObservation_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.UpsertStation(models.Station{ClimateID: "3031092", Name: "Calgary Intl", Longitude: -114.01, Latitude: 51.11}); err != nil {
		t.Fatal(err)
	}

	obs := models.Observation{
		ClimateID:     "3031092",
		Date:          time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		TMaxC:         sql.NullFloat64{Float64: -2, Valid: true},
		TMinC:         sql.NullFloat64{Float64: -11, Valid: true},
		TotalSnowCM:   sql.NullFloat64{Float64: 2.0, Valid: true},
		TotalPrecipMM: sql.NullFloat64{Float64: 1.6, Valid: true},
		WeatherDay:    models.WeatherDaySnowy,
		FreezeDay:     sql.NullBool{Bool: true, Valid: true},
	}

	created, err := store.UpsertObservation(obs)
	if err != nil {
		t.Fatalf("UpsertObservation: %v", err)
	}
	if !created {
		t.Error("first upsert should create")
	}

	obs.TMaxC = sql.NullFloat64{Float64: -1.5, Valid: true}
	created, err = store.UpsertObservation(obs)
	if err != nil {
		t.Fatalf("UpsertObservation rerun: %v", err)
	}
	if created {
		t.Error("rerun should update, not create")
	}

	got, err := store.GetObservationsForDate(obs.Date)
	if err != nil {
		t.Fatalf("GetObservationsForDate: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(observations) = %d, want 1", len(got))
	}
	if got[0].TMaxC.Float64 != -1.5 {
		t.Errorf("TMaxC = %v, want refreshed -1.5", got[0].TMaxC.Float64)
	}
	if got[0].WeatherDay != models.WeatherDaySnowy {
		t.Errorf("WeatherDay = %q, want SNY", got[0].WeatherDay)
	}
	if !got[0].FreezeDay.Valid || !got[0].FreezeDay.Bool {
		t.Errorf("FreezeDay = %+v, want true", got[0].FreezeDay)
	}
}

func TestUpsertObservation_UnknownWeatherDayIsNull(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.UpsertStation(models.Station{ClimateID: "X", Name: "X", Longitude: -114, Latitude: 51}); err != nil {
		t.Fatal(err)
	}

	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if _, err := store.UpsertObservation(models.Observation{ClimateID: "X", Date: date}); err != nil {
		t.Fatalf("UpsertObservation: %v", err)
	}

	got, err := store.GetObservationsForDate(date)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len(observations) = %d, want 1", len(got))
	}
	if got[0].WeatherDay != models.WeatherDayUnknown {
		t.Errorf("WeatherDay = %q, want unknown round-trip", got[0].WeatherDay)
	}
	if got[0].FreezeDay.Valid {
		t.Errorf("FreezeDay = %+v, want null", got[0].FreezeDay)
	}
}

func TestUpsertCityDay(t *testing.T) {
	store := setupTestStore(t)

	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	cd := models.CityDay{
		Date:           date,
		WeatherDayCity: models.WeatherDayWet,
		FreezeDayCity:  sql.NullBool{Bool: false, Valid: true},
		AgreementRatio: sql.NullFloat64{Float64: 0.75, Valid: true},
	}
	if _, err := store.UpsertCityDay(cd); err != nil {
		t.Fatalf("UpsertCityDay: %v", err)
	}

	cd.WeatherDayCity = models.WeatherDaySnowy
	created, err := store.UpsertCityDay(cd)
	if err != nil {
		t.Fatalf("UpsertCityDay rerun: %v", err)
	}
	if created {
		t.Error("rerun should update")
	}

	got, err := store.GetCityDay(date)
	if err != nil {
		t.Fatalf("GetCityDay: %v", err)
	}
	if got == nil {
		t.Fatal("GetCityDay returned nil")
	}
	if got.WeatherDayCity != models.WeatherDaySnowy {
		t.Errorf("WeatherDayCity = %q, want SNY", got.WeatherDayCity)
	}
	if !got.AgreementRatio.Valid || got.AgreementRatio.Float64 != 0.75 {
		t.Errorf("AgreementRatio = %+v, want 0.75", got.AgreementRatio)
	}
}

func TestUpsertCollision_IdempotentRerun(t *testing.T) {
	store := setupTestStore(t)

	c := testCollision("2024000123", -114.06, 51.05)
	c.Description = "2 vehicle incident"

	created, err := store.UpsertCollision(c)
	if err != nil {
		t.Fatalf("UpsertCollision: %v", err)
	}
	if !created {
		t.Error("first upsert should create")
	}

	c.Description = "2 vehicle incident, blocked lane"
	created, err = store.UpsertCollision(c)
	if err != nil {
		t.Fatalf("UpsertCollision rerun: %v", err)
	}
	if created {
		t.Error("rerun should update")
	}

	n, err := store.CountCollisions(CollisionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1 after re-ingest", n)
	}

	got, err := store.GetCollision("2024000123")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("collision not found")
	}
	if got.Description != "2 vehicle incident, blocked lane" {
		t.Errorf("Description = %q, want refreshed text", got.Description)
	}
}

func TestCollisionNullCoordinatesRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	c := testCollision("NOCOORDS", 0, 0)
	c.Longitude = sql.NullFloat64{}
	c.Latitude = sql.NullFloat64{}
	if _, err := store.UpsertCollision(c); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetCollision("NOCOORDS")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("collision not found")
	}
	if got.Longitude.Valid || got.Latitude.Valid {
		t.Errorf("coords = (%+v, %+v), want null", got.Longitude, got.Latitude)
	}

	// NULL coordinates never match a bounding box.
	box := geo.BBox{MinLon: -180, MinLat: -90, MaxLon: 180, MaxLat: 90}
	in, err := store.CollisionsInBBox(CollisionFilter{}, box)
	if err != nil {
		t.Fatal(err)
	}
	if len(in) != 0 {
		t.Errorf("bbox matched %d rows, want 0", len(in))
	}
}

func TestCollisionsInBBox(t *testing.T) {
	store := setupTestStore(t)

	inside := testCollision("IN", -114.06, 51.05)
	outside := testCollision("OUT", -113.70, 50.60)
	if _, err := store.UpsertCollision(inside); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpsertCollision(outside); err != nil {
		t.Fatal(err)
	}

	box := geo.BoundingBox(-114.06, 51.05, 2.0)
	got, err := store.CollisionsInBBox(CollisionFilter{}, box)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].CollisionID != "IN" {
		t.Fatalf("bbox results = %+v, want only IN", got)
	}
}

func TestCollisionFilter(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.UpsertStation(models.Station{ClimateID: "3031092", Name: "Calgary Intl", Longitude: -114.01, Latitude: 51.11}); err != nil {
		t.Fatal(err)
	}

	day1 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)

	if _, err := store.UpsertCityDay(models.CityDay{Date: day1, WeatherDayCity: models.WeatherDaySnowy, FreezeDayCity: sql.NullBool{Bool: true, Valid: true}, SnowAny: sql.NullBool{Bool: true, Valid: true}}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpsertCityDay(models.CityDay{Date: day2, WeatherDayCity: models.WeatherDayDry, FreezeDayCity: sql.NullBool{Bool: false, Valid: true}}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpsertObservation(models.Observation{ClimateID: "3031092", Date: day1, GustKMH: sql.NullInt64{Int64: 65, Valid: true}}); err != nil {
		t.Fatal(err)
	}

	winter := testCollision("WINTER", -114.06, 51.05)
	winter.OccurredAt = day1.Add(9 * time.Hour)
	winter.Date = day1
	winter.Month = 1
	winter.Quadrant = models.QuadrantNW
	winter.NearestStation = sql.NullString{String: "3031092", Valid: true}

	summer := testCollision("SUMMER", -113.95, 51.02)
	summer.OccurredAt = day2.Add(17 * time.Hour)
	summer.Date = day2
	summer.Month = 6

	for _, c := range []models.Collision{winter, summer} {
		if _, err := store.UpsertCollision(c); err != nil {
			t.Fatal(err)
		}
	}

	tr := true
	gust := 60.0
	tests := []struct {
		name   string
		filter CollisionFilter
		want   []string
	}{
		{"no filter", CollisionFilter{}, []string{"WINTER", "SUMMER"}},
		{"from date", CollisionFilter{From: &day2}, []string{"SUMMER"}},
		{"to date", CollisionFilter{To: &day1}, []string{"WINTER"}},
		{"quadrant", CollisionFilter{Quadrant: models.QuadrantNW}, []string{"WINTER"}},
		{"snowy city day", CollisionFilter{WeatherDayCity: models.WeatherDaySnowy}, []string{"WINTER"}},
		{"freeze day", CollisionFilter{FreezeDayCity: &tr}, []string{"WINTER"}},
		{"snow any", CollisionFilter{SnowAny: &tr}, []string{"WINTER"}},
		{"gust threshold", CollisionFilter{GustMin: &gust}, []string{"WINTER"}},
		{"station", CollisionFilter{Station: "3031092"}, []string{"WINTER"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListCollisions(tt.filter, 100, 0)
			if err != nil {
				t.Fatalf("ListCollisions: %v", err)
			}
			ids := make(map[string]bool)
			for _, c := range got {
				ids[c.CollisionID] = true
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d rows %v, want %v", len(got), ids, tt.want)
			}
			for _, id := range tt.want {
				if !ids[id] {
					t.Errorf("missing %s in %v", id, ids)
				}
			}
		})
	}
}

func TestCreateFlag_ReferentialIntegrity(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.CreateFlag("MISSING", "should fail"); !errors.Is(err, ErrCollisionNotFound) {
		t.Fatalf("CreateFlag on missing collision: err = %v, want ErrCollisionNotFound", err)
	}
	flags, err := store.ListFlags(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(flags) != 0 {
		t.Fatalf("rejected flag was persisted: %+v", flags)
	}

	if _, err := store.UpsertCollision(testCollision("EXISTS", -114.06, 51.05)); err != nil {
		t.Fatal(err)
	}
	fl, err := store.CreateFlag("EXISTS", "icy intersection, recurring")
	if err != nil {
		t.Fatalf("CreateFlag: %v", err)
	}
	if fl.ID == 0 || fl.CollisionID != "EXISTS" {
		t.Errorf("flag = %+v", fl)
	}

	flags, err = store.ListFlags(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(flags) != 1 || flags[0].Note != "icy intersection, recurring" {
		t.Errorf("flags = %+v", flags)
	}
}

func TestStatsRollups(t *testing.T) {
	store := setupTestStore(t)

	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if _, err := store.UpsertCityDay(models.CityDay{Date: day, WeatherDayCity: models.WeatherDayWet}); err != nil {
		t.Fatal(err)
	}

	a := testCollision("A", -114.06, 51.05)
	a.Count = 2
	a.Hour = 8
	a.LocationText = "Deerfoot Tr / 16 Ave NE"
	a.IntersectionKey = "deerfoot tr / 16 ave ne"
	b := testCollision("B", -114.06, 51.05)
	b.Hour = 17
	b.Weekday = 0
	b.LocationText = "Deerfoot TR / 16 Ave NE"
	b.IntersectionKey = "deerfoot tr / 16 ave ne"
	for _, c := range []models.Collision{a, b} {
		if _, err := store.UpsertCollision(c); err != nil {
			t.Fatal(err)
		}
	}

	months, err := store.MonthlyTrend(CollisionFilter{})
	if err != nil {
		t.Fatalf("MonthlyTrend: %v", err)
	}
	if len(months) != 12 {
		t.Fatalf("len(months) = %d, want 12", len(months))
	}
	if months[2].Month != 3 || months[2].Total != 3 {
		t.Errorf("march = %+v, want total 3", months[2])
	}

	hours, err := store.TotalsByHour(CollisionFilter{}, "am")
	if err != nil {
		t.Fatalf("TotalsByHour: %v", err)
	}
	if hours[8].Total != 2 {
		t.Errorf("hour 8 = %+v, want 2", hours[8])
	}
	if hours[17].Total != 0 {
		t.Errorf("hour 17 = %+v, want excluded by am window", hours[17])
	}

	quadrants, err := store.QuadrantShare(CollisionFilter{})
	if err != nil {
		t.Fatalf("QuadrantShare: %v", err)
	}
	if quadrants[0].Quadrant != models.QuadrantNE || quadrants[0].Total != 3 {
		t.Errorf("NE share = %+v, want 3", quadrants[0])
	}

	tops, err := store.TopIntersections(CollisionFilter{}, 10)
	if err != nil {
		t.Fatalf("TopIntersections: %v", err)
	}
	if len(tops) != 1 {
		t.Fatalf("len(tops) = %d, want 1 (same intersection key)", len(tops))
	}
	if tops[0].Total != 3 || tops[0].Collisions != 2 {
		t.Errorf("top = %+v, want total 3 over 2 collisions", tops[0])
	}

	byWeather, err := store.TotalsByCityWeather(CollisionFilter{})
	if err != nil {
		t.Fatalf("TotalsByCityWeather: %v", err)
	}
	for _, row := range byWeather {
		want := 0
		if row.WeatherDay == models.WeatherDayWet {
			want = 3
		}
		if row.Total != want {
			t.Errorf("%s = %d, want %d", row.WeatherDay, row.Total, want)
		}
	}
}
