package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/url"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/yycdata/crashweather/internal/api"
	"github.com/yycdata/crashweather/internal/geo"
	"github.com/yycdata/crashweather/internal/ingest"
	"github.com/yycdata/crashweather/internal/models"
	"github.com/yycdata/crashweather/internal/search"
	"github.com/yycdata/crashweather/internal/store"
	"github.com/yycdata/crashweather/internal/weather"
)

// Stations seeded when no climate CSVs have been loaded yet, so collision
// ingestion can resolve nearest stations from day one.
var defaultStations = []models.Station{
	{ClimateID: "3031092", Name: "Calgary Int'l A", Longitude: -114.0203, Latitude: 51.1083},
	{ClimateID: "3033890", Name: "Springbank A", Longitude: -114.3744, Latitude: 51.1031},
	{ClimateID: "3031875", Name: "Calgary Olympic Park", Longitude: -114.2167, Latitude: 51.0833},
}

type Globals struct {
	DB       string `help:"Path to the SQLite database." default:"data/crashweather.db" env:"CRASHWEATHER_DB"`
	Timezone string `help:"IANA time zone for dates and timestamps." default:"America/Edmonton" env:"CRASHWEATHER_TZ"`
	DataDir  string `help:"Directory holding source CSV exports." default:"data" env:"CRASHWEATHER_DATA_DIR"`

	MinLon float64 `help:"Western edge of the city coordinate envelope." default:"-114.5" env:"CRASHWEATHER_MIN_LON"`
	MaxLon float64 `help:"Eastern edge of the city coordinate envelope." default:"-113.6" env:"CRASHWEATHER_MAX_LON"`
	MinLat float64 `help:"Southern edge of the city coordinate envelope." default:"50.5" env:"CRASHWEATHER_MIN_LAT"`
	MaxLat float64 `help:"Northern edge of the city coordinate envelope." default:"51.3" env:"CRASHWEATHER_MAX_LAT"`
}

func (g *Globals) bounds() geo.BBox {
	return geo.BBox{MinLon: g.MinLon, MinLat: g.MinLat, MaxLon: g.MaxLon, MaxLat: g.MaxLat}
}

// openStore opens the database, applies pragmas and runs migrations.
func (g *Globals) openStore() (*store.Store, func(), error) {
	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		log.Printf("warning: could not load %s timezone, using UTC: %v", g.Timezone, err)
		loc = time.UTC
	}

	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

type ServeCmd struct {
	Port        string  `help:"HTTP server port." default:"8080" env:"CRASHWEATHER_PORT"`
	MaxRadiusKm float64 `help:"Hard cap on proximity search radius." default:"10" env:"CRASHWEATHER_MAX_RADIUS_KM"`
	RadiusKm    float64 `help:"Default proximity search radius." default:"1.5" env:"CRASHWEATHER_RADIUS_KM"`
}

func (c *ServeCmd) Run(g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	limits := search.DefaultLimits
	limits.MaxRadiusKm = c.MaxRadiusKm
	limits.DefaultRadiusKm = c.RadiusKm
	searcher := search.New(st, limits)

	server := api.NewServer(st, searcher, c.Port, st.Location())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("serving on :%s", c.Port)
	return server.Run(ctx)
}

type LoadWeatherCmd struct {
	Dir string `help:"Directory to scan for climate CSVs, defaults to the data directory." optional:""`
}

func (c *LoadWeatherCmd) Run(g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	dir := c.Dir
	if dir == "" {
		dir = g.DataDir
	}
	if _, err := ingest.NewWeatherLoader(st).LoadDir(dir); err != nil {
		return err
	}
	_, err = ingest.NewCityBuilder(st).Build()
	return err
}

type LoadCollisionsCmd struct {
	Dir string `help:"Directory to scan for incident CSVs, defaults to the data directory." optional:""`
}

func (c *LoadCollisionsCmd) Run(g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	dir := c.Dir
	if dir == "" {
		dir = g.DataDir
	}
	_, err = ingest.NewCollisionLoader(st, g.bounds()).LoadDir(dir)
	return err
}

type BuildCityWeatherCmd struct{}

func (c *BuildCityWeatherCmd) Run(g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	_, err = ingest.NewCityBuilder(st).Build()
	return err
}

type FetchCmd struct {
	URL      string `arg:"" help:"Source URL to download."`
	Filename string `arg:"" optional:"" help:"Destination filename, defaults to the URL's basename."`
}

func (c *FetchCmd) Run(g *Globals) error {
	name := c.Filename
	if name == "" {
		u, err := url.Parse(c.URL)
		if err != nil || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
			return fmt.Errorf("cannot derive filename from %q, pass one explicitly", c.URL)
		}
		name = path.Base(u.Path)
	}
	_, err := ingest.NewFetcher(g.DataDir).Fetch(c.URL, name)
	return err
}

type SeedCmd struct {
	Year int  `help:"Year to generate the synthetic dataset for." default:"2024"`
	Full bool `help:"Also generate a year of synthetic observations and collisions." default:"true" negatable:""`
}

// Run seeds the default stations and, unless --no-full, a deterministic
// synthetic dataset for local development: the same seed always produces the
// same rows.
func (c *SeedCmd) Run(g *Globals) error {
	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	for _, station := range defaultStations {
		if _, err := st.UpsertStation(station); err != nil {
			return fmt.Errorf("upsert station %s: %w", station.ClimateID, err)
		}
	}
	log.Printf("seeded %d stations", len(defaultStations))

	if !c.Full {
		return nil
	}

	rng := rand.New(rand.NewSource(1))
	loc := st.Location()
	start := time.Date(c.Year, 1, 1, 0, 0, 0, 0, loc)

	stations, err := st.GetStations()
	if err != nil {
		return err
	}

	var observations, collisions int
	for day := 0; day < 365; day++ {
		date := start.AddDate(0, 0, day)

		// Rough seasonal temperature curve with per-station jitter.
		seasonal := -8 + 20*math.Sin(float64(day-100)/365*2*math.Pi)
		for _, station := range defaultStations {
			tmax := seasonal + rng.Float64()*8
			tmin := tmax - 8 - rng.Float64()*6

			var precip, snow float64
			switch {
			case rng.Float64() < 0.15 && tmin < 2:
				snow = rng.Float64() * 6
				precip = snow
			case rng.Float64() < 0.2:
				precip = rng.Float64() * 10
			}

			obs := models.Observation{
				ClimateID:     station.ClimateID,
				Date:          date,
				TMaxC:         sql.NullFloat64{Float64: round1(tmax), Valid: true},
				TMinC:         sql.NullFloat64{Float64: round1(tmin), Valid: true},
				TMeanC:        sql.NullFloat64{Float64: round1((tmax + tmin) / 2), Valid: true},
				TotalSnowCM:   sql.NullFloat64{Float64: round1(snow), Valid: true},
				TotalPrecipMM: sql.NullFloat64{Float64: round1(precip), Valid: true},
				GustKMH:       sql.NullInt64{Int64: int64(20 + rng.Intn(60)), Valid: true},
			}
			obs.WeatherDay = weather.ClassifyWeatherDay(obs.TotalPrecipMM, obs.TotalSnowCM)
			obs.FreezeDay = weather.ClassifyFreezeDay(obs.TMinC)
			if _, err := st.UpsertObservation(obs); err != nil {
				return fmt.Errorf("seed observation: %w", err)
			}
			observations++
		}

		for i := 0; i < 2+rng.Intn(4); i++ {
			occurred := date.Add(time.Duration(rng.Intn(24*60)) * time.Minute)
			lon := g.MinLon + rng.Float64()*(g.MaxLon-g.MinLon)
			lat := g.MinLat + rng.Float64()*(g.MaxLat-g.MinLat)
			corner := seedCorners[rng.Intn(len(seedCorners))]

			crash := models.Collision{
				CollisionID:     fmt.Sprintf("SEED-%d-%03d-%d", c.Year, day, i),
				OccurredAt:      occurred,
				Date:            occurred,
				Hour:            occurred.Hour(),
				Weekday:         (int(occurred.Weekday()) + 6) % 7,
				Month:           int(occurred.Month()),
				Quadrant:        seedQuadrants[rng.Intn(len(seedQuadrants))],
				Longitude:       sql.NullFloat64{Float64: lon, Valid: true},
				Latitude:        sql.NullFloat64{Float64: lat, Valid: true},
				Count:           1 + rng.Intn(2),
				Description:     "Seeded incident",
				LocationText:    corner,
				IntersectionKey: ingest.IntersectionKey(corner),
			}
			if near, _, ok := geo.Nearest(lon, lat, stations); ok {
				crash.NearestStation = sql.NullString{String: near.ClimateID, Valid: true}
			}
			if _, err := st.UpsertCollision(crash); err != nil {
				return fmt.Errorf("seed collision: %w", err)
			}
			collisions++
		}
	}

	if _, err := ingest.NewCityBuilder(st).Build(); err != nil {
		return err
	}
	log.Printf("seeded %d observations and %d collisions for %d", observations, collisions, c.Year)
	return nil
}

var seedQuadrants = []models.Quadrant{models.QuadrantNE, models.QuadrantNW, models.QuadrantSE, models.QuadrantSW}

var seedCorners = []string{
	"Macleod Trail / 25 Ave SE",
	"16 Ave / 10 St NW",
	"Deerfoot Trail / Memorial Dr NE",
	"Crowchild Trail / Bow Trail SW",
	"Glenmore Trail / Elbow Dr SW",
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

type CLI struct {
	Globals

	Serve            ServeCmd            `cmd:"" help:"Run the HTTP API server."`
	LoadWeather      LoadWeatherCmd      `cmd:"" help:"Load climate CSVs and rebuild the city weather rollup."`
	LoadCollisions   LoadCollisionsCmd   `cmd:"" help:"Load traffic incident CSVs."`
	BuildCityWeather BuildCityWeatherCmd `cmd:"" help:"Rebuild the city daily weather rollup."`
	Fetch            FetchCmd            `cmd:"" help:"Download a source CSV into the data directory."`
	Seed             SeedCmd             `cmd:"" help:"Seed the default stations and a synthetic demo dataset."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("crashweather"),
		kong.Description("Calgary traffic collision and weather enrichment service."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		log.Fatalf("%s: %v", ctx.Command(), err)
	}
}
