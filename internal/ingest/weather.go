package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/yycdata/crashweather/internal/metrics"
	"github.com/yycdata/crashweather/internal/models"
	"github.com/yycdata/crashweather/internal/store"
	"github.com/yycdata/crashweather/internal/weather"
)

// WeatherFilePattern matches Environment Canada daily climate exports.
const WeatherFilePattern = "en_climate_daily_*_P1D.csv"

// WeatherReport summarizes one weather ingestion run.
type WeatherReport struct {
	StationsCreated     int
	StationsUpdated     int
	ObservationsCreated int
	ObservationsUpdated int
	Skipped             map[string]int
}

func (r WeatherReport) skip(reason string) {
	r.Skipped[reason]++
	metrics.RowsSkipped.WithLabelValues("weather", reason).Inc()
}

// WeatherLoader bulk-loads station daily-climate CSV files. Each cell goes
// through measurement normalization; a bad cell nulls the field, a bad row is
// skipped and counted, and the batch always continues.
type WeatherLoader struct {
	store *store.Store
}

func NewWeatherLoader(st *store.Store) *WeatherLoader {
	return &WeatherLoader{store: st}
}

// LoadDir loads every climate CSV in dir matching WeatherFilePattern.
func (l *WeatherLoader) LoadDir(dir string) (WeatherReport, error) {
	report := WeatherReport{Skipped: make(map[string]int)}

	paths, err := filepath.Glob(filepath.Join(dir, WeatherFilePattern))
	if err != nil {
		return report, err
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		log.Printf("weather: no files matching %s in %s", WeatherFilePattern, dir)
		return report, nil
	}

	for _, path := range paths {
		if err := l.loadFile(path, &report); err != nil {
			return report, fmt.Errorf("load %s: %w", path, err)
		}
	}

	log.Printf("weather: stations created=%d updated=%d observations created=%d updated=%d skipped=%v",
		report.StationsCreated, report.StationsUpdated,
		report.ObservationsCreated, report.ObservationsUpdated, report.Skipped)
	return report, nil
}

func (l *WeatherLoader) loadFile(path string, report *WeatherReport) error {
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

	// One station upsert per file run, from the first usable row.
	seenStations := make(map[string]bool)

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("weather: %s: unreadable row skipped: %v", filepath.Base(path), err)
			report.skip("bad_row")
			continue
		}

		climateID := h.get(record, "Climate ID")
		if climateID == "" {
			report.skip("no_climate_id")
			continue
		}

		if !seenStations[climateID] {
			lon := weather.ParseMeasurement(h.get(record, "Longitude (x)", "Longitude"))
			lat := weather.ParseMeasurement(h.get(record, "Latitude (y)", "Latitude"))
			if !lon.Valid || !lat.Valid {
				// Cannot place a station without coordinates; wait for a
				// row that provides them.
				report.skip("no_coordinates")
				continue
			}
			name := h.get(record, "Station Name")
			if name == "" {
				name = "Unknown"
			}
			created, err := l.store.UpsertStation(models.Station{
				ClimateID: climateID,
				Name:      name,
				Longitude: lon.Float64,
				Latitude:  lat.Float64,
			})
			if err != nil {
				return fmt.Errorf("upsert station %s: %w", climateID, err)
			}
			if created {
				report.StationsCreated++
			} else {
				report.StationsUpdated++
			}
			seenStations[climateID] = true
		}

		dateRaw := h.get(record, "Date/Time", "Date")
		if len(dateRaw) < 10 {
			report.skip("bad_date")
			continue
		}
		date, err := time.Parse("2006-01-02", dateRaw[:10])
		if err != nil {
			report.skip("bad_date")
			continue
		}

		obs := models.Observation{
			ClimateID:     climateID,
			Date:          date,
			TMaxC:         weather.ParseMeasurement(h.get(record, "Max Temp")),
			TMinC:         weather.ParseMeasurement(h.get(record, "Min Temp")),
			TMeanC:        weather.ParseMeasurement(h.get(record, "Mean Temp")),
			TotalRainMM:   weather.ParseMeasurement(h.get(record, "Total Rain")),
			TotalSnowCM:   weather.ParseMeasurement(h.get(record, "Total Snow")),
			TotalPrecipMM: weather.ParseMeasurement(h.get(record, "Total Precip")),
			SnowOnGrndCM:  weather.ParseMeasurement(h.get(record, "Snow on Grnd")),
			GustDir10Deg:  weather.ParseMeasurementInt(h.get(record, "Dir of Max Gust")),
			GustKMH:       weather.ParseMeasurementInt(h.get(record, "Spd of Max Gust")),
		}
		obs.WeatherDay = weather.ClassifyWeatherDay(obs.TotalPrecipMM, obs.TotalSnowCM)
		obs.FreezeDay = weather.ClassifyFreezeDay(obs.TMinC)

		created, err := l.store.UpsertObservation(obs)
		if err != nil {
			return fmt.Errorf("upsert observation %s %s: %w", climateID, dateRaw[:10], err)
		}
		if created {
			report.ObservationsCreated++
			metrics.ObservationsIngested.WithLabelValues("created").Inc()
		} else {
			report.ObservationsUpdated++
			metrics.ObservationsIngested.WithLabelValues("updated").Inc()
		}
	}

	return nil
}
