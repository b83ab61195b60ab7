package ingest

import (
	"fmt"
	"log"

	"github.com/yycdata/crashweather/internal/store"
	"github.com/yycdata/crashweather/internal/weather"
)

// CityReport summarizes one city rollup run.
type CityReport struct {
	Created int
	Updated int
}

// CityBuilder recomputes the per-date city weather rollup from whatever
// station observations are stored. Rebuilding is idempotent, so it can run
// after every weather load.
type CityBuilder struct {
	store *store.Store
}

func NewCityBuilder(st *store.Store) *CityBuilder {
	return &CityBuilder{store: st}
}

func (b *CityBuilder) Build() (CityReport, error) {
	var report CityReport

	dates, err := b.store.GetObservationDates()
	if err != nil {
		return report, fmt.Errorf("list observation dates: %w", err)
	}

	for _, date := range dates {
		obs, err := b.store.GetObservationsForDate(date)
		if err != nil {
			return report, fmt.Errorf("observations for %s: %w", date.Format("2006-01-02"), err)
		}
		created, err := b.store.UpsertCityDay(weather.BuildCityDay(date, obs))
		if err != nil {
			return report, fmt.Errorf("upsert city day %s: %w", date.Format("2006-01-02"), err)
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}
	}

	log.Printf("city: rollup dates created=%d updated=%d", report.Created, report.Updated)
	return report, nil
}
