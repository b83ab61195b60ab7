package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CollisionsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashweather_collisions_ingested_total",
			Help: "Collision rows processed during ingestion, by outcome",
		},
		[]string{"outcome"}, // created, updated
	)

	ObservationsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashweather_observations_ingested_total",
			Help: "Weather observation rows processed during ingestion, by outcome",
		},
		[]string{"outcome"},
	)

	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashweather_rows_skipped_total",
			Help: "Source rows skipped during ingestion, by reason",
		},
		[]string{"source", "reason"},
	)

	ProximityQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashweather_proximity_queries_total",
			Help: "Proximity searches served, by status",
		},
		[]string{"status"}, // ok, rejected, error
	)

	SourceDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashweather_source_downloads_total",
			Help: "Source file downloads, by status",
		},
		[]string{"status"},
	)
)
