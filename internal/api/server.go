package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yycdata/crashweather/internal/search"
	"github.com/yycdata/crashweather/internal/store"
)

type Server struct {
	store    *store.Store
	searcher *search.Searcher
	port     string
	loc      *time.Location
}

func NewServer(store *store.Store, searcher *search.Searcher, port string, loc *time.Location) *Server {
	return &Server{
		store:    store,
		searcher: searcher,
		port:     port,
		loc:      loc,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/collisions", s.handleCollisions)
	mux.HandleFunc("/api/v1/collisions/", s.handleCollisionSubpath)
	mux.HandleFunc("/api/v1/flags", s.handleFlags)
	mux.HandleFunc("/api/v1/stats/monthly-trend", s.handleMonthlyTrend)
	mux.HandleFunc("/api/v1/stats/by-hour", s.handleByHour)
	mux.HandleFunc("/api/v1/stats/by-weekday", s.handleByWeekday)
	mux.HandleFunc("/api/v1/stats/quadrant-share", s.handleQuadrantShare)
	mux.HandleFunc("/api/v1/stats/top-intersections", s.handleTopIntersections)
	mux.HandleFunc("/api/v1/stats/by-weather", s.handleByWeather)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
