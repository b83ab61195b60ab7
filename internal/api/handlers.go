package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yycdata/crashweather/internal/models"
	"github.com/yycdata/crashweather/internal/search"
	"github.com/yycdata/crashweather/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseFilter reads the shared filter query parameters. Invalid values are
// errors rather than silently matching everything.
func parseFilter(r *http.Request) (store.CollisionFilter, error) {
	var f store.CollisionFilter
	q := r.URL.Query()

	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, fmt.Errorf("invalid from date %q", v)
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, fmt.Errorf("invalid to date %q", v)
		}
		f.To = &t
	}
	if v := q.Get("quadrant"); v != "" {
		f.Quadrant = models.NormalizeQuadrant(v)
	}
	if v := q.Get("weather_day"); v != "" {
		switch wd := models.WeatherDay(strings.ToUpper(v)); wd {
		case models.WeatherDayDry, models.WeatherDayWet, models.WeatherDaySnowy:
			f.WeatherDayCity = wd
		default:
			return f, fmt.Errorf("invalid weather_day %q", v)
		}
	}
	for name, dst := range map[string]**bool{
		"freeze_day": &f.FreezeDayCity,
		"precip_any": &f.PrecipAny,
		"snow_any":   &f.SnowAny,
	} {
		if v := q.Get(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return f, fmt.Errorf("invalid %s %q", name, v)
			}
			*dst = &b
		}
	}
	if v := q.Get("gust_min"); v != "" {
		g, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, fmt.Errorf("invalid gust_min %q", v)
		}
		f.GustMin = &g
	}
	f.Station = q.Get("station")

	return f, nil
}

func parseIntParam(q string, def, max int) int {
	if q == "" {
		return def
	}
	n, err := strconv.Atoi(q)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

type collisionListResponse struct {
	Collisions []models.Collision `json:"collisions"`
	Total      int                `json:"total"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

func (s *Server) handleCollisions(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	limit := parseIntParam(q.Get("limit"), defaultPageSize, maxPageSize)
	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}

	collisions, err := s.store.ListCollisions(f, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.store.CountCollisions(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if collisions == nil {
		collisions = []models.Collision{}
	}
	writeJSON(w, http.StatusOK, collisionListResponse{
		Collisions: collisions,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	})
}

// handleCollisionSubpath dispatches /api/v1/collisions/near and
// /api/v1/collisions/{id}.
func (s *Server) handleCollisionSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/collisions/")
	if rest == "near" {
		s.handleCollisionsNear(w, r)
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		http.NotFound(w, r)
		return
	}
	s.handleCollisionDetail(w, r, rest)
}

func (s *Server) handleCollisionDetail(w http.ResponseWriter, r *http.Request, id string) {
	c, err := s.store.GetCollision(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "collision not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type nearResult struct {
	Collision  models.Collision `json:"collision"`
	DistanceKm float64          `json:"distance_km"`
}

type nearResponse struct {
	Results  []nearResult `json:"results"`
	RadiusKm float64      `json:"radius_km"`
}

func (s *Server) handleCollisionsNear(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lon is required and must be a number")
		return
	}
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lat is required and must be a number")
		return
	}

	p := search.Params{Lon: lon, Lat: lat, RadiusKm: s.searcher.Limits().DefaultRadiusKm}
	if v := q.Get("radius_km"); v != "" {
		radius, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid radius_km")
			return
		}
		p.RadiusKm = radius
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if p.Filter, err = parseFilter(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.searcher.Near(p)
	if err != nil {
		var re *search.RangeError
		if errors.As(err, &re) {
			writeError(w, http.StatusBadRequest, re.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := nearResponse{Results: make([]nearResult, 0, len(results)), RadiusKm: p.RadiusKm}
	for _, res := range results {
		resp.Results = append(resp.Results, nearResult{Collision: res.Collision, DistanceKm: res.DistanceKm})
	}
	writeJSON(w, http.StatusOK, resp)
}

type flagRequest struct {
	CollisionID string `json:"collision_id"`
	Note        string `json:"note"`
}

func (s *Server) handleFlags(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := parseIntParam(r.URL.Query().Get("limit"), defaultPageSize, maxPageSize)
		flags, err := s.store.ListFlags(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if flags == nil {
			flags = []models.Flag{}
		}
		writeJSON(w, http.StatusOK, flags)

	case http.MethodPost:
		var req flagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.CollisionID == "" {
			writeError(w, http.StatusBadRequest, "collision_id is required")
			return
		}
		flag, err := s.store.CreateFlag(req.CollisionID, req.Note)
		if err != nil {
			if errors.Is(err, store.ErrCollisionNotFound) {
				writeError(w, http.StatusNotFound, "collision not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, flag)

	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}

	version, err := s.store.MigrationVersion()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	status["schema_version"] = version

	total, err := s.store.CountCollisions(store.CollisionFilter{})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	status["collisions"] = total

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request, query func(store.CollisionFilter) (any, error)) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := query(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMonthlyTrend(w http.ResponseWriter, r *http.Request) {
	s.statsHandler(w, r, func(f store.CollisionFilter) (any, error) {
		return s.store.MonthlyTrend(f)
	})
}

func (s *Server) handleByHour(w http.ResponseWriter, r *http.Request) {
	commute := r.URL.Query().Get("commute")
	switch commute {
	case "", "am", "pm":
	default:
		writeError(w, http.StatusBadRequest, "commute must be am or pm")
		return
	}
	s.statsHandler(w, r, func(f store.CollisionFilter) (any, error) {
		return s.store.TotalsByHour(f, commute)
	})
}

func (s *Server) handleByWeekday(w http.ResponseWriter, r *http.Request) {
	s.statsHandler(w, r, func(f store.CollisionFilter) (any, error) {
		return s.store.TotalsByWeekday(f)
	})
}

func (s *Server) handleQuadrantShare(w http.ResponseWriter, r *http.Request) {
	s.statsHandler(w, r, func(f store.CollisionFilter) (any, error) {
		return s.store.QuadrantShare(f)
	})
}

func (s *Server) handleTopIntersections(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r.URL.Query().Get("limit"), 10, 100)
	s.statsHandler(w, r, func(f store.CollisionFilter) (any, error) {
		return s.store.TopIntersections(f, limit)
	})
}

func (s *Server) handleByWeather(w http.ResponseWriter, r *http.Request) {
	s.statsHandler(w, r, func(f store.CollisionFilter) (any, error) {
		return s.store.TotalsByCityWeather(f)
	})
}
