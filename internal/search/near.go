package search

import (
	"fmt"
	"sort"

	"github.com/yycdata/crashweather/internal/geo"
	"github.com/yycdata/crashweather/internal/metrics"
	"github.com/yycdata/crashweather/internal/models"
	"github.com/yycdata/crashweather/internal/store"
)

// Limits bounds what a single proximity query may ask for.
type Limits struct {
	MaxRadiusKm     float64
	DefaultRadiusKm float64
	DefaultLimit    int
	MaxLimit        int
}

// DefaultLimits are the service defaults; the radius cap keeps a single query
// from scanning most of the city.
var DefaultLimits = Limits{
	MaxRadiusKm:     10,
	DefaultRadiusKm: 1.5,
	DefaultLimit:    100,
	MaxLimit:        500,
}

// Params is one proximity query. Zero RadiusKm and Limit take the configured
// defaults.
type Params struct {
	Lon      float64
	Lat      float64
	RadiusKm float64
	Limit    int
	Filter   store.CollisionFilter
}

// Result is one collision matched by a proximity query, with its exact
// great-circle distance from the query point.
type Result struct {
	Collision  models.Collision
	DistanceKm float64
}

// RangeError reports a query parameter outside its allowed range.
type RangeError struct {
	Param string
	Value float64
	Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %g exceeds maximum %g", e.Param, e.Value, e.Max)
}

// CandidateSource supplies collisions within a candidate rectangle. Rows
// without coordinates are never candidates.
type CandidateSource interface {
	CollisionsInBBox(f store.CollisionFilter, box geo.BBox) ([]models.Collision, error)
}

// Searcher answers radius-bounded proximity queries over stored collisions.
type Searcher struct {
	source CandidateSource
	limits Limits
}

func New(source CandidateSource, limits Limits) *Searcher {
	if limits.MaxRadiusKm <= 0 {
		limits = DefaultLimits
	}
	return &Searcher{source: source, limits: limits}
}

// Limits returns the bounds this searcher enforces.
func (s *Searcher) Limits() Limits {
	return s.limits
}

// Near returns the collisions within RadiusKm of the query point, nearest
// first, ties broken by collision ID. A radius over the hard maximum is
// rejected; a limit over the cap is clamped down silently.
func (s *Searcher) Near(p Params) ([]Result, error) {
	if p.RadiusKm == 0 {
		p.RadiusKm = s.limits.DefaultRadiusKm
	}
	if p.RadiusKm < 0 || p.RadiusKm > s.limits.MaxRadiusKm {
		metrics.ProximityQueries.WithLabelValues("rejected").Inc()
		return nil, &RangeError{Param: "radius_km", Value: p.RadiusKm, Max: s.limits.MaxRadiusKm}
	}
	if !geo.ValidCoords(p.Lon, p.Lat) {
		metrics.ProximityQueries.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("invalid coordinates (%g, %g)", p.Lon, p.Lat)
	}
	if p.Limit <= 0 {
		p.Limit = s.limits.DefaultLimit
	}
	if p.Limit > s.limits.MaxLimit {
		p.Limit = s.limits.MaxLimit
	}

	box := geo.BoundingBox(p.Lon, p.Lat, p.RadiusKm)
	candidates, err := s.source.CollisionsInBBox(p.Filter, box)
	if err != nil {
		metrics.ProximityQueries.WithLabelValues("error").Inc()
		return nil, err
	}

	// The rectangle over-approximates the circle; re-check every candidate
	// with the exact distance.
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if !c.Longitude.Valid || !c.Latitude.Valid {
			continue
		}
		d := geo.DistanceKm(p.Lon, p.Lat, c.Longitude.Float64, c.Latitude.Float64)
		if d > p.RadiusKm {
			continue
		}
		results = append(results, Result{Collision: c, DistanceKm: d})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceKm != results[j].DistanceKm {
			return results[i].DistanceKm < results[j].DistanceKm
		}
		return results[i].Collision.CollisionID < results[j].Collision.CollisionID
	})
	if len(results) > p.Limit {
		results = results[:p.Limit]
	}

	metrics.ProximityQueries.WithLabelValues("ok").Inc()
	return results, nil
}
