package distance

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/example/ride-booking/internal/cache"
	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
)

// RoadFactor stretches a straight-line distance to approximate road winding.
const RoadFactor = 1.3

// Router is a routing engine that returns the driving distance in km.
type Router interface {
	RouteKm(ctx context.Context, from, to models.Coord) (float64, error)
}

// Estimator returns routed distances and degrades to a great-circle
// estimate whenever the router cannot answer.
type Estimator struct {
	Router Router      // optional; nil always falls back
	Cache  cache.Cache // optional; only routed answers are cached
	Logger *slog.Logger
}

// Estimate never fails: any routing error yields Fallback(from, to).
func (e *Estimator) Estimate(ctx context.Context, from, to models.Coord) float64 {
	key := keyFor(from, to)
	if e.Cache != nil {
		if b, ok := e.Cache.Get(ctx, key); ok {
			if v, err := strconv.ParseFloat(string(b), 64); err == nil {
				observability.RouteRequests.WithLabelValues("cache").Inc()
				return v
			}
		}
	}
	if e.Router != nil {
		start := time.Now()
		km, err := e.Router.RouteKm(ctx, from, to)
		observability.RouteLatency.Observe(time.Since(start).Seconds())
		if err == nil {
			observability.RouteRequests.WithLabelValues("router").Inc()
			if e.Cache != nil {
				e.Cache.Set(ctx, key, []byte(strconv.FormatFloat(km, 'f', -1, 64)))
			}
			return km
		}
		if e.Logger != nil {
			e.Logger.Warn("routing failed, using straight-line estimate", "error", err)
		}
	}
	observability.RouteRequests.WithLabelValues("fallback").Inc()
	return Fallback(from, to)
}

// Fallback is the haversine distance scaled by RoadFactor.
func Fallback(from, to models.Coord) float64 {
	return geo.Haversine(from, to) * RoadFactor
}

func keyFor(a, b models.Coord) string {
	return "route:" + fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}
