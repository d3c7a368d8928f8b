package geo

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// Geo is the driver position store used by the fleet views.
type Geo interface {
	Upsert(ctx context.Context, d models.DriverSnapshot) error
	// Move updates the position of a known driver and reports whether it was known.
	Move(ctx context.Context, driverID int64, c models.Coord) (bool, error)
	Remove(ctx context.Context, driverID int64) error
	// Replace swaps the whole set, dropping drivers absent from ds.
	Replace(ctx context.Context, ds []models.DriverSnapshot) error
	Nearby(ctx context.Context, c models.Coord, radiusKm float64, limit int) ([]models.DriverSnapshot, error)
	All(ctx context.Context) ([]models.DriverSnapshot, error)
}

type entry struct {
	d       models.DriverSnapshot
	updated time.Time
}

type Index struct {
	mu      sync.RWMutex
	drivers map[int64]entry
}

func NewIndex() *Index {
	return &Index{drivers: make(map[int64]entry)}
}

func (g *Index) Upsert(_ context.Context, d models.DriverSnapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drivers[d.ID] = entry{d: d, updated: time.Now()}
	return nil
}

func (g *Index) Move(_ context.Context, driverID int64, c models.Coord) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.drivers[driverID]
	if !ok {
		return false, nil
	}
	e.d.CurrentLatitude = c.Lat
	e.d.CurrentLongitude = c.Lon
	e.updated = time.Now()
	g.drivers[driverID] = e
	return true, nil
}

func (g *Index) Remove(_ context.Context, driverID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.drivers, driverID)
	return nil
}

func (g *Index) Replace(_ context.Context, ds []models.DriverSnapshot) error {
	now := time.Now()
	next := make(map[int64]entry, len(ds))
	for _, d := range ds {
		next[d.ID] = entry{d: d, updated: now}
	}
	g.mu.Lock()
	g.drivers = next
	g.mu.Unlock()
	return nil
}

func (g *Index) All(_ context.Context) ([]models.DriverSnapshot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.DriverSnapshot, 0, len(g.drivers))
	for _, e := range g.drivers {
		out = append(out, e.d)
	}
	return out, nil
}

// naive scan; fleets here are a few hundred drivers at most
func (g *Index) Nearby(_ context.Context, c models.Coord, radiusKm float64, limit int) ([]models.DriverSnapshot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		d    models.DriverSnapshot
		dist float64
	}
	arr := make([]pair, 0, len(g.drivers))
	for _, e := range g.drivers {
		dist := Haversine(c, e.d.Location())
		if radiusKm > 0 && dist > radiusKm {
			continue
		}
		arr = append(arr, pair{e.d, dist})
	}
	// partial selection sort for top-N
	n := limit
	if n <= 0 || n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]models.DriverSnapshot, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].d)
	}
	return out, nil
}

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Haversine distance in kilometers
func Haversine(a, b models.Coord) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}
