package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
	"github.com/example/ride-booking/internal/push"
)

const (
	TopicAdminDrivers      = "/topic/admin/drivers"
	TopicAdminDriverStatus = "/topic/admin/driver-status"
)

type OnlineSource interface {
	OnlineDrivers(ctx context.Context) ([]models.DriverSnapshot, error)
}

type Subscriber interface {
	Subscribe(destination string, h push.Handler) (unsubscribe func())
}

// Watcher mirrors the admin live map: the online drivers, moved by push
// location events and reloaded when a driver comes online.
type Watcher struct {
	Source  OnlineSource
	Index   geo.Geo
	Logger  *slog.Logger
	Timeout time.Duration
}

func (w *Watcher) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

func (w *Watcher) Load(ctx context.Context) error {
	ds, err := w.Source.OnlineDrivers(ctx)
	if err != nil {
		return fmt.Errorf("online drivers: %w", err)
	}
	if err := w.Index.Replace(ctx, ds); err != nil {
		return err
	}
	observability.DriversVisible.Set(float64(len(ds)))
	return nil
}

// Watch loads the fleet and subscribes to the admin topics. The returned
// function unsubscribes both.
func (w *Watcher) Watch(ctx context.Context, sub Subscriber) (func(), error) {
	if err := w.Load(ctx); err != nil {
		return nil, err
	}
	u1 := sub.Subscribe(TopicAdminDrivers, func(m push.Message) {
		var u models.LocationUpdate
		if err := m.Decode(&u); err != nil {
			w.logger().Warn("bad fleet location", "error", err)
			return
		}
		w.handle(func(ctx context.Context) { w.ApplyLocation(ctx, u) })
	})
	u2 := sub.Subscribe(TopicAdminDriverStatus, func(m push.Message) {
		var u models.DriverStatusUpdate
		if err := m.Decode(&u); err != nil {
			w.logger().Warn("bad driver status", "error", err)
			return
		}
		w.handle(func(ctx context.Context) { w.ApplyStatus(ctx, u) })
	})
	return func() { u1(); u2() }, nil
}

func (w *Watcher) handle(fn func(context.Context)) {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	fn(ctx)
}

// ApplyLocation moves a known driver; unknown drivers are ignored until the
// next load brings them in.
func (w *Watcher) ApplyLocation(ctx context.Context, u models.LocationUpdate) {
	ok, err := w.Index.Move(ctx, u.DriverID, models.Coord{Lat: u.Latitude, Lon: u.Longitude})
	if err != nil {
		w.logger().Warn("move driver", "driver_id", u.DriverID, "error", err)
		return
	}
	if !ok {
		w.logger().Debug("location for unknown driver ignored", "driver_id", u.DriverID)
	}
}

// ApplyStatus reloads the fleet when a driver comes online and drops one
// that goes offline.
func (w *Watcher) ApplyStatus(ctx context.Context, u models.DriverStatusUpdate) {
	if u.Available {
		if err := w.Load(ctx); err != nil {
			w.logger().Warn("reload fleet", "error", err)
		}
		return
	}
	if err := w.Index.Remove(ctx, u.DriverID); err != nil {
		w.logger().Warn("remove driver", "driver_id", u.DriverID, "error", err)
	}
}
