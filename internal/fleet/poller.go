// Package fleet keeps a local view of driver positions: the customer's
// available-drivers map and the admin's live fleet.
package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
)

type DriverSource interface {
	AvailableDrivers(ctx context.Context) ([]models.DriverSnapshot, error)
}

// ActiveOrder reports whether the session is tracking an order.
type ActiveOrder interface {
	HasActive() bool
}

// Poller refreshes the available drivers into an index. Polling pauses while
// an order is active.
type Poller struct {
	Source   DriverSource
	Index    geo.Geo
	Active   ActiveOrder
	Interval time.Duration
	Logger   *slog.Logger
}

func (p *Poller) Refresh(ctx context.Context) error {
	ds, err := p.Source.AvailableDrivers(ctx)
	if err != nil {
		return fmt.Errorf("available drivers: %w", err)
	}
	located := make([]models.DriverSnapshot, 0, len(ds))
	for _, d := range ds {
		if d.Location().Valid() {
			located = append(located, d)
		}
	}
	if err := p.Index.Replace(ctx, located); err != nil {
		return err
	}
	observability.DriversVisible.Set(float64(len(located)))
	return nil
}

func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poll := func() {
		if p.Active != nil && p.Active.HasActive() {
			return
		}
		if err := p.Refresh(ctx); err != nil {
			logger.Warn("driver poll failed", "error", err)
		}
	}
	poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			poll()
		}
	}
}
