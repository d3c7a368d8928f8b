package fleet

import (
	"context"
	"fmt"

	"github.com/example/ride-booking/internal/models"
)

// StatusShare is one slice of the order-status breakdown.
type StatusShare struct {
	Status  models.OrderStatus `json:"status"`
	Count   int                `json:"count"`
	Percent float64            `json:"percent"`
}

type Dashboard struct {
	models.DashboardStats
	Breakdown        []StatusShare `json:"breakdown"`
	CompletedRevenue float64       `json:"completedRevenue"`
}

var breakdownOrder = []models.OrderStatus{
	models.StatusPending,
	models.StatusAccepted,
	models.StatusArrived,
	models.StatusInTransit,
	models.StatusCompleted,
	models.StatusCancelled,
}

// Breakdown counts orders per status. Percentages are of all orders and are
// zero when there are none.
func Breakdown(orders []models.Order) []StatusShare {
	counts := make(map[models.OrderStatus]int, len(breakdownOrder))
	for _, o := range orders {
		counts[o.Status]++
	}
	out := make([]StatusShare, 0, len(breakdownOrder))
	for _, s := range breakdownOrder {
		share := StatusShare{Status: s, Count: counts[s]}
		if len(orders) > 0 {
			share.Percent = float64(share.Count) * 100 / float64(len(orders))
		}
		out = append(out, share)
	}
	return out
}

type AdminSource interface {
	DashboardStats(ctx context.Context) (models.DashboardStats, error)
	AllOrders(ctx context.Context) ([]models.Order, error)
}

// LoadDashboard combines the backend totals with a breakdown computed from
// the actual orders.
func LoadDashboard(ctx context.Context, src AdminSource) (Dashboard, error) {
	stats, err := src.DashboardStats(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard stats: %w", err)
	}
	orders, err := src.AllOrders(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("all orders: %w", err)
	}
	d := Dashboard{DashboardStats: stats, Breakdown: Breakdown(orders)}
	for _, o := range orders {
		if o.Status == models.StatusCompleted {
			d.CompletedRevenue += o.Price
		}
	}
	return d, nil
}
