package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/session"
)

func (c *Client) PendingOrders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	return out, c.do(ctx, http.MethodGet, "/orders/pending", nil, nil, &out, session.RoleDriver)
}

func (c *Client) MyActiveOrders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	return out, c.do(ctx, http.MethodGet, "/orders/my-active-orders", nil, nil, &out, session.RoleDriver)
}

func (c *Client) AcceptOrder(ctx context.Context, id int64) (models.Order, error) {
	var out models.Order
	return out, c.do(ctx, http.MethodPut, idPath("/orders/%d/accept", id), nil, struct{}{}, &out, session.RoleDriver)
}

// UpdateOrderStatus sends the backend spelling, so ARRIVED goes out as DRIVER_ARRIVED.
func (c *Client) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (models.Order, error) {
	wire := string(status)
	if status == models.StatusArrived {
		wire = "DRIVER_ARRIVED"
	}
	var out models.Order
	q := url.Values{"status": {wire}}
	return out, c.do(ctx, http.MethodPatch, idPath("/orders/%d/status", id), q, struct{}{}, &out, session.RoleDriver)
}

func (c *Client) SetAvailability(ctx context.Context, driverID int64, available bool) error {
	in := map[string]bool{"available": available}
	return c.do(ctx, http.MethodPut, idPath("/drivers/%d/availability", driverID), nil, in, nil, session.RoleDriver)
}
