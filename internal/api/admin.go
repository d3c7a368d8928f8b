package api

import (
	"context"
	"net/http"

	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/session"
)

func (c *Client) PendingDrivers(ctx context.Context) ([]models.PendingDriver, error) {
	var out []models.PendingDriver
	return out, c.do(ctx, http.MethodGet, "/admin/drivers/pending", nil, nil, &out, session.RoleAdmin)
}

func (c *Client) OnlineDrivers(ctx context.Context) ([]models.DriverSnapshot, error) {
	var out []models.DriverSnapshot
	return out, c.do(ctx, http.MethodGet, "/admin/drivers/online", nil, nil, &out, session.RoleAdmin)
}

func (c *Client) AllDrivers(ctx context.Context) ([]models.DriverSnapshot, error) {
	var out []models.DriverSnapshot
	return out, c.do(ctx, http.MethodGet, "/admin/drivers/all", nil, nil, &out, session.RoleAdmin)
}

func (c *Client) ApproveDriver(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPatch, idPath("/admin/drivers/%d/approve", id), nil, struct{}{}, nil, session.RoleAdmin)
}

func (c *Client) RejectDriver(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPatch, idPath("/admin/drivers/%d/reject", id), nil, struct{}{}, nil, session.RoleAdmin)
}

func (c *Client) ToggleBlock(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPatch, idPath("/admin/drivers/%d/toggle-block", id), nil, struct{}{}, nil, session.RoleAdmin)
}

func (c *Client) AllOrders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	return out, c.do(ctx, http.MethodGet, "/admin/orders/all", nil, nil, &out, session.RoleAdmin)
}

func (c *Client) Reviews(ctx context.Context) ([]models.Review, error) {
	var out []models.Review
	return out, c.do(ctx, http.MethodGet, "/admin/reviews", nil, nil, &out, session.RoleAdmin)
}

func (c *Client) UpdatePricing(ctx context.Context, vehicleTypeID int64, upd models.PricingUpdate) (models.VehicleType, error) {
	var out models.VehicleType
	return out, c.do(ctx, http.MethodPut, idPath("/vehicle-types/%d", vehicleTypeID), nil, upd, &out, session.RoleAdmin)
}

func (c *Client) DriverWallets(ctx context.Context) ([]models.DriverWallet, error) {
	var out []models.DriverWallet
	return out, c.do(ctx, http.MethodGet, "/admin/finance/wallets", nil, nil, &out, session.RoleAdmin)
}

func (c *Client) DashboardStats(ctx context.Context) (models.DashboardStats, error) {
	var out models.DashboardStats
	return out, c.do(ctx, http.MethodGet, "/admin/dashboard-stats", nil, nil, &out, session.RoleAdmin)
}
