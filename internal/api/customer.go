package api

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/session"
)

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*session.Session, error) {
	var out models.LoginResponse
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, in, &out); err != nil {
		return nil, err
	}
	return session.New(out.Token, out.Email, out.Role)
}

func (c *Client) VehicleTypes(ctx context.Context) ([]models.VehicleType, error) {
	var out []models.VehicleType
	return out, c.do(ctx, http.MethodGet, "/vehicle-types", nil, nil, &out)
}

func (c *Client) CreateOrder(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	var out models.Order
	return out, c.do(ctx, http.MethodPost, "/orders", nil, req, &out)
}

func (c *Client) MyOrders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	return out, c.do(ctx, http.MethodGet, "/orders/my-orders", nil, nil, &out)
}

func (c *Client) Order(ctx context.Context, id int64) (models.Order, error) {
	var out models.Order
	return out, c.do(ctx, http.MethodGet, idPath("/orders/%d", id), nil, nil, &out)
}

// CancelOrder is accepted by the backend only while the order is PENDING.
func (c *Client) CancelOrder(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, idPath("/orders/%d/cancel", id), nil, struct{}{}, nil)
}

func (c *Client) AvailableDrivers(ctx context.Context) ([]models.DriverSnapshot, error) {
	var out []models.DriverSnapshot
	return out, c.do(ctx, http.MethodGet, "/drivers/available", nil, nil, &out)
}

func (c *Client) WalletBalance(ctx context.Context) (models.Wallet, error) {
	var out models.Wallet
	return out, c.do(ctx, http.MethodGet, "/wallet/balance", nil, nil, &out)
}

func (c *Client) TopUp(ctx context.Context, amount float64) (models.Wallet, error) {
	var out models.Wallet
	q := url.Values{"amount": {strconv.FormatFloat(amount, 'f', 2, 64)}}
	return out, c.do(ctx, http.MethodPost, "/wallet/top-up", q, nil, &out)
}

// WalletTransactions returns the wallet history, newest first.
func (c *Client) WalletTransactions(ctx context.Context) ([]models.WalletTransaction, error) {
	var out []models.WalletTransaction
	if err := c.do(ctx, http.MethodGet, "/wallet/transactions", nil, nil, &out); err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b models.WalletTransaction) int {
		if n := strings.Compare(b.When(), a.When()); n != 0 {
			return n
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

var ErrFullNameRequired = errors.New("full name is required")

// Profile looks up the account by email; empty means the session's own.
func (c *Client) Profile(ctx context.Context, email string) (models.Profile, error) {
	if email == "" && c.Session != nil {
		email = c.Session.Email
	}
	if email == "" {
		return models.Profile{}, errors.New("no email to look up")
	}
	var out models.Profile
	return out, c.do(ctx, http.MethodGet, "/users/email/"+url.PathEscape(email), nil, nil, &out)
}

func (c *Client) UpdateProfile(ctx context.Context, id int64, upd models.ProfileUpdate) (models.Profile, error) {
	upd.FullName = strings.TrimSpace(upd.FullName)
	upd.PhoneNumber = strings.TrimSpace(upd.PhoneNumber)
	if upd.FullName == "" {
		return models.Profile{}, ErrFullNameRequired
	}
	var out models.Profile
	return out, c.do(ctx, http.MethodPut, idPath("/users/%d", id), nil, upd, &out)
}
