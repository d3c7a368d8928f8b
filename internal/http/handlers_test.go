package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/ride-booking/internal/api"
	"github.com/example/ride-booking/internal/booking"
	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/tracker"
)

type fakeBooking struct {
	draft     booking.Draft
	submitErr error
	pickups   []string
}

func (f *fakeBooking) Draft() booking.Draft { return f.draft }
func (f *fakeBooking) SetPickup(text string) {
	f.pickups = append(f.pickups, text)
	f.draft.PickupText = text
	f.draft.Phase = booking.PhaseAwaitingGeocode
}
func (f *fakeBooking) SetDrop(text string) { f.draft.DropText = text }
func (f *fakeBooking) SelectVehicle(_ context.Context, id int64) error {
	if id != 2 {
		return booking.ErrUnknownVehicle
	}
	f.draft.VehicleType = &models.VehicleType{ID: 2, BaseFare: 100, PricePerKm: 40}
	f.draft.EstimatedPrice = 260
	return nil
}
func (f *fakeBooking) Submit(context.Context) (models.Order, error) {
	if f.submitErr != nil {
		return models.Order{}, f.submitErr
	}
	return models.Order{ID: 42, Status: models.StatusPending}, nil
}
func (f *fakeBooking) LoadVehicleTypes(context.Context) ([]models.VehicleType, error) {
	return []models.VehicleType{{ID: 2, Name: "Tuk"}}, nil
}

type fakeTracker struct {
	active    *models.Order
	cancelErr error
}

func (f *fakeTracker) Active() (models.Order, bool) {
	if f.active == nil {
		return models.Order{}, false
	}
	return *f.active, true
}
func (f *fakeTracker) Cancel(context.Context) error { return f.cancelErr }

func newTestServer(b *fakeBooking, tr Tracker, g geo.Geo) *Server {
	return NewServer(b, tr, g, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestSetPickupAcceptedWithRequestID(t *testing.T) {
	b := &fakeBooking{draft: booking.Draft{Phase: booking.PhaseIdle}}
	s := newTestServer(b, &fakeTracker{}, nil)

	rec := do(t, s, http.MethodPut, "/api/v1/draft/pickup", `{"text":"Colombo Fort"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id")
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["pickupText"] != "Colombo Fort" || got["phase"] != string(booking.PhaseAwaitingGeocode) {
		t.Fatalf("draft = %v", got)
	}
}

func TestSelectVehicleShowsFormattedPrice(t *testing.T) {
	b := &fakeBooking{}
	s := newTestServer(b, &fakeTracker{}, nil)

	rec := do(t, s, http.MethodPut, "/api/v1/draft/vehicle", `{"vehicleTypeId":2}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"priceText":"260.00"`) {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if rec := do(t, s, http.MethodPut, "/api/v1/draft/vehicle", `{"vehicleTypeId":9}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown vehicle status = %d", rec.Code)
	}
}

func TestSubmitErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{booking.ErrNotReady, http.StatusConflict, "not ready"},
		{booking.ErrOrderActive, http.StatusConflict, "already in progress"},
		{&api.Error{Status: 401, Message: "expired"}, http.StatusUnauthorized, "log in again"},
		{&api.Error{Status: 400, Message: "Insufficient wallet balance"}, http.StatusBadGateway, "Insufficient wallet balance"},
	}
	for _, tc := range cases {
		s := newTestServer(&fakeBooking{submitErr: tc.err}, &fakeTracker{}, nil)
		rec := do(t, s, http.MethodPost, "/api/v1/draft/submit", "")
		if rec.Code != tc.code || !strings.Contains(rec.Body.String(), tc.msg) {
			t.Errorf("%v: status=%d body=%s", tc.err, rec.Code, rec.Body)
		}
	}

	s := newTestServer(&fakeBooking{}, &fakeTracker{}, nil)
	if rec := do(t, s, http.MethodPost, "/api/v1/draft/submit", ""); rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d", rec.Code)
	}
}

func TestOrderAndCancel(t *testing.T) {
	tr := &fakeTracker{}
	s := newTestServer(&fakeBooking{}, tr, nil)
	if rec := do(t, s, http.MethodGet, "/api/v1/order", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("no order status = %d", rec.Code)
	}
	tr.active = &models.Order{ID: 7, Status: models.StatusAccepted}
	if rec := do(t, s, http.MethodGet, "/api/v1/order", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":7`) {
		t.Fatalf("order = %d %s", rec.Code, rec.Body)
	}
	tr.cancelErr = tracker.ErrNotCancellable
	if rec := do(t, s, http.MethodPost, "/api/v1/order/cancel", ""); rec.Code != http.StatusConflict {
		t.Fatalf("cancel accepted order status = %d", rec.Code)
	}
	tr.cancelErr = nil
	if rec := do(t, s, http.MethodPost, "/api/v1/order/cancel", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d", rec.Code)
	}
}

func TestNearbyAroundPickup(t *testing.T) {
	idx := geo.NewIndex()
	ctx := context.Background()
	_ = idx.Upsert(ctx, models.DriverSnapshot{ID: 1, CurrentLatitude: 6.935, CurrentLongitude: 79.843})
	_ = idx.Upsert(ctx, models.DriverSnapshot{ID: 2, CurrentLatitude: 7.29, CurrentLongitude: 80.63})
	pickup := models.Coord{Lat: 6.9344, Lon: 79.8428}
	s := newTestServer(&fakeBooking{draft: booking.Draft{Pickup: &pickup}}, &fakeTracker{}, idx)

	rec := do(t, s, http.MethodGet, "/api/v1/drivers/nearby?radius_km=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var ds []models.DriverSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &ds); err != nil {
		t.Fatal(err)
	}
	if len(ds) != 1 || ds[0].ID != 1 {
		t.Fatalf("nearby = %+v", ds)
	}
	if rec := do(t, s, http.MethodGet, "/api/v1/drivers/nearby?lat=abc&lon=1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad coords status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeBooking{}, &fakeTracker{}, nil)
	if rec := do(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body)
	}
}
