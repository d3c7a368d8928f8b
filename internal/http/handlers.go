// Package httpapi exposes the booking and tracking flow to local clients.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-booking/internal/api"
	"github.com/example/ride-booking/internal/booking"
	"github.com/example/ride-booking/internal/fare"
	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/tracker"
)

type Booking interface {
	Draft() booking.Draft
	SetPickup(text string)
	SetDrop(text string)
	SelectVehicle(ctx context.Context, id int64) error
	Submit(ctx context.Context) (models.Order, error)
	LoadVehicleTypes(ctx context.Context) ([]models.VehicleType, error)
}

type Tracker interface {
	Active() (models.Order, bool)
	Cancel(ctx context.Context) error
}

type Server struct {
	Booking Booking
	Tracker Tracker
	Fleet   geo.Geo
	logger  *slog.Logger
	mux     *mux.Router
}

func NewServer(b Booking, t Tracker, fleet geo.Geo, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Booking: b, Tracker: t, Fleet: fleet, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.mux.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/draft", s.handleGetDraft).Methods(http.MethodGet)
	v1.HandleFunc("/draft/pickup", s.handleSetAddress(s.Booking.SetPickup)).Methods(http.MethodPut)
	v1.HandleFunc("/draft/drop", s.handleSetAddress(s.Booking.SetDrop)).Methods(http.MethodPut)
	v1.HandleFunc("/draft/vehicle", s.handleSelectVehicle).Methods(http.MethodPut)
	v1.HandleFunc("/draft/submit", s.handleSubmit).Methods(http.MethodPost)
	v1.HandleFunc("/order", s.handleGetOrder).Methods(http.MethodGet)
	v1.HandleFunc("/order/cancel", s.handleCancel).Methods(http.MethodPost)
	v1.HandleFunc("/drivers/nearby", s.handleNearby).Methods(http.MethodGet)
	v1.HandleFunc("/vehicle-types", s.handleVehicleTypes).Methods(http.MethodGet)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type draftView struct {
	booking.Draft
	PriceText string `json:"priceText"`
}

func viewOf(d booking.Draft) draftView {
	return draftView{Draft: d, PriceText: fare.Format(d.EstimatedPrice)}
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(s.Booking.Draft()))
}

func (s *Server) handleSetAddress(set func(string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}
		set(body.Text)
		// geocoding runs after the debounce; clients poll the draft
		writeJSON(w, http.StatusAccepted, viewOf(s.Booking.Draft()))
	}
}

func (s *Server) handleSelectVehicle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VehicleTypeID int64 `json:"vehicleTypeId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := s.Booking.SelectVehicle(r.Context(), body.VehicleTypeID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s.Booking.Draft()))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	o, err := s.Booking.Submit(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := s.Tracker.Active()
	if !ok {
		writeError(w, http.StatusNotFound, tracker.ErrNoActiveOrder.Error())
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.Tracker.Cancel(r.Context()); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	if s.Fleet == nil {
		writeJSON(w, http.StatusOK, []models.DriverSnapshot{})
		return
	}
	q := r.URL.Query()
	var center models.Coord
	if q.Get("lat") != "" || q.Get("lon") != "" {
		lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
		lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
		center = models.Coord{Lat: lat, Lon: lon}
		if err1 != nil || err2 != nil || !center.Valid() {
			writeError(w, http.StatusBadRequest, "lat and lon must be valid coordinates")
			return
		}
	} else if p := s.Booking.Draft().Pickup; p != nil {
		center = *p
	} else {
		writeError(w, http.StatusBadRequest, "lat/lon required until the pickup is resolved")
		return
	}
	radius := 5.0
	if v := q.Get("radius_km"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			writeError(w, http.StatusBadRequest, "radius_km must be a positive number")
			return
		}
		radius = f
	}
	limit := 10
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	ds, err := s.Fleet.Nearby(r.Context(), center, radius, limit)
	if err != nil {
		s.logger.Error("nearby drivers", "error", err)
		writeError(w, http.StatusInternalServerError, "driver lookup failed")
		return
	}
	if ds == nil {
		ds = []models.DriverSnapshot{}
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) handleVehicleTypes(w http.ResponseWriter, r *http.Request) {
	vts, err := s.Booking.LoadVehicleTypes(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vts)
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var apiErr *api.Error
	switch {
	case errors.Is(err, booking.ErrNotReady),
		errors.Is(err, booking.ErrOrderActive),
		errors.Is(err, tracker.ErrNotCancellable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrUnknownVehicle):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracker.ErrNoActiveOrder):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, api.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "session expired; log in again")
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, apiErr.Message)
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
