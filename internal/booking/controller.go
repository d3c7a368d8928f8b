// Package booking drives a draft booking from free-text addresses to a
// submitted order. Address edits are debounced, and only the most recent
// geocode/distance run may write to the draft.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/api"
	"github.com/example/ride-booking/internal/fare"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
)

// MsgLocationNotFound is shown when either address fails to geocode.
const MsgLocationNotFound = "Could not find one or both locations. Please check the spelling."

var (
	ErrNotReady       = errors.New("booking is not ready to submit")
	ErrOrderActive    = errors.New("an order is already in progress")
	ErrUnknownVehicle = errors.New("unknown vehicle type")
	ErrClosed         = errors.New("booking controller closed")
)

type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseAwaitingGeocode  Phase = "awaiting_geocode"
	PhaseAwaitingDistance Phase = "awaiting_distance"
	PhaseAwaitingVehicle  Phase = "awaiting_vehicle"
	PhaseReady            Phase = "ready"
	PhaseSubmitting       Phase = "submitting"
	PhaseError            Phase = "error"
)

// Draft is the booking being composed.
type Draft struct {
	PickupText     string              `json:"pickupText"`
	DropText       string              `json:"dropText"`
	Pickup         *models.Coord       `json:"pickup,omitempty"`
	Drop           *models.Coord       `json:"drop,omitempty"`
	DistanceKm     float64             `json:"distanceKm"`
	VehicleType    *models.VehicleType `json:"vehicleType,omitempty"`
	EstimatedPrice float64             `json:"estimatedPrice"`
	Phase          Phase               `json:"phase"`
	Error          string              `json:"error,omitempty"`
}

func (d Draft) clone() Draft {
	if d.Pickup != nil {
		c := *d.Pickup
		d.Pickup = &c
	}
	if d.Drop != nil {
		c := *d.Drop
		d.Drop = &c
	}
	if d.VehicleType != nil {
		vt := *d.VehicleType
		d.VehicleType = &vt
	}
	return d
}

type Geocoder interface {
	Resolve(ctx context.Context, place string) (models.Coord, error)
}

type Estimator interface {
	Estimate(ctx context.Context, from, to models.Coord) float64
}

type API interface {
	VehicleTypes(ctx context.Context) ([]models.VehicleType, error)
	CreateOrder(ctx context.Context, req models.OrderRequest) (models.Order, error)
}

// Tracker receives the order once it is created.
type Tracker interface {
	HasActive() bool
	Attach(ctx context.Context, o models.Order)
}

type Controller struct {
	geocoder  Geocoder
	estimator Estimator
	api       API
	tracker   Tracker
	debounce  time.Duration
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	draft        Draft
	seq          uint64
	timer        *time.Timer
	vehicleTypes []models.VehicleType
	closed       bool
	listeners    []func(Draft)
}

func NewController(g Geocoder, e Estimator, a API, t Tracker, debounce time.Duration, logger *slog.Logger) *Controller {
	if debounce <= 0 {
		debounce = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		geocoder:  g,
		estimator: e,
		api:       a,
		tracker:   t,
		debounce:  debounce,
		logger:    logger.With("component", "booking"),
		ctx:       ctx,
		cancel:    cancel,
		draft:     Draft{Phase: PhaseIdle},
	}
}

func (c *Controller) OnChange(fn func(Draft)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Draft returns a copy of the current draft.
func (c *Controller) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.clone()
}

func (c *Controller) SetPickup(text string) {
	c.edit(func(d *Draft) { d.PickupText = text })
}

func (c *Controller) SetDrop(text string) {
	c.edit(func(d *Draft) { d.DropText = text })
}

func (c *Controller) edit(apply func(*Draft)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	apply(&c.draft)
	c.scheduleLocked()
	snapshot := c.draft.clone()
	c.mu.Unlock()
	c.notify(snapshot)
}

// scheduleLocked replaces any pending run with a new one after the debounce
// window. Caller holds c.mu.
func (c *Controller) scheduleLocked() {
	c.seq++
	seq := c.seq
	if c.timer != nil {
		if c.timer.Stop() {
			c.wg.Done()
		}
		c.timer = nil
	}
	d := &c.draft
	d.Pickup, d.Drop = nil, nil
	d.DistanceKm, d.EstimatedPrice = 0, 0
	d.Error = ""
	pickup, drop := strings.TrimSpace(d.PickupText), strings.TrimSpace(d.DropText)
	if pickup == "" || drop == "" {
		d.Phase = PhaseIdle
		return
	}
	d.Phase = PhaseAwaitingGeocode
	c.wg.Add(1)
	c.timer = time.AfterFunc(c.debounce, func() {
		defer c.wg.Done()
		c.run(seq, pickup, drop)
	})
}

// current reports whether seq is still the latest run. Caller holds c.mu.
func (c *Controller) current(seq uint64) bool {
	return seq == c.seq && !c.closed
}

func (c *Controller) run(seq uint64, pickupText, dropText string) {
	ctx := c.ctx
	var (
		pickup, drop       models.Coord
		pickupErr, dropErr error
		lookups            sync.WaitGroup
	)
	lookups.Add(2)
	go func() {
		defer lookups.Done()
		pickup, pickupErr = c.geocoder.Resolve(ctx, pickupText)
	}()
	go func() {
		defer lookups.Done()
		drop, dropErr = c.geocoder.Resolve(ctx, dropText)
	}()
	lookups.Wait()

	c.mu.Lock()
	if !c.current(seq) {
		c.mu.Unlock()
		observability.PipelineRuns.WithLabelValues("stale").Inc()
		return
	}
	if pickupErr != nil || dropErr != nil {
		c.draft.Phase = PhaseError
		c.draft.Error = MsgLocationNotFound
		snapshot := c.draft.clone()
		c.mu.Unlock()
		observability.PipelineRuns.WithLabelValues("not_found").Inc()
		c.logger.Info("geocode failed", "pickup", pickupText, "drop", dropText, "error", errors.Join(pickupErr, dropErr))
		c.notify(snapshot)
		return
	}
	c.draft.Pickup, c.draft.Drop = &pickup, &drop
	c.draft.Phase = PhaseAwaitingDistance
	snapshot := c.draft.clone()
	c.mu.Unlock()
	c.notify(snapshot)

	km := c.estimator.Estimate(ctx, pickup, drop)

	c.mu.Lock()
	if !c.current(seq) {
		c.mu.Unlock()
		observability.PipelineRuns.WithLabelValues("stale").Inc()
		return
	}
	c.draft.DistanceKm = round2(km)
	c.repriceLocked()
	if c.draft.VehicleType != nil {
		c.draft.Phase = PhaseReady
	} else {
		c.draft.Phase = PhaseAwaitingVehicle
	}
	snapshot = c.draft.clone()
	c.mu.Unlock()
	observability.PipelineRuns.WithLabelValues("ok").Inc()
	c.notify(snapshot)
}

func (c *Controller) repriceLocked() {
	c.draft.EstimatedPrice = fare.Estimate(c.draft.VehicleType, c.draft.DistanceKm)
}

// LoadVehicleTypes fetches the vehicle catalogue once per controller.
func (c *Controller) LoadVehicleTypes(ctx context.Context) ([]models.VehicleType, error) {
	c.mu.Lock()
	if c.vehicleTypes != nil {
		out := append([]models.VehicleType(nil), c.vehicleTypes...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	vts, err := c.api.VehicleTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vehicle types: %w", err)
	}
	if vts == nil {
		vts = []models.VehicleType{}
	}
	c.mu.Lock()
	c.vehicleTypes = vts
	c.mu.Unlock()
	return append([]models.VehicleType(nil), vts...), nil
}

// SelectVehicle sets the vehicle type and reprices. Geocoding and distance
// are never re-run.
func (c *Controller) SelectVehicle(ctx context.Context, id int64) error {
	vts, err := c.LoadVehicleTypes(ctx)
	if err != nil {
		return err
	}
	var chosen *models.VehicleType
	for i := range vts {
		if vts[i].ID == id {
			chosen = &vts[i]
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("%w: %d", ErrUnknownVehicle, id)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.draft.VehicleType = chosen
	c.repriceLocked()
	if c.draft.Phase == PhaseAwaitingVehicle {
		c.draft.Phase = PhaseReady
	}
	snapshot := c.draft.clone()
	c.mu.Unlock()
	c.notify(snapshot)
	return nil
}

// Submit creates the order. On success the draft resets and the order is
// handed to the tracker; on failure the draft returns to ready with the
// server's message.
func (c *Controller) Submit(ctx context.Context) (models.Order, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.Order{}, ErrClosed
	}
	if c.tracker != nil && c.tracker.HasActive() {
		c.mu.Unlock()
		return models.Order{}, ErrOrderActive
	}
	d := c.draft
	if d.Phase != PhaseReady || d.Pickup == nil || d.Drop == nil || d.VehicleType == nil || !(d.DistanceKm > 0) {
		c.mu.Unlock()
		return models.Order{}, ErrNotReady
	}
	req := models.OrderRequest{
		PickupLocation: d.PickupText,
		DropLocation:   d.DropText,
		Distance:       d.DistanceKm,
		VehicleTypeID:  d.VehicleType.ID,
		EstimatedPrice: d.EstimatedPrice,
		PickupLat:      d.Pickup.Lat,
		PickupLng:      d.Pickup.Lon,
		DropLat:        d.Drop.Lat,
		DropLng:        d.Drop.Lon,
	}
	seq := c.seq
	c.draft.Phase = PhaseSubmitting
	c.draft.Error = ""
	snapshot := c.draft.clone()
	c.mu.Unlock()
	c.notify(snapshot)

	order, err := c.api.CreateOrder(ctx, req)

	c.mu.Lock()
	if err != nil {
		if c.current(seq) && c.draft.Phase == PhaseSubmitting {
			c.draft.Phase = PhaseReady
			c.draft.Error = api.Message(err, "Booking failed. Please try again.")
		}
		snapshot = c.draft.clone()
		c.mu.Unlock()
		observability.BookingsSubmitted.WithLabelValues("error").Inc()
		c.logger.Warn("booking failed", "error", err)
		c.notify(snapshot)
		return models.Order{}, err
	}
	// the draft is handed off; a run scheduled during submission is dropped
	c.seq++
	if c.timer != nil {
		if c.timer.Stop() {
			c.wg.Done()
		}
		c.timer = nil
	}
	c.draft = Draft{Phase: PhaseIdle}
	snapshot = c.draft.clone()
	c.mu.Unlock()

	observability.BookingsSubmitted.WithLabelValues("ok").Inc()
	c.logger.Info("order created", "order_id", order.ID, "price", fare.Format(order.Price))
	if c.tracker != nil {
		c.tracker.Attach(ctx, order)
	}
	c.notify(snapshot)
	return order, nil
}

// Close cancels pending runs and waits for in-flight ones to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.seq++
	if c.timer != nil {
		if c.timer.Stop() {
			c.wg.Done()
		}
		c.timer = nil
	}
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) notify(d Draft) {
	c.mu.Lock()
	ls := append([]func(Draft){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range ls {
		fn(d.clone())
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
