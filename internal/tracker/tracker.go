// Package tracker follows the session's one active order. Poll results,
// refetches and push events all pass through the same reconciliation so the
// local view never regresses.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/fare"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
	"github.com/example/ride-booking/internal/push"
)

var (
	ErrNoActiveOrder  = errors.New("no active order")
	ErrNotCancellable = errors.New("order can only be cancelled while pending")
)

type API interface {
	MyOrders(ctx context.Context) ([]models.Order, error)
	Order(ctx context.Context, id int64) (models.Order, error)
	CancelOrder(ctx context.Context, id int64) error
}

// Channel is one push connection owned by the tracker for a single order.
type Channel interface {
	Subscribe(destination string, h push.Handler) (unsubscribe func())
	Close() error
}

// ChannelFactory opens a channel for key.
type ChannelFactory func(key string) Channel

type EventSink interface {
	Publish(ctx context.Context, ev models.TrackingEvent) error
}

type Journal interface {
	SaveOrder(ctx context.Context, o models.Order) error
	UpdateStatus(ctx context.Context, id int64, status models.OrderStatus) error
}

type Payments interface {
	Hold(ctx context.Context, orderID int64, amount int64) (string, error)
	Capture(ctx context.Context, paymentIntentID string) error
	Cancel(ctx context.Context, paymentIntentID string) error
}

// Listener receives a copy of the active order after every change. A
// terminal status means the order has been detached.
type Listener func(o models.Order)

type Config struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration

	// EventBuffer bounds the tracking events waiting for the sink.
	EventBuffer int
}

// Hooks are optional side effects. Their failures are logged, never
// surfaced to the tracked flow.
type Hooks struct {
	Sink     EventSink
	Journal  Journal
	Payments Payments
}

func OrderTopic(orderID int64) string {
	return fmt.Sprintf("/topic/order/%d", orderID)
}

func TrackingTopic(driverID int64) string {
	return fmt.Sprintf("/topic/tracking/%d", driverID)
}

// ChannelKey names the push channel an order needs: per order until a
// driver is assigned, per driver afterwards.
func ChannelKey(o models.Order) string {
	if o.Driver != nil && o.Driver.ID != 0 {
		return fmt.Sprintf("driver:%d", o.Driver.ID)
	}
	return fmt.Sprintf("order:%d", o.ID)
}

type Tracker struct {
	api    API
	open   ChannelFactory
	hooks  Hooks
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	events *eventQueue

	mu         sync.Mutex
	active     *models.Order
	locVersion uint64
	holdID     string
	listeners  []Listener

	// wireMu serializes channel changes; chanKey and ch are guarded by it.
	wireMu  sync.Mutex
	chanKey string
	ch      Channel
}

func New(api API, open ChannelFactory, cfg Config, hooks Hooks, logger *slog.Logger) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		api:    api,
		open:   open,
		hooks:  hooks,
		cfg:    cfg,
		logger: logger.With("component", "tracker"),
		now:    time.Now,
	}
	if hooks.Sink != nil {
		t.events = newEventQueue(hooks.Sink, cfg.EventBuffer, cfg.RequestTimeout, t.logger)
	}
	return t
}

// Close flushes pending tracking events to the sink. Call it after Run has
// returned.
func (t *Tracker) Close() {
	t.events.close()
}

func (t *Tracker) OnChange(l Listener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()
}

// Active returns a copy of the tracked order.
func (t *Tracker) Active() (models.Order, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return models.Order{}, false
	}
	return t.active.Clone(), true
}

func (t *Tracker) HasActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active != nil
}

// Detect attaches the first non-terminal order of the session, if any.
func (t *Tracker) Detect(ctx context.Context) (bool, error) {
	orders, err := t.api.MyOrders(ctx)
	if err != nil {
		return false, fmt.Errorf("detect active order: %w", err)
	}
	for _, o := range orders {
		if !o.Status.Terminal() {
			t.Attach(ctx, o)
			return true, nil
		}
	}
	return false, nil
}

// Attach makes o the active order. An order already being tracked is
// reconciled instead; a terminal order is ignored.
func (t *Tracker) Attach(ctx context.Context, o models.Order) {
	if o.Status.Terminal() {
		return
	}
	t.mu.Lock()
	if t.active != nil {
		sameOrder := t.active.ID == o.ID
		issued := t.locVersion
		t.mu.Unlock()
		if sameOrder {
			t.reconcile(ctx, o, issued, "")
		} else {
			t.logger.Warn("attach ignored; another order is active", "order_id", o.ID)
		}
		return
	}
	cp := o.Clone()
	t.active = &cp
	t.locVersion = 0
	t.holdID = ""
	snapshot := cp.Clone()
	t.mu.Unlock()

	observability.ActiveOrders.Set(1)
	observability.TrackerEvents.WithLabelValues("attach", "applied").Inc()
	t.logger.Info("tracking order", "order_id", o.ID, "status", o.Status)
	t.rewire()
	t.placeHold(ctx, snapshot)
	t.journal(ctx, snapshot)
	t.publish(models.TrackingEvent{Kind: models.EventAttached, OrderID: o.ID, Status: o.Status})
	t.notify(snapshot)
}

// Refresh polls the backend: detect when idle, refetch when tracking.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	if t.active == nil {
		t.mu.Unlock()
		_, err := t.Detect(ctx)
		return err
	}
	t.mu.Unlock()
	return t.refetch(ctx, "")
}

// refetch loads the active order and reconciles it. floor is a status the
// caller already knows the order has reached.
func (t *Tracker) refetch(ctx context.Context, floor models.OrderStatus) error {
	t.mu.Lock()
	if t.active == nil {
		t.mu.Unlock()
		return nil
	}
	id := t.active.ID
	issued := t.locVersion
	t.mu.Unlock()

	o, err := t.api.Order(ctx, id)
	if err != nil {
		orders, lerr := t.api.MyOrders(ctx)
		if lerr != nil {
			observability.TrackerEvents.WithLabelValues("refetch", "error").Inc()
			return fmt.Errorf("refetch order %d: %w", id, errors.Join(err, lerr))
		}
		found := false
		for _, cand := range orders {
			if cand.ID == id {
				o, found = cand, true
				break
			}
		}
		if !found {
			observability.TrackerEvents.WithLabelValues("refetch", "missing").Inc()
			return fmt.Errorf("refetch order %d: %w", id, err)
		}
	}
	t.reconcile(ctx, o, issued, floor)
	return nil
}

// reconcile merges a fetched snapshot into the active order. issued is the
// location version current when the fetch was started: if a push location
// arrived since, the pushed coordinates win over the snapshot's.
func (t *Tracker) reconcile(ctx context.Context, snap models.Order, issued uint64, floor models.OrderStatus) {
	t.mu.Lock()
	cur := t.active
	if cur == nil || cur.ID != snap.ID {
		t.mu.Unlock()
		observability.TrackerEvents.WithLabelValues("snapshot", "ignored").Inc()
		return
	}
	next := snap.Clone()
	if next.Status.Rank() < cur.Status.Rank() {
		next.Status = cur.Status
	}
	if floor != "" && next.Status.Rank() < floor.Rank() {
		next.Status = floor
	}
	if next.Driver == nil && cur.Driver != nil {
		d := *cur.Driver
		next.Driver = &d
	}
	if t.locVersion != issued && cur.Driver != nil && next.Driver != nil && next.Driver.ID == cur.Driver.ID {
		next.Driver.CurrentLatitude = cur.Driver.CurrentLatitude
		next.Driver.CurrentLongitude = cur.Driver.CurrentLongitude
	}
	if reflect.DeepEqual(*cur, next) {
		t.mu.Unlock()
		observability.TrackerEvents.WithLabelValues("snapshot", "unchanged").Inc()
		return
	}
	statusChanged := next.Status != cur.Status
	*cur = next
	snapshot := next.Clone()
	t.mu.Unlock()

	observability.TrackerEvents.WithLabelValues("snapshot", "applied").Inc()
	if snapshot.Status.Terminal() {
		t.finish(ctx, snapshot)
		return
	}
	t.rewire()
	if statusChanged {
		t.journal(ctx, snapshot)
		t.publish(statusEvent(snapshot))
	}
	t.notify(snapshot)
}

func (t *Tracker) applyLocation(orderID int64, u models.LocationUpdate) {
	t.mu.Lock()
	cur := t.active
	switch {
	case cur == nil || cur.ID != orderID || (u.OrderID != 0 && u.OrderID != cur.ID):
		t.mu.Unlock()
		observability.TrackerEvents.WithLabelValues("location", "ignored").Inc()
		return
	case cur.Driver == nil || cur.Driver.ID != u.DriverID:
		t.mu.Unlock()
		observability.TrackerEvents.WithLabelValues("location", "ignored").Inc()
		t.logger.Debug("location for another driver ignored", "order_id", orderID, "driver_id", u.DriverID)
		return
	case cur.Driver.CurrentLatitude == u.Latitude && cur.Driver.CurrentLongitude == u.Longitude:
		t.mu.Unlock()
		observability.TrackerEvents.WithLabelValues("location", "duplicate").Inc()
		return
	}
	cur.Driver.CurrentLatitude = u.Latitude
	cur.Driver.CurrentLongitude = u.Longitude
	t.locVersion++
	snapshot := cur.Clone()
	t.mu.Unlock()

	observability.TrackerEvents.WithLabelValues("location", "applied").Inc()
	t.publish(models.TrackingEvent{
		Kind:      models.EventLocation,
		OrderID:   snapshot.ID,
		DriverID:  u.DriverID,
		Latitude:  u.Latitude,
		Longitude: u.Longitude,
	})
	t.notify(snapshot)
}

func (t *Tracker) applyStatus(ctx context.Context, orderID int64, u models.OrderStatusUpdate) {
	t.mu.Lock()
	cur := t.active
	if cur == nil || cur.ID != orderID || (u.OrderID != 0 && u.OrderID != cur.ID) || u.Status.Rank() == 0 {
		t.mu.Unlock()
		observability.TrackerEvents.WithLabelValues("status", "ignored").Inc()
		return
	}
	if u.Status.Rank() < cur.Status.Rank() || (u.Status == cur.Status && u.Status != models.StatusAccepted) {
		t.mu.Unlock()
		observability.TrackerEvents.WithLabelValues("status", "stale").Inc()
		return
	}
	if u.Status == models.StatusAccepted {
		t.mu.Unlock()
		observability.TrackerEvents.WithLabelValues("status", "refetch").Inc()
		if err := t.refetch(ctx, models.StatusAccepted); err != nil {
			t.logger.Warn("refetch after acceptance failed", "order_id", orderID, "error", err)
		}
		return
	}
	cur.Status = u.Status
	snapshot := cur.Clone()
	t.mu.Unlock()

	observability.TrackerEvents.WithLabelValues("status", "applied").Inc()
	if snapshot.Status.Terminal() {
		t.finish(ctx, snapshot)
		return
	}
	if t.hooks.Journal != nil {
		if err := t.hooks.Journal.UpdateStatus(ctx, snapshot.ID, snapshot.Status); err != nil {
			t.logger.Warn("journal status", "order_id", snapshot.ID, "error", err)
		}
	}
	t.publish(statusEvent(snapshot))
	t.notify(snapshot)
}

// Cancel cancels the active order. Only pending orders can be cancelled; on
// success the order is detached without waiting for the push confirmation.
func (t *Tracker) Cancel(ctx context.Context) error {
	t.mu.Lock()
	cur := t.active
	if cur == nil {
		t.mu.Unlock()
		return ErrNoActiveOrder
	}
	if cur.Status != models.StatusPending {
		t.mu.Unlock()
		return ErrNotCancellable
	}
	snapshot := cur.Clone()
	t.mu.Unlock()

	if err := t.api.CancelOrder(ctx, snapshot.ID); err != nil {
		return err
	}
	snapshot.Status = models.StatusCancelled
	t.finish(ctx, snapshot)
	return nil
}

// finish detaches the order that reached terminal status final.
func (t *Tracker) finish(ctx context.Context, final models.Order) {
	t.mu.Lock()
	if t.active == nil || t.active.ID != final.ID {
		t.mu.Unlock()
		return
	}
	t.active = nil
	holdID := t.holdID
	t.holdID = ""
	t.mu.Unlock()

	observability.ActiveOrders.Set(0)
	t.logger.Info("order finished", "order_id", final.ID, "status", final.Status)
	t.rewire()
	t.settleHold(ctx, holdID, final)
	t.journal(ctx, final)
	t.publish(statusEvent(final))
	t.publish(models.TrackingEvent{Kind: models.EventDetached, OrderID: final.ID, Status: final.Status})
	t.notify(final)
}

// Detach stops tracking without any terminal side effects.
func (t *Tracker) Detach() {
	t.mu.Lock()
	had := t.active != nil
	t.active = nil
	t.holdID = ""
	t.mu.Unlock()
	if had {
		observability.ActiveOrders.Set(0)
	}
	t.rewire()
}

// Run detects the active order and then polls until ctx is done. The channel
// is closed on every exit path.
func (t *Tracker) Run(ctx context.Context) error {
	defer t.Detach()
	if _, err := t.Detect(ctx); err != nil {
		t.logger.Warn("initial detect failed", "error", err)
	}
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.Refresh(ctx); err != nil {
				t.logger.Warn("poll failed", "error", err)
			}
		}
	}
}

// rewire makes the open channel match the active order's key.
func (t *Tracker) rewire() {
	t.wireMu.Lock()
	defer t.wireMu.Unlock()

	t.mu.Lock()
	var want string
	var orderID, driverID int64
	if t.active != nil {
		want = ChannelKey(*t.active)
		orderID = t.active.ID
		if t.active.Driver != nil {
			driverID = t.active.Driver.ID
		}
	}
	t.mu.Unlock()

	if want == t.chanKey {
		return
	}
	if t.ch != nil {
		if err := t.ch.Close(); err != nil {
			t.logger.Debug("closing channel", "key", t.chanKey, "error", err)
		}
		t.ch = nil
	}
	t.chanKey = want
	if want == "" || t.open == nil {
		return
	}
	t.logger.Debug("opening channel", "key", want)
	ch := t.open(want)
	t.ch = ch
	if driverID != 0 {
		ch.Subscribe(TrackingTopic(driverID), t.locationHandler(orderID))
	}
	ch.Subscribe(OrderTopic(orderID), t.statusHandler(orderID))
}

func (t *Tracker) locationHandler(orderID int64) push.Handler {
	return func(m push.Message) {
		var u models.LocationUpdate
		if err := m.Decode(&u); err != nil {
			t.logger.Warn("bad location payload", "destination", m.Destination, "error", err)
			return
		}
		t.applyLocation(orderID, u)
	}
}

func (t *Tracker) statusHandler(orderID int64) push.Handler {
	return func(m push.Message) {
		var u models.OrderStatusUpdate
		if err := m.Decode(&u); err != nil {
			t.logger.Warn("bad status payload", "destination", m.Destination, "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.RequestTimeout)
		defer cancel()
		t.applyStatus(ctx, orderID, u)
	}
}

func (t *Tracker) notify(o models.Order) {
	t.mu.Lock()
	ls := append([]Listener(nil), t.listeners...)
	t.mu.Unlock()
	for _, l := range ls {
		l(o.Clone())
	}
}

func (t *Tracker) publish(ev models.TrackingEvent) {
	if t.events == nil {
		return
	}
	ev.At = t.now().UTC()
	t.events.enqueue(ev)
}

func (t *Tracker) journal(ctx context.Context, o models.Order) {
	if t.hooks.Journal == nil {
		return
	}
	if err := t.hooks.Journal.SaveOrder(ctx, o); err != nil {
		t.logger.Warn("journal order", "order_id", o.ID, "error", err)
	}
}

func (t *Tracker) placeHold(ctx context.Context, o models.Order) {
	if t.hooks.Payments == nil || o.Status != models.StatusPending {
		return
	}
	amount := fare.MinorUnits(o.Price)
	if amount <= 0 {
		return
	}
	id, err := t.hooks.Payments.Hold(ctx, o.ID, amount)
	if err != nil {
		t.logger.Warn("fare hold failed", "order_id", o.ID, "error", err)
		return
	}
	t.mu.Lock()
	if t.active != nil && t.active.ID == o.ID {
		t.holdID = id
	}
	t.mu.Unlock()
}

func (t *Tracker) settleHold(ctx context.Context, holdID string, o models.Order) {
	if t.hooks.Payments == nil || holdID == "" {
		return
	}
	var err error
	switch o.Status {
	case models.StatusCompleted:
		err = t.hooks.Payments.Capture(ctx, holdID)
	case models.StatusCancelled:
		err = t.hooks.Payments.Cancel(ctx, holdID)
	}
	if err != nil {
		t.logger.Warn("settling fare hold failed", "order_id", o.ID, "status", o.Status, "error", err)
	}
}

func statusEvent(o models.Order) models.TrackingEvent {
	ev := models.TrackingEvent{Kind: models.EventStatus, OrderID: o.ID, Status: o.Status}
	if o.Driver != nil {
		ev.DriverID = o.Driver.ID
		ev.Latitude = o.Driver.CurrentLatitude
		ev.Longitude = o.Driver.CurrentLongitude
	}
	return ev
}
