package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-booking/internal/models"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failGeo  int // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
	lastLoc  *redis.GeoLocation
	lastMeta map[string]interface{}
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	f.lastLoc = loc
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	f.lastMeta = values
	return nil
}

func locationEvent() models.TrackingEvent {
	return models.TrackingEvent{Kind: models.EventLocation, OrderID: 7, DriverID: 3, Latitude: 6.93, Longitude: 79.85, At: time.Now()}
}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 1, failH: 1}
	ctx := context.Background()
	start := time.Now()
	if err := updateRedisWithRetry(ctx, f, "drivers_geo", locationEvent(), 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	if f.lastLoc.Name != "3" || f.lastLoc.Latitude != 6.93 || f.lastMeta["order_id"] != "7" {
		t.Fatalf("unexpected write loc=%+v meta=%v", f.lastLoc, f.lastMeta)
	}
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failGeo: 5, failH: 0}
	ctx := context.Background()
	if err := updateRedisWithRetry(ctx, f, "drivers_geo", locationEvent(), 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}

func TestPositional(t *testing.T) {
	ev := locationEvent()
	if !positional(ev) {
		t.Fatal("location event should be positional")
	}
	detached := models.TrackingEvent{Kind: models.EventDetached, OrderID: 7}
	if positional(detached) {
		t.Fatal("detach carries no position")
	}
	unassigned := models.TrackingEvent{Kind: models.EventStatus, OrderID: 7, Status: models.StatusPending}
	if positional(unassigned) {
		t.Fatal("status without a driver carries no position")
	}
}

type scriptedReader struct {
	msgs   []kafka.Message
	cancel context.CancelFunc
}

func (s *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(s.msgs) == 0 {
		s.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := s.msgs[0]
	s.msgs = s.msgs[1:]
	return m, nil
}

func TestConsumeSkipsInvalidAndNonPositional(t *testing.T) {
	good, _ := json.Marshal(locationEvent())
	detach, _ := json.Marshal(models.TrackingEvent{Kind: models.EventDetached, OrderID: 7})
	ctx, cancel := context.WithCancel(context.Background())
	r := &scriptedReader{cancel: cancel, msgs: []kafka.Message{
		{Value: []byte("{not json")},
		{Value: detach},
		{Value: good},
	}}
	f := &fakeUpdater{}
	consume(ctx, r, f, "drivers_geo", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if f.geoCalls != 1 {
		t.Fatalf("expected exactly one redis update, got %d", f.geoCalls)
	}
}
