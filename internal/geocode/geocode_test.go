package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ride-booking/internal/cache"
	"github.com/example/ride-booking/internal/models"
)

func TestResolveAppendsCountry(t *testing.T) {
	var gotQ string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQ = r.URL.Query().Get("q")
		if r.URL.Path != "/search" || r.URL.Query().Get("limit") != "1" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Write([]byte(`[{"lat":"6.9344","lon":"79.8428","display_name":"Colombo Fort"}]`))
	}))
	defer srv.Close()

	g := NewNominatimClient(srv.URL, "Sri Lanka", nil)
	c, err := g.Resolve(context.Background(), "Colombo Fort")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQ != "Colombo Fort, Sri Lanka" {
		t.Fatalf("unexpected query %q", gotQ)
	}
	if c.Lat != 6.9344 || c.Lon != 79.8428 {
		t.Fatalf("unexpected coord %+v", c)
	}
}

func TestResolveEmptyResultIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	g := NewNominatimClient(srv.URL, "Sri Lanka", nil)
	if _, err := g.Resolve(context.Background(), "zzzNotAPlace123"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveNetworkErrorIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	g := NewNominatimClient(url, "", nil)
	g.Client.Timeout = time.Second
	if _, err := g.Resolve(context.Background(), "Kandy"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveBlankInput(t *testing.T) {
	g := NewNominatimClient("http://unused.invalid", "", nil)
	if _, err := g.Resolve(context.Background(), "   "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type countingGeocoder struct {
	calls int
	err   error
}

func (c *countingGeocoder) Resolve(ctx context.Context, place string) (models.Coord, error) {
	c.calls++
	return models.Coord{Lat: 1, Lon: 2}, c.err
}

func TestCachedStoresHitsOnly(t *testing.T) {
	ctx := context.Background()
	next := &countingGeocoder{}
	g := &Cached{Next: next, Cache: cache.NewMemory(time.Minute)}
	for i := 0; i < 3; i++ {
		if _, err := g.Resolve(ctx, "  Galle   Face "); err != nil {
			t.Fatal(err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}

	miss := &countingGeocoder{err: ErrNotFound}
	g = &Cached{Next: miss, Cache: cache.NewMemory(time.Minute)}
	_, _ = g.Resolve(ctx, "nowhere")
	_, _ = g.Resolve(ctx, "nowhere")
	if miss.calls != 2 {
		t.Fatalf("expected misses to bypass cache, got %d calls", miss.calls)
	}
}
