package fare

import (
	"testing"

	"github.com/example/ride-booking/internal/models"
)

func TestEstimateColomboScenario(t *testing.T) {
	vt := &models.VehicleType{ID: 1, Name: "Car", BaseFare: 100, PricePerKm: 50}
	got := Estimate(vt, 3.2)
	if Format(got) != "260.00" {
		t.Fatalf("expected 260.00, got %s", Format(got))
	}
}

func TestEstimateZeroWhenUnset(t *testing.T) {
	vt := &models.VehicleType{BaseFare: 100, PricePerKm: 50}
	cases := []struct {
		name string
		vt   *models.VehicleType
		km   float64
	}{
		{"no vehicle", nil, 3},
		{"no distance", vt, 0},
		{"negative distance", vt, -1},
	}
	for _, c := range cases {
		if got := Estimate(c.vt, c.km); got != 0 {
			t.Errorf("%s: expected 0, got %f", c.name, got)
		}
	}
}

func TestEstimateMonotonic(t *testing.T) {
	prev := 0.0
	for km := 0.5; km < 50; km += 0.5 {
		got := Estimate(&models.VehicleType{BaseFare: 80, PricePerKm: 40}, km)
		if got < prev {
			t.Fatalf("fare decreased at %fkm: %f < %f", km, got, prev)
		}
		if want := 80 + km*40; got != want {
			t.Fatalf("expected %f, got %f", want, got)
		}
		prev = got
	}
	prev = 0
	for rate := 0.0; rate < 200; rate += 10 {
		got := Estimate(&models.VehicleType{BaseFare: 80, PricePerKm: rate}, 7.3)
		if got < prev {
			t.Fatalf("fare decreased at rate %f", rate)
		}
		prev = got
	}
}

func TestMinorUnits(t *testing.T) {
	if got := MinorUnits(260.005); got != 26001 && got != 26000 {
		t.Fatalf("unexpected rounding %d", got)
	}
	if got := MinorUnits(260); got != 26000 {
		t.Fatalf("expected 26000, got %d", got)
	}
}
