package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/example/ride-booking/internal/fleet"
	"github.com/example/ride-booking/internal/models"
)

func backend(t *testing.T, seen *[]string) *httptest.Server {
	t.Helper()
	chdir(t, t.TempDir())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = append(*seen, r.Method+" "+r.URL.RequestURI()+" "+r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/admin/dashboard-stats":
			_, _ = io.WriteString(w, `{"totalUsers":5,"totalOrders":4}`)
		case "/api/admin/orders/all":
			_, _ = io.WriteString(w, `[{"id":1,"status":"COMPLETED","price":200},{"id":2,"status":"COMPLETED","price":300},{"id":3,"status":"PENDING"},{"id":4,"status":"CANCELLED"}]`)
		case "/api/orders/9/status":
			_, _ = io.WriteString(w, `{"id":9,"status":"DRIVER_ARRIVED"}`)
		case "/api/admin/drivers/3/approve":
			w.WriteHeader(http.StatusOK)
		case "/api/users/email/rider@example.com":
			_, _ = io.WriteString(w, `{"id":12,"email":"rider@example.com","fullName":"Kamal Perera","phoneNumber":"0771234567","role":"CUSTOMER"}`)
		case "/api/users/12":
			var upd models.ProfileUpdate
			_ = json.NewDecoder(r.Body).Decode(&upd)
			_ = json.NewEncoder(w).Encode(models.Profile{ID: 12, Email: "rider@example.com", FullName: upd.FullName, PhoneNumber: upd.PhoneNumber})
		case "/api/orders/7/cancel":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"message":"Order can no longer be cancelled"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, apiURL, role string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("API_URL", apiURL+"/api")
	t.Setenv("AUTH_TOKEN", "tok")
	t.Setenv("AUTH_ROLE", role)
	t.Setenv("AUTH_EMAIL", "rider@example.com")
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAdminDashboard(t *testing.T) {
	var seen []string
	srv := backend(t, &seen)

	out, err := run(t, srv.URL, "ADMIN", "admin", "dashboard")
	if err != nil {
		t.Fatal(err)
	}
	var d fleet.Dashboard
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if d.TotalUsers != 5 || d.CompletedRevenue != 500 {
		t.Fatalf("dashboard = %+v", d)
	}
	if d.Breakdown[0].Count != 1 || d.Breakdown[4].Percent != 50 {
		t.Fatalf("breakdown = %+v", d.Breakdown)
	}
	if !strings.HasSuffix(seen[0], "Bearer tok") {
		t.Fatalf("auth header missing: %v", seen)
	}
}

func TestDriverStatusSendsBackendSpelling(t *testing.T) {
	var seen []string
	srv := backend(t, &seen)

	out, err := run(t, srv.URL, "DRIVER", "driver", "status", "9", "arrived")
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || !strings.HasPrefix(seen[0], "PATCH /api/orders/9/status?status=DRIVER_ARRIVED") {
		t.Fatalf("requests = %v", seen)
	}
	if !strings.Contains(out, `"status": "ARRIVED"`) {
		t.Fatalf("out = %s", out)
	}

	if _, err := run(t, srv.URL, "DRIVER", "driver", "status", "9", "PENDING"); err == nil {
		t.Fatal("PENDING accepted as a driver transition")
	}
}

func TestRoleCheckedBeforeRequest(t *testing.T) {
	var seen []string
	srv := backend(t, &seen)

	if _, err := run(t, srv.URL, "CUSTOMER", "admin", "approve", "3"); err == nil {
		t.Fatal("customer approved a driver")
	}
	if len(seen) != 0 {
		t.Fatalf("request sent without the admin role: %v", seen)
	}
	out, err := run(t, srv.URL, "ADMIN", "admin", "approve", "3")
	if err != nil || !strings.Contains(out, "driver 3: approve ok") {
		t.Fatalf("approve = %q, %v", out, err)
	}
}

func TestCancelShowsBackendMessage(t *testing.T) {
	var seen []string
	srv := backend(t, &seen)

	_, err := run(t, srv.URL, "CUSTOMER", "cancel", "7")
	if err == nil || !strings.Contains(err.Error(), "Order can no longer be cancelled") {
		t.Fatalf("err = %v", err)
	}
}

func TestPricingNeedsAField(t *testing.T) {
	var seen []string
	srv := backend(t, &seen)

	if _, err := run(t, srv.URL, "ADMIN", "admin", "pricing", "2"); err == nil {
		t.Fatal("empty pricing update accepted")
	}
	if len(seen) != 0 {
		t.Fatalf("requests = %v", seen)
	}
}

func TestProfileUpdateKeepsUnchangedFields(t *testing.T) {
	var seen []string
	srv := backend(t, &seen)

	out, err := run(t, srv.URL, "CUSTOMER", "profile", "update", "--phone", "0777654321")
	if err != nil {
		t.Fatal(err)
	}
	var p models.Profile
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if p.FullName != "Kamal Perera" || p.PhoneNumber != "0777654321" {
		t.Fatalf("profile = %+v", p)
	}
	if len(seen) != 2 || !strings.HasPrefix(seen[1], "PUT /api/users/12 ") {
		t.Fatalf("requests = %v", seen)
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
