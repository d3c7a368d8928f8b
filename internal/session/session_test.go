package session

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestNewReadsClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signed(t, jwt.MapClaims{"sub": "rider@example.com", "exp": exp.Unix()})
	s, err := New("Bearer "+tok, "", "customer")
	if err != nil {
		t.Fatal(err)
	}
	if s.Email != "rider@example.com" || s.Role != RoleCustomer {
		t.Fatalf("unexpected session %+v", s)
	}
	if !s.Expires.Equal(exp) {
		t.Fatalf("expected expiry %v, got %v", exp, s.Expires)
	}
	if s.Header() != "Bearer "+tok {
		t.Fatalf("unexpected header %q", s.Header())
	}
}

func TestValidExpired(t *testing.T) {
	tok := signed(t, jwt.MapClaims{"sub": "a@b.c", "exp": time.Now().Add(-time.Minute).Unix()})
	s, err := New(tok, "", "ADMIN")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Valid(time.Now()); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	s, _ := New("opaque-token", "d@x.y", "DRIVER")
	if err := s.Require(RoleDriver); err != nil {
		t.Fatalf("expected driver allowed, got %v", err)
	}
	if err := s.Require(RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	var none *Session
	if err := none.Require(RoleCustomer); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := New("  ", "", ""); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession for blank token, got %v", err)
	}
}
