// Package session carries the caller's credentials explicitly instead of
// reading them from ambient global state.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleDriver   Role = "DRIVER"
	RoleAdmin    Role = "ADMIN"
)

var (
	ErrNoSession = errors.New("not signed in")
	ErrExpired   = errors.New("session expired")
	ErrForbidden = errors.New("operation not permitted for this role")
)

// Session is an authenticated identity. The zero value is signed out.
type Session struct {
	Token   string
	Email   string
	Role    Role
	Expires time.Time
}

// New builds a session from a bearer token and the role reported at login.
// The token is inspected for exp and sub only; the backend verifies it.
func New(token, email, role string) (*Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, ErrNoSession
	}
	s := &Session{Token: token, Email: email, Role: Role(strings.ToUpper(strings.TrimSpace(role)))}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			s.Expires = exp.Time
		}
		if s.Email == "" {
			if sub, err := claims.GetSubject(); err == nil {
				s.Email = sub
			}
		}
	}
	return s, nil
}

// Valid reports whether the session can authenticate a request at now.
func (s *Session) Valid(now time.Time) error {
	if s == nil || s.Token == "" {
		return ErrNoSession
	}
	if !s.Expires.IsZero() && !now.Before(s.Expires) {
		return ErrExpired
	}
	return nil
}

// Require checks that the session holds one of roles.
func (s *Session) Require(roles ...Role) error {
	if err := s.Valid(time.Now()); err != nil {
		return err
	}
	for _, r := range roles {
		if s.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrForbidden, s.Role)
}

// Header returns the Authorization header value.
func (s *Session) Header() string {
	return "Bearer " + s.Token
}
