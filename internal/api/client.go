// Package api is the REST client for the ride-hailing backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/example/ride-booking/internal/observability"
	"github.com/example/ride-booking/internal/session"
)

// ErrUnauthorized matches any 401/403 from the backend. Callers send the
// user back to login.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx backend response. Message is the server's text verbatim.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// Message extracts the user-facing text from err, falling back to fallback.
func Message(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Session *session.Session
	Logger  *slog.Logger
}

func NewClient(baseURL string, s *session.Session, logger *slog.Logger) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: &http.Client{}, Session: s, Logger: logger}
}

// WithSession returns a copy of c acting as s.
func (c *Client) WithSession(s *session.Session) *Client {
	cp := *c
	cp.Session = s
	return &cp
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any, roles ...session.Role) error {
	if len(roles) > 0 {
		if err := c.Session.Require(roles...); err != nil {
			return err
		}
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID(ctx))
	if c.Session != nil && c.Session.Token != "" {
		req.Header.Set("Authorization", c.Session.Header())
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		observability.BackendRequests.WithLabelValues(method, "error").Inc()
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	observability.BackendRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode/100)+"xx").Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &Error{Status: resp.StatusCode, Message: errorText(b, resp.StatusCode)}
		if c.Logger != nil {
			c.Logger.Debug("backend error", "method", method, "path", path, "status", resp.StatusCode, "message", apiErr.Message)
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// errorText prefers a JSON message/error field, then the raw body.
func errorText(b []byte, status int) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(b, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	if s := strings.TrimSpace(string(b)); s != "" && !strings.HasPrefix(s, "{") {
		return s
	}
	return http.StatusText(status)
}

type requestIDKey struct{}

// WithRequestID makes calls made with ctx carry id as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestID(ctx context.Context) string {
	if id := RequestID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func idPath(format string, id int64) string {
	return fmt.Sprintf(format, id)
}
