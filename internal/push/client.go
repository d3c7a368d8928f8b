// Package push is a STOMP-over-WebSocket subscriber for the backend's
// /topic destinations. A Client keeps one connection alive, reconnecting
// after a fixed delay, and replays its subscriptions on every connect.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-booking/internal/observability"
)

var (
	ErrNotConnected = errors.New("push: not connected")
	ErrClosed       = errors.New("push: client closed")
)

const writeWait = 10 * time.Second

type Config struct {
	URL            string
	Token          string // sent as Authorization on the handshake and in CONNECT
	ReconnectDelay time.Duration
	HeartbeatOut   time.Duration
	HeartbeatIn    time.Duration
	Dialer         *websocket.Dialer
}

// Message is a MESSAGE frame delivered to a subscription.
type Message struct {
	Destination string
	Headers     map[string]string
	Body        []byte
}

// Decode unmarshals the JSON body into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Body, v)
}

type Handler func(Message)

type subscription struct {
	id          string
	destination string
	handler     Handler
}

// conn serializes writes to a websocket connection.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(f Frame) error {
	return c.writeRaw(f.Encode())
}

func (c *conn) writeRaw(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

type Client struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	subs    map[string]*subscription
	nextID  int
	current *conn

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "push"),
		subs:   make(map[string]*subscription),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the connection loop. It returns immediately; the loop runs
// until ctx is done or Close is called.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go func() {
			select {
			case <-ctx.Done():
				c.Close()
			case <-c.ctx.Done():
			}
		}()
		go c.run()
	})
}

// Done is closed once the connection loop has exited.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Close stops reconnecting and drops the connection. It does not wait for
// the loop to exit, so handlers may call it.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		cur := c.current
		c.mu.Unlock()
		if cur != nil {
			_ = cur.write(newFrame(cmdDisconnect))
			_ = cur.ws.Close()
		}
		// a client closed before Start still reports done
		c.startOnce.Do(func() { close(c.done) })
	})
	return nil
}

// Subscribe registers h for destination and returns a function that removes
// it. The subscription survives reconnects.
func (c *Client) Subscribe(destination string, h Handler) (unsubscribe func()) {
	c.mu.Lock()
	c.nextID++
	s := &subscription{id: "sub-" + strconv.Itoa(c.nextID), destination: destination, handler: h}
	c.subs[s.id] = s
	cur := c.current
	c.mu.Unlock()

	if cur != nil {
		if err := cur.write(subscribeFrame(s)); err != nil {
			c.logger.Warn("subscribe failed, will retry on reconnect", "destination", destination, "error", err)
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(s.id) })
	}
}

func (c *Client) unsubscribe(id string) {
	c.mu.Lock()
	_, ok := c.subs[id]
	delete(c.subs, id)
	cur := c.current
	c.mu.Unlock()
	if ok && cur != nil {
		_ = cur.write(newFrame(cmdUnsubscribe, "id", id))
	}
}

// Send publishes body as JSON to an application destination.
func (c *Client) Send(ctx context.Context, destination string, body any) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur == nil {
		return ErrNotConnected
	}
	f := newFrame(cmdSend, "destination", destination, "content-type", "application/json")
	f.Body = b
	return cur.write(f)
}

func subscribeFrame(s *subscription) Frame {
	return newFrame(cmdSubscribe, "id", s.id, "destination", s.destination, "ack", "auto")
}

func (c *Client) run() {
	defer close(c.done)
	for {
		err := c.session(c.ctx)
		if c.ctx.Err() != nil {
			c.logger.Debug("push client stopped")
			return
		}
		c.logger.Warn("push connection lost; reconnecting", "error", err, "delay", c.cfg.ReconnectDelay)
		observability.PushReconnects.Inc()
		t := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-c.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// session runs one connection from dial to disconnect.
func (c *Client) session(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	ws, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	cn := &conn{ws: ws}
	defer ws.Close()

	in, out, err := c.handshake(cn)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return ctx.Err()
	}
	c.current = cn
	pending := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		pending = append(pending, s)
	}
	c.mu.Unlock()
	observability.PushConnected.Inc()
	c.logger.Info("push connected", "url", c.cfg.URL, "subscriptions", len(pending))

	defer func() {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
		observability.PushConnected.Dec()
	}()

	for _, s := range pending {
		if err := cn.write(subscribeFrame(s)); err != nil {
			return fmt.Errorf("subscribe %s: %w", s.destination, err)
		}
	}

	stop := make(chan struct{})
	defer close(stop)
	if out > 0 {
		go c.heartbeat(cn, out, stop)
	}
	return c.readLoop(cn, in)
}

// handshake sends CONNECT and waits for CONNECTED, returning the negotiated
// incoming and outgoing heart-beat intervals.
func (c *Client) handshake(cn *conn) (in, out time.Duration, err error) {
	host := "/"
	if u, perr := url.Parse(c.cfg.URL); perr == nil && u.Host != "" {
		host = u.Hostname()
	}
	f := newFrame(cmdConnect,
		"accept-version", "1.2",
		"host", host,
		"heart-beat", fmt.Sprintf("%d,%d", c.cfg.HeartbeatOut.Milliseconds(), c.cfg.HeartbeatIn.Milliseconds()),
	)
	if c.cfg.Token != "" {
		f.Headers["Authorization"] = "Bearer " + c.cfg.Token
	}
	if err := cn.write(f); err != nil {
		return 0, 0, fmt.Errorf("connect: %w", err)
	}
	_ = cn.ws.SetReadDeadline(time.Now().Add(writeWait))
	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			return 0, 0, fmt.Errorf("await connected: %w", err)
		}
		frames, err := Decode(data)
		if err != nil {
			return 0, 0, err
		}
		if len(frames) == 0 {
			continue
		}
		switch frames[0].Command {
		case cmdConnected:
			in, out = negotiate(c.cfg.HeartbeatIn, c.cfg.HeartbeatOut, frames[0].Headers["heart-beat"])
			_ = cn.ws.SetReadDeadline(time.Time{})
			return in, out, nil
		case cmdError:
			return 0, 0, fmt.Errorf("broker refused connection: %s", errorDetail(frames[0]))
		default:
			return 0, 0, fmt.Errorf("unexpected %s before CONNECTED", frames[0].Command)
		}
	}
}

// negotiate applies the STOMP heart-beat rule: each side uses the larger of
// what one end offers and the other end wants; zero disables.
func negotiate(wantIn, offerOut time.Duration, server string) (in, out time.Duration) {
	sx, sy := parseHeartbeat(server)
	if offerOut > 0 && sy > 0 {
		out = max(offerOut, sy)
	}
	if wantIn > 0 && sx > 0 {
		in = max(wantIn, sx)
	}
	return in, out
}

func parseHeartbeat(v string) (time.Duration, time.Duration) {
	a, b, ok := strings.Cut(v, ",")
	if !ok {
		return 0, 0
	}
	x, err1 := strconv.Atoi(strings.TrimSpace(a))
	y, err2 := strconv.Atoi(strings.TrimSpace(b))
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond
}

func (c *Client) heartbeat(cn *conn, every time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := cn.writeRaw([]byte("\n")); err != nil {
				return
			}
		}
	}
}

func (c *Client) readLoop(cn *conn, in time.Duration) error {
	for {
		if in > 0 {
			// allow one missed beat before declaring the broker gone
			_ = cn.ws.SetReadDeadline(time.Now().Add(2 * in))
		}
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			return err
		}
		frames, err := Decode(data)
		if err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		for _, f := range frames {
			switch f.Command {
			case cmdMessage:
				c.dispatch(f)
			case cmdError:
				return fmt.Errorf("broker error: %s", errorDetail(f))
			case cmdReceipt:
			default:
				c.logger.Debug("ignoring frame", "command", f.Command)
			}
		}
	}
}

func (c *Client) dispatch(f Frame) {
	c.mu.Lock()
	s, ok := c.subs[f.Headers["subscription"]]
	c.mu.Unlock()
	if !ok {
		return
	}
	observability.PushMessages.WithLabelValues(topicFamily(s.destination)).Inc()
	s.handler(Message{Destination: f.Headers["destination"], Headers: f.Headers, Body: f.Body})
}

func errorDetail(f Frame) string {
	if m := f.Headers["message"]; m != "" {
		return m
	}
	return strings.TrimSpace(string(f.Body))
}

// topicFamily trims ids so metric labels stay bounded: /topic/order/7 -> /topic/order.
func topicFamily(dest string) string {
	i := strings.LastIndexByte(dest, '/')
	if i <= 0 {
		return dest
	}
	if _, err := strconv.ParseInt(dest[i+1:], 10, 64); err == nil {
		return dest[:i]
	}
	return dest
}
