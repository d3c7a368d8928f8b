package push

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type brokerConn struct {
	ws     *websocket.Conn
	frames chan Frame
	auth   string
}

func (b *brokerConn) next(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-b.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return Frame{}
	}
}

func (b *brokerConn) deliver(t *testing.T, subID, dest, body string) {
	t.Helper()
	f := newFrame(cmdMessage, "subscription", subID, "destination", dest, "message-id", "m-1")
	f.Body = []byte(body)
	if err := b.ws.WriteMessage(websocket.TextMessage, f.Encode()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
}

// newBroker starts a minimal STOMP endpoint. Every accepted session is sent on
// the returned channel after CONNECTED.
func newBroker(t *testing.T) (*httptest.Server, chan *brokerConn) {
	t.Helper()
	conns := make(chan *brokerConn, 4)
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			ws.Close()
			return
		}
		frames, err := Decode(data)
		if err != nil || len(frames) == 0 || frames[0].Command != cmdConnect {
			ws.Close()
			return
		}
		connected := newFrame(cmdConnected, "version", "1.2", "heart-beat", "0,0")
		if err := ws.WriteMessage(websocket.TextMessage, connected.Encode()); err != nil {
			ws.Close()
			return
		}
		bc := &brokerConn{ws: ws, frames: make(chan Frame, 16), auth: frames[0].Headers["Authorization"]}
		conns <- bc
		go func() {
			defer close(bc.frames)
			for {
				_, data, err := ws.ReadMessage()
				if err != nil {
					return
				}
				fs, _ := Decode(data)
				for _, f := range fs {
					bc.frames <- f
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)
	return srv, conns
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitConn(t *testing.T, conns chan *brokerConn) *brokerConn {
	t.Helper()
	select {
	case c := <-conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("client did not connect")
		return nil
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientSubscribesAndDelivers(t *testing.T) {
	srv, conns := newBroker(t)
	c := NewClient(Config{URL: wsURL(srv), Token: "tok", ReconnectDelay: 20 * time.Millisecond}, quietLogger())
	defer c.Close()

	got := make(chan Message, 1)
	c.Subscribe("/topic/order/7", func(m Message) { got <- m })
	c.Start(context.Background())

	bc := waitConn(t, conns)
	if bc.auth != "Bearer tok" {
		t.Fatalf("connect auth header = %q", bc.auth)
	}
	sub := bc.next(t)
	if sub.Command != cmdSubscribe || sub.Headers["destination"] != "/topic/order/7" {
		t.Fatalf("expected SUBSCRIBE to /topic/order/7, got %+v", sub)
	}
	bc.deliver(t, sub.Headers["id"], "/topic/order/7", `{"orderId":7,"status":"ACCEPTED"}`)

	select {
	case m := <-got:
		var body struct {
			OrderID int64  `json:"orderId"`
			Status  string `json:"status"`
		}
		if err := m.Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.OrderID != 7 || body.Status != "ACCEPTED" {
			t.Fatalf("unexpected body %+v", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	if !c.Connected() {
		t.Fatal("expected Connected() after CONNECTED")
	}
}

func TestClientReplaysSubscriptionsAfterReconnect(t *testing.T) {
	srv, conns := newBroker(t)
	c := NewClient(Config{URL: wsURL(srv), ReconnectDelay: 20 * time.Millisecond}, quietLogger())
	defer c.Close()

	c.Subscribe("/topic/tracking/3", func(Message) {})
	c.Start(context.Background())

	first := waitConn(t, conns)
	if f := first.next(t); f.Headers["destination"] != "/topic/tracking/3" {
		t.Fatalf("first subscribe = %+v", f)
	}
	first.ws.Close()

	second := waitConn(t, conns)
	f := second.next(t)
	if f.Command != cmdSubscribe || f.Headers["destination"] != "/topic/tracking/3" {
		t.Fatalf("subscription not replayed: %+v", f)
	}
}

func TestClientUnsubscribeAndSend(t *testing.T) {
	srv, conns := newBroker(t)
	c := NewClient(Config{URL: wsURL(srv), ReconnectDelay: 20 * time.Millisecond}, quietLogger())
	defer c.Close()
	c.Start(context.Background())
	bc := waitConn(t, conns)

	// Connected flips before any subscribe replay, so poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for !c.Connected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	unsub := c.Subscribe("/topic/order/1", func(Message) {})
	sub := bc.next(t)
	unsub()
	unsub()
	if f := bc.next(t); f.Command != cmdUnsubscribe || f.Headers["id"] != sub.Headers["id"] {
		t.Fatalf("expected UNSUBSCRIBE %s, got %+v", sub.Headers["id"], f)
	}

	if err := c.Send(context.Background(), "/app/driver-location", map[string]any{"driverId": 4}); err != nil {
		t.Fatalf("send: %v", err)
	}
	f := bc.next(t)
	if f.Command != cmdSend || f.Headers["destination"] != "/app/driver-location" || string(f.Body) != `{"driverId":4}` {
		t.Fatalf("unexpected SEND %+v body=%q", f, f.Body)
	}
}

func TestClientCloseIsIdempotentAndStopsLoop(t *testing.T) {
	srv, conns := newBroker(t)
	c := NewClient(Config{URL: wsURL(srv), ReconnectDelay: 20 * time.Millisecond}, quietLogger())
	c.Start(context.Background())
	waitConn(t, conns)

	c.Close()
	c.Close()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after Close")
	}
	if err := c.Send(context.Background(), "/app/x", 1); err != ErrClosed {
		t.Fatalf("send after close = %v, want ErrClosed", err)
	}
}

func TestSendWithoutConnection(t *testing.T) {
	c := NewClient(Config{URL: "ws://127.0.0.1:1/ws"}, quietLogger())
	defer c.Close()
	if err := c.Send(context.Background(), "/app/x", 1); err != ErrNotConnected {
		t.Fatalf("send = %v, want ErrNotConnected", err)
	}
}

func TestCloseBeforeStart(t *testing.T) {
	c := NewClient(Config{URL: "ws://127.0.0.1:1/ws"}, quietLogger())
	c.Close()
	select {
	case <-c.Done():
	default:
		t.Fatal("Done should be closed when never started")
	}
}
