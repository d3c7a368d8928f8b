package push

import (
	"bytes"
	"testing"
	"time"
)

func TestEncodeSendFrame(t *testing.T) {
	f := newFrame(cmdSend, "destination", "/app/driver-location")
	f.Body = []byte(`{"driverId":9}`)
	got := string(f.Encode())
	// content-length follows the sorted headers
	want := "SEND\ndestination:/app/driver-location\ncontent-length:14\n\n{\"driverId\":9}\x00"
	if got != want {
		t.Fatalf("encode = %q, want %q", got, want)
	}
}

func TestDecodeMessageAndHeartbeats(t *testing.T) {
	raw := []byte("\n\nMESSAGE\r\nsubscription:sub-1\r\ndestination:/topic/order/7\r\n\r\n{\"status\":\"ACCEPTED\"}\x00\n")
	frames, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	f := frames[0]
	if f.Command != cmdMessage || f.Headers["subscription"] != "sub-1" || f.Headers["destination"] != "/topic/order/7" {
		t.Fatalf("unexpected frame %+v", f)
	}
	if string(f.Body) != `{"status":"ACCEPTED"}` {
		t.Fatalf("body = %q", f.Body)
	}
}

func TestDecodeHeartbeatOnly(t *testing.T) {
	frames, err := Decode([]byte("\n"))
	if err != nil || len(frames) != 0 {
		t.Fatalf("heartbeat should decode to no frames, got %v %v", frames, err)
	}
}

func TestDecodeContentLengthWithEmbeddedNull(t *testing.T) {
	raw := []byte("MESSAGE\ncontent-length:3\nsubscription:s\n\na\x00b\x00RECEIPT\nreceipt-id:1\n\n\x00")
	frames, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if !bytes.Equal(frames[0].Body, []byte("a\x00b")) {
		t.Fatalf("body = %q", frames[0].Body)
	}
	if frames[1].Command != cmdReceipt || frames[1].Headers["receipt-id"] != "1" {
		t.Fatalf("second frame = %+v", frames[1])
	}
}

func TestHeaderEscaping(t *testing.T) {
	f := newFrame(cmdSend, "note", "a:b\nc\\d")
	frames, err := Decode(f.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := frames[0].Headers["note"]; got != "a:b\nc\\d" {
		t.Fatalf("header = %q", got)
	}
	if !bytes.Contains(f.Encode(), []byte(`note:a\cb\nc\\d`)) {
		t.Fatalf("header not escaped on the wire: %q", f.Encode())
	}
}

func TestDecodeRejectsMissingNull(t *testing.T) {
	if _, err := Decode([]byte("MESSAGE\nsubscription:s\n\nbody")); err == nil {
		t.Fatal("expected error for unterminated frame")
	}
	if _, err := Decode([]byte("MESSAGE\ncontent-length:10\n\nab\x00")); err == nil {
		t.Fatal("expected error for short content-length body")
	}
}

func TestNegotiateHeartbeat(t *testing.T) {
	in, out := negotiate(4*time.Second, 4*time.Second, "10000,0")
	if out != 0 {
		t.Fatalf("server does not want beats, out = %v", out)
	}
	if in != 10*time.Second {
		t.Fatalf("in = %v, want 10s", in)
	}
	in, out = negotiate(0, 4*time.Second, "0,2000")
	if in != 0 || out != 4*time.Second {
		t.Fatalf("in=%v out=%v", in, out)
	}
}

func TestTopicFamily(t *testing.T) {
	cases := map[string]string{
		"/topic/order/7":       "/topic/order",
		"/topic/tracking/12":   "/topic/tracking",
		"/topic/admin/drivers": "/topic/admin/drivers",
	}
	for in, want := range cases {
		if got := topicFamily(in); got != want {
			t.Errorf("topicFamily(%q) = %q, want %q", in, got, want)
		}
	}
}
