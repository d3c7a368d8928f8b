package push

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// STOMP commands used by the client.
const (
	cmdConnect     = "CONNECT"
	cmdConnected   = "CONNECTED"
	cmdSubscribe   = "SUBSCRIBE"
	cmdUnsubscribe = "UNSUBSCRIBE"
	cmdSend        = "SEND"
	cmdDisconnect  = "DISCONNECT"
	cmdMessage     = "MESSAGE"
	cmdReceipt     = "RECEIPT"
	cmdError       = "ERROR"
)

// Frame is a single STOMP 1.2 frame.
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

var errMalformed = errors.New("malformed stomp frame")

func newFrame(command string, kv ...string) Frame {
	f := Frame{Command: command, Headers: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers[kv[i]] = kv[i+1]
	}
	return f
}

// Encode renders f. CONNECT and CONNECTED headers are not escaped, per the
// 1.2 grammar.
func (f Frame) Encode() []byte {
	var b bytes.Buffer
	b.WriteString(f.Command)
	b.WriteByte('\n')
	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	escape := f.Command != cmdConnect && f.Command != cmdConnected
	for _, k := range keys {
		v := f.Headers[k]
		if escape {
			k, v = escapeHeader(k), escapeHeader(v)
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		if _, ok := f.Headers["content-length"]; !ok {
			b.WriteString("content-length:" + strconv.Itoa(len(f.Body)) + "\n")
		}
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

// Decode parses every frame in data. Heart-beat EOLs between frames are
// skipped; a payload made only of EOLs yields no frames.
func Decode(data []byte) ([]Frame, error) {
	var out []Frame
	for {
		data = bytes.TrimLeft(data, "\r\n")
		if len(data) == 0 {
			return out, nil
		}
		f, rest, err := decodeOne(data)
		if err != nil {
			return out, err
		}
		out = append(out, f)
		data = rest
	}
}

func decodeOne(data []byte) (Frame, []byte, error) {
	headEnd := bytes.Index(data, []byte("\n\n"))
	sepLen := 2
	if crlf := bytes.Index(data, []byte("\r\n\r\n")); crlf >= 0 && (headEnd < 0 || crlf < headEnd) {
		headEnd, sepLen = crlf, 4
	}
	if headEnd < 0 {
		return Frame{}, nil, errMalformed
	}
	lines := strings.Split(strings.ReplaceAll(string(data[:headEnd]), "\r\n", "\n"), "\n")
	f := Frame{Command: lines[0], Headers: make(map[string]string, len(lines)-1)}
	unescape := f.Command != cmdConnect && f.Command != cmdConnected
	for _, line := range lines[1:] {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return Frame{}, nil, fmt.Errorf("%w: header %q", errMalformed, line)
		}
		if unescape {
			k, v = unescapeHeader(k), unescapeHeader(v)
		}
		// repeated headers: the first one wins
		if _, seen := f.Headers[k]; !seen {
			f.Headers[k] = v
		}
	}
	body := data[headEnd+sepLen:]
	if cl, ok := f.Headers["content-length"]; ok {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 || n >= len(body) {
			return Frame{}, nil, fmt.Errorf("%w: content-length %q", errMalformed, cl)
		}
		if body[n] != 0 {
			return Frame{}, nil, fmt.Errorf("%w: missing NULL after body", errMalformed)
		}
		f.Body = append([]byte(nil), body[:n]...)
		return f, body[n+1:], nil
	}
	end := bytes.IndexByte(body, 0)
	if end < 0 {
		return Frame{}, nil, fmt.Errorf("%w: missing NULL", errMalformed)
	}
	f.Body = append([]byte(nil), body[:end]...)
	return f, body[end+1:], nil
}

var (
	headerEscaper   = strings.NewReplacer("\\", "\\\\", "\r", "\\r", "\n", "\\n", ":", "\\c")
	headerUnescaper = strings.NewReplacer("\\\\", "\\", "\\r", "\r", "\\n", "\n", "\\c", ":")
)

func escapeHeader(s string) string   { return headerEscaper.Replace(s) }
func unescapeHeader(s string) string { return headerUnescaper.Replace(s) }
