// Package testhelpers provides common utilities and helper functions for
// testing the relay over real HTTP and WebSocket connections.
//
// It provides functions for dialing the relay, sending typed events, reading
// the newline-coalesced frames the server writes, and asserting response
// properties to reduce code duplication in test files.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/chat"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:3000"

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, expected) {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

// WebSocketURL turns an httptest server URL into its /ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// ConnectWebSocket dials url with the test origin header.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Peer is a test client reading the relay's event stream.
type Peer struct {
	t       *testing.T
	Conn    *websocket.Conn
	pending []chat.Envelope
}

// Dial connects a Peer to url and closes it when the test ends.
func Dial(t *testing.T, url string) *Peer {
	t.Helper()
	conn, err := ConnectWebSocket(url)
	require.NoError(t, err)
	p := &Peer{t: t, Conn: conn}
	t.Cleanup(func() { _ = conn.Close() })
	return p
}

// Send writes one event envelope.
func (p *Peer) Send(kind chat.EventType, data any) {
	p.t.Helper()
	frame := map[string]any{"type": kind}
	if data != nil {
		frame["data"] = data
	}
	require.NoError(p.t, p.Conn.WriteJSON(frame))
}

// SendRaw writes a raw text frame.
func (p *Peer) SendRaw(raw string) {
	p.t.Helper()
	require.NoError(p.t, p.Conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

// Next returns the next event, failing the test after timeout.
func (p *Peer) Next(timeout time.Duration) chat.Envelope {
	p.t.Helper()
	env, err := p.next(timeout)
	require.NoError(p.t, err, "waiting for event")
	return env
}

// Expect reads events until one of kind arrives, failing after timeout.
func (p *Peer) Expect(kind chat.EventType, timeout time.Duration) chat.Envelope {
	p.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		env, err := p.next(time.Until(deadline))
		require.NoError(p.t, err, "waiting for %s", kind)
		if env.Type == kind {
			return env
		}
	}
}

// ExpectNone fails if any event arrives within wait.
func (p *Peer) ExpectNone(wait time.Duration) {
	p.t.Helper()
	if env, err := p.next(wait); err == nil {
		p.t.Fatalf("Expected no event, got %s: %s", env.Type, env.Data)
	}
}

// Close performs a clean WebSocket close handshake.
func (p *Peer) Close() {
	_ = p.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = p.Conn.Close()
}

func (p *Peer) next(timeout time.Duration) (chat.Envelope, error) {
	if len(p.pending) > 0 {
		env := p.pending[0]
		p.pending = p.pending[1:]
		return env, nil
	}

	if err := p.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return chat.Envelope{}, err
	}
	_, data, err := p.Conn.ReadMessage()
	if err != nil {
		return chat.Envelope{}, err
	}
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		var env chat.Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return chat.Envelope{}, err
		}
		p.pending = append(p.pending, env)
	}
	return p.next(timeout)
}

// Decode unmarshals an envelope's data.
func Decode[T any](t *testing.T, env chat.Envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
