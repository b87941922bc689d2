// Package testhelpers provides common utilities and helper functions for
// testing the chat relay server.
//
// This package contains reusable test utilities that are shared across
// integration tests: constructing fully wired test servers, dialing WebSocket
// endpoints, and reading typed envelopes off a connection.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Qhaleed/ADZU-CHAT/internal/filter"
	"github.com/Qhaleed/ADZU-CHAT/internal/relay"
	"github.com/Qhaleed/ADZU-CHAT/internal/server"
)

// StartTestServer wires a complete relay service behind an httptest.Server
// and configures the origin allow-list to accept the test server's own URL.
// Everything is torn down via t.Cleanup.
func StartTestServer(t *testing.T, customWords ...string) *httptest.Server {
	t.Helper()

	svc := relay.NewService(relay.Options{
		Filter:        filter.New(customWords...),
		StandbyTick:   time.Hour,
		CountInterval: time.Hour,
	})
	t.Cleanup(svc.Stop)

	ts := httptest.NewServer(server.NewServer(svc).SetupRoutes())
	t.Cleanup(ts.Close)

	cfg := server.NewConfig()
	cfg.AllowedOrigins = append([]string{ts.URL}, cfg.AllowedOrigins...)
	server.SetConfig(cfg)
	t.Cleanup(func() { server.SetConfig(nil) })

	return ts
}

// DialWebSocket connects to a WebSocket path on the test server with an
// allowed Origin header. The connection is closed via t.Cleanup.
func DialWebSocket(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	header := http.Header{}
	header.Set("Origin", ts.URL)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendMessage writes an inbound chat frame to the connection.
func SendMessage(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()

	payload, err := json.Marshal(server.InboundMessage{Message: text})
	if err != nil {
		t.Fatalf("Failed to marshal message: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}
}

// WaitForEnvelope reads frames until one of the wanted type arrives or the
// timeout expires. Envelopes of other types are skipped.
func WaitForEnvelope(t *testing.T, conn *websocket.Conn, wantType string, timeout time.Duration) relay.Envelope {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("Failed to set read deadline: %v", err)
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Timed out waiting for %q envelope: %v", wantType, err)
		}

		var envelope relay.Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			t.Fatalf("Received unparseable frame %q: %v", raw, err)
		}
		if envelope.Type == wantType {
			return envelope
		}
	}
}

// ExpectNoEnvelope asserts that no frame arrives within the timeout.
func ExpectNoEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("Expected no frame, but received %q", raw)
	}
}

// WaitForActiveUsers polls the stats endpoint until the paired-chat active
// count reaches n. Registration happens after the WebSocket handshake
// completes, so tests that dial two users in sequence use this to order the
// registrations deterministically.
func WaitForActiveUsers(t *testing.T, ts *httptest.Server, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(ts.URL + "/stats")
		if err == nil {
			var stats struct {
				Active int `json:"active"`
			}
			decodeErr := json.NewDecoder(resp.Body).Decode(&stats)
			_ = resp.Body.Close()
			if decodeErr == nil && stats.Active >= n {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %d active users", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// MakeRequest creates and executes an HTTP request against the test server.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}
