// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Errors returned by Client.Send when delivery cannot proceed.
var (
	ErrClientClosed   = errors.New("client connection closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Client represents one WebSocket connection. It owns the read and write
// pumps for the socket and exposes a fail-fast Send for the relay core.
// Inbound frames and the final disconnect are surfaced through the callbacks
// supplied at construction.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	addr           string
	userID         string
	onMessage      func(raw []byte)
	onDisconnect   func()
	mu             sync.Mutex
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a Client for an upgraded connection. onMessage is invoked
// for every inbound frame that passes rate limiting; onDisconnect is invoked
// exactly once when the connection terminates, however termination happens.
func NewClient(conn *websocket.Conn, addr, userID string, onMessage func([]byte), onDisconnect func()) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)

	return &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		addr:           addr,
		userID:         userID,
		onMessage:      onMessage,
		onDisconnect:   onDisconnect,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    limiter,
		rateLimit:      cfg.RateLimit,
	}
}

// Start launches the read and write pumps. Call once, after the client has
// been registered with the relay core.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Send marshals v and queues it for delivery. It never blocks: a closed
// client or a full buffer returns an error immediately so the relay core can
// fail fast and clean up.
func (c *Client) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close tears down the connection. It is idempotent and safe to call from
// any goroutine, including asynchronously when another session's delivery to
// this client fails. The disconnect callback still runs exactly once, via
// the read pump's exit path.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs the error appropriately and reports whether the read
// loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Client %s disconnected: %v", c.addr, err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Client %s connection closed: %v", c.addr, err)
		return true
	}

	log.Printf("WebSocket read error from %s: %v", c.addr, err)
	return true
}

// checkRateLimit reports whether the next inbound frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// readPump reads inbound frames until the connection dies, then runs the
// disconnect cleanup. This is the single exit path for a client session:
// asynchronous teardown (Close) unblocks the read, which lands here.
func (c *Client) readPump() {
	defer func() {
		_ = c.Close()
		if c.onDisconnect != nil {
			c.onDisconnect()
		}
		log.Printf("Session %s from %s cleaned up", c.userID, c.addr)
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		if c.onMessage != nil {
			c.onMessage(rawMessage)
		}
	}
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.handleMessage(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.handlePing() {
				return
			}
		}
	}
}

// closeConnection closes the socket, ignoring expected shutdown errors.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}
}

// handleMessage writes one outbound frame and reports whether the write pump
// should continue.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close frame to the client.
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c.addr, err)
		}
	}
	return false
}

// handlePing sends a ping frame to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing ping message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}
