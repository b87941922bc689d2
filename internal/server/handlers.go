// Package server exposes HTTP handlers: the WebSocket upgrades for paired and
// global chat, presence and moderation endpoints, and the health check.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Qhaleed/ADZU-CHAT/internal/relay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// Server holds the relay core and exposes it over HTTP. Construct one with
// NewServer and wire its handlers via SetupRoutes.
type Server struct {
	svc *relay.Service
}

// NewServer creates a Server backed by the given relay service.
func NewServer(svc *relay.Service) *Server {
	return &Server{svc: svc}
}

// PairedChatHandler upgrades a paired-chat WebSocket connection. The path
// carries the user id; campus, preference, and an optional rendezvous code
// arrive as query parameters.
func (s *Server) PairedChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	attrs := relay.Attributes{
		Campus:     r.URL.Query().Get("campus"),
		Preference: r.URL.Query().Get("preference"),
	}
	code := r.URL.Query().Get("code")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// The disconnect callback passes the client's own handle so that a
	// session displaced by a reconnect cannot tear down its replacement.
	var client *Client
	client = NewClient(conn, r.RemoteAddr, userID,
		func(raw []byte) { s.svc.PairedMessage(userID, raw) },
		func() { s.svc.DisconnectPaired(userID, client) },
	)

	// Register before starting the pumps so match notices queue up on the
	// send buffer rather than racing the write pump.
	s.svc.ConnectPaired(userID, attrs, code, client)
	client.Start()
}

// GlobalChatHandler upgrades a global-room WebSocket connection. New members
// receive a replay of recent history followed by a user-count update.
func (s *Server) GlobalChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	var client *Client
	client = NewClient(conn, r.RemoteAddr, userID,
		func(raw []byte) { s.svc.RoomMessage(userID, raw) },
		func() { s.svc.DisconnectRoom(userID, client) },
	)

	s.svc.ConnectRoom(userID, client)
	client.Start()
}

// StandbyRegisterHandler marks a user as present on the pre-chat screen.
func (s *Server) StandbyRegisterHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	s.svc.StandbyRegister(userID)
	writeJSON(w, map[string]string{"status": "registered"})
}

// StandbyUnregisterHandler removes a user's standby entry. Removing an entry
// that does not exist is reported, not an error.
func (s *Server) StandbyUnregisterHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	removed := s.svc.StandbyUnregister(userID)
	writeJSON(w, map[string]bool{"removed": removed})
}

// StandbyHeartbeatHandler refreshes a standby user's presence window.
func (s *Server) StandbyHeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	s.svc.StandbyHeartbeat(userID)
	writeJSON(w, map[string]string{"status": "ok"})
}

// StatsHandler reports pairing and standby counters.
func (s *Server) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.svc.Stats())
}

// RoomStatsHandler reports global-room counters.
func (s *Server) RoomStatsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.svc.RoomStats())
}

// ListFilterWordsHandler returns the custom filter words in sorted order.
func (s *Server) ListFilterWordsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string][]string{"words": s.svc.Filter().Words()})
}

// AddFilterWordHandler adds a custom word to the content filter.
func (s *Server) AddFilterWordHandler(w http.ResponseWriter, r *http.Request) {
	var req wordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Word == "" {
		http.Error(w, "word is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]bool{"added": s.svc.Filter().AddWord(req.Word)})
}

// RemoveFilterWordHandler removes a custom word from the content filter.
func (s *Server) RemoveFilterWordHandler(w http.ResponseWriter, r *http.Request) {
	word := r.PathValue("word")
	if word == "" {
		http.Error(w, "word is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]bool{"removed": s.svc.Filter().RemoveWord(word)})
}

// HealthHandler provides a simple health check endpoint that returns server status.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "ADZU chat relay is running!")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}
