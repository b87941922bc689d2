// Package server wires HTTP handlers into a ServeMux for the chat relay
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health check, the two WebSocket endpoints, presence, stats, and
// moderation.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.HealthHandler)
	mux.HandleFunc("GET /ws/{user_id}", s.PairedChatHandler)
	mux.HandleFunc("GET /ws/global/{user_id}", s.GlobalChatHandler)
	mux.HandleFunc("POST /standby/register/{user_id}", s.StandbyRegisterHandler)
	mux.HandleFunc("POST /standby/unregister/{user_id}", s.StandbyUnregisterHandler)
	mux.HandleFunc("POST /standby/heartbeat/{user_id}", s.StandbyHeartbeatHandler)
	mux.HandleFunc("GET /stats", s.StatsHandler)
	mux.HandleFunc("GET /global/stats", s.RoomStatsHandler)
	mux.HandleFunc("GET /filter/words", s.ListFilterWordsHandler)
	mux.HandleFunc("POST /filter/words", s.AddFilterWordHandler)
	mux.HandleFunc("DELETE /filter/words/{word}", s.RemoveFilterWordHandler)
	return mux
}
