package relay

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Qhaleed/ADZU-CHAT/internal/filter"
)

// Options configures a Service. Zero values fall back to the defaults noted
// on each field.
type Options struct {
	Filter *filter.Filter

	// HistoryLimit bounds the room message ring (default 100).
	HistoryLimit int
	// ReplayLimit bounds how much history new room joiners receive (default 20).
	ReplayLimit int
	// StandbyTimeout evicts standby entries with no heartbeat (default 60s).
	StandbyTimeout time.Duration
	// StandbyTick is the standby reaper interval (default 30s).
	StandbyTick time.Duration
	// CountInterval is the periodic room user-count broadcast interval
	// (default 30s).
	CountInterval time.Duration
}

// StatsSnapshot is the monitoring view over all registries.
type StatsSnapshot struct {
	Active   int `json:"active"`
	Waiting  int `json:"waiting"`
	Chatting int `json:"chatting"`
	Standby  int `json:"standby"`
}

// RoomStatsSnapshot is the monitoring view over the global room.
type RoomStatsSnapshot struct {
	ActiveUsers   int `json:"active_users"`
	TotalMessages int `json:"total_messages"`
}

// Service orchestrates the pairing registry, the room broadcaster, and the
// standby tracker in response to connect, message, and disconnect events
// surfaced by the transport layer. Construct one per process and inject it
// into every connection handler.
type Service struct {
	registry *PairingRegistry
	room     *RoomBroadcaster
	standby  *StandbyTracker
	filter   *filter.Filter

	countInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewService builds the registries and starts the standby reaper. Call Start
// to launch the periodic user-count broadcast and Stop on shutdown.
func NewService(opts Options) *Service {
	if opts.Filter == nil {
		opts.Filter = filter.New()
	}
	if opts.CountInterval <= 0 {
		opts.CountInterval = 30 * time.Second
	}

	return &Service{
		registry:      NewPairingRegistry(opts.Filter),
		room:          NewRoomBroadcaster(opts.Filter, opts.HistoryLimit, opts.ReplayLimit),
		standby:       NewStandbyTracker(opts.StandbyTimeout, opts.StandbyTick),
		filter:        opts.Filter,
		countInterval: opts.CountInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the periodic room user-count broadcast.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.countLoop()
	log.Println("Relay service started")
}

// Stop terminates background tasks and closes every live connection.
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.standby.Stop()
	s.registry.Shutdown()
	s.room.Shutdown()
	log.Println("Relay service stopped")
}

// Filter exposes the content filter for the moderation endpoints.
func (s *Service) Filter() *filter.Filter {
	return s.filter
}

// ConnectPaired registers a paired-chat connection and immediately attempts a
// match: by rendezvous code when one is supplied, otherwise by attributes.
// Both sides of a successful match are notified.
func (s *Service) ConnectPaired(userID string, attrs Attributes, code string, conn Conn) {
	if displaced := s.registry.Register(userID, attrs, conn); displaced != nil {
		log.Printf("User %s reconnected; closing previous connection", userID)
		_ = displaced.Close()
	}

	var (
		partner string
		matched bool
	)
	if code != "" {
		partner, matched = s.registry.MatchByCode(userID, code)
	} else {
		partner, matched = s.registry.MatchByAttributes(userID)
	}
	if !matched {
		return
	}

	notice := Envelope{Type: TypeSystem, Message: msgPartnerConnected}
	if err := conn.Send(notice); err != nil {
		log.Printf("Match notice to %s failed: %v", userID, err)
	}
	if partnerConn, ok := s.registry.ConnOf(partner); ok {
		if err := partnerConn.Send(notice); err != nil {
			log.Printf("Match notice to %s failed: %v", partner, err)
		}
	}
}

// PairedMessage relays one inbound frame to the sender's partner. Malformed
// or empty frames are dropped without error. Filtered content produces a
// private warning to the sender; a dead partner produces a disconnect notice.
func (s *Service) PairedMessage(userID string, raw []byte) {
	if !gjson.ValidBytes(raw) {
		log.Printf("Invalid chat frame from %s: not valid JSON", userID)
		return
	}
	text := strings.TrimSpace(gjson.GetBytes(raw, "message").String())
	if text == "" {
		return
	}

	outcome := s.registry.Relay(userID, text)

	if outcome.Filtered {
		s.notify(userID, msgContentFiltered)
	}
	if outcome.PartnerLost {
		s.notify(userID, msgPartnerDisconnected)
	}
}

// DisconnectPaired cleans up a paired-chat session and notifies the
// ex-partner when one existed. The handle identifies which session is ending:
// cleanup for a connection that a reconnect already displaced is a no-op.
// Safe to call for users that were already removed.
func (s *Service) DisconnectPaired(userID string, conn Conn) {
	partner, hadPartner := s.registry.Unregister(userID, conn)
	if hadPartner {
		s.notify(partner, msgPartnerDisconnected)
	}
}

// ConnectRoom joins a user to the global room, replays recent history to
// them, and announces the new member count.
func (s *Service) ConnectRoom(userID string, conn Conn) {
	for _, envelope := range s.room.Join(userID, conn) {
		if err := conn.Send(envelope); err != nil {
			log.Printf("History replay to %s failed: %v", userID, err)
			break
		}
	}
	s.room.BroadcastCount()
}

// RoomMessage publishes one inbound frame to the global room.
func (s *Service) RoomMessage(userID string, raw []byte) {
	s.room.Publish(userID, raw)
}

// DisconnectRoom removes a user from the global room and announces the new
// member count. Cleanup for a displaced handle is a no-op, like
// DisconnectPaired.
func (s *Service) DisconnectRoom(userID string, conn Conn) {
	s.room.Leave(userID, conn)
	s.room.BroadcastCount()
}

// StandbyRegister marks a user as present on the pre-chat screen.
func (s *Service) StandbyRegister(userID string) {
	s.standby.Touch(userID)
}

// StandbyHeartbeat refreshes a standby user's presence.
func (s *Service) StandbyHeartbeat(userID string) {
	s.standby.Touch(userID)
}

// StandbyUnregister removes a standby entry. Returns false when none existed.
func (s *Service) StandbyUnregister(userID string) bool {
	return s.standby.Remove(userID)
}

// Stats returns a point-in-time snapshot of all registries.
func (s *Service) Stats() StatsSnapshot {
	active, waiting, chatting := s.registry.Stats()
	return StatsSnapshot{
		Active:   active,
		Waiting:  waiting,
		Chatting: chatting,
		Standby:  s.standby.Count(),
	}
}

// RoomStats returns a point-in-time snapshot of the global room.
func (s *Service) RoomStats() RoomStatsSnapshot {
	activeUsers, totalMessages := s.room.Stats()
	return RoomStatsSnapshot{ActiveUsers: activeUsers, TotalMessages: totalMessages}
}

// countLoop periodically broadcasts the room member count. Each tick is
// independent; a failed delivery only evicts the failing member.
func (s *Service) countLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.countInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.room.BroadcastCount()
		}
	}
}

// notify sends a system envelope to one paired-chat user, if still connected.
func (s *Service) notify(userID, message string) {
	conn, ok := s.registry.ConnOf(userID)
	if !ok {
		return
	}
	if err := conn.Send(Envelope{Type: TypeSystem, Message: message}); err != nil {
		log.Printf("System notice to %s failed: %v", userID, err)
	}
}
