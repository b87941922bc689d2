package relay

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/Qhaleed/ADZU-CHAT/internal/filter"
)

// Envelope timestamps use the campus wall clock (UTC+8) so replayed history
// reads the same for every client.
var campusZone = time.FixedZone("UTC+8", 8*60*60)

// RoomBroadcaster manages the global chat room: the member table, a bounded
// ring of recent messages, and fan-out delivery with per-recipient failure
// isolation. Membership is a separate namespace from 1:1 pairing; the same
// user id may hold both a room connection and a paired connection.
type RoomBroadcaster struct {
	mu           sync.Mutex
	members      map[string]Conn
	history      []Envelope
	historyLimit int
	replayLimit  int
	filter       *filter.Filter
	now          func() time.Time
}

// NewRoomBroadcaster creates an empty room. historyLimit bounds the message
// ring and replayLimit bounds how much of it new joiners receive.
func NewRoomBroadcaster(f *filter.Filter, historyLimit, replayLimit int) *RoomBroadcaster {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	if replayLimit <= 0 {
		replayLimit = 20
	}
	return &RoomBroadcaster{
		members:      make(map[string]Conn),
		history:      make([]Envelope, 0, historyLimit),
		historyLimit: historyLimit,
		replayLimit:  replayLimit,
		filter:       f,
		now:          time.Now,
	}
}

// Join registers a member and returns the most recent history entries to
// replay to them. Joining under an id that is already a member displaces the
// old handle, which is closed.
func (rb *RoomBroadcaster) Join(userID string, conn Conn) []Envelope {
	rb.mu.Lock()
	displaced := rb.members[userID]
	rb.members[userID] = conn

	start := len(rb.history) - rb.replayLimit
	if start < 0 {
		start = 0
	}
	replay := make([]Envelope, len(rb.history)-start)
	copy(replay, rb.history[start:])
	rb.mu.Unlock()

	if displaced != nil {
		_ = displaced.Close()
	}
	return replay
}

// Leave removes a member, provided the departing handle is still the
// registered one; a displaced connection's late cleanup leaves the
// replacement in place. Other members only notice through the next
// user-count broadcast.
func (rb *RoomBroadcaster) Leave(userID string, conn Conn) {
	rb.mu.Lock()
	if rb.members[userID] == conn {
		delete(rb.members, userID)
	}
	rb.mu.Unlock()
}

// Publish parses a raw inbound frame, censors the message text, records it in
// history, and fans it out to every member except the sender. Senders whose
// original text tripped the filter get a private warning. Malformed or empty
// frames are logged and dropped; they never error back to the caller.
func (rb *RoomBroadcaster) Publish(senderID string, raw []byte) {
	if !gjson.ValidBytes(raw) {
		log.Printf("Invalid room frame from %s: not valid JSON", senderID)
		return
	}
	text := strings.TrimSpace(gjson.GetBytes(raw, "message").String())
	if text == "" {
		return
	}

	timestamp := rb.now().In(campusZone).Format(time.RFC3339)
	envelope := Envelope{
		Type:      TypeGlobalMessage,
		Message:   rb.filter.Censor(text),
		UserID:    anonLabel(senderID),
		Timestamp: timestamp,
		MessageID: uuid.NewString(),
	}

	if rb.filter.Detect(text) {
		rb.warnSender(senderID, timestamp)
	}

	rb.mu.Lock()
	rb.history = append(rb.history, envelope)
	if over := len(rb.history) - rb.historyLimit; over > 0 {
		rb.history = rb.history[over:]
	}
	rb.mu.Unlock()

	rb.fanOut(envelope, senderID)
}

// BroadcastCount sends the current member count to every member.
func (rb *RoomBroadcaster) BroadcastCount() {
	rb.mu.Lock()
	count := len(rb.members)
	rb.mu.Unlock()

	envelope := Envelope{
		Type:      TypeUserCount,
		Count:     count,
		Timestamp: rb.now().In(campusZone).Format(time.RFC3339),
	}
	rb.fanOut(envelope, "")
}

// Stats returns the member count and the number of retained messages.
func (rb *RoomBroadcaster) Stats() (activeUsers, totalMessages int) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.members), len(rb.history)
}

// Shutdown closes every member connection. Used during process shutdown.
func (rb *RoomBroadcaster) Shutdown() {
	rb.mu.Lock()
	conns := make([]Conn, 0, len(rb.members))
	for _, conn := range rb.members {
		conns = append(conns, conn)
	}
	rb.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// fanOut delivers an envelope to every member except skipID. Delivery
// failures are isolated per recipient: the failing member is removed from the
// room and closed, and the fan-out continues.
func (rb *RoomBroadcaster) fanOut(envelope Envelope, skipID string) {
	type target struct {
		id   string
		conn Conn
	}

	rb.mu.Lock()
	targets := make([]target, 0, len(rb.members))
	for id, conn := range rb.members {
		if skipID != "" && id == skipID {
			continue
		}
		targets = append(targets, target{id: id, conn: conn})
	}
	rb.mu.Unlock()

	var failed []target
	for _, tgt := range targets {
		if err := tgt.conn.Send(envelope); err != nil {
			log.Printf("Room delivery to %s failed: %v", tgt.id, err)
			failed = append(failed, tgt)
		}
	}
	if len(failed) == 0 {
		return
	}

	rb.mu.Lock()
	for _, tgt := range failed {
		// Only evict if the failing handle is still the registered one;
		// the member may have reconnected during the fan-out.
		if rb.members[tgt.id] == tgt.conn {
			delete(rb.members, tgt.id)
		}
	}
	rb.mu.Unlock()

	for _, tgt := range failed {
		_ = tgt.conn.Close()
	}
}

// warnSender delivers a private filter warning to the sender only.
func (rb *RoomBroadcaster) warnSender(senderID, timestamp string) {
	rb.mu.Lock()
	conn, ok := rb.members[senderID]
	rb.mu.Unlock()
	if !ok {
		return
	}

	warning := Envelope{
		Type:      TypeSystem,
		Message:   msgContentFiltered,
		Timestamp: timestamp,
		MessageID: uuid.NewString(),
	}
	if err := conn.Send(warning); err != nil {
		log.Printf("Filter warning to %s failed: %v", senderID, err)
	}
}

// anonLabel derives the pseudonymous sender label shown in the room: a fixed
// prefix of the session id, not reversible to the full identity.
func anonLabel(userID string) string {
	const prefixLen = 6
	if len(userID) > prefixLen {
		userID = userID[:prefixLen]
	}
	return "Anon" + userID
}
