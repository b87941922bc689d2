package relay

import (
	"log"
	"sync"

	"github.com/Qhaleed/ADZU-CHAT/internal/filter"
)

// PairingRegistry tracks live paired-chat connections, the waiting pool, the
// code-rendezvous table, and committed chat pairs. All state transitions are
// check-then-commit under a single mutex so concurrent match, relay, and
// disconnect calls can never double-claim a partner.
type PairingRegistry struct {
	mu      sync.Mutex
	conns   map[string]Conn
	waiting map[string]Attributes
	pairs   map[string]string // symmetric: if pairs[a] == b then pairs[b] == a
	codes   map[string]string // rendezvous code -> waiting user
	byCode  map[string]string // waiting user -> rendezvous code
	filter  *filter.Filter
}

// RelayOutcome reports what happened to one relayed message.
type RelayOutcome struct {
	// Delivered is true when the filtered text reached the partner.
	Delivered bool
	// Filtered is true when the original text tripped the content filter;
	// the caller should warn the sender.
	Filtered bool
	// PartnerID is the committed partner at the time of the call, if any.
	PartnerID string
	// PartnerLost is true when the partner's handle was dead and their
	// session was torn down as a result.
	PartnerLost bool
}

// NewPairingRegistry creates an empty registry using f to censor relayed text.
func NewPairingRegistry(f *filter.Filter) *PairingRegistry {
	return &PairingRegistry{
		conns:   make(map[string]Conn),
		waiting: make(map[string]Attributes),
		pairs:   make(map[string]string),
		codes:   make(map[string]string),
		byCode:  make(map[string]string),
		filter:  f,
	}
}

// Register adds a user to the active set and the waiting pool. Reconnecting
// under an id that is already active overwrites the previous handle
// (last writer wins); the displaced handle is returned so the caller can
// close it and terminate the orphaned session.
func (p *PairingRegistry) Register(userID string, attrs Attributes, conn Conn) Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	displaced := p.conns[userID]
	p.conns[userID] = conn
	// A reconnecting user that still holds a pair keeps it; everyone else
	// enters the waiting pool.
	if _, paired := p.pairs[userID]; !paired {
		p.waiting[userID] = attrs
	}
	return displaced
}

// MatchByAttributes scans the waiting pool for another user with an identical
// attribute tuple that is not paired and not reserved on a rendezvous code.
// On success both users leave the waiting pool and a pair is committed; the
// first match in iteration order wins. Returns false when no candidate exists
// or the user is not eligible to match.
func (p *PairingRegistry) MatchByAttributes(userID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	attrs, isWaiting := p.waiting[userID]
	if !isWaiting {
		return "", false
	}
	if _, paired := p.pairs[userID]; paired {
		return "", false
	}

	for candidate, candidateAttrs := range p.waiting {
		if candidate == userID {
			continue
		}
		if candidateAttrs != attrs {
			continue
		}
		if _, paired := p.pairs[candidate]; paired {
			continue
		}
		if _, reserved := p.byCode[candidate]; reserved {
			continue
		}

		p.commitPairLocked(userID, candidate)
		return candidate, true
	}
	return "", false
}

// MatchByCode pairs two users that present the same rendezvous code. The
// first presenter is recorded and excluded from attribute matching; the
// second consumes the entry and both are committed as a pair. Re-presenting
// a code the same user already holds overwrites the entry, never self-matches.
func (p *PairingRegistry) MatchByCode(userID, code string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, paired := p.pairs[userID]; paired {
		return "", false
	}

	owner, claimed := p.codes[code]
	if claimed && owner != userID {
		if _, ownerPaired := p.pairs[owner]; !ownerPaired {
			delete(p.codes, code)
			delete(p.byCode, owner)
			p.commitPairLocked(userID, owner)
			return owner, true
		}
	}

	// Record (or overwrite) the reservation and pull the user out of the
	// attribute-matching pool for the rest of the session.
	if previous, ok := p.byCode[userID]; ok && previous != code {
		delete(p.codes, previous)
	}
	p.codes[code] = userID
	p.byCode[userID] = code
	delete(p.waiting, userID)
	return "", false
}

// Unregister removes every trace of a user: active connection, waiting entry,
// rendezvous reservation, and committed pair. The caller passes the handle
// whose session is ending; when a reconnect has already displaced that handle
// the late cleanup is a no-op, leaving the replacement session registered.
// If the user was paired, the pair is dissolved bidirectionally, the
// ex-partner is pulled from the waiting pool, and their id is returned so the
// caller can notify them.
func (p *PairingRegistry) Unregister(userID string, conn Conn) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conns[userID] != conn {
		return "", false
	}
	return p.removeLocked(userID)
}

// removeLocked performs the full cleanup for one user. Callers must hold the
// registry mutex.
func (p *PairingRegistry) removeLocked(userID string) (string, bool) {
	delete(p.conns, userID)
	delete(p.waiting, userID)

	if code, ok := p.byCode[userID]; ok {
		delete(p.byCode, userID)
		if p.codes[code] == userID {
			delete(p.codes, code)
		}
	}

	partner, paired := p.pairs[userID]
	if !paired {
		return "", false
	}
	delete(p.pairs, userID)
	delete(p.pairs, partner)
	// Keep the ex-partner out of the waiting pool until they decide to
	// requeue; a disconnect notification is on its way to them.
	delete(p.waiting, partner)
	return partner, true
}

// Relay censors text and delivers it to the sender's committed partner. A
// dead partner handle tears down the partner's session; the sender stays
// connected and the outcome reports the loss.
func (p *PairingRegistry) Relay(senderID, text string) RelayOutcome {
	censored := p.filter.Censor(text)
	outcome := RelayOutcome{Filtered: p.filter.Detect(text)}

	p.mu.Lock()
	partner, paired := p.pairs[senderID]
	if !paired {
		p.mu.Unlock()
		return outcome
	}
	outcome.PartnerID = partner

	var dead Conn
	conn, live := p.conns[partner]
	if !live {
		p.removeLocked(partner)
		outcome.PartnerLost = true
	} else if err := conn.Send(Envelope{Type: TypeMessage, Message: censored}); err != nil {
		log.Printf("Relay to %s failed: %v", partner, err)
		p.removeLocked(partner)
		outcome.PartnerLost = true
		dead = conn
	} else {
		outcome.Delivered = true
	}
	p.mu.Unlock()

	if dead != nil {
		_ = dead.Close()
	}
	return outcome
}

// ConnOf returns the live connection for a user, if any.
func (p *PairingRegistry) ConnOf(userID string) (Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	conn, ok := p.conns[userID]
	return conn, ok
}

// PartnerOf returns the committed partner for a user, if any.
func (p *PairingRegistry) PartnerOf(userID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	partner, ok := p.pairs[userID]
	return partner, ok
}

// Stats returns a snapshot of the registry counters. The snapshot may be
// momentarily stale under concurrent mutation, which is fine for monitoring.
func (p *PairingRegistry) Stats() (active, waiting, chatting int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns), len(p.waiting), len(p.pairs)
}

// Shutdown closes every active connection. Used during process shutdown.
func (p *PairingRegistry) Shutdown() {
	p.mu.Lock()
	conns := make([]Conn, 0, len(p.conns))
	for _, conn := range p.conns {
		conns = append(conns, conn)
	}
	p.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// commitPairLocked inserts both directions of a pair and removes both users
// from the waiting pool. Callers must hold the registry mutex.
func (p *PairingRegistry) commitPairLocked(a, b string) {
	p.pairs[a] = b
	p.pairs[b] = a
	delete(p.waiting, a)
	delete(p.waiting, b)
}
