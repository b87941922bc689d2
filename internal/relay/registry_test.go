package relay

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qhaleed/ADZU-CHAT/internal/filter"
)

func newTestRegistry(customWords ...string) *PairingRegistry {
	return NewPairingRegistry(filter.New(customWords...))
}

// assertDisjoint verifies that no user appears in both the waiting pool and
// the pair table.
func assertDisjoint(t *testing.T, p *PairingRegistry) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for userID := range p.waiting {
		_, paired := p.pairs[userID]
		assert.False(t, paired, "user %s is both waiting and paired", userID)
	}
}

func TestMatchByAttributes(t *testing.T) {
	registry := newTestRegistry()
	attrs := Attributes{Campus: "main", Preference: "anyone"}

	registry.Register("alice", attrs, &fakeConn{})
	partner, matched := registry.MatchByAttributes("alice")
	require.False(t, matched, "no candidate should exist yet")
	require.Empty(t, partner)

	registry.Register("bob", attrs, &fakeConn{})
	partner, matched = registry.MatchByAttributes("bob")
	require.True(t, matched)
	require.Equal(t, "alice", partner)

	got, ok := registry.PartnerOf("alice")
	require.True(t, ok)
	assert.Equal(t, "bob", got)

	assertDisjoint(t, registry)

	active, waiting, chatting := registry.Stats()
	assert.Equal(t, 2, active)
	assert.Equal(t, 0, waiting)
	assert.Equal(t, 2, chatting)
}

func TestMatchByAttributesRequiresIdenticalTuple(t *testing.T) {
	registry := newTestRegistry()

	registry.Register("alice", Attributes{Campus: "main", Preference: "anyone"}, &fakeConn{})
	registry.Register("bob", Attributes{Campus: "west", Preference: "anyone"}, &fakeConn{})

	_, matched := registry.MatchByAttributes("alice")
	assert.False(t, matched, "different campuses must not match")

	_, _, chatting := registry.Stats()
	assert.Zero(t, chatting)
}

func TestMatchByAttributesSkipsCodeWaiters(t *testing.T) {
	registry := newTestRegistry()
	attrs := Attributes{Campus: "main", Preference: "anyone"}

	registry.Register("alice", attrs, &fakeConn{})
	_, matched := registry.MatchByCode("alice", "XYZ789")
	require.False(t, matched)

	registry.Register("bob", attrs, &fakeConn{})
	_, matched = registry.MatchByAttributes("bob")
	assert.False(t, matched, "a user waiting on a code is excluded from attribute matching")
}

func TestMatchByCode(t *testing.T) {
	registry := newTestRegistry()

	registry.Register("alice", Attributes{}, &fakeConn{})
	partner, matched := registry.MatchByCode("alice", "ABC123")
	require.False(t, matched)
	require.Empty(t, partner)

	registry.Register("bob", Attributes{}, &fakeConn{})
	partner, matched = registry.MatchByCode("bob", "ABC123")
	require.True(t, matched)
	require.Equal(t, "alice", partner)

	// The entry was consumed: a third user records a fresh reservation
	// instead of pairing with either of them.
	registry.Register("carol", Attributes{}, &fakeConn{})
	partner, matched = registry.MatchByCode("carol", "ABC123")
	assert.False(t, matched)
	assert.Empty(t, partner)

	got, _ := registry.PartnerOf("alice")
	assert.Equal(t, "bob", got)
	_, paired := registry.PartnerOf("carol")
	assert.False(t, paired)
}

func TestMatchByCodeNeverSelfMatches(t *testing.T) {
	registry := newTestRegistry()

	registry.Register("alice", Attributes{}, &fakeConn{})
	_, matched := registry.MatchByCode("alice", "ABC123")
	require.False(t, matched)

	// Re-presenting the same code overwrites the reservation.
	partner, matched := registry.MatchByCode("alice", "ABC123")
	assert.False(t, matched)
	assert.Empty(t, partner)
	_, paired := registry.PartnerOf("alice")
	assert.False(t, paired)
}

func TestUnregisterDissolvesPair(t *testing.T) {
	registry := newTestRegistry()
	attrs := Attributes{Campus: "main", Preference: "anyone"}
	aliceConn := &fakeConn{}

	registry.Register("alice", attrs, aliceConn)
	registry.Register("bob", attrs, &fakeConn{})
	_, matched := registry.MatchByAttributes("alice")
	require.True(t, matched)

	partner, hadPartner := registry.Unregister("alice", aliceConn)
	require.True(t, hadPartner)
	require.Equal(t, "bob", partner)

	// The ex-partner is not silently requeued.
	_, waiting, chatting := registry.Stats()
	assert.Zero(t, waiting)
	assert.Zero(t, chatting)

	// Second cleanup is a no-op.
	partner, hadPartner = registry.Unregister("alice", aliceConn)
	assert.False(t, hadPartner)
	assert.Empty(t, partner)

	assertDisjoint(t, registry)
}

func TestUnregisterIgnoresDisplacedHandle(t *testing.T) {
	registry := newTestRegistry()
	attrs := Attributes{Campus: "main", Preference: "anyone"}
	oldConn := &fakeConn{}
	newConn := &fakeConn{}

	registry.Register("alice", attrs, oldConn)
	registry.Register("alice", attrs, newConn)

	// The displaced connection's late cleanup must not tear down the
	// replacement session.
	partner, hadPartner := registry.Unregister("alice", oldConn)
	assert.False(t, hadPartner)
	assert.Empty(t, partner)

	active, waiting, _ := registry.Stats()
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, waiting)

	registry.Register("bob", attrs, &fakeConn{})
	got, matched := registry.MatchByAttributes("bob")
	require.True(t, matched)
	assert.Equal(t, "alice", got)
}

func TestUnregisterClearsCodeReservation(t *testing.T) {
	registry := newTestRegistry()

	aliceConn := &fakeConn{}
	registry.Register("alice", Attributes{}, aliceConn)
	_, _ = registry.MatchByCode("alice", "ABC123")
	_, _ = registry.Unregister("alice", aliceConn)

	registry.Register("bob", Attributes{}, &fakeConn{})
	_, matched := registry.MatchByCode("bob", "ABC123")
	assert.False(t, matched, "a departed user's reservation must not pair")
}

func TestRelayCensorsAndDelivers(t *testing.T) {
	registry := newTestRegistry("flibber")
	attrs := Attributes{Campus: "main", Preference: "anyone"}
	aliceConn := &fakeConn{}
	bobConn := &fakeConn{}

	registry.Register("alice", attrs, aliceConn)
	registry.Register("bob", attrs, bobConn)
	_, matched := registry.MatchByAttributes("alice")
	require.True(t, matched)

	outcome := registry.Relay("alice", "that flibber move")
	require.True(t, outcome.Delivered)
	assert.True(t, outcome.Filtered)
	assert.Equal(t, "bob", outcome.PartnerID)
	assert.False(t, outcome.PartnerLost)

	envelopes := bobConn.envelopes()
	require.Len(t, envelopes, 1)
	assert.Equal(t, TypeMessage, envelopes[0].Type)
	assert.NotContains(t, envelopes[0].Message, "flibber")
	assert.Contains(t, envelopes[0].Message, "move")
}

func TestRelayWithoutPartner(t *testing.T) {
	registry := newTestRegistry()
	registry.Register("alice", Attributes{}, &fakeConn{})

	outcome := registry.Relay("alice", "hello?")
	assert.False(t, outcome.Delivered)
	assert.Empty(t, outcome.PartnerID)
}

func TestRelayDeadPartnerTearsDownRecipient(t *testing.T) {
	registry := newTestRegistry()
	attrs := Attributes{Campus: "main", Preference: "anyone"}
	bobConn := &fakeConn{fail: true}

	registry.Register("alice", attrs, &fakeConn{})
	registry.Register("bob", attrs, bobConn)
	_, matched := registry.MatchByAttributes("alice")
	require.True(t, matched)

	outcome := registry.Relay("alice", "you there?")
	require.False(t, outcome.Delivered)
	require.True(t, outcome.PartnerLost)
	assert.Equal(t, "bob", outcome.PartnerID)
	assert.True(t, bobConn.isClosed())

	// The dead partner is fully removed; the sender keeps their session.
	_, paired := registry.PartnerOf("alice")
	assert.False(t, paired)
	active, _, _ := registry.Stats()
	assert.Equal(t, 1, active)
}

func TestReconnectDisplacesOldHandle(t *testing.T) {
	registry := newTestRegistry()
	oldConn := &fakeConn{}

	displaced := registry.Register("alice", Attributes{}, oldConn)
	require.Nil(t, displaced)

	displaced = registry.Register("alice", Attributes{}, &fakeConn{})
	assert.Same(t, oldConn, displaced)

	active, _, _ := registry.Stats()
	assert.Equal(t, 1, active)
}

func TestConcurrentMatchCommitsExactlyOnePair(t *testing.T) {
	registry := newTestRegistry()
	attrs := Attributes{Campus: "main", Preference: "anyone"}

	registry.Register("alice", attrs, &fakeConn{})
	registry.Register("bob", attrs, &fakeConn{})

	var wg sync.WaitGroup
	matches := make(chan string, 20)
	for i := 0; i < 10; i++ {
		for _, userID := range []string{"alice", "bob"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if partner, ok := registry.MatchByAttributes(id); ok {
					matches <- id + "->" + partner
				}
			}(userID)
		}
	}
	wg.Wait()
	close(matches)

	committed := 0
	for range matches {
		committed++
	}
	require.Equal(t, 1, committed, "exactly one caller may commit the pair")

	aPartner, ok := registry.PartnerOf("alice")
	require.True(t, ok)
	bPartner, ok := registry.PartnerOf("bob")
	require.True(t, ok)
	assert.Equal(t, "bob", aPartner)
	assert.Equal(t, "alice", bPartner)
	assertDisjoint(t, registry)
}

func TestConcurrentChurnKeepsInvariants(t *testing.T) {
	registry := newTestRegistry()
	attrs := Attributes{Campus: "main", Preference: "anyone"}

	const users = 24
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		userID := fmt.Sprintf("user-%02d", i)
		registry.Register(userID, attrs, &fakeConn{})
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			registry.MatchByAttributes(id)
		}(userID)
	}
	wg.Wait()

	// Every committed pair must be symmetric and every user holds at most
	// one partner.
	registry.mu.Lock()
	for userID, partner := range registry.pairs {
		assert.Equal(t, userID, registry.pairs[partner], "pair table must stay symmetric")
	}
	pairedCount := len(registry.pairs)
	waitingCount := len(registry.waiting)
	registry.mu.Unlock()

	assert.Equal(t, users, pairedCount+waitingCount)
	assertDisjoint(t, registry)
}
