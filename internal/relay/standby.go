package relay

import (
	"log"
	"sync"
	"time"
)

// StandbyTracker records users who are present on the pre-chat screen but not
// chatting, keyed by their last heartbeat. A background reaper evicts entries
// that miss their heartbeat window. Purely advisory presence state.
type StandbyTracker struct {
	mu      sync.Mutex
	entries map[string]time.Time
	timeout time.Duration
	now     func() time.Time
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewStandbyTracker creates a tracker and starts its reaper loop. Entries
// older than timeout are evicted on each tick.
func NewStandbyTracker(timeout, tick time.Duration) *StandbyTracker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if tick <= 0 {
		tick = 30 * time.Second
	}

	st := &StandbyTracker{
		entries: make(map[string]time.Time),
		timeout: timeout,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	st.wg.Add(1)
	go st.reapLoop(tick)

	return st
}

// Touch inserts a user or refreshes their heartbeat timestamp.
func (st *StandbyTracker) Touch(userID string) {
	st.mu.Lock()
	st.entries[userID] = st.now()
	st.mu.Unlock()
}

// Remove deletes a user's standby entry. It returns false when no entry
// existed, which callers treat as a harmless no-op.
func (st *StandbyTracker) Remove(userID string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.entries[userID]; !exists {
		return false
	}
	delete(st.entries, userID)
	return true
}

// Count returns the number of tracked standby users.
func (st *StandbyTracker) Count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}

// Stop terminates the reaper loop and waits for it to finish.
func (st *StandbyTracker) Stop() {
	close(st.stopCh)
	st.wg.Wait()
}

func (st *StandbyTracker) reapLoop(tick time.Duration) {
	defer st.wg.Done()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-st.stopCh:
			return
		case <-ticker.C:
			if evicted := st.reap(); evicted > 0 {
				log.Printf("Standby reaper evicted %d stale entries", evicted)
			}
		}
	}
}

// reap evicts entries whose last heartbeat exceeds the timeout and returns
// how many were removed.
func (st *StandbyTracker) reap() int {
	deadline := st.now().Add(-st.timeout)

	st.mu.Lock()
	defer st.mu.Unlock()

	evicted := 0
	for userID, lastTouch := range st.entries {
		if lastTouch.Before(deadline) {
			delete(st.entries, userID)
			evicted++
		}
	}
	return evicted
}
