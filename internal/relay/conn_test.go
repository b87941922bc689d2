package relay

import (
	"errors"
	"sync"
)

// fakeConn is an in-memory Conn for exercising the registries without a
// transport. Setting fail makes every Send error, simulating a dead handle.
type fakeConn struct {
	mu     sync.Mutex
	sent   []Envelope
	fail   bool
	closed bool
}

var errFakeSend = errors.New("send failed")

func (f *fakeConn) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail || f.closed {
		return errFakeSend
	}
	if env, ok := v.(Envelope); ok {
		f.sent = append(f.sent, env)
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) envelopes() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Envelope(nil), f.sent...)
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
