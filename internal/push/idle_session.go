package push

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// IdleSession owns one open folder connection for the duration of a
// single IDLE command. It guarantees the DONE continuation is written
// at most once per IDLE (spec §4.1, §8 "Single DONE").
//
// All transitions are serialized under mu. accepting is additionally
// atomic so MoreResponsesAvailable-adjacent reads never need the lock.
type IdleSession struct {
	mu         sync.Mutex
	connection Connection
	accepting  atomic.Bool
}

// NewIdleSession attaches an IdleSession to an open connection.
func NewIdleSession(conn Connection) *IdleSession {
	return &IdleSession{connection: conn}
}

// HasIdleCapability queries the connection for the IDLE capability.
func (s *IdleSession) HasIdleCapability() (bool, error) {
	s.mu.Lock()
	conn := s.connection
	s.mu.Unlock()

	if conn == nil {
		return false, fmt.Errorf("%w: no connection attached", ErrInvariant)
	}

	ok, err := conn.HasCapability("IDLE")
	if err != nil {
		return false, fmt.Errorf("%w: checking IDLE capability: %v", ErrTransport, err)
	}
	return ok, nil
}

// SetReadTimeout adjusts the socket read timeout for the attached
// connection.
func (s *IdleSession) SetReadTimeout(d time.Duration) error {
	s.mu.Lock()
	conn := s.connection
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("%w: no connection attached", ErrTransport)
	}
	if err := conn.SetReadTimeout(d); err != nil {
		return fmt.Errorf("%w: set read timeout: %v", ErrTransport, err)
	}
	return nil
}

// MoreResponsesAvailable is a non-blocking check used by the loop to
// decide whether to keep waiting or drain the buffer.
func (s *IdleSession) MoreResponsesAvailable() bool {
	s.mu.Lock()
	conn := s.connection
	s.mu.Unlock()

	if conn == nil {
		return false
	}
	return conn.MoreResponsesAvailable()
}

// StartAcceptingDone is called once the server has replied with the
// "+" continuation indicating it is now idling. It requires the
// connection to still be attached.
func (s *IdleSession) StartAcceptingDone() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connection == nil {
		return fmt.Errorf("%w: startAcceptingDone with no connection", ErrInvariant)
	}
	s.accepting.Store(true)
	return nil
}

// StopAcceptingDone detaches the connection from this session. Called
// in the IDLE command's cleanup path; a subsequent StopIdle becomes a
// no-op.
func (s *IdleSession) StopAcceptingDone() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connection = nil
	s.accepting.Store(false)
}

// StopIdle ends an outstanding IDLE by sending DONE, if this session
// is currently accepting it. Idempotent: a second call is a no-op.
//
// The guard flag is flipped under the lock but the actual write
// happens outside it, so a blocked SendContinuation cannot stall a
// concurrent refresh()/stop() observing this same session (see
// spec §9, "open question" on this exact point).
func (s *IdleSession) StopIdle() error {
	s.mu.Lock()
	if !s.accepting.CompareAndSwap(true, false) {
		s.mu.Unlock()
		return nil
	}
	conn := s.connection
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	if err := conn.SendContinuation("DONE"); err != nil {
		// A better error will arrive through the IDLE command's own
		// return path; this one is absorbed by closing the socket.
		_ = conn.Close()
	}
	return nil
}
