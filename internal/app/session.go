package app

import (
	"errors"
	"sync"

	"github.com/beatsync/server/internal/domain"
	"github.com/rs/zerolog"
)

// ErrSendBufferFull is returned by Session.Send when the connection's
// outbound queue is saturated. The caller (Room) treats this as a
// signal to drop the session rather than block the room's single
// writer goroutine on a slow client.
var ErrSendBufferFull = errors.New("send buffer full")

// Connection is the transport-level capability a Session needs from
// its adapter: a non-blocking enqueue and an explicit close. Nothing
// above this package knows whether the connection is a websocket, a
// loopback for tests, or anything else.
type Connection interface {
	// TrySend enqueues data for delivery without blocking. It returns
	// ErrSendBufferFull if the connection's internal buffer has no
	// room, leaving the caller to decide whether that is fatal.
	TrySend(data []byte) error
	// Close tears down the connection, sending reason as the close
	// frame payload where the transport supports one.
	Close(reason string) error
	// RemoteAddr is used for location lookups and logging. May be
	// empty for connections that don't have one (e.g. in tests).
	RemoteAddr() string
}

// Session is one connected device's presence inside a single room: a
// domain.Client joined with the live Connection that carries frames to
// it. A room holds one Session per ClientID; reconnecting replaces the
// Connection but keeps the domain.Client record (and so its position,
// RTT history, and admin flag) intact.
type Session struct {
	mu     sync.RWMutex
	client *domain.Client
	conn   Connection
	roomID domain.RoomID
	log    zerolog.Logger
}

// NewSession binds client to conn inside room roomID.
func NewSession(client *domain.Client, conn Connection, roomID domain.RoomID, log zerolog.Logger) *Session {
	return &Session{
		client: client,
		conn:   conn,
		roomID: roomID,
		log:    log.With().Str("module", "session").Str("roomId", string(roomID)).Str("clientId", string(client.ID)).Logger(),
	}
}

// Client returns a snapshot-safe copy of the bound domain.Client.
// Callers that need to mutate the client go through the owning Room,
// which holds the authoritative lock; this is for read-only fan-out.
func (s *Session) Client() domain.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.client
}

// ClientID is a convenience accessor that doesn't require copying the
// whole Client.
func (s *Session) ClientID() domain.ClientID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client.ID
}

// MutateClient runs fn against the bound domain.Client under the
// session's own lock. The Room must still hold its own room-wide lock
// when calling this — Session's lock only protects against concurrent
// Client()/Send() readers, not room-level invariants.
func (s *Session) MutateClient(fn func(*domain.Client)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.client)
}

// Rebind swaps in a new Connection after a reconnect, keeping the same
// domain.Client. The old connection is closed with reason.
func (s *Session) Rebind(conn Connection, reason string) {
	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()
	if old != nil {
		_ = old.Close(reason)
	}
}

// Send hands already-encoded data to the underlying connection
// without blocking. Returns ErrSendBufferFull if the
// connection can't accept it right now.
func (s *Session) Send(data []byte) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return ErrSendBufferFull
	}
	if err := conn.TrySend(data); err != nil {
		s.log.Debug().Err(err).Msg("send failed, buffer full")
		return err
	}
	return nil
}

// Close tears down the session's connection.
func (s *Session) Close(reason string) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn != nil {
		_ = conn.Close(reason)
	}
}

// RemoteAddr reports the underlying connection's remote address, used
// for best-effort geo lookups on join.
func (s *Session) RemoteAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr()
}

// Broadcaster is the fan-out capability a Room exposes to callers
// that need to push a frame to every session without reaching into
// room internals. Implemented by Room itself.
type Broadcaster interface {
	BroadcastExcept(except domain.ClientID, data []byte)
	BroadcastAll(data []byte)
}
