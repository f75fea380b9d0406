package app

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/beatsync/server/internal/core"
	"github.com/beatsync/server/internal/domain"
	"github.com/rs/zerolog"
)

// CleanupGrace is how long a room with zero connected sessions is
// kept alive before its blobs are deleted and it is dropped from the
// registry — long enough to survive a page refresh.
const CleanupGrace = 60 * time.Second

// BlobStore is the delete(prefix) capability the Room needs from the
// object storage collaborator. Minting upload URLs lives entirely in
// the HTTP surface; the Room only ever deletes.
type BlobStore interface {
	DeletePrefix(prefix string) error
	// DeleteOne removes a single blob, used by deleteAudioSources
	// which deletes by exact URL rather than by prefix.
	DeleteOne(url string) error
}

// frameScope selects which sessions an outboundFrame reaches.
type frameScope int

const (
	scopeAll frameScope = iota
	scopeExcept
	scopeOnly
)

type outboundFrame struct {
	data   []byte
	scope  frameScope
	target domain.ClientID
}

func encodeFrame(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Every outbound type in internal/core is a plain struct of
		// marshalable fields; a failure here means a programming
		// error, not a runtime condition the caller can act on.
		panic(err)
	}
	return data
}

func frameAll(v any) outboundFrame           { return outboundFrame{data: encodeFrame(v), scope: scopeAll} }
func frameExcept(v any, id domain.ClientID) outboundFrame {
	return outboundFrame{data: encodeFrame(v), scope: scopeExcept, target: id}
}
func frameOnly(v any, id domain.ClientID) outboundFrame {
	return outboundFrame{data: encodeFrame(v), scope: scopeOnly, target: id}
}

// Room is the per-room state machine: the closed set of clients in
// it, the shared audio queue and playback state, permissions, chat,
// and (while active) the spatial mixing loop. Exactly one goroutine
// mutates a Room's fields at a time — every method below acquires mu
// for its duration and never sends to a Session while it is held;
// outbound frames are computed under the lock and flushed after it is
// released.
type Room struct {
	id  domain.RoomID
	mu  sync.Mutex
	log zerolog.Logger

	sessions map[domain.ClientID]*Session
	order    []domain.ClientID

	// clientRecords holds the domain.Client for every clientId that has
	// ever joined but is not currently connected — admin status and
	// joinedAt survive a disconnect here, keyed by clientId, until a
	// reconnect reclaims the record or cleanup tears the room down.
	clientRecords map[domain.ClientID]*domain.Client

	queue        *domain.Queue
	playback     domain.PlaybackState
	globalVolume float64
	permissions  domain.Permission
	chat         *domain.ChatLog
	chatLimiter  *chatRateLimiter
	ntpLimiter   *ntpRateLimiter

	spatialActive   bool
	spatialStop     chan struct{}
	listeningSource domain.Position

	pendingBarrier *domain.PendingLoadBarrier
	barrierTimer   *time.Timer

	cleanupTimer *time.Timer

	blobs BlobStore

	onEmpty func(domain.RoomID)
}

// NewRoom creates an empty room. blobs may be nil in tests that don't
// exercise deletion. onEmpty is invoked (outside the room's lock)
// once the cleanup grace period elapses with zero connected sessions.
func NewRoom(id domain.RoomID, blobs BlobStore, onEmpty func(domain.RoomID), log zerolog.Logger) *Room {
	return &Room{
		id:            id,
		sessions:      make(map[domain.ClientID]*Session),
		clientRecords: make(map[domain.ClientID]*domain.Client),
		queue:         domain.NewQueue(nil),
		playback:      domain.InitialPlaybackState(),
		globalVolume:  1.0,
		permissions:   domain.PermissionEveryone,
		chat:          domain.NewChatLog(),
		chatLimiter:   newChatRateLimiter(ChatRateLimit, ChatRateLimitInterval),
		ntpLimiter:    newNTPRateLimiter(),
		blobs:         blobs,
		onEmpty:       onEmpty,
		log:           log.With().Str("module", "room").Str("roomId", string(id)).Logger(),
	}
}

// ID returns the room's identifier.
func (r *Room) ID() domain.RoomID { return r.id }

// withLock runs fn holding mu, then flushes the frames it returns
// after releasing it — the "compute under lock, send after unlock"
// pattern that keeps a slow session's backpressure from blocking the
// whole room.
func (r *Room) withLock(fn func() ([]outboundFrame, error)) error {
	r.mu.Lock()
	frames, err := fn()
	r.mu.Unlock()
	r.flush(frames)
	return err
}

func (r *Room) flush(frames []outboundFrame) {
	for _, f := range frames {
		switch f.scope {
		case scopeAll:
			r.sendToAll(f.data, "")
		case scopeExcept:
			r.sendToAll(f.data, f.target)
		case scopeOnly:
			if s, ok := r.sessionLocked(f.target); ok {
				r.trySendOrDrop(s, f.data)
			}
		}
	}
}

func (r *Room) sessionLocked(id domain.ClientID) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	return s, ok
}

func (r *Room) sendToAll(data []byte, except domain.ClientID) {
	r.mu.Lock()
	targets := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id == except {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.Unlock()
	for _, s := range targets {
		r.trySendOrDrop(s, data)
	}
}

// trySendOrDrop enforces the room's backpressure policy: a session
// whose buffer is already full is disconnected rather than allowed to
// stall every future broadcast.
func (r *Room) trySendOrDrop(s *Session, data []byte) {
	if err := s.Send(data); err != nil {
		r.log.Warn().Str("clientId", string(s.ClientID())).Msg("dropping slow session")
		s.Close("send buffer exceeded")
		go r.RemoveClient(s.ClientID())
	}
}

// BroadcastAll sends data to every connected session.
func (r *Room) BroadcastAll(data []byte) { r.sendToAll(data, "") }

// BroadcastExcept sends data to every connected session but except.
func (r *Room) BroadcastExcept(except domain.ClientID, data []byte) { r.sendToAll(data, except) }

// ClientCount reports how many sessions are currently connected.
func (r *Room) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// snapshotClientsLocked returns the current client list in join
// order, must be called holding mu.
func (r *Room) snapshotClientsLocked() []domain.Client {
	out := make([]domain.Client, 0, len(r.order))
	for _, id := range r.order {
		if s, ok := r.sessions[id]; ok {
			out = append(out, s.Client())
		}
	}
	return out
}

func (r *Room) connectedIDsLocked() []domain.ClientID {
	out := make([]domain.ClientID, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Room) requireCanMutateLocked(id domain.ClientID) error {
	s, ok := r.sessions[id]
	if !ok {
		return ErrUnknownClient
	}
	if r.permissions == domain.PermissionEveryone {
		return nil
	}
	c := s.Client()
	if !c.IsAdmin {
		return ErrPermissionDenied
	}
	return nil
}

// AddClient enrolls a new session, rebinds an existing client's
// connection on reconnect (still-connected duplicate tab), or restores
// a retained record for a client that had fully disconnected and is
// rejoining — isAdmin and joinedAt survive that round trip. isAdmin for
// a genuinely new client is true iff no other session is connected at
// the moment it joins. Broadcasts a CLIENT_CHANGE event to the room and
// sends the full sync frames only to the joining session.
func (r *Room) AddClient(clientID domain.ClientID, username string, conn Connection, now time.Time) error {
	return r.withLock(func() ([]outboundFrame, error) {
		if existing, ok := r.sessions[clientID]; ok {
			existing.Rebind(conn, "replaced by new connection")
			existing.MutateClient(func(c *domain.Client) { c.Touch(now) })
		} else {
			if len(r.sessions) >= MaxClientsPerRoom {
				return nil, ErrRoomFull
			}
			client, retained := r.clientRecords[clientID]
			if retained {
				delete(r.clientRecords, clientID)
				client.Username = username
				client.Touch(now)
			} else {
				isAdmin := len(r.sessions) == 0
				var err error
				client, err = domain.NewClient(clientID, username, isAdmin, now)
				if err != nil {
					return nil, err
				}
			}
			sess := NewSession(client, conn, r.id, r.log)
			r.sessions[clientID] = sess
			r.order = append(r.order, clientID)
		}
		if r.cleanupTimer != nil {
			r.cleanupTimer.Stop()
			r.cleanupTimer = nil
		}
		r.repositionClientsLocked()
		frames := []outboundFrame{frameAll(core.NewClientChangeEvent(r.snapshotClientsLocked()))}
		frames = append(frames, r.syncFramesLocked(clientID)...)
		return frames, nil
	})
}

// RemoveClient drops a session (normal close, or forced by
// backpressure). The client's domain.Client record is retained in
// clientRecords rather than discarded, so a later AddClient for the
// same clientId restores isAdmin and joinedAt instead of starting
// over. When the last session leaves, a cleanup timer is armed;
// AddClient cancels it if someone rejoins first.
func (r *Room) RemoveClient(clientID domain.ClientID) {
	_ = r.withLock(func() ([]outboundFrame, error) {
		sess, ok := r.sessions[clientID]
		if !ok {
			return nil, nil
		}
		client := sess.Client()
		r.clientRecords[clientID] = &client
		delete(r.sessions, clientID)
		r.chatLimiter.forget(clientID)
		r.ntpLimiter.forget(clientID)
		for i, id := range r.order {
			if id == clientID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		if r.pendingBarrier != nil {
			r.pendingBarrier.DropClient(clientID)
		}
		var frames []outboundFrame
		if len(r.sessions) == 0 {
			r.armCleanupLocked()
		} else {
			r.promoteAdminIfNeededLocked()
			r.repositionClientsLocked()
			frames = append(frames, frameAll(core.NewClientChangeEvent(r.snapshotClientsLocked())))
		}
		return frames, nil
	})
}

// promoteAdminIfNeededLocked hands admin to a uniformly random
// remaining connected client if the room has no admin left.
func (r *Room) promoteAdminIfNeededLocked() {
	for _, id := range r.order {
		if r.sessions[id].Client().IsAdmin {
			return
		}
	}
	if len(r.order) == 0 {
		return
	}
	pick := r.order[rand.Intn(len(r.order))]
	r.sessions[pick].MutateClient(func(c *domain.Client) { c.IsAdmin = true })
}

// repositionClientsLocked re-lays out every connected client evenly
// around the circle, in join order.
func (r *Room) repositionClientsLocked() {
	n := len(r.order)
	for i, id := range r.order {
		r.sessions[id].MutateClient(func(c *domain.Client) {
			c.Position = domain.CirclePosition(i, n)
		})
	}
}

func (r *Room) armCleanupLocked() {
	r.cleanupTimer = time.AfterFunc(CleanupGrace, func() {
		r.cleanup()
	})
}

// cleanup deletes the room's blobs and notifies the registry it can
// be dropped. Called at most once, from the cleanup timer, and only
// if no one has rejoined in the meantime.
func (r *Room) cleanup() {
	r.mu.Lock()
	empty := len(r.sessions) == 0
	if empty {
		r.clientRecords = make(map[domain.ClientID]*domain.Client)
	}
	r.mu.Unlock()
	if !empty {
		return
	}
	if r.blobs != nil {
		if err := r.blobs.DeletePrefix(roomBlobPrefix(r.id)); err != nil {
			r.log.Warn().Err(err).Msg("failed to delete room blobs on cleanup")
		}
	}
	if r.onEmpty != nil {
		r.onEmpty(r.id)
	}
}

func roomBlobPrefix(id domain.RoomID) string {
	return "room-" + string(id) + "/"
}

// Snapshot returns the room's current state for chat/queue/playback
// restore and backup purposes.
func (r *Room) Snapshot() domain.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.RoomSnapshot{
		ClientDatas:   r.snapshotClientsLocked(),
		AudioSources:  r.queue.Sources(),
		GlobalVolume:  r.globalVolume,
		PlaybackState: r.playback,
		Chat: &domain.ChatSnapshot{
			Messages:      r.chat.All(),
			NextMessageID: r.chat.NextID(),
		},
	}
}

// Restore repopulates queue, playback, volume, and chat from a
// snapshot taken before a restart. The snapshot's client list is not
// restored: there are no connected sessions at restore time.
func (r *Room) Restore(snap domain.RoomSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	urls := make([]string, len(snap.AudioSources))
	for i, s := range snap.AudioSources {
		urls[i] = s.URL
	}
	r.queue.Replace(urls)
	r.playback = snap.PlaybackState
	r.globalVolume = snap.GlobalVolume
	if snap.Chat != nil {
		r.chat.Restore(snap.Chat.Messages, snap.Chat.NextMessageID)
	}
}
