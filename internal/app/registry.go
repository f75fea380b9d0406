package app

import (
	"math/rand"
	"sync"
	"time"

	"github.com/beatsync/server/internal/core"
	"github.com/beatsync/server/internal/domain"
	"github.com/rs/zerolog"
)

// RoomIDLength is the digit count of a generated room code.
const RoomIDLength = 6

// Registry owns the process-wide roomId→Room map: creation, lookup,
// and eventual deletion once a room's cleanup grace period elapses.
// Exactly one Registry exists per process, constructed in the
// composition root and passed to every adapter that needs rooms —
// never reached through an ambient global.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room

	blobs   BlobStore
	log     zerolog.Logger
	heartbeatStop chan struct{}
}

// NewRegistry creates an empty registry and starts its heartbeat
// sweeper ticker.
func NewRegistry(blobs BlobStore, log zerolog.Logger) *Registry {
	reg := &Registry{
		rooms:         make(map[domain.RoomID]*Room),
		blobs:         blobs,
		log:           log.With().Str("module", "registry").Logger(),
		heartbeatStop: make(chan struct{}),
	}
	go reg.runHeartbeatSweeper()
	return reg
}

// Shutdown stops the heartbeat sweeper. Rooms themselves are not
// torn down — an in-flight backup snapshot still wants to see them.
func (reg *Registry) Shutdown() {
	close(reg.heartbeatStop)
}

func (reg *Registry) runHeartbeatSweeper() {
	interval := time.Duration(core.HeartbeatSweepIntervalMillis) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-reg.heartbeatStop:
			return
		case <-ticker.C:
			now := time.Now()
			for _, room := range reg.ActiveRooms() {
				room.SweepHeartbeats(now)
			}
		}
	}
}

// GetRoom looks up an existing room without creating one.
func (reg *Registry) GetRoom(id domain.RoomID) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[id]
	return r, ok
}

// GetOrCreateRoom returns the room for id, creating it (and
// registering a cleanup callback) if it doesn't exist yet.
func (reg *Registry) GetOrCreateRoom(id domain.RoomID) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[id]; ok {
		return r
	}
	r := NewRoom(id, reg.blobs, reg.deleteRoom, reg.log)
	reg.rooms[id] = r
	return r
}

// deleteRoom drops a room from the map once its cleanup grace period
// has elapsed with no one having rejoined. Passed to NewRoom as
// onEmpty so Room never has to reach back into Registry internals
// beyond this one callback.
func (reg *Registry) deleteRoom(id domain.RoomID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[id]; ok && r.ClientCount() == 0 {
		delete(reg.rooms, id)
	}
}

// Rooms returns a snapshot slice of every room currently tracked,
// including ones pending cleanup.
func (reg *Registry) Rooms() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

// ActiveRooms returns only rooms with at least one connected client,
// the set the heartbeat sweeper and the /active-rooms endpoint care about.
func (reg *Registry) ActiveRooms() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		if r.ClientCount() > 0 {
			out = append(out, r)
		}
	}
	return out
}

// NewRoomID generates a fresh, unused RoomIDLength-digit room code.
func (reg *Registry) NewRoomID() domain.RoomID {
	for {
		id := domain.RoomID(randomDigits(RoomIDLength))
		reg.mu.RLock()
		_, exists := reg.rooms[id]
		reg.mu.RUnlock()
		if !exists {
			return id
		}
	}
}

func randomDigits(n int) string {
	const digits = "0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = digits[rand.Intn(len(digits))]
	}
	return string(b)
}

