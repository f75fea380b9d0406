package domain

import "time"

// PlayAction is the request payload that starts a load barrier: play
// audioSource, optionally starting from a non-zero track position
// (e.g. a DJ-style seek).
type PlayAction struct {
	AudioSource       string  `json:"audioSource"`
	TrackPositionSecs float64 `json:"trackPositionSeconds"`
}

// PendingLoadBarrier is the waiting phase between a PLAY request and
// the PLAY broadcast, gated on every connected client confirming it
// has decoded the buffer. At most one exists per Room at a time.
type PendingLoadBarrier struct {
	PlayAction  PlayAction
	InitiatorID ClientID
	Loaded      map[ClientID]struct{}
	Deadline    time.Time
}

// NewPendingLoadBarrier starts a barrier seeded with the initiator's
// own confirmation.
func NewPendingLoadBarrier(action PlayAction, initiator ClientID, now time.Time, timeout time.Duration) *PendingLoadBarrier {
	b := &PendingLoadBarrier{
		PlayAction:  action,
		InitiatorID: initiator,
		Loaded:      map[ClientID]struct{}{initiator: {}},
		Deadline:    now.Add(timeout),
	}
	return b
}

// MarkLoaded records that clientID confirmed decoding the buffer.
func (b *PendingLoadBarrier) MarkLoaded(clientID ClientID) {
	b.Loaded[clientID] = struct{}{}
}

// Satisfied reports whether every id in connected has confirmed.
func (b *PendingLoadBarrier) Satisfied(connected []ClientID) bool {
	for _, id := range connected {
		if _, ok := b.Loaded[id]; !ok {
			return false
		}
	}
	return true
}

// Expired reports whether the barrier's deadline has passed as of now.
func (b *PendingLoadBarrier) Expired(now time.Time) bool {
	return !now.Before(b.Deadline)
}

// DropClient removes clientID from the loaded set — a leaving client
// can no longer block the barrier.
func (b *PendingLoadBarrier) DropClient(clientID ClientID) {
	delete(b.Loaded, clientID)
}
