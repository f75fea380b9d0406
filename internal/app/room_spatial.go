package app

import (
	"time"

	"github.com/beatsync/server/internal/core"
	"github.com/beatsync/server/internal/domain"
)

// HandleStartSpatialAudio starts the 100ms spatial ticker; idempotent
// if already running.
func (r *Room) HandleStartSpatialAudio(initiator domain.ClientID) error {
	return r.withLock(func() ([]outboundFrame, error) {
		if err := r.requireCanMutateLocked(initiator); err != nil {
			return nil, err
		}
		if r.spatialActive {
			return nil, nil
		}
		r.spatialActive = true
		stop := make(chan struct{})
		r.spatialStop = stop
		go r.runSpatialLoop(stop)
		return nil, nil
	})
}

// HandleStopSpatialAudio cancels the ticker and tells clients to fall
// back to plain global-volume playback.
func (r *Room) HandleStopSpatialAudio(initiator domain.ClientID) error {
	return r.withLock(func() ([]outboundFrame, error) {
		if err := r.requireCanMutateLocked(initiator); err != nil {
			return nil, err
		}
		if !r.spatialActive {
			return nil, nil
		}
		r.spatialActive = false
		close(r.spatialStop)
		r.spatialStop = nil
		return []outboundFrame{frameAll(core.NewStopSpatialScheduledAction(core.NowMillis()))}, nil
	})
}

// runSpatialLoop ticks every SpatialTickIntervalMillis, moving the
// listening source and re-broadcasting every client's gain, until
// stop is closed.
func (r *Room) runSpatialLoop(stop chan struct{}) {
	ticker := time.NewTicker(time.Duration(domain.SpatialTickIntervalMillis) * time.Millisecond)
	defer ticker.Stop()
	var tick int64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			tick++
			frame := r.tickSpatial(tick)
			if frame != nil {
				r.flush([]outboundFrame{*frame})
			}
		}
	}
}

// tickSpatial acquires mu itself (it runs from the spatial loop's own
// goroutine, not from withLock) and returns the frame to broadcast,
// or nil if the loop was stopped concurrently.
func (r *Room) tickSpatial(tick int64) *outboundFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.spatialActive {
		return nil
	}
	r.listeningSource = domain.ListeningSourcePosition(tick)
	f := r.spatialConfigFrameLocked()
	return &f
}

// spatialConfigFrameLocked builds the SPATIAL_CONFIG broadcast for
// the current listening source position and client set. Must be
// called holding mu.
func (r *Room) spatialConfigFrameLocked() outboundFrame {
	gains := make(map[domain.ClientID]domain.Gain, len(r.order))
	for _, id := range r.order {
		c := r.sessions[id].Client()
		gains[id] = domain.Gain{
			Value:    core.Gain(c.Position, r.listeningSource),
			RampSecs: domain.SpatialRampSeconds,
		}
	}
	execAt := core.ScheduledExecutionTime(core.NowMillis(), r.maxConnectedRTTLocked(), 0)
	return frameAll(core.NewSpatialConfigScheduledAction(execAt, r.listeningSource, gains))
}

// HandleSetListeningSource moves the listening source directly
// (without the ticker running) and emits one fresh SPATIAL_CONFIG.
func (r *Room) HandleSetListeningSource(initiator domain.ClientID, pos domain.Position) error {
	return r.withLock(func() ([]outboundFrame, error) {
		if err := r.requireCanMutateLocked(initiator); err != nil {
			return nil, err
		}
		r.listeningSource = pos.Clamp()
		return []outboundFrame{r.spatialConfigFrameLocked()}, nil
	})
}

// HandleMoveClient repositions a client — the session moving itself,
// or any client if the mover passes the room's mutation check (an
// admin, or anyone while permissions are EVERYONE) — and emits one fresh
// SPATIAL_CONFIG reflecting the new gains.
func (r *Room) HandleMoveClient(initiator, target domain.ClientID, pos domain.Position) error {
	return r.withLock(func() ([]outboundFrame, error) {
		s, ok := r.sessions[target]
		if !ok {
			return nil, ErrUnknownClient
		}
		if target != initiator {
			if err := r.requireCanMutateLocked(initiator); err != nil {
				return nil, err
			}
		}
		s.MutateClient(func(c *domain.Client) { c.Move(pos) })
		return []outboundFrame{r.spatialConfigFrameLocked()}, nil
	})
}

// HandleReorderClient moves a client to a new index in the join-order
// circle, repositioning everyone and emitting a fresh SPATIAL_CONFIG.
func (r *Room) HandleReorderClient(initiator, target domain.ClientID, newIndex int) error {
	return r.withLock(func() ([]outboundFrame, error) {
		if err := r.requireCanMutateLocked(initiator); err != nil {
			return nil, err
		}
		idx := -1
		for i, id := range r.order {
			if id == target {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, ErrUnknownClient
		}
		if newIndex < 0 || newIndex >= len(r.order) {
			newIndex = len(r.order) - 1
		}
		r.order = append(r.order[:idx], r.order[idx+1:]...)
		if newIndex > len(r.order) {
			newIndex = len(r.order)
		}
		r.order = append(r.order[:newIndex], append([]domain.ClientID{target}, r.order[newIndex:]...)...)
		r.repositionClientsLocked()
		frames := []outboundFrame{frameAll(core.NewClientChangeEvent(r.snapshotClientsLocked())), r.spatialConfigFrameLocked()}
		return frames, nil
	})
}

// HandleSetGlobalVolume clamps v to [0,1] and broadcasts the new
// multiplier immediately (not subject to the scheduling delay, per
// its own ramp on the client).
func (r *Room) HandleSetGlobalVolume(initiator domain.ClientID, v float64) error {
	return r.withLock(func() ([]outboundFrame, error) {
		if err := r.requireCanMutateLocked(initiator); err != nil {
			return nil, err
		}
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		r.globalVolume = v
		return []outboundFrame{frameAll(core.NewGlobalVolumeScheduledAction(core.NowMillis(), v))}, nil
	})
}

// HandleSetAdmin flips target's admin flag; only an existing admin
// may call this.
func (r *Room) HandleSetAdmin(initiator, target domain.ClientID, isAdmin bool) error {
	return r.withLock(func() ([]outboundFrame, error) {
		initSess, ok := r.sessions[initiator]
		if !ok || !initSess.Client().IsAdmin {
			return nil, ErrPermissionDenied
		}
		targetSess, ok := r.sessions[target]
		if !ok {
			return nil, ErrUnknownClient
		}
		targetSess.MutateClient(func(c *domain.Client) { c.IsAdmin = isAdmin })
		return []outboundFrame{frameAll(core.NewClientChangeEvent(r.snapshotClientsLocked()))}, nil
	})
}

// HandleSetPlaybackControls changes who besides the admin may mutate
// room state; only an admin may call this.
func (r *Room) HandleSetPlaybackControls(initiator domain.ClientID, perm domain.Permission) error {
	return r.withLock(func() ([]outboundFrame, error) {
		initSess, ok := r.sessions[initiator]
		if !ok || !initSess.Client().IsAdmin {
			return nil, ErrPermissionDenied
		}
		r.permissions = perm
		return []outboundFrame{frameAll(core.NewSetPlaybackControlsEvent(perm))}, nil
	})
}
