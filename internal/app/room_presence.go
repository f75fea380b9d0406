package app

import (
	"time"

	"github.com/beatsync/server/internal/core"
	"github.com/beatsync/server/internal/domain"
)

// LocationResolver resolves best-effort geo metadata for a remote
// address. Implemented by an HTTP adapter that calls an IP geolocation
// service; returns nil, nil when lookup is unavailable rather than
// failing the request.
type LocationResolver interface {
	Resolve(remoteAddr string) (*domain.Location, error)
}

// HandleNTPRequest answers a time-sync probe and folds any reported
// RTT sample into the client's smoothed estimate. receiveMillis must
// be stamped by the adapter the instant the frame was read off the
// wire, not when this handler runs. Rejects with ErrRateLimited once
// clientID exceeds the NTP probe token bucket, so a runaway convergence
// loop can't flood the room with probes.
func (r *Room) HandleNTPRequest(clientID domain.ClientID, req core.NTPRequest, receiveMillis, sendMillis int64, now time.Time) (core.NTPResponse, error) {
	if !r.ntpLimiter.Allow(clientID) {
		return core.NTPResponse{}, ErrRateLimited
	}
	var resp core.NTPResponse
	err := r.withLock(func() ([]outboundFrame, error) {
		s, ok := r.sessions[clientID]
		if !ok {
			return nil, ErrUnknownClient
		}
		resp = core.HandleNTPRequest(req, receiveMillis, sendMillis)
		s.MutateClient(func(c *domain.Client) {
			c.Touch(now)
			if req.ReportedRTTMillis > 0 {
				c.UpdateRTT(req.ReportedRTTMillis)
			}
		})
		return nil, nil
	})
	return resp, err
}

// SweepHeartbeats disconnects any session that hasn't sent an NTP
// request within HeartbeatResponseTimeoutMillis of now. Intended to
// run from a ticker owned by the registry, once per
// HeartbeatSweepIntervalMillis.
func (r *Room) SweepHeartbeats(now time.Time) {
	r.mu.Lock()
	var stale []domain.ClientID
	timeout := time.Duration(core.HeartbeatResponseTimeoutMillis) * time.Millisecond
	for _, id := range r.order {
		c := r.sessions[id].Client()
		if now.Sub(c.LastHeartbeatAt) > timeout {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()
	for _, id := range stale {
		r.log.Info().Str("clientId", string(id)).Msg("heartbeat timeout, disconnecting")
		if s, ok := r.sessionLocked(id); ok {
			s.Close("heartbeat timeout")
		}
		r.RemoveClient(id)
	}
}

// HandleSendIP resolves geo metadata for clientID's connection, using
// resolver, and folds it into the client record. A nil resolver or a
// failed lookup leaves Location unset rather than failing the request.
func (r *Room) HandleSendIP(clientID domain.ClientID, resolver LocationResolver) error {
	if resolver == nil {
		return nil
	}
	s, ok := r.sessionLocked(clientID)
	if !ok {
		return ErrUnknownClient
	}
	loc, err := resolver.Resolve(s.RemoteAddr())
	if err != nil || loc == nil {
		return nil
	}
	return r.withLock(func() ([]outboundFrame, error) {
		sess, ok := r.sessions[clientID]
		if !ok {
			return nil, nil
		}
		sess.MutateClient(func(c *domain.Client) { c.Location = loc })
		return []outboundFrame{frameAll(core.NewClientChangeEvent(r.snapshotClientsLocked()))}, nil
	})
}

// DefaultTrackProvider supplies the fixed starter playlist for
// LOAD_DEFAULT_TRACKS, sourced from server configuration.
type DefaultTrackProvider interface {
	DefaultTracks() []string
}

// HandleLoadDefaultTracks populates an empty queue with the
// configured default tracks. A no-op if the queue already has
// entries, so a returning admin doesn't clobber an in-progress queue.
func (r *Room) HandleLoadDefaultTracks(initiator domain.ClientID, provider DefaultTrackProvider) error {
	return r.withLock(func() ([]outboundFrame, error) {
		if err := r.requireCanMutateLocked(initiator); err != nil {
			return nil, err
		}
		if r.queue.Len() > 0 {
			return nil, nil
		}
		r.queue.Replace(provider.DefaultTracks())
		return []outboundFrame{frameAll(core.NewSetAudioSourcesEvent(r.queue.Sources(), r.playback.AudioSource))}, nil
	})
}
