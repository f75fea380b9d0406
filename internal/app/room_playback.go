package app

import (
	"strings"
	"time"

	"github.com/beatsync/server/internal/core"
	"github.com/beatsync/server/internal/domain"
)

// HandlePlay starts (or restarts) a load barrier for action, gated on
// every connected client having confirmed it decoded the buffer.
func (r *Room) HandlePlay(initiator domain.ClientID, action domain.PlayAction, now time.Time) error {
	return r.withLock(func() ([]outboundFrame, error) {
		if err := r.requireCanMutateLocked(initiator); err != nil {
			return nil, err
		}
		if !r.queue.Contains(action.AudioSource) {
			r.log.Warn().Str("audioSource", action.AudioSource).Msg("play requested for unknown audio source")
			return nil, ErrAudioSourceAbsent
		}
		if r.barrierTimer != nil {
			r.barrierTimer.Stop()
		}
		r.pendingBarrier = domain.NewPendingLoadBarrier(action, initiator, now, core.LoadBarrierTimeout)
		r.barrierTimer = time.AfterFunc(core.LoadBarrierTimeout, r.onBarrierDeadline)
		return []outboundFrame{frameAll(core.NewLoadAudioSourceEvent(action.AudioSource))}, nil
	})
}

// HandleAudioSourceLoaded records that clientID finished decoding the
// barrier's track and commits playback once everyone connected has.
func (r *Room) HandleAudioSourceLoaded(clientID domain.ClientID, url string) error {
	return r.withLock(func() ([]outboundFrame, error) {
		if r.pendingBarrier == nil || r.pendingBarrier.PlayAction.AudioSource != url {
			return nil, nil
		}
		r.pendingBarrier.MarkLoaded(clientID)
		if !r.pendingBarrier.Satisfied(r.connectedIDsLocked()) {
			return nil, nil
		}
		if r.barrierTimer != nil {
			r.barrierTimer.Stop()
		}
		return r.commitPlayLocked()
	})
}

// onBarrierDeadline fires from the barrier's timer goroutine and
// commits whatever has loaded so far, even if not everyone confirmed.
func (r *Room) onBarrierDeadline() {
	_ = r.withLock(func() ([]outboundFrame, error) {
		if r.pendingBarrier == nil {
			return nil, nil
		}
		return r.commitPlayLocked()
	})
}

// commitPlayLocked must be called holding mu with a non-nil
// pendingBarrier; it clears the barrier and broadcasts the scheduled
// PLAY, or aborts silently if the track was deleted while waiting.
func (r *Room) commitPlayLocked() ([]outboundFrame, error) {
	action := r.pendingBarrier.PlayAction
	r.pendingBarrier = nil
	r.barrierTimer = nil
	if !r.queue.Contains(action.AudioSource) {
		r.log.Warn().Str("audioSource", action.AudioSource).Msg("aborting play commit, track removed from queue")
		return nil, nil
	}
	maxRTT := r.maxConnectedRTTLocked()
	execAt := core.ScheduledExecutionTime(core.NowMillis(), maxRTT, 0)
	r.playback = domain.PlaybackState{
		Kind:                domain.Playing,
		AudioSource:         action.AudioSource,
		ServerTimeToExecute: execAt,
		TrackPositionSecs:   action.TrackPositionSecs,
	}
	return []outboundFrame{frameAll(core.NewPlayScheduledAction(execAt, action.AudioSource, action.TrackPositionSecs))}, nil
}

func (r *Room) maxConnectedRTTLocked() float64 {
	max := 0.0
	for _, id := range r.order {
		rtt := r.sessions[id].Client().RTTMillis
		if rtt > max {
			max = rtt
		}
	}
	return max
}

// HandlePause schedules a PAUSE of the current track at the next
// scheduled execution time and records the room as paused.
func (r *Room) HandlePause(initiator domain.ClientID) error {
	return r.withLock(func() ([]outboundFrame, error) {
		if err := r.requireCanMutateLocked(initiator); err != nil {
			return nil, err
		}
		maxRTT := r.maxConnectedRTTLocked()
		execAt := core.ScheduledExecutionTime(core.NowMillis(), maxRTT, 0)
		url := r.playback.AudioSource
		r.playback = domain.PlaybackState{
			Kind:                domain.Paused,
			AudioSource:         url,
			ServerTimeToExecute: execAt,
			TrackPositionSecs:   r.playback.TrackPositionSecs,
		}
		return []outboundFrame{frameAll(core.NewPauseScheduledAction(execAt, url, r.playback.TrackPositionSecs))}, nil
	})
}

// HandleSync answers a late joiner's SYNC request with a unicast
// resume instruction; a no-op while the room is paused.
func (r *Room) HandleSync(clientID domain.ClientID) error {
	return r.withLock(func() ([]outboundFrame, error) {
		if r.playback.Kind != domain.Playing {
			return nil, nil
		}
		maxRTT := r.maxConnectedRTTLocked()
		execAt := core.ScheduledExecutionTime(core.NowMillis(), maxRTT, core.SyncExtraMillis)
		elapsedSecs := float64(execAt-r.playback.ServerTimeToExecute) / 1000
		resumePosition := r.playback.TrackPositionSecs + elapsedSecs
		msg := core.NewPlayScheduledAction(execAt, r.playback.AudioSource, resumePosition)
		return []outboundFrame{frameOnly(msg, clientID)}, nil
	})
}

// syncFramesLocked is called by AddClient to bring a newly joined
// session up to date: the audio queue, playback controls, global
// volume, and a full chat history dump. Must be called holding mu.
func (r *Room) syncFramesLocked(clientID domain.ClientID) []outboundFrame {
	frames := []outboundFrame{
		frameOnly(core.NewSetAudioSourcesEvent(r.queue.Sources(), r.playback.AudioSource), clientID),
		frameOnly(core.NewSetPlaybackControlsEvent(r.permissions), clientID),
		frameOnly(core.NewGlobalVolumeScheduledAction(core.NowMillis(), r.globalVolume), clientID),
		frameOnly(core.NewChatUpdateEvent(r.chat.All(), true, r.chat.NewestID()), clientID),
	}
	return frames
}

// SetAudioSources replaces the queue wholesale and broadcasts the new
// queue.
func (r *Room) SetAudioSources(initiator domain.ClientID, urls []string) error {
	return r.withLock(func() ([]outboundFrame, error) {
		if err := r.requireCanMutateLocked(initiator); err != nil {
			return nil, err
		}
		r.queue.Replace(urls)
		return []outboundFrame{frameAll(core.NewSetAudioSourcesEvent(r.queue.Sources(), r.playback.AudioSource))}, nil
	})
}

// AddAudioSource appends a single freshly uploaded URL to the queue,
// called from the HTTP upload-complete handler rather than a WS
// message.
func (r *Room) AddAudioSource(url string) error {
	return r.withLock(func() ([]outboundFrame, error) {
		if r.queue.Contains(url) {
			return nil, domain.ErrAudioSourceDuplicate
		}
		r.queue.Replace(append(r.queue.URLs(), url))
		return []outboundFrame{frameAll(core.NewSetAudioSourcesEvent(r.queue.Sources(), r.playback.AudioSource))}, nil
	})
}

// DeleteAudioSources attempts to delete each URL's underlying blob
// (only for URLs this room owns, under its room-<roomId>/ prefix) and
// removes from the queue only the ones whose blob delete succeeded or
// that were never blob-owned.
func (r *Room) DeleteAudioSources(initiator domain.ClientID, urls []string) error {
	return r.withLock(func() ([]outboundFrame, error) {
		if err := r.requireCanMutateLocked(initiator); err != nil {
			return nil, err
		}
		prefix := roomBlobPrefix(r.id)
		removable := make([]string, 0, len(urls))
		for _, u := range urls {
			if !ownsBlobURL(u, prefix) {
				removable = append(removable, u)
				continue
			}
			if r.blobs == nil {
				removable = append(removable, u)
				continue
			}
			if err := r.blobs.DeleteOne(u); err != nil {
				r.log.Warn().Err(err).Str("url", u).Msg("failed to delete blob, keeping queue entry")
				continue
			}
			removable = append(removable, u)
		}
		if len(removable) == 0 {
			return nil, nil
		}
		removedCurrent := r.queue.Contains(r.playback.AudioSource) && containsString(removable, r.playback.AudioSource)
		r.queue.Remove(removable)
		if removedCurrent {
			r.playback = domain.InitialPlaybackState()
		}
		return []outboundFrame{frameAll(core.NewSetAudioSourcesEvent(r.queue.Sources(), r.playback.AudioSource))}, nil
	})
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ownsBlobURL reports whether url's path contains the given room
// prefix — only URLs this room uploaded are blob-deleted; externally
// referenced URLs are merely dropped from the queue.
func ownsBlobURL(url, prefix string) bool {
	return strings.Contains(url, prefix)
}
