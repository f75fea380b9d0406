package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/beatsync/server/internal/core"
	"github.com/beatsync/server/internal/domain"
	"github.com/rs/zerolog"
)

// Dispatcher routes a decoded inbound frame to the Room method that
// handles it. It holds no state of its own beyond its collaborators;
// every call is keyed by (roomId, clientId) resolved fresh from the
// Registry, so a Dispatcher is safe to share across every connection.
type Dispatcher struct {
	registry     *Registry
	musicProvider MusicProvider
	defaultTracks DefaultTrackProvider
	locations     LocationResolver
	log           zerolog.Logger
}

// NewDispatcher wires a Dispatcher to its collaborators. musicProvider
// and locations may be nil — SEARCH_MUSIC/STREAM_MUSIC/SEND_IP become
// silent no-ops rather than failing the connection.
func NewDispatcher(registry *Registry, musicProvider MusicProvider, defaultTracks DefaultTrackProvider, locations LocationResolver, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:      registry,
		musicProvider: musicProvider,
		defaultTracks: defaultTracks,
		locations:     locations,
		log:           log.With().Str("module", "dispatcher").Logger(),
	}
}

// Dispatch decodes data's envelope and routes it to the Room bound to
// roomID on behalf of clientID. receiveMillis is only used for
// NTP_REQUEST, stamped by the adapter the instant the frame was read
// off the wire. Returns an encoded ERROR frame (and a non-nil error)
// when the frame is malformed, the room is unknown, or an NTP request
// is rejected; any other handler error comes back with a nil frame, so
// nothing is sent to the client. The caller unicasts a returned frame
// back to the sender and otherwise treats the connection as still
// healthy.
func (d *Dispatcher) Dispatch(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID, data []byte, receiveMillis int64) ([]byte, error) {
	msgType, err := core.DecodeEnvelope(data)
	if err != nil {
		return encodeFrame(core.NewErrorMessage()), err
	}
	room, ok := d.registry.GetRoom(roomID)
	if !ok {
		return encodeFrame(core.NewErrorMessage()), ErrUnknownRoom
	}

	switch msgType {
	case core.NTPRequestType:
		var req core.NTPRequest
		if jsonErr := json.Unmarshal(data, &req); jsonErr != nil {
			return encodeFrame(core.NewErrorMessage()), core.ErrInvalidMessage
		}
		resp, handleErr := room.HandleNTPRequest(clientID, req, receiveMillis, core.NowMillis(), time.Now())
		if handleErr != nil {
			return encodeFrame(core.NewErrorMessage()), handleErr
		}
		return encodeFrame(resp), nil

	case core.PlayType:
		req, decErr := core.DecodePlayRequest(data)
		if decErr != nil {
			return encodeFrame(core.NewErrorMessage()), decErr
		}
		return nil, room.HandlePlay(clientID, domain.PlayAction{AudioSource: req.AudioSource, TrackPositionSecs: req.TrackPositionSecs}, time.Now())

	case core.PauseType:
		return nil, room.HandlePause(clientID)

	case core.SyncType:
		return nil, room.HandleSync(clientID)

	case core.StartSpatialAudioType:
		return nil, room.HandleStartSpatialAudio(clientID)

	case core.StopSpatialAudioType:
		return nil, room.HandleStopSpatialAudio(clientID)

	case core.ReorderClientType:
		req, decErr := core.DecodeReorderClientRequest(data)
		if decErr != nil {
			return encodeFrame(core.NewErrorMessage()), decErr
		}
		return nil, room.HandleReorderClient(clientID, req.ClientID, req.NewIndex)

	case core.SetListeningSourceType:
		req, decErr := core.DecodeSetListeningSourceRequest(data)
		if decErr != nil {
			return encodeFrame(core.NewErrorMessage()), decErr
		}
		return nil, room.HandleSetListeningSource(clientID, req.Position)

	case core.MoveClientType:
		req, decErr := core.DecodeMoveClientRequest(data)
		if decErr != nil {
			return encodeFrame(core.NewErrorMessage()), decErr
		}
		target := req.ClientID
		if target == "" {
			target = clientID
		}
		return nil, room.HandleMoveClient(clientID, target, req.Position)

	case core.SetAdminType:
		req, decErr := core.DecodeSetAdminRequest(data)
		if decErr != nil {
			return encodeFrame(core.NewErrorMessage()), decErr
		}
		return nil, room.HandleSetAdmin(clientID, req.ClientID, req.IsAdmin)

	case core.SetPlaybackControlsType:
		req, decErr := core.DecodeSetPlaybackControlsRequest(data)
		if decErr != nil {
			return encodeFrame(core.NewErrorMessage()), decErr
		}
		return nil, room.HandleSetPlaybackControls(clientID, req.Permissions)

	case core.SetGlobalVolumeType:
		req, decErr := core.DecodeSetGlobalVolumeRequest(data)
		if decErr != nil {
			return encodeFrame(core.NewErrorMessage()), decErr
		}
		return nil, room.HandleSetGlobalVolume(clientID, req.Volume)

	case core.SendChatMessageType:
		req, decErr := core.DecodeSendChatMessageRequest(data)
		if decErr != nil {
			return encodeFrame(core.NewErrorMessage()), decErr
		}
		return nil, room.HandleSendChatMessage(clientID, req.Text, time.Now())

	case core.SendIPType:
		return nil, room.HandleSendIP(clientID, d.locations)

	case core.AudioSourceLoadedType:
		req, decErr := core.DecodeAudioSourceLoadedRequest(data)
		if decErr != nil {
			return encodeFrame(core.NewErrorMessage()), decErr
		}
		return nil, room.HandleAudioSourceLoaded(clientID, req.URL)

	case core.LoadDefaultTracksType:
		if d.defaultTracks == nil {
			return nil, nil
		}
		return nil, room.HandleLoadDefaultTracks(clientID, d.defaultTracks)

	case core.DeleteAudioSourcesType:
		req, decErr := core.DecodeDeleteAudioSourcesRequest(data)
		if decErr != nil {
			return encodeFrame(core.NewErrorMessage()), decErr
		}
		return nil, room.DeleteAudioSources(clientID, req.URLs)

	case core.SearchMusicType:
		req, decErr := core.DecodeSearchMusicRequest(data)
		if decErr != nil {
			return encodeFrame(core.NewErrorMessage()), decErr
		}
		if d.musicProvider == nil {
			return nil, nil
		}
		return nil, room.HandleSearchMusic(ctx, clientID, req, d.musicProvider, d.broadcastJobUpdate())

	case core.StreamMusicType:
		req, decErr := core.DecodeStreamMusicRequest(data)
		if decErr != nil {
			return encodeFrame(core.NewErrorMessage()), decErr
		}
		if d.musicProvider == nil {
			return nil, nil
		}
		return nil, room.HandleStreamMusic(ctx, clientID, req, d.musicProvider, d.broadcastJobUpdate())

	default:
		return encodeFrame(core.NewErrorMessage()), core.ErrInvalidMessage
	}
}

// broadcastJobUpdate fans a STREAM_JOB_UPDATE out to every active
// room, since the music provider's job count is shared process-wide.
func (d *Dispatcher) broadcastJobUpdate() func(core.StreamJobUpdateMessage) {
	return func(msg core.StreamJobUpdateMessage) {
		data := encodeFrame(msg)
		for _, room := range d.registry.ActiveRooms() {
			room.BroadcastAll(data)
		}
	}
}
