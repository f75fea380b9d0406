package core

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/beatsync/server/internal/domain"
)

// ErrInvalidMessage is returned by every decode/validate function in
// this file on a malformed frame, an unknown discriminator, or an
// out-of-range value. The dispatcher (internal/app) turns it into the
// standard ERROR frame and drops the inbound message, keeping the session open.
var ErrInvalidMessage = errors.New("invalid message format")

// MessageType is the wire discriminator for every inbound request,
// a closed enum.
type MessageType string

const (
	NTPRequestType        MessageType = "NTP_REQUEST"
	PlayType               MessageType = "PLAY"
	PauseType              MessageType = "PAUSE"
	SyncType               MessageType = "SYNC"
	StartSpatialAudioType  MessageType = "START_SPATIAL_AUDIO"
	StopSpatialAudioType   MessageType = "STOP_SPATIAL_AUDIO"
	ReorderClientType      MessageType = "REORDER_CLIENT"
	SetListeningSourceType MessageType = "SET_LISTENING_SOURCE"
	MoveClientType         MessageType = "MOVE_CLIENT"
	SetAdminType           MessageType = "SET_ADMIN"
	SetPlaybackControlsType MessageType = "SET_PLAYBACK_CONTROLS"
	SetGlobalVolumeType    MessageType = "SET_GLOBAL_VOLUME"
	SendChatMessageType    MessageType = "SEND_CHAT_MESSAGE"
	SendIPType             MessageType = "SEND_IP"
	AudioSourceLoadedType  MessageType = "AUDIO_SOURCE_LOADED"
	LoadDefaultTracksType  MessageType = "LOAD_DEFAULT_TRACKS"
	DeleteAudioSourcesType MessageType = "DELETE_AUDIO_SOURCES"
	SearchMusicType        MessageType = "SEARCH_MUSIC"
	StreamMusicType        MessageType = "STREAM_MUSIC"
)

// inboundTypes is the closed set DecodeEnvelope validates against.
var inboundTypes = map[MessageType]struct{}{
	NTPRequestType: {}, PlayType: {}, PauseType: {}, SyncType: {},
	StartSpatialAudioType: {}, StopSpatialAudioType: {}, ReorderClientType: {},
	SetListeningSourceType: {}, MoveClientType: {}, SetAdminType: {},
	SetPlaybackControlsType: {}, SetGlobalVolumeType: {}, SendChatMessageType: {},
	SendIPType: {}, AudioSourceLoadedType: {}, LoadDefaultTracksType: {},
	DeleteAudioSourcesType: {}, SearchMusicType: {}, StreamMusicType: {},
}

type envelope struct {
	Type MessageType `json:"type"`
}

// DecodeEnvelope extracts and validates the discriminator of a raw
// inbound frame: peek the "type" field before deciding how to decode
// the rest.
func DecodeEnvelope(data []byte) (MessageType, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", ErrInvalidMessage
	}
	if _, ok := inboundTypes[env.Type]; !ok {
		return "", ErrInvalidMessage
	}
	return env.Type, nil
}

// --- Inbound payloads ------------------------------------------------

// PlayRequest is the PLAY message payload.
type PlayRequest struct {
	AudioSource       string  `json:"audioSource"`
	TrackPositionSecs float64 `json:"trackPositionSeconds"`
}

func DecodePlayRequest(data []byte) (PlayRequest, error) {
	var p PlayRequest
	if err := json.Unmarshal(data, &p); err != nil || strings.TrimSpace(p.AudioSource) == "" {
		return PlayRequest{}, ErrInvalidMessage
	}
	return p, nil
}

// PauseRequest is the PAUSE message payload. No fields are required;
// the room pauses whatever is currently playing.
type PauseRequest struct{}

// SetListeningSourceRequest carries a new 2D position for the
// listening source.
type SetListeningSourceRequest struct {
	Position domain.Position `json:"position"`
}

func DecodeSetListeningSourceRequest(data []byte) (SetListeningSourceRequest, error) {
	var r SetListeningSourceRequest
	if err := json.Unmarshal(data, &r); err != nil || !r.Position.InGrid() {
		return SetListeningSourceRequest{}, ErrInvalidMessage
	}
	return r, nil
}

// MoveClientRequest repositions a client (itself, or another if the
// sender passes the room's mutation check) within the grid.
type MoveClientRequest struct {
	ClientID domain.ClientID `json:"clientId"`
	Position domain.Position `json:"position"`
}

func DecodeMoveClientRequest(data []byte) (MoveClientRequest, error) {
	var r MoveClientRequest
	if err := json.Unmarshal(data, &r); err != nil || !r.Position.InGrid() {
		return MoveClientRequest{}, ErrInvalidMessage
	}
	return r, nil
}

// ReorderClientRequest changes a client's index in the circular
// layout ordering; alongside MOVE_CLIENT and SET_LISTENING_SOURCE it
// triggers a one-shot spatial config emit.
type ReorderClientRequest struct {
	ClientID domain.ClientID `json:"clientId"`
	NewIndex int             `json:"newIndex"`
}

func DecodeReorderClientRequest(data []byte) (ReorderClientRequest, error) {
	var r ReorderClientRequest
	if err := json.Unmarshal(data, &r); err != nil || r.ClientID == "" || r.NewIndex < 0 {
		return ReorderClientRequest{}, ErrInvalidMessage
	}
	return r, nil
}

// SetAdminRequest flips another client's admin flag.
type SetAdminRequest struct {
	ClientID domain.ClientID `json:"clientId"`
	IsAdmin  bool            `json:"isAdmin"`
}

func DecodeSetAdminRequest(data []byte) (SetAdminRequest, error) {
	var r SetAdminRequest
	if err := json.Unmarshal(data, &r); err != nil || r.ClientID == "" {
		return SetAdminRequest{}, ErrInvalidMessage
	}
	return r, nil
}

// SetPlaybackControlsRequest changes who besides the admin may mutate
// room state.
type SetPlaybackControlsRequest struct {
	Permissions domain.Permission `json:"permissions"`
}

func DecodeSetPlaybackControlsRequest(data []byte) (SetPlaybackControlsRequest, error) {
	var r SetPlaybackControlsRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return SetPlaybackControlsRequest{}, ErrInvalidMessage
	}
	if r.Permissions != domain.PermissionEveryone && r.Permissions != domain.PermissionAdminOnly {
		return SetPlaybackControlsRequest{}, ErrInvalidMessage
	}
	return r, nil
}

// SetGlobalVolumeRequest sets the room-wide volume multiplier.
type SetGlobalVolumeRequest struct {
	Volume float64 `json:"volume"`
}

func DecodeSetGlobalVolumeRequest(data []byte) (SetGlobalVolumeRequest, error) {
	var r SetGlobalVolumeRequest
	if err := json.Unmarshal(data, &r); err != nil || r.Volume < 0 || r.Volume > 1 {
		return SetGlobalVolumeRequest{}, ErrInvalidMessage
	}
	return r, nil
}

// SendChatMessageRequest carries the chat text a client is posting.
type SendChatMessageRequest struct {
	Text string `json:"text"`
}

func DecodeSendChatMessageRequest(data []byte) (SendChatMessageRequest, error) {
	var r SendChatMessageRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return SendChatMessageRequest{}, ErrInvalidMessage
	}
	trimmed := strings.TrimSpace(r.Text)
	if trimmed == "" || len(trimmed) > domain.ChatMaxMessageLength {
		return SendChatMessageRequest{}, ErrInvalidMessage
	}
	r.Text = trimmed
	return r, nil
}

// AudioSourceLoadedRequest confirms a client finished decoding url.
type AudioSourceLoadedRequest struct {
	URL string `json:"url"`
}

func DecodeAudioSourceLoadedRequest(data []byte) (AudioSourceLoadedRequest, error) {
	var r AudioSourceLoadedRequest
	if err := json.Unmarshal(data, &r); err != nil || r.URL == "" {
		return AudioSourceLoadedRequest{}, ErrInvalidMessage
	}
	return r, nil
}

// DeleteAudioSourcesRequest requests deletion of one or more queue
// entries (and their underlying blobs where owned).
type DeleteAudioSourcesRequest struct {
	URLs []string `json:"urls"`
}

func DecodeDeleteAudioSourcesRequest(data []byte) (DeleteAudioSourcesRequest, error) {
	var r DeleteAudioSourcesRequest
	if err := json.Unmarshal(data, &r); err != nil || len(r.URLs) == 0 {
		return DeleteAudioSourcesRequest{}, ErrInvalidMessage
	}
	return r, nil
}

// SearchMusicRequest forwards a free-text query to the external music
// provider, an out-of-process collaborator reached via an HTTP adapter.
type SearchMusicRequest struct {
	Query string `json:"query"`
	JobID string `json:"jobId"`
}

func DecodeSearchMusicRequest(data []byte) (SearchMusicRequest, error) {
	var r SearchMusicRequest
	if err := json.Unmarshal(data, &r); err != nil || strings.TrimSpace(r.Query) == "" {
		return SearchMusicRequest{}, ErrInvalidMessage
	}
	return r, nil
}

// StreamMusicRequest asks the provider to mint a playable URL for a
// track the search turned up.
type StreamMusicRequest struct {
	TrackID string `json:"trackId"`
	JobID   string `json:"jobId"`
}

func DecodeStreamMusicRequest(data []byte) (StreamMusicRequest, error) {
	var r StreamMusicRequest
	if err := json.Unmarshal(data, &r); err != nil || r.TrackID == "" {
		return StreamMusicRequest{}, ErrInvalidMessage
	}
	return r, nil
}

// --- Outbound messages ------------------------------------------------

// ScheduledActionKind discriminates the nested payload of a
// SCHEDULED_ACTION broadcast.
type ScheduledActionKind string

const (
	ScheduledActionPlay          ScheduledActionKind = "PLAY"
	ScheduledActionPause         ScheduledActionKind = "PAUSE"
	ScheduledActionSpatialConfig ScheduledActionKind = "SPATIAL_CONFIG"
	ScheduledActionStopSpatial   ScheduledActionKind = "STOP_SPATIAL_AUDIO"
	ScheduledActionGlobalVolume  ScheduledActionKind = "GLOBAL_VOLUME_CONFIG"
)

// ScheduledActionPayload is the nested "scheduledAction" object.
type ScheduledActionPayload struct {
	Kind              ScheduledActionKind       `json:"type"`
	AudioSource       string                    `json:"audioSource,omitempty"`
	TrackTimeSeconds  float64                    `json:"trackTimeSeconds,omitempty"`
	ListeningSource   *domain.Position          `json:"listeningSource,omitempty"`
	Gains             map[domain.ClientID]domain.Gain `json:"gains,omitempty"`
	RampTime          float64                    `json:"rampTime,omitempty"`
	Volume            float64                    `json:"volume,omitempty"`
}

// ScheduledActionMessage is the outbound SCHEDULED_ACTION envelope.
type ScheduledActionMessage struct {
	Type                string                 `json:"type"`
	ServerTimeToExecute int64                  `json:"serverTimeToExecute"`
	Action              ScheduledActionPayload `json:"scheduledAction"`
}

func NewPlayScheduledAction(serverTimeToExecute int64, audioSource string, trackTimeSeconds float64) ScheduledActionMessage {
	return ScheduledActionMessage{
		Type:                "SCHEDULED_ACTION",
		ServerTimeToExecute: serverTimeToExecute,
		Action: ScheduledActionPayload{
			Kind:             ScheduledActionPlay,
			AudioSource:      audioSource,
			TrackTimeSeconds: trackTimeSeconds,
		},
	}
}

func NewPauseScheduledAction(serverTimeToExecute int64, audioSource string, trackTimeSeconds float64) ScheduledActionMessage {
	return ScheduledActionMessage{
		Type:                "SCHEDULED_ACTION",
		ServerTimeToExecute: serverTimeToExecute,
		Action: ScheduledActionPayload{
			Kind:             ScheduledActionPause,
			AudioSource:      audioSource,
			TrackTimeSeconds: trackTimeSeconds,
		},
	}
}

func NewSpatialConfigScheduledAction(serverTimeToExecute int64, source domain.Position, gains map[domain.ClientID]domain.Gain) ScheduledActionMessage {
	return ScheduledActionMessage{
		Type:                "SCHEDULED_ACTION",
		ServerTimeToExecute: serverTimeToExecute,
		Action: ScheduledActionPayload{
			Kind:            ScheduledActionSpatialConfig,
			ListeningSource: &source,
			Gains:           gains,
			RampTime:        domain.SpatialRampSeconds,
		},
	}
}

func NewStopSpatialScheduledAction(serverTimeToExecute int64) ScheduledActionMessage {
	return ScheduledActionMessage{
		Type:                "SCHEDULED_ACTION",
		ServerTimeToExecute: serverTimeToExecute,
		Action:              ScheduledActionPayload{Kind: ScheduledActionStopSpatial},
	}
}

func NewGlobalVolumeScheduledAction(serverTimeToExecute int64, volume float64) ScheduledActionMessage {
	return ScheduledActionMessage{
		Type:                "SCHEDULED_ACTION",
		ServerTimeToExecute: serverTimeToExecute,
		Action: ScheduledActionPayload{
			Kind:     ScheduledActionGlobalVolume,
			Volume:   volume,
			RampTime: domain.GlobalVolumeRampSeconds,
		},
	}
}

// RoomEventKind discriminates the nested payload of a ROOM_EVENT
// broadcast.
type RoomEventKind string

const (
	ClientChangeEvent        RoomEventKind = "CLIENT_CHANGE"
	SetAudioSourcesEvent     RoomEventKind = "SET_AUDIO_SOURCES"
	SetPlaybackControlsEvent RoomEventKind = "SET_PLAYBACK_CONTROLS"
	ChatUpdateEvent          RoomEventKind = "CHAT_UPDATE"
	LoadAudioSourceEvent     RoomEventKind = "LOAD_AUDIO_SOURCE"
)

// RoomEventPayload is the nested "event" object.
type RoomEventPayload struct {
	Kind              RoomEventKind         `json:"type"`
	Clients           []domain.Client       `json:"clients,omitempty"`
	Sources           []domain.AudioSource  `json:"sources,omitempty"`
	CurrentAudioSource string               `json:"currentAudioSource,omitempty"`
	Permissions       domain.Permission     `json:"permissions,omitempty"`
	Messages          []domain.ChatMessage  `json:"messages,omitempty"`
	IsFullSync        bool                  `json:"isFullSync,omitempty"`
	NewestID          uint64                `json:"newestId,omitempty"`
	AudioSourceToPlay string                `json:"audioSourceToPlay,omitempty"`
}

// RoomEventMessage is the outbound ROOM_EVENT envelope.
type RoomEventMessage struct {
	Type  string           `json:"type"`
	Event RoomEventPayload `json:"event"`
}

func NewClientChangeEvent(clients []domain.Client) RoomEventMessage {
	return RoomEventMessage{Type: "ROOM_EVENT", Event: RoomEventPayload{Kind: ClientChangeEvent, Clients: clients}}
}

func NewSetAudioSourcesEvent(sources []domain.AudioSource, current string) RoomEventMessage {
	return RoomEventMessage{Type: "ROOM_EVENT", Event: RoomEventPayload{Kind: SetAudioSourcesEvent, Sources: sources, CurrentAudioSource: current}}
}

func NewSetPlaybackControlsEvent(perm domain.Permission) RoomEventMessage {
	return RoomEventMessage{Type: "ROOM_EVENT", Event: RoomEventPayload{Kind: SetPlaybackControlsEvent, Permissions: perm}}
}

func NewChatUpdateEvent(messages []domain.ChatMessage, isFullSync bool, newestID uint64) RoomEventMessage {
	return RoomEventMessage{Type: "ROOM_EVENT", Event: RoomEventPayload{Kind: ChatUpdateEvent, Messages: messages, IsFullSync: isFullSync, NewestID: newestID}}
}

func NewLoadAudioSourceEvent(url string) RoomEventMessage {
	return RoomEventMessage{Type: "ROOM_EVENT", Event: RoomEventPayload{Kind: LoadAudioSourceEvent, AudioSourceToPlay: url}}
}

// StreamJobUpdateMessage reports how many SEARCH_MUSIC/STREAM_MUSIC
// calls are currently in flight against the music provider.
type StreamJobUpdateMessage struct {
	Type           string `json:"type"`
	ActiveJobCount int    `json:"activeJobCount"`
}

func NewStreamJobUpdate(count int) StreamJobUpdateMessage {
	return StreamJobUpdateMessage{Type: "STREAM_JOB_UPDATE", ActiveJobCount: count}
}

// MusicTrack is one hit from the external music provider's search.
type MusicTrack struct {
	TrackID  string `json:"trackId"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Duration float64 `json:"durationSeconds,omitempty"`
}

// SearchResultsMessage unicasts a SEARCH_MUSIC response back to the
// requester.
type SearchResultsMessage struct {
	Type   string       `json:"type"`
	JobID  string       `json:"jobId"`
	Tracks []MusicTrack `json:"tracks"`
}

func NewSearchResultsMessage(jobID string, tracks []MusicTrack) SearchResultsMessage {
	return SearchResultsMessage{Type: "SEARCH_RESULTS", JobID: jobID, Tracks: tracks}
}

// StreamURLMessage unicasts a STREAM_MUSIC response: a playable URL
// for a track the search turned up.
type StreamURLMessage struct {
	Type string `json:"type"`
	JobID string `json:"jobId"`
	URL   string `json:"url"`
}

func NewStreamURLMessage(jobID, url string) StreamURLMessage {
	return StreamURLMessage{Type: "STREAM_URL", JobID: jobID, URL: url}
}

// ErrorMessage is the standard validation-failure reply.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorMessage() ErrorMessage {
	return ErrorMessage{Type: "ERROR", Message: "Invalid message format"}
}
