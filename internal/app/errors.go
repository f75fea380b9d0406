package app

import "errors"

// Sentinel errors surfaced by Room handlers. These never reach the
// wire directly — the dispatcher maps them to ERROR frames or silent
// drops depending on severity.
var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrRoomFull          = errors.New("room full")
	ErrUnknownClient     = errors.New("unknown client")
	ErrUnknownRoom       = errors.New("unknown room")
	ErrAudioSourceAbsent = errors.New("audio source not in queue")
	ErrRateLimited       = errors.New("rate limited")
)

// MaxClientsPerRoom bounds how many distinct devices may hold a
// Session in one room at a time.
const MaxClientsPerRoom = 64
