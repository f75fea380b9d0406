package domain

import "errors"

// Sentinel errors returned by domain constructors and mutators,
// package-level rather than ad-hoc fmt.Errorf strings.
var (
	ErrUsernameEmpty    = errors.New("username empty")
	ErrUsernameTooLong  = errors.New("username too long")
	ErrClientIDEmpty    = errors.New("clientId empty")
	ErrPositionOutOfGrid = errors.New("position out of grid")
	ErrChatTextEmpty    = errors.New("chat text empty")
	ErrChatTextTooLong  = errors.New("chat text too long")
	ErrVolumeOutOfRange = errors.New("volume out of range")
	ErrAudioSourceNotInQueue = errors.New("audio source not in queue")
	ErrAudioSourceDuplicate  = errors.New("audio source already in queue")
)

const (
	MaxUsernameLen = 36
	MaxClientIDLen = 64
)
