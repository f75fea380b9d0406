package app

import (
	"time"

	"github.com/beatsync/server/internal/core"
	"github.com/beatsync/server/internal/domain"
)

// HandleSendChatMessage appends text to the room's rolling chat
// buffer and broadcasts it. text arrives already trimmed and
// length-checked by the wire decoder. Rejects with ErrRateLimited once
// clientID exceeds ChatRateLimit messages within ChatRateLimitInterval.
func (r *Room) HandleSendChatMessage(clientID domain.ClientID, text string, now time.Time) error {
	if !r.chatLimiter.Allow(clientID) {
		return ErrRateLimited
	}
	return r.withLock(func() ([]outboundFrame, error) {
		s, ok := r.sessions[clientID]
		if !ok {
			return nil, ErrUnknownClient
		}
		c := s.Client()
		countryCode := ""
		if c.Location != nil {
			countryCode = c.Location.CountryCode
		}
		msg := r.chat.Append(domain.ChatMessage{
			ClientID:    clientID,
			Username:    c.Username,
			Text:        text,
			Timestamp:   now,
			CountryCode: countryCode,
		})
		return []outboundFrame{frameAll(core.NewChatUpdateEvent([]domain.ChatMessage{msg}, false, msg.ID))}, nil
	})
}
