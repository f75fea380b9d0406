package app

import (
	"testing"
	"time"

	"github.com/beatsync/server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSendChatMessage_AppendsToRollingBuffer(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	require.NoError(t, r.HandleSendChatMessage(c1, "hello room", time.Now()))

	r.mu.Lock()
	all := r.chat.All()
	r.mu.Unlock()
	require.Len(t, all, 1)
	assert.Equal(t, "hello room", all[0].Text)
	assert.Equal(t, "alice", all[0].Username)
}

func TestHandleSendChatMessage_UnknownClientReturnsError(t *testing.T) {
	r := newTestRoom()
	err := r.HandleSendChatMessage("ghost", "hi", time.Now())
	assert.ErrorIs(t, err, ErrUnknownClient)
}

func TestHandleSendChatMessage_RejectsOverRateLimit(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	for i := 0; i < ChatRateLimit; i++ {
		require.NoError(t, r.HandleSendChatMessage(c1, "spam", time.Now()))
	}
	err := r.HandleSendChatMessage(c1, "one too many", time.Now())
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestHandleSendChatMessage_RemoveClientResetsRateLimit(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	for i := 0; i < ChatRateLimit; i++ {
		require.NoError(t, r.HandleSendChatMessage(c1, "spam", time.Now()))
	}
	r.RemoveClient(c1)
	require.NoError(t, r.AddClient(c1, "alice", &fakeConn{}, time.Now()))
	assert.NoError(t, r.HandleSendChatMessage(c1, "fresh start", time.Now()))
}

func TestHandleSendChatMessage_CarriesCountryCodeWhenLocationKnown(t *testing.T) {
	r, c1 := roomWithOneClient(t)

	r.mu.Lock()
	r.sessions[c1].MutateClient(func(c *domain.Client) {
		c.Location = &domain.Location{CountryCode: "FR"}
	})
	r.mu.Unlock()

	require.NoError(t, r.HandleSendChatMessage(c1, "bonjour", time.Now()))

	r.mu.Lock()
	all := r.chat.All()
	r.mu.Unlock()
	require.Len(t, all, 1)
	assert.Equal(t, "FR", all[0].CountryCode)
}
