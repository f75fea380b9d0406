package app

import (
	"testing"
	"time"

	"github.com/beatsync/server/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestChatRateLimiter_AllowsUpToLimitThenRejects(t *testing.T) {
	rl := newChatRateLimiter(3, time.Minute)
	id := domain.ClientID("c1")

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(id))
	}
	assert.False(t, rl.Allow(id))
}

func TestChatRateLimiter_WindowSlidesOutOldAttempts(t *testing.T) {
	rl := newChatRateLimiter(1, time.Millisecond)
	id := domain.ClientID("c1")

	assert.True(t, rl.Allow(id))
	assert.False(t, rl.Allow(id))

	time.Sleep(5 * time.Millisecond)
	assert.True(t, rl.Allow(id))
}

func TestChatRateLimiter_ForgetResetsClient(t *testing.T) {
	rl := newChatRateLimiter(1, time.Minute)
	id := domain.ClientID("c1")

	assert.True(t, rl.Allow(id))
	assert.False(t, rl.Allow(id))

	rl.forget(id)
	assert.True(t, rl.Allow(id))
}

func TestChatRateLimiter_TracksClientsIndependently(t *testing.T) {
	rl := newChatRateLimiter(1, time.Minute)
	assert.True(t, rl.Allow("c1"))
	assert.True(t, rl.Allow("c2"))
	assert.False(t, rl.Allow("c1"))
}

func TestNTPRateLimiter_AllowsBurstThenRejects(t *testing.T) {
	rl := newNTPRateLimiter()
	id := domain.ClientID("c1")

	for i := 0; i < NTPRateLimitBurst; i++ {
		assert.True(t, rl.Allow(id))
	}
	assert.False(t, rl.Allow(id))
}

func TestNTPRateLimiter_ForgetDropsBucket(t *testing.T) {
	rl := newNTPRateLimiter()
	id := domain.ClientID("c1")

	for i := 0; i < NTPRateLimitBurst; i++ {
		rl.Allow(id)
	}
	assert.False(t, rl.Allow(id))

	rl.forget(id)
	assert.True(t, rl.Allow(id))
}
