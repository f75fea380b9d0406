package app

import (
	"testing"
	"time"

	"github.com/beatsync/server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roomWithOneClient(t *testing.T) (*Room, domain.ClientID) {
	r := newTestRoom()
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	return r, "c1"
}

func TestHandlePlay_RejectsUnknownAudioSource(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	err := r.HandlePlay(c1, domain.PlayAction{AudioSource: "missing.mp3"}, time.Now())
	assert.ErrorIs(t, err, ErrAudioSourceAbsent)
}

func TestHandlePlay_StartsLoadBarrier(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	require.NoError(t, r.SetAudioSources(c1, []string{"a.mp3"}))

	require.NoError(t, r.HandlePlay(c1, domain.PlayAction{AudioSource: "a.mp3"}, time.Now()))

	r.mu.Lock()
	pending := r.pendingBarrier != nil
	r.mu.Unlock()
	assert.True(t, pending)
}

func TestHandleAudioSourceLoaded_CommitsOnceEveryoneConfirms(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	require.NoError(t, r.SetAudioSources(c1, []string{"a.mp3"}))
	require.NoError(t, r.HandlePlay(c1, domain.PlayAction{AudioSource: "a.mp3"}, time.Now()))

	require.NoError(t, r.HandleAudioSourceLoaded(c1, "a.mp3"))

	r.mu.Lock()
	kind := r.playback.Kind
	pending := r.pendingBarrier
	r.mu.Unlock()
	assert.Equal(t, domain.Playing, kind)
	assert.Nil(t, pending)
}

func TestHandleAudioSourceLoaded_IgnoresUnrelatedURL(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	require.NoError(t, r.SetAudioSources(c1, []string{"a.mp3"}))
	require.NoError(t, r.HandlePlay(c1, domain.PlayAction{AudioSource: "a.mp3"}, time.Now()))

	require.NoError(t, r.HandleAudioSourceLoaded(c1, "other.mp3"))

	r.mu.Lock()
	pending := r.pendingBarrier != nil
	r.mu.Unlock()
	assert.True(t, pending, "unrelated confirmation should not satisfy the barrier")
}

func TestHandlePause_PreservesCurrentTrack(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	require.NoError(t, r.SetAudioSources(c1, []string{"a.mp3"}))
	require.NoError(t, r.HandlePlay(c1, domain.PlayAction{AudioSource: "a.mp3"}, time.Now()))
	require.NoError(t, r.HandleAudioSourceLoaded(c1, "a.mp3"))

	require.NoError(t, r.HandlePause(c1))

	r.mu.Lock()
	playback := r.playback
	r.mu.Unlock()
	assert.Equal(t, domain.Paused, playback.Kind)
	assert.Equal(t, "a.mp3", playback.AudioSource)
}

func TestHandleSync_NoOpWhenPaused(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	err := r.HandleSync(c1)
	assert.NoError(t, err)
}

func TestDeleteAudioSources_ResetsPlaybackWhenCurrentTrackRemoved(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	require.NoError(t, r.SetAudioSources(c1, []string{"a.mp3", "b.mp3"}))
	require.NoError(t, r.HandlePlay(c1, domain.PlayAction{AudioSource: "a.mp3"}, time.Now()))
	require.NoError(t, r.HandleAudioSourceLoaded(c1, "a.mp3"))

	require.NoError(t, r.DeleteAudioSources(c1, []string{"a.mp3"}))

	r.mu.Lock()
	playback := r.playback
	contains := r.queue.Contains("a.mp3")
	r.mu.Unlock()
	assert.Equal(t, domain.InitialPlaybackState(), playback)
	assert.False(t, contains)
}

func TestOwnsBlobURL(t *testing.T) {
	prefix := "room-123456/"
	assert.True(t, ownsBlobURL("https://host/blobs/room-123456/track.mp3", prefix))
	assert.False(t, ownsBlobURL("https://cdn.example.com/public/track.mp3", prefix))
}

func TestAddAudioSource_RejectsDuplicate(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	require.NoError(t, r.SetAudioSources(c1, []string{"a.mp3"}))
	err := r.AddAudioSource("a.mp3")
	assert.ErrorIs(t, err, domain.ErrAudioSourceDuplicate)
}
