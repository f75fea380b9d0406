package app

import (
	"testing"
	"time"

	"github.com/beatsync/server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleStartSpatialAudio_IsIdempotent(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	require.NoError(t, r.HandleStartSpatialAudio(c1))
	require.NoError(t, r.HandleStartSpatialAudio(c1))

	r.mu.Lock()
	active := r.spatialActive
	r.mu.Unlock()
	assert.True(t, active)

	require.NoError(t, r.HandleStopSpatialAudio(c1))
}

func TestHandleStopSpatialAudio_NoOpWhenNotRunning(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	assert.NoError(t, r.HandleStopSpatialAudio(c1))
}

func TestHandleSetListeningSource_ClampsAndBroadcastsGains(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	require.NoError(t, r.HandleSetListeningSource(c1, domain.Position{X: 999999, Y: -999999}))

	r.mu.Lock()
	pos := r.listeningSource
	r.mu.Unlock()
	assert.LessOrEqual(t, pos.X, domain.GridSize)
	assert.GreaterOrEqual(t, pos.Y, 0.0)
}

func TestHandleMoveClient_SelfMoveAllowedWithoutAdmin(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	require.NoError(t, r.AddClient("c2", "bob", &fakeConn{}, time.Now()))

	err := r.HandleMoveClient("c2", "c2", domain.Position{X: 5, Y: 5})
	assert.NoError(t, err)
}

func TestHandleMoveClient_RejectsMovingSomeoneElseWithoutAdmin(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	require.NoError(t, r.AddClient("c2", "bob", &fakeConn{}, time.Now()))
	require.NoError(t, r.HandleSetPlaybackControls("c1", domain.PermissionAdminOnly))

	err := r.HandleMoveClient("c2", "c1", domain.Position{X: 5, Y: 5})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestHandleMoveClient_UnknownTargetReturnsError(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	err := r.HandleMoveClient(c1, "ghost", domain.Position{})
	assert.ErrorIs(t, err, ErrUnknownClient)
}

func TestHandleReorderClient_UnknownTargetReturnsError(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	err := r.HandleReorderClient(c1, "ghost", 0)
	assert.ErrorIs(t, err, ErrUnknownClient)
}

func TestHandleSetGlobalVolume_ClampsToUnitRange(t *testing.T) {
	r, c1 := roomWithOneClient(t)
	require.NoError(t, r.HandleSetGlobalVolume(c1, 5))
	r.mu.Lock()
	v := r.globalVolume
	r.mu.Unlock()
	assert.Equal(t, 1.0, v)

	require.NoError(t, r.HandleSetGlobalVolume(c1, -3))
	r.mu.Lock()
	v = r.globalVolume
	r.mu.Unlock()
	assert.Equal(t, 0.0, v)
}

func TestHandleSetAdmin_RejectsNonAdminInitiator(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	require.NoError(t, r.AddClient("c2", "bob", &fakeConn{}, time.Now()))

	err := r.HandleSetAdmin("c2", "c1", true)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestHandleSetAdmin_AdminCanPromoteAnother(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	require.NoError(t, r.AddClient("c2", "bob", &fakeConn{}, time.Now()))

	require.NoError(t, r.HandleSetAdmin("c1", "c2", true))

	r.mu.Lock()
	c2 := r.sessions["c2"].Client()
	r.mu.Unlock()
	assert.True(t, c2.IsAdmin)
}

func TestHandleSetPlaybackControls_RejectsNonAdmin(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	require.NoError(t, r.AddClient("c2", "bob", &fakeConn{}, time.Now()))

	err := r.HandleSetPlaybackControls("c2", domain.PermissionEveryone)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
