package app

import (
	"fmt"
	"testing"
	"time"

	"github.com/beatsync/server/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoom() *Room {
	return NewRoom(domain.RoomID("123456"), nil, nil, zerolog.Nop())
}

func TestAddClient_FirstJoinerBecomesAdmin(t *testing.T) {
	r := newTestRoom()
	conn := &fakeConn{}
	require.NoError(t, r.AddClient("c1", "alice", conn, time.Now()))

	r.mu.Lock()
	c := r.sessions["c1"].Client()
	r.mu.Unlock()
	assert.True(t, c.IsAdmin)
}

func TestAddClient_SecondJoinerIsNotAdmin(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	require.NoError(t, r.AddClient("c2", "bob", &fakeConn{}, time.Now()))

	r.mu.Lock()
	c2 := r.sessions["c2"].Client()
	r.mu.Unlock()
	assert.False(t, c2.IsAdmin)
}

func TestAddClient_RejectsWhenRoomFull(t *testing.T) {
	r := newTestRoom()
	for i := 0; i < MaxClientsPerRoom; i++ {
		id := domain.ClientID(fmt.Sprintf("client-%d", i))
		require.NoError(t, r.AddClient(id, "user", &fakeConn{}, time.Now()))
	}
	err := r.AddClient("overflow", "overflow-user", &fakeConn{}, time.Now())
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestAddClient_ReconnectRebindsWithoutDuplicating(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	assert.Equal(t, 1, r.ClientCount())
}

func TestRemoveClient_PromotesRandomRemainingAdmin(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	require.NoError(t, r.AddClient("c2", "bob", &fakeConn{}, time.Now()))

	r.RemoveClient("c1")

	r.mu.Lock()
	c2 := r.sessions["c2"].Client()
	r.mu.Unlock()
	assert.True(t, c2.IsAdmin)
}

func TestRemoveClient_LastSessionArmsCleanupTimer(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	r.RemoveClient("c1")

	r.mu.Lock()
	timerArmed := r.cleanupTimer != nil
	r.mu.Unlock()
	assert.True(t, timerArmed)
	assert.Equal(t, 0, r.ClientCount())
}

func TestAddClient_RejoinCancelsCleanupTimer(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	r.RemoveClient("c1")
	require.NoError(t, r.AddClient("c2", "bob", &fakeConn{}, time.Now()))

	r.mu.Lock()
	timerArmed := r.cleanupTimer != nil
	r.mu.Unlock()
	assert.False(t, timerArmed)
}

func TestAddClient_RejoinRestoresPriorAdminAndJoinedAt(t *testing.T) {
	r := newTestRoom()
	joinedAt := time.Now().Add(-time.Hour)
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, joinedAt))
	require.NoError(t, r.AddClient("c2", "bob", &fakeConn{}, time.Now()))

	r.mu.Lock()
	r.sessions["c2"].MutateClient(func(c *domain.Client) { c.IsAdmin = true })
	r.mu.Unlock()

	r.RemoveClient("c2")
	require.NoError(t, r.AddClient("c2", "bob", &fakeConn{}, time.Now()))

	r.mu.Lock()
	c2 := r.sessions["c2"].Client()
	_, stillRetained := r.clientRecords["c2"]
	r.mu.Unlock()
	assert.True(t, c2.IsAdmin, "rejoin must restore the client's prior admin flag")
	assert.False(t, stillRetained, "a reclaimed record must be removed from clientRecords")
}

func TestAddClient_RejoinUpdatesUsernameOnRetainedRecord(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	r.RemoveClient("c1")
	require.NoError(t, r.AddClient("c1", "alice2", &fakeConn{}, time.Now()))

	r.mu.Lock()
	c1 := r.sessions["c1"].Client()
	r.mu.Unlock()
	assert.Equal(t, "alice2", c1.Username)
}

func TestRemoveClient_RetainsRecordUntilRoomCleanup(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	r.RemoveClient("c1")

	r.mu.Lock()
	_, retained := r.clientRecords["c1"]
	r.mu.Unlock()
	assert.True(t, retained, "a disconnected client's record must survive until cleanup")
}

func TestBroadcastAll_DropsSlowSession(t *testing.T) {
	r := newTestRoom()
	slow := &fakeConn{full: true}
	require.NoError(t, r.AddClient("c1", "alice", slow, time.Now()))

	r.BroadcastAll([]byte(`{"type":"TEST"}`))

	// RemoveClient runs in its own goroutine from trySendOrDrop; give it
	// a moment to land.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if r.ClientCount() == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 0, r.ClientCount())
	assert.True(t, slow.closed)
}

func TestSnapshotAndRestore_RoundTripsQueueAndVolume(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.AddClient("admin", "alice", &fakeConn{}, time.Now()))
	require.NoError(t, r.SetAudioSources("admin", []string{"a.mp3", "b.mp3"}))
	require.NoError(t, r.HandleSetGlobalVolume("admin", 0.4))

	snap := r.Snapshot()

	r2 := newTestRoom()
	r2.Restore(snap)

	assert.Equal(t, []string{"a.mp3", "b.mp3"}, r2.queue.URLs())
	assert.Equal(t, 0.4, r2.globalVolume)
}
