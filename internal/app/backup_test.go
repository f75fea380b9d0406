package app

import (
	"context"
	"testing"
	"time"

	"github.com/beatsync/server/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotStore struct {
	saved   domain.RegistrySnapshot
	saveErr error
	loadErr error
	saves   int
}

func (s *fakeSnapshotStore) Save(ctx context.Context, snapshot domain.RegistrySnapshot) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = snapshot
	return nil
}

func (s *fakeSnapshotStore) Load(ctx context.Context) (domain.RegistrySnapshot, error) {
	if s.loadErr != nil {
		return domain.RegistrySnapshot{}, s.loadErr
	}
	return s.saved, nil
}

func TestSerialize_IncludesEveryTrackedRoom(t *testing.T) {
	reg := newTestRegistry()
	defer reg.Shutdown()
	room := reg.GetOrCreateRoom("888888")
	require.NoError(t, room.AddClient("c1", "alice", &fakeConn{}, time.Now()))
	require.NoError(t, room.SetAudioSources("c1", []string{"a.mp3"}))

	b := NewBackupManager(reg, nil, time.Hour, zerolog.Nop())
	snap := b.Serialize()

	roomSnap, ok := snap.Data.Rooms["888888"]
	require.True(t, ok)
	require.Len(t, roomSnap.AudioSources, 1)
	assert.Equal(t, "a.mp3", roomSnap.AudioSources[0].URL)
}

func TestRestore_RecreatesRoomsFromSnapshot(t *testing.T) {
	reg := newTestRegistry()
	defer reg.Shutdown()

	snapshot := domain.RegistrySnapshot{
		TimestampMillis: time.Now().UnixMilli(),
		Data: domain.RegistrySnapshotData{
			Rooms: map[domain.RoomID]domain.RoomSnapshot{
				"999999": {AudioSources: []domain.AudioSource{{URL: "x.mp3"}}, GlobalVolume: 0.7},
			},
		},
	}

	b := NewBackupManager(reg, nil, time.Hour, zerolog.Nop())
	b.Restore(snapshot)

	room, ok := reg.GetRoom("999999")
	require.True(t, ok)
	assert.Equal(t, []string{"x.mp3"}, room.queue.URLs())
	assert.Equal(t, 0.7, room.globalVolume)
}

func TestRestoreFromStore_NoOpsOnLoadError(t *testing.T) {
	reg := newTestRegistry()
	defer reg.Shutdown()
	store := &fakeSnapshotStore{loadErr: assert.AnError}
	b := NewBackupManager(reg, store, time.Hour, zerolog.Nop())

	b.RestoreFromStore(context.Background())
	assert.Empty(t, reg.Rooms())
}

func TestSnapshotNow_SavesImmediatelyWithoutWaitingForTicker(t *testing.T) {
	reg := newTestRegistry()
	defer reg.Shutdown()
	reg.GetOrCreateRoom("101010")
	store := &fakeSnapshotStore{}
	b := NewBackupManager(reg, store, time.Hour, zerolog.Nop())

	b.SnapshotNow(context.Background())
	assert.Equal(t, 1, store.saves)
}

func TestSnapshotNow_NoOpWithNilStore(t *testing.T) {
	reg := newTestRegistry()
	defer reg.Shutdown()
	b := NewBackupManager(reg, nil, time.Hour, zerolog.Nop())
	assert.NotPanics(t, func() { b.SnapshotNow(context.Background()) })
}
