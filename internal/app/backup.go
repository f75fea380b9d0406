package app

import (
	"context"
	"time"

	"github.com/beatsync/server/internal/domain"
	"github.com/rs/zerolog"
)

// SnapshotStore is the persistence collaborator backup/restore reads
// and writes through — a Redis key or a local file, depending on
// deployment (internal/adapters/storage provides both).
type SnapshotStore interface {
	Save(ctx context.Context, snapshot domain.RegistrySnapshot) error
	Load(ctx context.Context) (domain.RegistrySnapshot, error)
}

// BackupManager periodically serializes the registry's rooms to a
// SnapshotStore and can restore them on startup.
type BackupManager struct {
	registry *Registry
	store    SnapshotStore
	interval time.Duration
	log      zerolog.Logger
	stop     chan struct{}
}

// NewBackupManager wires a BackupManager. A nil store disables
// periodic snapshots (Start becomes a no-op) while leaving manual
// Serialize/Restore usable in tests.
func NewBackupManager(registry *Registry, store SnapshotStore, interval time.Duration, log zerolog.Logger) *BackupManager {
	return &BackupManager{
		registry: registry,
		store:    store,
		interval: interval,
		log:      log.With().Str("module", "backup").Logger(),
		stop:     make(chan struct{}),
	}
}

// Serialize builds the top-level snapshot of every tracked room.
func (b *BackupManager) Serialize() domain.RegistrySnapshot {
	rooms := b.registry.Rooms()
	data := make(map[domain.RoomID]domain.RoomSnapshot, len(rooms))
	for _, r := range rooms {
		data[r.ID()] = r.Snapshot()
	}
	return domain.RegistrySnapshot{
		TimestampMillis: time.Now().UnixMilli(),
		Data:            domain.RegistrySnapshotData{Rooms: data},
	}
}

// Restore re-creates every room named in snapshot and replays its
// queue, playback state, volume, and chat history. Called once at
// startup before the HTTP/WS surface accepts traffic.
func (b *BackupManager) Restore(snapshot domain.RegistrySnapshot) {
	for id, roomSnap := range snapshot.Data.Rooms {
		room := b.registry.GetOrCreateRoom(id)
		room.Restore(roomSnap)
	}
}

// RestoreFromStore loads the last snapshot from the store and
// restores it, logging (but not failing startup on) a missing or
// corrupt snapshot.
func (b *BackupManager) RestoreFromStore(ctx context.Context) {
	if b.store == nil {
		return
	}
	snapshot, err := b.store.Load(ctx)
	if err != nil {
		b.log.Warn().Err(err).Msg("no prior snapshot to restore")
		return
	}
	b.Restore(snapshot)
	b.log.Info().Int("rooms", len(snapshot.Data.Rooms)).Msg("restored rooms from snapshot")
}

// Start runs periodic snapshots until Stop is called or ctx is
// cancelled.
func (b *BackupManager) Start(ctx context.Context) {
	if b.store == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stop:
				return
			case <-ticker.C:
				b.snapshotOnce(ctx)
			}
		}
	}()
}

func (b *BackupManager) snapshotOnce(ctx context.Context) {
	snapshot := b.Serialize()
	if err := b.store.Save(ctx, snapshot); err != nil {
		b.log.Warn().Err(err).Msg("failed to save periodic snapshot")
	}
}

// Stop halts the periodic snapshot loop.
func (b *BackupManager) Stop() {
	close(b.stop)
}

// SnapshotNow serializes and saves immediately, used on graceful
// shutdown so the last few seconds before the ticker fires aren't lost.
func (b *BackupManager) SnapshotNow(ctx context.Context) {
	if b.store == nil {
		return
	}
	b.snapshotOnce(ctx)
}
