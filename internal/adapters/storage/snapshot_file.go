package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beatsync/server/internal/domain"
)

// FileSnapshotStore persists the registry snapshot to a local JSON
// file, used when no Redis address is configured — a single-process
// deployment's cheapest durability option.
type FileSnapshotStore struct {
	path string
}

// NewFileSnapshotStore targets path. Save creates its parent directory
// if missing.
func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

func (s *FileSnapshotStore) Save(_ context.Context, snapshot domain.RegistrySnapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileSnapshotStore) Load(_ context.Context) (domain.RegistrySnapshot, error) {
	var snapshot domain.RegistrySnapshot
	data, err := os.ReadFile(s.path)
	if err != nil {
		return snapshot, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return snapshot, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snapshot, nil
}
