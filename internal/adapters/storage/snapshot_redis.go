package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/beatsync/server/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisSnapshotStore persists the registry snapshot as a single JSON
// value under key, grounded on a pooled go-redis/v9 client.
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
}

// NewRedisSnapshotStore wraps an already-constructed redis.Client.
// Connection lifecycle (Ping, Close) is the caller's responsibility.
func NewRedisSnapshotStore(client *redis.Client, key string) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, key: key}
}

func (s *RedisSnapshotStore) Save(ctx context.Context, snapshot domain.RegistrySnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.client.Set(ctx, s.key, data, 0).Err()
}

func (s *RedisSnapshotStore) Load(ctx context.Context) (domain.RegistrySnapshot, error) {
	var snapshot domain.RegistrySnapshot
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		return snapshot, fmt.Errorf("load snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return snapshot, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snapshot, nil
}

// NewRedisClient builds a pooled client from config fields, mirroring
// the constructor shape of a typical Redis-backed service.
func NewRedisClient(addr, password string, db, maxRetries, poolSize, minIdleConns int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   maxRetries,
		PoolSize:     poolSize,
		MinIdleConns: minIdleConns,
	})
}
