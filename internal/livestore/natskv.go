package livestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mkarlin14/quizroom/internal/models"
)

// KVConfig holds configuration for the shared JetStream KV backing.
type KVConfig struct {
	Bucket string
	// TTL is the bucket-level eviction applied by the backing store,
	// independent of the engine's own grace-period deletes.
	TTL time.Duration
}

// DefaultKVConfig returns the default bucket settings.
func DefaultKVConfig() KVConfig {
	return KVConfig{
		Bucket: "quizroom_rooms",
		TTL:    6 * time.Hour,
	}
}

// KVStore backs the live room store with a NATS JetStream key-value
// bucket so multiple server instances can serve the same room.
type KVStore struct {
	kv jetstream.KeyValue
}

var _ Store = (*KVStore)(nil)

// NewKVStore creates or binds the snapshot bucket.
func NewKVStore(ctx context.Context, js jetstream.JetStream, config KVConfig) (*KVStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      config.Bucket,
		Description: "live quizroom snapshots",
		TTL:         config.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create KV bucket %s: %w", config.Bucket, err)
	}

	log.Info().Str("bucket", config.Bucket).Dur("ttl", config.TTL).Msg("bound live store KV bucket")
	return &KVStore{kv: kv}, nil
}

func (s *KVStore) Get(ctx context.Context, roomCode string) (*models.RoomSnapshot, error) {
	entry, err := s.kv.Get(ctx, roomCode)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot %s: %w", roomCode, err)
	}

	var snapshot models.RoomSnapshot
	if err := json.Unmarshal(entry.Value(), &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", roomCode, err)
	}
	return &snapshot, nil
}

func (s *KVStore) Save(ctx context.Context, snapshot *models.RoomSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snapshot.RoomCode, err)
	}
	if _, err := s.kv.Put(ctx, snapshot.RoomCode, data); err != nil {
		return fmt.Errorf("put snapshot %s: %w", snapshot.RoomCode, err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, roomCode string) error {
	if err := s.kv.Purge(ctx, roomCode); err != nil {
		return fmt.Errorf("purge snapshot %s: %w", roomCode, err)
	}
	return nil
}

func (s *KVStore) Exists(ctx context.Context, roomCode string) (bool, error) {
	_, err := s.kv.Get(ctx, roomCode)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get snapshot %s: %w", roomCode, err)
	}
	return true, nil
}
