package livestore

import (
	"context"
	"sync"

	"github.com/mkarlin14/quizroom/internal/models"
)

// MemoryStore is the process-local backing for single-instance
// deployments. Snapshots are deep-copied on the way in and out so no
// caller ever aliases the stored state.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*models.RoomSnapshot
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*models.RoomSnapshot)}
}

func (m *MemoryStore) Get(ctx context.Context, roomCode string) (*models.RoomSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[roomCode].Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, snapshot *models.RoomSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[snapshot.RoomCode] = snapshot.Clone()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, roomCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomCode)
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, roomCode string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[roomCode]
	return ok, nil
}
