package cache

import (
	"context"
	"sync"
	"time"

	bileterr "bilet/internal/errors"
)

// MemoryStore is an in-process SlotStore for single-node deployments and
// tests. Expired heartbeats are dropped lazily on read.
type MemoryStore struct {
	mu    sync.Mutex
	slots map[int64]int
	beats map[[2]int64]time.Time
	auth  map[string]int64

	// now is swappable so tests can drive expiry without sleeping.
	now func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots: make(map[int64]int),
		beats: make(map[[2]int64]time.Time),
		auth:  make(map[string]int64),
		now:   time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) AcquireSlot(_ context.Context, showingID int64, capacity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[showingID] >= capacity {
		return false, nil
	}
	s.slots[showingID]++
	return true, nil
}

func (s *MemoryStore) ReleaseSlot(_ context.Context, showingID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[showingID] > 0 {
		s.slots[showingID]--
	}
	return nil
}

func (s *MemoryStore) ActiveSlots(_ context.Context, showingID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[showingID], nil
}

func (s *MemoryStore) SetHeartbeat(_ context.Context, showingID, userID int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beats[[2]int64{showingID, userID}] = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) HeartbeatAlive(_ context.Context, showingID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{showingID, userID}
	deadline, ok := s.beats[key]
	if !ok {
		return false, nil
	}
	if s.now().After(deadline) {
		delete(s.beats, key)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) DeleteHeartbeat(_ context.Context, showingID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.beats, [2]int64{showingID, userID})
	return nil
}

func (s *MemoryStore) GetUserIDByAuth(_ context.Context, email, passwordHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.auth[email+":"+passwordHash]; ok {
		return id, nil
	}
	return 0, bileterr.ErrNotFound
}

func (s *MemoryStore) CacheUserAuth(_ context.Context, email, passwordHash string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth[email+":"+passwordHash] = userID
	return nil
}
