package storage

import (
	"sort"
	"sync"
	"time"

	"transcription-queue/pkg/models"
)

// DefaultStatusRetention is how long a terminal status stays visible.
const DefaultStatusRetention = 10 * time.Minute

// MemoryStore keeps the latest status update of every job seen by this
// process. It is a status sink. Terminal updates are evicted once they are
// older than the retention window.
type MemoryStore interface {
	Publish(update models.StatusUpdate)
	GetStatus(jobID string) (models.StatusUpdate, error)
	ListStatuses() []models.StatusUpdate
}

type memoryStore struct {
	statuses  map[string]models.StatusUpdate
	retention time.Duration
	mu        sync.RWMutex
}

func NewMemoryStore(retention time.Duration) MemoryStore {
	if retention <= 0 {
		retention = DefaultStatusRetention
	}
	return &memoryStore{
		statuses:  make(map[string]models.StatusUpdate),
		retention: retention,
	}
}

func (s *memoryStore) Publish(update models.StatusUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[update.JobID] = update
	s.evictLocked(update.Timestamp)
}

func (s *memoryStore) GetStatus(jobID string) (models.StatusUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	update, exists := s.statuses[jobID]
	if !exists {
		return models.StatusUpdate{}, ErrJobNotFound
	}
	return update, nil
}

// ListStatuses returns the latest updates, most recent first.
func (s *memoryStore) ListStatuses() []models.StatusUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	updates := make([]models.StatusUpdate, 0, len(s.statuses))
	for _, update := range s.statuses {
		updates = append(updates, update)
	}
	sort.Slice(updates, func(i, j int) bool {
		return updates[i].Timestamp.After(updates[j].Timestamp)
	})
	return updates
}

func (s *memoryStore) evictLocked(now time.Time) {
	cutoff := now.Add(-s.retention)
	for id, update := range s.statuses {
		if update.Status.Terminal() && update.Timestamp.Before(cutoff) {
			delete(s.statuses, id)
		}
	}
}
