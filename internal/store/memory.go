package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tejusbharadwaj/urbanobservatory/internal/models"
)

var (
	// ErrNotFound is returned when no readings are buffered for an entity.
	ErrNotFound = errors.New("no readings for entity")
)

// MemoryStore is a concurrency-safe, bounded history of polled readings,
// keyed by entity id. Readings are kept in insertion order.
type MemoryStore struct {
	mu sync.RWMutex

	data map[string][]models.Reading

	// retention configuration
	maxHistory int           // max number of readings per entity
	maxAge     time.Duration // optional max age of readings
	now        func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory or maxAge is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string][]models.Reading),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Append adds readings for an entity and enforces retention.
func (s *MemoryStore) Append(entityID string, readings []models.Reading) {
	if len(readings) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.data[entityID], readings...)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(history); i++ {
			if !history[i].Time.Before(cutoff) {
				break
			}
		}
		history = history[i:]
	}

	s.data[entityID] = history
}

// Latest returns the most recently appended reading for an entity.
func (s *MemoryStore) Latest(entityID string) (models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[entityID]
	if len(history) == 0 {
		return models.Reading{}, ErrNotFound
	}
	return history[len(history)-1], nil
}

// Range returns all readings for an entity between from and to (inclusive).
func (s *MemoryStore) Range(entityID string, from, to time.Time) ([]models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[entityID]
	if len(history) == 0 {
		return nil, ErrNotFound
	}

	var result []models.Reading
	for _, r := range history {
		if !r.Time.Before(from) && !r.Time.After(to) {
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// Entities lists the ids that currently have buffered readings, sorted.
func (s *MemoryStore) Entities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id, history := range s.data {
		if len(history) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
