package poller

import (
	"sort"
	"sync"
	"time"

	"github.com/joshp123/gobike/mysmartbike"
)

// Store holds the latest bike snapshot. Readers (HTTP API, metrics
// scrape) never touch the network; they see whatever the last
// successful poll fetched.
type Store struct {
	mu        sync.RWMutex
	bikes     map[string]mysmartbike.Bike
	fetchedAt time.Time
}

func NewStore() *Store {
	return &Store{bikes: make(map[string]mysmartbike.Bike)}
}

// Update replaces the snapshot wholesale.
func (s *Store) Update(bikes map[string]mysmartbike.Bike, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bikes = make(map[string]mysmartbike.Bike, len(bikes))
	for serial, bike := range bikes {
		s.bikes[serial] = bike
	}
	s.fetchedAt = at
}

// Snapshot returns the bikes sorted by serial plus the fetch time.
func (s *Store) Snapshot() ([]mysmartbike.Bike, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bikes := make([]mysmartbike.Bike, 0, len(s.bikes))
	for _, bike := range s.bikes {
		bikes = append(bikes, bike)
	}
	sort.Slice(bikes, func(i, j int) bool { return bikes[i].Serial < bikes[j].Serial })
	return bikes, s.fetchedAt
}

// Bike looks up a single bike by serial.
func (s *Store) Bike(serial string) (mysmartbike.Bike, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bike, ok := s.bikes[serial]
	return bike, ok
}

// FetchedAt reports when the snapshot was last refreshed.
func (s *Store) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}
