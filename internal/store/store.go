package store

import (
	"sync"

	"github.com/raffaelramalhorosa/epgmerge/internal/models"
)

// Store accumulates the merged guide. The first channel seen for an id and the
// first programme seen for a key win; later duplicates are dropped. Retained
// records keep the order they were added in.
// All public methods are safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	channels     []models.Channel
	programmes   []models.Programme
	channelIDs   map[string]struct{}
	programmeIDs map[models.ProgrammeKey]struct{}
}

// New creates an empty Store ready for use.
func New() *Store {
	return &Store{
		channelIDs:   make(map[string]struct{}),
		programmeIDs: make(map[models.ProgrammeKey]struct{}),
	}
}

// ---------- Channels ----------

// AddChannel retains ch unless its id is empty or already present.
// It reports whether ch was retained.
func (s *Store) AddChannel(ch models.Channel) bool {
	id := ch.ID()
	if id == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.channelIDs[id]; exists {
		return false
	}
	s.channelIDs[id] = struct{}{}
	s.channels = append(s.channels, ch)
	return true
}

// Channels returns the retained channels in first-seen order.
func (s *Store) Channels() []models.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.Channel(nil), s.channels...)
}

// ---------- Programmes ----------

// AddProgramme retains p unless a programme with the same key is present.
// It reports whether p was retained.
func (s *Store) AddProgramme(p models.Programme) bool {
	key := p.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.programmeIDs[key]; exists {
		return false
	}
	s.programmeIDs[key] = struct{}{}
	s.programmes = append(s.programmes, p)
	return true
}

// Programmes returns the retained programmes in first-seen order.
func (s *Store) Programmes() []models.Programme {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.Programme(nil), s.programmes...)
}

// ---------- Guide ----------

// Counts returns the number of retained channels and programmes.
func (s *Store) Counts() (channels, programmes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.channels), len(s.programmes)
}

// Document returns a snapshot of the merged guide.
func (s *Store) Document() *models.Document {
	return &models.Document{
		Channels:   s.Channels(),
		Programmes: s.Programmes(),
	}
}
