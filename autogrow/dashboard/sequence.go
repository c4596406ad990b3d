package dashboard

import "sync"

// Sequencer hands out monotonically increasing sequence numbers per target and
// remembers the newest one committed. Content fetched under an older sequence
// than the committed one is stale.
type Sequencer struct {
	mu        sync.Mutex
	issued    map[string]uint64
	committed map[string]uint64
}

// NewSequencer creates an empty sequencer
func NewSequencer() *Sequencer {
	return &Sequencer{
		issued:    make(map[string]uint64),
		committed: make(map[string]uint64),
	}
}

// Next issues the next sequence number for target
func (s *Sequencer) Next(target string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.issued[target]++
	return s.issued[target]
}

// Commit records seq as the newest content for target. It returns false, and records
// nothing, when a later sequence has already been committed.
func (s *Sequencer) Commit(target string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq <= s.committed[target] {
		return false
	}
	s.committed[target] = seq
	return true
}

// Committed returns the newest committed sequence for target, or 0
func (s *Sequencer) Committed(target string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.committed[target]
}
