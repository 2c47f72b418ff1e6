package corpus

import (
	"sync"
	"sync/atomic"
)

// Snapshot is a swappable cell holding the current index.
// Readers load a consistent value without locking; writers go through Update so that
// read-modify-write cycles from different callers never interleave.
type Snapshot struct {
	p  atomic.Pointer[Index]
	mu sync.Mutex
}

// NewSnapshot returns a cell initialised with idx, or an empty index when idx is nil.
func NewSnapshot(idx *Index) *Snapshot {
	s := &Snapshot{}
	s.Store(idx)
	return s
}

// Load returns the current index.
func (s *Snapshot) Load() *Index {
	return s.p.Load()
}

// Store replaces the current index.
func (s *Snapshot) Store(idx *Index) {
	if idx == nil {
		idx = Empty()
	}
	s.p.Store(idx)
}

// Update calls fn with the current index and stores the index it returns, even alongside an
// error, so partial progress is kept. A nil result leaves the cell unchanged.
func (s *Snapshot) Update(fn func(*Index) (*Index, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.Load())
	if next != nil {
		s.p.Store(next)
	}
	return err
}
