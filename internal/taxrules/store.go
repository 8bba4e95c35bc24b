package taxrules

import "sync/atomic"

// Store holds the current Snapshot. Readers load it without locking; a reload
// builds a complete new Snapshot and installs it with Swap, so a reader sees
// either the old rules or the new ones, never a mix.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates a Store. initial may be nil until the first sync.
func NewStore(initial *Snapshot) *Store {
	s := &Store{}
	if initial != nil {
		s.current.Store(initial)
	}
	return s
}

// Snapshot returns the current snapshot, or nil if none has been loaded.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Swap installs next and returns the snapshot it replaced.
func (s *Store) Swap(next *Snapshot) *Snapshot {
	return s.current.Swap(next)
}
