// Package membership holds the local copy of the member set. The copy is
// only ever replaced as a whole with what the remote process returned.
package membership

import (
	"slices"
	"sync"

	"github.com/openkcm/member-manager/internal/identity"
)

type Store struct {
	mu      sync.RWMutex
	members []identity.Identity
	index   map[identity.Identity]struct{}
}

func NewStore() *Store {
	return &Store{
		index: make(map[identity.Identity]struct{}),
	}
}

// Replace discards the current members and stores the given ones in the
// given order. Duplicates keep their first position.
func (s *Store) Replace(members []identity.Identity) {
	ordered := make([]identity.Identity, 0, len(members))
	index := make(map[identity.Identity]struct{}, len(members))
	for _, m := range members {
		if _, ok := index[m]; ok {
			continue
		}
		index[m] = struct{}{}
		ordered = append(ordered, m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.members = ordered
	s.index = index
}

// Members returns a copy of the members in the order the remote process returned them.
func (s *Store) Members() []identity.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.members)
}

func (s *Store) IsMember(id identity.Identity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.index[id]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.members)
}
