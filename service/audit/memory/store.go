// Package memory provides the in-process audit store.
package memory

import (
	"context"
	"sync"

	"github.com/corpcraft/gatekeeper/service/audit"
)

// Store keeps audit entries in an append-only slice.
type Store struct {
	mu      sync.RWMutex
	entries []*audit.Entry
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

// Append adds a copy of the entry to the log.
func (s *Store) Append(_ context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry.Clone())
	return nil
}

// List returns copies of all entries in append order.
func (s *Store) List(_ context.Context) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]*audit.Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		ret = append(ret, entry.Clone())
	}
	return ret, nil
}

var _ audit.Store = (*Store)(nil)
