// Package memstore provides an in-memory implementation of helpdesk.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
)

// Store holds helpdesk records in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	records map[string]*helpdesk.Request // "category/id" -> record
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{records: make(map[string]*helpdesk.Request)}
}

func key(category, id string) string { return category + "/" + id }

// Get retrieves a record by (category, id). Returns a copy.
func (s *Store) Get(_ context.Context, category, id string) (*helpdesk.Request, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[key(category, id)]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// List returns copies of all records, in no particular order.
func (s *Store) List(_ context.Context) ([]*helpdesk.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*helpdesk.Request, 0, len(s.records))
	for _, r := range s.records {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// Put stores a copy of the record.
func (s *Store) Put(_ context.Context, r *helpdesk.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.records[key(r.Category, r.ID)] = &cp
	return nil
}
