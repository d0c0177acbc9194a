// Package appointments holds the viewer's appointment collection, the views
// derived from it, and the refresh and cancel operations that mutate it.
package appointments

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wolfman30/heydoc-scheduler/internal/heydoc"
)

var (
	ErrNotFound          = errors.New("appointments: not found")
	ErrInvalidTransition = errors.New("appointments: invalid status transition")
)

// Store is the session's canonical appointment collection. Each id appears
// at most once. Refreshes replace the whole collection.
type Store struct {
	mu    sync.RWMutex
	items []heydoc.Appointment

	// issued is the last refresh ticket handed out; floor is the oldest
	// ticket whose result may still be applied.
	issued uint64
	floor  uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// BeginRefresh issues a ticket for a refresh about to be requested.
func (s *Store) BeginRefresh() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// ApplyRefresh replaces the collection with list unless a newer refresh or a
// later local mutation has already superseded the ticket.
func (s *Store) ApplyRefresh(ticket uint64, list []heydoc.Appointment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket < s.floor {
		return false
	}
	s.items = dedupe(list)
	s.floor = ticket + 1
	return true
}

// Replace overwrites the collection and supersedes any refresh in flight.
func (s *Store) Replace(list []heydoc.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = dedupe(list)
	s.supersedeLocked()
}

// Reset empties the collection when the session changes hands. Refreshes
// issued for the previous viewer can no longer land.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.supersedeLocked()
}

// Prepend inserts a newly created appointment at the front. An existing
// record with the same id is dropped. A missing status is scheduled.
func (s *Store) Prepend(appt heydoc.Appointment) {
	if appt.Status == "" {
		appt.Status = heydoc.StatusScheduled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]heydoc.Appointment, 0, len(s.items)+1)
	next = append(next, appt)
	for _, existing := range s.items {
		if existing.ID != appt.ID {
			next = append(next, existing)
		}
	}
	s.items = next
	s.supersedeLocked()
}

// Upsert replaces the record with the same id in place, or prepends it.
func (s *Store) Upsert(appt heydoc.Appointment) {
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == appt.ID {
			s.items[i] = appt
			s.mu.Unlock()
			return
		}
	}
	s.mu.Unlock()
	s.Prepend(appt)
}

// MarkCancelled transitions one appointment to cancelled.
func (s *Store) MarkCancelled(id int64) (heydoc.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		from := s.items[i].Status
		if !CanTransition(from, heydoc.StatusCancelled) {
			return s.items[i], fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, heydoc.StatusCancelled)
		}
		s.items[i].Status = heydoc.StatusCancelled
		s.supersedeLocked()
		return s.items[i], nil
	}
	return heydoc.Appointment{}, fmt.Errorf("%w: %d", ErrNotFound, id)
}

// Get returns one appointment by id.
func (s *Store) Get(id int64) (heydoc.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, appt := range s.items {
		if appt.ID == id {
			return appt, true
		}
	}
	return heydoc.Appointment{}, false
}

// All returns a copy of the collection in store order.
func (s *Store) All() []heydoc.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]heydoc.Appointment{}, s.items...)
}

// Len returns the number of appointments held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// supersedeLocked makes refreshes issued before a local mutation unable to
// overwrite it.
func (s *Store) supersedeLocked() {
	s.floor = s.issued + 1
}

func dedupe(list []heydoc.Appointment) []heydoc.Appointment {
	seen := make(map[int64]struct{}, len(list))
	out := make([]heydoc.Appointment, 0, len(list))
	for _, appt := range list {
		if _, dup := seen[appt.ID]; dup {
			continue
		}
		seen[appt.ID] = struct{}{}
		out = append(out, appt)
	}
	return out
}
