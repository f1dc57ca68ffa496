// Package store holds the live notifications of the server.
package store

import (
	"sync"

	"github.com/jmylchreest/shellnotifyd/internal/model"
)

// Change describes a contiguous span of the list that changed: Removed
// entries starting at Position were replaced by Added entries.
type Change struct {
	Position int
	Removed  int
	Added    int
}

// Store is the thread-safe list model of live notifications. Records are
// keyed by their notification id and ordered by arrival.
type Store struct {
	mu   sync.Mutex
	list *List[uint32, *model.Record]

	subscribers []chan Change
	closed      bool
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		list:        NewList[uint32, *model.Record](),
		subscribers: make([]chan Change, 0),
	}
}

// PushTail appends r, assigns it a fresh id and returns the id.
func (s *Store) PushTail(r *model.Record) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	id, err := s.list.PushTail(r)
	if err != nil {
		return 0, err
	}
	r.ID = id

	s.notifyChange(Change{Position: s.list.Len() - 1, Added: 1})
	return id, nil
}

// PushHead prepends r, assigns it a fresh id and returns the id.
func (s *Store) PushHead(r *model.Record) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	id, err := s.list.PushHead(r)
	if err != nil {
		return 0, err
	}
	r.ID = id

	s.notifyChange(Change{Position: 0, Added: 1})
	return id, nil
}

// Replace stores r under an existing id, keeping its position.
// It returns the previous record, or false if id is not live.
func (s *Store) Replace(id uint32, r *model.Record) (*model.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrStoreClosed
	}

	if _, live := s.list.Get(id); !live {
		return nil, false, nil
	}
	pos := s.changePosition(id)

	r.ID = id
	old, _ := s.list.Replace(id, r)

	s.notifyChange(Change{Position: pos, Removed: 1, Added: 1})
	return old, true, nil
}

// Remove deletes the record with the given id and returns it.
// A missing id is reported with ok false and a nil error.
func (s *Store) Remove(id uint32) (*model.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrStoreClosed
	}
	return s.removeLocked(id)
}

// RemoveIf deletes id only while it still holds r. Once r has been closed
// or replaced, even if id was reissued since, ok is false and nothing
// changes.
func (s *Store) RemoveIf(id uint32, r *model.Record) (*model.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrStoreClosed
	}
	if cur, ok := s.list.Get(id); !ok || cur != r {
		return nil, false, nil
	}
	return s.removeLocked(id)
}

func (s *Store) removeLocked(id uint32) (*model.Record, bool, error) {
	if _, live := s.list.Get(id); !live {
		return nil, false, nil
	}
	pos := s.changePosition(id)

	old, ok, err := s.list.Remove(id)
	if err != nil || !ok {
		return nil, false, err
	}

	s.notifyChange(Change{Position: pos, Removed: 1})
	return old, true, nil
}

// changePosition resolves the position reported with a change to a live id.
// Without subscribers nobody reads it and the walk is skipped.
func (s *Store) changePosition(id uint32) int {
	if len(s.subscribers) == 0 {
		return 0
	}
	pos, _ := s.list.Position(id)
	return pos
}

// Holds reports whether r is the record currently stored under r.ID.
func (s *Store) Holds(r *model.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.list.Get(r.ID)
	return ok && cur == r
}

// Get returns the record with the given id. The record must be treated
// as read-only; use Clone to modify it.
func (s *Store) Get(id uint32) (*model.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.list.Get(id)
}

// ItemAt returns the record at the given position.
func (s *Store) ItemAt(pos int) (*model.Record, bool) {
	// Nth moves the position hint, so a full lock is needed.
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.list.Nth(pos)
}

// Position returns the current position of id.
func (s *Store) Position(id uint32) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.list.Position(id)
}

// Count returns the number of live records.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.list.Len()
}

// Snapshot returns copies of all records in list order.
func (s *Store) Snapshot() []*model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.list.Values()
	result := make([]*model.Record, len(values))
	for i, r := range values {
		result[i] = r.Clone()
	}
	return result
}

// Subscribe returns a channel that receives change events.
func (s *Store) Subscribe() <-chan Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Change, 32)
	if s.closed {
		close(ch)
		return ch
	}
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscription.
func (s *Store) Unsubscribe(ch <-chan Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close closes all subscriber channels. Mutations after Close fail with
// ErrStoreClosed; reads keep working.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil

	return nil
}

// notifyChange sends a change event to all subscribers (non-blocking).
func (s *Store) notifyChange(event Change) {
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}
}

// Errors
var (
	ErrStoreClosed = storeError("store is closed")
)

type storeError string

func (e storeError) Error() string {
	return string(e)
}
