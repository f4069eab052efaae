// Package credential holds the process-wide session token slot.
//
// A Store keeps at most one opaque token. Writes are synchronous and
// last-write-wins; a reader always observes the latest committed value.
// Stores that can observe writes made by other processes implement
// Subscriber so interested parties are told explicitly instead of polling.
package credential

import (
	"errors"
	"sync"
)

// ErrEmptyToken is returned by Set when asked to store an empty token.
var ErrEmptyToken = errors.New("empty token")

// Store is a durable single-slot holder for one session token.
type Store interface {
	// Get returns the committed token and whether one is present.
	Get() (string, bool)
	// Set replaces the slot with token.
	Set(token string) error
	// Clear empties the slot. Clearing an empty slot is a no-op.
	Clear() error
}

// Change describes a committed change to the slot. Subscribers should treat
// it as a signal and re-read the store: notifications from concurrent
// writers are not ordered.
type Change struct {
	Present bool
	// External is true when the change was written by another process and
	// picked up on reload.
	External bool
}

// Subscriber is implemented by stores that notify on slot changes.
type Subscriber interface {
	// Subscribe registers fn and returns a function that removes it.
	Subscribe(fn func(Change)) (unsubscribe func())
}

type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Change)
}

func (s *subscribers) add(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(Change))
	}
	id := s.next
	s.next++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

// notify must be called without holding the store lock.
func (s *subscribers) notify(c Change) {
	s.mu.Lock()
	fns := make([]func(Change), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}
