package credential

import "sync"

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu      sync.RWMutex
	token   string
	present bool
	subs    subscribers
}

var (
	_ Store      = (*MemoryStore)(nil)
	_ Subscriber = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.present
}

func (s *MemoryStore) Set(token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	s.mu.Lock()
	s.token, s.present = token, true
	s.mu.Unlock()
	s.subs.notify(Change{Present: true})
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	was := s.present
	s.token, s.present = "", false
	s.mu.Unlock()
	if was {
		s.subs.notify(Change{})
	}
	return nil
}

// Inject writes token as if another process had changed the slot.
// An empty token clears it.
func (s *MemoryStore) Inject(token string) {
	s.mu.Lock()
	s.token, s.present = token, token != ""
	present := s.present
	s.mu.Unlock()
	s.subs.notify(Change{Present: present, External: true})
}

func (s *MemoryStore) Subscribe(fn func(Change)) func() {
	return s.subs.add(fn)
}
