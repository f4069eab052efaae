package credential

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/cardledger/internal/util"
	"github.com/jmcleod/cardledger/storage"
)

const (
	slotBucket = "credential"
	slotKey    = "session"
	slotAAD    = "cardledger:credential:session:v1"
)

// ErrClosed is returned by SealedStore operations after Close.
var ErrClosed = errors.New("credential store closed")

// SealedStore keeps the token sealed with AES-256-GCM in a
// storage.Repository. The committed value is cached in a memguard enclave so
// the plaintext only exists in memory while a caller reads it.
type SealedStore struct {
	repo   storage.Repository
	logger *slog.Logger

	mu     sync.RWMutex
	key    []byte
	cache  *memguard.Enclave // nil when the slot is empty
	closed bool

	subs subscribers
}

var (
	_ Store      = (*SealedStore)(nil)
	_ Subscriber = (*SealedStore)(nil)
)

// Option configures a SealedStore.
type Option func(*SealedStore)

// WithLogger sets the logger used for slot diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SealedStore) {
		s.logger = logger
	}
}

// NewSealedStore opens the slot in repo using the 32-byte sealing key.
// A record that cannot be opened with key (rotated key, corruption) is
// discarded and the slot starts empty.
func NewSealedStore(repo storage.Repository, key []byte, opts ...Option) (*SealedStore, error) {
	if len(key) != util.AESKeySize {
		return nil, fmt.Errorf("sealing key must be exactly %d bytes, got %d", util.AESKeySize, len(key))
	}
	s := &SealedStore{
		repo: repo,
		key:  util.CopyBytes(key),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	token, err := s.load()
	if err != nil {
		util.WipeBytes(s.key)
		return nil, err
	}
	if token != nil {
		s.cache = memguard.NewEnclave(token)
	}
	return s, nil
}

// load reads and unseals the slot. A nil result means empty.
func (s *SealedStore) load() ([]byte, error) {
	env, err := s.repo.Get(slotBucket, slotKey)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrBucketNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential slot: %w", err)
	}
	token, err := storage.OpenRecord(s.key, env, []byte(slotAAD))
	if err != nil {
		s.logger.Warn("discarding unreadable credential slot", "error", err)
		if delErr := s.repo.Delete(slotBucket, slotKey); delErr != nil {
			return nil, fmt.Errorf("discarding credential slot: %w", delErr)
		}
		return nil, nil
	}
	if len(token) == 0 {
		return nil, nil
	}
	return token, nil
}

func (s *SealedStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readEnclave(s.cache)
}

func readEnclave(e *memguard.Enclave) (string, bool) {
	if e == nil {
		return "", false
	}
	buf, err := e.Open()
	if err != nil {
		return "", false
	}
	defer buf.Destroy()
	return string(buf.Bytes()), true
}

func (s *SealedStore) Set(token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	env, err := storage.SealRecord(s.key, []byte(token), []byte(slotAAD))
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("sealing credential: %w", err)
	}
	if err := s.repo.Put(slotBucket, slotKey, env); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("writing credential slot: %w", err)
	}
	s.cache = memguard.NewEnclave([]byte(token))
	s.mu.Unlock()

	s.subs.notify(Change{Present: true})
	return nil
}

func (s *SealedStore) Clear() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err := s.repo.Delete(slotBucket, slotKey); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("clearing credential slot: %w", err)
	}
	was := s.cache != nil
	s.cache = nil
	s.mu.Unlock()

	if was {
		s.subs.notify(Change{})
	}
	return nil
}

// Reload re-reads the slot from the repository and notifies subscribers when
// the committed value differs from the cached one.
func (s *SealedStore) Reload() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	token, err := s.load()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	current, present := readEnclave(s.cache)
	if token == nil && !present {
		s.mu.Unlock()
		return nil
	}
	if token != nil && present && string(token) == current {
		util.WipeBytes(token)
		s.mu.Unlock()
		return nil
	}
	if token == nil {
		s.cache = nil
	} else {
		s.cache = memguard.NewEnclave(token)
	}
	now := s.cache != nil
	s.mu.Unlock()

	s.logger.Debug("credential slot changed externally", "present", now)
	s.subs.notify(Change{Present: now, External: true})
	return nil
}

func (s *SealedStore) Subscribe(fn func(Change)) func() {
	return s.subs.add(fn)
}

// Close wipes the sealing key. The cached enclave is dropped.
func (s *SealedStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cache = nil
	util.WipeBytes(s.key)
}
