package bbolt

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmcleod/cardledger/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewRepositoryFromFile(filepath.Join(t.TempDir(), "nested", "credential.db"), nil)
	if err != nil {
		t.Fatalf("could not open store: %v", err)
	}
	return s
}

func TestBBoltStorage(t *testing.T) {
	s := newTestStore(t)
	bucket := "credential"
	env := &storage.Envelope{Ver: 1, Scheme: "aes256gcm", Nonce: make([]byte, 12), Ciphertext: []byte("cipher")}

	t.Run("GetBeforeWrite", func(t *testing.T) {
		_, err := s.Get(bucket, "session")
		if !errors.Is(err, storage.ErrBucketNotFound) {
			t.Errorf("expected ErrBucketNotFound, got %v", err)
		}
	})

	t.Run("PutGet", func(t *testing.T) {
		if err := s.Put(bucket, "session", env); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(bucket, "session")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got.Ciphertext) != "cipher" {
			t.Errorf("expected ciphertext %q, got %q", "cipher", got.Ciphertext)
		}
	})

	t.Run("LastWriteWins", func(t *testing.T) {
		next := env.Clone()
		next.Ciphertext = []byte("cipher-2")
		if err := s.Put(bucket, "session", next); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(bucket, "session")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got.Ciphertext) != "cipher-2" {
			t.Errorf("expected ciphertext %q, got %q", "cipher-2", got.Ciphertext)
		}
	})

	t.Run("GetMissingKey", func(t *testing.T) {
		_, err := s.Get(bucket, "other")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Delete(bucket, "session"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get(bucket, "session"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := s.Delete(bucket, "session"); err != nil {
			t.Errorf("deleting a missing record should succeed, got %v", err)
		}
		if err := s.Delete("never-written", "session"); err != nil {
			t.Errorf("deleting from a missing bucket should succeed, got %v", err)
		}
	})
}

func TestBBoltSharedAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.db")
	a, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	b, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}

	env := &storage.Envelope{Ver: 1, Scheme: "aes256gcm", Nonce: make([]byte, 12), Ciphertext: []byte("from-a")}
	if err := a.Put("credential", "session", env); err != nil {
		t.Fatalf("Put via a failed: %v", err)
	}
	got, err := b.Get("credential", "session")
	if err != nil {
		t.Fatalf("Get via b failed: %v", err)
	}
	if string(got.Ciphertext) != "from-a" {
		t.Errorf("expected ciphertext %q, got %q", "from-a", got.Ciphertext)
	}
	if a.Path() != path {
		t.Errorf("expected path %q, got %q", path, a.Path())
	}
}
