package memory

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jmcleod/cardledger/storage"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewRepository()
	env := &storage.Envelope{
		Ver:        1,
		Scheme:     "aes256gcm",
		Nonce:      []byte("nonce1234567"),
		Ciphertext: []byte("ciphertext"),
	}

	t.Run("PutAndGet", func(t *testing.T) {
		if err := repo.Put("credential", "session", env); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := repo.Get("credential", "session")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got.Ciphertext, env.Ciphertext) || !bytes.Equal(got.Nonce, env.Nonce) {
			t.Errorf("Get returned wrong envelope: %+v", got)
		}

		got.Nonce[0] = 'X'
		again, _ := repo.Get("credential", "session")
		if again.Nonce[0] == 'X' {
			t.Error("repository returned a shared envelope")
		}
	})

	t.Run("Missing", func(t *testing.T) {
		if _, err := repo.Get("nope", "session"); !errors.Is(err, storage.ErrBucketNotFound) {
			t.Errorf("expected ErrBucketNotFound, got %v", err)
		}
		if _, err := repo.Get("credential", "nope"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete("credential", "session"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Get("credential", "session"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := repo.Delete("never", "session"); err != nil {
			t.Errorf("expected nil deleting from missing bucket, got %v", err)
		}
	})
}
