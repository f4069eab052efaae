package credential

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jmcleod/cardledger/internal/util"
)

const (
	seedSize = 32
	keyInfo  = "cardledger:credential-slot:v1"
)

// LoadOrCreateKey reads the slot key seed at path, creating a random seed on
// first use, and derives the 32-byte sealing key from it.
func LoadOrCreateKey(path string) ([]byte, error) {
	seed, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		seed, err = createSeed(path)
	}
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(seed)
	if len(seed) != seedSize {
		return nil, fmt.Errorf("key seed %s: expected %d bytes, got %d", path, seedSize, len(seed))
	}
	return util.HKDF(seed, nil, []byte(keyInfo))
}

func createSeed(path string) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	seed, err := util.RandomBytes(seedSize)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		// Another process won the race; use its seed.
		util.WipeBytes(seed)
		return os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("creating key seed: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(seed); err != nil {
		return nil, fmt.Errorf("writing key seed: %w", err)
	}
	return seed, nil
}
