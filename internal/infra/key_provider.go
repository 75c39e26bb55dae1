package infra

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

const (
	keyFileName = "store.key"
	keySize     = 32 // raw SQLCipher key
)

// KeyFile holds the SQLCipher key beside the database, base64 encoded and
// readable by the owner only. A key is published with a hard link, so when
// both daemons start on a fresh data dir exactly one key wins.
type KeyFile struct {
	path string
}

// NewKeyFile returns the key file for dataDir.
func NewKeyFile(dataDir string) *KeyFile {
	return &KeyFile{path: filepath.Join(dataDir, keyFileName)}
}

// GetKey returns the stored key. A truncated or hand-edited file is an error
// rather than a silently different key.
func (f *KeyFile) GetKey() ([]byte, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read store key: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("store key %s is corrupt: %w", f.path, err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("store key %s has %d bytes, want %d", f.path, len(key), keySize)
	}
	return key, nil
}

// StoreKey publishes key. It never replaces an existing key; in that case
// the error matches fs.ErrExist.
func (f *KeyFile) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("store key must be %d bytes, got %d", keySize, len(key))
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, keyFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to stage store key: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString(base64.StdEncoding.EncodeToString(key))
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write store key: %w", err)
	}

	if err := os.Link(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to publish store key: %w", err)
	}
	return nil
}

// KeyExists reports whether a key has been published.
func (f *KeyFile) KeyExists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// GenerateKey returns a fresh random store key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate store key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the published key, creating it on first run. If another
// process publishes first, its key is adopted.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return provider.GetKey()
		}
		return nil, err
	}
	return key, nil
}

// OpenDataStore opens the encrypted store in dataDir, creating its key on
// first use.
func OpenDataStore(dataDir string) (*Store, error) {
	key, err := EnsureKey(NewKeyFile(dataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load store key: %w", err)
	}
	return OpenStore(dataDir, key)
}

var _ domain.KeyProvider = (*KeyFile)(nil)
