// Package store implements the tiered persistent key-value cache: an
// encrypted, size-limited small-object store, an unconstrained bulk
// store, and the router that decides where each value lives.
package store

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// MaxSecureValueSize is the per-entry plaintext ceiling of the secure store.
const MaxSecureValueSize = 2048

// ErrValueTooLarge is returned when a value exceeds MaxSecureValueSize.
var ErrValueTooLarge = errors.New("value exceeds secure store size limit")

const keyFileName = ".keystore"

// SecureStore is an encrypted-at-rest small-object store. Each entry is a
// separate file sealed with XChaCha20-Poly1305 under a per-installation key.
type SecureStore struct {
	dir  string
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// OpenSecureStore opens (or initializes) a secure store in dir. The
// encryption key is generated on first use and kept alongside the entries
// with owner-only permissions.
func OpenSecureStore(dir string) (*SecureStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create secure store dir: %w", err)
	}

	key, err := loadOrCreateKey(filepath.Join(dir, keyFileName))
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	return &SecureStore{dir: dir, aead: aead}, nil
}

// GetItem reads and decrypts the value for key. The second return is false
// when the key is absent.
func (s *SecureStore) GetItem(key string) (string, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}

	nonceSize := chacha20poly1305.NonceSizeX
	if len(data) < nonceSize {
		return "", false, fmt.Errorf("entry %s is corrupt", key)
	}

	plaintext, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", false, fmt.Errorf("decrypt %s: %w", key, err)
	}
	return string(plaintext), true, nil
}

// SetItem encrypts and stores value under key. Values larger than
// MaxSecureValueSize are rejected; callers route those to the bulk store.
func (s *SecureStore) SetItem(key, value string) error {
	if len(value) > MaxSecureValueSize {
		return fmt.Errorf("%s: %w (%d bytes)", key, ErrValueTooLarge, len(value))
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(value), nil)

	// Atomic write: temp file then rename.
	path := s.path(key)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, sealed, 0600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// DeleteItem removes the entry for key. Deleting a missing key is not an
// error.
func (s *SecureStore) DeleteItem(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SecureStore) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".bin")
}

// sanitizeKey maps a cache key to a safe file name.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, key)
}

func loadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("keystore %s is corrupt", path)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read keystore: %w", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("write keystore: %w", err)
	}
	return key, nil
}
