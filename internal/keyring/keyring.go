// Package keyring manages the device-bound at-rest key that seals clipboard
// content in the local store. The key is derived from a 32-byte device
// secret held in OS-protected storage and never leaves the process; it is
// independent of the per-connection session key.
package keyring

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"

	"github.com/dmitrijs2005/appconnect/internal/cryptox"
)

const secretSize = 32

// hkdfInfo binds the derived key to its purpose so the same secret can
// later feed other derivations without key reuse.
const hkdfInfo = "appconnect/at-rest/v1"

// Keyring holds the derived at-rest AEAD key.
type Keyring struct {
	key []byte
}

// Open loads the device secret at path, creating it with a fresh CSPRNG
// value on first run, and expands it with HKDF-SHA256 into the at-rest key.
func Open(path string) (*Keyring, error) {
	secret, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		secret = cryptox.GenerateRandByteArray(secretSize)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create secret dir: %w", err)
		}
		if err := os.WriteFile(path, secret, 0o600); err != nil {
			return nil, fmt.Errorf("failed to persist device secret: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read device secret: %w", err)
	case len(secret) != secretSize:
		return nil, fmt.Errorf("device secret at %s is %d bytes, want %d", path, len(secret), secretSize)
	}

	key := make([]byte, cryptox.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return &Keyring{key: key}, nil
}

// FromSecret derives a keyring directly from an in-memory secret. Used by
// tests and by hosts that inject the secret themselves.
func FromSecret(secret []byte) (*Keyring, error) {
	if len(secret) != secretSize {
		return nil, fmt.Errorf("secret is %d bytes, want %d", len(secret), secretSize)
	}
	key := make([]byte, cryptox.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, err
	}
	return &Keyring{key: key}, nil
}

// Key returns a copy of the at-rest key.
func (k *Keyring) Key() []byte {
	out := make([]byte, len(k.key))
	copy(out, k.key)
	return out
}
