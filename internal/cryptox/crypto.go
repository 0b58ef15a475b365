// Package cryptox implements the cryptographic primitives of the clipboard
// bridge: AES-256-GCM payload sealing, RSA-OAEP session-key wrapping, and
// the SHA-256 helpers used for content hashes and certificate pins.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/appconnect/internal/common"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the GCM nonce length in bytes.
	IVSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16

	// MinRSABits is the smallest peer key the pairing flow accepts.
	MinRSABits = 2048
)

// GenerateRandByteArray returns size bytes from the CSPRNG. It panics if the
// source fails, which on supported platforms means the process environment
// is broken beyond recovery.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// Wipe overwrites b with zeros. Used to drop key material from memory once
// a session or derivation is done. A nil slice is a no-op.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Encrypt seals plaintext with AES-256-GCM under key. A fresh 12-byte IV is
// drawn from the CSPRNG on every call; the 16-byte tag is appended to the
// ciphertext. No associated data is used.
func Encrypt(key, plaintext []byte) (iv, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	iv = GenerateRandByteArray(IVSize)
	ciphertext = aesgcm.Seal(nil, iv, plaintext, nil)
	return iv, ciphertext, nil
}

// Decrypt opens an AES-256-GCM sealed payload. It fails with
// common.ErrDecryptAuth when the tag does not verify or the IV has the
// wrong length.
func Decrypt(key, iv, ciphertext []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", common.ErrDecryptAuth, IVSize, len(iv))
	}
	if len(ciphertext) < TagSize {
		return nil, fmt.Errorf("%w: ciphertext shorter than tag", common.ErrDecryptAuth)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptAuth, err)
	}
	return plaintext, nil
}

// WrapSessionKey encrypts a session key with the peer's long-term RSA public
// key using OAEP with SHA-256 and MGF1-SHA-256, the padding the companion's
// key-exchange handler expects.
func WrapSessionKey(peer *rsa.PublicKey, key []byte) ([]byte, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, peer, key, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrWrapFail, err)
	}
	return wrapped, nil
}

// UnwrapSessionKey is the inverse of WrapSessionKey. It fails with
// common.ErrUnwrapFail on a padding error or when the recovered key is not
// exactly 32 bytes.
func UnwrapSessionKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnwrapFail, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: unexpected key length %d", common.ErrUnwrapFail, len(key))
	}
	return key, nil
}

// Sha256HexUpper returns the SHA-256 digest of data as 64 uppercase hex
// characters, the canonical form used for content hashes and pins.
func Sha256HexUpper(data []byte) string {
	sum := sha256.Sum256(data)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// CertFingerprint returns the pin string for a TLS leaf certificate:
// "SHA256:" followed by the uppercase hex digest of its DER encoding.
func CertFingerprint(der []byte) string {
	return "SHA256:" + Sha256HexUpper(der)
}

// ParsePublicKey decodes a base64 X.509 SubjectPublicKeyInfo into an RSA
// public key. Unpadded input is accepted; the companion emits base64 with
// padding stripped.
func ParsePublicKey(spkiB64 string) (*rsa.PublicKey, error) {
	der, err := DecodeBase64(spkiB64)
	if err != nil {
		return nil, fmt.Errorf("invalid public key encoding: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA", parsed)
	}
	if pub.N.BitLen() < MinRSABits {
		return nil, fmt.Errorf("public key is %d bits, want at least %d", pub.N.BitLen(), MinRSABits)
	}
	return pub, nil
}

// DecodeBase64 decodes standard-alphabet base64, tolerating stripped
// padding.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}
	return base64.StdEncoding.DecodeString(s)
}
