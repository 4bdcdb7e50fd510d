// Package seal provides authenticated encryption for cached payloads.
//
// A Sealer binds each ciphertext to the cache key it was stored under: the
// associated bytes are fed to the AEAD as additional data, so a ciphertext
// moved to a different key fails authentication on Open.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrAuthentication is returned by Open when a ciphertext fails
// authentication or is too short to contain a nonce. Callers should treat
// the record as absent and re-fetch.
var ErrAuthentication = errors.New("seal: ciphertext authentication failed")

// Sealer is the cipher boundary around stored bytes. Implementations must be
// safe for concurrent use.
type Sealer interface {
	// Seal encrypts plaintext, binding the result to the associated bytes.
	Seal(associated, plaintext []byte) ([]byte, error)
	// Open decrypts a ciphertext produced by Seal with the same associated
	// bytes. It returns ErrAuthentication if the ciphertext was tampered
	// with, truncated, or sealed under different associated bytes.
	Open(associated, ciphertext []byte) ([]byte, error)
}

// aeadSealer wraps any cipher.AEAD with a random per-call nonce prepended to
// the ciphertext. The algorithm is chosen at construction time; call sites
// only ever see the Sealer interface.
type aeadSealer struct {
	aead cipher.AEAD
	name string
}

// NewAESGCM creates a Sealer using AES-256-GCM. The key must be 32 bytes.
func NewAESGCM(key []byte) (Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("seal: AES-256-GCM requires a 32-byte key, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("seal: failed to create GCM: %w", err)
	}
	return &aeadSealer{aead: aead, name: "aes-256-gcm"}, nil
}

// NewChaCha20Poly1305 creates a Sealer using ChaCha20-Poly1305. The key must
// be 32 bytes.
func NewChaCha20Poly1305(key []byte) (Sealer, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("seal: failed to create ChaCha20-Poly1305: %w", err)
	}
	return &aeadSealer{aead: aead, name: "chacha20-poly1305"}, nil
}

// Seal encrypts plaintext under a fresh random nonce. The nonce is prepended
// to the returned ciphertext so Open needs no extra state.
func (s *aeadSealer) Seal(associated, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("seal: failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, associated), nil
}

// Open splits off the nonce and decrypts. Any AEAD failure is reported as
// ErrAuthentication; the underlying reason is deliberately not exposed.
func (s *aeadSealer) Open(associated, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < s.aead.NonceSize() {
		return nil, ErrAuthentication
	}
	nonce, sealed := ciphertext[:s.aead.NonceSize()], ciphertext[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, sealed, associated)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// String reports the algorithm name, for logging.
func (s *aeadSealer) String() string {
	return s.name
}
