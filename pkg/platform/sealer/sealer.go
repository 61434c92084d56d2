// Package sealer encrypts opaque payloads at rest with XChaCha20-Poly1305.
//
// Every Seal call draws a fresh random nonce, which is prefixed to the
// ciphertext. The optional associated data binds a ciphertext to its row
// (for example the record id) so blobs cannot be swapped between rows.
package sealer

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidKey        = errors.New("sealing key must be 32 bytes")
	ErrMalformedSealed   = errors.New("sealed payload is malformed")
	ErrAuthenticationBad = errors.New("sealed payload failed authentication")
)

// Sealer seals and opens payloads.
type Sealer struct {
	key []byte
}

// New builds a Sealer from a raw 32 byte key.
func New(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Sealer{key: k}, nil
}

// NewFromHex builds a Sealer from a hex encoded key.
func NewFromHex(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode sealing key: %w", err)
	}
	return New(key)
}

// Seal encrypts plaintext. A nil or empty plaintext seals to nil.
func (s *Sealer) Seal(plaintext, associated []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, associated), nil
}

// Open decrypts a payload produced by Seal.
func (s *Sealer) Open(sealed, associated []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformedSealed
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, associated)
	if err != nil {
		return nil, ErrAuthenticationBad
	}
	return plaintext, nil
}
