// Package cryptox seals short secrets (provider tokens) at rest with AES-GCM.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keyInfo = "tokenkeeper/provider-token/v1"

// ErrOpen is returned when sealed data cannot be authenticated or decoded.
var ErrOpen = errors.New("cryptox: cannot open sealed value")

// DeriveKey stretches a configured passphrase into a 32-byte AES-256 key
// with HKDF-SHA256.
func DeriveKey(passphrase []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("cryptox: empty passphrase")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, passphrase, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("cryptox: derive key: %w", err)
	}
	return key, nil
}

// Sealer encrypts and authenticates values with a single AES-256-GCM key.
// A fresh random nonce is used for every Seal call.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(passphrase []byte) (*Sealer, error) {
	key, err := DeriveKey(passphrase)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	Wipe(key)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Sealer{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext).
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpen, err)
	}

	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrOpen)
	}

	plaintext, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return string(plaintext), nil
}

// Wipe overwrites b with zeros. The cipher keeps its own expanded key, so the
// derived key can be wiped as soon as the block is built.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
