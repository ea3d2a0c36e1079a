package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const sealedPrefix = "enc:"

// TokenCipher seals OAuth tokens before they reach the credentials table.
// A nil *TokenCipher stores tokens as plaintext.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher derives an AES-256-GCM key from secret.
func NewTokenCipher(secret string) (*TokenCipher, error) {
	if secret == "" {
		return nil, nil
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("segtrack token sealing")), key); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// Seal encrypts a token value. Nil stays nil.
func (c *TokenCipher) Seal(v *string) (*string, error) {
	if c == nil || v == nil {
		return v, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("token nonce: %w", err)
	}
	out := c.aead.Seal(nonce, nonce, []byte(*v), nil)
	sealed := sealedPrefix + base64.RawStdEncoding.EncodeToString(out)
	return &sealed, nil
}

// Open reverses Seal. Values without the sealed prefix pass through unchanged.
func (c *TokenCipher) Open(v *string) (*string, error) {
	if v == nil || !strings.HasPrefix(*v, sealedPrefix) {
		return v, nil
	}
	if c == nil {
		return nil, errors.New("sealed token found but no token secret configured")
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(*v, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("decode sealed token: %w", err)
	}
	n := c.aead.NonceSize()
	if len(raw) < n {
		return nil, errors.New("sealed token too short")
	}
	plain, err := c.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed token: %w", err)
	}
	s := string(plain)
	return &s, nil
}
