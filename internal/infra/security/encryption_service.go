// File: internal/infra/security/encryption_service.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/blake3"
)

// sealedPrefix marks stored content produced by Seal. Rows written before
// encryption was enabled carry no prefix and are returned as-is by Open.
const sealedPrefix = "enc:v1:"

// Sealer protects turn content at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

var (
	_ Sealer = (*EncryptionService)(nil)
	_ Sealer = Plain{}
)

// Plain stores content unchanged.
type Plain struct{}

func (Plain) Seal(s string) (string, error) { return s, nil }

func (Plain) Open(s string) (string, error) {
	if strings.HasPrefix(s, sealedPrefix) {
		return "", errors.New("content is encrypted but no key is configured")
	}
	return s, nil
}

// EncryptionService uses AES-256-GCM with a random nonce per message. The key
// is derived from an arbitrary-length secret with BLAKE3.
type EncryptionService struct {
	gcm cipher.AEAD
}

func NewEncryptionService(secret string) (*EncryptionService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("encryption secret is empty")
	}
	key := blake3.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &EncryptionService{gcm: gcm}, nil
}

// NewSealer returns Plain when secret is empty.
func NewSealer(secret string) (Sealer, error) {
	if secret == "" {
		return Plain{}, nil
	}
	return NewEncryptionService(secret)
}

// Seal returns "enc:v1:" + base64(nonce || ciphertext).
func (e *EncryptionService) Seal(plaintext string) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

func (e *EncryptionService) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	ns := e.gcm.NonceSize()
	if len(data) < ns {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ct := data[:ns], data[ns:]
	pt, err := e.gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm open: %w", err)
	}
	return string(pt), nil
}
