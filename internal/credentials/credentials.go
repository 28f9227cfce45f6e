// Package credentials encrypts and decrypts stored account passwords.
//
// Ciphertexts are base64(nonce || ciphertext || tag) under AES-256-GCM with
// a 16-byte nonce. The key is derived once from the configured secret with
// PBKDF2-HMAC-SHA256 over a fixed salt, so ciphertexts written by earlier
// deployments with the same secret stay readable.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jmylchreest/kleinsync/internal/domain"
)

const (
	keyLength  = 32
	nonceSize  = 16
	tagSize    = 16
	iterations = 100000
	saltSeed   = "kleinanzeigen-salt"
)

// ErrEmptySecret is returned by New when no secret is configured.
var ErrEmptySecret = errors.New("encryption secret is empty")

// Cipher holds the derived key. It is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the key from secret.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	salt := sha256.Sum256([]byte(saltSeed))
	key := pbkdf2.Key([]byte(secret), salt[:], iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any malformed, truncated
// or tampered input fails with domain.ErrDecryptionFailed.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", domain.ErrDecryptionFailed)
	}
	if len(raw) < nonceSize+tagSize {
		return "", fmt.Errorf("%w: ciphertext too short", domain.ErrDecryptionFailed)
	}

	plain, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", domain.ErrDecryptionFailed)
	}
	return string(plain), nil
}

// Verify reports whether ciphertext decrypts under this key.
func (c *Cipher) Verify(ciphertext string) bool {
	_, err := c.Decrypt(ciphertext)
	return err == nil
}
