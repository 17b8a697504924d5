// Package secret encrypts and decrypts third-party credentials at rest.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 work factor used to derive the AES key.
	Iterations = 100_000
	keyLen     = 32
	saltLen    = 16
)

// ErrEmptyMasterSecret is returned when no master secret is configured.
var ErrEmptyMasterSecret = errors.New("master secret is empty")

// Cipher seals credentials with AES-256-GCM under a key derived once from the
// process master secret. It is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the encryption key from master and returns a ready Cipher.
// The salt is the first 16 bytes of master padded with '0'.
func New(master string) (*Cipher, error) {
	if master == "" {
		return nil, ErrEmptyMasterSecret
	}
	key := pbkdf2.Key([]byte(master), salt(master), Iterations, keyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func salt(master string) []byte {
	s := []byte(master)
	if len(s) > saltLen {
		s = s[:saltLen]
	}
	out := make([]byte, saltLen)
	copy(out, s)
	for i := len(s); i < saltLen; i++ {
		out[i] = '0'
	}
	return out
}

// Encrypt seals plaintext and returns it as base64url text. An empty
// plaintext yields an empty string, which stands for "no value".
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. It never fails loudly: empty,
// malformed or tampered input returns ("", false).
func (c *Cipher) Decrypt(encoded string) (string, bool) {
	if encoded == "" {
		return "", false
	}
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", false
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", false
	}
	return string(plain), true
}
