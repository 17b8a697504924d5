// Package credentials holds per-service configuration for third-party APIs,
// with secrets kept encrypted at rest.
package credentials

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a service is unknown or inactive.
var ErrNotFound = errors.New("service not found or inactive")

// ServiceConfig describes one third-party API. Secret is the encrypted blob;
// use Store.Reveal to obtain the plaintext for the duration of a call.
type ServiceConfig struct {
	Name             string `json:"name"`
	BaseURL          string `json:"base_url"`
	Secret           string `json:"-"`
	Active           bool   `json:"active"`
	RateLimitPerHour int    `json:"rate_limit_per_hour"`
}

// String never includes the secret.
func (s ServiceConfig) String() string {
	return fmt.Sprintf("%s(%s active=%t)", s.Name, s.BaseURL, s.Active)
}

// Decrypter opens encrypted secrets. *secret.Cipher satisfies it.
type Decrypter interface {
	Decrypt(encoded string) (string, bool)
}

// Encrypter seals plaintext secrets. *secret.Cipher satisfies it.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Cipher is both halves.
type Cipher interface {
	Encrypter
	Decrypter
}

// Store is the read side used by the gateway.
type Store interface {
	// GetActive returns the configuration of an active service or ErrNotFound.
	GetActive(ctx context.Context, name string) (*ServiceConfig, error)
	// Reveal decrypts the service secret. It returns false for a missing or
	// undecryptable secret and never returns an error.
	Reveal(cfg *ServiceConfig) (string, bool)
}

// Provisioner is the write side used by out-of-band setup.
type Provisioner interface {
	// Upsert stores the service, encrypting plaintextSecret first. It reports
	// whether the row was created or its secret changed.
	Upsert(ctx context.Context, svc ServiceConfig, plaintextSecret string) (changed bool, err error)
}

// revealWith is shared by the Store implementations.
func revealWith(d Decrypter, cfg *ServiceConfig) (string, bool) {
	if cfg == nil || d == nil {
		return "", false
	}
	plain, ok := d.Decrypt(cfg.Secret)
	if !ok || plain == "" {
		return "", false
	}
	return plain, true
}
