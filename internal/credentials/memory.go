package credentials

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps service configuration in process memory.
type MemoryStore struct {
	cipher Cipher

	mu       sync.RWMutex
	services map[string]ServiceConfig
}

// NewMemoryStore creates an empty store using c for secrets.
func NewMemoryStore(c Cipher) *MemoryStore {
	return &MemoryStore{
		cipher:   c,
		services: make(map[string]ServiceConfig),
	}
}

// GetActive implements Store
func (m *MemoryStore) GetActive(_ context.Context, name string) (*ServiceConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	svc, ok := m.services[name]
	if !ok || !svc.Active {
		return nil, ErrNotFound
	}
	return &svc, nil
}

// Reveal implements Store
func (m *MemoryStore) Reveal(cfg *ServiceConfig) (string, bool) {
	return revealWith(m.cipher, cfg)
}

// Upsert implements Provisioner
func (m *MemoryStore) Upsert(_ context.Context, svc ServiceConfig, plaintextSecret string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, found := m.services[svc.Name]
	if found {
		if current, ok := m.cipher.Decrypt(existing.Secret); ok && current == plaintextSecret {
			existing.BaseURL = svc.BaseURL
			existing.Active = svc.Active
			existing.RateLimitPerHour = svc.RateLimitPerHour
			m.services[svc.Name] = existing
			return false, nil
		}
	}

	enc, err := m.cipher.Encrypt(plaintextSecret)
	if err != nil {
		return false, fmt.Errorf("encrypt secret for %s: %w", svc.Name, err)
	}
	svc.Secret = enc
	m.services[svc.Name] = svc
	return true, nil
}

// Put stores svc as is, with Secret taken to be already encrypted.
func (m *MemoryStore) Put(svc ServiceConfig) {
	m.mu.Lock()
	m.services[svc.Name] = svc
	m.mu.Unlock()
}
