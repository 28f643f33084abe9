package keyring

import "sync"

// MemoryStore is an in-memory SecretStore used in tests and on platforms
// without a credential manager.
type MemoryStore struct {
	mu        sync.RWMutex
	secrets   map[string]string
	available bool
}

// NewMemoryStore returns an empty, available in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]string), available: true}
}

// SetAvailable toggles what IsAvailable reports, simulating a platform
// without a credential store.
func (m *MemoryStore) SetAvailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = v
}

func (m *MemoryStore) key(service, account string) string {
	return service + "\x00" + account
}

func (m *MemoryStore) Store(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[m.key(service, account)] = secret
	return nil
}

func (m *MemoryStore) Get(service, account string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	secret, ok := m.secrets[m.key(service, account)]
	return secret, ok, nil
}

func (m *MemoryStore) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, m.key(service, account))
	return nil
}

func (m *MemoryStore) IsAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}
