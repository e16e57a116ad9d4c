package state

import "sync"

// MemStore is an in-memory TokenStore and CookieStore for tests and
// ephemeral runs.
type MemStore struct {
	mu         sync.RWMutex
	token      string
	set        bool
	cookies    string
	cookiesSet bool
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (m *MemStore) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.set
}

func (m *MemStore) SetToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.set = true
	return nil
}

func (m *MemStore) SessionCookies() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cookies, m.cookiesSet
}

func (m *MemStore) SetSessionCookies(raw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies = raw
	m.cookiesSet = true
	return nil
}
