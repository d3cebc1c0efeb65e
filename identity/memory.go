package identity

import (
	"context"
	"sync"

	"github.com/ritera/royalty-engine/royalty"
)

// MemoryCredentials is a CredentialStore for tests and development.
type MemoryCredentials struct {
	mu      sync.RWMutex
	byID    map[royalty.UserID]Credential
	byEmail map[string]royalty.UserID
}

func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{
		byID:    make(map[royalty.UserID]Credential),
		byEmail: make(map[string]royalty.UserID),
	}
}

func (m *MemoryCredentials) SaveCredential(_ context.Context, c Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[c.Email]; ok {
		return ErrEmailTaken
	}
	m.byID[c.UserID] = c
	m.byEmail[c.Email] = c.UserID
	return nil
}

func (m *MemoryCredentials) GetCredentialByEmail(_ context.Context, email string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, nil
	}
	c := m.byID[id]
	return &c, nil
}

func (m *MemoryCredentials) DeleteCredential(_ context.Context, id royalty.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byID[id]; ok {
		delete(m.byEmail, c.Email)
		delete(m.byID, id)
	}
	return nil
}
