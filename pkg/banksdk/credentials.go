package banksdk

import (
	"context"
	"fmt"
	"sync"
)

// CredentialKind names one of the two credential slots.
type CredentialKind string

const (
	KindAccess  CredentialKind = "access"
	KindRefresh CredentialKind = "refresh"
)

// Kinds lists every slot, in the order stores persist them.
func Kinds() []CredentialKind {
	return []CredentialKind{KindAccess, KindRefresh}
}

func (k CredentialKind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// CredentialStore persists the access and refresh credentials.
//
// Get returns "" for an absent slot. Set with an empty value clears the
// slot. SetPair replaces both slots so no reader observes the new access
// credential next to the old refresh credential. Clear with no kinds clears
// both slots and is idempotent. Implementations must be safe for concurrent
// use.
type CredentialStore interface {
	Get(ctx context.Context, kind CredentialKind) (string, error)
	Set(ctx context.Context, kind CredentialKind, value string) error
	SetPair(ctx context.Context, access, refresh string) error
	Clear(ctx context.Context, kinds ...CredentialKind) error
}

// MemoryStore is a CredentialStore that lives as long as the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[CredentialKind]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[CredentialKind]string, 2)}
}

func (m *MemoryStore) Get(_ context.Context, kind CredentialKind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown credential kind %q", kind)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[kind], nil
}

func (m *MemoryStore) Set(_ context.Context, kind CredentialKind, value string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown credential kind %q", kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if value == "" {
		delete(m.values, kind)
		return nil
	}
	m.values[kind] = value
	return nil
}

func (m *MemoryStore) SetPair(_ context.Context, access, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for kind, value := range map[CredentialKind]string{KindAccess: access, KindRefresh: refresh} {
		if value == "" {
			delete(m.values, kind)
		} else {
			m.values[kind] = value
		}
	}
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, kinds ...CredentialKind) error {
	if len(kinds) == 0 {
		kinds = Kinds()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, kind := range kinds {
		delete(m.values, kind)
	}
	return nil
}
