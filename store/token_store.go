// Package store defines the pluggable key-value contracts the toolkit
// persists OAuth credentials and account links through, together with the
// in-memory reference implementations. Alternative backends (see the redis
// subpackage) are drop-in replacements for the same interfaces.
package store

import (
	"context"
	"sync"
	"time"

	"go.pilab.hu/authkit/domain"
)

// TokenStore holds TokenSets keyed by "{provider}:{userID}"
// (domain.TokenKey). Set replaces the whole entry; partial updates do not
// exist in the contract.
type TokenStore interface {
	Set(ctx context.Context, key string, tokens *domain.TokenSet) error
	// Get returns (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) (*domain.TokenSet, error)
	Has(ctx context.Context, key string) (bool, error)
	// Delete reports whether an entry existed.
	Delete(ctx context.Context, key string) (bool, error)
	// IsExpired is true for absent keys and for entries whose expiry has
	// passed. Entries without an expiry never expire.
	IsExpired(ctx context.Context, key string) (bool, error)
	Size(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

type tokenEntry struct {
	tokens   domain.TokenSet
	storedAt time.Time
}

// MemoryTokenStore is the default TokenStore: a mutex-guarded map with no
// eviction. Operators needing durability or TTL eviction plug in their own
// implementation.
type MemoryTokenStore struct {
	mu      sync.RWMutex
	entries map[string]tokenEntry

	now func() time.Time
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		entries: make(map[string]tokenEntry),
		now:     time.Now,
	}
}

func (s *MemoryTokenStore) Set(_ context.Context, key string, tokens *domain.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = tokenEntry{tokens: *tokens, storedAt: s.now()}
	return nil
}

func (s *MemoryTokenStore) Get(_ context.Context, key string) (*domain.TokenSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	tokens := entry.tokens
	return &tokens, nil
}

func (s *MemoryTokenStore) Has(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok, nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok, nil
}

func (s *MemoryTokenStore) IsExpired(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return true, nil
	}
	return entry.tokens.Expired(s.now()), nil
}

func (s *MemoryTokenStore) Size(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryTokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]tokenEntry)
	return nil
}

var _ TokenStore = (*MemoryTokenStore)(nil)
