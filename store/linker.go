package store

import (
	"context"
	"sync"
)

// AccountLinker maintains the bidirectional mapping between an application
// user and its provider identities: at most one providerID per
// (appUserID, provider) pair, and the reverse index always consistent with
// the forward map.
type AccountLinker interface {
	Link(ctx context.Context, appUserID, provider, providerID string) error
	// Unlink reports whether a link existed. Removing a user's last link
	// removes the user's entry entirely.
	Unlink(ctx context.Context, appUserID, provider string) (bool, error)
	// FindByProvider returns "" when no app user owns the identity.
	FindByProvider(ctx context.Context, provider, providerID string) (string, error)
	// LinkedAccounts returns an empty map, never nil, when the user has no
	// links.
	LinkedAccounts(ctx context.Context, appUserID string) (map[string]string, error)
	IsLinked(ctx context.Context, appUserID, provider string) (bool, error)
}

type refKey struct {
	provider   string
	providerID string
}

// MemoryLinker is the default in-memory AccountLinker. Forward map and
// reverse index are mutated under one lock, so they can never drift apart.
type MemoryLinker struct {
	mu      sync.RWMutex
	forward map[string]map[string]string // appUserID -> provider -> providerID
	reverse map[refKey]string            // (provider, providerID) -> appUserID
}

// NewMemoryLinker creates an empty in-memory account linker.
func NewMemoryLinker() *MemoryLinker {
	return &MemoryLinker{
		forward: make(map[string]map[string]string),
		reverse: make(map[refKey]string),
	}
}

func (l *MemoryLinker) Link(_ context.Context, appUserID, provider, providerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop a stale reverse entry when re-linking the pair to a new
	// provider identity.
	if links, ok := l.forward[appUserID]; ok {
		if old, ok := links[provider]; ok && old != providerID {
			delete(l.reverse, refKey{provider, old})
		}
	}
	// An identity can belong to only one app user; unhook a previous owner.
	if owner, ok := l.reverse[refKey{provider, providerID}]; ok && owner != appUserID {
		l.removeLocked(owner, provider)
	}

	if l.forward[appUserID] == nil {
		l.forward[appUserID] = make(map[string]string)
	}
	l.forward[appUserID][provider] = providerID
	l.reverse[refKey{provider, providerID}] = appUserID
	return nil
}

func (l *MemoryLinker) Unlink(_ context.Context, appUserID, provider string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.removeLocked(appUserID, provider), nil
}

func (l *MemoryLinker) removeLocked(appUserID, provider string) bool {
	links, ok := l.forward[appUserID]
	if !ok {
		return false
	}
	providerID, ok := links[provider]
	if !ok {
		return false
	}
	delete(links, provider)
	delete(l.reverse, refKey{provider, providerID})
	if len(links) == 0 {
		delete(l.forward, appUserID)
	}
	return true
}

func (l *MemoryLinker) FindByProvider(_ context.Context, provider, providerID string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reverse[refKey{provider, providerID}], nil
}

func (l *MemoryLinker) LinkedAccounts(_ context.Context, appUserID string) (map[string]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(l.forward[appUserID]))
	for provider, providerID := range l.forward[appUserID] {
		out[provider] = providerID
	}
	return out, nil
}

func (l *MemoryLinker) IsLinked(_ context.Context, appUserID, provider string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.forward[appUserID][provider]
	return ok, nil
}

var _ AccountLinker = (*MemoryLinker)(nil)
