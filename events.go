package authkit

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/authkit/domain"
)

// EventKind identifies a notification emitted by the toolkit.
type EventKind string

const (
	EventLogin        EventKind = "login"
	EventSuccess      EventKind = "success"
	EventError        EventKind = "error"
	EventLogout       EventKind = "logout"
	EventTokenRefresh EventKind = "token:refresh"
)

// Event is the payload delivered to listeners. Only the fields relevant to
// the kind are set.
type Event struct {
	Kind     EventKind
	Provider string
	User     *domain.AuthUser
	Tokens   *domain.TokenSet
	Err      error
	Request  *domain.RequestContext
}

// Listener receives emitted events. A listener must never be able to
// destabilize the authentication pipeline: panics are recovered and
// discarded at the emission site.
type Listener func(Event)

type subscription struct {
	id   string
	kind EventKind
	once bool
	fn   Listener
}

// emitter is the toolkit-owned subscription list. Fan-out order is
// subscription order; there is no process-wide singleton.
type emitter struct {
	mu   sync.Mutex
	subs []subscription
}

func (e *emitter) on(kind EventKind, once bool, fn Listener) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := uuid.NewString()
	e.subs = append(e.subs, subscription{id: id, kind: kind, once: once, fn: fn})
	return id
}

func (e *emitter) off(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.id == id {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	matched := make([]subscription, 0, len(e.subs))
	kept := e.subs[:0]
	for _, s := range e.subs {
		if s.kind == ev.Kind {
			matched = append(matched, s)
			if s.once {
				continue
			}
		}
		kept = append(kept, s)
	}
	e.subs = kept
	e.mu.Unlock()

	for _, s := range matched {
		deliver(s.fn, ev)
	}
}

func deliver(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("event", string(ev.Kind)).
				Msg("event listener panicked; discarded")
		}
	}()
	fn(ev)
}

// On subscribes fn to events of the given kind and returns a handle for
// Off.
func (a *AuthKit) On(kind EventKind, fn Listener) string {
	return a.emitter.on(kind, false, fn)
}

// Once subscribes fn for a single delivery.
func (a *AuthKit) Once(kind EventKind, fn Listener) string {
	return a.emitter.on(kind, true, fn)
}

// Off removes a subscription by handle; it reports whether one existed.
func (a *AuthKit) Off(id string) bool {
	return a.emitter.off(id)
}

func (a *AuthKit) emit(ev Event) {
	a.emitter.emit(ev)
}
