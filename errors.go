package authkit

import (
	"errors"

	"go.pilab.hu/authkit/providers"
	"go.pilab.hu/authkit/session"
)

// Construction-time configuration errors. New refuses to build a toolkit
// from an invalid Config.
var (
	ErrConfigInvalid  = errors.New("invalid configuration")
	ErrSecretRequired = errors.New("session secret is required")
	ErrSecretTooShort = errors.New("session secret must be at least 32 bytes")
)

// Runtime errors surfaced by the login and callback flows.
var (
	// ErrProviderNotFound means no registered provider carries the
	// requested name.
	ErrProviderNotFound = errors.New("provider not found")
	// ErrRateLimited is returned by BeginLogin when the client exceeded
	// the login-initiation budget.
	ErrRateLimited = errors.New("too many login attempts")
	// ErrCSRFMismatch means the state echoed by the provider does not
	// match the one issued at login initiation.
	ErrCSRFMismatch = errors.New("state parameter mismatch")
	// ErrMissingCode means the callback carried no authorization code.
	ErrMissingCode = errors.New("authorization code missing")
)

// ErrSessionInvalid re-exports the session verification failure for callers
// that only import the root package.
var ErrSessionInvalid = session.ErrSessionInvalid

// Provider error shapes, re-exported for the same reason.
type (
	// ProviderFailure is a non-success vendor response during exchange or
	// profile fetch. It carries the provider name, HTTP status and raw
	// body.
	ProviderFailure = providers.Failure
	// TokenExchangeFailure is the specialization raised during the
	// authorization-code exchange.
	TokenExchangeFailure = providers.ExchangeFailure
)
