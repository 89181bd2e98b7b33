// Package middleware holds the transport-agnostic route-protection gate:
// authenticate via the session manager, then authorize via role/permission
// matching. Framework adapters translate the gate's decision into their
// native responses.
package middleware

import (
	"net/http"

	"go.pilab.hu/authkit/domain"
	"go.pilab.hu/authkit/session"
)

// Outcome is the gate's per-request decision.
type Outcome int

const (
	// OutcomeAuthorized lets the request through, carrying the verified
	// user.
	OutcomeAuthorized Outcome = iota
	// OutcomeUnauthenticated means no credential or an invalid one. It maps
	// to a 401-class response, never 403, even when role requirements are
	// configured.
	OutcomeUnauthenticated
	// OutcomeForbidden means a valid session lacking the required roles or
	// permissions. Maps to a 403-class response.
	OutcomeForbidden
)

// Fixed response bodies adapters render when no redirect is configured.
const (
	MessageUnauthorized = "Unauthorized"
	MessageForbidden    = "Forbidden"
)

// Options configures one protected route group.
type Options struct {
	// RedirectOnUnauth, when set, turns 401 outcomes into redirects
	// (typical for HTML routes).
	RedirectOnUnauth string
	// RedirectOnForbidden does the same for 403 outcomes.
	RedirectOnForbidden string
	// RequiredRoles grants access when the user holds ANY of them.
	RequiredRoles []string
	// RequiredPermissions grants access when the user holds ANY of them.
	RequiredPermissions []string
}

// Decision is the gate's verdict for one request.
type Decision struct {
	Outcome Outcome
	// User is set only for OutcomeAuthorized, with roles/permissions
	// reattached from the session claims.
	User *domain.AuthUser
	// Redirect is the configured redirect target for the outcome, empty
	// when the adapter should answer with a status response instead.
	Redirect string
}

// Gate evaluates the protection policy for incoming requests.
type Gate struct {
	sessions *session.Manager
	opts     Options
}

// NewGate builds a gate over the given session manager.
func NewGate(sessions *session.Manager, opts Options) *Gate {
	return &Gate{sessions: sessions, opts: opts}
}

// Check extracts the session token from r and evaluates it.
func (g *Gate) Check(r *http.Request) Decision {
	return g.Evaluate(g.sessions.TokenFromRequest(r))
}

// CheckCookieHeader evaluates a raw Cookie header value; adapters whose
// frameworks do not expose an *http.Request use this.
func (g *Gate) CheckCookieHeader(header string) Decision {
	return g.Evaluate(g.sessions.TokenFromCookieHeader(header))
}

// Evaluate runs the authentication and authorization checks for an
// already-extracted token.
func (g *Gate) Evaluate(token string) Decision {
	if token == "" {
		return Decision{Outcome: OutcomeUnauthenticated, Redirect: g.opts.RedirectOnUnauth}
	}

	user, err := g.sessions.VerifyToken(token)
	if err != nil {
		return Decision{Outcome: OutcomeUnauthenticated, Redirect: g.opts.RedirectOnUnauth}
	}

	if len(g.opts.RequiredRoles) > 0 && !intersects(user.Roles, g.opts.RequiredRoles) {
		return Decision{Outcome: OutcomeForbidden, Redirect: g.opts.RedirectOnForbidden}
	}
	if len(g.opts.RequiredPermissions) > 0 && !intersects(user.Permissions, g.opts.RequiredPermissions) {
		return Decision{Outcome: OutcomeForbidden, Redirect: g.opts.RedirectOnForbidden}
	}

	return Decision{Outcome: OutcomeAuthorized, User: user}
}

// intersects reports whether held contains at least one of required
// (OR semantics).
func intersects(held, required []string) bool {
	for _, r := range required {
		for _, h := range held {
			if h == r {
				return true
			}
		}
	}
	return false
}
