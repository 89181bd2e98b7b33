package domain

// RequestContext is the transport-agnostic view of the incoming request that
// the orchestrator and hooks receive. Adapters populate it from their native
// request objects.
type RequestContext struct {
	ClientIP  string
	UserAgent string
	Path      string
	// Query holds the request's query parameters, first value only.
	Query map[string]string
}
