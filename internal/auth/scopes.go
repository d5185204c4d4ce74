package auth

// Known OAuth scopes used by the run log API.
const (
	ScopeRunsWrite = "runs:write"
	ScopeRunsRead  = "runs:read"
)

// DefaultScopes grants full access to the caller's own runs.
var DefaultScopes = []string{ScopeRunsRead, ScopeRunsWrite}
