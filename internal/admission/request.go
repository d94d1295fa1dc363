package admission

// Request is the standard GraphQL-over-HTTP POST body, including the
// Automatic Persisted Queries extension.
type Request struct {
	Query         string         `json:"query,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    *Extensions    `json:"extensions,omitempty"`
}

// Extensions carries the protocol extensions the admission layer inspects.
type Extensions struct {
	PersistedQuery *PersistedQuery `json:"persistedQuery,omitempty"`
}

// PersistedQuery is the APQ extension payload.
type PersistedQuery struct {
	Version    int    `json:"version,omitempty"`
	Sha256Hash string `json:"sha256Hash"`
}

// persistedHash returns the supplied APQ hash, or "" when absent.
func (r *Request) persistedHash() string {
	if r.Extensions == nil || r.Extensions.PersistedQuery == nil {
		return ""
	}
	return r.Extensions.PersistedQuery.Sha256Hash
}
