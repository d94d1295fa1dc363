package admission

import (
	"encoding/json"
	"net/http"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Stable error codes surfaced in the errors' extensions so clients can
// branch on rejection cause without parsing messages.
const (
	CodePersistedQueryNotFound = "PERSISTED_QUERY_NOT_FOUND"
	CodePersistedQueriesOnly   = "PERSISTED_QUERIES_REQUIRED"
	CodePersistedQueryMismatch = "PERSISTED_QUERY_HASH_MISMATCH"
	CodeBadRequest             = "BAD_REQUEST"
	CodeParseFailed            = "GRAPHQL_PARSE_FAILED"
	CodeRateLimited            = "RATE_LIMITED"
	CodeInternal               = "INTERNAL_SERVER_ERROR"
	CodeServerBusy             = "SERVER_BUSY"
	CodeUpstreamUnavailable    = "UPSTREAM_UNAVAILABLE"
	CodeRegistryUnavailable    = "PERSISTED_QUERY_STORE_UNAVAILABLE"
)

type errorBody struct {
	Errors []errorEntry `json:"errors"`
}

type errorEntry struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// writeError renders one structured rejection. Extra keys are merged into
// the error's extensions alongside the code.
func writeError(w http.ResponseWriter, status int, code, message string, extra map[string]any) {
	ext := map[string]any{"code": code}
	for k, v := range extra {
		ext[k] = v
	}
	writeBody(w, status, errorBody{Errors: []errorEntry{{Message: message, Extensions: ext}}})
}

// writeGQLErrors renders validation failures, preserving each error's own
// extensions.
func writeGQLErrors(w http.ResponseWriter, status int, errs gqlerror.List) {
	body := errorBody{Errors: make([]errorEntry, 0, len(errs))}
	for _, e := range errs {
		body.Errors = append(body.Errors, errorEntry{Message: e.Message, Extensions: e.Extensions})
	}
	writeBody(w, status, body)
}

func writeBody(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
