package admission

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Executor receives operations that passed every admission gate. The
// federation engine behind it is an external collaborator; the default
// implementation simply forwards over HTTP.
type Executor interface {
	Execute(w http.ResponseWriter, r *http.Request, req *Request)
}

// HTTPExecutor forwards admitted operations to the upstream federation
// executor and streams the response back unchanged.
type HTTPExecutor struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPExecutor creates an executor posting to the given GraphQL endpoint.
func NewHTTPExecutor(url string, logger *slog.Logger) *HTTPExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPExecutor{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Execute implements Executor. The forwarded body carries the effective
// query text; the persistedQuery extension is stripped because the
// substitution already happened at this layer.
func (e *HTTPExecutor) Execute(w http.ResponseWriter, r *http.Request, req *Request) {
	forward := *req
	forward.Extensions = nil

	body, err := json.Marshal(&forward)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to encode upstream request", nil)
		return
	}

	upstream, err := http.NewRequestWithContext(r.Context(), http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to build upstream request", nil)
		return
	}
	upstream.Header.Set("Content-Type", "application/json")
	if auth := r.Header.Get("Authorization"); auth != "" {
		upstream.Header.Set("Authorization", auth)
	}
	if reqID := r.Header.Get("X-Request-Id"); reqID != "" {
		upstream.Header.Set("X-Request-Id", reqID)
	}

	resp, err := e.client.Do(upstream)
	if err != nil {
		e.logger.Error("upstream executor unreachable", "error", err, "url", e.url)
		writeError(w, http.StatusBadGateway, CodeUpstreamUnavailable, "federation executor unavailable", nil)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		e.logger.Error("stream upstream response", "error", err)
	}
}
