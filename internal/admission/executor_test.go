package admission

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPExecutorForwardsEffectiveQuery(t *testing.T) {
	var got Request
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"me":null}}`))
	}))
	defer upstream.Close()

	exec := NewHTTPExecutor(upstream.URL, testLogger())
	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	req.Header.Set("Authorization", "Bearer token123")
	w := httptest.NewRecorder()

	exec.Execute(w, req, &Request{
		Query:      "query { me { id } }",
		Extensions: &Extensions{PersistedQuery: &PersistedQuery{Version: 1, Sha256Hash: "abc"}},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"me":null}}`, w.Body.String())
	assert.Equal(t, "query { me { id } }", got.Query)
	assert.Nil(t, got.Extensions, "persistedQuery extension must not reach the upstream")
	assert.Equal(t, "Bearer token123", gotAuth)
}

func TestHTTPExecutorUpstreamUnreachable(t *testing.T) {
	exec := NewHTTPExecutor("http://127.0.0.1:1", testLogger())
	w := httptest.NewRecorder()

	exec.Execute(w, httptest.NewRequest(http.MethodPost, "/graphql", nil), &Request{Query: "query { me { id } }"})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, CodeUpstreamUnavailable, errorCode(t, w))
}

func TestHTTPExecutorPreservesUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"message":"boom"}]}`))
	}))
	defer upstream.Close()

	exec := NewHTTPExecutor(upstream.URL, testLogger())
	w := httptest.NewRecorder()
	exec.Execute(w, httptest.NewRequest(http.MethodPost, "/graphql", nil), &Request{Query: "{ me }"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"errors":[{"message":"boom"}]}`, w.Body.String())
}
