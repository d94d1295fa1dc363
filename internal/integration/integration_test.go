//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlms/federation-gateway/internal/apq"
	"github.com/lumenlms/federation-gateway/internal/database"
)

const contentJSON = "application/json"

func postGraphQL(t *testing.T, url string, body map[string]any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, contentJSON, bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func persistedExt(hash string) map[string]any {
	return map[string]any{
		"persistedQuery": map[string]any{"version": 1, "sha256Hash": hash},
	}
}

func TestPostgresRegistrySurvivesReconnect(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(ctx, t)
	require.NoError(t, database.RunMigrations(dsn))

	query := "query { me { id } }"
	hash := apq.HashQuery(query)

	pool, err := database.NewPool(ctx, dsn)
	require.NoError(t, err)
	registry := apq.NewPostgresRegistry(pool)
	require.NoError(t, registry.Register(ctx, hash, query))
	pool.Close()

	// A fresh pool simulates a gateway restart.
	pool2, err := database.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool2.Close)

	text, found, err := apq.NewPostgresRegistry(pool2).Lookup(ctx, hash)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, query, text)
}

func TestPostgresRegistryReRegistrationOverwrites(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(ctx, t)
	require.NoError(t, database.RunMigrations(dsn))

	pool, err := database.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	registry := apq.NewPostgresRegistry(pool)

	hash := apq.HashQuery("query { me { id } }")
	require.NoError(t, registry.Register(ctx, hash, "query { me { id } }"))
	require.NoError(t, registry.Register(ctx, hash, "query { me { id name } }"))

	text, found, err := registry.Lookup(ctx, hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "query { me { id name } }", text)
}

func TestGatewayEndToEndPersistedQueryFlow(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(ctx, t)
	require.NoError(t, database.RunMigrations(dsn))

	pool, err := database.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	registry := apq.NewPostgresRegistry(pool)

	var forwarded []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Query string }
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		forwarded = append(forwarded, body.Query)
		w.Header().Set("Content-Type", contentJSON)
		_, _ = w.Write([]byte(`{"data":{"me":{"id":"1"}}}`))
	}))
	t.Cleanup(upstream.Close)

	gateway := startGateway(t, registry, upstream.URL, false)
	query := "query { me { id } }"
	hash := apq.HashQuery(query)

	// Optimistic hash-only request misses the registry.
	resp := postGraphQL(t, gateway.URL, map[string]any{"extensions": persistedExt(hash)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Client retries with the full document, registering it.
	resp = postGraphQL(t, gateway.URL, map[string]any{"query": query, "extensions": persistedExt(hash)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Subsequent hash-only requests resolve from Postgres.
	resp = postGraphQL(t, gateway.URL, map[string]any{"extensions": persistedExt(hash)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, forwarded, 2)
	assert.Equal(t, query, forwarded[1])
}

func TestGatewayRejectsExpensiveQuery(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(ctx, t)
	require.NoError(t, database.RunMigrations(dsn))

	pool, err := database.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("expensive query must not reach the upstream")
	}))
	t.Cleanup(upstream.Close)

	gateway := startGateway(t, apq.NewPostgresRegistry(pool), upstream.URL, false)

	resp := postGraphQL(t, gateway.URL, map[string]any{
		"query": "query { users { posts { comments { author { posts { id } } } } } }",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Errors []struct {
			Message    string
			Extensions map[string]any
		}
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Errors)
	assert.Equal(t, "GRAPHQL_VALIDATION_FAILED", body.Errors[0].Extensions["code"])
}
