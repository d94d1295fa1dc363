//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lumenlms/federation-gateway/internal/admission"
	"github.com/lumenlms/federation-gateway/internal/apq"
	"github.com/lumenlms/federation-gateway/internal/auth"
	"github.com/lumenlms/federation-gateway/internal/observability"
	"github.com/lumenlms/federation-gateway/internal/ratelimit"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()
	pg, err := tcpostgres.Run(ctx, "postgres:16",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "start postgres")
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

// startGateway serves the admission pipeline over HTTP against the given
// registry, forwarding admitted operations to upstreamURL.
func startGateway(t *testing.T, registry apq.Registry, upstreamURL string, persistedOnly bool) *httptest.Server {
	t.Helper()
	m := observability.NewTestMetrics()
	limiter := ratelimit.New(1000, time.Minute, 10000, time.Minute, m, discardLogger())
	pipeline := admission.NewPipeline(admission.Config{
		Registry:             registry,
		Limiter:              limiter,
		Identity:             auth.NewExtractor(nil),
		Executor:             admission.NewHTTPExecutor(upstreamURL, discardLogger()),
		MaxDepth:             10,
		MaxComplexity:        1000,
		PersistedQueriesOnly: persistedOnly,
		Logger:               discardLogger(),
		Metrics:              m,
	})
	srv := httptest.NewServer(pipeline)
	t.Cleanup(srv.Close)
	return srv
}
