// Package admission is the request gate in front of the federation
// executor. Every GraphQL POST passes four checks in order: persisted-query
// resolution, parseability, depth/complexity validation, and the rate-limit
// verdict. Only fully admitted operations reach the upstream.
package admission

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/lumenlms/federation-gateway/internal/apq"
	"github.com/lumenlms/federation-gateway/internal/audit"
	"github.com/lumenlms/federation-gateway/internal/auth"
	"github.com/lumenlms/federation-gateway/internal/graph"
	"github.com/lumenlms/federation-gateway/internal/observability"
	"github.com/lumenlms/federation-gateway/internal/ratelimit"
)

const maxBodyBytes = 1 << 20

// Auditor records admission decisions. Satisfied by *audit.Publisher.
type Auditor interface {
	Publish(e audit.Event)
}

// Config wires the pipeline's collaborators.
type Config struct {
	Registry             apq.Registry
	Limiter              *ratelimit.Limiter
	Identity             *auth.Extractor
	Executor             Executor
	Audit                Auditor
	MaxDepth             int
	MaxComplexity        int
	PersistedQueriesOnly bool
	Logger               *slog.Logger
	Metrics              *observability.Metrics
}

// Pipeline serves /graphql.
type Pipeline struct {
	cfg   Config
	rules []graph.Rule
}

// NewPipeline builds the admission handler from its collaborators.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		cfg: cfg,
		rules: []graph.Rule{
			graph.DepthRule{MaxDepth: cfg.MaxDepth},
			graph.ComplexityRule{MaxComplexity: cfg.MaxComplexity},
		},
	}
}

// ServeHTTP runs the admission gates. Rate-limit state is charged when the
// request is received, before any other gate: a caller cannot dodge its
// budget by sending requests that fail validation.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			p.cfg.Logger.Error("admission pipeline panic", "panic", rec)
			writeError(w, http.StatusServiceUnavailable, CodeInternal, "admission check failed", nil)
		}
	}()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "only POST is supported", nil)
		return
	}

	var req Request
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body", nil)
		return
	}

	identity := p.cfg.Identity.FromRequest(r)
	key := identity.RateLimitKey()
	verdict := p.cfg.Limiter.Check(key)

	// Gate 1: persisted-query resolution.
	if !p.resolvePersisted(w, r, &req, identity, key) {
		return
	}

	// Gate 2: parse.
	doc, err := parser.ParseQuery(&ast.Source{Input: req.Query})
	if err != nil {
		p.reject(w, identity, key, req.OperationName, http.StatusBadRequest, CodeParseFailed, err.Error())
		return
	}

	// Gate 3: depth and complexity.
	p.observeQueryShape(doc)
	for _, rule := range p.rules {
		if errs := rule.Validate(doc); len(errs) > 0 {
			p.audit(identity, key, req.OperationName, audit.DecisionRejected, graph.CodeValidationFailed)
			p.decide(audit.DecisionRejected, graph.CodeValidationFailed)
			writeGQLErrors(w, http.StatusBadRequest, errs)
			return
		}
	}

	// Gate 4: rate-limit verdict, charged at receipt.
	if !verdict.Allowed {
		p.audit(identity, key, req.OperationName, audit.DecisionRejected, CodeRateLimited)
		p.decide(audit.DecisionRejected, CodeRateLimited)
		writeError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", map[string]any{
			"remaining": verdict.Remaining,
			"resetAt":   verdict.ResetAt,
		})
		return
	}

	p.decide(audit.DecisionAdmitted, "")
	p.cfg.Executor.Execute(w, r, &req)
}

// resolvePersisted applies the Automatic Persisted Queries protocol and
// leaves req.Query holding the effective document. Returns false when a
// response has already been written.
func (p *Pipeline) resolvePersisted(w http.ResponseWriter, r *http.Request, req *Request, identity auth.Identity, key string) bool {
	hash := req.persistedHash()

	switch {
	case hash != "" && req.Query != "":
		// Registration: the supplied hash must match the document.
		if apq.HashQuery(req.Query) != hash {
			p.reject(w, identity, key, req.OperationName, http.StatusBadRequest, CodePersistedQueryMismatch,
				"provided sha256Hash does not match query document")
			return false
		}
		if err := p.cfg.Registry.Register(r.Context(), hash, req.Query); err != nil {
			p.cfg.Logger.Error("persisted-query registration failed", "error", err)
			p.reject(w, identity, key, req.OperationName, http.StatusServiceUnavailable, CodeRegistryUnavailable,
				"persisted query store unavailable")
			return false
		}
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.APQRegistrations.Inc()
		}
		return true

	case hash != "":
		text, found, err := p.cfg.Registry.Lookup(r.Context(), hash)
		if err != nil {
			p.cfg.Logger.Error("persisted-query lookup failed", "error", err)
			p.reject(w, identity, key, req.OperationName, http.StatusServiceUnavailable, CodeRegistryUnavailable,
				"persisted query store unavailable")
			return false
		}
		if p.cfg.Metrics != nil {
			result := "hit"
			if !found {
				result = "miss"
			}
			p.cfg.Metrics.APQLookups.WithLabelValues(result).Inc()
		}
		if !found {
			p.reject(w, identity, key, req.OperationName, http.StatusBadRequest, CodePersistedQueryNotFound,
				"PersistedQueryNotFound: hash not registered. Retry with full query document.")
			return false
		}
		req.Query = text
		return true

	case req.Query != "":
		if p.cfg.PersistedQueriesOnly {
			p.reject(w, identity, key, req.OperationName, http.StatusBadRequest, CodePersistedQueriesOnly,
				"Only persisted queries are accepted in this environment.")
			return false
		}
		return true

	default:
		p.reject(w, identity, key, req.OperationName, http.StatusBadRequest, CodeBadRequest,
			"request must include a query or a persistedQuery extension")
		return false
	}
}

func (p *Pipeline) observeQueryShape(doc *ast.QueryDocument) {
	if p.cfg.Metrics == nil {
		return
	}
	for _, op := range doc.Operations {
		report := graph.MeasureOperation(op)
		p.cfg.Metrics.QueryDepth.Observe(float64(report.Depth))
		p.cfg.Metrics.QueryComplexity.Observe(float64(report.Complexity))
	}
}

// reject writes a single structured error and records the decision.
func (p *Pipeline) reject(w http.ResponseWriter, identity auth.Identity, key, operation string, status int, code, message string) {
	p.audit(identity, key, operation, audit.DecisionRejected, code)
	p.decide(audit.DecisionRejected, code)
	writeError(w, status, code, message, nil)
}

func (p *Pipeline) decide(decision, reason string) {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.AdmissionDecisions.WithLabelValues(decision, reason).Inc()
	}
}

// audit records rejections only. Admitted traffic is visible through
// metrics and upstream logs; the audit stream exists for security review
// of what the gateway turned away.
func (p *Pipeline) audit(identity auth.Identity, key, operation, decision, code string) {
	if p.cfg.Audit == nil || decision != audit.DecisionRejected {
		return
	}
	p.cfg.Audit.Publish(audit.Event{
		ID:        uuid.NewString(),
		Time:      time.Now().UTC(),
		TenantID:  identity.TenantID,
		Key:       key,
		Decision:  decision,
		Code:      code,
		Operation: operation,
	})
}
