package graph

import (
	"context"
	"fmt"

	"github.com/99designs/gqlgen/graphql"
)

// DepthLimit is a gqlgen handler extension enforcing the same depth rule
// the gateway applies, for subgraph services that embed gqlgen directly.
type DepthLimit struct {
	MaxDepth int
}

var _ interface {
	graphql.HandlerExtension
	graphql.OperationInterceptor
} = DepthLimit{}

// ExtensionName implements graphql.HandlerExtension.
func (d DepthLimit) ExtensionName() string {
	return "DepthLimit"
}

// Validate implements graphql.HandlerExtension.
func (d DepthLimit) Validate(graphql.ExecutableSchema) error {
	if d.MaxDepth < 1 {
		return fmt.Errorf("DepthLimit: MaxDepth must be >= 1")
	}
	return nil
}

// InterceptOperation implements graphql.OperationInterceptor.
func (d DepthLimit) InterceptOperation(ctx context.Context, next graphql.OperationHandler) graphql.ResponseHandler {
	oc := graphql.GetOperationContext(ctx)
	depth := MeasureDepth(oc.Operation.SelectionSet)
	if depth > d.MaxDepth {
		graphql.AddErrorf(ctx, "query depth %d exceeds maximum allowed depth of %d", depth, d.MaxDepth)
		return func(ctx context.Context) *graphql.Response {
			return graphql.ErrorResponse(ctx, "query depth %d exceeds maximum allowed depth of %d", depth, d.MaxDepth)
		}
	}
	return next(ctx)
}

// ComplexityLimit is the estimator-backed counterpart of DepthLimit. Unlike
// gqlgen's built-in FixedComplexityLimit it needs no per-schema complexity
// root; cost comes from the plural-name heuristic.
type ComplexityLimit struct {
	MaxComplexity int
}

var _ interface {
	graphql.HandlerExtension
	graphql.OperationInterceptor
} = ComplexityLimit{}

// ExtensionName implements graphql.HandlerExtension.
func (c ComplexityLimit) ExtensionName() string {
	return "HeuristicComplexityLimit"
}

// Validate implements graphql.HandlerExtension.
func (c ComplexityLimit) Validate(graphql.ExecutableSchema) error {
	if c.MaxComplexity < 1 {
		return fmt.Errorf("ComplexityLimit: MaxComplexity must be >= 1")
	}
	return nil
}

// InterceptOperation implements graphql.OperationInterceptor.
func (c ComplexityLimit) InterceptOperation(ctx context.Context, next graphql.OperationHandler) graphql.ResponseHandler {
	oc := graphql.GetOperationContext(ctx)
	complexity := EstimateComplexity(oc.Operation.SelectionSet, 0)
	if complexity > c.MaxComplexity {
		graphql.AddErrorf(ctx, "query complexity %d exceeds maximum allowed complexity of %d", complexity, c.MaxComplexity)
		return func(ctx context.Context) *graphql.Response {
			return graphql.ErrorResponse(ctx, "query complexity %d exceeds maximum allowed complexity of %d", complexity, c.MaxComplexity)
		}
	}
	return next(ctx)
}
