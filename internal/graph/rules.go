package graph

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// CodeValidationFailed marks depth and complexity rejections in the
// errors' extensions, matching standard GraphQL validation error shape.
const CodeValidationFailed = "GRAPHQL_VALIDATION_FAILED"

// Rule checks every operation in a parsed document and reports violations
// as user-facing GraphQL errors. A nil or empty list means the document
// passed. Rules never panic and never reject a document they cannot
// measure.
type Rule interface {
	Validate(doc *ast.QueryDocument) gqlerror.List
}

// DepthRule rejects operations nested deeper than MaxDepth.
type DepthRule struct {
	MaxDepth int
}

// Validate implements Rule. Each operation is checked independently; a
// single violating operation fails the whole document.
func (r DepthRule) Validate(doc *ast.QueryDocument) gqlerror.List {
	var errs gqlerror.List
	for _, op := range doc.Operations {
		depth := MeasureDepth(op.SelectionSet)
		if depth > r.MaxDepth {
			err := gqlerror.Errorf("query depth %d exceeds maximum allowed depth of %d", depth, r.MaxDepth)
			err.Extensions = map[string]any{"code": CodeValidationFailed}
			errs = append(errs, err)
		}
	}
	return errs
}

// ComplexityRule rejects operations whose estimated cost exceeds MaxComplexity.
type ComplexityRule struct {
	MaxComplexity int
}

// Validate implements Rule.
func (r ComplexityRule) Validate(doc *ast.QueryDocument) gqlerror.List {
	var errs gqlerror.List
	for _, op := range doc.Operations {
		complexity := EstimateComplexity(op.SelectionSet, 0)
		if complexity > r.MaxComplexity {
			err := gqlerror.Errorf("query complexity %d exceeds maximum allowed complexity of %d", complexity, r.MaxComplexity)
			err.Extensions = map[string]any{"code": CodeValidationFailed}
			errs = append(errs, err)
		}
	}
	return errs
}
