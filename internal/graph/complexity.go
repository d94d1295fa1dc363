package graph

import (
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

// Cost model constants. Field costs are schema-unaware by design: the
// admission layer runs before full validation and has no type information,
// so list-returning fields are identified by a plural-name heuristic.
const (
	baseFieldCost  = 1
	listMultiplier = 10

	// maxEstimatorDepth bounds the estimator's own recursion so a
	// pathological AST cannot turn the estimator into a DoS vector.
	// Subtrees below this depth are costed flat.
	maxEstimatorDepth = 20
)

// Report holds the admission-control figures for one operation. Depth and
// complexity are independent: an operation can fail one limit without
// failing the other.
type Report struct {
	Depth      int
	Complexity int
}

// MeasureOperation computes both figures for one operation definition.
func MeasureOperation(op *ast.OperationDefinition) Report {
	return Report{
		Depth:      MeasureDepth(op.SelectionSet),
		Complexity: EstimateComplexity(op.SelectionSet, 0),
	}
}

// MeasureDepth computes the deepest nesting level in a selection set.
// Depth is the longest selection-set nesting chain, not total field count:
// a flat query such as { me } measures 0, and each additional level of
// field nesting adds 1. Fragments are transparent — their selections sit at
// the same response depth as the spread.
func MeasureDepth(selSet ast.SelectionSet) int {
	return measureDepth(selSet, 0)
}

func measureDepth(selSet ast.SelectionSet, current int) int {
	// A node with no further selections leaves the depth unchanged.
	maxDepth := current
	for _, sel := range selSet {
		var d int
		switch s := sel.(type) {
		case *ast.Field:
			if len(s.SelectionSet) == 0 {
				d = current
			} else {
				d = measureDepth(s.SelectionSet, current+1)
			}
		case *ast.InlineFragment:
			d = measureDepth(s.SelectionSet, current)
		case *ast.FragmentSpread:
			if s.Definition != nil {
				d = measureDepth(s.Definition.SelectionSet, current)
			}
		}
		if d > maxDepth {
			maxDepth = d
		}
	}
	return maxDepth
}

// EstimateComplexity computes the weighted field-cost total of a selection
// set at the given nesting depth.
//
// Every field carries a base cost of 1. A leaf field with a list-like name
// costs 10 instead. An internal node costs 1 plus its subtree, and when the
// node itself is list-like the entire subtree cost is multiplied by 10
// first. Nested list fields therefore compound multiplicatively, which
// approximates worst-case cardinality amplification of queries such as
// users { posts { comments { ... } } }.
func EstimateComplexity(selSet ast.SelectionSet, depth int) int {
	if depth > maxEstimatorDepth {
		return baseFieldCost
	}

	total := 0
	for _, sel := range selSet {
		switch s := sel.(type) {
		case *ast.Field:
			total += fieldCost(s, depth)
		case *ast.InlineFragment:
			total += EstimateComplexity(s.SelectionSet, depth)
		case *ast.FragmentSpread:
			if s.Definition != nil {
				total += EstimateComplexity(s.Definition.SelectionSet, depth)
			}
		}
	}
	return total
}

func fieldCost(f *ast.Field, depth int) int {
	if len(f.SelectionSet) == 0 {
		if isListField(f.Name) {
			return baseFieldCost * listMultiplier
		}
		return baseFieldCost
	}

	subtree := EstimateComplexity(f.SelectionSet, depth+1)
	if isListField(f.Name) {
		subtree *= listMultiplier
	}
	return baseFieldCost + subtree
}

// isListField guesses whether a field returns a list from its name alone.
// It misses singular list fields ("children") and over-counts
// plural-looking scalars ("status"); exact costing would need schema
// introspection, which this layer does not have.
func isListField(name string) bool {
	return len(name) > 1 && strings.HasSuffix(name, "s")
}
