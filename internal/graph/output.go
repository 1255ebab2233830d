// Package graph is the in-memory IR described in spec.md §3/§4.3: Output,
// NodeState, SubState, and the utilities that join, rewire, and flatten a
// sub-state tree into the final {StartAt, States} ASL document. Values here
// are copied freely and never form cycles (spec.md §9 "Arena allocation").
package graph

import "flowjs-works/aslcompiler/internal/cond"

// OutputKind discriminates the three disjoint forms an expression's result
// can take (spec.md §3). Conversions between them are explicit (see the
// lower package's materializeToPath/materializeCondition) and never
// implicit.
type OutputKind int

const (
	OutputLiteral OutputKind = iota
	OutputJsonPath
	OutputCondition
)

// Output is the result of lowering any expression.
type Output struct {
	Kind OutputKind

	// OutputLiteral
	Literal interface{}
	// ContainsJsonPath flags a literal whose tree still has embedded JSON
	// Path references (partially resolved literals, spec.md §3); such a
	// literal must be rendered through a Parameters object with ".$"-suffixed
	// keys rather than a plain Result (see PassWithInput in flatten.go).
	ContainsJsonPath bool

	// OutputJsonPath
	Path string

	// OutputCondition
	Cond *cond.Condition
}

// Lit wraps a plain JSON literal value (no embedded paths).
func Lit(v interface{}) Output { return Output{Kind: OutputLiteral, Literal: v} }

// LitWithPaths wraps a literal tree that still contains embedded JSON Path
// references (PathMarker values) needing ".$" substitution when rendered.
func LitWithPaths(v interface{}) Output {
	return Output{Kind: OutputLiteral, Literal: v, ContainsJsonPath: true}
}

// Path wraps a JSON Path reference.
func Path(p string) Output { return Output{Kind: OutputJsonPath, Path: p} }

// Cond wraps a not-yet-materialized boolean predicate.
func Cond(c *cond.Condition) Output { return Output{Kind: OutputCondition, Cond: c} }

// IsLiteral, IsPath, IsCondition are convenience predicates.
func (o Output) IsLiteral() bool   { return o.Kind == OutputLiteral }
func (o Output) IsPath() bool      { return o.Kind == OutputJsonPath }
func (o Output) IsCondition() bool { return o.Kind == OutputCondition }
