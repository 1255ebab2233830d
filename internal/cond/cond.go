// Package cond builds ASL Choice-rule predicates (spec.md §4.1). It is pure
// and stateless: every function here takes values/paths and returns a
// *Condition value ready to be embedded in an ASL Choice state's rule list
// or Default.
package cond

// Condition is one ASL Choice-rule predicate node. Only the fields
// relevant to the atom/combinator it represents are populated; this
// mirrors the teacher's permissive, mostly-flat JSON struct style
// (models.Node) rather than a Go interface hierarchy, since a Condition's
// only consumer is JSON serialization into a Choice state's rule list.
type Condition struct {
	// Combinators
	And []*Condition `json:"And,omitempty"`
	Or  []*Condition `json:"Or,omitempty"`
	Not *Condition   `json:"Not,omitempty"`

	// Variable is the JSON Path the atom tests, e.g. "$.x".
	Variable string `json:"Variable,omitempty"`

	// Presence / type atoms
	IsPresent *bool `json:"IsPresent,omitempty"`
	IsNull    *bool `json:"IsNull,omitempty"`
	IsBoolean *bool `json:"IsBoolean,omitempty"`
	IsString  *bool `json:"IsString,omitempty"`
	IsNumeric *bool `json:"IsNumeric,omitempty"`

	// Value-comparison atoms (exactly one non-zero at a time)
	StringEquals     *string  `json:"StringEquals,omitempty"`
	StringEqualsPath  string  `json:"StringEqualsPath,omitempty"`
	NumericEquals     *float64 `json:"NumericEquals,omitempty"`
	NumericEqualsPath string  `json:"NumericEqualsPath,omitempty"`
	NumericLessThan     *float64 `json:"NumericLessThan,omitempty"`
	NumericLessThanPath string   `json:"NumericLessThanPath,omitempty"`
	NumericLessThanEquals     *float64 `json:"NumericLessThanEquals,omitempty"`
	NumericLessThanEqualsPath string   `json:"NumericLessThanEqualsPath,omitempty"`
	NumericGreaterThan     *float64 `json:"NumericGreaterThan,omitempty"`
	NumericGreaterThanPath string   `json:"NumericGreaterThanPath,omitempty"`
	NumericGreaterThanEquals     *float64 `json:"NumericGreaterThanEquals,omitempty"`
	NumericGreaterThanEqualsPath string   `json:"NumericGreaterThanEqualsPath,omitempty"`
	BooleanEquals     *bool `json:"BooleanEquals,omitempty"`
	BooleanEqualsPath string `json:"BooleanEqualsPath,omitempty"`
}

func b(v bool) *bool       { return &v }
func f(v float64) *float64 { return &v }
func s(v string) *string   { return &v }

// trivialTrue/trivialFalse are the degenerate predicates and()/or() fall
// back to when given zero arguments (spec.md §4.1): ASL has no bare
// "true"/"false" literal predicate, so these compare the always-present
// execution ID against null.
func trivialTrue() *Condition  { return &Condition{Variable: "$$.Execution.Id", IsNull: b(false)} }
func trivialFalse() *Condition { return &Condition{Variable: "$$.Execution.Id", IsNull: b(true)} }

// And combines conditions conjunctively: zero => trivially true, one =>
// that condition, many => wrapped in an ASL And.
func And(conds ...*Condition) *Condition {
	switch len(conds) {
	case 0:
		return trivialTrue()
	case 1:
		return conds[0]
	default:
		return &Condition{And: conds}
	}
}

// Or combines conditions disjunctively: zero => trivially false, one =>
// that condition, many => wrapped in an ASL Or.
func Or(conds ...*Condition) *Condition {
	switch len(conds) {
	case 0:
		return trivialFalse()
	case 1:
		return conds[0]
	default:
		return &Condition{Or: conds}
	}
}

// Not negates c, collapsing a double negation back to the inner condition.
func Not(c *Condition) *Condition {
	if c.Not != nil {
		return c.Not
	}
	return &Condition{Not: c}
}

func IsPresent(path string) *Condition { return &Condition{Variable: path, IsPresent: b(true)} }
func IsMissing(path string) *Condition { return &Condition{Variable: path, IsPresent: b(false)} }
func IsNull(path string) *Condition    { return &Condition{Variable: path, IsNull: b(true)} }
func IsNotNull(path string) *Condition { return &Condition{Variable: path, IsNull: b(false)} }
func IsString(path string) *Condition  { return &Condition{Variable: path, IsString: b(true)} }
func IsBoolean(path string) *Condition { return &Condition{Variable: path, IsBoolean: b(true)} }
func IsNumeric(path string) *Condition { return &Condition{Variable: path, IsNumeric: b(true)} }

func StringEquals(path, v string) *Condition     { return &Condition{Variable: path, StringEquals: s(v)} }
func StringEqualsPath(path, other string) *Condition {
	return &Condition{Variable: path, StringEqualsPath: other}
}
func NumericEquals(path string, v float64) *Condition {
	return &Condition{Variable: path, NumericEquals: f(v)}
}
func NumericEqualsPath(path, other string) *Condition {
	return &Condition{Variable: path, NumericEqualsPath: other}
}
func NumericLessThan(path string, v float64) *Condition {
	return &Condition{Variable: path, NumericLessThan: f(v)}
}
func NumericLessThanPath(path, other string) *Condition {
	return &Condition{Variable: path, NumericLessThanPath: other}
}
func NumericLessThanEquals(path string, v float64) *Condition {
	return &Condition{Variable: path, NumericLessThanEquals: f(v)}
}
func NumericGreaterThan(path string, v float64) *Condition {
	return &Condition{Variable: path, NumericGreaterThan: f(v)}
}
func NumericGreaterThanPath(path, other string) *Condition {
	return &Condition{Variable: path, NumericGreaterThanPath: other}
}
func NumericGreaterThanEquals(path string, v float64) *Condition {
	return &Condition{Variable: path, NumericGreaterThanEquals: f(v)}
}
func BooleanEquals(path string, v bool) *Condition {
	return &Condition{Variable: path, BooleanEquals: b(v)}
}
func BooleanEqualsPath(path, other string) *Condition {
	return &Condition{Variable: path, BooleanEqualsPath: other}
}

// relOpAtom maps a binary comparison operator and the runtime type of the
// literal operand to the ASL atom constructor, per spec.md §4.1's
// "lookup table maps ==/===/</<=/>/>= × string/number/boolean to ASL atom
// names, with no mapping for !=/!==". valuePath is the non-literal side's
// JSON Path; literal is the folded constant being compared against.
func relOpAtom(op string, valuePath string, literal interface{}) (*Condition, bool) {
	switch v := literal.(type) {
	case string:
		switch op {
		case "==", "===":
			return StringEquals(valuePath, v), true
		}
	case float64:
		switch op {
		case "==", "===":
			return NumericEquals(valuePath, v), true
		case "<":
			return NumericLessThan(valuePath, v), true
		case "<=":
			return NumericLessThanEquals(valuePath, v), true
		case ">":
			return NumericGreaterThan(valuePath, v), true
		case ">=":
			return NumericGreaterThanEquals(valuePath, v), true
		}
	case bool:
		switch op {
		case "==", "===":
			return BooleanEquals(valuePath, v), true
		}
	}
	return nil, false
}

// FromLiteralComparison builds the ASL atom for `path op literal`
// (or `literal op path`, with op's sense unaffected since every supported
// op here is either symmetric (==) or has a path-first calling
// convention enforced by the caller). Returns ok=false for an
// unsupported op/type pairing (e.g. != or a string literal with `<`);
// the caller falls back to Not(FromLiteralComparison(invertedOp, ...))
// for != / !== per spec.md §4.1.
func FromLiteralComparison(op, valuePath string, literal interface{}) (*Condition, bool) {
	return relOpAtom(op, valuePath, literal)
}

// FromPathComparison builds the path-vs-path variant of a comparison atom,
// used when neither side of a binary comparison folds to a literal.
func FromPathComparison(op, leftPath, rightPath string, rightIsString, rightIsBool bool) (*Condition, bool) {
	switch {
	case rightIsString:
		if op == "==" || op == "===" {
			return StringEqualsPath(leftPath, rightPath), true
		}
	case rightIsBool:
		if op == "==" || op == "===" {
			return BooleanEqualsPath(leftPath, rightPath), true
		}
	default: // numeric
		switch op {
		case "==", "===":
			return NumericEqualsPath(leftPath, rightPath), true
		case "<":
			return NumericLessThanPath(leftPath, rightPath), true
		case "<=":
			return &Condition{Variable: leftPath, NumericLessThanEqualsPath: rightPath}, true
		case ">":
			return NumericGreaterThanPath(leftPath, rightPath), true
		case ">=":
			return &Condition{Variable: leftPath, NumericGreaterThanEqualsPath: rightPath}, true
		}
	}
	return nil, false
}

// IsTruthy expands the source language's truthiness test for a JSON Path
// value to an ASL predicate (spec.md §4.1):
//
//	present ∧ not-null ∧ ((string ∧ ≠"") ∨ (number ∧ ≠0) ∨ (boolean ∧ true)
//	∨ compound (neither string, number, nor boolean))
func IsTruthy(path string) *Condition {
	isCompound := Not(Or(IsString(path), IsNumeric(path), IsBoolean(path)))
	disjuncts := Or(
		And(IsString(path), Not(StringEquals(path, ""))),
		And(IsNumeric(path), Not(NumericEquals(path, 0))),
		And(IsBoolean(path), BooleanEquals(path, true)),
		isCompound,
	)
	return And(IsPresent(path), IsNotNull(path), disjuncts)
}
