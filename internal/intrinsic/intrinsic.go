// Package intrinsic provides typed algebraic constructors for ASL intrinsic
// functions (spec.md §4.2) and renders them to the canonical ASL string
// form used inside a Parameters object's ".$"-suffixed keys, e.g.
// `States.Format('{}', $.x)`. Pure, stateless — like internal/cond.
package intrinsic

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Arg is one argument to an intrinsic call: a nested intrinsic, a raw JSON
// Path, or a literal JSON value.
type Arg struct {
	Intrinsic *Expr
	Path      string
	Literal   interface{}
	hasLiteral bool
}

// PathArg wraps a JSON Path as an intrinsic argument.
func PathArg(path string) Arg { return Arg{Path: path} }

// LiteralArg wraps a literal JSON value as an intrinsic argument; it is
// serialized as a JSON-embedded constant inside the rendered string
// (spec.md §4.2).
func LiteralArg(v interface{}) Arg { return Arg{Literal: v, hasLiteral: true} }

// NestedArg wraps another intrinsic expression as an argument.
func NestedArg(e *Expr) Arg { return Arg{Intrinsic: e} }

func (a Arg) render() string {
	switch {
	case a.Intrinsic != nil:
		return a.Intrinsic.Render()
	case a.hasLiteral:
		b, err := json.Marshal(a.Literal)
		if err != nil {
			return "null"
		}
		return string(b)
	default:
		return a.Path
	}
}

// Name is the fixed set of supported intrinsic names (spec.md §1).
type Name string

const (
	Format        Name = "States.Format"
	Array         Name = "States.Array"
	ArrayGetItem  Name = "States.ArrayGetItem"
	ArrayLength   Name = "States.ArrayLength"
	ArrayRange    Name = "States.ArrayRange"
	ArrayContains Name = "States.ArrayContains"
	StringSplit   Name = "States.StringSplit"
	JsonToString  Name = "States.JsonToString"
	StringToJson  Name = "States.StringToJson"
	JsonMerge     Name = "States.JsonMerge"
	MathAdd       Name = "States.MathAdd"
)

// Expr is a single intrinsic call expression; arguments may themselves be
// intrinsics, paths, or literals (spec.md §4.2).
type Expr struct {
	Name     Name
	Args     []Arg
	FmtSpec  string // only meaningful for Format: the literal format string with "{}" placeholders
}

// Render produces the canonical ASL intrinsic string.
func (e *Expr) Render() string {
	if e.Name == Format {
		parts := make([]string, 0, len(e.Args))
		for _, a := range e.Args {
			parts = append(parts, a.render())
		}
		return fmt.Sprintf("%s('%s'%s)", Format, escapeFormatLiteral(e.FmtSpec), joinArgs(parts))
	}
	parts := make([]string, 0, len(e.Args))
	for _, a := range e.Args {
		parts = append(parts, a.render())
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(parts, ", "))
}

func joinArgs(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	return ", " + strings.Join(parts, ", ")
}

// escapeFormatLiteral escapes single quotes in a Format literal segment;
// "{}" is the only placeholder syntax Format recognizes (spec.md §4.2) so
// a literal "{" or "}" in source text is passed through unescaped — ASL
// has no escape for a literal brace in Format.
func escapeFormatLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

// NewFormat builds a States.Format call: fmtSpec is the literal string with
// "{}" placeholders, one per arg.
func NewFormat(fmtSpec string, args ...Arg) *Expr {
	return &Expr{Name: Format, Args: args, FmtSpec: fmtSpec}
}

// NewArray builds a States.Array call.
func NewArray(items ...Arg) *Expr { return &Expr{Name: Array, Args: items} }

// NewArrayGetItem builds a States.ArrayGetItem(arr, idx) call.
func NewArrayGetItem(arr, idx Arg) *Expr { return &Expr{Name: ArrayGetItem, Args: []Arg{arr, idx}} }

// NewArrayLength builds a States.ArrayLength(arr) call.
func NewArrayLength(arr Arg) *Expr { return &Expr{Name: ArrayLength, Args: []Arg{arr}} }

// NewArrayRange builds a States.ArrayRange(start, end, step) call.
func NewArrayRange(start, end, step Arg) *Expr {
	return &Expr{Name: ArrayRange, Args: []Arg{start, end, step}}
}

// NewArrayContains builds a States.ArrayContains(arr, elem) call.
func NewArrayContains(arr, elem Arg) *Expr { return &Expr{Name: ArrayContains, Args: []Arg{arr, elem}} }

// NewStringSplit builds a States.StringSplit(str, sep) call.
func NewStringSplit(str, sep Arg) *Expr { return &Expr{Name: StringSplit, Args: []Arg{str, sep}} }

// NewJsonToString builds a States.JsonToString(v) call.
func NewJsonToString(v Arg) *Expr { return &Expr{Name: JsonToString, Args: []Arg{v}} }

// NewStringToJson builds a States.StringToJson(v) call.
func NewStringToJson(v Arg) *Expr { return &Expr{Name: StringToJson, Args: []Arg{v}} }

// NewJsonMerge builds a States.JsonMerge(a, b) call.
func NewJsonMerge(a, bArg Arg) *Expr { return &Expr{Name: JsonMerge, Args: []Arg{a, bArg}} }

// NewMathAdd builds a States.MathAdd(a, b) call.
func NewMathAdd(a, bArg Arg) *Expr { return &Expr{Name: MathAdd, Args: []Arg{a, bArg}} }
