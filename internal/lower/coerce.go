package lower

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"

	"flowjs-works/aslcompiler/internal/ast"
	"flowjs-works/aslcompiler/internal/cond"
	"flowjs-works/aslcompiler/internal/graph"
	"flowjs-works/aslcompiler/internal/intrinsic"
)

// foldConstant attempts to evaluate e entirely at compile time, the way
// the teacher's evaluateCondition substitutes JSON values into a snippet
// of JS and runs it through an embedded VM rather than hand-rolling JS
// arithmetic and coercion rules itself. Only expressions built purely from
// literals, array literals, and the unary/binary/logical/conditional
// operators this package already allows, are attempted; a template
// literal is never folded, and anything touching an
// identifier or member access fails to fold (ok=false), since those need
// a runtime value lowering has no access to.
func foldConstant(e *ast.Expr) (interface{}, bool) {
	src, ok := renderConstExpr(e)
	if !ok {
		return nil, false
	}
	vm := goja.New()
	v, err := vm.RunString(src)
	if err != nil {
		return nil, false
	}
	return jsonRoundTrip(v.Export())
}

// jsonRoundTrip normalizes a goja-exported Go value through JSON so
// numeric types collapse to float64 uniformly, matching every other
// literal value in this package.
func jsonRoundTrip(v interface{}) (interface{}, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, false
	}
	return out, true
}

// renderConstExpr renders e as a JS source snippet, ok=false if e contains
// anything that depends on a runtime value.
func renderConstExpr(e *ast.Expr) (string, bool) {
	switch e.Kind {
	case ast.ExprLiteral:
		if e.IsNullLit {
			return "null", true
		}
		b, err := json.Marshal(e.LiteralValue)
		if err != nil {
			return "", false
		}
		return string(b), true
	case ast.ExprArray:
		parts := make([]string, 0, len(e.Elements))
		for i := range e.Elements {
			s, ok := renderConstExpr(&e.Elements[i])
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return "[" + joinComma(parts) + "]", true
	case ast.ExprUnary:
		operand, ok := renderConstExpr(e.Operand)
		if !ok {
			return "", false
		}
		return "(" + e.Operator + operand + ")", true
	case ast.ExprBinary, ast.ExprLogical:
		l, ok := renderConstExpr(e.Left)
		if !ok {
			return "", false
		}
		r, ok := renderConstExpr(e.Right)
		if !ok {
			return "", false
		}
		return "(" + l + " " + e.Operator + " " + r + ")", true
	case ast.ExprConditional:
		t, ok := renderConstExpr(e.Test)
		if !ok {
			return "", false
		}
		cons, ok := renderConstExpr(e.Consequent)
		if !ok {
			return "", false
		}
		alt, ok := renderConstExpr(e.Alternate)
		if !ok {
			return "", false
		}
		return "(" + t + " ? " + cons + " : " + alt + ")", true
	default:
		return "", false
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// toNumber implements Number(x)/unary + coercion (spec.md §4.6): folds
// outright when out is already constant, otherwise dispatches on runtime
// type via Choice — numeric passes through, a string parses via
// States.StringToJson, a boolean maps to 1/0, anything else (null, a
// compound value) coerces to 0.
func (c *Compiler) toNumber(out graph.Output) (*graph.SubState, graph.Output, error) {
	if out.IsLiteral() && !out.ContainsJsonPath {
		if n, ok := jsToNumber(out.Literal); ok {
			return nil, graph.Lit(n), nil
		}
	}
	sub, path := c.materializeToPath("toNumber", out)

	// Every branch below writes its result the same way — a Parameters
	// object under a fresh container, per the uniform convention
	// assignIntrinsic uses — so the numeric-passthrough and
	// boolean-literal branches go through Parameters too, even though a
	// bare Result would suffice for them alone; only States.StringToJson
	// strictly requires it.
	container := c.newHeapContainer()
	numLbl, strLbl, boolTrueLbl, boolFalseLbl, elseLbl := c.label("numNumeric"), c.label("numString"), c.label("numBoolTrue"), c.label("numBoolFalse"), c.label("numElse")
	choiceLbl := c.label("numChoice")
	boolChoiceLbl := c.label("numBoolChoice")

	choice := &graph.NodeState{
		Type: graph.TypeChoice,
		Choices: []graph.ChoiceRule{
			{Condition: cond.IsNumeric(path), Next: numLbl},
			{Condition: cond.IsString(path), Next: strLbl},
			{Condition: cond.IsBoolean(path), Next: boolChoiceLbl},
		},
		Default:  elseLbl,
		AstLabel: "Number() dispatch",
	}
	boolChoice := &graph.NodeState{
		Type:    graph.TypeChoice,
		Choices: []graph.ChoiceRule{{Condition: cond.BooleanEquals(path, true), Next: boolTrueLbl}},
		Default: boolFalseLbl,
	}
	states := map[string]graph.Entry{
		choiceLbl:     graph.NodeEntry(choice),
		numLbl:        graph.NodeEntry(passCopyLeaf(path, container)),
		strLbl:        graph.NodeEntry(passIntrinsicLeaf(intrinsic.NewStringToJson(intrinsic.PathArg(path)), container)),
		boolChoiceLbl: graph.NodeEntry(boolChoice),
		boolTrueLbl:   graph.NodeEntry(passLiteralLeaf(1.0, container)),
		boolFalseLbl:  graph.NodeEntry(passLiteralLeaf(0.0, container)),
		elseLbl:       graph.NodeEntry(passLiteralLeaf(0.0, container)),
	}
	dispatch := graph.NewSubState(choiceLbl, states)
	return joinExprSubs(sub, dispatch), graph.Path(container + ".v"), nil
}

// toJSString implements String(x) / template-literal stringification: ASL
// has no type-dispatching string coercion intrinsic, but States.Format's
// "{}" placeholder already stringifies any scalar, so String(x) lowers to
// States.Format('{}', x) directly (spec.md §4.6).
func (c *Compiler) toJSString(out graph.Output) (*graph.SubState, graph.Output, error) {
	if out.IsLiteral() && !out.ContainsJsonPath {
		return nil, graph.Lit(jsToString(out.Literal)), nil
	}
	sub, path := c.materializeToPath("toString", out)
	expr := intrinsic.NewFormat("{}", intrinsic.PathArg(path))
	fmtSub, fmtPath := c.assignIntrinsic("toString", expr)
	return joinExprSubs(sub, fmtSub), graph.Path(fmtPath), nil
}

// negateNumber implements unary `-`'s split-format-rejoin trick (spec.md
// §4.6): stringify the number, split on "-"; a split of length 2 means the
// source text already carried a leading sign, so the numeric tail is the
// unsigned magnitude and is reparsed directly; otherwise the string has no
// sign yet, so one is prefixed via States.Format before reparsing. Shared
// by unary `-` and binary `-`'s right-hand negation (lowerNumericSub).
func (c *Compiler) negateNumber(out graph.Output) (*graph.SubState, graph.Output) {
	if out.IsLiteral() && !out.ContainsJsonPath {
		if n, ok := out.Literal.(float64); ok {
			return nil, graph.Lit(-n)
		}
	}
	sub, path := c.materializeToPath("negateOperand", out)
	strSub, strPath := c.assignIntrinsic("negateStringify", intrinsic.NewJsonToString(intrinsic.PathArg(path)))
	splitSub, splitPath := c.assignIntrinsic("negateSplit", intrinsic.NewStringSplit(intrinsic.PathArg(strPath), intrinsic.LiteralArg("-")))
	lenSub, lenPath := c.assignIntrinsic("negateSplitLen", intrinsic.NewArrayLength(intrinsic.PathArg(splitPath)))

	container := c.newHeapContainer()
	negLbl, posLbl, choiceLbl := c.label("negateHasSign"), c.label("negatePositive"), c.label("negateChoice")
	choice := &graph.NodeState{
		Type:     graph.TypeChoice,
		Choices:  []graph.ChoiceRule{{Condition: cond.NumericEquals(lenPath, 2), Next: negLbl}},
		Default:  posLbl,
		AstLabel: "negate sign split",
	}

	tailSub, tailPath := c.assignIntrinsic("negateTail", intrinsic.NewArrayGetItem(intrinsic.PathArg(splitPath), intrinsic.LiteralArg(1.0)))
	negParseSub, negParsePath := c.assignIntrinsic("negateParse", intrinsic.NewStringToJson(intrinsic.PathArg(tailPath)))
	negBranch := joinExprSubs(tailSub, negParseSub, c.assignFinalOutput("negateAssignNeg", graph.Path(negParsePath), container))

	fmtSub, fmtPath := c.assignIntrinsic("negateFormat", intrinsic.NewFormat("-{}", intrinsic.PathArg(strPath)))
	posParseSub, posParsePath := c.assignIntrinsic("negateParsePositive", intrinsic.NewStringToJson(intrinsic.PathArg(fmtPath)))
	posBranch := joinExprSubs(fmtSub, posParseSub, c.assignFinalOutput("negateAssignPos", graph.Path(posParsePath), container))

	dispatch := graph.NewSubState(choiceLbl, map[string]graph.Entry{
		choiceLbl: graph.NodeEntry(choice),
		negLbl:    graph.SubEntry(negBranch),
		posLbl:    graph.SubEntry(posBranch),
	})
	return joinExprSubs(sub, strSub, splitSub, lenSub, dispatch), graph.Path(container)
}

func jsToNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case nil:
		return 0, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(t, "%g", &f); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}

func jsToString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// passCopyLeaf, passIntrinsicLeaf, and passLiteralLeaf build one leaf of a
// Choice dispatch, each writing into the same container+".v" convention
// assignIntrinsic uses, so every branch of a dispatcher is addressable
// identically regardless of which branch actually ran.
func passCopyLeaf(fromPath, container string) *graph.NodeState {
	return &graph.NodeState{Type: graph.TypePass, Parameters: map[string]interface{}{"v.$": fromPath}, ResultPath: strp(container), Next: graph.DeferredNext}
}

func passIntrinsicLeaf(expr *intrinsic.Expr, container string) *graph.NodeState {
	return &graph.NodeState{Type: graph.TypePass, Parameters: map[string]interface{}{"v.$": expr.Render()}, ResultPath: strp(container), Next: graph.DeferredNext}
}

func passLiteralLeaf(v interface{}, container string) *graph.NodeState {
	return &graph.NodeState{Type: graph.TypePass, Parameters: map[string]interface{}{"v": v}, ResultPath: strp(container), Next: graph.DeferredNext}
}
