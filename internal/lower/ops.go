// This file completes C6 (spec.md §4.6): binary/logical/conditional
// operators, assignment, and call expressions.
package lower

import (
	"flowjs-works/aslcompiler/internal/ast"
	"flowjs-works/aslcompiler/internal/cond"
	"flowjs-works/aslcompiler/internal/compileerr"
	"flowjs-works/aslcompiler/internal/graph"
	"flowjs-works/aslcompiler/internal/integration"
	"flowjs-works/aslcompiler/internal/intrinsic"
)

// toArg lowers an already-computed Output to an intrinsic.Arg: a literal
// Output with no embedded path renders inline, anything else is
// materialized to a JsonPath first.
func (c *Compiler) toArg(hint string, out graph.Output) (*graph.SubState, intrinsic.Arg) {
	if out.IsLiteral() && !out.ContainsJsonPath {
		return nil, intrinsic.LiteralArg(out.Literal)
	}
	sub, path := c.materializeToPath(hint, out)
	return sub, intrinsic.PathArg(path)
}

// lowerBinary dispatches a binary operator: fold outright when possible,
// otherwise route to numeric add/sub (ASL's only arithmetic intrinsic is
// MathAdd — there is no subtraction, multiplication, or division
// intrinsic) or a comparison atom.
func (c *Compiler) lowerBinary(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	if v, ok := foldConstant(e); ok {
		return nil, graph.Lit(v), nil
	}
	switch e.Operator {
	case "+":
		return c.lowerNumericAdd(e.Left, e.Right, e.Span)
	case "-":
		return c.lowerNumericSub(e.Left, e.Right, e.Span)
	case "==", "===", "!=", "!==", "<", "<=", ">", ">=":
		return c.lowerComparison(e)
	default:
		return nil, graph.Output{}, compileerr.New(compileerr.CodeNoArithmeticOnVariables, spanOf(e.Span),
			"binary operator %q on a non-constant value is not supported", e.Operator)
	}
}

// lowerNumericAdd implements dynamic `+` as numeric addition (spec.md
// §4.6): string concatenation of dynamic values must go through a
// template literal (States.Format) instead.
func (c *Compiler) lowerNumericAdd(left, right *ast.Expr, span ast.Span) (*graph.SubState, graph.Output, error) {
	lsub, lout, err := c.lowerExpr(left)
	if err != nil {
		return nil, graph.Output{}, err
	}
	rsub, rout, err := c.lowerExpr(right)
	if err != nil {
		return nil, graph.Output{}, err
	}
	lnumSub, lnum, err := c.toNumber(lout)
	if err != nil {
		return nil, graph.Output{}, err
	}
	rnumSub, rnum, err := c.toNumber(rout)
	if err != nil {
		return nil, graph.Output{}, err
	}
	largSub, larg := c.toArg("addLeft", lnum)
	rargSub, rarg := c.toArg("addRight", rnum)
	sub, path := c.assignIntrinsic("add", intrinsic.NewMathAdd(larg, rarg))
	return joinExprSubs(lsub, rsub, lnumSub, rnumSub, largSub, rargSub, sub), graph.Path(path), nil
}

// lowerNumericSub implements dynamic `-` the only way ASL's intrinsics
// allow it: both sides go through toNumber, the right side is negated via
// the split-format-rejoin trick (negateNumber, shared with unary `-`), and
// the result is MathAdd(left, -right). A constant right-hand operand
// negates outright with no extra states; `constant - dynamic` and
// `dynamic - dynamic` both lower the same way (spec.md §4.6).
func (c *Compiler) lowerNumericSub(left, right *ast.Expr, span ast.Span) (*graph.SubState, graph.Output, error) {
	lsub, lout, err := c.lowerExpr(left)
	if err != nil {
		return nil, graph.Output{}, err
	}
	rsub, rout, err := c.lowerExpr(right)
	if err != nil {
		return nil, graph.Output{}, err
	}
	lnumSub, lnum, err := c.toNumber(lout)
	if err != nil {
		return nil, graph.Output{}, err
	}
	rnumSub, rnum, err := c.toNumber(rout)
	if err != nil {
		return nil, graph.Output{}, err
	}
	negSub, negOut := c.negateNumber(rnum)

	largSub, larg := c.toArg("subLeft", lnum)
	rargSub, rarg := c.toArg("subRight", negOut)
	sub, path := c.assignIntrinsic("sub", intrinsic.NewMathAdd(larg, rarg))
	return joinExprSubs(lsub, rsub, lnumSub, rnumSub, negSub, largSub, rargSub, sub), graph.Path(path), nil
}

// flipComparison swaps the sense of a relational operator so a
// `literal op path` comparison can reuse FromLiteralComparison's
// path-first calling convention; == / === are their own flip.
func flipComparison(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	default:
		return op
	}
}

// lowerComparison lowers ==/===/!=/!==/</<=/>/>=. != and !== are built as
// Not(==) / Not(===), per spec.md §4.1's note that the atom lookup table
// has no direct != / !== mapping.
func (c *Compiler) lowerComparison(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	lsub, lout, err := c.lowerExpr(e.Left)
	if err != nil {
		return nil, graph.Output{}, err
	}
	rsub, rout, err := c.lowerExpr(e.Right)
	if err != nil {
		return nil, graph.Output{}, err
	}

	negate := e.Operator == "!=" || e.Operator == "!=="
	baseOp := e.Operator
	if e.Operator == "!=" {
		baseOp = "=="
	} else if e.Operator == "!==" {
		baseOp = "==="
	}

	var atom *cond.Condition
	switch {
	case rout.IsLiteral() && !rout.ContainsJsonPath:
		lpSub, lpath := c.materializeToPath("cmpLeft", lout)
		a, ok := cond.FromLiteralComparison(baseOp, lpath, rout.Literal)
		if !ok {
			return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span),
				"comparison %q is not supported for this operand type", e.Operator)
		}
		atom = a
		lsub = joinExprSubs(lsub, lpSub)
	case lout.IsLiteral() && !lout.ContainsJsonPath:
		rpSub, rpath := c.materializeToPath("cmpRight", rout)
		a, ok := cond.FromLiteralComparison(flipComparison(baseOp), rpath, lout.Literal)
		if !ok {
			return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span),
				"comparison %q is not supported for this operand type", e.Operator)
		}
		atom = a
		rsub = joinExprSubs(rsub, rpSub)
	default:
		lpSub, lpath := c.materializeToPath("cmpLeft", lout)
		rpSub, rpath := c.materializeToPath("cmpRight", rout)
		a, ok := cond.FromPathComparison(baseOp, lpath, rpath, false, false)
		if !ok {
			return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span),
				"comparison %q between two dynamic values is not supported", e.Operator)
		}
		atom = a
		lsub = joinExprSubs(lsub, lpSub)
		rsub = joinExprSubs(rsub, rpSub)
	}
	if negate {
		atom = cond.Not(atom)
	}
	return joinExprSubs(lsub, rsub), graph.Cond(atom), nil
}

// lowerLogical implements &&, ||, ?? with short-circuit evaluation: only
// the taken branch's side-effecting sub-states run. Each operator's test
// is pre-inverted so "condition true" uniformly means "evaluate the
// right-hand side" (spec.md §4.6).
func (c *Compiler) lowerLogical(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	lsub, lout, err := c.lowerExpr(e.Left)
	if err != nil {
		return nil, graph.Output{}, err
	}
	matSub, leftPath := c.materializeToPath("logicalLeft", lout)
	base := joinExprSubs(lsub, matSub)

	var testCond *cond.Condition
	switch e.Operator {
	case "&&":
		testCond = cond.IsTruthy(leftPath)
	case "||":
		testCond = cond.Not(cond.IsTruthy(leftPath))
	case "??":
		testCond = cond.Or(cond.IsMissing(leftPath), cond.IsNull(leftPath))
	default:
		return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span),
			"logical operator %q is not supported", e.Operator)
	}

	container := c.newHeapContainer()
	rsub, rout, err := c.lowerExpr(e.Right)
	if err != nil {
		return nil, graph.Output{}, err
	}
	trueBranch := joinExprSubs(rsub, c.assignFinalOutput("logicalRight", rout, container))
	falseBranch := c.assignFinalOutput("logicalLeftCopy", graph.Path(leftPath), container)

	trueLbl, falseLbl, choiceLbl := c.label("logicalTrue"), c.label("logicalFalse"), c.label("logicalChoice")
	choice := &graph.NodeState{
		Type:     graph.TypeChoice,
		Choices:  []graph.ChoiceRule{{Condition: testCond, Next: trueLbl}},
		Default:  falseLbl,
		AstLabel: "logical " + e.Operator,
	}
	dispatch := graph.NewSubState(choiceLbl, map[string]graph.Entry{
		choiceLbl: graph.NodeEntry(choice),
		trueLbl:   graph.SubEntry(trueBranch),
		falseLbl:  graph.SubEntry(falseBranch),
	})
	return joinExprSubs(base, dispatch), graph.Path(container), nil
}

// lowerConditional lowers the ternary operator with the same lazy-branch
// shape as lowerLogical: only the taken arm's states execute.
func (c *Compiler) lowerConditional(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	tsub, tout, err := c.lowerExpr(e.Test)
	if err != nil {
		return nil, graph.Output{}, err
	}
	condSub, testCond, err := c.toCondition(tout)
	if err != nil {
		return nil, graph.Output{}, err
	}
	base := joinExprSubs(tsub, condSub)

	container := c.newHeapContainer()
	csub, cout, err := c.lowerExpr(e.Consequent)
	if err != nil {
		return nil, graph.Output{}, err
	}
	consBranch := joinExprSubs(csub, c.assignFinalOutput("ternaryThen", cout, container))

	asub, aout, err := c.lowerExpr(e.Alternate)
	if err != nil {
		return nil, graph.Output{}, err
	}
	altBranch := joinExprSubs(asub, c.assignFinalOutput("ternaryElse", aout, container))

	trueLbl, falseLbl, choiceLbl := c.label("ternaryTrue"), c.label("ternaryFalse"), c.label("ternaryChoice")
	choice := &graph.NodeState{
		Type:     graph.TypeChoice,
		Choices:  []graph.ChoiceRule{{Condition: testCond, Next: trueLbl}},
		Default:  falseLbl,
		AstLabel: "conditional expression",
	}
	dispatch := graph.NewSubState(choiceLbl, map[string]graph.Entry{
		choiceLbl: graph.NodeEntry(choice),
		trueLbl:   graph.SubEntry(consBranch),
		falseLbl:  graph.SubEntry(altBranch),
	})
	return joinExprSubs(base, dispatch), graph.Path(container), nil
}

// lowerAssign implements `=` and the compound assignment operators this
// package supports. resolveAssignTarget only accepts an identifier lvalue
// (spec.md §4.6 Open Question: member-expression assignment targets, e.g.
// `obj.x = …`, are out of scope and rejected).
func (c *Compiler) lowerAssign(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	target, err := c.resolveAssignTarget(e.Left)
	if err != nil {
		return nil, graph.Output{}, err
	}

	switch e.Operator {
	case "=":
		sub, out, err := c.lowerExpr(e.Right)
		if err != nil {
			return nil, graph.Output{}, err
		}
		assign := c.assignFinalOutput("assign", out, target)
		return joinExprSubs(sub, assign), graph.Path(target), nil

	case "+=", "-=":
		var sub *graph.SubState
		var out graph.Output
		if e.Operator == "+=" {
			sub, out, err = c.lowerNumericAdd(e.Left, e.Right, e.Span)
		} else {
			sub, out, err = c.lowerNumericSub(e.Left, e.Right, e.Span)
		}
		if err != nil {
			return nil, graph.Output{}, err
		}
		assign := c.assignFinalOutput("compoundAssign", out, target)
		return joinExprSubs(sub, assign), graph.Path(target), nil

	case "??=", "||=", "&&=":
		var testCond *cond.Condition
		switch e.Operator {
		case "&&=":
			testCond = cond.IsTruthy(target)
		case "||=":
			testCond = cond.Not(cond.IsTruthy(target))
		case "??=":
			testCond = cond.Or(cond.IsMissing(target), cond.IsNull(target))
		}
		rsub, rout, err := c.lowerExpr(e.Right)
		if err != nil {
			return nil, graph.Output{}, err
		}
		trueBranch := joinExprSubs(rsub, c.assignFinalOutput("compoundLogicalAssign", rout, target))
		falseBranch := c.assignFinalOutput("compoundLogicalAssignSkip", graph.Path(target), target)

		trueLbl, falseLbl, choiceLbl := c.label("compoundTrue"), c.label("compoundFalse"), c.label("compoundChoice")
		choice := &graph.NodeState{
			Type:     graph.TypeChoice,
			Choices:  []graph.ChoiceRule{{Condition: testCond, Next: trueLbl}},
			Default:  falseLbl,
			AstLabel: "compound assignment " + e.Operator,
		}
		dispatch := graph.NewSubState(choiceLbl, map[string]graph.Entry{
			choiceLbl: graph.NodeEntry(choice),
			trueLbl:   graph.SubEntry(trueBranch),
			falseLbl:  graph.SubEntry(falseBranch),
		})
		return dispatch, graph.Path(target), nil

	default:
		return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span),
			"assignment operator %q is not supported", e.Operator)
	}
}

// lowerCall dispatches a call expression by callee shape: the Boolean /
// Number / String coercion builtins, JSON.stringify/parse, Promise.all
// (modeled as a pass-through — no concurrency exists at compile time),
// a registered integration namespace method (C10), or an array method
// (C11). Anything else is rejected.
func (c *Compiler) lowerCall(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	if e.Callee.Kind == ast.ExprIdentifier && len(e.Arguments) == 1 {
		switch e.Callee.Name {
		case "Boolean":
			sub, out, err := c.lowerExpr(&e.Arguments[0])
			if err != nil {
				return nil, graph.Output{}, err
			}
			condSub, cd, err := c.toCondition(out)
			if err != nil {
				return nil, graph.Output{}, err
			}
			return joinExprSubs(sub, condSub), graph.Cond(cd), nil
		case "Number":
			sub, out, err := c.lowerExpr(&e.Arguments[0])
			if err != nil {
				return nil, graph.Output{}, err
			}
			numSub, numOut, err := c.toNumber(out)
			if err != nil {
				return nil, graph.Output{}, err
			}
			return joinExprSubs(sub, numSub), numOut, nil
		case "String":
			sub, out, err := c.lowerExpr(&e.Arguments[0])
			if err != nil {
				return nil, graph.Output{}, err
			}
			strSub, strOut, err := c.toJSString(out)
			if err != nil {
				return nil, graph.Output{}, err
			}
			return joinExprSubs(sub, strSub), strOut, nil
		}
	}

	if e.Callee.Kind == ast.ExprMember && !e.Callee.Computed {
		obj := e.Callee.Object
		method := e.Callee.Property.Name
		if obj.Kind == ast.ExprIdentifier {
			switch obj.Name {
			case "JSON":
				return c.lowerJSONCall(e, method)
			case "Promise":
				if method == "all" && len(e.Arguments) == 1 {
					return c.lowerExpr(&e.Arguments[0])
				}
			default:
				if hook, ok := c.Integrations.Resolve(obj.Name); ok {
					return c.lowerIntegrationCall(e, hook, method)
				}
			}
		}
		if isArrayMethod(method) {
			return c.lowerArrayMethodCall(e, method)
		}
		if method == "split" && len(e.Arguments) == 1 {
			return c.lowerStringSplit(e)
		}
	}

	return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span), "call expression is not supported")
}

func (c *Compiler) lowerJSONCall(e *ast.Expr, method string) (*graph.SubState, graph.Output, error) {
	if len(e.Arguments) != 1 {
		return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span),
			"JSON.%s expects exactly one argument", method)
	}
	sub, out, err := c.lowerExpr(&e.Arguments[0])
	if err != nil {
		return nil, graph.Output{}, err
	}
	argSub, arg := c.toArg("jsonArg", out)
	switch method {
	case "stringify":
		resSub, path := c.assignIntrinsic("jsonStringify", intrinsic.NewJsonToString(arg))
		return joinExprSubs(sub, argSub, resSub), graph.Path(path), nil
	case "parse":
		resSub, path := c.assignIntrinsic("jsonParse", intrinsic.NewStringToJson(arg))
		return joinExprSubs(sub, argSub, resSub), graph.Path(path), nil
	default:
		return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span), "JSON.%s is not supported", method)
	}
}

func (c *Compiler) lowerStringSplit(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	osub, oout, err := c.lowerExpr(e.Callee.Object)
	if err != nil {
		return nil, graph.Output{}, err
	}
	asub, aout, err := c.lowerExpr(&e.Arguments[0])
	if err != nil {
		return nil, graph.Output{}, err
	}
	oArgSub, oArg := c.toArg("splitStr", oout)
	sArgSub, sArg := c.toArg("splitSep", aout)
	resSub, path := c.assignIntrinsic("split", intrinsic.NewStringSplit(oArg, sArg))
	return joinExprSubs(osub, asub, oArgSub, sArgSub, resSub), graph.Path(path), nil
}

// lowerIntegrationCall splices a registered integration hook's lowering
// into the current frame (spec.md §4.10): the hook returns a bare
// NodeState, whose result (if unset by the hook) is parked in a fresh
// heap container the same way any other call's Output is addressed.
func (c *Compiler) lowerIntegrationCall(e *ast.Expr, hook integration.Hook, method string) (*graph.SubState, graph.Output, error) {
	var subs []*graph.SubState
	args := make([]graph.Output, 0, len(e.Arguments))
	for i := range e.Arguments {
		sub, out, err := c.lowerExpr(&e.Arguments[i])
		if err != nil {
			return nil, graph.Output{}, err
		}
		subs = append(subs, sub)
		args = append(args, out)
	}
	call := integration.Call{
		Namespace: e.Callee.Object.Name,
		Method:    method,
		Args:      args,
		Span:      integration.Span{Line: e.Span.Line, Column: e.Span.Column},
	}
	n, err := hook.Lower(call)
	if err != nil {
		return nil, graph.Output{}, err
	}
	container := c.newHeapContainer()
	if n.ResultPath == nil {
		n.ResultPath = strp(container)
	}
	if n.Next == "" {
		n.Next = graph.DeferredNext
	}
	// An integration call can fail at runtime the same way a thrown
	// error can; route it to the nearest enclosing handler exactly like
	// a throw would, so catch blocks see task failures and user throws
	// through the same envelope shape (spec.md §4.9, §4.10).
	if target, resultPath, reachable := c.throwRoute(); reachable {
		n.Catch = append(n.Catch, graph.CatchRule{
			ErrorEquals: []string{"States.ALL"},
			Next:        target,
			ResultPath:  strp(resultPath),
		})
	}
	subs = append(subs, c.singleState(hook.Name()+"."+method, n))
	return joinExprSubs(subs...), graph.Path(container), nil
}
