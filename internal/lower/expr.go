// This file implements C6, the Expression Lowerer (spec.md §4.6).
package lower

import (
	"fmt"

	"flowjs-works/aslcompiler/internal/ast"
	"flowjs-works/aslcompiler/internal/cond"
	"flowjs-works/aslcompiler/internal/compileerr"
	"flowjs-works/aslcompiler/internal/graph"
	"flowjs-works/aslcompiler/internal/intrinsic"
)

// lowerExpr lowers one expression to the sub-state (if any) needed to
// compute it, plus its Output. A nil sub-state means the expression was
// pure and needed no states of its own (a literal, an identifier read).
func (c *Compiler) lowerExpr(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	switch e.Kind {
	case ast.ExprLiteral:
		return c.lowerLiteral(e)
	case ast.ExprIdentifier:
		return c.lowerIdentifier(e)
	case ast.ExprMember:
		return c.lowerMember(e)
	case ast.ExprObject:
		return c.lowerObjectLit(e)
	case ast.ExprArray:
		return c.lowerArrayLit(e)
	case ast.ExprTemplate:
		return c.lowerTemplate(e)
	case ast.ExprUnary:
		return c.lowerUnary(e)
	case ast.ExprUpdate:
		return c.lowerUpdate(e)
	case ast.ExprBinary:
		return c.lowerBinary(e)
	case ast.ExprLogical:
		return c.lowerLogical(e)
	case ast.ExprConditional:
		return c.lowerConditional(e)
	case ast.ExprAssign:
		return c.lowerAssign(e)
	case ast.ExprCall:
		return c.lowerCall(e)
	case ast.ExprTypeof:
		return c.lowerTypeof(e)
	case ast.ExprAwait:
		return c.lowerExpr(e.Argument) // await is a pass-through (spec.md §4.6)
	default:
		return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span), "expression kind %s is not supported", e.Kind)
	}
}

func spanOf(s ast.Span) compileerr.Span { return compileerr.Span{Line: s.Line, Column: s.Column} }

func (c *Compiler) lowerLiteral(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	if e.IsNullLit {
		return nil, graph.Path(NullSlot), nil
	}
	return nil, graph.Lit(e.LiteralValue), nil
}

func (c *Compiler) lowerIdentifier(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	path, ok := c.lookupVar(e.Name)
	if !ok {
		return nil, graph.Output{}, compileerr.New(compileerr.CodeInvalidInput, spanOf(e.Span), "identifier %q is not bound", e.Name)
	}
	return nil, graph.Path(path), nil
}

// lowerMember implements spec.md §4.6's member-access disambiguation:
// static (non-computed) access always lowers to a direct path append; a
// computed key that folds to a compile-time constant inlines the same way
// (a string key directly, a numeric index via JSON Path's literal-integer
// indexing); a genuinely dynamic key lowers through
// lowerDynamicMemberAccess (States.ArrayGetItem plus the disambiguating
// Choice).
func (c *Compiler) lowerMember(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	objSub, objOut, err := c.lowerExpr(e.Object)
	if err != nil {
		return nil, graph.Output{}, err
	}
	objSub2, objPath := c.materializeToPath("memberBase", objOut)
	base := joinExprSubs(objSub, objSub2)

	if !e.Computed {
		key := e.Property.Name
		return base, graph.Path(fmt.Sprintf("%s['%s']", objPath, key)), nil
	}

	if folded, ok := foldConstant(e.Property); ok {
		switch k := folded.(type) {
		case string:
			return base, graph.Path(fmt.Sprintf("%s['%s']", objPath, k)), nil
		case float64:
			// A constant numeric index inlines directly into the JSON Path,
			// the same as a constant string key — JSONPath already supports
			// literal-integer array indexing (spec.md §4.6).
			return base, graph.Path(fmt.Sprintf("%s[%d]", objPath, int(k))), nil
		default:
			return nil, graph.Output{}, compileerr.New(compileerr.CodeInvalidCollectionAccess, spanOf(e.Property.Span),
				"computed member key must fold to a string or number")
		}
	}

	// A genuinely dynamic index can't inline into a JSON Path; States.
	// ArrayGetItem(base, idx) is ASL's only runtime-index read. Because the
	// same base may denote an array or an object, lowering still emits the
	// three-way disambiguating Choice Design Note §9 requires, even though
	// every leg converges on the same ArrayGetItem read — ASL has no
	// second intrinsic for a runtime object-key read, so the Choice exists
	// to preserve the source's disambiguation structure, not to diverge
	// the actual access (spec.md §4.6).
	propSub, propOut, err := c.lowerExpr(e.Property)
	if err != nil {
		return nil, graph.Output{}, err
	}
	idxArgSub, idxArg := c.toArg("memberIndex", propOut)
	accessSub, accessPath := c.lowerDynamicMemberAccess(objPath, idxArg)
	return joinExprSubs(base, propSub, idxArgSub, accessSub), graph.Path(accessPath), nil
}

// lowerDynamicMemberAccess implements spec.md §4.6's array/object
// disambiguation for `base[idx]` when idx is not a compile-time constant:
// `base[0]` present → array; else a `.length` property present → object;
// else a default leg (Design Note §9). No stringify-and-compare with "[]"
// is emitted: all three legs copy the same ArrayGetItem result.
func (c *Compiler) lowerDynamicMemberAccess(base string, idxArg intrinsic.Arg) (*graph.SubState, string) {
	getSub, getPath := c.assignIntrinsic("memberDynamic", intrinsic.NewArrayGetItem(intrinsic.PathArg(base), idxArg))

	container := c.newHeapContainer()
	arrLbl, objLbl, strLbl, choiceLbl := c.label("memberArray"), c.label("memberObject"), c.label("memberStringifyCheck"), c.label("memberChoice")
	choice := &graph.NodeState{
		Type: graph.TypeChoice,
		Choices: []graph.ChoiceRule{
			{Condition: cond.IsPresent(base + "[0]"), Next: arrLbl},
			{Condition: cond.IsPresent(base + ".length"), Next: objLbl},
		},
		Default:  strLbl,
		AstLabel: "dynamic member access array/object disambiguation",
	}
	arrBranch := c.assignFinalOutput("memberArrayResult", graph.Path(getPath), container)
	objBranch := c.assignFinalOutput("memberObjectResult", graph.Path(getPath), container)
	strBranch := c.assignFinalOutput("memberStringifyResult", graph.Path(getPath), container)

	dispatch := graph.NewSubState(choiceLbl, map[string]graph.Entry{
		choiceLbl: graph.NodeEntry(choice),
		arrLbl:    graph.SubEntry(arrBranch),
		objLbl:    graph.SubEntry(objBranch),
		strLbl:    graph.SubEntry(strBranch),
	})
	return joinExprSubs(getSub, dispatch), container
}

// lowerObjectLit builds an object literal. Without spreads, the whole tree
// lowers to a single Literal/LitWithPaths Output and needs no states at
// all. Spreads fold left-to-right through States.JsonMerge, each operand
// first materialized to a path (spec.md §4.6).
func (c *Compiler) lowerObjectLit(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	hasSpread := false
	for _, p := range e.Props {
		if p.IsSpread {
			hasSpread = true
			break
		}
	}

	if !hasSpread {
		var subs []*graph.SubState
		tree := map[string]interface{}{}
		containsPath := false
		for _, p := range e.Props {
			sub, out, err := c.lowerExpr(p.Value)
			if err != nil {
				return nil, graph.Output{}, err
			}
			subs = append(subs, sub)
			switch {
			case out.IsPath():
				tree[p.Key] = graph.PathMarker{Path: out.Path}
				containsPath = true
			case out.IsLiteral():
				tree[p.Key] = out.Literal
				if out.ContainsJsonPath {
					containsPath = true
				}
			default:
				condSub, path := c.materializeCondition(out.Cond)
				subs = append(subs, condSub)
				tree[p.Key] = graph.PathMarker{Path: path}
				containsPath = true
			}
		}
		if containsPath {
			return joinExprSubs(subs...), graph.LitWithPaths(tree), nil
		}
		return joinExprSubs(subs...), graph.Lit(tree), nil
	}

	var subs []*graph.SubState
	var accPath string
	for i, p := range e.Props {
		var partOut graph.Output
		if p.IsSpread {
			sub, out, err := c.lowerExpr(p.Spread)
			if err != nil {
				return nil, graph.Output{}, err
			}
			subs = append(subs, sub)
			partOut = out
		} else {
			sub, out, err := c.lowerExpr(p.Value)
			if err != nil {
				return nil, graph.Output{}, err
			}
			subs = append(subs, sub)
			single := map[string]interface{}{}
			switch {
			case out.IsPath():
				single[p.Key] = graph.PathMarker{Path: out.Path}
			case out.IsLiteral():
				single[p.Key] = out.Literal
			default:
				condSub, path := c.materializeCondition(out.Cond)
				subs = append(subs, condSub)
				single[p.Key] = graph.PathMarker{Path: path}
			}
			partOut = graph.LitWithPaths(single)
		}
		partSub, partPath := c.materializeToPath("objPart", partOut)
		subs = append(subs, partSub)
		if i == 0 {
			accPath = partPath
			continue
		}
		mergeExpr := intrinsic.NewJsonMerge(intrinsic.PathArg(accPath), intrinsic.PathArg(partPath))
		mergeSub, mergePath := c.assignIntrinsic("objMerge", mergeExpr)
		subs = append(subs, mergeSub)
		accPath = mergePath
	}
	return joinExprSubs(subs...), graph.Path(accPath), nil
}

// lowerArrayLit builds an array literal via States.Array. A spread element
// must itself fold to a constant array (its items are inlined); a dynamic
// spread is not supported, since ASL has no array-concatenation intrinsic.
func (c *Compiler) lowerArrayLit(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	var subs []*graph.SubState
	var args []intrinsic.Arg
	allConstant := true
	var constItems []interface{}

	for i := range e.Elements {
		el := &e.Elements[i]
		if el.Kind == ast.ExprSpread {
			folded, ok := foldConstant(el.Argument)
			items, isArr := folded.([]interface{})
			if !ok || !isArr {
				return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(el.Span),
					"spread of a non-constant array in an array literal is not supported")
			}
			for _, it := range items {
				args = append(args, intrinsic.LiteralArg(it))
				constItems = append(constItems, it)
			}
			continue
		}
		sub, out, err := c.lowerExpr(el)
		if err != nil {
			return nil, graph.Output{}, err
		}
		subs = append(subs, sub)
		switch {
		case out.IsPath():
			allConstant = false
			args = append(args, intrinsic.PathArg(out.Path))
		case out.IsLiteral() && !out.ContainsJsonPath:
			args = append(args, intrinsic.LiteralArg(out.Literal))
			constItems = append(constItems, out.Literal)
		default:
			allConstant = false
			sub2, path := c.materializeToPath("arrayElem", out)
			subs = append(subs, sub2)
			args = append(args, intrinsic.PathArg(path))
		}
	}

	if allConstant {
		return joinExprSubs(subs...), graph.Lit(constItems), nil
	}
	expr := intrinsic.NewArray(args...)
	sub, path := c.assignIntrinsic("arrayLit", expr)
	return joinExprSubs(append(subs, sub)...), graph.Path(path), nil
}

// lowerTemplate builds a template literal via States.Format, one "{}" per
// interpolated expression (spec.md §4.6).
func (c *Compiler) lowerTemplate(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	var subs []*graph.SubState
	var args []intrinsic.Arg
	for i := range e.Expressions {
		sub, out, err := c.lowerExpr(&e.Expressions[i])
		if err != nil {
			return nil, graph.Output{}, err
		}
		subs = append(subs, sub)
		switch {
		case out.IsPath():
			args = append(args, intrinsic.PathArg(out.Path))
		case out.IsLiteral() && !out.ContainsJsonPath:
			args = append(args, intrinsic.LiteralArg(out.Literal))
		default:
			sub2, path := c.materializeToPath("templateArg", out)
			subs = append(subs, sub2)
			args = append(args, intrinsic.PathArg(path))
		}
	}
	fmtSpec := joinQuasis(e.Quasis)
	formatExpr := intrinsic.NewFormat(fmtSpec, args...)
	sub, path := c.assignIntrinsic("template", formatExpr)
	return joinExprSubs(append(subs, sub)...), graph.Path(path), nil
}

func joinQuasis(quasis []string) string {
	out := ""
	for i, q := range quasis {
		if i > 0 {
			out += "{}"
		}
		out += q
	}
	return out
}

func (c *Compiler) lowerUnary(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	sub, out, err := c.lowerExpr(e.Operand)
	if err != nil {
		return nil, graph.Output{}, err
	}
	switch e.Operator {
	case "!":
		condSub, cd, err := c.toCondition(out)
		if err != nil {
			return nil, graph.Output{}, err
		}
		return joinExprSubs(sub, condSub), graph.Cond(cond.Not(cd)), nil
	case "+":
		numSub, numOut, err := c.toNumber(out)
		if err != nil {
			return nil, graph.Output{}, err
		}
		return joinExprSubs(sub, numSub), numOut, nil
	case "-":
		numSub, numOut, err := c.toNumber(out)
		if err != nil {
			return nil, graph.Output{}, err
		}
		negSub, negOut := c.negateNumber(numOut)
		return joinExprSubs(sub, numSub, negSub), negOut, nil
	default:
		return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span), "unary operator %q is not supported", e.Operator)
	}
}

// lowerUpdate implements ++/-- as MathAdd(current, ±1), assigned back to
// the operand's binding. Prefix yields the new value; postfix yields the
// old one (spec.md §4.6).
func (c *Compiler) lowerUpdate(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	target, err := c.resolveAssignTarget(e.Operand)
	if err != nil {
		return nil, graph.Output{}, err
	}
	delta := 1.0
	if e.Operator == "--" {
		delta = -1.0
	}
	addExpr := intrinsic.NewMathAdd(intrinsic.PathArg(target), intrinsic.LiteralArg(delta))
	addSub, newPath := c.assignIntrinsic("update", addExpr)

	if e.Prefix {
		writeSub := c.assignFinalOutput("update", graph.Path(newPath), target)
		return joinExprSubs(addSub, writeSub), graph.Path(target), nil
	}

	oldContainer := c.newHeapContainer()
	saveSub := c.assignFinalOutput("updateSaveOld", graph.Path(target), oldContainer)
	writeSub := c.assignFinalOutput("update", graph.Path(newPath), target)
	return joinExprSubs(saveSub, addSub, writeSub), graph.Path(oldContainer), nil
}

func (c *Compiler) lowerTypeof(e *ast.Expr) (*graph.SubState, graph.Output, error) {
	sub, out, err := c.lowerExpr(e.Argument)
	if err != nil {
		return nil, graph.Output{}, err
	}
	if out.IsLiteral() && !out.ContainsJsonPath {
		return sub, graph.Lit(jsTypeOfLiteral(out.Literal)), nil
	}
	sub2, path := c.materializeToPath("typeofOperand", out)
	container := c.newHeapContainer()
	n := &graph.NodeState{
		Type: graph.TypeChoice,
		Choices: []graph.ChoiceRule{
			{Condition: cond.IsMissing(path), Next: c.label("typeofUndefined")},
			{Condition: cond.IsString(path), Next: c.label("typeofString")},
			{Condition: cond.IsNumeric(path), Next: c.label("typeofNumber")},
			{Condition: cond.IsBoolean(path), Next: c.label("typeofBoolean")},
		},
		AstLabel: "typeof dispatch",
	}
	undefLbl, strLbl, numLbl, boolLbl := n.Choices[0].Next, n.Choices[1].Next, n.Choices[2].Next, n.Choices[3].Next
	objLbl := c.label("typeofObject")
	n.Default = objLbl
	choiceLbl := c.label("typeofChoice")
	states := map[string]graph.Entry{
		choiceLbl: graph.NodeEntry(n),
		undefLbl:  graph.NodeEntry(&graph.NodeState{Type: graph.TypePass, Result: "undefined", ResultPath: strp(container), Next: graph.DeferredNext}),
		strLbl:    graph.NodeEntry(&graph.NodeState{Type: graph.TypePass, Result: "string", ResultPath: strp(container), Next: graph.DeferredNext}),
		numLbl:    graph.NodeEntry(&graph.NodeState{Type: graph.TypePass, Result: "number", ResultPath: strp(container), Next: graph.DeferredNext}),
		boolLbl:   graph.NodeEntry(&graph.NodeState{Type: graph.TypePass, Result: "boolean", ResultPath: strp(container), Next: graph.DeferredNext}),
		objLbl:    graph.NodeEntry(&graph.NodeState{Type: graph.TypePass, Result: "object", ResultPath: strp(container), Next: graph.DeferredNext}),
	}
	dispatch := graph.NewSubState(choiceLbl, states)
	return joinExprSubs(sub, sub2, dispatch), graph.Path(container), nil
}

func jsTypeOfLiteral(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, int:
		return "number"
	case bool:
		return "boolean"
	default:
		return "object"
	}
}

// toCondition coerces any Output to a *cond.Condition, per spec.md §4.1's
// truthiness rule when out isn't already a Condition.
func (c *Compiler) toCondition(out graph.Output) (*graph.SubState, *cond.Condition, error) {
	if out.IsCondition() {
		return nil, out.Cond, nil
	}
	sub, path := c.materializeToPath("truthiness", out)
	return sub, cond.IsTruthy(path), nil
}

// resolveAssignTarget lowers an identifier lvalue to the JSON Path it
// should be written to; any other target, member access included, is
// rejected.
func (c *Compiler) resolveAssignTarget(e *ast.Expr) (string, error) {
	switch e.Kind {
	case ast.ExprIdentifier:
		path, ok := c.lookupVar(e.Name)
		if !ok {
			return "", compileerr.New(compileerr.CodeInvalidInput, spanOf(e.Span), "identifier %q is not bound", e.Name)
		}
		return path, nil
	default:
		return "", compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span), "this expression cannot be assigned to")
	}
}
