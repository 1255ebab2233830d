// This file implements C11, the Array-Method Skeleton (spec.md §4.11): a
// single counting-loop generator shared by map/forEach/filter/slice/join,
// plus includes (which needs no iteration at all — States.ArrayContains
// covers it directly) and filter's JSON-Path fast path, which bypasses the
// skeleton entirely for an element-versus-constant comparison predicate.
//
// Where this deviates from spec.md's literal mechanism: rather than
// seeding the accumulator string with a "[null" placeholder and dropping
// it at the end, each accumulating method carries its own "have we
// written anything yet" flag and chooses the comma-joined or bare-first
// format at each step. Same produced array, one fewer StringToJson round
// trip at the end, and no dependence on string-slicing (which ASL has no
// intrinsic for).
package lower

import (
	"fmt"
	"strconv"
	"strings"

	"flowjs-works/aslcompiler/internal/ast"
	"flowjs-works/aslcompiler/internal/cond"
	"flowjs-works/aslcompiler/internal/compileerr"
	"flowjs-works/aslcompiler/internal/graph"
	"flowjs-works/aslcompiler/internal/intrinsic"
)

func isArrayMethod(name string) bool {
	switch name {
	case "map", "forEach", "filter", "slice", "join", "includes":
		return true
	}
	return false
}

// lowerArrayMethodCall dispatches e.Callee.Property.Name (already known to
// be an array method or "includes") against e.Callee.Object.
func (c *Compiler) lowerArrayMethodCall(e *ast.Expr, method string) (*graph.SubState, graph.Output, error) {
	objSub, objOut, err := c.lowerExpr(e.Callee.Object)
	if err != nil {
		return nil, graph.Output{}, err
	}
	baseSub, arrPath := c.materializeToPath("arrayMethodBase", objOut)
	base := joinExprSubs(objSub, baseSub)

	switch method {
	case "join":
		return c.lowerArrayJoin(e, arrPath, base)
	case "includes":
		return c.lowerArrayIncludes(e, arrPath, base)
	case "slice":
		return c.lowerArraySlice(e, arrPath, base)
	case "map", "forEach", "filter":
		if len(e.Arguments) != 1 || e.Arguments[0].Kind != ast.ExprArrow {
			return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span),
				"%s requires an inline callback argument", method)
		}
		callback := &e.Arguments[0]
		if method == "filter" {
			if jsonPath, ok := filterJSONPathExpr(callback, arrPath); ok {
				container := c.newHeapContainer()
				n := &graph.NodeState{Type: graph.TypePass, InputPath: strp(jsonPath), ResultPath: strp(container), Next: graph.DeferredNext}
				return joinExprSubs(base, c.singleState("filterJsonPath", n)), graph.Path(container), nil
			}
		}
		return c.lowerArrayIterate(e, method, arrPath, callback, base)
	default:
		return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span),
			"array method %q is not supported", method)
	}
}

// filterJSONPathExpr attempts spec.md §4.11's filter-over-a-JSON-path fast
// path: a single-statement `return item <op> constant` callback (item
// optionally reached through a chain of constant member accesses)
// compiles directly to a JSON Path filter expression, bypassing the
// counting-loop skeleton entirely. ok is false for any other callback
// shape, and the caller falls back to the skeleton.
func filterJSONPathExpr(callback *ast.Expr, arrPath string) (string, bool) {
	if len(callback.ArrowParams) == 0 || len(callback.ArrowBody) != 1 {
		return "", false
	}
	ret := callback.ArrowBody[0]
	if ret.Kind != ast.StmtReturn || ret.Argument == nil {
		return "", false
	}
	e := ret.Argument
	if e.Kind != ast.ExprBinary {
		return "", false
	}
	op, ok := jsonPathFilterOp(e.Operator)
	if !ok {
		return "", false
	}
	itemName := callback.ArrowParams[0].Name

	if lhs, ok := filterOperandPath(e.Left, itemName); ok {
		if rv, ok := foldConstant(e.Right); ok {
			if lit, ok := jsonPathLiteral(rv); ok {
				return fmt.Sprintf("%s[?(%s %s %s)]", arrPath, lhs, op, lit), true
			}
		}
		return "", false
	}
	return "", false
}

// filterOperandPath renders e as a "@"-rooted JSON Path when e is exactly
// the callback's element parameter, or a chain of static member accesses
// off it; ok is false for anything else (a computed key, a different
// identifier, a call).
func filterOperandPath(e *ast.Expr, itemName string) (string, bool) {
	switch e.Kind {
	case ast.ExprIdentifier:
		if e.Name == itemName {
			return "@", true
		}
		return "", false
	case ast.ExprMember:
		if e.Computed {
			return "", false
		}
		base, ok := filterOperandPath(e.Object, itemName)
		if !ok {
			return "", false
		}
		return base + "." + e.Property.Name, true
	default:
		return "", false
	}
}

func jsonPathFilterOp(op string) (string, bool) {
	switch op {
	case "===", "==":
		return "==", true
	case "!==", "!=":
		return "!=", true
	case "<", "<=", ">", ">=":
		return op, true
	default:
		return "", false
	}
}

func jsonPathLiteral(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(t, "'", "\\'") + "'", true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

// lowerArraySlice implements .slice(start, end?): the index range is
// materialized via States.ArrayRange, then the counting-loop skeleton
// walks that range, fetching each source element by index through
// States.ArrayGetItem before accumulating it the same way map does
// (spec.md §4.11).
func (c *Compiler) lowerArraySlice(e *ast.Expr, arrPath string, base *graph.SubState) (*graph.SubState, graph.Output, error) {
	if len(e.Arguments) == 0 || len(e.Arguments) > 2 {
		return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span),
			"slice expects one or two arguments")
	}
	lenSub, lenPath := c.assignIntrinsic("sliceLength", intrinsic.NewArrayLength(intrinsic.PathArg(arrPath)))

	startSub, startOut, err := c.lowerExpr(&e.Arguments[0])
	if err != nil {
		return nil, graph.Output{}, err
	}
	startNumSub, startNum, err := c.toNumber(startOut)
	if err != nil {
		return nil, graph.Output{}, err
	}
	startArgSub, startArg := c.toArg("sliceStart", startNum)

	endArg := intrinsic.PathArg(lenPath)
	var endSub, endNumSub, endArgSub *graph.SubState
	if len(e.Arguments) == 2 {
		var endOut graph.Output
		endSub, endOut, err = c.lowerExpr(&e.Arguments[1])
		if err != nil {
			return nil, graph.Output{}, err
		}
		var endNum graph.Output
		endNumSub, endNum, err = c.toNumber(endOut)
		if err != nil {
			return nil, graph.Output{}, err
		}
		endArgSub, endArg = c.toArg("sliceEnd", endNum)
	}

	rangeSub, rangePath := c.assignIntrinsic("sliceRange", intrinsic.NewArrayRange(startArg, endArg, intrinsic.LiteralArg(1.0)))

	accPath := c.newHeapContainer()
	firstFlagPath := c.newHeapContainer()
	initAcc := c.assignFinalOutput("sliceAccInit", graph.Lit("["), accPath)
	initFlag := c.assignFinalOutput("sliceFlagInit", graph.Lit(true), firstFlagPath)

	bodyFn := func(_, idxValuePath string) (*graph.SubState, error) {
		itemSub, itemPath := c.assignIntrinsic("sliceItem", intrinsic.NewArrayGetItem(intrinsic.PathArg(arrPath), intrinsic.PathArg(idxValuePath)))
		strSub, strPath := c.assignIntrinsic("sliceStringify", intrinsic.NewJsonToString(intrinsic.PathArg(itemPath)))
		appendSub := c.appendAccumulator(accPath, firstFlagPath, strPath, ",")
		return joinExprSubs(itemSub, strSub, appendSub), nil
	}

	loopSub, err := c.buildIndexLoop("slice", rangePath, graph.Lit(0.0), bodyFn)
	if err != nil {
		return nil, graph.Output{}, err
	}

	closeSub, closedPath := c.assignIntrinsic("sliceClose", intrinsic.NewFormat("{}]", intrinsic.PathArg(accPath)))
	parseSub, parsedPath := c.assignIntrinsic("sliceParse", intrinsic.NewStringToJson(intrinsic.PathArg(closedPath)))

	return joinExprSubs(base, lenSub, startSub, startNumSub, startArgSub, endSub, endNumSub, endArgSub,
		rangeSub, initAcc, initFlag, loopSub, closeSub, parseSub), graph.Path(parsedPath), nil
}

// lowerArrayIncludes implements .includes without any loop at all
// (spec.md §4.11: "no iteration if start-index is absent and array is a
// plain path").
func (c *Compiler) lowerArrayIncludes(e *ast.Expr, arrPath string, base *graph.SubState) (*graph.SubState, graph.Output, error) {
	if len(e.Arguments) != 1 {
		return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span),
			"includes expects exactly one argument")
	}
	vsub, vout, err := c.lowerExpr(&e.Arguments[0])
	if err != nil {
		return nil, graph.Output{}, err
	}
	vArgSub, vArg := c.toArg("includesValue", vout)
	resSub, path := c.assignIntrinsic("includes", intrinsic.NewArrayContains(intrinsic.PathArg(arrPath), vArg))
	return joinExprSubs(base, vsub, vArgSub, resSub), graph.Path(path), nil
}

// buildIndexLoop builds a manual counting loop over arrPath: idx starts
// at startIdx, runs bodyFn(idxPath, itemPath) each pass while idx < length,
// incrementing idx by 1 afterward. The returned sub-state's trailing
// DeferredNext is the loop's exit edge — the caller joins it with
// whatever comes after the loop the usual way.
func (c *Compiler) buildIndexLoop(hint, arrPath string, startIdx graph.Output, bodyFn func(idxPath, itemPath string) (*graph.SubState, error)) (*graph.SubState, error) {
	idxPath := c.newHeapContainer()
	initIdx := c.assignFinalOutput(hint+"InitIdx", startIdx, idxPath)
	lenSub, lenPath := c.assignIntrinsic(hint+"Length", intrinsic.NewArrayLength(intrinsic.PathArg(arrPath)))

	checkLbl, bodyLbl := c.label(hint+"Check"), c.label(hint+"Body")
	checkNode := &graph.NodeState{
		Type:     graph.TypeChoice,
		Choices:  []graph.ChoiceRule{{Condition: cond.NumericLessThanPath(idxPath, lenPath), Next: bodyLbl}},
		Default:  graph.DeferredNext,
		AstLabel: hint + " loop check",
	}

	itemSub, itemPath := c.assignIntrinsic(hint+"Item", intrinsic.NewArrayGetItem(intrinsic.PathArg(arrPath), intrinsic.PathArg(idxPath)))

	userBody, err := bodyFn(idxPath, itemPath)
	if err != nil {
		return nil, err
	}

	tailSub, tailPath := c.assignIntrinsic(hint+"Incr", intrinsic.NewMathAdd(intrinsic.PathArg(idxPath), intrinsic.LiteralArg(1.0)))
	tailAssign := c.assignFinalOutput(hint+"TailAssign", graph.Path(tailPath), idxPath)

	// A real for-of/for-in loop body shares this skeleton with C11's
	// callback bodies (which never contain break/continue); retargeting
	// these reserved labels here is a no-op for the callback case and
	// gives every loop-shaped caller break-to-exit/continue-to-increment
	// for free (spec.md §4.7, §9).
	graph.RetargetLabel(userBody, graph.BreakNext, graph.DeferredNext)
	graph.RetargetLabel(userBody, graph.ContinueNext, tailSub.StartState)

	bodyFull := joinExprSubs(itemSub, userBody, tailSub, tailAssign)
	graph.UpdateDeferredNextStates(bodyFull, checkLbl)

	loopCore := graph.NewSubState(checkLbl, map[string]graph.Entry{
		checkLbl: graph.NodeEntry(checkNode),
		bodyLbl:  graph.SubEntry(bodyFull),
	})
	return joinExprSubs(initIdx, lenSub, loopCore), nil
}

// appendAccumulator writes valuePath into accPath, preceded by sep unless
// firstFlagPath is still true (in which case it also flips the flag to
// false) — the "have we written anything yet" check that replaces
// spec.md's null-placeholder-and-drop mechanism.
func (c *Compiler) appendAccumulator(accPath, firstFlagPath, valuePath, sep string) *graph.SubState {
	firstLbl, restLbl, choiceLbl := c.label("accFirst"), c.label("accRest"), c.label("accChoice")
	choice := &graph.NodeState{
		Type:     graph.TypeChoice,
		Choices:  []graph.ChoiceRule{{Condition: cond.BooleanEquals(firstFlagPath, true), Next: firstLbl}},
		Default:  restLbl,
		AstLabel: "accumulator first-element check",
	}

	firstFmtSub, firstFmtPath := c.assignIntrinsic("accFormatFirst", intrinsic.NewFormat("{}{}", intrinsic.PathArg(accPath), intrinsic.PathArg(valuePath)))
	firstBranch := joinExprSubs(
		firstFmtSub,
		c.assignFinalOutput("accAssignFirst", graph.Path(firstFmtPath), accPath),
		c.assignFinalOutput("accFlagAssign", graph.Lit(false), firstFlagPath),
	)

	restFmtSub, restFmtPath := c.assignIntrinsic("accFormatRest", intrinsic.NewFormat("{}{}{}", intrinsic.PathArg(accPath), intrinsic.LiteralArg(sep), intrinsic.PathArg(valuePath)))
	restBranch := joinExprSubs(restFmtSub, c.assignFinalOutput("accAssignRest", graph.Path(restFmtPath), accPath))

	return graph.NewSubState(choiceLbl, map[string]graph.Entry{
		choiceLbl: graph.NodeEntry(choice),
		firstLbl:  graph.SubEntry(firstBranch),
		restLbl:   graph.SubEntry(restBranch),
	})
}

// lowerArrayIterate implements map, forEach, and filter as specializations
// of the same counting loop (spec.md §4.11).
func (c *Compiler) lowerArrayIterate(e *ast.Expr, method, arrPath string, callback *ast.Expr, base *graph.SubState) (*graph.SubState, graph.Output, error) {
	var accPath, firstFlagPath string
	var initAcc, initFlag *graph.SubState
	if method != "forEach" {
		accPath = c.newHeapContainer()
		firstFlagPath = c.newHeapContainer()
		initAcc = c.assignFinalOutput("iterAccInit", graph.Lit("["), accPath)
		initFlag = c.assignFinalOutput("iterFlagInit", graph.Lit(true), firstFlagPath)
	}

	bodyFn := func(idxPath, itemPath string) (*graph.SubState, error) {
		c.pushScope()
		defer c.popScope()
		if len(callback.ArrowParams) > 0 {
			c.top()[callback.ArrowParams[0].Name] = itemPath
		}
		if len(callback.ArrowParams) > 1 {
			c.top()[callback.ArrowParams[1].Name] = idxPath
		}

		resultContainer := c.newHeapContainer()
		ret := returnTemplate{
			resultPath: "",
			terminal:   false,
			onReturn: func(valuePath string) *graph.SubState {
				return c.assignFinalOutput("iterCallbackResult", graph.Path(valuePath), resultContainer)
			},
		}
		callSub, err := c.lowerStmts(callback.ArrowBody, ret)
		if err != nil {
			return nil, err
		}

		switch method {
		case "forEach":
			return callSub, nil
		case "map":
			strSub, strPath := c.assignIntrinsic("mapStringify", intrinsic.NewJsonToString(intrinsic.PathArg(resultContainer)))
			appendSub := c.appendAccumulator(accPath, firstFlagPath, strPath, ",")
			return joinExprSubs(callSub, strSub, appendSub), nil
		case "filter":
			condSub, cd, err := c.toCondition(graph.Path(resultContainer))
			if err != nil {
				return nil, err
			}
			strSub, strPath := c.assignIntrinsic("filterStringify", intrinsic.NewJsonToString(intrinsic.PathArg(itemPath)))
			appendSub := c.appendAccumulator(accPath, firstFlagPath, strPath, ",")

			keepLbl, skipLbl, choiceLbl := c.label("filterKeep"), c.label("filterSkip"), c.label("filterChoice")
			choice := &graph.NodeState{
				Type:     graph.TypeChoice,
				Choices:  []graph.ChoiceRule{{Condition: cd, Next: keepLbl}},
				Default:  skipLbl,
				AstLabel: "filter predicate",
			}
			keepBranch := joinExprSubs(strSub, appendSub)
			skipBranch := c.assignFinalOutput("filterSkipNoop", graph.Path(accPath), accPath)
			dispatch := graph.NewSubState(choiceLbl, map[string]graph.Entry{
				choiceLbl: graph.NodeEntry(choice),
				keepLbl:   graph.SubEntry(keepBranch),
				skipLbl:   graph.SubEntry(skipBranch),
			})
			return joinExprSubs(callSub, condSub, dispatch), nil
		default:
			return nil, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span), "unsupported array method %q", method)
		}
	}

	loopSub, err := c.buildIndexLoop(method, arrPath, graph.Lit(0.0), bodyFn)
	if err != nil {
		return nil, graph.Output{}, err
	}

	if method == "forEach" {
		return joinExprSubs(base, loopSub), graph.Path(NullSlot), nil
	}

	closeSub, closedPath := c.assignIntrinsic(method+"Close", intrinsic.NewFormat("{}]", intrinsic.PathArg(accPath)))
	parseSub, parsedPath := c.assignIntrinsic(method+"Parse", intrinsic.NewStringToJson(intrinsic.PathArg(closedPath)))
	return joinExprSubs(base, initAcc, initFlag, loopSub, closeSub, parseSub), graph.Path(parsedPath), nil
}

// lowerArrayJoin implements .join(sep): sep must fold to a constant
// string (spec.md §4.11 restricts join's separator the same way every
// other string-building intrinsic argument must be either a path or a
// compile-time constant, since Format's literal segments can't be
// assembled from a runtime value).
func (c *Compiler) lowerArrayJoin(e *ast.Expr, arrPath string, base *graph.SubState) (*graph.SubState, graph.Output, error) {
	sep := ","
	switch len(e.Arguments) {
	case 0:
	case 1:
		folded, ok := foldConstant(&e.Arguments[0])
		s, isStr := folded.(string)
		if !ok || !isStr {
			return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span),
				"join separator must be a compile-time constant string")
		}
		sep = s
	default:
		return nil, graph.Output{}, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Span), "join expects at most one argument")
	}

	accPath := c.newHeapContainer()
	firstFlagPath := c.newHeapContainer()
	initAcc := c.assignFinalOutput("joinAccInit", graph.Lit(""), accPath)
	initFlag := c.assignFinalOutput("joinFlagInit", graph.Lit(true), firstFlagPath)

	bodyFn := func(idxPath, itemPath string) (*graph.SubState, error) {
		strSub, strOut, err := c.toJSString(graph.Path(itemPath))
		if err != nil {
			return nil, err
		}
		strValSub, strValPath := c.materializeToPath("joinItemStr", strOut)
		appendSub := c.appendAccumulator(accPath, firstFlagPath, strValPath, sep)
		return joinExprSubs(strSub, strValSub, appendSub), nil
	}

	loopSub, err := c.buildIndexLoop("join", arrPath, graph.Lit(0.0), bodyFn)
	if err != nil {
		return nil, graph.Output{}, err
	}
	return joinExprSubs(base, initAcc, initFlag, loopSub), graph.Path(accPath), nil
}
