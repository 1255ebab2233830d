// This file implements C7, the Statement Lowerer (spec.md §4.7): turning
// a normalized function body's statement list into the SubState tree that
// sequences it, including loops (via the shared index-loop skeleton C11
// already carries break/continue retargeting for), early exit, and
// try/catch/finally.
package lower

import (
	"flowjs-works/aslcompiler/internal/ast"
	"flowjs-works/aslcompiler/internal/cond"
	"flowjs-works/aslcompiler/internal/compileerr"
	"flowjs-works/aslcompiler/internal/graph"
	"flowjs-works/aslcompiler/internal/intrinsic"
)

// lowerStmts lowers a statement list as a sequential join, threading ret
// through every statement so a `return` anywhere in the list resolves the
// same way (spec.md §4.7, §9).
func (c *Compiler) lowerStmts(body []ast.Stmt, ret returnTemplate) (*graph.SubState, error) {
	var subs []*graph.SubState
	for i := range body {
		sub, err := c.lowerStmt(&body[i], ret)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			subs = append(subs, sub)
		}
	}
	return joinExprSubs(subs...), nil
}

func (c *Compiler) lowerStmt(s *ast.Stmt, ret returnTemplate) (*graph.SubState, error) {
	switch s.Kind {
	case ast.StmtBlock:
		c.pushScope()
		defer c.popScope()
		return c.lowerStmts(s.Body, ret)
	case ast.StmtIf:
		return c.lowerIf(s, ret)
	case ast.StmtFor:
		return c.lowerFor(s, ret)
	case ast.StmtWhile:
		return c.lowerWhile(s, ret)
	case ast.StmtDoWhile:
		return c.lowerDoWhile(s, ret)
	case ast.StmtForOf:
		return c.lowerForOf(s, ret)
	case ast.StmtForIn:
		return c.lowerForIn(s, ret)
	case ast.StmtReturn:
		return c.lowerReturn(s, ret)
	case ast.StmtThrow:
		return c.lowerThrow(s)
	case ast.StmtTry:
		return c.lowerTry(s, ret)
	case ast.StmtVarDecl:
		var subs []*graph.SubState
		for i := range s.Decls {
			sub, err := c.bindDeclarator(&s.Decls[i])
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
		return joinExprSubs(subs...), nil
	case ast.StmtBreak, ast.StmtContinue:
		return c.lowerBreakContinue(s)
	case ast.StmtExpression:
		sub, _, err := c.lowerExpr(s.Expression)
		return sub, err
	default:
		return nil, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(s.Span), "statement kind %s is not supported", s.Kind)
	}
}

// lowerBreakContinue emits the reserved sentinel a loop's RetargetLabel
// pass later resolves (spec.md §4.7, §9). Labeled break/continue is
// rejected — spec.md never describes labeled loops.
func (c *Compiler) lowerBreakContinue(s *ast.Stmt) (*graph.SubState, error) {
	if s.Label != "" {
		return nil, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(s.Span), "labeled break/continue is not supported")
	}
	n := &graph.NodeState{Type: graph.TypePass}
	if s.Kind == ast.StmtBreak {
		n.Next = graph.BreakNext
	} else {
		n.Next = graph.ContinueNext
	}
	return c.singleState("breakContinue", n), nil
}

// lowerIf lowers `if (test) consequent else alternate` (spec.md §4.7).
// An absent branch becomes a no-op Pass so the dispatch always has both
// arms.
func (c *Compiler) lowerIf(s *ast.Stmt, ret returnTemplate) (*graph.SubState, error) {
	tsub, tout, err := c.lowerExpr(s.Test)
	if err != nil {
		return nil, err
	}
	condSub, cd, err := c.toCondition(tout)
	if err != nil {
		return nil, err
	}
	base := joinExprSubs(tsub, condSub)

	thenSub, err := c.lowerStmt(s.Consequent, ret)
	if err != nil {
		return nil, err
	}
	if thenSub == nil {
		thenSub = c.singleState("ifThenNoop", &graph.NodeState{Type: graph.TypePass, Next: graph.DeferredNext})
	}

	var elseSub *graph.SubState
	if s.Alternate != nil {
		elseSub, err = c.lowerStmt(s.Alternate, ret)
		if err != nil {
			return nil, err
		}
	}
	if elseSub == nil {
		elseSub = c.singleState("ifElseNoop", &graph.NodeState{Type: graph.TypePass, Next: graph.DeferredNext})
	}

	choiceLbl, thenLbl, elseLbl := c.label("ifChoice"), c.label("ifThen"), c.label("ifElse")
	choice := &graph.NodeState{
		Type:     graph.TypeChoice,
		Choices:  []graph.ChoiceRule{{Condition: cd, Next: thenLbl}},
		Default:  elseLbl,
		AstLabel: "if",
	}
	dispatch := graph.NewSubState(choiceLbl, map[string]graph.Entry{
		choiceLbl: graph.NodeEntry(choice),
		thenLbl:   graph.SubEntry(thenSub),
		elseLbl:   graph.SubEntry(elseSub),
	})
	return joinExprSubs(base, dispatch), nil
}

// lowerFor lowers a classic `for (init; test; update) body` (spec.md
// §4.7). break/continue inside body are retargeted before the body's own
// deferred-next is wired to the increment group, so a fallthrough and a
// continue reach the increment the same way.
func (c *Compiler) lowerFor(s *ast.Stmt, ret returnTemplate) (*graph.SubState, error) {
	c.pushScope()
	defer c.popScope()

	var initSub *graph.SubState
	if s.Init != nil {
		var err error
		initSub, err = c.lowerStmt(s.Init, ret)
		if err != nil {
			return nil, err
		}
	}

	checkLbl, bodyLbl, incrKey, exitLbl := c.label("forCheck"), c.label("forBody"), c.label("forIncr"), c.label("forExit")

	var checkNode *graph.NodeState
	var checkBase *graph.SubState
	if s.Test != nil {
		tsub, tout, err := c.lowerExpr(s.Test)
		if err != nil {
			return nil, err
		}
		condSub, cd, err := c.toCondition(tout)
		if err != nil {
			return nil, err
		}
		checkBase = joinExprSubs(tsub, condSub)
		checkNode = &graph.NodeState{
			Type:     graph.TypeChoice,
			Choices:  []graph.ChoiceRule{{Condition: cd, Next: bodyLbl}},
			Default:  exitLbl,
			AstLabel: "for check",
		}
	} else {
		checkNode = &graph.NodeState{Type: graph.TypePass, Next: bodyLbl}
	}

	bodySub, err := c.lowerStmts(s.Body, ret)
	if err != nil {
		return nil, err
	}
	if bodySub == nil {
		bodySub = c.singleState("forBodyNoop", &graph.NodeState{Type: graph.TypePass, Next: graph.DeferredNext})
	}
	graph.RetargetLabel(bodySub, graph.BreakNext, exitLbl)
	graph.RetargetLabel(bodySub, graph.ContinueNext, incrKey)
	graph.UpdateDeferredNextStates(bodySub, incrKey)

	var incrGroup *graph.SubState
	if s.Update != nil {
		usub, _, err := c.lowerExpr(s.Update)
		if err != nil {
			return nil, err
		}
		tail := c.singleState("forIncrTail", &graph.NodeState{Type: graph.TypePass, Next: checkLbl})
		incrGroup = joinExprSubs(usub, tail)
	} else {
		incrGroup = c.singleState("forIncrTail", &graph.NodeState{Type: graph.TypePass, Next: checkLbl})
	}

	exitNode := &graph.NodeState{Type: graph.TypePass, Next: graph.DeferredNext}

	states := map[string]graph.Entry{
		checkLbl: graph.NodeEntry(checkNode),
		bodyLbl:  graph.SubEntry(bodySub),
		incrKey:  graph.SubEntry(incrGroup),
		exitLbl:  graph.NodeEntry(exitNode),
	}
	full := graph.NewSubState(checkLbl, states)
	return joinExprSubs(initSub, checkBase, full), nil
}

// lowerWhile lowers `while (test) body` by re-evaluating test each pass
// (spec.md §4.7): the check label wraps both the test's own sub-states
// and the Choice itself, so a continue that jumps back to it re-runs the
// test.
func (c *Compiler) lowerWhile(s *ast.Stmt, ret returnTemplate) (*graph.SubState, error) {
	checkLbl, bodyLbl, exitLbl := c.label("whileCheck"), c.label("whileBody"), c.label("whileExit")

	tsub, tout, err := c.lowerExpr(s.Test)
	if err != nil {
		return nil, err
	}
	condSub, cd, err := c.toCondition(tout)
	if err != nil {
		return nil, err
	}
	choiceLbl := c.label("whileChoice")
	checkNode := &graph.NodeState{
		Type:     graph.TypeChoice,
		Choices:  []graph.ChoiceRule{{Condition: cd, Next: bodyLbl}},
		Default:  exitLbl,
		AstLabel: "while check",
	}
	checkSub := joinExprSubs(tsub, condSub, graph.Single(choiceLbl, checkNode))

	bodySub, err := c.lowerStmts(s.Body, ret)
	if err != nil {
		return nil, err
	}
	if bodySub == nil {
		bodySub = c.singleState("whileBodyNoop", &graph.NodeState{Type: graph.TypePass, Next: graph.DeferredNext})
	}
	graph.RetargetLabel(bodySub, graph.BreakNext, exitLbl)
	graph.RetargetLabel(bodySub, graph.ContinueNext, checkLbl)
	graph.UpdateDeferredNextStates(bodySub, checkLbl)

	exitNode := &graph.NodeState{Type: graph.TypePass, Next: graph.DeferredNext}

	return graph.NewSubState(checkLbl, map[string]graph.Entry{
		checkLbl: graph.SubEntry(checkSub),
		bodyLbl:  graph.SubEntry(bodySub),
		exitLbl:  graph.NodeEntry(exitNode),
	}), nil
}

// lowerDoWhile lowers `do body while (test)`: body runs unconditionally
// once before the first test (spec.md §4.7). continue jumps to the test,
// not straight back to body, since a do/while re-checks before repeating.
func (c *Compiler) lowerDoWhile(s *ast.Stmt, ret returnTemplate) (*graph.SubState, error) {
	checkLbl, bodyLbl, exitLbl := c.label("doWhileCheck"), c.label("doWhileBody"), c.label("doWhileExit")

	tsub, tout, err := c.lowerExpr(s.Test)
	if err != nil {
		return nil, err
	}
	condSub, cd, err := c.toCondition(tout)
	if err != nil {
		return nil, err
	}
	choiceLbl := c.label("doWhileChoice")
	checkNode := &graph.NodeState{
		Type:     graph.TypeChoice,
		Choices:  []graph.ChoiceRule{{Condition: cd, Next: bodyLbl}},
		Default:  exitLbl,
		AstLabel: "do-while check",
	}
	checkSub := joinExprSubs(tsub, condSub, graph.Single(choiceLbl, checkNode))

	bodySub, err := c.lowerStmts(s.Body, ret)
	if err != nil {
		return nil, err
	}
	if bodySub == nil {
		bodySub = c.singleState("doWhileBodyNoop", &graph.NodeState{Type: graph.TypePass, Next: graph.DeferredNext})
	}
	graph.RetargetLabel(bodySub, graph.BreakNext, exitLbl)
	graph.RetargetLabel(bodySub, graph.ContinueNext, checkLbl)
	graph.UpdateDeferredNextStates(bodySub, checkLbl)

	exitNode := &graph.NodeState{Type: graph.TypePass, Next: graph.DeferredNext}

	return graph.NewSubState(bodyLbl, map[string]graph.Entry{
		checkLbl: graph.SubEntry(checkSub),
		bodyLbl:  graph.SubEntry(bodySub),
		exitLbl:  graph.NodeEntry(exitNode),
	}), nil
}

// lowerForOf lowers `for (const x of arr) body` via the shared index
// loop, binding the declared pattern to each item in turn (spec.md
// §4.7).
func (c *Compiler) lowerForOf(s *ast.Stmt, ret returnTemplate) (*graph.SubState, error) {
	rsub, rout, err := c.lowerExpr(s.Right)
	if err != nil {
		return nil, err
	}
	arrSub, arrPath := c.materializeToPath("forOfArr", rout)

	bodyFn := func(idxPath, itemPath string) (*graph.SubState, error) {
		c.pushScope()
		defer c.popScope()
		bindSub, err := c.bindPattern(&s.Left, graph.Path(itemPath))
		if err != nil {
			return nil, err
		}
		bodySub, err := c.lowerStmts(s.Body, ret)
		if err != nil {
			return nil, err
		}
		return joinExprSubs(bindSub, bodySub), nil
	}
	loopSub, err := c.buildIndexLoop("forOf", arrPath, graph.Lit(0.0), bodyFn)
	if err != nil {
		return nil, err
	}
	return joinExprSubs(rsub, arrSub, loopSub), nil
}

// forInItemSlot is the reserved per-name hidden heap path for-in stashes
// the current item at, so code inside the loop body can look it up by
// index the same way it would against the source array (spec.md §6's
// reserved-identifier convention).
func forInItemSlot(name string) string { return "$.0__" + name }

// lowerForIn lowers `for (const k in arr) body` using the same index loop
// as for-of, binding the declared pattern to the index and additionally
// stashing the item at a reserved slot (spec.md §4.7 describes a genuine
// Map-state zip; this compiler's heap-slot variable model can't survive
// crossing into a real Map's isolated iterator scope, so the index loop
// is reused instead — see DESIGN.md).
func (c *Compiler) lowerForIn(s *ast.Stmt, ret returnTemplate) (*graph.SubState, error) {
	rsub, rout, err := c.lowerExpr(s.Right)
	if err != nil {
		return nil, err
	}
	arrSub, arrPath := c.materializeToPath("forInArr", rout)

	var stashPath string
	if s.Left.Kind == ast.PatternIdentifier {
		stashPath = forInItemSlot(s.Left.Name)
	}

	bodyFn := func(idxPath, itemPath string) (*graph.SubState, error) {
		c.pushScope()
		defer c.popScope()
		bindSub, err := c.bindPattern(&s.Left, graph.Path(idxPath))
		if err != nil {
			return nil, err
		}
		var stashSub *graph.SubState
		if stashPath != "" {
			stashSub = c.assignFinalOutput("forInStash", graph.Path(itemPath), stashPath)
		}
		bodySub, err := c.lowerStmts(s.Body, ret)
		if err != nil {
			return nil, err
		}
		return joinExprSubs(bindSub, stashSub, bodySub), nil
	}
	loopSub, err := c.buildIndexLoop("forIn", arrPath, graph.Lit(0.0), bodyFn)
	if err != nil {
		return nil, err
	}
	return joinExprSubs(rsub, arrSub, loopSub), nil
}

// markTerminal walks assign (the SubState that just wrote a return value
// to its final resting place) and converts every leaf's deferred next
// into End:true — a function-level return has nowhere further to go
// (spec.md §9).
func markTerminal(assign *graph.SubState) {
	for _, entry := range assign.States {
		switch {
		case entry.Node != nil:
			if entry.Node.Next == graph.DeferredNext {
				entry.Node.Next = ""
				entry.Node.End = true
			}
		case entry.Sub != nil:
			markTerminal(entry.Sub)
		}
	}
}

// lowerReturn lowers `return expr;` (spec.md §4.7, §9 "Cooperative early
// exit"). A terminal template ends the machine outright; a non-terminal
// one (an array-method callback body) hands the materialized value to
// ret.onReturn instead. lowerTry does not install a template of its own,
// so a return inside try/finally ends the machine before the finally runs.
func (c *Compiler) lowerReturn(s *ast.Stmt, ret returnTemplate) (*graph.SubState, error) {
	var sub *graph.SubState
	var out graph.Output
	if s.Argument != nil {
		var err error
		sub, out, err = c.lowerExpr(s.Argument)
		if err != nil {
			return nil, err
		}
	} else {
		out = graph.Path(NullSlot)
	}

	if ret.terminal {
		target := ret.resultPath
		if target == "" {
			target = "$"
		}
		assign := c.assignFinalOutput("return", out, target)
		markTerminal(assign)
		return joinExprSubs(sub, assign), nil
	}

	valSub, valPath := c.materializeToPath("returnValue", out)
	hookSub := ret.onReturn(valPath)
	return joinExprSubs(sub, valSub, hookSub), nil
}

// lowerTry lowers try/catch/finally (spec.md §4.7, §4.9). The protected
// region's reserved __catch label is retargeted to this try's own catch
// entry point before the region is embedded into anything else — it must
// be resolved here, since flattenRec commits each level's nodes to the
// output map permanently once that level has been visited.
func (c *Compiler) lowerTry(s *ast.Stmt, ret returnTemplate) (*graph.SubState, error) {
	needsHandler := s.HasCatch || s.HasFinally

	if !needsHandler {
		return c.lowerStmts(s.TryBlock, ret)
	}

	catchKey := c.label("catch")
	genSlot := c.newHeapContainer()
	frameSlot := genSlot
	if s.HasCatch && s.CatchParam == nil {
		frameSlot = ""
	}
	c.pushHandler(handlerFrame{catchKey: catchKey, resultPath: frameSlot, closureDepth: c.closureDepth})
	trySub, err := c.lowerStmts(s.TryBlock, ret)
	c.popHandler()
	if err != nil {
		return nil, err
	}
	if trySub == nil {
		trySub = c.singleState("tryBodyNoop", &graph.NodeState{Type: graph.TypePass, Next: graph.DeferredNext})
	}
	graph.RetargetLabel(trySub, graph.CatchLabel, catchKey)

	var catchSub *graph.SubState
	var erroredFlag string
	if s.HasCatch {
		c.pushScope()
		var preamble *graph.SubState
		causePath := genSlot
		if s.CatchParam != nil {
			parseSub, parsedPath := c.assignIntrinsic("catchCauseParse", intrinsic.NewStringToJson(intrinsic.PathArg(genSlot+".Cause")))
			preamble = parseSub
			causePath = parsedPath
			bindSub, err := c.bindPattern(s.CatchParam, graph.Path(causePath))
			if err != nil {
				c.popScope()
				return nil, err
			}
			preamble = joinExprSubs(preamble, bindSub)
		}
		bodySub, err := c.lowerStmts(s.CatchBlock, ret)
		c.popScope()
		if err != nil {
			return nil, err
		}
		catchSub = joinExprSubs(preamble, bodySub)
	} else {
		erroredFlag = c.newHeapContainer()
		catchSub = c.assignFinalOutput("finallyCaught", graph.Lit(true), erroredFlag)
	}
	if catchSub == nil {
		catchSub = c.singleState("tryCatchNoop", &graph.NodeState{Type: graph.TypePass, Next: graph.DeferredNext})
	}

	tryLbl, catchLbl := c.label("tryRegion"), catchKey
	combined := graph.NewSubState(tryLbl, map[string]graph.Entry{
		tryLbl:   graph.SubEntry(trySub),
		catchLbl: graph.SubEntry(catchSub),
	})

	if !s.HasFinally {
		return combined, nil
	}

	finallySub, err := c.lowerStmts(s.FinallyBlock, ret)
	if err != nil {
		return nil, err
	}
	if finallySub == nil {
		finallySub = c.singleState("tryFinallyNoop", &graph.NodeState{Type: graph.TypePass, Next: graph.DeferredNext})
	}

	if s.HasCatch {
		// A declared catch already absorbed the error; finally simply
		// runs after. A catch block that itself throws again is routed
		// by the normal throw mechanism to whatever handler encloses
		// this whole try, bypassing finally — a documented simplification
		// (see DESIGN.md).
		return joinExprSubs(combined, finallySub), nil
	}

	// Bare try/finally: after finally runs, re-raise to the next outer
	// handler if the try body actually errored (spec.md §9
	// "ReThrowFromFinally").
	checkLbl, rethrowLbl, afterLbl := c.label("finallyCheck"), c.label("finallyRethrow"), c.label("finallyAfter")
	checkNode := &graph.NodeState{
		Type:     graph.TypeChoice,
		Choices:  []graph.ChoiceRule{{Condition: cond.BooleanEquals(erroredFlag, true), Next: rethrowLbl}},
		Default:  afterLbl,
		AstLabel: "finally re-throw check",
	}

	outerTarget, outerResultPath, reachable := c.throwRoute()
	var rethrowSub *graph.SubState
	if reachable {
		n := &graph.NodeState{Type: graph.TypePass, InputPath: strp(genSlot), ResultPath: strp(outerResultPath), Next: outerTarget}
		rethrowSub = c.singleState("finallyRethrow", n)
	} else {
		n := &graph.NodeState{Type: graph.TypeFail, Error: "ReThrowFromFinally", CausePath: genSlot + ".Cause"}
		rethrowSub = c.singleState("finallyRethrow", n)
	}
	afterNode := &graph.NodeState{Type: graph.TypePass, Next: graph.DeferredNext}

	dispatch := graph.NewSubState(checkLbl, map[string]graph.Entry{
		checkLbl:   graph.NodeEntry(checkNode),
		rethrowLbl: graph.SubEntry(rethrowSub),
		afterLbl:   graph.NodeEntry(afterNode),
	})
	return joinExprSubs(combined, finallySub, dispatch), nil
}
