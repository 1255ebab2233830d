// This file implements C9, the Error Router (spec.md §4.9): deciding, for
// a throw statement or a synthesized task-failure Catch, whether a nearby
// handler can see the error and how to address it, or whether it must
// surface as a terminal Fail.
package lower

import (
	"encoding/json"

	"flowjs-works/aslcompiler/internal/ast"
	"flowjs-works/aslcompiler/internal/compileerr"
	"flowjs-works/aslcompiler/internal/graph"
	"flowjs-works/aslcompiler/internal/intrinsic"
)

// handlerFrame is one entry of the compiler's handler stack, pushed while
// lowering a try's protected region and popped once that region (and
// only that region — not its catch/finally) is done lowering.
type handlerFrame struct {
	// catchKey is the local label the protected region's __catch pseudo-
	// state (and any integration Catch rule) should resolve to.
	catchKey string
	// resultPath is where the error envelope lands: a heap slot when the
	// frame needs to see it (a declared catch variable, or a try/finally
	// that may need to re-raise it), "" meaning ResultPath: null (spec.md
	// §4.9 point 4's "otherwise ResultPath: null").
	resultPath string
	// closureDepth is the c.closureDepth at push time. A throw can only
	// reach a frame whose closureDepth matches the throw site's own
	// (spec.md §4.9 point 5): this implementation never introduces a real
	// Map/Parallel closure boundary for user code (for-in's "zip" is
	// modeled as a plain index loop, not a genuine Map state — see
	// DESIGN.md), so in practice this is always satisfied, but the check
	// is kept so an Iterator-backed construct could plug into it later.
	closureDepth int
}

func (c *Compiler) pushHandler(f handlerFrame) { c.handlers = append(c.handlers, f) }
func (c *Compiler) popHandler()                { c.handlers = c.handlers[:len(c.handlers)-1] }

// throwRoute computes where a throw (or a synthesized task Catch) at the
// current lexical position should go: the nearest enclosing handler
// reachable from the current closure depth, or reachable=false when none
// exists (spec.md §4.9 points 3-5).
func (c *Compiler) throwRoute() (target string, resultPath string, reachable bool) {
	if len(c.handlers) == 0 {
		return "", "", false
	}
	top := c.handlers[len(c.handlers)-1]
	if top.closureDepth != c.closureDepth {
		return "", "", false
	}
	rp := top.resultPath
	if rp == "" {
		rp = "null"
	}
	return top.catchKey, rp, true
}

// throwCallKind recognizes the two blessed throw-constructor call shapes;
// this AST has no separate "new" expression node, so `new Error(msg)` and
// `Error(msg)` are indistinguishable here and both accepted (spec.md §4.7,
// §4.5's normalizer comment).
func throwCallKind(e *ast.Expr) (string, bool) {
	if e == nil || e.Kind != ast.ExprCall || e.Callee == nil || e.Callee.Kind != ast.ExprIdentifier {
		return "", false
	}
	switch e.Callee.Name {
	case "Error", "StepFunctionError":
		return e.Callee.Name, true
	}
	return "", false
}

// lowerThrow lowers a throw statement (spec.md §4.7, §4.9). Only
// Error(msg)/new Error(msg) and new StepFunctionError(name, cause) are
// accepted; StepFunctionError's arguments must both fold to compile-time
// constants.
func (c *Compiler) lowerThrow(s *ast.Stmt) (*graph.SubState, error) {
	kind, ok := throwCallKind(s.Argument)
	if !ok {
		return nil, compileerr.New(compileerr.CodeThrowMustBeErrorOrSFE, spanOf(s.Span),
			"throw argument must be Error(...), new Error(...), or new StepFunctionError(...)")
	}

	var sub *graph.SubState
	var errorName string
	var causeOut graph.Output

	switch kind {
	case "Error":
		var msgOut graph.Output
		if len(s.Argument.Arguments) > 0 {
			msub, mout, err := c.lowerExpr(&s.Argument.Arguments[0])
			if err != nil {
				return nil, err
			}
			sub, msgOut = msub, mout
		} else {
			msgOut = graph.Path(NullSlot)
		}
		errorName = "Error"

		tree := map[string]interface{}{}
		containsPath := false
		switch {
		case msgOut.IsPath():
			tree["message"] = graph.PathMarker{Path: msgOut.Path}
			containsPath = true
		case msgOut.IsLiteral():
			tree["message"] = msgOut.Literal
			if msgOut.ContainsJsonPath {
				containsPath = true
			}
		default:
			condSub, path := c.materializeCondition(msgOut.Cond)
			sub = joinExprSubs(sub, condSub)
			tree["message"] = graph.PathMarker{Path: path}
			containsPath = true
		}
		if containsPath {
			causeOut = graph.LitWithPaths(tree)
		} else {
			causeOut = graph.Lit(tree)
		}

	case "StepFunctionError":
		if len(s.Argument.Arguments) != 2 {
			return nil, compileerr.New(compileerr.CodeThrowMustBeErrorOrSFE, spanOf(s.Span),
				"StepFunctionError requires exactly two arguments")
		}
		nameFolded, ok := foldConstant(&s.Argument.Arguments[0])
		name, isStr := nameFolded.(string)
		if !ok || !isStr {
			return nil, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(s.Span),
				"StepFunctionError's name must be a compile-time constant string")
		}
		causeFolded, ok := foldConstant(&s.Argument.Arguments[1])
		if !ok {
			return nil, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(s.Span),
				"StepFunctionError's cause must be constant-foldable")
		}
		errorName = name
		causeOut = graph.Lit(causeFolded)
	}

	target, resultPath, reachable := c.throwRoute()
	if !reachable {
		return c.lowerThrowAsFail(sub, errorName, causeOut)
	}

	// Stringify the cause so a reachable catch always sees the same
	// {Error, Cause-as-JSON-string} shape a genuine Task-state failure
	// would produce (spec.md §7, §4.9) — the catch-side preamble
	// (lowerTry) always parses Cause back to an object, regardless of
	// whether the error originated from a user throw or a native task
	// failure (see DESIGN.md for why this is simpler than tracking the
	// two origins separately).
	causeSub, causePath := c.materializeToPath("throwCause", causeOut)
	strSub, strPath := c.assignIntrinsic("throwCauseStringify", intrinsic.NewJsonToString(intrinsic.PathArg(causePath)))
	envelope := map[string]interface{}{"Error": errorName, "Cause": graph.PathMarker{Path: strPath}}
	n := graph.PassWithInput(graph.LitWithPaths(envelope))
	n.ResultPath = strp(resultPath)
	n.Next = target
	assign := c.singleState("throw", n)
	return joinExprSubs(sub, causeSub, strSub, assign), nil
}

// lowerThrowAsFail emits a terminal Fail state for an unreachable throw
// (spec.md §4.9 point 3): Cause is a plain string when it folds to a
// constant, otherwise a dynamic CausePath via the same stringify step a
// reachable throw uses.
func (c *Compiler) lowerThrowAsFail(sub *graph.SubState, errorName string, causeOut graph.Output) (*graph.SubState, error) {
	n := &graph.NodeState{Type: graph.TypeFail, Error: errorName}
	if causeOut.IsLiteral() && !causeOut.ContainsJsonPath {
		b, err := json.Marshal(causeOut.Literal)
		if err != nil {
			return nil, compileerr.New(compileerr.CodeUnexpectedError, compileerr.Span{}, "failed to render Fail Cause: %v", err)
		}
		n.Cause = string(b)
		return joinExprSubs(sub, c.singleState("fail", n)), nil
	}
	causeSub, causePath := c.materializeToPath("failCause", causeOut)
	strSub, strPath := c.assignIntrinsic("failCauseStringify", intrinsic.NewJsonToString(intrinsic.PathArg(causePath)))
	n.CausePath = strPath
	return joinExprSubs(sub, causeSub, strSub, c.singleState("fail", n)), nil
}
