// This file implements C8, the Binding Resolver (spec.md §4.8): lowering
// an ast.Pattern (identifier, object, or array — with defaults and array
// rest) against an already-lowered Output into the assignment sub-graph
// that writes each leaf binding.
package lower

import (
	"fmt"

	"flowjs-works/aslcompiler/internal/ast"
	"flowjs-works/aslcompiler/internal/cond"
	"flowjs-works/aslcompiler/internal/compileerr"
	"flowjs-works/aslcompiler/internal/graph"
	"flowjs-works/aslcompiler/internal/intrinsic"
)

// bindDeclarator lowers one `pattern = init` binding of a variable
// declaration statement. A missing initializer binds against the
// functionless null slot, matching a bare `let x;`'s `undefined`-as-null
// semantics (spec.md §3).
func (c *Compiler) bindDeclarator(d *ast.VarDeclarator) (*graph.SubState, error) {
	var sub *graph.SubState
	var out graph.Output
	if d.Init != nil {
		s, o, err := c.lowerExpr(d.Init)
		if err != nil {
			return nil, err
		}
		sub, out = s, o
	} else {
		out = graph.Path(NullSlot)
	}
	bindSub, err := c.bindPattern(&d.ID, out)
	if err != nil {
		return nil, err
	}
	return joinExprSubs(sub, bindSub), nil
}

// bindPattern writes out against pattern, declaring every identifier
// pattern reaches along the way (spec.md §4.8).
func (c *Compiler) bindPattern(p *ast.Pattern, out graph.Output) (*graph.SubState, error) {
	switch p.Kind {
	case ast.PatternIdentifier:
		path := c.declareVar(p.Name)
		return c.assignFinalOutput("bind_"+p.Name, out, path), nil
	case ast.PatternObject:
		return c.bindObjectPattern(p, out)
	case ast.PatternArray:
		return c.bindArrayPattern(p, out)
	default:
		return nil, compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(p.Span), "unsupported binding pattern")
	}
}

// bindDefault resolves a destructuring default for one element or
// property (spec.md §4.8): presentPath already holds the raw value if
// any; defaultExpr is evaluated only when it's absent (IsPresent false).
// A present null value is kept as null; it does not select the default.
func (c *Compiler) bindDefault(hint, presentPath string, defaultExpr *ast.Expr) (*graph.SubState, graph.Output, error) {
	container := c.newHeapContainer()
	defSub, defOut, err := c.lowerExpr(defaultExpr)
	if err != nil {
		return nil, graph.Output{}, err
	}
	trueBranch := c.assignFinalOutput(hint+"Present", graph.Path(presentPath), container)
	falseBranch := joinExprSubs(defSub, c.assignFinalOutput(hint+"Default", defOut, container))

	trueLbl, falseLbl, choiceLbl := c.label(hint+"True"), c.label(hint+"False"), c.label(hint+"Choice")
	choice := &graph.NodeState{
		Type:     graph.TypeChoice,
		Choices:  []graph.ChoiceRule{{Condition: cond.IsPresent(presentPath), Next: trueLbl}},
		Default:  falseLbl,
		AstLabel: hint + " default",
	}
	dispatch := graph.NewSubState(choiceLbl, map[string]graph.Entry{
		choiceLbl: graph.NodeEntry(choice),
		trueLbl:   graph.SubEntry(trueBranch),
		falseLbl:  graph.SubEntry(falseBranch),
	})
	return dispatch, graph.Path(container), nil
}

// bindObjectPattern implements `{a, b: {c} = dflt, ...}` binding. Object
// rest is rejected by the normalizer before lowering ever sees it.
func (c *Compiler) bindObjectPattern(p *ast.Pattern, out graph.Output) (*graph.SubState, error) {
	srcSub, srcPath := c.materializeToPath("destructureSrc", out)
	subs := []*graph.SubState{srcSub}
	for _, prop := range p.Properties {
		valPath := fmt.Sprintf("%s['%s']", srcPath, prop.Key)
		valOut := graph.Path(valPath)
		if prop.Default != nil {
			defSub, defOut, err := c.bindDefault("destructure_"+prop.Key, valPath, prop.Default)
			if err != nil {
				return nil, err
			}
			subs = append(subs, defSub)
			valOut = defOut
		}
		valPattern := prop.Value
		bindSub, err := c.bindPattern(&valPattern, valOut)
		if err != nil {
			return nil, err
		}
		subs = append(subs, bindSub)
	}
	return joinExprSubs(subs...), nil
}

// bindArrayPattern implements `[a, , b = dflt, ...rest]` binding: elided
// slots are skipped, defaults follow the same IsPresent check as object
// properties, and a rest element consumes everything from its position
// onward via bindArrayRest.
func (c *Compiler) bindArrayPattern(p *ast.Pattern, out graph.Output) (*graph.SubState, error) {
	srcSub, srcPath := c.materializeToPath("destructureArraySrc", out)
	subs := []*graph.SubState{srcSub}
	for i, el := range p.Elements {
		if el.Pattern == nil {
			continue
		}
		valPath := fmt.Sprintf("%s[%d]", srcPath, i)
		valOut := graph.Path(valPath)
		if el.Default != nil {
			defSub, defOut, err := c.bindDefault(fmt.Sprintf("arrayDestructure%d", i), valPath, el.Default)
			if err != nil {
				return nil, err
			}
			subs = append(subs, defSub)
			valOut = defOut
		}
		bindSub, err := c.bindPattern(el.Pattern, valOut)
		if err != nil {
			return nil, err
		}
		subs = append(subs, bindSub)
	}
	if p.Rest != nil {
		restSub, err := c.bindArrayRest("arrayRest", srcPath, len(p.Elements), p.Rest)
		if err != nil {
			return nil, err
		}
		subs = append(subs, restSub)
	}
	return joinExprSubs(subs...), nil
}

// bindArrayRest binds `...rest` to the tail of srcPath starting at
// startIndex, using the same counting-loop/string-accumulator mechanism
// as C11's map/filter (spec.md §4.8: "rest `...r` binds `arr[k:]`").
func (c *Compiler) bindArrayRest(hint, srcPath string, startIndex int, pattern *ast.Pattern) (*graph.SubState, error) {
	accPath := c.newHeapContainer()
	firstFlagPath := c.newHeapContainer()
	initAcc := c.assignFinalOutput(hint+"AccInit", graph.Lit("["), accPath)
	initFlag := c.assignFinalOutput(hint+"FlagInit", graph.Lit(true), firstFlagPath)

	bodyFn := func(idxPath, itemPath string) (*graph.SubState, error) {
		strSub, strPath := c.assignIntrinsic(hint+"Stringify", intrinsic.NewJsonToString(intrinsic.PathArg(itemPath)))
		appendSub := c.appendAccumulator(accPath, firstFlagPath, strPath, ",")
		return joinExprSubs(strSub, appendSub), nil
	}
	loopSub, err := c.buildIndexLoop(hint, srcPath, graph.Lit(float64(startIndex)), bodyFn)
	if err != nil {
		return nil, err
	}
	closeSub, closedPath := c.assignIntrinsic(hint+"Close", intrinsic.NewFormat("{}]", intrinsic.PathArg(accPath)))
	parseSub, parsedPath := c.assignIntrinsic(hint+"Parse", intrinsic.NewStringToJson(intrinsic.PathArg(closedPath)))
	bindSub, err := c.bindPattern(pattern, graph.Path(parsedPath))
	if err != nil {
		return nil, err
	}
	return joinExprSubs(initAcc, initFlag, loopSub, closeSub, parseSub, bindSub), nil
}
