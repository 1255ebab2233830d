package lower

import (
	"flowjs-works/aslcompiler/internal/cond"
	"flowjs-works/aslcompiler/internal/graph"
	"flowjs-works/aslcompiler/internal/intrinsic"
)

// assignFinalOutput writes an already-lowered Output (spec.md §3: Literal,
// JsonPath, or Condition) directly to target, an arbitrary JSON Path —
// a declared variable, a heap slot, a return value, or an existing
// object's field. No wrapping is ever needed here: a JsonPath output
// copies via InputPath, a Literal (with or without embedded paths) copies
// via Result/Parameters exactly as the value should appear at target, and
// a Condition materializes through a two-branch Choice whose arms write
// the literal boolean directly.
func (c *Compiler) assignFinalOutput(hint string, out graph.Output, target string) *graph.SubState {
	switch {
	case out.IsPath():
		n := &graph.NodeState{Type: graph.TypePass, InputPath: strp(out.Path), ResultPath: strp(target), Next: graph.DeferredNext}
		return c.singleState(hint, n)
	case out.IsLiteral():
		n := graph.PassWithInput(out)
		n.ResultPath = strp(target)
		n.Next = graph.DeferredNext
		return c.singleState(hint, n)
	default: // OutputCondition
		trueLbl, falseLbl, choiceLbl := c.label(hint+"True"), c.label(hint+"False"), c.label(hint+"Choice")
		choice := &graph.NodeState{
			Type:     graph.TypeChoice,
			Choices:  []graph.ChoiceRule{{Condition: out.Cond, Next: trueLbl}},
			Default:  falseLbl,
			AstLabel: hint,
		}
		truePass := &graph.NodeState{Type: graph.TypePass, Result: true, ResultPath: strp(target), Next: graph.DeferredNext}
		falsePass := &graph.NodeState{Type: graph.TypePass, Result: false, ResultPath: strp(target), Next: graph.DeferredNext}
		return graph.NewSubState(choiceLbl, map[string]graph.Entry{
			choiceLbl: graph.NodeEntry(choice),
			trueLbl:   graph.NodeEntry(truePass),
			falseLbl:  graph.NodeEntry(falsePass),
		})
	}
}

// materializeCondition is assignFinalOutput's Condition branch exposed as
// a standalone operation: it allocates a fresh heap slot and returns the
// sub-state plus the slot's path, for callers (e.g. the logical-operator
// lowerer) that need a Condition's truth value addressable as a JsonPath
// rather than written into a specific existing target.
func (c *Compiler) materializeCondition(cd *cond.Condition) (*graph.SubState, string) {
	container := c.newHeapContainer()
	sub := c.assignFinalOutput("materializeCondition", graph.Cond(cd), container)
	return sub, container
}

// assignIntrinsic evaluates expr (an ASL intrinsic call, rendered to its
// canonical string form) and makes its result addressable as a JsonPath.
// This is the one place a bare, dynamically-computed scalar is produced:
// ASL's Parameters value is always a JSON object, so the result is parked
// under a synthetic "v" field of a fresh heap container and the returned
// path always points one level past the container (spec.md §4.2 "Payload
// builder escape hatch").
func (c *Compiler) assignIntrinsic(hint string, expr *intrinsic.Expr) (*graph.SubState, string) {
	container := c.newHeapContainer()
	n := &graph.NodeState{
		Type:       graph.TypePass,
		Parameters: map[string]interface{}{"v.$": expr.Render()},
		ResultPath: strp(container),
		Next:       graph.DeferredNext,
	}
	return c.singleState(hint, n), container + ".v"
}

func (c *Compiler) newHeapContainer() string {
	return c.Heap.Alloc()
}

func strp(s string) *string { return &s }
