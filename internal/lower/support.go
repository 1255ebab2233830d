package lower

import (
	"fmt"

	"flowjs-works/aslcompiler/internal/graph"
)

// label allocates a globally-unique local label for use as a SubState map
// key. Every sub-state built anywhere in a compilation draws from this one
// counter, since JoinSubStates panics on a label collision when merging
// two previously-independent sub-states' local maps — collisions are
// structurally impossible this way rather than merely unlikely.
func (c *Compiler) label(hint string) string {
	c.localSeq++
	return fmt.Sprintf("%s#%d", hint, c.localSeq)
}

// singleState wraps one NodeState as a one-state SubState, tagging it with
// an AstLabel naming hint (used only by graph.Flatten's allocator) when the
// node doesn't already carry one.
func (c *Compiler) singleState(hint string, n *graph.NodeState) *graph.SubState {
	if n.AstLabel == "" {
		n.AstLabel = hint
	}
	return graph.Single(c.label(hint), n)
}

// joinExprSubs sequences zero or more optional sub-states (a nil entry
// means "this expression needed no states of its own", e.g. a bare
// literal or identifier), filtering nils and returning nil if none remain.
func joinExprSubs(subs ...*graph.SubState) *graph.SubState {
	filtered := make([]*graph.SubState, 0, len(subs))
	for _, s := range subs {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return graph.JoinSubStates(filtered...)
}

// materializeToPath ensures out is addressable as a plain JSON Path,
// allocating a heap container and emitting the Pass that populates it only
// when out isn't already a path (spec.md §3: "conversions... explicit").
func (c *Compiler) materializeToPath(hint string, out graph.Output) (*graph.SubState, string) {
	if out.IsPath() {
		return nil, out.Path
	}
	container := c.newHeapContainer()
	sub := c.assignFinalOutput(hint, out, container)
	return sub, container
}
