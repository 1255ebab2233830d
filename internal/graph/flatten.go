package graph

import "flowjs-works/aslcompiler/internal/names"

// PathMarker, embedded inside a literal value tree, marks a leaf that must
// be rendered as a ".$"-suffixed Parameters key pointing at Path, rather
// than a literal value (spec.md §4.3 PassWithInput: "literals with
// embedded paths must use Parameters and .$-suffix keys").
type PathMarker struct{ Path string }

// PassWithInput fills a Pass state's InputPath (for a JsonPath output) or
// Result/Parameters (for a Literal output), preserving the
// ContainsJsonPath bit (spec.md §4.3). The caller fills in ResultPath,
// Next/End afterward. Condition outputs must be materialized to a boolean
// JsonPath first (internal/lower does this) — PassWithInput panics if
// given one, since there is no direct ASL encoding of an unmaterialized
// predicate as a Pass state's data.
func PassWithInput(output Output) *NodeState {
	switch output.Kind {
	case OutputJsonPath:
		p := output.Path
		return &NodeState{Type: TypePass, InputPath: &p}
	case OutputLiteral:
		if !output.ContainsJsonPath {
			return &NodeState{Type: TypePass, Result: output.Literal}
		}
		m, ok := output.Literal.(map[string]interface{})
		if !ok {
			panic("graph: PassWithInput literal with ContainsJsonPath must be an object")
		}
		return &NodeState{Type: TypePass, Parameters: buildParamsObject(m)}
	default:
		panic("graph: PassWithInput called with an unmaterialized Condition output")
	}
}

// BuildParamsObject is buildParamsObject exposed for callers outside this
// package (the integration hooks) that build a Task state's Parameters
// from a literal tree containing PathMarker leaves the same way a Pass
// state's Parameters are built.
func BuildParamsObject(m map[string]interface{}) map[string]interface{} {
	return buildParamsObject(m)
}

func buildParamsObject(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case PathMarker:
			out[k+".$"] = t.Path
		case map[string]interface{}:
			out[k] = buildParamsObject(t)
		default:
			out[k] = t
		}
	}
	return out
}

// Flatten recursively flattens sub into a final {StartAt, States} map,
// allocating unique global state names via alloc and rewriting every local
// label reference (Next, Default, Catch[].Next) found anywhere inside it
// (spec.md §4.3 toStates). Reserved labels (ContinueNext, BreakNext,
// CatchLabel) that are not keys of the sub-state currently being flattened
// are left untouched so they bubble up through sub-state walls to an
// enclosing loop/try, per spec.md §3.
func Flatten(root *SubState, alloc *names.StateAllocator) *FlattenedMachine {
	out := make(map[string]*NodeState)
	start := flattenRec(root, alloc, out)
	return &FlattenedMachine{StartAt: start, States: out}
}

func flattenRec(s *SubState, alloc *names.StateAllocator, out map[string]*NodeState) string {
	local := make(map[string]string, len(s.States))
	for label, entry := range s.States {
		if entry.Node != nil {
			hint := label
			if entry.Node.AstLabel != "" {
				hint = entry.Node.AstLabel
			}
			local[label] = alloc.Alloc(hint)
		}
	}
	for label, entry := range s.States {
		if entry.Sub != nil {
			local[label] = flattenRec(entry.Sub, alloc, out)
		}
	}
	for label, entry := range s.States {
		if entry.Node == nil {
			continue
		}
		out[local[label]] = rewriteNode(entry.Node, local)
	}
	return local[s.StartState]
}

func rewriteNode(n *NodeState, local map[string]string) *NodeState {
	cp := *n
	cp.Next = rewriteLabel(n.Next, local)
	cp.Default = rewriteLabel(n.Default, local)
	if len(n.Choices) > 0 {
		cp.Choices = make([]ChoiceRule, len(n.Choices))
		for i, c := range n.Choices {
			cp.Choices[i] = ChoiceRule{Condition: c.Condition, Next: rewriteLabel(c.Next, local)}
		}
	}
	if len(n.Catch) > 0 {
		cp.Catch = make([]CatchRule, len(n.Catch))
		for i, c := range n.Catch {
			cp.Catch[i] = c
			cp.Catch[i].Next = rewriteLabel(c.Next, local)
		}
	}
	return &cp
}

func rewriteLabel(label string, local map[string]string) string {
	if label == "" {
		return ""
	}
	if g, ok := local[label]; ok {
		return g
	}
	// Reserved labels (or, in a malformed tree, a stray unresolved label)
	// bubble up unchanged — an ancestor's local map will eventually carry
	// the entry that resolves it.
	return label
}
