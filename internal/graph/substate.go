package graph

// Entry is one value in a SubState's local states map: either a leaf
// NodeState or a nested SubState (spec.md §3 "Sub-states compose
// recursively").
type Entry struct {
	Node *NodeState
	Sub  *SubState
}

func NodeEntry(n *NodeState) Entry { return Entry{Node: n} }
func SubEntry(s *SubState) Entry   { return Entry{Sub: s} }

// SubState is a small named-state graph: a startState label plus a map
// from local label to Entry (spec.md §3).
type SubState struct {
	StartState string
	States     map[string]Entry

	// Output is the value of the expression this sub-state computes, when
	// used as an expression lowering result (C6). Statement lowerings
	// leave Output unset (graph.Output's zero value).
	Output Output
}

// NewSubState builds a SubState from an explicit map of local labels,
// erroring (via panic — an internal invariant, not a user-facing error) if
// startState is not itself a key.
func NewSubState(startState string, states map[string]Entry) *SubState {
	if _, ok := states[startState]; !ok {
		panic("graph: SubState startState " + startState + " is not a key of its own states map")
	}
	return &SubState{StartState: startState, States: states}
}

// Single builds a one-state SubState from a single NodeState, with a
// caller-chosen local label (usually just "state").
func Single(label string, n *NodeState) *SubState {
	return NewSubState(label, map[string]Entry{label: NodeEntry(n)})
}

// JoinSubStates concatenates ordered sub-states into one: each's deferred
// next is rewired to the following one's startState; the last one's
// deferred next is left deferred (spec.md §4.3). The combined SubState's
// Output is the last one's Output (a statement sequence; the caller
// discards it for pure statement joining, or keeps it when joining
// expression-evaluation sub-states followed by a final value-producing
// one).
func JoinSubStates(subs ...*SubState) *SubState {
	if len(subs) == 0 {
		panic("graph: JoinSubStates requires at least one sub-state")
	}
	if len(subs) == 1 {
		return subs[0]
	}
	merged := map[string]Entry{}
	for i, sub := range subs {
		if i+1 < len(subs) {
			UpdateDeferredNextStates(sub, subs[i+1].StartState)
		}
		for label, entry := range sub.States {
			if _, dup := merged[label]; dup {
				panic("graph: JoinSubStates label collision: " + label)
			}
			merged[label] = entry
		}
	}
	return &SubState{StartState: subs[0].StartState, States: merged, Output: subs[len(subs)-1].Output}
}

// UpdateDeferredNextStates replaces every occurrence of DeferredNext inside
// sub (its own Next fields, Choice Default/rule Next, and Catch[].Next)
// with target, recursing into nested SubStates. Never mutates an
// already-embedded sub-state in place from the outside — callers always
// go through this function to retarget successors (spec.md §9).
func UpdateDeferredNextStates(sub *SubState, target string) {
	for _, entry := range sub.States {
		switch {
		case entry.Node != nil:
			retargetNode(entry.Node, target)
		case entry.Sub != nil:
			UpdateDeferredNextStates(entry.Sub, target)
		}
	}
}

func retargetNode(n *NodeState, target string) {
	if n.Next == DeferredNext {
		n.Next = target
	}
	if n.Default == DeferredNext {
		n.Default = target
	}
	for i := range n.Choices {
		if n.Choices[i].Next == DeferredNext {
			n.Choices[i].Next = target
		}
	}
	for i := range n.Catch {
		if n.Catch[i].Next == DeferredNext {
			n.Catch[i].Next = target
		}
	}
}

// GetAslStateOutput extracts the Output field of a lowered sub-state result
// (spec.md §4.3).
func GetAslStateOutput(s *SubState) Output { return s.Output }

// RetargetLabel replaces every occurrence of label `from` inside sub (its
// own Next fields, Choice Default/rule Next, and Catch[].Next) with `to`,
// recursing into nested SubStates exactly like UpdateDeferredNextStates.
// This is the general form that statement lowering (C7) uses to route a
// reserved label — __BreakNext, __ContinueNext, __catch — through a
// sub-state wall to the construct that owns it (spec.md §9 "C3 routes it
// through the sub-state wall to the nearest loop"): flattenRec commits
// each level's nodes into the output map independently and permanently,
// so a reserved label left unresolved at the level it's introduced can
// never be fixed up later by an ancestor — the owning construct must
// resolve it itself, on its own freshly-built body, before that body is
// ever embedded into anything else.
func RetargetLabel(sub *SubState, from, to string) {
	for _, entry := range sub.States {
		switch {
		case entry.Node != nil:
			retargetNodeLabel(entry.Node, from, to)
		case entry.Sub != nil:
			RetargetLabel(entry.Sub, from, to)
		}
	}
}

func retargetNodeLabel(n *NodeState, from, to string) {
	if n.Next == from {
		n.Next = to
	}
	if n.Default == from {
		n.Default = to
	}
	for i := range n.Choices {
		if n.Choices[i].Next == from {
			n.Choices[i].Next = to
		}
	}
	for i := range n.Catch {
		if n.Catch[i].Next == from {
			n.Catch[i].Next = to
		}
	}
}
