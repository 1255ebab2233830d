package graph

import "flowjs-works/aslcompiler/internal/cond"

// StateType is one of the ASL state type tags spec.md §1/§3 names.
type StateType string

const (
	TypePass     StateType = "Pass"
	TypeTask     StateType = "Task"
	TypeChoice   StateType = "Choice"
	TypeWait     StateType = "Wait"
	TypeSucceed  StateType = "Succeed"
	TypeFail     StateType = "Fail"
	TypeMap      StateType = "Map"
	TypeParallel StateType = "Parallel"
)

// DeferredNext is the sentinel meaning "the successor is to be filled in by
// the enclosing sub-state" (spec.md §3 "Deferred next"). It is never a
// legal ASL state name (ASL names never contain NUL), so it can't collide
// with an allocated state name, and must be resolved by
// UpdateDeferredNextStates before a SubState is flattened.
const DeferredNext = "\x00__deferred_next__"

// Reserved labels, bubbled up through sub-state walls (spec.md §3).
const (
	ContinueNext = "__ContinueNext"
	BreakNext    = "__BreakNext"
	CatchLabel   = "__catch"
)

// ChoiceRule pairs an ASL Choice-rule predicate with its Next target.
type ChoiceRule struct {
	*cond.Condition
	Next string `json:"Next"`
}

// CatchRule is one entry of a Task/Map/Parallel state's Catch array.
type CatchRule struct {
	ErrorEquals []string `json:"ErrorEquals"`
	Next        string   `json:"Next,omitempty"`
	ResultPath  *string  `json:"ResultPath,omitempty"` // nil ResultPath key is omitted; "null" means discard
}

// RetryRule is one entry of a Task/Map/Parallel state's Retry array.
type RetryRule struct {
	ErrorEquals     []string `json:"ErrorEquals"`
	IntervalSeconds int      `json:"IntervalSeconds,omitempty"`
	MaxAttempts     int      `json:"MaxAttempts,omitempty"`
	BackoffRate     float64  `json:"BackoffRate,omitempty"`
}

// NodeState is one ASL state object (spec.md §3). Only the fields relevant
// to Type are populated. AstLabel is an optional back-reference used only
// for naming hints during allocation (spec.md §3 "optional back-reference
// to the originating AST node for naming") and is never serialized.
type NodeState struct {
	Type StateType `json:"Type"`

	InputPath  *string                `json:"InputPath,omitempty"`
	OutputPath *string                `json:"OutputPath,omitempty"`
	ResultPath *string                `json:"ResultPath,omitempty"`
	Parameters map[string]interface{} `json:"Parameters,omitempty"`
	Result     interface{}            `json:"Result,omitempty"`

	Next string `json:"Next,omitempty"`
	End  bool   `json:"End,omitempty"`

	Choices []ChoiceRule `json:"Choices,omitempty"`
	Default string       `json:"Default,omitempty"`

	Catch []CatchRule `json:"Catch,omitempty"`
	Retry []RetryRule `json:"Retry,omitempty"`

	Resource string `json:"Resource,omitempty"`

	// Wait
	Seconds     *int   `json:"Seconds,omitempty"`
	SecondsPath string `json:"SecondsPath,omitempty"`

	// Fail. ErrorPath/CausePath (dynamic Fail, the JSONata-era ASL addition)
	// are used when a thrown error's fields can't be folded to a constant
	// at compile time; Error/Cause are used when they can.
	Error     string `json:"Error,omitempty"`
	Cause     string `json:"Cause,omitempty"`
	ErrorPath string `json:"ErrorPath,omitempty"`
	CausePath string `json:"CausePath,omitempty"`

	// Map
	ItemsPath string           `json:"ItemsPath,omitempty"`
	Iterator  *FlattenedMachine `json:"Iterator,omitempty"`
	MaxConcurrency int         `json:"MaxConcurrency,omitempty"`

	// Parallel
	Branches []*FlattenedMachine `json:"Branches,omitempty"`

	AstLabel string `json:"-"`
}

// FlattenedMachine is the final shape of the whole machine, and of a Map's
// Iterator / a Parallel branch (spec.md §6 output contract).
type FlattenedMachine struct {
	StartAt string                `json:"StartAt"`
	States  map[string]*NodeState `json:"States"`
}
