// Package lower implements C6 (Expression Lowerer), C7 (Statement
// Lowerer), C8 (Binding Resolver), C9 (Error Router), and C11 (Array-Method
// Skeleton) from spec.md §4. Compiler owns the single set of mutable
// allocators for one compilation (spec.md §5): name/heap allocators and a
// lexical scope stack mapping surface identifiers to their allocated JSON
// Path — the compile-time analog of the teacher's ExecutionContext, which
// owns one execution's node outputs.
package lower

import (
	"flowjs-works/aslcompiler/internal/ast"
	"flowjs-works/aslcompiler/internal/graph"
	"flowjs-works/aslcompiler/internal/integration"
	"flowjs-works/aslcompiler/internal/names"
)

// ContextPath is the ASL built-in context object path ($$), bound to the
// function's second parameter when present (spec.md §4.6, §8 law
// "Identity on identifier access").
const ContextPath = "$$"

// NullSlot is the functionless context slot: a well-known path holding a
// constructed `null` value, needed because ASL cannot produce `null` from
// a bare literal substitution in every position (spec.md §3, §6).
const NullSlot = "$.fnl_context.null"

// scope binds a surface name to its lowered JSON Path within one
// lexical scope frame.
type scope map[string]string

// Compiler lowers one normalized ast.Function into a graph.SubState tree.
// One instance exists per compilation (spec.md §5); it is not safe for
// concurrent use.
type Compiler struct {
	States *names.StateAllocator
	Vars   *names.VarAllocator
	Heap   *names.HeapAllocator

	scopes   []scope
	decl     int
	localSeq int

	Role         string
	Integrations integration.Resolver

	// param0Name is the allocated path for the function's first
	// parameter, set by Compile before lowering the body, empty if the
	// function takes no parameters.
	param0Name string

	// handlers is the stack of in-scope try handlers, innermost last
	// (C9, spec.md §4.9).
	handlers []handlerFrame
	// closureDepth is the nesting depth of genuine ASL closure boundaries
	// (Map/Parallel) enclosing the point currently being lowered. This
	// implementation never opens one for user control flow, so it is
	// always 0 (see handlerFrame.closureDepth).
	closureDepth int
}

// New constructs a Compiler with fresh allocators.
func New(role string, resolver integration.Resolver) *Compiler {
	return &Compiler{
		States:       names.NewStateAllocator(),
		Vars:         names.NewVarAllocator(),
		Heap:         names.NewHeapAllocator(),
		Role:         role,
		Integrations: resolver,
	}
}

func (c *Compiler) pushScope()        { c.scopes = append(c.scopes, scope{}) }
func (c *Compiler) popScope()         { c.scopes = c.scopes[:len(c.scopes)-1] }
func (c *Compiler) top() scope        { return c.scopes[len(c.scopes)-1] }

// declareVar allocates a fresh unique path for a new local binding named
// name, records it in the innermost scope — shadowing any outer binding
// of the same name (spec.md §4.4, §8 "Variable stability") — and returns
// the path so the caller can emit the initializing assignment.
func (c *Compiler) declareVar(name string) string {
	c.decl++
	allocated := c.Vars.Declare(c.decl, name)
	path := "$." + allocated
	c.top()[name] = path
	return path
}

// bindContextParam binds name directly to the ASL context object,
// without consuming the variable-name allocator (spec.md §4.6: "If it is
// the function's second parameter... output path $$").
func (c *Compiler) bindContextParam(name string) {
	c.top()[name] = ContextPath
}

// lookupVar resolves an identifier to its lowered path by walking scopes
// innermost-out.
func (c *Compiler) lookupVar(name string) (string, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if p, ok := c.scopes[i][name]; ok {
			return p, true
		}
	}
	return "", false
}

// Compile lowers fn (already normalized — see internal/normalize) into a
// finalized ASL document (spec.md §6 output contract).
func (c *Compiler) Compile(fn *ast.Function) (*graph.FlattenedMachine, error) {
	c.pushScope()
	defer c.popScope()

	initParams := map[string]interface{}{
		"fnl_context": map[string]interface{}{"null": nil},
	}
	if len(fn.Params) > 0 {
		p0 := fn.Params[0]
		path := c.declareVar(p0.Name) // e.g. "$.input" for a parameter named input
		c.param0Name = path
		key := path[2:]               // strip "$."
		initParams[key+".$"] = "$"
	}
	if len(fn.Params) > 1 {
		c.bindContextParam(fn.Params[1].Name)
	}

	rootPath := "$"
	initState := &graph.NodeState{
		Type:       graph.TypePass,
		Parameters: initParams,
		ResultPath: &rootPath,
		Next:       graph.DeferredNext,
		AstLabel:   "Initialize Functionless Context",
	}
	initSub := c.singleState("Initialize Functionless Context", initState)

	ret := returnTemplate{resultPath: "", terminal: true}
	bodySub, err := c.lowerStmts(fn.Body, ret)
	if err != nil {
		return nil, err
	}

	full := joinExprSubs(initSub, bodySub)
	return graph.Flatten(full, c.States), nil
}

// returnTemplate is the "return pass template" of spec.md §9 "Cooperative
// early exit": the ResultPath/Next-or-End a `return` statement materializes
// against, threaded down through statement lowering so nested blocks don't
// need their own notion of function-level exit. A non-terminal template
// (terminal=false) is built only for array-method callback bodies;
// lowerTry passes its enclosing template through unchanged, so a `return`
// inside a try that has a finally block ends the machine without running
// the finally.
type returnTemplate struct {
	resultPath string // "" means whole-state ($) — return value becomes the entire output
	terminal   bool   // true: materializes as End:true; false: Next is filled by the caller via onReturn
	onReturn   func(valuePath string) *graph.SubState // used when terminal == false
}
