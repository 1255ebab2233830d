// Package integration implements C10 (Integration Bridge, spec.md §4.10):
// recognizing a call expression addressed to a registered namespace (e.g.
// `http.get(...)`, `sql.query(...)`) and lowering it to a Task state whose
// Resource/Parameters/Catch the registered Hook builds. Every reference
// Hook in this package performs compile-time-only shape/config validation
// — never network I/O — preserving the single-threaded, synchronous
// compilation invariant (spec.md §5).
package integration

import "flowjs-works/aslcompiler/internal/graph"

// Call describes one recognized integration call site: `<Namespace>.<Method>(Args...)`.
type Call struct {
	Namespace string
	Method    string
	Args      []graph.Output
	Span      Span
}

// Span is a source location, duplicated from internal/ast rather than
// imported from it, so this package never needs to depend on the surface
// AST — a Hook only ever sees already-lowered argument Outputs.
type Span struct{ Line, Column int }

// Hook lowers every method of one integration namespace into a single
// state: a Task for the service hooks, a Pass for logger and transform.
// Lower receives the call's already-lowered argument Outputs (internal/lower
// has already run C6 on each argument expression) and returns the state's
// Resource/Parameters (or Result), plus any Catch rules the hook itself requires beyond
// the ones C9 attaches for the enclosing try (spec.md §4.10).
type Hook interface {
	Name() string
	Lower(call Call) (*graph.NodeState, error)
}

// Resolver looks up the Hook registered for a namespace.
type Resolver interface {
	Resolve(namespace string) (Hook, bool)
}

// Registry is the default in-memory Resolver.
type Registry struct {
	hooks map[string]Hook
}

// NewRegistry builds an empty Registry; callers Register the reference
// hooks they want available (see http.go, sql.go, s3.go, sftp.go, smb.go,
// mail.go, rabbitmq.go, logger.go, transform.go).
func NewRegistry() *Registry {
	return &Registry{hooks: map[string]Hook{}}
}

func (r *Registry) Register(h Hook) { r.hooks[h.Name()] = h }

func (r *Registry) Resolve(namespace string) (Hook, bool) {
	h, ok := r.hooks[namespace]
	return h, ok
}

// Default builds a Registry with every reference hook registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(newHTTPHook())
	r.Register(newSQLHook())
	r.Register(newS3Hook())
	r.Register(newSFTPHook())
	r.Register(newSMBHook())
	r.Register(newMailHook())
	r.Register(newRabbitMQHook())
	r.Register(newLoggerHook())
	r.Register(newTransformHook())
	return r
}
