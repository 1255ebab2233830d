package integration

import (
	"flowjs-works/aslcompiler/internal/compileerr"
	"flowjs-works/aslcompiler/internal/graph"
)

// configMap extracts call's single config-object argument as a literal
// tree (spec.md §4.10: integration calls are always invoked with an
// inline object literal, so every shape-validating hook can see the
// actual field values at compile time). A field holding a dynamic value
// survives as a graph.PathMarker inside the returned map, rather than
// being rejected — only the fields a given hook actually validates need
// to be constant.
func configMap(call Call, argIndex int) (map[string]interface{}, error) {
	if argIndex >= len(call.Args) {
		return nil, configErr(call, "expected a configuration object argument at position %d", argIndex)
	}
	out := call.Args[argIndex]
	if !out.IsLiteral() {
		return nil, configErr(call, "%s.%s's configuration argument must be an object literal, not a computed value", call.Namespace, call.Method)
	}
	m, ok := out.Literal.(map[string]interface{})
	if !ok {
		return nil, configErr(call, "%s.%s's configuration argument must be an object literal", call.Namespace, call.Method)
	}
	return m, nil
}

// constString reads a required string field, rejecting anything that
// isn't a plain compile-time constant (a graph.PathMarker there means
// the field's value is only known at runtime, which a shape-validating
// hook can't check).
func constString(call Call, m map[string]interface{}, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", configErr(call, "%s.%s's configuration object requires a %q field", call.Namespace, call.Method, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", configErr(call, "%s.%s's %q field must be a compile-time constant string", call.Namespace, call.Method, key)
	}
	return s, nil
}

// optString reads an optional string field, empty when absent.
func optString(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func configErr(call Call, format string, args ...interface{}) error {
	return compileerr.New(compileerr.CodeInvalidIntegrationConfig,
		compileerr.Span{Line: call.Span.Line, Column: call.Span.Column}, format, args...)
}

// toParams renders a config map into a Task state's Parameters, keeping
// graph.PathMarker leaves addressed via the ".$"-suffix convention
// (spec.md §4.3), the same rendering PassWithInput's literal branch
// uses.
func toParams(m map[string]interface{}) map[string]interface{} {
	return graph.BuildParamsObject(m)
}
