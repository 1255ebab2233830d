package integration

import (
	"flowjs-works/aslcompiler/internal/graph"
	"flowjs-works/aslcompiler/internal/intrinsic"
)

// loggerHook lowers logger.log(config) to a Pass state that formats a
// "[level] message" line via States.Format, adapting the teacher's own
// LoggerActivity (which log.Printf's the same shape at runtime) into a
// compile-time-only Pass state — no Task/Resource is needed since there
// is no external system to invoke (spec.md §4.10).
type loggerHook struct{}

func newLoggerHook() *loggerHook { return &loggerHook{} }

func (h *loggerHook) Name() string { return "logger" }

func (h *loggerHook) Lower(call Call) (*graph.NodeState, error) {
	m, err := configMap(call, 0)
	if err != nil {
		return nil, err
	}
	level := optString(m, "level")
	if level == "" {
		level = "info"
	}
	messageArg, err := literalToArg(m["message"])
	if err != nil {
		return nil, configErr(call, "logger.%s: %v", call.Method, err)
	}

	expr := intrinsic.NewFormat("[{}] {}", intrinsic.LiteralArg(level), messageArg)
	return &graph.NodeState{
		Type:       graph.TypePass,
		Parameters: map[string]interface{}{"Log.$": expr.Render()},
	}, nil
}

// literalToArg turns one already-lowered config field (a plain literal,
// or a graph.PathMarker for a dynamic value) into the intrinsic.Arg an
// ASL intrinsic call needs.
func literalToArg(v interface{}) (intrinsic.Arg, error) {
	if pm, ok := v.(graph.PathMarker); ok {
		return intrinsic.PathArg(pm.Path), nil
	}
	return intrinsic.LiteralArg(v), nil
}
