package integration

import (
	"net/http"

	"flowjs-works/aslcompiler/internal/graph"
)

// httpHook lowers http.get/post/put/delete/request(config) to a Task
// invoking Step Functions' native HTTP integration, validating the
// method/URL shape at compile time with a throwaway net/http.Request —
// never dialing out (spec.md §5, §4.10).
type httpHook struct{}

func newHTTPHook() *httpHook { return &httpHook{} }

func (h *httpHook) Name() string { return "http" }

var httpMethodByName = map[string]string{
	"get": "GET", "post": "POST", "put": "PUT", "delete": "DELETE", "patch": "PATCH",
}

func (h *httpHook) Lower(call Call) (*graph.NodeState, error) {
	m, err := configMap(call, 0)
	if err != nil {
		return nil, err
	}
	url, err := constString(call, m, "url")
	if err != nil {
		return nil, err
	}
	method := httpMethodByName[call.Method]
	if method == "" {
		method, err = constString(call, m, "method")
		if err != nil {
			return nil, err
		}
	}
	if _, err := http.NewRequest(method, url, nil); err != nil {
		return nil, configErr(call, "http.%s: invalid request shape: %v", call.Method, err)
	}

	params := map[string]interface{}{
		"ApiEndpoint": url,
		"Method":      method,
	}
	if hdrs, ok := m["headers"]; ok {
		params["Headers"] = hdrs
	}
	if body, ok := m["body"]; ok {
		params["RequestBody"] = body
	}
	if auth, ok := m["authentication"]; ok {
		params["Authentication"] = auth
	}

	return &graph.NodeState{
		Type:       graph.TypeTask,
		Resource:   "arn:aws:states:::http:invoke",
		Parameters: toParams(params),
	}, nil
}
