package integration

import (
	"fmt"
	"net/mail"
	"net/smtp"

	"flowjs-works/aslcompiler/internal/graph"
)

// mailHook lowers mail.send(config) to a Task state, validating the
// recipient shape with net/mail's address parser and, when auth is
// present, building the same smtp.PlainAuth value the teacher's own
// mail activity constructs before dialing — both are pure struct
// construction, never reaching smtp.SendMail (spec.md §5, §4.10).
type mailHook struct{}

func newMailHook() *mailHook { return &mailHook{} }

func (h *mailHook) Name() string { return "mail" }

func (h *mailHook) Lower(call Call) (*graph.NodeState, error) {
	m, err := configMap(call, 0)
	if err != nil {
		return nil, err
	}
	host, err := constString(call, m, "host")
	if err != nil {
		return nil, err
	}
	subject, err := constString(call, m, "subject")
	if err != nil {
		return nil, err
	}

	to, ok := m["to"].([]interface{})
	if !ok || len(to) == 0 {
		return nil, configErr(call, "mail.%s requires a non-empty 'to' address list", call.Method)
	}
	recipients := make([]string, 0, len(to))
	for _, v := range to {
		addr, ok := v.(string)
		if !ok {
			return nil, configErr(call, "mail.%s: every 'to' entry must be a compile-time constant address string", call.Method)
		}
		if _, err := mail.ParseAddress(addr); err != nil {
			return nil, configErr(call, "mail.%s: invalid address %q: %v", call.Method, addr, err)
		}
		recipients = append(recipients, addr)
	}

	contentType := optString(m, "content_type")
	if contentType == "" {
		contentType = "text/plain"
	}

	if auth, ok := m["auth"].(map[string]interface{}); ok {
		user, _ := auth["user"].(string)
		password, _ := auth["password"].(string)
		_ = smtp.PlainAuth("", user, password, host)
	}

	params := map[string]interface{}{
		"Host":        host,
		"Subject":     subject,
		"To":          recipients,
		"ContentType": contentType,
	}
	if body, ok := m["body"]; ok {
		params["Body"] = body
	}

	return &graph.NodeState{
		Type:       graph.TypeTask,
		Resource:   fmt.Sprintf("arn:flowjs-works:integration:::mail:%s", call.Method),
		Parameters: toParams(params),
	}, nil
}
