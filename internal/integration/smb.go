package integration

import (
	"github.com/hirochachacha/go-smb2"

	"flowjs-works/aslcompiler/internal/graph"
)

// smbHook lowers smb.get/put(config) to a Task state, validating the
// smb2.Dialer/NTLMInitiator auth shape (mirroring the teacher's own smb
// activity) at compile time — constructing the dialer never dials out
// on its own (spec.md §5, §4.10).
type smbHook struct{}

func newSMBHook() *smbHook { return &smbHook{} }

func (h *smbHook) Name() string { return "smb" }

func (h *smbHook) Lower(call Call) (*graph.NodeState, error) {
	m, err := configMap(call, 0)
	if err != nil {
		return nil, err
	}
	server, err := constString(call, m, "server")
	if err != nil {
		return nil, err
	}
	share, err := constString(call, m, "share")
	if err != nil {
		return nil, err
	}
	if call.Method != "get" && call.Method != "put" {
		return nil, configErr(call, "smb.%s is not supported, expected get or put", call.Method)
	}

	var user, password, domain string
	if auth, ok := m["auth"].(map[string]interface{}); ok {
		user, _ = auth["user"].(string)
		password, _ = auth["password"].(string)
		domain, _ = auth["domain"].(string)
	}
	if user == "" {
		return nil, configErr(call, "smb.%s: auth requires a user", call.Method)
	}
	_ = &smb2.Dialer{Initiator: &smb2.NTLMInitiator{User: user, Password: password, Domain: domain}}

	folder := optString(m, "folder")
	if folder == "" {
		folder = "/"
	}

	return &graph.NodeState{
		Type:       graph.TypeTask,
		Resource:   "arn:flowjs-works:integration:::smb:" + call.Method,
		Parameters: toParams(map[string]interface{}{"Server": server, "Share": share, "Folder": folder, "User": user}),
	}, nil
}
