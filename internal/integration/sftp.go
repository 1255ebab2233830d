package integration

import (
	"golang.org/x/crypto/ssh"

	"flowjs-works/aslcompiler/internal/graph"
)

// sftpHook lowers sftp.get/put(config) to a Task state, validating the
// ssh.ClientConfig auth shape (password vs private key, mirroring the
// teacher's buildSSHClientConfig) at compile time — never dialing
// (spec.md §5, §4.10). pkg/sftp itself operates only over an already-
// established ssh.Client, so there is nothing of its surface a
// no-I/O hook can exercise beyond the auth config it requires.
type sftpHook struct{}

func newSFTPHook() *sftpHook { return &sftpHook{} }

func (h *sftpHook) Name() string { return "sftp" }

func (h *sftpHook) Lower(call Call) (*graph.NodeState, error) {
	m, err := configMap(call, 0)
	if err != nil {
		return nil, err
	}
	server, err := constString(call, m, "server")
	if err != nil {
		return nil, err
	}
	folder, err := constString(call, m, "folder")
	if err != nil {
		return nil, err
	}
	if call.Method != "get" && call.Method != "put" {
		return nil, configErr(call, "sftp.%s is not supported, expected get or put", call.Method)
	}

	user := "anonymous"
	var authMethods []ssh.AuthMethod
	if auth, ok := m["auth"].(map[string]interface{}); ok {
		if u, ok := auth["user"].(string); ok && u != "" {
			user = u
		}
		if pw, ok := auth["password"].(string); ok && pw != "" {
			authMethods = append(authMethods, ssh.Password(pw))
		}
		if pem, ok := auth["private_key"].(string); ok && pem != "" {
			signer, err := ssh.ParsePrivateKey([]byte(pem))
			if err != nil {
				return nil, configErr(call, "sftp.%s: invalid private_key: %v", call.Method, err)
			}
			authMethods = append(authMethods, ssh.PublicKeys(signer))
		}
	}
	cfg := &ssh.ClientConfig{User: user, Auth: authMethods, HostKeyCallback: ssh.InsecureIgnoreHostKey()}
	if len(cfg.Auth) == 0 {
		return nil, configErr(call, "sftp.%s: auth requires a password or private_key", call.Method)
	}

	return &graph.NodeState{
		Type:       graph.TypeTask,
		Resource:   "arn:flowjs-works:integration:::sftp:" + call.Method,
		Parameters: toParams(map[string]interface{}{"Server": server, "Folder": folder, "User": user}),
	}, nil
}
