package runner

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Host describes an SSH destination, typically populated from
// ~/.ssh/config via ParseSSHConfig or from a user@host:port string.
type Host struct {
	Name         string
	Hostname     string
	User         string
	Port         string
	IdentityFile string
}

// SSH runs commands on a remote device host over an SSH connection. It
// satisfies Runner so target discovery and the capability probe can be
// pointed at a machine other than the one the harness runs on.
type SSH struct {
	client *ssh.Client
	host   Host
}

// DialSSH connects to host, trying the configured identity file, the
// SSH agent, and the default key files, in that order. Host keys are
// verified against ~/.ssh/known_hosts.
func DialSSH(host Host) (*SSH, error) {
	if host.Hostname == "" {
		host.Hostname = host.Name
	}
	if host.User == "" {
		host.User = validatedUsername()
	}
	if host.Port == "" {
		host.Port = "22"
	}

	var authMethods []ssh.AuthMethod

	if host.IdentityFile != "" {
		if keyAuth, err := publicKeyAuth(host.IdentityFile); err == nil {
			authMethods = append(authMethods, keyAuth)
		}
	}

	if agentAuth, err := sshAgentAuth(); err == nil {
		authMethods = append(authMethods, agentAuth)
	}

	home, err := os.UserHomeDir()
	if err == nil {
		defaultKeys := []string{
			filepath.Join(home, ".ssh", "id_rsa"),
			filepath.Join(home, ".ssh", "id_ed25519"),
			filepath.Join(home, ".ssh", "id_ecdsa"),
		}
		for _, keyPath := range defaultKeys {
			if keyPath == host.IdentityFile {
				continue
			}
			if keyAuth, err := publicKeyAuth(keyPath); err == nil {
				authMethods = append(authMethods, keyAuth)
			}
		}
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication methods available")
	}

	hostKeyCallback, err := knownHostsCallback()
	if err != nil {
		return nil, fmt.Errorf("failed to setup host key verification: %w", err)
	}

	config := &ssh.ClientConfig{
		User:            host.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}

	addr := fmt.Sprintf("%s:%s", host.Hostname, host.Port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	return &SSH{client: client, host: host}, nil
}

func (r *SSH) Run(ctx context.Context, name string, args ...string) (string, error) {
	return r.run(ctx, "", name, args...)
}

func (r *SSH) RunInput(ctx context.Context, input, name string, args ...string) (string, error) {
	return r.run(ctx, input, name, args...)
}

// LookPath resolves name through the remote shell.
func (r *SSH) LookPath(name string) (string, error) {
	out, err := r.run(context.Background(), "", "command", "-v", name)
	if err != nil {
		return "", fmt.Errorf("%s not found on %s", name, r.host.Name)
	}
	return strings.TrimSpace(out), nil
}

func (r *SSH) run(ctx context.Context, input, name string, args ...string) (string, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	if input != "" {
		session.Stdin = strings.NewReader(input)
	}

	// CombinedOutput has no context support; kill the remote command
	// if the context expires while it runs.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Signal(ssh.SIGKILL)
		case <-done:
		}
	}()

	cmdline := shellCommand(name, args)
	output, err := session.CombinedOutput(cmdline)
	close(done)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return string(output), ctxErr
	}
	if err != nil {
		return string(output), &ToolError{Tool: name, Output: string(output), Err: err}
	}
	return string(output), nil
}

func (r *SSH) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// shellCommand builds a single-line remote command with each argument
// single-quoted so the remote shell does not re-interpret it.
func shellCommand(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(name))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func knownHostsCallback() (ssh.HostKeyCallback, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("unable to get user home directory: %w", err)
	}

	knownHostsPath := filepath.Join(home, ".ssh", "known_hosts")

	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(knownHostsPath), 0700); err != nil {
			return nil, fmt.Errorf("unable to create .ssh directory: %w", err)
		}
		if _, err := os.Create(knownHostsPath); err != nil {
			return nil, fmt.Errorf("unable to create known_hosts file: %w", err)
		}
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to load known_hosts: %w", err)
	}

	return ssh.HostKeyCallback(func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		if err != nil {
			if keyErr, ok := err.(*knownhosts.KeyError); ok && len(keyErr.Want) > 0 {
				return fmt.Errorf("host key verification failed: host key has changed for %s. Remove the old key from %s if you trust this connection", hostname, knownHostsPath)
			} else if keyErr, ok := err.(*knownhosts.KeyError); ok && len(keyErr.Want) == 0 {
				return fmt.Errorf("host key verification failed: %s is not in known_hosts. Add the host key to %s or run 'ssh %s' first to accept the host key", hostname, knownHostsPath, hostname)
			}
			return fmt.Errorf("host key verification failed: %w", err)
		}
		return nil
	}), nil
}

func validatedUsername() string {
	user := os.Getenv("USER")
	if user == "" || len(user) > 32 {
		return ""
	}

	for _, char := range user {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_' || char == '-' || char == '.') {
			return ""
		}
	}

	return user
}

func validatedSSHAuthSock() string {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return ""
	}

	if !filepath.IsAbs(socket) {
		return ""
	}

	cleanSocket := filepath.Clean(socket)
	if strings.Contains(cleanSocket, "..") {
		return ""
	}

	validPrefixes := []string{
		"/tmp/",
		"/var/run/",
		"/run/",
	}

	if tmpDir := os.Getenv("TMPDIR"); tmpDir != "" {
		validPrefixes = append(validPrefixes, tmpDir)
	}

	for _, prefix := range validPrefixes {
		if strings.HasPrefix(cleanSocket, prefix) {
			return socket
		}
	}

	if info, err := os.Stat(socket); err == nil {
		if info.Mode()&os.ModeSocket != 0 {
			return socket
		}
	}

	return ""
}

func publicKeyAuth(keyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		// encrypted keys need a passphrase; the SSH agent handles those
		return nil, err
	}

	return ssh.PublicKeys(signer), nil
}

func sshAgentAuth() (ssh.AuthMethod, error) {
	socket := validatedSSHAuthSock()
	if socket == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set or invalid")
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH agent: %w", err)
	}

	agentClient := agent.NewClient(conn)

	return ssh.PublicKeysCallback(agentClient.Signers), nil
}
