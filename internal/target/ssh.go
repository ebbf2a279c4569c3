package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/hkropp/routersetup/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Client wraps ssh.Client for mocking.
type Client interface {
	NewSession() (Session, error)
	Close() error
}

// Session wraps ssh.Session for mocking.
type Session interface {
	SetStdin(r io.Reader)
	CombinedOutput(cmd string) ([]byte, error)
	Output(cmd string) ([]byte, error)
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (Client, error)
}

// DefaultClientFactory dials real SSH connections.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (Client, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultClient{client: client}, nil
}

type defaultClient struct {
	client *ssh.Client
}

func (c *defaultClient) NewSession() (Session, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSession{session: session}, nil
}

func (c *defaultClient) Close() error {
	return c.client.Close()
}

type defaultSession struct {
	session *ssh.Session
}

func (s *defaultSession) SetStdin(r io.Reader) {
	s.session.Stdin = r
}

func (s *defaultSession) CombinedOutput(cmd string) ([]byte, error) {
	return s.session.CombinedOutput(cmd)
}

func (s *defaultSession) Output(cmd string) ([]byte, error) {
	return s.session.Output(cmd)
}

func (s *defaultSession) Close() error {
	return s.session.Close()
}

// SSH is the Host implementation for a remote machine. Each operation
// runs in its own session; file operations are expressed as the shell
// commands an operator would type.
type SSH struct {
	client Client
	logger zerolog.Logger
}

// Dial connects to the remote host described by cfg and returns an SSH
// host. The caller owns the connection and must Close it.
func Dial(cfg models.RemoteSettings, logger zerolog.Logger) (*SSH, error) {
	return DialWithFactory(cfg, logger, &DefaultClientFactory{})
}

// DialWithFactory is Dial with an injectable client factory (for testing).
func DialWithFactory(cfg models.RemoteSettings, logger zerolog.Logger, factory ClientFactory) (*SSH, error) {
	signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}

	clientConfig := &ssh.ClientConfig{
		User: cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // provisioning a fresh host, no known_hosts yet
		Timeout:         30 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client, err := factory.NewClient("tcp", addr, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	return &SSH{client: client, logger: logger}, nil
}

// Close closes the underlying SSH connection.
func (h *SSH) Close() error {
	return h.client.Close()
}

func (h *SSH) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(name))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return h.combinedOutput(ctx, strings.Join(parts, " "), nil)
}

func (h *SSH) WriteFile(path string, data []byte, perm fs.FileMode) error {
	cmd := fmt.Sprintf("cat > %s && chmod %o %s", shellQuote(path), perm.Perm(), shellQuote(path))
	out, err := h.combinedOutput(context.Background(), cmd, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("remote write %s: %w, output: %s", path, err, string(out))
	}
	return nil
}

func (h *SSH) ReadFile(path string) ([]byte, error) {
	session, err := h.client.NewSession()
	if err != nil {
		return nil, err
	}
	defer func() { _ = session.Close() }()

	out, err := session.Output("cat " + shellQuote(path))
	if err != nil {
		return nil, fmt.Errorf("remote read %s: %w", path, err)
	}
	return out, nil
}

func (h *SSH) Exists(path string) (bool, error) {
	_, err := h.combinedOutput(context.Background(), "test -e "+shellQuote(path), nil)
	if err == nil {
		return true, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}

func (h *SSH) MkdirAll(path string, perm fs.FileMode) error {
	cmd := fmt.Sprintf("mkdir -p -m %o %s", perm.Perm(), shellQuote(path))
	out, err := h.combinedOutput(context.Background(), cmd, nil)
	if err != nil {
		return fmt.Errorf("remote mkdir %s: %w, output: %s", path, err, string(out))
	}
	return nil
}

func (h *SSH) Glob(pattern string) ([]string, error) {
	session, err := h.client.NewSession()
	if err != nil {
		return nil, err
	}
	defer func() { _ = session.Close() }()

	// The pattern is deliberately unquoted so the remote shell expands it.
	out, err := session.Output("ls -1d " + pattern + " 2>/dev/null")
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			// ls exits non-zero when nothing matches.
			return nil, nil
		}
		return nil, err
	}

	var matches []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			matches = append(matches, line)
		}
	}
	return matches, nil
}

func (h *SSH) Remove(path string) error {
	out, err := h.combinedOutput(context.Background(), "rm -- "+shellQuote(path), nil)
	if err != nil {
		return fmt.Errorf("remote remove %s: %w, output: %s", path, err, string(out))
	}
	return nil
}

func (h *SSH) combinedOutput(ctx context.Context, cmd string, stdin io.Reader) ([]byte, error) {
	session, err := h.client.NewSession()
	if err != nil {
		return nil, err
	}
	defer func() { _ = session.Close() }()

	if stdin != nil {
		session.SetStdin(stdin)
	}

	h.logger.Debug().Str("cmd", cmd).Msg("running remote command")

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = session.Close()
		return nil, ctx.Err()
	case r := <-done:
		return r.out, r.err
	}
}

// shellQuote single-quotes s for use in a remote shell command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
