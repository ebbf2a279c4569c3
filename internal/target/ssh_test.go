package target

import (
	"context"
	"io"
	"testing"

	"github.com/hkropp/routersetup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

type mockSession struct {
	stdin      io.Reader
	lastCmd    *string
	output     []byte
	err        error
	stdinSeen  *[]byte
	closedFlag *bool
}

func (s *mockSession) SetStdin(r io.Reader) { s.stdin = r }

func (s *mockSession) CombinedOutput(cmd string) ([]byte, error) {
	*s.lastCmd = cmd
	if s.stdin != nil && s.stdinSeen != nil {
		data, _ := io.ReadAll(s.stdin)
		*s.stdinSeen = data
	}
	return s.output, s.err
}

func (s *mockSession) Output(cmd string) ([]byte, error) {
	*s.lastCmd = cmd
	return s.output, s.err
}

func (s *mockSession) Close() error {
	if s.closedFlag != nil {
		*s.closedFlag = true
	}
	return nil
}

type mockClient struct {
	session *mockSession
	closed  bool
}

func (c *mockClient) NewSession() (Session, error) { return c.session, nil }

func (c *mockClient) Close() error {
	c.closed = true
	return nil
}

func newMockHost(output []byte, err error) (*SSH, *mockSession, *string, *[]byte) {
	var lastCmd string
	var stdinSeen []byte
	var closed bool
	session := &mockSession{
		lastCmd:    &lastCmd,
		output:     output,
		err:        err,
		stdinSeen:  &stdinSeen,
		closedFlag: &closed,
	}
	host := &SSH{
		client: &mockClient{session: session},
		logger: zerolog.New(io.Discard),
	}
	return host, session, &lastCmd, &stdinSeen
}

func TestSSH_RunQuotesArguments(t *testing.T) {
	host, _, lastCmd, _ := newMockHost([]byte("ok\n"), nil)

	out, err := host.Run(context.Background(), "apk", "add", "--no-progress", "it's")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(out))
	assert.Equal(t, `'apk' 'add' '--no-progress' 'it'\''s'`, *lastCmd)
}

func TestSSH_WriteFileStreamsContent(t *testing.T) {
	host, _, lastCmd, stdinSeen := newMockHost(nil, nil)

	err := host.WriteFile("/etc/dnsmasq.conf", []byte("conf body"), 0o644)
	require.NoError(t, err)
	assert.Equal(t, "cat > '/etc/dnsmasq.conf' && chmod 644 '/etc/dnsmasq.conf'", *lastCmd)
	assert.Equal(t, []byte("conf body"), *stdinSeen)
}

func TestSSH_ExistsMapsExitError(t *testing.T) {
	host, _, _, _ := newMockHost(nil, nil)
	ok, err := host.Exists("/etc/chrony/chrony.conf")
	require.NoError(t, err)
	assert.True(t, ok)

	host, _, _, _ = newMockHost(nil, &ssh.ExitError{})
	ok, err = host.Exists("/etc/chrony/chrony.conf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSSH_GlobParsesLines(t *testing.T) {
	host, _, lastCmd, _ := newMockHost([]byte("/etc/x.bak-1\n/etc/x.bak-2\n"), nil)

	matches, err := host.Glob("/etc/x.bak-*")
	require.NoError(t, err)
	assert.Equal(t, []string{"/etc/x.bak-1", "/etc/x.bak-2"}, matches)
	assert.Equal(t, "ls -1d /etc/x.bak-* 2>/dev/null", *lastCmd)
}

func TestSSH_GlobNoMatches(t *testing.T) {
	host, _, _, _ := newMockHost(nil, &ssh.ExitError{})

	matches, err := host.Glob("/etc/x.bak-*")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDial_RejectsBadKey(t *testing.T) {
	cfg := models.RemoteSettings{
		Host:       "198.51.100.1",
		Port:       22,
		Username:   "root",
		PrivateKey: []byte("not a key"),
	}
	_, err := Dial(cfg, zerolog.New(io.Discard))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse SSH key")
}
