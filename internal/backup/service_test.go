package backup

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/hkropp/routersetup/internal/target/targettest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// fakeClock advances one second per call so every backup gets a distinct
// suffix.
func fakeClock() func() time.Time {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestBackup_MissingFileIsNoop(t *testing.T) {
	host := targettest.New()
	svc := NewWithClock(testLogger(), host, fakeClock())

	result, err := svc.Backup("/etc/dnsmasq.conf", 5)

	require.NoError(t, err)
	assert.Empty(t, result.BackupPath)
	assert.Empty(t, host.Files)
}

func TestBackup_CopiesWithTimestampSuffix(t *testing.T) {
	host := targettest.New()
	require.NoError(t, host.WriteFile("/etc/dnsmasq.conf", []byte("old"), 0o644))

	svc := NewWithClock(testLogger(), host, fakeClock())
	result, err := svc.Backup("/etc/dnsmasq.conf", 5)

	require.NoError(t, err)
	assert.Equal(t, "/etc/dnsmasq.conf.bak-20240301120001", result.BackupPath)

	data, err := host.ReadFile(result.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), data)

	// Original untouched.
	data, err = host.ReadFile("/etc/dnsmasq.conf")
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), data)
}

func TestBackup_RetentionKeepsFiveNewest(t *testing.T) {
	host := targettest.New()
	require.NoError(t, host.WriteFile("/etc/sysctl.conf", []byte("x"), 0o644))

	svc := NewWithClock(testLogger(), host, fakeClock())

	for i := 0; i < 8; i++ {
		_, err := svc.Backup("/etc/sysctl.conf", 5)
		require.NoError(t, err)
	}

	backups, err := host.Glob("/etc/sysctl.conf.bak-*")
	require.NoError(t, err)
	require.Len(t, backups, 5)

	// The five newest suffixes survive: seconds 04..08.
	for i, want := range []string{"120004", "120005", "120006", "120007", "120008"} {
		assert.Equal(t, fmt.Sprintf("/etc/sysctl.conf.bak-20240301%s", want), backups[i])
	}
}

func TestBackup_RetentionDoesNotTouchOtherFiles(t *testing.T) {
	host := targettest.New()
	require.NoError(t, host.WriteFile("/etc/a.conf", []byte("a"), 0o644))
	require.NoError(t, host.WriteFile("/etc/a.conf.unrelated", []byte("u"), 0o644))
	require.NoError(t, host.WriteFile("/etc/b.conf.bak-20240101000000", []byte("b"), 0o600))

	svc := NewWithClock(testLogger(), host, fakeClock())
	for i := 0; i < 7; i++ {
		_, err := svc.Backup("/etc/a.conf", 5)
		require.NoError(t, err)
	}

	_, err := host.ReadFile("/etc/a.conf.unrelated")
	assert.NoError(t, err)
	_, err = host.ReadFile("/etc/b.conf.bak-20240101000000")
	assert.NoError(t, err)
}

func TestBackup_EvictionFailureIsSwallowed(t *testing.T) {
	host := targettest.New()
	require.NoError(t, host.WriteFile("/etc/a.conf", []byte("a"), 0o644))
	// Pre-seed more backups than the limit; Remove fails for one of them.
	for i := 0; i < 6; i++ {
		p := fmt.Sprintf("/etc/a.conf.bak-2024030111000%d", i)
		require.NoError(t, host.WriteFile(p, []byte("old"), 0o600))
	}

	svc := NewWithClock(testLogger(), host, fakeClock())
	result, err := svc.Backup("/etc/a.conf", 5)

	require.NoError(t, err)
	assert.NotEmpty(t, result.BackupPath)
	assert.Len(t, result.Evicted, 2)
}
