package browser

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBrowserScript writes an executable that just sleeps, standing in for a
// browser binary that never opens its debugging port.
func stubBrowserScript(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub browser script requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "stub-browser")
	script := "#!/bin/sh\nsleep 30\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestStartRequiresExecutablePath(t *testing.T) {
	cfg := NewConfig()
	l := NewLauncher(cfg, nil)

	_, err := l.Start(context.Background())

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "no browser executable")
	assert.False(t, l.Running())
}

func TestStartRejectsMissingExecutable(t *testing.T) {
	cfg := NewConfig()
	cfg.BrowserExecutablePath = filepath.Join(t.TempDir(), "does-not-exist")
	l := NewLauncher(cfg, nil)

	_, err := l.Start(context.Background())

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "not found")
	assert.False(t, l.Running(), "nothing may be spawned on a config error")
}

func TestStartKillsProcessWhenHandshakeExhausts(t *testing.T) {
	cfg := NewConfig()
	cfg.BrowserExecutablePath = stubBrowserScript(t)
	cfg.ConnectionTimeout = 5 * time.Millisecond
	cfg.ConnectionMaxTries = 3
	l := NewLauncher(cfg, nil)

	_, err := l.Start(context.Background())

	var hsErr *HandshakeError
	require.ErrorAs(t, err, &hsErr)
	assert.Equal(t, 3, hsErr.Attempts)
	assert.Error(t, hsErr.Unwrap(), "the last probe failure must be preserved")
	assert.False(t, l.Running(), "the spawned process must not be orphaned")
	assert.Equal(t, 0, l.Pid())
}

func TestStartSpawnFillsEndpointAndProfile(t *testing.T) {
	cfg := NewConfig()
	cfg.BrowserExecutablePath = stubBrowserScript(t)
	cfg.ConnectionTimeout = time.Millisecond
	cfg.ConnectionMaxTries = 1
	l := NewLauncher(cfg, nil)

	_, err := l.Start(context.Background())
	require.Error(t, err)

	// Even though the handshake failed, spawn mode must have picked the
	// loopback endpoint and created a throwaway profile directory, which
	// the Stop run by the failed Start then removed again.
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.NotZero(t, cfg.Port)
	require.NotEmpty(t, cfg.UserDataDir)
	assert.False(t, cfg.UsesCustomDataDir())
	_, statErr := os.Stat(cfg.UserDataDir)
	assert.True(t, os.IsNotExist(statErr), "throwaway profile must be cleaned up at Stop")
}

func TestStopKeepsCallerSuppliedProfile(t *testing.T) {
	cfg := NewConfig()
	cfg.BrowserExecutablePath = stubBrowserScript(t)
	cfg.UserDataDir = t.TempDir()
	cfg.ConnectionTimeout = time.Millisecond
	cfg.ConnectionMaxTries = 1
	l := NewLauncher(cfg, nil)

	_, err := l.Start(context.Background())
	require.Error(t, err)

	assert.True(t, cfg.UsesCustomDataDir())
	info, statErr := os.Stat(cfg.UserDataDir)
	require.NoError(t, statErr, "caller-supplied profile must survive Stop")
	assert.True(t, info.IsDir())
}

func TestStopTerminatesDescendantProcesses(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub browser script requires a POSIX shell")
	}
	// The stub forks a long-lived grandchild that inherits the stderr
	// pipe. Stop must bring the whole group down instead of waiting out
	// the grandchild's sleep.
	path := filepath.Join(t.TempDir(), "stub-browser")
	script := "#!/bin/sh\nsleep 30 &\nsleep 30\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	cfg := NewConfig()
	cfg.BrowserExecutablePath = path
	cfg.ConnectionTimeout = 5 * time.Millisecond
	cfg.ConnectionMaxTries = 2
	l := NewLauncher(cfg, nil)

	started := time.Now()
	_, err := l.Start(context.Background())
	elapsed := time.Since(started)

	var hsErr *HandshakeError
	require.ErrorAs(t, err, &hsErr)
	assert.False(t, l.Running())
	assert.Less(t, elapsed, gracefulStopTimeout, "Stop must not wait out surviving descendants")
}

func TestStartHonorsCancelledContext(t *testing.T) {
	cfg := NewConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	cfg.ConnectionTimeout = 50 * time.Millisecond
	cfg.ConnectionMaxTries = 100
	l := NewLauncher(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Start(ctx)

	var hsErr *HandshakeError
	require.ErrorAs(t, err, &hsErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStopWithNothingOwnedIsNoOp(t *testing.T) {
	l := NewLauncher(NewConfig(), nil)
	l.Stop()
	l.Stop()
	assert.False(t, l.Running())
}
