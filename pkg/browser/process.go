package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/raycardillo/zendriver/pkg/logging"
)

// gracefulStopTimeout bounds how long Stop waits for the browser process to
// exit after SIGTERM before force-killing it.
const gracefulStopTimeout = 5 * time.Second

// HandshakeInfo is the outcome of a successful discovery handshake: where
// the browser is listening and what it reported about itself.
type HandshakeInfo struct {
	Host    string
	Port    int
	Version VersionInfo
}

// WebSocketDebuggerURL returns the root control address discovered during
// the handshake.
func (h *HandshakeInfo) WebSocketDebuggerURL() string {
	return h.Version.WebSocketDebuggerURL
}

// Launcher owns the browser OS process: it spawns (or attaches to) the
// browser, performs the discovery handshake with bounded retries, and runs
// the termination sequence. The process handle is never shared.
type Launcher struct {
	cfg    *Config
	logger *logging.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	pid    int
	stderr bytes.Buffer

	// ownedProfile is the throwaway profile directory created for this run,
	// removed at Stop. Empty when the caller supplied the directory.
	ownedProfile string
}

// NewLauncher creates a launcher for the given config. A nil logger
// discards output.
func NewLauncher(cfg *Config, logger *logging.Logger) *Launcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Launcher{cfg: cfg, logger: logger}
}

// Pid returns the spawned process id, or 0 in attach mode or before Start.
func (l *Launcher) Pid() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pid
}

// Running reports whether a spawned process is currently owned and alive.
func (l *Launcher) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cmd != nil && l.cmd.ProcessState == nil
}

// Start launches the browser (unless the config selects attach mode) and
// performs the discovery handshake: sleep a fixed interval, probe
// /json/version, repeat up to the configured number of attempts. A missing
// executable fails with a ConfigurationError before any spawn attempt;
// exhausting the attempts terminates any spawned process and fails with a
// HandshakeError.
func (l *Launcher) Start(ctx context.Context) (*HandshakeInfo, error) {
	cfg := l.cfg

	if !cfg.AttachMode() {
		if cfg.BrowserExecutablePath == "" {
			return nil, &ConfigurationError{Reason: "no browser executable path configured"}
		}
		if _, err := os.Stat(cfg.BrowserExecutablePath); err != nil {
			return nil, &ConfigurationError{
				Reason: fmt.Sprintf("browser executable %q not found", cfg.BrowserExecutablePath),
			}
		}
		if err := cfg.ensureUserDataDir(); err != nil {
			return nil, &ConfigurationError{Reason: err.Error()}
		}
		if !cfg.UsesCustomDataDir() {
			l.mu.Lock()
			l.ownedProfile = cfg.UserDataDir
			l.mu.Unlock()
		}

		cfg.Host = "127.0.0.1"
		port, err := freePort()
		if err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("allocating debugging port: %v", err)}
		}
		cfg.Port = port

		if err := l.spawn(); err != nil {
			return nil, err
		}
	}

	info, err := l.handshake(ctx)
	if err != nil {
		l.Stop()
		return nil, err
	}
	return info, nil
}

func (l *Launcher) spawn() error {
	cfg := l.cfg
	args := cfg.Args()
	l.logger.Infof("launcher: starting %s with %d args", cfg.BrowserExecutablePath, len(args))
	l.logger.Debugf("launcher: argv %v", args)

	cmd := exec.Command(cfg.BrowserExecutablePath, args...)
	// Stdin and stdout are connected to the null device; stderr is captured
	// for diagnostics on shutdown.
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = &l.stderr

	// Own process group, so termination signals reach browser helper
	// processes too. WaitDelay bounds the pipe drain in case a descendant
	// inheriting the stderr pipe survives anyway.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = gracefulStopTimeout

	if err := cmd.Start(); err != nil {
		return &ConfigurationError{Reason: fmt.Sprintf("spawning browser: %v", err)}
	}

	l.mu.Lock()
	l.cmd = cmd
	l.pid = cmd.Process.Pid
	l.mu.Unlock()
	l.logger.Infof("launcher: browser process started, pid %d", cmd.Process.Pid)
	return nil
}

// handshake probes the discovery endpoint until it yields a websocket
// debugger address. Each attempt is preceded by the fixed configured
// interval; individual failures are non-fatal and retried.
func (l *Launcher) handshake(ctx context.Context) (*HandshakeInfo, error) {
	cfg := l.cfg
	api := newHTTPAPI(cfg.Host, cfg.Port)

	var lastErr error
	for attempt := 1; attempt <= cfg.ConnectionMaxTries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, &HandshakeError{Attempts: attempt - 1, Err: ctx.Err()}
		case <-time.After(cfg.ConnectionTimeout):
		}

		version, err := api.version(ctx)
		if err != nil {
			lastErr = err
			l.logger.Debugf("launcher: handshake attempt %d/%d failed: %v",
				attempt, cfg.ConnectionMaxTries, err)
			continue
		}

		l.logger.Infof("launcher: connected to %s at %s:%d",
			version.Browser, cfg.Host, cfg.Port)
		return &HandshakeInfo{Host: cfg.Host, Port: cfg.Port, Version: *version}, nil
	}

	return nil, &HandshakeError{Attempts: cfg.ConnectionMaxTries, Err: lastErr}
}

// Stop terminates the owned browser process group: SIGTERM, a bounded wait,
// then a force kill. A vanished process is benign, and any throwaway
// profile directory is removed. Calling Stop with nothing owned only runs
// the profile cleanup, so Stop is safe to call repeatedly.
func (l *Launcher) Stop() {
	l.mu.Lock()
	cmd := l.cmd
	l.cmd = nil
	l.pid = 0
	l.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		l.signalGroup(cmd.Process.Pid, syscall.SIGTERM)

		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()

		select {
		case <-done:
		case <-time.After(gracefulStopTimeout):
			l.logger.Debugf("launcher: browser did not stop in %s, killing it", gracefulStopTimeout)
			l.signalGroup(cmd.Process.Pid, syscall.SIGKILL)
			<-done
		}

		if l.stderr.Len() > 0 {
			l.logger.Infof("launcher: browser stderr: %s", l.stderr.String())
		}
		l.logger.Infof("launcher: browser process stopped")
	}

	l.cleanupProfile()
}

// signalGroup delivers sig to the whole process group, falling back to the
// process itself when no group exists. An already-gone process is benign.
func (l *Launcher) signalGroup(pid int, sig syscall.Signal) {
	err := syscall.Kill(-pid, sig)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return
	}
	if err := syscall.Kill(pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		l.logger.Debugf("launcher: signal %v failed: %v", sig, err)
	}
}

// cleanupProfile removes the throwaway profile directory, if this launcher
// created one. Caller-supplied directories are never touched.
func (l *Launcher) cleanupProfile() {
	l.mu.Lock()
	dir := l.ownedProfile
	l.ownedProfile = ""
	l.mu.Unlock()

	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		l.logger.Warnf("launcher: removing throwaway profile %s: %v", dir, err)
		return
	}
	l.logger.Debugf("launcher: removed throwaway profile %s", dir)
}

// freePort allocates an ephemeral local port for the debugging endpoint.
func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
