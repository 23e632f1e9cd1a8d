package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Default handshake pacing: the interval slept before each discovery
// attempt, and how many attempts to make before giving up.
const (
	DefaultConnectionTimeout  = 250 * time.Millisecond
	DefaultConnectionMaxTries = 60
)

// Config holds everything needed to launch or attach to a browser. The zero
// value is not usable; construct with NewConfig (or LoadConfig) so defaults
// are applied.
type Config struct {
	// BrowserExecutablePath is the browser binary to spawn. Required unless
	// Host and Port select attach mode.
	BrowserExecutablePath string `yaml:"browser_executable_path"`

	// UserDataDir is the profile directory. When empty a throwaway directory
	// is created under the system temp dir.
	UserDataDir string `yaml:"user_data_dir"`

	// Headless runs the browser without a visible window.
	Headless bool `yaml:"headless"`

	// Sandbox keeps the browser sandbox enabled. Disable only when running
	// as root in containers.
	Sandbox bool `yaml:"sandbox"`

	// BrowserArgs are extra arguments appended to the launch argument vector.
	BrowserArgs []string `yaml:"browser_args"`

	// Host and Port, when both set, select attach mode: no process is
	// spawned and the handshake targets the given address directly. In spawn
	// mode they are filled in with the loopback host and an ephemeral port.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// AutodiscoverTargets wires target lifecycle events into the registry at
	// Start. On by default.
	AutodiscoverTargets bool `yaml:"autodiscover_targets"`

	// ConnectionTimeout is the fixed interval slept before each handshake
	// attempt; ConnectionMaxTries bounds the number of attempts. In config
	// files the interval is a duration string like "250ms", parsed by
	// LoadConfig.
	ConnectionTimeout  time.Duration `yaml:"-"`
	ConnectionMaxTries int           `yaml:"connection_max_tries"`

	usesCustomDataDir bool
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	return &Config{
		Sandbox:             true,
		AutodiscoverTargets: true,
		ConnectionTimeout:   DefaultConnectionTimeout,
		ConnectionMaxTries:  DefaultConnectionMaxTries,
	}
}

// LoadConfig reads a YAML config file over NewConfig defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Duration strings need explicit parsing; yaml has no native duration.
	var timings struct {
		ConnectionTimeout string `yaml:"connection_timeout"`
	}
	if err := yaml.Unmarshal(data, &timings); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if timings.ConnectionTimeout != "" {
		d, err := time.ParseDuration(timings.ConnectionTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing connection_timeout: %w", err)
		}
		cfg.ConnectionTimeout = d
	}

	if cfg.UserDataDir != "" {
		cfg.usesCustomDataDir = true
	}
	return cfg, nil
}

// AttachMode reports whether the config points at an already-running
// browser instead of spawning one.
func (c *Config) AttachMode() bool {
	return c.Host != "" && c.Port != 0
}

// UsesCustomDataDir reports whether the profile directory was supplied by
// the caller rather than created as a throwaway.
func (c *Config) UsesCustomDataDir() bool {
	return c.usesCustomDataDir
}

// ensureUserDataDir creates the throwaway profile directory when none was
// configured.
func (c *Config) ensureUserDataDir() error {
	if c.UserDataDir != "" {
		c.usesCustomDataDir = true
		return nil
	}
	dir := filepath.Join(os.TempDir(), "zendriver-profile-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating profile dir: %w", err)
	}
	c.UserDataDir = dir
	return nil
}

// Args builds the launch argument vector for the configured browser: the
// debugging endpoint, the profile directory, mode flags, caller extras, and
// the initial blank page.
func (c *Config) Args() []string {
	args := []string{
		"--remote-debugging-host=" + c.Host,
		fmt.Sprintf("--remote-debugging-port=%d", c.Port),
		"--user-data-dir=" + c.UserDataDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-dev-shm-usage",
	}
	if c.Headless {
		args = append(args, "--headless=new")
	}
	if !c.Sandbox {
		args = append(args, "--no-sandbox")
	}
	args = append(args, c.BrowserArgs...)
	args = append(args, "about:blank")
	return args
}
