// Package main provides the zendriver command line tool. It launches (or
// attaches to) a browser, opens a page over the devtools protocol, and
// prints what it finds, making it a quick smoke test for the driver and a
// minimal scripting surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raycardillo/zendriver/pkg/browser"
)

const version = "0.1.0" // Version of the zendriver tool

// cliConfig holds the command line configuration
type cliConfig struct {
	ConfigPath  string
	Executable  string
	Host        string
	Port        int
	URL         string
	Headless    bool
	NewTab      bool
	PrintText   bool
	ListTargets bool
	Timeout     time.Duration
	ShowVersion bool
}

func main() {
	config := parseFlags()

	if config.ShowVersion {
		fmt.Printf("zendriver v%s\n", version)
		return
	}

	if err := config.validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Create context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	if err := run(ctx, config); err != nil {
		log.Fatalf("Driver error: %v", err)
	}
}

// parseFlags parses command line flags
func parseFlags() *cliConfig {
	config := &cliConfig{}

	flag.StringVar(&config.ConfigPath, "config", "", "Path to a YAML config file (optional)")
	flag.StringVar(&config.Executable, "browser", os.Getenv("ZENDRIVER_BROWSER"), "Browser executable to launch (or set ZENDRIVER_BROWSER env var)")
	flag.StringVar(&config.Host, "host", "", "Debugging host of an already-running browser (attach mode)")
	flag.IntVar(&config.Port, "port", 0, "Debugging port of an already-running browser (attach mode)")
	flag.StringVar(&config.URL, "url", "about:blank", "URL to open")
	flag.BoolVar(&config.Headless, "headless", false, "Run the browser without a visible window")
	flag.BoolVar(&config.NewTab, "new-tab", false, "Open the URL in a new tab instead of reusing the first page")
	flag.BoolVar(&config.PrintText, "text", false, "Print the visible text of the opened page")
	flag.BoolVar(&config.ListTargets, "targets", false, "List tracked targets after opening the page")
	flag.DurationVar(&config.Timeout, "timeout", 60*time.Second, "Overall deadline for the session")
	flag.BoolVar(&config.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "zendriver - browser remote control over the devtools protocol\n\n")
		fmt.Fprintf(os.Stderr, "Usage: zendriver [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  ZENDRIVER_BROWSER    Browser executable to launch\n")
		fmt.Fprintf(os.Stderr, "  ZENDRIVER_LOG_DIR    Directory for driver log files\n")
		fmt.Fprintf(os.Stderr, "  ZENDRIVER_DEBUG      Enable debug-level logging when set\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  zendriver -browser /usr/bin/chromium -headless -url https://example.com -text\n")
		fmt.Fprintf(os.Stderr, "  zendriver -host 127.0.0.1 -port 9222 -url https://example.com -targets\n")
		fmt.Fprintf(os.Stderr, "  zendriver -config driver.yaml -url https://example.com\n")
	}

	flag.Parse()
	return config
}

// validate checks that the configuration is usable
func (c *cliConfig) validate() error {
	attach := c.Host != "" && c.Port != 0
	if !attach && c.Executable == "" && c.ConfigPath == "" {
		return fmt.Errorf("a browser is required: use -browser, a -config file, or -host/-port to attach")
	}
	if (c.Host == "") != (c.Port == 0) {
		return fmt.Errorf("attach mode needs both -host and -port")
	}
	return nil
}

// buildConfig merges the config file, if any, with the command line flags.
// Flags win.
func (c *cliConfig) buildConfig() (*browser.Config, error) {
	cfg := browser.NewConfig()
	if c.ConfigPath != "" {
		loaded, err := browser.LoadConfig(c.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.Executable != "" {
		cfg.BrowserExecutablePath = c.Executable
	}
	if c.Host != "" {
		cfg.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.Headless {
		cfg.Headless = true
	}
	return cfg, nil
}

// run executes one driver session: start, open, report, stop.
func run(ctx context.Context, config *cliConfig) error {
	cfg, err := config.buildConfig()
	if err != nil {
		return err
	}

	b, err := browser.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Stop()

	if v := b.Version(); v != nil {
		fmt.Printf("Connected to %s (protocol %s)\n", v.Browser, v.ProtocolVersion)
	}

	tab, err := b.Get(ctx, config.URL, browser.GetOptions{NewTab: config.NewTab})
	if err != nil {
		return err
	}
	fmt.Printf("Opened %s in target %s\n", config.URL, tab.ID())

	if config.PrintText {
		content, err := tab.Content(ctx)
		if err != nil {
			return err
		}
		if title := browser.PageTitle(content); title != "" {
			fmt.Printf("Title: %s\n", title)
		}
		text, err := browser.ExtractVisibleText(content)
		if err != nil {
			return err
		}
		fmt.Println(text)
	}

	if config.ListTargets {
		fmt.Println("Tracked targets:")
		for _, target := range b.Targets() {
			fmt.Printf("  %-10s %-40s %s\n", target.Kind(), target.ID(), target.URL())
		}
	}

	return nil
}
