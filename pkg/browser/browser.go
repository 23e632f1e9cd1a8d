package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/raycardillo/zendriver/pkg/cdp"
	"github.com/raycardillo/zendriver/pkg/logging"
	"github.com/raycardillo/zendriver/pkg/session"
)

const (
	// rootCloseTimeout bounds how long Stop waits for the root session to
	// close before moving on to process termination.
	rootCloseTimeout = 10 * time.Second

	// settleDelay is the short pause after a navigation request, giving the
	// page a chance to begin loading before the caller proceeds.
	settleDelay = 250 * time.Millisecond
)

// GetOptions controls where Get opens the requested URL.
type GetOptions struct {
	// NewTab opens the URL in a new tab instead of reusing the first page.
	NewTab bool

	// NewWindow opens the URL in a new window (implies a new target).
	NewWindow bool
}

// Browser is the root of the driver: it owns the process launcher, the root
// control session and the target registry, and exposes the top-level
// navigation and lifecycle operations.
//
// There should usually be exactly one Browser per controlled process.
// Additional tabs and windows do not need additional Browser instances.
type Browser struct {
	cfg    *Config
	logger *logging.Logger

	launcher *Launcher

	mu       sync.Mutex
	root     *session.Session
	registry *Registry
	info     *HandshakeInfo
	subs     []*session.Subscription
	stopped  bool
}

// New creates a Browser for the given config. Nothing is launched until
// Start. A nil config gets defaults (attach-less, which then requires an
// executable path before Start).
func New(cfg *Config) (*Browser, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = DefaultConnectionTimeout
	}
	if cfg.ConnectionMaxTries <= 0 {
		cfg.ConnectionMaxTries = DefaultConnectionMaxTries
	}

	logger, err := logging.NewLogger("browser")
	if err != nil {
		// Fallback logger already reported the problem; keep going.
		logger.Debugf("browser: file logging unavailable: %v", err)
	}

	return &Browser{
		cfg:      cfg,
		logger:   logger,
		launcher: NewLauncher(cfg, logger),
	}, nil
}

// Start launches (or attaches to) the browser, connects the root session
// and seeds the target registry. A failed Start leaves no orphaned process.
func (b *Browser) Start(ctx context.Context) error {
	info, err := b.launcher.Start(ctx)
	if err != nil {
		return err
	}

	root := session.New(info.WebSocketDebuggerURL(), b.logger)
	if err := root.Connect(ctx); err != nil {
		b.launcher.Stop()
		return fmt.Errorf("connecting root session: %w", err)
	}

	// Best-effort protocol-level version probe; the channel is exercised
	// properly right after, so failures here are only logged.
	if raw, err := root.Send(ctx, cdp.GetVersion()); err == nil {
		var v cdp.GetVersionResult
		if json.Unmarshal(raw, &v) == nil && v.Product != "" {
			b.logger.Infof("browser: control channel to %s (protocol %s)", v.Product, v.ProtocolVersion)
		}
	} else {
		b.logger.Debugf("browser: version probe failed: %v", err)
	}

	registry := NewRegistry(info.Host, info.Port, b.logger)

	var subs []*session.Subscription
	if b.cfg.AutodiscoverTargets {
		for _, method := range []string{
			cdp.EventTargetCreated,
			cdp.EventTargetInfoChanged,
			cdp.EventTargetDestroyed,
			cdp.EventTargetCrashed,
		} {
			subs = append(subs, root.On(method, registry.HandleTargetEvent))
		}
		if _, err := root.Send(ctx, cdp.SetDiscoverTargets(true)); err != nil {
			_ = root.Close()
			b.launcher.Stop()
			return fmt.Errorf("enabling target discovery: %w", err)
		}
		b.logger.Infof("browser: target autodiscovery enabled")
	}

	// Seed the registry: catch up on targets that existed before discovery
	// was wired.
	if err := registry.UpdateTargets(ctx, root); err != nil {
		_ = root.Close()
		b.launcher.Stop()
		return fmt.Errorf("seeding target registry: %w", err)
	}

	b.mu.Lock()
	b.root = root
	b.registry = registry
	b.info = info
	b.subs = subs
	b.stopped = false
	b.mu.Unlock()

	b.logger.Infof("browser: started, %d targets tracked", len(registry.All()))
	return nil
}

// parts returns the connected root session and registry, or an error before
// Start.
func (b *Browser) parts() (*session.Session, *Registry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.root == nil || b.registry == nil {
		return nil, nil, fmt.Errorf("browser not started")
	}
	return b.root, b.registry, nil
}

// Get navigates to url and returns the tab handle. With neither option set
// the first tracked page is reused; otherwise a new target is created. In
// both cases Get pauses briefly after issuing the navigation so the page
// can begin taking effect before the caller proceeds.
func (b *Browser) Get(ctx context.Context, url string, opts GetOptions) (*Tab, error) {
	root, registry, err := b.parts()
	if err != nil {
		return nil, err
	}

	var tab *Tab
	if opts.NewTab || opts.NewWindow {
		raw, err := root.Send(ctx, cdp.CreateTarget(url, opts.NewWindow, true))
		if err != nil {
			return nil, fmt.Errorf("creating target: %w", err)
		}
		var created cdp.CreateTargetResult
		if err := json.Unmarshal(raw, &created); err != nil {
			return nil, fmt.Errorf("decoding created target: %w", err)
		}

		// Usually the created event lands before the command response
		// resolves. When discovery is not wired (or the event lost the
		// race), force one reconciliation pass.
		tab = registry.ByID(created.TargetID)
		if tab == nil {
			if err := registry.UpdateTargets(ctx, root); err != nil {
				return nil, err
			}
			tab = registry.ByID(created.TargetID)
		}
		if tab == nil {
			return nil, fmt.Errorf("created target %s is not tracked", created.TargetID)
		}
	} else {
		tabs := registry.Tabs()
		if len(tabs) == 0 {
			return nil, fmt.Errorf("no page targets tracked")
		}
		tab = tabs[0]
		if err := tab.Navigate(ctx, url); err != nil {
			return nil, err
		}
	}

	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return tab, nil
}

// Tabs returns the tracked page-kind targets in discovery order.
func (b *Browser) Tabs() []*Tab {
	b.mu.Lock()
	registry := b.registry
	b.mu.Unlock()
	if registry == nil {
		return nil
	}
	return registry.Tabs()
}

// Targets returns every tracked target of any kind.
func (b *Browser) Targets() []*Tab {
	b.mu.Lock()
	registry := b.registry
	b.mu.Unlock()
	if registry == nil {
		return nil
	}
	return registry.All()
}

// MainTab returns the first page-kind target, or the first target of any
// kind, or nil.
func (b *Browser) MainTab() *Tab {
	b.mu.Lock()
	registry := b.registry
	b.mu.Unlock()
	if registry == nil {
		return nil
	}
	return registry.MainTab()
}

// FindTab returns the first tracked target whose URL or title matches the
// glob pattern.
func (b *Browser) FindTab(pattern string) (*Tab, error) {
	_, registry, err := b.parts()
	if err != nil {
		return nil, err
	}
	return registry.FindTab(pattern)
}

// UpdateTargets forces one reconciliation pass against the live browser.
func (b *Browser) UpdateTargets(ctx context.Context) error {
	root, registry, err := b.parts()
	if err != nil {
		return err
	}
	return registry.UpdateTargets(ctx, root)
}

// DiscoverySnapshot fetches the plain-HTTP target list from the discovery
// endpoint. Unlike UpdateTargets this does not touch the registry.
func (b *Browser) DiscoverySnapshot(ctx context.Context) ([]TargetListEntry, error) {
	b.mu.Lock()
	info := b.info
	b.mu.Unlock()
	if info == nil {
		return nil, fmt.Errorf("browser not started")
	}
	return newHTTPAPI(info.Host, info.Port).list(ctx)
}

// WebSocketURL returns the root control address discovered at Start, or "".
func (b *Browser) WebSocketURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.info == nil {
		return ""
	}
	return b.info.WebSocketDebuggerURL()
}

// Version returns the handshake version info, or nil before Start.
func (b *Browser) Version() *VersionInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.info == nil {
		return nil
	}
	v := b.info.Version
	return &v
}

// GrantAllPermissions grants every grantable browser permission, so pages
// never block on a permission prompt.
func (b *Browser) GrantAllPermissions(ctx context.Context) error {
	root, _, err := b.parts()
	if err != nil {
		return err
	}
	if _, err := root.Send(ctx, cdp.GrantPermissions(cdp.AllPermissions())); err != nil {
		return fmt.Errorf("granting permissions: %w", err)
	}
	return nil
}

// Wait sleeps for the given duration, honoring ctx. Useful between
// navigation and inspection.
func (b *Browser) Wait(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// Stop shuts everything down: the root session is closed with a bounded
// timeout, then the launcher terminates the owned process. Stop never
// fails; problems are logged. Safe to call repeatedly and safe if Start was
// never called or did not succeed.
func (b *Browser) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	root := b.root
	subs := b.subs
	b.root = nil
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}

	if root != nil {
		// Ask the browser to shut down on its own first; process
		// termination below is the backstop.
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		if _, err := root.Send(closeCtx, cdp.CloseBrowser()); err != nil {
			b.logger.Debugf("browser: graceful close request failed: %v", err)
		}
		cancel()

		done := make(chan struct{})
		go func() {
			_ = root.Close()
			close(done)
		}()
		select {
		case <-done:
			b.logger.Debugf("browser: root session closed")
		case <-time.After(rootCloseTimeout):
			b.logger.Errorf("browser: timeout closing root session")
		}
	}

	b.launcher.Stop()
	b.logger.Infof("browser: stopped")
}
