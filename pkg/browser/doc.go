// Package browser composes the driver's three moving parts into a usable
// whole: a process launcher that spawns (or attaches to) the browser and
// performs the discovery handshake, a target registry that keeps a live view
// of every browsing target by consuming lifecycle events and snapshot polls,
// and the Browser facade tying them to a root control session.
//
// # Lifecycle
//
//	cfg := browser.NewConfig()
//	cfg.BrowserExecutablePath = "/usr/bin/chromium"
//	cfg.Headless = true
//
//	b, err := browser.New(cfg)
//	if err != nil { ... }
//	if err := b.Start(ctx); err != nil { ... }
//	defer b.Stop()
//
//	tab, err := b.Get(ctx, "https://example.com", browser.GetOptions{})
//
// Start launches the process, retries the /json/version discovery endpoint
// on a fixed interval until the websocket debugger address appears, connects
// the root session, wires target auto-discovery and seeds the registry with
// one reconciliation pass. A failed Start never leaves an orphaned process.
//
// # Targets and tabs
//
// Every browsing context the browser reports (tab, window, iframe,
// background page) is tracked as a Tab holding a per-target session that
// dials lazily on first use. Tab records are merged in place on lifecycle
// updates, so a Tab obtained once keeps reflecting the live target state.
// Removal happens only on an explicit destroyed event; the reconciliation
// poll adds and merges but deliberately never removes.
package browser
