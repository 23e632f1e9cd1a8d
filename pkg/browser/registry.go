package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gobwas/glob"

	"github.com/raycardillo/zendriver/pkg/cdp"
	"github.com/raycardillo/zendriver/pkg/logging"
	"github.com/raycardillo/zendriver/pkg/session"
)

// Registry is the authoritative set of tracked targets. It consumes the
// four Target lifecycle events from the root session and the explicit
// snapshot poll of UpdateTargets, and is the only writer of its entry list;
// every mutation goes through its mutex.
//
// The remote side is authoritative: lifecycle events referencing unknown
// targets are benign races and are logged and ignored, never raised.
type Registry struct {
	host   string
	port   int
	logger *logging.Logger

	mu      sync.Mutex
	entries []*Tab
}

// NewRegistry creates a registry for targets of the browser listening at
// host:port. A nil logger discards output.
func NewRegistry(host string, port int, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{host: host, port: port, logger: logger}
}

// controlAddress builds the per-target control address. kind is forced to
// "page" when empty; every target type is multiplexed as a page at the wire
// level.
func (r *Registry) controlAddress(kind string, id cdp.TargetID) string {
	if kind == "" {
		kind = "page"
	}
	return fmt.Sprintf("ws://%s:%d/devtools/%s/%s", r.host, r.port, kind, id)
}

// HandleTargetEvent consumes one Target lifecycle event. Registered against
// the root session for Target.targetCreated, Target.targetInfoChanged,
// Target.targetDestroyed and Target.targetCrashed.
func (r *Registry) HandleTargetEvent(ev session.Event) {
	switch ev.Method {
	case cdp.EventTargetCreated:
		var payload cdp.TargetCreatedEvent
		if err := json.Unmarshal(ev.Params, &payload); err != nil {
			r.logger.Warnf("registry: bad targetCreated payload: %v", err)
			return
		}
		r.onCreated(payload.TargetInfo)

	case cdp.EventTargetInfoChanged:
		var payload cdp.TargetInfoChangedEvent
		if err := json.Unmarshal(ev.Params, &payload); err != nil {
			r.logger.Warnf("registry: bad targetInfoChanged payload: %v", err)
			return
		}
		r.onInfoChanged(payload.TargetInfo)

	case cdp.EventTargetDestroyed:
		var payload cdp.TargetDestroyedEvent
		if err := json.Unmarshal(ev.Params, &payload); err != nil {
			r.logger.Warnf("registry: bad targetDestroyed payload: %v", err)
			return
		}
		r.onDestroyed(payload.TargetID)

	case cdp.EventTargetCrashed:
		var payload cdp.TargetCrashedEvent
		if err := json.Unmarshal(ev.Params, &payload); err != nil {
			r.logger.Warnf("registry: bad targetCrashed payload: %v", err)
			return
		}
		r.onCrashed(payload)
	}
}

func (r *Registry) onCreated(info cdp.TargetInfo) {
	tab := newTab(r.controlAddress(info.Type, info.TargetID), info, r.logger)

	r.mu.Lock()
	r.entries = append(r.entries, tab)
	n := len(r.entries)
	r.mu.Unlock()

	r.logger.Debugf("registry: target #%d created => %s %s", n, info.Type, info.TargetID)
}

func (r *Registry) onInfoChanged(info cdp.TargetInfo) {
	r.mu.Lock()
	tab := r.findLocked(info.TargetID)
	if tab != nil {
		tab.merge(info)
	}
	r.mu.Unlock()

	if tab == nil {
		// Benign race: the remote side is authoritative and may report
		// changes for targets we have not tracked (yet, or anymore).
		r.logger.Debugf("registry: info change for unknown target %s ignored", info.TargetID)
	}
}

func (r *Registry) onDestroyed(id cdp.TargetID) {
	r.mu.Lock()
	idx := -1
	for i, tab := range r.entries {
		if tab.ID() == id {
			idx = i
			break
		}
	}
	if idx >= 0 {
		r.entries = append(r.entries[:idx], r.entries[idx+1:]...)
	}
	r.mu.Unlock()

	if idx >= 0 {
		r.logger.Debugf("registry: target %s removed", id)
	}
}

func (r *Registry) onCrashed(ev cdp.TargetCrashedEvent) {
	r.mu.Lock()
	tab := r.findLocked(ev.TargetID)
	if tab != nil {
		tab.markCrashed()
	}
	r.mu.Unlock()

	if tab != nil {
		r.logger.Warnf("registry: target %s crashed (%s, code %d)", ev.TargetID, ev.Status, ev.ErrorCode)
	}
}

// UpdateTargets runs one reconciliation pass: poll the full target snapshot
// through the root session and merge it into the tracked set. Snapshot
// entries merge into existing records or create new ones; entries tracked
// locally but absent from the snapshot are NOT removed; removal is the
// sole responsibility of destroyed events, and this pass is a catch-up
// sync, not a full resync.
func (r *Registry) UpdateTargets(ctx context.Context, root *session.Session) error {
	raw, err := root.Poll(ctx, cdp.GetTargets())
	if err != nil {
		return fmt.Errorf("polling targets: %w", err)
	}
	var snapshot cdp.GetTargetsResult
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return fmt.Errorf("decoding target snapshot: %w", err)
	}

	r.mu.Lock()
	for _, info := range snapshot.TargetInfos {
		if existing := r.findLocked(info.TargetID); existing != nil {
			existing.merge(info)
			continue
		}
		// Snapshot entries always get a page control address; every type is
		// multiplexed as a page at the wire level.
		r.entries = append(r.entries, newTab(r.controlAddress("page", info.TargetID), info, r.logger))
	}
	n := len(r.entries)
	r.mu.Unlock()

	r.logger.Debugf("registry: reconciled %d snapshot entries, %d tracked", len(snapshot.TargetInfos), n)
	return nil
}

func (r *Registry) findLocked(id cdp.TargetID) *Tab {
	for _, tab := range r.entries {
		if tab.ID() == id {
			return tab
		}
	}
	return nil
}

// ByID returns the tracked entry for the given target id, or nil.
func (r *Registry) ByID(id cdp.TargetID) *Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(id)
}

// All returns every tracked entry in discovery order.
func (r *Registry) All() []*Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Tab(nil), r.entries...)
}

// Tabs returns the tracked entries whose resolved kind is "page", in
// discovery order.
func (r *Registry) Tabs() []*Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tabs []*Tab
	for _, tab := range r.entries {
		if tab.Kind() == "page" {
			tabs = append(tabs, tab)
		}
	}
	return tabs
}

// MainTab returns the first page-kind entry if one exists, else the first
// entry of any kind. Ties break by discovery order. Returns nil when
// nothing is tracked.
func (r *Registry) MainTab() *Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tab := range r.entries {
		if tab.Kind() == "page" {
			return tab
		}
	}
	if len(r.entries) > 0 {
		return r.entries[0]
	}
	return nil
}

// FindTab returns the first tracked entry whose URL or title matches the
// given glob pattern, e.g. "https://*.example.com/*".
func (r *Registry) FindTab(pattern string) (*Tab, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tab := range r.entries {
		if g.Match(tab.URL()) || g.Match(tab.Title()) {
			return tab, nil
		}
	}
	return nil, nil
}
