package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/raycardillo/zendriver/pkg/cdp"
	"github.com/raycardillo/zendriver/pkg/logging"
	"github.com/raycardillo/zendriver/pkg/session"
)

// Tab is one tracked browsing target (a tab, window, iframe or background
// page) together with its own control session. The session dials lazily on
// first use, so tracking a target is cheap.
//
// Tab records are updated in place by the registry as lifecycle events
// arrive: a Tab held since creation keeps reflecting the live target state.
type Tab struct {
	sess *session.Session

	mu   sync.Mutex
	info cdp.TargetInfo
}

func newTab(wsURL string, info cdp.TargetInfo, logger *logging.Logger) *Tab {
	return &Tab{
		sess: session.New(wsURL, logger),
		info: info,
	}
}

// merge overlays fresh target info onto the record in place. Called by the
// registry, which is the only writer.
func (t *Tab) merge(info cdp.TargetInfo) {
	t.mu.Lock()
	t.info.Merge(info)
	t.mu.Unlock()
}

func (t *Tab) markCrashed() {
	t.mu.Lock()
	t.info.Crashed = true
	t.mu.Unlock()
}

// ID returns the stable target id.
func (t *Tab) ID() cdp.TargetID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info.TargetID
}

// Kind returns the resolved target kind. Targets reported with an empty
// type resolve to "page".
func (t *Tab) Kind() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.info.Type == "" {
		return "page"
	}
	return t.info.Type
}

// URL returns the target's current URL.
func (t *Tab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info.URL
}

// Title returns the target's current title.
func (t *Tab) Title() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info.Title
}

// Attached reports whether a debugger is attached to the target.
func (t *Tab) Attached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info.Attached
}

// Crashed reports whether the last lifecycle notification for this target
// was a crash. The marker clears on the next full info update.
func (t *Tab) Crashed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info.Crashed
}

// Info returns a copy of the current target info.
func (t *Tab) Info() cdp.TargetInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// Session returns the tab's control session for issuing arbitrary commands.
func (t *Tab) Session() *session.Session {
	return t.sess
}

// Close ends the tab's control session. The target itself keeps running;
// use CloseTarget to close it remotely.
func (t *Tab) Close() error {
	return t.sess.Close()
}

// Navigate points the tab at url.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	raw, err := t.sess.Send(ctx, cdp.NavigatePage(url))
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	var res cdp.NavigateResult
	if err := json.Unmarshal(raw, &res); err == nil && res.ErrorText != "" {
		return fmt.Errorf("navigating to %s: %s", url, res.ErrorText)
	}
	return nil
}

// Activate brings the tab to the foreground.
func (t *Tab) Activate(ctx context.Context) error {
	if _, err := t.sess.Send(ctx, cdp.ActivateTarget(t.ID())); err != nil {
		return fmt.Errorf("activating target: %w", err)
	}
	return nil
}

// CloseTarget asks the browser to close this target. The registry entry is
// removed when the corresponding destroyed event arrives.
func (t *Tab) CloseTarget(ctx context.Context) error {
	if _, err := t.sess.Send(ctx, cdp.CloseTarget(t.ID())); err != nil {
		return fmt.Errorf("closing target: %w", err)
	}
	return nil
}

// Content returns the page's current HTML.
func (t *Tab) Content(ctx context.Context) (string, error) {
	raw, err := t.sess.Send(ctx, cdp.Evaluate("document.documentElement.outerHTML"))
	if err != nil {
		return "", fmt.Errorf("fetching page content: %w", err)
	}
	var res cdp.EvaluateResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("decoding page content: %w", err)
	}
	if res.ExceptionDetails != nil {
		return "", fmt.Errorf("fetching page content: %s", res.ExceptionDetails.Text)
	}
	var html string
	if err := json.Unmarshal(res.Result.Value, &html); err != nil {
		return "", fmt.Errorf("decoding page content: %w", err)
	}
	return html, nil
}

// Text returns the page's visible text: HTML with scripts, styles and
// markup stripped, whitespace collapsed.
func (t *Tab) Text(ctx context.Context) (string, error) {
	content, err := t.Content(ctx)
	if err != nil {
		return "", err
	}
	return ExtractVisibleText(content)
}
