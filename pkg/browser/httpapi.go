package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/raycardillo/zendriver/pkg/cdp"
)

// VersionInfo is the /json/version discovery response. Only the websocket
// debugger address is required; everything else is informational.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version"`
	WebKitVersion        string `json:"WebKit-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// TargetListEntry is one entry of the /json/list target snapshot.
type TargetListEntry struct {
	ID                   cdp.TargetID `json:"id"`
	Type                 string       `json:"type"`
	Title                string       `json:"title"`
	URL                  string       `json:"url"`
	WebSocketDebuggerURL string       `json:"webSocketDebuggerUrl"`
}

// httpAPI is the plain-HTTP discovery endpoint used for the handshake and
// for snapshot polling. Everything else goes over the websocket.
type httpAPI struct {
	base   string
	client *http.Client
}

func newHTTPAPI(host string, port int) *httpAPI {
	return &httpAPI{
		base:   fmt.Sprintf("http://%s:%d", host, port),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *httpAPI) get(ctx context.Context, endpoint string, out any) error {
	url := a.base + "/json"
	if endpoint != "" {
		url += "/" + endpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discovery %s: unexpected status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// version fetches /json/version and validates the websocket address field.
func (a *httpAPI) version(ctx context.Context) (*VersionInfo, error) {
	var info VersionInfo
	if err := a.get(ctx, "version", &info); err != nil {
		return nil, err
	}
	if info.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("discovery response missing webSocketDebuggerUrl")
	}
	return &info, nil
}

// list fetches the /json/list target snapshot.
func (a *httpAPI) list(ctx context.Context) ([]TargetListEntry, error) {
	var entries []TargetListEntry
	if err := a.get(ctx, "list", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
