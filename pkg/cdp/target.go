package cdp

// TargetID is the stable opaque identifier of a browsing target.
type TargetID string

// BrowserContextID identifies the browser context that owns a target.
type BrowserContextID string

// TargetInfo describes one remote-controllable browsing context: a tab,
// window, iframe or background page.
type TargetInfo struct {
	TargetID         TargetID         `json:"targetId"`
	Type             string           `json:"type"`
	Title            string           `json:"title"`
	URL              string           `json:"url"`
	Attached         bool             `json:"attached"`
	OpenerID         TargetID         `json:"openerId,omitempty"`
	BrowserContextID BrowserContextID `json:"browserContextId,omitempty"`

	// Crashed is a local marker, not part of the wire shape. It is set when a
	// Target.targetCrashed event is observed and reset by the next full info
	// update for the same target.
	Crashed bool `json:"-"`
}

// Merge overlays the wire fields of src onto t in place, preserving t's
// identity so existing holders of the pointer observe the update.
func (t *TargetInfo) Merge(src TargetInfo) {
	src.TargetID = t.TargetID
	*t = src
}

// Target domain lifecycle events consumed by the target registry.
const (
	EventTargetCreated     = "Target.targetCreated"
	EventTargetInfoChanged = "Target.targetInfoChanged"
	EventTargetDestroyed   = "Target.targetDestroyed"
	EventTargetCrashed     = "Target.targetCrashed"
)

// TargetCreatedEvent is the payload of Target.targetCreated.
type TargetCreatedEvent struct {
	TargetInfo TargetInfo `json:"targetInfo"`
}

// TargetInfoChangedEvent is the payload of Target.targetInfoChanged.
type TargetInfoChangedEvent struct {
	TargetInfo TargetInfo `json:"targetInfo"`
}

// TargetDestroyedEvent is the payload of Target.targetDestroyed.
type TargetDestroyedEvent struct {
	TargetID TargetID `json:"targetId"`
}

// TargetCrashedEvent is the payload of Target.targetCrashed.
type TargetCrashedEvent struct {
	TargetID  TargetID `json:"targetId"`
	Status    string   `json:"status"`
	ErrorCode int64    `json:"errorCode"`
}

// SetDiscoverTargets toggles emission of the Target lifecycle events.
func SetDiscoverTargets(discover bool) Command {
	return Command{
		Method: "Target.setDiscoverTargets",
		Params: struct {
			Discover bool `json:"discover"`
		}{discover},
	}
}

// GetTargets enumerates every target known to the browser. The result shape
// is GetTargetsResult.
func GetTargets() Command {
	return Command{Method: "Target.getTargets"}
}

// GetTargetsResult is the result shape of Target.getTargets.
type GetTargetsResult struct {
	TargetInfos []TargetInfo `json:"targetInfos"`
}

// CreateTarget opens a new page (or window) at url. The result shape is
// CreateTargetResult.
func CreateTarget(url string, newWindow, enableBeginFrameControl bool) Command {
	return Command{
		Method: "Target.createTarget",
		Params: struct {
			URL                     string `json:"url"`
			NewWindow               bool   `json:"newWindow,omitempty"`
			EnableBeginFrameControl bool   `json:"enableBeginFrameControl,omitempty"`
		}{url, newWindow, enableBeginFrameControl},
	}
}

// CreateTargetResult is the result shape of Target.createTarget.
type CreateTargetResult struct {
	TargetID TargetID `json:"targetId"`
}

// ActivateTarget brings the given target to the foreground.
func ActivateTarget(id TargetID) Command {
	return Command{
		Method: "Target.activateTarget",
		Params: struct {
			TargetID TargetID `json:"targetId"`
		}{id},
	}
}

// CloseTarget asks the browser to close the given target.
func CloseTarget(id TargetID) Command {
	return Command{
		Method: "Target.closeTarget",
		Params: struct {
			TargetID TargetID `json:"targetId"`
		}{id},
	}
}
