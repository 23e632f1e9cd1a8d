package cdp

// GetVersion reports browser build and protocol information.
func GetVersion() Command {
	return Command{Method: "Browser.getVersion"}
}

// GetVersionResult is the result shape of Browser.getVersion.
type GetVersionResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	Product         string `json:"product"`
	Revision        string `json:"revision"`
	UserAgent       string `json:"userAgent"`
	JSVersion       string `json:"jsVersion"`
}

// CloseBrowser asks the browser process to shut down gracefully.
func CloseBrowser() Command {
	return Command{Method: "Browser.close"}
}

// PermissionType is a browser permission grantable via GrantPermissions.
type PermissionType string

// The grantable permission set. FLASH and CAPTURED_SURFACE_CONTROL are
// rejected by current browsers and intentionally absent.
const (
	PermissionAccessibilityEvents        PermissionType = "accessibilityEvents"
	PermissionAudioCapture               PermissionType = "audioCapture"
	PermissionBackgroundSync             PermissionType = "backgroundSync"
	PermissionBackgroundFetch            PermissionType = "backgroundFetch"
	PermissionClipboardReadWrite         PermissionType = "clipboardReadWrite"
	PermissionClipboardSanitizedWrite    PermissionType = "clipboardSanitizedWrite"
	PermissionDisplayCapture             PermissionType = "displayCapture"
	PermissionDurableStorage             PermissionType = "durableStorage"
	PermissionGeolocation                PermissionType = "geolocation"
	PermissionIdleDetection              PermissionType = "idleDetection"
	PermissionLocalFonts                 PermissionType = "localFonts"
	PermissionMidi                       PermissionType = "midi"
	PermissionMidiSysex                  PermissionType = "midiSysex"
	PermissionNFC                        PermissionType = "nfc"
	PermissionNotifications              PermissionType = "notifications"
	PermissionPaymentHandler             PermissionType = "paymentHandler"
	PermissionPeriodicBackgroundSync     PermissionType = "periodicBackgroundSync"
	PermissionProtectedMediaIdentifier   PermissionType = "protectedMediaIdentifier"
	PermissionSensors                    PermissionType = "sensors"
	PermissionStorageAccess              PermissionType = "storageAccess"
	PermissionTopLevelStorageAccess      PermissionType = "topLevelStorageAccess"
	PermissionVideoCapture               PermissionType = "videoCapture"
	PermissionVideoCapturePanTiltZoom    PermissionType = "videoCapturePanTiltZoom"
	PermissionWakeLockScreen             PermissionType = "wakeLockScreen"
	PermissionWakeLockSystem             PermissionType = "wakeLockSystem"
	PermissionWindowManagement           PermissionType = "windowManagement"
)

// AllPermissions returns every grantable permission.
func AllPermissions() []PermissionType {
	return []PermissionType{
		PermissionAccessibilityEvents,
		PermissionAudioCapture,
		PermissionBackgroundSync,
		PermissionBackgroundFetch,
		PermissionClipboardReadWrite,
		PermissionClipboardSanitizedWrite,
		PermissionDisplayCapture,
		PermissionDurableStorage,
		PermissionGeolocation,
		PermissionIdleDetection,
		PermissionLocalFonts,
		PermissionMidi,
		PermissionMidiSysex,
		PermissionNFC,
		PermissionNotifications,
		PermissionPaymentHandler,
		PermissionPeriodicBackgroundSync,
		PermissionProtectedMediaIdentifier,
		PermissionSensors,
		PermissionStorageAccess,
		PermissionTopLevelStorageAccess,
		PermissionVideoCapture,
		PermissionVideoCapturePanTiltZoom,
		PermissionWakeLockScreen,
		PermissionWakeLockSystem,
		PermissionWindowManagement,
	}
}

// GrantPermissions grants the given permissions browser-wide.
func GrantPermissions(permissions []PermissionType) Command {
	return Command{
		Method: "Browser.grantPermissions",
		Params: struct {
			Permissions []PermissionType `json:"permissions"`
		}{permissions},
	}
}
