package types

// Device represents an Android device reachable over adb
type Device struct {
	ID     string `json:"id"`
	Serial string `json:"serial"`
	State  string `json:"state"` // "device", "offline", "unauthorized"
	Model  string `json:"model"`
	Brand  string `json:"brand"`
	Type   string `json:"type"` // "wired" or "wireless"
}

// Online reports whether adb can talk to the device
func (d Device) Online() bool {
	return d.State == "device"
}

// FocusInfo is the foreground identity as seen by the focus tracker
type FocusInfo struct {
	AppID    string `json:"appId"`
	Activity string `json:"activity"`
}

// TriggerInfo describes a registered trigger
type TriggerInfo struct {
	Tag    string   `json:"tag"`
	Apps   []string `json:"apps"`
	Active bool     `json:"active"`
	Source string   `json:"source,omitempty"` // "builtin" or script path
}

// HistoryEntry is one row of the focus/activation journal
type HistoryEntry struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"` // "focus", "activity", "activate", "deactivate"
	Subject   string `json:"subject"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
