package mcp

import (
	"errors"
	"sync"
)

// MockCall records a method call for verification
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockAutoFlipApp is a mock implementation of AutoFlipApp for testing
type MockAutoFlipApp struct {
	mu    sync.Mutex
	Calls []MockCall

	// Devices
	GetDevicesResult []Device
	GetDevicesError  error
	Connected        *Device

	// Page turning
	TurnPageResult           TurnResult
	TurnPageError            error
	TurnPageVerticallyResult TurnResult
	TurnPageVerticallyError  error

	// Actions
	PressBackResult   bool
	PressHomeResult   bool
	VolumeResult      bool
	SetWakeLockResult bool
	WakeLockHeldValue bool

	// Engine state
	Focus               FocusInfo
	Triggers            []TriggerInfo
	UnregisterResult    int
	HistoryResult       []HistoryEntry
	HistoryError        error
	InjectEventResult   bool
	Injected            []RawEvent
	ReloadScriptsResult int
	ReloadScriptsError  error

	AppVersion string
}

// NewMockAutoFlipApp creates a mock whose actions succeed
func NewMockAutoFlipApp() *MockAutoFlipApp {
	return &MockAutoFlipApp{
		Calls:             make([]MockCall, 0),
		AppVersion:        "1.0.0-test",
		GetDevicesResult:  []Device{},
		TurnPageResult:    TurnResult{OK: true, Method: "tap"},
		PressBackResult:   true,
		PressHomeResult:   true,
		VolumeResult:      true,
		SetWakeLockResult: true,
		InjectEventResult: true,
	}
}

func (m *MockAutoFlipApp) recordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// GetCalls returns all recorded calls
func (m *MockAutoFlipApp) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// WasMethodCalled checks if a method was called
func (m *MockAutoFlipApp) WasMethodCalled(method string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.Calls {
		if call.Method == method {
			return true
		}
	}
	return false
}

// GetLastCall returns the last call for a method
func (m *MockAutoFlipApp) GetLastCall(method string) *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Method == method {
			call := m.Calls[i]
			return &call
		}
	}
	return nil
}

// ========================================
// AutoFlipApp implementation
// ========================================

func (m *MockAutoFlipApp) GetDevices() ([]Device, error) {
	m.recordCall("GetDevices")
	return m.GetDevicesResult, m.GetDevicesError
}

func (m *MockAutoFlipApp) ConnectedDevice() (Device, bool) {
	m.recordCall("ConnectedDevice")
	if m.Connected == nil {
		return Device{}, false
	}
	return *m.Connected, true
}

func (m *MockAutoFlipApp) TurnPage(forward bool) (TurnResult, error) {
	m.recordCall("TurnPage", forward)
	return m.TurnPageResult, m.TurnPageError
}

func (m *MockAutoFlipApp) TurnPageVertically(forward bool) (TurnResult, error) {
	m.recordCall("TurnPageVertically", forward)
	return m.TurnPageVerticallyResult, m.TurnPageVerticallyError
}

func (m *MockAutoFlipApp) PressBack() bool {
	m.recordCall("PressBack")
	return m.PressBackResult
}

func (m *MockAutoFlipApp) PressHome() bool {
	m.recordCall("PressHome")
	return m.PressHomeResult
}

func (m *MockAutoFlipApp) Volume(up bool) bool {
	m.recordCall("Volume", up)
	return m.VolumeResult
}

func (m *MockAutoFlipApp) SetWakeLock(on bool, timeoutMs int) bool {
	m.recordCall("SetWakeLock", on, timeoutMs)
	if m.SetWakeLockResult {
		m.WakeLockHeldValue = on
	}
	return m.SetWakeLockResult
}

func (m *MockAutoFlipApp) WakeLockHeld() bool {
	m.recordCall("WakeLockHeld")
	return m.WakeLockHeldValue
}

func (m *MockAutoFlipApp) FocusState() FocusInfo {
	m.recordCall("FocusState")
	return m.Focus
}

func (m *MockAutoFlipApp) ListTriggers() []TriggerInfo {
	m.recordCall("ListTriggers")
	return m.Triggers
}

func (m *MockAutoFlipApp) UnregisterTriggers(appID, tag string) int {
	m.recordCall("UnregisterTriggers", appID, tag)
	return m.UnregisterResult
}

func (m *MockAutoFlipApp) History(kind string, limit int) ([]HistoryEntry, error) {
	m.recordCall("History", kind, limit)
	return m.HistoryResult, m.HistoryError
}

func (m *MockAutoFlipApp) InjectEvent(raw RawEvent) bool {
	m.recordCall("InjectEvent", raw)
	m.mu.Lock()
	m.Injected = append(m.Injected, raw)
	m.mu.Unlock()
	return m.InjectEventResult
}

func (m *MockAutoFlipApp) ReloadScripts() (int, error) {
	m.recordCall("ReloadScripts")
	return m.ReloadScriptsResult, m.ReloadScriptsError
}

func (m *MockAutoFlipApp) GetAppVersion() string {
	m.recordCall("GetAppVersion")
	return m.AppVersion
}

// ========================================
// Sample data
// ========================================

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrNoBackend      = errors.New("instrumentation backend not connected")
)

// SampleDevice returns an online device
func SampleDevice(id string) Device {
	return Device{
		ID:     id,
		Serial: id,
		State:  "device",
		Model:  "Pixel 6",
		Brand:  "Google",
		Type:   "wired",
	}
}

// SampleTrigger returns a trigger description
func SampleTrigger(tag string, active bool, apps ...string) TriggerInfo {
	return TriggerInfo{Tag: tag, Apps: apps, Active: active, Source: "builtin"}
}
