package action

import (
	"AutoFlip/pkg/logging"
	"AutoFlip/pkg/pageturn"
)

// DeviceActions are platform actions that need no instrumentation backend
type DeviceActions interface {
	VolumeUp() error
	VolumeDown() error
}

// ========================================
// Facade - 操作门面
// ========================================

// Facade is the single entry point to device, wake-lock and
// instrumentation-backed actions.
type Facade struct {
	device DeviceActions
	wake   *WakeLock
	*Instrumented
}

// NewFacade composes the three capability groups. device and wake may be nil.
func NewFacade(device DeviceActions, wake *WakeLock, resolver *pageturn.Resolver) *Facade {
	if wake == nil {
		wake = NewWakeLock(nil, nil)
	}
	return &Facade{
		device:       device,
		wake:         wake,
		Instrumented: NewInstrumented(resolver),
	}
}

// OnBackendConnect binds the instrumentation backend
func (f *Facade) OnBackendConnect(b Backend) {
	f.Connect(b)
}

// OnBackendDisconnect clears the instrumentation backend
func (f *Facade) OnBackendDisconnect() {
	f.Disconnect()
}

func (f *Facade) VolumeUp() bool {
	return f.volume(true)
}

func (f *Facade) VolumeDown() bool {
	return f.volume(false)
}

func (f *Facade) volume(up bool) bool {
	if f.device == nil {
		return false
	}
	var err error
	if up {
		err = f.device.VolumeUp()
	} else {
		err = f.device.VolumeDown()
	}
	if err != nil {
		logging.LogWarn("action").Err(err).Bool("up", up).Msg("Volume change failed")
		return false
	}
	return true
}

// WakeLock returns the process wake lock
func (f *Facade) WakeLock() *WakeLock {
	return f.wake
}
