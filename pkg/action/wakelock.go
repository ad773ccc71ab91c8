package action

import (
	"fmt"
	"sync"
	"time"

	"AutoFlip/pkg/logging"
)

// ========================================
// WakeLock - 唤醒锁
// ========================================

// WakeHandle is one acquired platform wake lock
type WakeHandle interface {
	Release() error
}

// WakeLockProvider acquires platform wake locks
type WakeLockProvider interface {
	AcquireWakeLock() (WakeHandle, error)
}

// Notifier shows transient, non-fatal notices to the user
type Notifier interface {
	Notify(message string)
}

// LogNotifier writes notices to the log
type LogNotifier struct{}

func (LogNotifier) Notify(message string) {
	logging.LogWarn("notice").Msg(message)
}

// WakeLock owns at most one wake-lock handle. Callers serialize
// acquire/release themselves; the mutex only protects the handle.
type WakeLock struct {
	provider WakeLockProvider
	notifier Notifier

	mu         sync.Mutex
	handle     WakeHandle
	timer      *time.Timer
	generation uint64
}

func NewWakeLock(provider WakeLockProvider, notifier Notifier) *WakeLock {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &WakeLock{provider: provider, notifier: notifier}
}

// Acquire holds the wake lock until Release
func (w *WakeLock) Acquire() bool {
	return w.acquire(0)
}

// AcquireFor holds the wake lock for d, then releases it
func (w *WakeLock) AcquireFor(d time.Duration) bool {
	if d <= 0 {
		return w.acquire(0)
	}
	return w.acquire(d)
}

func (w *WakeLock) acquire(d time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopTimerLocked()
	if w.handle == nil {
		if w.provider == nil {
			w.notifier.Notify("Wake lock unavailable: no provider")
			return false
		}
		h, err := w.provider.AcquireWakeLock()
		if err != nil || h == nil {
			if err == nil {
				err = fmt.Errorf("provider returned no handle")
			}
			logging.LogWarn("action").Err(err).Msg("Wake lock acquisition failed")
			w.notifier.Notify(fmt.Sprintf("Could not keep the screen awake: %v", err))
			return false
		}
		w.handle = h
	}

	w.generation++
	if d > 0 {
		gen := w.generation
		w.timer = time.AfterFunc(d, func() { w.expire(gen) })
	}
	return true
}

func (w *WakeLock) expire(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		return
	}
	w.timer = nil
	w.releaseLocked()
}

// Release drops the handle. Releasing when nothing is held is a no-op.
func (w *WakeLock) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopTimerLocked()
	w.generation++
	w.releaseLocked()
}

func (w *WakeLock) releaseLocked() {
	if w.handle == nil {
		return
	}
	if err := w.handle.Release(); err != nil {
		logging.LogWarn("action").Err(err).Msg("Wake lock release failed")
	}
	w.handle = nil
}

func (w *WakeLock) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *WakeLock) Held() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handle != nil
}
