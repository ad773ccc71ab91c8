package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"AutoFlip/pkg/logging"
	"AutoFlip/pkg/types"
)

// PageTurner turns pages in the foreground app
type PageTurner interface {
	TurnPage(forward bool) bool
	TurnPageVertically(forward bool) bool
}

// Actions is the part of the action facade triggers may drive
type Actions interface {
	PageTurner
	PressBack() bool
	PressHome() bool
	VolumeUp() bool
	VolumeDown() bool
}

// WakeLocker acquires and releases the process wake lock
type WakeLocker interface {
	Acquire() bool
	Release()
}

// ========================================
// KeepAwakeTrigger - 阅读时保持亮屏
// ========================================

// KeepAwakeTrigger holds the wake lock while one of its apps is in front
type KeepAwakeTrigger struct {
	apps []string
	lock WakeLocker

	mu   sync.Mutex
	held bool
}

func NewKeepAwakeTrigger(apps []string, lock WakeLocker) *KeepAwakeTrigger {
	return &KeepAwakeTrigger{apps: apps, lock: lock}
}

func (k *KeepAwakeTrigger) Tag() string              { return "keep-awake" }
func (k *KeepAwakeTrigger) InterestAppIDs() []string { return k.apps }
func (k *KeepAwakeTrigger) OnEvent(types.UIChangeEvent) {
}
func (k *KeepAwakeTrigger) OnActivityChanged(string, string) {}

func (k *KeepAwakeTrigger) Activate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.held {
		k.held = k.lock.Acquire()
	}
}

func (k *KeepAwakeTrigger) Deactivate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.held {
		k.lock.Release()
		k.held = false
	}
}

// Held reports whether this trigger currently owns the wake lock
func (k *KeepAwakeTrigger) Held() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.held
}

// ========================================
// AutoTurnTrigger - 定时自动翻页
// ========================================

// AutoTurnConfig 自动翻页参数
type AutoTurnConfig struct {
	Apps     []string
	Interval time.Duration
	Forward  bool
	Vertical bool
}

// AutoTurnTrigger turns a page every Interval while active. The ticker runs on
// its own goroutine; Deactivate stops it without waiting.
type AutoTurnTrigger struct {
	cfg    AutoTurnConfig
	turner PageTurner

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	turns atomic.Int64
}

func NewAutoTurnTrigger(cfg AutoTurnConfig, turner PageTurner) *AutoTurnTrigger {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &AutoTurnTrigger{cfg: cfg, turner: turner}
}

func (a *AutoTurnTrigger) Tag() string                      { return "auto-turn" }
func (a *AutoTurnTrigger) InterestAppIDs() []string         { return a.cfg.Apps }
func (a *AutoTurnTrigger) OnEvent(types.UIChangeEvent)      {}
func (a *AutoTurnTrigger) OnActivityChanged(string, string) {}

func (a *AutoTurnTrigger) Activate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.loop(ctx, a.done)
}

func (a *AutoTurnTrigger) Deactivate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

// Wait blocks until the most recent ticker goroutine has exited
func (a *AutoTurnTrigger) Wait() {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Turns returns how many page turns were attempted
func (a *AutoTurnTrigger) Turns() int64 {
	return a.turns.Load()
}

func (a *AutoTurnTrigger) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var ok bool
			if a.cfg.Vertical {
				ok = a.turner.TurnPageVertically(a.cfg.Forward)
			} else {
				ok = a.turner.TurnPage(a.cfg.Forward)
			}
			a.turns.Add(1)
			if !ok {
				logging.LogDebug("trigger").Str("tag", a.Tag()).Msg("Auto turn not performed")
			}
		}
	}
}
