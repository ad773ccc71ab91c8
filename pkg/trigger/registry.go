package trigger

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"AutoFlip/pkg/logging"
	"AutoFlip/pkg/types"
)

// ========================================
// Trigger Registry - 触发器注册表
// ========================================

// Trigger is a behavior switched on and off by foreground app identity.
// Implementations must be comparable (pointer receivers); callbacks are
// expected to return quickly and must not call back into the Registry.
type Trigger interface {
	Tag() string
	InterestAppIDs() []string
	Activate()
	Deactivate()
	OnEvent(ev types.UIChangeEvent)
	OnActivityChanged(from, to string)
}

// Sourcer is optionally implemented by triggers that report where they came from
type Sourcer interface {
	Source() string
}

// Observer is notified after each activation change
type Observer func(tag, appID string, active bool)

type entry struct {
	trigger  Trigger
	interest map[string]struct{}

	// gate serializes delivery against deactivation/removal
	gate    sync.RWMutex
	active  bool
	removed bool
}

func newEntry(t Trigger) *entry {
	e := &entry{trigger: t, interest: make(map[string]struct{})}
	for _, id := range t.InterestAppIDs() {
		e.interest[id] = struct{}{}
	}
	return e
}

func (e *entry) interested(appID string) bool {
	if appID == "" {
		return false
	}
	_, ok := e.interest[appID]
	return ok
}

func (e *entry) isActive() bool {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.active && !e.removed
}

// Registry owns the registered triggers and the active subset
type Registry struct {
	// opMu serializes register / unregister / recompute so that activation
	// callbacks observe a consistent order.
	opMu sync.Mutex

	mu        sync.RWMutex
	entries   []*entry
	excluded  map[string]struct{}
	focus     string // last focus passed to Recompute
	effective string // last non-excluded focus
	observer  Observer
}

// NewRegistry 创建注册表
func NewRegistry(excluded []string) *Registry {
	r := &Registry{}
	r.SetExcluded(excluded)
	return r
}

// SetExcluded replaces the excluded app id set. The active set is not recomputed.
func (r *Registry) SetExcluded(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	r.mu.Lock()
	r.excluded = set
	r.mu.Unlock()
}

// Excluded reports whether appID is in the excluded set
func (r *Registry) Excluded(appID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.excluded[appID]
	return ok
}

func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	r.observer = o
	r.mu.Unlock()
}

// Focus returns the app id of the last recomputation, excluded or not
func (r *Registry) Focus() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.focus
}

// EffectiveAppID returns the most recent non-excluded focus
func (r *Registry) EffectiveAppID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.effective
}

func (r *Registry) find(t Trigger) (int, *entry) {
	for i, e := range r.entries {
		if e.trigger == t {
			return i, e
		}
	}
	return -1, nil
}

func (r *Registry) snapshot() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Register adds t and activates it right away when it is interested in the
// current (non-excluded) foreground app. Registering the same trigger twice
// is an error.
func (r *Registry) Register(t Trigger) error {
	if t == nil {
		return fmt.Errorf("trigger is nil")
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	if _, existing := r.find(t); existing != nil {
		r.mu.Unlock()
		return fmt.Errorf("trigger %q already registered", t.Tag())
	}
	e := newEntry(t)
	r.entries = append(r.entries, e)
	focus := r.effective
	r.mu.Unlock()

	logging.LogInfo("trigger").
		Str("tag", t.Tag()).
		Strs("apps", t.InterestAppIDs()).
		Msg("Trigger registered")

	if e.interested(focus) {
		r.activate(e, focus)
	}
	return nil
}

// Unregister deactivates t unconditionally and removes it. Events already
// queued for dispatch will not reach it. Returns false if t was not registered.
func (r *Registry) Unregister(t Trigger) bool {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return r.unregisterLocked(t)
}

func (r *Registry) unregisterLocked(t Trigger) bool {
	r.mu.RLock()
	_, e := r.find(t)
	appID := r.effective
	r.mu.RUnlock()
	if e == nil {
		return false
	}

	// 等待正在进行的分发结束
	e.gate.Lock()
	wasActive := e.active
	e.removed = true
	e.active = false
	e.gate.Unlock()

	r.safeCall(e.trigger, "deactivate", e.trigger.Deactivate)
	if wasActive {
		r.notify(e.trigger.Tag(), appID, false)
	}

	r.mu.Lock()
	if i, _ := r.find(t); i >= 0 {
		r.entries = append(r.entries[:i], r.entries[i+1:]...)
	}
	r.mu.Unlock()

	logging.LogInfo("trigger").Str("tag", t.Tag()).Msg("Trigger unregistered")
	return true
}

// UnregisterByApp unregisters every trigger whose interest list contains appID
func (r *Registry) UnregisterByApp(appID string) int {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	n := 0
	for _, e := range r.snapshot() {
		if e.interested(appID) && r.unregisterLocked(e.trigger) {
			n++
		}
	}
	return n
}

// UnregisterByTag unregisters every trigger with the given tag
func (r *Registry) UnregisterByTag(tag string) int {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	n := 0
	for _, e := range r.snapshot() {
		if e.trigger.Tag() == tag && r.unregisterLocked(e.trigger) {
			n++
		}
	}
	return n
}

// Recompute switches the active set to the triggers interested in newAppID.
// An excluded newAppID only updates the recorded focus. Incoming triggers are
// activated before outgoing ones are deactivated, both in registration order.
func (r *Registry) Recompute(newAppID string) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	r.focus = newAppID
	if _, excluded := r.excluded[newAppID]; excluded {
		r.mu.Unlock()
		logging.LogDebug("trigger").Str("appId", newAppID).Msg("Focus on excluded app, active set kept")
		return
	}
	previous := r.effective
	r.effective = newAppID
	entries := make([]*entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	var incoming, outgoing []*entry
	for _, e := range entries {
		want := e.interested(newAppID)
		have := e.isActive()
		switch {
		case want && !have:
			incoming = append(incoming, e)
		case !want && have:
			outgoing = append(outgoing, e)
		}
	}

	for _, e := range incoming {
		r.activate(e, newAppID)
	}
	for _, e := range outgoing {
		r.deactivate(e, previous)
	}

	if len(incoming)+len(outgoing) > 0 {
		logging.LogInfo("trigger").
			Str("from", previous).
			Str("to", newAppID).
			Int("activated", len(incoming)).
			Int("deactivated", len(outgoing)).
			Msg("Active triggers recomputed")
	}
}

func (r *Registry) activate(e *entry, appID string) {
	r.safeCall(e.trigger, "activate", e.trigger.Activate)
	e.gate.Lock()
	if e.removed {
		e.gate.Unlock()
		return
	}
	e.active = true
	e.gate.Unlock()
	r.notify(e.trigger.Tag(), appID, true)
}

func (r *Registry) deactivate(e *entry, appID string) {
	e.gate.Lock()
	if e.removed || !e.active {
		e.gate.Unlock()
		return
	}
	e.active = false
	e.gate.Unlock()
	r.safeCall(e.trigger, "deactivate", e.trigger.Deactivate)
	r.notify(e.trigger.Tag(), appID, false)
}

func (r *Registry) notify(tag, appID string, active bool) {
	r.mu.RLock()
	o := r.observer
	r.mu.RUnlock()
	if o != nil {
		o(tag, appID, active)
	}
}

// ========================================
// 分发
// ========================================

// deliver runs fn against every trigger that is still active at delivery time.
// Delivery stops early once ctx is done.
func (r *Registry) deliver(ctx context.Context, op string, fn func(Trigger)) int {
	n := 0
	for _, e := range r.snapshot() {
		if ctx.Err() != nil {
			break
		}
		e.gate.RLock()
		if e.active && !e.removed {
			r.safeCall(e.trigger, op, func() { fn(e.trigger) })
			n++
		}
		e.gate.RUnlock()
	}
	return n
}

// DispatchEvent forwards a content event to the active triggers and returns how many received it
func (r *Registry) DispatchEvent(ctx context.Context, ev types.UIChangeEvent) int {
	return r.deliver(ctx, "onEvent", func(t Trigger) { t.OnEvent(ev) })
}

// DispatchActivityChanged notifies the active triggers of an activity switch
func (r *Registry) DispatchActivityChanged(from, to string) int {
	return r.deliver(context.Background(), "onActivityChanged", func(t Trigger) { t.OnActivityChanged(from, to) })
}

func (r *Registry) safeCall(t Trigger, op string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.LogPanic("trigger", rec, string(debug.Stack()))
			logging.LogError("trigger").
				Str("tag", t.Tag()).
				Str("op", op).
				Msg("Trigger callback panicked")
		}
	}()
	fn()
}

// ========================================
// 查询
// ========================================

func (r *Registry) IsActive(t Trigger) bool {
	r.mu.RLock()
	_, e := r.find(t)
	r.mu.RUnlock()
	return e != nil && e.isActive()
}

// Active returns the active triggers in registration order
func (r *Registry) Active() []Trigger {
	var out []Trigger
	for _, e := range r.snapshot() {
		if e.isActive() {
			out = append(out, e.trigger)
		}
	}
	return out
}

// All returns every registered trigger in registration order
func (r *Registry) All() []Trigger {
	entries := r.snapshot()
	out := make([]Trigger, len(entries))
	for i, e := range entries {
		out[i] = e.trigger
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Infos describes the registered triggers
func (r *Registry) Infos() []types.TriggerInfo {
	entries := r.snapshot()
	out := make([]types.TriggerInfo, 0, len(entries))
	for _, e := range entries {
		info := types.TriggerInfo{
			Tag:    e.trigger.Tag(),
			Apps:   e.trigger.InterestAppIDs(),
			Active: e.isActive(),
			Source: "builtin",
		}
		if s, ok := e.trigger.(Sourcer); ok {
			info.Source = s.Source()
		}
		out = append(out, info)
	}
	return out
}
