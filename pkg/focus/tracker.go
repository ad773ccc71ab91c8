package focus

import (
	"context"
	"sync"

	"AutoFlip/pkg/logging"
	"AutoFlip/pkg/types"
)

// ========================================
// Focus Tracker - 前台应用跟踪
// ========================================

// ForegroundQuerier answers which app is in the foreground. "" means unknown.
type ForegroundQuerier interface {
	FocusedAppID() string
}

// Registry is the part of the trigger registry the tracker drives
type Registry interface {
	Recompute(appID string)
	DispatchEvent(ctx context.Context, ev types.UIChangeEvent) int
	DispatchActivityChanged(from, to string) int
}

// Journal records focus transitions
type Journal interface {
	RecordFocus(from, to string)
	RecordActivity(appID, from, to string)
}

// State is the current foreground identity
type State struct {
	FocusedAppID             string `json:"focusedAppId"`
	FocusedActivityClassName string `json:"focusedActivity"`
}

// Tracker follows the foreground app and activity. HandleWindowState and
// HandleContent are meant to be driven by pipeline subscriptions; the tracker
// is the only writer of State.
type Tracker struct {
	querier  ForegroundQuerier
	registry Registry

	mu      sync.RWMutex
	state   State
	journal Journal
}

func NewTracker(querier ForegroundQuerier, registry Registry) *Tracker {
	return &Tracker{querier: querier, registry: registry}
}

func (t *Tracker) SetJournal(j Journal) {
	t.mu.Lock()
	t.journal = j
	t.mu.Unlock()
}

// HandleWindowState processes one window-state-changed event
func (t *Tracker) HandleWindowState(_ context.Context, ev types.UIChangeEvent) {
	t.mu.RLock()
	prev := t.state
	journal := t.journal
	t.mu.RUnlock()

	// 后端无法给出前台应用时, 视为没有可观察的变化
	if appID := t.querier.FocusedAppID(); appID != "" && appID != prev.FocusedAppID {
		t.registry.Recompute(appID)

		t.mu.Lock()
		t.state.FocusedAppID = appID
		t.mu.Unlock()

		logging.LogInfo("focus").
			Str("from", prev.FocusedAppID).
			Str("to", appID).
			Msg("Foreground app changed")
		if journal != nil {
			journal.RecordFocus(prev.FocusedAppID, appID)
		}
	}

	if ev.ClassName != "" && ev.ClassName != prev.FocusedActivityClassName {
		t.registry.DispatchActivityChanged(prev.FocusedActivityClassName, ev.ClassName)

		t.mu.Lock()
		t.state.FocusedActivityClassName = ev.ClassName
		appID := t.state.FocusedAppID
		t.mu.Unlock()

		logging.LogDebug("focus").
			Str("appId", appID).
			Str("from", prev.FocusedActivityClassName).
			Str("to", ev.ClassName).
			Msg("Foreground activity changed")
		if journal != nil {
			journal.RecordActivity(appID, prev.FocusedActivityClassName, ev.ClassName)
		}
	}
}

// HandleContent relays a content-changed event to the active triggers.
// Focus state is not touched. Relay stops early when ctx is cancelled.
func (t *Tracker) HandleContent(ctx context.Context, ev types.UIChangeEvent) {
	n := t.registry.DispatchEvent(ctx, ev)
	if ctx.Err() != nil {
		logging.LogDebug("focus").Int("delivered", n).Msg("Content relay superseded")
	}
}

// Snapshot returns a copy of the current state
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Info returns the state as a types.FocusInfo
func (t *Tracker) Info() types.FocusInfo {
	s := t.Snapshot()
	return types.FocusInfo{AppID: s.FocusedAppID, Activity: s.FocusedActivityClassName}
}
