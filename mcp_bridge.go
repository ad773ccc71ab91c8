package main

import (
	"context"
	"errors"
	"time"

	"AutoFlip/mcp"
	"AutoFlip/pkg/pageturn"
	"AutoFlip/pkg/types"
)

// MCPBridge bridges the main App to the MCP server
type MCPBridge struct {
	app *App
}

// NewMCPBridge creates a new MCP bridge
func NewMCPBridge(app *App) *MCPBridge {
	return &MCPBridge{app: app}
}

var _ mcp.AutoFlipApp = (*MCPBridge)(nil)

// Implement mcp.AutoFlipApp interface

func (b *MCPBridge) GetDevices() ([]mcp.Device, error) {
	if b.app.adb == nil {
		return nil, errors.New("ADB path is not initialized")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return GetDevices(ctx, b.app.adb)
}

func (b *MCPBridge) ConnectedDevice() (mcp.Device, bool) {
	return b.app.ConnectedDevice()
}

func (b *MCPBridge) TurnPage(forward bool) (mcp.TurnResult, error) {
	out, err := b.app.engine.Facade().TurnPageOutcome(forward)
	return toTurnResult(out), err
}

func (b *MCPBridge) TurnPageVertically(forward bool) (mcp.TurnResult, error) {
	out, err := b.app.engine.Facade().TurnPageVerticallyOutcome(forward)
	return toTurnResult(out), err
}

func toTurnResult(out pageturn.Outcome) mcp.TurnResult {
	return mcp.TurnResult{
		OK:       out.OK,
		Method:   string(out.Method),
		Strategy: out.Strategy,
		Stroke:   out.Stroke,
	}
}

func (b *MCPBridge) PressBack() bool {
	return b.app.engine.Facade().PressBack()
}

func (b *MCPBridge) PressHome() bool {
	return b.app.engine.Facade().PressHome()
}

func (b *MCPBridge) Volume(up bool) bool {
	if up {
		return b.app.engine.Facade().VolumeUp()
	}
	return b.app.engine.Facade().VolumeDown()
}

func (b *MCPBridge) SetWakeLock(on bool, timeoutMs int) bool {
	lock := b.app.engine.Facade().WakeLock()
	if !on {
		lock.Release()
		return true
	}
	if timeoutMs > 0 {
		return lock.AcquireFor(time.Duration(timeoutMs) * time.Millisecond)
	}
	return lock.Acquire()
}

func (b *MCPBridge) WakeLockHeld() bool {
	return b.app.engine.Facade().WakeLock().Held()
}

func (b *MCPBridge) FocusState() mcp.FocusInfo {
	state := b.app.engine.Focus()
	return types.FocusInfo{AppID: state.FocusedAppID, Activity: state.FocusedActivityClassName}
}

func (b *MCPBridge) ListTriggers() []mcp.TriggerInfo {
	return b.app.engine.Triggers()
}

// UnregisterTriggers removes triggers by app id, or by tag when appID is empty
func (b *MCPBridge) UnregisterTriggers(appID, tag string) int {
	if appID != "" {
		return b.app.engine.UnregisterTriggersByApp(appID)
	}
	return b.app.engine.UnregisterTriggersByTag(tag)
}

func (b *MCPBridge) History(kind string, limit int) ([]mcp.HistoryEntry, error) {
	j := b.app.engine.Journal()
	if j == nil {
		return nil, errors.New("journal disabled, set journalPath in the config")
	}
	return j.Recent(kind, limit)
}

func (b *MCPBridge) InjectEvent(raw mcp.RawEvent) bool {
	return b.app.engine.Ingest(raw)
}

func (b *MCPBridge) ReloadScripts() (int, error) {
	if b.app.scripts == nil {
		return 0, errors.New("no script directory configured")
	}
	b.app.scripts.Reload()
	return len(b.app.scripts.Loaded()), nil
}

func (b *MCPBridge) GetAppVersion() string {
	return b.app.GetAppVersion()
}
