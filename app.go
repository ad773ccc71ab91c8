package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"AutoFlip/pkg/action"
	"AutoFlip/pkg/config"
	"AutoFlip/pkg/engine"
	"AutoFlip/pkg/journal"
	"AutoFlip/pkg/logging"
	"AutoFlip/pkg/pageturn"
	"AutoFlip/pkg/trigger"
	"AutoFlip/pkg/types"
)

// journalRetention is how long journal rows are kept
const journalRetention = 30 * 24 * time.Hour

var errNoDevice = errors.New("no device connected")

// App struct
type App struct {
	ctx     context.Context
	version string

	cfgPath string
	cfg     *config.Config
	cfgMu   sync.RWMutex

	adb     *Adb
	link    *deviceLink
	engine  *engine.Engine
	journal *journal.Journal

	devices    *DeviceWatcher
	scripts    *ScriptManager
	cfgWatcher *config.Watcher

	// Per-device focus monitor
	monitor   *FocusMonitor
	monitorMu sync.Mutex

	// Built-in triggers from config
	builtins   []trigger.Trigger
	builtinsMu sync.Mutex

	shutdownOnce sync.Once
}

// NewApp loads configuration from the environment and the config file and
// initializes logging. Nothing is started yet.
func NewApp(version string) (*App, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(env.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(env)

	if err := logging.InitLogger(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	return &App{
		version: version,
		cfgPath: env.ConfigPath,
		cfg:     cfg,
		link:    &deviceLink{},
	}, nil
}

// Config returns the active configuration
func (a *App) Config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// GetAppVersion returns the application version
func (a *App) GetAppVersion() string {
	return a.version
}

// setupAdb resolves the adb binary once
func (a *App) setupAdb() error {
	if a.adb != nil {
		return nil
	}
	path, err := ResolveAdbPath(a.Config().AdbPath)
	if err != nil {
		return err
	}
	a.adb = &Adb{Path: path}
	LogInfo("app").Str("adb", path).Msg("Using adb")
	return nil
}

// setupEngine builds the engine (and journal when configured) without starting it
func (a *App) setupEngine() error {
	cfg := a.Config()
	opts := engine.OptionsFromConfig(cfg)
	opts.Device = a.link
	opts.WakeLock = a.link

	if cfg.JournalPath != "" {
		if dir := filepath.Dir(cfg.JournalPath); dir != "." {
			_ = os.MkdirAll(dir, 0755)
		}
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		if n, err := j.Cleanup(journalRetention); err == nil && n > 0 {
			LogInfo("app").Int("removed", n).Msg("Journal cleaned up")
		}
		a.journal = j
		opts.Journal = j
	}

	a.engine = engine.New(opts)
	return nil
}

// ========================================
// Lifecycle
// ========================================

// Startup starts the engine, triggers, watchers and device discovery
func (a *App) Startup(ctx context.Context) error {
	a.ctx = ctx
	if err := a.setupAdb(); err != nil {
		return err
	}
	if err := a.setupEngine(); err != nil {
		return err
	}
	if err := a.engine.Start(ctx); err != nil {
		return err
	}

	cfg := a.Config()
	a.applyBuiltins(cfg)

	if cfg.ScriptDir != "" {
		a.scripts = NewScriptManager(cfg.ScriptDir, a.engine, a.engine.Facade())
		if err := a.scripts.Start(); err != nil {
			LogWarn("app").Err(err).Str("dir", cfg.ScriptDir).Msg("Script directory unavailable")
		}
	}

	a.cfgWatcher = config.NewWatcher(a.cfgPath, a.onConfigChanged)
	if err := a.cfgWatcher.Start(); err != nil {
		LogWarn("app").Err(err).Str("path", a.cfgPath).Msg("Config hot reload disabled")
		a.cfgWatcher = nil
	}

	a.devices = NewDeviceWatcher(a.adb, cfg.Serial, 2*time.Second, a.onDeviceConnected, a.onDeviceDisconnected)
	a.devices.Start(ctx)

	LogInfo("app").Str("version", a.version).Msg("AutoFlip started")
	return nil
}

// Shutdown stops everything Startup started
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		if a.devices != nil {
			a.devices.Stop()
		}
		a.stopMonitor()
		if a.cfgWatcher != nil {
			a.cfgWatcher.Stop()
		}
		if a.scripts != nil {
			a.scripts.Stop()
		}
		if a.engine != nil {
			a.engine.Close()
		}
		if a.journal != nil {
			if err := a.journal.Close(); err != nil {
				LogWarn("app").Err(err).Msg("Failed to close journal")
			}
		}
		LogInfo("app").Msg("AutoFlip stopped")
	})
}

func (a *App) onConfigChanged(cfg *config.Config) {
	a.cfgMu.Lock()
	// process settings are fixed for the lifetime of the process
	cfg.AdbPath, cfg.Serial, cfg.ScriptDir, cfg.JournalPath = a.cfg.AdbPath, a.cfg.Serial, a.cfg.ScriptDir, a.cfg.JournalPath
	a.cfg = cfg
	a.cfgMu.Unlock()

	a.engine.ApplyConfig(cfg)
	a.applyBuiltins(cfg)
	logging.SetLevel(logging.ParseLevel(cfg.Log.Level))
}

// applyBuiltins replaces the configured built-in triggers
func (a *App) applyBuiltins(cfg *config.Config) {
	a.builtinsMu.Lock()
	defer a.builtinsMu.Unlock()

	for _, t := range a.builtins {
		a.engine.UnregisterTrigger(t)
	}
	a.builtins = nil

	facade := a.engine.Facade()
	if cfg.AutoTurn.Enabled && len(cfg.AutoTurn.Apps) > 0 {
		a.builtins = append(a.builtins, trigger.NewAutoTurnTrigger(trigger.AutoTurnConfig{
			Apps:     cfg.AutoTurn.Apps,
			Interval: cfg.AutoTurnInterval(),
			Forward:  cfg.AutoTurn.Forward,
			Vertical: cfg.AutoTurn.Vertical,
		}, facade))
	}
	if cfg.KeepAwake.Enabled && len(cfg.KeepAwake.Apps) > 0 {
		a.builtins = append(a.builtins, trigger.NewKeepAwakeTrigger(cfg.KeepAwake.Apps, facade.WakeLock()))
	}
	for _, t := range a.builtins {
		if err := a.engine.RegisterTrigger(t); err != nil {
			LogWarn("app").Err(err).Str("tag", t.Tag()).Msg("Built-in trigger not registered")
		}
	}
}

// ========================================
// Device connection
// ========================================

func (a *App) onDeviceConnected(d types.Device) {
	cfg := a.Config()
	backend := NewAdbBackend(a.adb, d.ID, cfg.PollInterval())
	a.link.set(backend)
	a.engine.OnBackendConnect(backend)

	monitor := NewFocusMonitor(backend, a.engine, cfg.PollInterval(), cfg.ContentPollInterval())
	a.monitorMu.Lock()
	a.monitor = monitor
	a.monitorMu.Unlock()
	monitor.Start(a.ctx)
}

func (a *App) onDeviceDisconnected(d types.Device) {
	a.stopMonitor()
	a.engine.OnBackendDisconnect()
	a.link.set(nil)
}

func (a *App) stopMonitor() {
	a.monitorMu.Lock()
	m := a.monitor
	a.monitor = nil
	a.monitorMu.Unlock()
	if m != nil {
		m.Stop()
	}
}

// ConnectedDevice returns the device currently driven
func (a *App) ConnectedDevice() (types.Device, bool) {
	if a.devices == nil {
		return types.Device{}, false
	}
	return a.devices.Current()
}

// ========================================
// One-shot helpers (CLI)
// ========================================

// openBackend connects directly to the configured (or first) device
func (a *App) openBackend(ctx context.Context) (*AdbBackend, error) {
	if err := a.setupAdb(); err != nil {
		return nil, err
	}
	devices, err := GetDevices(ctx, a.adb)
	if err != nil {
		return nil, err
	}
	d, ok := pickDevice(devices, a.Config().Serial)
	if !ok {
		return nil, errNoDevice
	}
	return NewAdbBackend(a.adb, d.ID, 0), nil
}

// TurnOnce performs a single page turn without starting the engine loop
func (a *App) TurnOnce(ctx context.Context, forward, vertical bool) (pageturn.Outcome, error) {
	backend, err := a.openBackend(ctx)
	if err != nil {
		return pageturn.Outcome{}, err
	}
	if a.engine == nil {
		if err := a.setupEngine(); err != nil {
			return pageturn.Outcome{}, err
		}
	}
	a.link.set(backend)
	a.engine.OnBackendConnect(backend)
	facade := a.engine.Facade()
	if vertical {
		return facade.TurnPageVerticallyOutcome(forward)
	}
	return facade.TurnPageOutcome(forward)
}

// FocusOnce reads the foreground app and activity from the device
func (a *App) FocusOnce(ctx context.Context) (types.FocusInfo, error) {
	backend, err := a.openBackend(ctx)
	if err != nil {
		return types.FocusInfo{}, err
	}
	pkg, activity, err := backend.CurrentActivity(ctx)
	if err != nil {
		return types.FocusInfo{}, err
	}
	return types.FocusInfo{AppID: pkg, Activity: activity}, nil
}

// ========================================
// deviceLink - 当前设备的转发
// ========================================

type linkBox struct {
	backend *AdbBackend
}

// deviceLink forwards device actions and wake locks to whichever backend is
// connected, so the engine can be built before any device shows up.
type deviceLink struct {
	current atomic.Pointer[linkBox]
}

func (l *deviceLink) set(b *AdbBackend) {
	if b == nil {
		l.current.Store(nil)
		return
	}
	l.current.Store(&linkBox{backend: b})
}

func (l *deviceLink) get() *AdbBackend {
	if box := l.current.Load(); box != nil {
		return box.backend
	}
	return nil
}

func (l *deviceLink) VolumeUp() error {
	if b := l.get(); b != nil {
		return b.VolumeUp()
	}
	return errNoDevice
}

func (l *deviceLink) VolumeDown() error {
	if b := l.get(); b != nil {
		return b.VolumeDown()
	}
	return errNoDevice
}

func (l *deviceLink) AcquireWakeLock() (action.WakeHandle, error) {
	if b := l.get(); b != nil {
		return b.AcquireWakeLock()
	}
	return nil, errNoDevice
}
