package engine

import (
	"context"
	"fmt"
	"sync"

	"AutoFlip/pkg/action"
	"AutoFlip/pkg/config"
	"AutoFlip/pkg/focus"
	"AutoFlip/pkg/journal"
	"AutoFlip/pkg/logging"
	"AutoFlip/pkg/pageturn"
	"AutoFlip/pkg/pipeline"
	"AutoFlip/pkg/trigger"
	"AutoFlip/pkg/types"
)

// ========================================
// Engine - 自动翻页引擎
// ========================================

// Options 引擎参数
type Options struct {
	Policy         *pageturn.Policy // nil uses pageturn.DefaultPolicy
	ExcludedAppIDs []string
	QueueSize      int
	ReplayDepth    int

	Device   action.DeviceActions    // optional
	WakeLock action.WakeLockProvider // optional
	Notifier action.Notifier         // optional, defaults to the log
	Journal  *journal.Journal        // optional
}

// OptionsFromConfig maps the file configuration onto engine options
func OptionsFromConfig(cfg *config.Config) Options {
	policy := cfg.Policy()
	replay := cfg.ReplayDepth
	if replay == 0 {
		// replayDepth 0 in the file turns replay off
		replay = -1
	}
	return Options{
		Policy:         &policy,
		ExcludedAppIDs: cfg.ExcludedAppIDs,
		QueueSize:      cfg.QueueSize,
		ReplayDepth:    replay,
	}
}

// Engine owns every piece of shared state: the event pipeline, the trigger
// registry, the focus tracker and the action facade.
type Engine struct {
	pipeline *pipeline.Pipeline
	registry *trigger.Registry
	tracker  *focus.Tracker
	facade   *action.Facade
	resolver *pageturn.Resolver
	journal  *journal.Journal

	mu      sync.Mutex
	started bool
	closed  bool
	subs    []*pipeline.Subscription
}

func New(opts Options) *Engine {
	policy := pageturn.DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	resolver := pageturn.NewResolver(policy)
	facade := action.NewFacade(opts.Device, action.NewWakeLock(opts.WakeLock, opts.Notifier), resolver)
	registry := trigger.NewRegistry(opts.ExcludedAppIDs)
	tracker := focus.NewTracker(facade, registry)

	e := &Engine{
		pipeline: pipeline.New(pipeline.Options{QueueSize: opts.QueueSize, ReplayDepth: opts.ReplayDepth}),
		registry: registry,
		tracker:  tracker,
		facade:   facade,
		resolver: resolver,
		journal:  opts.Journal,
	}
	if opts.Journal != nil {
		tracker.SetJournal(opts.Journal)
		registry.SetObserver(opts.Journal.RecordActivation)
	}
	return e
}

// Start subscribes the focus tracker and starts distribution.
// Window-state events are handled one at a time in order; content events
// are handled latest-wins.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("engine closed")
	}
	if e.started {
		return nil
	}

	e.subs = append(e.subs,
		e.pipeline.WindowStateChanges().Subscribe(pipeline.Sequential, e.tracker.HandleWindowState),
		e.pipeline.ContentChanges().Subscribe(pipeline.LatestWins, e.tracker.HandleContent),
	)
	e.pipeline.Start(ctx)
	e.started = true

	logging.LogInfo("engine").Msg("Engine started")
	return nil
}

// Close stops distribution, deactivates every trigger, releases the wake
// lock and drops the backend.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.pipeline.Stop()
	for _, t := range e.registry.All() {
		e.registry.Unregister(t)
	}
	e.facade.WakeLock().Release()
	e.facade.OnBackendDisconnect()

	stats := e.pipeline.Stats()
	logging.LogInfo("engine").
		Int64("ingested", stats.Ingested).
		Int64("dropped", stats.Dropped).
		Msg("Engine closed")
}

// Ingest hands a raw backend event to the pipeline without blocking
func (e *Engine) Ingest(raw types.RawEvent) bool {
	return e.pipeline.Ingest(raw)
}

// ========================================
// Triggers
// ========================================

func (e *Engine) RegisterTrigger(t trigger.Trigger) error {
	return e.registry.Register(t)
}

func (e *Engine) UnregisterTrigger(t trigger.Trigger) bool {
	return e.registry.Unregister(t)
}

func (e *Engine) UnregisterTriggersByApp(appID string) int {
	return e.registry.UnregisterByApp(appID)
}

func (e *Engine) UnregisterTriggersByTag(tag string) int {
	return e.registry.UnregisterByTag(tag)
}

// Triggers describes the registered triggers
func (e *Engine) Triggers() []types.TriggerInfo {
	return e.registry.Infos()
}

// ========================================
// Backend lifecycle & actions
// ========================================

func (e *Engine) OnBackendConnect(b action.Backend) {
	e.facade.OnBackendConnect(b)
}

func (e *Engine) OnBackendDisconnect() {
	e.facade.OnBackendDisconnect()
}

// RequestTurnPage turns a page in the foreground app. false means not currently possible.
func (e *Engine) RequestTurnPage(forward bool) bool {
	return e.facade.TurnPage(forward)
}

// RequestTurnPageVertically swipes a page in a whitelisted foreground app
func (e *Engine) RequestTurnPageVertically(forward bool) bool {
	return e.facade.TurnPageVertically(forward)
}

// ApplyPolicy swaps the page-turn policy and the excluded app ids at runtime
func (e *Engine) ApplyPolicy(policy pageturn.Policy, excluded []string) {
	e.resolver.SetPolicy(policy)
	e.registry.SetExcluded(excluded)
	logging.LogInfo("engine").
		Bool("disableStructural", policy.DisableStructural).
		Int("excluded", len(excluded)).
		Msg("Policy applied")
}

// ApplyConfig applies the reloadable part of cfg
func (e *Engine) ApplyConfig(cfg *config.Config) {
	e.ApplyPolicy(cfg.Policy(), cfg.ExcludedAppIDs)
}

// ========================================
// Accessors
// ========================================

func (e *Engine) Focus() focus.State {
	return e.tracker.Snapshot()
}

func (e *Engine) Facade() *action.Facade {
	return e.facade
}

func (e *Engine) Registry() *trigger.Registry {
	return e.registry
}

func (e *Engine) Journal() *journal.Journal {
	return e.journal
}

func (e *Engine) Stats() pipeline.Stats {
	return e.pipeline.Stats()
}
