package action

import (
	"errors"
	"sync/atomic"

	"AutoFlip/pkg/logging"
	"AutoFlip/pkg/pageturn"
	"AutoFlip/pkg/types"
)

// ErrNoBackend is returned by the detailed variants when no backend is connected
var ErrNoBackend = errors.New("instrumentation backend not connected")

// Backend is a live instrumentation backend
type Backend interface {
	// FocusedAppID returns the foreground package, "" if none can be resolved
	FocusedAppID() string
	// Root returns the active window's UI root, nil if unavailable
	Root() types.UINode
	DispatchGesture(strokes []types.Stroke) bool
	PerformGlobalAction(action types.GlobalAction) bool
}

type backendBox struct {
	backend Backend
}

// ========================================
// Instrumented - 依赖后端的操作
// ========================================

// Instrumented delegates to the currently connected Backend. Every call
// tolerates a missing backend and returns a neutral result.
type Instrumented struct {
	current  atomic.Pointer[backendBox]
	resolver *pageturn.Resolver
}

func NewInstrumented(resolver *pageturn.Resolver) *Instrumented {
	if resolver == nil {
		resolver = pageturn.NewResolver(pageturn.DefaultPolicy())
	}
	return &Instrumented{resolver: resolver}
}

// Connect binds b, replacing any previous backend
func (i *Instrumented) Connect(b Backend) {
	if b == nil {
		i.Disconnect()
		return
	}
	i.current.Store(&backendBox{backend: b})
	logging.LogInfo("action").Msg("Backend connected")
}

func (i *Instrumented) Disconnect() {
	if i.current.Swap(nil) != nil {
		logging.LogInfo("action").Msg("Backend disconnected")
	}
}

// Backend returns the connected backend or nil
func (i *Instrumented) Backend() Backend {
	if box := i.current.Load(); box != nil {
		return box.backend
	}
	return nil
}

func (i *Instrumented) Connected() bool {
	return i.current.Load() != nil
}

func (i *Instrumented) Resolver() *pageturn.Resolver {
	return i.resolver
}

func (i *Instrumented) PressHome() bool {
	return i.global(types.GlobalHome)
}

func (i *Instrumented) PressBack() bool {
	return i.global(types.GlobalBack)
}

func (i *Instrumented) global(a types.GlobalAction) bool {
	b := i.Backend()
	if b == nil {
		return false
	}
	return b.PerformGlobalAction(a)
}

func (i *Instrumented) FocusedAppID() string {
	b := i.Backend()
	if b == nil {
		return ""
	}
	return b.FocusedAppID()
}

func (i *Instrumented) TurnPage(forward bool) bool {
	out, err := i.TurnPageOutcome(forward)
	return err == nil && out.OK
}

func (i *Instrumented) TurnPageVertically(forward bool) bool {
	out, err := i.TurnPageVerticallyOutcome(forward)
	return err == nil && out.OK
}

// TurnPageOutcome is TurnPage with the resolution details
func (i *Instrumented) TurnPageOutcome(forward bool) (pageturn.Outcome, error) {
	b := i.Backend()
	if b == nil {
		return pageturn.Outcome{}, ErrNoBackend
	}
	out, err := i.resolver.TurnPage(b, b.FocusedAppID(), forward)
	if err != nil {
		logging.LogDebug("action").Err(err).Bool("forward", forward).Msg("Page turn not possible")
	}
	return out, err
}

// TurnPageVerticallyOutcome is TurnPageVertically with the resolution details
func (i *Instrumented) TurnPageVerticallyOutcome(forward bool) (pageturn.Outcome, error) {
	b := i.Backend()
	if b == nil {
		return pageturn.Outcome{}, ErrNoBackend
	}
	return i.resolver.TurnPageVertically(b, b.FocusedAppID(), forward)
}
