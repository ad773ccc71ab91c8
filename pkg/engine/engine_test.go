package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"AutoFlip/pkg/config"
	"AutoFlip/pkg/journal"
	"AutoFlip/pkg/pageturn"
	"AutoFlip/pkg/pipeline"
	"AutoFlip/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ========================================
// Fakes
// ========================================

type fakeNode struct{ bounds types.Rect }

func (n *fakeNode) ClassName() string                                 { return "FrameLayout" }
func (n *fakeNode) ChildCount() int                                   { return 0 }
func (n *fakeNode) Child(int) types.UINode                            { return nil }
func (n *fakeNode) BoundsOnScreen() types.Rect                        { return n.bounds }
func (n *fakeNode) SupportedActions() []types.ActionID                { return nil }
func (n *fakeNode) PerformAction(types.ActionID, map[string]int) bool { return false }

type fakeBackend struct {
	mu      sync.Mutex
	appID   string
	root    types.UINode
	strokes []types.Stroke
}

func (b *fakeBackend) setApp(appID string) {
	b.mu.Lock()
	b.appID = appID
	b.mu.Unlock()
}

func (b *fakeBackend) FocusedAppID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appID
}

func (b *fakeBackend) Root() types.UINode { return b.root }

func (b *fakeBackend) DispatchGesture(strokes []types.Stroke) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.strokes = append(b.strokes, strokes...)
	return true
}

func (b *fakeBackend) PerformGlobalAction(types.GlobalAction) bool { return true }

func (b *fakeBackend) lastStroke() types.Stroke {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.strokes[len(b.strokes)-1]
}

type countingTrigger struct {
	tag  string
	apps []string

	mu          sync.Mutex
	activated   int
	deactivated int
	events      int
}

func (c *countingTrigger) Tag() string              { return c.tag }
func (c *countingTrigger) InterestAppIDs() []string { return c.apps }
func (c *countingTrigger) Activate() {
	c.mu.Lock()
	c.activated++
	c.mu.Unlock()
}
func (c *countingTrigger) Deactivate() {
	c.mu.Lock()
	c.deactivated++
	c.mu.Unlock()
}
func (c *countingTrigger) OnEvent(types.UIChangeEvent) {
	c.mu.Lock()
	c.events++
	c.mu.Unlock()
}
func (c *countingTrigger) OnActivityChanged(string, string) {}

func (c *countingTrigger) counts() (int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activated, c.deactivated, c.events
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

var screen = types.Rect{Right: 1080, Bottom: 2000}

func windowRaw(className string) types.RawEvent {
	return types.RawEvent{Type: types.TypeWindowStateChanged, ClassName: className, Time: time.Now().UnixMilli()}
}

// ========================================
// Scenarios
// ========================================

func TestFocusScenarios(t *testing.T) {
	j, err := journal.Open(journal.MemoryPath)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	e := New(Options{ExcludedAppIDs: []string{"sysUI"}, Journal: j})
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	backend := &fakeBackend{root: &fakeNode{bounds: screen}}
	e.OnBackendConnect(backend)

	a := &countingTrigger{tag: "A", apps: []string{"app1"}}
	b := &countingTrigger{tag: "B", apps: []string{"app2"}}
	e.RegisterTrigger(a)
	e.RegisterTrigger(b)

	activeTags := func() string {
		var tags []string
		for _, info := range e.Triggers() {
			if info.Active {
				tags = append(tags, info.Tag)
			}
		}
		return fmt.Sprint(tags)
	}

	steps := []struct {
		app    string
		active string
	}{
		{"app1", "[A]"},
		{"app2", "[B]"},
		{"sysUI", "[B]"},
		{"app1", "[A]"},
	}
	for i, step := range steps {
		backend.setApp(step.app)
		e.Ingest(windowRaw(fmt.Sprintf("%s.Activity%d", step.app, i)))
		waitFor(t, func() bool { return e.Focus().FocusedAppID == step.app }, "focus "+step.app)
		if got := activeTags(); got != step.active {
			t.Errorf("step %d (%s): active = %s, want %s", i+1, step.app, got, step.active)
		}
	}

	if act, deact, _ := a.counts(); act != 2 || deact != 1 {
		t.Errorf("A activate=%d deactivate=%d", act, deact)
	}
	if act, deact, _ := b.counts(); act != 1 || deact != 1 {
		t.Errorf("B activate=%d deactivate=%d", act, deact)
	}

	// content events reach only the active trigger
	e.Ingest(types.RawEvent{Type: types.TypeWindowContentChanged})
	waitFor(t, func() bool { _, _, ev := a.counts(); return ev == 1 }, "content relay")
	if _, _, ev := b.counts(); ev != 0 {
		t.Error("inactive trigger received a content event")
	}

	focusEntries, err := j.Recent(journal.KindFocus, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(focusEntries) != 4 {
		t.Errorf("expected 4 focus entries, got %d", len(focusEntries))
	}
	activations, _ := j.Recent(journal.KindActivate, 10)
	if len(activations) != 3 {
		t.Errorf("expected 3 activation entries, got %d", len(activations))
	}
}

func TestRequestTurnPageFallsBackToTap(t *testing.T) {
	e := New(Options{})
	defer e.Close()

	if e.RequestTurnPage(true) {
		t.Error("turning without a backend should report false")
	}

	backend := &fakeBackend{appID: "com.reader", root: &fakeNode{bounds: screen}}
	e.OnBackendConnect(backend)
	if !e.RequestTurnPage(true) {
		t.Fatal("RequestTurnPage should succeed")
	}
	stroke := backend.lastStroke()
	if stroke.Path[0] != (types.Point{X: 1030, Y: 1000}) || stroke.DurationMs != 0 {
		t.Errorf("unexpected tap %+v", stroke)
	}
}

func TestRequestTurnPageVertically(t *testing.T) {
	policy := pageturn.DefaultPolicy()
	policy.VerticalWhitelist = []string{"com.video"}
	e := New(Options{Policy: &policy})
	defer e.Close()

	backend := &fakeBackend{appID: "com.video", root: &fakeNode{bounds: screen}}
	e.OnBackendConnect(backend)
	if !e.RequestTurnPageVertically(true) {
		t.Fatal("vertical turn should succeed for a whitelisted package")
	}
	stroke := backend.lastStroke()
	if stroke.Path[0] != (types.Point{X: 540, Y: 1500}) || stroke.Path[1] != (types.Point{X: 540, Y: 500}) {
		t.Errorf("unexpected swipe %+v", stroke.Path)
	}

	backend.setApp("com.reader")
	if e.RequestTurnPageVertically(true) {
		t.Error("vertical turn must be a no-op for other packages")
	}

	e.OnBackendDisconnect()
	if e.RequestTurnPageVertically(true) {
		t.Error("vertical turn without a backend should report false")
	}
}

func TestApplyPolicy(t *testing.T) {
	e := New(Options{ExcludedAppIDs: []string{"sysUI"}})
	defer e.Close()

	policy := pageturn.DefaultPolicy()
	policy.TapPadding = 100
	e.ApplyPolicy(policy, []string{"launcher"})

	backend := &fakeBackend{appID: "com.reader", root: &fakeNode{bounds: screen}}
	e.OnBackendConnect(backend)
	e.RequestTurnPage(false)
	if got := backend.lastStroke().Path[0]; got.X != 100 {
		t.Errorf("tap x = %d, want 100", got.X)
	}
	if e.Registry().Excluded("sysUI") || !e.Registry().Excluded("launcher") {
		t.Error("excluded set not replaced")
	}
}

func TestCloseDeactivatesTriggers(t *testing.T) {
	e := New(Options{})
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	backend := &fakeBackend{appID: "app1", root: &fakeNode{bounds: screen}}
	e.OnBackendConnect(backend)

	a := &countingTrigger{tag: "A", apps: []string{"app1"}}
	e.RegisterTrigger(a)
	e.Ingest(windowRaw("Main"))
	waitFor(t, func() bool { act, _, _ := a.counts(); return act == 1 }, "activation")

	e.Close()
	e.Close()
	if _, deact, _ := a.counts(); deact != 1 {
		t.Errorf("Close should deactivate triggers, got %d", deact)
	}
	if e.Facade().Connected() {
		t.Error("Close should drop the backend")
	}
	if err := e.Start(context.Background()); err == nil {
		t.Error("Start after Close should fail")
	}
	if e.Ingest(windowRaw("Late")) {
		t.Error("Ingest after Close should drop")
	}
}

func TestUnregisterTriggersByApp(t *testing.T) {
	e := New(Options{})
	defer e.Close()
	e.RegisterTrigger(&countingTrigger{tag: "A", apps: []string{"app1"}})
	e.RegisterTrigger(&countingTrigger{tag: "B", apps: []string{"app1", "app2"}})
	e.RegisterTrigger(&countingTrigger{tag: "C", apps: []string{"app3"}})

	if n := e.UnregisterTriggersByApp("app1"); n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	if n := e.UnregisterTriggersByTag("C"); n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
	if len(e.Triggers()) != 0 {
		t.Error("all triggers should be gone")
	}
}

func TestOptionsFromConfigReplayDepth(t *testing.T) {
	tests := []struct {
		name  string
		depth int
		want  int
	}{
		{"default depth", 10, 10},
		{"custom depth", 3, 3},
		{"zero disables replay", 0, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.ReplayDepth = tt.depth
			if got := OptionsFromConfig(cfg).ReplayDepth; got != tt.want {
				t.Errorf("ReplayDepth = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReplayDisabledFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ReplayDepth = 0
	e := New(OptionsFromConfig(cfg))
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	e.Ingest(types.RawEvent{Type: types.TypeWindowContentChanged, PackageName: "com.reader"})
	deadline := time.Now().Add(2 * time.Second)
	for e.Stats().Published == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if e.Stats().Published != 1 {
		t.Fatalf("event was not published: %+v", e.Stats())
	}

	var mu sync.Mutex
	var late []types.UIChangeEvent
	sub := e.pipeline.Subscribe(nil, pipeline.Sequential, func(_ context.Context, ev types.UIChangeEvent) {
		mu.Lock()
		late = append(late, ev)
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(late) != 0 {
		t.Errorf("late subscriber got %d replayed events, want none", len(late))
	}
}
