package pageturn

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"AutoFlip/pkg/logging"
	"AutoFlip/pkg/types"

	"github.com/rs/zerolog"
)

// fakeNode is an in-memory UI node
type fakeNode struct {
	name     string
	class    string
	bounds   types.Rect
	actions  []types.ActionID
	children []*fakeNode
	broken   bool // accessors panic
	gone     bool // parent reports it as unreadable
	accept   bool

	performed []types.ActionID
	args      []map[string]int
}

func (n *fakeNode) ClassName() string {
	if n.broken {
		panic("node recycled")
	}
	return n.class
}

func (n *fakeNode) ChildCount() int {
	if n.broken {
		panic("node recycled")
	}
	return len(n.children)
}

func (n *fakeNode) Child(i int) types.UINode {
	c := n.children[i]
	if c.gone {
		return nil
	}
	return c
}

func (n *fakeNode) BoundsOnScreen() types.Rect { return n.bounds }

func (n *fakeNode) SupportedActions() []types.ActionID {
	if n.broken {
		panic("node recycled")
	}
	return n.actions
}

func (n *fakeNode) PerformAction(id types.ActionID, args map[string]int) bool {
	n.performed = append(n.performed, id)
	n.args = append(n.args, args)
	return n.accept
}

type fakeSurface struct {
	root    types.UINode
	strokes [][]types.Stroke
	refuse  bool
}

func (s *fakeSurface) Root() types.UINode { return s.root }

func (s *fakeSurface) DispatchGesture(strokes []types.Stroke) bool {
	s.strokes = append(s.strokes, strokes)
	return !s.refuse
}

var screen = types.Rect{Left: 0, Top: 0, Right: 1080, Bottom: 2000}

func structuralPolicy(priority ...string) Policy {
	p := DefaultPolicy()
	p.DisableStructural = false
	if len(priority) > 0 {
		p.Priority = map[string][]string{DefaultPriorityKey: priority}
	}
	return p
}

func allPerformed(n *fakeNode) int {
	count := len(n.performed)
	for _, c := range n.children {
		count += allPerformed(c)
	}
	return count
}

// ========================================
// Horizontal
// ========================================

func TestEmptyStrategyListFallsBackToTap(t *testing.T) {
	pager := &fakeNode{class: "androidx.viewpager.widget.ViewPager", actions: []types.ActionID{types.ActionScrollForward}, accept: true}
	root := &fakeNode{class: "FrameLayout", bounds: screen, children: []*fakeNode{pager}}
	s := &fakeSurface{root: root}

	r := NewResolver(DefaultPolicy()) // structural disabled
	out, err := r.TurnPage(s, "com.reader", true)
	if err != nil {
		t.Fatalf("TurnPage failed: %v", err)
	}
	if out.Method != MethodTap || !out.OK {
		t.Errorf("unexpected outcome %+v", out)
	}
	if len(s.strokes) != 1 || len(s.strokes[0]) != 1 {
		t.Fatalf("expected one single-stroke gesture, got %v", s.strokes)
	}
	stroke := s.strokes[0][0]
	if len(stroke.Path) != 1 || stroke.Path[0] != (types.Point{X: 1030, Y: 1000}) || stroke.DurationMs != 0 {
		t.Errorf("unexpected tap %+v", stroke)
	}
	if allPerformed(root) != 0 {
		t.Error("no structural action may run with an empty strategy list")
	}
}

func TestBackwardTapUsesLeftEdge(t *testing.T) {
	s := &fakeSurface{root: &fakeNode{bounds: screen}}
	r := NewResolver(DefaultPolicy())
	if _, err := r.TurnPage(s, "com.reader", false); err != nil {
		t.Fatal(err)
	}
	if got := s.strokes[0][0].Path[0]; got != (types.Point{X: 50, Y: 1000}) {
		t.Errorf("backward tap at %+v, want (50,1000)", got)
	}
}

func TestBFSPrefersShallowestMatch(t *testing.T) {
	// document order reaches "deep" first, level order reaches "shallow" first
	deep := &fakeNode{name: "deep", class: "RecyclerView", actions: []types.ActionID{types.ActionScrollForward}, accept: true}
	shallow := &fakeNode{name: "shallow", class: "ViewPager", actions: []types.ActionID{types.ActionScrollForward}, accept: true}
	root := &fakeNode{bounds: screen, children: []*fakeNode{
		{class: "LinearLayout", children: []*fakeNode{{class: "FrameLayout", children: []*fakeNode{deep}}}},
		shallow,
	}}
	s := &fakeSurface{root: root}

	r := NewResolver(structuralPolicy())
	out, err := r.TurnPage(s, "com.reader", true)
	if err != nil {
		t.Fatal(err)
	}
	if out.Method != MethodStructural || out.Strategy != StrategyScroll || !out.OK {
		t.Errorf("unexpected outcome %+v", out)
	}
	if len(shallow.performed) != 1 || shallow.performed[0] != types.ActionScrollForward {
		t.Errorf("shallow node actions = %v", shallow.performed)
	}
	if len(deep.performed) != 0 {
		t.Error("deeper match must not be used")
	}
	if len(s.strokes) != 0 {
		t.Error("no gesture expected when a structural match exists")
	}
}

func TestFirstStrategyWithMatchWins(t *testing.T) {
	text := &fakeNode{class: "TextView", actions: []types.ActionID{types.ActionNextAtMovementGranularity, types.ActionPreviousAtMovementGranularity}, accept: true}
	pager := &fakeNode{class: "ViewPager", actions: []types.ActionID{types.ActionScrollBackward}, accept: true}
	root := &fakeNode{bounds: screen, children: []*fakeNode{text, pager}}

	r := NewResolver(structuralPolicy(StrategyGranularity, StrategyScroll))
	out, err := r.TurnPage(&fakeSurface{root: root}, "com.reader", false)
	if err != nil {
		t.Fatal(err)
	}
	if out.Strategy != StrategyGranularity {
		t.Errorf("strategy = %s, want granularity", out.Strategy)
	}
	if len(text.performed) != 1 || text.performed[0] != types.ActionPreviousAtMovementGranularity {
		t.Errorf("text actions = %v", text.performed)
	}
	if text.args[0][types.ArgMovementGranularity] != types.GranularityPage {
		t.Errorf("granularity args = %v", text.args[0])
	}
	if len(pager.performed) != 0 {
		t.Error("later strategies must not be evaluated")
	}
}

func TestStructuralFailureIsReported(t *testing.T) {
	pager := &fakeNode{class: "ViewPager", actions: []types.ActionID{types.ActionScrollForward}, accept: false}
	s := &fakeSurface{root: &fakeNode{bounds: screen, children: []*fakeNode{pager}}}

	out, err := NewResolver(structuralPolicy()).TurnPage(s, "com.reader", true)
	if err != nil {
		t.Fatal(err)
	}
	if out.OK || out.Method != MethodStructural {
		t.Errorf("expected a failed structural outcome, got %+v", out)
	}
	if len(s.strokes) != 0 {
		t.Error("a refused structural action should not fall back to a gesture")
	}
}

func TestNoMatchFallsBackToTap(t *testing.T) {
	plain := &fakeNode{class: "TextView"}
	// a scrollable but unknown container does not match the scroll strategy
	custom := &fakeNode{class: "com.vendor.PageFlipView", actions: []types.ActionID{types.ActionScrollForward}}
	s := &fakeSurface{root: &fakeNode{bounds: screen, children: []*fakeNode{plain, custom}}}

	out, err := NewResolver(structuralPolicy()).TurnPage(s, "com.reader", true)
	if err != nil {
		t.Fatal(err)
	}
	if out.Method != MethodTap {
		t.Errorf("expected tap fallback, got %+v", out)
	}
}

func TestUnreadableNodesAreSkipped(t *testing.T) {
	pager := &fakeNode{class: "ViewPager", actions: []types.ActionID{types.ActionScrollForward}, accept: true}
	root := &fakeNode{bounds: screen, children: []*fakeNode{
		{class: "Broken", broken: true, children: []*fakeNode{{class: "ViewPager"}}},
		{class: "Gone", gone: true},
		{class: "LinearLayout", children: []*fakeNode{pager}},
	}}

	out, err := NewResolver(structuralPolicy()).TurnPage(&fakeSurface{root: root}, "com.reader", true)
	if err != nil {
		t.Fatal(err)
	}
	if !out.OK || len(pager.performed) != 1 {
		t.Errorf("resolution should survive unreadable nodes, got %+v", out)
	}
}

func TestNoRoot(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	if _, err := r.TurnPage(&fakeSurface{}, "com.reader", true); !errors.Is(err, ErrNoRoot) {
		t.Errorf("expected ErrNoRoot, got %v", err)
	}
	if _, err := r.TurnPage(&fakeSurface{root: &fakeNode{}}, "com.reader", true); !errors.Is(err, ErrEmptyBounds) {
		t.Errorf("expected ErrEmptyBounds, got %v", err)
	}
}

func TestRefusedGesture(t *testing.T) {
	s := &fakeSurface{root: &fakeNode{bounds: screen}, refuse: true}
	out, err := NewResolver(DefaultPolicy()).TurnPage(s, "com.reader", true)
	if err != nil {
		t.Fatal(err)
	}
	if out.OK {
		t.Error("refused gesture should report failure")
	}
}

// ========================================
// Vertical
// ========================================

func TestVerticalSwipe(t *testing.T) {
	p := DefaultPolicy()
	p.VerticalWhitelist = []string{"com.video"}
	r := NewResolver(p)

	tests := []struct {
		forward  bool
		from, to types.Point
	}{
		{true, types.Point{X: 540, Y: 1500}, types.Point{X: 540, Y: 500}},
		{false, types.Point{X: 540, Y: 500}, types.Point{X: 540, Y: 1500}},
	}
	for _, tt := range tests {
		s := &fakeSurface{root: &fakeNode{bounds: screen}}
		out, err := r.TurnPageVertically(s, "com.video", tt.forward)
		if err != nil {
			t.Fatalf("forward=%v: %v", tt.forward, err)
		}
		if out.Method != MethodSwipe || !out.OK {
			t.Errorf("unexpected outcome %+v", out)
		}
		stroke := s.strokes[0][0]
		if stroke.Path[0] != tt.from || stroke.Path[1] != tt.to {
			t.Errorf("forward=%v swipe %v -> %v, want %v -> %v", tt.forward, stroke.Path[0], stroke.Path[1], tt.from, tt.to)
		}
		if stroke.StartDelayMs != SwipeStartDelayMs || stroke.DurationMs != SwipeDurationMs {
			t.Errorf("unexpected envelope %+v", stroke)
		}
	}
}

func TestVerticalRequiresWhitelist(t *testing.T) {
	p := structuralPolicy()
	p.VerticalWhitelist = []string{"com.video"}
	pager := &fakeNode{class: "ViewPager", actions: []types.ActionID{types.ActionScrollForward}, accept: true}
	s := &fakeSurface{root: &fakeNode{bounds: screen, children: []*fakeNode{pager}}}
	r := NewResolver(p)

	for _, pkg := range []string{"com.reader", ""} {
		if _, err := r.TurnPageVertically(s, pkg, true); !errors.Is(err, ErrNotWhitelisted) {
			t.Errorf("%q: expected ErrNotWhitelisted, got %v", pkg, err)
		}
	}
	if len(s.strokes) != 0 {
		t.Error("non-whitelisted package must not dispatch a gesture")
	}

	if _, err := r.TurnPageVertically(s, "com.video", true); err != nil {
		t.Fatal(err)
	}
	if len(pager.performed) != 0 {
		t.Error("vertical mode must not use structural strategies")
	}
}

// ========================================
// Policy
// ========================================

func TestPolicyStrategiesFor(t *testing.T) {
	p := Policy{
		Priority: map[string][]string{
			DefaultPriorityKey: {StrategyScroll},
			"com.epub":         {"granularity", "bogus", "scroll"},
			"com.none":         {},
		},
	}
	names := func(ss []Strategy) []string {
		var out []string
		for _, s := range ss {
			out = append(out, s.Name())
		}
		return out
	}

	if got := names(p.StrategiesFor("com.epub")); len(got) != 2 || got[0] != StrategyGranularity || got[1] != StrategyScroll {
		t.Errorf("com.epub = %v", got)
	}
	if got := names(p.StrategiesFor("com.other")); len(got) != 1 || got[0] != StrategyScroll {
		t.Errorf("default = %v", got)
	}
	if got := p.StrategiesFor("com.none"); len(got) != 0 {
		t.Errorf("explicit empty list = %v", got)
	}

	p.DisableStructural = true
	if got := p.StrategiesFor("com.epub"); len(got) != 0 {
		t.Errorf("disabled = %v", got)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if !p.DisableStructural || p.TapPadding != 50 {
		t.Errorf("unexpected default policy %+v", p)
	}
}

func TestStrategyByName(t *testing.T) {
	for _, name := range StrategyNames() {
		s, ok := StrategyByName(name)
		if !ok || s.Name() != name {
			t.Errorf("StrategyByName(%q) = %v, %v", name, s, ok)
		}
	}
	if _, ok := StrategyByName(" Scroll "); !ok {
		t.Error("names should be case and space insensitive")
	}
	if _, ok := StrategyByName("swipe"); ok {
		t.Error("unknown name should not resolve")
	}
}

func TestFindFirstLogsSearchLimit(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOutput(&buf, zerolog.DebugLevel)
	defer logging.InitLogger(logging.DefaultLogConfig())

	wide := make([]*fakeNode, maxVisitedNodes+10)
	for i := range wide {
		wide[i] = &fakeNode{class: "TextView"}
	}
	wide[len(wide)-1] = &fakeNode{class: "ViewPager"}
	root := &fakeNode{class: "FrameLayout", children: wide}

	found := FindFirst(root, func(n types.UINode) bool { return n.ClassName() == "ViewPager" })
	if found != nil {
		t.Error("match beyond the search limit should not be returned")
	}
	if !strings.Contains(buf.String(), "Node search limit reached") {
		t.Errorf("expected search limit to be logged, got: %s", buf.String())
	}

	buf.Reset()
	small := &fakeNode{class: "FrameLayout", children: []*fakeNode{{class: "ViewPager"}}}
	if FindFirst(small, func(n types.UINode) bool { return n.ClassName() == "ViewPager" }) == nil {
		t.Error("expected match in small tree")
	}
	if strings.Contains(buf.String(), "Node search limit reached") {
		t.Error("limit must not be logged for a complete search")
	}
}
