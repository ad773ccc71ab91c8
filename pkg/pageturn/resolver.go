package pageturn

import (
	"errors"
	"runtime/debug"
	"sync"

	"AutoFlip/pkg/logging"
	"AutoFlip/pkg/types"
)

// ========================================
// Page-Turn Resolver - 翻页解析
// ========================================

var (
	ErrNoRoot         = errors.New("no UI root available")
	ErrEmptyBounds    = errors.New("UI root has empty bounds")
	ErrNotWhitelisted = errors.New("package not whitelisted for vertical turning")
	ErrGestureRefused = errors.New("gesture dispatch refused")
)

// Vertical swipe envelope
const (
	SwipeStartDelayMs = 0
	SwipeDurationMs   = 300
)

// maxVisitedNodes bounds a single search
const maxVisitedNodes = 5000

// Surface is what the resolver needs from the instrumentation backend
type Surface interface {
	Root() types.UINode
	DispatchGesture(strokes []types.Stroke) bool
}

// Method describes how a turn was performed
type Method string

const (
	MethodStructural Method = "structural"
	MethodTap        Method = "tap"
	MethodSwipe      Method = "swipe"
)

// Outcome 翻页结果
type Outcome struct {
	Method   Method        `json:"method"`
	Strategy string        `json:"strategy,omitempty"`
	Stroke   *types.Stroke `json:"stroke,omitempty"`
	OK       bool          `json:"ok"`
}

// Resolver turns pages using the configured Policy
type Resolver struct {
	mu     sync.RWMutex
	policy Policy
}

func NewResolver(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

func (r *Resolver) SetPolicy(p Policy) {
	r.mu.Lock()
	r.policy = p
	r.mu.Unlock()
}

func (r *Resolver) Policy() Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy
}

// TurnPage turns one page horizontally in pkg. Structural strategies are tried
// in priority order; the first breadth-first match of the first strategy with
// any match is used. Without a match an edge tap is dispatched.
func (r *Resolver) TurnPage(s Surface, pkg string, forward bool) (Outcome, error) {
	timer := logging.StartOperation("pageturn", "turn_page").AddDetail("package", pkg)
	policy := r.Policy()

	root := s.Root()
	if root == nil {
		timer.EndWithError(ErrNoRoot)
		return Outcome{}, ErrNoRoot
	}

	for _, strategy := range policy.StrategiesFor(pkg) {
		node := FindFirst(root, strategy.Match)
		if node == nil {
			continue
		}
		ok := turnNode(strategy, node, forward)
		timer.AddDetail("strategy", strategy.Name()).End()
		return Outcome{Method: MethodStructural, Strategy: strategy.Name(), OK: ok}, nil
	}

	bounds, ok := safeBounds(root)
	if !ok || bounds.Empty() {
		timer.EndWithError(ErrEmptyBounds)
		return Outcome{}, ErrEmptyBounds
	}
	stroke := TapStroke(bounds, policy.padding(), forward)
	out := Outcome{Method: MethodTap, Stroke: &stroke, OK: s.DispatchGesture([]types.Stroke{stroke})}
	if !out.OK {
		timer.EndWithError(ErrGestureRefused)
		return out, nil
	}
	timer.End()
	return out, nil
}

// TurnPageVertically swipes one page in a whitelisted feed-style package.
// Structural strategies are never used.
func (r *Resolver) TurnPageVertically(s Surface, pkg string, forward bool) (Outcome, error) {
	if !r.Policy().VerticalAllowed(pkg) {
		return Outcome{}, ErrNotWhitelisted
	}
	root := s.Root()
	if root == nil {
		return Outcome{}, ErrNoRoot
	}
	bounds, ok := safeBounds(root)
	if !ok || bounds.Empty() {
		return Outcome{}, ErrEmptyBounds
	}
	stroke := VerticalSwipeStroke(bounds, forward)
	return Outcome{Method: MethodSwipe, Stroke: &stroke, OK: s.DispatchGesture([]types.Stroke{stroke})}, nil
}

// TapStroke places the fallback tap near the right edge (forward) or left edge
func TapStroke(bounds types.Rect, padding int, forward bool) types.Stroke {
	x := bounds.Left + padding
	if forward {
		x = bounds.Right - padding
	}
	return types.Tap(x, bounds.CenterY())
}

// VerticalSwipeStroke swipes from the lower quarter to the upper quarter
// (forward) or the reverse.
func VerticalSwipeStroke(bounds types.Rect, forward bool) types.Stroke {
	top, bottom := float64(bounds.Top), float64(bounds.Bottom)
	lower := types.Point{X: bounds.CenterX(), Y: int(top*0.25 + bottom*0.75)}
	upper := types.Point{X: bounds.CenterX(), Y: int(top*0.75 + bottom*0.25)}
	if forward {
		return types.Swipe(lower, upper, SwipeStartDelayMs, SwipeDurationMs)
	}
	return types.Swipe(upper, lower, SwipeStartDelayMs, SwipeDurationMs)
}

func turnNode(s Strategy, node types.UINode, forward bool) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.LogPanic("pageturn", rec, string(debug.Stack()))
			ok = false
		}
	}()
	if forward {
		return s.TurnNext(node)
	}
	return s.TurnPrev(node)
}

// ========================================
// BFS
// ========================================

// FindFirst returns the shallowest node satisfying match, in level order.
// Nodes that cannot be read are skipped.
func FindFirst(root types.UINode, match func(types.UINode) bool) types.UINode {
	if root == nil {
		return nil
	}
	queue := []types.UINode{root}
	visited := 0
	for len(queue) > 0 && visited < maxVisitedNodes {
		node := queue[0]
		queue = queue[1:]
		visited++

		if safeMatch(match, node) {
			return node
		}
		queue = append(queue, safeChildren(node)...)
	}
	if len(queue) > 0 {
		logging.LogDebug("pageturn").
			Int("visited", visited).
			Int("pending", len(queue)).
			Msg("Node search limit reached")
	}
	return nil
}

func safeMatch(match func(types.UINode) bool, node types.UINode) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return match(node)
}

func safeChildren(node types.UINode) (children []types.UINode) {
	defer func() {
		if recover() != nil {
			children = nil
		}
	}()
	n := node.ChildCount()
	for i := 0; i < n; i++ {
		if child := safeChild(node, i); child != nil {
			children = append(children, child)
		}
	}
	return children
}

func safeChild(node types.UINode, i int) (child types.UINode) {
	defer func() {
		if recover() != nil {
			child = nil
		}
	}()
	return node.Child(i)
}

func safeBounds(node types.UINode) (r types.Rect, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return node.BoundsOnScreen(), true
}
