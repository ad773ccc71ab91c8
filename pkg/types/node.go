package types

// ActionID identifies an action a UI node may support
type ActionID int

const (
	ActionClick ActionID = iota + 1
	ActionScrollForward
	ActionScrollBackward
	ActionNextAtMovementGranularity
	ActionPreviousAtMovementGranularity
)

func (a ActionID) String() string {
	switch a {
	case ActionClick:
		return "click"
	case ActionScrollForward:
		return "scroll_forward"
	case ActionScrollBackward:
		return "scroll_backward"
	case ActionNextAtMovementGranularity:
		return "next_at_granularity"
	case ActionPreviousAtMovementGranularity:
		return "previous_at_granularity"
	default:
		return "unknown"
	}
}

// Movement granularity argument key and values for the granularity actions
const (
	ArgMovementGranularity = "granularity"
	GranularityPage        = 16
)

// GlobalAction is a system-wide navigation action
type GlobalAction int

const (
	GlobalHome GlobalAction = iota + 1
	GlobalBack
)

func (g GlobalAction) String() string {
	switch g {
	case GlobalHome:
		return "home"
	case GlobalBack:
		return "back"
	default:
		return "unknown"
	}
}

// UINode is a borrowed handle into a foreign application's UI tree.
// Handles are valid for a single resolution and must not be cached.
// Child returns nil when the child can no longer be read.
type UINode interface {
	ClassName() string
	ChildCount() int
	Child(i int) UINode
	BoundsOnScreen() Rect
	SupportedActions() []ActionID
	PerformAction(id ActionID, args map[string]int) bool
}

// Supports reports whether node lists action id
func Supports(node UINode, id ActionID) bool {
	for _, a := range node.SupportedActions() {
		if a == id {
			return true
		}
	}
	return false
}
