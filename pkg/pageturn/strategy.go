package pageturn

import (
	"strings"

	"AutoFlip/pkg/types"
)

// Strategy locates a paginated control in a UI tree and turns it.
// The set is closed: ScrollStrategy and GranularityStrategy.
type Strategy interface {
	Name() string
	Match(node types.UINode) bool
	TurnNext(node types.UINode) bool
	TurnPrev(node types.UINode) bool

	sealed()
}

const (
	StrategyScroll      = "scroll"
	StrategyGranularity = "granularity"
)

var (
	// ScrollStrategy pages containers that scroll as a whole (pagers, lists)
	ScrollStrategy Strategy = scrollStrategy{}
	// GranularityStrategy pages text views that move by page granularity
	GranularityStrategy Strategy = granularityStrategy{}
)

// StrategyByName resolves a configured strategy name
func StrategyByName(name string) (Strategy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case StrategyScroll:
		return ScrollStrategy, true
	case StrategyGranularity:
		return GranularityStrategy, true
	}
	return nil, false
}

// StrategyNames lists every known strategy
func StrategyNames() []string {
	return []string{StrategyScroll, StrategyGranularity}
}

type scrollStrategy struct{}

var pagedContainers = []string{"ViewPager", "ViewPager2", "RecyclerView", "ScrollView", "HorizontalScrollView", "ListView", "WebView"}

func (scrollStrategy) Name() string { return StrategyScroll }

func (scrollStrategy) Match(node types.UINode) bool {
	if !types.Supports(node, types.ActionScrollForward) && !types.Supports(node, types.ActionScrollBackward) {
		return false
	}
	class := node.ClassName()
	if i := strings.LastIndex(class, "."); i >= 0 {
		class = class[i+1:]
	}
	for _, c := range pagedContainers {
		if class == c {
			return true
		}
	}
	return false
}

func (scrollStrategy) TurnNext(node types.UINode) bool {
	return node.PerformAction(types.ActionScrollForward, nil)
}

func (scrollStrategy) TurnPrev(node types.UINode) bool {
	return node.PerformAction(types.ActionScrollBackward, nil)
}

func (scrollStrategy) sealed() {}

type granularityStrategy struct{}

func (granularityStrategy) Name() string { return StrategyGranularity }

func (granularityStrategy) Match(node types.UINode) bool {
	return types.Supports(node, types.ActionNextAtMovementGranularity) ||
		types.Supports(node, types.ActionPreviousAtMovementGranularity)
}

func (granularityStrategy) TurnNext(node types.UINode) bool {
	return node.PerformAction(types.ActionNextAtMovementGranularity, pageGranularity())
}

func (granularityStrategy) TurnPrev(node types.UINode) bool {
	return node.PerformAction(types.ActionPreviousAtMovementGranularity, pageGranularity())
}

func (granularityStrategy) sealed() {}

func pageGranularity() map[string]int {
	return map[string]int{types.ArgMovementGranularity: types.GranularityPage}
}
