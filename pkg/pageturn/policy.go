package pageturn

import (
	"AutoFlip/pkg/logging"
)

// DefaultPriorityKey holds the strategy list used for packages without their own entry
const DefaultPriorityKey = "*"

const DefaultTapPadding = 50

// Policy configures which strategies are tried for a package and how the
// gesture fallback is placed.
type Policy struct {
	// DisableStructural forces an empty strategy list for every package
	DisableStructural bool
	// Priority maps a package id (or DefaultPriorityKey) to strategy names in order
	Priority          map[string][]string
	VerticalWhitelist []string
	TapPadding        int
}

// DefaultPolicy 默认策略: 结构化翻页关闭, 仅使用手势
func DefaultPolicy() Policy {
	return Policy{
		DisableStructural: true,
		Priority: map[string][]string{
			DefaultPriorityKey: {StrategyScroll, StrategyGranularity},
		},
		TapPadding: DefaultTapPadding,
	}
}

// StrategiesFor returns the ordered candidate strategies for pkg
func (p Policy) StrategiesFor(pkg string) []Strategy {
	if p.DisableStructural {
		return nil
	}
	names, ok := p.Priority[pkg]
	if !ok {
		names = p.Priority[DefaultPriorityKey]
	}

	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		s, ok := StrategyByName(name)
		if !ok {
			logging.LogWarn("pageturn").Str("package", pkg).Str("strategy", name).Msg("Unknown strategy ignored")
			continue
		}
		out = append(out, s)
	}
	return out
}

// VerticalAllowed reports whether pkg is whitelisted for vertical turning
func (p Policy) VerticalAllowed(pkg string) bool {
	if pkg == "" {
		return false
	}
	for _, w := range p.VerticalWhitelist {
		if w == pkg {
			return true
		}
	}
	return false
}

func (p Policy) padding() int {
	if p.TapPadding < 0 {
		return 0
	}
	return p.TapPadding
}
