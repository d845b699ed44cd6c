package fibonacci

import (
	"fibonacci-trading-bot/config"
	"fibonacci-trading-bot/internal/market"
	"fibonacci-trading-bot/internal/zigzag"
)

// recentBarGuard is how many trailing bars may sit at a partial
// invalidation level without tripping it. An in-progress bar routinely
// wicks into a level it does not close through.
const recentBarGuard = 2

// Selection is the swing the strategy trades against plus the narrowest
// case still eligible on it.
type Selection struct {
	Swing        Swing `json:"swing"`
	MinValidCase int   `json:"min_valid_case"`
}

// Selector picks the most relevant swing out of a pivot skeleton.
type Selector struct {
	cfg *config.StrategyConfig
}

func NewSelector(cfg *config.StrategyConfig) *Selector {
	return &Selector{cfg: cfg}
}

// Select walks HIGH pivots newest-first and returns the first one whose
// swing survives invalidation. The newest pivot is skipped when it is
// itself a HIGH: the swing it anchors is too young to trade. Returns
// false when every candidate is rejected.
func (s *Selector) Select(series *market.Series, pivots []zigzag.Pivot) (Selection, bool) {
	if series.Len() == 0 || len(pivots) == 0 {
		return Selection{}, false
	}

	last := len(pivots) - 1
	for i := last; i >= 0; i-- {
		p := pivots[i]
		if p.Kind != zigzag.KindHigh {
			continue
		}
		if i == last {
			continue
		}

		if sel, ok := s.buildSwing(series, p); ok {
			return sel, true
		}
	}

	return Selection{}, false
}

// LargerSwing searches past an accepted swing's HIGH for an older,
// higher HIGH enclosing it. The result anchors the secondary cover
// order placed after a case 2/3/4 entry.
func (s *Selector) LargerSwing(series *market.Series, pivots []zigzag.Pivot, current Swing) (Swing, bool) {
	for i := len(pivots) - 1; i >= 0; i-- {
		p := pivots[i]
		if p.Kind != zigzag.KindHigh {
			continue
		}
		if p.Index >= current.High.Index || p.Price <= current.High.Price {
			continue
		}

		if sel, ok := s.buildSwing(series, p); ok {
			return sel.Swing, true
		}
	}
	return Swing{}, false
}

func (s *Selector) buildSwing(series *market.Series, high zigzag.Pivot) (Selection, bool) {
	lowIdx := series.LowestLowAfter(high.Index)
	if lowIdx < 0 {
		return Selection{}, false
	}

	lowBar := series.Bar(lowIdx)
	swing := Swing{
		High: high,
		Low:  zigzag.Pivot{Index: lowIdx, Time: lowBar.Time, Price: lowBar.Low, Kind: zigzag.KindLow},
	}
	if swing.Range() <= 0 {
		return Selection{}, false
	}

	lastIdx := series.Len() - 1
	if series.AnyHighAtOrAbove(lowIdx+1, lastIdx, swing.Level(s.cfg.InvalidationPct)) {
		return Selection{}, false
	}
	if s.cfg.SecondaryInvalidationPct < 1.0 &&
		series.AnyHighAtOrAbove(lowIdx+1, lastIdx, swing.Level(s.cfg.SecondaryInvalidationPct)) {
		return Selection{}, false
	}

	return Selection{
		Swing:        swing,
		MinValidCase: s.minValidCase(series, swing, lowIdx),
	}, true
}

// minValidCase narrows the eligible case set once price has revisited a
// deeper retracement. Levels are checked deepest-first so the narrowest
// surviving case wins. The trailing recentBarGuard bars are excluded:
// price sitting at a level right now does not burn it.
func (s *Selector) minValidCase(series *market.Series, swing Swing, lowIdx int) int {
	to := series.Len() - 1 - recentBarGuard
	for _, c := range []int{4, 3, 2} {
		level := swing.Level(s.cfg.Case(c).ZoneMin)
		if series.AnyHighAtOrAbove(lowIdx+1, to, level) {
			return c
		}
	}
	return 1
}
