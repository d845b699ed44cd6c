package fibonacci

import (
	"strconv"

	"fibonacci-trading-bot/config"
	"fibonacci-trading-bot/internal/market"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Order is one order a case decision implies. LevelPct keeps the
// retracement fraction the price was derived from so downstream
// simulation can reason about the level, not just the price.
type Order struct {
	Type     OrderType `json:"type"`
	Price    float64   `json:"price"`
	LevelPct float64   `json:"level_pct"`
	Linked   bool      `json:"linked"` // averaging order tied to the primary
}

// Decision is a classified entry opportunity: the case, the orders it
// implies and the exit levels, all in absolute prices.
type Decision struct {
	Case        int     `json:"case"`
	Secondary   bool    `json:"secondary"` // the "1++" cover variant
	Swing       Swing   `json:"swing"`
	Orders      []Order `json:"orders"`
	TakeProfit  float64 `json:"take_profit"`
	StopLoss    float64 `json:"stop_loss"`    // 0 when the stop is disabled
	CancelBelow float64 `json:"cancel_below"` // 0 when pending orders never cancel
}

// Label renders the case number the way traders refer to it.
func (d Decision) Label() string {
	if d.Secondary {
		return "1++"
	}
	return strconv.Itoa(d.Case)
}

// Classifier maps a selected swing and the current price to the case
// decision table.
type Classifier struct {
	cfg *config.StrategyConfig
}

func NewClassifier(cfg *config.StrategyConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify returns the case decision for the current price, or false
// when no case applies: price outside every zone, the case narrower
// than MinValidCase allows, or a limit level that has already run.
func (c *Classifier) Classify(series *market.Series, sel Selection, price float64) (Decision, bool) {
	swing := sel.Swing
	if swing.Range() <= 0 {
		return Decision{}, false
	}

	pct := swing.PctOf(price)
	num := 0
	var cs config.CaseSettings
	for n := 1; n <= 4; n++ {
		settings := c.cfg.Case(n)
		if pct >= settings.ZoneMin && pct < settings.ZoneMax {
			num, cs = n, settings
			break
		}
	}
	if num == 0 || sel.MinValidCase > num {
		return Decision{}, false
	}

	d := Decision{
		Case:       num,
		Swing:      swing,
		TakeProfit: swing.Level(cs.TakeProfitPct),
	}
	if cs.StopLossPct > 0 {
		d.StopLoss = swing.Level(cs.StopLossPct)
	}
	if cs.CancelBelowPct > 0 {
		d.CancelBelow = swing.Level(cs.CancelBelowPct)
	}

	switch num {
	case 2, 4:
		d.Orders = append(d.Orders, Order{Type: OrderTypeMarket, Price: price, LevelPct: pct})
	default:
		limit := swing.Level(cs.ZoneMax)
		if c.alreadyRun(series, swing, limit) {
			return Decision{}, false
		}
		d.Orders = append(d.Orders, Order{Type: OrderTypeLimit, Price: limit, LevelPct: cs.ZoneMax})
	}

	for _, lvl := range cs.LinkedLevels {
		d.Orders = append(d.Orders, Order{
			Type:     OrderTypeLimit,
			Price:    swing.Level(lvl),
			LevelPct: lvl,
			Linked:   true,
		})
	}

	return d, true
}

// SecondaryCover builds the "1++" cover limit on a larger enclosing
// swing, re-anchoring the case 1 levels on it. The stop is the larger
// swing's invalidation level rather than a per-case one.
func (c *Classifier) SecondaryCover(larger Swing) Decision {
	cs := c.cfg.Case(1)
	return Decision{
		Case:       1,
		Secondary:  true,
		Swing:      larger,
		TakeProfit: larger.Level(cs.TakeProfitPct),
		StopLoss:   larger.Level(c.cfg.InvalidationPct),
		Orders: []Order{{
			Type:     OrderTypeLimit,
			Price:    larger.Level(cs.ZoneMax),
			LevelPct: cs.ZoneMax,
		}},
	}
}

// alreadyRun reports whether a limit level was touched by any closed
// bar between the swing LOW and the present bar. A level that already
// filled once is not offered again. The in-progress bar is deliberately
// left out of the window: a touch on it would fill the order being
// placed, not burn the level.
func (c *Classifier) alreadyRun(series *market.Series, swing Swing, level float64) bool {
	return series.AnyHighAtOrAbove(swing.Low.Index+1, series.Len()-2, level)
}
