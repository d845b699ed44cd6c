package simulator

import (
	"math"

	"fibonacci-trading-bot/config"
	"fibonacci-trading-bot/internal/market"
)

// PathSimulator replays bars forward from an entry point. SHORT
// convention throughout: price rising into the stop loses, price
// falling into the target wins.
type PathSimulator struct {
	targetProfit   float64
	commissionRate float64
	commissions    bool
}

func NewPathSimulator(cfg *config.TradingConfig) *PathSimulator {
	return &PathSimulator{
		targetProfit:   cfg.TargetProfit,
		commissionRate: cfg.CommissionRate,
		commissions:    cfg.CommissionsEnabled,
	}
}

// Quantity sizes the position so a target hit grosses exactly the
// configured profit. A zero entry-to-target distance sizes to zero
// rather than letting infinity leak into PnL.
func (s *PathSimulator) Quantity(entry, tpPrice float64) float64 {
	dist := math.Abs(entry - tpPrice)
	if dist == 0 {
		return 0
	}
	return s.targetProfit / dist
}

// Simulate scans bars from the position's entry time until the stop or
// the target is touched. A bar touching both resolves as the stop, the
// worst case, so simulated performance is never overstated. Pass a
// non-positive slPrice to disable the stop. When the data runs out
// mid-trade the final close is checked against both levels before the
// trade is reported still RUNNING.
func (s *PathSimulator) Simulate(pos Position, tpPrice, slPrice float64, series *market.Series) Result {
	if series.Len() == 0 {
		return Result{Status: StatusNoData}
	}
	if slPrice <= 0 {
		slPrice = math.Inf(1)
	}

	qty := pos.Quantity
	if qty == 0 {
		qty = s.Quantity(pos.EntryPrice, tpPrice)
	}

	start := series.IndexAt(pos.OpenedAt)
	if start < 0 {
		// Entry postdates the data: only the final bar can say anything.
		start = series.Len() - 1
	}

	for i := start; i < series.Len(); i++ {
		bar := series.Bar(i)
		if bar.High >= slPrice {
			return s.outcome(pos, StatusSL, bar.Time, slPrice, qty)
		}
		if bar.Low <= tpPrice {
			return s.outcome(pos, StatusTP, bar.Time, tpPrice, qty)
		}
	}

	last, _ := series.Last()
	if last.Close >= slPrice {
		return s.outcome(pos, StatusSL, last.Time, slPrice, qty)
	}
	if last.Close <= tpPrice {
		return s.outcome(pos, StatusTP, last.Time, tpPrice, qty)
	}

	floating := (pos.EntryPrice - last.Close) * qty
	return Result{
		Status:         StatusRunning,
		ReferencePrice: last.Close,
		Quantity:       qty,
		GrossPnl:       floating,
		NetPnl:         floating,
	}
}

func (s *PathSimulator) outcome(pos Position, st Status, hitTime int64, exit, qty float64) Result {
	gross := (pos.EntryPrice - exit) * qty
	var fee float64
	if s.commissions {
		fee = (pos.EntryPrice + exit) * qty * s.commissionRate
	}
	return Result{
		Status:         st,
		HitTime:        hitTime,
		ReferencePrice: exit,
		Quantity:       qty,
		GrossPnl:       gross,
		Commission:     fee,
		NetPnl:         gross - fee,
	}
}
