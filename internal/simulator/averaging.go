package simulator

import (
	"fibonacci-trading-bot/config"
)

// AveragingEngine folds additional fills into an open position,
// recomputing the volume-weighted entry and re-pointing the target.
type AveragingEngine struct {
	dynamicTPPct float64
}

func NewAveragingEngine(cfg *config.StrategyConfig) *AveragingEngine {
	return &AveragingEngine{dynamicTPPct: cfg.DynamicTakeProfitPct}
}

// Merge appends exec to the position, recomputes the weighted entry and
// returns the take profit to use from here on. A position with more
// than one execution targets the dynamic level: averaging moved the
// entry further from the LOW, so the original target would give up
// profit. The substitution is a fixed level, not incremental, so a
// third or fourth fill keeps the same target.
func (e *AveragingEngine) Merge(pos *Position, exec Execution, currentTP float64) float64 {
	pos.Executions = append(pos.Executions, exec)

	var notional, qty float64
	for _, ex := range pos.Executions {
		notional += ex.Price * ex.Quantity
		qty += ex.Quantity
	}
	if qty > 0 {
		pos.EntryPrice = notional / qty
		pos.Quantity = qty
	}

	if len(pos.Executions) > 1 {
		return pos.Level(e.dynamicTPPct)
	}
	return currentTP
}
