package simulator

import (
	"fibonacci-trading-bot/internal/market"
)

// PendingOrderSimulator models the pre-fill life of a limit order
// before handing off to the path replay.
type PendingOrderSimulator struct {
	path *PathSimulator
}

func NewPendingOrderSimulator(path *PathSimulator) *PendingOrderSimulator {
	return &PendingOrderSimulator{path: path}
}

// Simulate tracks the order from its creation bar. Price rising to the
// limit fills it; price dropping through the cancellation level first
// cancels it. A bar doing both in one step cancels, mirroring the
// stop-first tie-break of the filled phase. Once filled, the replay
// continues from the fill bar exactly as PathSimulator would.
func (s *PendingOrderSimulator) Simulate(order PendingOrder, tpPrice, slPrice float64, series *market.Series) Result {
	if series.Len() == 0 {
		return Result{Status: StatusNoData}
	}

	start := series.IndexAt(order.CreatedAt)
	if start < 0 {
		start = series.Len() - 1
	}

	for i := start; i < series.Len(); i++ {
		bar := series.Bar(i)
		if order.CancelBelow > 0 && bar.Low <= order.CancelBelow {
			return Result{
				Status:         StatusCancelled,
				HitTime:        bar.Time,
				ReferencePrice: order.CancelBelow,
			}
		}
		if bar.High >= order.Price {
			qty := s.path.Quantity(order.Price, tpPrice)
			pos := Position{
				Symbol:     order.Symbol,
				EntryPrice: order.Price,
				Quantity:   qty,
				FibHigh:    order.FibHigh,
				FibLow:     order.FibLow,
				Case:       order.Case,
				OpenedAt:   bar.Time,
				Executions: []Execution{{Price: order.Price, Quantity: qty, Time: bar.Time}},
			}
			return s.path.Simulate(pos, tpPrice, slPrice, series)
		}
	}

	last, _ := series.Last()
	return Result{Status: StatusPending, ReferencePrice: last.Close}
}
