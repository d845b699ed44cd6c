// Package metrics computes performance statistics over closed trades.
package metrics

import (
	"math"

	"fibonacci-trading-bot/internal/paper"
)

// CaseSummary is the per-case slice of the overall statistics.
type CaseSummary struct {
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
	NetPnl  float64 `json:"net_pnl"`
}

// Summary aggregates a trade history. Ratios that would divide by zero
// are reported as zero.
type Summary struct {
	Trades       int                 `json:"trades"`
	Wins         int                 `json:"wins"`
	Losses       int                 `json:"losses"`
	WinRate      float64             `json:"win_rate"`
	GrossProfit  float64             `json:"gross_profit"`
	GrossLoss    float64             `json:"gross_loss"`
	NetPnl       float64             `json:"net_pnl"`
	ProfitFactor float64             `json:"profit_factor"`
	Expectancy   float64             `json:"expectancy"`
	MaxDrawdown  float64             `json:"max_drawdown"`
	Sharpe       float64             `json:"sharpe"`
	Sortino      float64             `json:"sortino"`
	ByCase       map[int]CaseSummary `json:"by_case"`
}

// Compute builds a Summary from closed trades. Wins are trades with a
// positive net PnL; break-even trades count as losses.
func Compute(trades []paper.ClosedTrade) Summary {
	s := Summary{ByCase: make(map[int]CaseSummary)}
	if len(trades) == 0 {
		return s
	}

	returns := make([]float64, len(trades))
	for i, t := range trades {
		s.Trades++
		s.NetPnl += t.NetPnl
		returns[i] = t.NetPnl

		if t.NetPnl > 0 {
			s.Wins++
			s.GrossProfit += t.NetPnl
		} else {
			s.Losses++
			s.GrossLoss += -t.NetPnl
		}

		cs := s.ByCase[t.Case]
		cs.Trades++
		cs.NetPnl += t.NetPnl
		if t.NetPnl > 0 {
			cs.Wins++
		}
		s.ByCase[t.Case] = cs
	}

	s.WinRate = float64(s.Wins) / float64(s.Trades)
	for c, cs := range s.ByCase {
		cs.WinRate = float64(cs.Wins) / float64(cs.Trades)
		s.ByCase[c] = cs
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	s.Expectancy = s.NetPnl / float64(s.Trades)
	s.MaxDrawdown = maxDrawdown(trades)
	s.Sharpe = sharpe(returns)
	s.Sortino = sortino(returns)

	return s
}

// maxDrawdown is the deepest peak-to-trough drop of the cumulative
// equity curve, in PnL units.
func maxDrawdown(trades []paper.ClosedTrade) float64 {
	var equity, peak, worst float64
	for _, t := range trades {
		equity += t.NetPnl
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > worst {
			worst = dd
		}
	}
	return worst
}

func sharpe(returns []float64) float64 {
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std
}

// sortino penalizes only downside volatility.
func sortino(returns []float64) float64 {
	mean, _ := meanStd(returns)
	var down float64
	for _, r := range returns {
		if r < 0 {
			down += r * r
		}
	}
	downside := math.Sqrt(down / float64(len(returns)))
	if downside == 0 {
		return 0
	}
	return mean / downside
}

func meanStd(values []float64) (float64, float64) {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / n)
}
