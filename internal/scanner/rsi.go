package scanner

import "fibonacci-trading-bot/internal/market"

// RSI computes the Relative Strength Index over closes with Wilder
// smoothing. Returns false when the series has fewer than period+1 bars.
func RSI(series *market.Series, period int) (float64, bool) {
	if period <= 0 || series == nil || series.Len() < period+1 {
		return 0, false
	}

	bars := series.Bars()

	var gain, loss float64
	for i := 1; i <= period; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		var g, l float64
		if change > 0 {
			g = change
		} else {
			l = -change
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
