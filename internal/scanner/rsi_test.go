package scanner

import (
	"math"
	"testing"

	"fibonacci-trading-bot/internal/market"
)

func seriesFromCloses(closes ...float64) *market.Series {
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Time:  int64(i) * 14400,
			Open:  c,
			High:  c + 1,
			Low:   c - 1,
			Close: c,
		}
	}
	return market.NewSeries(bars)
}

func TestRSIWilderSmoothing(t *testing.T) {
	// Changes +1, +1, -1, +1 with period 3.
	// Seed averages: gain 2/3, loss 1/3. After the last change:
	// gain (2/3*2+1)/3 = 7/9, loss (1/3*2)/3 = 2/9, RS 3.5.
	series := seriesFromCloses(10, 11, 12, 11, 12)

	value, ok := RSI(series, 3)
	if !ok {
		t.Fatal("Expected RSI to be computable")
	}
	want := 100 - 100/(1+3.5)
	if math.Abs(value-want) > 1e-9 {
		t.Errorf("Expected RSI %v, got %v", want, value)
	}
}

func TestRSIExtremes(t *testing.T) {
	up, ok := RSI(seriesFromCloses(10, 11, 12, 13, 14), 3)
	if !ok || up != 100 {
		t.Errorf("Expected RSI 100 for all gains, got %v (ok=%v)", up, ok)
	}

	down, ok := RSI(seriesFromCloses(14, 13, 12, 11, 10), 3)
	if !ok || down != 0 {
		t.Errorf("Expected RSI 0 for all losses, got %v (ok=%v)", down, ok)
	}
}

func TestRSINeedsEnoughBars(t *testing.T) {
	if _, ok := RSI(seriesFromCloses(10, 11, 12), 14); ok {
		t.Error("Expected RSI to report insufficient history")
	}
	if _, ok := RSI(nil, 14); ok {
		t.Error("Expected RSI to handle a nil series")
	}
}
