package simulator

import (
	"math"
	"testing"

	"fibonacci-trading-bot/config"
	"fibonacci-trading-bot/internal/market"
)

const baseTime = 1700000000

func testSeries(bars ...market.Bar) *market.Series {
	out := make([]market.Bar, len(bars))
	for i, b := range bars {
		b.Time = baseTime + int64(i)*3600
		if b.Open == 0 {
			b.Open = b.Low
		}
		if b.Close == 0 {
			b.Close = (b.High + b.Low) / 2
		}
		out[i] = b
	}
	return market.NewSeries(out)
}

func testTradingConfig() *config.TradingConfig {
	return &config.TradingConfig{
		TargetProfit:   1.0,
		CommissionRate: 0.0006,
	}
}

func shortPosition(openedAtBar int) Position {
	return Position{
		Symbol:     "BTCUSDT",
		EntryPrice: 96180,
		FibHigh:    100000,
		FibLow:     90000,
		Case:       1,
		OpenedAt:   baseTime + int64(openedAtBar)*3600,
	}
}

func TestSimulateTakeProfitHit(t *testing.T) {
	// Bar 0 touches the target before the entry exists and must be
	// ignored; bar 2 is the real hit.
	series := testSeries(
		market.Bar{High: 96000, Low: 95000},
		market.Bar{High: 96500, Low: 95600},
		market.Bar{High: 96300, Low: 95400},
	)
	sim := NewPathSimulator(testTradingConfig())

	r := sim.Simulate(shortPosition(1), 95500, 99000, series)
	if r.Status != StatusTP {
		t.Fatalf("Expected TP, got %s", r.Status)
	}
	if r.HitTime != baseTime+2*3600 {
		t.Errorf("Expected hit on bar 2, got time %d", r.HitTime)
	}
	if r.ReferencePrice != 95500 {
		t.Errorf("Expected reference price 95500, got %v", r.ReferencePrice)
	}
	// Quantity is sized so a target hit grosses exactly the configured
	// profit, whatever the entry price.
	if math.Abs(r.GrossPnl-1.0) > 1e-9 {
		t.Errorf("Expected gross PnL equal to target profit 1.0, got %v", r.GrossPnl)
	}
}

func TestSimulateStopLossHit(t *testing.T) {
	series := testSeries(
		market.Bar{High: 96500, Low: 95600},
		market.Bar{High: 99200, Low: 96000},
	)
	sim := NewPathSimulator(testTradingConfig())

	r := sim.Simulate(shortPosition(0), 95500, 99000, series)
	if r.Status != StatusSL {
		t.Fatalf("Expected SL, got %s", r.Status)
	}
	if r.ReferencePrice != 99000 {
		t.Errorf("Expected reference price 99000, got %v", r.ReferencePrice)
	}
	if r.GrossPnl >= 0 {
		t.Errorf("Expected a loss on SL, got %v", r.GrossPnl)
	}
}

func TestSimulateSameBarTieResolvesToStop(t *testing.T) {
	series := testSeries(
		market.Bar{High: 99200, Low: 95200},
	)
	sim := NewPathSimulator(testTradingConfig())

	for i := 0; i < 3; i++ {
		r := sim.Simulate(shortPosition(0), 95500, 99000, series)
		if r.Status != StatusSL {
			t.Fatalf("Run %d: expected SL on a bar touching both levels, got %s", i, r.Status)
		}
	}
}

func TestSimulateRunningWithFloatingPnl(t *testing.T) {
	series := testSeries(
		market.Bar{High: 96500, Low: 95600, Close: 96200},
		market.Bar{High: 96800, Low: 95700, Close: 96000},
	)
	sim := NewPathSimulator(testTradingConfig())

	r := sim.Simulate(shortPosition(0), 95500, 99000, series)
	if r.Status != StatusRunning {
		t.Fatalf("Expected RUNNING, got %s", r.Status)
	}
	if r.ReferencePrice != 96000 {
		t.Errorf("Expected reference at last close 96000, got %v", r.ReferencePrice)
	}
	want := (96180 - 96000.0) * r.Quantity
	if math.Abs(r.GrossPnl-want) > 1e-9 {
		t.Errorf("Expected floating PnL %v, got %v", want, r.GrossPnl)
	}
}

func TestSimulateEntryPastEndUsesFinalBar(t *testing.T) {
	// The SL touch on bar 0 predates the entry; only the final bar counts.
	series := testSeries(
		market.Bar{High: 99500, Low: 96000},
		market.Bar{High: 97000, Low: 96000},
		market.Bar{High: 96500, Low: 95400},
	)
	sim := NewPathSimulator(testTradingConfig())

	pos := shortPosition(0)
	pos.OpenedAt = baseTime + 100*3600
	r := sim.Simulate(pos, 95500, 99000, series)
	if r.Status != StatusTP {
		t.Errorf("Expected TP from the final bar, got %s", r.Status)
	}
}

func TestSimulateNoData(t *testing.T) {
	sim := NewPathSimulator(testTradingConfig())

	r := sim.Simulate(shortPosition(0), 95500, 99000, market.NewSeries(nil))
	if r.Status != StatusNoData {
		t.Errorf("Expected NO_DATA on an empty series, got %s", r.Status)
	}
}

func TestSimulateDisabledStop(t *testing.T) {
	series := testSeries(
		market.Bar{High: 105000, Low: 96000},
		market.Bar{High: 97000, Low: 95000},
	)
	sim := NewPathSimulator(testTradingConfig())

	r := sim.Simulate(shortPosition(0), 95500, 0, series)
	if r.Status != StatusTP {
		t.Errorf("Expected TP with the stop disabled, got %s", r.Status)
	}
}

func TestSimulateCommission(t *testing.T) {
	cfg := testTradingConfig()
	cfg.CommissionsEnabled = true
	series := testSeries(
		market.Bar{High: 96300, Low: 95400},
	)
	sim := NewPathSimulator(cfg)

	r := sim.Simulate(shortPosition(0), 95500, 99000, series)
	if r.Status != StatusTP {
		t.Fatalf("Expected TP, got %s", r.Status)
	}
	wantFee := (96180 + 95500.0) * r.Quantity * 0.0006
	if math.Abs(r.Commission-wantFee) > 1e-9 {
		t.Errorf("Expected commission %v, got %v", wantFee, r.Commission)
	}
	if math.Abs(r.NetPnl-(r.GrossPnl-wantFee)) > 1e-9 {
		t.Errorf("Expected net = gross - commission, got %v", r.NetPnl)
	}
}

func TestSimulateIdempotent(t *testing.T) {
	series := testSeries(
		market.Bar{High: 96500, Low: 95600},
		market.Bar{High: 99200, Low: 95200},
	)
	sim := NewPathSimulator(testTradingConfig())

	first := sim.Simulate(shortPosition(0), 95500, 99000, series)
	second := sim.Simulate(shortPosition(0), 95500, 99000, series)
	if first != second {
		t.Errorf("Expected identical results, got %+v and %+v", first, second)
	}
}

func TestQuantityZeroDistance(t *testing.T) {
	sim := NewPathSimulator(testTradingConfig())

	if q := sim.Quantity(96180, 96180); q != 0 {
		t.Errorf("Expected zero quantity for zero distance, got %v", q)
	}
}
