package simulator

import (
	"testing"

	"fibonacci-trading-bot/internal/market"
)

func pendingOrder() PendingOrder {
	return PendingOrder{
		Symbol:      "BTCUSDT",
		Price:       96180,
		FibHigh:     100000,
		FibLow:      90000,
		Case:        1,
		CreatedAt:   baseTime,
		CancelBelow: 92000,
	}
}

func TestPendingFillsThenHitsTarget(t *testing.T) {
	series := testSeries(
		market.Bar{High: 96000, Low: 95000},
		market.Bar{High: 96400, Low: 95800},
		market.Bar{High: 96200, Low: 95300},
	)
	sim := NewPendingOrderSimulator(NewPathSimulator(testTradingConfig()))

	r := sim.Simulate(pendingOrder(), 95500, 99000, series)
	if r.Status != StatusTP {
		t.Fatalf("Expected TP after fill, got %s", r.Status)
	}
	if r.HitTime != baseTime+2*3600 {
		t.Errorf("Expected hit on bar 2, got time %d", r.HitTime)
	}
}

func TestPendingCancelledBeforeFill(t *testing.T) {
	series := testSeries(
		market.Bar{High: 95000, Low: 93000},
		market.Bar{High: 93500, Low: 91800},
		market.Bar{High: 97000, Low: 92500},
	)
	sim := NewPendingOrderSimulator(NewPathSimulator(testTradingConfig()))

	r := sim.Simulate(pendingOrder(), 95500, 99000, series)
	if r.Status != StatusCancelled {
		t.Fatalf("Expected CANCELLED, got %s", r.Status)
	}
	if r.HitTime != baseTime+3600 {
		t.Errorf("Expected cancellation on bar 1, got time %d", r.HitTime)
	}
}

func TestPendingSameBarFillAndCancelResolvesCancelled(t *testing.T) {
	series := testSeries(
		market.Bar{High: 96500, Low: 91500},
	)
	sim := NewPendingOrderSimulator(NewPathSimulator(testTradingConfig()))

	r := sim.Simulate(pendingOrder(), 95500, 99000, series)
	if r.Status != StatusCancelled {
		t.Errorf("Expected CANCELLED on a bar touching both levels, got %s", r.Status)
	}
}

func TestPendingNeverFilled(t *testing.T) {
	series := testSeries(
		market.Bar{High: 95000, Low: 93000},
		market.Bar{High: 94500, Low: 93500},
	)
	sim := NewPendingOrderSimulator(NewPathSimulator(testTradingConfig()))

	r := sim.Simulate(pendingOrder(), 95500, 99000, series)
	if r.Status != StatusPending {
		t.Errorf("Expected PENDING, got %s", r.Status)
	}
}

func TestPendingNoCancelLevelWaitsForFill(t *testing.T) {
	order := pendingOrder()
	order.CancelBelow = 0
	series := testSeries(
		market.Bar{High: 95000, Low: 90500},
		market.Bar{High: 96300, Low: 94000},
		market.Bar{High: 96000, Low: 95200},
	)
	sim := NewPendingOrderSimulator(NewPathSimulator(testTradingConfig()))

	r := sim.Simulate(order, 95500, 99000, series)
	if r.Status != StatusTP {
		t.Errorf("Expected fill and TP with cancellation disabled, got %s", r.Status)
	}
}
