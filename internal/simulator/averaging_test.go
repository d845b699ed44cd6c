package simulator

import (
	"math"
	"testing"

	"fibonacci-trading-bot/config"
)

func testEngine() *AveragingEngine {
	return NewAveragingEngine(&config.StrategyConfig{DynamicTakeProfitPct: 0.60})
}

func TestMergeWeightedEntry(t *testing.T) {
	pos := Position{
		EntryPrice: 100,
		Quantity:   1,
		FibHigh:    200,
		FibLow:     50,
		Executions: []Execution{{Price: 100, Quantity: 1}},
	}

	testEngine().Merge(&pos, Execution{Price: 120, Quantity: 1}, 90)

	if pos.EntryPrice != 110 {
		t.Errorf("Expected merged entry 110, got %v", pos.EntryPrice)
	}
	if pos.Quantity != 2 {
		t.Errorf("Expected merged quantity 2, got %v", pos.Quantity)
	}
}

func TestMergeUnevenQuantities(t *testing.T) {
	pos := Position{
		EntryPrice: 96180,
		Quantity:   0.0312,
		FibHigh:    100000,
		FibLow:     90000,
		Executions: []Execution{{Price: 96180, Quantity: 0.0312}},
	}

	testEngine().Merge(&pos, Execution{Price: 97860, Quantity: 0.0306}, 95500)

	want := (96180*0.0312 + 97860*0.0306) / (0.0312 + 0.0306)
	if math.Abs(pos.EntryPrice-want) > 0.01 {
		t.Errorf("Expected merged entry %.2f, got %v", want, pos.EntryPrice)
	}
}

func TestMergeRepointsTakeProfitOnce(t *testing.T) {
	engine := testEngine()
	pos := Position{
		EntryPrice: 96180,
		Quantity:   1,
		FibHigh:    100000,
		FibLow:     90000,
	}

	// First fill keeps the original target.
	tp := engine.Merge(&pos, Execution{Price: 96180, Quantity: 1}, 95500)
	if tp != 95500 {
		t.Errorf("Expected original TP 95500 after a single fill, got %v", tp)
	}

	// Second fill moves it to the dynamic 60% level.
	tp = engine.Merge(&pos, Execution{Price: 97860, Quantity: 1}, tp)
	if tp != 96000 {
		t.Errorf("Expected dynamic TP 96000 after averaging, got %v", tp)
	}

	// Further fills keep the dynamic level, they do not move it again.
	tp = engine.Merge(&pos, Execution{Price: 102000, Quantity: 1}, tp)
	if tp != 96000 {
		t.Errorf("Expected TP to stay at 96000, got %v", tp)
	}
}
