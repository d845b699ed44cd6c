package scanner

import (
	"time"

	"fibonacci-trading-bot/internal/fibonacci"
)

// Result is one symbol's outcome from a scan cycle: the case decision
// and the levels it was derived from.
type Result struct {
	Symbol     string  `json:"symbol"`
	Timeframe  string  `json:"timeframe"`
	CaseLabel  string  `json:"case_label"`
	Price      float64 `json:"price"`
	FibHigh    float64 `json:"fib_high"`
	FibLow     float64 `json:"fib_low"`
	Entry      float64 `json:"entry"`
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
	RSI        float64 `json:"rsi,omitempty"`
	ScannedAt  int64   `json:"scanned_at"`

	Decision fibonacci.Decision `json:"decision"`
}

// Cycle summarizes one complete pass over the scan universe.
type Cycle struct {
	ScanID         string        `json:"scan_id"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Duration       time.Duration `json:"duration"`
	SymbolsScanned int           `json:"symbols_scanned"`
	Results        []Result      `json:"results"`
}
