// Package simulator replays historical bars against a SHORT position to
// decide whether the stop or the target is touched first, and sweeps
// TP/SL grids for parameter optimization. Everything here is pure: the
// same inputs always produce the same Result.
package simulator

// Status is the terminal (or still-open) state of a simulated trade.
type Status string

const (
	StatusTP        Status = "TP"
	StatusSL        Status = "SL"
	StatusRunning   Status = "RUNNING"
	StatusNoData    Status = "NO_DATA"
	StatusPending   Status = "PENDING"
	StatusCancelled Status = "CANCELLED"
)

// Execution is one fill contributing to a position.
type Execution struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Time     int64   `json:"time"`
}

// Position is a SHORT position under evaluation. FibHigh and FibLow pin
// the swing the entry was classified on so levels can be recomputed.
type Position struct {
	Symbol     string      `json:"symbol"`
	EntryPrice float64     `json:"entry_price"`
	Quantity   float64     `json:"quantity"` // 0 lets the simulator derive it
	FibHigh    float64     `json:"fib_high"`
	FibLow     float64     `json:"fib_low"`
	Case       int         `json:"case"`
	OpenedAt   int64       `json:"opened_at"`
	Executions []Execution `json:"executions,omitempty"`
}

// Level converts a fraction of the position's swing range into a price.
func (p *Position) Level(pct float64) float64 {
	return p.FibLow + (p.FibHigh-p.FibLow)*pct
}

// PendingOrder is a limit order waiting to fill.
type PendingOrder struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	FibHigh     float64 `json:"fib_high"`
	FibLow      float64 `json:"fib_low"`
	Case        int     `json:"case"`
	CreatedAt   int64   `json:"created_at"`
	CancelBelow float64 `json:"cancel_below"` // 0 disables cancellation
}

// Result is the outcome of one replay. It is freshly computed on every
// call and never mutated in place. For RUNNING the PnL fields hold the
// floating value against the last close; for PENDING and CANCELLED they
// are zero.
type Result struct {
	Status         Status  `json:"status"`
	HitTime        int64   `json:"hit_time,omitempty"`
	ReferencePrice float64 `json:"reference_price"`
	Quantity       float64 `json:"quantity"`
	GrossPnl       float64 `json:"gross_pnl"`
	Commission     float64 `json:"commission"`
	NetPnl         float64 `json:"net_pnl"`
}
