package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fibonacci-trading-bot/internal/paper"
	"fibonacci-trading-bot/internal/simulator"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// OptimizerRun is the persisted summary of one grid sweep.
type OptimizerRun struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Case      int       `json:"case"`
	Points    int       `json:"points"`
	BestTPPct float64   `json:"best_tp_pct"`
	BestSLPct float64   `json:"best_sl_pct"`
	BestState string    `json:"best_status"`
	BestNet   float64   `json:"best_net_pnl"`
	CreatedAt time.Time `json:"created_at"`
}

// ScanResult is one persisted scan opportunity.
type ScanResult struct {
	ID         int64   `json:"id"`
	Symbol     string  `json:"symbol"`
	Timeframe  string  `json:"timeframe"`
	CaseLabel  string  `json:"case_label"`
	Price      float64 `json:"price"`
	FibHigh    float64 `json:"fib_high"`
	FibLow     float64 `json:"fib_low"`
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
	ScannedAt  int64   `json:"scanned_at"`
}

// SaveTrade persists a closed paper trade
func (r *Repository) SaveTrade(ctx context.Context, t paper.ClosedTrade) (int64, error) {
	query := `
		INSERT INTO trades (
			trade_id, symbol, case_num, side, entry_price, exit_price,
			quantity, gross_pnl, commission, net_pnl, status, fills,
			min_pnl, max_pnl, opened_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (trade_id) DO NOTHING
		RETURNING id
	`

	var id int64
	err := r.db.Pool.QueryRow(ctx, query,
		t.ID, t.Symbol, t.Case, t.Side, t.Entry, t.Exit,
		t.Quantity, t.GrossPnl, t.Commission, t.NetPnl, string(t.Status), t.Fills,
		t.MinPnl, t.MaxPnl, t.OpenedAt, t.ClosedAt,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		// Conflict on trade_id: the trade was already persisted.
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade: %w", err)
	}

	return id, nil
}

// GetTrades returns closed trades, newest first. Empty symbol returns
// all symbols.
func (r *Repository) GetTrades(ctx context.Context, symbol string, limit int) ([]paper.ClosedTrade, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT trade_id, symbol, case_num, side, entry_price, exit_price,
			quantity, gross_pnl, commission, net_pnl, status, fills,
			min_pnl, max_pnl, opened_at, closed_at
		FROM trades
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY closed_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []paper.ClosedTrade
	for rows.Next() {
		var t paper.ClosedTrade
		var status string
		if err := rows.Scan(
			&t.ID, &t.Symbol, &t.Case, &t.Side, &t.Entry, &t.Exit,
			&t.Quantity, &t.GrossPnl, &t.Commission, &t.NetPnl, &status, &t.Fills,
			&t.MinPnl, &t.MaxPnl, &t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Status = simulator.Status(status)
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

// SaveOptimizerRun persists a grid sweep summary
func (r *Repository) SaveOptimizerRun(ctx context.Context, run *OptimizerRun) (int64, error) {
	query := `
		INSERT INTO optimizer_runs (
			symbol, timeframe, case_num, points,
			best_tp_pct, best_sl_pct, best_status, best_net_pnl
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	var id int64
	err := r.db.Pool.QueryRow(ctx, query,
		run.Symbol, run.Timeframe, run.Case, run.Points,
		run.BestTPPct, run.BestSLPct, run.BestState, run.BestNet,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert optimizer run: %w", err)
	}

	return id, nil
}

// SaveScanResult persists one detected opportunity
func (r *Repository) SaveScanResult(ctx context.Context, s *ScanResult) (int64, error) {
	query := `
		INSERT INTO scan_results (
			symbol, timeframe, case_label, price,
			fib_high, fib_low, take_profit, stop_loss, scanned_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id int64
	err := r.db.Pool.QueryRow(ctx, query,
		s.Symbol, s.Timeframe, s.CaseLabel, s.Price,
		s.FibHigh, s.FibLow, s.TakeProfit, s.StopLoss, s.ScannedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert scan result: %w", err)
	}

	return id, nil
}
