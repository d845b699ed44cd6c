// Package candles persists OHLC history in an embedded SQLite database
// so repeated scans do not refetch the same bars from the exchange.
package candles

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"fibonacci-trading-bot/internal/market"
)

const schema = `
CREATE TABLE IF NOT EXISTS candles (
    symbol    TEXT    NOT NULL,
    timeframe TEXT    NOT NULL,
    time      INTEGER NOT NULL,
    open      REAL    NOT NULL,
    high      REAL    NOT NULL,
    low       REAL    NOT NULL,
    close     REAL    NOT NULL,
    PRIMARY KEY (symbol, timeframe, time)
);

CREATE TABLE IF NOT EXISTS sync_status (
    symbol      TEXT    NOT NULL,
    timeframe   TEXT    NOT NULL,
    last_synced INTEGER NOT NULL,
    PRIMARY KEY (symbol, timeframe)
);

CREATE INDEX IF NOT EXISTS idx_candles_lookup ON candles(symbol, timeframe, time);
`

// KlineFetcher is the slice of the exchange client Sync needs.
type KlineFetcher interface {
	GetKlines(ctx context.Context, symbol, timeframe string, limit int) (*market.Series, error)
}

// Store is the embedded candle database. SQLite is single-writer, so
// the pool is pinned to one connection.
type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("candles.NewStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("candles.NewStore: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the bars of one symbol/timeframe. Re-saving an existing
// bar overwrites it, so an in-progress candle converges to its final
// values across syncs.
func (s *Store) Save(ctx context.Context, symbol, timeframe string, series *market.Series) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("candles.Save: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, timeframe, time, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timeframe, time)
		DO UPDATE SET open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close`)
	if err != nil {
		return fmt.Errorf("candles.Save: prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range series.Bars() {
		if _, err := stmt.ExecContext(ctx, symbol, timeframe, b.Time, b.Open, b.High, b.Low, b.Close); err != nil {
			return fmt.Errorf("candles.Save: insert bar %d: %w", b.Time, err)
		}
	}

	return tx.Commit()
}

// Load returns the most recent limit bars ascending by time. limit <= 0
// loads everything.
func (s *Store) Load(ctx context.Context, symbol, timeframe string, limit int) (*market.Series, error) {
	query := `
		SELECT time, open, high, low, close FROM (
			SELECT time, open, high, low, close FROM candles
			WHERE symbol = ? AND timeframe = ?
			ORDER BY time DESC LIMIT ?
		) ORDER BY time ASC`
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, query, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("candles.Load: query: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// LoadRange returns the bars with time in [from, to], ascending.
func (s *Store) LoadRange(ctx context.Context, symbol, timeframe string, from, to int64) (*market.Series, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, open, high, low, close FROM candles
		WHERE symbol = ? AND timeframe = ? AND time >= ? AND time <= ?
		ORDER BY time ASC`, symbol, timeframe, from, to)
	if err != nil {
		return nil, fmt.Errorf("candles.LoadRange: query: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// LastSynced returns the sync watermark for a symbol/timeframe, 0 when
// it was never synced.
func (s *Store) LastSynced(ctx context.Context, symbol, timeframe string) (int64, error) {
	var at int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_synced FROM sync_status WHERE symbol = ? AND timeframe = ?`,
		symbol, timeframe).Scan(&at)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("candles.LastSynced: query: %w", err)
	}
	return at, nil
}

// Sync fetches the latest bars for a symbol, stores them and advances
// the watermark to the newest bar's time.
func (s *Store) Sync(ctx context.Context, fetcher KlineFetcher, symbol, timeframe string, limit int) (*market.Series, error) {
	series, err := fetcher.GetKlines(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("candles.Sync: fetch: %w", err)
	}
	if series.Len() == 0 {
		return series, nil
	}

	if err := s.Save(ctx, symbol, timeframe, series); err != nil {
		return nil, err
	}

	last, _ := series.Last()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_status (symbol, timeframe, last_synced) VALUES (?, ?, ?)
		ON CONFLICT (symbol, timeframe) DO UPDATE SET last_synced=excluded.last_synced`,
		symbol, timeframe, last.Time); err != nil {
		return nil, fmt.Errorf("candles.Sync: update watermark: %w", err)
	}

	return series, nil
}

func scanBars(rows *sql.Rows) (*market.Series, error) {
	var bars []market.Bar
	for rows.Next() {
		var b market.Bar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, fmt.Errorf("candles: scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("candles: rows: %w", err)
	}
	return market.NewSeries(bars), nil
}
