// Command optimize sweeps TP/SL grids for a SHORT entry over stored
// candles and prints the ranked results.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"fibonacci-trading-bot/config"
	"fibonacci-trading-bot/internal/candles"
	"fibonacci-trading-bot/internal/database"
	"fibonacci-trading-bot/internal/exchange"
	"fibonacci-trading-bot/internal/market"
	"fibonacci-trading-bot/internal/simulator"

	"github.com/olekukonko/tablewriter"
)

func main() {
	var (
		symbol    = flag.String("symbol", "BTCUSDT", "symbol to optimize")
		timeframe = flag.String("timeframe", "", "candle timeframe (defaults to the strategy timeframe)")
		entry     = flag.Float64("entry", 0, "entry price (required)")
		fibHigh   = flag.Float64("fib-high", 0, "swing high (required)")
		fibLow    = flag.Float64("fib-low", 0, "swing low (required)")
		openedAt  = flag.Int64("opened-at", 0, "entry time, unix seconds (defaults to the first stored bar)")
		caseNum   = flag.Int("case", 1, "case number, recorded with the run")
		tpMin     = flag.Float64("tp-min", 0.30, "take profit sweep start, fraction of the swing")
		tpMax     = flag.Float64("tp-max", 0.70, "take profit sweep end")
		slMin     = flag.Float64("sl-min", 0.80, "stop loss sweep start")
		slMax     = flag.Float64("sl-max", 1.20, "stop loss sweep end")
		step      = flag.Float64("step", 0.005, "sweep step")
		workers   = flag.Int("workers", 4, "parallel workers")
		limit     = flag.Int("limit", 0, "bars to load, 0 for all")
		sync      = flag.Bool("sync", false, "refresh candles from the exchange first")
		save      = flag.Bool("save", false, "persist the run to Postgres")
		top       = flag.Int("top", 20, "rows to print")
	)
	flag.Parse()

	if *entry <= 0 || *fibHigh <= 0 || *fibLow <= 0 {
		flag.Usage()
		log.Fatal("entry, fib-high and fib-low are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *timeframe == "" {
		*timeframe = cfg.StrategyConfig.Timeframe
	}

	store, err := candles.NewStore(cfg.CandleConfig.Path)
	if err != nil {
		log.Fatalf("Failed to open candle store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	series := loadSeries(ctx, cfg, store, *symbol, *timeframe, *limit, *sync)
	if series.Len() == 0 {
		log.Fatalf("No candles stored for %s %s (run with -sync to fetch)", *symbol, *timeframe)
	}

	pos := simulator.Position{
		Symbol:     *symbol,
		EntryPrice: *entry,
		FibHigh:    *fibHigh,
		FibLow:     *fibLow,
		Case:       *caseNum,
		OpenedAt:   *openedAt,
	}
	if pos.OpenedAt == 0 {
		pos.OpenedAt = series.Bar(0).Time
	}

	grid := simulator.GridConfig{
		TPMin: *tpMin, TPMax: *tpMax,
		SLMin: *slMin, SLMax: *slMax,
		Step: *step, Workers: *workers,
	}

	optimizer := simulator.NewOptimizer(simulator.NewPathSimulator(&cfg.TradingConfig))
	points := optimizer.Optimize(pos, grid, series)
	if len(points) == 0 {
		log.Fatal("Grid produced no points")
	}

	render(points, pos, *top)

	if *save {
		saveRun(ctx, cfg, points, *symbol, *timeframe, *caseNum)
	}
}

func loadSeries(ctx context.Context, cfg *config.Config, store *candles.Store, symbol, timeframe string, limit int, sync bool) *market.Series {
	if sync {
		client := exchange.NewClient(&cfg.ExchangeConfig)
		fetchLimit := limit
		if fetchLimit <= 0 {
			fetchLimit = cfg.StrategyConfig.CandleLimit
		}
		series, err := store.Sync(ctx, client, symbol, timeframe, fetchLimit)
		if err != nil {
			log.Fatalf("Failed to sync candles: %v", err)
		}
		return series
	}

	series, err := store.Load(ctx, symbol, timeframe, limit)
	if err != nil {
		log.Fatalf("Failed to load candles: %v", err)
	}
	return series
}

func render(points []simulator.GridPoint, pos simulator.Position, top int) {
	ranked := make([]simulator.GridPoint, len(points))
	copy(ranked, points)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Result.NetPnl > ranked[j].Result.NetPnl
	})
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("TP %", "SL %", "TP price", "SL price", "Status", "Net PnL", "Commission")
	for _, p := range ranked {
		table.Append(
			fmt.Sprintf("%.1f", p.TPPct*100),
			fmt.Sprintf("%.1f", p.SLPct*100),
			fmt.Sprintf("%.2f", pos.Level(p.TPPct)),
			fmt.Sprintf("%.2f", pos.Level(p.SLPct)),
			string(p.Result.Status),
			fmt.Sprintf("%+.4f", p.Result.NetPnl),
			fmt.Sprintf("%.4f", p.Result.Commission),
		)
	}
	table.Render()

	if best, ok := simulator.Best(points); ok {
		fmt.Printf("\nBest: TP %.1f%% / SL %.1f%% -> %s net %+.4f over %d points\n",
			best.TPPct*100, best.SLPct*100, best.Result.Status, best.Result.NetPnl, len(points))
	} else {
		fmt.Printf("\nNo decided point in %d combinations\n", len(points))
	}
}

func saveRun(ctx context.Context, cfg *config.Config, points []simulator.GridPoint, symbol, timeframe string, caseNum int) {
	if !cfg.DatabaseConfig.Enabled {
		log.Fatal("Cannot save: database is disabled in configuration")
	}

	best, ok := simulator.Best(points)
	if !ok {
		log.Println("Skipping save: no decided grid point")
		return
	}

	db, err := database.NewDB(cfg.DatabaseConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	run := &database.OptimizerRun{
		Symbol:    symbol,
		Timeframe: timeframe,
		Case:      caseNum,
		Points:    len(points),
		BestTPPct: best.TPPct,
		BestSLPct: best.SLPct,
		BestState: string(best.Result.Status),
		BestNet:   best.Result.NetPnl,
	}
	id, err := database.NewRepository(db).SaveOptimizerRun(ctx, run)
	if err != nil {
		log.Fatalf("Failed to save optimizer run: %v", err)
	}
	log.Printf("Saved optimizer run %d", id)
}
