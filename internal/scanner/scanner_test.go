package scanner

import (
	"context"
	"fmt"
	"math"
	"testing"

	"fibonacci-trading-bot/config"
	"fibonacci-trading-bot/internal/exchange"
	"fibonacci-trading-bot/internal/market"
	"fibonacci-trading-bot/internal/paper"

	"github.com/rs/zerolog"
)

type fakeMarket struct {
	series    map[string]*market.Series
	tickers   []exchange.Ticker
	lastPrice map[string]float64
}

func (f *fakeMarket) GetKlines(ctx context.Context, symbol, timeframe string, limit int) (*market.Series, error) {
	s, ok := f.series[symbol]
	if !ok {
		return nil, fmt.Errorf("no series for %s", symbol)
	}
	return s, nil
}

func (f *fakeMarket) GetTickers(ctx context.Context) ([]exchange.Ticker, error) {
	return f.tickers, nil
}

func (f *fakeMarket) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	price, ok := f.lastPrice[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return price, nil
}

func testStrategyConfig() *config.StrategyConfig {
	return &config.StrategyConfig{
		Timeframe:                "4h",
		CandleLimit:              200,
		Cases:                    config.DefaultCases(),
		InvalidationPct:          0.90,
		SecondaryInvalidationPct: 1.0,
		DynamicTakeProfitPct:     0.60,
		ZigZag: map[string]config.ZigZagConfig{
			"4h": {Deviation: 2, Depth: 2},
		},
	}
}

func testScannerConfig() *config.ScannerConfig {
	return &config.ScannerConfig{
		Enabled:      true,
		TargetPairs:  []string{"BTCUSDT"},
		ScanInterval: 60,
		WorkerCount:  2,
	}
}

func testAccount(strategy *config.StrategyConfig) *paper.Account {
	trading := &config.TradingConfig{
		InitialBalance: 30,
		Leverage:       10,
		MarginPerTrade: 3,
		TargetProfit:   1.0,
	}
	return paper.NewAccount(trading, strategy, zerolog.Nop())
}

// shortSetupSeries forms a swing from a 100000 high down to a 90000 low
// with the price recovered into the case 1 zone.
func shortSetupSeries() *market.Series {
	highs := []float64{95000, 96000, 100000, 95500, 94000, 93000, 91000, 92500, 95900, 95850, 95800}
	lows := []float64{94000, 95000, 96000, 94500, 93000, 92000, 90000, 91500, 94500, 94800, 94700}

	bars := make([]market.Bar, len(highs))
	for i := range highs {
		bars[i] = market.Bar{
			Time:  int64(i) * 14400,
			Open:  lows[i],
			High:  highs[i],
			Low:   lows[i],
			Close: lows[i],
		}
	}
	return market.NewSeries(bars)
}

// downtrendSeries has strictly falling closes, so its RSI is 0.
func downtrendSeries(n int) *market.Series {
	bars := make([]market.Bar, n)
	for i := range bars {
		price := float64(100 - i)
		bars[i] = market.Bar{
			Time:  int64(i) * 14400,
			Open:  price + 1,
			High:  price + 1,
			Low:   price - 1,
			Close: price,
		}
	}
	return market.NewSeries(bars)
}

func TestScanFindsCase1Setup(t *testing.T) {
	strategy := testStrategyConfig()
	account := testAccount(strategy)
	client := &fakeMarket{
		series:    map[string]*market.Series{"BTCUSDT": shortSetupSeries()},
		lastPrice: map[string]float64{"BTCUSDT": 95800},
	}

	sc := NewScanner(client, nil, account, nil, nil, strategy, testScannerConfig(), zerolog.Nop())
	cycle := sc.Scan()

	if cycle == nil {
		t.Fatal("Expected a scan cycle, got nil")
	}
	if len(cycle.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(cycle.Results))
	}

	r := cycle.Results[0]
	if r.CaseLabel != "1" {
		t.Errorf("Expected case 1, got %s", r.CaseLabel)
	}
	if math.Abs(r.Entry-96180) > 1e-6 {
		t.Errorf("Expected entry 96180, got %v", r.Entry)
	}
	if r.FibHigh != 100000 || r.FibLow != 90000 {
		t.Errorf("Expected swing 100000/90000, got %v/%v", r.FibHigh, r.FibLow)
	}
	if math.Abs(r.TakeProfit-95500) > 1e-6 {
		t.Errorf("Expected take profit 95500, got %v", r.TakeProfit)
	}

	// Case 1 places the entry limit plus one linked averaging limit.
	pending := account.PendingOrders()
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending orders, got %d", len(pending))
	}

	if sc.LastScan() != cycle {
		t.Error("Expected LastScan to return the completed cycle")
	}
}

func TestScanSkipsSymbolsWithExposure(t *testing.T) {
	strategy := testStrategyConfig()
	account := testAccount(strategy)
	client := &fakeMarket{
		series:    map[string]*market.Series{"BTCUSDT": shortSetupSeries()},
		lastPrice: map[string]float64{"BTCUSDT": 95800},
	}

	sc := NewScanner(client, nil, account, nil, nil, strategy, testScannerConfig(), zerolog.Nop())

	first := sc.Scan()
	if len(first.Results) != 1 {
		t.Fatalf("Expected 1 result on the first scan, got %d", len(first.Results))
	}
	if pending := account.PendingOrders(); len(pending) != 2 {
		t.Fatalf("Expected 2 pending orders after the first scan, got %d", len(pending))
	}

	// The market does not move, so a second scan sees the same setup but
	// must not stack a second order group on the symbol.
	second := sc.Scan()
	if len(second.Results) != 0 {
		t.Errorf("Expected no results while the symbol carries orders, got %d", len(second.Results))
	}
	if pending := account.PendingOrders(); len(pending) != 2 {
		t.Errorf("Expected pending orders to stay at 2, got %d", len(pending))
	}
}

func TestScanSkipsSymbolsWithoutSetup(t *testing.T) {
	strategy := testStrategyConfig()
	client := &fakeMarket{
		series:    map[string]*market.Series{"BTCUSDT": downtrendSeries(30)},
		lastPrice: map[string]float64{"BTCUSDT": 70},
	}

	sc := NewScanner(client, nil, nil, nil, nil, strategy, testScannerConfig(), zerolog.Nop())
	cycle := sc.Scan()

	if cycle == nil {
		t.Fatal("Expected a scan cycle, got nil")
	}
	if len(cycle.Results) != 0 {
		t.Errorf("Expected no results for a pure downtrend, got %d", len(cycle.Results))
	}
}

func TestRSIFilterSkipsWeakSymbols(t *testing.T) {
	strategy := testStrategyConfig()
	account := testAccount(strategy)
	cfg := testScannerConfig()
	cfg.TargetPairs = []string{"BTCUSDT", "DOGEUSDT"}
	cfg.RSIThreshold = 60

	client := &fakeMarket{
		series: map[string]*market.Series{
			// Too short for RSI(14), so BTCUSDT passes through the filter.
			"BTCUSDT": shortSetupSeries(),
			// Long pure downtrend, RSI 0, filtered out.
			"DOGEUSDT": downtrendSeries(30),
		},
		lastPrice: map[string]float64{"BTCUSDT": 95800, "DOGEUSDT": 70},
	}

	sc := NewScanner(client, nil, account, nil, nil, strategy, cfg, zerolog.Nop())
	cycle := sc.Scan()

	if len(cycle.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(cycle.Results))
	}
	if cycle.Results[0].Symbol != "BTCUSDT" {
		t.Errorf("Expected BTCUSDT to survive the filter, got %s", cycle.Results[0].Symbol)
	}
}

func TestSymbolUniverseTopTurnover(t *testing.T) {
	cfg := testScannerConfig()
	cfg.TargetPairs = nil
	cfg.TopPairsLimit = 2
	cfg.ExcludedPairs = []string{"ETHUSDT"}

	client := &fakeMarket{
		tickers: []exchange.Ticker{
			{Symbol: "SOLUSDT", Turnover24h: 700},
			{Symbol: "BTCUSD", Turnover24h: 1000}, // not a USDT pair
			{Symbol: "BTCUSDT", Turnover24h: 900},
			{Symbol: "ETHUSDT", Turnover24h: 800}, // excluded
			{Symbol: "XRPUSDT", Turnover24h: 600},
		},
	}

	sc := NewScanner(client, nil, nil, nil, nil, testStrategyConfig(), cfg, zerolog.Nop())
	symbols, err := sc.symbolsToScan(context.Background())
	if err != nil {
		t.Fatalf("symbolsToScan returned error: %v", err)
	}

	want := []string{"BTCUSDT", "SOLUSDT"}
	if len(symbols) != len(want) {
		t.Fatalf("Expected %d symbols, got %d: %v", len(want), len(symbols), symbols)
	}
	for i := range want {
		if symbols[i] != want[i] {
			t.Errorf("Expected symbol %d to be %s, got %s", i, want[i], symbols[i])
		}
	}
}

func TestTargetPairsPinUniverse(t *testing.T) {
	cfg := testScannerConfig()
	cfg.TargetPairs = []string{"BTCUSDT", "ETHUSDT"}
	cfg.ExcludedPairs = []string{"ETHUSDT"}

	sc := NewScanner(&fakeMarket{}, nil, nil, nil, nil, testStrategyConfig(), cfg, zerolog.Nop())
	symbols, err := sc.symbolsToScan(context.Background())
	if err != nil {
		t.Fatalf("symbolsToScan returned error: %v", err)
	}
	if len(symbols) != 1 || symbols[0] != "BTCUSDT" {
		t.Errorf("Expected pinned universe [BTCUSDT], got %v", symbols)
	}
}
