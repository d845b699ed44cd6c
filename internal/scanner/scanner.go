// Package scanner runs the background multi-pair scan loop: it keeps the
// candle store fresh, detects swings, classifies cases and routes the
// resulting decisions into the paper account.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fibonacci-trading-bot/config"
	"fibonacci-trading-bot/internal/cache"
	"fibonacci-trading-bot/internal/candles"
	"fibonacci-trading-bot/internal/database"
	"fibonacci-trading-bot/internal/exchange"
	"fibonacci-trading-bot/internal/fibonacci"
	"fibonacci-trading-bot/internal/market"
	"fibonacci-trading-bot/internal/paper"
	"fibonacci-trading-bot/internal/zigzag"

	"github.com/rs/zerolog"
)

// MarketData is the slice of the exchange client the scanner consumes.
type MarketData interface {
	GetKlines(ctx context.Context, symbol, timeframe string, limit int) (*market.Series, error)
	GetTickers(ctx context.Context) ([]exchange.Ticker, error)
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
}

const (
	rsiPeriod   = 14
	scanTimeout = 5 * time.Minute
)

// Scanner orchestrates strategy scanning across multiple symbols.
// The candle store, repository and cache are optional; a nil store
// fetches klines directly from the exchange and nil repo/cache skip
// persistence of scan results.
type Scanner struct {
	client     MarketData
	store      *candles.Store
	account    *paper.Account
	repo       *database.Repository
	cache      *cache.CacheService
	strategy   *config.StrategyConfig
	cfg        *config.ScannerConfig
	selector   *fibonacci.Selector
	classifier *fibonacci.Classifier
	logger     zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	lastScan *Cycle
}

// NewScanner creates a scanner wired to the given market data source and
// paper account.
func NewScanner(
	client MarketData,
	store *candles.Store,
	account *paper.Account,
	repo *database.Repository,
	cacheService *cache.CacheService,
	strategy *config.StrategyConfig,
	cfg *config.ScannerConfig,
	logger zerolog.Logger,
) *Scanner {
	return &Scanner{
		client:     client,
		store:      store,
		account:    account,
		repo:       repo,
		cache:      cacheService,
		strategy:   strategy,
		cfg:        cfg,
		selector:   fibonacci.NewSelector(strategy),
		classifier: fibonacci.NewClassifier(strategy),
		logger:     logger.With().Str("component", "Scanner").Logger(),
		stopChan:   make(chan struct{}),
	}
}

// Start begins the background scan loop.
func (sc *Scanner) Start() {
	if !sc.cfg.Enabled {
		sc.logger.Info().Msg("Scanner is disabled")
		return
	}

	sc.wg.Add(1)
	go sc.runScanLoop()
	sc.logger.Info().
		Int("interval_sec", sc.cfg.ScanInterval).
		Int("workers", sc.workerCount()).
		Msg("Scanner started")
}

// Stop gracefully shuts down the scanner.
func (sc *Scanner) Stop() {
	close(sc.stopChan)
	sc.wg.Wait()
}

// runScanLoop executes scans at configured intervals.
func (sc *Scanner) runScanLoop() {
	defer sc.wg.Done()

	if sc.cfg.FirstScanDelay > 0 {
		select {
		case <-time.After(time.Duration(sc.cfg.FirstScanDelay) * time.Second):
		case <-sc.stopChan:
			return
		}
	}

	interval := time.Duration(sc.cfg.ScanInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sc.scan()

	for {
		select {
		case <-ticker.C:
			sc.scan()
		case <-sc.stopChan:
			sc.logger.Info().Msg("Scanner stopped")
			return
		}
	}
}

// Scan executes a single scan cycle (public method for manual triggering).
func (sc *Scanner) Scan() *Cycle {
	return sc.scan()
}

// LastScan returns the most recent completed scan cycle.
func (sc *Scanner) LastScan() *Cycle {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.lastScan
}

func (sc *Scanner) scan() *Cycle {
	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	startTime := time.Now()
	scanID := fmt.Sprintf("scan-%d", startTime.Unix())

	symbols, err := sc.symbolsToScan(ctx)
	if err != nil {
		sc.logger.Error().Err(err).Msg("Failed to resolve scan universe")
		return nil
	}

	sc.logger.Info().Str("scan_id", scanID).Int("symbols", len(symbols)).Msg("Starting scan")

	symbolChan := make(chan string, len(symbols))
	resultChan := make(chan Result, len(symbols))
	var wg sync.WaitGroup

	for i := 0; i < sc.workerCount(); i++ {
		wg.Add(1)
		go sc.worker(ctx, symbolChan, resultChan, &wg)
	}

	for _, symbol := range symbols {
		symbolChan <- symbol
	}
	close(symbolChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := []Result{}
	for result := range resultChan {
		results = append(results, result)
	}

	// Deterministic report order: tighter cases first, then by symbol.
	sort.Slice(results, func(i, j int) bool {
		if results[i].CaseLabel != results[j].CaseLabel {
			return results[i].CaseLabel > results[j].CaseLabel
		}
		return results[i].Symbol < results[j].Symbol
	})

	cycle := &Cycle{
		ScanID:         scanID,
		StartTime:      startTime,
		EndTime:        time.Now(),
		Duration:       time.Since(startTime),
		SymbolsScanned: len(symbols),
		Results:        results,
	}

	sc.mu.Lock()
	sc.lastScan = cycle
	sc.mu.Unlock()

	if sc.cache != nil {
		if err := sc.cache.SetJSON(ctx, cache.PrefixScanSummary, cycle, cache.DefaultScanTTL); err != nil && sc.cache.IsHealthy() {
			sc.logger.Warn().Err(err).Msg("Failed to cache scan summary")
		}
	}

	sc.logger.Info().
		Str("scan_id", scanID).
		Dur("duration", cycle.Duration).
		Int("setups", len(results)).
		Msg("Scan completed")

	return cycle
}

// worker processes symbols from the channel.
func (sc *Scanner) worker(ctx context.Context, symbolChan <-chan string, resultChan chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()

	for symbol := range symbolChan {
		select {
		case <-ctx.Done():
			return
		default:
			if result, ok := sc.scanSymbol(ctx, symbol); ok {
				resultChan <- result
			}
		}
	}
}

// scanSymbol runs the full pipeline for one symbol: RSI pre-filter,
// pivot detection, swing selection, case classification and order
// placement.
func (sc *Scanner) scanSymbol(ctx context.Context, symbol string) (Result, bool) {
	// One exposure per symbol: skip pairs that already carry a position
	// or a pending order.
	if sc.account != nil && sc.account.HasExposure(symbol) {
		return Result{}, false
	}

	var rsiValue float64
	if sc.cfg.RSIThreshold > 0 {
		pass, value := sc.passesRSIFilter(ctx, symbol)
		if !pass {
			return Result{}, false
		}
		rsiValue = value
	}

	timeframe := sc.strategy.Timeframe
	series, err := sc.klines(ctx, symbol, timeframe, sc.strategy.CandleLimit)
	if err != nil {
		sc.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to load candles")
		return Result{}, false
	}

	pivots := zigzag.Detect(series, zigzag.Config(sc.strategy.ZigZagFor(timeframe)))
	sel, ok := sc.selector.Select(series, pivots)
	if !ok {
		return Result{}, false
	}

	price, err := sc.client.GetLastPrice(ctx, symbol)
	if err != nil {
		// Fall back to the close of the in-progress bar.
		last, haveBar := series.Last()
		if !haveBar {
			return Result{}, false
		}
		price = last.Close
	}

	decision, ok := sc.classifier.Classify(series, sel, price)
	if !ok {
		return Result{}, false
	}

	now := time.Now().Unix()
	sc.place(symbol, decision, price, now)

	// A case 2/3/4 entry also covers itself with a "1++" limit on the
	// enclosing larger swing when one exists.
	if decision.Case >= 2 {
		if larger, found := sc.selector.LargerSwing(series, pivots, sel.Swing); found {
			sc.place(symbol, sc.classifier.SecondaryCover(larger), price, now)
		}
	}

	result := Result{
		Symbol:     symbol,
		Timeframe:  timeframe,
		CaseLabel:  decision.Label(),
		Price:      price,
		FibHigh:    decision.Swing.High.Price,
		FibLow:     decision.Swing.Low.Price,
		Entry:      decision.Orders[0].Price,
		TakeProfit: decision.TakeProfit,
		StopLoss:   decision.StopLoss,
		RSI:        rsiValue,
		ScannedAt:  now,
		Decision:   decision,
	}
	sc.persist(ctx, result)

	return result, true
}

// place routes a decision into the paper account. Insufficient margin is
// expected under load and only logged at debug level.
func (sc *Scanner) place(symbol string, d fibonacci.Decision, price float64, now int64) {
	if sc.account == nil {
		return
	}
	if _, err := sc.account.Place(symbol, d, price, now); err != nil {
		if errors.Is(err, paper.ErrInsufficientMargin) {
			sc.logger.Debug().Str("symbol", symbol).Msg("Skipping setup: insufficient margin")
			return
		}
		sc.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to place paper orders")
	}
}

func (sc *Scanner) persist(ctx context.Context, r Result) {
	if sc.repo != nil {
		record := &database.ScanResult{
			Symbol:     r.Symbol,
			Timeframe:  r.Timeframe,
			CaseLabel:  r.CaseLabel,
			Price:      r.Price,
			FibHigh:    r.FibHigh,
			FibLow:     r.FibLow,
			TakeProfit: r.TakeProfit,
			StopLoss:   r.StopLoss,
			ScannedAt:  r.ScannedAt,
		}
		if _, err := sc.repo.SaveScanResult(ctx, record); err != nil {
			sc.logger.Warn().Err(err).Str("symbol", r.Symbol).Msg("Failed to persist scan result")
		}
	}

	if sc.cache != nil {
		if err := sc.cache.SetJSON(ctx, cache.ScanResultKey(r.Symbol), r, cache.DefaultScanTTL); err != nil && sc.cache.IsHealthy() {
			sc.logger.Warn().Err(err).Str("symbol", r.Symbol).Msg("Failed to cache scan result")
		}
	}
}

// passesRSIFilter reports whether the symbol's RSI is at or above the
// configured threshold. Symbols without enough history pass through.
func (sc *Scanner) passesRSIFilter(ctx context.Context, symbol string) (bool, float64) {
	timeframe := sc.cfg.RSITimeframe
	if timeframe == "" {
		timeframe = sc.strategy.Timeframe
	}

	series, err := sc.klines(ctx, symbol, timeframe, rsiPeriod*4)
	if err != nil {
		return false, 0
	}

	value, ok := RSI(series, rsiPeriod)
	if !ok {
		return true, 0
	}
	return value >= sc.cfg.RSIThreshold, value
}

// klines loads candles through the store when one is configured so every
// scan also advances the local history, and straight from the exchange
// otherwise.
func (sc *Scanner) klines(ctx context.Context, symbol, timeframe string, limit int) (*market.Series, error) {
	if sc.store != nil {
		return sc.store.Sync(ctx, sc.client, symbol, timeframe, limit)
	}
	return sc.client.GetKlines(ctx, symbol, timeframe, limit)
}

// symbolsToScan resolves the scan universe: the pinned target pairs when
// configured, otherwise the top pairs by 24h turnover, minus exclusions.
func (sc *Scanner) symbolsToScan(ctx context.Context) ([]string, error) {
	if len(sc.cfg.TargetPairs) > 0 {
		symbols := []string{}
		for _, symbol := range sc.cfg.TargetPairs {
			if !sc.excluded(symbol) {
				symbols = append(symbols, symbol)
			}
		}
		return symbols, nil
	}

	tickers, err := sc.client.GetTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tickers: %w", err)
	}

	sort.Slice(tickers, func(i, j int) bool {
		return tickers[i].Turnover24h > tickers[j].Turnover24h
	})

	limit := sc.cfg.TopPairsLimit
	if limit <= 0 {
		limit = 50
	}

	symbols := []string{}
	for _, ticker := range tickers {
		if !strings.HasSuffix(ticker.Symbol, "USDT") || sc.excluded(ticker.Symbol) {
			continue
		}
		symbols = append(symbols, ticker.Symbol)
		if len(symbols) >= limit {
			break
		}
	}
	return symbols, nil
}

func (sc *Scanner) excluded(symbol string) bool {
	for _, excluded := range sc.cfg.ExcludedPairs {
		if symbol == excluded {
			return true
		}
	}
	return false
}

func (sc *Scanner) workerCount() int {
	if sc.cfg.WorkerCount > 0 {
		return sc.cfg.WorkerCount
	}
	return 4
}
