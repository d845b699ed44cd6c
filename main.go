package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"fibonacci-trading-bot/config"
	"fibonacci-trading-bot/internal/api"
	"fibonacci-trading-bot/internal/auth"
	"fibonacci-trading-bot/internal/cache"
	"fibonacci-trading-bot/internal/candles"
	"fibonacci-trading-bot/internal/database"
	"fibonacci-trading-bot/internal/exchange"
	"fibonacci-trading-bot/internal/logging"
	"fibonacci-trading-bot/internal/market"
	"fibonacci-trading-bot/internal/paper"
	"fibonacci-trading-bot/internal/scanner"
	"fibonacci-trading-bot/internal/vault"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LoggingConfig)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	logger.Info().Msg("Fibonacci trading bot starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Vault overrides the exchange credentials when enabled.
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create vault client")
		}
		keys, err := vaultClient.GetAPIKey(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to fetch exchange credentials from vault")
		}
		cfg.ExchangeConfig.APIKey = keys.APIKey
		cfg.ExchangeConfig.SecretKey = keys.SecretKey
		logger.Info().Msg("Exchange credentials loaded from vault")
	}

	client := exchange.NewClient(&cfg.ExchangeConfig)

	store, err := candles.NewStore(cfg.CandleConfig.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CandleConfig.Path).Msg("Failed to open candle store")
	}
	defer store.Close()

	var repo *database.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(cfg.DatabaseConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
		repo = database.NewRepository(db)
		logger.Info().Msg("Database connected")
	}

	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize cache")
		}
		defer cacheService.Close()
	}

	account := paper.NewAccount(&cfg.TradingConfig, &cfg.StrategyConfig, logger)

	scan := scanner.NewScanner(
		client, store, account, repo, cacheService,
		&cfg.StrategyConfig, &cfg.ScannerConfig, logger,
	)
	scan.Start()
	defer scan.Stop()

	startTickerFeed(ctx, cfg, client, account, logger)

	if repo != nil {
		go flushClosedTrades(ctx, account, repo, logger)
	}

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		var jwtManager *auth.JWTManager
		if cfg.AuthConfig.Enabled {
			jwtManager = auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.TokenDuration)
		}

		server = api.NewServer(
			cfg.ServerConfig, &cfg.StrategyConfig, &cfg.TradingConfig,
			account, scan, store, client, jwtManager, logger,
		)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("HTTP server failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutdown signal received")

	cancel()

	if server != nil {
		timeout := time.Duration(cfg.ServerConfig.ShutdownTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown failed")
		}
	}

	logger.Info().Msg("Fibonacci trading bot stopped")
}

// startTickerFeed subscribes the websocket ticker stream and drives the
// paper account with live prices. Each tick is folded into a flat bar so
// pending fills and exits react between candle closes.
func startTickerFeed(
	ctx context.Context,
	cfg *config.Config,
	client *exchange.Client,
	account *paper.Account,
	logger zerolog.Logger,
) {
	symbols := cfg.ScannerConfig.TargetPairs
	if len(symbols) == 0 {
		resolved, err := topSymbols(ctx, client, &cfg.ScannerConfig)
		if err != nil {
			logger.Warn().Err(err).Msg("Ticker feed disabled: failed to resolve symbols")
			return
		}
		symbols = resolved
	}
	if len(symbols) == 0 {
		return
	}

	stream := exchange.NewTickerStream(cfg.ExchangeConfig.WSBaseURL, logger)
	stream.Start(ctx, symbols)

	go func() {
		for update := range stream.Updates() {
			account.ProcessBar(update.Symbol, market.Bar{
				Time:  update.Time,
				Open:  update.LastPrice,
				High:  update.LastPrice,
				Low:   update.LastPrice,
				Close: update.LastPrice,
			})
		}
	}()
}

// topSymbols picks the live-feed universe the same way the scanner does.
func topSymbols(ctx context.Context, client *exchange.Client, cfg *config.ScannerConfig) ([]string, error) {
	tickers, err := client.GetTickers(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(tickers, func(i, j int) bool {
		return tickers[i].Turnover24h > tickers[j].Turnover24h
	})

	limit := cfg.TopPairsLimit
	if limit <= 0 {
		limit = 50
	}

	excluded := make(map[string]bool, len(cfg.ExcludedPairs))
	for _, symbol := range cfg.ExcludedPairs {
		excluded[symbol] = true
	}

	symbols := []string{}
	for _, ticker := range tickers {
		if !strings.HasSuffix(ticker.Symbol, "USDT") || excluded[ticker.Symbol] {
			continue
		}
		symbols = append(symbols, ticker.Symbol)
		if len(symbols) >= limit {
			break
		}
	}
	return symbols, nil
}

// flushClosedTrades periodically persists new closed trades. SaveTrade
// is idempotent, so re-saving the same history is harmless.
func flushClosedTrades(ctx context.Context, account *paper.Account, repo *database.Repository, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	saved := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, trade := range account.History() {
				if saved[trade.ID] {
					continue
				}
				if _, err := repo.SaveTrade(ctx, trade); err != nil {
					logger.Warn().Err(err).Str("trade_id", trade.ID).Msg("Failed to persist trade")
					continue
				}
				saved[trade.ID] = true
			}
		}
	}
}
