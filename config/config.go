package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ExchangeConfig ExchangeConfig `json:"exchange"`
	TradingConfig  TradingConfig  `json:"trading"`
	StrategyConfig StrategyConfig `json:"strategy"`
	ScannerConfig  ScannerConfig  `json:"scanner"`
	CandleConfig   CandleConfig   `json:"candles"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	ServerConfig   ServerConfig   `json:"server"`
	AuthConfig     AuthConfig     `json:"auth"`
	VaultConfig    VaultConfig    `json:"vault"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

// ExchangeConfig holds Bybit market-data access configuration.
// The engine only consumes public endpoints; credentials are optional
// and only forwarded when present.
type ExchangeConfig struct {
	APIKey      string  `json:"api_key"`
	SecretKey   string  `json:"secret_key"`
	RESTBaseURL string  `json:"rest_base_url"`
	WSBaseURL   string  `json:"ws_base_url"`
	RateLimit   float64 `json:"rate_limit"` // requests per second
	RateBurst   int     `json:"rate_burst"`
}

// TradingConfig holds account-level trading parameters.
type TradingConfig struct {
	InitialBalance     float64 `json:"initial_balance"`
	Leverage           int     `json:"leverage"`
	MarginPerTrade     float64 `json:"margin_per_trade"`
	MaxMarginPerTrade  float64 `json:"max_margin_per_trade"`
	MinAvailableMargin float64 `json:"min_available_margin"`
	TargetProfit       float64 `json:"target_profit"`   // gross USD per winning trade
	CommissionRate     float64 `json:"commission_rate"` // taker rate per side, e.g. 0.0006
	CommissionsEnabled bool    `json:"commissions_enabled"`
	TradesFile         string  `json:"trades_file"`
}

// CaseSettings holds the per-case zone bounds and exit levels, all expressed
// as fractions of the swing range (0.55 = 55% retracement).
type CaseSettings struct {
	ZoneMin        float64   `json:"zone_min"`
	ZoneMax        float64   `json:"zone_max"`
	TakeProfitPct  float64   `json:"take_profit_pct"`
	StopLossPct    float64   `json:"stop_loss_pct"`    // 0 disables the stop
	CancelBelowPct float64   `json:"cancel_below_pct"` // pending-order cancellation level
	LinkedLevels   []float64 `json:"linked_levels"`    // averaging limit orders placed with the entry
}

// ZigZagConfig holds pivot detection parameters for one timeframe.
type ZigZagConfig struct {
	Deviation float64 `json:"deviation"` // minimum reversal, percent
	Depth     int     `json:"depth"`
}

// StrategyConfig holds every numeric threshold of the SHORT strategy.
// Two variants of the case boundaries exist in the field; neither is
// hard-coded, the shipped defaults follow the Bybit variant.
type StrategyConfig struct {
	Timeframe                string                  `json:"timeframe"`
	CandleLimit              int                     `json:"candle_limit"`
	Cases                    map[int]CaseSettings    `json:"cases"`
	InvalidationPct          float64                 `json:"invalidation_pct"`           // absolute swing kill switch
	SecondaryInvalidationPct float64                 `json:"secondary_invalidation_pct"` // >=1.0 disables
	DynamicTakeProfitPct     float64                 `json:"dynamic_take_profit_pct"`    // TP once a position averages
	ZigZag                   map[string]ZigZagConfig `json:"zigzag"`
}

type ScannerConfig struct {
	Enabled        bool     `json:"enabled"`
	TopPairsLimit  int      `json:"top_pairs_limit"`
	TargetPairs    []string `json:"target_pairs"` // non-empty pins the scan set
	ExcludedPairs  []string `json:"excluded_pairs"`
	RSIThreshold   float64  `json:"rsi_threshold"` // 0 disables the filter
	RSITimeframe   string   `json:"rsi_timeframe"`
	ScanInterval   int      `json:"scan_interval"` // seconds between scans
	FirstScanDelay int      `json:"first_scan_delay"`
	WorkerCount    int      `json:"worker_count"`
}

// CandleConfig holds the embedded SQLite candle store settings.
type CandleConfig struct {
	Path     string `json:"path"`
	SyncDays int    `json:"sync_days"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ShutdownTimeout int    `json:"shutdown_timeout"` // seconds
}

type AuthConfig struct {
	Enabled       bool          `json:"enabled"`
	JWTSecret     string        `json:"jwt_secret"`
	TokenDuration time.Duration `json:"token_duration"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

type LoggingConfig struct {
	Level       string `json:"level"`  // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"` // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

// Load reads config.json (when present), loads .env, and applies
// environment overrides on top. Environment always wins.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	// Exchange config
	cfg.ExchangeConfig.APIKey = getEnvOrDefault("BYBIT_API_KEY", cfg.ExchangeConfig.APIKey)
	cfg.ExchangeConfig.SecretKey = getEnvOrDefault("BYBIT_API_SECRET", cfg.ExchangeConfig.SecretKey)
	cfg.ExchangeConfig.RESTBaseURL = getEnvOrDefault("BYBIT_REST_URL", cfg.ExchangeConfig.RESTBaseURL)
	cfg.ExchangeConfig.WSBaseURL = getEnvOrDefault("BYBIT_WS_URL", cfg.ExchangeConfig.WSBaseURL)

	// Trading config
	cfg.TradingConfig.TradesFile = getEnvOrDefault("BOT_TRADES_FILE", cfg.TradingConfig.TradesFile)

	// Strategy config
	cfg.StrategyConfig.Timeframe = getEnvOrDefault("BOT_TIMEFRAME", cfg.StrategyConfig.Timeframe)

	// Scanner config
	cfg.ScannerConfig.ScanInterval = getEnvIntOrDefault("BOT_SCAN_INTERVAL", cfg.ScannerConfig.ScanInterval)

	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	// Auth config
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", boolString(cfg.AuthConfig.Enabled)) == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.TokenDuration = getEnvDurationOrDefault("AUTH_TOKEN_DURATION", cfg.AuthConfig.TokenDuration)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolString(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
}

// applyDefaults fills anything neither file nor environment provided.
func applyDefaults(cfg *Config) {
	if cfg.ExchangeConfig.RESTBaseURL == "" {
		cfg.ExchangeConfig.RESTBaseURL = "https://api.bybit.com"
	}
	if cfg.ExchangeConfig.WSBaseURL == "" {
		cfg.ExchangeConfig.WSBaseURL = "wss://stream.bybit.com/v5/public/linear"
	}
	if cfg.ExchangeConfig.RateLimit == 0 {
		cfg.ExchangeConfig.RateLimit = 10
	}
	if cfg.ExchangeConfig.RateBurst == 0 {
		cfg.ExchangeConfig.RateBurst = 20
	}

	if cfg.TradingConfig.InitialBalance == 0 {
		cfg.TradingConfig.InitialBalance = 30.0
	}
	if cfg.TradingConfig.Leverage == 0 {
		cfg.TradingConfig.Leverage = 10
	}
	if cfg.TradingConfig.MarginPerTrade == 0 {
		cfg.TradingConfig.MarginPerTrade = 3.0
	}
	if cfg.TradingConfig.MaxMarginPerTrade == 0 {
		cfg.TradingConfig.MaxMarginPerTrade = 10.0
	}
	if cfg.TradingConfig.MinAvailableMargin == 0 {
		cfg.TradingConfig.MinAvailableMargin = 3.0
	}
	if cfg.TradingConfig.TargetProfit == 0 {
		cfg.TradingConfig.TargetProfit = 1.0
	}
	if cfg.TradingConfig.CommissionRate == 0 {
		cfg.TradingConfig.CommissionRate = 0.0006
	}
	if cfg.TradingConfig.TradesFile == "" {
		cfg.TradingConfig.TradesFile = "trades.json"
	}

	if cfg.StrategyConfig.Timeframe == "" {
		cfg.StrategyConfig.Timeframe = "4h"
	}
	if cfg.StrategyConfig.CandleLimit == 0 {
		cfg.StrategyConfig.CandleLimit = 1000
	}
	if cfg.StrategyConfig.InvalidationPct == 0 {
		cfg.StrategyConfig.InvalidationPct = 0.90
	}
	if cfg.StrategyConfig.SecondaryInvalidationPct == 0 {
		cfg.StrategyConfig.SecondaryInvalidationPct = 1.0 // disabled
	}
	if cfg.StrategyConfig.DynamicTakeProfitPct == 0 {
		cfg.StrategyConfig.DynamicTakeProfitPct = 0.60
	}
	if cfg.StrategyConfig.Cases == nil {
		cfg.StrategyConfig.Cases = DefaultCases()
	}
	if cfg.StrategyConfig.ZigZag == nil {
		cfg.StrategyConfig.ZigZag = DefaultZigZagConfigs()
	}

	if cfg.ScannerConfig.TopPairsLimit == 0 {
		cfg.ScannerConfig.TopPairsLimit = 100
	}
	if len(cfg.ScannerConfig.ExcludedPairs) == 0 {
		cfg.ScannerConfig.ExcludedPairs = DefaultExcludedPairs()
	}
	if cfg.ScannerConfig.RSITimeframe == "" {
		cfg.ScannerConfig.RSITimeframe = "5m"
	}
	if cfg.ScannerConfig.ScanInterval == 0 {
		cfg.ScannerConfig.ScanInterval = 30
	}
	if cfg.ScannerConfig.FirstScanDelay == 0 {
		cfg.ScannerConfig.FirstScanDelay = 5
	}
	if cfg.ScannerConfig.WorkerCount == 0 {
		cfg.ScannerConfig.WorkerCount = 10
	}

	if cfg.CandleConfig.Path == "" {
		cfg.CandleConfig.Path = "candles.db"
	}
	if cfg.CandleConfig.SyncDays == 0 {
		cfg.CandleConfig.SyncDays = 5
	}

	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}

	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}

	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.ShutdownTimeout == 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}

	if cfg.AuthConfig.TokenDuration == 0 {
		cfg.AuthConfig.TokenDuration = 24 * time.Hour
	}

	if cfg.VaultConfig.Address == "" {
		cfg.VaultConfig.Address = "http://localhost:8200"
	}
	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}
	if cfg.VaultConfig.SecretPath == "" {
		cfg.VaultConfig.SecretPath = "fibonacci-bot/api-keys"
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "INFO"
	}
	if cfg.LoggingConfig.Output == "" {
		cfg.LoggingConfig.Output = "stdout"
	}
}

// DefaultCases returns the Bybit-variant case table. Zones and exits are
// fractions of the swing range measured from the LOW.
func DefaultCases() map[int]CaseSettings {
	return map[int]CaseSettings{
		1: {ZoneMin: 0.55, ZoneMax: 0.618, TakeProfitPct: 0.55, StopLossPct: 0.90, CancelBelowPct: 0.20, LinkedLevels: []float64{0.786}},
		2: {ZoneMin: 0.618, ZoneMax: 0.69, TakeProfitPct: 0.55, StopLossPct: 1.30, CancelBelowPct: 0, LinkedLevels: []float64{0.786, 1.20}},
		3: {ZoneMin: 0.69, ZoneMax: 0.786, TakeProfitPct: 0.62, StopLossPct: 1.05, CancelBelowPct: 0.30},
		4: {ZoneMin: 0.786, ZoneMax: 0.90, TakeProfitPct: 0.62, StopLossPct: 1.05, CancelBelowPct: 0.79},
	}
}

// DefaultZigZagConfigs returns the per-timeframe pivot detection parameters.
func DefaultZigZagConfigs() map[string]ZigZagConfig {
	return map[string]ZigZagConfig{
		"1m":  {Deviation: 0.3, Depth: 5},
		"5m":  {Deviation: 0.5, Depth: 5},
		"15m": {Deviation: 1, Depth: 5},
		"1h":  {Deviation: 2, Depth: 8},
		"2h":  {Deviation: 2.5, Depth: 9},
		"4h":  {Deviation: 3, Depth: 10},
		"1d":  {Deviation: 5, Depth: 10},
	}
}

// DefaultExcludedPairs returns stablecoin and index pairs the scanner skips.
func DefaultExcludedPairs() []string {
	return []string{
		"USDCUSDT", "TUSDUSDT", "BUSDUSDT", "FDUSDUSDT", "USDPUSDT",
		"BTCDOMUSDT", "DAIUSDT", "EURUSDT", "GBPUSDT",
	}
}

// ZigZagFor returns the pivot detection parameters for a timeframe,
// falling back to the 1h profile for unknown intervals.
func (s *StrategyConfig) ZigZagFor(timeframe string) ZigZagConfig {
	if zz, ok := s.ZigZag[timeframe]; ok {
		return zz
	}
	return s.ZigZag["1h"]
}

// Case returns the settings for a case number, replaced with the shipped
// defaults when a bad config file produces an inverted zone.
func (s *StrategyConfig) Case(n int) CaseSettings {
	cs := s.Cases[n]
	if cs.ZoneMax <= cs.ZoneMin {
		cs = DefaultCases()[n]
	}
	return cs
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
