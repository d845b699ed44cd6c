// Package api exposes the engine over HTTP: account status, scan
// results, on-demand classification and the replay/optimizer tools.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"fibonacci-trading-bot/config"
	"fibonacci-trading-bot/internal/auth"
	"fibonacci-trading-bot/internal/candles"
	"fibonacci-trading-bot/internal/paper"
	"fibonacci-trading-bot/internal/scanner"
	"fibonacci-trading-bot/internal/simulator"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimiter provides simple in-memory rate limiting per endpoint.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server is the HTTP API server. The candle store and scanner are
// optional; endpoints depending on a missing component answer 503.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     config.ServerConfig
	strategy   *config.StrategyConfig

	account     *paper.Account
	scan        *scanner.Scanner
	store       *candles.Store
	client      scanner.MarketData
	path        *simulator.PathSimulator
	optimizer   *simulator.Optimizer
	jwtManager  *auth.JWTManager
	rateLimiter *RateLimiter
	logger      zerolog.Logger
	startedAt   time.Time
}

// NewServer wires the HTTP surface. jwtManager may be nil to disable
// authentication on mutating routes.
func NewServer(
	cfg config.ServerConfig,
	strategy *config.StrategyConfig,
	trading *config.TradingConfig,
	account *paper.Account,
	scan *scanner.Scanner,
	store *candles.Store,
	client scanner.MarketData,
	jwtManager *auth.JWTManager,
	logger zerolog.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins(cfg.AllowedOrigins)
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "Content-Disposition"}
	router.Use(cors.New(corsConfig))

	path := simulator.NewPathSimulator(trading)

	s := &Server{
		router:      router,
		config:      cfg,
		strategy:    strategy,
		account:     account,
		scan:        scan,
		store:       store,
		client:      client,
		path:        path,
		optimizer:   simulator.NewOptimizer(path),
		jwtManager:  jwtManager,
		rateLimiter: NewRateLimiter(120, time.Minute),
		logger:      logger.With().Str("component", "APIServer").Logger(),
		startedAt:   time.Now(),
	}

	s.registerRoutes()
	return s
}

func allowedOrigins(raw string) []string {
	if raw == "" || raw == "*" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.Use(s.rateLimit())
	{
		api.GET("/status", s.handleStatus)
		api.GET("/scan", s.handleScan)
		api.GET("/trades", s.handleTrades)
		api.GET("/trades/export", s.handleTradesExport)
		api.GET("/candles/:symbol", s.handleCandles)

		protected := api.Group("")
		protected.Use(auth.Middleware(s.jwtManager))
		{
			protected.POST("/classify", s.handleClassify)
			protected.POST("/simulate", s.handleSimulate)
			protected.POST("/optimize", s.handleOptimize)
		}
	}
}

// rateLimit enforces the per-endpoint request budget.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.FullPath()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
