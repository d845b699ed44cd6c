package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"fibonacci-trading-bot/internal/fibonacci"
	"fibonacci-trading-bot/internal/market"
	"fibonacci-trading-bot/internal/metrics"
	"fibonacci-trading-bot/internal/simulator"
	"fibonacci-trading-bot/internal/zigzag"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(s.startedAt).String(),
	})
}

// handleStatus reports the paper account state and aggregate metrics.
func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"uptime": time.Since(s.startedAt).String(),
	}

	if s.account != nil {
		history := s.account.History()
		status["balance"] = s.account.Balance()
		status["available_margin"] = s.account.AvailableMargin()
		status["open_positions"] = len(s.account.OpenPositions())
		status["pending_orders"] = len(s.account.PendingOrders())
		status["metrics"] = metrics.Compute(history)
	}

	if s.scan != nil {
		if cycle := s.scan.LastScan(); cycle != nil {
			status["last_scan"] = gin.H{
				"scan_id":         cycle.ScanID,
				"finished_at":     cycle.EndTime,
				"symbols_scanned": cycle.SymbolsScanned,
				"setups":          len(cycle.Results),
			}
		}
	}

	c.JSON(http.StatusOK, status)
}

// handleScan returns the most recent scan cycle.
func (s *Server) handleScan(c *gin.Context) {
	if s.scan == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scanner is not running"})
		return
	}

	cycle := s.scan.LastScan()
	if cycle == nil {
		c.JSON(http.StatusOK, gin.H{"results": []struct{}{}})
		return
	}
	c.JSON(http.StatusOK, cycle)
}

type classifyRequest struct {
	Symbol    string  `json:"symbol" binding:"required"`
	Timeframe string  `json:"timeframe"`
	Price     float64 `json:"price"`
}

// handleClassify runs the full pipeline for one symbol on demand.
func (s *Server) handleClassify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.client == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market data is not available"})
		return
	}

	timeframe := req.Timeframe
	if timeframe == "" {
		timeframe = s.strategy.Timeframe
	}

	series, err := s.client.GetKlines(c.Request.Context(), req.Symbol, timeframe, s.strategy.CandleLimit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("failed to load candles: %v", err)})
		return
	}

	pivots := zigzag.Detect(series, zigzag.Config(s.strategy.ZigZagFor(timeframe)))
	sel, ok := fibonacci.NewSelector(s.strategy).Select(series, pivots)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no valid swing"})
		return
	}

	price := req.Price
	if price <= 0 {
		price, err = s.client.GetLastPrice(c.Request.Context(), req.Symbol)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("failed to fetch price: %v", err)})
			return
		}
	}

	decision, ok := fibonacci.NewClassifier(s.strategy).Classify(series, sel, price)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "price outside every case zone"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":     req.Symbol,
		"timeframe":  timeframe,
		"price":      price,
		"case_label": decision.Label(),
		"decision":   decision,
	})
}

type simulateRequest struct {
	Position   simulator.Position `json:"position" binding:"required"`
	TakeProfit float64            `json:"take_profit" binding:"required"`
	StopLoss   float64            `json:"stop_loss"`
	Candles    []market.Bar       `json:"candles" binding:"required"`
}

// handleSimulate replays a position over the supplied candles.
func (s *Server) handleSimulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	series := market.NewSeries(req.Candles)
	result := s.path.Simulate(req.Position, req.TakeProfit, req.StopLoss, series)

	c.JSON(http.StatusOK, result)
}

type optimizeRequest struct {
	Position simulator.Position   `json:"position" binding:"required"`
	Grid     simulator.GridConfig `json:"grid" binding:"required"`
	Candles  []market.Bar         `json:"candles" binding:"required"`
}

// handleOptimize sweeps the TP/SL grid over the supplied candles.
func (s *Server) handleOptimize(c *gin.Context) {
	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	series := market.NewSeries(req.Candles)
	points := s.optimizer.Optimize(req.Position, req.Grid, series)

	response := gin.H{"points": points}
	if best, ok := simulator.Best(points); ok {
		response["best"] = best
	}
	c.JSON(http.StatusOK, response)
}

// handleTrades returns closed paper trades, newest first.
func (s *Server) handleTrades(c *gin.Context) {
	if s.account == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "paper account is not available"})
		return
	}

	symbol := c.Query("symbol")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	trades := s.account.History()
	filtered := trades[:0:0]
	for i := len(trades) - 1; i >= 0; i-- {
		if symbol != "" && trades[i].Symbol != symbol {
			continue
		}
		filtered = append(filtered, trades[i])
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{"trades": filtered, "count": len(filtered)})
}

// handleTradesExport streams the trade history as a flat CSV table.
func (s *Server) handleTradesExport(c *gin.Context) {
	if s.account == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "paper account is not available"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="trades.csv"`)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{
		"id", "symbol", "case", "side", "entry", "exit", "quantity",
		"gross_pnl", "commission", "net_pnl", "status", "fills",
		"min_pnl", "max_pnl", "opened_at", "closed_at",
	})

	for _, t := range s.account.History() {
		_ = w.Write([]string{
			t.ID,
			t.Symbol,
			strconv.Itoa(t.Case),
			t.Side,
			strconv.FormatFloat(t.Entry, 'f', -1, 64),
			strconv.FormatFloat(t.Exit, 'f', -1, 64),
			strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			strconv.FormatFloat(t.GrossPnl, 'f', -1, 64),
			strconv.FormatFloat(t.Commission, 'f', -1, 64),
			strconv.FormatFloat(t.NetPnl, 'f', -1, 64),
			string(t.Status),
			strconv.Itoa(t.Fills),
			strconv.FormatFloat(t.MinPnl, 'f', -1, 64),
			strconv.FormatFloat(t.MaxPnl, 'f', -1, 64),
			strconv.FormatInt(t.OpenedAt, 10),
			strconv.FormatInt(t.ClosedAt, 10),
		})
	}
	w.Flush()
}

// handleCandles serves stored candles for charting.
func (s *Server) handleCandles(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "candle store is not available"})
		return
	}

	symbol := c.Param("symbol")
	timeframe := c.DefaultQuery("timeframe", s.strategy.Timeframe)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))

	series, err := s.store.Load(c.Request.Context(), symbol, timeframe, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"timeframe": timeframe,
		"candles":   series.Bars(),
	})
}
