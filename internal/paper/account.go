// Package paper simulates an exchange account: margin accounting, order
// fills, position averaging and trade history, without touching a real
// exchange.
package paper

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fibonacci-trading-bot/config"
	"fibonacci-trading-bot/internal/fibonacci"
	"fibonacci-trading-bot/internal/market"
	"fibonacci-trading-bot/internal/simulator"
)

var (
	ErrInsufficientMargin = errors.New("insufficient available margin")
	ErrNoOrders           = errors.New("decision carries no orders")
)

// Order is a pending limit order on the paper account. Linked orders
// average into the position opened by their group's primary fill.
type Order struct {
	ID          string  `json:"id"`
	GroupID     string  `json:"group_id"`
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"`
	Case        int     `json:"case"`
	FibHigh     float64 `json:"fib_high"`
	FibLow      float64 `json:"fib_low"`
	TakeProfit  float64 `json:"take_profit"`
	StopLoss    float64 `json:"stop_loss"`
	CancelBelow float64 `json:"cancel_below"`
	CreatedAt   int64   `json:"created_at"`
}

// Position is an open SHORT position with its exit levels and the
// margin it holds.
type Position struct {
	ID         string             `json:"id"`
	GroupID    string             `json:"group_id"`
	Inner      simulator.Position `json:"position"`
	TakeProfit float64            `json:"take_profit"`
	StopLoss   float64            `json:"stop_loss"`
	Margin     float64            `json:"margin"`
	MinPnl     float64            `json:"min_pnl"` // worst floating PnL seen
	MaxPnl     float64            `json:"max_pnl"` // best floating PnL seen
}

// ClosedTrade is the immutable history record of a finished trade.
type ClosedTrade struct {
	ID         string           `json:"id"`
	Symbol     string           `json:"symbol"`
	Case       int              `json:"case"`
	Side       string           `json:"side"`
	Entry      float64          `json:"entry"`
	Exit       float64          `json:"exit"`
	Quantity   float64          `json:"quantity"`
	GrossPnl   float64          `json:"gross_pnl"`
	Commission float64          `json:"commission"`
	NetPnl     float64          `json:"net_pnl"`
	Status     simulator.Status `json:"status"`
	Fills      int              `json:"fills"`
	MinPnl     float64          `json:"min_pnl"`
	MaxPnl     float64          `json:"max_pnl"`
	OpenedAt   int64            `json:"opened_at"`
	ClosedAt   int64            `json:"closed_at"`
}

// Account is a thread-safe paper trading account.
type Account struct {
	mu        sync.RWMutex
	trading   *config.TradingConfig
	averaging *simulator.AveragingEngine
	logger    zerolog.Logger

	balance    float64
	usedMargin float64
	positions  map[string]*Position // by group ID, one position per order group
	pending    map[string]*Order    // by order ID
	history    []ClosedTrade
}

func NewAccount(trading *config.TradingConfig, strategy *config.StrategyConfig, logger zerolog.Logger) *Account {
	return &Account{
		trading:   trading,
		averaging: simulator.NewAveragingEngine(strategy),
		logger:    logger.With().Str("component", "PaperAccount").Logger(),
		balance:   trading.InitialBalance,
		positions: make(map[string]*Position),
		pending:   make(map[string]*Order),
	}
}

// Place executes a case decision: market orders open (or average into)
// a position immediately, limit orders wait in the book. All orders of
// one decision share a group so later fills average into one position.
func (a *Account) Place(symbol string, d fibonacci.Decision, price float64, now int64) (string, error) {
	if len(d.Orders) == 0 {
		return "", ErrNoOrders
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	margin := a.trading.MarginPerTrade
	if limit := a.trading.MaxMarginPerTrade; limit > 0 && margin*float64(len(d.Orders)) > limit {
		// The whole group of fills counts as one trade against the cap.
		margin = limit / float64(len(d.Orders))
	}
	required := margin * float64(len(d.Orders))
	if a.balance-a.usedMargin-required < a.trading.MinAvailableMargin {
		return "", ErrInsufficientMargin
	}

	groupID := uuid.New().String()
	for _, o := range d.Orders {
		qty := a.quantityFor(o.Price, margin)
		if o.Type == fibonacci.OrderTypeMarket {
			a.fill(groupID, symbol, d, price, qty, now)
			continue
		}
		order := &Order{
			ID:          uuid.New().String(),
			GroupID:     groupID,
			Symbol:      symbol,
			Price:       o.Price,
			Quantity:    qty,
			Case:        d.Case,
			FibHigh:     d.Swing.High.Price,
			FibLow:      d.Swing.Low.Price,
			TakeProfit:  d.TakeProfit,
			StopLoss:    d.StopLoss,
			CancelBelow: d.CancelBelow,
			CreatedAt:   now,
		}
		a.pending[order.ID] = order
		a.logger.Info().
			Str("symbol", symbol).
			Str("case", d.Label()).
			Float64("price", o.Price).
			Float64("quantity", qty).
			Msg("Pending limit order placed")
	}

	return groupID, nil
}

// ProcessBar advances the account by one bar of one symbol: pending
// orders cancel or fill, open positions exit on stop or target. The
// stop wins any same-bar tie, a cancellation wins over a fill.
func (a *Account) ProcessBar(symbol string, bar market.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var filled []*Order
	for id, order := range a.pending {
		if order.Symbol != symbol {
			continue
		}
		if order.CancelBelow > 0 && bar.Low <= order.CancelBelow {
			delete(a.pending, id)
			a.logger.Info().
				Str("symbol", symbol).
				Float64("price", order.Price).
				Float64("cancel_level", order.CancelBelow).
				Msg("Pending order cancelled")
			continue
		}
		if bar.High >= order.Price {
			delete(a.pending, id)
			filled = append(filled, order)
		}
	}
	for _, order := range filled {
		a.fillPending(order, bar.Time)
	}

	for groupID, pos := range a.positions {
		if pos.Inner.Symbol != symbol {
			continue
		}
		qty := pos.Inner.Quantity
		if best := (pos.Inner.EntryPrice - bar.Low) * qty; best > pos.MaxPnl {
			pos.MaxPnl = best
		}
		if worst := (pos.Inner.EntryPrice - bar.High) * qty; worst < pos.MinPnl {
			pos.MinPnl = worst
		}
		switch {
		case pos.StopLoss > 0 && bar.High >= pos.StopLoss:
			a.close(groupID, pos, pos.StopLoss, simulator.StatusSL, bar.Time)
		case bar.Low <= pos.TakeProfit:
			a.close(groupID, pos, pos.TakeProfit, simulator.StatusTP, bar.Time)
		}
	}
}

// HasExposure reports whether the account already holds an open position
// or a pending order on the symbol.
func (a *Account) HasExposure(symbol string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, pos := range a.positions {
		if pos.Inner.Symbol == symbol {
			return true
		}
	}
	for _, order := range a.pending {
		if order.Symbol == symbol {
			return true
		}
	}
	return false
}

// Balance returns the current account balance.
func (a *Account) Balance() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.balance
}

// AvailableMargin returns balance not held by open positions.
func (a *Account) AvailableMargin() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.balance - a.usedMargin
}

// OpenPositions returns a snapshot of the open positions.
func (a *Account) OpenPositions() []Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, *p)
	}
	return out
}

// PendingOrders returns a snapshot of the unfilled limit orders.
func (a *Account) PendingOrders() []Order {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Order, 0, len(a.pending))
	for _, o := range a.pending {
		out = append(out, *o)
	}
	return out
}

// History returns the closed trades, oldest first.
func (a *Account) History() []ClosedTrade {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]ClosedTrade, len(a.history))
	copy(out, a.history)
	return out
}

// quantityFor sizes a fill from its margin allotment and leverage.
func (a *Account) quantityFor(price, margin float64) float64 {
	if price <= 0 {
		return 0
	}
	return margin * float64(a.trading.Leverage) / price
}

// fill opens a position for the group or averages into the existing
// one. Callers hold the lock.
func (a *Account) fill(groupID, symbol string, d fibonacci.Decision, price, qty float64, now int64) {
	exec := simulator.Execution{Price: price, Quantity: qty, Time: now}
	margin := price * qty / float64(a.trading.Leverage)

	if pos, ok := a.positions[groupID]; ok {
		pos.TakeProfit = a.averaging.Merge(&pos.Inner, exec, pos.TakeProfit)
		pos.Margin += margin
		a.usedMargin += margin
		a.logger.Info().
			Str("symbol", symbol).
			Float64("fill_price", price).
			Float64("entry", pos.Inner.EntryPrice).
			Float64("take_profit", pos.TakeProfit).
			Msg("Averaged into position")
		return
	}

	pos := &Position{
		ID:      uuid.New().String(),
		GroupID: groupID,
		Inner: simulator.Position{
			Symbol:     symbol,
			EntryPrice: price,
			Quantity:   qty,
			FibHigh:    d.Swing.High.Price,
			FibLow:     d.Swing.Low.Price,
			Case:       d.Case,
			OpenedAt:   now,
			Executions: []simulator.Execution{exec},
		},
		TakeProfit: d.TakeProfit,
		StopLoss:   d.StopLoss,
		Margin:     margin,
	}
	a.positions[groupID] = pos
	a.usedMargin += margin
	a.logger.Info().
		Str("symbol", symbol).
		Str("case", d.Label()).
		Float64("entry", price).
		Float64("quantity", qty).
		Msg("Position opened")
}

// fillPending converts a filled limit order into a position fill.
// Callers hold the lock.
func (a *Account) fillPending(order *Order, now int64) {
	exec := simulator.Execution{Price: order.Price, Quantity: order.Quantity, Time: now}
	margin := order.Price * order.Quantity / float64(a.trading.Leverage)

	if pos, ok := a.positions[order.GroupID]; ok {
		pos.TakeProfit = a.averaging.Merge(&pos.Inner, exec, pos.TakeProfit)
		pos.Margin += margin
		a.usedMargin += margin
		a.logger.Info().
			Str("symbol", order.Symbol).
			Float64("fill_price", order.Price).
			Float64("entry", pos.Inner.EntryPrice).
			Float64("take_profit", pos.TakeProfit).
			Msg("Linked limit filled, position averaged")
		return
	}

	pos := &Position{
		ID:      uuid.New().String(),
		GroupID: order.GroupID,
		Inner: simulator.Position{
			Symbol:     order.Symbol,
			EntryPrice: order.Price,
			Quantity:   order.Quantity,
			FibHigh:    order.FibHigh,
			FibLow:     order.FibLow,
			Case:       order.Case,
			OpenedAt:   now,
			Executions: []simulator.Execution{exec},
		},
		TakeProfit: order.TakeProfit,
		StopLoss:   order.StopLoss,
		Margin:     margin,
	}
	a.positions[order.GroupID] = pos
	a.usedMargin += margin
	a.logger.Info().
		Str("symbol", order.Symbol).
		Float64("entry", order.Price).
		Float64("quantity", order.Quantity).
		Msg("Limit order filled, position opened")
}

// close realizes a position at the exit price, releases its margin and
// cancels any linked orders still pending. Callers hold the lock.
func (a *Account) close(groupID string, pos *Position, exit float64, status simulator.Status, now int64) {
	qty := pos.Inner.Quantity
	gross := (pos.Inner.EntryPrice - exit) * qty
	var fee float64
	if a.trading.CommissionsEnabled {
		fee = (pos.Inner.EntryPrice + exit) * qty * a.trading.CommissionRate
	}

	a.balance += gross - fee
	a.usedMargin -= pos.Margin
	delete(a.positions, groupID)

	for id, order := range a.pending {
		if order.GroupID == groupID {
			delete(a.pending, id)
		}
	}

	a.history = append(a.history, ClosedTrade{
		ID:         pos.ID,
		Symbol:     pos.Inner.Symbol,
		Case:       pos.Inner.Case,
		Side:       "SHORT",
		Entry:      pos.Inner.EntryPrice,
		Exit:       exit,
		Quantity:   qty,
		GrossPnl:   gross,
		Commission: fee,
		NetPnl:     gross - fee,
		Status:     status,
		Fills:      len(pos.Inner.Executions),
		MinPnl:     pos.MinPnl,
		MaxPnl:     pos.MaxPnl,
		OpenedAt:   pos.Inner.OpenedAt,
		ClosedAt:   now,
	})

	a.logger.Info().
		Str("symbol", pos.Inner.Symbol).
		Str("status", string(status)).
		Float64("exit", exit).
		Float64("net_pnl", gross-fee).
		Float64("balance", a.balance).
		Msg("Position closed")
}
