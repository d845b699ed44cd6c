package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pingInterval     = 20 * time.Second
	reconnectBackoff = 5 * time.Second
)

// TickerUpdate is one live price tick.
type TickerUpdate struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"last_price"`
	Time      int64   `json:"time"`
}

// TickerStream maintains a Bybit public websocket subscription and
// pushes price updates to a channel. It reconnects on any read error
// until the context is cancelled.
type TickerStream struct {
	url     string
	logger  zerolog.Logger
	updates chan TickerUpdate
}

func NewTickerStream(wsURL string, logger zerolog.Logger) *TickerStream {
	return &TickerStream{
		url:     wsURL,
		logger:  logger.With().Str("component", "TickerStream").Logger(),
		updates: make(chan TickerUpdate, 256),
	}
}

// Updates returns the channel live ticks arrive on. It is closed when
// the stream stops.
func (s *TickerStream) Updates() <-chan TickerUpdate {
	return s.updates
}

// Start connects and subscribes, then keeps the stream alive in the
// background until ctx is cancelled.
func (s *TickerStream) Start(ctx context.Context, symbols []string) {
	go func() {
		defer close(s.updates)
		for {
			if err := s.run(ctx, symbols); err != nil {
				s.logger.Warn().Err(err).Msg("Stream disconnected, reconnecting")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectBackoff):
			}
		}
	}()
}

func (s *TickerStream) run(ctx context.Context, symbols []string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("error dialing stream: %w", err)
	}
	defer conn.Close()

	args := make([]string, len(symbols))
	for i, sym := range symbols {
		args[i] = "tickers." + sym
	}
	sub := map[string]interface{}{"op": "subscribe", "args": args}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("error subscribing: %w", err)
	}
	s.logger.Info().Int("symbols", len(symbols)).Msg("Subscribed to ticker topics")

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(ctx, conn, done)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		update, err := unmarshalTickerData(raw)
		if err != nil || update.Symbol == "" {
			// Subscription acks and pong frames have no ticker payload.
			continue
		}

		select {
		case s.updates <- update:
		default:
			// Slow consumer; drop the tick rather than stall the read loop.
		}
	}
}

// keepAlive sends the Bybit application-level ping until the connection
// is torn down.
func (s *TickerStream) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
				return
			}
		}
	}
}

// unmarshalTickerData decodes one tickers.* frame. Frames without a
// data payload decode to a zero update.
func unmarshalTickerData(raw []byte) (TickerUpdate, error) {
	var msg struct {
		Topic string `json:"topic"`
		TS    int64  `json:"ts"`
		Data  struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return TickerUpdate{}, err
	}
	return TickerUpdate{
		Symbol:    msg.Data.Symbol,
		LastPrice: parseFloat(msg.Data.LastPrice),
		Time:      msg.TS / 1000,
	}, nil
}
