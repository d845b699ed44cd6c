// Package exchange provides the Bybit v5 market data client. Only
// public endpoints are used; the engine never places real orders.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"fibonacci-trading-bot/config"
	"fibonacci-trading-bot/internal/market"
)

// intervalCodes maps engine timeframes to Bybit kline interval codes.
var intervalCodes = map[string]string{
	"1m":  "1",
	"3m":  "3",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"2h":  "120",
	"4h":  "240",
	"6h":  "360",
	"12h": "720",
	"1d":  "D",
}

// Ticker is one row of the 24h ticker snapshot.
type Ticker struct {
	Symbol      string  `json:"symbol"`
	LastPrice   float64 `json:"lastPrice,string"`
	Turnover24h float64 `json:"turnover24h,string"`
	Volume24h   float64 `json:"volume24h,string"`
	Price24hPct float64 `json:"price24hPcnt,string"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg *config.ExchangeConfig) *Client {
	return &Client{
		baseURL:    cfg.RESTBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
}

// bybitEnvelope is the common v5 response wrapper.
type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// GetKlines fetches up to limit bars for a symbol and returns them as
// an ascending series with times in unix seconds. Bybit serves klines
// newest-first; the series is re-sorted ascending.
func (c *Client) GetKlines(ctx context.Context, symbol, timeframe string, limit int) (*market.Series, error) {
	code, ok := intervalCodes[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe: %s", timeframe)
	}

	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)
	params.Set("interval", code)
	params.Set("limit", strconv.Itoa(limit))

	var result struct {
		List [][]string `json:"list"`
	}
	if err := c.get(ctx, "/v5/market/kline", params, &result); err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}

	bars := make([]market.Bar, 0, len(result.List))
	for _, row := range result.List {
		if len(row) < 5 {
			continue
		}
		startMs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		bars = append(bars, market.Bar{
			Time:  startMs / 1000,
			Open:  parseFloat(row[1]),
			High:  parseFloat(row[2]),
			Low:   parseFloat(row[3]),
			Close: parseFloat(row[4]),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time < bars[j].Time })

	return market.NewSeries(bars), nil
}

// GetTickers fetches the 24h ticker snapshot for all linear contracts.
func (c *Client) GetTickers(ctx context.Context) ([]Ticker, error) {
	params := url.Values{}
	params.Set("category", "linear")

	var result struct {
		List []Ticker `json:"list"`
	}
	if err := c.get(ctx, "/v5/market/tickers", params, &result); err != nil {
		return nil, fmt.Errorf("error fetching tickers: %w", err)
	}
	return result.List, nil
}

// GetLastPrice fetches the current price of one symbol.
func (c *Client) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)

	var result struct {
		List []Ticker `json:"list"`
	}
	if err := c.get(ctx, "/v5/market/tickers", params, &result); err != nil {
		return 0, fmt.Errorf("error fetching price: %w", err)
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("no ticker for symbol %s", symbol)
	}
	return result.List[0].LastPrice, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error: %s", string(body))
	}

	var envelope bybitEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	if envelope.RetCode != 0 {
		return fmt.Errorf("API error %d: %s", envelope.RetCode, envelope.RetMsg)
	}

	return json.Unmarshal(envelope.Result, out)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
