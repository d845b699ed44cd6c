package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"fibonacci-trading-bot/config"
)

func testClient(baseURL string) *Client {
	return NewClient(&config.ExchangeConfig{
		RESTBaseURL: baseURL,
		RateLimit:   100,
		RateBurst:   100,
	})
}

func TestGetKlinesParsesAndSortsAscending(t *testing.T) {
	// Bybit serves the list newest-first.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/kline" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("interval"); got != "240" {
			t.Errorf("Expected interval 240 for 4h, got %s", got)
		}
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[
			["1700014400000","96000","96500","95400","95800","10","960000"],
			["1700000000000","95500","96300","95200","96000","12","1150000"]
		]}}`))
	}))
	defer srv.Close()

	series, err := testClient(srv.URL).GetKlines(context.Background(), "BTCUSDT", "4h", 2)
	if err != nil {
		t.Fatalf("GetKlines failed: %v", err)
	}
	if series.Len() != 2 {
		t.Fatalf("Expected 2 bars, got %d", series.Len())
	}
	first := series.Bar(0)
	if first.Time != 1700000000 {
		t.Errorf("Expected oldest bar first with time in seconds, got %d", first.Time)
	}
	if first.Open != 95500 || first.High != 96300 || first.Low != 95200 || first.Close != 96000 {
		t.Errorf("Bar parsed wrong: %+v", first)
	}
}

func TestGetKlinesRejectsUnknownTimeframe(t *testing.T) {
	if _, err := testClient("http://unused").GetKlines(context.Background(), "BTCUSDT", "7h", 10); err == nil {
		t.Error("Expected error for unsupported timeframe")
	}
}

func TestGetRejectsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10001,"retMsg":"params error","result":{}}`))
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).GetTickers(context.Background()); err == nil {
		t.Error("Expected error for non-zero retCode")
	}
}

func TestGetLastPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("Expected symbol BTCUSDT, got %s", got)
		}
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[
			{"symbol":"BTCUSDT","lastPrice":"95800.5","turnover24h":"100000","volume24h":"10","price24hPcnt":"-0.012"}
		]}}`))
	}))
	defer srv.Close()

	price, err := testClient(srv.URL).GetLastPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetLastPrice failed: %v", err)
	}
	if price != 95800.5 {
		t.Errorf("Expected 95800.5, got %v", price)
	}
}

func TestUnmarshalTickerData(t *testing.T) {
	raw := []byte(`{"topic":"tickers.BTCUSDT","ts":1700000000123,"data":{"symbol":"BTCUSDT","lastPrice":"96180"}}`)

	update, err := unmarshalTickerData(raw)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if update.Symbol != "BTCUSDT" || update.LastPrice != 96180 {
		t.Errorf("Parsed wrong update: %+v", update)
	}
	if update.Time != 1700000000 {
		t.Errorf("Expected time in seconds, got %d", update.Time)
	}

	ack, err := unmarshalTickerData([]byte(`{"op":"subscribe","success":true}`))
	if err != nil || ack.Symbol != "" {
		t.Errorf("Expected empty update for an ack frame, got %+v err %v", ack, err)
	}
}
