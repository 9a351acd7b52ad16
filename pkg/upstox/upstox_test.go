package upstox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/broker"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-token", zap.NewNop())
	c.BaseURL = srv.URL
	return c
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func envelope(data string) string {
	return `{"status":"success","data":` + data + `}`
}

func TestDoSendsBearerToken(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, envelope(`{"equity":{"available_margin":1000}}`))
	}))

	if _, err := c.AvailableBalance(context.Background()); err != nil {
		t.Fatalf("AvailableBalance: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want Bearer test-token", gotAuth)
	}
}

func TestDoClassifiesFailures(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransient bool
	}{
		{"rate limited", http.StatusTooManyRequests, "slow down", true},
		{"server error", http.StatusBadGateway, "bad gateway", true},
		{"bad request", http.StatusBadRequest, "nope", false},
		{"api-level failure", http.StatusOK,
			`{"status":"error","errors":[{"message":"invalid token"}]}`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			_, err := c.AvailableBalance(context.Background())
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := broker.IsTransient(err); got != tc.wantTransient {
				t.Errorf("IsTransient = %v, want %v (err %v)", got, tc.wantTransient, err)
			}
		})
	}
}

func TestOHLC(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("instrument_key"); got != "NSE_EQ|1,NSE_EQ|2" {
			t.Errorf("instrument_key = %q", got)
		}
		fmt.Fprint(w, envelope(`{
			"NSE_EQ:ALPHA":{"last_price":118.5,"ohlc":{"high":120,"low":95}},
			"NSE_EQ:BETA":{"last_price":0,"ohlc":{"high":50}}
		}`))
	}))

	quotes, err := c.OHLC(context.Background(), []broker.Instrument{
		{Symbol: "ALPHA", Key: "NSE_EQ|1"},
		{Symbol: "BETA", Key: "NSE_EQ|2"},
	})
	if err != nil {
		t.Fatalf("OHLC: %v", err)
	}

	q, ok := quotes["ALPHA"]
	if !ok {
		t.Fatal("ALPHA missing from quotes")
	}
	if q.LastPrice != 118.5 || q.DayHigh != 120 {
		t.Errorf("ALPHA quote = %+v", q)
	}
	if _, ok := quotes["BETA"]; ok {
		t.Error("unpriced BETA must be dropped")
	}
}

func TestHistoricalClose(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(`{"candles":[["2025-08-12T00:00:00+05:30",100,122,98,105.25,123456,0]]}`))
	}))

	inst := broker.Instrument{Symbol: "ALPHA", Key: "NSE_EQ|1"}
	price, err := c.HistoricalClose(context.Background(), inst, mustDate(t, "2025-08-12"))
	if err != nil {
		t.Fatalf("HistoricalClose: %v", err)
	}
	if price != 105.25 {
		t.Errorf("close = %v, want 105.25", price)
	}
}

func TestHistoricalCloseNoCandle(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(`{"candles":[]}`))
	}))

	inst := broker.Instrument{Symbol: "NEWLISTING", Key: "NSE_EQ|9"}
	_, err := c.HistoricalClose(context.Background(), inst, mustDate(t, "2025-08-12"))
	if err == nil {
		t.Fatal("expected an error for a missing candle")
	}
	if broker.IsTransient(err) {
		t.Error("missing candle should be permanent for the day")
	}
}

func TestPlaceOrderAcceptedAndRejected(t *testing.T) {
	tests := []struct {
		name       string
		details    string
		wantOK     bool
		wantReason string
	}{
		{"accepted", `{"status":"complete","status_message":""}`, true, ""},
		{"rejected", `{"status":"rejected","status_message":"RMS:margin shortfall"}`,
			false, "RMS:margin shortfall"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var placeBody placeOrderRequest
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/order/place":
					if err := json.NewDecoder(r.Body).Decode(&placeBody); err != nil {
						t.Errorf("decode order body: %v", err)
					}
					fmt.Fprint(w, envelope(`{"order_id":"OID-1"}`))
				case "/order/details":
					if got := r.URL.Query().Get("order_id"); got != "OID-1" {
						t.Errorf("order_id = %q", got)
					}
					fmt.Fprint(w, envelope(tc.details))
				default:
					t.Errorf("unexpected path %s", r.URL.Path)
				}
			}))

			result, err := c.PlaceOrder(context.Background(), broker.OrderRequest{
				Side:          broker.SideBuy,
				Symbol:        "ALPHA",
				InstrumentKey: "NSE_EQ|1",
				Quantity:      10,
				OrderType:     broker.OrderTypeMarket,
				Product:       broker.ProductDelivery,
			})
			if err != nil {
				t.Fatalf("PlaceOrder: %v", err)
			}
			if result.Accepted != tc.wantOK {
				t.Errorf("Accepted = %v, want %v", result.Accepted, tc.wantOK)
			}
			if result.RejectionReason != tc.wantReason {
				t.Errorf("RejectionReason = %q, want %q", result.RejectionReason, tc.wantReason)
			}
			if placeBody.Validity != "DAY" || placeBody.TransactionType != "BUY" ||
				placeBody.InstrumentToken != "NSE_EQ|1" {
				t.Errorf("order body = %+v", placeBody)
			}
		})
	}
}

func TestPlaceOrderStatusCheckFailureIsAccepted(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/order/place":
			fmt.Fprint(w, envelope(`{"order_id":"OID-2"}`))
		case "/order/details":
			w.WriteHeader(http.StatusBadGateway)
		}
	}))

	result, err := c.PlaceOrder(context.Background(), broker.OrderRequest{
		Side: broker.SideBuy, Symbol: "ALPHA", InstrumentKey: "NSE_EQ|1",
		Quantity: 10, OrderType: broker.OrderTypeMarket, Product: broker.ProductDelivery,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if !result.Accepted {
		t.Error("a placed order with an unreachable status check must count as accepted")
	}
}

func TestOpenOrderSymbols(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(`[
			{"trading_symbol":"ALPHA","transaction_type":"BUY","status":"open"},
			{"trading_symbol":"BETA","transaction_type":"BUY","status":"complete"},
			{"trading_symbol":"GAMMA","transaction_type":"SELL","status":"open"},
			{"tradingsymbol":"DELTA","transaction_type":"BUY","status":"trigger pending"}
		]`))
	}))

	open, err := c.OpenOrderSymbols(context.Background(), broker.SideBuy)
	if err != nil {
		t.Fatalf("OpenOrderSymbols: %v", err)
	}
	for _, want := range []string{"ALPHA", "DELTA"} {
		if !open[want] {
			t.Errorf("%s missing from open buys: %v", want, open)
		}
	}
	for _, reject := range []string{"BETA", "GAMMA"} {
		if open[reject] {
			t.Errorf("%s must not count as an open buy", reject)
		}
	}
}

func TestPositionsAndHoldings(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/portfolio/short-term-positions":
			fmt.Fprint(w, envelope(`[
				{"trading_symbol":"ALPHA","instrument_token":"NSE_EQ|1","quantity":10,"average_price":99.5,"sell_price":0}
			]`))
		case "/portfolio/long-term-holdings":
			fmt.Fprint(w, envelope(`[
				{"tradingsymbol":"BETA","instrument_token":"NSE_EQ|2","quantity":5,"cnc_used_quantity":5}
			]`))
		}
	}))

	positions, err := c.Positions(context.Background())
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(positions) != 1 || positions[0].Symbol != "ALPHA" || positions[0].Quantity != 10 {
		t.Errorf("positions = %+v", positions)
	}

	holdings, err := c.Holdings(context.Background())
	if err != nil {
		t.Fatalf("Holdings: %v", err)
	}
	if len(holdings) != 1 || holdings[0].Symbol != "BETA" || holdings[0].UsedQuantity != 5 {
		t.Errorf("holdings = %+v", holdings)
	}
}

func TestSymbolFromQuoteKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"NSE_EQ:RELIANCE", "RELIANCE"},
		{"NSE_EQ:M:M", "M"}, // last colon wins
		{"BARE", "BARE"},
	}
	for _, tc := range tests {
		if got := symbolFromQuoteKey(tc.in); got != tc.want {
			t.Errorf("symbolFromQuoteKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
