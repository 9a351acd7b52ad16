// Package broker defines the minimal surface the trading engine needs from a
// market-execution backend, plus the shared types passed between the engine
// and a backend.
//
// Three concrete implementations exist:
//   - pkg/upstox      – Upstox v2 REST client (NSE, the primary backend)
//   - broker_alpaca.go – Alpaca backend for US accounts
//   - broker_paper.go  – in-memory paper broker (no external calls)
package broker

import (
	"context"
	"time"
)

// Side is the side of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType selects how an order is priced.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Product is the broker product/settlement type. "D" (delivery) is what the
// engine trades; "I" exists for completeness with the Upstox API.
type Product string

const (
	ProductDelivery Product = "D"
	ProductIntraday Product = "I"
)

// Instrument pairs a trading symbol with the broker's opaque instrument key.
// Immutable once loaded from the instrument universe for the day.
type Instrument struct {
	Symbol string
	Key    string
}

// Quote is a per-symbol intraday snapshot. Fetched fresh every cycle, never
// persisted.
type Quote struct {
	Symbol    string
	LastPrice float64
	DayHigh   float64
	FetchedAt time.Time
}

// Position is an intraday-opened, not-yet-settled holding. Owned by the
// broker; the engine re-reads it every cycle.
type Position struct {
	Symbol        string
	InstrumentKey string
	Quantity      int64
	CostBasis     float64
	// SellPrice > 0 means the position has already been (partially) exited.
	SellPrice float64
}

// Holding is a settled holding carried over from a previous trading day.
// UsedQuantity is the portion blocked against an open or completed delivery
// order (cnc_used_quantity in Upstox terms).
type Holding struct {
	Symbol        string
	InstrumentKey string
	Quantity      int64
	UsedQuantity  int64
}

// OrderRequest describes one order to place.
type OrderRequest struct {
	Side          Side
	Symbol        string
	InstrumentKey string
	Quantity      int64
	OrderType     OrderType
	Product       Product
	// Price is only consulted for limit orders.
	Price float64
	// Tag is a client-side correlation ID attached to logs around this order.
	Tag string
}

// OrderResult is the broker's normalized answer to an order placement.
// Accepted=false carries the broker-provided rejection reason; the engine
// logs it and does not retry within the cycle.
type OrderResult struct {
	OrderID         string
	Accepted        bool
	RejectionReason string
}

// Broker is the account-state and execution surface the engine consumes.
// Every call may fail; callers treat failure as "no data this cycle", never
// as fatal (see IsTransient).
type Broker interface {
	Name() string
	Positions(ctx context.Context) ([]Position, error)
	Holdings(ctx context.Context) ([]Holding, error)
	// OpenOrderSymbols returns the symbols that currently have an open order
	// on the given side.
	OpenOrderSymbols(ctx context.Context, side Side) (map[string]bool, error)
	AvailableBalance(ctx context.Context) (float64, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
}

// QuoteProvider serves intraday OHLC snapshots and historical daily closes.
// OHLC takes a single chunk no larger than the provider's batch limit; the
// quotes.Fetcher handles chunking and fan-out above this interface.
type QuoteProvider interface {
	OHLC(ctx context.Context, instruments []Instrument) (map[string]Quote, error)
	// HistoricalClose returns the daily close for the given reference date,
	// or an error when the provider has no candle for that symbol/date.
	HistoricalClose(ctx context.Context, inst Instrument, refDate time.Time) (float64, error)
}
