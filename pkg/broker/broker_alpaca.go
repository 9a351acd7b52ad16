package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AlpacaBroker adapts an Alpaca account to the Broker and QuoteProvider
// surfaces so the same engine can run against US markets. Alpaca has no
// instrument keys (the symbol is the key) and no settled-holdings bucket,
// so Holdings always comes back empty.
type AlpacaBroker struct {
	trading *alpaca.Client
	data    *marketdata.Client
	logger  *zap.Logger
}

func NewAlpacaBroker(apiKey, apiSecret, baseURL string, logger *zap.Logger) *AlpacaBroker {
	return &AlpacaBroker{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		logger: logger,
	}
}

func (a *AlpacaBroker) Name() string { return "alpaca" }

func (a *AlpacaBroker) Positions(ctx context.Context) ([]Position, error) {
	positions, err := a.trading.GetPositions()
	if err != nil {
		return nil, Transient("alpaca get positions", err)
	}
	out := make([]Position, 0, len(positions))
	for _, p := range positions {
		qty := p.Qty.IntPart()
		if qty <= 0 {
			continue
		}
		pos := Position{
			Symbol:        p.Symbol,
			InstrumentKey: p.Symbol,
			Quantity:      qty,
		}
		if p.AvgEntryPrice.IsPositive() {
			pos.CostBasis = p.AvgEntryPrice.InexactFloat64()
		}
		out = append(out, pos)
	}
	return out, nil
}

func (a *AlpacaBroker) Holdings(ctx context.Context) ([]Holding, error) {
	return nil, nil
}

func (a *AlpacaBroker) OpenOrderSymbols(ctx context.Context, side Side) (map[string]bool, error) {
	orders, err := a.trading.GetOrders(alpaca.GetOrdersRequest{Status: "open"})
	if err != nil {
		return nil, Transient("alpaca get orders", err)
	}
	open := make(map[string]bool)
	for _, o := range orders {
		if strings.EqualFold(string(o.Side), string(side)) {
			open[o.Symbol] = true
		}
	}
	return open, nil
}

func (a *AlpacaBroker) AvailableBalance(ctx context.Context) (float64, error) {
	account, err := a.trading.GetAccount()
	if err != nil {
		return 0, Transient("alpaca get account", err)
	}
	return account.Cash.InexactFloat64(), nil
}

func (a *AlpacaBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	qty := decimal.NewFromInt(req.Quantity)

	orderReq := alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		TimeInForce: alpaca.Day,
	}
	switch req.Side {
	case SideBuy:
		orderReq.Side = alpaca.Buy
	case SideSell:
		orderReq.Side = alpaca.Sell
	default:
		return nil, Permanent("alpaca place order", fmt.Errorf("unknown side %q", req.Side))
	}
	if req.OrderType == OrderTypeLimit {
		limit := decimal.NewFromFloat(req.Price).Round(2)
		orderReq.Type = alpaca.Limit
		orderReq.LimitPrice = &limit
	} else {
		orderReq.Type = alpaca.Market
	}

	order, err := a.trading.PlaceOrder(orderReq)
	if err != nil {
		return nil, Transient("alpaca place order", err)
	}
	if strings.EqualFold(string(order.Status), "rejected") {
		return &OrderResult{
			OrderID:         order.ID,
			Accepted:        false,
			RejectionReason: string(order.Status),
		}, nil
	}
	return &OrderResult{OrderID: order.ID, Accepted: true}, nil
}

// OHLC serves intraday snapshots from the market data API. DailyBar carries
// today's running high; LatestTrade carries the last traded price.
func (a *AlpacaBroker) OHLC(ctx context.Context, instruments []Instrument) (map[string]Quote, error) {
	symbols := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		symbols = append(symbols, inst.Symbol)
	}

	snapshots, err := a.data.GetSnapshots(symbols, marketdata.GetSnapshotRequest{})
	if err != nil {
		return nil, Transient("alpaca get snapshots", err)
	}

	now := time.Now()
	out := make(map[string]Quote, len(snapshots))
	for sym, snap := range snapshots {
		if snap == nil || snap.LatestTrade == nil || snap.DailyBar == nil {
			continue
		}
		out[sym] = Quote{
			Symbol:    sym,
			LastPrice: snap.LatestTrade.Price,
			DayHigh:   snap.DailyBar.High,
			FetchedAt: now,
		}
	}
	return out, nil
}

// HistoricalClose returns the daily-bar close for refDate.
func (a *AlpacaBroker) HistoricalClose(ctx context.Context, inst Instrument, refDate time.Time) (float64, error) {
	start := time.Date(refDate.Year(), refDate.Month(), refDate.Day(), 0, 0, 0, 0, time.UTC)
	bars, err := a.data.GetBars(inst.Symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       start.Add(24 * time.Hour),
	})
	if err != nil {
		return 0, Transient("alpaca historical close", err)
	}
	if len(bars) == 0 {
		return 0, Permanent("alpaca historical close",
			fmt.Errorf("no daily bar for %s on %s", inst.Symbol, refDate.Format("2006-01-02")))
	}
	return bars[0].Close, nil
}
