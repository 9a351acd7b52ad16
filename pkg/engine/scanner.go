package engine

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/broker"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/config"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/quotes"
)

// Signal classifies a symbol's momentum for one cycle.
type Signal int

const (
	SignalIgnore Signal = iota
	SignalWatch
	SignalBuy
)

// PercentChange is the day's move of the intraday high versus the previous
// session close, in percent.
func PercentChange(high, prevClose float64) float64 {
	return (high - prevClose) / prevClose * 100
}

// Classify buckets a percent change against the configured thresholds.
func Classify(pctChange, buyThreshold, watchThreshold float64) Signal {
	switch {
	case pctChange >= buyThreshold:
		return SignalBuy
	case pctChange >= watchThreshold:
		return SignalWatch
	default:
		return SignalIgnore
	}
}

// Scanner is the buy-side decision engine. It holds no mutable state
// between cycles: every cycle re-derives positions, holdings, and open
// orders from the broker, which is the single source of truth for what is
// already held or pending. A local "already bought" set cannot survive a
// restart and can diverge from the account after fills or manual trades.
type Scanner struct {
	Config config.Config
	Broker broker.Broker
	Quotes *quotes.Fetcher
	Logger *zap.Logger
}

// ScanReport summarizes one scan cycle.
type ScanReport struct {
	Evaluated  int
	Watch      []string
	Candidates []string
	Submitted  []string
	// Skips records why a candidate produced no order this cycle.
	Skips map[string]string
}

// RunCycle evaluates the whole universe once. prevCloses is the day's
// immutable previous-close mapping; symbols absent from it are excluded
// from evaluation entirely.
func (s *Scanner) RunCycle(ctx context.Context, instruments []broker.Instrument, prevCloses map[string]float64) ScanReport {
	report := ScanReport{Skips: make(map[string]string)}
	defer mtxCycles.WithLabelValues("scan").Inc()

	snapshots := s.Quotes.FetchAll(ctx, instruments)

	byKey := make(map[string]broker.Instrument, len(instruments))
	for _, inst := range instruments {
		byKey[inst.Symbol] = inst
	}

	for _, inst := range instruments {
		prevClose, ok := prevCloses[inst.Symbol]
		if !ok || prevClose <= 0 {
			continue
		}
		quote, ok := snapshots[inst.Symbol]
		if !ok {
			continue
		}
		report.Evaluated++

		pct := PercentChange(quote.DayHigh, prevClose)
		switch Classify(pct, s.Config.BuyThresholdPct, s.Config.WatchThresholdPct) {
		case SignalBuy:
			report.Candidates = append(report.Candidates, inst.Symbol)
		case SignalWatch:
			report.Watch = append(report.Watch, inst.Symbol)
			s.Logger.Info("watch-only mover",
				zap.String("symbol", inst.Symbol),
				zap.Float64("pct_change", pct))
		}
	}
	sort.Strings(report.Candidates)

	mtxCandidates.Set(float64(len(report.Candidates)))
	mtxWatchlist.Set(float64(len(report.Watch)))

	for _, symbol := range report.Candidates {
		quote := snapshots[symbol]
		reason := s.evaluateCandidate(ctx, byKey[symbol], quote)
		if reason == "" {
			report.Submitted = append(report.Submitted, symbol)
		} else {
			report.Skips[symbol] = reason
		}
	}
	return report
}

// evaluateCandidate re-reads broker state and either submits a market BUY
// or returns the reason the candidate was skipped. Submissions are
// deliberately sequential: the next candidate is not evaluated until this
// order call returns, so two evaluation passes can never race on the same
// symbol.
func (s *Scanner) evaluateCandidate(ctx context.Context, inst broker.Instrument, quote broker.Quote) (skipReason string) {
	held, err := s.heldOrPending(ctx)
	if err != nil {
		mtxBrokerFailures.WithLabelValues("held_or_pending").Inc()
		s.Logger.Warn("skipping candidate, broker state unavailable",
			zap.String("symbol", inst.Symbol), zap.Error(err))
		return "broker state unavailable"
	}
	mtxHeldOrPending.Set(float64(len(held)))

	if len(held) >= s.Config.MaxConcurrentBuys {
		s.Logger.Info("position cap reached, skipping candidate",
			zap.String("symbol", inst.Symbol),
			zap.Int("held_or_pending", len(held)),
			zap.Int("max", s.Config.MaxConcurrentBuys))
		return "position cap reached"
	}
	if held[inst.Symbol] {
		return "already held or pending"
	}

	balance, err := s.Broker.AvailableBalance(ctx)
	if err != nil {
		mtxBrokerFailures.WithLabelValues("balance").Inc()
		s.Logger.Warn("skipping candidate, balance unavailable",
			zap.String("symbol", inst.Symbol), zap.Error(err))
		return "balance unavailable"
	}

	quantity := OrderQuantity(balance, quote.LastPrice, s.Config.MinOrderValue, s.Config.MaxOrderValue)
	if quantity <= 0 {
		s.Logger.Info("insufficient funds for one share, skipping candidate",
			zap.String("symbol", inst.Symbol),
			zap.Float64("last_price", quote.LastPrice),
			zap.Float64("balance", balance))
		return "computed quantity is zero"
	}

	if s.Config.DryRun {
		s.Logger.Info("dry run, would submit buy",
			zap.String("symbol", inst.Symbol),
			zap.Int64("quantity", quantity))
		return "dry run"
	}

	result, err := s.Broker.PlaceOrder(ctx, broker.OrderRequest{
		Side:          broker.SideBuy,
		Symbol:        inst.Symbol,
		InstrumentKey: inst.Key,
		Quantity:      quantity,
		OrderType:     broker.OrderTypeMarket,
		Product:       broker.ProductDelivery,
		Tag:           uuid.New().String(),
	})
	if err != nil {
		mtxBrokerFailures.WithLabelValues("place_order").Inc()
		s.Logger.Warn("buy submission failed",
			zap.String("symbol", inst.Symbol), zap.Error(err))
		return "order submission failed"
	}
	if !result.Accepted {
		mtxRejections.WithLabelValues("buy").Inc()
		s.Logger.Warn("buy order rejected",
			zap.String("symbol", inst.Symbol),
			zap.String("order_id", result.OrderID),
			zap.String("reason", result.RejectionReason))
		return "rejected: " + result.RejectionReason
	}

	mtxOrders.WithLabelValues("buy").Inc()
	s.Logger.Info("bought",
		zap.String("symbol", inst.Symbol),
		zap.Int64("quantity", quantity),
		zap.Float64("last_price", quote.LastPrice),
		zap.String("order_id", result.OrderID))
	return ""
}

// heldOrPending assembles the set of symbols that are currently held as a
// position, held as a (usable) holding, or covered by an open BUY order.
// Holdings blocked against a pending delivery order only count when
// CountBlockedHoldings is set.
func (s *Scanner) heldOrPending(ctx context.Context) (map[string]bool, error) {
	positions, err := s.Broker.Positions(ctx)
	if err != nil {
		return nil, err
	}
	holdings, err := s.Broker.Holdings(ctx)
	if err != nil {
		return nil, err
	}
	openBuys, err := s.Broker.OpenOrderSymbols(ctx, broker.SideBuy)
	if err != nil {
		return nil, err
	}

	held := make(map[string]bool)
	for _, pos := range positions {
		if pos.Quantity > 0 {
			held[pos.Symbol] = true
		}
	}
	for _, h := range holdings {
		if h.Quantity <= 0 {
			continue
		}
		if h.UsedQuantity > 0 && !s.Config.CountBlockedHoldings {
			continue
		}
		held[h.Symbol] = true
	}
	for sym := range openBuys {
		held[sym] = true
	}
	return held, nil
}

// OrderQuantity sizes one buy: 30% of half the available balance, clamped
// to [minValue, maxValue], divided by the last traded price and floored to
// whole shares.
func OrderQuantity(balance, lastPrice, minValue, maxValue float64) int64 {
	if lastPrice <= 0 {
		return 0
	}
	tradeValue := 0.30 * balance / 2
	if tradeValue < minValue {
		tradeValue = minValue
	}
	if tradeValue > maxValue {
		tradeValue = maxValue
	}
	qty := decimal.NewFromFloat(tradeValue).Div(decimal.NewFromFloat(lastPrice))
	return qty.IntPart()
}
