package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/broker"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/config"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/quotes"
)

// PercentFromHigh is the drawdown of the last traded price from the day's
// high, in percent. Negative when the price is below the high.
func PercentFromHigh(lastPrice, dayHigh float64) float64 {
	return (lastPrice - dayHigh) / dayHigh * 100
}

// Monitor is the sell-side loop: it trails each open position against its
// intraday high and exits the full quantity once the drawdown crosses the
// configured stop. Like the scanner it keeps no state between cycles.
type Monitor struct {
	Config config.Config
	Broker broker.Broker
	Quotes *quotes.Fetcher
	Logger *zap.Logger
}

// StopReport summarizes one stop-loss cycle.
type StopReport struct {
	Monitored []string
	Exited    []string
	Skips     map[string]string
}

// RunCycle checks every open long position once. A failed open-order read
// aborts the whole cycle: without it a position with a SELL already working
// is indistinguishable from an unprotected one, and a second exit order
// would over-sell.
func (m *Monitor) RunCycle(ctx context.Context) (StopReport, error) {
	report := StopReport{Skips: make(map[string]string)}
	defer mtxCycles.WithLabelValues("stoploss").Inc()

	positions, err := m.Broker.Positions(ctx)
	if err != nil {
		mtxBrokerFailures.WithLabelValues("positions").Inc()
		return report, err
	}
	openSells, err := m.Broker.OpenOrderSymbols(ctx, broker.SideSell)
	if err != nil {
		mtxBrokerFailures.WithLabelValues("open_orders").Inc()
		return report, err
	}

	var open []broker.Position
	for _, pos := range positions {
		if pos.Quantity <= 0 || pos.SellPrice > 0 {
			continue
		}
		if openSells[pos.Symbol] {
			report.Skips[pos.Symbol] = "sell already open"
			continue
		}
		open = append(open, pos)
	}
	if len(open) == 0 {
		return report, nil
	}

	instruments := make([]broker.Instrument, 0, len(open))
	for _, pos := range open {
		instruments = append(instruments, broker.Instrument{Symbol: pos.Symbol, Key: pos.InstrumentKey})
	}
	snapshots := m.Quotes.FetchAll(ctx, instruments)

	for _, pos := range open {
		quote, ok := snapshots[pos.Symbol]
		if !ok {
			// No quote this cycle; the position stays protected by the next one.
			report.Skips[pos.Symbol] = "quote unavailable"
			continue
		}
		report.Monitored = append(report.Monitored, pos.Symbol)

		drawdown := PercentFromHigh(quote.LastPrice, quote.DayHigh)
		if drawdown > -m.Config.StopLossPct {
			continue
		}

		m.Logger.Info("stop-loss triggered",
			zap.String("symbol", pos.Symbol),
			zap.Float64("last_price", quote.LastPrice),
			zap.Float64("day_high", quote.DayHigh),
			zap.Float64("drawdown_pct", drawdown))

		if m.Config.DryRun {
			report.Skips[pos.Symbol] = "dry run"
			continue
		}

		result, err := m.Broker.PlaceOrder(ctx, broker.OrderRequest{
			Side:          broker.SideSell,
			Symbol:        pos.Symbol,
			InstrumentKey: pos.InstrumentKey,
			Quantity:      pos.Quantity,
			OrderType:     broker.OrderTypeMarket,
			Product:       broker.ProductDelivery,
			Tag:           uuid.New().String(),
		})
		if err != nil {
			mtxBrokerFailures.WithLabelValues("place_order").Inc()
			m.Logger.Warn("stop-loss sell submission failed",
				zap.String("symbol", pos.Symbol), zap.Error(err))
			report.Skips[pos.Symbol] = "order submission failed"
			continue
		}
		if !result.Accepted {
			mtxRejections.WithLabelValues("sell").Inc()
			m.Logger.Warn("stop-loss sell rejected",
				zap.String("symbol", pos.Symbol),
				zap.String("order_id", result.OrderID),
				zap.String("reason", result.RejectionReason))
			report.Skips[pos.Symbol] = "rejected: " + result.RejectionReason
			continue
		}

		mtxOrders.WithLabelValues("sell").Inc()
		mtxStopsTriggered.Inc()
		report.Exited = append(report.Exited, pos.Symbol)
		m.Logger.Info("exited position",
			zap.String("symbol", pos.Symbol),
			zap.Int64("quantity", pos.Quantity),
			zap.String("order_id", result.OrderID))
	}
	return report, nil
}
