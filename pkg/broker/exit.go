package broker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ExitAll market-sells every open position that has not already been exited
// and returns the symbols it submitted sells for. Per-position failures are
// logged and skipped so one bad symbol cannot strand the rest.
func ExitAll(ctx context.Context, b Broker, logger *zap.Logger) ([]string, error) {
	positions, err := b.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("exit all: get positions: %w", err)
	}

	var exited []string
	for _, pos := range positions {
		if pos.Quantity <= 0 || pos.SellPrice > 0 {
			continue
		}
		res, err := b.PlaceOrder(ctx, OrderRequest{
			Side:          SideSell,
			Symbol:        pos.Symbol,
			InstrumentKey: pos.InstrumentKey,
			Quantity:      pos.Quantity,
			OrderType:     OrderTypeMarket,
			Product:       ProductDelivery,
		})
		if err != nil {
			logger.Warn("exit all: sell failed",
				zap.String("symbol", pos.Symbol),
				zap.Int64("quantity", pos.Quantity),
				zap.Error(err))
			continue
		}
		if !res.Accepted {
			logger.Warn("exit all: sell rejected",
				zap.String("symbol", pos.Symbol),
				zap.String("reason", res.RejectionReason))
			continue
		}
		exited = append(exited, pos.Symbol)
	}

	logger.Info("exited all positions", zap.Strings("symbols", exited))
	return exited, nil
}
