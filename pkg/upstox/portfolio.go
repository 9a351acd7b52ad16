package upstox

import (
	"context"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/broker"
)

type positionRow struct {
	TradingSymbol   string  `json:"trading_symbol"`
	Tradingsymbol   string  `json:"tradingsymbol"` // older field name, still served
	InstrumentToken string  `json:"instrument_token"`
	Quantity        int64   `json:"quantity"`
	AveragePrice    float64 `json:"average_price"`
	SellPrice       float64 `json:"sell_price"`
}

func (r positionRow) symbol() string {
	if r.TradingSymbol != "" {
		return r.TradingSymbol
	}
	return r.Tradingsymbol
}

// Positions returns the account's intraday (short-term) positions.
func (c *Client) Positions(ctx context.Context) ([]broker.Position, error) {
	var rows []positionRow
	if err := c.get(ctx, "/portfolio/short-term-positions", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]broker.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, broker.Position{
			Symbol:        r.symbol(),
			InstrumentKey: r.InstrumentToken,
			Quantity:      r.Quantity,
			CostBasis:     r.AveragePrice,
			SellPrice:     r.SellPrice,
		})
	}
	return out, nil
}

type holdingRow struct {
	TradingSymbol   string `json:"trading_symbol"`
	Tradingsymbol   string `json:"tradingsymbol"`
	InstrumentToken string `json:"instrument_token"`
	Quantity        int64  `json:"quantity"`
	CncUsedQuantity int64  `json:"cnc_used_quantity"`
}

func (r holdingRow) symbol() string {
	if r.TradingSymbol != "" {
		return r.TradingSymbol
	}
	return r.Tradingsymbol
}

// Holdings returns settled holdings carried over from previous sessions.
func (c *Client) Holdings(ctx context.Context) ([]broker.Holding, error) {
	var rows []holdingRow
	if err := c.get(ctx, "/portfolio/long-term-holdings", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]broker.Holding, 0, len(rows))
	for _, r := range rows {
		out = append(out, broker.Holding{
			Symbol:        r.symbol(),
			InstrumentKey: r.InstrumentToken,
			Quantity:      r.Quantity,
			UsedQuantity:  r.CncUsedQuantity,
		})
	}
	return out, nil
}
