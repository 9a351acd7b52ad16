package upstox

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/broker"
)

type placeOrderRequest struct {
	Quantity          int64   `json:"quantity"`
	Product           string  `json:"product"`
	Validity          string  `json:"validity"`
	Price             float64 `json:"price"`
	Tag               string  `json:"tag,omitempty"`
	InstrumentToken   string  `json:"instrument_token"`
	OrderType         string  `json:"order_type"`
	TransactionType   string  `json:"transaction_type"`
	DisclosedQuantity int64   `json:"disclosed_quantity"`
	TriggerPrice      float64 `json:"trigger_price"`
	IsAMO             bool    `json:"is_amo"`
}

type placeOrderResponse struct {
	OrderID string `json:"order_id"`
}

type orderDetails struct {
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
	TradingSymbol string `json:"trading_symbol"`
}

// PlaceOrder submits a DAY order and immediately polls its status once so a
// synchronous rejection surfaces as Accepted=false with the broker's reason.
func (c *Client) PlaceOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResult, error) {
	body := placeOrderRequest{
		Quantity:          req.Quantity,
		Product:           string(req.Product),
		Validity:          "DAY",
		Price:             req.Price,
		Tag:               req.Tag,
		InstrumentToken:   req.InstrumentKey,
		OrderType:         string(req.OrderType),
		TransactionType:   string(req.Side),
		DisclosedQuantity: req.Quantity,
		TriggerPrice:      0,
		IsAMO:             false,
	}

	var placed placeOrderResponse
	if err := c.postJSON(ctx, "/order/place", body, &placed); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("order_id", placed.OrderID)
	var details orderDetails
	if err := c.get(ctx, "/order/details", q, &details); err != nil {
		// The order went in; only the status check failed. Report it as
		// accepted and let the next cycle's open-order read catch up.
		c.Logger.Warn("order status check failed",
			zap.String("order_id", placed.OrderID),
			zap.String("symbol", req.Symbol),
			zap.Error(err))
		return &broker.OrderResult{OrderID: placed.OrderID, Accepted: true}, nil
	}

	if strings.EqualFold(details.Status, "rejected") {
		return &broker.OrderResult{
			OrderID:         placed.OrderID,
			Accepted:        false,
			RejectionReason: details.StatusMessage,
		}, nil
	}
	return &broker.OrderResult{OrderID: placed.OrderID, Accepted: true}, nil
}

type orderRow struct {
	TradingSymbol   string `json:"trading_symbol"`
	Tradingsymbol   string `json:"tradingsymbol"`
	TransactionType string `json:"transaction_type"`
	Status          string `json:"status"`
}

func (r orderRow) symbol() string {
	if r.TradingSymbol != "" {
		return r.TradingSymbol
	}
	return r.Tradingsymbol
}

// terminalOrderStatuses are statuses that no longer hold quantity against
// the account; anything else counts as an open order.
var terminalOrderStatuses = map[string]bool{
	"complete":  true,
	"rejected":  true,
	"cancelled": true,
}

// OpenOrderSymbols returns the symbols with an open order on the given side
// in today's order book.
func (c *Client) OpenOrderSymbols(ctx context.Context, side broker.Side) (map[string]bool, error) {
	var rows []orderRow
	if err := c.get(ctx, "/order/retrieve-all", nil, &rows); err != nil {
		return nil, err
	}
	open := make(map[string]bool)
	for _, r := range rows {
		if !strings.EqualFold(r.TransactionType, string(side)) {
			continue
		}
		if terminalOrderStatuses[strings.ToLower(r.Status)] {
			continue
		}
		open[r.symbol()] = true
	}
	return open, nil
}
