package upstox

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/broker"
)

type quoteRow struct {
	LastPrice float64 `json:"last_price"`
	OHLC      struct {
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	} `json:"ohlc"`
}

// OHLC fetches full quotes for one chunk of instruments. The response is
// keyed "NSE_EQ:SYMBOL"; symbols the broker did not return are simply
// absent from the result, never an error.
func (c *Client) OHLC(ctx context.Context, instruments []broker.Instrument) (map[string]broker.Quote, error) {
	if len(instruments) == 0 {
		return map[string]broker.Quote{}, nil
	}

	keys := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		keys = append(keys, inst.Key)
	}
	q := url.Values{}
	q.Set("instrument_key", strings.Join(keys, ","))

	var rows map[string]quoteRow
	if err := c.get(ctx, "/market-quote/quotes", q, &rows); err != nil {
		return nil, err
	}

	now := time.Now()
	out := make(map[string]broker.Quote, len(rows))
	for key, row := range rows {
		sym := symbolFromQuoteKey(key)
		if sym == "" || row.LastPrice <= 0 {
			continue
		}
		out[sym] = broker.Quote{
			Symbol:    sym,
			LastPrice: row.LastPrice,
			DayHigh:   row.OHLC.High,
			FetchedAt: now,
		}
	}
	return out, nil
}

// symbolFromQuoteKey extracts the trading symbol from a response key like
// "NSE_EQ:RELIANCE".
func symbolFromQuoteKey(key string) string {
	if i := strings.LastIndex(key, ":"); i >= 0 {
		return key[i+1:]
	}
	return key
}

type candleResponse struct {
	Candles [][]interface{} `json:"candles"`
}

// HistoricalClose returns the daily close for refDate. The candle endpoint
// serves [timestamp, open, high, low, close, volume, oi] rows, newest
// first; a day with no candle (symbol not yet listed, data gap) is an
// error the caller records as absent.
func (c *Client) HistoricalClose(ctx context.Context, inst broker.Instrument, refDate time.Time) (float64, error) {
	day := refDate.Format("2006-01-02")
	path := fmt.Sprintf("/historical-candle/%s/day/%s/%s", url.PathEscape(inst.Key), day, day)

	var resp candleResponse
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return 0, err
	}
	if len(resp.Candles) == 0 {
		return 0, broker.Permanent("upstox historical close",
			fmt.Errorf("no daily candle for %s on %s", inst.Symbol, day))
	}
	row := resp.Candles[0]
	if len(row) < 5 {
		return 0, broker.Transient("upstox historical close",
			fmt.Errorf("malformed candle row for %s on %s", inst.Symbol, day))
	}
	closePrice, ok := row[4].(float64)
	if !ok || closePrice <= 0 {
		return 0, broker.Transient("upstox historical close",
			fmt.Errorf("bad close value for %s on %s", inst.Symbol, day))
	}
	return closePrice, nil
}
