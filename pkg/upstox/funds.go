package upstox

import (
	"context"
	"net/url"
)

type fundsResponse struct {
	Equity struct {
		AvailableMargin float64 `json:"available_margin"`
	} `json:"equity"`
}

// AvailableBalance returns the equity segment's available margin.
func (c *Client) AvailableBalance(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("segment", "SEC")
	var funds fundsResponse
	if err := c.get(ctx, "/user/get-funds-and-margin", q, &funds); err != nil {
		return 0, err
	}
	return funds.Equity.AvailableMargin, nil
}
