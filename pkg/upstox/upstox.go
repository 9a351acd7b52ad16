// Package upstox is a client for the Upstox v2 REST API covering the
// surfaces the trading engine needs: login, orders, portfolio, funds,
// market quotes, and historical candles.
package upstox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/broker"
)

const DefaultBaseURL = "https://api.upstox.com/v2"

// Client talks to the Upstox v2 API on behalf of one account.
type Client struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

func NewClient(accessToken string, logger *zap.Logger) *Client {
	return &Client{
		BaseURL:     DefaultBaseURL,
		AccessToken: accessToken,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Logger:      logger,
	}
}

func (c *Client) Name() string { return "upstox" }

// apiEnvelope is the common {status, data} wrapper on v2 responses.
type apiEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Errors []apiError      `json:"errors"`
}

type apiError struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// get issues an authorized GET and unmarshals the data payload into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return broker.Permanent("upstox GET "+path, err)
	}
	return c.do(req, path, out)
}

// postJSON issues an authorized JSON POST.
func (c *Client) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return broker.Permanent("upstox POST "+path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path,
		strings.NewReader(string(raw)))
	if err != nil {
		return broker.Permanent("upstox POST "+path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out interface{}) error {
	op := "upstox " + req.Method + " " + path
	req.Header.Set("Accept", "application/json")
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return broker.Transient(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return broker.Transient(op, err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return broker.Transient(op, err)
		}
		return broker.Permanent(op, err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return broker.Transient(op, fmt.Errorf("decode response: %w", err))
	}
	if env.Status != "success" {
		msg := "unknown error"
		if len(env.Errors) > 0 {
			msg = env.Errors[0].Message
		}
		return broker.Permanent(op, fmt.Errorf("api status %q: %s", env.Status, msg))
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return broker.Transient(op, fmt.Errorf("decode data: %w", err))
		}
	}
	return nil
}

// postToken posts a form and decodes the raw JSON body. The login token
// endpoint does not use the {status,data} envelope.
func (c *Client) postToken(ctx context.Context, path string, form url.Values, out interface{}) error {
	op := "upstox POST " + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return broker.Permanent(op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return broker.Transient(op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return broker.Transient(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256))
		if resp.StatusCode >= 500 {
			return broker.Transient(op, err)
		}
		return broker.Permanent(op, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return broker.Transient(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
