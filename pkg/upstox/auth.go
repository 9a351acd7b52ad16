package upstox

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// TokenCache persists one access token per calendar day, the way the
// account's daily login works: Upstox tokens expire overnight, so a token
// from any prior date is useless.
type TokenCache struct {
	Path string
}

const tokenDateLayout = "2006-01-02"

// Load returns the cached token if it was saved today, else "".
func (tc TokenCache) Load(now time.Time) string {
	raw, err := os.ReadFile(tc.Path)
	if err != nil {
		return ""
	}
	parts := strings.SplitN(strings.TrimSpace(string(raw)), ",", 2)
	if len(parts) != 2 {
		return ""
	}
	if parts[0] != now.Format(tokenDateLayout) {
		return ""
	}
	return parts[1]
}

// Save writes the token stamped with today's date.
func (tc TokenCache) Save(now time.Time, token string) error {
	line := now.Format(tokenDateLayout) + "," + token
	if err := os.WriteFile(tc.Path, []byte(line), 0600); err != nil {
		return fmt.Errorf("save token cache: %w", err)
	}
	return nil
}

// LoginURL builds the authorization dialog URL the account holder opens in a
// browser; the redirect carries back the one-time code for ExchangeCode.
func LoginURL(apiKey, redirectURI string) string {
	q := url.Values{}
	q.Set("client_id", apiKey)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "code")
	return DefaultBaseURL + "/login/authorization/dialog?" + q.Encode()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// ExchangeCode swaps the authorization code for an access token. The token
// endpoint returns a bare JSON object rather than the {status,data}
// envelope, so this bypasses the envelope decoding.
func (c *Client) ExchangeCode(ctx context.Context, apiKey, apiSecret, redirectURI, code string) (string, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", apiKey)
	form.Set("client_secret", apiSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", redirectURI)

	var tok tokenResponse
	if err := c.postToken(ctx, "/login/authorization/token", form, &tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token exchange returned empty access token")
	}
	return tok.AccessToken, nil
}

// Login exchanges the code and caches the token for the rest of the day.
// A same-day login is a no-op and reuses the cached token.
func (c *Client) Login(ctx context.Context, cache TokenCache, apiKey, apiSecret, redirectURI, code string) error {
	now := time.Now()
	if tok := cache.Load(now); tok != "" {
		c.Logger.Info("already logged in today, reusing cached token")
		c.AccessToken = tok
		return nil
	}

	tok, err := c.ExchangeCode(ctx, apiKey, apiSecret, redirectURI, code)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.AccessToken = tok
	if err := cache.Save(now, tok); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.Logger.Info("logged in and cached access token")
	return nil
}
