package upstox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTokenCacheRoundTrip(t *testing.T) {
	cache := TokenCache{Path: filepath.Join(t.TempDir(), "login_data.txt")}
	now := time.Date(2025, 8, 13, 10, 0, 0, 0, time.UTC)

	if got := cache.Load(now); got != "" {
		t.Errorf("Load before Save = %q, want empty", got)
	}
	if err := cache.Save(now, "tok-abc"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := cache.Load(now); got != "tok-abc" {
		t.Errorf("Load = %q, want tok-abc", got)
	}
	// A token from yesterday is dead.
	if got := cache.Load(now.AddDate(0, 0, 1)); got != "" {
		t.Errorf("Load next day = %q, want empty", got)
	}
}

func TestLoginURL(t *testing.T) {
	raw := LoginURL("my-key", "https://example.com/cb")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse login url: %v", err)
	}
	q := u.Query()
	if q.Get("client_id") != "my-key" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q", q.Get("response_type"))
	}
	if !strings.Contains(raw, "/login/authorization/dialog") {
		t.Errorf("unexpected path in %q", raw)
	}
}

func TestExchangeCode(t *testing.T) {
	var gotForm url.Values
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login/authorization/token" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm
		fmt.Fprint(w, `{"access_token":"tok-xyz"}`)
	}))

	tok, err := c.ExchangeCode(context.Background(), "key", "secret", "https://cb", "the-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if tok != "tok-xyz" {
		t.Errorf("token = %q", tok)
	}
	if gotForm.Get("grant_type") != "authorization_code" || gotForm.Get("code") != "the-code" {
		t.Errorf("form = %v", gotForm)
	}
}

func TestLoginSameDayIsNoOp(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"access_token":"fresh-token"}`)
	}))

	cache := TokenCache{Path: filepath.Join(t.TempDir(), "login_data.txt")}
	if err := cache.Save(time.Now(), "cached-token"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	if err := c.Login(context.Background(), cache, "key", "secret", "https://cb", "code"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if calls != 0 {
		t.Errorf("token endpoint hit %d times on a same-day login, want 0", calls)
	}
	if c.AccessToken != "cached-token" {
		t.Errorf("AccessToken = %q, want the cached one", c.AccessToken)
	}
}
