package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Broker:            "upstox",
		MaxConcurrentBuys: 3,
		BuyThresholdPct:   18,
		WatchThresholdPct: 5,
		StopLossPct:       3,
		MinOrderValue:     7500,
		MaxOrderValue:     100000,
		QuoteBatchSize:    500,
		QuoteWorkers:      4,
		Timezone:          "Asia/Kolkata",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"zero buy slots", func(c *Config) { c.MaxConcurrentBuys = 0 }, true},
		{"watch above buy", func(c *Config) { c.WatchThresholdPct = 25 }, true},
		{"non-positive stop", func(c *Config) { c.StopLossPct = 0 }, true},
		{"min above max order value", func(c *Config) { c.MinOrderValue = 200000 }, true},
		{"zero batch size", func(c *Config) { c.QuoteBatchSize = 0 }, true},
		{"zero workers", func(c *Config) { c.QuoteWorkers = 0 }, true},
		{"bogus timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := validConfig()
	loc := cfg.Location()
	if loc == time.UTC {
		t.Error("expected the exchange timezone, got UTC fallback")
	}
	// IST is UTC+5:30 year-round.
	_, offset := time.Date(2025, 8, 13, 12, 0, 0, 0, loc).Zone()
	if offset != 5*3600+30*60 {
		t.Errorf("IST offset = %d seconds, want 19800", offset)
	}
}
