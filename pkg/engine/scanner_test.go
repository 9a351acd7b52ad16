package engine

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/broker"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/config"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/quotes"
)

func testConfig() config.Config {
	return config.Config{
		MaxConcurrentBuys: 3,
		BuyThresholdPct:   18,
		WatchThresholdPct: 5,
		StopLossPct:       3,
		MinOrderValue:     7500,
		MaxOrderValue:     100000,
		QuoteBatchSize:    500,
		QuoteWorkers:      2,
	}
}

func newScanner(cfg config.Config, paper *broker.PaperBroker) *Scanner {
	logger := zap.NewNop()
	return &Scanner{
		Config: cfg,
		Broker: paper,
		Quotes: &quotes.Fetcher{
			Provider:  paper,
			BatchSize: cfg.QuoteBatchSize,
			Workers:   cfg.QuoteWorkers,
			Logger:    logger,
		},
		Logger: logger,
	}
}

func buyPosition(t *testing.T, paper *broker.PaperBroker, symbol string, qty int64) {
	t.Helper()
	result, err := paper.PlaceOrder(context.Background(), broker.OrderRequest{
		Side:      broker.SideBuy,
		Symbol:    symbol,
		Quantity:  qty,
		OrderType: broker.OrderTypeMarket,
		Product:   broker.ProductDelivery,
	})
	if err != nil || !result.Accepted {
		t.Fatalf("seed position %s: err=%v accepted=%v", symbol, err, result)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		pct  float64
		want Signal
	}{
		{"deep red", -12, SignalIgnore},
		{"flat", 0, SignalIgnore},
		{"just under watch", 4.99, SignalIgnore},
		{"watch floor", 5, SignalWatch},
		{"mid watch band", 17.99, SignalWatch},
		{"buy floor", 18, SignalBuy},
		{"well above", 35, SignalBuy},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.pct, 18, 5); got != tc.want {
				t.Errorf("Classify(%v) = %v, want %v", tc.pct, got, tc.want)
			}
		})
	}
}

func TestPercentChange(t *testing.T) {
	got := PercentChange(118, 100)
	if math.Abs(got-18) > 1e-9 {
		t.Errorf("PercentChange(118, 100) = %v, want 18", got)
	}
}

func TestOrderQuantity(t *testing.T) {
	tests := []struct {
		name                string
		balance, lastPrice  float64
		minValue, maxValue  float64
		want                int64
	}{
		// 0.30*100000/2 = 15000; 15000/118 = 127.1 -> 127 shares.
		{"mid clamp band", 100000, 118, 7500, 100000, 127},
		// 0.30*10000/2 = 1500 clamps up to the 7500 floor.
		{"clamped to floor", 10000, 100, 7500, 100000, 75},
		// 0.30*2000000/2 = 300000 clamps down to the 100000 cap.
		{"clamped to cap", 2000000, 100, 7500, 100000, 1000},
		// 7500 at 251/share buys 29; at 300/share buys 25.
		{"floor at 251", 10000, 251, 7500, 100000, 29},
		{"floor at 300", 10000, 300, 7500, 100000, 25},
		// One share costs more than the clamped trade value.
		{"price above trade value", 10000, 9000, 7500, 100000, 0},
		{"zero price", 100000, 0, 7500, 100000, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := OrderQuantity(tc.balance, tc.lastPrice, tc.minValue, tc.maxValue)
			if got != tc.want {
				t.Errorf("OrderQuantity(%v, %v) = %d, want %d", tc.balance, tc.lastPrice, got, tc.want)
			}
		})
	}
}

func TestRunCycleBuysBreakout(t *testing.T) {
	paper := broker.NewPaperBroker(100000)
	paper.SetQuote("MOVER", 118, 118)
	paper.SetQuote("DRIFTER", 107, 107)
	paper.SetQuote("FLAT", 101, 101)

	scanner := newScanner(testConfig(), paper)
	instruments := []broker.Instrument{
		{Symbol: "MOVER", Key: "1"}, {Symbol: "DRIFTER", Key: "2"}, {Symbol: "FLAT", Key: "3"},
	}
	prevCloses := map[string]float64{"MOVER": 100, "DRIFTER": 100, "FLAT": 100}

	report := scanner.RunCycle(context.Background(), instruments, prevCloses)

	if len(report.Submitted) != 1 || report.Submitted[0] != "MOVER" {
		t.Fatalf("submitted = %v, want [MOVER]", report.Submitted)
	}
	if len(report.Watch) != 1 || report.Watch[0] != "DRIFTER" {
		t.Errorf("watch = %v, want [DRIFTER]", report.Watch)
	}

	positions, _ := paper.Positions(context.Background())
	if len(positions) != 1 || positions[0].Symbol != "MOVER" {
		t.Fatalf("positions = %v, want one MOVER position", positions)
	}
	// 0.30*100000/2 = 15000; 15000/118 = 127 shares.
	if positions[0].Quantity != 127 {
		t.Errorf("bought %d shares, want 127", positions[0].Quantity)
	}
}

func TestRunCycleDoesNotRebuyHeldSymbol(t *testing.T) {
	paper := broker.NewPaperBroker(200000)
	paper.SetQuote("MOVER", 118, 118)

	scanner := newScanner(testConfig(), paper)
	instruments := []broker.Instrument{{Symbol: "MOVER", Key: "1"}}
	prevCloses := map[string]float64{"MOVER": 100}

	first := scanner.RunCycle(context.Background(), instruments, prevCloses)
	if len(first.Submitted) != 1 {
		t.Fatalf("first cycle submitted = %v, want one buy", first.Submitted)
	}

	second := scanner.RunCycle(context.Background(), instruments, prevCloses)
	if len(second.Submitted) != 0 {
		t.Fatalf("second cycle submitted = %v, want none", second.Submitted)
	}
	if reason := second.Skips["MOVER"]; reason != "already held or pending" {
		t.Errorf("skip reason = %q, want already held or pending", reason)
	}

	positions, _ := paper.Positions(context.Background())
	if len(positions) != 1 {
		t.Fatalf("got %d positions after two cycles, want 1", len(positions))
	}
}

func TestRunCycleHonorsPositionCap(t *testing.T) {
	paper := broker.NewPaperBroker(10000000)
	for _, sym := range []string{"HELD1", "HELD2", "HELD3"} {
		paper.SetQuote(sym, 50, 50)
		buyPosition(t, paper, sym, 10)
	}
	paper.SetQuote("MOVER", 118, 118)

	scanner := newScanner(testConfig(), paper)
	report := scanner.RunCycle(context.Background(),
		[]broker.Instrument{{Symbol: "MOVER", Key: "1"}},
		map[string]float64{"MOVER": 100})

	if len(report.Submitted) != 0 {
		t.Fatalf("submitted = %v, want none at cap", report.Submitted)
	}
	if reason := report.Skips["MOVER"]; reason != "position cap reached" {
		t.Errorf("skip reason = %q, want position cap reached", reason)
	}
}

func TestRunCycleSkipsZeroQuantity(t *testing.T) {
	cfg := testConfig()
	paper := broker.NewPaperBroker(10000)
	// Trade value clamps to 7500; one share costs 9000.
	paper.SetQuote("PRICEY", 9000, 9000)

	scanner := newScanner(cfg, paper)
	report := scanner.RunCycle(context.Background(),
		[]broker.Instrument{{Symbol: "PRICEY", Key: "1"}},
		map[string]float64{"PRICEY": 7500})

	if len(report.Submitted) != 0 {
		t.Fatalf("submitted = %v, want none", report.Submitted)
	}
	if reason := report.Skips["PRICEY"]; reason != "computed quantity is zero" {
		t.Errorf("skip reason = %q, want computed quantity is zero", reason)
	}
}

func TestRunCycleRejectionIsNotRetried(t *testing.T) {
	paper := broker.NewPaperBroker(100000)
	paper.SetQuote("MOVER", 118, 118)
	paper.RejectNext = "RMS check failed"

	scanner := newScanner(testConfig(), paper)
	report := scanner.RunCycle(context.Background(),
		[]broker.Instrument{{Symbol: "MOVER", Key: "1"}},
		map[string]float64{"MOVER": 100})

	if len(report.Submitted) != 0 {
		t.Fatalf("submitted = %v, want none after rejection", report.Submitted)
	}
	if reason := report.Skips["MOVER"]; reason != "rejected: RMS check failed" {
		t.Errorf("skip reason = %q", reason)
	}
	positions, _ := paper.Positions(context.Background())
	if len(positions) != 0 {
		t.Errorf("rejection must not open a position, got %v", positions)
	}
}

func TestRunCycleIgnoresSymbolsWithoutPreviousClose(t *testing.T) {
	paper := broker.NewPaperBroker(100000)
	paper.SetQuote("NOCLOSE", 200, 200)

	scanner := newScanner(testConfig(), paper)
	report := scanner.RunCycle(context.Background(),
		[]broker.Instrument{{Symbol: "NOCLOSE", Key: "1"}},
		map[string]float64{})

	if report.Evaluated != 0 {
		t.Errorf("evaluated %d symbols, want 0 without previous closes", report.Evaluated)
	}
	if len(report.Submitted) != 0 {
		t.Errorf("submitted = %v, want none", report.Submitted)
	}
}

func TestHeldOrPendingBlockedHoldings(t *testing.T) {
	tests := []struct {
		name         string
		countBlocked bool
		wantHeld     bool
	}{
		{"blocked holding excluded by default", false, false},
		{"blocked holding counted when configured", true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.CountBlockedHoldings = tc.countBlocked

			paper := broker.NewPaperBroker(100000)
			paper.SetHolding("BLOCKED", 10, 10)

			scanner := newScanner(cfg, paper)
			held, err := scanner.heldOrPending(context.Background())
			if err != nil {
				t.Fatalf("heldOrPending: %v", err)
			}
			if held["BLOCKED"] != tc.wantHeld {
				t.Errorf("held[BLOCKED] = %v, want %v", held["BLOCKED"], tc.wantHeld)
			}
		})
	}
}

func TestHeldOrPendingCountsUsableHoldings(t *testing.T) {
	paper := broker.NewPaperBroker(100000)
	paper.SetHolding("FREE", 10, 0)

	scanner := newScanner(testConfig(), paper)
	held, err := scanner.heldOrPending(context.Background())
	if err != nil {
		t.Fatalf("heldOrPending: %v", err)
	}
	if !held["FREE"] {
		t.Error("unblocked holding must count as already bought")
	}
}

func TestRunCycleDryRunPlacesNoOrders(t *testing.T) {
	cfg := testConfig()
	cfg.DryRun = true

	paper := broker.NewPaperBroker(100000)
	paper.SetQuote("MOVER", 118, 118)

	scanner := newScanner(cfg, paper)
	report := scanner.RunCycle(context.Background(),
		[]broker.Instrument{{Symbol: "MOVER", Key: "1"}},
		map[string]float64{"MOVER": 100})

	if len(report.Submitted) != 0 {
		t.Fatalf("submitted = %v, want none in dry run", report.Submitted)
	}
	positions, _ := paper.Positions(context.Background())
	if len(positions) != 0 {
		t.Errorf("dry run opened positions: %v", positions)
	}
}
