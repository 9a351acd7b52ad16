// Package engine wires the momentum scanner and the trailing stop-loss
// monitor to a broker backend and drives them through the trading day.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/broker"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/config"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/market"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/prevclose"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/quotes"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/universe"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/upstox"
)

// Engine owns one trading day: it loads the universe, warms the
// previous-close cache, and runs the scan and stop-loss loops until the
// session closes.
type Engine struct {
	cfg      config.Config
	broker   broker.Broker
	fetcher  *quotes.Fetcher
	store    *prevclose.Store
	universe *universe.Loader
	calendar *market.Calendar
	session  market.Session
	logger   *zap.Logger
}

// New assembles an Engine from a broker backend and its quote provider.
// The two are usually the same value; the split keeps the paper broker
// and live quote feeds composable.
func New(cfg config.Config, b broker.Broker, qp broker.QuoteProvider, logger *zap.Logger) (*Engine, error) {
	loc := cfg.Location()
	session, err := market.NewSession(cfg.WindowStart, cfg.WindowEnd, loc)
	if err != nil {
		return nil, fmt.Errorf("build trading session: %w", err)
	}
	calendar := market.DefaultCalendar(loc)
	if holidays, err := market.FetchNSEHolidays(nil); err != nil {
		logger.Warn("holiday page unreachable, using baked-in calendar", zap.Error(err))
	} else if len(holidays) > 0 {
		calendar = market.NewCalendar(loc, holidays)
		logger.Info("holiday calendar refreshed from exchange", zap.Int("holidays", len(holidays)))
	}

	return &Engine{
		cfg:    cfg,
		broker: b,
		fetcher: &quotes.Fetcher{
			Provider:     qp,
			BatchSize:    cfg.QuoteBatchSize,
			Workers:      cfg.QuoteWorkers,
			ChunkTimeout: cfg.ChunkTimeout,
			Logger:       logger,
		},
		store: &prevclose.Store{
			Dir:        cfg.DataDir,
			Provider:   qp,
			Calendar:   calendar,
			FetchDelay: cfg.HistoricalFetchDelay,
			Logger:     logger,
		},
		universe: universe.NewLoader(filepath.Join(cfg.DataDir, "EQUITY_L.csv"), cfg.InstrumentsCSV, logger),
		calendar: calendar,
		session:  session,
		logger:   logger,
	}, nil
}

// Run executes one full trading day and returns when the session closes,
// the day is a holiday, or ctx is cancelled. A universe or previous-close
// failure is fatal: without either, no buy decision is safe.
func (e *Engine) Run(ctx context.Context) error {
	today := time.Now().In(e.cfg.Location())
	if !e.calendar.IsTradingDay(today) {
		e.logger.Info("holiday or weekend, exiting",
			zap.String("date", today.Format("2006-01-02")))
		return nil
	}

	if err := e.universe.Refresh(); err != nil {
		// A stale local copy is still usable; only a missing one is fatal.
		e.logger.Warn("universe refresh failed, using existing file", zap.Error(err))
	}
	instruments, err := e.universe.Load()
	if err != nil {
		return fmt.Errorf("load instrument universe: %w", err)
	}
	e.logger.Info("universe loaded", zap.Int("instruments", len(instruments)))

	prevCloses, err := e.store.Get(ctx, today, instruments)
	if err != nil {
		return fmt.Errorf("warm previous-close cache: %w", err)
	}
	e.logger.Info("previous closes ready", zap.Int("symbols", len(prevCloses)))

	scanner := &Scanner{Config: e.cfg, Broker: e.broker, Quotes: e.fetcher, Logger: e.logger}
	monitor := &Monitor{Config: e.cfg, Broker: e.broker, Quotes: e.fetcher, Logger: e.logger}

	sched := &Scheduler{
		Calendar:      e.calendar,
		Session:       e.session,
		PreMarketPoll: e.cfg.PreMarketPoll,
		Logger:        e.logger,
		Loops: []Loop{
			{
				Name:     "scan",
				Interval: e.cfg.ScanInterval,
				Cycle: func(ctx context.Context) {
					report := scanner.RunCycle(ctx, instruments, prevCloses)
					e.logger.Info("scan cycle done",
						zap.Int("evaluated", report.Evaluated),
						zap.Int("candidates", len(report.Candidates)),
						zap.Int("watch", len(report.Watch)),
						zap.Strings("submitted", report.Submitted))
				},
			},
			{
				Name:     "stoploss",
				Interval: e.cfg.StopLossInterval,
				Cycle: func(ctx context.Context) {
					report, err := monitor.RunCycle(ctx)
					if err != nil {
						e.logger.Warn("stop-loss cycle aborted", zap.Error(err))
						return
					}
					e.logger.Info("stop-loss cycle done",
						zap.Int("monitored", len(report.Monitored)),
						zap.Strings("exited", report.Exited))
				},
			},
		},
	}
	return sched.Run(ctx)
}

// NewBroker constructs the backend named by cfg.Broker. accessToken is
// only consulted for the upstox backend.
func NewBroker(cfg config.Config, logger *zap.Logger, accessToken string) (broker.Broker, broker.QuoteProvider, error) {
	switch cfg.Broker {
	case "upstox":
		c := upstox.NewClient(accessToken, logger)
		return c, c, nil
	case "alpaca":
		a := broker.NewAlpacaBroker(cfg.AlpacaAPIKey, cfg.AlpacaAPISecret, cfg.AlpacaBaseURL, logger)
		return a, a, nil
	case "paper":
		p := broker.NewPaperBroker(cfg.PaperStartingBalance)
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}
