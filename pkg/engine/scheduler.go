package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/market"
)

// Loop is one periodic job the scheduler drives while the market is open.
type Loop struct {
	Name     string
	Interval time.Duration
	Cycle    func(ctx context.Context)
}

// Scheduler drives the trading loops through the day's phases:
// PreMarket (poll until the open), Open (run all loops concurrently),
// Closed (terminal for the day). Now and Sleep are injectable for tests;
// nil means the real clock.
type Scheduler struct {
	Calendar      *market.Calendar
	Session       market.Session
	PreMarketPoll time.Duration
	Loops         []Loop
	Logger        *zap.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration)
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	if s.Sleep != nil {
		s.Sleep(ctx, d)
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run blocks until the session closes, the day turns out not to be a
// trading day, or ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	day := s.now()
	if !s.Calendar.IsTradingDay(day) {
		s.Logger.Info("not a trading day, nothing to do",
			zap.String("date", day.Format("2006-01-02")))
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		phase := s.Session.PhaseAt(s.now())
		switch phase {
		case market.PhasePreMarket:
			s.Logger.Info("waiting for market open")
			s.sleep(ctx, s.PreMarketPoll)
		case market.PhaseOpen:
			return s.runOpen(ctx)
		case market.PhaseClosed:
			s.Logger.Info("market closed")
			return nil
		}
	}
}

// runOpen runs every loop on its own cadence until the session end. Each
// loop gets one immediate cycle at the open so the first decision does not
// wait a full interval.
func (s *Scheduler) runOpen(ctx context.Context) error {
	s.Logger.Info("market open, starting loops",
		zap.Int("loops", len(s.Loops)),
		zap.Time("session_end", s.Session.EndOfSession(s.now())))

	var wg sync.WaitGroup
	for _, loop := range s.Loops {
		wg.Add(1)
		go func(l Loop) {
			defer wg.Done()
			s.runLoop(ctx, l)
		}(loop)
	}
	wg.Wait()

	s.Logger.Info("session over, loops stopped")
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// runLoop re-checks the phase before every cycle rather than trusting a
// precomputed deadline, so a loop never ticks past the close.
func (s *Scheduler) runLoop(ctx context.Context, l Loop) {
	logger := s.Logger.With(zap.String("loop", l.Name))
	for {
		if ctx.Err() != nil {
			logger.Info("loop stopped")
			return
		}
		if s.Session.PhaseAt(s.now()) != market.PhaseOpen {
			logger.Info("session closed, loop stopped")
			return
		}
		start := s.now()
		l.Cycle(ctx)
		elapsed := s.now().Sub(start)
		if elapsed > l.Interval {
			// Overran the interval; start the next cycle immediately.
			logger.Warn("cycle overran interval", zap.Duration("elapsed", elapsed))
			continue
		}
		s.sleep(ctx, l.Interval-elapsed)
	}
}
