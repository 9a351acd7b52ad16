// Package prevclose resolves and persists, once per trading day, the prior
// session's closing price per symbol. The snapshot for a date is immutable:
// later calls for the same date load the persisted mapping instead of
// re-fetching.
package prevclose

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/pretty"
	"go.uber.org/zap"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/broker"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/market"
)

// HistoricalCloser is the slice of the quote provider this store needs.
type HistoricalCloser interface {
	HistoricalClose(ctx context.Context, inst broker.Instrument, refDate time.Time) (float64, error)
}

// Store owns the per-date previous-close snapshots on disk.
type Store struct {
	Dir      string
	Provider HistoricalCloser
	Calendar *market.Calendar
	// FetchDelay paces per-symbol requests against provider rate limits.
	FetchDelay time.Duration
	Logger     *zap.Logger
}

// snapshot is the on-disk format, tagged with the trading date it applies
// to and the reference session the closes came from.
type snapshot struct {
	TradingDate   string             `json:"trading_date"`
	ReferenceDate string             `json:"reference_date"`
	Closes        map[string]float64 `json:"closes"`
}

const dateLayout = "2006-01-02"

// Get returns the previous-session close per symbol for the given trading
// date, creating and persisting the snapshot on first call. Symbols whose
// fetch failed are absent from the map and excluded from scanning for the
// rest of the day.
func (s *Store) Get(ctx context.Context, tradingDate time.Time, instruments []broker.Instrument) (map[string]float64, error) {
	path := s.snapshotPath(tradingDate)

	if closes, err := s.load(path); err == nil {
		s.Logger.Info("loaded persisted previous closes",
			zap.String("date", tradingDate.Format(dateLayout)),
			zap.Int("symbols", len(closes)))
		return closes, nil
	}

	refDate := s.Calendar.PreviousTradingDay(tradingDate)
	s.Logger.Info("fetching previous closes",
		zap.String("date", tradingDate.Format(dateLayout)),
		zap.String("reference_date", refDate.Format(dateLayout)),
		zap.Int("symbols", len(instruments)))

	closes := make(map[string]float64, len(instruments))
	missed := 0
	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("previous close fetch interrupted: %w", err)
		}
		price, err := s.Provider.HistoricalClose(ctx, inst, refDate)
		if err != nil {
			missed++
			s.Logger.Debug("previous close unavailable",
				zap.String("symbol", inst.Symbol), zap.Error(err))
		} else if price > 0 {
			closes[inst.Symbol] = price
		}
		if s.FetchDelay > 0 {
			time.Sleep(s.FetchDelay)
		}
	}
	if missed > 0 {
		s.Logger.Warn("symbols without previous close excluded for the day",
			zap.Int("count", missed))
	}

	if err := s.save(path, tradingDate, refDate, closes); err != nil {
		// A failed save is not fatal: the mapping is still usable this run,
		// only the next restart pays the refetch.
		s.Logger.Warn("persist previous closes failed", zap.Error(err))
	}
	return closes, nil
}

func (s *Store) snapshotPath(tradingDate time.Time) string {
	return filepath.Join(s.Dir, "prevclose_"+tradingDate.Format(dateLayout)+".json")
}

func (s *Store) load(path string) (map[string]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	if snap.Closes == nil {
		return nil, fmt.Errorf("snapshot %s has no closes", path)
	}
	return snap.Closes, nil
}

func (s *Store) save(path string, tradingDate, refDate time.Time, closes map[string]float64) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	raw, err := json.Marshal(snapshot{
		TradingDate:   tradingDate.Format(dateLayout),
		ReferenceDate: refDate.Format(dateLayout),
		Closes:        closes,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, pretty.Pretty(raw), 0644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}
