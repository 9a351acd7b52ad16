// Package universe builds the day's tradable instrument list: the NSE
// equity symbol roster joined against the broker's instrument-key file.
// Refreshed once per day before scanning begins.
package universe

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/broker"
)

const (
	nseHomeURL    = "https://www.nseindia.com/"
	nseEquityCSV  = "https://nsearchives.nseindia.com/content/equities/EQUITY_L.csv"
	browserUA     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/94.0.4606.61 Safari/537.36"
	requestExpiry = 30 * time.Second
)

// Loader assembles the instrument universe from the exchange roster and the
// broker instrument file.
type Loader struct {
	// EquityListPath is where the downloaded EQUITY_L.csv is stored.
	EquityListPath string
	// InstrumentsPath is the broker's NSE instrument file
	// (tradingsymbol → instrument_key).
	InstrumentsPath string
	Client          *http.Client
	Logger          *zap.Logger
}

func NewLoader(equityListPath, instrumentsPath string, logger *zap.Logger) *Loader {
	jar, _ := cookiejar.New(nil)
	return &Loader{
		EquityListPath:  equityListPath,
		InstrumentsPath: instrumentsPath,
		Client:          &http.Client{Timeout: requestExpiry, Jar: jar},
		Logger:          logger,
	}
}

// Refresh downloads a fresh exchange roster and overwrites EquityListPath.
// The NSE archive rejects sessions with no cookies, so the home page is hit
// first to prime them.
func (l *Loader) Refresh() error {
	if err := l.primeSession(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodGet, nseEquityCSV, nil)
	if err != nil {
		return fmt.Errorf("create roster request: %w", err)
	}
	req.Header.Set("User-Agent", browserUA)

	resp, err := l.Client.Do(req)
	if err != nil {
		return fmt.Errorf("download equity roster: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("equity roster download returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read equity roster: %w", err)
	}
	if err := os.WriteFile(l.EquityListPath, body, 0644); err != nil {
		return fmt.Errorf("save equity roster: %w", err)
	}

	l.Logger.Info("equity roster refreshed",
		zap.String("path", l.EquityListPath),
		zap.Int("bytes", len(body)))
	return nil
}

func (l *Loader) primeSession() error {
	req, err := http.NewRequest(http.MethodGet, nseHomeURL, nil)
	if err != nil {
		return fmt.Errorf("create priming request: %w", err)
	}
	req.Header.Set("User-Agent", browserUA)
	resp, err := l.Client.Do(req)
	if err != nil {
		return fmt.Errorf("prime exchange session: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// Load parses the saved roster, keeps the EQ series, and joins each symbol
// to its broker instrument key. Symbols the broker file does not know are
// dropped with a log line; they cannot be traded anyway.
func (l *Loader) Load() ([]broker.Instrument, error) {
	symbols, err := readEquitySymbols(l.EquityListPath)
	if err != nil {
		return nil, err
	}
	keys, err := readInstrumentKeys(l.InstrumentsPath)
	if err != nil {
		return nil, err
	}

	instruments := make([]broker.Instrument, 0, len(symbols))
	missing := 0
	for _, sym := range symbols {
		key, ok := keys[sym]
		if !ok {
			missing++
			continue
		}
		instruments = append(instruments, broker.Instrument{Symbol: sym, Key: key})
	}
	if missing > 0 {
		l.Logger.Warn("symbols without instrument keys dropped", zap.Int("count", missing))
	}
	l.Logger.Info("instrument universe loaded", zap.Int("instruments", len(instruments)))
	return instruments, nil
}

// readEquitySymbols parses EQUITY_L.csv and returns SYMBOL values for rows
// in the EQ series. Exchange headers carry stray spaces (" SERIES"), so
// header names are trimmed before matching.
func readEquitySymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open equity roster: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse equity roster: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("equity roster %s has no data rows", path)
	}

	symbolIdx, seriesIdx := -1, -1
	for i, h := range records[0] {
		switch strings.TrimSpace(strings.ToUpper(h)) {
		case "SYMBOL":
			symbolIdx = i
		case "SERIES":
			seriesIdx = i
		}
	}
	if symbolIdx < 0 || seriesIdx < 0 {
		return nil, fmt.Errorf("equity roster %s missing SYMBOL/SERIES columns", path)
	}

	var symbols []string
	for _, rec := range records[1:] {
		if len(rec) <= symbolIdx || len(rec) <= seriesIdx {
			continue
		}
		if strings.TrimSpace(rec[seriesIdx]) != "EQ" {
			continue
		}
		sym := strings.TrimSpace(rec[symbolIdx])
		if sym != "" {
			symbols = append(symbols, sym)
		}
	}
	return symbols, nil
}

// readInstrumentKeys parses the broker instrument file into a
// tradingsymbol → instrument_key map.
func readInstrumentKeys(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open instrument file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse instrument file: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("instrument file %s has no data rows", path)
	}

	symIdx, keyIdx := -1, -1
	for i, h := range records[0] {
		switch strings.TrimSpace(strings.ToLower(h)) {
		case "tradingsymbol", "trading_symbol":
			symIdx = i
		case "instrument_key":
			keyIdx = i
		}
	}
	if symIdx < 0 || keyIdx < 0 {
		return nil, fmt.Errorf("instrument file %s missing tradingsymbol/instrument_key columns", path)
	}

	keys := make(map[string]string, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) <= symIdx || len(rec) <= keyIdx {
			continue
		}
		sym := strings.TrimSpace(rec[symIdx])
		key := strings.TrimSpace(rec[keyIdx])
		if sym != "" && key != "" {
			keys[sym] = key
		}
	}
	return keys, nil
}
