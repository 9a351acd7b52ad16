// Package quotes fans a large symbol list out to the provider's batch quote
// endpoint in bounded-size chunks, with a bounded worker pool and a
// per-chunk timeout so one slow chunk cannot stall a whole scan cycle.
package quotes

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/broker"
)

// Fetcher retrieves intraday quotes for an instrument universe.
type Fetcher struct {
	Provider broker.QuoteProvider
	// BatchSize is the provider's maximum instrument count per call.
	BatchSize int
	// Workers bounds concurrent chunk requests.
	Workers      int
	ChunkTimeout time.Duration
	Logger       *zap.Logger
}

// FetchAll retrieves quotes for all instruments. A failed or timed-out
// chunk marks every symbol in it absent for this cycle; callers treat
// absence as "skip this cycle", never as zero. The returned map only holds
// symbols the provider actually answered for.
func (f *Fetcher) FetchAll(ctx context.Context, instruments []broker.Instrument) map[string]broker.Quote {
	out := make(map[string]broker.Quote, len(instruments))
	if len(instruments) == 0 {
		return out
	}

	chunks := chunkInstruments(instruments, f.BatchSize)
	jobs := make(chan []broker.Instrument, len(chunks))
	for _, chunk := range chunks {
		jobs <- chunk
	}
	close(jobs)

	workers := f.Workers
	if workers > len(chunks) {
		workers = len(chunks)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range jobs {
				quotes := f.fetchChunk(ctx, chunk)
				if quotes == nil {
					continue
				}
				mu.Lock()
				for sym, q := range quotes {
					out[sym] = q
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if missing := len(instruments) - len(out); missing > 0 {
		f.Logger.Debug("quotes absent this cycle", zap.Int("count", missing))
	}
	return out
}

func (f *Fetcher) fetchChunk(ctx context.Context, chunk []broker.Instrument) map[string]broker.Quote {
	chunkCtx := ctx
	if f.ChunkTimeout > 0 {
		var cancel context.CancelFunc
		chunkCtx, cancel = context.WithTimeout(ctx, f.ChunkTimeout)
		defer cancel()
	}

	quotes, err := f.Provider.OHLC(chunkCtx, chunk)
	if err != nil {
		f.Logger.Warn("quote chunk failed",
			zap.Int("chunk_size", len(chunk)),
			zap.Bool("transient", broker.IsTransient(err)),
			zap.Error(err))
		return nil
	}
	return quotes
}

func chunkInstruments(instruments []broker.Instrument, size int) [][]broker.Instrument {
	if size < 1 {
		size = 1
	}
	var chunks [][]broker.Instrument
	for start := 0; start < len(instruments); start += size {
		end := start + size
		if end > len(instruments) {
			end = len(instruments)
		}
		chunks = append(chunks, instruments[start:end])
	}
	return chunks
}
