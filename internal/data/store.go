// Package data provides bar storage and the read-side data handler the
// trading pipeline consumes: time-cursored access that never looks past
// the current time.
package data

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"golang.org/x/sync/errgroup"
)

// preloadParallelism bounds concurrent CSV loads during Preload.
const preloadParallelism = 8

// BarStore holds bar series in memory, keyed by frequency then symbol,
// each series sorted by timestamp. A bar with an existing timestamp
// replaces the earlier one, so refreshing an overlapping window is safe.
type BarStore struct {
	logger *slog.Logger

	mu   sync.RWMutex
	bars map[types.Frequency]map[string][]types.Bar
}

// NewBarStore creates an empty store.
func NewBarStore(logger *slog.Logger) *BarStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BarStore{
		logger: logger,
		bars:   make(map[types.Frequency]map[string][]types.Bar),
	}
}

// Add inserts bars, keeping each series sorted.
func (s *BarStore) Add(bars ...types.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bars {
		s.insert(b)
	}
}

func (s *BarStore) insert(b types.Bar) {
	byFreq, ok := s.bars[b.Frequency]
	if !ok {
		byFreq = make(map[string][]types.Bar)
		s.bars[b.Frequency] = byFreq
	}
	series := byFreq[b.Symbol]
	n := len(series)

	// Appends dominate: loads and refreshes arrive in time order.
	if n == 0 || b.Timestamp.After(series[n-1].Timestamp) {
		byFreq[b.Symbol] = append(series, b)
		return
	}

	i := sort.Search(n, func(j int) bool {
		return !series[j].Timestamp.Before(b.Timestamp)
	})
	if i < n && series[i].Timestamp.Equal(b.Timestamp) {
		series[i] = b
		return
	}
	series = append(series, types.Bar{})
	copy(series[i+1:], series[i:])
	series[i] = b
	byFreq[b.Symbol] = series
}

// Range returns a copy of the bars for symbol with start <= timestamp <= end.
func (s *BarStore) Range(symbol string, freq types.Frequency, start, end time.Time) []types.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.bars[freq][symbol]
	n := len(series)
	lo := sort.Search(n, func(i int) bool {
		return !series[i].Timestamp.Before(start)
	})
	hi := sort.Search(n, func(i int) bool {
		return series[i].Timestamp.After(end)
	})
	if lo >= hi {
		return nil
	}
	out := make([]types.Bar, hi-lo)
	copy(out, series[lo:hi])
	return out
}

// Latest returns the most recent bar with timestamp <= asOf.
func (s *BarStore) Latest(symbol string, freq types.Frequency, asOf time.Time) (types.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.bars[freq][symbol]
	hi := sort.Search(len(series), func(i int) bool {
		return series[i].Timestamp.After(asOf)
	})
	if hi == 0 {
		return types.Bar{}, false
	}
	return series[hi-1], true
}

// Symbols returns the symbols held for a frequency, sorted.
func (s *BarStore) Symbols(freq types.Frequency) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.bars[freq]))
	for sym := range s.bars[freq] {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// Count returns the total number of bars held for a frequency.
func (s *BarStore) Count(freq types.Frequency) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, series := range s.bars[freq] {
		total += len(series)
	}
	return total
}

// Clear drops all bars.
func (s *BarStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars = make(map[types.Frequency]map[string][]types.Bar)
}

// Preload loads CSV files for the given symbols concurrently, keeps bars
// inside [start, end], backfills missing indicator columns and returns the
// number of bars loaded. Files live at <root>/<frequency>/<symbol>.csv; a
// missing file is logged and skipped, not an error.
func (s *BarStore) Preload(ctx context.Context, root string, symbols []string, freq types.Frequency, start, end time.Time) (int, error) {
	var loaded atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadParallelism)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(root, string(freq), symbol+".csv")
			f, err := os.Open(path)
			if err != nil {
				if os.IsNotExist(err) {
					s.logger.Warn("no data file for symbol", "symbol", symbol, "path", path)
					return nil
				}
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer f.Close()

			bars, skipped, err := ReadBars(f, symbol, freq, s.logger)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			if skipped > 0 {
				s.logger.Warn("skipped invalid rows", "symbol", symbol, "rows", skipped)
			}

			kept := bars[:0]
			for _, b := range bars {
				if b.Timestamp.Before(start) || b.Timestamp.After(end) {
					continue
				}
				kept = append(kept, b)
			}
			s.Add(kept...)
			loaded.Add(int64(len(kept)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(loaded.Load()), err
	}

	s.EnrichIndicators(freq, symbols...)
	s.logger.Info("bars preloaded",
		"symbols", len(symbols), "frequency", freq, "bars", loaded.Load())
	return int(loaded.Load()), nil
}

// EnrichIndicators backfills nil indicator fields for the given symbols
// (all symbols when none given) by replaying each series through the
// indicator calculators.
func (s *BarStore) EnrichIndicators(freq types.Frequency, symbols ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byFreq := s.bars[freq]
	if len(symbols) == 0 {
		for sym := range byFreq {
			symbols = append(symbols, sym)
		}
	}
	for _, sym := range symbols {
		if series, ok := byFreq[sym]; ok {
			enrichSeries(series)
		}
	}
}
