package data

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"golang.org/x/time/rate"
)

// Lookback windows for latest-bar queries. Wide enough to bridge holidays
// and suspensions without scanning whole series.
const (
	backtestLatestLookback = 30 * 24 * time.Hour
	liveLatestLookback     = 7 * 24 * time.Hour
	latestBarsLookback     = 60 * 24 * time.Hour
)

// UniverseLoader provides named universe snapshots, typically backed by
// the business store.
type UniverseLoader interface {
	LoadUniverse(ctx context.Context, name string) ([]string, error)
}

// Handler is the read-side data contract the pipeline consumes. All bar
// reads are clamped to the handler's current time, so strategies cannot
// look ahead.
type Handler interface {
	// SetCurrentTime advances the cursor. It never moves backwards; a
	// regression is logged and ignored.
	SetCurrentTime(t time.Time)
	CurrentTime() time.Time

	// GetBars returns bars for the symbols with start <= ts <= min(end, now),
	// sorted by timestamp then symbol.
	GetBars(symbols []string, start, end time.Time, freq types.Frequency) []types.Bar

	// LatestBar returns the most recent bar at or before the current time,
	// looking back a bounded window.
	LatestBar(symbol string, freq types.Frequency) (types.Bar, bool)

	// LatestBars returns the last count bars per symbol, oldest first.
	// Symbols with no data map to an empty slice.
	LatestBars(symbols []string, freq types.Frequency, count int) map[string][]types.Bar

	IsTradingDay(t time.Time) bool
	Universe(ctx context.Context, date time.Time) ([]string, error)
}

// BacktestHandler serves bars from an in-memory store with an explicit
// cursor driven by the backtest loop.
type BacktestHandler struct {
	store        *BarStore
	cal          *types.Calendar
	universes    UniverseLoader
	universeName string
	logger       *slog.Logger

	mu  sync.RWMutex
	now time.Time
}

// NewBacktestHandler creates a handler over store. universes may be nil
// when the run supplies symbols directly.
func NewBacktestHandler(store *BarStore, cal *types.Calendar, universes UniverseLoader, universeName string, logger *slog.Logger) *BacktestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if universeName == "" {
		universeName = "default"
	}
	return &BacktestHandler{
		store:        store,
		cal:          cal,
		universes:    universes,
		universeName: universeName,
		logger:       logger,
	}
}

func (h *BacktestHandler) SetCurrentTime(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.now.IsZero() && t.Before(h.now) {
		h.logger.Warn("current time regression ignored", "have", h.now, "got", t)
		return
	}
	h.now = t
}

func (h *BacktestHandler) CurrentTime() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.now
}

func (h *BacktestHandler) GetBars(symbols []string, start, end time.Time, freq types.Frequency) []types.Bar {
	now := h.CurrentTime()
	if !now.IsZero() && end.After(now) {
		end = now
	}
	return collectBars(h.store, symbols, start, end, freq)
}

func (h *BacktestHandler) LatestBar(symbol string, freq types.Frequency) (types.Bar, bool) {
	now := h.CurrentTime()
	if now.IsZero() {
		h.logger.Warn("latest bar requested before current time set", "symbol", symbol)
		return types.Bar{}, false
	}
	return latestWithin(h.store, symbol, freq, now, backtestLatestLookback)
}

func (h *BacktestHandler) LatestBars(symbols []string, freq types.Frequency, count int) map[string][]types.Bar {
	now := h.CurrentTime()
	result := make(map[string][]types.Bar, len(symbols))
	if now.IsZero() {
		h.logger.Warn("latest bars requested before current time set")
		return result
	}
	return lastBarsPerSymbol(h.store, symbols, freq, now, count)
}

func (h *BacktestHandler) IsTradingDay(t time.Time) bool {
	return h.cal.IsTradingDay(t)
}

func (h *BacktestHandler) Universe(ctx context.Context, _ time.Time) ([]string, error) {
	if h.universes == nil {
		return nil, fmt.Errorf("%w: no universe source configured", types.ErrNoData)
	}
	return h.universes.LoadUniverse(ctx, h.universeName)
}

// LiveHandler serves bars with the cursor pinned to the wall clock and a
// rate-limited refresh path that pulls new bars from a Source.
type LiveHandler struct {
	store        *BarStore
	cal          *types.Calendar
	universes    UniverseLoader
	universeName string
	source       Source
	limiter      *rate.Limiter
	logger       *slog.Logger

	nowFn func() time.Time
}

// NewLiveHandler creates a live handler. A nil limiter defaults to one
// fetch per second.
func NewLiveHandler(store *BarStore, cal *types.Calendar, universes UniverseLoader, universeName string, source Source, limiter *rate.Limiter, logger *slog.Logger) *LiveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if universeName == "" {
		universeName = "default"
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	return &LiveHandler{
		store:        store,
		cal:          cal,
		universes:    universes,
		universeName: universeName,
		source:       source,
		limiter:      limiter,
		logger:       logger,
		nowFn:        time.Now,
	}
}

// SetCurrentTime is a no-op in live mode; the wall clock is the cursor.
func (h *LiveHandler) SetCurrentTime(t time.Time) {
	h.logger.Debug("live handler ignores explicit cursor", "got", t)
}

func (h *LiveHandler) CurrentTime() time.Time {
	return h.nowFn()
}

func (h *LiveHandler) GetBars(symbols []string, start, end time.Time, freq types.Frequency) []types.Bar {
	if now := h.nowFn(); end.After(now) {
		end = now
	}
	return collectBars(h.store, symbols, start, end, freq)
}

func (h *LiveHandler) LatestBar(symbol string, freq types.Frequency) (types.Bar, bool) {
	return latestWithin(h.store, symbol, freq, h.nowFn(), liveLatestLookback)
}

func (h *LiveHandler) LatestBars(symbols []string, freq types.Frequency, count int) map[string][]types.Bar {
	return lastBarsPerSymbol(h.store, symbols, freq, h.nowFn(), count)
}

func (h *LiveHandler) IsTradingDay(t time.Time) bool {
	return h.cal.IsTradingDay(t)
}

func (h *LiveHandler) Universe(ctx context.Context, _ time.Time) ([]string, error) {
	if h.universes == nil {
		return nil, fmt.Errorf("%w: no universe source configured", types.ErrNoData)
	}
	return h.universes.LoadUniverse(ctx, h.universeName)
}

// Refresh pulls recent bars for the symbols from the source, gated by the
// rate limiter, and merges them into the store. Returns the number of bars
// received.
func (h *LiveHandler) Refresh(ctx context.Context, symbols []string, freq types.Frequency) (int, error) {
	if h.source == nil {
		return 0, fmt.Errorf("%w: no source configured", types.ErrNoData)
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	now := h.nowFn()
	bars, err := h.source.FetchKline(ctx, symbols, freq, now.Add(-liveLatestLookback), now)
	if err != nil {
		return 0, fmt.Errorf("fetch kline: %w", err)
	}
	h.store.Add(bars...)
	h.store.EnrichIndicators(freq, symbols...)
	h.logger.Info("bars refreshed", "symbols", len(symbols), "bars", len(bars))
	return len(bars), nil
}

// collectBars merges per-symbol ranges and sorts by timestamp then symbol.
func collectBars(store *BarStore, symbols []string, start, end time.Time, freq types.Frequency) []types.Bar {
	var out []types.Bar
	for _, symbol := range symbols {
		out = append(out, store.Range(symbol, freq, start, end)...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func latestWithin(store *BarStore, symbol string, freq types.Frequency, asOf time.Time, lookback time.Duration) (types.Bar, bool) {
	bar, ok := store.Latest(symbol, freq, asOf)
	if !ok || bar.Timestamp.Before(asOf.Add(-lookback)) {
		return types.Bar{}, false
	}
	return bar, true
}

func lastBarsPerSymbol(store *BarStore, symbols []string, freq types.Frequency, asOf time.Time, count int) map[string][]types.Bar {
	result := make(map[string][]types.Bar, len(symbols))
	for _, symbol := range symbols {
		bars := store.Range(symbol, freq, asOf.Add(-latestBarsLookback), asOf)
		if len(bars) > count {
			bars = bars[len(bars)-count:]
		}
		if bars == nil {
			bars = []types.Bar{}
		}
		result[symbol] = bars
	}
	return result
}
