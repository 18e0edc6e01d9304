package data

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Will-Grindelwald/quant-trading/internal/types"
)

// Source supplies symbols and kline data from an upstream provider.
type Source interface {
	ListSymbols(ctx context.Context) ([]string, error)
	FetchKline(ctx context.Context, symbols []string, freq types.Frequency, start, end time.Time) ([]types.Bar, error)
}

// CSVSource reads kline data from a directory tree laid out
// <root>/<frequency>/<symbol>.csv. It backs the live simulation, standing
// in for a market data vendor.
type CSVSource struct {
	root   string
	logger *slog.Logger
}

// NewCSVSource creates a source over root.
func NewCSVSource(root string, logger *slog.Logger) *CSVSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSource{root: root, logger: logger}
}

// ListSymbols returns the symbols with daily files, sorted.
func (s *CSVSource) ListSymbols(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, string(types.FrequencyDay))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		symbols = append(symbols, strings.TrimSuffix(name, ".csv"))
	}
	sort.Strings(symbols)
	return symbols, nil
}

// FetchKline reads the symbols' files and returns bars inside [start, end].
// Missing files are skipped with a warning.
func (s *CSVSource) FetchKline(ctx context.Context, symbols []string, freq types.Frequency, start, end time.Time) ([]types.Bar, error) {
	var out []types.Bar
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(s.root, string(freq), symbol+".csv")
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				s.logger.Warn("no data file for symbol", "symbol", symbol, "path", path)
				continue
			}
			return nil, fmt.Errorf("open %s: %w", path, err)
		}

		bars, skipped, err := ReadBars(f, symbol, freq, s.logger)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if skipped > 0 {
			s.logger.Warn("skipped invalid rows", "symbol", symbol, "rows", skipped)
		}
		for _, b := range bars {
			if b.Timestamp.Before(start) || b.Timestamp.After(end) {
				continue
			}
			out = append(out, b)
		}
	}
	return out, nil
}
