package data

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"github.com/shopspring/decimal"
)

// barHeader is the column layout of bar CSV files. Columns from turnover on
// are optional; indicator cells are blank when not precomputed.
var barHeader = []string{
	"symbol", "datetime", "frequency",
	"open", "high", "low", "close", "volume", "amount", "turnover",
	"ma5", "ma20", "ma60",
	"macd_dif", "macd_dea", "macd_histogram",
	"rsi_14", "boll_upper", "boll_lower",
	"is_st", "is_new_stock",
}

// ReadBars parses bar rows from r. Blank symbol/frequency cells fall back
// to the given defaults. Rows that fail to parse or validate are skipped
// and counted, not fatal.
func ReadBars(r io.Reader, symbol string, freq types.Frequency, logger *slog.Logger) ([]types.Bar, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reader := csv.NewReader(bufio.NewReader(r))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var bars []types.Bar
	skipped := 0
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		if line == 1 && isHeader(record) {
			continue
		}
		bar, err := parseBarRecord(record, symbol, freq)
		if err != nil {
			skipped++
			logger.Warn("invalid bar row skipped", "line", line, "err", err)
			continue
		}
		bars = append(bars, bar)
	}
	return bars, skipped, nil
}

// WriteBars writes bars as CSV with the full header.
func WriteBars(w io.Writer, bars []types.Bar) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(barHeader); err != nil {
		return err
	}
	for _, b := range bars {
		record := []string{
			b.Symbol,
			b.Timestamp.Format("2006-01-02 15:04:05"),
			string(b.Frequency),
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			strconv.FormatInt(b.Volume, 10),
			b.Amount.String(),
			b.Turnover.String(),
			fmtOptDecimal(b.MA5),
			fmtOptDecimal(b.MA20),
			fmtOptDecimal(b.MA60),
			fmtOptDecimal(b.MACDDIF),
			fmtOptDecimal(b.MACDDEA),
			fmtOptDecimal(b.MACDHist),
			fmtOptDecimal(b.RSI14),
			fmtOptDecimal(b.BollUpper),
			fmtOptDecimal(b.BollLower),
			strconv.FormatBool(b.IsST),
			strconv.FormatBool(b.IsNewStock),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func parseBarRecord(record []string, defaultSymbol string, defaultFreq types.Frequency) (types.Bar, error) {
	if len(record) < 9 {
		return types.Bar{}, fmt.Errorf("expected at least 9 columns, got %d", len(record))
	}

	symbol := record[0]
	if symbol == "" {
		symbol = defaultSymbol
	}
	ts, err := parseTimestamp(record[1])
	if err != nil {
		return types.Bar{}, err
	}
	freq := types.Frequency(record[2])
	if record[2] == "" {
		freq = defaultFreq
	}

	open, err := decimal.NewFromString(record[3])
	if err != nil {
		return types.Bar{}, fmt.Errorf("open: %w", err)
	}
	high, err := decimal.NewFromString(record[4])
	if err != nil {
		return types.Bar{}, fmt.Errorf("high: %w", err)
	}
	low, err := decimal.NewFromString(record[5])
	if err != nil {
		return types.Bar{}, fmt.Errorf("low: %w", err)
	}
	closePx, err := decimal.NewFromString(record[6])
	if err != nil {
		return types.Bar{}, fmt.Errorf("close: %w", err)
	}
	volume, err := strconv.ParseInt(record[7], 10, 64)
	if err != nil {
		return types.Bar{}, fmt.Errorf("volume: %w", err)
	}
	amount, err := decimal.NewFromString(record[8])
	if err != nil {
		return types.Bar{}, fmt.Errorf("amount: %w", err)
	}

	bar, err := types.NewBar(symbol, ts, freq, open, high, low, closePx, volume, amount)
	if err != nil {
		return types.Bar{}, err
	}

	if len(record) > 9 && record[9] != "" {
		if turnover, err := decimal.NewFromString(record[9]); err == nil {
			bar.Turnover = turnover
		}
	}
	if len(record) > 18 {
		bar.MA5 = optDecimal(record[10])
		bar.MA20 = optDecimal(record[11])
		bar.MA60 = optDecimal(record[12])
		bar.MACDDIF = optDecimal(record[13])
		bar.MACDDEA = optDecimal(record[14])
		bar.MACDHist = optDecimal(record[15])
		bar.RSI14 = optDecimal(record[16])
		bar.BollUpper = optDecimal(record[17])
		bar.BollLower = optDecimal(record[18])
	}
	if len(record) > 20 {
		bar.IsST = parseBool(record[19])
		bar.IsNewStock = parseBool(record[20])
	}
	return bar, nil
}

// parseTimestamp tries the formats daily and intraday A-share dumps carry,
// then unix seconds.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unknown timestamp format: %q", s)
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	switch record[0] {
	case "symbol", "datetime", "date", "timestamp", "time":
		return true
	}
	return false
}

func optDecimal(cell string) *decimal.Decimal {
	if cell == "" {
		return nil
	}
	d, err := decimal.NewFromString(cell)
	if err != nil {
		return nil
	}
	return &d
}

func fmtOptDecimal(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func parseBool(cell string) bool {
	b, err := strconv.ParseBool(cell)
	return err == nil && b
}
