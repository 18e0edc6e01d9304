// Package ui renders backtest progress as a live terminal frame: a progress
// bar, an equity chart and a stats line redrawn in place after every trading
// day. When stdout is not a terminal the renderer stays quiet and the
// engine's own progress logging takes over.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/term"

	"github.com/Will-Grindelwald/quant-trading/internal/backtest"
)

// ANSI escape codes
const (
	ClearLine   = "\033[2K"
	MoveToStart = "\r"
	MoveUp      = "\033[%dA"
	HideCursor  = "\033[?25l"
	ShowCursor  = "\033[?25h"
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorRed    = "\033[31m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorDim    = "\033[2m"
	ColorBold   = "\033[1m"
)

// Renderer draws the live backtest frame. Build one with NewRenderer and
// register Observe as the engine's progress callback.
type Renderer struct {
	out io.Writer
	tty bool

	width       int
	chartHeight int
	maxPoints   int

	initial decimal.Decimal
	equity  []decimal.Decimal
	last    backtest.ProgressUpdate

	linesPrinted int
}

// NewRenderer sizes a renderer for the current terminal. initialCapital
// anchors the profit/loss coloring of the equity curve.
func NewRenderer(initialCapital decimal.Decimal) *Renderer {
	width, _ := getTerminalSize()

	maxPoints := width - 14 // leave room for the equity axis
	if maxPoints < 20 {
		maxPoints = 20
	}
	if maxPoints > 160 {
		maxPoints = 160
	}

	return &Renderer{
		out:         os.Stdout,
		tty:         term.IsTerminal(int(os.Stdout.Fd())),
		width:       width,
		chartHeight: 8,
		maxPoints:   maxPoints,
		initial:     initialCapital,
		equity:      make([]decimal.Decimal, 0, maxPoints),
	}
}

// Start hides the cursor before the first frame.
func (r *Renderer) Start() {
	if !r.tty {
		return
	}
	fmt.Fprint(r.out, HideCursor)
	fmt.Fprintln(r.out)
}

// Stop restores the cursor after the last frame.
func (r *Renderer) Stop() {
	if !r.tty {
		return
	}
	fmt.Fprint(r.out, ShowCursor)
	fmt.Fprintln(r.out)
}

// Observe records one trading day and redraws the frame.
func (r *Renderer) Observe(u backtest.ProgressUpdate) {
	r.last = u
	r.equity = append(r.equity, u.Equity)
	if len(r.equity) > r.maxPoints {
		r.equity = r.equity[1:]
	}
	if !r.tty {
		return
	}
	r.render()
}

func (r *Renderer) render() {
	// Move cursor up to overwrite the previous frame.
	if r.linesPrinted > 0 {
		fmt.Fprintf(r.out, MoveUp, r.linesPrinted)
	}

	lines := make([]string, 0, r.chartHeight+3)
	lines = append(lines, r.progressLine())
	lines = append(lines, r.renderChart()...)
	lines = append(lines, r.statsLine())

	for _, line := range lines {
		fmt.Fprint(r.out, ClearLine)
		fmt.Fprintln(r.out, line)
	}
	r.linesPrinted = len(lines)
}

func (r *Renderer) progressLine() string {
	progress := 0.0
	if r.last.TotalDays > 0 {
		progress = float64(r.last.Day) / float64(r.last.TotalDays)
	}

	barWidth := r.width - 40
	if barWidth < 20 {
		barWidth = 20
	}
	filled := int(progress * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	return fmt.Sprintf("%s%s %.1f%% [%d/%d] %s%s",
		ColorCyan, bar, progress*100, r.last.Day, r.last.TotalDays,
		r.last.Date.Format("2006-01-02"), ColorReset)
}

func (r *Renderer) statsLine() string {
	pnlPct := decimal.Zero
	if !r.initial.IsZero() {
		pnlPct = r.last.Equity.Sub(r.initial).Div(r.initial).Mul(decimal.NewFromInt(100))
	}
	pnlColor := ColorGreen
	if pnlPct.IsNegative() {
		pnlColor = ColorRed
	}

	return fmt.Sprintf("%sEquity:%s ¥%.0f (%s%+.2f%%%s) │ %sTrades:%s %d │ %sWin:%s %.1f%%",
		ColorBold, ColorReset, r.last.Equity.InexactFloat64(),
		pnlColor, pnlPct.InexactFloat64(), ColorReset,
		ColorBold, ColorReset, r.last.Trades,
		ColorBold, ColorReset, r.last.WinRate.Mul(decimal.NewFromInt(100)).InexactFloat64())
}

// renderChart draws the collected equity points as a connected line, green
// above the initial capital and red below it.
func (r *Renderer) renderChart() []string {
	if len(r.equity) < 2 {
		lines := make([]string, r.chartHeight)
		for i := range lines {
			lines[i] = ColorDim + strings.Repeat(" ", 10) + "│" + ColorReset
		}
		return lines
	}

	minVal := r.equity[0]
	maxVal := r.equity[0]
	for _, v := range r.equity {
		if v.LessThan(minVal) {
			minVal = v
		}
		if v.GreaterThan(maxVal) {
			maxVal = v
		}
	}

	span := maxVal.Sub(minVal)
	if span.IsZero() {
		span = decimal.NewFromInt(1)
	}
	padding := span.Mul(decimal.RequireFromString("0.05"))
	minVal = minVal.Sub(padding)
	maxVal = maxVal.Add(padding)
	span = maxVal.Sub(minVal)

	height := r.chartHeight
	width := len(r.equity)
	chart := make([][]rune, height)
	colors := make([][]string, height)
	for i := range chart {
		chart[i] = make([]rune, width)
		colors[i] = make([]string, width)
		for j := range chart[i] {
			chart[i][j] = ' '
			colors[i][j] = ColorReset
		}
	}

	prevY := -1
	for x, v := range r.equity {
		color := ColorGreen
		if v.LessThan(r.initial) {
			color = ColorRed
		}

		y := valueToY(v, minVal, span, height)
		chart[y][x] = '█'
		colors[y][x] = color

		// Fill the vertical gap to the previous point so the curve reads
		// as one line.
		if prevY >= 0 {
			lo, hi := prevY, y
			if lo > hi {
				lo, hi = hi, lo
			}
			for yy := lo + 1; yy < hi; yy++ {
				if chart[yy][x] == ' ' {
					chart[yy][x] = '│'
					colors[yy][x] = color
				}
			}
		}
		prevY = y
	}

	lines := make([]string, height)
	for y := 0; y < height; y++ {
		var sb strings.Builder

		// Equity label every few rows.
		if y%(height/4) == 0 {
			val := yToValue(y, minVal, span, height)
			sb.WriteString(fmt.Sprintf("%s%9.0f │%s", ColorDim, val.InexactFloat64(), ColorReset))
		} else {
			sb.WriteString(fmt.Sprintf("%s%s│%s", ColorDim, strings.Repeat(" ", 10), ColorReset))
		}

		for x := 0; x < width; x++ {
			sb.WriteString(colors[y][x])
			sb.WriteRune(chart[y][x])
		}
		sb.WriteString(ColorReset)

		lines[y] = sb.String()
	}

	axis := strings.Repeat("─", width)
	lines = append(lines, fmt.Sprintf("%s%s└%s%s", ColorDim, strings.Repeat(" ", 10), axis, ColorReset))

	return lines
}

// valueToY converts an equity value to a row, 0 at the top.
func valueToY(v, minVal, span decimal.Decimal, height int) int {
	if span.IsZero() {
		return height / 2
	}
	normalized := v.Sub(minVal).Div(span)
	y := decimal.NewFromInt(int64(height - 1)).Sub(normalized.Mul(decimal.NewFromInt(int64(height - 1))))
	n := int(y.IntPart())
	if n < 0 {
		n = 0
	}
	if n >= height {
		n = height - 1
	}
	return n
}

// yToValue converts a row back to an equity value for the axis labels.
func yToValue(y int, minVal, span decimal.Decimal, height int) decimal.Decimal {
	normalized := decimal.NewFromInt(int64(height - 1 - y)).Div(decimal.NewFromInt(int64(height - 1)))
	return minVal.Add(span.Mul(normalized))
}

// getTerminalSize returns terminal dimensions, with a sane fallback when
// stdout is not a terminal.
func getTerminalSize() (width, height int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80, 24
	}
	return width, height
}
