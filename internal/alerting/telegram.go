package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TelegramConfig holds credentials for the Telegram Bot API.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Timeout  time.Duration
}

// TelegramAlerter sends alerts to a Telegram chat via the Bot API.
type TelegramAlerter struct {
	cfg    TelegramConfig
	client *http.Client
}

// NewTelegramAlerter creates a Telegram alerter. A zero timeout defaults to
// 10 seconds.
func NewTelegramAlerter(cfg TelegramConfig) *TelegramAlerter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &TelegramAlerter{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name identifies the channel in logs.
func (t *TelegramAlerter) Name() string {
	return "telegram"
}

// telegramMessage is the sendMessage request body.
type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// telegramResponse is the subset of the API response we check.
type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Alert formats and sends the alert as an HTML message.
func (t *TelegramAlerter) Alert(ctx context.Context, severity Severity, message string, fields ...any) error {
	return t.send(ctx, t.formatMessage(severity, message, fields...))
}

// SendDailySummary sends the end-of-day report.
func (t *TelegramAlerter) SendDailySummary(ctx context.Context, summary DailySummary) error {
	return t.send(ctx, t.formatDailySummary(summary))
}

// send posts one HTML message to the configured chat.
func (t *TelegramAlerter) send(ctx context.Context, text string) error {
	msg := telegramMessage{
		ChatID:    t.cfg.ChatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var telegramResp telegramResponse
	if err := json.Unmarshal(respBody, &telegramResp); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	if !telegramResp.OK {
		return fmt.Errorf("telegram API error: %s", telegramResp.Description)
	}

	return nil
}

// formatMessage renders an alert with severity marker, fields and timestamp.
func (t *TelegramAlerter) formatMessage(severity Severity, message string, fields ...any) string {
	text := fmt.Sprintf("%s <b>[%s]</b>\n%s", severity.Emoji(), severity.String(), message)

	if len(fields) > 0 {
		fieldsStr := FormatFields(fields...)
		if fieldsStr != "" {
			text += "\n\n<b>Details:</b>\n" + fieldsStr
		}
	}

	text += fmt.Sprintf("\n\n<i>%s</i>", time.Now().Format("2006-01-02 15:04:05 MST"))

	return text
}

// formatDailySummary renders the end-of-day report. Monetary amounts are in
// yuan.
func (t *TelegramAlerter) formatDailySummary(s DailySummary) string {
	plEmoji := "📈"
	if s.TotalPL.IsNegative() {
		plEmoji = "📉"
	}

	return fmt.Sprintf(`%s <b>Daily Trading Summary</b>
<b>Date:</b> %s

<b>Performance:</b>
• Starting Equity: ¥%s
• Ending Equity: ¥%s
• Daily P/L: ¥%s (%s%%)
• High Water Mark: ¥%s
• Drawdown: %s%%

<b>Trades:</b>
• Total: %d
• Wins: %d | Losses: %d
• Win Rate: %s%%
• Commission: ¥%s

<b>Open Positions:</b> %d`,
		plEmoji,
		s.Date.Format("2006-01-02"),
		s.StartingEquity.StringFixed(2),
		s.EndingEquity.StringFixed(2),
		s.TotalPL.StringFixed(2),
		s.ReturnPct.StringFixed(2),
		s.HighWaterMark.StringFixed(2),
		s.Drawdown.StringFixed(2),
		s.TotalTrades,
		s.WinningTrades,
		s.LosingTrades,
		s.WinRate.StringFixed(1),
		s.Commission.StringFixed(2),
		s.OpenPositions,
	)
}
