// Package alerting delivers notifications from the trading engine: console
// logging for development, Telegram for operators, and a fan-out combinator.
package alerting

import (
	"context"
	"fmt"
)

// Severity ranks an alert.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Emoji returns the marker used by chat channels for the severity.
func (s Severity) Emoji() string {
	switch s {
	case SeverityInfo:
		return "ℹ️"
	case SeverityWarning:
		return "⚠️"
	case SeverityHigh:
		return "🔴"
	case SeverityCritical:
		return "🚨"
	default:
		return "❓"
	}
}

// Alerter sends one alert to one channel. Fields are slog-style key/value
// pairs appended to the message.
type Alerter interface {
	Alert(ctx context.Context, severity Severity, message string, fields ...any) error
	Name() string
}

// FormatFields renders key/value pairs as bullet lines. Keys must be
// strings; a trailing odd value is dropped.
func FormatFields(fields ...any) string {
	if len(fields) == 0 {
		return ""
	}

	result := ""
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		value := fields[i+1]
		if result != "" {
			result += "\n"
		}
		result += fmt.Sprintf("• %s: %v", key, value)
	}
	return result
}

// AlertEvent names the notification-worthy moments of the engine lifecycle.
type AlertEvent string

const (
	// EventEngineStarted is sent when the live engine starts.
	EventEngineStarted AlertEvent = "engine_started"
	// EventEngineStopped is sent when the live engine stops.
	EventEngineStopped AlertEvent = "engine_stopped"
	// EventOrderFilled is sent when an order fills.
	EventOrderFilled AlertEvent = "order_filled"
	// EventOrderRejected is sent when execution refuses an order.
	EventOrderRejected AlertEvent = "order_rejected"
	// EventDataStale is sent when the market refresh keeps failing.
	EventDataStale AlertEvent = "data_stale"
	// EventDrawdownAlert is sent when equity falls past the alert threshold.
	EventDrawdownAlert AlertEvent = "drawdown_alert"
	// EventDailySummary is sent once per trading day at session close.
	EventDailySummary AlertEvent = "daily_summary"
)

// EventSeverity returns the default severity for an event.
func EventSeverity(event AlertEvent) Severity {
	switch event {
	case EventDrawdownAlert:
		return SeverityHigh
	case EventOrderRejected, EventDataStale:
		return SeverityWarning
	case EventEngineStarted, EventEngineStopped, EventOrderFilled, EventDailySummary:
		return SeverityInfo
	default:
		return SeverityInfo
	}
}
