package alerting

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// MultiAlerter fans one alert out to every registered channel concurrently.
// A slow or failing channel never blocks the others.
type MultiAlerter struct {
	mu       sync.RWMutex
	alerters []Alerter
	logger   *slog.Logger
}

// NewMultiAlerter creates a fan-out alerter over the given channels.
func NewMultiAlerter(logger *slog.Logger, alerters ...Alerter) *MultiAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiAlerter{
		alerters: alerters,
		logger:   logger,
	}
}

// Name identifies the fan-out in logs.
func (m *MultiAlerter) Name() string {
	return "multi"
}

// AddAlerter registers another channel.
func (m *MultiAlerter) AddAlerter(alerter Alerter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerters = append(m.alerters, alerter)
}

// Alert delivers the alert to all channels and joins any failures into a
// single error. Failures are also logged per channel.
func (m *MultiAlerter) Alert(ctx context.Context, severity Severity, message string, fields ...any) error {
	m.mu.RLock()
	targets := make([]Alerter, len(m.alerters))
	copy(targets, m.alerters)
	m.mu.RUnlock()

	// One slot per channel; errors.Join skips the nils.
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, a Alerter) {
			defer wg.Done()
			errs[i] = a.Alert(ctx, severity, message, fields...)
		}(i, target)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			m.logger.Error("alert channel failed",
				"channel", targets[i].Name(),
				"severity", severity.String(),
				"error", err,
			)
		}
	}
	return errors.Join(errs...)
}

// AlertEvent sends an alert for a known engine event at its default
// severity.
func (m *MultiAlerter) AlertEvent(ctx context.Context, event AlertEvent, message string, fields ...any) error {
	return m.Alert(ctx, EventSeverity(event), message, fields...)
}
