package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Will-Grindelwald/quant-trading/internal/event"
	"github.com/Will-Grindelwald/quant-trading/internal/types"
)

// Manager is the strategy registry. It wires each registered strategy to the
// bus with its own subscriber queue, so one slow strategy cannot stall the
// others, and publishes the signals the strategies produce.
type Manager struct {
	bus    *event.Bus
	logger *slog.Logger

	mu         sync.RWMutex
	strategies map[string]Strategy
	// subscribed remembers ids whose bus handler already exists. The bus
	// keeps handlers for good; a re-registered id reuses its old queue.
	subscribed map[string]struct{}
}

// NewManager creates a strategy manager publishing through bus.
func NewManager(bus *event.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		bus:        bus,
		logger:     logger,
		strategies: make(map[string]Strategy),
		subscribed: make(map[string]struct{}),
	}
}

// Register adds a strategy and subscribes it to MARKET events. Duplicate
// ids are rejected.
func (m *Manager) Register(s Strategy) error {
	id := s.ID()
	m.mu.Lock()
	if _, exists := m.strategies[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrDuplicateStrategy, id)
	}
	m.strategies[id] = s
	_, wasSubscribed := m.subscribed[id]
	m.subscribed[id] = struct{}{}
	m.mu.Unlock()

	if !wasSubscribed {
		if err := m.bus.Subscribe(event.TypeMarket, "strategy-"+id, m.marketHandler(id)); err != nil {
			m.mu.Lock()
			delete(m.strategies, id)
			delete(m.subscribed, id)
			m.mu.Unlock()
			return fmt.Errorf("subscribe strategy %s: %w", id, err)
		}
	}
	m.logger.Info("strategy registered",
		"strategy", id, "name", s.Name(), "kind", s.Kind().String())
	return nil
}

// Remove deactivates and unregisters a strategy. Its bus handler stays but
// becomes a no-op once the id no longer resolves.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	s, ok := m.strategies[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrStrategyNotFound, id)
	}
	delete(m.strategies, id)
	m.mu.Unlock()

	s.Deactivate()
	m.logger.Info("strategy removed", "strategy", id)
	return nil
}

// Get returns the registered strategy with the given id.
func (m *Manager) Get(id string) (Strategy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.strategies[id]
	return s, ok
}

// Activate enables signal generation for one strategy.
func (m *Manager) Activate(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrStrategyNotFound, id)
	}
	s.Activate()
	return nil
}

// Deactivate disables signal generation for one strategy.
func (m *Manager) Deactivate(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrStrategyNotFound, id)
	}
	s.Deactivate()
	return nil
}

// StartAll activates every registered strategy.
func (m *Manager) StartAll() {
	for _, s := range m.snapshot() {
		s.Activate()
	}
	m.logger.Info("strategies started", "count", m.Len())
}

// StopAll deactivates every registered strategy.
func (m *Manager) StopAll() {
	for _, s := range m.snapshot() {
		s.Deactivate()
	}
	m.logger.Info("strategies stopped")
}

// Len returns the number of registered strategies.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.strategies)
}

func (m *Manager) snapshot() []Strategy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Strategy, 0, len(m.strategies))
	for _, s := range m.strategies {
		out = append(out, s)
	}
	return out
}

// Info describes one registered strategy for Statistics.
type Info struct {
	Name       string
	Kind       types.StrategyKind
	Active     bool
	LastUpdate time.Time
}

// Stats aggregates the registry state.
type Stats struct {
	Total   int
	Active  int
	Details map[string]Info
}

// Statistics reports per-strategy kind, activity and last-update stamps.
func (m *Manager) Statistics() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{Details: make(map[string]Info, len(m.strategies))}
	for id, s := range m.strategies {
		st.Total++
		active := s.IsActive()
		if active {
			st.Active++
		}
		info := Info{Name: s.Name(), Kind: s.Kind(), Active: active}
		if lu, ok := s.(interface{ LastUpdate() time.Time }); ok {
			info.LastUpdate = lu.LastUpdate()
		}
		st.Details[id] = info
	}
	return st
}

// marketHandler adapts one strategy to the bus: it resolves the strategy by
// id on every event (so Remove takes effect without unsubscribing), applies
// the watch-set filter, and publishes validated signals.
func (m *Manager) marketHandler(id string) event.HandlerFunc {
	return func(ctx context.Context, ev event.Event) error {
		mev, ok := ev.(event.MarketEvent)
		if !ok {
			return nil
		}
		m.mu.RLock()
		s, ok := m.strategies[id]
		m.mu.RUnlock()
		if !ok || !s.IsActive() {
			return nil
		}
		if _, watch := s.WatchSymbols()[mev.Symbol]; !watch {
			return nil
		}

		signals := s.OnMarket(ctx, mev)
		if t, ok := s.(interface{ touch(time.Time) }); ok {
			t.touch(mev.Bar.Timestamp)
		}

		for _, sig := range signals {
			if err := sig.Validate(); err != nil {
				m.logger.Warn("dropping invalid signal",
					"strategy", id, "symbol", sig.Symbol, "error", err)
				continue
			}
			if !m.bus.Publish(event.SignalEvent{Signal: sig}) {
				m.logger.Warn("signal not published, bus unavailable",
					"strategy", id, "symbol", sig.Symbol)
				continue
			}
			m.logger.Debug("signal published",
				"strategy", id, "symbol", sig.Symbol,
				"direction", sig.Direction.String(), "strength", sig.Strength)
		}
		return nil
	}
}
