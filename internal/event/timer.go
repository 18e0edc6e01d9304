package event

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Will-Grindelwald/quant-trading/internal/types"
)

// timerJoinDeadline bounds how long Stop waits for a callback to finish.
const timerJoinDeadline = 5 * time.Second

// Timer runs a named callback on its own worker. Callbacks never overlap:
// when one runs longer than the interval, the next starts immediately after
// it returns and the drift is absorbed.
type Timer struct {
	ID         string
	Interval   time.Duration
	Repeat     bool
	StartDelay time.Duration

	callback func()
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewTimer creates a timer; Start launches it.
func NewTimer(id string, interval time.Duration, callback func(), repeat bool, startDelay time.Duration, logger *slog.Logger) *Timer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Timer{
		ID:         id,
		Interval:   interval,
		Repeat:     repeat,
		StartDelay: startDelay,
		callback:   callback,
		logger:     logger,
	}
}

// Start launches the timer worker. Starting a running timer is a no-op.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.logger.Warn("timer already running", "timer", t.ID)
		return
	}
	t.running = true
	t.done = make(chan struct{})
	t.wg.Add(1)
	go t.run(t.done)
	t.logger.Info("timer started", "timer", t.ID, "interval", t.Interval)
}

// Stop signals the worker and waits for it up to the join deadline. A
// callback that outlives the deadline is abandoned, not killed.
func (t *Timer) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.done)
	t.mu.Unlock()

	joined := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
		t.logger.Info("timer stopped", "timer", t.ID)
	case <-time.After(timerJoinDeadline):
		t.logger.Warn("timer stop deadline exceeded", "timer", t.ID)
	}
}

// IsRunning reports whether the worker is active.
func (t *Timer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) run(done chan struct{}) {
	defer t.wg.Done()

	if t.StartDelay > 0 {
		select {
		case <-done:
			return
		case <-time.After(t.StartDelay):
		}
	}

	for {
		start := time.Now()
		t.fire()
		elapsed := time.Since(start)

		if elapsed > t.Interval {
			t.logger.Warn("timer callback exceeded interval",
				"timer", t.ID, "elapsed", elapsed, "interval", t.Interval)
		}
		if !t.Repeat {
			return
		}

		wait := t.Interval - elapsed
		if wait < 0 {
			wait = 0
		}
		select {
		case <-done:
			return
		case <-time.After(wait):
		}
	}
}

// fire runs the callback, surviving panics; after a panic the next run
// waits a full interval.
func (t *Timer) fire() {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("timer callback panicked", "timer", t.ID, "panic", r)
		}
	}()
	t.callback()
}

// TimerManager owns a set of timers keyed by id.
type TimerManager struct {
	logger *slog.Logger

	mu      sync.Mutex
	timers  map[string]*Timer
	running bool
}

// NewTimerManager creates an empty manager.
func NewTimerManager(logger *slog.Logger) *TimerManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerManager{
		logger: logger,
		timers: make(map[string]*Timer),
	}
}

// Add registers a timer, rejecting duplicate ids. If the manager is already
// running the timer starts immediately.
func (m *TimerManager) Add(t *Timer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.timers[t.ID]; exists {
		return fmt.Errorf("%w: %s", types.ErrDuplicateTimer, t.ID)
	}
	m.timers[t.ID] = t
	if m.running {
		t.Start()
	}
	return nil
}

// Create builds, registers and (if the manager runs) starts a timer.
func (m *TimerManager) Create(id string, interval time.Duration, callback func(), repeat bool, startDelay time.Duration) (*Timer, error) {
	t := NewTimer(id, interval, callback, repeat, startDelay, m.logger)
	if err := m.Add(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Remove stops and forgets the timer.
func (m *TimerManager) Remove(id string) error {
	m.mu.Lock()
	t, ok := m.timers[id]
	if ok {
		delete(m.timers, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrTimerNotFound, id)
	}
	t.Stop()
	return nil
}

// Get returns the timer with the given id.
func (m *TimerManager) Get(id string) (*Timer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[id]
	return t, ok
}

// StartAll starts every registered timer.
func (m *TimerManager) StartAll() {
	m.mu.Lock()
	m.running = true
	timers := make([]*Timer, 0, len(m.timers))
	for _, t := range m.timers {
		timers = append(timers, t)
	}
	m.mu.Unlock()

	for _, t := range timers {
		t.Start()
	}
	m.logger.Info("timers started", "count", len(timers))
}

// StopAll stops every registered timer.
func (m *TimerManager) StopAll() {
	m.mu.Lock()
	m.running = false
	timers := make([]*Timer, 0, len(m.timers))
	for _, t := range m.timers {
		timers = append(timers, t)
	}
	m.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	m.logger.Info("timers stopped", "count", len(timers))
}

// Running returns the ids of currently running timers, sorted.
func (m *TimerManager) Running() []string {
	m.mu.Lock()
	timers := make([]*Timer, 0, len(m.timers))
	for _, t := range m.timers {
		timers = append(timers, t)
	}
	m.mu.Unlock()

	var ids []string
	for _, t := range timers {
		if t.IsRunning() {
			ids = append(ids, t.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered timers.
func (m *TimerManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
