package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Will-Grindelwald/quant-trading/internal/types"
)

// HandlerFunc processes one event on the subscriber's worker. Returned
// errors are counted and logged; they never propagate to other subscribers.
type HandlerFunc func(ctx context.Context, ev Event) error

// Recorder receives bus metrics. A nil recorder disables recording.
type Recorder interface {
	EventDispatched(eventType string)
	EventDropped(eventType, subscriber string)
	DispatchError(subscriber string)
	HandlerLatency(subscriber string, d time.Duration)
}

// Config sizes the bus queues.
type Config struct {
	CentralQueueSize    int
	SubscriberQueueSize int
}

const (
	defaultCentralQueueSize    = 10000
	defaultSubscriberQueueSize = 1000

	// stopDrainDeadline bounds how long Stop waits for queues to empty.
	stopDrainDeadline = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.CentralQueueSize <= 0 {
		c.CentralQueueSize = defaultCentralQueueSize
	}
	if c.SubscriberQueueSize <= 0 {
		c.SubscriberQueueSize = defaultSubscriberQueueSize
	}
	return c
}

// subscriber is one registered handler with its own bounded queue and
// dedicated worker. pending counts events accepted into the queue whose
// callbacks have not finished, so quiescence can observe in-flight work.
type subscriber struct {
	name    string
	fn      HandlerFunc
	queue   chan Event
	pending atomic.Int64
}

// Stats is a point-in-time view of bus counters. Pending is the backlog of
// accepted events whose handlers have not finished yet.
type Stats struct {
	Dispatched     int64
	Dropped        int64
	DispatchErrors int64
	Subscribers    int
	Pending        int64
}

// Bus moves events from producers to typed subscribers. Publish never
// blocks: a full queue drops that event (for that subscriber) and counts it.
type Bus struct {
	cfg    Config
	logger *slog.Logger
	rec    Recorder

	mu      sync.RWMutex
	subs    map[Type][]*subscriber
	allSubs []*subscriber

	central chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// centralPending counts events accepted by Publish that the dispatcher
	// has not yet fanned out.
	centralPending atomic.Int64
	dispatched     atomic.Int64
	dropped        atomic.Int64
	errors         atomic.Int64
}

// New creates a bus. Zero config fields fall back to defaults
// (central 10000, per-subscriber 1000).
func New(cfg Config, logger *slog.Logger, rec Recorder) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Bus{
		cfg:     cfg,
		logger:  logger,
		rec:     rec,
		subs:    make(map[Type][]*subscriber),
		central: make(chan Event, cfg.CentralQueueSize),
	}
}

// Subscribe attaches a named handler to an event type. Names must be unique
// per type; registering while the bus runs is allowed.
func (b *Bus) Subscribe(typ Type, name string, fn HandlerFunc) error {
	return b.SubscribeMulti([]Type{typ}, name, fn)
}

// SubscribeMulti attaches one handler to several event types behind a single
// queue and worker, so events of those types are processed serially in
// arrival order. The portfolio manager relies on this to mutate the account
// from exactly one goroutine.
func (b *Bus) SubscribeMulti(typs []Type, name string, fn HandlerFunc) error {
	if fn == nil {
		return fmt.Errorf("%w: nil handler %q", types.ErrInvalidConfig, name)
	}
	if len(typs) == 0 {
		return fmt.Errorf("%w: subscriber %q has no event types", types.ErrInvalidConfig, name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, typ := range typs {
		for _, s := range b.subs[typ] {
			if s.name == name {
				return fmt.Errorf("%w: subscriber %q already registered for %s", types.ErrInvalidConfig, name, typ)
			}
		}
	}
	sub := &subscriber{
		name:  name,
		fn:    fn,
		queue: make(chan Event, b.cfg.SubscriberQueueSize),
	}
	for _, typ := range typs {
		b.subs[typ] = append(b.subs[typ], sub)
	}
	b.allSubs = append(b.allSubs, sub)

	if b.running.Load() {
		b.startWorker(sub)
	}
	return nil
}

// Publish offers an event to the central queue without blocking. It reports
// whether the queue accepted the event; false means the bus is stopped or
// the central queue is full.
func (b *Bus) Publish(ev Event) bool {
	if !b.running.Load() {
		return false
	}
	b.centralPending.Add(1)
	select {
	case b.central <- ev:
		return true
	default:
		b.centralPending.Add(-1)
		b.dropped.Add(1)
		if b.rec != nil {
			b.rec.EventDropped(string(ev.Type()), "central")
		}
		b.logger.Warn("central queue full, event dropped", "type", ev.Type())
		return false
	}
}

// Start launches the dispatcher and one worker per subscriber.
func (b *Bus) Start() {
	if !b.running.CompareAndSwap(false, true) {
		return
	}
	b.done = make(chan struct{})

	b.mu.RLock()
	subs := make([]*subscriber, len(b.allSubs))
	copy(subs, b.allSubs)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.startWorker(sub)
	}

	b.wg.Add(1)
	go b.dispatchLoop()

	b.logger.Info("event bus started",
		"central_queue", b.cfg.CentralQueueSize,
		"subscriber_queue", b.cfg.SubscriberQueueSize,
		"subscribers", len(subs))
}

// Stop refuses new publishes, drains in-flight events for up to five
// seconds, then stops all workers.
func (b *Bus) Stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopDrainDeadline)
	defer cancel()
	if err := b.Quiesce(ctx); err != nil {
		b.logger.Warn("event bus stopped before fully draining", "err", err)
	}

	close(b.done)
	b.wg.Wait()
	b.logger.Info("event bus stopped", "dispatched", b.dispatched.Load(), "dropped", b.dropped.Load())
}

// Quiesce blocks until no event is queued or mid-callback anywhere, or ctx
// expires. With producers paused, two consecutive clear observations imply
// the pipeline is empty, including events republished by handlers.
func (b *Bus) Quiesce(ctx context.Context) error {
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()

	clearStreak := 0
	for {
		if b.idle() {
			clearStreak++
			if clearStreak >= 2 {
				return nil
			}
		} else {
			clearStreak = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func (b *Bus) idle() bool {
	if b.centralPending.Load() != 0 {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.allSubs {
		if sub.pending.Load() != 0 {
			return false
		}
	}
	return true
}

// Stats returns the bus counters.
func (b *Bus) Stats() Stats {
	pending := b.centralPending.Load()
	b.mu.RLock()
	n := len(b.allSubs)
	for _, sub := range b.allSubs {
		pending += sub.pending.Load()
	}
	b.mu.RUnlock()
	return Stats{
		Dispatched:     b.dispatched.Load(),
		Dropped:        b.dropped.Load(),
		DispatchErrors: b.errors.Load(),
		Subscribers:    n,
		Pending:        pending,
	}
}

func (b *Bus) dispatchLoop() {
	defer b.wg.Done()
	for {
		select {
		case ev := <-b.central:
			b.fanOut(ev)
		case <-b.done:
			// Drain whatever Stop's deadline left behind.
			for {
				select {
				case ev := <-b.central:
					b.fanOut(ev)
				default:
					return
				}
			}
		}
	}
}

// fanOut copies the event into each subscribed handler's queue. A full
// subscriber queue drops that one delivery; other subscribers still get it.
func (b *Bus) fanOut(ev Event) {
	defer b.centralPending.Add(-1)

	b.mu.RLock()
	subs := b.subs[ev.Type()]
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.pending.Add(1)
		select {
		case sub.queue <- ev:
		default:
			sub.pending.Add(-1)
			b.dropped.Add(1)
			if b.rec != nil {
				b.rec.EventDropped(string(ev.Type()), sub.name)
			}
			b.logger.Warn("subscriber queue full, event dropped",
				"subscriber", sub.name, "type", ev.Type())
		}
	}
	b.dispatched.Add(1)
	if b.rec != nil {
		b.rec.EventDispatched(string(ev.Type()))
	}
}

func (b *Bus) startWorker(sub *subscriber) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case ev := <-sub.queue:
				b.invoke(sub, ev)
			case <-b.done:
				for {
					select {
					case ev := <-sub.queue:
						b.invoke(sub, ev)
					default:
						return
					}
				}
			}
		}
	}()
}

// invoke runs one callback, isolating panics and errors to this subscriber.
func (b *Bus) invoke(sub *subscriber, ev Event) {
	defer sub.pending.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			b.errors.Add(1)
			if b.rec != nil {
				b.rec.DispatchError(sub.name)
			}
			b.logger.Error("handler panicked",
				"subscriber", sub.name, "type", ev.Type(), "panic", r)
		}
	}()

	start := time.Now()
	err := sub.fn(context.Background(), ev)
	if b.rec != nil {
		b.rec.HandlerLatency(sub.name, time.Since(start))
	}
	if err != nil {
		b.errors.Add(1)
		if b.rec != nil {
			b.rec.DispatchError(sub.name)
		}
		b.logger.Error("handler failed",
			"subscriber", sub.name, "type", ev.Type(), "err", err)
	}
}
