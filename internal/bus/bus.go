// Event distribution bus: callback fan-out plus queued delivery to streams
package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"edgeops-sim/internal/logging"
)

// Handler is a callback invoked synchronously during publish.
type Handler func(Event)

// Subscription identifies one registered handler so it can be removed.
// Handlers cannot be compared in Go, so unsubscribe works by handle.
type Subscription struct {
	id uint64
	t  Type
}

type subscriber struct {
	id uint64
	fn Handler
}

// Instrumentation receives publish outcomes, typically backed by Prometheus
// counters. Implementations must be safe for concurrent use.
type Instrumentation interface {
	EventPublished(t Type)
	EventDropped(reason string)
}

// Stats are the bus's lifetime counters.
type Stats struct {
	Published      uint64 `json:"published"`
	DroppedUnknown uint64 `json:"dropped_unknown"`
	DroppedQueue   uint64 `json:"dropped_queue"`
	DroppedStream  uint64 `json:"dropped_stream"`
}

const (
	defaultQueueSize    = 1024
	defaultStreamBuffer = 64
)

// Bus fans typed events out to direct subscribers and to per-stream delivery
// queues. Publishing never blocks on a slow consumer.
type Bus struct {
	log *slog.Logger

	mu       sync.RWMutex
	nextID   uint64
	handlers map[Type][]subscriber

	queue        chan Event
	streamBuffer int

	smu     sync.Mutex
	streams map[string]*Stream

	instr Instrumentation

	published      atomic.Uint64
	droppedUnknown atomic.Uint64
	droppedQueue   atomic.Uint64
	droppedStream  atomic.Uint64
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithQueueSize sets the shared delivery queue capacity.
func WithQueueSize(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan Event, n)
		}
	}
}

// WithStreamBuffer sets the per-stream buffer capacity.
func WithStreamBuffer(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.streamBuffer = n
		}
	}
}

// WithInstrumentation attaches publish metrics.
func WithInstrumentation(i Instrumentation) BusOption {
	return func(b *Bus) { b.instr = i }
}

// NewBus creates a bus. Run must be started for streams to receive events;
// direct handler fan-out works without it.
func NewBus(log *slog.Logger, opts ...BusOption) *Bus {
	b := &Bus{
		log:          log,
		handlers:     make(map[Type][]subscriber),
		queue:        make(chan Event, defaultQueueSize),
		streamBuffer: defaultStreamBuffer,
		streams:      make(map[string]*Stream),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	return b
}

// Subscribe registers a handler for one event type. Subscribing the same
// handler twice delivers events twice.
func (b *Bus) Subscribe(t Type, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[t] = append(b.handlers[t], subscriber{id: b.nextID, fn: fn})
	return Subscription{id: b.nextID, t: t}
}

// Unsubscribe removes a previously registered handler. Unknown subscriptions
// are a no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[sub.t]
	for i, s := range subs {
		if s.id == sub.id {
			b.handlers[sub.t] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every current subscriber of its type and enqueues it
// for stream delivery. Events outside the vocabulary are silently dropped.
func (b *Bus) Publish(ev Event) {
	if !Known(ev.Type) {
		b.droppedUnknown.Add(1)
		if b.instr != nil {
			b.instr.EventDropped("unknown_type")
		}
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	// Copy-on-publish handler snapshot: subscribe/unsubscribe during fan-out
	// cannot invalidate this iteration.
	b.mu.RLock()
	subs := append([]subscriber(nil), b.handlers[ev.Type]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.invoke(s.fn, ev)
	}

	b.published.Add(1)
	if b.instr != nil {
		b.instr.EventPublished(ev.Type)
	}

	select {
	case b.queue <- ev:
	default:
		b.droppedQueue.Add(1)
		if b.instr != nil {
			b.instr.EventDropped("queue_full")
		}
		b.log.Warn("delivery queue full, event dropped", "type", ev.Type)
	}
}

// invoke runs one handler, isolating its failure from the publisher and from
// the remaining handlers.
func (b *Bus) invoke(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "type", ev.Type, "panic", r)
		}
	}()
	fn(ev)
}

// Run drains the shared delivery queue into every open stream until ctx is
// cancelled. Exactly one distributor should run per bus.
func (b *Bus) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	for {
		select {
		case ev := <-b.queue:
			b.dispatch(ev)
		case <-ctx.Done():
			log.Info("event distributor stopping")
			return
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	b.smu.Lock()
	defer b.smu.Unlock()
	for _, st := range b.streams {
		select {
		case st.ch <- ev:
		default:
			// Slow stream misses this event; nobody else is affected.
			st.dropped.Add(1)
			b.droppedStream.Add(1)
			if b.instr != nil {
				b.instr.EventDropped("stream_full")
			}
		}
	}
}

// Stats returns the lifetime counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published:      b.published.Load(),
		DroppedUnknown: b.droppedUnknown.Load(),
		DroppedQueue:   b.droppedQueue.Load(),
		DroppedStream:  b.droppedStream.Load(),
	}
}
