package platform

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/ports"
)

// DefaultEventQueueSize is the number of undelivered events the bus buffers.
const DefaultEventQueueSize = 256

// EventBus fans lifecycle events out to sinks from a background goroutine.
// Publishing never blocks: when the queue is full the event is dropped.
// A panicking sink is recovered and logged; other sinks still receive the event.
type EventBus struct {
	logger  *slog.Logger
	now     func() time.Time
	queue   chan entities.CapabilityEvent
	done    chan struct{}
	sinks   []ports.EventSink
	dropped atomic.Int64
	sinkMu  sync.RWMutex
	mu      sync.RWMutex // guards closed against concurrent sends
	closed  bool
}

var _ ports.EventSink = (*EventBus)(nil)

// NewEventBus starts a bus delivering to sinks.
func NewEventBus(logger *slog.Logger, queueSize int, sinks ...ports.EventSink) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = DefaultEventQueueSize
	}
	b := &EventBus{
		logger: logger,
		now:    time.Now,
		queue:  make(chan entities.CapabilityEvent, queueSize),
		done:   make(chan struct{}),
		sinks:  append([]ports.EventSink(nil), sinks...),
	}
	go b.run()
	return b
}

// Subscribe adds a sink. It receives events published after the call.
func (b *EventBus) Subscribe(sink ports.EventSink) {
	if sink == nil {
		return
	}
	b.sinkMu.Lock()
	defer b.sinkMu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// OnEvent publishes evt, filling in id, timestamp and a normalized lifecycle.
func (b *EventBus) OnEvent(evt entities.CapabilityEvent) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = b.now()
	}
	evt.Lifecycle = entities.NormalizeLifecycle(string(evt.Lifecycle))

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.dropped.Add(1)
		return
	}
	select {
	case b.queue <- evt:
	default:
		b.dropped.Add(1)
		b.logger.Warn("event queue full, dropping event",
			"lifecycle", evt.Lifecycle, "capability", evt.CapabilityID)
	}
}

// Dropped returns the number of events that were never queued.
func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops accepting events and waits until queued ones are delivered.
func (b *EventBus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()
	<-b.done
}

func (b *EventBus) run() {
	defer close(b.done)
	for evt := range b.queue {
		b.sinkMu.RLock()
		sinks := b.sinks
		b.sinkMu.RUnlock()
		for _, s := range sinks {
			b.deliver(s, evt)
		}
	}
}

func (b *EventBus) deliver(s ports.EventSink, evt entities.CapabilityEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event sink panicked", "lifecycle", evt.Lifecycle, "panic", r)
		}
	}()
	s.OnEvent(evt)
}
