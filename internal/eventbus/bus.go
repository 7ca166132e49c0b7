package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/klyp/klyp-go/internal/domain"
)

const (
	// MaxQueueSize bounds the pending event queue
	MaxQueueSize = 1000

	// DrainInterval is the consumer tick period
	DrainInterval = 100 * time.Millisecond

	// DrainBatchSize caps events processed per tick so one tick cannot
	// starve the consumer
	DrainBatchSize = 100
)

// Callback is invoked on the consumer goroutine for each matching event.
// Kept as an alias so consumer-side interfaces can spell the plain func type.
type Callback = func(domain.Event)

type subscription struct {
	id       string
	callback Callback
}

// item is a queue entry: either a published event or a function handed to
// the consumer by the callback registry.
type item struct {
	event domain.Event
	fn    func()
}

// Bus delivers events published from any goroutine to subscriber callbacks
// running on a single consumer goroutine. The queue is bounded; publishing
// into a full queue drops the event and reports it.
type Bus struct {
	queue chan item

	mu        sync.Mutex
	listeners map[domain.EventKind][]subscription

	started    atomic.Bool
	running    atomic.Bool
	stopCh     chan struct{}
	doneCh     chan struct{}
	consumerID atomic.Uint64

	interval time.Duration
	log      *zap.Logger
}

// New creates a bus with the default queue capacity and drain interval
func New(log *zap.Logger) *Bus {
	return NewWithInterval(log, DrainInterval)
}

// NewWithInterval creates a bus with a custom drain interval, used by tests
// to tighten the tick
func NewWithInterval(log *zap.Logger, interval time.Duration) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		queue:     make(chan item, MaxQueueSize),
		listeners: make(map[domain.EventKind][]subscription),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		interval:  interval,
		log:       log,
	}
}

// Publish enqueues an event from any goroutine. Non-blocking; returns false
// and drops the event when the queue is full.
func (b *Bus) Publish(event domain.Event) bool {
	select {
	case b.queue <- item{event: event}:
		return true
	default:
		b.log.Warn("event queue full, dropping event",
			zap.String("kind", string(event.Kind)))
		return false
	}
}

// RunOnConsumer enqueues fn to run on the consumer goroutine. It shares the
// event queue so ordering against published events is preserved.
func (b *Bus) RunOnConsumer(fn func()) bool {
	if fn == nil {
		return false
	}
	select {
	case b.queue <- item{fn: fn}:
		return true
	default:
		b.log.Warn("event queue full, dropping consumer call")
		return false
	}
}

// Subscribe registers a callback for an event kind. Callable from any
// goroutine; the callback will only ever run on the consumer goroutine.
func (b *Bus) Subscribe(kind domain.EventKind, callback Callback) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.listeners[kind] = append(b.listeners[kind], subscription{id: id, callback: callback})
	b.log.Debug("subscribed",
		zap.String("kind", string(kind)),
		zap.String("subscription_id", id))
	return id
}

// Unsubscribe removes a subscription by id. Returns whether it was found.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, subs := range b.listeners {
		for i, sub := range subs {
			if sub.id == id {
				b.listeners[kind] = append(subs[:i:i], subs[i+1:]...)
				if len(b.listeners[kind]) == 0 {
					delete(b.listeners, kind)
				}
				return true
			}
		}
	}
	b.log.Warn("subscription id not found", zap.String("subscription_id", id))
	return false
}

// Start launches the consumer goroutine and begins the drain loop. The
// second and later calls are no-ops.
func (b *Bus) Start() {
	if !b.started.CompareAndSwap(false, true) {
		b.log.Warn("event bus already started")
		return
	}
	b.running.Store(true)
	go b.drainLoop()
}

// Stop marks the bus inactive. The drain loop exits after the batch it is
// processing; remaining queued events are cleared and the count logged.
func (b *Bus) Stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}
	close(b.stopCh)
	<-b.doneCh

	cleared := b.clearQueue()
	if cleared > 0 {
		b.log.Info("cleared pending events on stop", zap.Int("count", cleared))
	}
}

// drainLoop runs on the consumer goroutine until Stop
func (b *Bus) drainLoop() {
	b.consumerID.Store(goroutineID())
	defer close(b.doneCh)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.drainBatch()
		}
	}
}

// drainBatch processes up to DrainBatchSize queued items
func (b *Bus) drainBatch() {
	for i := 0; i < DrainBatchSize; i++ {
		select {
		case it := <-b.queue:
			if it.fn != nil {
				it.fn()
			} else {
				b.dispatch(it.event)
			}
		default:
			return
		}
	}
}

// dispatch invokes every live subscriber for the event kind in subscription
// order. A panicking subscriber is logged and never interrupts the drain.
func (b *Bus) dispatch(event domain.Event) {
	b.mu.Lock()
	subs := make([]subscription, len(b.listeners[event.Kind]))
	copy(subs, b.listeners[event.Kind])
	b.mu.Unlock()

	for _, sub := range subs {
		b.invoke(sub, event)
	}
}

func (b *Bus) invoke(sub subscription, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("subscriber panicked",
				zap.String("kind", string(event.Kind)),
				zap.String("subscription_id", sub.id),
				zap.Any("panic", r))
		}
	}()
	sub.callback(event)
}

// OnConsumer reports whether the caller is running on the consumer goroutine
func (b *Bus) OnConsumer() bool {
	id := b.consumerID.Load()
	return id != 0 && id == goroutineID()
}

// QueueSize returns the number of pending queue items
func (b *Bus) QueueSize() int {
	return len(b.queue)
}

// ListenerCount returns the number of subscriptions for a kind, or the total
// across all kinds when no kind is given
func (b *Bus) ListenerCount(kinds ...domain.EventKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(kinds) > 0 {
		return len(b.listeners[kinds[0]])
	}
	total := 0
	for _, subs := range b.listeners {
		total += len(subs)
	}
	return total
}

func (b *Bus) clearQueue() int {
	count := 0
	for {
		select {
		case <-b.queue:
			count++
		default:
			return count
		}
	}
}
