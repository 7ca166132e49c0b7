package sched

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrThreadSafetyViolation is returned in strict mode when scheduling is
// attempted from a goroutine other than the consumer.
var ErrThreadSafetyViolation = errors.New("callback scheduled from non-consumer goroutine")

// Consumer is the single-goroutine executor callbacks are scheduled onto.
// The event bus satisfies it.
type Consumer interface {
	RunOnConsumer(fn func()) bool
	OnConsumer() bool
}

// Handle identifies a scheduled callback for cancellation
type Handle struct {
	id    uint64
	valid bool
}

// Valid reports whether the handle refers to a live scheduling
func (h Handle) Valid() bool {
	return h.valid
}

type pending struct {
	timer     *time.Timer
	cancelled bool
}

// Registry tracks callbacks a consumer-side component schedules onto the
// consumer goroutine, so they can all be cancelled when the component is
// torn down. Late deliveries after Cleanup are absorbed, never executed.
type Registry struct {
	consumer Consumer
	log      *zap.Logger

	mu        sync.Mutex
	callbacks map[uint64]*pending
	nextID    uint64
	destroyed bool
	strict    bool
}

// NewRegistry creates a registry bound to a consumer executor
func NewRegistry(consumer Consumer, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		consumer:  consumer,
		log:       log,
		callbacks: make(map[uint64]*pending),
	}
}

// SetStrict toggles thread-safety validation. When enabled, scheduling from
// a goroutine other than the consumer returns ErrThreadSafetyViolation.
func (r *Registry) SetStrict(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strict = enabled
}

// ScheduleAfter enqueues fn to run on the consumer goroutine after delay.
// Returns an invalid handle and does nothing when the registry is torn down.
func (r *Registry) ScheduleAfter(delay time.Duration, fn func()) (Handle, error) {
	return r.schedule(delay, fn, false)
}

// ScheduleIdle enqueues fn to run at the consumer's next quiescent point
func (r *Registry) ScheduleIdle(fn func()) (Handle, error) {
	return r.schedule(0, fn, true)
}

func (r *Registry) schedule(delay time.Duration, fn func(), idle bool) (Handle, error) {
	r.mu.Lock()
	if r.strict && !r.consumer.OnConsumer() {
		r.mu.Unlock()
		r.log.Error("thread-safety violation on schedule")
		return Handle{}, ErrThreadSafetyViolation
	}
	if r.destroyed {
		r.mu.Unlock()
		r.log.Debug("ignoring schedule on destroyed registry")
		return Handle{}, nil
	}

	r.nextID++
	id := r.nextID
	p := &pending{}
	r.callbacks[id] = p

	run := func() {
		r.consumer.RunOnConsumer(func() {
			r.invoke(id, fn)
		})
	}
	if idle {
		run()
	} else {
		p.timer = time.AfterFunc(delay, run)
	}
	r.mu.Unlock()

	return Handle{id: id, valid: true}, nil
}

// invoke runs on the consumer goroutine. Callbacks whose registry was torn
// down in the meantime are dropped at debug level; panics are logged at
// error and never reach the consumer loop.
func (r *Registry) invoke(id uint64, fn func()) {
	r.mu.Lock()
	p, ok := r.callbacks[id]
	if !ok || p.cancelled || r.destroyed {
		r.mu.Unlock()
		r.log.Debug("dropping callback for torn-down target")
		return
	}
	delete(r.callbacks, id)
	r.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("scheduled callback panicked", zap.Any("panic", rec))
		}
	}()
	fn()
}

// Cancel cancels a single scheduled callback
func (r *Registry) Cancel(h Handle) bool {
	if !h.valid {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.callbacks[h.id]
	if !ok {
		return false
	}
	p.cancelled = true
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(r.callbacks, h.id)
	return true
}

// Cleanup cancels every live callback and marks the registry torn down.
// Subsequent scheduling is a no-op.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.callbacks {
		p.cancelled = true
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(r.callbacks, id)
	}
	r.destroyed = true
	r.log.Debug("callback registry cleaned up")
}

// PendingCount returns the number of live scheduled callbacks
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.callbacks)
}
