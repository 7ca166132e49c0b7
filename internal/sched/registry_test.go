package sched

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConsumer runs scheduled functions on a dedicated goroutine
type fakeConsumer struct {
	mu       sync.Mutex
	queue    []func()
	consumer bool
	stopped  bool
}

func newFakeConsumer() *fakeConsumer {
	c := &fakeConsumer{}
	go c.loop()
	return c
}

func (c *fakeConsumer) loop() {
	for {
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return
		}
		var fn func()
		if len(c.queue) > 0 {
			fn = c.queue[0]
			c.queue = c.queue[1:]
		}
		c.mu.Unlock()

		if fn != nil {
			fn()
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}

func (c *fakeConsumer) RunOnConsumer(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.queue = append(c.queue, fn)
	return true
}

func (c *fakeConsumer) OnConsumer() bool { return c.consumer }

func (c *fakeConsumer) stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

func TestScheduleAfter_RunsCallback(t *testing.T) {
	consumer := newFakeConsumer()
	defer consumer.stop()
	registry := NewRegistry(consumer, nil)

	var ran atomic.Bool
	handle, err := registry.ScheduleAfter(time.Millisecond, func() { ran.Store(true) })
	require.NoError(t, err)
	assert.True(t, handle.Valid())

	require.Eventually(t, ran.Load, time.Second, time.Millisecond)
	assert.Zero(t, registry.PendingCount())
}

func TestScheduleIdle_RunsCallback(t *testing.T) {
	consumer := newFakeConsumer()
	defer consumer.stop()
	registry := NewRegistry(consumer, nil)

	var ran atomic.Bool
	handle, err := registry.ScheduleIdle(func() { ran.Store(true) })
	require.NoError(t, err)
	assert.True(t, handle.Valid())

	require.Eventually(t, ran.Load, time.Second, time.Millisecond)
}

func TestCancel_PreventsExecution(t *testing.T) {
	consumer := newFakeConsumer()
	defer consumer.stop()
	registry := NewRegistry(consumer, nil)

	var ran atomic.Bool
	handle, err := registry.ScheduleAfter(50*time.Millisecond, func() { ran.Store(true) })
	require.NoError(t, err)

	assert.True(t, registry.Cancel(handle))
	time.Sleep(100 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.False(t, registry.Cancel(handle), "second cancel must report not found")
}

func TestCleanup_CancelsEverything(t *testing.T) {
	consumer := newFakeConsumer()
	defer consumer.stop()
	registry := NewRegistry(consumer, nil)

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		_, err := registry.ScheduleAfter(50*time.Millisecond, func() { ran.Add(1) })
		require.NoError(t, err)
	}
	assert.Equal(t, 5, registry.PendingCount())

	registry.Cleanup()
	assert.Zero(t, registry.PendingCount())

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, ran.Load(), "cleaned-up callbacks must never run")
}

func TestScheduleAfterCleanup_IsNoOp(t *testing.T) {
	consumer := newFakeConsumer()
	defer consumer.stop()
	registry := NewRegistry(consumer, nil)

	registry.Cleanup()

	handle, err := registry.ScheduleAfter(time.Millisecond, func() { t.Error("must not run") })
	require.NoError(t, err)
	assert.False(t, handle.Valid())

	handle, err = registry.ScheduleIdle(func() { t.Error("must not run") })
	require.NoError(t, err)
	assert.False(t, handle.Valid())

	time.Sleep(20 * time.Millisecond)
}

func TestCallbackPanic_IsAbsorbed(t *testing.T) {
	consumer := newFakeConsumer()
	defer consumer.stop()
	registry := NewRegistry(consumer, nil)

	_, err := registry.ScheduleIdle(func() { panic("boom") })
	require.NoError(t, err)

	var ran atomic.Bool
	_, err = registry.ScheduleIdle(func() { ran.Store(true) })
	require.NoError(t, err)

	require.Eventually(t, ran.Load, time.Second, time.Millisecond,
		"a panicking callback must not kill the consumer loop")
}

func TestStrictMode_RejectsCrossGoroutineScheduling(t *testing.T) {
	consumer := newFakeConsumer()
	defer consumer.stop()
	registry := NewRegistry(consumer, nil)
	registry.SetStrict(true)

	// this test goroutine is not the consumer
	_, err := registry.ScheduleAfter(time.Millisecond, func() {})
	assert.ErrorIs(t, err, ErrThreadSafetyViolation)

	// simulate being on the consumer
	consumer.consumer = true
	handle, err := registry.ScheduleAfter(time.Millisecond, func() {})
	assert.NoError(t, err)
	assert.True(t, handle.Valid())
}
