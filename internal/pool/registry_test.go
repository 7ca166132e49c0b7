package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelToken(t *testing.T) {
	token := NewCancelToken()
	assert.False(t, token.IsSet())

	token.Cancel()
	assert.True(t, token.IsSet())

	// idempotent
	token.Cancel()
	assert.True(t, token.IsSet())

	select {
	case <-token.Done():
	default:
		t.Fatal("Done channel must be closed after Cancel")
	}
}

func TestSubmitAndOutcome(t *testing.T) {
	registry := NewRegistry(nil)
	defer registry.Shutdown(time.Second)

	p, err := registry.DownloadPool()
	require.NoError(t, err)

	handle, err := p.Submit(func() (interface{}, error) {
		return "/tmp/out.mp4", nil
	})
	require.NoError(t, err)

	value, err := handle.Outcome()
	assert.NoError(t, err)
	assert.Equal(t, "/tmp/out.mp4", value)
}

func TestOnComplete_FiresAfterFinish(t *testing.T) {
	registry := NewRegistry(nil)
	defer registry.Shutdown(time.Second)

	p, err := registry.DownloadPool()
	require.NoError(t, err)

	handle, err := p.Submit(func() (interface{}, error) { return 42, nil })
	require.NoError(t, err)

	done := make(chan struct{})
	handle.OnComplete(func(h *Handle) {
		value, err := h.Outcome()
		assert.NoError(t, err)
		assert.Equal(t, 42, value)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion callback never fired")
	}
}

func TestConcurrencyLimit(t *testing.T) {
	registry := NewRegistry(nil)
	defer registry.Shutdown(time.Second)

	p, err := registry.DownloadPool()
	require.NoError(t, err)

	var current, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		_, err := p.Submit(func() (interface{}, error) {
			defer wg.Done()
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			current.Add(-1)
			return nil, nil
		})
		require.NoError(t, err)
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(MaxDownloadWorkers), current.Load(),
		"exactly the worker count may run at once")
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(MaxDownloadWorkers))
}

func TestLazyPoolCreation(t *testing.T) {
	registry := NewRegistry(nil)
	defer registry.Shutdown(time.Second)

	p1, err := registry.SearchPool()
	require.NoError(t, err)
	p2, err := registry.SearchPool()
	require.NoError(t, err)
	assert.Same(t, p1, p2, "pool must be created once")
}

func TestShutdown_CooperativeWorkersReturnTrue(t *testing.T) {
	registry := NewRegistry(nil)
	p, err := registry.DownloadPool()
	require.NoError(t, err)

	token := NewCancelToken()
	started := make(chan struct{})
	_, err = p.Submit(func() (interface{}, error) {
		close(started)
		<-token.Done()
		return nil, nil
	})
	require.NoError(t, err)
	<-started

	token.Cancel()
	assert.True(t, registry.Shutdown(5*time.Second))
}

func TestShutdown_ReturnsWithinTimeout(t *testing.T) {
	registry := NewRegistry(nil)
	p, err := registry.DownloadPool()
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	_, err = p.Submit(func() (interface{}, error) {
		<-release // ignores its token
		return nil, nil
	})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	ok := registry.Shutdown(200 * time.Millisecond)
	assert.False(t, ok, "uncooperative worker must time the shutdown out")
	assert.Less(t, time.Since(start), 2*time.Second, "shutdown must return near the timeout")
}

func TestShutdown_Idempotent(t *testing.T) {
	registry := NewRegistry(nil)
	_, err := registry.DownloadPool()
	require.NoError(t, err)

	assert.True(t, registry.Shutdown(time.Second))
	assert.True(t, registry.Shutdown(time.Second))
}

func TestAccessAfterShutdownFails(t *testing.T) {
	registry := NewRegistry(nil)
	p, err := registry.DownloadPool()
	require.NoError(t, err)
	registry.Shutdown(time.Second)

	_, err = registry.DownloadPool()
	assert.ErrorIs(t, err, ErrRegistryClosed)
	_, err = registry.SearchPool()
	assert.ErrorIs(t, err, ErrRegistryClosed)

	_, err = p.Submit(func() (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestQueuedTaskFailsOnShutdown(t *testing.T) {
	registry := NewRegistry(nil)
	p, err := registry.DownloadPool()
	require.NoError(t, err)

	// occupy every worker
	release := make(chan struct{})
	for i := 0; i < MaxDownloadWorkers; i++ {
		_, err := p.Submit(func() (interface{}, error) {
			<-release
			return nil, nil
		})
		require.NoError(t, err)
	}
	queued, err := p.Submit(func() (interface{}, error) { return "ran", nil })
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	registry.Shutdown(5 * time.Second)

	_, err = queued.Outcome()
	assert.ErrorIs(t, err, ErrRegistryClosed, "work queued behind shutdown must not run")
}

func TestWorkerPanicBecomesError(t *testing.T) {
	registry := NewRegistry(nil)
	defer registry.Shutdown(time.Second)

	p, err := registry.DownloadPool()
	require.NoError(t, err)

	handle, err := p.Submit(func() (interface{}, error) { panic("boom") })
	require.NoError(t, err)

	_, err = handle.Outcome()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}
