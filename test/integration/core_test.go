package integration

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/klyp/klyp-go/internal/domain"
	"github.com/klyp/klyp-go/internal/eventbus"
	"github.com/klyp/klyp-go/internal/pool"
	"github.com/klyp/klyp-go/internal/queue"
	"github.com/klyp/klyp-go/internal/service"
)

// blockingFetcher keeps polling its sink until the sink reports
// cancellation or finish is closed; a closed finish completes at once
type blockingFetcher struct {
	finish chan struct{} // closed to let fetches complete
}

func (f *blockingFetcher) Describe(url string) (domain.VideoDescriptor, error) {
	return domain.NewVideoDescriptor(url)
}

func (f *blockingFetcher) Fetch(d domain.VideoDescriptor, path string, sink domain.ProgressSink) (string, error) {
	for {
		select {
		case <-f.finish:
			return filepath.Join(path, "out.mp4"), nil
		default:
		}
		if err := sink(1, 100); err != nil {
			return "", err
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *blockingFetcher) FetchWithSubtitles(d domain.VideoDescriptor, path string, sink domain.ProgressSink) (string, error) {
	return f.Fetch(d, path, sink)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) record(event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) countKind(kind domain.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func TestDownloadFlow_EventsReachConsumer(t *testing.T) {
	bus := eventbus.NewWithInterval(zap.NewNop(), 5*time.Millisecond)
	bus.Start()
	defer bus.Stop()

	rec := &eventRecorder{}
	bus.Subscribe(domain.EventDownloadProgress, rec.record)
	bus.Subscribe(domain.EventDownloadComplete, rec.record)
	bus.Subscribe(domain.EventQueueUpdated, rec.record)

	store := queue.NewStore(bus, nil)
	pools := pool.NewRegistry(nil)
	defer pools.Shutdown(5 * time.Second)

	fetcher := &blockingFetcher{finish: make(chan struct{})}
	close(fetcher.finish) // finish immediately
	svc := service.NewDownloadService(store, nil, fetcher, pools, bus, nil)

	d, err := domain.NewVideoDescriptor("https://example.com/v/1")
	require.NoError(t, err)
	task, err := store.Add(d, t.TempDir())
	require.NoError(t, err)

	require.True(t, svc.Start(task.ID))

	require.Eventually(t, func() bool {
		got, ok := store.Get(task.ID)
		return ok && got.Status == domain.StatusCompleted
	}, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return rec.countKind(domain.EventDownloadComplete) == 1
	}, 5*time.Second, 5*time.Millisecond, "completion event must reach the consumer")
	assert.GreaterOrEqual(t, rec.countKind(domain.EventQueueUpdated), 2,
		"add and status updates are reported")
}

func TestGracefulShutdownWithInFlightWork(t *testing.T) {
	bus := eventbus.NewWithInterval(zap.NewNop(), 5*time.Millisecond)
	bus.Start()
	defer bus.Stop()

	store := queue.NewStore(bus, nil)
	pools := pool.NewRegistry(nil)

	fetcher := &blockingFetcher{finish: make(chan struct{})} // never finishes
	svc := service.NewDownloadService(store, nil, fetcher, pools, bus, nil)

	var ids []string
	for i := 0; i < 5; i++ {
		d, err := domain.NewVideoDescriptor(fmt.Sprintf("https://example.com/v/%d", i))
		require.NoError(t, err)
		task, err := store.Add(d, t.TempDir())
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}
	assert.Equal(t, 5, svc.StartAllQueued())

	// the pool admits three at a time
	require.Eventually(t, func() bool {
		return len(store.ByStatus(domain.StatusDownloading)) == pool.MaxDownloadWorkers
	}, 5*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)

	// shutdown sequence: snapshot while tasks still read as in-flight,
	// then cancel and wait
	pendingPath := filepath.Join(t.TempDir(), "pending_downloads.json")
	require.NoError(t, store.SnapshotPending(pendingPath))

	svc.StopAll()
	start := time.Now()
	assert.True(t, pools.Shutdown(10*time.Second),
		"cooperating workers must exit before the timeout")
	assert.Less(t, time.Since(start), 10*time.Second)

	// a fresh process resumes everything as queued
	fresh := queue.NewStore(nil, nil)
	tasks, err := fresh.LoadPending(pendingPath)
	require.NoError(t, err)
	require.Len(t, tasks, 5)
	for _, task := range tasks {
		assert.Equal(t, domain.StatusQueued, task.Status)
		assert.Zero(t, task.Progress)
	}
	assert.Equal(t, 5, fresh.Restore(tasks))
	assert.ElementsMatch(t, ids, taskIDs(tasks), "task ids are stable across restarts")
}

func taskIDs(tasks []domain.DownloadTask) []string {
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids
}
