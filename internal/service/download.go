package service

import (
	"errors"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/klyp/klyp-go/internal/domain"
	"github.com/klyp/klyp-go/internal/pool"
)

// TaskStore is the slice of the queue store the service drives. Status and
// progress mutations always go through it.
type TaskStore interface {
	Get(id string) (domain.DownloadTask, bool)
	ByStatus(status domain.DownloadStatus) []domain.DownloadTask
	UpdateStatus(id string, status domain.DownloadStatus, progress *float64, errorMessage string) bool
}

// HistoryRecorder receives the record of each completed download
type HistoryRecorder interface {
	Add(entry domain.HistoryEntry) error
}

// Publisher is the event sink workers and completion callbacks publish to
type Publisher interface {
	Publish(event domain.Event) bool
}

// stoppedReason is the canonical payload for user-initiated stops
const stoppedReason = "stopped by user"

// DownloadService owns each task's lifecycle: when it runs, how progress is
// reported, and how it terminates. Workers run on the download pool and
// cooperate with per-task cancellation tokens.
type DownloadService struct {
	store   TaskStore
	history HistoryRecorder
	fetcher domain.MediaFetcher
	pools   *pool.Registry
	bus     Publisher
	log     *zap.Logger

	mu     sync.Mutex
	active map[string]*pool.Handle
	cancel map[string]*pool.CancelToken
}

// NewDownloadService wires the service. history may be nil when no history
// recording is wanted.
func NewDownloadService(
	store TaskStore,
	history HistoryRecorder,
	fetcher domain.MediaFetcher,
	pools *pool.Registry,
	bus Publisher,
	log *zap.Logger,
) *DownloadService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DownloadService{
		store:   store,
		history: history,
		fetcher: fetcher,
		pools:   pools,
		bus:     bus,
		log:     log,
		active:  make(map[string]*pool.Handle),
		cancel:  make(map[string]*pool.CancelToken),
	}
}

// Start submits the task's worker to the download pool. Returns false when
// the task does not exist, is already active, or the pool refuses the work.
func (s *DownloadService) Start(taskID string) bool {
	task, ok := s.store.Get(taskID)
	if !ok {
		s.log.Warn("task not found", zap.String("task_id", taskID))
		return false
	}

	downloadPool, err := s.pools.DownloadPool()
	if err != nil {
		s.log.Warn("download pool unavailable", zap.Error(err))
		return false
	}

	s.mu.Lock()
	if _, running := s.active[taskID]; running {
		s.mu.Unlock()
		s.log.Warn("task already downloading", zap.String("task_id", taskID))
		return false
	}

	token := pool.NewCancelToken()
	s.cancel[taskID] = token

	handle, err := downloadPool.Submit(func() (interface{}, error) {
		return s.worker(task, token)
	})
	if err != nil {
		delete(s.cancel, taskID)
		s.mu.Unlock()
		s.log.Warn("failed to submit download worker",
			zap.String("task_id", taskID),
			zap.Error(err))
		return false
	}
	s.active[taskID] = handle
	s.mu.Unlock()

	handle.OnComplete(func(h *pool.Handle) {
		s.onComplete(taskID, h)
	})

	s.log.Info("download started",
		zap.String("task_id", taskID),
		zap.String("url", task.Descriptor.URL))
	return true
}

// Stop sets the task's cancellation token. The worker exits at its next
// progress checkpoint. Returns false when no token is recorded.
func (s *DownloadService) Stop(taskID string) bool {
	s.mu.Lock()
	token, ok := s.cancel[taskID]
	s.mu.Unlock()

	if !ok {
		s.log.Warn("cannot stop task: not active", zap.String("task_id", taskID))
		return false
	}
	token.Cancel()
	s.log.Info("stop signal sent", zap.String("task_id", taskID))
	return true
}

// StopAll sets every recorded token
func (s *DownloadService) StopAll() {
	s.mu.Lock()
	tokens := make([]*pool.CancelToken, 0, len(s.cancel))
	for _, token := range s.cancel {
		tokens = append(tokens, token)
	}
	count := len(tokens)
	s.mu.Unlock()

	for _, token := range tokens {
		token.Cancel()
	}
	if count > 0 {
		s.log.Info("stop signal sent to all active downloads", zap.Int("count", count))
	}
}

// StartAllQueued starts every queued task. A failure to start one task does
// not affect the others. Returns the number started.
func (s *DownloadService) StartAllQueued() int {
	started := 0
	for _, task := range s.store.ByStatus(domain.StatusQueued) {
		if s.Start(task.ID) {
			started++
		}
	}
	s.log.Info("started queued downloads", zap.Int("count", started))
	return started
}

// ActiveCount returns the number of downloads currently in flight
func (s *DownloadService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// worker runs on the download pool. It drives the fetcher, reports throttled
// progress, and finishes the task's state machine. The error it returns is
// what the completion callback observes.
func (s *DownloadService) worker(task domain.DownloadTask, token *pool.CancelToken) (interface{}, error) {
	taskID := task.ID

	zero := 0.0
	s.store.UpdateStatus(taskID, domain.StatusDownloading, &zero, "")
	s.bus.Publish(domain.NewEvent(domain.EventDownloadProgress, domain.DownloadProgressPayload{
		TaskID:   taskID,
		Progress: 0.0,
		Status:   "downloading",
	}))

	// progress events only on 5-percent boundary crossings
	lastBucket := 0
	sink := func(downloaded, total int64) error {
		if token.IsSet() {
			return domain.ErrCancelled
		}
		if total <= 0 {
			return nil
		}
		progress := float64(downloaded) * 100 / float64(total)
		if progress > 100 {
			progress = 100
		}
		s.store.UpdateStatus(taskID, domain.StatusDownloading, &progress, "")

		bucket := int(progress / 5)
		if bucket > lastBucket || (progress >= 100 && lastBucket < 20) {
			lastBucket = bucket
			s.bus.Publish(domain.NewEvent(domain.EventDownloadProgress, domain.DownloadProgressPayload{
				TaskID:          taskID,
				Progress:        progress,
				DownloadedBytes: downloaded,
				TotalBytes:      total,
			}))
		}
		return nil
	}

	var filePath string
	var err error
	if task.Descriptor.DownloadSubtitles {
		filePath, err = s.fetcher.FetchWithSubtitles(task.Descriptor, task.DownloadPath, sink)
	} else {
		filePath, err = s.fetcher.Fetch(task.Descriptor, task.DownloadPath, sink)
	}

	if err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			s.store.UpdateStatus(taskID, domain.StatusStopped, nil, "Stopped by user")
			s.log.Info("download stopped", zap.String("task_id", taskID))
			return nil, err
		}

		classified := domain.NewDownloadError(err)
		kind := domain.KindOf(classified)
		s.log.Error("download failed",
			zap.String("task_id", taskID),
			zap.String("url", task.Descriptor.URL),
			zap.String("operation", "download_worker"),
			zap.String("error_kind", string(kind)),
			zap.Error(err))
		s.store.UpdateStatus(taskID, domain.StatusFailed, nil, domain.UserMessage(kind, err.Error()))
		return nil, classified
	}

	full := 100.0
	s.store.UpdateStatus(taskID, domain.StatusCompleted, &full, "")
	s.log.Info("download completed",
		zap.String("task_id", taskID),
		zap.String("file", filePath))

	s.recordHistory(task, filePath)
	return filePath, nil
}

// recordHistory appends a history entry for a completed task. History
// failures never fail the download.
func (s *DownloadService) recordHistory(task domain.DownloadTask, filePath string) {
	if s.history == nil {
		return
	}
	var size int64
	if info, err := os.Stat(filePath); err == nil {
		size = info.Size()
	}
	entry, err := domain.NewHistoryEntry(task, filePath, size)
	if err != nil {
		s.log.Warn("invalid history entry",
			zap.String("task_id", task.ID),
			zap.Error(err))
		return
	}
	if err := s.history.Add(entry); err != nil {
		s.log.Error("failed to record history",
			zap.String("task_id", task.ID),
			zap.String("url", task.Descriptor.URL),
			zap.String("operation", "record_history"),
			zap.Error(err))
	}
}

// onComplete runs when a worker's handle completes, on whichever goroutine
// finished the work. It only clears bookkeeping and publishes the outcome
// event; it never touches consumer state.
func (s *DownloadService) onComplete(taskID string, handle *pool.Handle) {
	s.mu.Lock()
	delete(s.active, taskID)
	delete(s.cancel, taskID)
	s.mu.Unlock()

	value, err := handle.Outcome()
	switch {
	case err == nil:
		filePath, _ := value.(string)
		s.bus.Publish(domain.NewEvent(domain.EventDownloadComplete, domain.DownloadCompletePayload{
			TaskID:   taskID,
			FilePath: filePath,
		}))
	case errors.Is(err, domain.ErrCancelled):
		s.bus.Publish(domain.NewEvent(domain.EventDownloadStopped, domain.DownloadStoppedPayload{
			TaskID: taskID,
			Reason: stoppedReason,
		}))
	default:
		kind := domain.KindOf(err)
		s.bus.Publish(domain.NewEvent(domain.EventDownloadFailed, domain.DownloadFailedPayload{
			TaskID: taskID,
			Error:  domain.UserMessage(kind, err.Error()),
			Kind:   kind,
		}))
	}
}
