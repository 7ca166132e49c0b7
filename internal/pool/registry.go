package pool

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// MaxDownloadWorkers bounds concurrent downloads
	MaxDownloadWorkers = 3

	// MaxSearchWorkers bounds concurrent searches
	MaxSearchWorkers = 3

	downloadWorkerPrefix = "download_worker"
	searchWorkerPrefix   = "search_worker"
)

// Registry owns the two named worker pools. Pools are created lazily on
// first access; shutdown is idempotent and after it every access fails with
// ErrRegistryClosed.
type Registry struct {
	mu           sync.Mutex
	downloadPool *Pool
	searchPool   *Pool
	shutdown     bool
	log          *zap.Logger
}

// NewRegistry creates an empty registry; no worker goroutines exist until a
// pool is first requested.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{log: log}
}

// DownloadPool returns the download pool, creating it on first use
func (r *Registry) DownloadPool() (*Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return nil, ErrRegistryClosed
	}
	if r.downloadPool == nil {
		r.downloadPool = newPool(downloadWorkerPrefix, MaxDownloadWorkers, r.log)
		r.log.Info("download pool created", zap.Int("workers", MaxDownloadWorkers))
	}
	return r.downloadPool, nil
}

// SearchPool returns the search pool, creating it on first use
func (r *Registry) SearchPool() (*Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return nil, ErrRegistryClosed
	}
	if r.searchPool == nil {
		r.searchPool = newPool(searchWorkerPrefix, MaxSearchWorkers, r.log)
		r.log.Info("search pool created", zap.Int("workers", MaxSearchWorkers))
	}
	return r.searchPool, nil
}

// Shutdown stops both pools from accepting work and polls for worker exit.
// Returns true when every worker exited within timeout. In-flight workers
// are expected to observe their cancellation tokens; workers that ignore
// them are left to the OS. Idempotent.
func (r *Registry) Shutdown(timeout time.Duration) bool {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		r.log.Warn("shutdown already initiated")
		return true
	}
	r.shutdown = true
	downloads, searches := r.downloadPool, r.searchPool
	r.mu.Unlock()

	r.log.Info("shutting down thread pools", zap.Duration("timeout", timeout))

	if downloads != nil {
		downloads.shutdown()
	}
	if searches != nil {
		searches.shutdown()
	}

	deadline := time.Now().Add(timeout)
	ok := true
	if downloads != nil {
		ok = downloads.await(time.Until(deadline)) && ok
	}
	if searches != nil {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		ok = searches.await(remaining) && ok
	}

	if ok {
		r.log.Info("all thread pools terminated")
	} else {
		r.log.Warn("thread pool shutdown timed out; leaking uncooperative workers")
	}
	return ok
}
