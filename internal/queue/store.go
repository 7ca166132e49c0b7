package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/klyp/klyp-go/internal/domain"
)

// ErrDuplicateURL is returned when adding a URL already represented by a
// live task.
var ErrDuplicateURL = errors.New("url already in queue")

// ErrTaskNotFound is returned for operations on unknown task ids
var ErrTaskNotFound = errors.New("task not found")

// Publisher is the event sink the store reports mutations to. The event bus
// satisfies it; tests pass a recording stub.
type Publisher interface {
	Publish(event domain.Event) bool
}

// Store holds the ordered list of download tasks. All public operations
// acquire the store lock; callers always receive copies. Status and
// progress are mutated here and nowhere else.
type Store struct {
	mu    sync.Mutex
	tasks []domain.DownloadTask
	bus   Publisher
	log   *zap.Logger
}

// NewStore creates an empty store. bus may be nil when no event reporting
// is wanted (tests, import tools).
func NewStore(bus Publisher, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{bus: bus, log: log}
}

// Add appends a queued task for the descriptor. Fails with ErrDuplicateURL
// when the URL is already represented.
func (s *Store) Add(descriptor domain.VideoDescriptor, downloadPath string) (domain.DownloadTask, error) {
	task, err := domain.NewDownloadTask(descriptor, downloadPath)
	if err != nil {
		return domain.DownloadTask{}, err
	}

	s.mu.Lock()
	if s.urlPresentLocked(descriptor.URL) {
		s.mu.Unlock()
		return domain.DownloadTask{}, fmt.Errorf("%w: %s", ErrDuplicateURL, descriptor.URL)
	}
	s.tasks = append(s.tasks, task)
	count := len(s.tasks)
	s.mu.Unlock()

	s.log.Info("task added",
		zap.String("task_id", task.ID),
		zap.String("url", descriptor.URL))
	s.publishQueueUpdated(domain.QueueActionAdd, task.ID, count)
	return task, nil
}

// Remove deletes a task by id and reports whether it was present
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	removed := false
	for i, task := range s.tasks {
		if task.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			removed = true
			break
		}
	}
	count := len(s.tasks)
	s.mu.Unlock()

	if removed {
		s.publishQueueUpdated(domain.QueueActionRemove, id, count)
	}
	return removed
}

// Get returns a copy of the task with the given id
func (s *Store) Get(id string) (domain.DownloadTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.tasks {
		if task.ID == id {
			return task, true
		}
	}
	return domain.DownloadTask{}, false
}

// All returns a snapshot of every task in queue order
func (s *Store) All() []domain.DownloadTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.DownloadTask, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// ByStatus returns a snapshot of tasks with the given status
func (s *Store) ByStatus(status domain.DownloadStatus) []domain.DownloadTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.DownloadTask
	for _, task := range s.tasks {
		if task.Status == status {
			out = append(out, task)
		}
	}
	return out
}

// Count returns the number of tasks in the queue
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// UpdateStatus moves a task through its state machine. Illegal transitions
// and unknown ids return false; the fields are set atomically under the
// store lock and a QueueUpdated event follows the change.
func (s *Store) UpdateStatus(id string, status domain.DownloadStatus, progress *float64, errorMessage string) bool {
	s.mu.Lock()
	var updated bool
	for i := range s.tasks {
		if s.tasks[i].ID != id {
			continue
		}
		if !s.tasks[i].Status.CanTransition(status) {
			s.log.Warn("illegal status transition rejected",
				zap.String("task_id", id),
				zap.String("from", string(s.tasks[i].Status)),
				zap.String("to", string(status)))
			s.mu.Unlock()
			return false
		}
		s.tasks[i].Status = status
		if progress != nil {
			s.tasks[i].Progress = *progress
		}
		if errorMessage != "" {
			s.tasks[i].ErrorMessage = errorMessage
		}
		if status == domain.StatusCompleted {
			s.tasks[i].Progress = 100.0
			now := time.Now()
			s.tasks[i].CompletedAt = &now
		}
		updated = true
		break
	}
	count := len(s.tasks)
	s.mu.Unlock()

	if updated {
		s.publishQueueUpdated(domain.QueueActionUpdate, id, count)
	}
	return updated
}

// IsURLPresent checks whether a URL is already represented
func (s *Store) IsURLPresent(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.urlPresentLocked(url)
}

func (s *Store) urlPresentLocked(url string) bool {
	for _, task := range s.tasks {
		if task.Descriptor.URL == url {
			return true
		}
	}
	return false
}

// Clear removes every task
func (s *Store) Clear() {
	s.mu.Lock()
	s.tasks = nil
	s.mu.Unlock()

	s.publishQueueUpdated(domain.QueueActionClear, "", 0)
}

// Restore appends previously loaded tasks, skipping URLs already present.
// Returns the number restored.
func (s *Store) Restore(tasks []domain.DownloadTask) int {
	restored := 0
	s.mu.Lock()
	for _, task := range tasks {
		if s.urlPresentLocked(task.Descriptor.URL) {
			continue
		}
		s.tasks = append(s.tasks, task)
		restored++
	}
	count := len(s.tasks)
	s.mu.Unlock()

	if restored > 0 {
		s.publishQueueUpdated(domain.QueueActionAdd, "", count)
	}
	return restored
}

func (s *Store) publishQueueUpdated(action domain.QueueAction, taskID string, count int) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(domain.NewEvent(domain.EventQueueUpdated, domain.QueueUpdatedPayload{
		Action:    action,
		TaskID:    taskID,
		TaskCount: count,
	}))
}
